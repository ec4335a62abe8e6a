package infer

import (
	"sync"

	"github.com/l3aro/go-type-query/pkg/cfg"
)

// Scope is a lexical scope whose variables can be queried.
type Scope interface {
	// ID identifies the scope across modifications.
	ID() string
	// ControlFlow returns the current flow of the scope.
	ControlFlow() (*cfg.Flow, error)
	// ModificationStamp changes whenever the flow changes.
	ModificationStamp() uint64
}

// Snapshotter is implemented by scopes that can return their flow together
// with the stamp it belongs to in one consistent read.
type Snapshotter interface {
	Snapshot() (*cfg.Flow, uint64, error)
}

// StaticScope is a Scope over an in-memory flow.
type StaticScope struct {
	id string

	mu    sync.RWMutex
	flow  *cfg.Flow
	stamp uint64
}

// NewStaticScope wraps a flow.
func NewStaticScope(id string, flow *cfg.Flow) *StaticScope {
	return &StaticScope{id: id, flow: flow, stamp: 1}
}

func (s *StaticScope) ID() string {
	return s.id
}

func (s *StaticScope) ControlFlow() (*cfg.Flow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.flow, nil
}

func (s *StaticScope) ModificationStamp() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stamp
}

// Snapshot implements Snapshotter.
func (s *StaticScope) Snapshot() (*cfg.Flow, uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.flow, s.stamp, nil
}

// Replace swaps the flow and bumps the modification stamp.
func (s *StaticScope) Replace(flow *cfg.Flow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flow = flow
	s.stamp++
}
