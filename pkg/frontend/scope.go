package frontend

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/l3aro/go-type-query/pkg/cfg"
	"github.com/l3aro/go-type-query/pkg/dirty"
	"github.com/l3aro/go-type-query/pkg/infer"
	"github.com/l3aro/go-type-query/pkg/types"
)

var _ infer.Snapshotter = (*FileScope)(nil)

// FileScope is one function of a Python file. Its modification stamp is the
// generation the dirty tracker assigns to the file's content, and its flow
// is re-lowered whenever that generation moves.
type FileScope struct {
	path     string
	function string
	tracker  *dirty.Tracker
	types    *types.Hierarchy

	mu         sync.Mutex
	unit       *Unit
	generation uint64
}

// NewFileScope creates a scope for function in the file at path. Classes of
// the file are declared into h each time it is lowered.
func NewFileScope(path, function string, tracker *dirty.Tracker, h *types.Hierarchy) *FileScope {
	if function == "" {
		function = ModuleScope
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return &FileScope{path: path, function: function, tracker: tracker, types: h}
}

func (s *FileScope) ID() string {
	return s.path + "#" + s.function
}

// ModificationStamp returns the file's generation, 0 when it cannot be read.
func (s *FileScope) ModificationStamp() uint64 {
	_, gen, err := s.tracker.StampFile(s.path)
	if err != nil {
		return 0
	}
	return gen
}

func (s *FileScope) ControlFlow() (*cfg.Flow, error) {
	unit, _, err := s.load()
	if err != nil {
		return nil, err
	}
	return unit.Flow, nil
}

// Snapshot returns the flow with the generation of the content it was
// lowered from.
func (s *FileScope) Snapshot() (*cfg.Flow, uint64, error) {
	unit, gen, err := s.load()
	if err != nil {
		return nil, 0, err
	}
	return unit.Flow, gen, nil
}

// Unit returns the lowered unit, parsing the file if needed.
func (s *FileScope) Unit() (*Unit, error) {
	unit, _, err := s.load()
	return unit, err
}

func (s *FileScope) load() (*Unit, uint64, error) {
	content, gen, err := s.tracker.StampFile(s.path)
	if err != nil {
		return nil, 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unit != nil && s.generation == gen {
		return s.unit, gen, nil
	}
	unit, err := ParsePython(context.Background(), content, s.function)
	if err != nil {
		return nil, 0, err
	}
	if s.types != nil {
		unit.Declare(s.types)
	}
	s.unit, s.generation = unit, gen
	return unit, gen, nil
}
