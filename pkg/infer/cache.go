package infer

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/l3aro/go-type-query/internal/log"
	"github.com/l3aro/go-type-query/pkg/cfg"
	"github.com/l3aro/go-type-query/pkg/dfa"
	"github.com/l3aro/go-type-query/pkg/dfg"
	"github.com/l3aro/go-type-query/pkg/slicer"
)

// InferenceCache holds the inference results of one scope generation.
// Results only grow: merged states are joined into the stored ones, and
// instructions marked too complex stay marked until the scope changes.
type InferenceCache struct {
	scopeID string
	stamp   uint64
	flow    *cfg.Flow
	log     log.Logger

	defsMu   sync.Mutex
	defsDone bool
	defs     *dfg.ReachingDefs
	defsErr  error

	states     atomic.Pointer[[]TypeDfaState]
	tooComplex sync.Map // ordinal -> struct{}
}

func newInferenceCache(scopeID string, stamp uint64, flow *cfg.Flow, logger log.Logger) *InferenceCache {
	return &InferenceCache{
		scopeID: scopeID,
		stamp:   stamp,
		flow:    flow,
		log:     logger.With("scope", scopeID, "stamp", stamp),
	}
}

// Flow returns the flow the cache was built for.
func (c *InferenceCache) Flow() *cfg.Flow {
	return c.flow
}

// Stamp returns the scope modification stamp the cache belongs to.
func (c *InferenceCache) Stamp() uint64 {
	return c.stamp
}

// reachingDefs computes reaching definitions once. Failures are memoised
// as well, except cancellation: the next caller computes again and the
// first result that is not a cancellation is kept.
func (c *InferenceCache) reachingDefs(ctx context.Context, opts dfa.Options) (*dfg.ReachingDefs, error) {
	c.defsMu.Lock()
	defer c.defsMu.Unlock()
	if c.defsDone {
		return c.defs, c.defsErr
	}
	defs, err := dfg.Compute(ctx, c.flow, opts)
	if err != nil && isCancellation(err) {
		return nil, err
	}
	c.defs, c.defsErr, c.defsDone = defs, err, true
	return defs, err
}

// cachedType returns the stored binding of variable after the instruction.
func (c *InferenceCache) cachedType(variable string, ordinal int) (DFAType, bool) {
	states := c.states.Load()
	if states == nil || ordinal < 0 || ordinal >= len(*states) {
		return DFAType{}, false
	}
	return (*states)[ordinal].Get(variable)
}

// merge joins the bindings of the slice's pairs into the stored states.
// Pairs without a binding are stored as bottom so that unknown answers are
// cached too.
func (c *InferenceCache) merge(pairs []slicer.Pair, result []TypeDfaState) {
	for {
		old := c.states.Load()
		next := make([]TypeDfaState, len(result))
		if old != nil {
			copy(next, *old)
		}
		for _, p := range pairs {
			add, _ := result[p.Instruction].Get(p.Variable)
			cur, _ := next[p.Instruction].Get(p.Variable)
			next[p.Instruction] = next[p.Instruction].With(p.Variable, cur.Join(add))
		}
		if c.states.CompareAndSwap(old, &next) {
			return
		}
	}
}

func (c *InferenceCache) markTooComplex(ordinals ...int) {
	for _, o := range ordinals {
		c.tooComplex.Store(o, struct{}{})
	}
}

func (c *InferenceCache) isTooComplex(ordinal int) bool {
	_, ok := c.tooComplex.Load(ordinal)
	return ok
}

// TooComplex returns the ordinals marked too complex, unordered.
func (c *InferenceCache) TooComplex() []int {
	var out []int
	c.tooComplex.Range(func(k, _ any) bool {
		out = append(out, k.(int))
		return true
	})
	return out
}
