// Package infer implements flow-sensitive type inference. For a variable
// at an instruction it slices the flow down to the instructions the answer
// depends on, runs a forward type analysis over the slice and caches the
// results per scope generation. Narrowings by runtime type tests are
// tracked per branch condition and dropped where the branch ends.
package infer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/l3aro/go-type-query/internal/log"
	"github.com/l3aro/go-type-query/pkg/cache"
	"github.com/l3aro/go-type-query/pkg/cfg"
	"github.com/l3aro/go-type-query/pkg/dfa"
	"github.com/l3aro/go-type-query/pkg/slicer"
	"github.com/l3aro/go-type-query/pkg/types"
)

// ErrInvalidQuery is returned for queries naming no variable or an
// instruction outside the flow.
var ErrInvalidQuery = errors.New("invalid inference query")

var errScopeUnstable = errors.New("scope changed on every read of its flow")

const maxSnapshotAttempts = 3

// Outcome classifies an answer.
type Outcome int

const (
	Resolved   Outcome = iota // A type was inferred
	Unknown                   // Nothing is known about the variable
	TooComplex                // The analysis gave up
)

func (o Outcome) String() string {
	switch o {
	case Resolved:
		return "resolved"
	case Unknown:
		return "unknown"
	case TooComplex:
		return "too_complex"
	default:
		return "outcome(" + strconv.Itoa(int(o)) + ")"
	}
}

// MarshalText renders the outcome name in JSON and YAML output.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Result is the answer to a query.
type Result struct {
	Type       types.Type // nil unless Outcome is Resolved
	Descriptor string     // Candidate set the type was collapsed from
	Outcome    Outcome
}

func (r Result) String() string {
	if r.Outcome != Resolved {
		return r.Outcome.String()
	}
	return types.String(r.Type)
}

// Options configures an Engine.
type Options struct {
	// InferenceTimeout bounds each type analysis run, 0 for none.
	InferenceTimeout time.Duration

	// DefinitionsTimeout bounds reaching-definitions analysis, 0 for none.
	DefinitionsTimeout time.Duration

	// MaxInstructions rejects larger flows, 0 for no limit.
	MaxInstructions int

	// MaxScopes is the number of scope caches kept. Defaults to 128.
	MaxScopes int

	// Resolver computes expression types. Defaults to NodeResolver.
	Resolver Resolver

	// Logger defaults to a no-op logger.
	Logger log.Logger

	// Clock is used for timeouts. Defaults to time.Now.
	Clock func() time.Time
}

// Engine answers type queries. It is safe for concurrent use.
type Engine struct {
	sys      types.System
	resolver Resolver
	opts     Options
	log      log.Logger
	caches   *cache.LRU[string, *InferenceCache]
	group    singleflight.Group
}

// NewEngine creates an engine over a type system.
func NewEngine(sys types.System, opts Options) *Engine {
	if opts.MaxScopes <= 0 {
		opts.MaxScopes = 128
	}
	if opts.Resolver == nil {
		opts.Resolver = NodeResolver{}
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	e := &Engine{
		sys:      sys,
		resolver: opts.Resolver,
		opts:     opts,
		log:      opts.Logger,
	}
	e.caches = cache.New(cache.Options[string, *InferenceCache]{MaxSize: opts.MaxScopes})
	return e
}

// Types returns the engine's type system.
func (e *Engine) Types() types.System {
	return e.sys
}

// Infer returns the type of variable after the instruction with the given
// ordinal. Errors are reserved for invalid queries and cancellation; an
// analysis that gives up answers TooComplex.
func (e *Engine) Infer(ctx context.Context, scope Scope, variable string, ordinal int) (Result, error) {
	c, err := e.cacheFor(scope)
	if err != nil {
		e.log.Warn("control flow unavailable", "scope", scope.ID(), "error", err)
		return Result{Outcome: TooComplex}, nil
	}
	if err := validateQuery(c.flow, variable, ordinal); err != nil {
		return Result{}, err
	}
	return e.infer(ctx, newInferenceContext(), c, variable, ordinal)
}

// Invalidate drops the cached results of a scope.
func (e *Engine) Invalidate(scopeID string) {
	e.caches.Delete(scopeID)
	e.log.Debug("invalidated inference cache", "scope", scopeID)
}

// Stats reports scope cache usage.
func (e *Engine) Stats() cache.Stats {
	return e.caches.Stats()
}

// IsTooComplex reports whether a query at the instruction already gave up.
func (e *Engine) IsTooComplex(scope Scope, ordinal int) bool {
	c, ok := e.caches.Peek(scope.ID())
	return ok && c.stamp == scope.ModificationStamp() && c.isTooComplex(ordinal)
}

func validateQuery(flow *cfg.Flow, variable string, ordinal int) error {
	if variable == "" {
		return fmt.Errorf("%w: empty variable name", ErrInvalidQuery)
	}
	if flow.At(ordinal) == nil {
		return fmt.Errorf("%w: instruction %d outside %s (%d instructions)", ErrInvalidQuery, ordinal, flow.Name, flow.Len())
	}
	return nil
}

// cacheFor returns the cache of the scope's current generation, replacing
// a stale one.
func (e *Engine) cacheFor(scope Scope) (*InferenceCache, error) {
	id, stamp := scope.ID(), scope.ModificationStamp()
	if c, ok := e.caches.Get(id); ok {
		if c.stamp == stamp {
			return c, nil
		}
		e.caches.CompareAndDelete(id, func(cur *InferenceCache) bool { return cur == c })
		e.log.Debug("discarded stale inference cache", "scope", id, "stamp", c.stamp, "current", stamp)
	}

	v, err, _ := e.group.Do(id+"@"+strconv.FormatUint(stamp, 10), func() (interface{}, error) {
		if c, ok := e.caches.Peek(id); ok && c.stamp == stamp {
			return c, nil
		}
		flow, current, err := snapshot(scope, stamp)
		if err != nil {
			return nil, fmt.Errorf("failed to get control flow of %s: %w", id, err)
		}
		if c, ok := e.caches.Peek(id); ok && c.stamp == current {
			return c, nil
		}
		c := newInferenceCache(id, current, flow, e.log)
		e.caches.Set(id, c)
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*InferenceCache), nil
}

// snapshot reads the flow of a scope together with the stamp it belongs
// to. Scopes that cannot do both in one read are re-read until the stamp
// observed after the flow matches the one observed before it.
func snapshot(scope Scope, stamp uint64) (*cfg.Flow, uint64, error) {
	if s, ok := scope.(Snapshotter); ok {
		return s.Snapshot()
	}
	for range maxSnapshotAttempts {
		flow, err := scope.ControlFlow()
		if err != nil {
			return nil, 0, err
		}
		current := scope.ModificationStamp()
		if current == stamp {
			return flow, stamp, nil
		}
		stamp = current
	}
	return nil, 0, errScopeUnstable
}

func (e *Engine) infer(ctx context.Context, ictx *inferenceContext, c *InferenceCache, variable string, ordinal int) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if c.isTooComplex(ordinal) {
		return Result{Outcome: TooComplex}, nil
	}
	if t, ok := c.cachedType(variable, ordinal); ok {
		return e.result(t), nil
	}

	leave, ok := ictx.enter(queryKey{scope: c.scopeID, ordinal: ordinal, variable: variable})
	if !ok {
		// already being computed further up: use what is known so far
		if b, ok := ictx.bindings(); ok {
			if t, ok := b.Get(variable); ok {
				return e.result(t), nil
			}
		}
		return Result{Outcome: Unknown}, nil
	}
	defer leave()

	for attempt := 0; attempt < 2; attempt++ {
		if err := e.compute(ctx, ictx, c, variable, ordinal); err != nil {
			return Result{}, err
		}
		if c.isTooComplex(ordinal) {
			return Result{Outcome: TooComplex}, nil
		}
		if t, ok := c.cachedType(variable, ordinal); ok {
			return e.result(t), nil
		}
	}
	return Result{Outcome: Unknown}, nil
}

// compute slices the flow for the query, runs the type analysis and merges
// the result into the cache. It fails only on cancellation.
func (e *Engine) compute(ctx context.Context, ictx *inferenceContext, c *InferenceCache, variable string, ordinal int) error {
	defs, err := c.reachingDefs(ctx, e.definitionsOptions())
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warn("reaching definitions unavailable", "ordinal", ordinal, "error", err)
		c.markTooComplex(ordinal)
		return nil
	}

	slice := slicer.Compute(c.flow, ordinal, variable, defs)
	c.log.Debug("computed dependency slice",
		"variable", variable,
		"ordinal", ordinal,
		"instructions", slice.Instructions.Size(),
		"pairs", len(slice.Pairs),
		"depth", ictx.depth())

	inst := &typeDfaInstance{ctx: ctx, engine: e, cache: c, ictx: ictx, slice: slice}
	states, err := dfa.Run[TypeDfaState](ctx, c.flow, inst, typesSemilattice{}, e.inferenceOptions())
	if err == nil {
		err = ctx.Err()
	}
	switch {
	case err == nil:
	case errors.Is(err, dfa.ErrTimeout), errors.Is(err, dfa.ErrTooLarge):
		c.markTooComplex(slice.Ordinals()...)
		c.log.Warn("type inference too complex",
			"variable", variable,
			"ordinal", ordinal,
			"instructions", slice.Instructions.Size(),
			"error", err)
		return nil
	default:
		return err
	}

	c.merge(slice.Pairs, states)
	return nil
}

func (e *Engine) result(t DFAType) Result {
	if t.IsBottom() {
		return Result{Outcome: Unknown, Descriptor: t.String()}
	}
	typ := t.ResultType(e.sys)
	if typ == nil {
		return Result{Outcome: Unknown, Descriptor: t.String()}
	}
	return Result{Type: typ, Descriptor: t.String(), Outcome: Resolved}
}

func (e *Engine) definitionsOptions() dfa.Options {
	return dfa.Options{
		Timeout:         e.opts.DefinitionsTimeout,
		MaxInstructions: e.opts.MaxInstructions,
		Clock:           e.opts.Clock,
	}
}

func (e *Engine) inferenceOptions() dfa.Options {
	return dfa.Options{
		Timeout:         e.opts.InferenceTimeout,
		MaxInstructions: e.opts.MaxInstructions,
		Clock:           e.opts.Clock,
	}
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
