package infer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/l3aro/go-type-query/internal/log"
	"github.com/l3aro/go-type-query/pkg/cfg"
	"github.com/l3aro/go-type-query/pkg/dfa"
	"github.com/l3aro/go-type-query/pkg/types"
)

// x = A()
// if isinstance(x, B):
//     use(x)
// use(x)
const narrowingDoc = `
scope: narrowing
classes:
  A: []
  B: [A]
instructions:
  - {op: plain, line: 1}
  - {op: write, var: x, type: A, line: 1}
  - {op: plain, line: 2}
  - {op: read, var: x, line: 2, succ: [4, 6]}
  - {op: narrowing, var: x, type: B, condition: 2, target: 3, line: 2}
  - {op: read, var: x, line: 3}
  - {op: plain, line: 4, negates: [2]}
  - {op: read, var: x, line: 4, end: true}
`

// x, y = computeTuple()
// a, b = items
const destructuringDoc = `
scope: destructuring
nodes:
  - {id: 0, kind: expression, eval: typed, type: "tuple[int, str]", text: "computeTuple()", line: 1}
  - {id: 1, kind: expression, eval: typed, type: "list[int]", text: items, line: 2}
instructions:
  - {op: write, var: x, value: 0, tuple: 0, line: 1}
  - {op: write, var: y, value: 0, tuple: 1, line: 1}
  - {op: write, var: a, value: 1, tuple: 0, line: 2}
  - {op: write, var: b, value: 1, tuple: 1, line: 2}
  - {op: read, var: x, line: 3}
  - {op: read, var: y, line: 3}
  - {op: read, var: b, line: 3, end: true}
`

// x = A()
// while cond:
//     if isinstance(x, B):
//         x = x
// use(x)
const chainDoc = `
scope: chain
classes:
  A: []
  B: [A]
nodes:
  - {id: 0, kind: statement, text: "x = x", line: 4}
  - {id: 1, parent: 0, kind: reference, name: x, line: 4}
instructions:
  - {op: write, var: x, type: A, line: 1}
  - {op: plain, line: 2, succ: [2, 7], negates: [2]}
  - {op: plain, line: 3}
  - {op: read, var: x, line: 3, succ: [4, 1]}
  - {op: narrowing, var: x, type: B, condition: 2, target: 3, line: 3}
  - {op: read, var: x, element: 1, line: 4}
  - {op: write, var: x, value: 1, element: 0, line: 4, succ: [1]}
  - {op: read, var: x, line: 5, end: true}
`

// x = 1
// while cond:
//     x = x + 1
// use(x)
const incrementDoc = `
scope: increment
nodes:
  - {id: 0, kind: statement, text: "x = x + 1", line: 3}
  - {id: 1, parent: 0, kind: expression, eval: join, text: "x + 1", line: 3}
  - {id: 2, parent: 1, kind: reference, name: x, line: 3}
  - {id: 3, parent: 1, kind: expression, eval: typed, type: int, text: "1", line: 3}
instructions:
  - {op: write, var: x, type: int, line: 1}
  - {op: plain, line: 2, succ: [2, 4]}
  - {op: read, var: x, element: 2, line: 3}
  - {op: write, var: x, value: 1, element: 0, line: 3, succ: [1]}
  - {op: read, var: x, line: 4, end: true}
`

// x = y where y is the x being assigned
const selfReferenceDoc = `
scope: self
nodes:
  - {id: 0, kind: statement, text: "x = x", line: 1}
  - {id: 1, parent: 0, kind: reference, name: x, line: 1}
instructions:
  - {op: plain, line: 1}
  - {op: write, var: x, value: 1, element: 0, line: 1}
  - {op: read, var: x, element: 1, line: 1, end: true}
`

// loadScope decodes a flow document into a scope and the hierarchy of its
// classes.
func loadScope(t *testing.T, doc string) (*StaticScope, *types.Hierarchy) {
	t.Helper()
	d, err := cfg.DecodeDocument(strings.NewReader(doc), cfg.FormatYAML)
	require.NoError(t, err)
	flow, err := d.Flow()
	require.NoError(t, err)

	h := types.NewHierarchy()
	h.DeclareAll(d.Classes)
	return NewStaticScope(d.Scope, flow), h
}

func inferString(t *testing.T, e *Engine, scope Scope, variable string, ordinal int) string {
	t.Helper()
	res, err := e.Infer(context.Background(), scope, variable, ordinal)
	require.NoError(t, err)
	return res.String()
}

// hourClock advances an hour on every reading.
func hourClock() func() time.Time {
	var mu sync.Mutex
	now := time.Unix(0, 0)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Hour)
		return now
	}
}

func TestEngine_Narrowing(t *testing.T) {
	scope, h := loadScope(t, narrowingDoc)
	e := NewEngine(h, Options{})

	tests := []struct {
		name     string
		ordinal  int
		expected string
	}{
		{name: "after assignment", ordinal: 1, expected: "A"},
		{name: "tested read", ordinal: 3, expected: "A"},
		{name: "narrowing", ordinal: 4, expected: "B"},
		{name: "inside branch", ordinal: 5, expected: "B"},
		{name: "after branch", ordinal: 7, expected: "A"},
		{name: "before assignment", ordinal: 0, expected: "unknown"},
	}

	// answers do not depend on the query order
	for _, order := range [][]int{{0, 1, 2, 3, 4, 5}, {5, 4, 3, 2, 1, 0}} {
		e.Invalidate(scope.ID())
		for _, i := range order {
			tt := tests[i]
			t.Run(tt.name, func(t *testing.T) {
				assert.Equal(t, tt.expected, inferString(t, e, scope, "x", tt.ordinal))
			})
		}
	}
}

func TestEngine_NarrowingDescriptor(t *testing.T) {
	scope, h := loadScope(t, narrowingDoc)
	e := NewEngine(h, Options{})

	res, err := e.Infer(context.Background(), scope, "x", 5)
	require.NoError(t, err)
	assert.Equal(t, Resolved, res.Outcome)
	assert.Equal(t, "A | B@2", res.Descriptor)
	assert.True(t, types.Equal(types.NewNamed("B"), res.Type))
}

func TestEngine_Destructuring(t *testing.T) {
	scope, h := loadScope(t, destructuringDoc)
	e := NewEngine(h, Options{})

	assert.Equal(t, "int", inferString(t, e, scope, "x", 4))
	assert.Equal(t, "str", inferString(t, e, scope, "y", 5))
	assert.Equal(t, "int", inferString(t, e, scope, "b", 6))
	assert.Equal(t, "int", inferString(t, e, scope, "a", 6))
	assert.Equal(t, "unknown", inferString(t, e, scope, "z", 6))
}

func TestEngine_Loops(t *testing.T) {
	t.Run("narrowing chain", func(t *testing.T) {
		scope, h := loadScope(t, chainDoc)
		e := NewEngine(h, Options{})

		assert.Equal(t, "B", inferString(t, e, scope, "x", 5))
		assert.Equal(t, "A", inferString(t, e, scope, "x", 7))
		assert.Equal(t, "B", inferString(t, e, scope, "x", 6))
		assert.Equal(t, "A", inferString(t, e, scope, "x", 3))
	})

	t.Run("increment", func(t *testing.T) {
		scope, h := loadScope(t, incrementDoc)
		e := NewEngine(h, Options{})

		assert.Equal(t, "int", inferString(t, e, scope, "x", 4))
		assert.Equal(t, "int", inferString(t, e, scope, "x", 3))
	})
}

func TestEngine_SelfReference(t *testing.T) {
	scope, h := loadScope(t, selfReferenceDoc)
	e := NewEngine(h, Options{})

	res, err := e.Infer(context.Background(), scope, "x", 2)
	require.NoError(t, err)
	assert.Equal(t, Unknown, res.Outcome)
	assert.Nil(t, res.Type)
}

func TestEngine_Timeout(t *testing.T) {
	scope, h := loadScope(t, chainDoc)
	var buf bytes.Buffer
	e := NewEngine(h, Options{
		InferenceTimeout: time.Second,
		Clock:            hourClock(),
		Logger:           log.New(log.LoggerConfig{Level: log.WarnLevel, Output: &buf}),
	})

	res, err := e.Infer(context.Background(), scope, "x", 7)
	require.NoError(t, err)
	assert.Equal(t, TooComplex, res.Outcome)
	assert.Contains(t, buf.String(), "type inference too complex")

	for _, o := range []int{0, 3, 4, 5, 6, 7} {
		assert.True(t, e.IsTooComplex(scope, o), "instruction %d", o)
	}
	assert.False(t, e.IsTooComplex(scope, 1))
	assert.False(t, e.IsTooComplex(scope, 2))

	// marked instructions answer without another run
	buf.Reset()
	res, err = e.Infer(context.Background(), scope, "x", 4)
	require.NoError(t, err)
	assert.Equal(t, TooComplex, res.Outcome)
	assert.Empty(t, buf.String())
}

func TestEngine_TooLarge(t *testing.T) {
	scope, h := loadScope(t, narrowingDoc)
	e := NewEngine(h, Options{MaxInstructions: 4})

	res, err := e.Infer(context.Background(), scope, "x", 5)
	require.NoError(t, err)
	assert.Equal(t, TooComplex, res.Outcome)
	assert.Equal(t, "too_complex", res.String())
}

func TestEngine_InvalidQuery(t *testing.T) {
	scope, h := loadScope(t, narrowingDoc)
	e := NewEngine(h, Options{})

	tests := []struct {
		name     string
		variable string
		ordinal  int
	}{
		{name: "empty variable", variable: "", ordinal: 1},
		{name: "negative ordinal", variable: "x", ordinal: -1},
		{name: "past the end", variable: "x", ordinal: 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Infer(context.Background(), scope, tt.variable, tt.ordinal)
			assert.True(t, errors.Is(err, ErrInvalidQuery))
			_, err = e.QuickType(context.Background(), scope, tt.variable, tt.ordinal)
			assert.True(t, errors.Is(err, ErrInvalidQuery))
		})
	}
}

func TestEngine_Canceled(t *testing.T) {
	scope, h := loadScope(t, narrowingDoc)
	e := NewEngine(h, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.Infer(ctx, scope, "x", 5)
	assert.True(t, errors.Is(err, context.Canceled))

	// nothing partial was cached
	assert.Equal(t, "B", inferString(t, e, scope, "x", 5))
}

func TestInferenceCache_ReachingDefsAfterCancel(t *testing.T) {
	scope, _ := loadScope(t, narrowingDoc)
	flow, err := scope.ControlFlow()
	require.NoError(t, err)
	c := newInferenceCache(scope.ID(), 1, flow, log.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.reachingDefs(ctx, dfa.Options{})
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, c.defsDone, "cancellation is not memoised")

	defs, err := c.reachingDefs(context.Background(), dfa.Options{})
	require.NoError(t, err)
	require.NotNil(t, defs)

	again, err := c.reachingDefs(ctx, dfa.Options{})
	require.NoError(t, err, "the stored result serves later callers")
	assert.Same(t, defs, again)
}

type brokenScope struct{}

func (brokenScope) ID() string                      { return "broken" }
func (brokenScope) ControlFlow() (*cfg.Flow, error) { return nil, errors.New("parse error") }
func (brokenScope) ModificationStamp() uint64       { return 1 }

func TestEngine_FlowUnavailable(t *testing.T) {
	e := NewEngine(types.NewHierarchy(), Options{})

	res, err := e.Infer(context.Background(), brokenScope{}, "x", 0)
	require.NoError(t, err)
	assert.Equal(t, TooComplex, res.Outcome)
}

// swapScope changes its flow without changing its stamp.
type swapScope struct {
	mu   sync.Mutex
	flow *cfg.Flow
}

func (s *swapScope) ID() string { return "swap" }

func (s *swapScope) ControlFlow() (*cfg.Flow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flow, nil
}

func (s *swapScope) ModificationStamp() uint64 { return 7 }

// editedScope is edited while its first flow is being read: the first
// ControlFlow returns the old flow and bumps the stamp.
type editedScope struct {
	mu    sync.Mutex
	flows []*cfg.Flow
	stamp uint64
	reads int
}

func (s *editedScope) ID() string { return "edited" }

func (s *editedScope) ControlFlow() (*cfg.Flow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.flows[min(s.reads, len(s.flows)-1)]
	if s.reads == 0 {
		s.stamp++
	}
	s.reads++
	return f, nil
}

func (s *editedScope) ModificationStamp() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stamp
}

func TestEngine_FlowReadDuringEdit(t *testing.T) {
	h := types.NewHierarchy()
	h.DeclareAll(map[string][]string{"A": nil, "B": nil})
	e := NewEngine(h, Options{})
	scope := &editedScope{flows: []*cfg.Flow{assignmentFlow(t, "A"), assignmentFlow(t, "B")}, stamp: 1}

	assert.Equal(t, "B", inferString(t, e, scope, "x", 1))
	c, ok := e.caches.Peek(scope.ID())
	require.True(t, ok)
	assert.Equal(t, uint64(2), c.Stamp())
	assert.Same(t, scope.flows[1], c.Flow())

	// the cache is labelled with the stamp of its flow and is reused
	assert.Equal(t, "B", inferString(t, e, scope, "x", 1))
	assert.Equal(t, 2, scope.reads)
}

func TestStaticScope_Snapshot(t *testing.T) {
	first := assignmentFlow(t, "A")
	scope := NewStaticScope("static", first)
	flow, stamp, err := scope.Snapshot()
	require.NoError(t, err)
	assert.Same(t, first, flow)
	assert.Equal(t, uint64(1), stamp)

	second := assignmentFlow(t, "B")
	scope.Replace(second)
	flow, stamp, err = scope.Snapshot()
	require.NoError(t, err)
	assert.Same(t, second, flow)
	assert.Equal(t, uint64(2), stamp)
}

func assignmentFlow(t *testing.T, class string) *cfg.Flow {
	t.Helper()
	d, err := cfg.DecodeDocument(strings.NewReader(fmt.Sprintf(`
scope: swap
instructions:
  - {op: write, var: x, type: %s, line: 1}
  - {op: read, var: x, line: 2}
`, class)), cfg.FormatYAML)
	require.NoError(t, err)
	flow, err := d.Flow()
	require.NoError(t, err)
	return flow
}

func TestEngine_Invalidation(t *testing.T) {
	h := types.NewHierarchy()
	h.DeclareAll(map[string][]string{"A": nil, "B": nil})
	e := NewEngine(h, Options{})

	t.Run("modification stamp", func(t *testing.T) {
		scope := NewStaticScope("static", assignmentFlow(t, "A"))
		assert.Equal(t, "A", inferString(t, e, scope, "x", 1))

		scope.Replace(assignmentFlow(t, "B"))
		assert.Equal(t, uint64(2), scope.ModificationStamp())
		assert.Equal(t, "B", inferString(t, e, scope, "x", 1))
	})

	t.Run("explicit", func(t *testing.T) {
		scope := &swapScope{flow: assignmentFlow(t, "A")}
		assert.Equal(t, "A", inferString(t, e, scope, "x", 1))

		scope.mu.Lock()
		scope.flow = assignmentFlow(t, "B")
		scope.mu.Unlock()
		assert.Equal(t, "A", inferString(t, e, scope, "x", 1), "same stamp serves the cache")

		e.Invalidate(scope.ID())
		assert.Equal(t, "B", inferString(t, e, scope, "x", 1))
	})

	assert.Equal(t, 2, e.Stats().Len)
}

func TestEngine_ScopeEviction(t *testing.T) {
	h := types.NewHierarchy()
	h.Declare("A")
	e := NewEngine(h, Options{MaxScopes: 1})

	first := NewStaticScope("first", assignmentFlow(t, "A"))
	second := NewStaticScope("second", assignmentFlow(t, "A"))

	assert.Equal(t, "A", inferString(t, e, first, "x", 1))
	assert.Equal(t, "A", inferString(t, e, second, "x", 1))
	assert.Equal(t, "A", inferString(t, e, first, "x", 1))

	stats := e.Stats()
	assert.Equal(t, 1, stats.Len)
	assert.GreaterOrEqual(t, stats.Evictions, uint64(1))
}

// queries returns every (variable, ordinal) pair of a scope.
func queries(t *testing.T, scope Scope) [][2]any {
	t.Helper()
	flow, err := scope.ControlFlow()
	require.NoError(t, err)
	var out [][2]any
	for _, v := range append(flow.Variables(), "unbound") {
		for o := 0; o < flow.Len(); o++ {
			out = append(out, [2]any{v, o})
		}
	}
	return out
}

func TestEngine_ConcurrentCoherence(t *testing.T) {
	for _, doc := range []string{narrowingDoc, destructuringDoc} {
		scope, h := loadScope(t, doc)
		qs := queries(t, scope)

		sequential := NewEngine(h, Options{})
		expected := make(map[[2]any]Result, len(qs))
		for _, q := range qs {
			res, err := sequential.Infer(context.Background(), scope, q[0].(string), q[1].(int))
			require.NoError(t, err)
			expected[q] = res
		}

		shared := NewEngine(h, Options{})
		var g errgroup.Group
		for w := 0; w < 8; w++ {
			g.Go(func() error {
				for i := range qs {
					q := qs[(i*(w+3))%len(qs)]
					res, err := shared.Infer(context.Background(), scope, q[0].(string), q[1].(int))
					if err != nil {
						return err
					}
					want := expected[q]
					if res.String() != want.String() || res.Descriptor != want.Descriptor {
						return fmt.Errorf("%s at %d: got %s (%s), want %s (%s)",
							q[0], q[1], res, res.Descriptor, want, want.Descriptor)
					}
				}
				return nil
			})
		}
		require.NoError(t, g.Wait(), scope.ID())
	}
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "resolved", Resolved.String())
	assert.Equal(t, "unknown", Unknown.String())
	assert.Equal(t, "too_complex", TooComplex.String())
	assert.Equal(t, "outcome(9)", Outcome(9).String())

	text, err := TooComplex.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "too_complex", string(text))
}
