package infer

// queryKey identifies an inference query: a variable at an instruction of a
// scope.
type queryKey struct {
	scope    string
	ordinal  int
	variable string
}

// inferenceContext is the per-query state threaded through nested
// inference. It holds the partial bindings of the instructions currently
// being resolved and the queries in flight, so that a query that depends on
// itself is answered from the bindings computed so far instead of
// recursing. A context belongs to one top-level query and is never shared
// between goroutines.
type inferenceContext struct {
	frames   []TypeDfaState
	inflight map[queryKey]struct{}
}

func newInferenceContext() *inferenceContext {
	return &inferenceContext{inflight: make(map[queryKey]struct{})}
}

// push makes bindings the current partial bindings until pop is called.
func (c *inferenceContext) push(bindings TypeDfaState) (pop func()) {
	c.frames = append(c.frames, bindings)
	depth := len(c.frames)
	return func() {
		c.frames = c.frames[:depth-1]
	}
}

// bindings returns the innermost partial bindings.
func (c *inferenceContext) bindings() (TypeDfaState, bool) {
	if len(c.frames) == 0 {
		return TypeDfaState{}, false
	}
	return c.frames[len(c.frames)-1], true
}

// enter marks a query as in flight. It reports false when the query is
// already running further up the stack.
func (c *inferenceContext) enter(k queryKey) (leave func(), ok bool) {
	if _, running := c.inflight[k]; running {
		return nil, false
	}
	c.inflight[k] = struct{}{}
	return func() { delete(c.inflight, k) }, true
}

// depth returns the number of pushed frames.
func (c *inferenceContext) depth() int {
	return len(c.frames)
}
