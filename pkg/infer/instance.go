package infer

import (
	"context"

	"github.com/l3aro/go-type-query/pkg/cfg"
	"github.com/l3aro/go-type-query/pkg/dfa"
	"github.com/l3aro/go-type-query/pkg/slicer"
	"github.com/l3aro/go-type-query/pkg/types"
)

// typeDfaInstance is the forward type analysis of one query. Only the
// writes and narrowings of the slice are evaluated; every other definition
// drops its variable's binding.
type typeDfaInstance struct {
	ctx    context.Context
	engine *Engine
	cache  *InferenceCache
	ictx   *inferenceContext
	slice  *slicer.Slice
}

func (i *typeDfaInstance) Initial() TypeDfaState { return TypeDfaState{} }

func (i *typeDfaInstance) Direction() dfa.Direction { return dfa.Forward }

func (i *typeDfaInstance) Transfer(in TypeDfaState, inst *cfg.Instruction) TypeDfaState {
	state := in.Bindings(inst)

	switch op := inst.Op.(type) {
	case cfg.Write:
		return i.update(state, inst, op.Variable, func() DFAType {
			return Definite(i.writeType(state, inst, op))
		})
	case cfg.Narrowing:
		return i.update(state, inst, op.Variable, func() DFAType {
			prior, _ := state.Get(op.Variable)
			prior = prior.Negate(op.Condition)
			if target := i.cache.flow.At(op.Target); target != nil {
				prior = prior.Negate(target.Negates...)
			}
			return prior.AddMixin(parseType(op.Type), op.Condition)
		})
	}
	return state
}

// update binds variable at an interesting instruction, preferring the
// cached result, and unbinds it elsewhere.
func (i *typeDfaInstance) update(state TypeDfaState, inst *cfg.Instruction, variable string, compute func() DFAType) TypeDfaState {
	if !i.slice.Contains(inst.Ordinal) {
		return state.Without(variable)
	}
	t, ok := i.cache.cachedType(variable, inst.Ordinal)
	if !ok || t.IsBottom() {
		t = compute()
	}
	if t.IsBottom() {
		return state.Without(variable)
	}
	return state.With(variable, t)
}

// writeType resolves the value of a write with state as partial bindings.
func (i *typeDfaInstance) writeType(state TypeDfaState, inst *cfg.Instruction, op cfg.Write) types.Type {
	if op.Value == cfg.NoNode {
		return nil
	}
	pop := i.ictx.push(state)
	defer pop()

	env := &queryEnv{ctx: i.ctx, engine: i.engine, cache: i.cache, ictx: i.ictx}
	t := i.engine.resolver.ResolveStaticType(env, i.cache.flow, op.Value)
	return component(i.engine.sys, t, op.TupleIndex)
}

// queryEnv answers variable lookups for the resolver during a query.
type queryEnv struct {
	ctx    context.Context
	engine *Engine
	cache  *InferenceCache
	ictx   *inferenceContext
}

func (e *queryEnv) Types() types.System {
	return e.engine.sys
}

func (e *queryEnv) VariableType(name string, node cfg.NodeID) types.Type {
	if b, ok := e.ictx.bindings(); ok {
		if t, ok := b.Get(name); ok {
			return t.ResultType(e.engine.sys)
		}
	}
	ord := readAt(e.cache.flow, name, node)
	if ord < 0 {
		return nil
	}
	res, err := e.engine.infer(e.ctx, e.ictx, e.cache, name, ord)
	if err != nil {
		return nil
	}
	return res.Type
}

// readAt returns the read of name attached to node, -1 when there is none.
func readAt(flow *cfg.Flow, name string, node cfg.NodeID) int {
	for _, o := range flow.InstructionsAt(node) {
		if r, ok := flow.At(o).Op.(cfg.Read); ok && r.Variable == name {
			return o
		}
	}
	return -1
}
