package infer

import (
	"context"
	"slices"

	set "github.com/hashicorp/go-set/v3"

	"github.com/l3aro/go-type-query/pkg/cfg"
	"github.com/l3aro/go-type-query/pkg/dfg"
	"github.com/l3aro/go-type-query/pkg/types"
)

// QuickType infers the type of variable at an instruction from its reaching
// definitions alone, without running the type analysis. Each definition is
// typed on its own: writes by resolving their value and narrowings by
// mixing the tested type into the type reaching the narrowed read.
// Results are not cached.
func (e *Engine) QuickType(ctx context.Context, scope Scope, variable string, ordinal int) (Result, error) {
	c, err := e.cacheFor(scope)
	if err != nil {
		e.log.Warn("control flow unavailable", "scope", scope.ID(), "error", err)
		return Result{Outcome: TooComplex}, nil
	}
	if err := validateQuery(c.flow, variable, ordinal); err != nil {
		return Result{}, err
	}
	defs, err := c.reachingDefs(ctx, e.definitionsOptions())
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		c.log.Warn("reaching definitions unavailable", "error", err)
		return Result{Outcome: TooComplex}, nil
	}

	q := &quickInference{engine: e, flow: c.flow, defs: defs}
	t := q.inferred(variable, ordinal, set.New[int](0))
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	return e.result(t), nil
}

type quickInference struct {
	engine *Engine
	flow   *cfg.Flow
	defs   *dfg.ReachingDefs
}

// inferred joins the types of the definitions of variable reaching the
// instruction. trace holds the definitions being typed on the current path;
// callees get their own copy so sibling definitions are not affected.
func (q *quickInference) inferred(variable string, ordinal int, trace *set.Set[int]) DFAType {
	inst := q.flow.At(ordinal)
	var out DFAType
	for _, d := range q.defs.DefinitionsOf(variable, ordinal) {
		t := q.definitionType(q.flow.At(d), trace)
		for _, c := range t.conditions() {
			if !q.holds(c, d, ordinal) {
				t = t.Negate(c)
			}
		}
		out = out.Join(t.Negate(inst.Negates...))
	}
	return out
}

// holds reports whether the narrowings of condition made at from are still
// in effect at to: some path leads there without passing an instruction
// that ends them.
func (q *quickInference) holds(condition, from, to int) bool {
	if from == to {
		return true
	}
	seen := make([]bool, q.flow.Len())
	stack := []int{from}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, s := range q.flow.At(cur).Succ {
			if seen[s] || slices.Contains(q.flow.At(s).Negates, condition) {
				continue
			}
			if s == to {
				return true
			}
			seen[s] = true
			stack = append(stack, s)
		}
	}
	return false
}

func (q *quickInference) definitionType(def *cfg.Instruction, trace *set.Set[int]) DFAType {
	if trace.Contains(def.Ordinal) {
		return DFAType{}
	}
	trace = trace.Copy()
	trace.Insert(def.Ordinal)

	switch op := def.Op.(type) {
	case cfg.Write:
		if op.Value == cfg.NoNode {
			return Definite(nil)
		}
		env := &quickEnv{q: q, trace: trace}
		t := q.engine.resolver.ResolveStaticType(env, q.flow, op.Value)
		return Definite(component(q.engine.sys, t, op.TupleIndex))
	case cfg.Narrowing:
		original := q.inferred(op.Variable, op.Target, trace)
		return original.Negate(op.Condition).AddMixin(parseType(op.Type), op.Condition)
	case cfg.Argument:
		// passing a variable keeps its type
		var out DFAType
		for _, p := range def.Pred {
			out = out.Join(q.inferred(op.Variable, p, trace))
		}
		return out
	}
	return DFAType{}
}

type quickEnv struct {
	q     *quickInference
	trace *set.Set[int]
}

func (e *quickEnv) Types() types.System {
	return e.q.engine.sys
}

func (e *quickEnv) VariableType(name string, node cfg.NodeID) types.Type {
	ord := readAt(e.q.flow, name, node)
	if ord < 0 {
		return nil
	}
	return e.q.inferred(name, ord, e.trace).ResultType(e.q.engine.sys)
}
