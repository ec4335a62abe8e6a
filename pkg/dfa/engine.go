// Package dfa implements a generic worklist solver for dataflow analyses
// over a cfg.Flow. An analysis is an Instance (initial state, transfer
// function, direction) paired with a Semilattice (join and equality); Run
// iterates to the fixed point and returns the out-state of every instruction.
package dfa

import (
	"container/list"
	"context"
	"errors"
	"time"

	"github.com/l3aro/go-type-query/pkg/cfg"
)

var (
	// ErrTimeout is returned when the solver exceeds Options.Timeout.
	ErrTimeout = errors.New("dataflow analysis timed out")

	// ErrTooLarge is returned for flows above Options.MaxInstructions.
	ErrTooLarge = errors.New("flow too large for dataflow analysis")
)

// Direction is the direction states propagate in.
type Direction int

const (
	Forward Direction = iota
	Backward
)

func (d Direction) String() string {
	if d == Backward {
		return "backward"
	}
	return "forward"
}

// Instance describes one analysis.
type Instance[S any] interface {
	// Initial is the state every instruction starts with and the in-state of
	// instructions without predecessors.
	Initial() S
	// Transfer computes the out-state of inst. It must not modify in.
	Transfer(in S, inst *cfg.Instruction) S
	Direction() Direction
}

// Semilattice joins the states flowing into an instruction.
type Semilattice[S any] interface {
	Join(states []S) S
	Equal(a, b S) bool
}

// Options bounds a run.
type Options struct {
	// Timeout is the wall-clock budget, 0 for none.
	Timeout time.Duration

	// MaxInstructions rejects larger flows up front, 0 for no limit.
	MaxInstructions int

	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time
}

// Run solves the analysis to its fixed point and returns the out-state of
// every instruction, indexed by ordinal. On error no states are returned.
func Run[S any](ctx context.Context, flow *cfg.Flow, inst Instance[S], lattice Semilattice[S], opts Options) ([]S, error) {
	n := flow.Len()
	if opts.MaxInstructions > 0 && n > opts.MaxInstructions {
		return nil, ErrTooLarge
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	var deadline time.Time
	if opts.Timeout > 0 {
		deadline = clock().Add(opts.Timeout)
	}

	states := make([]S, n)
	for i := range states {
		states[i] = inst.Initial()
	}

	forward := inst.Direction() == Forward
	queue := list.New()
	queued := make([]bool, n)
	for i := 0; i < n; i++ {
		ord := i
		if !forward {
			ord = n - 1 - i
		}
		queue.PushBack(ord)
		queued[ord] = true
	}

	for queue.Len() > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if opts.Timeout > 0 && clock().After(deadline) {
			return nil, ErrTimeout
		}

		ord := queue.Remove(queue.Front()).(int)
		queued[ord] = false
		in := flow.At(ord)

		sources, targets := in.Pred, in.Succ
		if !forward {
			sources, targets = in.Succ, in.Pred
		}

		var before S
		if len(sources) == 0 {
			before = inst.Initial()
		} else {
			incoming := make([]S, len(sources))
			for i, s := range sources {
				incoming[i] = states[s]
			}
			before = lattice.Join(incoming)
		}

		after := inst.Transfer(before, in)
		if lattice.Equal(after, states[ord]) {
			continue
		}
		states[ord] = after
		for _, t := range targets {
			if !queued[t] {
				queued[t] = true
				queue.PushBack(t)
			}
		}
	}
	return states, nil
}
