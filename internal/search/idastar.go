// README: Generic iterative-deepening A* over a caller-defined state space.
package search

import (
	"fmt"
	"math"
	"sort"
)

// Successor is one outgoing edge produced by an ExpandFunc.
// Cost must be non-negative.
type Successor[S any] struct {
	State S
	Cost  float64
}

// HeuristicFunc estimates the remaining cost from a state to the nearest
// goal. It must be admissible (never overestimate) for Search to return the
// optimal cost; a +Inf estimate marks a state that cannot reach a goal.
type HeuristicFunc[S any] func(S) float64

// ExpandFunc generates the successors of a state. An error aborts the whole
// search and is returned to the caller unchanged; it always indicates a
// defect in the adapter, never a normal "no moves here" condition (that is
// an empty slice).
type ExpandFunc[S any] func(S) ([]Successor[S], error)

// GoalFunc reports whether a state is a goal.
type GoalFunc[S any] func(S) bool

// KeyFunc projects a state onto a comparable key used to prune dominated
// re-visits within one bounded-depth iteration. Two states with the same
// key are treated as duplicates; the projection may be lossy (coarser keys
// prune more at the risk of skipping a near-duplicate path, which affects
// search effort only, not the optimality of the final answer).
type KeyFunc[S, K any] func(S) K

// Search runs iterative-deepening A* from start.
//
// It returns the first goal reached within the tightest possible bound and
// the exact path cost g, which is optimal when h is admissible and all step
// costs are non-negative. When no goal is reachable it returns found=false
// with cost +Inf; that is a normal outcome, not an error.
func Search[S, K comparable](
	start S,
	h HeuristicFunc[S],
	expand ExpandFunc[S],
	isGoal GoalFunc[S],
	key KeyFunc[S, K],
) (goal S, cost float64, found bool, err error) {
	s := &searcher[S, K]{
		h:      h,
		expand: expand,
		isGoal: isGoal,
		key:    key,
		onPath: make(map[S]struct{}),
	}

	bound := h(start)
	for {
		// The dominance table only holds within one bound iteration; a
		// raised bound can make previously dominated paths viable again.
		s.bestG = make(map[K]float64, len(s.bestG))
		excess, err := s.dfs(start, 0, bound)
		if err != nil {
			var zero S
			return zero, 0, false, err
		}
		if s.found {
			return s.goal, s.goalG, true, nil
		}
		if math.IsInf(excess, 1) {
			var zero S
			return zero, math.Inf(1), false, nil
		}
		bound = excess
	}
}

type searcher[S, K comparable] struct {
	h      HeuristicFunc[S]
	expand ExpandFunc[S]
	isGoal GoalFunc[S]
	key    KeyFunc[S, K]

	bestG  map[K]float64
	onPath map[S]struct{}

	goal  S
	goalG float64
	found bool
}

// dfs explores all paths whose f = g + h stays within bound and returns the
// minimum excess f among pruned branches, which seeds the next bound.
func (s *searcher[S, K]) dfs(state S, g, bound float64) (float64, error) {
	f := g + s.h(state)
	if f > bound {
		return f, nil
	}
	if s.isGoal(state) {
		s.goal, s.goalG, s.found = state, g, true
		return f, nil
	}

	k := s.key(state)
	if prev, ok := s.bestG[k]; ok && prev <= g {
		return math.Inf(1), nil
	}
	s.bestG[k] = g

	succs, err := s.expand(state)
	if err != nil {
		return 0, fmt.Errorf("expand: %w", err)
	}

	// Best-first ordering inside the depth-first recursion: cheaper
	// optimistic f first tightens the bound sooner on typical instances.
	type scored struct {
		succ Successor[S]
		f    float64
	}
	order := make([]scored, len(succs))
	for i, sc := range succs {
		order[i] = scored{sc, g + sc.Cost + s.h(sc.State)}
	}
	sort.SliceStable(order, func(i, j int) bool { return order[i].f < order[j].f })

	s.onPath[state] = struct{}{}
	defer delete(s.onPath, state)

	minExcess := math.Inf(1)
	for _, o := range order {
		if _, cycle := s.onPath[o.succ.State]; cycle {
			continue
		}
		excess, err := s.dfs(o.succ.State, g+o.succ.Cost, bound)
		if err != nil {
			return 0, err
		}
		if s.found {
			return excess, nil
		}
		if excess < minExcess {
			minExcess = excess
		}
	}
	return minExcess, nil
}
