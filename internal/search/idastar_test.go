package search

import (
	"errors"
	"math"
	"testing"
)

// graph is a tiny weighted digraph for exercising the core without any
// domain machinery.
type graph map[string][]Successor[string]

func (g graph) expand(s string) ([]Successor[string], error) {
	return g[s], nil
}

func identity(s string) string { return s }

func zeroH(string) float64 { return 0 }

func goalIs(want string) GoalFunc[string] {
	return func(s string) bool { return s == want }
}

func TestSearch_ShortestPathCost(t *testing.T) {
	// A -> B -> D costs 3, A -> C -> D costs 4, direct A -> D costs 10.
	g := graph{
		"A": {{State: "B", Cost: 1}, {State: "C", Cost: 2}, {State: "D", Cost: 10}},
		"B": {{State: "D", Cost: 2}},
		"C": {{State: "D", Cost: 2}},
	}

	goal, cost, found, err := Search("A", zeroH, g.expand, goalIs("D"), identity)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !found {
		t.Fatal("expected a solution")
	}
	if goal != "D" {
		t.Errorf("goal = %q, want D", goal)
	}
	if cost != 3 {
		t.Errorf("cost = %f, want 3", cost)
	}
}

func TestSearch_StartIsGoal(t *testing.T) {
	g := graph{}
	goal, cost, found, err := Search("A", zeroH, g.expand, goalIs("A"), identity)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !found || goal != "A" || cost != 0 {
		t.Errorf("got (%q, %f, %v), want (A, 0, true)", goal, cost, found)
	}
}

func TestSearch_NoSolution(t *testing.T) {
	g := graph{
		"A": {{State: "B", Cost: 1}},
		"B": {},
	}
	_, cost, found, err := Search("A", zeroH, g.expand, goalIs("Z"), identity)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found {
		t.Fatal("expected no solution")
	}
	if !math.IsInf(cost, 1) {
		t.Errorf("cost = %f, want +Inf", cost)
	}
}

func TestSearch_TerminatesOnCycles(t *testing.T) {
	// A <-> B cycle with an exit to the goal; on-path detection must keep
	// the depth-first probe from looping forever inside one iteration.
	g := graph{
		"A": {{State: "B", Cost: 1}},
		"B": {{State: "A", Cost: 1}, {State: "G", Cost: 5}},
	}
	_, cost, found, err := Search("A", zeroH, g.expand, goalIs("G"), identity)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !found || cost != 6 {
		t.Errorf("got (%f, %v), want (6, true)", cost, found)
	}
}

func TestSearch_AdmissibleHeuristicSameAnswer(t *testing.T) {
	g := graph{
		"A": {{State: "B", Cost: 2}, {State: "C", Cost: 1}},
		"B": {{State: "G", Cost: 1}},
		"C": {{State: "G", Cost: 5}},
	}
	// True remaining costs: A=3, B=1, C=5, G=0. Underestimate everywhere.
	h := func(s string) float64 {
		switch s {
		case "A":
			return 2
		case "B":
			return 1
		case "C":
			return 3
		default:
			return 0
		}
	}

	_, want, _, err := Search("A", zeroH, g.expand, goalIs("G"), identity)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, got, found, err := Search("A", h, g.expand, goalIs("G"), identity)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !found || got != want {
		t.Errorf("heuristic search cost = %f, want %f", got, want)
	}
}

func TestSearch_InfiniteHeuristicMeansUnreachable(t *testing.T) {
	g := graph{
		"A": {{State: "B", Cost: 1}},
		"B": {},
	}
	h := func(s string) float64 {
		if s == "B" {
			return math.Inf(1) // B provably cannot reach the goal
		}
		return 0
	}
	_, cost, found, err := Search("A", h, g.expand, goalIs("Z"), identity)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found || !math.IsInf(cost, 1) {
		t.Errorf("got (%f, %v), want (+Inf, false)", cost, found)
	}
}

func TestSearch_ExpandErrorPropagates(t *testing.T) {
	boom := errors.New("adapter defect")
	expand := func(s string) ([]Successor[string], error) {
		if s == "B" {
			return nil, boom
		}
		return []Successor[string]{{State: "B", Cost: 1}}, nil
	}
	_, _, _, err := Search("A", zeroH, expand, goalIs("Z"), identity)
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped adapter error, got %v", err)
	}
}

func TestSearch_DuplicateKeyPruning(t *testing.T) {
	// Two routes converge on the same key; the second, more expensive visit
	// must be pruned without changing the optimal answer.
	g := graph{
		"A":  {{State: "M1", Cost: 1}, {State: "M2", Cost: 3}},
		"M1": {{State: "G", Cost: 1}},
		"M2": {{State: "G", Cost: 1}},
	}
	key := func(s string) string {
		if s == "M1" || s == "M2" {
			return "M"
		}
		return s
	}
	_, cost, found, err := Search("A", zeroH, g.expand, goalIs("G"), key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !found || cost != 2 {
		t.Errorf("got (%f, %v), want (2, true)", cost, found)
	}
}
