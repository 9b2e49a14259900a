// Package workflow runs the screenplay analysis pipeline as a small typed
// state graph: named nodes mutate a shared State, plain edges chain nodes,
// and conditional edges pick the next node from the state.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// End is the terminal pseudo-node name for conditional edges.
const End = "__end__"

// defaultMaxSteps bounds graph execution so a bad conditional edge cannot
// loop forever.
const defaultMaxSteps = 16

var (
	// ErrUnknownNode is returned when an edge points at a node that was
	// never added.
	ErrUnknownNode = errors.New("unknown workflow node")

	// ErrNoEntry is returned when Run is called before SetEntry.
	ErrNoEntry = errors.New("workflow entry point not set")

	// ErrStepBudget is returned when execution exceeds the step budget,
	// which indicates a cycle that never terminates.
	ErrStepBudget = errors.New("workflow step budget exhausted")
)

// NodeFunc is a single workflow step. It mutates state in place and may
// fail the whole run by returning an error.
type NodeFunc func(ctx context.Context, state *State) error

// ConditionFunc inspects state after a node and names the next node,
// or End to finish.
type ConditionFunc func(state *State) string

// Graph is a directed workflow of named nodes. Build it once with
// AddNode/AddEdge/AddConditionalEdge/SetEntry, then Run it per request.
//
// A built Graph is immutable and safe for concurrent Run calls; each run
// owns its State.
type Graph struct {
	nodes       map[string]NodeFunc
	edges       map[string]string
	conditional map[string]ConditionFunc
	entry       string
	maxSteps    int
	logger      *slog.Logger
}

// NewGraph creates an empty graph. logger may be nil.
func NewGraph(logger *slog.Logger) *Graph {
	if logger == nil {
		logger = slog.Default()
	}
	return &Graph{
		nodes:       make(map[string]NodeFunc),
		edges:       make(map[string]string),
		conditional: make(map[string]ConditionFunc),
		maxSteps:    defaultMaxSteps,
		logger:      logger,
	}
}

// AddNode registers a named node.
func (g *Graph) AddNode(name string, fn NodeFunc) {
	g.nodes[name] = fn
}

// AddEdge chains from → to unconditionally.
func (g *Graph) AddEdge(from, to string) {
	g.edges[from] = to
}

// AddConditionalEdge routes from → cond(state) after the node runs.
// The condition may return End.
func (g *Graph) AddConditionalEdge(from string, cond ConditionFunc) {
	g.conditional[from] = cond
}

// SetEntry names the first node to run.
func (g *Graph) SetEntry(name string) {
	g.entry = name
}

// Run executes the graph until End, a missing edge, or an error.
// The state is mutated in place; it reflects progress even on failure.
func (g *Graph) Run(ctx context.Context, state *State) error {
	if g.entry == "" {
		return ErrNoEntry
	}

	current := g.entry
	for steps := 0; ; steps++ {
		if steps >= g.maxSteps {
			return fmt.Errorf("%w: %d steps from %q", ErrStepBudget, steps, g.entry)
		}

		if err := ctx.Err(); err != nil {
			return fmt.Errorf("workflow canceled at %q: %w", current, err)
		}

		fn, ok := g.nodes[current]
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownNode, current)
		}

		g.logger.Debug("workflow node", "node", current, "step", steps)
		if err := fn(ctx, state); err != nil {
			return fmt.Errorf("node %q: %w", current, err)
		}

		next := g.next(current, state)
		if next == End || next == "" {
			return nil
		}
		current = next
	}
}

// next resolves the node after current. Conditional edges win over plain
// edges; no edge at all means the graph ends.
func (g *Graph) next(current string, state *State) string {
	if cond, ok := g.conditional[current]; ok {
		return cond(state)
	}
	if to, ok := g.edges[current]; ok {
		return to
	}
	return End
}
