// Package registry holds the immutable set of rules and the dependency graph
// between them.
//
// A [Registry] is validated once when it is created. Duplicate ids, edges to
// unknown rules and cycles of required edges are all load errors, so an
// engine never operates on an invalid graph.
package registry

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/macropower/loadout/pkg/expr"
	"github.com/macropower/loadout/pkg/rule"
)

var (
	ErrDuplicateRule   = errors.New("duplicate rule")
	ErrUnknownRule     = errors.New("unknown rule")
	ErrDependencyCycle = errors.New("required dependency cycle")
)

// DependencyGraphCycleError reports a cycle of required edges. Cycle starts
// and ends with the same rule.
type DependencyGraphCycleError struct {
	Cycle []rule.ID
}

func (e *DependencyGraphCycleError) Error() string {
	ids := make([]string, 0, len(e.Cycle))
	for _, id := range e.Cycle {
		ids = append(ids, string(id))
	}

	return fmt.Sprintf("%s: %s", ErrDependencyCycle, strings.Join(ids, " -> "))
}

func (e *DependencyGraphCycleError) Unwrap() error {
	return ErrDependencyCycle
}

// Edges are the ordered dependency lists of one rule.
type Edges struct {
	Required []rule.ID
	Optional []rule.ID
}

// Graph maps each rule to its outgoing edges.
type Graph map[rule.ID]Edges

// Required returns the required edges of id.
func (g Graph) Required(id rule.ID) []rule.ID {
	return g[id].Required
}

// Optional returns the optional edges of id.
func (g Graph) Optional(id rule.ID) []rule.ID {
	return g[id].Optional
}

// Validate checks that every edge targets a rule in the graph and that the
// required edges form a DAG.
func (g Graph) Validate() error {
	for _, id := range g.sortedIDs() {
		edges := g[id]
		for _, dep := range slices.Concat(edges.Required, edges.Optional) {
			if _, ok := g[dep]; !ok {
				return fmt.Errorf("rule %q depends on %q: %w", id, dep, ErrUnknownRule)
			}
		}
	}

	return g.checkCycles()
}

func (g Graph) sortedIDs() []rule.ID {
	ids := make([]rule.ID, 0, len(g))
	for id := range g {
		ids = append(ids, id)
	}

	slices.Sort(ids)

	return ids
}

const (
	unvisited = iota
	visiting
	done
)

func (g Graph) checkCycles() error {
	state := make(map[rule.ID]int, len(g))
	stack := []rule.ID{}

	var visit func(id rule.ID) error
	visit = func(id rule.ID) error {
		switch state[id] {
		case done:
			return nil
		case visiting:
			start := slices.Index(stack, id)
			cycle := slices.Clone(stack[start:])

			return &DependencyGraphCycleError{Cycle: append(cycle, id)}
		}

		state[id] = visiting
		stack = append(stack, id)

		for _, dep := range g[id].Required {
			if err := visit(dep); err != nil {
				return err
			}
		}

		stack = stack[:len(stack)-1]
		state[id] = done

		return nil
	}

	for _, id := range g.sortedIDs() {
		if err := visit(id); err != nil {
			return err
		}
	}

	return nil
}

// Registry is an immutable, validated collection of rules.
type Registry struct {
	byID  map[rule.ID]*rule.Rule
	graph Graph
	rules []*rule.Rule
}

// New compiles rules with env and validates the resulting dependency graph.
// Rules keep their declared order.
func New(env *expr.Environment, rules ...*rule.Rule) (*Registry, error) {
	r := &Registry{
		byID:  make(map[rule.ID]*rule.Rule, len(rules)),
		graph: make(Graph, len(rules)),
		rules: make([]*rule.Rule, 0, len(rules)),
	}

	for _, rl := range rules {
		err := rl.Compile(env)
		if err != nil {
			return nil, fmt.Errorf("compile rule: %w", err)
		}

		if _, ok := r.byID[rl.ID]; ok {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateRule, rl.ID)
		}

		r.byID[rl.ID] = rl
		r.rules = append(r.rules, rl)
		r.graph[rl.ID] = Edges{
			Required: slices.Clone(rl.Requires),
			Optional: slices.Clone(rl.Optional),
		}
	}

	err := r.graph.Validate()
	if err != nil {
		return nil, fmt.Errorf("validate dependency graph: %w", err)
	}

	return r, nil
}

// MustNew creates a new [Registry] and panics if there's an error.
func MustNew(env *expr.Environment, rules ...*rule.Rule) *Registry {
	r, err := New(env, rules...)
	if err != nil {
		panic(err)
	}

	return r
}

// Get returns the rule with the given id.
func (r *Registry) Get(id rule.ID) (*rule.Rule, bool) {
	rl, ok := r.byID[id]

	return rl, ok
}

// Rules returns all rules in declared order. The slice must not be modified.
func (r *Registry) Rules() []*rule.Rule {
	return r.rules
}

// Graph returns the dependency graph. The graph must not be modified.
func (r *Registry) Graph() Graph {
	return r.graph
}

// Len returns the number of rules.
func (r *Registry) Len() int {
	return len(r.rules)
}
