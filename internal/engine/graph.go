package engine

import (
	"context"
	"sort"

	"github.com/rvergara/maestro/pkg/schema"
)

// Stage is one unit of work in a workflow graph. Implementations declare the
// upstream stages whose results they read; Execute may only consult context
// entries for those dependencies. A stage never mutates orchestrator state;
// it returns a result or an error for the orchestrator to record.
type Stage interface {
	Name() string
	Dependencies() []string
	Execute(ctx context.Context, request string, wfctx *Context) (*schema.StageResult, error)
}

// Graph is the validated, immutable directed acyclic graph of stages for one
// workflow type. Exactly one stage is designated terminal: its result becomes
// the workflow's final output.
type Graph struct {
	stages     map[string]Stage
	deps       map[string][]string // stage name to its dependencies
	dependents map[string][]string // stage name to the stages that depend on it
	sorted     []string            // topological order
	terminal   string
	required   map[string]bool // terminal + its transitive dependencies
}

// NewGraph validates the stage set and builds the graph. It fails with a
// GRAPH_ERROR when a name is duplicated, a dependency references an unknown
// stage, a cycle exists, or the terminal stage is not part of the set.
// Validation never partially registers stages: on error the graph is nil.
func NewGraph(terminal string, stages ...Stage) (*Graph, error) {
	if len(stages) == 0 {
		return nil, schema.NewError(schema.ErrCodeGraph, "graph has no stages")
	}

	g := &Graph{
		stages:     make(map[string]Stage, len(stages)),
		deps:       make(map[string][]string, len(stages)),
		dependents: make(map[string][]string, len(stages)),
		terminal:   terminal,
	}

	for _, s := range stages {
		name := s.Name()
		if name == "" {
			return nil, schema.NewError(schema.ErrCodeGraph, "stage has empty name")
		}
		if _, exists := g.stages[name]; exists {
			return nil, schema.NewErrorf(schema.ErrCodeGraph, "duplicate stage name: %s", name)
		}
		g.stages[name] = s
	}

	if _, ok := g.stages[terminal]; !ok {
		return nil, schema.NewErrorf(schema.ErrCodeGraph, "terminal stage %q not in graph", terminal)
	}

	for name, s := range g.stages {
		seen := make(map[string]bool, len(s.Dependencies()))
		deps := make([]string, 0, len(s.Dependencies()))
		for _, dep := range s.Dependencies() {
			if _, exists := g.stages[dep]; !exists {
				return nil, schema.NewErrorf(schema.ErrCodeGraph, "stage %s depends on unknown stage: %s", name, dep)
			}
			if dep == name {
				return nil, schema.NewErrorf(schema.ErrCodeGraph, "stage %s depends on itself", name)
			}
			if seen[dep] {
				return nil, schema.NewErrorf(schema.ErrCodeGraph, "stage %s has duplicate dependency: %s", name, dep)
			}
			seen[dep] = true
			deps = append(deps, dep)
			g.dependents[dep] = append(g.dependents[dep], name)
		}
		g.deps[name] = deps
	}

	// Kahn's algorithm: topological sort + cycle detection.
	inDegree := make(map[string]int, len(g.stages))
	for name := range g.stages {
		inDegree[name] = len(g.deps[name])
	}

	queue := make([]string, 0, len(g.stages))
	for name, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, name)
		}
	}
	sort.Strings(queue)

	sorted := make([]string, 0, len(g.stages))
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		sorted = append(sorted, node)

		next := make([]string, 0, len(g.dependents[node]))
		for _, dep := range g.dependents[node] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				next = append(next, dep)
			}
		}
		sort.Strings(next)
		queue = append(queue, next...)
	}

	if len(sorted) != len(g.stages) {
		return nil, schema.NewError(schema.ErrCodeGraph, "graph contains a cycle")
	}
	g.sorted = sorted

	// The required set is the terminal stage plus everything it transitively
	// depends on; a failure inside this set makes the instance unrecoverable.
	g.required = make(map[string]bool, len(g.stages))
	var markRequired func(name string)
	markRequired = func(name string) {
		if g.required[name] {
			return
		}
		g.required[name] = true
		for _, dep := range g.deps[name] {
			markRequired(dep)
		}
	}
	markRequired(terminal)

	return g, nil
}

// Stage returns the stage registered under name, or nil.
func (g *Graph) Stage(name string) Stage {
	return g.stages[name]
}

// Names returns all stage names in topological order.
func (g *Graph) Names() []string {
	out := make([]string, len(g.sorted))
	copy(out, g.sorted)
	return out
}

// Len returns the number of stages.
func (g *Graph) Len() int {
	return len(g.stages)
}

// Terminal returns the name of the terminal stage.
func (g *Graph) Terminal() string {
	return g.terminal
}

// Dependencies returns the declared dependencies of a stage.
func (g *Graph) Dependencies(name string) []string {
	deps := g.deps[name]
	out := make([]string, len(deps))
	copy(out, deps)
	return out
}

// ReadySet returns the stages that are Pending and whose dependencies are all
// Completed, in deterministic (topological) order. It is a pure function of
// the given status map.
func (g *Graph) ReadySet(status map[string]schema.StageStatus) []string {
	ready := make([]string, 0, len(g.sorted))
	for _, name := range g.sorted {
		if status[name] != schema.StageStatusPending {
			continue
		}
		ok := true
		for _, dep := range g.deps[name] {
			if status[dep] != schema.StageStatusCompleted {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, name)
		}
	}
	return ready
}

// TransitiveDependents returns every stage that directly or transitively
// depends on the given stage, in topological order.
func (g *Graph) TransitiveDependents(name string) []string {
	closure := make(map[string]bool)
	var walk func(n string)
	walk = func(n string) {
		for _, d := range g.dependents[n] {
			if !closure[d] {
				closure[d] = true
				walk(d)
			}
		}
	}
	walk(name)

	out := make([]string, 0, len(closure))
	for _, n := range g.sorted {
		if closure[n] {
			out = append(out, n)
		}
	}
	return out
}

// RequiredForTerminal reports whether the terminal stage transitively depends
// on the given stage (the terminal stage itself is required).
func (g *Graph) RequiredForTerminal(name string) bool {
	return g.required[name]
}
