package checkpoint

import (
	"context"
	"fmt"

	"github.com/sicko7947/idemflow"
)

// Graph holds steps and the steps each one depends on
type Graph struct {
	ids   []string
	steps map[string]StepExecutor
	deps  map[string][]string
}

// NewGraph creates an empty step graph
func NewGraph() *Graph {
	return &Graph{
		steps: make(map[string]StepExecutor),
		deps:  make(map[string][]string),
	}
}

// AddStep registers a step that runs after every step in dependsOn
func (g *Graph) AddStep(step StepExecutor, dependsOn ...string) error {
	if step == nil {
		return idemflow.NewValidationError("step must not be nil")
	}
	id := step.GetID()
	if id == "" {
		return idemflow.NewValidationError("step id must not be empty")
	}
	if _, exists := g.steps[id]; exists {
		return idemflow.NewValidationError("duplicate step id " + id)
	}

	g.ids = append(g.ids, id)
	g.steps[id] = step
	g.deps[id] = append([]string{}, dependsOn...)
	return nil
}

// Then registers step after the most recently added one
func (g *Graph) Then(step StepExecutor) error {
	if len(g.ids) == 0 {
		return g.AddStep(step)
	}
	return g.AddStep(step, g.ids[len(g.ids)-1])
}

// Dependencies returns the steps stepID waits for
func (g *Graph) Dependencies(stepID string) []string {
	return append([]string{}, g.deps[stepID]...)
}

// Validate checks that every dependency exists and that there are no cycles
func (g *Graph) Validate() error {
	for _, id := range g.ids {
		for _, dep := range g.deps[id] {
			if _, exists := g.steps[dep]; !exists {
				return idemflow.NewValidationError(fmt.Sprintf("step %s depends on unknown step %s", id, dep))
			}
			if dep == id {
				return idemflow.NewValidationError(fmt.Sprintf("step %s depends on itself", id))
			}
		}
	}

	visited := make(map[string]bool, len(g.ids))
	recStack := make(map[string]bool, len(g.ids))
	for _, id := range g.ids {
		if !visited[id] && g.hasCycle(id, visited, recStack) {
			return idemflow.NewValidationError("step graph contains cycles")
		}
	}
	return nil
}

func (g *Graph) hasCycle(id string, visited, recStack map[string]bool) bool {
	visited[id] = true
	recStack[id] = true

	for _, dep := range g.deps[id] {
		if !visited[dep] {
			if g.hasCycle(dep, visited, recStack) {
				return true
			}
		} else if recStack[dep] {
			return true
		}
	}

	recStack[id] = false
	return false
}

// Order returns the steps so that each one follows its dependencies.
// Ties keep the order in which steps were added, so the result is stable
// across runs and resumes.
func (g *Graph) Order() ([]StepExecutor, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}

	placed := make(map[string]bool, len(g.ids))
	ordered := make([]StepExecutor, 0, len(g.ids))
	for len(ordered) < len(g.ids) {
		for _, id := range g.ids {
			if placed[id] || !g.ready(id, placed) {
				continue
			}
			placed[id] = true
			ordered = append(ordered, g.steps[id])
			break
		}
	}
	return ordered, nil
}

func (g *Graph) ready(id string, placed map[string]bool) bool {
	for _, dep := range g.deps[id] {
		if !placed[dep] {
			return false
		}
	}
	return true
}

// RunGraph runs the steps of g in dependency order
func (r *Runner) RunGraph(ctx context.Context, workflowID string, g *Graph) (*Result, error) {
	if g == nil {
		return nil, idemflow.NewValidationError("step graph must not be nil")
	}
	steps, err := g.Order()
	if err != nil {
		return nil, err
	}
	return r.Run(ctx, workflowID, steps...)
}
