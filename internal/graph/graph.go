// Package graph provides a dependency graph for task scheduling.
package graph

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ShayCichocki/forge/pkg/models"
)

var (
	// ErrUnknownDependency indicates a task depends on an ID not present in the plan.
	ErrUnknownDependency = errors.New("unknown dependency")
	// ErrDuplicateTask indicates two tasks share an ID.
	ErrDuplicateTask = errors.New("duplicate task id")
)

// DependencyGraph represents the dependency structure of an execution plan.
// Tasks are nodes, and edges represent "blocked by" relationships. The graph
// is not required to be acyclic; cycles surface as tasks that never become ready.
type DependencyGraph struct {
	mu sync.RWMutex
	// nodes maps task ID to the task itself.
	nodes map[string]*models.Task
	// order holds task IDs in plan order.
	order []string
	// index maps task ID to its position in plan order.
	index map[string]int
	// edges maps task ID to IDs of tasks it depends on.
	edges map[string][]string
	// dependents maps task ID to IDs of tasks that depend on it.
	dependents map[string][]string
	// completed tracks which tasks have been marked complete.
	completed map[string]bool
}

// New creates a new empty dependency graph.
func New() *DependencyGraph {
	return &DependencyGraph{
		nodes:      make(map[string]*models.Task),
		index:      make(map[string]int),
		edges:      make(map[string][]string),
		dependents: make(map[string][]string),
		completed:  make(map[string]bool),
	}
}

// Build constructs the dependency graph from a slice of tasks.
// Returns an error if IDs repeat or dependencies reference unknown tasks.
func (g *DependencyGraph) Build(tasks []*models.Task) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	// First pass: register all tasks as nodes.
	for _, task := range tasks {
		if _, exists := g.nodes[task.ID]; exists {
			return fmt.Errorf("%w: %s", ErrDuplicateTask, task.ID)
		}
		g.nodes[task.ID] = task
		g.index[task.ID] = len(g.order)
		g.order = append(g.order, task.ID)
		g.edges[task.ID] = nil
	}

	// Second pass: build edges from DependsOn fields.
	for _, task := range tasks {
		for _, depID := range task.DependsOn {
			if _, exists := g.nodes[depID]; !exists {
				return fmt.Errorf("task %s depends on %s: %w", task.ID, depID, ErrUnknownDependency)
			}
			g.edges[task.ID] = append(g.edges[task.ID], depID)
			g.dependents[depID] = append(g.dependents[depID], task.ID)
		}
		if task.Status == models.TaskStatusCompleted {
			g.completed[task.ID] = true
		}
	}

	return nil
}

// Ready returns pending tasks whose dependencies are all completed, sorted by
// priority descending. Ties keep plan order.
func (g *DependencyGraph) Ready() []*models.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var ready []*models.Task
	for _, id := range g.order {
		task := g.nodes[id]
		if task.Status != models.TaskStatusPending {
			continue
		}
		if len(g.unmetLocked(id)) == 0 {
			ready = append(ready, task)
		}
	}

	sort.SliceStable(ready, func(i, j int) bool {
		return ready[i].Priority > ready[j].Priority
	})
	return ready
}

// MarkComplete marks a task as completed in the graph.
// This affects subsequent calls to Ready.
func (g *DependencyGraph) MarkComplete(taskID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.completed[taskID] = true
}

// UnmetDependencies returns the dependencies of a task that are not yet complete, in declaration order.
func (g *DependencyGraph) UnmetDependencies(taskID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.unmetLocked(taskID)
}

func (g *DependencyGraph) unmetLocked(taskID string) []string {
	var unmet []string
	for _, depID := range g.edges[taskID] {
		if !g.completed[depID] {
			unmet = append(unmet, depID)
		}
	}
	return unmet
}

// Pending returns tasks still in pending status, in plan order.
func (g *DependencyGraph) Pending() []*models.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var pending []*models.Task
	for _, id := range g.order {
		if g.nodes[id].Status == models.TaskStatusPending {
			pending = append(pending, g.nodes[id])
		}
	}
	return pending
}

// Task returns the task for a given ID, or nil if not found.
func (g *DependencyGraph) Task(taskID string) *models.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes[taskID]
}

// Tasks returns every task in plan order.
func (g *DependencyGraph) Tasks() []*models.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()

	tasks := make([]*models.Task, 0, len(g.order))
	for _, id := range g.order {
		tasks = append(tasks, g.nodes[id])
	}
	return tasks
}

// Dependents returns the IDs of tasks that directly depend on the given task.
func (g *DependencyGraph) Dependents(taskID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.dependents[taskID]...)
}

// TransitiveDependents returns every task reachable through dependent edges
// from the given task, in plan order. The task itself is excluded even when
// it sits on a cycle.
func (g *DependencyGraph) TransitiveDependents(taskID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	seen := map[string]bool{taskID: true}
	queue := []string{taskID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, dep := range g.dependents[id] {
			if !seen[dep] {
				seen[dep] = true
				queue = append(queue, dep)
			}
		}
	}
	delete(seen, taskID)

	result := make([]string, 0, len(seen))
	for id := range seen {
		result = append(result, id)
	}
	sort.Slice(result, func(i, j int) bool {
		return g.index[result[i]] < g.index[result[j]]
	})
	return result
}

// FindCycle returns one dependency cycle as a path whose first and last
// elements are the same task, or nil if the graph is acyclic.
func (g *DependencyGraph) FindCycle() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.findCycleLocked(nil)
}

// FindCycleAmong is FindCycle restricted to the given tasks: edges leaving
// the set are ignored, so a cycle through tasks outside it is not reported.
func (g *DependencyGraph) FindCycleAmong(taskIDs []string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	allowed := make(map[string]bool, len(taskIDs))
	for _, id := range taskIDs {
		allowed[id] = true
	}
	return g.findCycleLocked(allowed)
}

// findCycleLocked runs a colored depth-first search for a back edge. A nil
// allowed set admits every task.
func (g *DependencyGraph) findCycleLocked(allowed map[string]bool) []string {
	in := func(id string) bool {
		return allowed == nil || allowed[id]
	}

	// Color states: 0 = white (unvisited), 1 = gray (on stack), 2 = black (done).
	colors := make(map[string]int, len(g.nodes))
	var stack []string

	var visit func(id string) []string
	visit = func(id string) []string {
		colors[id] = 1
		stack = append(stack, id)

		for _, depID := range g.edges[id] {
			if !in(depID) {
				continue
			}
			switch colors[depID] {
			case 1:
				// Back edge: the cycle is the stack suffix starting at depID.
				for i, sid := range stack {
					if sid == depID {
						cycle := append([]string(nil), stack[i:]...)
						return append(cycle, depID)
					}
				}
			case 0:
				if cycle := visit(depID); cycle != nil {
					return cycle
				}
			}
		}

		stack = stack[:len(stack)-1]
		colors[id] = 2
		return nil
	}

	for _, id := range g.order {
		if in(id) && colors[id] == 0 {
			if cycle := visit(id); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}

// Levels groups task IDs by dependency depth: level 0 has no dependencies,
// level n depends only on tasks at levels below n. Tasks on or behind a
// cycle are omitted.
func (g *DependencyGraph) Levels() [][]string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	depth := make(map[string]int, len(g.nodes))
	remaining := append([]string(nil), g.order...)
	var levels [][]string

	for len(remaining) > 0 {
		var level, next []string
		for _, id := range remaining {
			ok := true
			for _, dep := range g.edges[id] {
				if _, done := depth[dep]; !done {
					ok = false
					break
				}
			}
			if ok {
				level = append(level, id)
			} else {
				next = append(next, id)
			}
		}
		if len(level) == 0 {
			break
		}
		for _, id := range level {
			depth[id] = len(levels)
		}
		levels = append(levels, level)
		remaining = next
	}
	return levels
}
