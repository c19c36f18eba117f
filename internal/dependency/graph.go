package dependency

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gammazero/toposort"

	"github.com/aristath/tascade/internal/task"
)

// ErrCycle is returned by graph queries that need an acyclic graph.
var ErrCycle = errors.New("dependency graph contains cycle")

// Ref is a short reference to a task for listings.
type Ref struct {
	ID     string      `json:"id"`
	Title  string      `json:"title"`
	Status task.Status `json:"status"`
}

func refOf(t *task.Task) Ref {
	return Ref{ID: t.ID, Title: t.Title, Status: t.Status}
}

// ChainEntry is one task in a dependency chain level.
type ChainEntry struct {
	Ref
	Dependencies []string `json:"dependencies"`
}

// ChainResult is the breadth-first leveling of a task's transitive
// dependencies. Level 0 holds the task itself.
type ChainResult struct {
	TaskID string         `json:"task_id"`
	Exists bool           `json:"exists"`
	Chain  []string       `json:"chain"`
	Levels [][]ChainEntry `json:"levels"`
}

// Chain walks the dependencies of taskID level by level. A task already seen
// is not expanded again, so cycles are truncated rather than followed, and
// dependencies that resolve to nothing are skipped.
func Chain(tasks map[string]*task.Task, taskID string) ChainResult {
	res := ChainResult{TaskID: taskID, Chain: []string{}, Levels: [][]ChainEntry{}}

	if _, ok := tasks[taskID]; !ok {
		return res
	}
	res.Exists = true

	visited := map[string]bool{taskID: true}
	current := []string{taskID}

	for len(current) > 0 {
		level := make([]ChainEntry, 0, len(current))
		var next []string

		for _, id := range current {
			t := tasks[id]
			level = append(level, ChainEntry{
				Ref:          refOf(t),
				Dependencies: append([]string{}, t.Dependencies...),
			})
			res.Chain = append(res.Chain, id)

			for _, dep := range t.Dependencies {
				if visited[dep] {
					continue
				}
				visited[dep] = true
				if _, ok := tasks[dep]; ok {
					next = append(next, dep)
				}
			}
		}

		res.Levels = append(res.Levels, level)
		current = next
	}

	return res
}

// BlockedTask is a pending task waiting on unfinished dependencies.
type BlockedTask struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Blockers []Ref  `json:"blockers"`
}

// FindBlocked returns every pending task with at least one existing
// dependency that is not done, ordered by task ID.
func FindBlocked(tasks map[string]*task.Task) []BlockedTask {
	blocked := []BlockedTask{}

	for _, id := range sortedIDs(tasks) {
		t := tasks[id]
		if t.Status != task.StatusPending {
			continue
		}

		var blockers []Ref
		for _, dep := range t.Dependencies {
			d, ok := tasks[dep]
			if ok && d.Status != task.StatusDone {
				blockers = append(blockers, refOf(d))
			}
		}

		if len(blockers) > 0 {
			blocked = append(blocked, BlockedTask{ID: id, Title: t.Title, Blockers: blockers})
		}
	}

	return blocked
}

// Dependents returns the tasks that list taskID as a dependency, ordered by ID.
func Dependents(tasks map[string]*task.Task, taskID string) []Ref {
	out := []Ref{}
	for _, id := range sortedIDs(tasks) {
		if tasks[id].DependsOn(taskID) {
			out = append(out, refOf(tasks[id]))
		}
	}
	return out
}

// Order returns task IDs in dependency order: every task comes after all of
// its dependencies. Missing dependencies and cycles are errors.
func Order(tasks map[string]*task.Task) ([]string, error) {
	for _, id := range sortedIDs(tasks) {
		for _, dep := range tasks[id].Dependencies {
			if _, ok := tasks[dep]; !ok {
				return nil, fmt.Errorf("task %q depends on non-existent task %q", id, dep)
			}
		}
	}
	return topoSort(tasks)
}

// topoSort sorts over existing dependency edges only.
func topoSort(tasks map[string]*task.Task) ([]string, error) {
	var edges []toposort.Edge
	for _, id := range sortedIDs(tasks) {
		// Anchor every task so ones without usable edges are still listed.
		edges = append(edges, toposort.Edge{nil, id})
		for _, dep := range tasks[id].Dependencies {
			if _, ok := tasks[dep]; !ok {
				continue
			}
			// Edge (dep, id) means dep must come before id
			edges = append(edges, toposort.Edge{dep, id})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCycle, err)
	}

	order := make([]string, 0, len(tasks))
	for _, id := range sorted {
		if id != nil {
			order = append(order, id.(string))
		}
	}
	return order, nil
}

// CriticalPath returns the dependency path with the largest total complexity
// and that total. Missing dependencies are ignored; a cycle is an error.
func CriticalPath(tasks map[string]*task.Task) ([]string, float64, error) {
	order, err := topoSort(tasks)
	if err != nil {
		return nil, 0, err
	}
	if len(order) == 0 {
		return []string{}, 0, nil
	}

	cost := make(map[string]float64, len(order))
	prev := make(map[string]string, len(order))

	var end string
	for _, id := range order {
		t := tasks[id]
		best, bestDep := 0.0, ""
		for _, dep := range t.Dependencies {
			c, ok := cost[dep]
			if !ok {
				continue
			}
			if bestDep == "" || c > best || (c == best && dep < bestDep) {
				best, bestDep = c, dep
			}
		}
		cost[id] = best + t.Complexity()
		if bestDep != "" {
			prev[id] = bestDep
		}
		if end == "" || cost[id] > cost[end] || (cost[id] == cost[end] && id < end) {
			end = id
		}
	}

	var path []string
	for id := end; id != ""; id = prev[id] {
		path = append(path, id)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}

	return path, cost[end], nil
}

// Mermaid renders the graph as Mermaid flowchart markup. Done, in-progress
// and blocked tasks get their own node classes.
func Mermaid(tasks map[string]*task.Task) string {
	var b strings.Builder
	b.WriteString("graph TD;\n")

	ids := sortedIDs(tasks)
	for _, id := range ids {
		t := tasks[id]
		style := ""
		switch t.Status {
		case task.StatusDone:
			style = ":::done"
		case task.StatusInProgress:
			style = ":::active"
		case task.StatusBlocked:
			style = ":::blocked"
		}
		label := strings.ReplaceAll(t.Title, `"`, "#quot;")
		fmt.Fprintf(&b, "    %s[\"#%s: %s\"]%s;\n", nodeID(id), id, label, style)
	}

	for _, id := range ids {
		for _, dep := range tasks[id].Dependencies {
			if _, ok := tasks[dep]; ok {
				fmt.Fprintf(&b, "    %s-->%s;\n", nodeID(dep), nodeID(id))
			}
		}
	}

	b.WriteString("    classDef done fill:#cfc,stroke:#6c6;\n")
	b.WriteString("    classDef active fill:#ccf,stroke:#66c;\n")
	b.WriteString("    classDef blocked fill:#fcc,stroke:#c66;")
	return b.String()
}

// nodeID maps a task ID to a Mermaid-safe identifier.
func nodeID(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, id)
}
