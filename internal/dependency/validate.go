// Package dependency analyzes and repairs the dependency graph formed by task
// dependency lists. Every function here is pure: inputs are never mutated.
package dependency

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aristath/tascade/internal/task"
)

// MissingDependency lists the dependency IDs of a task that resolve to nothing.
type MissingDependency struct {
	TaskID  string   `json:"task_id"`
	Missing []string `json:"missing"`
}

// DuplicateDependency lists the dependency IDs a task names more than once.
type DuplicateDependency struct {
	TaskID     string   `json:"task_id"`
	Duplicates []string `json:"duplicates"`
}

// Report is the result of Validate. Structural problems are data, never errors.
type Report struct {
	Valid                 bool                  `json:"valid"`
	Issues                []string              `json:"issues"`
	CircularDependencies  []string              `json:"circular_dependencies"`
	MissingDependencies   []MissingDependency   `json:"missing_dependencies"`
	DuplicateDependencies []DuplicateDependency `json:"duplicate_dependencies"`
	SelfDependencies      []string              `json:"self_dependencies"`

	// cycles mirrors CircularDependencies as node lists for Repair.
	cycles [][]string
}

// Validate checks every task for duplicate, self, missing and circular
// dependencies and aggregates all findings. Tasks are visited in ID order so
// the report is deterministic.
func Validate(tasks map[string]*task.Task) Report {
	r := Report{
		Valid:                 true,
		Issues:                []string{},
		CircularDependencies:  []string{},
		MissingDependencies:   []MissingDependency{},
		DuplicateDependencies: []DuplicateDependency{},
		SelfDependencies:      []string{},
	}

	w := newWalker(tasks)
	seen := make(map[string]bool)

	for _, id := range sortedIDs(tasks) {
		t := tasks[id]
		if len(t.Dependencies) == 0 {
			continue
		}

		if dups := duplicates(t.Dependencies); len(dups) > 0 {
			r.Valid = false
			r.DuplicateDependencies = append(r.DuplicateDependencies, DuplicateDependency{TaskID: id, Duplicates: dups})
			r.Issues = append(r.Issues, fmt.Sprintf("Task %s has duplicate dependencies: %s", id, strings.Join(dups, ", ")))
		}

		if t.DependsOn(id) {
			r.Valid = false
			r.SelfDependencies = append(r.SelfDependencies, id)
			r.Issues = append(r.Issues, fmt.Sprintf("Task %s depends on itself", id))
		}

		var missing []string
		for _, dep := range t.Dependencies {
			if _, ok := tasks[dep]; !ok {
				missing = append(missing, dep)
			}
		}
		if len(missing) > 0 {
			r.Valid = false
			r.MissingDependencies = append(r.MissingDependencies, MissingDependency{TaskID: id, Missing: missing})
			r.Issues = append(r.Issues, fmt.Sprintf("Task %s has missing dependencies: %s", id, strings.Join(missing, ", ")))
		}

		for _, dep := range t.Dependencies {
			if dep == id {
				continue
			}
			if _, ok := tasks[dep]; !ok {
				continue
			}
			found, chain := w.find([]string{id}, dep)
			if !found {
				continue
			}
			r.Valid = false
			cycle := strings.Join(chain, " -> ")
			if seen[cycle] {
				continue
			}
			seen[cycle] = true
			r.CircularDependencies = append(r.CircularDependencies, cycle)
			r.cycles = append(r.cycles, chain)
			r.Issues = append(r.Issues, "Circular dependency detected: "+cycle)
		}
	}

	return r
}

// IsCircular reports whether walking from dependencyID along dependency edges
// reaches a node already in chain (or a node on the walk itself). When it
// does, the returned path is the walk with the repeated node appended, e.g.
// [a b c a]. Dependencies that do not exist cannot take part in a cycle, and
// self edges are left to the self-dependency check.
func IsCircular(tasks map[string]*task.Task, taskID, dependencyID string, chain []string) (bool, []string) {
	if chain == nil {
		chain = []string{taskID}
	}
	return newWalker(tasks).find(chain, dependencyID)
}

// walker performs the depth-first cycle search with an explicit frame stack
// and a single path that grows and shrinks with it.
//
// clean holds nodes whose whole reachable set was explored without meeting
// the path. Such a node lies on no cycle and reaches no node of any path that
// leads to it, so later searches may skip it.
type walker struct {
	tasks map[string]*task.Task
	clean map[string]bool
}

type frame struct {
	id   string
	next int // index of the next dependency to visit
}

func newWalker(tasks map[string]*task.Task) *walker {
	return &walker{tasks: tasks, clean: make(map[string]bool)}
}

func (w *walker) find(chain []string, start string) (bool, []string) {
	path := make([]string, len(chain), len(chain)+8)
	copy(path, chain)

	onPath := make(map[string]int, len(path))
	for _, id := range path {
		onPath[id]++
	}

	if onPath[start] > 0 {
		return true, append(path, start)
	}
	if _, ok := w.tasks[start]; !ok || w.clean[start] {
		return false, []string{}
	}

	path = append(path, start)
	onPath[start]++
	stack := []frame{{id: start}}

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		deps := w.tasks[top.id].Dependencies

		if top.next >= len(deps) {
			w.clean[top.id] = true
			onPath[top.id]--
			path = path[:len(path)-1]
			stack = stack[:len(stack)-1]
			continue
		}

		child := deps[top.next]
		top.next++

		if child == top.id {
			continue
		}
		if onPath[child] > 0 {
			return true, append(path, child)
		}
		if _, ok := w.tasks[child]; !ok || w.clean[child] {
			continue
		}

		path = append(path, child)
		onPath[child]++
		stack = append(stack, frame{id: child})
	}

	return false, []string{}
}

// duplicates returns each ID that appears more than once, in order of first
// occurrence.
func duplicates(ids []string) []string {
	counts := make(map[string]int, len(ids))
	for _, id := range ids {
		counts[id]++
	}

	var out []string
	for _, id := range ids {
		if counts[id] > 1 {
			out = append(out, id)
			counts[id] = 0
		}
	}
	return out
}

func sortedIDs(tasks map[string]*task.Task) []string {
	ids := make([]string, 0, len(tasks))
	for id := range tasks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
