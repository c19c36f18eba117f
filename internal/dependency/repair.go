package dependency

import (
	"fmt"
	"strings"

	"github.com/aristath/tascade/internal/task"
)

// Reasons recorded in RemovedDependency.
const (
	ReasonSelf      = "self_dependency"
	ReasonMissing   = "missing_dependency"
	ReasonCircular  = "circular_dependency"
	ReasonDuplicate = "duplicate_dependency"
)

// RemovedDependency is one dependency edge dropped by Repair.
type RemovedDependency struct {
	TaskID       string `json:"task_id"`
	DependencyID string `json:"dependency_id"`
	Reason       string `json:"reason"`
}

// RepairReport describes what Repair changed.
type RepairReport struct {
	FixedIssues         []string            `json:"fixed_issues"`
	RemovedDependencies []RemovedDependency `json:"removed_dependencies"`
	ChangesMade         bool                `json:"changes_made"`
	Passes              int                 `json:"passes,omitempty"`
}

// Repair removes the problems Validate finds, working on a deep copy of
// tasks. Findings are computed once up front and fixed in this order:
// duplicates, self-dependencies, missing dependencies, cycles. Each reported
// cycle is broken by dropping its last printed edge, which may leave cycles
// that shared edges with it; RepairUntilValid re-runs until none remain.
func Repair(tasks map[string]*task.Task) (map[string]*task.Task, RepairReport) {
	updated := task.CloneAll(tasks)
	report := RepairReport{
		FixedIssues:         []string{},
		RemovedDependencies: []RemovedDependency{},
	}

	v := Validate(updated)

	for _, d := range v.DuplicateDependencies {
		t, ok := updated[d.TaskID]
		if !ok {
			continue
		}
		t.Dependencies = dedupe(t.Dependencies)
		report.FixedIssues = append(report.FixedIssues,
			fmt.Sprintf("Removed duplicate dependencies from task %s", d.TaskID))
		for _, dep := range d.Duplicates {
			report.RemovedDependencies = append(report.RemovedDependencies,
				RemovedDependency{TaskID: d.TaskID, DependencyID: dep, Reason: ReasonDuplicate})
		}
		report.ChangesMade = true
	}

	for _, id := range v.SelfDependencies {
		t, ok := updated[id]
		if !ok {
			continue
		}
		t.Dependencies = without(t.Dependencies, id)
		report.FixedIssues = append(report.FixedIssues,
			fmt.Sprintf("Removed self-dependency from task %s", id))
		report.RemovedDependencies = append(report.RemovedDependencies,
			RemovedDependency{TaskID: id, DependencyID: id, Reason: ReasonSelf})
		report.ChangesMade = true
	}

	for _, m := range v.MissingDependencies {
		t, ok := updated[m.TaskID]
		if !ok {
			continue
		}
		t.Dependencies = without(t.Dependencies, m.Missing...)
		report.FixedIssues = append(report.FixedIssues,
			fmt.Sprintf("Removed missing dependencies from task %s: %s", m.TaskID, strings.Join(m.Missing, ", ")))
		for _, dep := range m.Missing {
			report.RemovedDependencies = append(report.RemovedDependencies,
				RemovedDependency{TaskID: m.TaskID, DependencyID: dep, Reason: ReasonMissing})
		}
		report.ChangesMade = true
	}

	for _, cycle := range v.cycles {
		if len(cycle) < 2 {
			continue
		}
		dependent, dependency := cycle[len(cycle)-2], cycle[len(cycle)-1]
		t, ok := updated[dependent]
		if !ok || !t.DependsOn(dependency) {
			// Already broken by an earlier cycle in this pass.
			continue
		}
		t.Dependencies = without(t.Dependencies, dependency)
		report.FixedIssues = append(report.FixedIssues,
			fmt.Sprintf("Broke circular dependency by removing %s from %s's dependencies", dependency, dependent))
		report.RemovedDependencies = append(report.RemovedDependencies,
			RemovedDependency{TaskID: dependent, DependencyID: dependency, Reason: ReasonCircular})
		report.ChangesMade = true
	}

	return updated, report
}

// RepairUntilValid runs Repair until Validate reports a valid graph, a pass
// changes nothing, or maxPasses passes have run. maxPasses <= 0 means no cap;
// every pass that finds a cycle removes at least one edge, so the loop always
// ends. The returned report merges all passes.
func RepairUntilValid(tasks map[string]*task.Task, maxPasses int) (map[string]*task.Task, RepairReport) {
	current := tasks
	merged := RepairReport{
		FixedIssues:         []string{},
		RemovedDependencies: []RemovedDependency{},
	}

	for maxPasses <= 0 || merged.Passes < maxPasses {
		next, report := Repair(current)
		merged.Passes++
		current = next

		if !report.ChangesMade {
			break
		}
		merged.ChangesMade = true
		merged.FixedIssues = append(merged.FixedIssues, report.FixedIssues...)
		merged.RemovedDependencies = append(merged.RemovedDependencies, report.RemovedDependencies...)

		if Validate(current).Valid {
			break
		}
	}

	return current, merged
}

// dedupe keeps the first occurrence of each ID.
func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// without returns ids minus every occurrence of the given values.
func without(ids []string, drop ...string) []string {
	skip := make(map[string]bool, len(drop))
	for _, d := range drop {
		skip[d] = true
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !skip[id] {
			out = append(out, id)
		}
	}
	return out
}
