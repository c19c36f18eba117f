package dependency

import (
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/aristath/tascade/internal/task"
)

// graph builds a task map from "id: dep dep" defs.
func graph(t *testing.T, defs ...string) map[string]*task.Task {
	t.Helper()
	tasks := make(map[string]*task.Task, len(defs))
	for _, def := range defs {
		id, rest, _ := strings.Cut(def, ":")
		id = strings.TrimSpace(id)
		if _, dup := tasks[id]; dup {
			t.Fatalf("duplicate task %q in fixture", id)
		}
		tasks[id] = &task.Task{
			ID:           id,
			Title:        "Task " + id,
			Status:       task.StatusPending,
			Priority:     task.PriorityMedium,
			Dependencies: strings.Fields(rest),
		}
	}
	return tasks
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name       string
		tasks      []string
		wantValid  bool
		wantSelf   []string
		wantMiss   []MissingDependency
		wantDups   []DuplicateDependency
		wantCycles int
	}{
		{
			name:      "valid linear chain",
			tasks:     []string{"A:", "B: A", "C: B"},
			wantValid: true,
		},
		{
			name:      "valid diamond",
			tasks:     []string{"A:", "B: A", "C: A", "D: B C"},
			wantValid: true,
		},
		{
			name:      "empty graph",
			wantValid: true,
		},
		{
			name:     "self dependency",
			tasks:    []string{"X: X"},
			wantSelf: []string{"X"},
		},
		{
			name:     "missing dependency",
			tasks:    []string{"Y: missing1"},
			wantMiss: []MissingDependency{{TaskID: "Y", Missing: []string{"missing1"}}},
		},
		{
			name:     "duplicate dependency",
			tasks:    []string{"A:", "B:", "C: A B A B A"},
			wantDups: []DuplicateDependency{{TaskID: "C", Duplicates: []string{"A", "B"}}},
		},
		{
			name:       "direct cycle",
			tasks:      []string{"A: B", "B: A"},
			wantCycles: 2,
		},
		{
			name:       "transitive cycle",
			tasks:      []string{"A: C", "B: A", "C: B"},
			wantCycles: 3,
		},
		{
			name:       "cycle downstream of acyclic task",
			tasks:      []string{"A: B", "B: C", "C: B"},
			wantCycles: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tasks := graph(t, tt.tasks...)
			r := Validate(tasks)

			if r.Valid != tt.wantValid {
				t.Errorf("Valid = %v, want %v (issues: %v)", r.Valid, tt.wantValid, r.Issues)
			}
			if !equalOrEmpty(r.SelfDependencies, tt.wantSelf) {
				t.Errorf("SelfDependencies = %v, want %v", r.SelfDependencies, tt.wantSelf)
			}
			if len(r.MissingDependencies) != len(tt.wantMiss) ||
				(len(tt.wantMiss) > 0 && !reflect.DeepEqual(r.MissingDependencies, tt.wantMiss)) {
				t.Errorf("MissingDependencies = %v, want %v", r.MissingDependencies, tt.wantMiss)
			}
			if len(r.DuplicateDependencies) != len(tt.wantDups) ||
				(len(tt.wantDups) > 0 && !reflect.DeepEqual(r.DuplicateDependencies, tt.wantDups)) {
				t.Errorf("DuplicateDependencies = %v, want %v", r.DuplicateDependencies, tt.wantDups)
			}
			if len(r.CircularDependencies) != tt.wantCycles {
				t.Errorf("CircularDependencies = %v, want %d entries", r.CircularDependencies, tt.wantCycles)
			}
			if !tt.wantValid && len(r.Issues) == 0 {
				t.Error("invalid report carries no issues")
			}
		})
	}
}

func equalOrEmpty(got, want []string) bool {
	if len(got) == 0 && len(want) == 0 {
		return true
	}
	return reflect.DeepEqual(got, want)
}

func TestValidateSelfDependencyIsNotACycle(t *testing.T) {
	r := Validate(graph(t, "X: X"))
	if len(r.CircularDependencies) != 0 {
		t.Errorf("self edge reported as cycle: %v", r.CircularDependencies)
	}
}

func TestValidateCycleStrings(t *testing.T) {
	r := Validate(graph(t, "A: B", "B: A"))

	want := []string{"A -> B -> A", "B -> A -> B"}
	if !reflect.DeepEqual(r.CircularDependencies, want) {
		t.Errorf("CircularDependencies = %v, want %v", r.CircularDependencies, want)
	}
	for _, c := range want {
		found := false
		for _, issue := range r.Issues {
			if issue == "Circular dependency detected: "+c {
				found = true
			}
		}
		if !found {
			t.Errorf("no issue line for cycle %q in %v", c, r.Issues)
		}
	}
}

func TestValidateDoesNotMutate(t *testing.T) {
	tasks := graph(t, "A: A B missing", "B: A A")
	before := task.CloneAll(tasks)

	Validate(tasks)

	if !reflect.DeepEqual(tasks, before) {
		t.Error("Validate mutated its input")
	}
}

func TestIsCircular(t *testing.T) {
	tasks := graph(t, "A: B", "B: C", "C: A", "D: A", "E: missing")

	t.Run("edge closing a cycle", func(t *testing.T) {
		found, chain := IsCircular(tasks, "A", "B", []string{"A"})
		if !found {
			t.Fatal("expected cycle")
		}
		want := []string{"A", "B", "C", "A"}
		if !reflect.DeepEqual(chain, want) {
			t.Errorf("chain = %v, want %v", chain, want)
		}
	})

	t.Run("dependency already in chain", func(t *testing.T) {
		found, chain := IsCircular(tasks, "X", "A", []string{"X", "A"})
		if !found || !reflect.DeepEqual(chain, []string{"X", "A", "A"}) {
			t.Errorf("IsCircular() = %v %v, want true [X A A]", found, chain)
		}
	})

	t.Run("missing dependency", func(t *testing.T) {
		found, chain := IsCircular(tasks, "E", "missing", []string{"E"})
		if found || len(chain) != 0 {
			t.Errorf("IsCircular() = %v %v, want false []", found, chain)
		}
	})

	t.Run("nil chain starts at task", func(t *testing.T) {
		acyclic := graph(t, "A:", "B: A")
		if found, _ := IsCircular(acyclic, "B", "A", nil); found {
			t.Error("acyclic edge reported as cycle")
		}
		// Adding A -> B would close a loop through B -> A.
		if found, _ := IsCircular(acyclic, "A", "B", nil); !found {
			t.Error("expected cycle when A would depend on B")
		}
	})

	t.Run("input chain is not modified", func(t *testing.T) {
		chain := make([]string, 1, 10)
		chain[0] = "D"
		IsCircular(tasks, "D", "A", chain)
		if len(chain) != 1 || chain[:2][1] != "" {
			t.Errorf("caller chain modified: %v", chain[:2])
		}
	})
}

func TestIsCircularDenseGraph(t *testing.T) {
	// A layered DAG where every node depends on every node of the next layer.
	// Without memoization the walk would visit 8^12 paths.
	const layers, width = 12, 8
	tasks := make(map[string]*task.Task)
	for l := 0; l < layers; l++ {
		for w := 0; w < width; w++ {
			id := fmt.Sprintf("L%02dN%d", l, w)
			var deps []string
			if l+1 < layers {
				for n := 0; n < width; n++ {
					deps = append(deps, fmt.Sprintf("L%02dN%d", l+1, n))
				}
			}
			tasks[id] = &task.Task{ID: id, Status: task.StatusPending, Dependencies: deps}
		}
	}

	r := Validate(tasks)
	if !r.Valid {
		t.Fatalf("layered DAG reported invalid: %v", r.Issues[:1])
	}

	// Close a loop from the bottom layer back to the top.
	bottom := fmt.Sprintf("L%02dN0", layers-1)
	tasks[bottom].Dependencies = []string{"L00N3"}
	r = Validate(tasks)
	if len(r.CircularDependencies) == 0 {
		t.Fatal("expected cycle after closing the loop")
	}
}

func TestScenarioCycleThroughChain(t *testing.T) {
	tasks := graph(t, "A:", "B: A", "C: B")
	if r := Validate(tasks); !r.Valid {
		t.Fatalf("fresh graph invalid: %v", r.Issues)
	}

	tasks["A"].Dependencies = []string{"C"}
	r := Validate(tasks)
	if r.Valid {
		t.Fatal("expected invalid graph after A -> C")
	}

	found := false
	for _, c := range r.CircularDependencies {
		if strings.Contains(c, "A") && strings.Contains(c, "B") && strings.Contains(c, "C") {
			found = true
		}
	}
	if !found {
		t.Errorf("no cycle containing A, B and C in %v", r.CircularDependencies)
	}
}
