package dependency

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/aristath/tascade/internal/task"
)

func TestChain(t *testing.T) {
	tasks := graph(t, "A:", "B: A", "C: A", "D: B C missing")

	res := Chain(tasks, "D")
	if !res.Exists {
		t.Fatal("Exists = false, want true")
	}

	levels := make([][]string, len(res.Levels))
	for i, lvl := range res.Levels {
		for _, e := range lvl {
			levels[i] = append(levels[i], e.ID)
		}
	}
	want := [][]string{{"D"}, {"B", "C"}, {"A"}}
	if !reflect.DeepEqual(levels, want) {
		t.Errorf("levels = %v, want %v", levels, want)
	}
	if !reflect.DeepEqual(res.Chain, []string{"D", "B", "C", "A"}) {
		t.Errorf("chain = %v", res.Chain)
	}
}

func TestChainTruncatesCycles(t *testing.T) {
	tasks := graph(t, "A: B", "B: C", "C: A")

	res := Chain(tasks, "A")
	if len(res.Chain) != 3 {
		t.Errorf("chain = %v, want each task once", res.Chain)
	}
	if len(res.Levels) != 3 {
		t.Errorf("levels = %d, want 3", len(res.Levels))
	}
}

func TestChainUnknownTask(t *testing.T) {
	res := Chain(graph(t, "A:"), "nope")
	if res.Exists || len(res.Chain) != 0 || len(res.Levels) != 0 {
		t.Errorf("Chain(unknown) = %+v, want empty", res)
	}
}

func TestFindBlocked(t *testing.T) {
	tasks := graph(t, "A:", "B: A", "C: A B", "D: missing", "E: A")
	tasks["A"].Status = task.StatusInProgress
	tasks["E"].Status = task.StatusBlocked

	blocked := FindBlocked(tasks)

	ids := make([]string, len(blocked))
	for i, b := range blocked {
		ids[i] = b.ID
	}
	// D's only dependency does not exist, so nothing blocks it; E is not pending.
	if !reflect.DeepEqual(ids, []string{"B", "C"}) {
		t.Fatalf("blocked = %v, want [B C]", ids)
	}
	if len(blocked[1].Blockers) != 2 {
		t.Errorf("C blockers = %v, want A and B", blocked[1].Blockers)
	}
	if blocked[0].Blockers[0].Status != task.StatusInProgress {
		t.Errorf("blocker status = %s, want in_progress", blocked[0].Blockers[0].Status)
	}
}

func TestDependents(t *testing.T) {
	tasks := graph(t, "A:", "B: A", "C: A", "D: B")

	deps := Dependents(tasks, "A")
	if len(deps) != 2 || deps[0].ID != "B" || deps[1].ID != "C" {
		t.Errorf("Dependents(A) = %v, want B and C", deps)
	}
	if got := Dependents(tasks, "D"); len(got) != 0 {
		t.Errorf("Dependents(D) = %v, want none", got)
	}
}

func TestOrder(t *testing.T) {
	tests := []struct {
		name    string
		tasks   []string
		wantErr error
	}{
		{name: "diamond", tasks: []string{"A:", "B: A", "C: A", "D: B C"}},
		{name: "disconnected", tasks: []string{"A:", "B: A", "C:", "D: C"}},
		{name: "cycle", tasks: []string{"A: B", "B: A"}, wantErr: ErrCycle},
		{name: "missing", tasks: []string{"A: nonexistent"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tasks := graph(t, tt.tasks...)
			order, err := Order(tasks)

			if tt.name == "missing" {
				if err == nil || !strings.Contains(err.Error(), "nonexistent") {
					t.Errorf("Order() error = %v, want mention of nonexistent", err)
				}
				return
			}
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Order() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Order() error = %v", err)
			}
			if len(order) != len(tasks) {
				t.Fatalf("order = %v, want %d tasks", order, len(tasks))
			}

			pos := make(map[string]int, len(order))
			for i, id := range order {
				pos[id] = i
			}
			for id, tk := range tasks {
				for _, dep := range tk.Dependencies {
					if pos[dep] > pos[id] {
						t.Errorf("%s ordered before its dependency %s: %v", id, dep, order)
					}
				}
			}
		})
	}
}

func TestCriticalPath(t *testing.T) {
	tasks := graph(t, "A:", "B: A", "C: A", "D: B C", "E:")
	tasks["A"].ComplexityScore = task.Float(2)
	tasks["B"].ComplexityScore = task.Float(1)
	tasks["C"].ComplexityScore = task.Float(8)
	tasks["D"].ComplexityScore = task.Float(3)
	tasks["E"].ComplexityScore = task.Float(9)

	path, total, err := CriticalPath(tasks)
	if err != nil {
		t.Fatalf("CriticalPath() error = %v", err)
	}
	if !reflect.DeepEqual(path, []string{"A", "C", "D"}) {
		t.Errorf("path = %v, want [A C D]", path)
	}
	if total != 13 {
		t.Errorf("total = %v, want 13", total)
	}

	if _, _, err := CriticalPath(graph(t, "A: B", "B: A")); !errors.Is(err, ErrCycle) {
		t.Errorf("cyclic CriticalPath() error = %v, want ErrCycle", err)
	}

	path, total, err = CriticalPath(map[string]*task.Task{})
	if err != nil || len(path) != 0 || total != 0 {
		t.Errorf("empty CriticalPath() = %v %v %v", path, total, err)
	}
}

func TestMermaid(t *testing.T) {
	tasks := graph(t, "a-1:", "b: a-1 ghost")
	tasks["a-1"].Status = task.StatusDone
	tasks["a-1"].Title = `Say "hi"`
	tasks["b"].Status = task.StatusInProgress

	out := Mermaid(tasks)

	for _, want := range []string{
		"graph TD;",
		`a_1["#a-1: Say #quot;hi#quot;"]:::done;`,
		`b["#b: Task b"]:::active;`,
		"a_1-->b;",
		"classDef blocked fill:#fcc,stroke:#c66;",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "ghost") {
		t.Errorf("edge to missing task rendered:\n%s", out)
	}
}
