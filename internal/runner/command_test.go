package runner

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aristath/tascade/internal/task"
)

type lineRecorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *lineRecorder) Step(name, status, detail string) {}

func (r *lineRecorder) Output(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, line)
}

func withCommand(tk *task.Task, command string) *task.Task {
	tk.Details.Extra = map[string]any{CommandKey: command}
	return tk
}

func TestCommandHandler_Run(t *testing.T) {
	tests := []struct {
		name       string
		handler    CommandHandler
		task       *task.Task
		wantOutput string
		wantErr    string
	}{
		{
			name:       "default command sees task environment",
			handler:    CommandHandler{Default: `echo "$TASCADE_TASK_ID:$TASCADE_TASK_TITLE"`},
			task:       mkTask("A"),
			wantOutput: "A:task A\n",
		},
		{
			name:       "task command overrides default",
			handler:    CommandHandler{Default: "echo default"},
			task:       withCommand(mkTask("B"), "echo one; echo two"),
			wantOutput: "one\ntwo\n",
		},
		{
			name:    "failure carries stderr",
			handler: CommandHandler{},
			task:    withCommand(mkTask("C"), "echo partial; echo oops >&2; exit 3"),
			wantErr: "oops",
		},
		{
			name:       "extra environment",
			handler:    CommandHandler{Default: "echo $STAGE", Env: []string{"STAGE=ci"}},
			task:       mkTask("D"),
			wantOutput: "ci\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &lineRecorder{}
			out, err := tt.handler.Run(context.Background(), tt.task, rec)

			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("Run() error = %v, want mention of %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if out != tt.wantOutput {
				t.Errorf("output = %q, want %q", out, tt.wantOutput)
			}
			if got := strings.Join(rec.lines, "\n") + "\n"; got != tt.wantOutput {
				t.Errorf("streamed lines = %q, want %q", got, tt.wantOutput)
			}
		})
	}
}

func TestCommandHandler_NoCommand(t *testing.T) {
	h := &CommandHandler{}
	_, err := h.Run(context.Background(), mkTask("A"), nil)
	if !errors.Is(err, ErrNoCommand) {
		t.Fatalf("Run() error = %v, want ErrNoCommand", err)
	}
}

func TestCommandHandler_LargeOutput(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Well above the 64KB pipe buffer.
	h := &CommandHandler{Default: "seq 1 50000"}
	out, err := h.Run(ctx, mkTask("A"), nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if lines := strings.Count(out, "\n"); lines != 50000 {
		t.Errorf("got %d lines, want 50000", lines)
	}
}

func TestCommandHandler_CancelKillsGroup(t *testing.T) {
	pm := NewProcessManager()
	h := &CommandHandler{Default: "sleep 30 & sleep 30; wait", Processes: pm}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := h.Run(ctx, mkTask("A"), nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run() error = %v, want deadline exceeded", err)
	}
	if d := time.Since(start); d > 5*time.Second {
		t.Errorf("Run() took %v after cancellation", d)
	}
	if running := pm.Running(); len(running) != 0 {
		t.Errorf("still tracked: %v", running)
	}
}

func TestCommandHandler_Key(t *testing.T) {
	h := &CommandHandler{Default: "make"}
	if got := h.Key(mkTask("A")); got != "make" {
		t.Errorf("Key() = %q, want make", got)
	}
	if got := h.Key(withCommand(mkTask("B"), "go test ./...")); got != "go test ./..." {
		t.Errorf("Key() = %q", got)
	}
}
