package runner

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/aristath/tascade/internal/task"
)

// CommandKey is the Details.Extra key holding a task's own shell command.
const CommandKey = "command"

// ErrNoCommand is returned for a task with no command of its own and no default.
var ErrNoCommand = errors.New("no command configured")

// CommandHandler runs each task as a shell command in its own process group.
// The command comes from the task's details (CommandKey) or, failing that,
// from Default. TASCADE_TASK_ID and TASCADE_TASK_TITLE are set in its
// environment.
type CommandHandler struct {
	Shell     string          // Interpreter invoked as Shell -c <command> (default "sh")
	Default   string          // Command for tasks that carry none
	Dir       string          // Working directory (default current)
	Env       []string        // Extra KEY=VALUE pairs
	Processes *ProcessManager // Optional; tracks running commands for KillAll
}

// CommandFor returns the command that would run for t.
func (h *CommandHandler) CommandFor(t *task.Task) string {
	if c, ok := t.Details.Extra[CommandKey].(string); ok && strings.TrimSpace(c) != "" {
		return c
	}
	return h.Default
}

// Key groups tasks by command so a broken command trips its own breaker.
func (h *CommandHandler) Key(t *task.Task) string {
	return h.CommandFor(t)
}

// Run executes the command for t. Stdout lines are streamed to rep as they
// arrive and returned in full; stderr is attached to the error on failure.
func (h *CommandHandler) Run(ctx context.Context, t *task.Task, rep Reporter) (string, error) {
	command := h.CommandFor(t)
	if command == "" {
		return "", fmt.Errorf("task %s: %w", t.ID, ErrNoCommand)
	}
	shell := h.Shell
	if shell == "" {
		shell = "sh"
	}

	cmd := newCommand(ctx, shell, "-c", command)
	cmd.Dir = h.Dir
	cmd.Env = append(os.Environ(), h.Env...)
	cmd.Env = append(cmd.Env, "TASCADE_TASK_ID="+t.ID, "TASCADE_TASK_TITLE="+t.Title)

	stdout, stderr, err := h.execute(t.ID, cmd, rep)
	if err != nil {
		if ctx.Err() != nil {
			return stdout, ctx.Err()
		}
		if msg := strings.TrimSpace(stderr); msg != "" {
			return stdout, fmt.Errorf("command failed: %w (stderr: %s)", err, msg)
		}
		return stdout, fmt.Errorf("command failed: %w", err)
	}
	return stdout, nil
}

// execute drains stdout and stderr concurrently before calling Wait, so a
// chatty command can never block on a full pipe.
func (h *CommandHandler) execute(taskID string, cmd *exec.Cmd, rep Reporter) (string, string, error) {
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return "", "", fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return "", "", fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return "", "", fmt.Errorf("failed to start command: %w", err)
	}
	h.Processes.Track(taskID, cmd)
	defer h.Processes.Untrack(taskID)

	var wg sync.WaitGroup
	var stdoutBuf, stderrBuf bytes.Buffer
	wg.Add(2)

	go func() {
		defer wg.Done()
		sc := bufio.NewScanner(stdoutPipe)
		sc.Buffer(make([]byte, 64*1024), 1024*1024)
		for sc.Scan() {
			line := sc.Text()
			stdoutBuf.WriteString(line)
			stdoutBuf.WriteByte('\n')
			if rep != nil {
				rep.Output(line)
			}
		}
		// Drain whatever the scanner refused (over-long line).
		io.Copy(&stdoutBuf, stdoutPipe)
	}()

	go func() {
		defer wg.Done()
		io.Copy(&stderrBuf, stderrPipe)
	}()

	wg.Wait()
	waitErr := cmd.Wait()
	return stdoutBuf.String(), stderrBuf.String(), waitErr
}
