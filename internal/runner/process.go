package runner

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"sync"
	"syscall"
)

// newCommand builds a command that runs in its own process group, so that
// cancelling ctx kills everything the shell spawned, not just the shell.
func newCommand(ctx context.Context, name string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return killGroup(cmd)
	}
	return cmd
}

// killGroup sends SIGKILL to the process group of a started command.
func killGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return errors.New("process not started")
	}
	if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("kill process group %d: %w", cmd.Process.Pid, err)
	}
	return nil
}

// ProcessManager records which task each running command belongs to, so a
// shutdown can kill every command and a caller can see what is running.
// A nil *ProcessManager tracks nothing.
type ProcessManager struct {
	mu      sync.Mutex
	running map[string]*exec.Cmd
}

// NewProcessManager creates an empty ProcessManager.
func NewProcessManager() *ProcessManager {
	return &ProcessManager{running: make(map[string]*exec.Cmd)}
}

// Track records cmd as the running command of taskID. Call it after Start.
func (pm *ProcessManager) Track(taskID string, cmd *exec.Cmd) {
	if pm == nil || cmd.Process == nil {
		return
	}
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.running[taskID] = cmd
}

// Untrack forgets the command of taskID. Call it after Wait.
func (pm *ProcessManager) Untrack(taskID string) {
	if pm == nil {
		return
	}
	pm.mu.Lock()
	defer pm.mu.Unlock()
	delete(pm.running, taskID)
}

// Running returns the IDs of tasks whose command is running, sorted.
func (pm *ProcessManager) Running() []string {
	if pm == nil {
		return nil
	}
	pm.mu.Lock()
	defer pm.mu.Unlock()

	ids := make([]string, 0, len(pm.running))
	for id := range pm.running {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Kill kills the command of one task. It reports whether one was running.
func (pm *ProcessManager) Kill(taskID string) (bool, error) {
	if pm == nil {
		return false, nil
	}
	pm.mu.Lock()
	defer pm.mu.Unlock()

	cmd, ok := pm.running[taskID]
	if !ok {
		return false, nil
	}
	return true, killGroup(cmd)
}

// KillAll kills every tracked command and returns the joined errors.
func (pm *ProcessManager) KillAll() error {
	if pm == nil {
		return nil
	}
	pm.mu.Lock()
	defer pm.mu.Unlock()

	var errs []error
	for id, cmd := range pm.running {
		if err := killGroup(cmd); err != nil {
			errs = append(errs, fmt.Errorf("task %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}
