package lifecycle

import (
	"errors"
	"fmt"

	"github.com/aristath/tascade/internal/task"
)

var (
	ErrTaskNotFound      = errors.New("task not found")
	ErrInvalidTransition = errors.New("invalid transition")
)

// Outcome tells callers whether a lifecycle operation changed anything.
type Outcome int

const (
	Applied      Outcome = iota // the transition happened
	InvalidState                // the task was left unchanged; see Result.Reason
	NotFound                    // no task with that ID
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case InvalidState:
		return "invalid_state"
	case NotFound:
		return "not_found"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result is returned by every Controller operation. Task is a copy of the
// task after the operation (unchanged when Outcome is InvalidState, nil when
// NotFound). Warnings carry non-fatal findings such as unmet dependencies.
type Result struct {
	Task     *task.Task
	Outcome  Outcome
	Reason   string
	Warnings []string
}

// Ok reports whether the transition was applied.
func (r Result) Ok() bool { return r.Outcome == Applied }

// Err converts the outcome into an error for callers that prefer errors.Is.
func (r Result) Err() error {
	switch r.Outcome {
	case Applied:
		return nil
	case NotFound:
		return fmt.Errorf("%w: %s", ErrTaskNotFound, r.Reason)
	default:
		return fmt.Errorf("%w: %s", ErrInvalidTransition, r.Reason)
	}
}
