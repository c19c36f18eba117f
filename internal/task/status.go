package task

import (
	"errors"
	"fmt"
	"strings"
)

// Status represents the lifecycle state of a task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
	StatusBlocked    Status = "blocked"
	StatusFailed     Status = "failed"

	// Declared for persisted data; no lifecycle operation transitions into them.
	StatusCancelled Status = "cancelled"
	StatusDeferred  Status = "deferred"
)

// Priority is the scheduling priority of a task.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

var (
	ErrInvalidStatus   = errors.New("invalid task status")
	ErrInvalidPriority = errors.New("invalid task priority")
)

// ParseError reports an unrecognized enum string.
type ParseError struct {
	Field string
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Field, e.Value, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Statuses returns every declared status value.
func Statuses() []Status {
	return []Status{
		StatusPending, StatusInProgress, StatusDone, StatusBlocked,
		StatusFailed, StatusCancelled, StatusDeferred,
	}
}

// ParseStatus converts a string to a Status. Matching is case-insensitive
// and tolerates surrounding whitespace; anything else is an error.
func ParseStatus(s string) (Status, error) {
	v := Status(strings.ToLower(strings.TrimSpace(s)))
	if v.IsValid() {
		return v, nil
	}
	return "", &ParseError{Field: "status", Value: s, Err: ErrInvalidStatus}
}

// IsValid reports whether s is a declared status.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusDone, StatusBlocked,
		StatusFailed, StatusCancelled, StatusDeferred:
		return true
	default:
		return false
	}
}

func (s Status) String() string { return string(s) }

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	if !s.IsValid() {
		return nil, &ParseError{Field: "status", Value: string(s), Err: ErrInvalidStatus}
	}
	return []byte(s), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(b []byte) error {
	v, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Priorities returns every declared priority, lowest first.
func Priorities() []Priority {
	return []Priority{PriorityLow, PriorityMedium, PriorityHigh}
}

// ParsePriority converts a string to a Priority.
func ParsePriority(s string) (Priority, error) {
	v := Priority(strings.ToLower(strings.TrimSpace(s)))
	if v.IsValid() {
		return v, nil
	}
	return "", &ParseError{Field: "priority", Value: s, Err: ErrInvalidPriority}
}

// IsValid reports whether p is a declared priority.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	default:
		return false
	}
}

// Weight maps the priority to its numeric scheduling weight.
// Unknown priorities weigh 0 so they sort after every declared one.
func (p Priority) Weight() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

func (p Priority) String() string { return string(p) }

// MarshalText implements encoding.TextMarshaler.
func (p Priority) MarshalText() ([]byte, error) {
	if !p.IsValid() {
		return nil, &ParseError{Field: "priority", Value: string(p), Err: ErrInvalidPriority}
	}
	return []byte(p), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Priority) UnmarshalText(b []byte) error {
	v, err := ParsePriority(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}
