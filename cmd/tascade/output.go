package main

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/aristath/tascade/internal/task"
)

// Sprint color functions for building styled strings.
var (
	bold       = color.New(color.Bold).SprintFunc()
	dim        = color.New(color.Faint).SprintFunc()
	cyan       = color.New(color.FgCyan).SprintFunc()
	green      = color.New(color.FgGreen).SprintFunc()
	red        = color.New(color.FgRed).SprintFunc()
	yellow     = color.New(color.FgYellow).SprintFunc()
	boldGreen  = color.New(color.Bold, color.FgGreen).SprintFunc()
	boldRed    = color.New(color.Bold, color.FgRed).SprintFunc()
	boldYellow = color.New(color.Bold, color.FgYellow).SprintFunc()
)

// taskColors is a palette of distinct colors for telling task output apart.
var taskColors = []func(a ...interface{}) string{
	color.New(color.Bold, color.FgMagenta).SprintFunc(),
	color.New(color.Bold, color.FgCyan).SprintFunc(),
	color.New(color.Bold, color.FgYellow).SprintFunc(),
	color.New(color.Bold, color.FgGreen).SprintFunc(),
	color.New(color.Bold, color.FgHiBlue).SprintFunc(),
}

// taskPrefix returns a colored [task-id] prefix; each ID hashes to one color.
func taskPrefix(id string) string {
	var h uint32
	for _, c := range id {
		h = h*31 + uint32(c)
	}
	c := taskColors[int(h%uint32(len(taskColors)))]
	return dim("[") + c(id) + dim("]")
}

func statusIcon(s task.Status) string {
	switch s {
	case task.StatusDone:
		return green("✓")
	case task.StatusInProgress:
		return cyan("●")
	case task.StatusFailed:
		return red("✗")
	case task.StatusBlocked:
		return yellow("⊘")
	case task.StatusCancelled, task.StatusDeferred:
		return dim("⊘")
	default:
		return dim("◌")
	}
}

func statusText(s task.Status) string {
	switch s {
	case task.StatusDone:
		return green(s)
	case task.StatusInProgress:
		return cyan(s)
	case task.StatusFailed:
		return red(s)
	case task.StatusBlocked:
		return yellow(s)
	default:
		return dim(s)
	}
}

func priorityText(p task.Priority) string {
	switch p {
	case task.PriorityHigh:
		return boldYellow(p)
	case task.PriorityLow:
		return dim(p)
	default:
		return string(p)
	}
}

func idList(ids []string) string {
	if len(ids) == 0 {
		return dim("none")
	}
	return strings.Join(ids, ", ")
}

func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
