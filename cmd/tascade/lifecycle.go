package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aristath/tascade/internal/lifecycle"
)

// transition describes one lifecycle command.
type transition struct {
	use   string
	short string
	args  cobra.PositionalArgs
	apply func(c *lifecycle.Controller, id, text, user string) lifecycle.Result
}

func lifecycleCmds(o *options) []*cobra.Command {
	transitions := []transition{
		{
			use:   "start <id>",
			short: "Mark a task as in progress",
			args:  cobra.ExactArgs(1),
			apply: func(c *lifecycle.Controller, id, _, user string) lifecycle.Result {
				return c.Start(id, user)
			},
		},
		{
			use:   "complete <id> [notes]",
			short: "Mark a task as done",
			args:  cobra.RangeArgs(1, 2),
			apply: (*lifecycle.Controller).Complete,
		},
		{
			use:   "pause <id> [reason]",
			short: "Return an in-progress task to pending",
			args:  cobra.RangeArgs(1, 2),
			apply: (*lifecycle.Controller).Pause,
		},
		{
			use:   "block <id> <description>",
			short: "Mark a task as blocked and record the blocker",
			args:  cobra.ExactArgs(2),
			apply: (*lifecycle.Controller).Block,
		},
		{
			use:   "unblock <id> [resolution]",
			short: "Resolve the latest blocker and return the task to pending",
			args:  cobra.RangeArgs(1, 2),
			apply: (*lifecycle.Controller).Unblock,
		},
		{
			use:   "fail <id> [reason]",
			short: "Mark a task as failed",
			args:  cobra.RangeArgs(1, 2),
			apply: (*lifecycle.Controller).Fail,
		},
	}

	cmds := make([]*cobra.Command, 0, len(transitions))
	for _, tr := range transitions {
		cmds = append(cmds, tr.command(o))
	}
	return cmds
}

func (tr transition) command(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   tr.use,
		Short: tr.short,
		Args:  tr.args,
		RunE: withApp(o, func(cmd *cobra.Command, a *app, args []string) error {
			text := ""
			if len(args) > 1 {
				text = args[1]
			}

			res := tr.apply(a.ctrl, args[0], text, a.user)
			if !res.Ok() {
				if a.jsonOut {
					outputJSON(a.out, map[string]any{"outcome": res.Outcome.String(), "reason": res.Reason})
				}
				return res.Err()
			}
			if err := a.save(cmd.Context()); err != nil {
				return err
			}

			if a.jsonOut {
				return outputJSON(a.out, res.Task)
			}
			fmt.Fprintf(a.out, "%s %s is now %s\n", statusIcon(res.Task.Status), bold(res.Task.ID), statusText(res.Task.Status))
			for _, w := range res.Warnings {
				fmt.Fprintf(a.out, "%s %s\n", boldYellow("!"), w)
			}
			if last, ok := res.Task.LastHistory(); ok && strings.HasPrefix(last.Description, "unblocked dependents: ") {
				fmt.Fprintf(a.out, "  %s\n", dim(last.Description))
			}
			return nil
		}),
	}
}
