package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/aristath/tascade/internal/scheduler"
)

func printCandidate(a *app, prefix string, c scheduler.Candidate) {
	line := fmt.Sprintf("%s%s  %s  %s  complexity %g", prefix, bold(c.ID), c.Title, priorityText(c.Priority), c.Complexity)
	if c.IsSubtask {
		line += dim(" (subtask of " + c.ParentID + ")")
	}
	fmt.Fprintln(a.out, line)
}

func nextCmd(o *options) *cobra.Command {
	var flagTopLevel bool

	cmd := &cobra.Command{
		Use:   "next",
		Short: "Show the task to work on next",
		Args:  cobra.NoArgs,
		RunE: withApp(o, func(cmd *cobra.Command, a *app, args []string) error {
			var next *scheduler.Candidate
			if flagTopLevel {
				next = a.sched.Next()
			} else {
				next = a.sched.NextWithSubtasks()
			}

			if a.jsonOut {
				return outputJSON(a.out, next)
			}
			if next == nil {
				fmt.Fprintln(a.out, dim("Nothing is eligible to start."))
				return nil
			}
			printCandidate(a, "Next: ", *next)
			return nil
		}),
	}

	cmd.Flags().BoolVar(&flagTopLevel, "top-level", false, "Ignore subtasks of in-progress tasks")
	return cmd
}

func queueCmd(o *options) *cobra.Command {
	var flagLimit int

	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Show the order tasks would be picked in if each pick completed",
		Args:  cobra.NoArgs,
		RunE: withApp(o, func(cmd *cobra.Command, a *app, args []string) error {
			queue := a.sched.Queue(flagLimit)
			if a.jsonOut {
				return outputJSON(a.out, queue)
			}
			if len(queue) == 0 {
				fmt.Fprintln(a.out, dim("Queue is empty."))
				return nil
			}
			for i, c := range queue {
				printCandidate(a, fmt.Sprintf("%2d. ", i+1), c)
			}
			return nil
		}),
	}

	cmd.Flags().IntVarP(&flagLimit, "limit", "n", 0, "Number of tasks (default from config)")
	return cmd
}

func estimateCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "estimate",
		Short: "Estimate when pending work will be done from past execution times",
		Args:  cobra.NoArgs,
		RunE: withApp(o, func(cmd *cobra.Command, a *app, args []string) error {
			est := a.sched.Estimate(time.Now().UTC())
			if a.jsonOut {
				return outputJSON(a.out, est)
			}

			fmt.Fprintf(a.out, "Pending tasks: %d\n", est.PendingTasks)
			if !est.HasHistoricalData {
				fmt.Fprintln(a.out, dim("No completed executions yet; run tasks with 'tascade run' to build history."))
				return nil
			}
			fmt.Fprintf(a.out, "Average time:  %s (%d samples, %s confidence)\n",
				seconds(*est.AverageCompletionSeconds), est.SampleCount, est.Confidence)
			fmt.Fprintf(a.out, "Remaining:     %s\n", seconds(*est.EstimatedTotalSeconds))
			if est.EstimatedCompletionAt != nil {
				fmt.Fprintf(a.out, "Done by:       %s\n", bold(est.EstimatedCompletionAt.Local().Format(time.RFC1123)))
			}
			return nil
		}),
	}
}
