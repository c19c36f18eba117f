package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/aristath/tascade/internal/dependency"
	"github.com/aristath/tascade/internal/runner"
	"github.com/aristath/tascade/internal/task"
)

func addCmd(o *options) *cobra.Command {
	var (
		flagID          string
		flagDescription string
		flagPriority    string
		flagDependsOn   []string
		flagParent      string
		flagComplexity  float64
		flagCommand     string
	)

	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Add a task",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(o, func(cmd *cobra.Command, a *app, args []string) error {
			priority, err := task.ParsePriority(flagPriority)
			if err != nil {
				return err
			}

			now := time.Now().UTC()
			t := task.New(args[0], now)
			if flagID != "" {
				t.ID = flagID
			}
			t.Description = flagDescription
			t.Priority = priority
			t.Dependencies = append(t.Dependencies, flagDependsOn...)
			if cmd.Flags().Changed("complexity") {
				t.ComplexityScore = task.Float(flagComplexity)
			}
			if flagCommand != "" {
				t.Details.Extra = map[string]any{runner.CommandKey: flagCommand}
			}

			if flagParent != "" {
				if _, ok := a.store.Get(flagParent); !ok {
					return fmt.Errorf("parent task %s not found", flagParent)
				}
			}
			if err := a.store.Add(t); err != nil {
				return err
			}
			if flagParent != "" {
				err := a.store.Update(flagParent, func(p *task.Task) error {
					p.Subtasks = append(p.Subtasks, t.ID)
					p.UpdatedAt = now
					return nil
				})
				if err != nil {
					return err
				}
			}
			if err := a.save(cmd.Context()); err != nil {
				return err
			}

			if a.jsonOut {
				added, _ := a.store.Get(t.ID)
				return outputJSON(a.out, added)
			}
			fmt.Fprintf(a.out, "%s Added %s %s\n", green("✓"), bold(t.ID), t.Title)
			if report := dependency.Validate(a.store.Snapshot()); !report.Valid {
				fmt.Fprintf(a.out, "%s dependency graph has %d issue(s); run %s\n",
					boldYellow("!"), len(report.Issues), cyan("tascade validate"))
			}
			return nil
		}),
	}

	cmd.Flags().StringVar(&flagID, "id", "", "Task ID (default a new UUID)")
	cmd.Flags().StringVarP(&flagDescription, "description", "d", "", "Task description")
	cmd.Flags().StringVarP(&flagPriority, "priority", "p", string(task.PriorityMedium), "Priority: high, medium or low")
	cmd.Flags().StringSliceVar(&flagDependsOn, "depends-on", nil, "IDs of tasks this task depends on")
	cmd.Flags().StringVar(&flagParent, "parent", "", "Add as a subtask of this task")
	cmd.Flags().Float64Var(&flagComplexity, "complexity", task.DefaultComplexity, "Complexity score")
	cmd.Flags().StringVar(&flagCommand, "command", "", "Shell command run for this task by 'tascade run'")

	return cmd
}

func listCmd(o *options) *cobra.Command {
	var flagStatus string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks in creation order",
		Args:  cobra.NoArgs,
		RunE: withApp(o, func(cmd *cobra.Command, a *app, args []string) error {
			tasks := a.store.List()
			if flagStatus != "" {
				status, err := task.ParseStatus(flagStatus)
				if err != nil {
					return err
				}
				filtered := tasks[:0]
				for _, t := range tasks {
					if t.Status == status {
						filtered = append(filtered, t)
					}
				}
				tasks = filtered
			}

			if a.jsonOut {
				return outputJSON(a.out, tasks)
			}
			if len(tasks) == 0 {
				fmt.Fprintln(a.out, dim("No tasks."))
				return nil
			}

			idWidth := 0
			for _, t := range tasks {
				idWidth = max(idWidth, len(t.ID))
			}
			for _, t := range tasks {
				line := fmt.Sprintf("%s %-*s  %-11s  %-6s  %s", statusIcon(t.Status), idWidth, t.ID,
					t.Status, t.Priority, t.Title)
				if len(t.Dependencies) > 0 {
					line += dim(" <- " + strings.Join(t.Dependencies, ", "))
				}
				fmt.Fprintln(a.out, line)
			}
			return nil
		}),
	}

	cmd.Flags().StringVar(&flagStatus, "status", "", "Only list tasks with this status")
	return cmd
}

func showCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a task with its details and history",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(o, func(cmd *cobra.Command, a *app, args []string) error {
			t, ok := a.store.Get(args[0])
			if !ok {
				return fmt.Errorf("task %s not found", args[0])
			}
			if a.jsonOut {
				return outputJSON(a.out, t)
			}

			var dependents []string
			for _, r := range dependency.Dependents(a.store.Snapshot(), t.ID) {
				dependents = append(dependents, r.ID)
			}

			w := a.out
			fmt.Fprintf(w, "%s %s  %s\n", statusIcon(t.Status), bold(t.ID), t.Title)
			if t.Description != "" {
				fmt.Fprintf(w, "  %s\n", t.Description)
			}
			fmt.Fprintf(w, "  Status:      %s\n", statusText(t.Status))
			fmt.Fprintf(w, "  Priority:    %s\n", priorityText(t.Priority))
			fmt.Fprintf(w, "  Complexity:  %g\n", t.Complexity())
			fmt.Fprintf(w, "  Depends on:  %s\n", idList(t.Dependencies))
			fmt.Fprintf(w, "  Dependents:  %s\n", idList(dependents))
			fmt.Fprintf(w, "  Subtasks:    %s\n", idList(t.Subtasks))
			if cmdline, ok := t.Details.Extra[runner.CommandKey].(string); ok {
				fmt.Fprintf(w, "  Command:     %s\n", cmdline)
			}
			fmt.Fprintf(w, "  Created:     %s\n", t.CreatedAt.Format(time.RFC3339))

			d := t.Details
			if d.StartedAt != nil {
				fmt.Fprintf(w, "  Started:     %s\n", d.StartedAt.Format(time.RFC3339))
			}
			if d.CompletedAt != nil {
				fmt.Fprintf(w, "  Completed:   %s\n", d.CompletedAt.Format(time.RFC3339))
			}
			if d.DurationSeconds != nil {
				fmt.Fprintf(w, "  Duration:    %s\n", seconds(*d.DurationSeconds))
			}
			if d.TimeSpentSeconds > 0 {
				fmt.Fprintf(w, "  Time spent:  %s\n", seconds(d.TimeSpentSeconds))
			}
			for _, b := range d.Blockers {
				if b.ResolvedAt == nil {
					fmt.Fprintf(w, "  %s %s\n", yellow("Blocker:"), b.Description)
				} else {
					fmt.Fprintf(w, "  %s %s (%s)\n", dim("Resolved:"), b.Description, b.Resolution)
				}
			}

			if ec := t.ExecutionContext; ec != nil {
				fmt.Fprintf(w, "  Execution:   %s", ec.Status)
				if ec.Metrics != nil {
					fmt.Fprintf(w, ", %d/%d steps", ec.Metrics.StepsCompleted, ec.Metrics.TotalSteps)
					if ec.Metrics.TimeSpent != nil {
						fmt.Fprintf(w, " in %s", seconds(*ec.Metrics.TimeSpent))
					}
				}
				fmt.Fprintln(w)
			}

			fmt.Fprintf(w, "\n%s\n", bold("History"))
			for _, h := range t.History {
				fmt.Fprintf(w, "  %s  %-8s  %s\n", dim(h.Timestamp.Format(time.RFC3339)), h.User, h.Description)
			}
			return nil
		}),
	}
}

func seconds(s float64) string {
	return time.Duration(s * float64(time.Second)).Round(time.Second).String()
}
