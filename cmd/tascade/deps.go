package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/aristath/tascade/internal/dependency"
	"github.com/aristath/tascade/internal/events"
)

// errInvalidGraph makes validate exit non-zero after printing its report.
var errInvalidGraph = errors.New("dependency graph is invalid")

func validateCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the dependency graph for missing, duplicate, self and circular dependencies",
		Args:  cobra.NoArgs,
		RunE: withApp(o, func(cmd *cobra.Command, a *app, args []string) error {
			report := dependency.Validate(a.store.Snapshot())

			if a.jsonOut {
				if err := outputJSON(a.out, report); err != nil {
					return err
				}
			} else if report.Valid {
				fmt.Fprintf(a.out, "%s Dependency graph is valid (%d tasks)\n", green("✓"), a.store.Len())
			} else {
				fmt.Fprintf(a.out, "%s %d issue(s) found:\n", boldRed("✗"), len(report.Issues))
				for _, issue := range report.Issues {
					fmt.Fprintf(a.out, "  - %s\n", issue)
				}
				fmt.Fprintf(a.out, "Run %s to repair.\n", cyan("tascade fix"))
			}

			if !report.Valid {
				return errInvalidGraph
			}
			return nil
		}),
	}
}

func fixCmd(o *options) *cobra.Command {
	var (
		flagDryRun    bool
		flagMaxPasses int
	)

	cmd := &cobra.Command{
		Use:   "fix",
		Short: "Remove invalid dependencies until the graph validates",
		Args:  cobra.NoArgs,
		RunE: withApp(o, func(cmd *cobra.Command, a *app, args []string) error {
			repaired, report := dependency.RepairUntilValid(a.store.Snapshot(), flagMaxPasses)

			if report.ChangesMade && !flagDryRun {
				a.store.Replace(repaired)
				if err := a.save(cmd.Context()); err != nil {
					return err
				}
				a.bus.Publish(events.TopicGraph, events.RepairedEvent{
					Removed:   len(report.RemovedDependencies),
					Passes:    report.Passes,
					Timestamp: time.Now().UTC(),
				})
			}

			if a.jsonOut {
				return outputJSON(a.out, report)
			}
			if !report.ChangesMade {
				fmt.Fprintf(a.out, "%s Nothing to fix\n", green("✓"))
				return nil
			}

			verb := "Removed"
			if flagDryRun {
				verb = "Would remove"
			}
			fmt.Fprintf(a.out, "%s %d dependency edge(s) in %d pass(es):\n", verb, len(report.RemovedDependencies), report.Passes)
			for _, r := range report.RemovedDependencies {
				fmt.Fprintf(a.out, "  %s -> %s  %s\n", bold(r.TaskID), r.DependencyID, dim(r.Reason))
			}
			if !dependency.Validate(repaired).Valid {
				fmt.Fprintf(a.out, "%s graph still has issues after %d pass(es)\n", boldYellow("!"), report.Passes)
			}
			return nil
		}),
	}

	cmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "Show what would be removed without saving")
	cmd.Flags().IntVar(&flagMaxPasses, "max-passes", 0, "Stop after this many repair passes (0 means until valid)")
	return cmd
}

func chainCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "chain <id>",
		Short: "Show the transitive dependencies of a task level by level",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(o, func(cmd *cobra.Command, a *app, args []string) error {
			result := dependency.Chain(a.store.Snapshot(), args[0])
			if a.jsonOut {
				return outputJSON(a.out, result)
			}
			if !result.Exists {
				return fmt.Errorf("task %s not found", args[0])
			}

			for i, level := range result.Levels {
				fmt.Fprintf(a.out, "%s %d\n", bold("Level"), i)
				for _, e := range level {
					fmt.Fprintf(a.out, "  %s %s  %s\n", statusIcon(e.Status), bold(e.ID), e.Title)
				}
			}
			return nil
		}),
	}
}

func blockedCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "blocked",
		Short: "List pending tasks waiting on unfinished dependencies",
		Args:  cobra.NoArgs,
		RunE: withApp(o, func(cmd *cobra.Command, a *app, args []string) error {
			blocked := dependency.FindBlocked(a.store.Snapshot())
			if a.jsonOut {
				return outputJSON(a.out, blocked)
			}
			if len(blocked) == 0 {
				fmt.Fprintln(a.out, dim("No pending task is waiting on a dependency."))
				return nil
			}

			for _, b := range blocked {
				var waits []string
				for _, r := range b.Blockers {
					waits = append(waits, fmt.Sprintf("%s (%s)", r.ID, statusText(r.Status)))
				}
				fmt.Fprintf(a.out, "%s %s  waiting on %s\n", bold(b.ID), b.Title, strings.Join(waits, ", "))
			}
			return nil
		}),
	}
}

func graphCmd(o *options) *cobra.Command {
	var flagFormat string

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Render the dependency graph (mermaid, order or critical)",
		Args:  cobra.NoArgs,
		RunE: withApp(o, func(cmd *cobra.Command, a *app, args []string) error {
			tasks := a.store.Snapshot()

			switch flagFormat {
			case "mermaid":
				fmt.Fprintln(a.out, dependency.Mermaid(tasks))

			case "order":
				order, err := dependency.Order(tasks)
				if err != nil {
					return err
				}
				if a.jsonOut {
					return outputJSON(a.out, order)
				}
				for i, id := range order {
					fmt.Fprintf(a.out, "%3d. %s %s\n", i+1, bold(id), tasks[id].Title)
				}

			case "critical":
				path, total, err := dependency.CriticalPath(tasks)
				if err != nil {
					return err
				}
				if a.jsonOut {
					return outputJSON(a.out, map[string]any{"path": path, "complexity": total})
				}
				fmt.Fprintf(a.out, "%s %s (complexity %g)\n", bold("Critical path:"), strings.Join(path, " -> "), total)

			default:
				return fmt.Errorf("unknown format %q (want mermaid, order or critical)", flagFormat)
			}
			return nil
		}),
	}

	cmd.Flags().StringVar(&flagFormat, "format", "mermaid", "Output format: mermaid, order or critical")
	return cmd
}
