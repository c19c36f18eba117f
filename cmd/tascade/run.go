package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/aristath/tascade/internal/events"
	"github.com/aristath/tascade/internal/runner"
	"github.com/aristath/tascade/internal/task"
	"github.com/aristath/tascade/internal/tui"
)

// runFlags override the runner section of the config.
type runFlags struct {
	concurrency int
	command     string
	timeout     time.Duration
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.concurrency, "concurrency", 0, "Max concurrent tasks (default from config)")
	cmd.Flags().StringVar(&f.command, "command", "", "Shell command for tasks without their own (default from config)")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 0, "Per-task timeout (default from config)")
}

// newRunner builds a runner over the app's services. Task commands are
// tracked by pm so they can all be killed on shutdown.
func (a *app) newRunner(f runFlags, pm *runner.ProcessManager) *runner.Runner {
	rc := a.cfg.Runner
	if f.concurrency > 0 {
		rc.Concurrency = f.concurrency
	}
	if f.command != "" {
		rc.Command = f.command
	}
	timeout := rc.TaskTimeout.Std()
	if f.timeout > 0 {
		timeout = f.timeout
	}

	handler := &runner.CommandHandler{Default: rc.Command, Processes: pm}
	return runner.New(runner.Config{
		Concurrency: rc.Concurrency,
		TaskTimeout: timeout,
		Retry:       runner.RetryConfigFrom(rc.Retry),
		Breakers: runner.NewBreakerRegistry(runner.BreakerConfig{
			MaxFailures: rc.Breaker.MaxFailures,
			Timeout:     rc.Breaker.Timeout.Std(),
		}, a.logger),
		Bus:        a.bus,
		Logger:     a.logger,
		Checkpoint: a.save,
	}, a.store, a.sched, a.ctrl, handler)
}

// killOnCancel kills every tracked command once ctx ends. The returned func
// stops the watch.
func (a *app) killOnCancel(ctx context.Context, pm *runner.ProcessManager) func() bool {
	return context.AfterFunc(ctx, func() {
		if running := pm.Running(); len(running) > 0 {
			a.logger.Printf("WARNING: killing commands of %s", strings.Join(running, ", "))
		}
		if err := pm.KillAll(); err != nil {
			a.logger.Printf("ERROR: killing task commands: %v", err)
		}
	})
}

func runCmd(o *options) *cobra.Command {
	var (
		flags     runFlags
		flagQuiet bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run every eligible task's command, wave by wave, until nothing is left",
		Args:  cobra.NoArgs,
		RunE: withApp(o, func(cmd *cobra.Command, a *app, args []string) error {
			ctx := cmd.Context()
			pm := runner.NewProcessManager()
			defer a.killOnCancel(ctx, pm)()

			r := a.newRunner(flags, pm)

			sub := a.bus.Subscribe(events.TopicTask, events.DefaultBufferSize)
			streamed := make(chan struct{})
			go func() {
				defer close(streamed)
				for ev := range sub {
					if a.jsonOut {
						continue
					}
					switch e := ev.(type) {
					case events.TaskStartedEvent:
						fmt.Fprintf(a.out, "%s %s %s\n", taskPrefix(e.ID), cyan("started"), e.Title)
					case events.TaskOutputEvent:
						if !flagQuiet {
							fmt.Fprintf(a.out, "%s %s\n", taskPrefix(e.ID), e.Line)
						}
					case events.TaskCompletedEvent:
						fmt.Fprintf(a.out, "%s %s\n", taskPrefix(e.ID), green("done"))
					case events.TaskFailedEvent:
						fmt.Fprintf(a.out, "%s %s %s\n", taskPrefix(e.ID), red("failed"), dim(e.Reason))
					}
				}
			}()

			results, runErr := r.Run(ctx)
			a.bus.Unsubscribe(sub)
			<-streamed

			// Record where the run stopped even when it was interrupted.
			if err := a.save(context.WithoutCancel(ctx)); err != nil {
				return err
			}

			failed := 0
			for _, res := range results {
				if !res.Success {
					failed++
				}
			}

			if a.jsonOut {
				type result struct {
					TaskID   string  `json:"task_id"`
					Success  bool    `json:"success"`
					Attempts int     `json:"attempts"`
					Seconds  float64 `json:"duration_seconds"`
					Error    string  `json:"error,omitempty"`
				}
				out := make([]result, 0, len(results))
				for _, res := range results {
					row := result{TaskID: res.TaskID, Success: res.Success, Attempts: res.Attempts, Seconds: res.Duration.Seconds()}
					if res.Error != nil {
						row.Error = res.Error.Error()
					}
					out = append(out, row)
				}
				if err := outputJSON(a.out, out); err != nil {
					return err
				}
			} else {
				counts := a.store.Counts()
				fmt.Fprintf(a.out, "\n%s %d task(s) run, %s, %s; %d pending, %d blocked\n",
					bold("Summary:"), len(results),
					boldGreen(fmt.Sprintf("%d succeeded", len(results)-failed)),
					boldRed(fmt.Sprintf("%d failed", failed)),
					counts[task.StatusPending], counts[task.StatusBlocked])
			}

			if runErr != nil {
				if errors.Is(runErr, context.Canceled) {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s\n", yellow("Interrupted; progress saved."))
				}
				return runErr
			}
			if failed > 0 {
				return fmt.Errorf("%d task(s) failed", failed)
			}
			return nil
		}),
	}

	flags.register(cmd)
	cmd.Flags().BoolVarP(&flagQuiet, "quiet", "q", false, "Do not stream command output")
	return cmd
}

func boardCmd(o *options) *cobra.Command {
	var (
		flags   runFlags
		flagRun bool
	)

	cmd := &cobra.Command{
		Use:   "board",
		Short: "Open the interactive task board",
		Args:  cobra.NoArgs,
		RunE: withApp(o, func(cmd *cobra.Command, a *app, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			model := tui.New(tui.Options{
				Bus:               a.bus,
				Tasks:             a.store,
				Actions:           a.ctrl,
				User:              a.user,
				Config:            a.cfg,
				GlobalConfigPath:  a.globalPath,
				ProjectConfigPath: a.projectPath,
				OnChange:          func() error { return a.save(ctx) },
			})

			// Start Bubble Tea program in a goroutine so we can handle shutdown
			p := tea.NewProgram(model, tea.WithAltScreen())
			errChan := make(chan error, 1)
			go func() {
				_, err := p.Run()
				errChan <- err
			}()

			pm := runner.NewProcessManager()
			defer a.killOnCancel(ctx, pm)()
			runDone := make(chan struct{})
			if flagRun {
				r := a.newRunner(flags, pm)
				go func() {
					defer close(runDone)
					if _, err := r.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
						a.logger.Printf("ERROR: run: %v", err)
					}
				}()
			} else {
				close(runDone)
			}

			var tuiErr error
			select {
			case tuiErr = <-errChan:
				// Normal exit: stop the runner, if any, and its commands.
				cancel()
			case <-ctx.Done():
				p.Quit()
				shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
				defer stop()
				select {
				case tuiErr = <-errChan:
				case <-shutdownCtx.Done():
					fmt.Fprintln(os.Stderr, "Shutdown timeout exceeded, forcing exit")
				}
			}

			<-runDone
			if err := a.save(context.WithoutCancel(ctx)); err != nil {
				return err
			}
			return tuiErr
		}),
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&flagRun, "run", false, "Run eligible task commands while the board is open")
	return cmd
}
