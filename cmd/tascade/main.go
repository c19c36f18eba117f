package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// options holds the global flags shared by every command.
type options struct {
	configPath string
	backend    string
	storePath  string
	user       string
	jsonOut    bool
	verbose    bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	o := &options{}

	rootCmd := &cobra.Command{
		Use:   "tascade",
		Short: "Track tasks, keep their dependency graph sound and pick what to work on next",
		Long: `Tascade keeps a set of tasks with dependencies, validates and repairs the
dependency graph, ranks eligible work by priority and drives each task
through its lifecycle, by hand or by running a command per task.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&o.configPath, "config", "", "Config file (default ~/.tascade and .tascade)")
	rootCmd.PersistentFlags().StringVar(&o.backend, "backend", "", "Storage backend: json or sqlite (overrides config)")
	rootCmd.PersistentFlags().StringVar(&o.storePath, "store", "", "Task store path (overrides config)")
	rootCmd.PersistentFlags().StringVar(&o.user, "user", "", "User recorded in task history")
	rootCmd.PersistentFlags().BoolVar(&o.jsonOut, "json", false, "Machine-readable JSON output")
	rootCmd.PersistentFlags().BoolVarP(&o.verbose, "verbose", "v", false, "Log warnings and events to stderr")

	rootCmd.AddCommand(addCmd(o))
	rootCmd.AddCommand(listCmd(o))
	rootCmd.AddCommand(showCmd(o))

	rootCmd.AddCommand(validateCmd(o))
	rootCmd.AddCommand(fixCmd(o))
	rootCmd.AddCommand(chainCmd(o))
	rootCmd.AddCommand(blockedCmd(o))
	rootCmd.AddCommand(graphCmd(o))

	rootCmd.AddCommand(nextCmd(o))
	rootCmd.AddCommand(queueCmd(o))
	rootCmd.AddCommand(estimateCmd(o))

	for _, cmd := range lifecycleCmds(o) {
		rootCmd.AddCommand(cmd)
	}

	rootCmd.AddCommand(runCmd(o))
	rootCmd.AddCommand(boardCmd(o))

	return rootCmd
}
