package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/spf13/cobra"

	"github.com/aristath/tascade/internal/config"
	"github.com/aristath/tascade/internal/events"
	"github.com/aristath/tascade/internal/lifecycle"
	"github.com/aristath/tascade/internal/persistence"
	"github.com/aristath/tascade/internal/scheduler"
	"github.com/aristath/tascade/internal/store"
)

// app is everything a command needs: the loaded tasks and the services
// working on them.
type app struct {
	cfg         *config.Config
	globalPath  string
	projectPath string

	backend persistence.Store
	store   *store.TaskStore
	ctrl    *lifecycle.Controller
	sched   *scheduler.Scheduler
	bus     *events.Bus
	logger  *log.Logger
	user    string

	out     io.Writer
	jsonOut bool

	saveMu  sync.Mutex
	watchWG sync.WaitGroup
}

// loadConfig resolves configuration. An explicit --config file replaces the
// conventional global and project files.
func (o *options) loadConfig() (cfg *config.Config, globalPath, projectPath string, err error) {
	if o.configPath != "" {
		cfg, err = config.Load("", o.configPath)
		return cfg, "", o.configPath, err
	}

	globalPath, projectPath, err = config.Paths()
	if err != nil {
		return nil, "", "", err
	}
	cfg, err = config.Load(globalPath, projectPath)
	return cfg, globalPath, projectPath, err
}

// open loads configuration and the task store and wires the services.
func (o *options) open(cmd *cobra.Command) (*app, error) {
	ctx := cmd.Context()

	cfg, globalPath, projectPath, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	if o.backend != "" {
		cfg.Storage.Backend = o.backend
	}
	if o.storePath != "" {
		cfg.Storage.Path = o.storePath
	}

	backend, err := persistence.Open(ctx, cfg.Storage.Backend, cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("open task store: %w", err)
	}
	ts, err := persistence.LoadStore(ctx, backend)
	if err != nil {
		backend.Close()
		return nil, fmt.Errorf("load tasks from %s: %w", cfg.Storage.Path, err)
	}

	logger := log.New(io.Discard, "", 0)
	if o.verbose {
		logger = log.New(cmd.ErrOrStderr(), "", log.LstdFlags)
	}

	user := o.user
	if user == "" {
		user = cfg.Lifecycle.DefaultUser
	}

	bus := events.NewBus()
	a := &app{
		cfg:         cfg,
		globalPath:  globalPath,
		projectPath: projectPath,
		backend:     backend,
		store:       ts,
		sched:       scheduler.New(ts, cfg.Scheduler.QueueLimit, cfg.Scheduler.DefaultComplexity),
		bus:         bus,
		logger:      logger,
		user:        user,
		out:         cmd.OutOrStdout(),
		jsonOut:     o.jsonOut,
	}
	a.ctrl = lifecycle.NewController(ts, lifecycle.ControllerConfig{
		DefaultUser: cfg.Lifecycle.DefaultUser,
		StrictStart: cfg.Lifecycle.StrictStart,
		Bus:         bus,
		Logger:      logger,
	})

	if o.verbose {
		a.watch()
	}
	return a, nil
}

// watch logs every published event until the bus closes.
func (a *app) watch() {
	sub := a.bus.SubscribeAll(events.DefaultBufferSize)
	a.watchWG.Add(1)
	go func() {
		defer a.watchWG.Done()
		for ev := range sub {
			if _, ok := ev.(events.TaskOutputEvent); ok {
				continue
			}
			if id := ev.TaskID(); id != "" {
				a.logger.Printf("event %s %s", ev.EventType(), id)
			} else {
				a.logger.Printf("event %s", ev.EventType())
			}
		}
	}()
}

// save writes the whole task set back to the backend.
func (a *app) save(ctx context.Context) error {
	a.saveMu.Lock()
	defer a.saveMu.Unlock()
	if err := persistence.SaveStore(ctx, a.backend, a.store); err != nil {
		return fmt.Errorf("save tasks: %w", err)
	}
	return nil
}

func (a *app) close() {
	a.bus.Close()
	a.watchWG.Wait()
	if err := a.backend.Close(); err != nil {
		a.logger.Printf("ERROR: closing task store: %v", err)
	}
}

// withApp opens the app around fn.
func withApp(o *options, fn func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := o.open(cmd)
		if err != nil {
			return err
		}
		defer a.close()
		return fn(cmd, a, args)
	}
}
