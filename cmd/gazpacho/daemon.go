package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dsh2dsh/cron/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/andoriyu/gazpacho/internal/config"
	"github.com/andoriyu/gazpacho/internal/destination"
	"github.com/andoriyu/gazpacho/internal/fsgateway"
	"github.com/andoriyu/gazpacho/internal/history"
	"github.com/andoriyu/gazpacho/internal/lifecycle"
	"github.com/andoriyu/gazpacho/internal/logging"
	"github.com/andoriyu/gazpacho/internal/maid"
	"github.com/andoriyu/gazpacho/internal/taskengine"
)

// runDaemon wires every component the way every invocation of
// `gazpacho` (no subcommand) runs: load config, open the history store,
// build FsGateway/Destinations/TaskEngine, schedule tasks that declare a
// cron expression, start Maid's cleanup scheduler, and block on
// LifecycleSupervisor until a termination signal arrives.
func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}

	store, err := history.Open(cfg.Daemon.Database)
	if err != nil {
		return fmt.Errorf("open history store at %q: %w", cfg.Daemon.Database, err)
	}

	fs := fsgateway.New(cfg.Parallelism, log.With(slog.String("component", "fsgateway")))
	dest := destination.NewRegistry(log.With(slog.String("component", "destination")))
	dest.Rebuild(cfg)

	reg := prometheus.NewRegistry()
	engine := taskengine.New(cfg, fs, dest, store, reg, log.With(slog.String("component", "taskengine")))

	supervisor := lifecycle.New(engine, store, 30*time.Second, log.With(slog.String("component", "lifecycle")))

	m := maid.New(cfg, nil, log.With(slog.String("component", "maid")))
	if err := m.Start(cmd.Context()); err != nil {
		return fmt.Errorf("start maid: %w", err)
	}
	defer m.Stop()

	sched, err := scheduleTasks(cfg, engine, supervisor, log.With(slog.String("component", "scheduler")))
	if err != nil {
		return fmt.Errorf("schedule tasks: %w", err)
	}
	defer func() { <-sched.Stop().Done() }()

	supervisor.Run(cmd.Context())
	return nil
}

// scheduleTasks registers a cron entry for every task that declares a
// Schedule expression. Tasks with no schedule are left to an external
// trigger and are never added here.
func scheduleTasks(cfg *config.Config, engine *taskengine.Engine, supervisor *lifecycle.Supervisor, log *slog.Logger) (*cron.Cron, error) {
	c := cron.New()
	for name, task := range cfg.Tasks {
		if task.Schedule == "" {
			continue
		}
		taskName := name
		_, err := c.AddFunc(task.Schedule, func() { triggerTask(context.Background(), engine, supervisor, taskName, log) })
		if err != nil {
			return nil, fmt.Errorf("task %q: invalid schedule %q: %w", name, task.Schedule, err)
		}
	}
	c.Start()
	return c, nil
}

func triggerTask(ctx context.Context, engine *taskengine.Engine, supervisor *lifecycle.Supervisor, name string, log *slog.Logger) {
	if !supervisor.AcceptingNewRuns() {
		log.Info("skipping scheduled run, shutting down", slog.String("task", name))
		return
	}
	if err := engine.Execute(ctx, name); err != nil {
		log.Error("scheduled task run failed", slog.String("task", name), slog.Any("error", err))
	}
}
