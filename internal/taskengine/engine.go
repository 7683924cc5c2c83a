// Package taskengine orchestrates one task run end-to-end: discovery,
// snapshotting, the reset decision, incremental source resolution,
// bounded-parallel per-dataset pipelines, and the final counter update
// (spec.md §4.4, component C5 — the planner/executor).
package taskengine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/andoriyu/gazpacho/internal/config"
	"github.com/andoriyu/gazpacho/internal/destination"
	"github.com/andoriyu/gazpacho/internal/history"
)

// FsGateway is the subset of *fsgateway.Gateway the engine depends on.
type FsGateway interface {
	ListDatasetsMatching(ctx context.Context, pool string, filter *regexp.Regexp) ([]string, error)
	SnapshotAll(ctx context.Context, pool string, datasets []string, label string) error
	SendFull(ctx context.Context, dataset, label string, w io.Writer) error
	SendIncremental(ctx context.Context, dataset, label, fromSnapshot string, w io.Writer) error
}

// Destinations is the subset of *destination.Registry the engine depends
// on.
type Destinations interface {
	Save(ctx context.Context, dest string, req destination.SaveRequest) (int64, error)
}

// History is the subset of *history.Store the engine depends on.
type History interface {
	InsertTaskLog(ctx context.Context, task string, startedAt time.Time) (int64, error)
	UpdateTaskLogState(ctx context.Context, runID int64, state history.CompletionState, completedAt time.Time) error
	InsertStepLog(ctx context.Context, runID int64, task, pool, dataset, snapshot string, source *string, startedAt time.Time) (int64, error)
	UpdateStepLog(ctx context.Context, stepID int64, state history.CompletionState, completedAt time.Time) error
	LastResetInfo(ctx context.Context, task string) (*history.ResetInfo, error)
	UpdateResetCounts(ctx context.Context, task string, resetAt *time.Time) error
	SourcesFor(ctx context.Context, task, pool string, datasets []string) (map[string]string, error)
}

// Engine is the one instance shared by every ExecuteTask caller. It never
// mutates its configuration: cfg is the Config handed to New and is only
// read, matching Configuration's "immutable after load" lifecycle
// (spec.md §3).
type Engine struct {
	cfg   *config.Config
	fs    FsGateway
	dest  Destinations
	store History
	log   *slog.Logger
	mx    *metrics

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

func New(cfg *config.Config, fs FsGateway, dest Destinations, store History, reg prometheus.Registerer, log *slog.Logger) *Engine {
	return &Engine{
		cfg:     cfg,
		fs:      fs,
		dest:    dest,
		store:   store,
		log:     log,
		mx:      newMetrics(reg),
		running: make(map[string]context.CancelFunc),
	}
}

// Execute runs the 8-step contract of spec.md §4.4.1 for taskName.
func (e *Engine) Execute(ctx context.Context, taskName string) error {
	e.mu.Lock()
	if _, busy := e.running[taskName]; busy {
		e.mu.Unlock()
		return &AlreadyRunningError{Task: taskName}
	}
	runCtx, cancel := context.WithCancel(ctx)
	e.running[taskName] = cancel
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.running, taskName)
		e.mu.Unlock()
		cancel()
	}()

	task, ok := e.cfg.Tasks[taskName]
	if !ok {
		return &TaskNotFoundError{Task: taskName}
	}

	now := time.Now().UTC()
	runID, err := e.store.InsertTaskLog(runCtx, taskName, now)
	if err != nil {
		return fmt.Errorf("insert task log for %q: %w", taskName, err)
	}

	state, needsResetAt, runErr := e.runPipeline(runCtx, task, runID, now)

	if err := e.store.UpdateTaskLogState(context.WithoutCancel(runCtx), runID, state, time.Now().UTC()); err != nil {
		e.log.Error("update task log state failed", slog.String("task", taskName), slog.Any("error", err))
	}
	if err := e.store.UpdateResetCounts(context.WithoutCancel(runCtx), taskName, needsResetAt); err != nil {
		e.log.Error("update reset counts failed", slog.String("task", taskName), slog.Any("error", err))
	}
	e.mx.secsPerState.WithLabelValues(string(state)).Observe(time.Since(now).Seconds())

	return runErr
}

// Cancel signals the active runner for taskName, if any, to unwind. It is
// used by LifecycleSupervisor during a drain.
func (e *Engine) Cancel(taskName string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cancel, ok := e.running[taskName]; ok {
		cancel()
	}
}

// ActiveTasks lists the names of currently running tasks.
func (e *Engine) ActiveTasks() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	names := make([]string, 0, len(e.running))
	for name := range e.running {
		names = append(names, name)
	}
	return names
}

// Drain cancels every active runner and blocks until none remain or ctx is
// done, whichever comes first. It is used by LifecycleSupervisor during
// shutdown (spec.md §4.5).
func (e *Engine) Drain(ctx context.Context) error {
	for _, name := range e.ActiveTasks() {
		e.Cancel(name)
	}

	ticker := time.NewTicker(25 * time.Millisecond)
	defer ticker.Stop()
	for {
		if len(e.ActiveTasks()) == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
