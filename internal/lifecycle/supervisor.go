// Package lifecycle is the termination-signal collaborator (spec.md §4.5,
// component C6): it stops new task admission, cancels active runners,
// drains them within a grace period, and closes the durable store before
// process exit.
package lifecycle

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"
)

// Runner is the subset of *taskengine.Engine the supervisor drains.
type Runner interface {
	ActiveTasks() []string
	Cancel(taskName string)
	Drain(ctx context.Context) error
}

// Supervisor watches for SIGINT/SIGTERM and coordinates a graceful
// shutdown of the task engine and the history store.
type Supervisor struct {
	runner Runner
	store  io.Closer
	grace  time.Duration
	log    *slog.Logger

	draining atomic.Bool
}

func New(runner Runner, store io.Closer, grace time.Duration, log *slog.Logger) *Supervisor {
	if grace <= 0 {
		grace = 30 * time.Second
	}
	return &Supervisor{runner: runner, store: store, grace: grace, log: log}
}

// AcceptingNewRuns reports whether new ExecuteTask calls should still be
// admitted. Callers (the CLI, a scheduler) must check this before calling
// Engine.Execute once a shutdown has begun.
func (s *Supervisor) AcceptingNewRuns() bool { return !s.draining.Load() }

// Run blocks until a termination signal arrives or ctx is cancelled, then
// performs the shutdown sequence and returns.
func (s *Supervisor) Run(ctx context.Context) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		s.log.Info("received termination signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		s.log.Info("shutting down", slog.Any("reason", ctx.Err()))
	}
	s.Shutdown()
}

// Shutdown runs the drain-then-close sequence directly, without waiting
// for a signal. Safe to call more than once.
func (s *Supervisor) Shutdown() {
	if !s.draining.CompareAndSwap(false, true) {
		return
	}

	graceCtx, cancel := context.WithTimeout(context.Background(), s.grace)
	defer cancel()

	if active := s.runner.ActiveTasks(); len(active) > 0 {
		s.log.Info("draining active runs", slog.Any("tasks", active))
		if err := s.runner.Drain(graceCtx); err != nil {
			s.log.Warn("drain did not complete within grace period", slog.Any("error", err))
		}
	}

	if err := s.store.Close(); err != nil {
		s.log.Error("close history store", slog.Any("error", err))
	}
}
