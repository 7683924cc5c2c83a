// Package monitor implements the Nagios-style "gazpacho monitor" check:
// it inspects HistoryStore for a task's most recent run and recent step
// durations and renders a monitoringplugin.Response, the CLI
// surface SPEC_FULL.md adds on top of spec.md's core daemon.
package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/dsh2dsh/go-monitoringplugin/v2"
	"github.com/montanaflynn/stats"

	"github.com/andoriyu/gazpacho/internal/history"
)

// History is the subset of *history.Store the check reads.
type History interface {
	LastTaskRun(ctx context.Context, task string) (*history.TaskRunSummary, error)
	StepDurationsFor(ctx context.Context, task string, window time.Duration, now time.Time) ([]history.StepDuration, error)
}

// TaskCheck evaluates one task's freshness and recent step durations
// against warn/crit age thresholds, mirroring the teacher's SnapCheck
// builder idiom adapted from per-snapshot age checks to per-task run
// history.
type TaskCheck struct {
	store  History
	resp   *monitoringplugin.Response
	window time.Duration
	warn   time.Duration
	crit   time.Duration
}

func NewTaskCheck(store History, resp *monitoringplugin.Response) *TaskCheck {
	return &TaskCheck{store: store, resp: resp, window: 7 * 24 * time.Hour}
}

func (c *TaskCheck) WithThresholds(warn, crit time.Duration) *TaskCheck {
	c.warn, c.crit = warn, crit
	return c
}

func (c *TaskCheck) WithWindow(window time.Duration) *TaskCheck {
	c.window = window
	return c
}

// Run evaluates task against the configured thresholds and records the
// result on the underlying Response. It never returns an error for a
// task that has simply never run -- that is itself a CRITICAL finding,
// not a plumbing failure.
func (c *TaskCheck) Run(ctx context.Context, task string) error {
	run, err := c.store.LastTaskRun(ctx, task)
	if err != nil {
		return fmt.Errorf("last run for %q: %w", task, err)
	}
	if run == nil {
		c.updateStatus(monitoringplugin.CRITICAL, "task %q has never run", task)
		return nil
	}

	switch run.State {
	case history.Failed:
		c.updateStatus(monitoringplugin.CRITICAL, "task %q last run failed", task)
		return nil
	case history.CompletedWithErrors:
		c.updateStatus(monitoringplugin.WARNING, "task %q last run completed with errors", task)
	case history.Pending:
		c.updateStatus(monitoringplugin.WARNING, "task %q is still running", task)
		return nil
	}

	age := time.Since(run.StartedAt)
	switch {
	case c.crit > 0 && age >= c.crit:
		c.updateStatus(monitoringplugin.CRITICAL, "task %q last ran %s ago", task, age.Truncate(time.Second))
		return nil
	case c.warn > 0 && age >= c.warn:
		c.updateStatus(monitoringplugin.WARNING, "task %q last ran %s ago", task, age.Truncate(time.Second))
	}

	if err := c.reportDurations(ctx, task); err != nil {
		return err
	}

	if run.State == history.Completed {
		c.updateStatus(monitoringplugin.OK, "task %q last ran %s ago", task, age.Truncate(time.Second))
	}
	return nil
}

// reportDurations folds step durations from the trailing window into
// p50/p95 performance data points, mirroring the teacher's habit of
// attaching machine-readable perfdata alongside the human message.
func (c *TaskCheck) reportDurations(ctx context.Context, task string) error {
	durations, err := c.store.StepDurationsFor(ctx, task, c.window, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("step durations for %q: %w", task, err)
	}
	if len(durations) == 0 {
		return nil
	}

	samples := make([]float64, len(durations))
	for i, d := range durations {
		samples[i] = d.Seconds
	}

	p50, err := stats.Percentile(samples, 50)
	if err != nil {
		return fmt.Errorf("p50 step duration for %q: %w", task, err)
	}
	p95, err := stats.Percentile(samples, 95)
	if err != nil {
		return fmt.Errorf("p95 step duration for %q: %w", task, err)
	}

	pd := monitoringplugin.NewPerformanceDataPoint("step_duration_p50_seconds", p50)
	if err := c.resp.AddPerformanceDataPoint(pd); err != nil {
		c.resp.UpdateStatus(monitoringplugin.WARNING, fmt.Sprintf("attach p50 perfdata: %v", err))
	}
	pd95 := monitoringplugin.NewPerformanceDataPoint("step_duration_p95_seconds", p95)
	if err := c.resp.AddPerformanceDataPoint(pd95); err != nil {
		c.resp.UpdateStatus(monitoringplugin.WARNING, fmt.Sprintf("attach p95 perfdata: %v", err))
	}
	return nil
}

func (c *TaskCheck) updateStatus(statusCode int, format string, a ...any) {
	c.resp.UpdateStatus(statusCode, fmt.Sprintf(format, a...))
}
