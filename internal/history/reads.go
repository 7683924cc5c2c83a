package history

import (
	"context"
	"database/sql"
	"time"
)

// TaskRunSummary is one task_log row, as read by the monitor and status
// surfaces (SPEC_FULL.md's supplemented read paths; not part of the core
// HistoryStore contract in spec.md §4.3).
type TaskRunSummary struct {
	ID          int64
	Task        string
	State       CompletionState
	StartedAt   time.Time
	CompletedAt *time.Time
}

// StepDuration is one completed step's wall-clock duration, used to
// compute p50/p95 summary statistics.
type StepDuration struct {
	Dataset  string
	Seconds  float64
	Bytes    int64
}

// LastTaskRun returns the most recently started run for task, or nil if
// none has ever run.
func (s *Store) LastTaskRun(ctx context.Context, task string) (*TaskRunSummary, error) {
	var summary *TaskRunSummary
	err := s.do(ctx, func(db *sql.DB) error {
		var id int64
		var state, startedAt string
		var completedAt sql.NullString
		err := db.QueryRow(
			`SELECT id, state, started_at, completed_at FROM task_log
			 WHERE task = ? ORDER BY started_at DESC LIMIT 1`, task).
			Scan(&id, &state, &startedAt, &completedAt)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return err
		}
		started, err := parseTimestamp(startedAt)
		if err != nil {
			return err
		}
		summary = &TaskRunSummary{ID: id, Task: task, State: CompletionState(state), StartedAt: started}
		if completedAt.Valid {
			t, err := parseTimestamp(completedAt.String)
			if err != nil {
				return err
			}
			summary.CompletedAt = &t
		}
		return nil
	})
	return summary, err
}

// RecentTaskRuns returns up to limit most recent runs across all tasks,
// newest first.
func (s *Store) RecentTaskRuns(ctx context.Context, limit int) ([]TaskRunSummary, error) {
	var out []TaskRunSummary
	err := s.do(ctx, func(db *sql.DB) error {
		rows, err := db.Query(
			`SELECT id, task, state, started_at, completed_at FROM task_log
			 ORDER BY started_at DESC LIMIT ?`, limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var r TaskRunSummary
			var state, startedAt string
			var completedAt sql.NullString
			if err := rows.Scan(&r.ID, &r.Task, &state, &startedAt, &completedAt); err != nil {
				return err
			}
			r.State = CompletionState(state)
			if r.StartedAt, err = parseTimestamp(startedAt); err != nil {
				return err
			}
			if completedAt.Valid {
				t, err := parseTimestamp(completedAt.String)
				if err != nil {
					return err
				}
				r.CompletedAt = &t
			}
			out = append(out, r)
		}
		return rows.Err()
	})
	return out, err
}

// StepDurationsFor returns the wall-clock duration of every Completed step
// for task within the last window, used to compute p50/p95 summary stats.
func (s *Store) StepDurationsFor(ctx context.Context, task string, window time.Duration, now time.Time) ([]StepDuration, error) {
	var out []StepDuration
	cutoff := timestamp(now.Add(-window))
	err := s.do(ctx, func(db *sql.DB) error {
		rows, err := db.Query(
			`SELECT dataset, started_at, completed_at FROM step_log
			 WHERE task = ? AND state = ? AND completed_at >= ?`,
			task, string(Completed), cutoff)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var dataset, startedAt, completedAt string
			if err := rows.Scan(&dataset, &startedAt, &completedAt); err != nil {
				return err
			}
			start, err := parseTimestamp(startedAt)
			if err != nil {
				return err
			}
			end, err := parseTimestamp(completedAt)
			if err != nil {
				return err
			}
			out = append(out, StepDuration{Dataset: dataset, Seconds: end.Sub(start).Seconds()})
		}
		return rows.Err()
	})
	return out, err
}
