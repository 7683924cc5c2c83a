package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// InsertTaskLog records the start of a task run and returns its id.
func (s *Store) InsertTaskLog(ctx context.Context, task string, startedAt time.Time) (int64, error) {
	var id int64
	err := s.do(ctx, func(db *sql.DB) error {
		res, err := db.Exec(
			`INSERT INTO task_log (task, state, started_at) VALUES (?, ?, ?)`,
			task, string(Pending), timestamp(startedAt))
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}

// UpdateTaskLogState records the final state of a task run.
func (s *Store) UpdateTaskLogState(ctx context.Context, runID int64, state CompletionState, completedAt time.Time) error {
	return s.do(ctx, func(db *sql.DB) error {
		_, err := db.Exec(
			`UPDATE task_log SET state = ?, completed_at = ? WHERE id = ?`,
			string(state), timestamp(completedAt), runID)
		return err
	})
}

// InsertStepLog records the start of one dataset's step within a run. When
// source is non-nil, sourceSuper is carried forward from the most recently
// Completed step for the same (dataset, pool, task) triple, falling back
// to source itself when no such predecessor exists — this is the
// incremental-chain anchor consulted by later source resolution (spec.md
// §4.3). When source is nil (a full send), sourceSuper stays nil too.
func (s *Store) InsertStepLog(ctx context.Context, runID int64, task, pool, dataset, snapshot string, source *string, startedAt time.Time) (int64, error) {
	var id int64
	err := s.do(ctx, func(db *sql.DB) error {
		var sourceSuper *string
		if source != nil {
			var prevSuper sql.NullString
			err := db.QueryRow(
				`SELECT source_super FROM step_log
				 WHERE dataset = ? AND pool = ? AND task = ? AND state = ?
				 ORDER BY completed_at DESC LIMIT 1`,
				dataset, pool, task, string(Completed)).Scan(&prevSuper)
			if err != nil && !errors.Is(err, sql.ErrNoRows) {
				return err
			}
			if prevSuper.Valid {
				v := prevSuper.String
				sourceSuper = &v
			} else {
				sourceSuper = source
			}
		}

		var srcArg, superArg any
		if source != nil {
			srcArg = *source
		}
		if sourceSuper != nil {
			superArg = *sourceSuper
		}

		res, err := db.Exec(
			`INSERT INTO step_log (run_id, task, pool, dataset, snapshot, source, source_super, state, started_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, task, pool, dataset, snapshot, srcArg, superArg, string(Pending), timestamp(startedAt))
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}

// UpdateStepLog records the final state of one dataset's step.
func (s *Store) UpdateStepLog(ctx context.Context, stepID int64, state CompletionState, completedAt time.Time) error {
	return s.do(ctx, func(db *sql.DB) error {
		_, err := db.Exec(
			`UPDATE step_log SET state = ?, completed_at = ? WHERE id = ?`,
			string(state), timestamp(completedAt), stepID)
		return err
	})
}

// ResetInfo is the last known reset state for a task.
type ResetInfo struct {
	Count   int64
	ResetAt time.Time
}

// LastResetInfo looks up the current reset counter for a task, if any run
// has recorded one yet.
func (s *Store) LastResetInfo(ctx context.Context, task string) (*ResetInfo, error) {
	var info *ResetInfo
	err := s.do(ctx, func(db *sql.DB) error {
		var count int64
		var resetAt string
		err := db.QueryRow(
			`SELECT count, reset_at FROM reset_count WHERE task = ?`, task).Scan(&count, &resetAt)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		t, err := parseTimestamp(resetAt)
		if err != nil {
			return fmt.Errorf("parse reset_at: %w", err)
		}
		info = &ResetInfo{Count: count, ResetAt: t}
		return nil
	})
	return info, err
}

// UpdateResetCounts advances the reset counter for a task after a run
// completes, per spec.md §4.3:
//
//   - no existing row:            require resetAt, insert count=0
//   - row exists, resetAt given:  count resets to 0, resetAt is updated
//   - row exists, resetAt nil:    count increments, resetAt is unchanged
//
// A run's overall outcome (even Failed) still advances this counter —
// the reset clock tracks elapsed runs/time, not success.
func (s *Store) UpdateResetCounts(ctx context.Context, task string, resetAt *time.Time) error {
	return s.do(ctx, func(db *sql.DB) error {
		var exists bool
		var count int64
		var lastResetAt string
		err := db.QueryRow(
			`SELECT count, reset_at FROM reset_count WHERE task = ?`, task).Scan(&count, &lastResetAt)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			exists = false
		case err != nil:
			return err
		default:
			exists = true
		}

		if !exists {
			if resetAt == nil {
				return fmt.Errorf("update reset counts for %q: no existing row and no resetAt given", task)
			}
			_, err := db.Exec(
				`INSERT INTO reset_count (task, count, reset_at) VALUES (?, 0, ?)`,
				task, timestamp(*resetAt))
			return err
		}

		if resetAt != nil {
			_, err := db.Exec(
				`UPDATE reset_count SET count = 0, reset_at = ? WHERE task = ?`,
				timestamp(*resetAt), task)
			return err
		}

		_, err = db.Exec(
			`UPDATE reset_count SET count = ? WHERE task = ?`, count+1, task)
		return err
	})
}

// SourcesFor returns, for each dataset that has a completed step on
// record, "<dataset>@<snapshot>" built from that step's most recent
// snapshot label. Datasets with no completed step are absent from the
// result, signalling that a full send is required.
func (s *Store) SourcesFor(ctx context.Context, task, pool string, datasets []string) (map[string]string, error) {
	result := make(map[string]string, len(datasets))
	err := s.do(ctx, func(db *sql.DB) error {
		for _, dataset := range datasets {
			var snapshot string
			err := db.QueryRow(
				`SELECT snapshot FROM step_log
				 WHERE dataset = ? AND pool = ? AND task = ? AND state = ?
				 ORDER BY completed_at DESC LIMIT 1`,
				dataset, pool, task, string(Completed)).Scan(&snapshot)
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			if err != nil {
				return err
			}
			result[dataset] = fmt.Sprintf("%s@%s", dataset, snapshot)
		}
		return nil
	})
	return result, err
}
