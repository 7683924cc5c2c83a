package taskengine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/andoriyu/gazpacho/internal/config"
	"github.com/andoriyu/gazpacho/internal/destination"
	"github.com/andoriyu/gazpacho/internal/history"
)

// runPipeline implements spec.md §4.4.2: discover, snapshot, decide reset,
// resolve sources, fan out per-dataset pipelines bounded by task
// parallelism, and join. It returns the run's final state, the resetAt
// timestamp to hand to UpdateResetCounts (nil when no reset was decided),
// and the aggregate error (nil, *PartialErrorsError, or a pre-pipeline
// fatal error).
func (e *Engine) runPipeline(ctx context.Context, task *config.Task, runID int64, now time.Time) (history.CompletionState, *time.Time, error) {
	strategy, err := task.Strategy.Strategy(task.Name)
	if err != nil {
		return history.Failed, nil, err
	}
	zpool, filter, err := strategy.ZpoolAndFilter()
	if err != nil {
		return history.Failed, nil, err
	}

	label := fmt.Sprintf("gazpacho-%s-%d", now.Format("20060102"), now.Unix())

	datasets, err := e.fs.ListDatasetsMatching(ctx, zpool, filter)
	if err != nil {
		return history.Failed, nil, fmt.Errorf("discover datasets for %q: %w", task.Name, err)
	}

	snapshots := make([]string, len(datasets))
	for i, d := range datasets {
		snapshots[i] = d + "@" + label
	}
	if err := e.fs.SnapshotAll(ctx, zpool, datasets, label); err != nil {
		return history.Failed, nil, fmt.Errorf("snapshot %q: %w", task.Name, err)
	}

	info, err := e.store.LastResetInfo(ctx, task.Name)
	if err != nil {
		return history.Failed, nil, fmt.Errorf("last reset info for %q: %w", task.Name, err)
	}
	reset := needsReset(strategy, info, now)
	var resetAt *time.Time
	if reset {
		resetAt = &now
	}

	if len(datasets) == 0 {
		return history.Completed, resetAt, nil
	}

	var sources map[string]string
	if !reset {
		sources, err = e.store.SourcesFor(ctx, task.Name, zpool, datasets)
		if err != nil {
			return history.Failed, resetAt, fmt.Errorf("resolve sources for %q: %w", task.Name, err)
		}
	}

	parallelism := task.Parallelism
	if parallelism < 1 {
		parallelism = 1
	}
	sem := semaphore.NewWeighted(int64(parallelism))

	var wg sync.WaitGroup
	errs := make([]*DatasetError, len(datasets))
	for i, dataset := range datasets {
		i, dataset := i, dataset
		var source *string
		if s, ok := sources[dataset]; ok {
			source = &s
		}

		if err := sem.Acquire(ctx, 1); err != nil {
			errs[i] = &DatasetError{Dataset: dataset, Kind: DatasetErrorOther, Err: err}
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			errs[i] = e.runDatasetPipeline(ctx, task, runID, zpool, dataset, label, source, now)
		}()
	}
	wg.Wait()

	var failed []*DatasetError
	for _, de := range errs {
		if de != nil {
			failed = append(failed, de)
		}
	}

	switch {
	case len(failed) == 0:
		return history.Completed, resetAt, nil
	case len(failed) == len(datasets):
		return history.Failed, resetAt, &PartialErrorsError{Errors: failed}
	default:
		return history.CompletedWithErrors, resetAt, &PartialErrorsError{Errors: failed}
	}
}

// runDatasetPipeline implements spec.md §4.4.3: insert a Pending step log,
// splice a producer send through a pipe into a consumer save, and record
// the result. The step is Completed iff both sub-tasks succeeded.
func (e *Engine) runDatasetPipeline(ctx context.Context, task *config.Task, runID int64, pool, dataset, label string, source *string, runDate time.Time) *DatasetError {
	stepID, err := e.store.InsertStepLog(ctx, runID, task.Name, pool, dataset, label, source, time.Now().UTC())
	if err != nil {
		return &DatasetError{Dataset: dataset, Kind: DatasetErrorSql, Err: err}
	}

	r, w, err := os.Pipe()
	if err != nil {
		_ = e.store.UpdateStepLog(ctx, stepID, history.Failed, time.Now().UTC())
		return &DatasetError{Dataset: dataset, Kind: DatasetErrorPipe, Err: err}
	}

	var sendErr, saveErr error
	var bytesWritten int64

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer w.Close()
		if source != nil {
			sendErr = e.fs.SendIncremental(ctx, dataset, label, *source, w)
		} else {
			sendErr = e.fs.SendFull(ctx, dataset, label, w)
		}
	}()
	go func() {
		defer wg.Done()
		defer r.Close()
		bytesWritten, saveErr = e.dest.Save(ctx, task.DestinationName, destination.SaveRequest{
			Dataset:     dataset,
			Snapshot:    dataset + "@" + label,
			Compression: task.Compression,
			Read:        r,
			RunDate:     runDate,
		})
	}()
	wg.Wait()

	state := history.Completed
	var stepErr *DatasetError
	if sendErr != nil || saveErr != nil {
		state = history.Failed
		switch {
		case sendErr != nil && saveErr != nil:
			stepErr = &DatasetError{Dataset: dataset, Kind: DatasetErrorSendFailure, Err: fmt.Errorf("send: %w; save: %v", sendErr, saveErr)}
		case sendErr != nil:
			stepErr = &DatasetError{Dataset: dataset, Kind: DatasetErrorSendFailure, Err: sendErr}
		default:
			stepErr = &DatasetError{Dataset: dataset, Kind: DatasetErrorOther, Err: saveErr}
		}
	} else {
		e.mx.bytesReplicated.WithLabelValues(dataset).Add(float64(bytesWritten))
	}

	if err := e.store.UpdateStepLog(ctx, stepID, state, time.Now().UTC()); err != nil {
		e.log.Error("update step log failed", slog.String("dataset", dataset), slog.Any("error", err))
	}

	return stepErr
}
