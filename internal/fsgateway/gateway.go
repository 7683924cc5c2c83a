// Package fsgateway is the thread-pool wrapper over the filesystem engine
// (spec.md §4.1, component C1): dataset discovery, snapshot creation and
// send streaming, all running on a fixed-size pool of blocking workers
// sized by configuration and never resized on reconfiguration.
package fsgateway

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"

	"golang.org/x/sync/semaphore"

	"github.com/andoriyu/gazpacho/internal/zfs"
)

// Gateway serializes access to the zfs CLI behind a bounded pool of
// concurrent workers. Submitters block until a slot is available; work
// items submitted concurrently are independent of each other.
type Gateway struct {
	sem *semaphore.Weighted
	log *slog.Logger
}

func New(parallelism int, log *slog.Logger) *Gateway {
	if parallelism < 1 {
		parallelism = 1
	}
	return &Gateway{sem: semaphore.NewWeighted(int64(parallelism)), log: log}
}

// ListDatasetsMatching enumerates filesystems and volumes under pool,
// filesystems first, then keeps only names matching filter. An empty
// result is not an error; a regex-unusable at this layer (filter is
// already compiled by the config layer) cannot occur here.
func (g *Gateway) ListDatasetsMatching(ctx context.Context, pool string, filter *regexp.Regexp) ([]string, error) {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire fsgateway slot: %w", err)
	}
	defer g.sem.Release(1)

	all, err := zfs.ListDatasets(ctx, pool)
	if err != nil {
		g.log.Warn("listDatasetsMatching failed", slog.String("pool", pool), slog.Any("error", err))
		return nil, err
	}

	matched := make([]string, 0, len(all))
	for _, d := range all {
		if filter.MatchString(d) {
			matched = append(matched, d)
		}
	}
	if len(matched) == 0 {
		g.log.Warn("listDatasetsMatching returned no datasets", slog.String("pool", pool))
	}
	return matched, nil
}

// SnapshotAll creates "dataset@label" for every dataset not already
// snapshotted at that label. Partial batch failure is surfaced as a
// single error; already-created snapshots remain.
func (g *Gateway) SnapshotAll(ctx context.Context, pool string, datasets []string, label string) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquire fsgateway slot: %w", err)
	}
	defer g.sem.Release(1)

	existing, err := zfs.ListSnapshots(ctx, pool)
	if err != nil {
		return fmt.Errorf("list existing snapshots: %w", err)
	}
	return zfs.CreateSnapshots(ctx, datasets, label, existing)
}

// SendFull streams a full send of dataset@label to w, blocking until the
// stream is fully emitted or w is closed.
func (g *Gateway) SendFull(ctx context.Context, dataset, label string, w io.Writer) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquire fsgateway slot: %w", err)
	}
	defer g.sem.Release(1)
	return zfs.SendFull(ctx, dataset+"@"+label, w)
}

// SendIncremental streams an incremental send from fromSnapshot (a full
// "dataset@label" string) to dataset@label.
func (g *Gateway) SendIncremental(ctx context.Context, dataset, label, fromSnapshot string, w io.Writer) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquire fsgateway slot: %w", err)
	}
	defer g.sem.Release(1)
	return zfs.SendIncremental(ctx, dataset+"@"+label, fromSnapshot, w)
}
