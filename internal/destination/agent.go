package destination

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/sync/semaphore"

	"github.com/andoriyu/gazpacho/internal/config"
)

// SaveRequest is the work item handed to an Agent: splice readEnd into the
// configured destination, optionally through a streaming Zstd encoder.
type SaveRequest struct {
	Dataset     string
	Snapshot    string // "dataset@label", informational only
	Compression *config.Compression
	Read        io.Reader
	RunDate     time.Time
}

// Agent is a per-destination worker pool (spec.md §4.2, component C2). It
// is restartable: a failed Save never leaves the agent itself unusable.
type Agent struct {
	name string
	cfg  *config.Destination
	sem  *semaphore.Weighted
	log  *slog.Logger
}

func NewAgent(cfg *config.Destination, log *slog.Logger) *Agent {
	parallelism := cfg.Parallelism
	if parallelism < 1 {
		parallelism = 1
	}
	return &Agent{
		name: cfg.Name,
		cfg:  cfg,
		sem:  semaphore.NewWeighted(int64(parallelism)),
		log:  log,
	}
}

// Save ensures the destination directory exists, opens the target file,
// and copies req.Read into it (optionally Zstd-compressed), returning the
// total bytes written on success.
func (a *Agent) Save(ctx context.Context, req SaveRequest) (int64, error) {
	if err := a.sem.Acquire(ctx, 1); err != nil {
		return 0, fmt.Errorf("acquire destination %q slot: %w", a.name, err)
	}
	defer a.sem.Release(1)

	compressed := req.Compression != nil && req.Compression.Zstd != nil
	dir, file := layout(req.Dataset, req.RunDate, compressed)

	switch {
	case a.cfg.SSH != nil && a.cfg.Local != nil:
		return 0, &AmbiguousDestinationKindError{Name: a.name}
	case a.cfg.SSH == nil && a.cfg.Local == nil:
		return 0, &MissingDestinationKindError{Name: a.name}
	}

	kind, err := a.cfg.Kind()
	if err != nil {
		return 0, err
	}

	var s *sink
	switch k := kind.(type) {
	case *config.DestinationLocal:
		s, err = openLocalSink(k, dir, file, a.cfg.ChmodDir, a.cfg.ChmodFile)
	case *config.DestinationSSH:
		s, err = openSFTPSink(k, dir, file, a.cfg.ChmodDir, a.cfg.ChmodFile)
	default:
		err = fmt.Errorf("destination %q: unsupported kind %T", a.name, k)
	}
	if err != nil {
		return 0, err
	}
	defer s.Close()

	var w io.Writer = s
	var enc *zstd.Encoder
	if compressed {
		enc, err = zstd.NewWriter(s,
			zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(req.Compression.Zstd.Level)),
			zstd.WithEncoderConcurrency(req.Compression.Zstd.Workers))
		if err != nil {
			return 0, &IOError{Err: err}
		}
		w = enc
	}

	n, err := io.Copy(w, req.Read)
	if enc != nil {
		if cerr := enc.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	if err != nil {
		return n, &IOError{Err: err}
	}
	return n, nil
}
