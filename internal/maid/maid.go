package maid

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dsh2dsh/cron/v3"

	"github.com/andoriyu/gazpacho/internal/config"
)

// ArtifactSource supplies the candidate artifacts a Cleanup tick judges
// for one task. Actual destination/snapshot enumeration is left to the
// caller to wire (spec.md's FsGateway and DestinationRegistry contracts
// don't include a timestamped listing operation); a nil source makes
// Cleanup a no-op that only logs.
type ArtifactSource interface {
	LocalArtifacts(ctx context.Context, task *config.Task) ([]Artifact, error)
	DestinationArtifacts(ctx context.Context, task *config.Task) ([]Artifact, error)
}

// Maid is the scheduled cleanup collaborator. It holds no write access to
// FsGateway or DestinationRegistry; it only identifies pruning candidates
// and logs them.
type Maid struct {
	cfg    *config.Config
	source ArtifactSource
	log    *slog.Logger
	cron   *cron.Cron
}

func New(cfg *config.Config, source ArtifactSource, log *slog.Logger) *Maid {
	return &Maid{cfg: cfg, source: source, log: log, cron: cron.New()}
}

// Start schedules Cleanup on cfg.Daemon.CleanupInterval, optionally
// firing one immediate tick first when CleanupOnStartup is set. With no
// interval configured nothing is scheduled; the startup tick still fires
// if CleanupOnStartup is set.
func (m *Maid) Start(ctx context.Context) error {
	if m.cfg.Daemon.CleanupOnStartup {
		m.Cleanup(ctx)
	}
	if m.cfg.Daemon.CleanupInterval <= 0 {
		return nil
	}

	spec := fmt.Sprintf("@every %s", m.cfg.Daemon.CleanupInterval)
	_, err := m.cron.AddFunc(spec, func() { m.Cleanup(ctx) })
	if err != nil {
		return fmt.Errorf("schedule cleanup: %w", err)
	}
	m.cron.Start()
	return nil
}

// Stop halts the scheduler, waiting for any in-flight Cleanup to return.
func (m *Maid) Stop() {
	<-m.cron.Stop().Done()
}

// Cleanup scans every task with a configured retention policy and logs
// the artifacts that would be pruned.
func (m *Maid) Cleanup(ctx context.Context) {
	now := time.Now().UTC()
	for _, task := range m.cfg.Tasks {
		incr := task.Strategy.Incremental
		if incr == nil || incr.Cleanup == nil {
			continue
		}
		m.cleanupTask(ctx, task, incr.Cleanup, now)
	}
}

func (m *Maid) cleanupTask(ctx context.Context, task *config.Task, policy *config.CleanupPolicy, now time.Time) {
	if m.source == nil {
		m.log.Debug("cleanup tick fired with no artifact source configured", slog.String("task", task.Name))
		return
	}

	if policy.Local != nil {
		artifacts, err := m.source.LocalArtifacts(ctx, task)
		if err != nil {
			m.log.Warn("list local artifacts failed", slog.String("task", task.Name), slog.Any("error", err))
		} else if candidates := CandidatesForPruning(policy.Local, artifacts, now); len(candidates) > 0 {
			m.log.Info("local artifacts eligible for pruning",
				slog.String("task", task.Name), slog.Int("count", len(candidates)))
		}
	}

	if policy.Destination != nil {
		artifacts, err := m.source.DestinationArtifacts(ctx, task)
		if err != nil {
			m.log.Warn("list destination artifacts failed", slog.String("task", task.Name), slog.Any("error", err))
		} else if candidates := CandidatesForPruning(policy.Destination, artifacts, now); len(candidates) > 0 {
			m.log.Info("destination artifacts eligible for pruning",
				slog.String("task", task.Name), slog.Int("count", len(candidates)))
		}
	}
}
