package maid

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andoriyu/gazpacho/internal/config"
)

type fakeSource struct {
	local, destination []Artifact
}

func (f *fakeSource) LocalArtifacts(ctx context.Context, task *config.Task) ([]Artifact, error) {
	return f.local, nil
}

func (f *fakeSource) DestinationArtifacts(ctx context.Context, task *config.Task) ([]Artifact, error) {
	return f.destination, nil
}

func testConfig(cleanup *config.CleanupPolicy) *config.Config {
	return &config.Config{
		Daemon: config.Daemon{},
		Tasks: map[string]*config.Task{
			"t": {
				Name: "t",
				Strategy: config.StrategyConfig{
					Incremental: &config.IncrementalStrategy{
						Zpool:   "z",
						Filter:  ".*",
						Cleanup: cleanup,
					},
				},
			},
		},
	}
}

func TestCleanup_NoPolicyIsNoop(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	cfg := testConfig(nil)
	m := New(cfg, &fakeSource{}, log)

	m.Cleanup(context.Background())
	assert.Empty(t, buf.String())
}

func TestCleanup_LogsEligibleLocalArtifacts(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	count := 1
	cfg := testConfig(&config.CleanupPolicy{Local: &config.RetentionRule{Count: &count}})

	now := time.Now()
	source := &fakeSource{local: artifactsAt(now, 0, time.Hour, 2*time.Hour)}
	m := New(cfg, source, log)

	m.Cleanup(context.Background())
	assert.True(t, strings.Contains(buf.String(), "local artifacts eligible for pruning"))
}

func TestCleanup_NilSourceIsNoop(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	count := 1
	cfg := testConfig(&config.CleanupPolicy{Local: &config.RetentionRule{Count: &count}})
	m := New(cfg, nil, log)

	require.NotPanics(t, func() { m.Cleanup(context.Background()) })
}

func TestStart_RunsImmediateTickOnStartup(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	count := 1
	cfg := testConfig(&config.CleanupPolicy{Local: &config.RetentionRule{Count: &count}})
	cfg.Daemon.CleanupOnStartup = true

	now := time.Now()
	source := &fakeSource{local: artifactsAt(now, 0, time.Hour, 2*time.Hour)}
	m := New(cfg, source, log)

	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()
	assert.True(t, strings.Contains(buf.String(), "eligible for pruning"))
}
