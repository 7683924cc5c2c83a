package destination

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andoriyu/gazpacho/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func TestLayout(t *testing.T) {
	runDate := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	dir, file := layout("z/db", runDate, false)
	assert.Equal(t, filepath.Join("2024", "06", "01"), dir)
	assert.Equal(t, "20240601-1717200000-z_db.zfs", file)
}

func TestLayout_Compressed(t *testing.T) {
	runDate := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	_, file := layout("z/db", runDate, true)
	assert.Equal(t, "20240601-1717200000-z_db.zfs.zst", file)
}

func TestAgent_SaveLocal(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Destination{
		Name:      "local1",
		ChmodFile: 0o600,
		ChmodDir:  0o700,
		Local:     &config.DestinationLocal{Folder: dir},
	}
	agent := NewAgent(cfg, testLogger())

	n, err := agent.Save(context.Background(), SaveRequest{
		Dataset: "z/db",
		RunDate: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		Read:    bytes.NewBufferString("hello stream"),
	})
	require.NoError(t, err)
	assert.EqualValues(t, len("hello stream"), n)

	out, err := os.ReadFile(filepath.Join(dir, "2024", "06", "01", "20240601-1717200000-z_db.zfs"))
	require.NoError(t, err)
	assert.Equal(t, "hello stream", string(out))
}

func TestRegistry_UnknownDestination(t *testing.T) {
	r := NewRegistry(testLogger())
	_, err := r.Save(context.Background(), "nope", SaveRequest{})
	require.Error(t, err)
	var uerr *UnknownDestinationError
	require.ErrorAs(t, err, &uerr)
}

func TestRegistry_RebuildOnlyKeepsReferencedDestinations(t *testing.T) {
	r := NewRegistry(testLogger())
	dir := t.TempDir()
	cfg := &config.Config{
		Destinations: map[string]*config.Destination{
			"used":   {Name: "used", Local: &config.DestinationLocal{Folder: dir}},
			"unused": {Name: "unused", Local: &config.DestinationLocal{Folder: dir}},
		},
		Tasks: map[string]*config.Task{
			"t": {Name: "t", DestinationName: "used"},
		},
	}
	r.Rebuild(cfg)

	_, err := r.Save(context.Background(), "used", SaveRequest{
		RunDate: time.Now(),
		Read:    bytes.NewBufferString(""),
	})
	require.NoError(t, err)

	_, err = r.Save(context.Background(), "unused", SaveRequest{})
	require.Error(t, err)
}
