package fsgateway

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andoriyu/gazpacho/internal/zfs"
)

func fakeZfs(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake zfs script is a shell script")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "zfs")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755))
	return path
}

func TestListDatasetsMatching_EmptyResultLogsWarning(t *testing.T) {
	zfs.ZfsBin = fakeZfs(t, `true`)

	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	g := New(1, log)

	matched, err := g.ListDatasetsMatching(context.Background(), "z", regexp.MustCompile(".*"))
	require.NoError(t, err)
	assert.Empty(t, matched)
	assert.Contains(t, buf.String(), "no datasets")
}

func TestListDatasetsMatching_FiltersByRegex(t *testing.T) {
	zfs.ZfsBin = fakeZfs(t, `
case "$4" in
  filesystem) echo "z/db"; echo "z/home"; echo "z/tmp" ;;
esac
`)
	g := New(2, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	matched, err := g.ListDatasetsMatching(context.Background(), "z", regexp.MustCompile(`^z/(db|home)$`))
	require.NoError(t, err)
	assert.Equal(t, []string{"z/db", "z/home"}, matched)
}

func TestSnapshotAll_Idempotent(t *testing.T) {
	zfs.ZfsBin = fakeZfs(t, `
case "$1" in
  list) echo "z/db@l1" ;;
  snapshot) exit 0 ;;
esac
`)
	g := New(1, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	err := g.SnapshotAll(context.Background(), "z", []string{"z/db", "z/home"}, "l1")
	require.NoError(t, err)
}
