package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTask = "test-task"

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestLastResetInfo_NoRow(t *testing.T) {
	s := openTestStore(t)
	info, err := s.LastResetInfo(context.Background(), testTask)
	require.NoError(t, err)
	assert.Nil(t, info)
}

// Mirrors the reference implementation's get_last_reset_info sequence:
// first reset with a timestamp, then two bare increments, then another
// reset with a fresh timestamp.
func TestUpdateResetCounts_Sequence(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	firstReset := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.UpdateResetCounts(ctx, testTask, &firstReset))

	info, err := s.LastResetInfo(ctx, testTask)
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.EqualValues(t, 0, info.Count)
	assert.True(t, firstReset.Equal(info.ResetAt))

	require.NoError(t, s.UpdateResetCounts(ctx, testTask, nil))
	info, err = s.LastResetInfo(ctx, testTask)
	require.NoError(t, err)
	assert.EqualValues(t, 1, info.Count)
	assert.True(t, firstReset.Equal(info.ResetAt))

	require.NoError(t, s.UpdateResetCounts(ctx, testTask, nil))
	info, err = s.LastResetInfo(ctx, testTask)
	require.NoError(t, err)
	assert.EqualValues(t, 2, info.Count)
	assert.True(t, firstReset.Equal(info.ResetAt))

	secondReset := time.Date(2024, 6, 8, 0, 0, 1, 0, time.UTC)
	require.NoError(t, s.UpdateResetCounts(ctx, testTask, &secondReset))
	info, err = s.LastResetInfo(ctx, testTask)
	require.NoError(t, err)
	assert.EqualValues(t, 0, info.Count)
	assert.True(t, secondReset.Equal(info.ResetAt))
}

func TestUpdateResetCounts_NoRowNoResetAtErrors(t *testing.T) {
	s := openTestStore(t)
	err := s.UpdateResetCounts(context.Background(), testTask, nil)
	assert.Error(t, err)
}

func TestTaskLogLifecycle(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	started := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	runID, err := s.InsertTaskLog(ctx, testTask, started)
	require.NoError(t, err)
	assert.Positive(t, runID)

	require.NoError(t, s.UpdateTaskLogState(ctx, runID, Completed, started.Add(time.Minute)))
}

func TestStepLogChain_FullThenIncremental(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	const pool, dataset = "z", "z/db"

	runID, err := s.InsertTaskLog(ctx, testTask, time.Now())
	require.NoError(t, err)

	// Full send: no source, so no source_super either.
	stepID, err := s.InsertStepLog(ctx, runID, testTask, pool, dataset,
		"gazpacho-20240601-1717200000", nil, time.Now())
	require.NoError(t, err)
	require.NoError(t, s.UpdateStepLog(ctx, stepID, Completed, time.Now()))

	sources, err := s.SourcesFor(ctx, testTask, pool, []string{dataset})
	require.NoError(t, err)
	assert.Equal(t, "z/db@gazpacho-20240601-1717200000", sources[dataset])

	// Incremental send carries source forward as source_super, since the
	// prior Completed step had none of its own.
	source := "gazpacho-20240601-1717200000"
	stepID2, err := s.InsertStepLog(ctx, runID, testTask, pool, dataset,
		"gazpacho-20240602-1717286400", &source, time.Now())
	require.NoError(t, err)
	require.NoError(t, s.UpdateStepLog(ctx, stepID2, Completed, time.Now()))

	sources, err = s.SourcesFor(ctx, testTask, pool, []string{dataset})
	require.NoError(t, err)
	assert.Equal(t, "z/db@gazpacho-20240602-1717286400", sources[dataset])
}

func TestSourcesFor_NoHistoryOmitsDataset(t *testing.T) {
	s := openTestStore(t)
	sources, err := s.SourcesFor(context.Background(), testTask, "z", []string{"z/none"})
	require.NoError(t, err)
	assert.Empty(t, sources)
}
