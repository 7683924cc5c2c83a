package taskengine

import (
	"context"
	"sync"
	"time"

	"github.com/andoriyu/gazpacho/internal/history"
)

// memStore is a minimal in-memory stand-in for *history.Store used to
// exercise Engine without a real sqlite file.
type memStore struct {
	mu    sync.Mutex
	runs  []*memRun
	steps []*memStep
	reset map[string]*history.ResetInfo
}

type memRun struct {
	id    int64
	task  string
	state history.CompletionState
}

type memStep struct {
	id     int64
	runID  int64
	state  history.CompletionState
	task   string
	pool   string
	dataset string
	snapshot string
}

func newMemStore() *memStore {
	return &memStore{reset: make(map[string]*history.ResetInfo)}
}

func (m *memStore) InsertTaskLog(ctx context.Context, task string, startedAt time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := int64(len(m.runs) + 1)
	m.runs = append(m.runs, &memRun{id: id, task: task, state: history.Pending})
	return id, nil
}

func (m *memStore) UpdateTaskLogState(ctx context.Context, runID int64, state history.CompletionState, completedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.runs {
		if r.id == runID {
			r.state = state
		}
	}
	return nil
}

func (m *memStore) InsertStepLog(ctx context.Context, runID int64, task, pool, dataset, snapshot string, source *string, startedAt time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := int64(len(m.steps) + 1)
	m.steps = append(m.steps, &memStep{id: id, runID: runID, state: history.Pending, task: task, pool: pool, dataset: dataset, snapshot: snapshot})
	return id, nil
}

func (m *memStore) UpdateStepLog(ctx context.Context, stepID int64, state history.CompletionState, completedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.steps {
		if s.id == stepID {
			s.state = state
		}
	}
	return nil
}

func (m *memStore) LastResetInfo(ctx context.Context, task string) (*history.ResetInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reset[task], nil
}

func (m *memStore) UpdateResetCounts(ctx context.Context, task string, resetAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	info := m.reset[task]
	switch {
	case resetAt != nil:
		m.reset[task] = &history.ResetInfo{Count: 0, ResetAt: *resetAt}
	case info != nil:
		info.Count++
	default:
		m.reset[task] = &history.ResetInfo{Count: 1}
	}
	return nil
}

func (m *memStore) SourcesFor(ctx context.Context, task, pool string, datasets []string) (map[string]string, error) {
	return nil, nil
}
