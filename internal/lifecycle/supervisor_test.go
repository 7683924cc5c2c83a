package lifecycle

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	active      []string
	drainCalled bool
	drainErr    error
}

func (f *fakeRunner) ActiveTasks() []string { return f.active }
func (f *fakeRunner) Cancel(string)         {}
func (f *fakeRunner) Drain(ctx context.Context) error {
	f.drainCalled = true
	return f.drainErr
}

type fakeCloser struct{ closed bool }

func (f *fakeCloser) Close() error { f.closed = true; return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func TestShutdown_DrainsActiveRunsAndClosesStore(t *testing.T) {
	runner := &fakeRunner{active: []string{"t"}}
	store := &fakeCloser{}
	s := New(runner, store, time.Second, testLogger())

	s.Shutdown()

	assert.True(t, runner.drainCalled)
	assert.True(t, store.closed)
	assert.False(t, s.AcceptingNewRuns())
}

func TestShutdown_NoActiveRunsSkipsDrain(t *testing.T) {
	runner := &fakeRunner{}
	store := &fakeCloser{}
	s := New(runner, store, time.Second, testLogger())

	s.Shutdown()

	assert.False(t, runner.drainCalled)
	assert.True(t, store.closed)
}

func TestShutdown_Idempotent(t *testing.T) {
	runner := &fakeRunner{}
	store := &fakeCloser{}
	s := New(runner, store, time.Second, testLogger())

	s.Shutdown()
	s.Shutdown()

	assert.True(t, store.closed)
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	runner := &fakeRunner{}
	store := &fakeCloser{}
	s := New(runner, store, time.Second, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
	require.True(t, store.closed)
}
