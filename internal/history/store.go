package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store is the durable record of task runs, per-dataset steps and reset
// counters (spec.md §4.3). All access is funneled through a single
// goroutine via an inbox channel, mirroring the actor-style single-writer
// discipline the rest of this codebase uses for shared mutable state —
// SQLite tolerates one writer at a time far better than it tolerates
// lock contention from many.
type Store struct {
	db    *sql.DB
	inbox chan job
	done  chan struct{}
}

type job struct {
	run  func(*sql.DB) error
	done chan error
}

// Open opens (creating if absent) the sqlite database at path, applies the
// schema, probes writability, and starts the writer goroutine.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history store: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate history store: %w", err)
	}
	if _, err := db.Exec("PRAGMA user_version = 0"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history store is not writable: %w", err)
	}

	s := &Store{
		db:    db,
		inbox: make(chan job),
		done:  make(chan struct{}),
	}
	go s.loop()
	return s, nil
}

func (s *Store) loop() {
	defer close(s.done)
	for j := range s.inbox {
		j.done <- j.run(s.db)
	}
}

// Close stops accepting new work, waits for the writer goroutine to drain,
// and closes the underlying connection.
func (s *Store) Close() error {
	close(s.inbox)
	<-s.done
	return s.db.Close()
}

// do submits fn to the single writer goroutine and waits for it to run, or
// for ctx to be cancelled first.
func (s *Store) do(ctx context.Context, fn func(*sql.DB) error) error {
	j := job{run: fn, done: make(chan error, 1)}
	select {
	case s.inbox <- j:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-j.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func timestamp(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTimestamp(s string) (time.Time, error) { return time.Parse(time.RFC3339Nano, s) }
