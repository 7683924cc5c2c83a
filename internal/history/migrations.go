package history

import "database/sql"

const schema = `
CREATE TABLE IF NOT EXISTS task_log (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	task         TEXT NOT NULL,
	state        TEXT NOT NULL,
	started_at   TEXT NOT NULL,
	completed_at TEXT
);

CREATE TABLE IF NOT EXISTS step_log (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id        INTEGER NOT NULL REFERENCES task_log(id),
	task          TEXT NOT NULL,
	pool          TEXT NOT NULL,
	dataset       TEXT NOT NULL,
	snapshot      TEXT NOT NULL,
	source        TEXT,
	source_super  TEXT,
	state         TEXT NOT NULL,
	started_at    TEXT NOT NULL,
	completed_at  TEXT
);

CREATE INDEX IF NOT EXISTS idx_step_log_lookup
	ON step_log (dataset, pool, task, state, completed_at);

CREATE TABLE IF NOT EXISTS reset_count (
	task     TEXT NOT NULL UNIQUE,
	count    INTEGER NOT NULL,
	reset_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_reset_count_task ON reset_count (task);
`

// migrate applies schema, which is purely additive and idempotent via
// "IF NOT EXISTS" — sufficient for a single-file embedded store at this
// scale, no external migration tool is warranted.
func migrate(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
