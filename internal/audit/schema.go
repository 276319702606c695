// Copyright 2026 Red Hat
// SPDX-License-Identifier: Apache-2.0

package audit

// schemaSQL contains the DDL for the audit database. Timestamps are
// stored as ISO 8601 TEXT for SQLite compatibility.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS invocations (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id          TEXT    NOT NULL UNIQUE,
	command         TEXT    NOT NULL,
	selector_mode   TEXT    NOT NULL,
	identifiers_csv TEXT,
	sync_mode       INTEGER NOT NULL DEFAULT 0,
	status          TEXT    NOT NULL DEFAULT 'in_progress',
	resolved_count  INTEGER,
	missing_count   INTEGER,
	started_at      TEXT    NOT NULL,
	completed_at    TEXT,
	error_summary   TEXT
);

CREATE INDEX IF NOT EXISTS idx_invocations_started_at ON invocations(started_at);
CREATE INDEX IF NOT EXISTS idx_invocations_command    ON invocations(command);
CREATE INDEX IF NOT EXISTS idx_invocations_run_id     ON invocations(run_id);

CREATE TABLE IF NOT EXISTS outcomes (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	invocation_id INTEGER NOT NULL REFERENCES invocations(id),
	resource_id   TEXT    NOT NULL,
	node          TEXT,
	action        TEXT    NOT NULL,
	status        TEXT    NOT NULL,
	error_detail  TEXT,
	occurred_at   TEXT    NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_outcomes_invocation_id ON outcomes(invocation_id);
CREATE INDEX IF NOT EXISTS idx_outcomes_resource_id   ON outcomes(resource_id);
`
