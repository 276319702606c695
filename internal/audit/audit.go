// Copyright 2026 Red Hat
// SPDX-License-Identifier: Apache-2.0

// Package audit records batch invocations and their per-resource outcomes
// to a local SQLite database. Auditing is off by default and never
// affects batch semantics; a failed audit write is a warning, not an
// error.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Invocation describes one command run for the audit log.
type Invocation struct {
	Command      string
	SelectorMode string
	Identifiers  []string
	SyncMode     bool
}

// OutcomeRecord holds data for inserting one outcomes row.
type OutcomeRecord struct {
	ResourceID  string
	Node        string
	Action      string
	Status      string
	ErrorDetail string
}

// Auditor defines the contract for recording invocation audit data.
type Auditor interface {
	// StartInvocation creates an invocations row and returns its ID and
	// generated run UUID.
	StartInvocation(ctx context.Context, inv Invocation) (invocationID int64, runID string, err error)
	// RecordResolution stores how many guests resolved and how many
	// requested identifiers were missing.
	RecordResolution(ctx context.Context, id int64, resolved, missing int) error
	// RecordOutcome inserts one outcomes row.
	RecordOutcome(ctx context.Context, invocationID int64, o OutcomeRecord) error
	// CompleteInvocation finalises the invocations row.
	CompleteInvocation(ctx context.Context, id int64, status string, errSummary string) error
	// Close releases database resources.
	Close() error
}

// SQLiteAuditor implements Auditor backed by a SQLite database.
type SQLiteAuditor struct {
	db *sql.DB
}

// NewSQLiteAuditor opens (or creates) the SQLite database at dbPath and
// ensures the schema is applied.
func NewSQLiteAuditor(dbPath string) (*SQLiteAuditor, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating audit db directory: %w", err)
		}
	}

	dsn := dbPath + "?_journal_mode=WAL&_foreign_keys=on"
	if dbPath == ":memory:" {
		dsn = "file::memory:?mode=memory&cache=shared&_foreign_keys=on"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening audit db: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying audit schema: %w", err)
	}

	return &SQLiteAuditor{db: db}, nil
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (a *SQLiteAuditor) StartInvocation(ctx context.Context, inv Invocation) (int64, string, error) {
	runID := uuid.New().String()

	res, err := a.db.ExecContext(ctx, `
		INSERT INTO invocations (
			run_id, command, selector_mode, identifiers_csv, sync_mode,
			status, started_at
		) VALUES (?, ?, ?, ?, ?, 'in_progress', ?)`,
		runID, inv.Command, inv.SelectorMode,
		nullIfEmpty(strings.Join(inv.Identifiers, ",")),
		boolToInt(inv.SyncMode), now(),
	)
	if err != nil {
		return 0, "", fmt.Errorf("inserting invocation: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, "", fmt.Errorf("getting invocation id: %w", err)
	}
	return id, runID, nil
}

func (a *SQLiteAuditor) RecordResolution(ctx context.Context, id int64, resolved, missing int) error {
	_, err := a.db.ExecContext(ctx,
		`UPDATE invocations SET resolved_count = ?, missing_count = ? WHERE id = ?`,
		resolved, missing, id)
	return err
}

func (a *SQLiteAuditor) RecordOutcome(ctx context.Context, invocationID int64, o OutcomeRecord) error {
	_, err := a.db.ExecContext(ctx, `
		INSERT INTO outcomes (invocation_id, resource_id, node, action, status, error_detail, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		invocationID, o.ResourceID, nullIfEmpty(o.Node), o.Action, o.Status,
		nullIfEmpty(o.ErrorDetail), now(),
	)
	return err
}

func (a *SQLiteAuditor) CompleteInvocation(ctx context.Context, id int64, status string, errSummary string) error {
	_, err := a.db.ExecContext(ctx,
		`UPDATE invocations SET status = ?, completed_at = ?, error_summary = ? WHERE id = ?`,
		status, now(), nullIfEmpty(errSummary), id)
	return err
}

// DB returns the underlying sql.DB for testing purposes.
func (a *SQLiteAuditor) DB() *sql.DB {
	return a.db
}

func (a *SQLiteAuditor) Close() error {
	return a.db.Close()
}

// NoOpAuditor is an Auditor that does nothing, used when auditing is
// disabled.
type NoOpAuditor struct{}

func (NoOpAuditor) StartInvocation(_ context.Context, _ Invocation) (int64, string, error) {
	return 0, "", nil
}
func (NoOpAuditor) RecordResolution(_ context.Context, _ int64, _, _ int) error { return nil }
func (NoOpAuditor) RecordOutcome(_ context.Context, _ int64, _ OutcomeRecord) error {
	return nil
}
func (NoOpAuditor) CompleteInvocation(_ context.Context, _ int64, _ string, _ string) error {
	return nil
}
func (NoOpAuditor) Close() error { return nil }
