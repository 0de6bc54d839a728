// Package database holds the relational side of report output. Dynamic
// reports land here: each compilation applies its rows in one transaction so
// a retried trigger either repeats the whole write or none of it.
package database

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/matchlog/matchlog/internal/logging"
	"github.com/matchlog/matchlog/internal/reports"
)

// DB wraps the report database connection.
type DB struct {
	conn   *sql.DB
	logger *logging.Logger
}

// migrations run at startup. Idempotent by construction.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS wow_match_combatants (
		partition_id VARCHAR NOT NULL,
		guid         VARCHAR NOT NULL,
		name         VARCHAR NOT NULL,
		spec_id      INTEGER NOT NULL,
		team         INTEGER NOT NULL,
		rating       INTEGER NOT NULL,
		ilvl         INTEGER NOT NULL,
		is_owner     BOOLEAN NOT NULL,
		PRIMARY KEY (partition_id, guid)
	)`,
	`CREATE TABLE IF NOT EXISTS wow_match_encounters (
		partition_id VARCHAR NOT NULL,
		encounter_id BIGINT NOT NULL,
		name         VARCHAR NOT NULL,
		difficulty   INTEGER NOT NULL,
		group_size   INTEGER NOT NULL,
		success      BOOLEAN NOT NULL,
		start_tm     TIMESTAMP NOT NULL,
		end_tm       TIMESTAMP,
		PRIMARY KEY (partition_id, encounter_id, start_tm)
	)`,
	`CREATE TABLE IF NOT EXISTS hs_match_summaries (
		partition_id VARCHAR PRIMARY KEY,
		match_start  TIMESTAMP,
		match_end    TIMESTAMP,
		num_turns    INTEGER NOT NULL,
		players      VARCHAR NOT NULL
	)`,
}

// Open opens (or creates) the database at path and applies migrations.
// Use ":memory:" for tests.
func Open(path string, logger *logging.Logger) (*DB, error) {
	conn, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open report database: %w", err)
	}

	for _, stmt := range migrations {
		if _, err := conn.Exec(stmt); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to migrate report database: %w", err)
		}
	}

	return &DB{
		conn:   conn,
		logger: logger.With("component", "database"),
	}, nil
}

// CommitReports applies every dynamic report inside one transaction.
func (d *DB) CommitReports(ctx context.Context, reps []reports.DynamicReport) error {
	if len(reps) == 0 {
		return nil
	}

	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin report transaction: %w", err)
	}

	for _, rep := range reps {
		if err := rep.Apply(ctx, tx); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to apply report %s/%s: %w", rep.Canonical(), rep.Name(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit reports: %w", err)
	}

	d.logger.Debug("Committed dynamic reports", "count", len(reps))
	return nil
}

// Conn exposes the underlying connection for queries.
func (d *DB) Conn() *sql.DB { return d.conn }

func (d *DB) Close() error { return d.conn.Close() }
