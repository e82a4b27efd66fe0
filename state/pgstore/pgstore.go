// Copyright (c) Fieldward, Inc.
// SPDX-License-Identifier: BUSL-1.1

// Package pgstore is the PostgreSQL state.Store backend. It mirrors the
// in-memory store's semantics row for row: conditional writes carry the
// same idempotence keys, multi-row side effects run in one transaction,
// and claims take row locks so concurrent agents never double-process.
package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/fieldward/fieldward/state"
)

const (
	// driverName is the database/sql registration of the pgx v5 driver.
	driverName = "pgx"

	defaultMaxOpenConns = 16
	defaultMaxIdleConns = 4
	defaultConnLifetime = 30 * time.Minute
)

// PGStore implements state.Store on PostgreSQL.
type PGStore struct {
	db     *sqlx.DB
	logger hclog.Logger
}

var _ state.Store = (*PGStore)(nil)

// Open connects to the database and verifies the connection. It does not
// run migrations; callers run Migrate explicitly or via the migrate
// command.
func Open(ctx context.Context, dsn string, logger hclog.Logger) (*PGStore, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	db, err := sqlx.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("database open failed: %w", err)
	}
	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetMaxIdleConns(defaultMaxIdleConns)
	db.SetConnMaxLifetime(defaultConnLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	return New(db, logger), nil
}

// New wraps an existing connection pool. Tests use this with a mock driver.
func New(db *sqlx.DB, logger hclog.Logger) *PGStore {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &PGStore{
		db:     db,
		logger: logger.Named("pgstore"),
	}
}

func (s *PGStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PGStore) Close() error {
	return s.db.Close()
}

// withTx runs fn inside a transaction, rolling back on error.
func (s *PGStore) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("transaction begin failed: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.Error("transaction rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("transaction commit failed: %w", err)
	}
	return nil
}

// getContext runs a single-row query, mapping no-rows to (zero, nil) the
// way the in-memory store returns nil for missing entities.
func getContext[T any](ctx context.Context, q sqlx.QueryerContext, query string, args ...any) (*T, error) {
	var row T
	if err := sqlx.GetContext(ctx, q, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query failed: %w", err)
	}
	return &row, nil
}

func selectContext[T any](ctx context.Context, q sqlx.QueryerContext, query string, args ...any) ([]T, error) {
	var rows []T
	if err := sqlx.SelectContext(ctx, q, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	return rows, nil
}

// uniqueViolation reports whether err is a Postgres unique-constraint
// violation, which upserts translate to a ConflictError.
func uniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// limitArg converts a non-positive limit to NULL, which Postgres treats
// as no limit.
func limitArg(limit int) any {
	if limit <= 0 {
		return nil
	}
	return limit
}

// mustJSON marshals nested structures into their jsonb columns. The inputs
// are always marshalable domain types, so a failure is a programming error
// surfaced loudly rather than swallowed.
func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("jsonb marshal failed: %v", err))
	}
	return b
}

func fromJSON[T any](raw []byte) (T, error) {
	var out T
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("jsonb unmarshal failed: %w", err)
	}
	return out, nil
}
