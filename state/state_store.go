// Copyright (c) Fieldward, Inc.
// SPDX-License-Identifier: BUSL-1.1

package state

import (
	"context"
	"fmt"
	"sort"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-memdb"
)

// StateStore is the in-memory Store backend. It backs -dev agents and
// tests. Reads return deep copies, so callers may mutate results freely
// and nothing escapes an aborted transaction.
type StateStore struct {
	db     *memdb.MemDB
	logger hclog.Logger
}

var _ Store = (*StateStore)(nil)

// NewStateStore builds an empty in-memory store.
func NewStateStore(logger hclog.Logger) (*StateStore, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	db, err := memdb.NewMemDB(stateStoreSchema())
	if err != nil {
		return nil, fmt.Errorf("state store setup failed: %w", err)
	}
	return &StateStore{
		db:     db,
		logger: logger.Named("state_store"),
	}, nil
}

func (s *StateStore) Ping(context.Context) error { return nil }

func (s *StateStore) Close() error { return nil }

// copier constrains stored objects to those exposing a deep Copy.
type copier[T any] interface {
	Copy() T
}

// first returns a copy of the first match, or the zero value when absent.
func first[T copier[T]](txn *memdb.Txn, table, index string, args ...any) (T, error) {
	var zero T
	raw, err := txn.First(table, index, args...)
	if err != nil {
		return zero, fmt.Errorf("%s lookup failed: %w", table, err)
	}
	if raw == nil {
		return zero, nil
	}
	return raw.(T).Copy(), nil
}

// list returns copies of every match of one index.
func list[T copier[T]](txn *memdb.Txn, table, index string, args ...any) ([]T, error) {
	iter, err := txn.Get(table, index, args...)
	if err != nil {
		return nil, fmt.Errorf("%s lookup failed: %w", table, err)
	}
	var out []T
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		out = append(out, raw.(T).Copy())
	}
	return out, nil
}

// filtered returns copies of every match passing keep.
func filtered[T copier[T]](txn *memdb.Txn, table, index string, keep func(T) bool, args ...any) ([]T, error) {
	iter, err := txn.Get(table, index, args...)
	if err != nil {
		return nil, fmt.Errorf("%s lookup failed: %w", table, err)
	}
	var out []T
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		obj := raw.(T)
		if keep(obj) {
			out = append(out, obj.Copy())
		}
	}
	return out, nil
}

// sortStable orders a slice with a deterministic comparison.
func sortStable[T any](items []T, less func(a, b T) bool) {
	sort.SliceStable(items, func(i, j int) bool { return less(items[i], items[j]) })
}

func capLimit[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
