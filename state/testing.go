// Copyright (c) Fieldward, Inc.
// SPDX-License-Identifier: BUSL-1.1

package state

import (
	"testing"

	"github.com/fieldward/fieldward/helper/testlog"
)

// TestStateStore returns a fresh in-memory store for tests.
func TestStateStore(t testing.TB) *StateStore {
	store, err := NewStateStore(testlog.HCLogger(t))
	if err != nil {
		t.Fatalf("state store setup failed: %v", err)
	}
	return store
}
