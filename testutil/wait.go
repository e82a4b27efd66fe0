// Copyright (c) Fieldward, Inc.
// SPDX-License-Identifier: BUSL-1.1

package testutil

import (
	"os"
	"time"
)

type testFn func() (bool, error)
type errorFn func(error)

// WaitForResult polls test every 10ms until it reports success, failing
// through error when the retry budget is exhausted.
func WaitForResult(test testFn, error errorFn) {
	WaitForResultRetries(500*TestMultiplier(), test, error)
}

func WaitForResultRetries(retries int64, test testFn, error errorFn) {
	for retries > 0 {
		time.Sleep(10 * time.Millisecond)
		retries--

		success, err := test()
		if success {
			return
		}

		if retries == 0 {
			error(err)
		}
	}
}

// TestMultiplier returns a multiplier for retries and waits given an
// optional FIELDWARD_TEST_MULTIPLIER environment variable.
func TestMultiplier() int64 {
	if os.Getenv("FIELDWARD_TEST_MULTIPLIER") != "" {
		if n, err := time.ParseDuration(os.Getenv("FIELDWARD_TEST_MULTIPLIER") + "s"); err == nil {
			return int64(n.Seconds())
		}
	}
	return 1
}
