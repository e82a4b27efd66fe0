// Copyright (c) Fieldward, Inc.
// SPDX-License-Identifier: BUSL-1.1

// Package workers runs the background pollers that cooperate through the
// store as a queue: geocoding, recurring schedule materialization,
// membership renewals, and review requests. Each worker is a pure Tick
// function driven on a fixed interval; the Runner owns the goroutines.
package workers

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	metrics "github.com/hashicorp/go-metrics"
)

// Worker is one background poller. Tick must be safe to call repeatedly on
// the same rows: all writes are conditional on the source state.
type Worker interface {
	Name() string
	Interval() time.Duration
	Tick(ctx context.Context) error
}

// WorkerStats is a point-in-time snapshot of one worker's loop.
type WorkerStats struct {
	Ticks    uint64    `json:"ticks"`
	Errors   uint64    `json:"errors"`
	LastTick time.Time `json:"lastTick"`
}

// Runner drives a set of workers. It is enabled on the active process only;
// disabling cancels the shared context and stops every loop.
type Runner struct {
	workers []Worker
	logger  hclog.Logger

	l       sync.Mutex
	enabled bool
	exitFn  context.CancelFunc

	statsLock sync.RWMutex
	stats     map[string]*WorkerStats
}

func NewRunner(logger hclog.Logger, workers ...Worker) *Runner {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	r := &Runner{
		workers: workers,
		logger:  logger.Named("workers"),
		stats:   make(map[string]*WorkerStats, len(workers)),
	}
	for _, w := range workers {
		r.stats[w.Name()] = &WorkerStats{}
	}
	return r
}

// SetEnabled starts or stops the worker loops. Enabling twice is a no-op;
// disabling cancels in-flight ticks through their context.
func (r *Runner) SetEnabled(enabled bool) {
	r.l.Lock()
	defer r.l.Unlock()

	if enabled == r.enabled {
		return
	}
	r.enabled = enabled

	if !enabled {
		if r.exitFn != nil {
			r.exitFn()
			r.exitFn = nil
		}
		r.logger.Info("background workers stopped")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.exitFn = cancel
	for _, w := range r.workers {
		go r.run(ctx, w)
	}
	r.logger.Info("background workers started", "count", len(r.workers))
}

func (r *Runner) run(ctx context.Context, w Worker) {
	logger := r.logger.With("worker", w.Name())
	logger.Debug("worker loop starting", "interval", w.Interval())

	for {
		select {
		case <-ctx.Done():
			logger.Debug("worker loop exiting")
			return
		case <-time.After(w.Interval()):
			r.tick(ctx, w, logger)
		}
	}
}

// TickNow runs a single named worker once, outside its timer. Used by the
// dev agent and by tests.
func (r *Runner) TickNow(ctx context.Context, name string) error {
	for _, w := range r.workers {
		if w.Name() == name {
			return w.Tick(ctx)
		}
	}
	return nil
}

func (r *Runner) tick(ctx context.Context, w Worker, logger hclog.Logger) {
	defer metrics.MeasureSince([]string{"fieldward", "worker", w.Name(), "tick"}, time.Now())

	err := w.Tick(ctx)

	r.statsLock.Lock()
	st := r.stats[w.Name()]
	st.Ticks++
	st.LastTick = time.Now()
	if err != nil {
		st.Errors++
	}
	r.statsLock.Unlock()

	if err != nil {
		metrics.IncrCounter([]string{"fieldward", "worker", w.Name(), "error"}, 1)
		logger.Error("worker tick failed", "error", err)
	}
}

// Stats returns a copy of every worker's counters.
func (r *Runner) Stats() map[string]WorkerStats {
	r.statsLock.RLock()
	defer r.statsLock.RUnlock()

	out := make(map[string]WorkerStats, len(r.stats))
	for name, st := range r.stats {
		out[name] = *st
	}
	return out
}
