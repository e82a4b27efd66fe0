// Copyright (c) Fieldward, Inc.
// SPDX-License-Identifier: BUSL-1.1

package workers

import (
	"context"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/fieldward/fieldward/escalation"
)

const defaultEscalationInterval = time.Minute

// Advancer is the slice of the escalation engine the worker drives.
type Advancer interface {
	Advance(ctx context.Context) (escalation.AdvanceResult, error)
}

// EscalationWorker sweeps active escalation events on a timer, sending the
// next step of each event whose delay has elapsed and timing out events
// that ran off the end of their policy.
type EscalationWorker struct {
	engine   Advancer
	logger   hclog.Logger
	interval time.Duration
}

func NewEscalationWorker(engine Advancer, logger hclog.Logger, interval time.Duration) *EscalationWorker {
	if interval <= 0 {
		interval = defaultEscalationInterval
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &EscalationWorker{
		engine:   engine,
		logger:   logger.Named("escalations"),
		interval: interval,
	}
}

func (w *EscalationWorker) Name() string            { return "escalations" }
func (w *EscalationWorker) Interval() time.Duration { return w.interval }

func (w *EscalationWorker) Tick(ctx context.Context) error {
	res, err := w.engine.Advance(ctx)
	if err != nil {
		return err
	}
	if res.Advanced > 0 || res.TimedOut > 0 {
		w.logger.Info("escalation sweep", "advanced", res.Advanced, "timed_out", res.TimedOut)
	}
	return nil
}
