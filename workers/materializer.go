// Copyright (c) Fieldward, Inc.
// SPDX-License-Identifier: BUSL-1.1

package workers

import (
	"context"
	"time"

	"github.com/hashicorp/go-hclog"
	multierror "github.com/hashicorp/go-multierror"

	"github.com/fieldward/fieldward/helper/uuid"
	"github.com/fieldward/fieldward/structs"
)

const defaultMaterializeInterval = 5 * time.Minute

// ScheduleStore is the queue surface the materializer polls.
type ScheduleStore interface {
	DueRecurringSchedules(ctx context.Context, today time.Time) ([]*structs.RecurringJobSchedule, error)
	MaterializeSchedule(ctx context.Context, scheduleID string, expectedNextRun time.Time, job *structs.Job, nextRunAt time.Time, now time.Time) error
}

// ScheduleWorker turns due recurring schedules into unassigned jobs, one
// job per schedule per tick. The store write is keyed on the schedule's
// current next_run_at, so two processes racing on the same schedule insert
// one job between them.
type ScheduleWorker struct {
	store    ScheduleStore
	logger   hclog.Logger
	interval time.Duration
	now      func() time.Time
}

func NewScheduleWorker(store ScheduleStore, logger hclog.Logger, interval time.Duration) *ScheduleWorker {
	if interval <= 0 {
		interval = defaultMaterializeInterval
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &ScheduleWorker{
		store:    store,
		logger:   logger.Named("materializer"),
		interval: interval,
		now:      time.Now,
	}
}

func (w *ScheduleWorker) Name() string            { return "materializer" }
func (w *ScheduleWorker) Interval() time.Duration { return w.interval }

func (w *ScheduleWorker) Tick(ctx context.Context) error {
	now := w.now()
	due, err := w.store.DueRecurringSchedules(ctx, now)
	if err != nil {
		return err
	}

	var mErr multierror.Error
	for _, sched := range due {
		next, err := sched.NextAfter(sched.NextRunAt)
		if err != nil {
			w.logger.Error("schedule cannot advance", "schedule_id", sched.ID, "error", err)
			mErr.Errors = append(mErr.Errors, err)
			continue
		}

		job := sched.MaterializeJob(now)
		job.ID = uuid.Generate()
		err = w.store.MaterializeSchedule(ctx, sched.ID, sched.NextRunAt, job, next, now)
		switch {
		case structs.IsConflict(err):
			// Another pass already took this run.
			w.logger.Debug("schedule already materialized", "schedule_id", sched.ID)
		case err != nil:
			w.logger.Error("schedule materialization failed", "schedule_id", sched.ID, "error", err)
			mErr.Errors = append(mErr.Errors, err)
		default:
			w.logger.Info("recurring job materialized", "schedule_id", sched.ID,
				"job_id", job.ID, "next_run", next)
		}
	}
	return mErr.ErrorOrNil()
}
