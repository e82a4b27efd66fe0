// Copyright (c) Fieldward, Inc.
// SPDX-License-Identifier: BUSL-1.1

package state

import (
	"context"
	"fmt"
	"time"

	"github.com/fieldward/fieldward/structs"
)

func (s *StateStore) UpsertRecurringSchedule(_ context.Context, sched *structs.RecurringJobSchedule) error {
	if sched.ID == "" {
		return fmt.Errorf("missing schedule ID")
	}
	txn := s.db.Txn(true)
	defer txn.Abort()

	if err := txn.Insert(TableRecurringSchedules, sched.Copy()); err != nil {
		return fmt.Errorf("recurring schedule insert failed: %w", err)
	}
	txn.Commit()
	return nil
}

func (s *StateStore) RecurringScheduleByID(_ context.Context, id string) (*structs.RecurringJobSchedule, error) {
	txn := s.db.Txn(false)
	return first[*structs.RecurringJobSchedule](txn, TableRecurringSchedules, indexID, id)
}

func (s *StateStore) RecurringSchedulesByCompany(_ context.Context, companyID string) ([]*structs.RecurringJobSchedule, error) {
	txn := s.db.Txn(false)
	out, err := list[*structs.RecurringJobSchedule](txn, TableRecurringSchedules, indexCompany, companyID)
	if err != nil {
		return nil, err
	}
	sortStable(out, func(a, b *structs.RecurringJobSchedule) bool { return a.ID < b.ID })
	return out, nil
}

func (s *StateStore) DueRecurringSchedules(_ context.Context, today time.Time) ([]*structs.RecurringJobSchedule, error) {
	txn := s.db.Txn(false)
	out, err := filtered(txn, TableRecurringSchedules, indexID,
		func(sc *structs.RecurringJobSchedule) bool { return sc.IsActive && sc.Due(today) })
	if err != nil {
		return nil, err
	}
	sortStable(out, func(a, b *structs.RecurringJobSchedule) bool { return a.NextRunAt.Before(b.NextRunAt) })
	return out, nil
}

// MaterializeSchedule inserts the materialized job and advances the
// schedule in one transaction. The write is keyed on the schedule's
// current next_run_at: a worker re-running the same tick sees the clock
// already advanced and backs off without a duplicate job.
func (s *StateStore) MaterializeSchedule(_ context.Context, scheduleID string, expectedNextRun time.Time, job *structs.Job, nextRunAt time.Time, now time.Time) error {
	if job == nil || job.ID == "" {
		return fmt.Errorf("missing materialized job")
	}
	txn := s.db.Txn(true)
	defer txn.Abort()

	sched, err := first[*structs.RecurringJobSchedule](txn, TableRecurringSchedules, indexID, scheduleID)
	if err != nil {
		return err
	}
	if sched == nil {
		return structs.NewNotFoundError("Schedule")
	}
	if !sched.NextRunAt.Equal(expectedNextRun) {
		return structs.NewConflictError("schedule %s already materialized for %s", scheduleID, expectedNextRun.Format(time.RFC3339))
	}

	if err := txn.Insert(TableJobs, job.Copy()); err != nil {
		return fmt.Errorf("job insert failed: %w", err)
	}

	sched.NextRunAt = nextRunAt
	t := now
	sched.LastMaterializedAt = &t
	sched.ModifyTime = now
	if err := txn.Insert(TableRecurringSchedules, sched); err != nil {
		return fmt.Errorf("recurring schedule insert failed: %w", err)
	}
	txn.Commit()
	return nil
}

func (s *StateStore) UpsertServiceAgreement(_ context.Context, a *structs.ServiceAgreement) error {
	if a.ID == "" {
		return fmt.Errorf("missing agreement ID")
	}
	txn := s.db.Txn(true)
	defer txn.Abort()

	if err := txn.Insert(TableServiceAgreements, a.Copy()); err != nil {
		return fmt.Errorf("service agreement insert failed: %w", err)
	}
	txn.Commit()
	return nil
}

func (s *StateStore) ServiceAgreementByID(_ context.Context, id string) (*structs.ServiceAgreement, error) {
	txn := s.db.Txn(false)
	return first[*structs.ServiceAgreement](txn, TableServiceAgreements, indexID, id)
}

func (s *StateStore) AgreementsByCompany(_ context.Context, companyID string) ([]*structs.ServiceAgreement, error) {
	txn := s.db.Txn(false)
	out, err := list[*structs.ServiceAgreement](txn, TableServiceAgreements, indexCompany, companyID)
	if err != nil {
		return nil, err
	}
	sortStable(out, func(a, b *structs.ServiceAgreement) bool { return a.EndDate.Before(b.EndDate) })
	return out, nil
}

func (s *StateStore) AgreementsExpiringWithin(_ context.Context, now time.Time, window time.Duration) ([]*structs.ServiceAgreement, error) {
	txn := s.db.Txn(false)
	out, err := filtered(txn, TableServiceAgreements, indexID,
		func(a *structs.ServiceAgreement) bool { return a.ExpiringWithin(now, window) })
	if err != nil {
		return nil, err
	}
	sortStable(out, func(a, b *structs.ServiceAgreement) bool { return a.EndDate.Before(b.EndDate) })
	return out, nil
}

func (s *StateStore) ExpiredAgreements(_ context.Context, now time.Time) ([]*structs.ServiceAgreement, error) {
	txn := s.db.Txn(false)
	out, err := filtered(txn, TableServiceAgreements, indexID,
		func(a *structs.ServiceAgreement) bool { return a.Expired(now) })
	if err != nil {
		return nil, err
	}
	sortStable(out, func(a, b *structs.ServiceAgreement) bool { return a.EndDate.Before(b.EndDate) })
	return out, nil
}

func (s *StateStore) MarkRenewalReminded(_ context.Context, agreementID string, now time.Time) error {
	txn := s.db.Txn(true)
	defer txn.Abort()

	a, err := first[*structs.ServiceAgreement](txn, TableServiceAgreements, indexID, agreementID)
	if err != nil {
		return err
	}
	if a == nil {
		return structs.NewNotFoundError("Agreement")
	}
	if a.RenewalReminderSentAt != nil {
		// Reminder already out; repeated worker ticks are no-ops.
		return nil
	}
	t := now
	a.RenewalReminderSentAt = &t
	a.ModifyTime = now
	if err := txn.Insert(TableServiceAgreements, a); err != nil {
		return fmt.Errorf("service agreement insert failed: %w", err)
	}
	txn.Commit()
	return nil
}

// ExpireAgreement flips an active agreement to expired and, for auto-renew
// plans, inserts the replacement agreement and its billing trigger in the
// same transaction. The status flip is conditional, so a second worker
// processing the same agreement expires nothing and inserts nothing.
func (s *StateStore) ExpireAgreement(_ context.Context, agreementID string, replacement *structs.ServiceAgreement, trigger *structs.BillingTrigger, now time.Time) error {
	txn := s.db.Txn(true)
	defer txn.Abort()

	a, err := first[*structs.ServiceAgreement](txn, TableServiceAgreements, indexID, agreementID)
	if err != nil {
		return err
	}
	if a == nil {
		return structs.NewNotFoundError("Agreement")
	}
	if a.Status != structs.AgreementActive {
		return nil
	}

	a.Status = structs.AgreementExpired
	a.ModifyTime = now
	if err := txn.Insert(TableServiceAgreements, a); err != nil {
		return fmt.Errorf("service agreement insert failed: %w", err)
	}

	if replacement != nil {
		if replacement.ID == "" {
			return fmt.Errorf("missing replacement agreement ID")
		}
		if err := txn.Insert(TableServiceAgreements, replacement.Copy()); err != nil {
			return fmt.Errorf("service agreement insert failed: %w", err)
		}
	}
	if trigger != nil {
		if trigger.ID == "" {
			return fmt.Errorf("missing billing trigger ID")
		}
		cp := *trigger
		if err := txn.Insert(TableBillingTriggers, &cp); err != nil {
			return fmt.Errorf("billing trigger insert failed: %w", err)
		}
	}
	txn.Commit()
	return nil
}

func (s *StateStore) BillingTriggersByCompany(_ context.Context, companyID string) ([]*structs.BillingTrigger, error) {
	txn := s.db.Txn(false)
	iter, err := txn.Get(TableBillingTriggers, indexCompany, companyID)
	if err != nil {
		return nil, fmt.Errorf("billing trigger lookup failed: %w", err)
	}
	var out []*structs.BillingTrigger
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		cp := *raw.(*structs.BillingTrigger)
		out = append(out, &cp)
	}
	sortStable(out, func(a, b *structs.BillingTrigger) bool { return a.CreateTime.Before(b.CreateTime) })
	return out, nil
}

func (s *StateStore) BillingTriggersByAgreement(_ context.Context, agreementID string) ([]*structs.BillingTrigger, error) {
	txn := s.db.Txn(false)
	iter, err := txn.Get(TableBillingTriggers, "agreement", agreementID)
	if err != nil {
		return nil, fmt.Errorf("billing trigger lookup failed: %w", err)
	}
	var out []*structs.BillingTrigger
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		cp := *raw.(*structs.BillingTrigger)
		out = append(out, &cp)
	}
	sortStable(out, func(a, b *structs.BillingTrigger) bool { return a.CreateTime.Before(b.CreateTime) })
	return out, nil
}

func (s *StateStore) UpsertReviewRequest(_ context.Context, r *structs.ReviewRequest) error {
	if r.ID == "" {
		return fmt.Errorf("missing review request ID")
	}
	txn := s.db.Txn(true)
	defer txn.Abort()

	if err := txn.Insert(TableReviewRequests, r.Copy()); err != nil {
		return fmt.Errorf("review request insert failed: %w", err)
	}
	txn.Commit()
	return nil
}

func (s *StateStore) ReviewRequestByJob(_ context.Context, jobID string) (*structs.ReviewRequest, error) {
	txn := s.db.Txn(false)
	return first[*structs.ReviewRequest](txn, TableReviewRequests, indexJob, jobID)
}

func (s *StateStore) DueReviewRequests(_ context.Context, now time.Time, limit int) ([]*structs.ReviewRequest, error) {
	txn := s.db.Txn(false)
	out, err := filtered(txn, TableReviewRequests, indexID,
		func(r *structs.ReviewRequest) bool { return r.Due(now) })
	if err != nil {
		return nil, err
	}
	sortStable(out, func(a, b *structs.ReviewRequest) bool { return a.ScheduledFor.Before(b.ScheduledFor) })
	return capLimit(out, limit), nil
}

// CompletionsNeedingReview returns completions that have no review request
// row yet, oldest first.
func (s *StateStore) CompletionsNeedingReview(_ context.Context, limit int) ([]*structs.JobCompletion, error) {
	txn := s.db.Txn(false)

	iter, err := txn.Get(TableJobCompletions, indexID)
	if err != nil {
		return nil, fmt.Errorf("job completion lookup failed: %w", err)
	}
	var out []*structs.JobCompletion
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		completion := raw.(*structs.JobCompletion)
		existing, err := txn.First(TableReviewRequests, indexJob, completion.JobID)
		if err != nil {
			return nil, fmt.Errorf("review request lookup failed: %w", err)
		}
		if existing != nil {
			continue
		}
		out = append(out, completion.Copy())
	}
	sortStable(out, func(a, b *structs.JobCompletion) bool { return a.CompletedAt.Before(b.CompletedAt) })
	return capLimit(out, limit), nil
}
