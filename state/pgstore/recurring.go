// Copyright (c) Fieldward, Inc.
// SPDX-License-Identifier: BUSL-1.1

package pgstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/fieldward/fieldward/structs"
)

const scheduleCols = `id, company_id, customer_id, location_id, job_type,
	description, priority, required_skills, estimated_duration_minutes,
	frequency, cron_expr, advance_days, next_run_at, is_active,
	last_materialized_at, created_at, updated_at`

func (s *PGStore) UpsertRecurringSchedule(ctx context.Context, sched *structs.RecurringJobSchedule) error {
	if sched.ID == "" {
		return fmt.Errorf("missing schedule ID")
	}
	var skills []byte
	if sched.RequiredSkills != nil {
		skills = mustJSON(sched.RequiredSkills)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO recurring_schedules (id, company_id, customer_id,
			location_id, job_type, description, priority, required_skills,
			estimated_duration_minutes, frequency, cron_expr, advance_days,
			next_run_at, is_active, last_materialized_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (id) DO UPDATE SET
			customer_id = EXCLUDED.customer_id,
			location_id = EXCLUDED.location_id,
			job_type = EXCLUDED.job_type,
			description = EXCLUDED.description,
			priority = EXCLUDED.priority,
			required_skills = EXCLUDED.required_skills,
			estimated_duration_minutes = EXCLUDED.estimated_duration_minutes,
			frequency = EXCLUDED.frequency,
			cron_expr = EXCLUDED.cron_expr,
			advance_days = EXCLUDED.advance_days,
			next_run_at = EXCLUDED.next_run_at,
			is_active = EXCLUDED.is_active,
			last_materialized_at = EXCLUDED.last_materialized_at,
			updated_at = EXCLUDED.updated_at`,
		sched.ID, sched.CompanyID, sched.CustomerID, sched.LocationID,
		sched.JobType, sched.Description, string(sched.Priority), skills,
		sched.EstimatedDurationMinutes, string(sched.Frequency),
		sched.CronExpr, sched.AdvanceDays, sched.NextRunAt, sched.IsActive,
		sched.LastMaterializedAt, sched.CreateTime, sched.ModifyTime)
	if err != nil {
		return fmt.Errorf("recurring schedule upsert failed: %w", err)
	}
	return nil
}

func (s *PGStore) RecurringScheduleByID(ctx context.Context, id string) (*structs.RecurringJobSchedule, error) {
	row, err := getContext[recurringScheduleRow](ctx, s.db,
		`SELECT `+scheduleCols+` FROM recurring_schedules WHERE id = $1`, id)
	if err != nil || row == nil {
		return nil, err
	}
	return row.toStruct()
}

func (s *PGStore) RecurringSchedulesByCompany(ctx context.Context, companyID string) ([]*structs.RecurringJobSchedule, error) {
	rows, err := selectContext[recurringScheduleRow](ctx, s.db,
		`SELECT `+scheduleCols+` FROM recurring_schedules
		 WHERE company_id = $1 ORDER BY id`, companyID)
	if err != nil {
		return nil, err
	}
	return scheduleRowsToStructs(rows)
}

func (s *PGStore) DueRecurringSchedules(ctx context.Context, today time.Time) ([]*structs.RecurringJobSchedule, error) {
	rows, err := selectContext[recurringScheduleRow](ctx, s.db,
		`SELECT `+scheduleCols+` FROM recurring_schedules
		 WHERE is_active
		   AND next_run_at - make_interval(days => advance_days) <= $1
		 ORDER BY next_run_at, id`, today)
	if err != nil {
		return nil, err
	}
	return scheduleRowsToStructs(rows)
}

// MaterializeSchedule inserts the materialized job and advances the
// schedule in one transaction. The clock advance is keyed on the schedule's
// current next_run_at: a worker re-running the same tick matches zero rows
// and backs off without a duplicate job.
func (s *PGStore) MaterializeSchedule(ctx context.Context, scheduleID string, expectedNextRun time.Time, job *structs.Job, nextRunAt time.Time, now time.Time) error {
	if job == nil || job.ID == "" {
		return fmt.Errorf("missing materialized job")
	}
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE recurring_schedules
			SET next_run_at = $3, last_materialized_at = $4, updated_at = $4
			WHERE id = $1 AND next_run_at = $2`,
			scheduleID, expectedNextRun, nextRunAt, now)
		if err != nil {
			return fmt.Errorf("recurring schedule update failed: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("recurring schedule update failed: %w", err)
		}
		if n == 0 {
			exists, err := getContext[recurringScheduleRow](ctx, tx,
				`SELECT `+scheduleCols+` FROM recurring_schedules WHERE id = $1`, scheduleID)
			if err != nil {
				return err
			}
			if exists == nil {
				return structs.NewNotFoundError("Schedule")
			}
			return structs.NewConflictError("schedule %s already materialized for %s",
				scheduleID, expectedNextRun.Format(time.RFC3339))
		}

		if _, err := tx.ExecContext(ctx, jobUpsert, jobArgs(job)...); err != nil {
			return fmt.Errorf("job insert failed: %w", err)
		}
		return nil
	})
}

const agreementCols = `id, company_id, customer_id, plan_name, status,
	start_date, end_date, term_months, auto_renew, visits_allowed,
	visits_used, billing_amount, renewal_reminder_sent_at,
	created_at, updated_at`

const agreementUpsert = `
	INSERT INTO service_agreements (id, company_id, customer_id, plan_name,
		status, start_date, end_date, term_months, auto_renew,
		visits_allowed, visits_used, billing_amount,
		renewal_reminder_sent_at, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	ON CONFLICT (id) DO UPDATE SET
		plan_name = EXCLUDED.plan_name,
		status = EXCLUDED.status,
		start_date = EXCLUDED.start_date,
		end_date = EXCLUDED.end_date,
		term_months = EXCLUDED.term_months,
		auto_renew = EXCLUDED.auto_renew,
		visits_allowed = EXCLUDED.visits_allowed,
		visits_used = EXCLUDED.visits_used,
		billing_amount = EXCLUDED.billing_amount,
		renewal_reminder_sent_at = EXCLUDED.renewal_reminder_sent_at,
		updated_at = EXCLUDED.updated_at`

func agreementArgs(a *structs.ServiceAgreement) []any {
	return []any{
		a.ID, a.CompanyID, a.CustomerID, a.PlanName, string(a.Status),
		a.StartDate, a.EndDate, a.TermMonths, a.AutoRenew, a.VisitsAllowed,
		a.VisitsUsed, a.BillingAmount, a.RenewalReminderSentAt,
		a.CreateTime, a.ModifyTime,
	}
}

func (s *PGStore) UpsertServiceAgreement(ctx context.Context, a *structs.ServiceAgreement) error {
	if a.ID == "" {
		return fmt.Errorf("missing agreement ID")
	}
	if _, err := s.db.ExecContext(ctx, agreementUpsert, agreementArgs(a)...); err != nil {
		return fmt.Errorf("service agreement upsert failed: %w", err)
	}
	return nil
}

func (s *PGStore) ServiceAgreementByID(ctx context.Context, id string) (*structs.ServiceAgreement, error) {
	row, err := getContext[agreementRow](ctx, s.db,
		`SELECT `+agreementCols+` FROM service_agreements WHERE id = $1`, id)
	if err != nil || row == nil {
		return nil, err
	}
	return row.toStruct(), nil
}

func (s *PGStore) AgreementsByCompany(ctx context.Context, companyID string) ([]*structs.ServiceAgreement, error) {
	rows, err := selectContext[agreementRow](ctx, s.db,
		`SELECT `+agreementCols+` FROM service_agreements
		 WHERE company_id = $1 ORDER BY end_date, id`, companyID)
	if err != nil {
		return nil, err
	}
	return agreementRowsToStructs(rows), nil
}

func (s *PGStore) AgreementsExpiringWithin(ctx context.Context, now time.Time, window time.Duration) ([]*structs.ServiceAgreement, error) {
	rows, err := selectContext[agreementRow](ctx, s.db,
		`SELECT `+agreementCols+` FROM service_agreements
		 WHERE status = $1 AND renewal_reminder_sent_at IS NULL
		   AND end_date > $2 AND end_date <= $3
		 ORDER BY end_date, id`,
		string(structs.AgreementActive), now, now.Add(window))
	if err != nil {
		return nil, err
	}
	return agreementRowsToStructs(rows), nil
}

func (s *PGStore) ExpiredAgreements(ctx context.Context, now time.Time) ([]*structs.ServiceAgreement, error) {
	rows, err := selectContext[agreementRow](ctx, s.db,
		`SELECT `+agreementCols+` FROM service_agreements
		 WHERE status = $1 AND end_date < $2
		 ORDER BY end_date, id`,
		string(structs.AgreementActive), now)
	if err != nil {
		return nil, err
	}
	return agreementRowsToStructs(rows), nil
}

func (s *PGStore) MarkRenewalReminded(ctx context.Context, agreementID string, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE service_agreements
		SET renewal_reminder_sent_at = $2, updated_at = $2
		WHERE id = $1 AND renewal_reminder_sent_at IS NULL`,
		agreementID, now)
	if err != nil {
		return fmt.Errorf("service agreement update failed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("service agreement update failed: %w", err)
	}
	if n == 0 {
		// Reminder already out, or no such agreement. Repeated worker
		// ticks are no-ops; a missing row is the caller's bug.
		exists, err := getContext[agreementRow](ctx, s.db,
			`SELECT `+agreementCols+` FROM service_agreements WHERE id = $1`, agreementID)
		if err != nil {
			return err
		}
		if exists == nil {
			return structs.NewNotFoundError("Agreement")
		}
	}
	return nil
}

// ExpireAgreement flips an active agreement to expired and, for auto-renew
// plans, inserts the replacement agreement and its billing trigger in the
// same transaction. The status flip is conditional, so a second worker
// processing the same agreement expires nothing and inserts nothing.
func (s *PGStore) ExpireAgreement(ctx context.Context, agreementID string, replacement *structs.ServiceAgreement, trigger *structs.BillingTrigger, now time.Time) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE service_agreements
			SET status = $2, updated_at = $3
			WHERE id = $1 AND status = $4`,
			agreementID, string(structs.AgreementExpired), now,
			string(structs.AgreementActive))
		if err != nil {
			return fmt.Errorf("service agreement update failed: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("service agreement update failed: %w", err)
		}
		if n == 0 {
			exists, err := getContext[agreementRow](ctx, tx,
				`SELECT `+agreementCols+` FROM service_agreements WHERE id = $1`, agreementID)
			if err != nil {
				return err
			}
			if exists == nil {
				return structs.NewNotFoundError("Agreement")
			}
			return nil
		}

		if replacement != nil {
			if replacement.ID == "" {
				return fmt.Errorf("missing replacement agreement ID")
			}
			if _, err := tx.ExecContext(ctx, agreementUpsert, agreementArgs(replacement)...); err != nil {
				return fmt.Errorf("service agreement insert failed: %w", err)
			}
		}
		if trigger != nil {
			if trigger.ID == "" {
				return fmt.Errorf("missing billing trigger ID")
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO billing_triggers (id, company_id, agreement_id,
					customer_id, amount, reason, status, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
				trigger.ID, trigger.CompanyID, trigger.AgreementID,
				trigger.CustomerID, trigger.Amount, trigger.Reason,
				string(trigger.Status), trigger.CreateTime, trigger.ModifyTime); err != nil {
				return fmt.Errorf("billing trigger insert failed: %w", err)
			}
		}
		return nil
	})
}

const billingTriggerCols = `id, company_id, agreement_id, customer_id,
	amount, reason, status, created_at, updated_at`

func (s *PGStore) BillingTriggersByCompany(ctx context.Context, companyID string) ([]*structs.BillingTrigger, error) {
	rows, err := selectContext[billingTriggerRow](ctx, s.db,
		`SELECT `+billingTriggerCols+` FROM billing_triggers
		 WHERE company_id = $1 ORDER BY created_at, id`, companyID)
	if err != nil {
		return nil, err
	}
	return billingTriggerRowsToStructs(rows), nil
}

func (s *PGStore) BillingTriggersByAgreement(ctx context.Context, agreementID string) ([]*structs.BillingTrigger, error) {
	rows, err := selectContext[billingTriggerRow](ctx, s.db,
		`SELECT `+billingTriggerCols+` FROM billing_triggers
		 WHERE agreement_id = $1 ORDER BY created_at, id`, agreementID)
	if err != nil {
		return nil, err
	}
	return billingTriggerRowsToStructs(rows), nil
}

const reviewRequestCols = `id, company_id, job_id, customer_id, channel,
	status, scheduled_for, sent_at, failure_note, created_at, updated_at`

func (s *PGStore) UpsertReviewRequest(ctx context.Context, r *structs.ReviewRequest) error {
	if r.ID == "" {
		return fmt.Errorf("missing review request ID")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO review_requests (id, company_id, job_id, customer_id,
			channel, status, scheduled_for, sent_at, failure_note,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			channel = EXCLUDED.channel,
			status = EXCLUDED.status,
			scheduled_for = EXCLUDED.scheduled_for,
			sent_at = EXCLUDED.sent_at,
			failure_note = EXCLUDED.failure_note,
			updated_at = EXCLUDED.updated_at`,
		r.ID, r.CompanyID, r.JobID, r.CustomerID, string(r.Channel),
		string(r.Status), r.ScheduledFor, r.SentAt, r.FailureNote,
		r.CreateTime, r.ModifyTime)
	if err != nil {
		if uniqueViolation(err) {
			return structs.NewConflictError("review request for job %s already exists", r.JobID)
		}
		return fmt.Errorf("review request upsert failed: %w", err)
	}
	return nil
}

func (s *PGStore) ReviewRequestByJob(ctx context.Context, jobID string) (*structs.ReviewRequest, error) {
	row, err := getContext[reviewRequestRow](ctx, s.db,
		`SELECT `+reviewRequestCols+` FROM review_requests WHERE job_id = $1`, jobID)
	if err != nil || row == nil {
		return nil, err
	}
	return row.toStruct(), nil
}

func (s *PGStore) DueReviewRequests(ctx context.Context, now time.Time, limit int) ([]*structs.ReviewRequest, error) {
	rows, err := selectContext[reviewRequestRow](ctx, s.db,
		`SELECT `+reviewRequestCols+` FROM review_requests
		 WHERE status = $1 AND scheduled_for <= $2
		 ORDER BY scheduled_for, id
		 LIMIT $3`,
		string(structs.ReviewPending), now, limitArg(limit))
	if err != nil {
		return nil, err
	}
	out := make([]*structs.ReviewRequest, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toStruct())
	}
	return out, nil
}

// CompletionsNeedingReview returns completions that have no review request
// row yet, oldest first.
func (s *PGStore) CompletionsNeedingReview(ctx context.Context, limit int) ([]*structs.JobCompletion, error) {
	rows, err := selectContext[completionRow](ctx, s.db, `
		SELECT c.job_id, c.company_id, c.technician_id, c.completed_at,
			c.duration_minutes, c.drive_time_minutes, c.wrench_time_minutes,
			c.on_site_minutes, c.first_time_fix, c.callback_required,
			c.customer_rating, c.notes, c.created_at, c.updated_at
		FROM job_completions c
		LEFT JOIN review_requests r ON r.job_id = c.job_id
		WHERE r.id IS NULL
		ORDER BY c.completed_at, c.job_id
		LIMIT $1`, limitArg(limit))
	if err != nil {
		return nil, err
	}
	out := make([]*structs.JobCompletion, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toStruct())
	}
	return out, nil
}

func scheduleRowsToStructs(rows []recurringScheduleRow) ([]*structs.RecurringJobSchedule, error) {
	out := make([]*structs.RecurringJobSchedule, 0, len(rows))
	for i := range rows {
		sched, err := rows[i].toStruct()
		if err != nil {
			return nil, err
		}
		out = append(out, sched)
	}
	return out, nil
}

func agreementRowsToStructs(rows []agreementRow) []*structs.ServiceAgreement {
	out := make([]*structs.ServiceAgreement, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toStruct())
	}
	return out
}

func billingTriggerRowsToStructs(rows []billingTriggerRow) []*structs.BillingTrigger {
	out := make([]*structs.BillingTrigger, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toStruct())
	}
	return out
}
