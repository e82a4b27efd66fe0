// Copyright (c) Fieldward, Inc.
// SPDX-License-Identifier: BUSL-1.1

package pgstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/fieldward/fieldward/helper/uuid"
	"github.com/fieldward/fieldward/state"
	"github.com/fieldward/fieldward/structs"
)

const jobCols = `id, company_id, customer_id, location_id, job_type, description,
	priority, status, address, address_text, lat, lng, geocode_status,
	geocode_retries, assigned_tech_id, scheduled_time, started_at, completed_at,
	required_skills, estimated_duration_minutes, actual_duration_minutes,
	duration_variance_minutes, source_schedule_id, is_after_hours,
	created_at, updated_at`

const jobUpsert = `
	INSERT INTO jobs (id, company_id, customer_id, location_id, job_type,
		description, priority, status, address, address_text, lat, lng,
		geocode_status, geocode_retries, assigned_tech_id, scheduled_time,
		started_at, completed_at, required_skills, estimated_duration_minutes,
		actual_duration_minutes, duration_variance_minutes, source_schedule_id,
		is_after_hours, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
		$16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26)
	ON CONFLICT (id) DO UPDATE SET
		customer_id = EXCLUDED.customer_id,
		location_id = EXCLUDED.location_id,
		job_type = EXCLUDED.job_type,
		description = EXCLUDED.description,
		priority = EXCLUDED.priority,
		status = EXCLUDED.status,
		address = EXCLUDED.address,
		address_text = EXCLUDED.address_text,
		lat = EXCLUDED.lat,
		lng = EXCLUDED.lng,
		geocode_status = EXCLUDED.geocode_status,
		geocode_retries = EXCLUDED.geocode_retries,
		assigned_tech_id = EXCLUDED.assigned_tech_id,
		scheduled_time = EXCLUDED.scheduled_time,
		started_at = EXCLUDED.started_at,
		completed_at = EXCLUDED.completed_at,
		required_skills = EXCLUDED.required_skills,
		estimated_duration_minutes = EXCLUDED.estimated_duration_minutes,
		actual_duration_minutes = EXCLUDED.actual_duration_minutes,
		duration_variance_minutes = EXCLUDED.duration_variance_minutes,
		source_schedule_id = EXCLUDED.source_schedule_id,
		is_after_hours = EXCLUDED.is_after_hours,
		updated_at = EXCLUDED.updated_at`

func jobArgs(job *structs.Job) []any {
	lat, lng := coordCols(job.Coordinates)
	var skills []byte
	if job.RequiredSkills != nil {
		skills = mustJSON(job.RequiredSkills)
	}
	return []any{
		job.ID, job.CompanyID, job.CustomerID, job.LocationID, job.JobType,
		job.Description, string(job.Priority), string(job.Status),
		mustJSON(job.Address), job.Address.String(), lat, lng,
		string(job.GeocodeStatus), job.GeocodeRetries, job.AssignedTechID,
		job.ScheduledTime, job.StartedAt, job.CompletedAt, skills,
		job.EstimatedDurationMinutes, job.ActualDurationMinutes,
		job.DurationVarianceMinutes, job.SourceScheduleID, job.IsAfterHours,
		job.CreateTime, job.ModifyTime,
	}
}

func (s *PGStore) UpsertJob(ctx context.Context, job *structs.Job) error {
	if job.ID == "" {
		return fmt.Errorf("missing job ID")
	}
	if _, err := s.db.ExecContext(ctx, jobUpsert, jobArgs(job)...); err != nil {
		return fmt.Errorf("job upsert failed: %w", err)
	}
	return nil
}

func (s *PGStore) JobByID(ctx context.Context, id string) (*structs.Job, error) {
	row, err := getContext[jobRow](ctx, s.db,
		`SELECT `+jobCols+` FROM jobs WHERE id = $1`, id)
	if err != nil || row == nil {
		return nil, err
	}
	return row.toStruct()
}

func (s *PGStore) JobsByCompany(ctx context.Context, companyID string, filter state.JobListFilter) ([]*structs.Job, error) {
	conds := []string{"company_id = $1"}
	args := []any{companyID}
	add := func(col, val string) {
		args = append(args, val)
		conds = append(conds, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if filter.Status != "" {
		add("status", string(filter.Status))
	}
	if filter.Priority != "" {
		add("priority", string(filter.Priority))
	}
	if filter.AssignedTechID != "" {
		add("assigned_tech_id", filter.AssignedTechID)
	}
	if filter.CustomerID != "" {
		add("customer_id", filter.CustomerID)
	}
	query := `SELECT ` + jobCols + ` FROM jobs WHERE ` +
		strings.Join(conds, " AND ") + ` ORDER BY created_at DESC, id`

	rows, err := selectContext[jobRow](ctx, s.db, query, args...)
	if err != nil {
		return nil, err
	}
	return jobRowsToStructs(rows)
}

// JobsByIDs returns the company's jobs among ids, in input order. IDs that
// do not resolve inside the company are simply absent from the result.
func (s *PGStore) JobsByIDs(ctx context.Context, companyID string, ids []string) ([]*structs.Job, error) {
	if len(ids) == 0 {
		return []*structs.Job{}, nil
	}
	rows, err := selectContext[jobRow](ctx, s.db,
		`SELECT `+jobCols+` FROM jobs WHERE company_id = $1 AND id = ANY($2)`,
		companyID, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*structs.Job, len(rows))
	for i := range rows {
		job, err := rows[i].toStruct()
		if err != nil {
			return nil, err
		}
		byID[job.ID] = job
	}
	out := make([]*structs.Job, 0, len(ids))
	for _, id := range ids {
		if job, ok := byID[id]; ok {
			out = append(out, job)
		}
	}
	return out, nil
}

// ApplyJobTransition persists one transition plan atomically: the job row,
// both technician counter updates, and the tracking, completion, and audit
// rows the plan carries.
func (s *PGStore) ApplyJobTransition(ctx context.Context, plan *structs.TransitionPlan) error {
	if plan == nil || plan.Job == nil {
		return fmt.Errorf("missing transition plan")
	}
	now := plan.Job.ModifyTime

	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, jobUpsert, jobArgs(plan.Job)...); err != nil {
			return fmt.Errorf("job upsert failed: %w", err)
		}

		if plan.ReleaseTechID != "" {
			if err := releaseTech(ctx, tx, plan.ReleaseTechID, plan.StampLastCompleted, now); err != nil {
				return err
			}
		}
		if plan.AssignTechID != "" {
			if err := assignTech(ctx, tx, plan.AssignTechID, plan.Job.ID, now); err != nil {
				return err
			}
		}

		if plan.CreateTracking != nil {
			t := plan.CreateTracking
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO job_time_tracking (job_id, company_id, dispatched_at,
					departed_at, arrived_at, work_started_at, work_ended_at,
					departed_job_at, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
				ON CONFLICT (job_id) DO NOTHING`,
				t.JobID, t.CompanyID, t.DispatchedAt, t.DepartedAt, t.ArrivedAt,
				t.WorkStartedAt, t.WorkEndedAt, t.DepartedJobAt,
				t.CreateTime, t.ModifyTime); err != nil {
				return fmt.Errorf("time tracking insert failed: %w", err)
			}
		}

		if plan.Completion != nil {
			// Ledger metrics recorded before close-out survive the upsert:
			// the stored derived columns win over the incoming nulls.
			c := plan.Completion
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO job_completions (job_id, company_id, technician_id,
					completed_at, duration_minutes, drive_time_minutes,
					wrench_time_minutes, on_site_minutes, first_time_fix,
					callback_required, customer_rating, notes, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
				ON CONFLICT (job_id) DO UPDATE SET
					technician_id = EXCLUDED.technician_id,
					completed_at = EXCLUDED.completed_at,
					duration_minutes = EXCLUDED.duration_minutes,
					drive_time_minutes = COALESCE(job_completions.drive_time_minutes, EXCLUDED.drive_time_minutes),
					wrench_time_minutes = COALESCE(job_completions.wrench_time_minutes, EXCLUDED.wrench_time_minutes),
					on_site_minutes = COALESCE(job_completions.on_site_minutes, EXCLUDED.on_site_minutes),
					first_time_fix = EXCLUDED.first_time_fix,
					callback_required = EXCLUDED.callback_required,
					customer_rating = EXCLUDED.customer_rating,
					notes = EXCLUDED.notes,
					updated_at = EXCLUDED.updated_at`,
				c.JobID, c.CompanyID, c.TechnicianID, c.CompletedAt,
				c.DurationMinutes, c.DriveTimeMinutes, c.WrenchTimeMinutes,
				c.OnSiteMinutes, c.FirstTimeFix, c.CallbackRequired,
				c.CustomerRating, c.Notes, c.CreateTime, c.ModifyTime); err != nil {
				return fmt.Errorf("job completion upsert failed: %w", err)
			}
		}

		if plan.AssignmentLog != nil {
			entry := plan.AssignmentLog
			id := entry.ID
			if id == "" {
				id = uuid.Generate()
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO job_assignment_logs (id, company_id, job_id,
					technician_id, assigned_by, score, drive_time_minutes,
					is_manual_override, reason, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
				id, entry.CompanyID, entry.JobID, entry.TechnicianID,
				entry.AssignedBy, entry.Score, entry.DriveTimeMinutes,
				entry.IsManualOverride, entry.Reason, entry.CreateTime); err != nil {
				return fmt.Errorf("assignment log insert failed: %w", err)
			}
		}
		if plan.Reassignment != nil {
			entry := plan.Reassignment
			id := entry.ID
			if id == "" {
				id = uuid.Generate()
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO job_reassignments (id, company_id, job_id,
					from_tech_id, to_tech_id, reason, reassigned_by, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				id, entry.CompanyID, entry.JobID, entry.FromTechID,
				entry.ToTechID, entry.Reason, entry.ReassignedBy,
				entry.CreateTime); err != nil {
				return fmt.Errorf("reassignment insert failed: %w", err)
			}
		}
		return nil
	})
}

func (s *PGStore) AssignmentLogsByJob(ctx context.Context, jobID string) ([]*structs.JobAssignmentLog, error) {
	rows, err := selectContext[assignmentLogRow](ctx, s.db, `
		SELECT id, company_id, job_id, technician_id, assigned_by, score,
			drive_time_minutes, is_manual_override, reason, created_at
		FROM job_assignment_logs WHERE job_id = $1 ORDER BY created_at, id`, jobID)
	if err != nil {
		return nil, err
	}
	out := make([]*structs.JobAssignmentLog, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toStruct())
	}
	return out, nil
}

func (s *PGStore) ReassignmentsByJob(ctx context.Context, jobID string) ([]*structs.JobReassignment, error) {
	rows, err := selectContext[reassignmentRow](ctx, s.db, `
		SELECT id, company_id, job_id, from_tech_id, to_tech_id, reason,
			reassigned_by, created_at
		FROM job_reassignments WHERE job_id = $1 ORDER BY created_at, id`, jobID)
	if err != nil {
		return nil, err
	}
	out := make([]*structs.JobReassignment, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toStruct())
	}
	return out, nil
}

const trackingCols = `job_id, company_id, dispatched_at, departed_at, arrived_at,
	work_started_at, work_ended_at, departed_job_at, created_at, updated_at`

func (s *PGStore) TimeTrackingByJob(ctx context.Context, jobID string) (*structs.JobTimeTracking, error) {
	row, err := getContext[timeTrackingRow](ctx, s.db,
		`SELECT `+trackingCols+` FROM job_time_tracking WHERE job_id = $1`, jobID)
	if err != nil || row == nil {
		return nil, err
	}
	return row.toStruct(), nil
}

// RecordTimeTracking applies one ledger event under a row lock, so two
// technicians racing on the same job serialize and the monotonicity check
// sees the latest row. On the completion-sync events the derived minutes
// are coalesced onto the completion row, never overwriting a stored value
// with null.
func (s *PGStore) RecordTimeTracking(ctx context.Context, jobID string, event structs.TimeTrackingEvent, now time.Time) (*structs.JobTimeTracking, error) {
	var tracking *structs.JobTimeTracking
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		row, err := getContext[timeTrackingRow](ctx, tx,
			`SELECT `+trackingCols+` FROM job_time_tracking WHERE job_id = $1 FOR UPDATE`,
			jobID)
		if err != nil {
			return err
		}
		if row == nil {
			return structs.NewNotFoundError("Time tracking")
		}
		tracking = row.toStruct()

		if err := tracking.Apply(event, now); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE job_time_tracking
			SET dispatched_at = $2, departed_at = $3, arrived_at = $4,
				work_started_at = $5, work_ended_at = $6, departed_job_at = $7,
				updated_at = $8
			WHERE job_id = $1`,
			jobID, tracking.DispatchedAt, tracking.DepartedAt, tracking.ArrivedAt,
			tracking.WorkStartedAt, tracking.WorkEndedAt, tracking.DepartedJobAt,
			now); err != nil {
			return fmt.Errorf("time tracking update failed: %w", err)
		}

		if event.SyncsCompletion() {
			if _, err := tx.ExecContext(ctx, `
				UPDATE job_completions
				SET drive_time_minutes = COALESCE($2, drive_time_minutes),
					wrench_time_minutes = COALESCE($3, wrench_time_minutes),
					on_site_minutes = COALESCE($4, on_site_minutes),
					updated_at = $5
				WHERE job_id = $1`,
				jobID, tracking.DriveMinutes(), tracking.WrenchMinutes(),
				tracking.OnSiteMinutes(), now); err != nil {
				return fmt.Errorf("job completion sync failed: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tracking, nil
}

func (s *PGStore) CompletionByJob(ctx context.Context, jobID string) (*structs.JobCompletion, error) {
	row, err := getContext[completionRow](ctx, s.db,
		`SELECT `+completionCols+` FROM job_completions WHERE job_id = $1`, jobID)
	if err != nil || row == nil {
		return nil, err
	}
	return row.toStruct(), nil
}

const completionCols = `job_id, company_id, technician_id, completed_at,
	duration_minutes, drive_time_minutes, wrench_time_minutes, on_site_minutes,
	first_time_fix, callback_required, customer_rating, notes,
	created_at, updated_at`

func jobRowsToStructs(rows []jobRow) ([]*structs.Job, error) {
	out := make([]*structs.Job, 0, len(rows))
	for i := range rows {
		job, err := rows[i].toStruct()
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, nil
}
