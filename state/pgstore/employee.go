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

const employeeCols = `id, company_id, name, phone, skills, skill_level,
	is_active, is_available, current_job_id, current_jobs_count,
	max_concurrent_jobs, rating, home_address, current_lat, current_lng,
	location_updated_at, last_job_completed_at, created_at, updated_at`

func (s *PGStore) UpsertEmployee(ctx context.Context, emp *structs.Employee) error {
	if emp.ID == "" {
		return fmt.Errorf("missing employee ID")
	}
	lat, lng := coordCols(emp.CurrentLocation)
	var skillLevel []byte
	if emp.SkillLevel != nil {
		skillLevel = mustJSON(emp.SkillLevel)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO employees (id, company_id, name, phone, skills, skill_level,
			is_active, is_available, current_job_id, current_jobs_count,
			max_concurrent_jobs, rating, home_address, current_lat, current_lng,
			location_updated_at, last_job_completed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT (id) DO UPDATE SET
			company_id = EXCLUDED.company_id,
			name = EXCLUDED.name,
			phone = EXCLUDED.phone,
			skills = EXCLUDED.skills,
			skill_level = EXCLUDED.skill_level,
			is_active = EXCLUDED.is_active,
			is_available = EXCLUDED.is_available,
			current_job_id = EXCLUDED.current_job_id,
			current_jobs_count = EXCLUDED.current_jobs_count,
			max_concurrent_jobs = EXCLUDED.max_concurrent_jobs,
			rating = EXCLUDED.rating,
			home_address = EXCLUDED.home_address,
			current_lat = EXCLUDED.current_lat,
			current_lng = EXCLUDED.current_lng,
			location_updated_at = EXCLUDED.location_updated_at,
			last_job_completed_at = EXCLUDED.last_job_completed_at,
			updated_at = EXCLUDED.updated_at`,
		emp.ID, emp.CompanyID, emp.Name, emp.Phone, mustJSON(emp.Skills),
		skillLevel, emp.IsActive, emp.IsAvailable, emp.CurrentJobID,
		emp.CurrentJobsCount, emp.MaxConcurrentJobs, emp.Rating,
		mustJSON(emp.HomeAddress), lat, lng, nilWhenZero(emp.LocationUpdatedAt),
		emp.LastJobCompletedAt, emp.CreateTime, emp.ModifyTime)
	if err != nil {
		return fmt.Errorf("employee upsert failed: %w", err)
	}
	return nil
}

func (s *PGStore) EmployeeByID(ctx context.Context, id string) (*structs.Employee, error) {
	row, err := getContext[employeeRow](ctx, s.db,
		`SELECT `+employeeCols+` FROM employees WHERE id = $1`, id)
	if err != nil || row == nil {
		return nil, err
	}
	return row.toStruct()
}

func (s *PGStore) EmployeesByCompany(ctx context.Context, companyID string) ([]*structs.Employee, error) {
	rows, err := selectContext[employeeRow](ctx, s.db,
		`SELECT `+employeeCols+` FROM employees WHERE company_id = $1 ORDER BY name, id`,
		companyID)
	if err != nil {
		return nil, err
	}
	return employeeRowsToStructs(rows)
}

// EligibleEmployees evaluates the dispatch pre-filter in SQL: active,
// available, under cap (falling back to the legacy cap for rows without
// one), located, and fresh.
func (s *PGStore) EligibleEmployees(ctx context.Context, companyID string, now time.Time) ([]*structs.Employee, error) {
	cutoff := now.Add(-structs.LocationFreshness)
	rows, err := selectContext[employeeRow](ctx, s.db, `
		SELECT `+employeeCols+` FROM employees
		WHERE company_id = $1
		  AND is_active AND is_available
		  AND current_jobs_count < CASE WHEN max_concurrent_jobs > 0
			THEN max_concurrent_jobs ELSE $2 END
		  AND current_lat IS NOT NULL
		  AND location_updated_at >= $3
		ORDER BY id`,
		companyID, structs.DispatchFallbackMaxJobs, cutoff)
	if err != nil {
		return nil, err
	}
	return employeeRowsToStructs(rows)
}

func (s *PGStore) UpdateEmployeeLocation(ctx context.Context, employeeID string, loc structs.Coordinates, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE employees
		SET current_lat = $2, current_lng = $3, location_updated_at = $4, updated_at = $4
		WHERE id = $1`,
		employeeID, loc.Latitude, loc.Longitude, now)
	if err != nil {
		return fmt.Errorf("employee location update failed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return structs.NewNotFoundError("Employee")
	}
	return nil
}

func employeeRowsToStructs(rows []employeeRow) ([]*structs.Employee, error) {
	out := make([]*structs.Employee, 0, len(rows))
	for i := range rows {
		emp, err := rows[i].toStruct()
		if err != nil {
			return nil, err
		}
		out = append(out, emp)
	}
	return out, nil
}

// releaseTech clears a technician's current job and decrements the counter,
// clamped at zero in SQL so concurrent releases can never drive it negative.
func releaseTech(ctx context.Context, tx *sqlx.Tx, techID string, stampCompleted bool, now time.Time) error {
	var err error
	if stampCompleted {
		_, err = tx.ExecContext(ctx, `
			UPDATE employees
			SET current_jobs_count = GREATEST(0, current_jobs_count - 1),
				current_job_id = NULL,
				last_job_completed_at = $2,
				updated_at = $2
			WHERE id = $1`, techID, now)
	} else {
		_, err = tx.ExecContext(ctx, `
			UPDATE employees
			SET current_jobs_count = GREATEST(0, current_jobs_count - 1),
				current_job_id = NULL,
				updated_at = $2
			WHERE id = $1`, techID, now)
	}
	if err != nil {
		return fmt.Errorf("technician release failed: %w", err)
	}
	// A missing tech row must not fail the transition; zero rows is fine.
	return nil
}

// assignTech increments a technician's counter and points current_job_id at
// the job. Unlike release, assigning to a missing tech is an error.
func assignTech(ctx context.Context, tx *sqlx.Tx, techID, jobID string, now time.Time) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE employees
		SET current_jobs_count = current_jobs_count + 1,
			current_job_id = $2,
			updated_at = $3
		WHERE id = $1`, techID, jobID, now)
	if err != nil {
		return fmt.Errorf("technician assignment failed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return structs.NewNotFoundError("Employee")
	}
	return nil
}
