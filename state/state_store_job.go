// Copyright (c) Fieldward, Inc.
// SPDX-License-Identifier: BUSL-1.1

package state

import (
	"context"
	"fmt"
	"time"

	"github.com/fieldward/fieldward/helper/uuid"
	"github.com/fieldward/fieldward/structs"
)

func (s *StateStore) UpsertJob(_ context.Context, job *structs.Job) error {
	if job.ID == "" {
		return fmt.Errorf("missing job ID")
	}
	txn := s.db.Txn(true)
	defer txn.Abort()

	if err := txn.Insert(TableJobs, job.Copy()); err != nil {
		return fmt.Errorf("job insert failed: %w", err)
	}
	txn.Commit()
	return nil
}

func (s *StateStore) JobByID(_ context.Context, id string) (*structs.Job, error) {
	txn := s.db.Txn(false)
	return first[*structs.Job](txn, TableJobs, indexID, id)
}

func (s *StateStore) JobsByCompany(_ context.Context, companyID string, filter JobListFilter) ([]*structs.Job, error) {
	txn := s.db.Txn(false)
	out, err := filtered(txn, TableJobs, indexCompany, filter.Matches, companyID)
	if err != nil {
		return nil, err
	}
	sortStable(out, func(a, b *structs.Job) bool {
		if !a.CreateTime.Equal(b.CreateTime) {
			return a.CreateTime.After(b.CreateTime)
		}
		return a.ID < b.ID
	})
	return out, nil
}

// JobsByIDs returns the company's jobs among ids, in input order. IDs that
// do not resolve inside the company are simply absent from the result.
func (s *StateStore) JobsByIDs(_ context.Context, companyID string, ids []string) ([]*structs.Job, error) {
	txn := s.db.Txn(false)
	out := make([]*structs.Job, 0, len(ids))
	for _, id := range ids {
		job, err := first[*structs.Job](txn, TableJobs, indexID, id)
		if err != nil {
			return nil, err
		}
		if job == nil || job.CompanyID != companyID {
			continue
		}
		out = append(out, job)
	}
	return out, nil
}

// ApplyJobTransition persists one transition plan atomically: the job row,
// both technician counter updates, and the tracking, completion, and audit
// rows the plan carries.
func (s *StateStore) ApplyJobTransition(_ context.Context, plan *structs.TransitionPlan) error {
	if plan == nil || plan.Job == nil {
		return fmt.Errorf("missing transition plan")
	}
	txn := s.db.Txn(true)
	defer txn.Abort()

	now := plan.Job.ModifyTime

	if err := txn.Insert(TableJobs, plan.Job.Copy()); err != nil {
		return fmt.Errorf("job insert failed: %w", err)
	}

	if plan.ReleaseTechID != "" {
		if err := releaseTechTxn(txn, plan.ReleaseTechID, plan.StampLastCompleted, now); err != nil {
			return err
		}
	}
	if plan.AssignTechID != "" {
		if err := assignTechTxn(txn, plan.AssignTechID, plan.Job.ID, now); err != nil {
			return err
		}
	}

	if plan.CreateTracking != nil {
		if err := txn.Insert(TableJobTimeTracking, plan.CreateTracking.Copy()); err != nil {
			return fmt.Errorf("time tracking insert failed: %w", err)
		}
	}

	if plan.Completion != nil {
		completion := plan.Completion.Copy()
		// Ledger metrics recorded before close-out survive the upsert.
		existing, err := first[*structs.JobCompletion](txn, TableJobCompletions, indexID, plan.Job.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			completion.CreateTime = existing.CreateTime
			completion.MergeDerived(existing.DriveTimeMinutes, existing.WrenchTimeMinutes, existing.OnSiteMinutes)
		}
		if err := txn.Insert(TableJobCompletions, completion); err != nil {
			return fmt.Errorf("job completion insert failed: %w", err)
		}
	}

	if plan.AssignmentLog != nil {
		entry := *plan.AssignmentLog
		if entry.ID == "" {
			entry.ID = uuid.Generate()
		}
		if err := txn.Insert(TableAssignmentLogs, &entry); err != nil {
			return fmt.Errorf("assignment log insert failed: %w", err)
		}
	}
	if plan.Reassignment != nil {
		entry := *plan.Reassignment
		if entry.ID == "" {
			entry.ID = uuid.Generate()
		}
		if err := txn.Insert(TableReassignments, &entry); err != nil {
			return fmt.Errorf("reassignment insert failed: %w", err)
		}
	}

	txn.Commit()
	return nil
}

func (s *StateStore) AssignmentLogsByJob(_ context.Context, jobID string) ([]*structs.JobAssignmentLog, error) {
	txn := s.db.Txn(false)
	iter, err := txn.Get(TableAssignmentLogs, indexJob, jobID)
	if err != nil {
		return nil, fmt.Errorf("assignment log lookup failed: %w", err)
	}
	var out []*structs.JobAssignmentLog
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		cp := *raw.(*structs.JobAssignmentLog)
		out = append(out, &cp)
	}
	sortStable(out, func(a, b *structs.JobAssignmentLog) bool { return a.CreateTime.Before(b.CreateTime) })
	return out, nil
}

func (s *StateStore) ReassignmentsByJob(_ context.Context, jobID string) ([]*structs.JobReassignment, error) {
	txn := s.db.Txn(false)
	iter, err := txn.Get(TableReassignments, indexJob, jobID)
	if err != nil {
		return nil, fmt.Errorf("reassignment lookup failed: %w", err)
	}
	var out []*structs.JobReassignment
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		cp := *raw.(*structs.JobReassignment)
		out = append(out, &cp)
	}
	sortStable(out, func(a, b *structs.JobReassignment) bool { return a.CreateTime.Before(b.CreateTime) })
	return out, nil
}

func (s *StateStore) TimeTrackingByJob(_ context.Context, jobID string) (*structs.JobTimeTracking, error) {
	txn := s.db.Txn(false)
	return first[*structs.JobTimeTracking](txn, TableJobTimeTracking, indexID, jobID)
}

// RecordTimeTracking applies one ledger event to the job's tracking row.
// On the completion-sync events the derived minutes are coalesced onto the
// job's completion row, never overwriting a stored value with null.
func (s *StateStore) RecordTimeTracking(_ context.Context, jobID string, event structs.TimeTrackingEvent, now time.Time) (*structs.JobTimeTracking, error) {
	txn := s.db.Txn(true)
	defer txn.Abort()

	tracking, err := first[*structs.JobTimeTracking](txn, TableJobTimeTracking, indexID, jobID)
	if err != nil {
		return nil, err
	}
	if tracking == nil {
		return nil, structs.NewNotFoundError("Time tracking")
	}

	if err := tracking.Apply(event, now); err != nil {
		return nil, err
	}
	if err := txn.Insert(TableJobTimeTracking, tracking.Copy()); err != nil {
		return nil, fmt.Errorf("time tracking insert failed: %w", err)
	}

	if event.SyncsCompletion() {
		completion, err := first[*structs.JobCompletion](txn, TableJobCompletions, indexID, jobID)
		if err != nil {
			return nil, err
		}
		if completion != nil {
			completion.MergeDerived(tracking.DriveMinutes(), tracking.WrenchMinutes(), tracking.OnSiteMinutes())
			completion.ModifyTime = now
			if err := txn.Insert(TableJobCompletions, completion); err != nil {
				return nil, fmt.Errorf("job completion insert failed: %w", err)
			}
		}
	}

	txn.Commit()
	return tracking, nil
}

func (s *StateStore) CompletionByJob(_ context.Context, jobID string) (*structs.JobCompletion, error) {
	txn := s.db.Txn(false)
	return first[*structs.JobCompletion](txn, TableJobCompletions, indexID, jobID)
}
