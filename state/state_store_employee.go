// Copyright (c) Fieldward, Inc.
// SPDX-License-Identifier: BUSL-1.1

package state

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-memdb"

	"github.com/fieldward/fieldward/structs"
)

func (s *StateStore) UpsertEmployee(_ context.Context, emp *structs.Employee) error {
	if emp.ID == "" {
		return fmt.Errorf("missing employee ID")
	}
	txn := s.db.Txn(true)
	defer txn.Abort()

	if err := txn.Insert(TableEmployees, emp.Copy()); err != nil {
		return fmt.Errorf("employee insert failed: %w", err)
	}
	txn.Commit()
	return nil
}

func (s *StateStore) EmployeeByID(_ context.Context, id string) (*structs.Employee, error) {
	txn := s.db.Txn(false)
	return first[*structs.Employee](txn, TableEmployees, indexID, id)
}

func (s *StateStore) EmployeesByCompany(_ context.Context, companyID string) ([]*structs.Employee, error) {
	txn := s.db.Txn(false)
	out, err := list[*structs.Employee](txn, TableEmployees, indexCompany, companyID)
	if err != nil {
		return nil, err
	}
	sortStable(out, func(a, b *structs.Employee) bool { return a.Name < b.Name })
	return out, nil
}

// EligibleEmployees returns the dispatch pool for a company: active,
// available, under cap, with a location reported inside the freshness
// window.
func (s *StateStore) EligibleEmployees(_ context.Context, companyID string, now time.Time) ([]*structs.Employee, error) {
	txn := s.db.Txn(false)
	out, err := filtered(txn, TableEmployees, indexCompany,
		func(e *structs.Employee) bool { return e.Dispatchable(now) }, companyID)
	if err != nil {
		return nil, err
	}
	sortStable(out, func(a, b *structs.Employee) bool { return a.ID < b.ID })
	return out, nil
}

func (s *StateStore) UpdateEmployeeLocation(_ context.Context, employeeID string, loc structs.Coordinates, now time.Time) error {
	txn := s.db.Txn(true)
	defer txn.Abort()

	emp, err := first[*structs.Employee](txn, TableEmployees, indexID, employeeID)
	if err != nil {
		return err
	}
	if emp == nil {
		return structs.NewNotFoundError("Employee")
	}

	emp.CurrentLocation = &loc
	emp.LocationUpdatedAt = now
	emp.ModifyTime = now
	if err := txn.Insert(TableEmployees, emp); err != nil {
		return fmt.Errorf("employee insert failed: %w", err)
	}
	txn.Commit()
	return nil
}

// releaseTechTxn clears a technician's current job and decrements the
// counter, clamped at zero. Used inside job transition transactions.
func releaseTechTxn(txn *memdb.Txn, techID string, stampCompleted bool, now time.Time) error {
	emp, err := first[*structs.Employee](txn, TableEmployees, indexID, techID)
	if err != nil {
		return err
	}
	if emp == nil {
		// The tech row may have been deleted out from under an old job;
		// releasing a missing tech must not fail the transition.
		return nil
	}

	if emp.CurrentJobsCount > 0 {
		emp.CurrentJobsCount--
	}
	emp.CurrentJobID = nil
	if stampCompleted {
		t := now
		emp.LastJobCompletedAt = &t
	}
	emp.ModifyTime = now
	if err := txn.Insert(TableEmployees, emp); err != nil {
		return fmt.Errorf("employee insert failed: %w", err)
	}
	return nil
}

// assignTechTxn increments a technician's counter and points its current
// job at jobID. Used inside job transition transactions.
func assignTechTxn(txn *memdb.Txn, techID, jobID string, now time.Time) error {
	emp, err := first[*structs.Employee](txn, TableEmployees, indexID, techID)
	if err != nil {
		return err
	}
	if emp == nil {
		return structs.NewNotFoundError("Employee")
	}

	emp.CurrentJobsCount++
	id := jobID
	emp.CurrentJobID = &id
	emp.ModifyTime = now
	if err := txn.Insert(TableEmployees, emp); err != nil {
		return fmt.Errorf("employee insert failed: %w", err)
	}
	return nil
}
