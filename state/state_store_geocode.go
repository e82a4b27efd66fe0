// Copyright (c) Fieldward, Inc.
// SPDX-License-Identifier: BUSL-1.1

package state

import (
	"context"
	"fmt"
	"time"

	"github.com/fieldward/fieldward/structs"
)

func geocodePending(status structs.GeocodeStatus, retries int, address structs.Address) bool {
	if address.Empty() {
		return false
	}
	switch status {
	case structs.GeocodePending:
		return true
	case structs.GeocodeFailed:
		return retries < structs.MaxGeocodeRetries
	}
	return false
}

// ClaimGeocodeTasks returns up to limit rows awaiting address resolution,
// drawn from jobs, customers, and customer locations in that order. The
// in-memory store runs single-process, so claiming is just selection; the
// Postgres store locks the rows it claims.
func (s *StateStore) ClaimGeocodeTasks(_ context.Context, limit int) ([]*structs.GeocodeTask, error) {
	txn := s.db.Txn(false)
	var out []*structs.GeocodeTask

	jobs, err := filtered(txn, TableJobs, indexID, func(j *structs.Job) bool {
		return geocodePending(j.GeocodeStatus, j.GeocodeRetries, j.Address)
	})
	if err != nil {
		return nil, err
	}
	sortStable(jobs, func(a, b *structs.Job) bool { return a.ID < b.ID })
	for _, j := range jobs {
		out = append(out, &structs.GeocodeTask{
			Kind:    structs.GeocodeKindJob,
			ID:      j.ID,
			Address: j.Address.String(),
			Retries: j.GeocodeRetries,
		})
	}

	customers, err := filtered(txn, TableCustomers, indexID, func(c *structs.Customer) bool {
		return geocodePending(c.GeocodeStatus, c.GeocodeRetries, c.Address)
	})
	if err != nil {
		return nil, err
	}
	sortStable(customers, func(a, b *structs.Customer) bool { return a.ID < b.ID })
	for _, c := range customers {
		out = append(out, &structs.GeocodeTask{
			Kind:    structs.GeocodeKindCustomer,
			ID:      c.ID,
			Address: c.Address.String(),
			Retries: c.GeocodeRetries,
		})
	}

	locations, err := filtered(txn, TableCustomerLocations, indexID, func(l *structs.CustomerLocation) bool {
		return geocodePending(l.GeocodeStatus, l.GeocodeRetries, l.Address)
	})
	if err != nil {
		return nil, err
	}
	sortStable(locations, func(a, b *structs.CustomerLocation) bool { return a.ID < b.ID })
	for _, l := range locations {
		out = append(out, &structs.GeocodeTask{
			Kind:    structs.GeocodeKindCustomerLocation,
			ID:      l.ID,
			Address: l.Address.String(),
			Retries: l.GeocodeRetries,
		})
	}

	return capLimit(out, limit), nil
}

// ResolveGeocodeTask writes one lookup outcome back to the claimed row.
// Success stores the coordinates; failure bumps the retry counter and
// marks the row failed. The update is conditional on the row still
// carrying the address the task was claimed with, so a concurrent address
// change wins and the stale result is dropped.
func (s *StateStore) ResolveGeocodeTask(_ context.Context, task *structs.GeocodeTask, coords *structs.Coordinates, now time.Time) error {
	txn := s.db.Txn(true)
	defer txn.Abort()

	switch task.Kind {
	case structs.GeocodeKindJob:
		job, err := first[*structs.Job](txn, TableJobs, indexID, task.ID)
		if err != nil {
			return err
		}
		if job == nil || job.Address.String() != task.Address {
			return nil
		}
		applyGeocodeOutcome(&job.Coordinates, &job.GeocodeStatus, &job.GeocodeRetries, coords)
		job.ModifyTime = now
		if err := txn.Insert(TableJobs, job); err != nil {
			return fmt.Errorf("job insert failed: %w", err)
		}

	case structs.GeocodeKindCustomer:
		c, err := first[*structs.Customer](txn, TableCustomers, indexID, task.ID)
		if err != nil {
			return err
		}
		if c == nil || c.Address.String() != task.Address {
			return nil
		}
		applyGeocodeOutcome(&c.Coordinates, &c.GeocodeStatus, &c.GeocodeRetries, coords)
		c.ModifyTime = now
		if err := txn.Insert(TableCustomers, c); err != nil {
			return fmt.Errorf("customer insert failed: %w", err)
		}

	case structs.GeocodeKindCustomerLocation:
		l, err := first[*structs.CustomerLocation](txn, TableCustomerLocations, indexID, task.ID)
		if err != nil {
			return err
		}
		if l == nil || l.Address.String() != task.Address {
			return nil
		}
		applyGeocodeOutcome(&l.Coordinates, &l.GeocodeStatus, &l.GeocodeRetries, coords)
		l.ModifyTime = now
		if err := txn.Insert(TableCustomerLocations, l); err != nil {
			return fmt.Errorf("customer location insert failed: %w", err)
		}

	default:
		return fmt.Errorf("unknown geocode kind %q", task.Kind)
	}

	txn.Commit()
	return nil
}

func applyGeocodeOutcome(target **structs.Coordinates, status *structs.GeocodeStatus, retries *int, coords *structs.Coordinates) {
	if coords != nil {
		*target = coords.Copy()
		*status = structs.GeocodeComplete
		return
	}
	*status = structs.GeocodeFailed
	*retries++
}
