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

// geocodeTaskRow is the slim projection the claim queries return.
type geocodeTaskRow struct {
	ID      string `db:"id"`
	Address string `db:"address_text"`
	Retries int    `db:"geocode_retries"`
}

// geocodePendingCond selects rows awaiting resolution: a non-empty address
// that is either untried or failed under the retry cap. Args are the
// pending status, the failed status, and the retry cap.
const geocodePendingCond = `address_text <> ''
	AND (geocode_status = $1 OR (geocode_status = $2 AND geocode_retries < $3))`

// ClaimGeocodeTasks returns up to limit rows awaiting address resolution,
// drawn from jobs, customers, and customer locations in that order. Rows
// are locked with SKIP LOCKED for the duration of the claim, so concurrent
// agents draw disjoint batches; the conditional resolve keeps any overlap
// across batches harmless.
func (s *PGStore) ClaimGeocodeTasks(ctx context.Context, limit int) ([]*structs.GeocodeTask, error) {
	var out []*structs.GeocodeTask

	claim := func(tx *sqlx.Tx, table string, kind structs.GeocodeKind) error {
		var remaining any
		if limit > 0 {
			n := limit - len(out)
			if n <= 0 {
				return nil
			}
			remaining = n
		}
		rows, err := selectContext[geocodeTaskRow](ctx, tx, fmt.Sprintf(`
			SELECT id, address_text, geocode_retries FROM %s
			WHERE %s
			ORDER BY id
			LIMIT $4
			FOR UPDATE SKIP LOCKED`, table, geocodePendingCond),
			string(structs.GeocodePending), string(structs.GeocodeFailed),
			structs.MaxGeocodeRetries, remaining)
		if err != nil {
			return err
		}
		for _, row := range rows {
			out = append(out, &structs.GeocodeTask{
				Kind:    kind,
				ID:      row.ID,
				Address: row.Address,
				Retries: row.Retries,
			})
		}
		return nil
	}

	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := claim(tx, "jobs", structs.GeocodeKindJob); err != nil {
			return err
		}
		if err := claim(tx, "customers", structs.GeocodeKindCustomer); err != nil {
			return err
		}
		return claim(tx, "customer_locations", structs.GeocodeKindCustomerLocation)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func geocodeTable(kind structs.GeocodeKind) (string, error) {
	switch kind {
	case structs.GeocodeKindJob:
		return "jobs", nil
	case structs.GeocodeKindCustomer:
		return "customers", nil
	case structs.GeocodeKindCustomerLocation:
		return "customer_locations", nil
	}
	return "", fmt.Errorf("unknown geocode kind %q", kind)
}

// ResolveGeocodeTask writes one lookup outcome back to the claimed row.
// Success stores the coordinates; failure bumps the retry counter and
// marks the row failed. The update is conditional on the row still
// carrying the address the task was claimed with, so a concurrent address
// change wins and the stale result is dropped.
func (s *PGStore) ResolveGeocodeTask(ctx context.Context, task *structs.GeocodeTask, coords *structs.Coordinates, now time.Time) error {
	table, err := geocodeTable(task.Kind)
	if err != nil {
		return err
	}

	if coords != nil {
		_, err = s.db.ExecContext(ctx, fmt.Sprintf(`
			UPDATE %s
			SET lat = $3, lng = $4, geocode_status = $5, updated_at = $6
			WHERE id = $1 AND address_text = $2`, table),
			task.ID, task.Address, coords.Latitude, coords.Longitude,
			string(structs.GeocodeComplete), now)
	} else {
		_, err = s.db.ExecContext(ctx, fmt.Sprintf(`
			UPDATE %s
			SET geocode_status = $3, geocode_retries = geocode_retries + 1, updated_at = $4
			WHERE id = $1 AND address_text = $2`, table),
			task.ID, task.Address, string(structs.GeocodeFailed), now)
	}
	if err != nil {
		return fmt.Errorf("geocode resolve failed: %w", err)
	}
	return nil
}
