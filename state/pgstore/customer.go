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

const customerCols = `id, company_id, name, phone, email, address, address_text,
	lat, lng, geocode_status, geocode_retries, no_show_count, is_active,
	created_at, updated_at`

func (s *PGStore) UpsertCustomer(ctx context.Context, c *structs.Customer) error {
	if c.ID == "" {
		return fmt.Errorf("missing customer ID")
	}
	lat, lng := coordCols(c.Coordinates)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (id, company_id, name, phone, email, address,
			address_text, lat, lng, geocode_status, geocode_retries,
			no_show_count, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO UPDATE SET
			company_id = EXCLUDED.company_id,
			name = EXCLUDED.name,
			phone = EXCLUDED.phone,
			email = EXCLUDED.email,
			address = EXCLUDED.address,
			address_text = EXCLUDED.address_text,
			lat = EXCLUDED.lat,
			lng = EXCLUDED.lng,
			geocode_status = EXCLUDED.geocode_status,
			geocode_retries = EXCLUDED.geocode_retries,
			no_show_count = EXCLUDED.no_show_count,
			is_active = EXCLUDED.is_active,
			updated_at = EXCLUDED.updated_at`,
		c.ID, c.CompanyID, c.Name, c.Phone, c.Email, mustJSON(c.Address),
		c.Address.String(), lat, lng, string(c.GeocodeStatus), c.GeocodeRetries,
		c.NoShowCount, c.IsActive, c.CreateTime, c.ModifyTime)
	if err != nil {
		return fmt.Errorf("customer upsert failed: %w", err)
	}
	return nil
}

func (s *PGStore) CustomerByID(ctx context.Context, id string) (*structs.Customer, error) {
	row, err := getContext[customerRow](ctx, s.db,
		`SELECT `+customerCols+` FROM customers WHERE id = $1`, id)
	if err != nil || row == nil {
		return nil, err
	}
	return row.toStruct()
}

func (s *PGStore) CustomersByCompany(ctx context.Context, companyID string) ([]*structs.Customer, error) {
	rows, err := selectContext[customerRow](ctx, s.db,
		`SELECT `+customerCols+` FROM customers WHERE company_id = $1 ORDER BY name, id`,
		companyID)
	if err != nil {
		return nil, err
	}
	out := make([]*structs.Customer, 0, len(rows))
	for i := range rows {
		c, err := rows[i].toStruct()
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *PGStore) CustomerByPhone(ctx context.Context, phone string) (*structs.Customer, error) {
	if phone == "" {
		return nil, nil
	}
	row, err := getContext[customerRow](ctx, s.db,
		`SELECT `+customerCols+` FROM customers WHERE phone = $1 ORDER BY id LIMIT 1`, phone)
	if err != nil || row == nil {
		return nil, err
	}
	return row.toStruct()
}

const locationCols = `id, company_id, customer_id, label, address, address_text,
	lat, lng, geocode_status, geocode_retries, is_primary, created_at, updated_at`

func (s *PGStore) UpsertCustomerLocation(ctx context.Context, loc *structs.CustomerLocation) error {
	if loc.ID == "" {
		return fmt.Errorf("missing location ID")
	}
	lat, lng := coordCols(loc.Coordinates)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customer_locations (id, company_id, customer_id, label,
			address, address_text, lat, lng, geocode_status, geocode_retries,
			is_primary, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			label = EXCLUDED.label,
			address = EXCLUDED.address,
			address_text = EXCLUDED.address_text,
			lat = EXCLUDED.lat,
			lng = EXCLUDED.lng,
			geocode_status = EXCLUDED.geocode_status,
			geocode_retries = EXCLUDED.geocode_retries,
			is_primary = EXCLUDED.is_primary,
			updated_at = EXCLUDED.updated_at`,
		loc.ID, loc.CompanyID, loc.CustomerID, loc.Label, mustJSON(loc.Address),
		loc.Address.String(), lat, lng, string(loc.GeocodeStatus),
		loc.GeocodeRetries, loc.IsPrimary, loc.CreateTime, loc.ModifyTime)
	if err != nil {
		return fmt.Errorf("customer location upsert failed: %w", err)
	}
	return nil
}

func (s *PGStore) CustomerLocationByID(ctx context.Context, id string) (*structs.CustomerLocation, error) {
	row, err := getContext[customerLocationRow](ctx, s.db,
		`SELECT `+locationCols+` FROM customer_locations WHERE id = $1`, id)
	if err != nil || row == nil {
		return nil, err
	}
	return row.toStruct()
}

func (s *PGStore) LocationsByCustomer(ctx context.Context, customerID string) ([]*structs.CustomerLocation, error) {
	rows, err := selectContext[customerLocationRow](ctx, s.db,
		`SELECT `+locationCols+` FROM customer_locations WHERE customer_id = $1 ORDER BY id`,
		customerID)
	if err != nil {
		return nil, err
	}
	out := make([]*structs.CustomerLocation, 0, len(rows))
	for i := range rows {
		l, err := rows[i].toStruct()
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

// SetPrimaryLocation promotes one location and demotes the customer's other
// primaries in the same transaction, so at most one primary is visible at
// rest.
func (s *PGStore) SetPrimaryLocation(ctx context.Context, customerID, locationID string, now time.Time) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE customer_locations
			SET is_primary = TRUE, updated_at = $3
			WHERE id = $2 AND customer_id = $1`,
			customerID, locationID, now)
		if err != nil {
			return fmt.Errorf("primary promotion failed: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return structs.NewNotFoundError("Location")
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE customer_locations
			SET is_primary = FALSE, updated_at = $3
			WHERE customer_id = $1 AND is_primary AND id <> $2`,
			customerID, locationID, now); err != nil {
			return fmt.Errorf("primary demotion failed: %w", err)
		}
		return nil
	})
}

const equipmentCols = `id, company_id, customer_id, location_id, kind, make,
	model, serial_number, install_date, condition, refrigerant_type, is_active,
	created_at, updated_at`

func (s *PGStore) UpsertEquipment(ctx context.Context, eq *structs.Equipment) error {
	if eq.ID == "" {
		return fmt.Errorf("missing equipment ID")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO equipment (id, company_id, customer_id, location_id, kind,
			make, model, serial_number, install_date, condition,
			refrigerant_type, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			location_id = EXCLUDED.location_id,
			kind = EXCLUDED.kind,
			make = EXCLUDED.make,
			model = EXCLUDED.model,
			serial_number = EXCLUDED.serial_number,
			install_date = EXCLUDED.install_date,
			condition = EXCLUDED.condition,
			refrigerant_type = EXCLUDED.refrigerant_type,
			is_active = EXCLUDED.is_active,
			updated_at = EXCLUDED.updated_at`,
		eq.ID, eq.CompanyID, eq.CustomerID, eq.LocationID, eq.Kind, eq.Make,
		eq.Model, eq.SerialNumber, eq.InstallDate, string(eq.Condition),
		eq.RefrigerantType, eq.IsActive, eq.CreateTime, eq.ModifyTime)
	if err != nil {
		return fmt.Errorf("equipment upsert failed: %w", err)
	}
	return nil
}

func (s *PGStore) EquipmentByID(ctx context.Context, id string) (*structs.Equipment, error) {
	row, err := getContext[equipmentRow](ctx, s.db,
		`SELECT `+equipmentCols+` FROM equipment WHERE id = $1`, id)
	if err != nil || row == nil {
		return nil, err
	}
	return row.toStruct(), nil
}

func (s *PGStore) EquipmentByCustomer(ctx context.Context, customerID string) ([]*structs.Equipment, error) {
	rows, err := selectContext[equipmentRow](ctx, s.db,
		`SELECT `+equipmentCols+` FROM equipment WHERE customer_id = $1 ORDER BY id`,
		customerID)
	if err != nil {
		return nil, err
	}
	out := make([]*structs.Equipment, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toStruct())
	}
	return out, nil
}

const refrigerantLogCols = `id, company_id, job_id, equipment_id, technician_id,
	refrigerant_type, pounds_added, pounds_recovered, notes, corrects_log_id,
	created_at`

// AppendRefrigerantLog inserts one EPA log row. Rows are never updated; a
// correcting entry must reference an existing original.
func (s *PGStore) AppendRefrigerantLog(ctx context.Context, log *structs.RefrigerantLog) error {
	if log.ID == "" {
		return fmt.Errorf("missing refrigerant log ID")
	}
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		if log.CorrectsLogID != "" {
			orig, err := getContext[refrigerantLogRow](ctx, tx,
				`SELECT `+refrigerantLogCols+` FROM refrigerant_logs WHERE id = $1`,
				log.CorrectsLogID)
			if err != nil {
				return err
			}
			if orig == nil {
				return structs.NewNotFoundError("Refrigerant log")
			}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO refrigerant_logs (id, company_id, job_id, equipment_id,
				technician_id, refrigerant_type, pounds_added, pounds_recovered,
				notes, corrects_log_id, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			log.ID, log.CompanyID, log.JobID, log.EquipmentID, log.TechnicianID,
			log.RefrigerantType, log.PoundsAdded, log.PoundsRecovered,
			log.Notes, log.CorrectsLogID, log.CreateTime)
		if err != nil {
			if uniqueViolation(err) {
				return structs.NewConflictError("refrigerant log %s already recorded", log.ID)
			}
			return fmt.Errorf("refrigerant log insert failed: %w", err)
		}
		return nil
	})
}

func (s *PGStore) RefrigerantLogByID(ctx context.Context, id string) (*structs.RefrigerantLog, error) {
	row, err := getContext[refrigerantLogRow](ctx, s.db,
		`SELECT `+refrigerantLogCols+` FROM refrigerant_logs WHERE id = $1`, id)
	if err != nil || row == nil {
		return nil, err
	}
	return row.toStruct(), nil
}

func (s *PGStore) RefrigerantLogsByEquipment(ctx context.Context, equipmentID string) ([]*structs.RefrigerantLog, error) {
	rows, err := selectContext[refrigerantLogRow](ctx, s.db,
		`SELECT `+refrigerantLogCols+` FROM refrigerant_logs
		 WHERE equipment_id = $1 ORDER BY created_at, id`,
		equipmentID)
	if err != nil {
		return nil, err
	}
	out := make([]*structs.RefrigerantLog, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toStruct())
	}
	return out, nil
}
