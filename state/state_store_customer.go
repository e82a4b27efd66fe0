// Copyright (c) Fieldward, Inc.
// SPDX-License-Identifier: BUSL-1.1

package state

import (
	"context"
	"fmt"
	"time"

	"github.com/fieldward/fieldward/structs"
)

func (s *StateStore) UpsertCustomer(_ context.Context, c *structs.Customer) error {
	if c.ID == "" {
		return fmt.Errorf("missing customer ID")
	}
	txn := s.db.Txn(true)
	defer txn.Abort()

	if err := txn.Insert(TableCustomers, c.Copy()); err != nil {
		return fmt.Errorf("customer insert failed: %w", err)
	}
	txn.Commit()
	return nil
}

func (s *StateStore) CustomerByID(_ context.Context, id string) (*structs.Customer, error) {
	txn := s.db.Txn(false)
	return first[*structs.Customer](txn, TableCustomers, indexID, id)
}

func (s *StateStore) CustomersByCompany(_ context.Context, companyID string) ([]*structs.Customer, error) {
	txn := s.db.Txn(false)
	out, err := list[*structs.Customer](txn, TableCustomers, indexCompany, companyID)
	if err != nil {
		return nil, err
	}
	sortStable(out, func(a, b *structs.Customer) bool { return a.Name < b.Name })
	return out, nil
}

// CustomerByPhone matches the SMS webhook's counterparty to a customer.
// Phone formats are stored as received; callers normalize before lookup.
func (s *StateStore) CustomerByPhone(_ context.Context, phone string) (*structs.Customer, error) {
	if phone == "" {
		return nil, nil
	}
	txn := s.db.Txn(false)
	iter, err := txn.Get(TableCustomers, indexID)
	if err != nil {
		return nil, fmt.Errorf("customers lookup failed: %w", err)
	}
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		c := raw.(*structs.Customer)
		if c.Phone == phone {
			return c.Copy(), nil
		}
	}
	return nil, nil
}

func (s *StateStore) UpsertCustomerLocation(_ context.Context, loc *structs.CustomerLocation) error {
	if loc.ID == "" {
		return fmt.Errorf("missing location ID")
	}
	txn := s.db.Txn(true)
	defer txn.Abort()

	if err := txn.Insert(TableCustomerLocations, loc.Copy()); err != nil {
		return fmt.Errorf("customer location insert failed: %w", err)
	}
	txn.Commit()
	return nil
}

func (s *StateStore) CustomerLocationByID(_ context.Context, id string) (*structs.CustomerLocation, error) {
	txn := s.db.Txn(false)
	return first[*structs.CustomerLocation](txn, TableCustomerLocations, indexID, id)
}

func (s *StateStore) LocationsByCustomer(_ context.Context, customerID string) ([]*structs.CustomerLocation, error) {
	txn := s.db.Txn(false)
	out, err := list[*structs.CustomerLocation](txn, TableCustomerLocations, indexCustomer, customerID)
	if err != nil {
		return nil, err
	}
	sortStable(out, func(a, b *structs.CustomerLocation) bool { return a.ID < b.ID })
	return out, nil
}

// SetPrimaryLocation promotes one location and demotes every other primary
// of the same customer in the same transaction, so at most one primary is
// ever visible at rest.
func (s *StateStore) SetPrimaryLocation(_ context.Context, customerID, locationID string, now time.Time) error {
	txn := s.db.Txn(true)
	defer txn.Abort()

	target, err := first[*structs.CustomerLocation](txn, TableCustomerLocations, indexID, locationID)
	if err != nil {
		return err
	}
	if target == nil || target.CustomerID != customerID {
		return structs.NewNotFoundError("Location")
	}

	others, err := list[*structs.CustomerLocation](txn, TableCustomerLocations, indexCustomer, customerID)
	if err != nil {
		return err
	}
	for _, other := range others {
		if other.ID == locationID || !other.IsPrimary {
			continue
		}
		other.IsPrimary = false
		other.ModifyTime = now
		if err := txn.Insert(TableCustomerLocations, other); err != nil {
			return fmt.Errorf("customer location insert failed: %w", err)
		}
	}

	target.IsPrimary = true
	target.ModifyTime = now
	if err := txn.Insert(TableCustomerLocations, target); err != nil {
		return fmt.Errorf("customer location insert failed: %w", err)
	}
	txn.Commit()
	return nil
}

func (s *StateStore) UpsertEquipment(_ context.Context, eq *structs.Equipment) error {
	if eq.ID == "" {
		return fmt.Errorf("missing equipment ID")
	}
	txn := s.db.Txn(true)
	defer txn.Abort()

	cp := *eq
	if err := txn.Insert(TableEquipment, &cp); err != nil {
		return fmt.Errorf("equipment insert failed: %w", err)
	}
	txn.Commit()
	return nil
}

func (s *StateStore) EquipmentByID(_ context.Context, id string) (*structs.Equipment, error) {
	txn := s.db.Txn(false)
	raw, err := txn.First(TableEquipment, indexID, id)
	if err != nil {
		return nil, fmt.Errorf("equipment lookup failed: %w", err)
	}
	if raw == nil {
		return nil, nil
	}
	cp := *raw.(*structs.Equipment)
	return &cp, nil
}

func (s *StateStore) EquipmentByCustomer(_ context.Context, customerID string) ([]*structs.Equipment, error) {
	txn := s.db.Txn(false)
	iter, err := txn.Get(TableEquipment, indexCustomer, customerID)
	if err != nil {
		return nil, fmt.Errorf("equipment lookup failed: %w", err)
	}
	var out []*structs.Equipment
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		cp := *raw.(*structs.Equipment)
		out = append(out, &cp)
	}
	sortStable(out, func(a, b *structs.Equipment) bool { return a.ID < b.ID })
	return out, nil
}

// AppendRefrigerantLog inserts one EPA log row. Rows are never updated;
// a correcting entry must reference an existing original.
func (s *StateStore) AppendRefrigerantLog(_ context.Context, log *structs.RefrigerantLog) error {
	if log.ID == "" {
		return fmt.Errorf("missing refrigerant log ID")
	}
	txn := s.db.Txn(true)
	defer txn.Abort()

	existing, err := txn.First(TableRefrigerantLogs, indexID, log.ID)
	if err != nil {
		return fmt.Errorf("refrigerant log lookup failed: %w", err)
	}
	if existing != nil {
		return structs.NewConflictError("refrigerant log %s already recorded", log.ID)
	}

	if log.CorrectsLogID != "" {
		orig, err := txn.First(TableRefrigerantLogs, indexID, log.CorrectsLogID)
		if err != nil {
			return fmt.Errorf("refrigerant log lookup failed: %w", err)
		}
		if orig == nil {
			return structs.NewNotFoundError("Refrigerant log")
		}
	}

	cp := *log
	if err := txn.Insert(TableRefrigerantLogs, &cp); err != nil {
		return fmt.Errorf("refrigerant log insert failed: %w", err)
	}
	txn.Commit()
	return nil
}

func (s *StateStore) RefrigerantLogByID(_ context.Context, id string) (*structs.RefrigerantLog, error) {
	txn := s.db.Txn(false)
	raw, err := txn.First(TableRefrigerantLogs, indexID, id)
	if err != nil {
		return nil, fmt.Errorf("refrigerant log lookup failed: %w", err)
	}
	if raw == nil {
		return nil, nil
	}
	cp := *raw.(*structs.RefrigerantLog)
	return &cp, nil
}

func (s *StateStore) RefrigerantLogsByEquipment(_ context.Context, equipmentID string) ([]*structs.RefrigerantLog, error) {
	txn := s.db.Txn(false)
	iter, err := txn.Get(TableRefrigerantLogs, "equipment", equipmentID)
	if err != nil {
		return nil, fmt.Errorf("refrigerant log lookup failed: %w", err)
	}
	var out []*structs.RefrigerantLog
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		cp := *raw.(*structs.RefrigerantLog)
		out = append(out, &cp)
	}
	sortStable(out, func(a, b *structs.RefrigerantLog) bool { return a.CreateTime.Before(b.CreateTime) })
	return out, nil
}
