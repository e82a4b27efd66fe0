// Copyright (c) Fieldward, Inc.
// SPDX-License-Identifier: BUSL-1.1

package state

import (
	"context"
	"fmt"
	"strings"

	"github.com/fieldward/fieldward/structs"
)

func (s *StateStore) UpsertCompany(_ context.Context, company *structs.Company) error {
	if company.ID == "" {
		return fmt.Errorf("missing company ID")
	}
	txn := s.db.Txn(true)
	defer txn.Abort()

	if err := txn.Insert(TableCompanies, company.Copy()); err != nil {
		return fmt.Errorf("company insert failed: %w", err)
	}
	txn.Commit()
	return nil
}

func (s *StateStore) CompanyByID(_ context.Context, id string) (*structs.Company, error) {
	txn := s.db.Txn(false)
	return first[*structs.Company](txn, TableCompanies, indexID, id)
}

func (s *StateStore) Companies(_ context.Context) ([]*structs.Company, error) {
	txn := s.db.Txn(false)
	out, err := list[*structs.Company](txn, TableCompanies, indexID)
	if err != nil {
		return nil, err
	}
	sortStable(out, func(a, b *structs.Company) bool { return a.Name < b.Name })
	return out, nil
}

func (s *StateStore) UpsertUser(_ context.Context, user *structs.User) error {
	if user.ID == "" {
		return fmt.Errorf("missing user ID")
	}
	txn := s.db.Txn(true)
	defer txn.Abort()

	// Emails are unique across all tenants.
	existing, err := first[*structs.User](txn, TableUsers, indexEmail, user.Email)
	if err != nil {
		return err
	}
	if existing != nil && existing.ID != user.ID {
		return structs.NewConflictError("email %s is already registered", user.Email)
	}

	if err := txn.Insert(TableUsers, user.Copy()); err != nil {
		return fmt.Errorf("user insert failed: %w", err)
	}
	txn.Commit()
	return nil
}

func (s *StateStore) UserByID(_ context.Context, id string) (*structs.User, error) {
	txn := s.db.Txn(false)
	return first[*structs.User](txn, TableUsers, indexID, id)
}

func (s *StateStore) UserByEmail(_ context.Context, email string) (*structs.User, error) {
	txn := s.db.Txn(false)
	return first[*structs.User](txn, TableUsers, indexEmail, strings.ToLower(email))
}

func (s *StateStore) UsersByCompany(_ context.Context, companyID string) ([]*structs.User, error) {
	txn := s.db.Txn(false)
	out, err := list[*structs.User](txn, TableUsers, indexCompany, companyID)
	if err != nil {
		return nil, err
	}
	sortStable(out, func(a, b *structs.User) bool { return a.Email < b.Email })
	return out, nil
}

func (s *StateStore) UpsertEmailVerification(_ context.Context, v *structs.EmailVerification) error {
	if v.Email == "" {
		return fmt.Errorf("missing verification email")
	}
	txn := s.db.Txn(true)
	defer txn.Abort()

	cp := *v
	if err := txn.Insert(TableEmailVerifications, &cp); err != nil {
		return fmt.Errorf("email verification insert failed: %w", err)
	}
	txn.Commit()
	return nil
}

func (s *StateStore) EmailVerificationByEmail(_ context.Context, email string) (*structs.EmailVerification, error) {
	txn := s.db.Txn(false)
	raw, err := txn.First(TableEmailVerifications, indexID, strings.ToLower(email))
	if err != nil {
		return nil, fmt.Errorf("email verification lookup failed: %w", err)
	}
	if raw == nil {
		return nil, nil
	}
	cp := *raw.(*structs.EmailVerification)
	return &cp, nil
}
