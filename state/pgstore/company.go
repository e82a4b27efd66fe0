// Copyright (c) Fieldward, Inc.
// SPDX-License-Identifier: BUSL-1.1

package pgstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/fieldward/fieldward/structs"
)

const companyCols = `id, name, settings, created_at, updated_at`

func (s *PGStore) UpsertCompany(ctx context.Context, company *structs.Company) error {
	if company.ID == "" {
		return fmt.Errorf("missing company ID")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO companies (id, name, settings, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			settings = EXCLUDED.settings,
			updated_at = EXCLUDED.updated_at`,
		company.ID, company.Name, mustJSON(company.Settings),
		company.CreateTime, company.ModifyTime)
	if err != nil {
		return fmt.Errorf("company upsert failed: %w", err)
	}
	return nil
}

func (s *PGStore) CompanyByID(ctx context.Context, id string) (*structs.Company, error) {
	row, err := getContext[companyRow](ctx, s.db,
		`SELECT `+companyCols+` FROM companies WHERE id = $1`, id)
	if err != nil || row == nil {
		return nil, err
	}
	return row.toStruct()
}

func (s *PGStore) Companies(ctx context.Context) ([]*structs.Company, error) {
	rows, err := selectContext[companyRow](ctx, s.db,
		`SELECT `+companyCols+` FROM companies ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	out := make([]*structs.Company, 0, len(rows))
	for i := range rows {
		c, err := rows[i].toStruct()
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

const userCols = `id, email, name, role, company_id, password_hash, employee_id,
	is_active, deleted_at, created_at, updated_at`

func (s *PGStore) UpsertUser(ctx context.Context, user *structs.User) error {
	if user.ID == "" {
		return fmt.Errorf("missing user ID")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, name, role, company_id, password_hash,
			employee_id, is_active, deleted_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			name = EXCLUDED.name,
			role = EXCLUDED.role,
			company_id = EXCLUDED.company_id,
			password_hash = EXCLUDED.password_hash,
			employee_id = EXCLUDED.employee_id,
			is_active = EXCLUDED.is_active,
			deleted_at = EXCLUDED.deleted_at,
			updated_at = EXCLUDED.updated_at`,
		user.ID, user.Email, user.Name, string(user.Role), user.CompanyID,
		user.PasswordHash, user.EmployeeID, user.IsActive, user.DeletedAt,
		user.CreateTime, user.ModifyTime)
	if err != nil {
		if uniqueViolation(err) {
			return structs.NewConflictError("email %s is already registered", user.Email)
		}
		return fmt.Errorf("user upsert failed: %w", err)
	}
	return nil
}

func (s *PGStore) UserByID(ctx context.Context, id string) (*structs.User, error) {
	row, err := getContext[userRow](ctx, s.db,
		`SELECT `+userCols+` FROM users WHERE id = $1`, id)
	if err != nil || row == nil {
		return nil, err
	}
	return row.toStruct(), nil
}

func (s *PGStore) UserByEmail(ctx context.Context, email string) (*structs.User, error) {
	row, err := getContext[userRow](ctx, s.db,
		`SELECT `+userCols+` FROM users WHERE email = $1`, strings.ToLower(email))
	if err != nil || row == nil {
		return nil, err
	}
	return row.toStruct(), nil
}

func (s *PGStore) UsersByCompany(ctx context.Context, companyID string) ([]*structs.User, error) {
	rows, err := selectContext[userRow](ctx, s.db,
		`SELECT `+userCols+` FROM users WHERE company_id = $1 ORDER BY email`, companyID)
	if err != nil {
		return nil, err
	}
	out := make([]*structs.User, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toStruct())
	}
	return out, nil
}

func (s *PGStore) UpsertEmailVerification(ctx context.Context, v *structs.EmailVerification) error {
	if v.Email == "" {
		return fmt.Errorf("missing verification email")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO email_verifications (email, code, verified, created_at, verified_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (email) DO UPDATE SET
			code = EXCLUDED.code,
			verified = EXCLUDED.verified,
			verified_at = EXCLUDED.verified_at`,
		v.Email, v.Code, v.Verified, v.CreateTime, v.VerifiedAt)
	if err != nil {
		return fmt.Errorf("email verification upsert failed: %w", err)
	}
	return nil
}

func (s *PGStore) EmailVerificationByEmail(ctx context.Context, email string) (*structs.EmailVerification, error) {
	row, err := getContext[emailVerificationRow](ctx, s.db, `
		SELECT email, code, verified, created_at, verified_at
		FROM email_verifications WHERE email = $1`, strings.ToLower(email))
	if err != nil || row == nil {
		return nil, err
	}
	return row.toStruct(), nil
}
