// Copyright (c) Fieldward, Inc.
// SPDX-License-Identifier: BUSL-1.1

package structs

import (
	"fmt"
	"strings"
	"time"

	multierror "github.com/hashicorp/go-multierror"
)

// Company is the tenant root. Every other entity except platform users
// belongs to exactly one company. Companies are never hard-deleted.
type Company struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Settings CompanySettings `json:"settings"`

	CreateTime time.Time `json:"createdAt"`
	ModifyTime time.Time `json:"updatedAt"`
}

// CompanySettings carries the per-tenant knobs the core consults.
type CompanySettings struct {
	// Timezone is the IANA zone used for after-hours window matching.
	Timezone string `json:"timezone"`

	// Industry is informational ("hvac", "plumbing", ...).
	Industry string `json:"industry"`

	AfterHoursEnabled     bool `json:"afterHoursEnabled"`
	ReviewRequestsEnabled bool `json:"reviewRequestsEnabled"`
	AutoDispatchEnabled   bool `json:"autoDispatchEnabled"`
}

// DefaultTimezone applies when a company has not configured one.
const DefaultTimezone = "America/Chicago"

// Location resolves the company's timezone, falling back to UTC when the
// stored zone name does not load.
func (c *Company) Location() *time.Location {
	name := c.Settings.Timezone
	if name == "" {
		name = DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Company) Copy() *Company {
	if c == nil {
		return nil
	}
	nc := *c
	return &nc
}

// Canonicalize fills defaults on a new company.
func (c *Company) Canonicalize() {
	c.Name = strings.TrimSpace(c.Name)
	if c.Settings.Timezone == "" {
		c.Settings.Timezone = DefaultTimezone
	}
}

func (c *Company) Validate() error {
	var mErr multierror.Error
	if c.ID == "" {
		mErr.Errors = append(mErr.Errors, fmt.Errorf("missing company ID"))
	}
	if c.Name == "" {
		mErr.Errors = append(mErr.Errors, fmt.Errorf("missing company name"))
	}
	if c.Settings.Timezone != "" {
		if _, err := time.LoadLocation(c.Settings.Timezone); err != nil {
			mErr.Errors = append(mErr.Errors, fmt.Errorf("invalid timezone %q", c.Settings.Timezone))
		}
	}
	return mErr.ErrorOrNil()
}

// User is an account that can authenticate. Users are soft-deleted so that
// audit rows keep a valid actor reference.
type User struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	Name         string `json:"name"`
	Role         Role   `json:"role"`
	CompanyID    string `json:"companyId"` // empty only for RolePlatform
	PasswordHash string `json:"-"`

	// EmployeeID links a technician account to its dispatchable record.
	EmployeeID string `json:"employeeId,omitempty"`

	IsActive   bool       `json:"isActive"`
	DeletedAt  *time.Time `json:"deletedAt,omitempty"`
	CreateTime time.Time  `json:"createdAt"`
	ModifyTime time.Time  `json:"updatedAt"`
}

func (u *User) Copy() *User {
	if u == nil {
		return nil
	}
	nu := *u
	return &nu
}

func (u *User) Canonicalize() {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
}

func (u *User) Validate() error {
	var mErr multierror.Error
	if u.Email == "" || !strings.Contains(u.Email, "@") {
		mErr.Errors = append(mErr.Errors, fmt.Errorf("invalid email %q", u.Email))
	}
	if !u.Role.Valid() {
		mErr.Errors = append(mErr.Errors, fmt.Errorf("invalid role %q", u.Role))
	}
	if u.Role != RolePlatform && u.CompanyID == "" {
		mErr.Errors = append(mErr.Errors, fmt.Errorf("role %q requires a company", u.Role))
	}
	return mErr.ErrorOrNil()
}

// AuthUser derives the request identity for a user.
func (u *User) AuthUser() *AuthUser {
	return &AuthUser{
		UserID:    u.ID,
		Email:     u.Email,
		Role:      u.Role,
		CompanyID: u.CompanyID,
	}
}

// EmailVerification gates self-serve registration. The mail transport is a
// boundary collaborator; the core only stores and checks the code.
type EmailVerification struct {
	Email      string     `json:"email"`
	Code       string     `json:"-"`
	Verified   bool       `json:"verified"`
	CreateTime time.Time  `json:"createdAt"`
	VerifiedAt *time.Time `json:"verifiedAt,omitempty"`
}
