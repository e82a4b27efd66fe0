// Copyright (c) Fieldward, Inc.
// SPDX-License-Identifier: BUSL-1.1

// Package structs holds the domain model of the dispatch core: tenants,
// technicians, customers, jobs and their lifecycle, escalations, after-hours
// rules, and the variant sets and errors shared by every other package.
package structs

import (
	"fmt"
	"time"
)

// Role is the closed set of account roles. Unknown values are rejected at
// decode time, never passed through.
type Role string

const (
	// RolePlatform is the superuser role that crosses tenant boundaries.
	RolePlatform Role = "platform"

	RoleAdmin      Role = "admin"
	RoleTechnician Role = "technician"
	RoleDispatcher Role = "dispatcher"
)

func (r Role) Valid() bool {
	switch r {
	case RolePlatform, RoleAdmin, RoleTechnician, RoleDispatcher:
		return true
	}
	return false
}

// AuthUser is the resolved identity of a request. Every read and write in
// the system funnels through helpers that accept one.
type AuthUser struct {
	UserID    string
	Email     string
	Role      Role
	CompanyID string // empty only for RolePlatform
}

// IsPlatform reports whether the caller crosses tenant boundaries.
func (u *AuthUser) IsPlatform() bool {
	return u.Role == RolePlatform
}

// EffectiveCompany returns the company an operation is pinned to. Platform
// callers may select any company through requested; every other role is
// pinned to its token's company and requested is ignored.
func (u *AuthUser) EffectiveCompany(requested string) string {
	if u.IsPlatform() {
		return requested
	}
	return u.CompanyID
}

// CanSee reports whether the caller may observe an entity owned by
// companyID.
func (u *AuthUser) CanSee(companyID string) bool {
	return u.IsPlatform() || u.CompanyID == companyID
}

// Coordinates is a WGS84 point. A nil *Coordinates means the entity has not
// been geocoded.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (c *Coordinates) Copy() *Coordinates {
	if c == nil {
		return nil
	}
	nc := *c
	return &nc
}

// GeocodeStatus tracks the lifecycle of address resolution.
type GeocodeStatus string

const (
	GeocodePending  GeocodeStatus = "pending"
	GeocodeComplete GeocodeStatus = "complete"
	GeocodeFailed   GeocodeStatus = "failed"
)

func (g GeocodeStatus) Valid() bool {
	switch g {
	case GeocodePending, GeocodeComplete, GeocodeFailed:
		return true
	}
	return false
}

// GeocodeKind names the tables the geocoding worker drains.
type GeocodeKind string

const (
	GeocodeKindJob              GeocodeKind = "job"
	GeocodeKindCustomer         GeocodeKind = "customer"
	GeocodeKindCustomerLocation GeocodeKind = "customer_location"
)

// GeocodeTask is one claimed row awaiting address resolution.
type GeocodeTask struct {
	Kind    GeocodeKind
	ID      string
	Address string
	Retries int
}

// MaxGeocodeRetries bounds how many times a failed row is retried before it
// is left in the failed state.
const MaxGeocodeRetries = 3

// Address is a normalized service address.
type Address struct {
	Street string `json:"street"`
	City   string `json:"city"`
	State  string `json:"state"`
	Zip    string `json:"zip"`
}

// String renders the address the way the geocoding provider expects it.
func (a Address) String() string {
	out := a.Street
	if a.City != "" {
		out += ", " + a.City
	}
	if a.State != "" {
		out += ", " + a.State
	}
	if a.Zip != "" {
		out += " " + a.Zip
	}
	return out
}

func (a Address) Empty() bool {
	return a.Street == "" && a.City == "" && a.State == "" && a.Zip == ""
}

// minutesBetween returns whole minutes elapsed from a to b, truncated toward
// zero and clamped at zero.
func minutesBetween(a, b time.Time) int {
	m := int(b.Sub(a) / time.Minute)
	if m < 0 {
		return 0
	}
	return m
}

// validTimestamp guards against the zero time sneaking into rows that
// require a real clock reading.
func validTimestamp(name string, t time.Time) error {
	if t.IsZero() {
		return fmt.Errorf("%s must be set", name)
	}
	return nil
}
