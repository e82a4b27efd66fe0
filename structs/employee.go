// Copyright (c) Fieldward, Inc.
// SPDX-License-Identifier: BUSL-1.1

package structs

import (
	"fmt"
	"time"

	multierror "github.com/hashicorp/go-multierror"
)

const (
	// DefaultMaxConcurrentJobs is applied when an employee is created
	// without an explicit cap.
	DefaultMaxConcurrentJobs = 1

	// DispatchFallbackMaxJobs is the capacity the batch dispatcher assumes
	// for legacy rows that carry no cap at all.
	DispatchFallbackMaxJobs = 10

	// LocationFreshness is how recent a technician's location report must
	// be for the tech to be considered dispatchable.
	LocationFreshness = 10 * time.Minute
)

// Employee is a dispatchable worker. An employee may or may not be linked
// to a login (a User with RoleTechnician).
type Employee struct {
	ID        string `json:"id"`
	CompanyID string `json:"companyId"`
	Name      string `json:"name"`
	Phone     string `json:"phone,omitempty"`

	// Skills a tech holds, with an optional per-skill proficiency level.
	Skills     []string       `json:"skills"`
	SkillLevel map[string]int `json:"skillLevel,omitempty"`

	IsActive    bool `json:"isActive"`
	IsAvailable bool `json:"isAvailable"`

	// CurrentJobID is the job the tech is presently committed to, when the
	// cap is one. Under a higher cap it tracks the most recent assignment.
	CurrentJobID *string `json:"currentJobId,omitempty"`

	// CurrentJobsCount is never negative. It may exceed MaxConcurrentJobs
	// only through a manual dispatch override, which is always logged.
	CurrentJobsCount  int `json:"currentJobsCount"`
	MaxConcurrentJobs int `json:"maxConcurrentJobs"`

	// Rating is the rolling customer rating, 0–5. Zero means unrated.
	Rating float64 `json:"rating"`

	HomeAddress       Address      `json:"homeAddress"`
	CurrentLocation   *Coordinates `json:"currentLocation,omitempty"`
	LocationUpdatedAt time.Time    `json:"locationUpdatedAt,omitempty"`

	LastJobCompletedAt *time.Time `json:"lastJobCompletedAt,omitempty"`

	CreateTime time.Time `json:"createdAt"`
	ModifyTime time.Time `json:"updatedAt"`
}

func (e *Employee) Copy() *Employee {
	if e == nil {
		return nil
	}
	ne := *e
	ne.Skills = append([]string(nil), e.Skills...)
	if e.SkillLevel != nil {
		ne.SkillLevel = make(map[string]int, len(e.SkillLevel))
		for k, v := range e.SkillLevel {
			ne.SkillLevel[k] = v
		}
	}
	ne.CurrentLocation = e.CurrentLocation.Copy()
	if e.CurrentJobID != nil {
		id := *e.CurrentJobID
		ne.CurrentJobID = &id
	}
	if e.LastJobCompletedAt != nil {
		t := *e.LastJobCompletedAt
		ne.LastJobCompletedAt = &t
	}
	return &ne
}

// Canonicalize fills defaults on a new employee.
func (e *Employee) Canonicalize() {
	if e.MaxConcurrentJobs <= 0 {
		e.MaxConcurrentJobs = DefaultMaxConcurrentJobs
	}
	if e.Skills == nil {
		e.Skills = []string{}
	}
}

func (e *Employee) Validate() error {
	var mErr multierror.Error
	if e.CompanyID == "" {
		mErr.Errors = append(mErr.Errors, fmt.Errorf("missing company"))
	}
	if e.Name == "" {
		mErr.Errors = append(mErr.Errors, fmt.Errorf("missing name"))
	}
	if e.CurrentJobsCount < 0 {
		mErr.Errors = append(mErr.Errors, fmt.Errorf("current jobs count is negative"))
	}
	if e.Rating < 0 || e.Rating > 5 {
		mErr.Errors = append(mErr.Errors, fmt.Errorf("rating %v outside 0-5", e.Rating))
	}
	return mErr.ErrorOrNil()
}

// Dispatchable reports whether the tech passes the dispatch pre-filter at
// the given moment: active, available, under cap, with a fresh location.
func (e *Employee) Dispatchable(now time.Time) bool {
	if !e.IsActive || !e.IsAvailable {
		return false
	}
	max := e.MaxConcurrentJobs
	if max <= 0 {
		max = DispatchFallbackMaxJobs
	}
	if e.CurrentJobsCount >= max {
		return false
	}
	if e.CurrentLocation == nil {
		return false
	}
	if e.LocationUpdatedAt.IsZero() || now.Sub(e.LocationUpdatedAt) > LocationFreshness {
		return false
	}
	return true
}

// HasCapacity reports whether the tech can take one more job under its cap.
func (e *Employee) HasCapacity() bool {
	max := e.MaxConcurrentJobs
	if max <= 0 {
		max = DispatchFallbackMaxJobs
	}
	return e.CurrentJobsCount < max
}
