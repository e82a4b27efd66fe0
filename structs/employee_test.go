// Copyright (c) Fieldward, Inc.
// SPDX-License-Identifier: BUSL-1.1

package structs

import (
	"testing"
	"time"

	"github.com/shoenig/test/must"

	"github.com/fieldward/fieldward/ci"
)

func testEmployee(now time.Time) *Employee {
	e := &Employee{
		ID:                "tech-1",
		CompanyID:         "co-1",
		Name:              "Ana Voss",
		Skills:            []string{"hvac"},
		IsActive:          true,
		IsAvailable:       true,
		MaxConcurrentJobs: 2,
		Rating:            4.5,
		CurrentLocation:   &Coordinates{Latitude: 32.7767, Longitude: -96.797},
		LocationUpdatedAt: now.Add(-time.Minute),
	}
	e.Canonicalize()
	return e
}

func TestEmployee_Dispatchable(t *testing.T) {
	ci.Parallel(t)

	now := time.Date(2025, 3, 5, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name   string
		mutate func(*Employee)
		want   bool
	}{
		{name: "ready", mutate: func(e *Employee) {}, want: true},
		{name: "inactive", mutate: func(e *Employee) { e.IsActive = false }, want: false},
		{name: "unavailable", mutate: func(e *Employee) { e.IsAvailable = false }, want: false},
		{name: "at capacity", mutate: func(e *Employee) { e.CurrentJobsCount = 2 }, want: false},
		{name: "below capacity", mutate: func(e *Employee) { e.CurrentJobsCount = 1 }, want: true},
		{name: "no location", mutate: func(e *Employee) { e.CurrentLocation = nil }, want: false},
		{name: "stale location", mutate: func(e *Employee) { e.LocationUpdatedAt = now.Add(-11 * time.Minute) }, want: false},
		{name: "location on freshness edge", mutate: func(e *Employee) { e.LocationUpdatedAt = now.Add(-10 * time.Minute) }, want: true},
		{name: "never reported location", mutate: func(e *Employee) { e.LocationUpdatedAt = time.Time{} }, want: false},
		{
			name: "unset cap falls back to ten",
			mutate: func(e *Employee) {
				e.MaxConcurrentJobs = 0
				e.CurrentJobsCount = 9
			},
			want: true,
		},
		{
			name: "fallback cap reached",
			mutate: func(e *Employee) {
				e.MaxConcurrentJobs = 0
				e.CurrentJobsCount = 10
			},
			want: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := testEmployee(now)
			tc.mutate(e)
			must.Eq(t, tc.want, e.Dispatchable(now))
		})
	}
}

func TestEmployee_Canonicalize(t *testing.T) {
	ci.Parallel(t)

	e := &Employee{ID: "tech-1", CompanyID: "co-1", Name: "Ana Voss"}
	e.Canonicalize()
	must.Eq(t, DefaultMaxConcurrentJobs, e.MaxConcurrentJobs)
	must.NotNil(t, e.Skills)
}

func TestEmployee_Validate(t *testing.T) {
	ci.Parallel(t)

	e := testEmployee(time.Now())
	must.NoError(t, e.Validate())

	e.Rating = 5.5
	must.Error(t, e.Validate())

	e = testEmployee(time.Now())
	e.CurrentJobsCount = -1
	must.Error(t, e.Validate())

	e = testEmployee(time.Now())
	e.Name = ""
	must.Error(t, e.Validate())
}

func TestEmployee_CopyIsDeep(t *testing.T) {
	ci.Parallel(t)

	now := time.Now()
	e := testEmployee(now)
	e.SkillLevel = map[string]int{"hvac": 3}

	cp := e.Copy()
	cp.Skills[0] = "electrical"
	cp.SkillLevel["hvac"] = 1
	cp.CurrentLocation.Latitude = 0

	must.Eq(t, "hvac", e.Skills[0])
	must.Eq(t, 3, e.SkillLevel["hvac"])
	must.Eq(t, 32.7767, e.CurrentLocation.Latitude)
}
