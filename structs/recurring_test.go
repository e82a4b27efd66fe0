// Copyright (c) Fieldward, Inc.
// SPDX-License-Identifier: BUSL-1.1

package structs

import (
	"testing"
	"time"

	"github.com/shoenig/test/must"

	"github.com/fieldward/fieldward/ci"
	"github.com/fieldward/fieldward/helper/pointer"
)

func TestRecurringJobSchedule_NextAfter(t *testing.T) {
	ci.Parallel(t)

	from := time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)

	cases := []struct {
		frequency RecurrenceFrequency
		cron      string
		want      time.Time
	}{
		{frequency: FrequencyWeekly, want: time.Date(2025, 1, 22, 9, 0, 0, 0, time.UTC)},
		{frequency: FrequencyBiweekly, want: time.Date(2025, 1, 29, 9, 0, 0, 0, time.UTC)},
		{frequency: FrequencyMonthly, want: time.Date(2025, 2, 15, 9, 0, 0, 0, time.UTC)},
		{frequency: FrequencyQuarterly, want: time.Date(2025, 4, 15, 9, 0, 0, 0, time.UTC)},
		{frequency: FrequencySemiannual, want: time.Date(2025, 7, 15, 9, 0, 0, 0, time.UTC)},
		{frequency: FrequencyAnnual, want: time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)},
		// Next Monday 09:00 after Wednesday Jan 15.
		{frequency: FrequencyCustom, cron: "0 9 * * 1", want: time.Date(2025, 1, 20, 9, 0, 0, 0, time.UTC)},
	}

	for _, tc := range cases {
		t.Run(string(tc.frequency), func(t *testing.T) {
			s := &RecurringJobSchedule{Frequency: tc.frequency, CronExpr: tc.cron}
			got, err := s.NextAfter(from)
			must.NoError(t, err)
			must.Eq(t, tc.want, got)
		})
	}

	s := &RecurringJobSchedule{Frequency: FrequencyCustom, CronExpr: "not cron"}
	_, err := s.NextAfter(from)
	must.Error(t, err)
}

func TestRecurringJobSchedule_Due(t *testing.T) {
	ci.Parallel(t)

	s := &RecurringJobSchedule{
		NextRunAt:   time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		AdvanceDays: 3,
	}

	must.False(t, s.Due(time.Date(2025, 3, 6, 23, 0, 0, 0, time.UTC)))
	must.True(t, s.Due(time.Date(2025, 3, 7, 0, 0, 0, 0, time.UTC)))
	must.True(t, s.Due(time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC)))
}

func TestRecurringJobSchedule_MaterializeJob(t *testing.T) {
	ci.Parallel(t)

	now := time.Date(2025, 3, 7, 6, 0, 0, 0, time.UTC)
	s := &RecurringJobSchedule{
		ID:                       "sched-1",
		CompanyID:                "co-1",
		CustomerID:               "cust-1",
		JobType:                  "maintenance",
		Description:              "seasonal tune-up",
		Priority:                 JobPriorityLow,
		RequiredSkills:           []string{"hvac"},
		EstimatedDurationMinutes: pointer.Of(45),
		Frequency:                FrequencyQuarterly,
		NextRunAt:                time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
	}

	job := s.MaterializeJob(now)
	must.Eq(t, JobStatusUnassigned, job.Status)
	must.Eq(t, "sched-1", job.SourceScheduleID)
	must.Eq(t, "cust-1", job.CustomerID)
	must.Eq(t, s.NextRunAt, *job.ScheduledTime)
	must.Eq(t, 45, *job.EstimatedDurationMinutes)
	must.Eq(t, GeocodePending, job.GeocodeStatus)

	// Materialized jobs own their skill slice.
	job.RequiredSkills[0] = "electrical"
	must.Eq(t, "hvac", s.RequiredSkills[0])
}

func TestRecurringJobSchedule_Validate(t *testing.T) {
	ci.Parallel(t)

	s := &RecurringJobSchedule{
		CompanyID:  "co-1",
		CustomerID: "cust-1",
		JobType:    "maintenance",
		NextRunAt:  time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
	}
	s.Canonicalize()
	must.Eq(t, FrequencyMonthly, s.Frequency)
	must.NoError(t, s.Validate())

	s.Frequency = FrequencyCustom
	s.CronExpr = "@banana"
	must.Error(t, s.Validate())
}

func TestServiceAgreement_Lifecycle(t *testing.T) {
	ci.Parallel(t)

	now := time.Date(2025, 3, 5, 12, 0, 0, 0, time.UTC)
	a := &ServiceAgreement{
		ID:            "agr-1",
		CompanyID:     "co-1",
		CustomerID:    "cust-1",
		PlanName:      "gold",
		Status:        AgreementActive,
		StartDate:     time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		EndDate:       time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC),
		TermMonths:    12,
		AutoRenew:     true,
		VisitsAllowed: 2,
		VisitsUsed:    2,
	}
	must.NoError(t, a.Validate())

	must.False(t, a.Expired(now))
	must.True(t, a.Expired(time.Date(2025, 3, 16, 0, 0, 0, 0, time.UTC)))

	must.True(t, a.ExpiringWithin(now, 30*24*time.Hour))
	must.False(t, a.ExpiringWithin(now, 5*24*time.Hour))

	a.RenewalReminderSentAt = pointer.Of(now)
	must.False(t, a.ExpiringWithin(now, 30*24*time.Hour))
}

func TestServiceAgreement_Renew(t *testing.T) {
	ci.Parallel(t)

	now := time.Date(2025, 3, 16, 2, 0, 0, 0, time.UTC)
	a := &ServiceAgreement{
		ID:            "agr-1",
		CompanyID:     "co-1",
		CustomerID:    "cust-1",
		PlanName:      "gold",
		Status:        AgreementActive,
		StartDate:     time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		EndDate:       time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC),
		TermMonths:    12,
		AutoRenew:     true,
		VisitsAllowed: 2,
		VisitsUsed:    2,
	}

	next := a.Renew(now)
	must.Eq(t, "", next.ID)
	must.Eq(t, a.EndDate, next.StartDate)
	must.Eq(t, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), next.EndDate)
	must.Eq(t, AgreementActive, next.Status)
	must.Eq(t, 2, next.VisitsAllowed)
	must.Eq(t, 0, next.VisitsUsed)
	must.True(t, next.AutoRenew)
}

func TestReviewRequest_Due(t *testing.T) {
	ci.Parallel(t)

	now := time.Date(2025, 3, 5, 12, 0, 0, 0, time.UTC)
	r := &ReviewRequest{Status: ReviewPending, ScheduledFor: now.Add(-time.Minute)}
	must.True(t, r.Due(now))

	r.ScheduledFor = now.Add(time.Hour)
	must.False(t, r.Due(now))

	r.ScheduledFor = now.Add(-time.Hour)
	r.Status = ReviewSent
	must.False(t, r.Due(now))
}
