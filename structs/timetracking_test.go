// Copyright (c) Fieldward, Inc.
// SPDX-License-Identifier: BUSL-1.1

package structs

import (
	"testing"
	"time"

	"github.com/shoenig/test/must"

	"github.com/fieldward/fieldward/ci"
)

func TestTimeTrackingEvent_Order(t *testing.T) {
	ci.Parallel(t)

	must.Eq(t, 0, TimeTrackingDispatched.Order())
	must.Eq(t, 5, TimeTrackingDepartedJob.Order())
	must.Eq(t, -1, TimeTrackingEvent("paused").Order())
	must.True(t, TimeTrackingWorkStarted.Valid())
	must.False(t, TimeTrackingEvent("").Valid())

	must.True(t, TimeTrackingWorkEnded.SyncsCompletion())
	must.True(t, TimeTrackingDepartedJob.SyncsCompletion())
	must.False(t, TimeTrackingArrived.SyncsCompletion())
}

func TestJobTimeTracking_Apply(t *testing.T) {
	ci.Parallel(t)

	base := time.Date(2025, 3, 5, 8, 0, 0, 0, time.UTC)
	tt := &JobTimeTracking{JobID: "job-1", CompanyID: "co-1"}

	must.NoError(t, tt.Apply(TimeTrackingDispatched, base))
	must.NoError(t, tt.Apply(TimeTrackingDeparted, base.Add(5*time.Minute)))
	must.NoError(t, tt.Apply(TimeTrackingArrived, base.Add(25*time.Minute)))
	must.Eq(t, 20, *tt.DriveMinutes())

	// Earlier events are frozen once a later one lands.
	err := tt.Apply(TimeTrackingDeparted, base.Add(30*time.Minute))
	must.Error(t, err)
	must.True(t, IsConflict(err))
	must.ErrorContains(t, err, "cannot record departed after arrived")
	must.Eq(t, base.Add(5*time.Minute), *tt.DepartedAt)

	// The most recent event may be re-recorded.
	must.NoError(t, tt.Apply(TimeTrackingArrived, base.Add(30*time.Minute)))
	must.Eq(t, 25, *tt.DriveMinutes())

	must.NoError(t, tt.Apply(TimeTrackingWorkStarted, base.Add(35*time.Minute)))
	must.NoError(t, tt.Apply(TimeTrackingWorkEnded, base.Add(95*time.Minute)))
	must.Eq(t, 60, *tt.WrenchMinutes())

	must.NoError(t, tt.Apply(TimeTrackingDepartedJob, base.Add(100*time.Minute)))
	must.Eq(t, 70, *tt.OnSiteMinutes())

	err = tt.Apply(TimeTrackingEvent("bogus"), base)
	must.Error(t, err)
	must.True(t, IsValidation(err))
}

func TestJobTimeTracking_DerivedNilOnGaps(t *testing.T) {
	ci.Parallel(t)

	base := time.Date(2025, 3, 5, 8, 0, 0, 0, time.UTC)
	tt := &JobTimeTracking{JobID: "job-1", CompanyID: "co-1"}

	must.Nil(t, tt.DriveMinutes())
	must.Nil(t, tt.WrenchMinutes())
	must.Nil(t, tt.OnSiteMinutes())

	// Arrival without a recorded departure leaves drive time unknown.
	must.NoError(t, tt.Apply(TimeTrackingArrived, base))
	must.Nil(t, tt.DriveMinutes())
	must.NoError(t, tt.Apply(TimeTrackingDepartedJob, base.Add(45*time.Minute)))
	must.Eq(t, 45, *tt.OnSiteMinutes())
	must.Nil(t, tt.WrenchMinutes())
}

func TestJobTimeTracking_Timestamp(t *testing.T) {
	ci.Parallel(t)

	base := time.Date(2025, 3, 5, 8, 0, 0, 0, time.UTC)
	tt := &JobTimeTracking{JobID: "job-1"}
	must.Nil(t, tt.Timestamp(TimeTrackingDeparted))

	must.NoError(t, tt.Apply(TimeTrackingDeparted, base))
	got := tt.Timestamp(TimeTrackingDeparted)
	must.NotNil(t, got)
	must.Eq(t, base, *got)

	// Returned pointer is a copy.
	*got = got.Add(time.Hour)
	must.Eq(t, base, *tt.DepartedAt)
}
