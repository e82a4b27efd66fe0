// Copyright (c) Fieldward, Inc.
// SPDX-License-Identifier: BUSL-1.1

package structs

import (
	"testing"
	"time"

	"github.com/shoenig/test/must"

	"github.com/fieldward/fieldward/ci"
)

func TestParseMinutesOfDay(t *testing.T) {
	ci.Parallel(t)

	cases := []struct {
		input   string
		minutes int
		bad     bool
	}{
		{input: "00:00", minutes: 0},
		{input: "08:30", minutes: 510},
		{input: "17:00", minutes: 1020},
		{input: "23:59", minutes: 1439},
		{input: "24:00", bad: true},
		{input: "12:60", bad: true},
		{input: "1700", bad: true},
		{input: "aa:bb", bad: true},
		{input: "", bad: true},
	}

	for _, tc := range cases {
		got, err := ParseMinutesOfDay(tc.input)
		if tc.bad {
			must.Error(t, err, must.Sprintf("input %q", tc.input))
			continue
		}
		must.NoError(t, err, must.Sprintf("input %q", tc.input))
		must.Eq(t, tc.minutes, got)
	}
}

func TestAfterHoursRule_Covers_Wrapping(t *testing.T) {
	ci.Parallel(t)

	rule := &AfterHoursRule{
		CompanyID:     "co-1",
		WeekdayStart:  "17:00",
		WeekdayEnd:    "08:00",
		WeekendAllDay: true,
	}

	cases := []struct {
		at     time.Time
		inside bool
	}{
		{time.Date(2025, 3, 5, 18, 0, 0, 0, time.UTC), true},  // Wed evening
		{time.Date(2025, 3, 5, 2, 0, 0, 0, time.UTC), true},   // Wed pre-dawn
		{time.Date(2025, 3, 5, 10, 0, 0, 0, time.UTC), false}, // Wed mid-morning
		{time.Date(2025, 3, 5, 8, 0, 0, 0, time.UTC), false},  // end is exclusive
		{time.Date(2025, 3, 5, 17, 0, 0, 0, time.UTC), true},  // start is inclusive
		{time.Date(2025, 3, 8, 12, 0, 0, 0, time.UTC), true},  // Saturday noon
	}

	for _, tc := range cases {
		must.Eq(t, tc.inside, rule.Covers(tc.at), must.Sprintf("at %s", tc.at))
	}
}

func TestAfterHoursRule_Covers_NonWrapping(t *testing.T) {
	ci.Parallel(t)

	rule := &AfterHoursRule{
		CompanyID:    "co-1",
		WeekdayStart: "09:00",
		WeekdayEnd:   "17:00",
	}

	must.True(t, rule.Covers(time.Date(2025, 3, 5, 10, 0, 0, 0, time.UTC)))
	must.True(t, rule.Covers(time.Date(2025, 3, 5, 9, 0, 0, 0, time.UTC)))
	must.False(t, rule.Covers(time.Date(2025, 3, 5, 8, 59, 0, 0, time.UTC)))
	must.False(t, rule.Covers(time.Date(2025, 3, 5, 17, 0, 0, 0, time.UTC)))

	// Weekends fall through to the window when weekend_all_day is off.
	must.True(t, rule.Covers(time.Date(2025, 3, 8, 12, 0, 0, 0, time.UTC)))
	must.False(t, rule.Covers(time.Date(2025, 3, 8, 20, 0, 0, 0, time.UTC)))
}

func TestAfterHoursRule_Validate(t *testing.T) {
	ci.Parallel(t)

	rule := &AfterHoursRule{
		CompanyID:    "co-1",
		WeekdayStart: "17:00",
		WeekdayEnd:   "08:00",
	}
	rule.Canonicalize()
	must.Eq(t, RoutingVoicemailQueue, rule.RoutingStrategy)
	must.NoError(t, rule.Validate())

	rule.WeekdayEnd = "25:00"
	must.Error(t, rule.Validate())

	rule.WeekdayEnd = "08:00"
	rule.RoutingStrategy = RoutingStrategy("pager")
	must.Error(t, rule.Validate())
}
