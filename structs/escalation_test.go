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

func TestTriggerConditions_Matches(t *testing.T) {
	ci.Parallel(t)

	job := &Job{
		Description: "Customer reports NO HEAT upstairs, thermostat dead",
		Priority:    JobPriorityHigh,
	}

	cases := []struct {
		name    string
		tc      TriggerConditions
		matches bool
	}{
		{name: "empty matches everything", tc: TriggerConditions{}, matches: true},
		{name: "keyword case-insensitive", tc: TriggerConditions{Keywords: []string{"no heat"}}, matches: true},
		{name: "any keyword suffices", tc: TriggerConditions{Keywords: []string{"gas leak", "thermostat"}}, matches: true},
		{name: "keyword miss", tc: TriggerConditions{Keywords: []string{"flood"}}, matches: false},
		{name: "priority in set", tc: TriggerConditions{Priorities: []JobPriority{JobPriorityHigh, JobPriorityEmergency}}, matches: true},
		{name: "priority not in set", tc: TriggerConditions{Priorities: []JobPriority{JobPriorityEmergency}}, matches: false},
		{
			name:    "both present, both match",
			tc:      TriggerConditions{Keywords: []string{"no heat"}, Priorities: []JobPriority{JobPriorityHigh}},
			matches: true,
		},
		{
			name:    "both present, keyword misses",
			tc:      TriggerConditions{Keywords: []string{"flood"}, Priorities: []JobPriority{JobPriorityHigh}},
			matches: false,
		},
		{
			name:    "both present, priority misses",
			tc:      TriggerConditions{Keywords: []string{"no heat"}, Priorities: []JobPriority{JobPriorityEmergency}},
			matches: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			must.Eq(t, tc.matches, tc.tc.Matches(job))
		})
	}
}

func TestEscalationEvent_Terminal(t *testing.T) {
	ci.Parallel(t)

	ev := &EscalationEvent{ID: "ev-1"}
	must.False(t, ev.Terminal())

	ev.TimedOut = true
	must.True(t, ev.Terminal())

	ev = &EscalationEvent{ID: "ev-2", ResolvedAt: pointer.Of(time.Now())}
	must.True(t, ev.Terminal())
}

func TestEscalationEvent_LastSentAt(t *testing.T) {
	ci.Parallel(t)

	triggered := time.Date(2025, 3, 5, 8, 0, 0, 0, time.UTC)
	ev := &EscalationEvent{ID: "ev-1", TriggeredAt: triggered}
	must.Eq(t, triggered, ev.LastSentAt())

	ev.RecordNotification(0, "sms", []string{"admin"}, triggered.Add(time.Minute))
	ev.RecordNotification(1, "phone", []string{"manager"}, triggered.Add(20*time.Minute))
	must.Eq(t, triggered.Add(20*time.Minute), ev.LastSentAt())
	must.Len(t, 2, ev.NotificationLog)
	must.Eq(t, 1, ev.NotificationLog[1].Step)
}

func TestEscalationPolicy_Validate(t *testing.T) {
	ci.Parallel(t)

	policy := &EscalationPolicy{
		CompanyID: "co-1",
		Name:      "emergencies",
		Steps: []EscalationStep{
			{DelayMinutes: 0, Notify: []string{"dispatcher"}, Channel: "sms"},
			{DelayMinutes: 15, Notify: []string{"admin"}, Channel: "phone"},
		},
	}
	must.NoError(t, policy.Validate())

	policy.Steps = nil
	must.Error(t, policy.Validate())

	policy.Steps = []EscalationStep{{DelayMinutes: -1, Channel: "sms"}}
	must.Error(t, policy.Validate())

	policy.Steps = []EscalationStep{{DelayMinutes: 0, Channel: "sms"}}
	policy.TriggerConditions.Priorities = []JobPriority{JobPriority("urgent")}
	must.Error(t, policy.Validate())
}

func TestEscalationPolicy_CopyIsDeep(t *testing.T) {
	ci.Parallel(t)

	policy := &EscalationPolicy{
		ID:        "pol-1",
		CompanyID: "co-1",
		Name:      "emergencies",
		TriggerConditions: TriggerConditions{
			Keywords: []string{"no heat"},
		},
		Steps: []EscalationStep{
			{DelayMinutes: 0, Notify: []string{"dispatcher"}, Channel: "sms"},
		},
	}

	cp := policy.Copy()
	cp.TriggerConditions.Keywords[0] = "flood"
	cp.Steps[0].Notify[0] = "admin"

	must.Eq(t, "no heat", policy.TriggerConditions.Keywords[0])
	must.Eq(t, "dispatcher", policy.Steps[0].Notify[0])
}
