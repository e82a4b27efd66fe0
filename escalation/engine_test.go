// Copyright (c) Fieldward, Inc.
// SPDX-License-Identifier: BUSL-1.1

package escalation

import (
	"context"
	"testing"
	"time"

	"github.com/shoenig/test/must"

	"github.com/fieldward/fieldward/ci"
	"github.com/fieldward/fieldward/helper/testlog"
	"github.com/fieldward/fieldward/mock"
	"github.com/fieldward/fieldward/state"
	"github.com/fieldward/fieldward/structs"
)

// recordingNotifier captures deliveries so tests can assert channel and
// step ordering.
type recordingNotifier struct {
	channels []string
}

func (n *recordingNotifier) Notify(_ context.Context, _ *structs.EscalationEvent, step structs.EscalationStep) error {
	n.channels = append(n.channels, step.Channel)
	return nil
}

func testEngine(t *testing.T) (*Engine, *state.StateStore, *recordingNotifier) {
	store := state.TestStateStore(t)
	notifier := &recordingNotifier{}
	eng := NewEngine(store, notifier, testlog.HCLogger(t))
	return eng, store, notifier
}

func TestEngine_Trigger(t *testing.T) {
	ci.Parallel(t)

	eng, store, notifier := testEngine(t)
	ctx := context.Background()

	company := mock.Company()
	must.NoError(t, store.UpsertCompany(ctx, company))
	policy := mock.EscalationPolicy(company.ID)
	must.NoError(t, store.UpsertEscalationPolicy(ctx, policy))

	job := mock.EmergencyJob(company.ID)
	must.NoError(t, store.UpsertJob(ctx, job))

	t0 := time.Date(2024, 3, 12, 10, 0, 0, 0, time.UTC)
	eng.now = func() time.Time { return t0 }

	res, err := eng.Trigger(ctx, job.ID)
	must.NoError(t, err)
	must.True(t, res.Triggered)
	must.NotEq(t, "", res.EventID)

	event, err := store.EscalationEventByID(ctx, res.EventID)
	must.NoError(t, err)
	must.NotNil(t, event)
	must.Eq(t, policy.ID, event.PolicyID)
	must.Eq(t, 0, event.CurrentStep)
	must.Eq(t, t0, event.TriggeredAt)
	must.Len(t, 1, event.NotificationLog)
	must.Eq(t, 0, event.NotificationLog[0].Step)
	must.Eq(t, "sms", event.NotificationLog[0].Channel)
	must.Eq(t, []string{"dispatch"}, event.NotificationLog[0].Targets)
	must.Eq(t, []string{"sms"}, notifier.channels)

	// A second trigger on the same job refuses and names the live event.
	res, err = eng.Trigger(ctx, job.ID)
	must.NoError(t, err)
	must.False(t, res.Triggered)
	must.Eq(t, ReasonAlreadyActive, res.Reason)
	must.Eq(t, event.ID, res.EventID)
}

func TestEngine_Trigger_Refusals(t *testing.T) {
	ci.Parallel(t)

	eng, store, _ := testEngine(t)
	ctx := context.Background()

	company := mock.Company()
	must.NoError(t, store.UpsertCompany(ctx, company))
	policy := mock.EscalationPolicy(company.ID)
	must.NoError(t, store.UpsertEscalationPolicy(ctx, policy))

	res, err := eng.Trigger(ctx, "job-missing")
	must.NoError(t, err)
	must.False(t, res.Triggered)
	must.Eq(t, ReasonJobNotFound, res.Reason)

	done := mock.Job(company.ID)
	done.Status = structs.JobStatusCompleted
	must.NoError(t, store.UpsertJob(ctx, done))
	res, err = eng.Trigger(ctx, done.ID)
	must.NoError(t, err)
	must.Eq(t, ReasonJobTerminal, res.Reason)

	// The only policy wants emergencies; a medium job matches nothing.
	routine := mock.Job(company.ID)
	must.NoError(t, store.UpsertJob(ctx, routine))
	res, err = eng.Trigger(ctx, routine.ID)
	must.NoError(t, err)
	must.Eq(t, ReasonNoMatchingPolicy, res.Reason)
}

func TestEngine_Trigger_ConditionMatching(t *testing.T) {
	ci.Parallel(t)

	eng, store, _ := testEngine(t)
	ctx := context.Background()

	company := mock.Company()
	must.NoError(t, store.UpsertCompany(ctx, company))

	// Keywords and priorities together: both must match.
	policy := mock.EscalationPolicy(company.ID)
	policy.TriggerConditions = structs.TriggerConditions{
		Keywords:   []string{"no cooling"},
		Priorities: []structs.JobPriority{structs.JobPriorityEmergency},
	}
	must.NoError(t, store.UpsertEscalationPolicy(ctx, policy))

	rightPriority := mock.EmergencyJob(company.ID)
	rightPriority.Description = "fan runs but warm air"
	must.NoError(t, store.UpsertJob(ctx, rightPriority))
	res, err := eng.Trigger(ctx, rightPriority.ID)
	must.NoError(t, err)
	must.Eq(t, ReasonNoMatchingPolicy, res.Reason)

	both := mock.EmergencyJob(company.ID)
	both.Description = "Server room has NO COOLING since noon"
	must.NoError(t, store.UpsertJob(ctx, both))
	res, err = eng.Trigger(ctx, both.ID)
	must.NoError(t, err)
	must.True(t, res.Triggered)
}

func TestEngine_Advance_DelayPacing(t *testing.T) {
	ci.Parallel(t)

	eng, store, notifier := testEngine(t)
	ctx := context.Background()

	company := mock.Company()
	must.NoError(t, store.UpsertCompany(ctx, company))
	policy := mock.EscalationPolicy(company.ID)
	policy.Steps = []structs.EscalationStep{
		{DelayMinutes: 0, Notify: []string{"dispatch"}, Channel: "sms"},
		{DelayMinutes: 15, Notify: []string{"manager"}, Channel: "phone"},
	}
	must.NoError(t, store.UpsertEscalationPolicy(ctx, policy))

	job := mock.EmergencyJob(company.ID)
	must.NoError(t, store.UpsertJob(ctx, job))

	t0 := time.Date(2024, 3, 12, 10, 0, 0, 0, time.UTC)
	eng.now = func() time.Time { return t0 }
	res, err := eng.Trigger(ctx, job.ID)
	must.NoError(t, err)
	must.True(t, res.Triggered)

	// Two minutes in, the 15 minute delay has not elapsed.
	eng.now = func() time.Time { return t0.Add(2 * time.Minute) }
	adv, err := eng.Advance(ctx)
	must.NoError(t, err)
	must.Eq(t, AdvanceResult{}, adv)

	event, err := store.EscalationEventByID(ctx, res.EventID)
	must.NoError(t, err)
	must.Eq(t, 0, event.CurrentStep)

	// Twenty minutes in, the next step fires.
	eng.now = func() time.Time { return t0.Add(20 * time.Minute) }
	adv, err = eng.Advance(ctx)
	must.NoError(t, err)
	must.Eq(t, AdvanceResult{Advanced: 1}, adv)

	event, err = store.EscalationEventByID(ctx, res.EventID)
	must.NoError(t, err)
	must.Eq(t, 1, event.CurrentStep)
	must.Len(t, 2, event.NotificationLog)
	must.Eq(t, "phone", event.NotificationLog[1].Channel)
	must.Eq(t, t0.Add(20*time.Minute), event.LastSentAt())
	must.Eq(t, []string{"sms", "phone"}, notifier.channels)
}

func TestEngine_Advance_TimesOut(t *testing.T) {
	ci.Parallel(t)

	eng, store, _ := testEngine(t)
	ctx := context.Background()

	company := mock.Company()
	must.NoError(t, store.UpsertCompany(ctx, company))
	policy := mock.EscalationPolicy(company.ID)
	policy.Steps = []structs.EscalationStep{
		{DelayMinutes: 0, Notify: []string{"dispatch"}, Channel: "sms"},
	}
	must.NoError(t, store.UpsertEscalationPolicy(ctx, policy))

	job := mock.EmergencyJob(company.ID)
	must.NoError(t, store.UpsertJob(ctx, job))

	t0 := time.Date(2024, 3, 12, 10, 0, 0, 0, time.UTC)
	eng.now = func() time.Time { return t0 }
	res, err := eng.Trigger(ctx, job.ID)
	must.NoError(t, err)

	adv, err := eng.Advance(ctx)
	must.NoError(t, err)
	must.Eq(t, AdvanceResult{TimedOut: 1}, adv)

	event, err := store.EscalationEventByID(ctx, res.EventID)
	must.NoError(t, err)
	must.True(t, event.TimedOut)
	must.True(t, event.Terminal())

	// Terminal events drop out of later sweeps.
	adv, err = eng.Advance(ctx)
	must.NoError(t, err)
	must.Eq(t, AdvanceResult{}, adv)
}

func TestEngine_Resolve(t *testing.T) {
	ci.Parallel(t)

	eng, store, _ := testEngine(t)
	ctx := context.Background()

	company := mock.Company()
	must.NoError(t, store.UpsertCompany(ctx, company))
	policy := mock.EscalationPolicy(company.ID)
	must.NoError(t, store.UpsertEscalationPolicy(ctx, policy))
	job := mock.EmergencyJob(company.ID)
	must.NoError(t, store.UpsertJob(ctx, job))

	t0 := time.Date(2024, 3, 12, 10, 0, 0, 0, time.UTC)
	eng.now = func() time.Time { return t0 }
	res, err := eng.Trigger(ctx, job.ID)
	must.NoError(t, err)

	event, err := eng.Resolve(ctx, res.EventID, "user-7", "tech called customer back")
	must.NoError(t, err)
	must.NotNil(t, event.ResolvedAt)
	must.Eq(t, t0, *event.ResolvedAt)
	must.Eq(t, "user-7", event.ResolvedBy)
	must.Eq(t, "tech called customer back", event.ResolutionNotes)
	must.True(t, event.Terminal())

	// Resolving again rewrites the same terminal state without error.
	_, err = eng.Resolve(ctx, res.EventID, "user-8", "")
	must.NoError(t, err)

	_, err = eng.Resolve(ctx, "evt-missing", "user-7", "")
	must.Error(t, err)
	must.True(t, structs.IsNotFound(err))
}
