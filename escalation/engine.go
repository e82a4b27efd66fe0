// Copyright (c) Fieldward, Inc.
// SPDX-License-Identifier: BUSL-1.1

// Package escalation walks jobs through time-based notification policies.
// An event is triggered once per job, advances step by step as delays
// elapse, and terminates by resolution or by running out of steps.
package escalation

import (
	"context"
	"time"

	"github.com/hashicorp/go-hclog"
	metrics "github.com/hashicorp/go-metrics"

	"github.com/fieldward/fieldward/helper/uuid"
	"github.com/fieldward/fieldward/structs"
)

// Trigger refusal reasons, stable strings surfaced to callers.
const (
	ReasonJobNotFound      = "job not found"
	ReasonJobTerminal      = "job already terminal"
	ReasonAlreadyActive    = "escalation already active"
	ReasonNoMatchingPolicy = "no matching policy"
)

// Store is the slice of persistence the engine needs.
type Store interface {
	JobByID(ctx context.Context, id string) (*structs.Job, error)
	EscalationPoliciesByCompany(ctx context.Context, companyID string) ([]*structs.EscalationPolicy, error)
	EscalationPolicyByID(ctx context.Context, id string) (*structs.EscalationPolicy, error)
	UpsertEscalationEvent(ctx context.Context, event *structs.EscalationEvent) error
	EscalationEventByID(ctx context.Context, id string) (*structs.EscalationEvent, error)
	ActiveEscalationByJob(ctx context.Context, jobID string) (*structs.EscalationEvent, error)
	ActiveEscalations(ctx context.Context) ([]*structs.EscalationEvent, error)
}

// Notifier delivers one escalation step. Delivery failures are logged and
// never stall the escalation clock.
type Notifier interface {
	Notify(ctx context.Context, event *structs.EscalationEvent, step structs.EscalationStep) error
}

// LogNotifier writes deliveries to the log, standing in until an SMS or
// phone integration is configured.
type LogNotifier struct {
	Logger hclog.Logger
}

func (n *LogNotifier) Notify(_ context.Context, event *structs.EscalationEvent, step structs.EscalationStep) error {
	n.Logger.Info("escalation notification",
		"event_id", event.ID, "job_id", event.JobID, "step", event.CurrentStep,
		"channel", step.Channel, "targets", step.Notify)
	return nil
}

// TriggerResult reports whether an escalation started and why not if it
// did not. EventID is set both for fresh triggers and for the already
// active refusal.
type TriggerResult struct {
	Triggered bool   `json:"triggered"`
	EventID   string `json:"eventId,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// AdvanceResult counts one sweep's outcomes.
type AdvanceResult struct {
	Advanced int `json:"advanced"`
	TimedOut int `json:"timedOut"`
}

// Engine evaluates policies and advances active events.
type Engine struct {
	store    Store
	notifier Notifier
	logger   hclog.Logger

	// now is swapped in tests to drive step pacing.
	now func() time.Time
}

func NewEngine(store Store, notifier Notifier, logger hclog.Logger) *Engine {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	logger = logger.Named("escalation")
	if notifier == nil {
		notifier = &LogNotifier{Logger: logger}
	}
	return &Engine{
		store:    store,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// Trigger starts an escalation for the job under the first policy whose
// conditions match. At most one active event exists per job.
func (e *Engine) Trigger(ctx context.Context, jobID string) (*TriggerResult, error) {
	defer metrics.MeasureSince([]string{"fieldward", "escalation", "trigger"}, time.Now())

	job, err := e.store.JobByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return &TriggerResult{Reason: ReasonJobNotFound}, nil
	}
	if job.Status.Terminal() {
		return &TriggerResult{Reason: ReasonJobTerminal}, nil
	}

	if active, err := e.store.ActiveEscalationByJob(ctx, jobID); err != nil {
		return nil, err
	} else if active != nil {
		return &TriggerResult{Reason: ReasonAlreadyActive, EventID: active.ID}, nil
	}

	policies, err := e.store.EscalationPoliciesByCompany(ctx, job.CompanyID)
	if err != nil {
		return nil, err
	}
	var policy *structs.EscalationPolicy
	for _, p := range policies {
		if p.TriggerConditions.Matches(job) {
			policy = p
			break
		}
	}
	if policy == nil {
		return &TriggerResult{Reason: ReasonNoMatchingPolicy}, nil
	}

	now := e.now()
	event := &structs.EscalationEvent{
		ID:          uuid.Generate(),
		CompanyID:   job.CompanyID,
		PolicyID:    policy.ID,
		JobID:       job.ID,
		CurrentStep: 0,
		TriggeredAt: now,
		CreateTime:  now,
		ModifyTime:  now,
	}
	e.execute(ctx, event, policy.Steps[0], now)
	if err := e.store.UpsertEscalationEvent(ctx, event); err != nil {
		return nil, err
	}

	metrics.IncrCounter([]string{"fieldward", "escalation", "triggered"}, 1)
	e.logger.Info("escalation triggered", "event_id", event.ID, "job_id", job.ID,
		"policy_id", policy.ID, "policy", policy.Name)
	return &TriggerResult{Triggered: true, EventID: event.ID}, nil
}

// Advance sweeps all active events once, executing each event's next step
// when its delay has elapsed and timing out events that have no next step.
func (e *Engine) Advance(ctx context.Context) (AdvanceResult, error) {
	defer metrics.MeasureSince([]string{"fieldward", "escalation", "advance"}, time.Now())

	var result AdvanceResult
	events, err := e.store.ActiveEscalations(ctx)
	if err != nil {
		return result, err
	}
	now := e.now()

	for _, event := range events {
		policy, err := e.store.EscalationPolicyByID(ctx, event.PolicyID)
		if err != nil {
			return result, err
		}
		if policy == nil {
			e.logger.Warn("active escalation references missing policy",
				"event_id", event.ID, "policy_id", event.PolicyID)
			continue
		}

		event = event.Copy()
		nextIndex := event.CurrentStep + 1
		if nextIndex >= len(policy.Steps) {
			event.TimedOut = true
			event.ModifyTime = now
			if err := e.store.UpsertEscalationEvent(ctx, event); err != nil {
				return result, err
			}
			result.TimedOut++
			e.logger.Info("escalation timed out", "event_id", event.ID, "job_id", event.JobID)
			continue
		}

		step := policy.Steps[nextIndex]
		if now.Sub(event.LastSentAt()) < time.Duration(step.DelayMinutes)*time.Minute {
			continue
		}

		event.CurrentStep = nextIndex
		e.execute(ctx, event, step, now)
		if err := e.store.UpsertEscalationEvent(ctx, event); err != nil {
			return result, err
		}
		result.Advanced++
		e.logger.Info("escalation advanced", "event_id", event.ID, "job_id", event.JobID,
			"step", nextIndex, "channel", step.Channel)
	}

	metrics.IncrCounter([]string{"fieldward", "escalation", "advanced"}, float32(result.Advanced))
	metrics.IncrCounter([]string{"fieldward", "escalation", "timed_out"}, float32(result.TimedOut))
	return result, nil
}

// Resolve closes an event. Resolution is unconditional so a second resolve
// just rewrites the same terminal state.
func (e *Engine) Resolve(ctx context.Context, eventID, userID, notes string) (*structs.EscalationEvent, error) {
	event, err := e.store.EscalationEventByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event == nil {
		return nil, structs.NewNotFoundError("EscalationEvent")
	}

	now := e.now()
	event = event.Copy()
	event.ResolvedAt = &now
	event.ResolvedBy = userID
	event.ResolutionNotes = notes
	event.ModifyTime = now
	if err := e.store.UpsertEscalationEvent(ctx, event); err != nil {
		return nil, err
	}
	e.logger.Info("escalation resolved", "event_id", event.ID, "by", userID)
	return event, nil
}

// execute delivers one step and records it in the notification log. The log
// entry is appended even when delivery fails so pacing stays monotonic.
func (e *Engine) execute(ctx context.Context, event *structs.EscalationEvent, step structs.EscalationStep, now time.Time) {
	if err := e.notifier.Notify(ctx, event, step); err != nil {
		e.logger.Warn("escalation notification failed", "event_id", event.ID,
			"step", event.CurrentStep, "channel", step.Channel, "error", err)
	}
	event.RecordNotification(event.CurrentStep, step.Channel, step.Notify, now)
}
