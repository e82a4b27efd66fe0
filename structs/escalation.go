// Copyright (c) Fieldward, Inc.
// SPDX-License-Identifier: BUSL-1.1

package structs

import (
	"fmt"
	"strings"
	"time"

	multierror "github.com/hashicorp/go-multierror"

	"github.com/fieldward/fieldward/helper/pointer"
)

// TriggerConditions decide whether a policy applies to a job. An empty
// object matches every job; when both fields are present both must match.
type TriggerConditions struct {
	// Keywords match case-insensitively against the job description.
	Keywords []string `json:"keywords,omitempty"`

	// Priorities match the job's priority against a listed set.
	Priorities []JobPriority `json:"priorities,omitempty"`
}

func (tc *TriggerConditions) Empty() bool {
	return tc == nil || (len(tc.Keywords) == 0 && len(tc.Priorities) == 0)
}

// Matches evaluates the conditions against one job.
func (tc *TriggerConditions) Matches(job *Job) bool {
	if tc.Empty() {
		return true
	}
	if len(tc.Keywords) > 0 && !tc.matchesKeywords(job.Description) {
		return false
	}
	if len(tc.Priorities) > 0 && !tc.matchesPriority(job.Priority) {
		return false
	}
	return true
}

func (tc *TriggerConditions) matchesKeywords(description string) bool {
	desc := strings.ToLower(description)
	for _, kw := range tc.Keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(desc, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

func (tc *TriggerConditions) matchesPriority(p JobPriority) bool {
	for _, want := range tc.Priorities {
		if want == p {
			return true
		}
	}
	return false
}

// EscalationStep is one element of a policy. Delay is measured from the
// previous step's notification, not from the trigger.
type EscalationStep struct {
	DelayMinutes int      `json:"delayMinutes"`
	Notify       []string `json:"notify"`
	Channel      string   `json:"channel"`
}

// EscalationPolicy is a per-company escalation plan.
type EscalationPolicy struct {
	ID        string `json:"id"`
	CompanyID string `json:"companyId"`
	Name      string `json:"name"`

	TriggerConditions TriggerConditions `json:"triggerConditions"`
	Steps             []EscalationStep  `json:"steps"`
	IsActive          bool              `json:"isActive"`

	CreateTime time.Time `json:"createdAt"`
	ModifyTime time.Time `json:"updatedAt"`
}

func (p *EscalationPolicy) Copy() *EscalationPolicy {
	if p == nil {
		return nil
	}
	np := *p
	if p.TriggerConditions.Keywords != nil {
		np.TriggerConditions.Keywords = make([]string, len(p.TriggerConditions.Keywords))
		copy(np.TriggerConditions.Keywords, p.TriggerConditions.Keywords)
	}
	if p.TriggerConditions.Priorities != nil {
		np.TriggerConditions.Priorities = make([]JobPriority, len(p.TriggerConditions.Priorities))
		copy(np.TriggerConditions.Priorities, p.TriggerConditions.Priorities)
	}
	if p.Steps != nil {
		np.Steps = make([]EscalationStep, len(p.Steps))
		for i, s := range p.Steps {
			ns := s
			if s.Notify != nil {
				ns.Notify = make([]string, len(s.Notify))
				copy(ns.Notify, s.Notify)
			}
			np.Steps[i] = ns
		}
	}
	return &np
}

func (p *EscalationPolicy) Validate() error {
	var mErr multierror.Error
	if p.CompanyID == "" {
		mErr.Errors = append(mErr.Errors, fmt.Errorf("missing company"))
	}
	if p.Name == "" {
		mErr.Errors = append(mErr.Errors, fmt.Errorf("missing name"))
	}
	if len(p.Steps) == 0 {
		mErr.Errors = append(mErr.Errors, fmt.Errorf("policy requires at least one step"))
	}
	for i, s := range p.Steps {
		if s.DelayMinutes < 0 {
			mErr.Errors = append(mErr.Errors, fmt.Errorf("step %d: delay cannot be negative", i))
		}
		if s.Channel == "" {
			mErr.Errors = append(mErr.Errors, fmt.Errorf("step %d: missing channel", i))
		}
	}
	for _, pr := range p.TriggerConditions.Priorities {
		if !pr.Valid() {
			mErr.Errors = append(mErr.Errors, fmt.Errorf("invalid trigger priority %q", pr))
		}
	}
	return mErr.ErrorOrNil()
}

// EscalationNotification is one appended notification-log entry.
type EscalationNotification struct {
	Step    int       `json:"step"`
	SentAt  time.Time `json:"sentAt"`
	Channel string    `json:"channel"`
	Targets []string  `json:"targets"`
}

// EscalationEvent is the runtime instance of a policy on one job.
type EscalationEvent struct {
	ID        string `json:"id"`
	CompanyID string `json:"companyId"`
	PolicyID  string `json:"policyId"`
	JobID     string `json:"jobId"`

	CurrentStep     int                      `json:"currentStep"`
	TriggeredAt     time.Time                `json:"triggeredAt"`
	NotificationLog []EscalationNotification `json:"notificationLog"`

	TimedOut        bool       `json:"timedOut"`
	ResolvedAt      *time.Time `json:"resolvedAt,omitempty"`
	ResolvedBy      string     `json:"resolvedBy,omitempty"`
	ResolutionNotes string     `json:"resolutionNotes,omitempty"`

	CreateTime time.Time `json:"createdAt"`
	ModifyTime time.Time `json:"updatedAt"`
}

func (e *EscalationEvent) Copy() *EscalationEvent {
	if e == nil {
		return nil
	}
	ne := *e
	if e.NotificationLog != nil {
		ne.NotificationLog = make([]EscalationNotification, len(e.NotificationLog))
		for i, n := range e.NotificationLog {
			nn := n
			if n.Targets != nil {
				nn.Targets = make([]string, len(n.Targets))
				copy(nn.Targets, n.Targets)
			}
			ne.NotificationLog[i] = nn
		}
	}
	ne.ResolvedAt = pointer.Copy(e.ResolvedAt)
	return &ne
}

// Terminal reports whether the event can no longer advance.
func (e *EscalationEvent) Terminal() bool {
	return e.TimedOut || e.ResolvedAt != nil
}

// LastSentAt returns the most recent notification time, falling back to
// triggered_at when the log is empty.
func (e *EscalationEvent) LastSentAt() time.Time {
	last := e.TriggeredAt
	for _, n := range e.NotificationLog {
		if n.SentAt.After(last) {
			last = n.SentAt
		}
	}
	return last
}

// RecordNotification appends one log entry for a step execution.
func (e *EscalationEvent) RecordNotification(step int, channel string, targets []string, now time.Time) {
	e.NotificationLog = append(e.NotificationLog, EscalationNotification{
		Step:    step,
		SentAt:  now,
		Channel: channel,
		Targets: targets,
	})
	e.ModifyTime = now
}
