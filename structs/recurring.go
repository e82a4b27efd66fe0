// Copyright (c) Fieldward, Inc.
// SPDX-License-Identifier: BUSL-1.1

package structs

import (
	"fmt"
	"time"

	"github.com/hashicorp/cronexpr"
	multierror "github.com/hashicorp/go-multierror"
	"github.com/shopspring/decimal"

	"github.com/fieldward/fieldward/helper/pointer"
)

// RecurrenceFrequency is the closed set of schedule cadences. Custom
// cadences carry a cron expression alongside.
type RecurrenceFrequency string

const (
	FrequencyWeekly     RecurrenceFrequency = "weekly"
	FrequencyBiweekly   RecurrenceFrequency = "biweekly"
	FrequencyMonthly    RecurrenceFrequency = "monthly"
	FrequencyQuarterly  RecurrenceFrequency = "quarterly"
	FrequencySemiannual RecurrenceFrequency = "semiannual"
	FrequencyAnnual     RecurrenceFrequency = "annual"
	FrequencyCustom     RecurrenceFrequency = "custom"
)

func (f RecurrenceFrequency) Valid() bool {
	switch f {
	case FrequencyWeekly, FrequencyBiweekly, FrequencyMonthly,
		FrequencyQuarterly, FrequencySemiannual, FrequencyAnnual, FrequencyCustom:
		return true
	}
	return false
}

// RecurringJobSchedule materializes jobs on a cadence. The worker creates
// one unassigned job per due tick and advances next_run_at.
type RecurringJobSchedule struct {
	ID         string `json:"id"`
	CompanyID  string `json:"companyId"`
	CustomerID string `json:"customerId"`
	LocationID string `json:"locationId,omitempty"`

	JobType                  string      `json:"jobType"`
	Description              string      `json:"description,omitempty"`
	Priority                 JobPriority `json:"priority"`
	RequiredSkills           []string    `json:"requiredSkills,omitempty"`
	EstimatedDurationMinutes *int        `json:"estimatedDurationMinutes,omitempty"`

	Frequency RecurrenceFrequency `json:"frequency"`
	// CronExpr drives custom cadences; ignored otherwise.
	CronExpr string `json:"cronExpr,omitempty"`

	// AdvanceDays is how many days before next_run_at the job is created.
	AdvanceDays int       `json:"advanceDays"`
	NextRunAt   time.Time `json:"nextRunAt"`
	IsActive    bool      `json:"isActive"`

	LastMaterializedAt *time.Time `json:"lastMaterializedAt,omitempty"`

	CreateTime time.Time `json:"createdAt"`
	ModifyTime time.Time `json:"updatedAt"`
}

func (s *RecurringJobSchedule) Copy() *RecurringJobSchedule {
	if s == nil {
		return nil
	}
	ns := *s
	if s.RequiredSkills != nil {
		ns.RequiredSkills = make([]string, len(s.RequiredSkills))
		copy(ns.RequiredSkills, s.RequiredSkills)
	}
	ns.EstimatedDurationMinutes = pointer.Copy(s.EstimatedDurationMinutes)
	ns.LastMaterializedAt = pointer.Copy(s.LastMaterializedAt)
	return &ns
}

func (s *RecurringJobSchedule) Canonicalize() {
	if s.Priority == "" {
		s.Priority = JobPriorityMedium
	}
	if s.Frequency == "" {
		s.Frequency = FrequencyMonthly
	}
}

func (s *RecurringJobSchedule) Validate() error {
	var mErr multierror.Error
	if s.CompanyID == "" {
		mErr.Errors = append(mErr.Errors, fmt.Errorf("missing company"))
	}
	if s.CustomerID == "" {
		mErr.Errors = append(mErr.Errors, fmt.Errorf("missing customer"))
	}
	if s.JobType == "" {
		mErr.Errors = append(mErr.Errors, fmt.Errorf("missing job type"))
	}
	if !s.Frequency.Valid() {
		mErr.Errors = append(mErr.Errors, fmt.Errorf("invalid frequency %q", s.Frequency))
	}
	if s.Frequency == FrequencyCustom {
		if _, err := cronexpr.Parse(s.CronExpr); err != nil {
			mErr.Errors = append(mErr.Errors, fmt.Errorf("invalid cron expression %q: %w", s.CronExpr, err))
		}
	}
	if s.AdvanceDays < 0 {
		mErr.Errors = append(mErr.Errors, fmt.Errorf("advance days cannot be negative"))
	}
	if s.NextRunAt.IsZero() {
		mErr.Errors = append(mErr.Errors, fmt.Errorf("missing next run time"))
	}
	return mErr.ErrorOrNil()
}

// Due reports whether the schedule should materialize a job today, which
// happens once next_run_at minus the advance window has arrived.
func (s *RecurringJobSchedule) Due(today time.Time) bool {
	return !s.NextRunAt.AddDate(0, 0, -s.AdvanceDays).After(today)
}

// NextAfter advances from one run time to the following one.
func (s *RecurringJobSchedule) NextAfter(from time.Time) (time.Time, error) {
	switch s.Frequency {
	case FrequencyWeekly:
		return from.AddDate(0, 0, 7), nil
	case FrequencyBiweekly:
		return from.AddDate(0, 0, 14), nil
	case FrequencyMonthly:
		return from.AddDate(0, 1, 0), nil
	case FrequencyQuarterly:
		return from.AddDate(0, 3, 0), nil
	case FrequencySemiannual:
		return from.AddDate(0, 6, 0), nil
	case FrequencyAnnual:
		return from.AddDate(1, 0, 0), nil
	case FrequencyCustom:
		expr, err := cronexpr.Parse(s.CronExpr)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid cron expression %q: %w", s.CronExpr, err)
		}
		next := expr.Next(from)
		if next.IsZero() {
			return time.Time{}, fmt.Errorf("cron expression %q has no next run", s.CronExpr)
		}
		return next, nil
	default:
		return time.Time{}, fmt.Errorf("invalid frequency %q", s.Frequency)
	}
}

// MaterializeJob builds the unassigned job for the current run.
func (s *RecurringJobSchedule) MaterializeJob(now time.Time) *Job {
	job := &Job{
		CompanyID:        s.CompanyID,
		CustomerID:       s.CustomerID,
		LocationID:       s.LocationID,
		JobType:          s.JobType,
		Description:      s.Description,
		Priority:         s.Priority,
		Status:           JobStatusUnassigned,
		ScheduledTime:    pointer.Of(s.NextRunAt),
		SourceScheduleID: s.ID,
		CreateTime:       now,
		ModifyTime:       now,
	}
	if s.RequiredSkills != nil {
		job.RequiredSkills = make([]string, len(s.RequiredSkills))
		copy(job.RequiredSkills, s.RequiredSkills)
	}
	job.EstimatedDurationMinutes = pointer.Copy(s.EstimatedDurationMinutes)
	job.Canonicalize()
	return job
}

// AgreementStatus is the closed set of service agreement states.
type AgreementStatus string

const (
	AgreementActive    AgreementStatus = "active"
	AgreementExpired   AgreementStatus = "expired"
	AgreementCancelled AgreementStatus = "cancelled"
)

func (s AgreementStatus) Valid() bool {
	switch s {
	case AgreementActive, AgreementExpired, AgreementCancelled:
		return true
	}
	return false
}

// ServiceAgreement is a membership plan with included visits and renewal
// billing.
type ServiceAgreement struct {
	ID         string `json:"id"`
	CompanyID  string `json:"companyId"`
	CustomerID string `json:"customerId"`

	PlanName   string          `json:"planName"`
	Status     AgreementStatus `json:"status"`
	StartDate  time.Time       `json:"startDate"`
	EndDate    time.Time       `json:"endDate"`
	TermMonths int             `json:"termMonths"`

	AutoRenew     bool            `json:"autoRenew"`
	VisitsAllowed int             `json:"visitsAllowed"`
	VisitsUsed    int             `json:"visitsUsed"`
	BillingAmount decimal.Decimal `json:"billingAmount"`

	RenewalReminderSentAt *time.Time `json:"renewalReminderSentAt,omitempty"`

	CreateTime time.Time `json:"createdAt"`
	ModifyTime time.Time `json:"updatedAt"`
}

func (a *ServiceAgreement) Copy() *ServiceAgreement {
	if a == nil {
		return nil
	}
	na := *a
	na.RenewalReminderSentAt = pointer.Copy(a.RenewalReminderSentAt)
	return &na
}

func (a *ServiceAgreement) Canonicalize() {
	if a.Status == "" {
		a.Status = AgreementActive
	}
	if a.TermMonths <= 0 {
		a.TermMonths = 12
	}
}

func (a *ServiceAgreement) Validate() error {
	var mErr multierror.Error
	if a.CompanyID == "" {
		mErr.Errors = append(mErr.Errors, fmt.Errorf("missing company"))
	}
	if a.CustomerID == "" {
		mErr.Errors = append(mErr.Errors, fmt.Errorf("missing customer"))
	}
	if a.PlanName == "" {
		mErr.Errors = append(mErr.Errors, fmt.Errorf("missing plan name"))
	}
	if !a.Status.Valid() {
		mErr.Errors = append(mErr.Errors, fmt.Errorf("invalid status %q", a.Status))
	}
	if a.EndDate.Before(a.StartDate) {
		mErr.Errors = append(mErr.Errors, fmt.Errorf("end date precedes start date"))
	}
	if a.VisitsAllowed < 0 || a.VisitsUsed < 0 {
		mErr.Errors = append(mErr.Errors, fmt.Errorf("visit counts cannot be negative"))
	}
	return mErr.ErrorOrNil()
}

// Expired reports whether the term has lapsed at now.
func (a *ServiceAgreement) Expired(now time.Time) bool {
	return a.Status == AgreementActive && a.EndDate.Before(now)
}

// ExpiringWithin reports whether the term lapses inside the reminder
// window and no reminder has gone out yet.
func (a *ServiceAgreement) ExpiringWithin(now time.Time, window time.Duration) bool {
	if a.Status != AgreementActive || a.RenewalReminderSentAt != nil {
		return false
	}
	return a.EndDate.After(now) && !a.EndDate.After(now.Add(window))
}

// Renew builds the successor agreement: back-to-back term, visit counter
// reset, billing and renewal settings carried over.
func (a *ServiceAgreement) Renew(now time.Time) *ServiceAgreement {
	return &ServiceAgreement{
		CompanyID:     a.CompanyID,
		CustomerID:    a.CustomerID,
		PlanName:      a.PlanName,
		Status:        AgreementActive,
		StartDate:     a.EndDate,
		EndDate:       a.EndDate.AddDate(0, a.TermMonths, 0),
		TermMonths:    a.TermMonths,
		AutoRenew:     a.AutoRenew,
		VisitsAllowed: a.VisitsAllowed,
		BillingAmount: a.BillingAmount,
		CreateTime:    now,
		ModifyTime:    now,
	}
}

// BillingTriggerStatus is the closed set of billing trigger states.
type BillingTriggerStatus string

const (
	BillingPending   BillingTriggerStatus = "pending"
	BillingProcessed BillingTriggerStatus = "processed"
	BillingFailed    BillingTriggerStatus = "failed"
)

// BillingTrigger queues one charge for the payment boundary to pick up.
type BillingTrigger struct {
	ID          string `json:"id"`
	CompanyID   string `json:"companyId"`
	AgreementID string `json:"agreementId"`
	CustomerID  string `json:"customerId"`

	Amount decimal.Decimal      `json:"amount"`
	Reason string               `json:"reason"`
	Status BillingTriggerStatus `json:"status"`

	CreateTime time.Time `json:"createdAt"`
	ModifyTime time.Time `json:"updatedAt"`
}

// ReviewChannel is how a review request reaches the customer.
type ReviewChannel string

const (
	ReviewChannelSMS   ReviewChannel = "sms"
	ReviewChannelEmail ReviewChannel = "email"
)

// ReviewRequestStatus is the closed set of review request states.
type ReviewRequestStatus string

const (
	ReviewPending ReviewRequestStatus = "pending"
	ReviewSent    ReviewRequestStatus = "sent"
	ReviewFailed  ReviewRequestStatus = "failed"
)

// ReviewRequest asks a customer for feedback after a completed job.
type ReviewRequest struct {
	ID         string `json:"id"`
	CompanyID  string `json:"companyId"`
	JobID      string `json:"jobId"`
	CustomerID string `json:"customerId"`

	Channel      ReviewChannel       `json:"channel"`
	Status       ReviewRequestStatus `json:"status"`
	ScheduledFor time.Time           `json:"scheduledFor"`
	SentAt       *time.Time          `json:"sentAt,omitempty"`
	FailureNote  string              `json:"failureNote,omitempty"`

	CreateTime time.Time `json:"createdAt"`
	ModifyTime time.Time `json:"updatedAt"`
}

func (r *ReviewRequest) Copy() *ReviewRequest {
	if r == nil {
		return nil
	}
	nr := *r
	nr.SentAt = pointer.Copy(r.SentAt)
	return &nr
}

// Due reports whether the request is ready to dispatch.
func (r *ReviewRequest) Due(now time.Time) bool {
	return r.Status == ReviewPending && !r.ScheduledFor.After(now)
}
