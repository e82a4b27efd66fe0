// Copyright (c) Fieldward, Inc.
// SPDX-License-Identifier: BUSL-1.1

// Package state provides the persistence chokepoint for the dispatch core.
// Two backends implement Store: the in-memory memdb StateStore used by tests
// and -dev agents, and the Postgres store under state/pgstore used in
// production. Components depend on the narrow slices of Store they consume.
package state

import (
	"context"
	"time"

	"github.com/fieldward/fieldward/structs"
)

// JobListFilter narrows JobsByCompany. Zero values match everything.
type JobListFilter struct {
	Status         structs.JobStatus
	Priority       structs.JobPriority
	AssignedTechID string
	CustomerID     string
}

// Matches reports whether a job passes the filter.
func (f JobListFilter) Matches(job *structs.Job) bool {
	if f.Status != "" && job.Status != f.Status {
		return false
	}
	if f.Priority != "" && job.Priority != f.Priority {
		return false
	}
	if f.AssignedTechID != "" && job.AssignedTechID != f.AssignedTechID {
		return false
	}
	if f.CustomerID != "" && job.CustomerID != f.CustomerID {
		return false
	}
	return true
}

// Store is the full persistence surface. Writes that carry side effects
// (job transitions, primary-location promotion, schedule materialization,
// agreement expiry) are applied atomically by each backend.
type Store interface {
	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error
	Close() error

	// Companies.
	UpsertCompany(ctx context.Context, company *structs.Company) error
	CompanyByID(ctx context.Context, id string) (*structs.Company, error)
	Companies(ctx context.Context) ([]*structs.Company, error)

	// Users.
	UpsertUser(ctx context.Context, user *structs.User) error
	UserByID(ctx context.Context, id string) (*structs.User, error)
	UserByEmail(ctx context.Context, email string) (*structs.User, error)
	UsersByCompany(ctx context.Context, companyID string) ([]*structs.User, error)

	// Email verification for self-serve registration.
	UpsertEmailVerification(ctx context.Context, v *structs.EmailVerification) error
	EmailVerificationByEmail(ctx context.Context, email string) (*structs.EmailVerification, error)

	// Employees.
	UpsertEmployee(ctx context.Context, emp *structs.Employee) error
	EmployeeByID(ctx context.Context, id string) (*structs.Employee, error)
	EmployeesByCompany(ctx context.Context, companyID string) ([]*structs.Employee, error)
	// EligibleEmployees returns the dispatchable pool for one company.
	EligibleEmployees(ctx context.Context, companyID string, now time.Time) ([]*structs.Employee, error)
	UpdateEmployeeLocation(ctx context.Context, employeeID string, loc structs.Coordinates, now time.Time) error

	// Customers.
	UpsertCustomer(ctx context.Context, c *structs.Customer) error
	CustomerByID(ctx context.Context, id string) (*structs.Customer, error)
	CustomersByCompany(ctx context.Context, companyID string) ([]*structs.Customer, error)
	CustomerByPhone(ctx context.Context, phone string) (*structs.Customer, error)

	// Customer locations. SetPrimaryLocation demotes any other primary of
	// the same customer in the same transaction.
	UpsertCustomerLocation(ctx context.Context, loc *structs.CustomerLocation) error
	CustomerLocationByID(ctx context.Context, id string) (*structs.CustomerLocation, error)
	LocationsByCustomer(ctx context.Context, customerID string) ([]*structs.CustomerLocation, error)
	SetPrimaryLocation(ctx context.Context, customerID, locationID string, now time.Time) error

	// Equipment.
	UpsertEquipment(ctx context.Context, eq *structs.Equipment) error
	EquipmentByID(ctx context.Context, id string) (*structs.Equipment, error)
	EquipmentByCustomer(ctx context.Context, customerID string) ([]*structs.Equipment, error)

	// Refrigerant logs are append-only.
	AppendRefrigerantLog(ctx context.Context, log *structs.RefrigerantLog) error
	RefrigerantLogByID(ctx context.Context, id string) (*structs.RefrigerantLog, error)
	RefrigerantLogsByEquipment(ctx context.Context, equipmentID string) ([]*structs.RefrigerantLog, error)

	// Jobs.
	UpsertJob(ctx context.Context, job *structs.Job) error
	JobByID(ctx context.Context, id string) (*structs.Job, error)
	JobsByCompany(ctx context.Context, companyID string, filter JobListFilter) ([]*structs.Job, error)
	JobsByIDs(ctx context.Context, companyID string, ids []string) ([]*structs.Job, error)
	// ApplyJobTransition persists a transition plan: the job row, both
	// technician counters, and any tracking, completion, or audit rows,
	// in one unit.
	ApplyJobTransition(ctx context.Context, plan *structs.TransitionPlan) error
	AssignmentLogsByJob(ctx context.Context, jobID string) ([]*structs.JobAssignmentLog, error)
	ReassignmentsByJob(ctx context.Context, jobID string) ([]*structs.JobReassignment, error)

	// Time tracking and close-out.
	TimeTrackingByJob(ctx context.Context, jobID string) (*structs.JobTimeTracking, error)
	// RecordTimeTracking applies one ledger event and, on the sync events,
	// coalesces the derived minutes onto the completion row.
	RecordTimeTracking(ctx context.Context, jobID string, event structs.TimeTrackingEvent, now time.Time) (*structs.JobTimeTracking, error)
	CompletionByJob(ctx context.Context, jobID string) (*structs.JobCompletion, error)

	// Escalations.
	UpsertEscalationPolicy(ctx context.Context, policy *structs.EscalationPolicy) error
	EscalationPolicyByID(ctx context.Context, id string) (*structs.EscalationPolicy, error)
	EscalationPoliciesByCompany(ctx context.Context, companyID string) ([]*structs.EscalationPolicy, error)
	UpsertEscalationEvent(ctx context.Context, event *structs.EscalationEvent) error
	EscalationEventByID(ctx context.Context, id string) (*structs.EscalationEvent, error)
	ActiveEscalationByJob(ctx context.Context, jobID string) (*structs.EscalationEvent, error)
	ActiveEscalations(ctx context.Context) ([]*structs.EscalationEvent, error)
	EscalationEventsByCompany(ctx context.Context, companyID string) ([]*structs.EscalationEvent, error)

	// After-hours rules.
	UpsertAfterHoursRule(ctx context.Context, rule *structs.AfterHoursRule) error
	AfterHoursRuleByID(ctx context.Context, id string) (*structs.AfterHoursRule, error)
	AfterHoursRulesByCompany(ctx context.Context, companyID, branchID string) ([]*structs.AfterHoursRule, error)

	// Recurring schedules.
	UpsertRecurringSchedule(ctx context.Context, s *structs.RecurringJobSchedule) error
	RecurringScheduleByID(ctx context.Context, id string) (*structs.RecurringJobSchedule, error)
	RecurringSchedulesByCompany(ctx context.Context, companyID string) ([]*structs.RecurringJobSchedule, error)
	DueRecurringSchedules(ctx context.Context, today time.Time) ([]*structs.RecurringJobSchedule, error)
	// MaterializeSchedule inserts the job and advances next_run_at in one
	// unit, keyed on the schedule's current next_run_at so repeated calls
	// for the same tick insert once.
	MaterializeSchedule(ctx context.Context, scheduleID string, expectedNextRun time.Time, job *structs.Job, nextRunAt time.Time, now time.Time) error

	// Service agreements and renewal billing.
	UpsertServiceAgreement(ctx context.Context, a *structs.ServiceAgreement) error
	ServiceAgreementByID(ctx context.Context, id string) (*structs.ServiceAgreement, error)
	AgreementsByCompany(ctx context.Context, companyID string) ([]*structs.ServiceAgreement, error)
	AgreementsExpiringWithin(ctx context.Context, now time.Time, window time.Duration) ([]*structs.ServiceAgreement, error)
	ExpiredAgreements(ctx context.Context, now time.Time) ([]*structs.ServiceAgreement, error)
	MarkRenewalReminded(ctx context.Context, agreementID string, now time.Time) error
	// ExpireAgreement marks the agreement expired and, when auto-renew
	// applies, inserts the replacement agreement and its billing trigger
	// in the same unit. Expiring an already-expired agreement is a no-op.
	ExpireAgreement(ctx context.Context, agreementID string, replacement *structs.ServiceAgreement, trigger *structs.BillingTrigger, now time.Time) error
	BillingTriggersByCompany(ctx context.Context, companyID string) ([]*structs.BillingTrigger, error)
	BillingTriggersByAgreement(ctx context.Context, agreementID string) ([]*structs.BillingTrigger, error)

	// Review requests.
	UpsertReviewRequest(ctx context.Context, r *structs.ReviewRequest) error
	ReviewRequestByJob(ctx context.Context, jobID string) (*structs.ReviewRequest, error)
	DueReviewRequests(ctx context.Context, now time.Time, limit int) ([]*structs.ReviewRequest, error)
	// CompletionsNeedingReview returns recent completions with no review
	// request row yet.
	CompletionsNeedingReview(ctx context.Context, limit int) ([]*structs.JobCompletion, error)

	// Geocoding queue. ClaimGeocodeTasks returns rows pending resolution
	// or failed under the retry cap; multi-process backends claim with
	// row locks.
	ClaimGeocodeTasks(ctx context.Context, limit int) ([]*structs.GeocodeTask, error)
	// ResolveGeocodeTask writes the outcome back: coordinates on success,
	// a failed status and bumped retry counter otherwise.
	ResolveGeocodeTask(ctx context.Context, task *structs.GeocodeTask, coords *structs.Coordinates, now time.Time) error

	// Audit and SMS, both append-only.
	AppendAuditLog(ctx context.Context, log *structs.AuditLog) error
	AuditLogsByCompany(ctx context.Context, companyID string, limit int) ([]*structs.AuditLog, error)
	AppendSMSMessage(ctx context.Context, msg *structs.SMSMessage) error
	SMSMessagesByCompany(ctx context.Context, companyID string, limit int) ([]*structs.SMSMessage, error)
}
