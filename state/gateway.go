// Copyright (c) Fieldward, Inc.
// SPDX-License-Identifier: BUSL-1.1

package state

import (
	"context"
	"time"

	"github.com/fieldward/fieldward/structs"
)

// Gateway is the tenant chokepoint. Every read and write that serves a
// request goes through it with the caller's resolved identity; it pins
// non-platform callers to their own company and masks cross-tenant rows as
// NotFound so existence never leaks between tenants.
type Gateway struct {
	store Store
}

func NewGateway(store Store) *Gateway {
	return &Gateway{store: store}
}

// Store exposes the underlying backend for components that run outside a
// request context (workers, the escalation timer).
func (g *Gateway) Store() Store {
	return g.store
}

// CompanyScope resolves the company an operation runs against. Platform
// callers choose through requested; everyone else is pinned to their token
// and requested is ignored.
func (g *Gateway) CompanyScope(caller *structs.AuthUser, requested string) (string, error) {
	company := caller.EffectiveCompany(requested)
	if company == "" {
		return "", structs.NewValidationError("companyId is required for platform callers")
	}
	return company, nil
}

// visible masks rows the caller must not observe. A nil row and a foreign
// row are indistinguishable to the caller.
func visible[T any](caller *structs.AuthUser, entity string, row *T, owner func(*T) string) (*T, error) {
	if row == nil || !caller.CanSee(owner(row)) {
		return nil, structs.NewNotFoundError(entity)
	}
	return row, nil
}

func (g *Gateway) Company(ctx context.Context, caller *structs.AuthUser, id string) (*structs.Company, error) {
	if !caller.IsPlatform() && caller.CompanyID != id {
		return nil, structs.NewNotFoundError("Company")
	}
	company, err := g.store.CompanyByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if company == nil {
		return nil, structs.NewNotFoundError("Company")
	}
	return company, nil
}

func (g *Gateway) Job(ctx context.Context, caller *structs.AuthUser, id string) (*structs.Job, error) {
	job, err := g.store.JobByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return visible(caller, "Job", job, func(j *structs.Job) string { return j.CompanyID })
}

func (g *Gateway) Jobs(ctx context.Context, caller *structs.AuthUser, requestedCompany string, filter JobListFilter) ([]*structs.Job, error) {
	company, err := g.CompanyScope(caller, requestedCompany)
	if err != nil {
		return nil, err
	}
	return g.store.JobsByCompany(ctx, company, filter)
}

func (g *Gateway) UpsertJob(ctx context.Context, caller *structs.AuthUser, job *structs.Job) error {
	if !caller.CanSee(job.CompanyID) {
		return structs.ErrPermissionDenied
	}
	return g.store.UpsertJob(ctx, job)
}

func (g *Gateway) Employee(ctx context.Context, caller *structs.AuthUser, id string) (*structs.Employee, error) {
	emp, err := g.store.EmployeeByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return visible(caller, "Employee", emp, func(e *structs.Employee) string { return e.CompanyID })
}

func (g *Gateway) Employees(ctx context.Context, caller *structs.AuthUser, requestedCompany string) ([]*structs.Employee, error) {
	company, err := g.CompanyScope(caller, requestedCompany)
	if err != nil {
		return nil, err
	}
	return g.store.EmployeesByCompany(ctx, company)
}

func (g *Gateway) UpsertEmployee(ctx context.Context, caller *structs.AuthUser, emp *structs.Employee) error {
	if !caller.CanSee(emp.CompanyID) {
		return structs.ErrPermissionDenied
	}
	return g.store.UpsertEmployee(ctx, emp)
}

func (g *Gateway) Customer(ctx context.Context, caller *structs.AuthUser, id string) (*structs.Customer, error) {
	c, err := g.store.CustomerByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return visible(caller, "Customer", c, func(c *structs.Customer) string { return c.CompanyID })
}

func (g *Gateway) Customers(ctx context.Context, caller *structs.AuthUser, requestedCompany string) ([]*structs.Customer, error) {
	company, err := g.CompanyScope(caller, requestedCompany)
	if err != nil {
		return nil, err
	}
	return g.store.CustomersByCompany(ctx, company)
}

func (g *Gateway) UpsertCustomer(ctx context.Context, caller *structs.AuthUser, c *structs.Customer) error {
	if !caller.CanSee(c.CompanyID) {
		return structs.ErrPermissionDenied
	}
	return g.store.UpsertCustomer(ctx, c)
}

func (g *Gateway) CustomerLocation(ctx context.Context, caller *structs.AuthUser, id string) (*structs.CustomerLocation, error) {
	loc, err := g.store.CustomerLocationByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return visible(caller, "Location", loc, func(l *structs.CustomerLocation) string { return l.CompanyID })
}

func (g *Gateway) LocationsByCustomer(ctx context.Context, caller *structs.AuthUser, customerID string) ([]*structs.CustomerLocation, error) {
	// Visibility rides on the owning customer.
	if _, err := g.Customer(ctx, caller, customerID); err != nil {
		return nil, err
	}
	return g.store.LocationsByCustomer(ctx, customerID)
}

func (g *Gateway) UpsertCustomerLocation(ctx context.Context, caller *structs.AuthUser, loc *structs.CustomerLocation) error {
	if !caller.CanSee(loc.CompanyID) {
		return structs.ErrPermissionDenied
	}
	return g.store.UpsertCustomerLocation(ctx, loc)
}

func (g *Gateway) SetPrimaryLocation(ctx context.Context, caller *structs.AuthUser, customerID, locationID string, now time.Time) error {
	if _, err := g.Customer(ctx, caller, customerID); err != nil {
		return err
	}
	return g.store.SetPrimaryLocation(ctx, customerID, locationID, now)
}

func (g *Gateway) Equipment(ctx context.Context, caller *structs.AuthUser, id string) (*structs.Equipment, error) {
	eq, err := g.store.EquipmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return visible(caller, "Equipment", eq, func(e *structs.Equipment) string { return e.CompanyID })
}

func (g *Gateway) EquipmentByCustomer(ctx context.Context, caller *structs.AuthUser, customerID string) ([]*structs.Equipment, error) {
	if _, err := g.Customer(ctx, caller, customerID); err != nil {
		return nil, err
	}
	return g.store.EquipmentByCustomer(ctx, customerID)
}

func (g *Gateway) UpsertEquipment(ctx context.Context, caller *structs.AuthUser, eq *structs.Equipment) error {
	if !caller.CanSee(eq.CompanyID) {
		return structs.ErrPermissionDenied
	}
	return g.store.UpsertEquipment(ctx, eq)
}

func (g *Gateway) AppendRefrigerantLog(ctx context.Context, caller *structs.AuthUser, log *structs.RefrigerantLog) error {
	if !caller.CanSee(log.CompanyID) {
		return structs.ErrPermissionDenied
	}
	if log.CorrectsLogID != "" {
		orig, err := g.store.RefrigerantLogByID(ctx, log.CorrectsLogID)
		if err != nil {
			return err
		}
		if _, err := visible(caller, "Refrigerant log", orig, func(r *structs.RefrigerantLog) string { return r.CompanyID }); err != nil {
			return err
		}
	}
	return g.store.AppendRefrigerantLog(ctx, log)
}

func (g *Gateway) RefrigerantLogsByEquipment(ctx context.Context, caller *structs.AuthUser, equipmentID string) ([]*structs.RefrigerantLog, error) {
	if _, err := g.Equipment(ctx, caller, equipmentID); err != nil {
		return nil, err
	}
	return g.store.RefrigerantLogsByEquipment(ctx, equipmentID)
}

func (g *Gateway) EscalationEvent(ctx context.Context, caller *structs.AuthUser, id string) (*structs.EscalationEvent, error) {
	event, err := g.store.EscalationEventByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return visible(caller, "Escalation", event, func(e *structs.EscalationEvent) string { return e.CompanyID })
}

func (g *Gateway) EscalationEvents(ctx context.Context, caller *structs.AuthUser, requestedCompany string) ([]*structs.EscalationEvent, error) {
	company, err := g.CompanyScope(caller, requestedCompany)
	if err != nil {
		return nil, err
	}
	return g.store.EscalationEventsByCompany(ctx, company)
}

func (g *Gateway) EscalationPolicies(ctx context.Context, caller *structs.AuthUser, requestedCompany string) ([]*structs.EscalationPolicy, error) {
	company, err := g.CompanyScope(caller, requestedCompany)
	if err != nil {
		return nil, err
	}
	return g.store.EscalationPoliciesByCompany(ctx, company)
}

func (g *Gateway) UpsertEscalationPolicy(ctx context.Context, caller *structs.AuthUser, policy *structs.EscalationPolicy) error {
	if !caller.CanSee(policy.CompanyID) {
		return structs.ErrPermissionDenied
	}
	return g.store.UpsertEscalationPolicy(ctx, policy)
}

func (g *Gateway) AfterHoursRules(ctx context.Context, caller *structs.AuthUser, requestedCompany, branchID string) ([]*structs.AfterHoursRule, error) {
	company, err := g.CompanyScope(caller, requestedCompany)
	if err != nil {
		return nil, err
	}
	return g.store.AfterHoursRulesByCompany(ctx, company, branchID)
}

func (g *Gateway) UpsertAfterHoursRule(ctx context.Context, caller *structs.AuthUser, rule *structs.AfterHoursRule) error {
	if !caller.CanSee(rule.CompanyID) {
		return structs.ErrPermissionDenied
	}
	return g.store.UpsertAfterHoursRule(ctx, rule)
}

func (g *Gateway) RecurringSchedules(ctx context.Context, caller *structs.AuthUser, requestedCompany string) ([]*structs.RecurringJobSchedule, error) {
	company, err := g.CompanyScope(caller, requestedCompany)
	if err != nil {
		return nil, err
	}
	return g.store.RecurringSchedulesByCompany(ctx, company)
}

func (g *Gateway) UpsertRecurringSchedule(ctx context.Context, caller *structs.AuthUser, sched *structs.RecurringJobSchedule) error {
	if !caller.CanSee(sched.CompanyID) {
		return structs.ErrPermissionDenied
	}
	return g.store.UpsertRecurringSchedule(ctx, sched)
}

func (g *Gateway) ServiceAgreements(ctx context.Context, caller *structs.AuthUser, requestedCompany string) ([]*structs.ServiceAgreement, error) {
	company, err := g.CompanyScope(caller, requestedCompany)
	if err != nil {
		return nil, err
	}
	return g.store.AgreementsByCompany(ctx, company)
}

func (g *Gateway) UpsertServiceAgreement(ctx context.Context, caller *structs.AuthUser, a *structs.ServiceAgreement) error {
	if !caller.CanSee(a.CompanyID) {
		return structs.ErrPermissionDenied
	}
	return g.store.UpsertServiceAgreement(ctx, a)
}

func (g *Gateway) AuditLogs(ctx context.Context, caller *structs.AuthUser, requestedCompany string, limit int) ([]*structs.AuditLog, error) {
	company, err := g.CompanyScope(caller, requestedCompany)
	if err != nil {
		return nil, err
	}
	return g.store.AuditLogsByCompany(ctx, company, limit)
}

// Audit appends one audit row for a mutating request. Audit failures are
// returned to the caller; an action that cannot be recorded did happen, so
// callers log loudly rather than roll back.
func (g *Gateway) Audit(ctx context.Context, log *structs.AuditLog) error {
	return g.store.AppendAuditLog(ctx, log)
}
