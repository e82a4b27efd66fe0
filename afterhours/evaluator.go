// Copyright (c) Fieldward, Inc.
// SPDX-License-Identifier: BUSL-1.1

// Package afterhours decides whether a moment falls inside a company's
// after-hours window and what that means for incoming calls.
package afterhours

import (
	"context"
	"time"

	"github.com/hashicorp/go-hclog"
	metrics "github.com/hashicorp/go-metrics"
	"github.com/shopspring/decimal"

	"github.com/fieldward/fieldward/structs"
)

// Store is the slice of persistence the evaluator reads.
type Store interface {
	CompanyByID(ctx context.Context, id string) (*structs.Company, error)
	AfterHoursRulesByCompany(ctx context.Context, companyID, branchID string) ([]*structs.AfterHoursRule, error)
	EmployeeByID(ctx context.Context, id string) (*structs.Employee, error)
}

// Evaluation is the routing outcome for one moment in time. Zero value
// means business hours.
type Evaluation struct {
	IsAfterHours      bool                    `json:"isAfterHours"`
	RoutingStrategy   structs.RoutingStrategy `json:"routingStrategy,omitempty"`
	OnCallEmployeeIDs []string                `json:"onCallEmployeeIds,omitempty"`
	SurchargeFlat     decimal.Decimal         `json:"surchargeFlat"`
	SurchargePercent  decimal.Decimal         `json:"surchargePercent"`
	AutoAccept        bool                    `json:"autoAccept"`
	NotifyManager     bool                    `json:"notifyManager"`
	ManagerPhone      string                  `json:"managerPhone,omitempty"`
}

// Evaluator matches moments against a company's active after-hours rules.
type Evaluator struct {
	store  Store
	logger hclog.Logger
}

func NewEvaluator(store Store, logger hclog.Logger) *Evaluator {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Evaluator{
		store:  store,
		logger: logger.Named("afterhours"),
	}
}

// Evaluate resolves at in the company's zone and returns the first matching
// active rule's routing fields. No rules, or no match, means business hours.
func (e *Evaluator) Evaluate(ctx context.Context, companyID, branchID string, at time.Time) (*Evaluation, error) {
	defer metrics.MeasureSince([]string{"fieldward", "afterhours", "evaluate"}, time.Now())

	company, err := e.store.CompanyByID(ctx, companyID)
	if err != nil {
		return nil, err
	}
	if company == nil {
		return nil, structs.NewNotFoundError("Company")
	}

	rules, err := e.store.AfterHoursRulesByCompany(ctx, companyID, branchID)
	if err != nil {
		return nil, err
	}

	local := at.In(company.Location())
	for _, rule := range rules {
		if !rule.Covers(local) {
			continue
		}
		e.logger.Debug("after-hours window matched", "company_id", companyID,
			"rule_id", rule.ID, "strategy", rule.RoutingStrategy)
		return &Evaluation{
			IsAfterHours:      true,
			RoutingStrategy:   rule.RoutingStrategy,
			OnCallEmployeeIDs: append([]string(nil), rule.OnCallEmployeeIDs...),
			SurchargeFlat:     rule.SurchargeFlat,
			SurchargePercent:  rule.SurchargePercent,
			AutoAccept:        rule.AutoAccept,
			NotifyManager:     rule.NotifyManager,
			ManagerPhone:      rule.ManagerPhone,
		}, nil
	}
	return &Evaluation{IsAfterHours: false}, nil
}

// PickOnCallTech walks the rule's ordered on-call list and returns the first
// employee who is active, available, and under their concurrency cap. Empty
// when nobody qualifies.
func (e *Evaluator) PickOnCallTech(ctx context.Context, ids []string) (string, error) {
	for _, id := range ids {
		emp, err := e.store.EmployeeByID(ctx, id)
		if err != nil {
			return "", err
		}
		if emp == nil {
			continue
		}
		if emp.IsActive && emp.IsAvailable && emp.HasCapacity() {
			return emp.ID, nil
		}
	}
	return "", nil
}
