// Copyright (c) Fieldward, Inc.
// SPDX-License-Identifier: BUSL-1.1

package agent

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fieldward/fieldward/helper/uuid"
	"github.com/fieldward/fieldward/structs"
)

// AfterHoursEvaluateRequest answers "is it after hours right now" for the
// caller's company, or for the moment given by ?at= (RFC3339).
func (s *HTTPServer) AfterHoursEvaluateRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	if req.Method != http.MethodGet {
		return nil, CodedError(405, ErrInvalidMethod)
	}
	caller, err := s.authenticate(req)
	if err != nil {
		return nil, err
	}

	query := req.URL.Query()
	company, err := s.agent.gateway.CompanyScope(caller, query.Get("companyId"))
	if err != nil {
		return nil, err
	}

	at := time.Now().UTC()
	if raw := query.Get("at"); raw != "" {
		at, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, structs.NewValidationError("invalid at parameter").
				WithDetail("at", "must be an RFC3339 timestamp")
		}
	}

	return s.agent.evaluator.Evaluate(req.Context(), company, query.Get("branchId"), at)
}

func (s *HTTPServer) AfterHoursRulesRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	caller, err := s.authenticate(req)
	if err != nil {
		return nil, err
	}

	switch req.Method {
	case http.MethodGet:
		query := req.URL.Query()
		return s.agent.gateway.AfterHoursRules(req.Context(), caller, query.Get("companyId"), query.Get("branchId"))
	case http.MethodPut:
		if err := requireAdmin(caller); err != nil {
			return nil, err
		}
		return s.afterHoursRulePut(resp, req, caller)
	default:
		return nil, CodedError(405, ErrInvalidMethod)
	}
}

// afterHoursRuleBody creates or replaces one window rule. An ID targets an
// existing rule; without one a new rule is created.
type afterHoursRuleBody struct {
	ID        string `json:"id"`
	CompanyID string `json:"companyId"`
	BranchID  string `json:"branchId"`

	WeekdayStart  string `json:"weekdayStart" validate:"required"`
	WeekdayEnd    string `json:"weekdayEnd" validate:"required"`
	WeekendAllDay bool   `json:"weekendAllDay"`

	RoutingStrategy   string   `json:"routingStrategy" validate:"omitempty,oneof=on_call_pool voicemail_queue emergency_only"`
	OnCallEmployeeIDs []string `json:"onCallEmployeeIds"`
	SurchargeFlat     *string  `json:"surchargeFlat"`
	SurchargePercent  *string  `json:"surchargePercent"`
	AutoAccept        bool     `json:"autoAccept"`
	NotifyManager     bool     `json:"notifyManager"`
	ManagerPhone      string   `json:"managerPhone"`

	IsActive *bool `json:"isActive"`
}

func (s *HTTPServer) afterHoursRulePut(resp http.ResponseWriter, req *http.Request, caller *structs.AuthUser) (interface{}, error) {
	var body afterHoursRuleBody
	if err := decodeBody(req, &body); err != nil {
		return nil, err
	}
	if err := validateBody(&body); err != nil {
		return nil, err
	}

	company, err := s.agent.gateway.CompanyScope(caller, body.CompanyID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	rule := &structs.AfterHoursRule{
		ID:         body.ID,
		CompanyID:  company,
		BranchID:   body.BranchID,
		CreateTime: now,
	}
	if rule.ID == "" {
		rule.ID = uuid.Generate()
	} else {
		existing, err := s.agent.store.AfterHoursRuleByID(req.Context(), rule.ID)
		if err != nil {
			return nil, err
		}
		if existing == nil || !caller.CanSee(existing.CompanyID) {
			return nil, structs.NewNotFoundError("After-hours rule")
		}
		rule.CompanyID = existing.CompanyID
		rule.CreateTime = existing.CreateTime
	}

	rule.WeekdayStart = body.WeekdayStart
	rule.WeekdayEnd = body.WeekdayEnd
	rule.WeekendAllDay = body.WeekendAllDay
	rule.RoutingStrategy = structs.RoutingStrategy(body.RoutingStrategy)
	rule.OnCallEmployeeIDs = body.OnCallEmployeeIDs
	rule.AutoAccept = body.AutoAccept
	rule.NotifyManager = body.NotifyManager
	rule.ManagerPhone = body.ManagerPhone
	rule.IsActive = true
	if body.IsActive != nil {
		rule.IsActive = *body.IsActive
	}
	rule.ModifyTime = now

	if rule.SurchargeFlat, err = parseMoney(body.SurchargeFlat, "surchargeFlat"); err != nil {
		return nil, err
	}
	if rule.SurchargePercent, err = parseMoney(body.SurchargePercent, "surchargePercent"); err != nil {
		return nil, err
	}

	rule.Canonicalize()
	if err := rule.Validate(); err != nil {
		return nil, structs.NewValidationError(err.Error())
	}

	if err := s.agent.gateway.UpsertAfterHoursRule(req.Context(), caller, rule); err != nil {
		return nil, err
	}
	s.audit(req, caller, "afterhours.rule.put", "after_hours_rule", rule.ID, nil)
	return rule, nil
}

// parseMoney converts an optional decimal string. Money travels as strings
// so floats never touch surcharge math.
func parseMoney(raw *string, field string) (decimal.Decimal, error) {
	if raw == nil || *raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(*raw)
	if err != nil {
		return decimal.Zero, structs.NewValidationError("invalid decimal value").
			WithDetail(field, "must be a decimal string")
	}
	return d, nil
}
