// Copyright (c) Fieldward, Inc.
// SPDX-License-Identifier: BUSL-1.1

package agent

import (
	"net/http"
	"strings"
	"time"

	"github.com/fieldward/fieldward/helper/uuid"
	"github.com/fieldward/fieldward/stream"
	"github.com/fieldward/fieldward/structs"
)

func (s *HTTPServer) EscalationsRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	if req.Method != http.MethodGet {
		return nil, CodedError(405, ErrInvalidMethod)
	}
	caller, err := s.authenticate(req)
	if err != nil {
		return nil, err
	}
	return s.agent.gateway.EscalationEvents(req.Context(), caller, req.URL.Query().Get("companyId"))
}

func (s *HTTPServer) EscalationSpecificRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	path := strings.TrimPrefix(req.URL.Path, "/escalations/")
	if strings.HasSuffix(path, "/resolve") {
		eventID := strings.TrimSuffix(path, "/resolve")
		return s.escalationResolve(resp, req, eventID)
	}

	if req.Method != http.MethodGet {
		return nil, CodedError(405, ErrInvalidMethod)
	}
	caller, err := s.authenticate(req)
	if err != nil {
		return nil, err
	}
	return s.agent.gateway.EscalationEvent(req.Context(), caller, path)
}

type escalationResolveBody struct {
	Notes string `json:"notes"`
}

func (s *HTTPServer) escalationResolve(resp http.ResponseWriter, req *http.Request, eventID string) (interface{}, error) {
	if req.Method != http.MethodPost {
		return nil, CodedError(405, ErrInvalidMethod)
	}
	caller, err := s.authenticate(req)
	if err != nil {
		return nil, err
	}

	var body escalationResolveBody
	if err := decodeBody(req, &body); err != nil {
		return nil, err
	}

	// Visibility first, so a foreign event resolves to 404 rather than
	// leaking through the engine's own lookup.
	if _, err := s.agent.gateway.EscalationEvent(req.Context(), caller, eventID); err != nil {
		return nil, err
	}

	event, err := s.agent.escalation.Resolve(req.Context(), eventID, caller.UserID, body.Notes)
	if err != nil {
		return nil, err
	}

	s.publish(stream.TopicEscalation, eventEscalationResolved, event.CompanyID, event.ID, event)
	s.audit(req, caller, "escalation.resolve", "escalation", event.ID, nil)
	return event, nil
}

func (s *HTTPServer) EscalationPoliciesRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	caller, err := s.authenticate(req)
	if err != nil {
		return nil, err
	}

	switch req.Method {
	case http.MethodGet:
		return s.agent.gateway.EscalationPolicies(req.Context(), caller, req.URL.Query().Get("companyId"))
	case http.MethodPost:
		if err := requireAdmin(caller); err != nil {
			return nil, err
		}
		return s.escalationPolicyCreate(resp, req, caller)
	default:
		return nil, CodedError(405, ErrInvalidMethod)
	}
}

type escalationPolicyBody struct {
	CompanyID string `json:"companyId"`
	Name      string `json:"name" validate:"required"`

	TriggerConditions structs.TriggerConditions `json:"triggerConditions"`
	Steps             []structs.EscalationStep  `json:"steps" validate:"required,min=1"`
	IsActive          *bool                     `json:"isActive"`
}

func (s *HTTPServer) escalationPolicyCreate(resp http.ResponseWriter, req *http.Request, caller *structs.AuthUser) (interface{}, error) {
	var body escalationPolicyBody
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
	policy := &structs.EscalationPolicy{
		ID:                uuid.Generate(),
		CompanyID:         company,
		Name:              body.Name,
		TriggerConditions: body.TriggerConditions,
		Steps:             body.Steps,
		IsActive:          true,
		CreateTime:        now,
		ModifyTime:        now,
	}
	if body.IsActive != nil {
		policy.IsActive = *body.IsActive
	}
	if err := policy.Validate(); err != nil {
		return nil, structs.NewValidationError(err.Error())
	}

	if err := s.agent.gateway.UpsertEscalationPolicy(req.Context(), caller, policy); err != nil {
		return nil, err
	}
	s.audit(req, caller, "escalation.policy.create", "escalation_policy", policy.ID, nil)
	return created(policy), nil
}
