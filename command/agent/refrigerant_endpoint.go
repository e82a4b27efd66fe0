// Copyright (c) Fieldward, Inc.
// SPDX-License-Identifier: BUSL-1.1

package agent

import (
	"net/http"
	"time"

	"github.com/fieldward/fieldward/helper/uuid"
	"github.com/fieldward/fieldward/structs"
)

func (s *HTTPServer) RefrigerantLogsRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	caller, err := s.authenticate(req)
	if err != nil {
		return nil, err
	}

	switch req.Method {
	case http.MethodGet:
		equipmentID := req.URL.Query().Get("equipmentId")
		if equipmentID == "" {
			return nil, structs.NewValidationError("equipmentId query parameter is required")
		}
		return s.agent.gateway.RefrigerantLogsByEquipment(req.Context(), caller, equipmentID)

	case http.MethodPost:
		return s.refrigerantLogAppend(resp, req, caller)

	default:
		return nil, CodedError(405, ErrInvalidMethod)
	}
}

type refrigerantLogBody struct {
	JobID        string `json:"jobId"`
	EquipmentID  string `json:"equipmentId" validate:"required"`
	TechnicianID string `json:"technicianId" validate:"required"`

	RefrigerantType string `json:"refrigerantType" validate:"required"`
	PoundsAdded     string `json:"poundsAdded"`
	PoundsRecovered string `json:"poundsRecovered"`
	Notes           string `json:"notes"`

	// CorrectsLogID makes this entry a correction of a previous one. The
	// original row is never touched.
	CorrectsLogID string `json:"correctsLogId"`
}

func (s *HTTPServer) refrigerantLogAppend(resp http.ResponseWriter, req *http.Request, caller *structs.AuthUser) (interface{}, error) {
	var body refrigerantLogBody
	if err := decodeBody(req, &body); err != nil {
		return nil, err
	}
	if err := validateBody(&body); err != nil {
		return nil, err
	}

	// The log inherits its tenant from the equipment it touches.
	equipment, err := s.agent.gateway.Equipment(req.Context(), caller, body.EquipmentID)
	if err != nil {
		return nil, err
	}

	entry := &structs.RefrigerantLog{
		ID:              uuid.Generate(),
		CompanyID:       equipment.CompanyID,
		JobID:           body.JobID,
		EquipmentID:     equipment.ID,
		TechnicianID:    body.TechnicianID,
		RefrigerantType: body.RefrigerantType,
		Notes:           body.Notes,
		CorrectsLogID:   body.CorrectsLogID,
		CreateTime:      time.Now().UTC(),
	}
	if entry.PoundsAdded, err = parseMoney(&body.PoundsAdded, "poundsAdded"); err != nil {
		return nil, err
	}
	if entry.PoundsRecovered, err = parseMoney(&body.PoundsRecovered, "poundsRecovered"); err != nil {
		return nil, err
	}
	if err := entry.Validate(); err != nil {
		return nil, structs.NewValidationError(err.Error())
	}

	if err := s.agent.gateway.AppendRefrigerantLog(req.Context(), caller, entry); err != nil {
		return nil, err
	}
	s.audit(req, caller, "refrigerant.append", "refrigerant_log", entry.ID, map[string]string{
		"equipment": entry.EquipmentID,
	})
	return created(entry), nil
}
