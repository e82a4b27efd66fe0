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

func (s *HTTPServer) EmployeesRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	switch req.Method {
	case http.MethodGet:
		return s.employeeList(resp, req)
	case http.MethodPost:
		return s.employeeCreate(resp, req)
	default:
		return nil, CodedError(405, ErrInvalidMethod)
	}
}

func (s *HTTPServer) EmployeeSpecificRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	employeeID := strings.TrimPrefix(req.URL.Path, "/employees/")
	switch req.Method {
	case http.MethodGet:
		return s.employeeQuery(resp, req, employeeID)
	case http.MethodPatch:
		return s.employeeUpdate(resp, req, employeeID)
	default:
		return nil, CodedError(405, ErrInvalidMethod)
	}
}

func (s *HTTPServer) employeeList(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	caller, err := s.authenticate(req)
	if err != nil {
		return nil, err
	}
	return s.agent.gateway.Employees(req.Context(), caller, req.URL.Query().Get("companyId"))
}

type employeeCreateBody struct {
	CompanyID string `json:"companyId"`
	Name      string `json:"name" validate:"required"`
	Phone     string `json:"phone"`

	Skills     []string       `json:"skills"`
	SkillLevel map[string]int `json:"skillLevel"`

	MaxConcurrentJobs int             `json:"maxConcurrentJobs" validate:"omitempty,min=0"`
	HomeAddress       structs.Address `json:"homeAddress"`
}

func (s *HTTPServer) employeeCreate(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	caller, err := s.authenticate(req)
	if err != nil {
		return nil, err
	}

	var body employeeCreateBody
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
	emp := &structs.Employee{
		ID:                uuid.Generate(),
		CompanyID:         company,
		Name:              body.Name,
		Phone:             body.Phone,
		Skills:            body.Skills,
		SkillLevel:        body.SkillLevel,
		MaxConcurrentJobs: body.MaxConcurrentJobs,
		HomeAddress:       body.HomeAddress,
		IsActive:          true,
		IsAvailable:       true,
		CreateTime:        now,
		ModifyTime:        now,
	}
	emp.Canonicalize()
	if err := emp.Validate(); err != nil {
		return nil, structs.NewValidationError(err.Error())
	}

	if err := s.agent.gateway.UpsertEmployee(req.Context(), caller, emp); err != nil {
		return nil, err
	}
	s.audit(req, caller, "employee.create", "employee", emp.ID, nil)
	return created(emp), nil
}

func (s *HTTPServer) employeeQuery(resp http.ResponseWriter, req *http.Request, employeeID string) (interface{}, error) {
	caller, err := s.authenticate(req)
	if err != nil {
		return nil, err
	}
	return s.agent.gateway.Employee(req.Context(), caller, employeeID)
}

// employeePatchBody mixes roster edits with the technician location
// heartbeat. A heartbeat is just a PATCH carrying currentLocation.
type employeePatchBody struct {
	Name  *string `json:"name"`
	Phone *string `json:"phone"`

	Skills     *[]string       `json:"skills"`
	SkillLevel *map[string]int `json:"skillLevel"`

	IsActive          *bool `json:"isActive"`
	IsAvailable       *bool `json:"isAvailable"`
	MaxConcurrentJobs *int  `json:"maxConcurrentJobs" validate:"omitempty,min=1"`

	HomeAddress     *structs.Address     `json:"homeAddress"`
	CurrentLocation *structs.Coordinates `json:"currentLocation"`
}

func (s *HTTPServer) employeeUpdate(resp http.ResponseWriter, req *http.Request, employeeID string) (interface{}, error) {
	caller, err := s.authenticate(req)
	if err != nil {
		return nil, err
	}

	var body employeePatchBody
	if err := decodeBody(req, &body); err != nil {
		return nil, err
	}
	if err := validateBody(&body); err != nil {
		return nil, err
	}

	emp, err := s.agent.gateway.Employee(req.Context(), caller, employeeID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	// A bare heartbeat takes the dedicated location path, which also stamps
	// the freshness clock the dispatch pre-filter reads.
	if body.CurrentLocation != nil {
		if err := s.agent.store.UpdateEmployeeLocation(req.Context(), employeeID, *body.CurrentLocation, now); err != nil {
			return nil, err
		}
		emp.CurrentLocation = body.CurrentLocation.Copy()
		emp.LocationUpdatedAt = now
		s.publish(stream.TopicEmployee, eventEmployeeLocation, emp.CompanyID, emp.ID, emp.CurrentLocation)
	}

	changed := false
	if body.Name != nil {
		emp.Name, changed = *body.Name, true
	}
	if body.Phone != nil {
		emp.Phone, changed = *body.Phone, true
	}
	if body.Skills != nil {
		emp.Skills, changed = *body.Skills, true
	}
	if body.SkillLevel != nil {
		emp.SkillLevel, changed = *body.SkillLevel, true
	}
	if body.IsActive != nil {
		emp.IsActive, changed = *body.IsActive, true
	}
	if body.IsAvailable != nil {
		emp.IsAvailable, changed = *body.IsAvailable, true
	}
	if body.MaxConcurrentJobs != nil {
		emp.MaxConcurrentJobs, changed = *body.MaxConcurrentJobs, true
	}
	if body.HomeAddress != nil {
		emp.HomeAddress, changed = *body.HomeAddress, true
	}

	if changed {
		emp.ModifyTime = now
		if err := emp.Validate(); err != nil {
			return nil, structs.NewValidationError(err.Error())
		}
		if err := s.agent.gateway.UpsertEmployee(req.Context(), caller, emp); err != nil {
			return nil, err
		}
	}
	return emp, nil
}
