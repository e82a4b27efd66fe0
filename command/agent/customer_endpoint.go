// Copyright (c) Fieldward, Inc.
// SPDX-License-Identifier: BUSL-1.1

package agent

import (
	"net/http"
	"strings"
	"time"

	"github.com/fieldward/fieldward/helper/uuid"
	"github.com/fieldward/fieldward/structs"
)

func (s *HTTPServer) CustomersRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	switch req.Method {
	case http.MethodGet:
		return s.customerList(resp, req)
	case http.MethodPost:
		return s.customerCreate(resp, req)
	default:
		return nil, CodedError(405, ErrInvalidMethod)
	}
}

func (s *HTTPServer) CustomerSpecificRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	path := strings.TrimPrefix(req.URL.Path, "/customers/")
	switch {
	case strings.HasSuffix(path, "/primary") && strings.Contains(path, "/locations/"):
		trimmed := strings.TrimSuffix(path, "/primary")
		parts := strings.SplitN(trimmed, "/locations/", 2)
		return s.customerLocationPrimary(resp, req, parts[0], parts[1])
	case strings.HasSuffix(path, "/locations"):
		customerID := strings.TrimSuffix(path, "/locations")
		return s.customerLocations(resp, req, customerID)
	case strings.HasSuffix(path, "/equipment"):
		customerID := strings.TrimSuffix(path, "/equipment")
		return s.customerEquipment(resp, req, customerID)
	default:
		return s.customerCRUD(resp, req, path)
	}
}

func (s *HTTPServer) customerCRUD(resp http.ResponseWriter, req *http.Request, customerID string) (interface{}, error) {
	switch req.Method {
	case http.MethodGet:
		return s.customerQuery(resp, req, customerID)
	case http.MethodPatch:
		return s.customerUpdate(resp, req, customerID)
	default:
		return nil, CodedError(405, ErrInvalidMethod)
	}
}

func (s *HTTPServer) customerList(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	caller, err := s.authenticate(req)
	if err != nil {
		return nil, err
	}
	return s.agent.gateway.Customers(req.Context(), caller, req.URL.Query().Get("companyId"))
}

type customerCreateBody struct {
	CompanyID string `json:"companyId"`
	Name      string `json:"name" validate:"required"`
	Phone     string `json:"phone"`
	Email     string `json:"email" validate:"omitempty,email"`

	Address structs.Address `json:"address"`
}

func (s *HTTPServer) customerCreate(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	caller, err := s.authenticate(req)
	if err != nil {
		return nil, err
	}

	var body customerCreateBody
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
	customer := &structs.Customer{
		ID:         uuid.Generate(),
		CompanyID:  company,
		Name:       body.Name,
		Phone:      body.Phone,
		Email:      body.Email,
		Address:    body.Address,
		IsActive:   true,
		CreateTime: now,
		ModifyTime: now,
	}
	customer.Canonicalize()
	if err := customer.Validate(); err != nil {
		return nil, structs.NewValidationError(err.Error())
	}

	if err := s.agent.gateway.UpsertCustomer(req.Context(), caller, customer); err != nil {
		return nil, err
	}
	s.audit(req, caller, "customer.create", "customer", customer.ID, nil)
	return created(customer), nil
}

func (s *HTTPServer) customerQuery(resp http.ResponseWriter, req *http.Request, customerID string) (interface{}, error) {
	caller, err := s.authenticate(req)
	if err != nil {
		return nil, err
	}
	return s.agent.gateway.Customer(req.Context(), caller, customerID)
}

type customerPatchBody struct {
	Name     *string `json:"name"`
	Phone    *string `json:"phone"`
	Email    *string `json:"email" validate:"omitempty,email"`
	IsActive *bool   `json:"isActive"`

	Address *structs.Address `json:"address"`
}

func (s *HTTPServer) customerUpdate(resp http.ResponseWriter, req *http.Request, customerID string) (interface{}, error) {
	caller, err := s.authenticate(req)
	if err != nil {
		return nil, err
	}

	var body customerPatchBody
	if err := decodeBody(req, &body); err != nil {
		return nil, err
	}
	if err := validateBody(&body); err != nil {
		return nil, err
	}

	customer, err := s.agent.gateway.Customer(req.Context(), caller, customerID)
	if err != nil {
		return nil, err
	}

	if body.Name != nil {
		customer.Name = *body.Name
	}
	if body.Phone != nil {
		customer.Phone = *body.Phone
	}
	if body.Email != nil {
		customer.Email = *body.Email
	}
	if body.IsActive != nil {
		customer.IsActive = *body.IsActive
	}
	if body.Address != nil {
		customer.SetAddress(*body.Address)
	}
	customer.ModifyTime = time.Now().UTC()

	if err := customer.Validate(); err != nil {
		return nil, structs.NewValidationError(err.Error())
	}
	if err := s.agent.gateway.UpsertCustomer(req.Context(), caller, customer); err != nil {
		return nil, err
	}
	return customer, nil
}

type locationCreateBody struct {
	Label     string `json:"label"`
	IsPrimary bool   `json:"isPrimary"`

	Address structs.Address `json:"address"`
}

func (s *HTTPServer) customerLocations(resp http.ResponseWriter, req *http.Request, customerID string) (interface{}, error) {
	caller, err := s.authenticate(req)
	if err != nil {
		return nil, err
	}

	switch req.Method {
	case http.MethodGet:
		return s.agent.gateway.LocationsByCustomer(req.Context(), caller, customerID)

	case http.MethodPost:
		var body locationCreateBody
		if err := decodeBody(req, &body); err != nil {
			return nil, err
		}

		customer, err := s.agent.gateway.Customer(req.Context(), caller, customerID)
		if err != nil {
			return nil, err
		}

		now := time.Now().UTC()
		loc := &structs.CustomerLocation{
			ID:         uuid.Generate(),
			CompanyID:  customer.CompanyID,
			CustomerID: customer.ID,
			Label:      body.Label,
			Address:    body.Address,
			CreateTime: now,
			ModifyTime: now,
		}
		loc.Canonicalize()
		if err := s.agent.gateway.UpsertCustomerLocation(req.Context(), caller, loc); err != nil {
			return nil, err
		}

		// Promotion runs through the store's demote-and-promote path so at
		// most one location per customer is primary at rest.
		if body.IsPrimary {
			if err := s.agent.gateway.SetPrimaryLocation(req.Context(), caller, customer.ID, loc.ID, now); err != nil {
				return nil, err
			}
			loc.IsPrimary = true
		}
		return created(loc), nil

	default:
		return nil, CodedError(405, ErrInvalidMethod)
	}
}

func (s *HTTPServer) customerLocationPrimary(resp http.ResponseWriter, req *http.Request, customerID, locationID string) (interface{}, error) {
	if req.Method != http.MethodPut {
		return nil, CodedError(405, ErrInvalidMethod)
	}
	caller, err := s.authenticate(req)
	if err != nil {
		return nil, err
	}

	if err := s.agent.gateway.SetPrimaryLocation(req.Context(), caller, customerID, locationID, time.Now().UTC()); err != nil {
		return nil, err
	}
	s.audit(req, caller, "customer.location.primary", "customer_location", locationID, nil)
	return s.agent.gateway.CustomerLocation(req.Context(), caller, locationID)
}

type equipmentCreateBody struct {
	LocationID      string     `json:"locationId"`
	Kind            string     `json:"kind" validate:"required"`
	Make            string     `json:"make"`
	Model           string     `json:"model"`
	SerialNumber    string     `json:"serialNumber"`
	InstallDate     *time.Time `json:"installDate"`
	Condition       string     `json:"condition" validate:"omitempty,oneof=excellent good fair poor unknown"`
	RefrigerantType string     `json:"refrigerantType"`
}

func (s *HTTPServer) customerEquipment(resp http.ResponseWriter, req *http.Request, customerID string) (interface{}, error) {
	caller, err := s.authenticate(req)
	if err != nil {
		return nil, err
	}

	switch req.Method {
	case http.MethodGet:
		return s.agent.gateway.EquipmentByCustomer(req.Context(), caller, customerID)

	case http.MethodPost:
		var body equipmentCreateBody
		if err := decodeBody(req, &body); err != nil {
			return nil, err
		}
		if err := validateBody(&body); err != nil {
			return nil, err
		}

		customer, err := s.agent.gateway.Customer(req.Context(), caller, customerID)
		if err != nil {
			return nil, err
		}

		now := time.Now().UTC()
		eq := &structs.Equipment{
			ID:              uuid.Generate(),
			CompanyID:       customer.CompanyID,
			CustomerID:      customer.ID,
			LocationID:      body.LocationID,
			Kind:            body.Kind,
			Make:            body.Make,
			Model:           body.Model,
			SerialNumber:    body.SerialNumber,
			InstallDate:     body.InstallDate,
			Condition:       structs.EquipmentCondition(body.Condition),
			RefrigerantType: body.RefrigerantType,
			IsActive:        true,
			CreateTime:      now,
			ModifyTime:      now,
		}
		eq.Canonicalize()
		if err := eq.Validate(); err != nil {
			return nil, structs.NewValidationError(err.Error())
		}
		if err := s.agent.gateway.UpsertEquipment(req.Context(), caller, eq); err != nil {
			return nil, err
		}
		return created(eq), nil

	default:
		return nil, CodedError(405, ErrInvalidMethod)
	}
}

// EquipmentSpecificRequest serves direct equipment reads; creation and
// listing hang off the owning customer.
func (s *HTTPServer) EquipmentSpecificRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	if req.Method != http.MethodGet {
		return nil, CodedError(405, ErrInvalidMethod)
	}
	caller, err := s.authenticate(req)
	if err != nil {
		return nil, err
	}
	equipmentID := strings.TrimPrefix(req.URL.Path, "/equipment/")
	return s.agent.gateway.Equipment(req.Context(), caller, equipmentID)
}
