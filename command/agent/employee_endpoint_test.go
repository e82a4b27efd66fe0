// Copyright (c) Fieldward, Inc.
// SPDX-License-Identifier: BUSL-1.1

package agent

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shoenig/test/must"

	"github.com/fieldward/fieldward/ci"
	"github.com/fieldward/fieldward/mock"
	"github.com/fieldward/fieldward/structs"
)

func TestHTTP_EmployeeCreate_Defaults(t *testing.T) {
	ci.Parallel(t)
	httpTest(t, nil, func(s *TestAgent) {
		company, _, token := s.SeedAuth(structs.RoleDispatcher)

		body := map[string]interface{}{
			"name":   "Dana Whitfield",
			"phone":  "+15125550188",
			"skills": []string{"hvac_repair"},
		}
		req := authedReq(t, "POST", "/employees", token, body)
		obj, err := s.Server.EmployeesRequest(httptest.NewRecorder(), req)
		must.NoError(t, err)

		emp := obj.(*createdResponse).Body.(*structs.Employee)
		must.Eq(t, company.ID, emp.CompanyID)
		must.Eq(t, structs.DefaultMaxConcurrentJobs, emp.MaxConcurrentJobs)
		must.True(t, emp.IsActive)
		must.True(t, emp.IsAvailable)
		must.Eq(t, 0, emp.CurrentJobsCount)

		// No heartbeat yet, so the freshness clock is unset.
		must.True(t, emp.LocationUpdatedAt.IsZero())
	})
}

func TestHTTP_EmployeeCreate_RequiresName(t *testing.T) {
	ci.Parallel(t)
	httpTest(t, nil, func(s *TestAgent) {
		_, _, token := s.SeedAuth(structs.RoleDispatcher)

		req := authedReq(t, "POST", "/employees", token, map[string]string{"phone": "+15125550188"})
		_, err := s.Server.EmployeesRequest(httptest.NewRecorder(), req)
		must.Error(t, err)
		must.True(t, structs.IsValidation(err))
	})
}

func TestHTTP_EmployeeHeartbeat(t *testing.T) {
	ci.Parallel(t)
	httpTest(t, nil, func(s *TestAgent) {
		company, _, token := s.SeedAuth(structs.RoleTechnician)
		ctx := context.Background()

		emp := mock.Employee(company.ID)
		emp.CurrentLocation = nil
		emp.LocationUpdatedAt = time.Time{}
		must.NoError(t, s.Agent.Store().UpsertEmployee(ctx, emp))

		before := time.Now().UTC()
		patch := map[string]interface{}{
			"currentLocation": map[string]float64{"latitude": 30.2849, "longitude": -97.7341},
		}
		req := authedReq(t, "PATCH", "/employees/"+emp.ID, token, patch)
		obj, err := s.Server.EmployeeSpecificRequest(httptest.NewRecorder(), req)
		must.NoError(t, err)

		updated := obj.(*structs.Employee)
		must.NotNil(t, updated.CurrentLocation)
		must.Eq(t, 30.2849, updated.CurrentLocation.Latitude)
		must.False(t, updated.LocationUpdatedAt.Before(before))

		// The store sees the same stamp, so the dispatch pre-filter will
		// treat this technician as fresh.
		stored, err := s.Agent.Store().EmployeeByID(ctx, emp.ID)
		must.NoError(t, err)
		must.NotNil(t, stored.CurrentLocation)
		must.Eq(t, -97.7341, stored.CurrentLocation.Longitude)
		must.False(t, stored.LocationUpdatedAt.Before(before))
	})
}

func TestHTTP_EmployeeUpdate_Roster(t *testing.T) {
	ci.Parallel(t)
	httpTest(t, nil, func(s *TestAgent) {
		company, _, token := s.SeedAuth(structs.RoleDispatcher)
		ctx := context.Background()

		emp := mock.Employee(company.ID)
		must.NoError(t, s.Agent.Store().UpsertEmployee(ctx, emp))

		patch := map[string]interface{}{
			"isAvailable":       false,
			"maxConcurrentJobs": 3,
			"skills":            []string{"hvac_repair", "boiler_service"},
		}
		req := authedReq(t, "PATCH", "/employees/"+emp.ID, token, patch)
		obj, err := s.Server.EmployeeSpecificRequest(httptest.NewRecorder(), req)
		must.NoError(t, err)

		updated := obj.(*structs.Employee)
		must.False(t, updated.IsAvailable)
		must.Eq(t, 3, updated.MaxConcurrentJobs)
		must.Len(t, 2, updated.Skills)

		stored, err := s.Agent.Store().EmployeeByID(ctx, emp.ID)
		must.NoError(t, err)
		must.False(t, stored.IsAvailable)
	})
}

func TestHTTP_EmployeeUpdate_MaxConcurrentFloor(t *testing.T) {
	ci.Parallel(t)
	httpTest(t, nil, func(s *TestAgent) {
		company, _, token := s.SeedAuth(structs.RoleDispatcher)

		emp := mock.Employee(company.ID)
		must.NoError(t, s.Agent.Store().UpsertEmployee(context.Background(), emp))

		req := authedReq(t, "PATCH", "/employees/"+emp.ID, token,
			map[string]int{"maxConcurrentJobs": 0})
		_, err := s.Server.EmployeeSpecificRequest(httptest.NewRecorder(), req)
		must.Error(t, err)
		must.True(t, structs.IsValidation(err))
	})
}

func TestHTTP_EmployeeGet_CrossTenantMasked(t *testing.T) {
	ci.Parallel(t)
	httpTest(t, nil, func(s *TestAgent) {
		companyA, _, _ := s.SeedAuth(structs.RoleDispatcher)
		_, _, tokenB := s.SeedAuth(structs.RoleDispatcher)

		emp := mock.Employee(companyA.ID)
		must.NoError(t, s.Agent.Store().UpsertEmployee(context.Background(), emp))

		req := authedReq(t, "GET", "/employees/"+emp.ID, tokenB, nil)
		_, err := s.Server.EmployeeSpecificRequest(httptest.NewRecorder(), req)
		must.Error(t, err)
		must.True(t, structs.IsNotFound(err))

		// And the roster listing never leaks it.
		req = authedReq(t, "GET", "/employees", tokenB, nil)
		obj, err := s.Server.EmployeesRequest(httptest.NewRecorder(), req)
		must.NoError(t, err)
		must.Len(t, 0, obj.([]*structs.Employee))
	})
}
