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
	"github.com/fieldward/fieldward/dispatch"
	"github.com/fieldward/fieldward/mock"
	"github.com/fieldward/fieldward/structs"
)

// seedTech inserts a dispatchable technician with a location reported just
// now, so eligibility holds under the agent's real clock.
func seedTech(t testing.TB, s *TestAgent, companyID string) *structs.Employee {
	t.Helper()
	tech := mock.Employee(companyID)
	tech.LocationUpdatedAt = time.Now().UTC()
	must.NoError(t, s.Agent.Store().UpsertEmployee(context.Background(), tech))
	return tech
}

func TestHTTP_JobCreate_RoundTrip(t *testing.T) {
	ci.Parallel(t)
	httpTest(t, nil, func(s *TestAgent) {
		_, _, token := s.SeedAuth(structs.RoleDispatcher)

		body := map[string]interface{}{
			"jobType":     "repair",
			"description": "compressor short-cycling",
			"priority":    "high",
			"address": map[string]string{
				"street": "1600 Riverside Dr",
				"city":   "Austin",
				"state":  "TX",
				"zip":    "78741",
			},
			"requiredSkills":           []string{"hvac_repair"},
			"estimatedDurationMinutes": 120,
		}

		respW := httptest.NewRecorder()
		req := authedReq(t, "POST", "/jobs", token, body)
		s.Server.wrap(s.Server.JobsRequest)(respW, req)
		must.Eq(t, 201, respW.Code)

		var job structs.Job
		decodeResp(t, respW, &job)
		must.NotEq(t, "", job.ID)
		must.Eq(t, "repair", job.JobType)
		must.Eq(t, structs.JobPriorityHigh, job.Priority)
		must.Eq(t, structs.JobStatusUnassigned, job.Status)
		must.Eq(t, "Austin", job.Address.City)
		must.Eq(t, 120, *job.EstimatedDurationMinutes)

		// A fresh address with no coordinates is queued for geocoding.
		must.Eq(t, structs.GeocodePending, job.GeocodeStatus)
		must.Nil(t, job.Coordinates)

		// GET returns the same job.
		respW = httptest.NewRecorder()
		req = authedReq(t, "GET", "/jobs/"+job.ID, token, nil)
		obj, err := s.Server.JobSpecificRequest(respW, req)
		must.NoError(t, err)
		got := obj.(*structs.Job)
		must.Eq(t, job.ID, got.ID)
		must.Eq(t, job.Description, got.Description)
	})
}

func TestHTTP_JobCreate_DefaultsPriority(t *testing.T) {
	ci.Parallel(t)
	httpTest(t, nil, func(s *TestAgent) {
		_, _, token := s.SeedAuth(structs.RoleDispatcher)

		req := authedReq(t, "POST", "/jobs", token, map[string]string{"jobType": "maintenance"})
		obj, err := s.Server.JobsRequest(httptest.NewRecorder(), req)
		must.NoError(t, err)

		job := obj.(*createdResponse).Body.(*structs.Job)
		must.Eq(t, structs.JobPriorityMedium, job.Priority)
	})
}

func TestHTTP_JobCreate_MissingType(t *testing.T) {
	ci.Parallel(t)
	httpTest(t, nil, func(s *TestAgent) {
		_, _, token := s.SeedAuth(structs.RoleDispatcher)

		respW := httptest.NewRecorder()
		req := authedReq(t, "POST", "/jobs", token, map[string]string{"description": "no type"})
		s.Server.wrap(s.Server.JobsRequest)(respW, req)
		must.Eq(t, 400, respW.Code)

		var errBody errorResponse
		decodeResp(t, respW, &errBody)
		must.MapContainsKey(t, errBody.Details, "jobType")
	})
}

// Cross-tenant reads are masked as 404s: the response body names the entity
// but never confirms it exists under another company.
func TestHTTP_JobGet_CrossTenantMasked(t *testing.T) {
	ci.Parallel(t)
	httpTest(t, nil, func(s *TestAgent) {
		companyA, _, _ := s.SeedAuth(structs.RoleDispatcher)
		_, _, tokenB := s.SeedAuth(structs.RoleDispatcher)

		job := mock.Job(companyA.ID)
		must.NoError(t, s.Agent.Store().UpsertJob(context.Background(), job))

		respW := httptest.NewRecorder()
		req := authedReq(t, "GET", "/jobs/"+job.ID, tokenB, nil)
		s.Server.wrap(s.Server.JobSpecificRequest)(respW, req)

		must.Eq(t, 404, respW.Code)
		var body errorResponse
		decodeResp(t, respW, &body)
		must.Eq(t, "Job not found", body.Error)

		// The other tenant's job never appears in a list either.
		req = authedReq(t, "GET", "/jobs", tokenB, nil)
		obj, err := s.Server.JobsRequest(httptest.NewRecorder(), req)
		must.NoError(t, err)
		must.Len(t, 0, obj.([]*structs.Job))
	})
}

func TestHTTP_JobList_Filters(t *testing.T) {
	ci.Parallel(t)
	httpTest(t, nil, func(s *TestAgent) {
		company, _, token := s.SeedAuth(structs.RoleDispatcher)
		ctx := context.Background()

		tech := seedTech(t, s, company.ID)

		unassigned := mock.Job(company.ID)
		must.NoError(t, s.Agent.Store().UpsertJob(ctx, unassigned))

		assigned := mock.AssignedJob(company.ID, tech.ID)
		must.NoError(t, s.Agent.Store().UpsertJob(ctx, assigned))

		emergency := mock.EmergencyJob(company.ID)
		must.NoError(t, s.Agent.Store().UpsertJob(ctx, emergency))

		list := func(query string) []*structs.Job {
			req := authedReq(t, "GET", "/jobs"+query, token, nil)
			obj, err := s.Server.JobsRequest(httptest.NewRecorder(), req)
			must.NoError(t, err)
			return obj.([]*structs.Job)
		}

		must.Len(t, 3, list(""))
		must.Len(t, 2, list("?status=unassigned"))
		must.Len(t, 1, list("?status=assigned"))
		must.Len(t, 1, list("?priority=emergency"))
		must.Len(t, 1, list("?assignedTechId="+tech.ID))

		// Unknown enum values fail fast instead of silently matching nothing.
		req := authedReq(t, "GET", "/jobs?status=bogus", token, nil)
		_, err := s.Server.JobsRequest(httptest.NewRecorder(), req)
		must.Error(t, err)
		must.True(t, structs.IsValidation(err))
	})
}

// Changing the address must invalidate coordinates in the same write, so a
// dispatcher can never route to the old location.
func TestHTTP_JobUpdate_AddressResetsGeocode(t *testing.T) {
	ci.Parallel(t)
	httpTest(t, nil, func(s *TestAgent) {
		company, _, token := s.SeedAuth(structs.RoleDispatcher)

		job := mock.Job(company.ID)
		must.NoError(t, s.Agent.Store().UpsertJob(context.Background(), job))
		must.NotNil(t, job.Coordinates)

		patch := map[string]interface{}{
			"address": map[string]string{
				"street": "9800 N Lamar Blvd",
				"city":   "Austin",
				"state":  "TX",
				"zip":    "78753",
			},
		}
		req := authedReq(t, "PATCH", "/jobs/"+job.ID, token, patch)
		obj, err := s.Server.JobSpecificRequest(httptest.NewRecorder(), req)
		must.NoError(t, err)

		updated := obj.(*structs.Job)
		must.Eq(t, "9800 N Lamar Blvd", updated.Address.Street)
		must.Nil(t, updated.Coordinates)
		must.Eq(t, structs.GeocodePending, updated.GeocodeStatus)

		// And the store agrees.
		stored, err := s.Agent.Store().JobByID(context.Background(), job.ID)
		must.NoError(t, err)
		must.Nil(t, stored.Coordinates)
		must.Eq(t, structs.GeocodePending, stored.GeocodeStatus)
	})
}

func TestHTTP_JobUpdate_TerminalConflict(t *testing.T) {
	ci.Parallel(t)
	httpTest(t, nil, func(s *TestAgent) {
		company, _, token := s.SeedAuth(structs.RoleDispatcher)

		job := mock.Job(company.ID)
		job.Status = structs.JobStatusCancelled
		must.NoError(t, s.Agent.Store().UpsertJob(context.Background(), job))

		patch := map[string]string{"description": "rewriting history"}
		req := authedReq(t, "PATCH", "/jobs/"+job.ID, token, patch)
		_, err := s.Server.JobSpecificRequest(httptest.NewRecorder(), req)
		must.Error(t, err)
		must.True(t, structs.IsConflict(err))
	})
}

func TestHTTP_JobStatus_Lifecycle(t *testing.T) {
	ci.Parallel(t)
	httpTest(t, nil, func(s *TestAgent) {
		company, _, token := s.SeedAuth(structs.RoleDispatcher)
		ctx := context.Background()

		tech := seedTech(t, s, company.ID)
		job := mock.Job(company.ID)
		must.NoError(t, s.Agent.Store().UpsertJob(ctx, job))

		transition := func(body map[string]interface{}) (*structs.Job, error) {
			req := authedReq(t, "PUT", "/jobs/"+job.ID+"/status", token, body)
			obj, err := s.Server.JobSpecificRequest(httptest.NewRecorder(), req)
			if err != nil {
				return nil, err
			}
			return obj.(*structs.Job), nil
		}

		// Assign.
		got, err := transition(map[string]interface{}{"status": "assigned", "techId": tech.ID})
		must.NoError(t, err)
		must.Eq(t, structs.JobStatusAssigned, got.Status)
		must.Eq(t, tech.ID, got.AssignedTechID)

		// The technician now holds the job.
		held, err := s.Agent.Store().EmployeeByID(ctx, tech.ID)
		must.NoError(t, err)
		must.Eq(t, 1, held.CurrentJobsCount)

		// Start work.
		got, err = transition(map[string]interface{}{"status": "in_progress"})
		must.NoError(t, err)
		must.Eq(t, structs.JobStatusInProgress, got.Status)

		// Close out with metrics.
		closeBody := map[string]interface{}{
			"actualDurationMinutes": 95,
			"firstTimeFix":          true,
			"customerRating":        5,
			"notes":                 "replaced run capacitor",
		}
		req := authedReq(t, "POST", "/jobs/"+job.ID+"/close", token, closeBody)
		obj, err := s.Server.JobSpecificRequest(httptest.NewRecorder(), req)
		must.NoError(t, err)
		final := obj.(*structs.Job)
		must.Eq(t, structs.JobStatusCompleted, final.Status)

		// Completion row captured the close-out.
		completion, err := s.Agent.Store().CompletionByJob(ctx, job.ID)
		must.NoError(t, err)
		must.NotNil(t, completion)
		must.Eq(t, 95, *completion.DurationMinutes)
		must.Eq(t, 5, *completion.CustomerRating)
		must.True(t, *completion.FirstTimeFix)

		// The technician was released.
		released, err := s.Agent.Store().EmployeeByID(ctx, tech.ID)
		must.NoError(t, err)
		must.Eq(t, 0, released.CurrentJobsCount)

		// Terminal jobs refuse further transitions.
		_, err = transition(map[string]interface{}{"status": "assigned", "techId": tech.ID})
		must.Error(t, err)
		must.True(t, structs.IsConflict(err))
	})
}

func TestHTTP_JobStatus_AssignRequiresTech(t *testing.T) {
	ci.Parallel(t)
	httpTest(t, nil, func(s *TestAgent) {
		company, _, token := s.SeedAuth(structs.RoleDispatcher)

		job := mock.Job(company.ID)
		must.NoError(t, s.Agent.Store().UpsertJob(context.Background(), job))

		req := authedReq(t, "PUT", "/jobs/"+job.ID+"/status", token,
			map[string]string{"status": "assigned"})
		_, err := s.Server.JobSpecificRequest(httptest.NewRecorder(), req)
		must.Error(t, err)
		must.True(t, structs.IsValidation(err))
	})
}

func TestHTTP_JobReassign(t *testing.T) {
	ci.Parallel(t)
	httpTest(t, nil, func(s *TestAgent) {
		company, _, token := s.SeedAuth(structs.RoleDispatcher)
		ctx := context.Background()

		tech1 := seedTech(t, s, company.ID)
		tech2 := seedTech(t, s, company.ID)

		job := mock.Job(company.ID)
		must.NoError(t, s.Agent.Store().UpsertJob(ctx, job))

		// Reassigning an unassigned job is refused up front.
		body := map[string]string{"techId": tech2.ID, "reason": "customer request"}
		req := authedReq(t, "POST", "/jobs/"+job.ID+"/reassign", token, body)
		_, err := s.Server.JobSpecificRequest(httptest.NewRecorder(), req)
		must.Error(t, err)
		must.True(t, structs.IsConflict(err))

		// Assign to tech1, then hand over to tech2.
		req = authedReq(t, "PUT", "/jobs/"+job.ID+"/status", token,
			map[string]string{"status": "assigned", "techId": tech1.ID})
		_, err = s.Server.JobSpecificRequest(httptest.NewRecorder(), req)
		must.NoError(t, err)

		req = authedReq(t, "POST", "/jobs/"+job.ID+"/reassign", token, body)
		obj, err := s.Server.JobSpecificRequest(httptest.NewRecorder(), req)
		must.NoError(t, err)
		must.Eq(t, tech2.ID, obj.(*structs.Job).AssignedTechID)

		// The handover trail has exactly one entry, tech1 to tech2.
		moves, err := s.Agent.Store().ReassignmentsByJob(ctx, job.ID)
		must.NoError(t, err)
		must.Len(t, 1, moves)
		must.Eq(t, tech1.ID, moves[0].FromTechID)
		must.Eq(t, tech2.ID, moves[0].ToTechID)
		must.Eq(t, "customer request", moves[0].Reason)

		// tech1 released, tech2 holding.
		e1, err := s.Agent.Store().EmployeeByID(ctx, tech1.ID)
		must.NoError(t, err)
		must.Eq(t, 0, e1.CurrentJobsCount)
		e2, err := s.Agent.Store().EmployeeByID(ctx, tech2.ID)
		must.NoError(t, err)
		must.Eq(t, 1, e2.CurrentJobsCount)
	})
}

func TestHTTP_JobDispatchOverride(t *testing.T) {
	ci.Parallel(t)
	httpTest(t, nil, func(s *TestAgent) {
		company, _, token := s.SeedAuth(structs.RoleDispatcher)
		ctx := context.Background()

		tech := seedTech(t, s, company.ID)
		job := mock.Job(company.ID)
		must.NoError(t, s.Agent.Store().UpsertJob(ctx, job))

		body := map[string]string{"techId": tech.ID, "reason": "customer asked for Teddy"}
		req := authedReq(t, "POST", "/jobs/"+job.ID+"/dispatch-override", token, body)
		obj, err := s.Server.JobSpecificRequest(httptest.NewRecorder(), req)
		must.NoError(t, err)
		must.Eq(t, structs.JobStatusAssigned, obj.(*structs.Job).Status)

		// The audit trail marks the human override.
		logs, err := s.Agent.Store().AssignmentLogsByJob(ctx, job.ID)
		must.NoError(t, err)
		must.Len(t, 1, logs)
		must.True(t, logs[0].IsManualOverride)
		must.Eq(t, tech.ID, logs[0].TechnicianID)
	})
}

func TestHTTP_JobTimeTracking(t *testing.T) {
	ci.Parallel(t)
	httpTest(t, nil, func(s *TestAgent) {
		company, _, token := s.SeedAuth(structs.RoleTechnician)
		ctx := context.Background()

		tech := seedTech(t, s, company.ID)
		job := mock.Job(company.ID)
		must.NoError(t, s.Agent.Store().UpsertJob(ctx, job))

		// Assignment opens the ledger with the dispatched timestamp.
		req := authedReq(t, "PUT", "/jobs/"+job.ID+"/status", token,
			map[string]string{"status": "assigned", "techId": tech.ID})
		_, err := s.Server.JobSpecificRequest(httptest.NewRecorder(), req)
		must.NoError(t, err)

		record := func(event string) (*structs.JobTimeTracking, error) {
			req := authedReq(t, "POST", "/jobs/"+job.ID+"/time-tracking/"+event, token,
				map[string]string{})
			obj, err := s.Server.JobSpecificRequest(httptest.NewRecorder(), req)
			if err != nil {
				return nil, err
			}
			return obj.(*structs.JobTimeTracking), nil
		}

		tracking, err := record("departed")
		must.NoError(t, err)
		must.NotNil(t, tracking.DispatchedAt)
		must.NotNil(t, tracking.DepartedAt)
		must.Nil(t, tracking.ArrivedAt)

		tracking, err = record("arrived")
		must.NoError(t, err)
		must.NotNil(t, tracking.ArrivedAt)

		// Re-recording the most recent event just moves its timestamp.
		tracking, err = record("arrived")
		must.NoError(t, err)
		must.NotNil(t, tracking.ArrivedAt)

		// Recording an earlier event after a later one is rejected.
		_, err = record("departed")
		must.Error(t, err)
		must.True(t, structs.IsConflict(err))

		// Unknown events are a 404, like any unknown route.
		req = authedReq(t, "POST", "/jobs/"+job.ID+"/time-tracking/paused", token,
			map[string]string{})
		_, err = s.Server.JobSpecificRequest(httptest.NewRecorder(), req)
		must.Error(t, err)
		code, _, _ := errorCode(err)
		must.Eq(t, 404, code)
	})
}

func TestHTTP_BatchDispatch(t *testing.T) {
	ci.Parallel(t)
	httpTest(t, unroutable, func(s *TestAgent) {
		company, _, token := s.SeedAuth(structs.RoleDispatcher)
		ctx := context.Background()

		seedTech(t, s, company.ID)
		seedTech(t, s, company.ID)

		job1 := mock.Job(company.ID)
		must.NoError(t, s.Agent.Store().UpsertJob(ctx, job1))
		job2 := mock.EmergencyJob(company.ID)
		must.NoError(t, s.Agent.Store().UpsertJob(ctx, job2))

		body := map[string]interface{}{"jobIds": []string{job1.ID, job2.ID}}
		req := authedReq(t, "POST", "/jobs/batch-dispatch", token, body)
		obj, err := s.Server.BatchDispatchRequest(httptest.NewRecorder(), req)
		must.NoError(t, err)

		result := obj.(*dispatch.Result)
		must.Len(t, 2, result.Assignments)
		must.Len(t, 0, result.Unassigned)
		must.Eq(t, 2, result.Stats.Assigned)

		// Every accepted assignment was persisted as a real transition.
		for _, a := range result.Assignments {
			stored, err := s.Agent.Store().JobByID(ctx, a.JobID)
			must.NoError(t, err)
			must.Eq(t, structs.JobStatusAssigned, stored.Status)
			must.Eq(t, a.TechID, stored.AssignedTechID)

			logs, err := s.Agent.Store().AssignmentLogsByJob(ctx, a.JobID)
			must.NoError(t, err)
			must.Len(t, 1, logs)
			must.False(t, logs[0].IsManualOverride)
			must.NotNil(t, logs[0].Score)
		}
	})
}

func TestHTTP_BatchDispatch_NoCandidates(t *testing.T) {
	ci.Parallel(t)
	httpTest(t, unroutable, func(s *TestAgent) {
		company, _, token := s.SeedAuth(structs.RoleDispatcher)
		ctx := context.Background()

		// No technicians at all.
		job := mock.Job(company.ID)
		must.NoError(t, s.Agent.Store().UpsertJob(ctx, job))

		body := map[string]interface{}{"jobIds": []string{job.ID}}
		req := authedReq(t, "POST", "/jobs/batch-dispatch", token, body)
		obj, err := s.Server.BatchDispatchRequest(httptest.NewRecorder(), req)
		must.NoError(t, err)

		result := obj.(*dispatch.Result)
		must.Len(t, 0, result.Assignments)
		must.Len(t, 1, result.Unassigned)
		must.Eq(t, job.ID, result.Unassigned[0].JobID)
		must.NotEq(t, "", result.Unassigned[0].Reason)

		// The job is untouched.
		stored, err := s.Agent.Store().JobByID(ctx, job.ID)
		must.NoError(t, err)
		must.Eq(t, structs.JobStatusUnassigned, stored.Status)
	})
}
