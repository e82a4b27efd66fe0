// Copyright (c) Fieldward, Inc.
// SPDX-License-Identifier: BUSL-1.1

package agent

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fieldward/fieldward/dispatch"
	"github.com/fieldward/fieldward/helper/pointer"
	"github.com/fieldward/fieldward/helper/uuid"
	"github.com/fieldward/fieldward/state"
	"github.com/fieldward/fieldward/stream"
	"github.com/fieldward/fieldward/structs"
)

func (s *HTTPServer) JobsRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	switch req.Method {
	case http.MethodGet:
		return s.jobList(resp, req)
	case http.MethodPost:
		return s.jobCreate(resp, req)
	default:
		return nil, CodedError(405, ErrInvalidMethod)
	}
}

func (s *HTTPServer) JobSpecificRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	path := strings.TrimPrefix(req.URL.Path, "/jobs/")
	switch {
	case strings.HasSuffix(path, "/status"):
		jobID := strings.TrimSuffix(path, "/status")
		return s.jobStatusTransition(resp, req, jobID)
	case strings.HasSuffix(path, "/close"):
		jobID := strings.TrimSuffix(path, "/close")
		return s.jobClose(resp, req, jobID)
	case strings.HasSuffix(path, "/dispatch-override"):
		jobID := strings.TrimSuffix(path, "/dispatch-override")
		return s.jobDispatchOverride(resp, req, jobID)
	case strings.HasSuffix(path, "/reassign"):
		jobID := strings.TrimSuffix(path, "/reassign")
		return s.jobReassign(resp, req, jobID)
	case strings.HasSuffix(path, "/escalate"):
		jobID := strings.TrimSuffix(path, "/escalate")
		return s.jobEscalate(resp, req, jobID)
	case strings.Contains(path, "/time-tracking/"):
		parts := strings.SplitN(path, "/time-tracking/", 2)
		return s.jobTimeTracking(resp, req, parts[0], parts[1])
	default:
		return s.jobCRUD(resp, req, path)
	}
}

func (s *HTTPServer) jobCRUD(resp http.ResponseWriter, req *http.Request, jobID string) (interface{}, error) {
	switch req.Method {
	case http.MethodGet:
		return s.jobQuery(resp, req, jobID)
	case http.MethodPatch:
		return s.jobUpdate(resp, req, jobID)
	default:
		return nil, CodedError(405, ErrInvalidMethod)
	}
}

func (s *HTTPServer) jobList(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	caller, err := s.authenticate(req)
	if err != nil {
		return nil, err
	}

	query := req.URL.Query()
	filter := state.JobListFilter{
		Status:         structs.JobStatus(query.Get("status")),
		Priority:       structs.JobPriority(query.Get("priority")),
		AssignedTechID: query.Get("assignedTechId"),
		CustomerID:     query.Get("customerId"),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, structs.NewValidationError("invalid status filter").
			WithDetail("status", "must be one of: unassigned assigned in_progress completed cancelled")
	}
	if filter.Priority != "" && !filter.Priority.Valid() {
		return nil, structs.NewValidationError("invalid priority filter").
			WithDetail("priority", "must be one of: low medium high emergency")
	}

	return s.agent.gateway.Jobs(req.Context(), caller, query.Get("companyId"), filter)
}

// jobCreateBody is the client-settable slice of a job.
type jobCreateBody struct {
	CompanyID   string `json:"companyId"`
	CustomerID  string `json:"customerId"`
	LocationID  string `json:"locationId"`
	JobType     string `json:"jobType" validate:"required"`
	Description string `json:"description"`
	Priority    string `json:"priority" validate:"omitempty,oneof=low medium high emergency"`

	Address structs.Address `json:"address"`

	RequiredSkills           []string   `json:"requiredSkills"`
	EstimatedDurationMinutes *int       `json:"estimatedDurationMinutes" validate:"omitempty,min=0"`
	ScheduledTime            *time.Time `json:"scheduledTime"`
}

func (s *HTTPServer) jobCreate(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	caller, err := s.authenticate(req)
	if err != nil {
		return nil, err
	}

	var body jobCreateBody
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
	job := &structs.Job{
		ID:                       uuid.Generate(),
		CompanyID:                company,
		CustomerID:               body.CustomerID,
		LocationID:               body.LocationID,
		JobType:                  body.JobType,
		Description:              body.Description,
		Priority:                 structs.JobPriority(body.Priority),
		Address:                  body.Address,
		RequiredSkills:           body.RequiredSkills,
		EstimatedDurationMinutes: pointer.Copy(body.EstimatedDurationMinutes),
		ScheduledTime:            pointer.Copy(body.ScheduledTime),
		CreateTime:               now,
		ModifyTime:               now,
	}
	job.Canonicalize()

	// Calls arriving inside an after-hours window are flagged at creation so
	// surcharges and reporting survive later rule edits.
	eval, err := s.agent.evaluator.Evaluate(req.Context(), company, "", now)
	if err != nil {
		if structs.IsNotFound(err) {
			return nil, err
		}
		s.logger.Warn("after-hours evaluation failed on job create", "error", err)
	} else {
		job.IsAfterHours = eval.IsAfterHours
	}

	if err := job.Validate(); err != nil {
		return nil, structs.NewValidationError(err.Error())
	}
	if err := s.agent.gateway.UpsertJob(req.Context(), caller, job); err != nil {
		return nil, err
	}

	s.publish(stream.TopicJob, eventJobCreated, job.CompanyID, job.ID, job)
	s.audit(req, caller, "job.create", "job", job.ID, map[string]string{
		"jobType":  job.JobType,
		"priority": string(job.Priority),
	})
	return created(job), nil
}

func (s *HTTPServer) jobQuery(resp http.ResponseWriter, req *http.Request, jobID string) (interface{}, error) {
	caller, err := s.authenticate(req)
	if err != nil {
		return nil, err
	}
	return s.agent.gateway.Job(req.Context(), caller, jobID)
}

// jobPatchBody carries partial updates. Pointer fields distinguish "absent"
// from zero values.
type jobPatchBody struct {
	JobType     *string `json:"jobType"`
	Description *string `json:"description"`
	Priority    *string `json:"priority" validate:"omitempty,oneof=low medium high emergency"`

	Address *structs.Address `json:"address"`

	RequiredSkills           *[]string  `json:"requiredSkills"`
	EstimatedDurationMinutes *int       `json:"estimatedDurationMinutes" validate:"omitempty,min=0"`
	ScheduledTime            *time.Time `json:"scheduledTime"`
}

func (s *HTTPServer) jobUpdate(resp http.ResponseWriter, req *http.Request, jobID string) (interface{}, error) {
	caller, err := s.authenticate(req)
	if err != nil {
		return nil, err
	}

	var body jobPatchBody
	if err := decodeBody(req, &body); err != nil {
		return nil, err
	}
	if err := validateBody(&body); err != nil {
		return nil, err
	}

	job, err := s.agent.gateway.Job(req.Context(), caller, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status.Terminal() {
		return nil, structs.NewConflictError("job %s is %s and cannot be modified", job.ID, job.Status)
	}

	if body.JobType != nil {
		job.JobType = *body.JobType
	}
	if body.Description != nil {
		job.Description = *body.Description
	}
	if body.Priority != nil {
		job.Priority = structs.JobPriority(*body.Priority)
	}
	if body.Address != nil {
		// The new address invalidates stale coordinates in the same write.
		job.SetAddress(*body.Address)
	}
	if body.RequiredSkills != nil {
		job.RequiredSkills = *body.RequiredSkills
	}
	if body.EstimatedDurationMinutes != nil {
		job.EstimatedDurationMinutes = pointer.Copy(body.EstimatedDurationMinutes)
	}
	if body.ScheduledTime != nil {
		job.ScheduledTime = pointer.Copy(body.ScheduledTime)
	}
	job.ModifyTime = time.Now().UTC()

	if err := job.Validate(); err != nil {
		return nil, structs.NewValidationError(err.Error())
	}
	if err := s.agent.gateway.UpsertJob(req.Context(), caller, job); err != nil {
		return nil, err
	}

	s.publish(stream.TopicJob, eventJobUpdated, job.CompanyID, job.ID, job)
	return job, nil
}

// jobStatusBody is the transition payload. Close-out fields are honored on
// transitions to completed and ignored otherwise.
type jobStatusBody struct {
	Status string `json:"status" validate:"required,oneof=unassigned assigned in_progress completed cancelled"`
	TechID string `json:"techId"`
	Reason string `json:"reason"`

	ActualDurationMinutes *int   `json:"actualDurationMinutes" validate:"omitempty,min=0"`
	FirstTimeFix          *bool  `json:"firstTimeFix"`
	CallbackRequired      *bool  `json:"callbackRequired"`
	CustomerRating        *int   `json:"customerRating" validate:"omitempty,min=1,max=5"`
	Notes                 string `json:"notes"`
}

func (s *HTTPServer) jobStatusTransition(resp http.ResponseWriter, req *http.Request, jobID string) (interface{}, error) {
	if req.Method != http.MethodPut {
		return nil, CodedError(405, ErrInvalidMethod)
	}
	caller, err := s.authenticate(req)
	if err != nil {
		return nil, err
	}

	var body jobStatusBody
	if err := decodeBody(req, &body); err != nil {
		return nil, err
	}
	if err := validateBody(&body); err != nil {
		return nil, err
	}

	return s.applyTransition(req, caller, jobID, &structs.TransitionRequest{
		To:                    structs.JobStatus(body.Status),
		TechID:                body.TechID,
		Reason:                body.Reason,
		RequestedBy:           caller.UserID,
		ActualDurationMinutes: body.ActualDurationMinutes,
		FirstTimeFix:          body.FirstTimeFix,
		CallbackRequired:      body.CallbackRequired,
		CustomerRating:        body.CustomerRating,
		Notes:                 body.Notes,
	})
}

// jobCloseBody is the close-out payload for POST /jobs/:id/close.
type jobCloseBody struct {
	ActualDurationMinutes *int   `json:"actualDurationMinutes" validate:"omitempty,min=0"`
	FirstTimeFix          *bool  `json:"firstTimeFix"`
	CallbackRequired      *bool  `json:"callbackRequired"`
	CustomerRating        *int   `json:"customerRating" validate:"omitempty,min=1,max=5"`
	Notes                 string `json:"notes"`
}

func (s *HTTPServer) jobClose(resp http.ResponseWriter, req *http.Request, jobID string) (interface{}, error) {
	if req.Method != http.MethodPost {
		return nil, CodedError(405, ErrInvalidMethod)
	}
	caller, err := s.authenticate(req)
	if err != nil {
		return nil, err
	}

	var body jobCloseBody
	if err := decodeBody(req, &body); err != nil {
		return nil, err
	}
	if err := validateBody(&body); err != nil {
		return nil, err
	}

	return s.applyTransition(req, caller, jobID, &structs.TransitionRequest{
		To:                    structs.JobStatusCompleted,
		RequestedBy:           caller.UserID,
		ActualDurationMinutes: body.ActualDurationMinutes,
		FirstTimeFix:          body.FirstTimeFix,
		CallbackRequired:      body.CallbackRequired,
		CustomerRating:        body.CustomerRating,
		Notes:                 body.Notes,
	})
}

type jobAssignBody struct {
	TechID string `json:"techId" validate:"required"`
	Reason string `json:"reason"`
}

// jobDispatchOverride records a human technician choice, bypassing the
// scorer.
func (s *HTTPServer) jobDispatchOverride(resp http.ResponseWriter, req *http.Request, jobID string) (interface{}, error) {
	if req.Method != http.MethodPost {
		return nil, CodedError(405, ErrInvalidMethod)
	}
	caller, err := s.authenticate(req)
	if err != nil {
		return nil, err
	}

	var body jobAssignBody
	if err := decodeBody(req, &body); err != nil {
		return nil, err
	}
	if err := validateBody(&body); err != nil {
		return nil, err
	}

	return s.applyTransition(req, caller, jobID, &structs.TransitionRequest{
		To:             structs.JobStatusAssigned,
		TechID:         body.TechID,
		Reason:         body.Reason,
		RequestedBy:    caller.UserID,
		ManualOverride: true,
	})
}

type jobReassignBody struct {
	TechID string `json:"techId" validate:"required"`
	Reason string `json:"reason" validate:"required"`
}

func (s *HTTPServer) jobReassign(resp http.ResponseWriter, req *http.Request, jobID string) (interface{}, error) {
	if req.Method != http.MethodPost {
		return nil, CodedError(405, ErrInvalidMethod)
	}
	caller, err := s.authenticate(req)
	if err != nil {
		return nil, err
	}

	var body jobReassignBody
	if err := decodeBody(req, &body); err != nil {
		return nil, err
	}
	if err := validateBody(&body); err != nil {
		return nil, err
	}

	job, err := s.agent.gateway.Job(req.Context(), caller, jobID)
	if err != nil {
		return nil, err
	}
	if job.AssignedTechID == "" {
		return nil, structs.NewConflictError("job %s has no technician to reassign", jobID)
	}

	return s.applyTransition(req, caller, jobID, &structs.TransitionRequest{
		To:          structs.JobStatusAssigned,
		TechID:      body.TechID,
		Reason:      body.Reason,
		RequestedBy: caller.UserID,
	})
}

// applyTransition loads the job under the caller's tenant view, plans the
// transition, and persists the plan atomically.
func (s *HTTPServer) applyTransition(req *http.Request, caller *structs.AuthUser, jobID string, treq *structs.TransitionRequest) (interface{}, error) {
	job, err := s.agent.gateway.Job(req.Context(), caller, jobID)
	if err != nil {
		return nil, err
	}

	plan, err := structs.PlanTransition(job, treq, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if err := s.agent.store.ApplyJobTransition(req.Context(), plan); err != nil {
		return nil, err
	}

	s.publish(stream.TopicJob, eventJobStatusChanged, plan.Job.CompanyID, plan.Job.ID, plan.Job)
	s.audit(req, caller, "job.transition", "job", plan.Job.ID, map[string]string{
		"from": string(job.Status),
		"to":   string(plan.Job.Status),
		"tech": plan.Job.AssignedTechID,
	})
	return plan.Job, nil
}

func (s *HTTPServer) jobEscalate(resp http.ResponseWriter, req *http.Request, jobID string) (interface{}, error) {
	if req.Method != http.MethodPost {
		return nil, CodedError(405, ErrInvalidMethod)
	}
	caller, err := s.authenticate(req)
	if err != nil {
		return nil, err
	}

	// The tenant check rides on the job read; the engine itself is
	// tenant-blind.
	job, err := s.agent.gateway.Job(req.Context(), caller, jobID)
	if err != nil {
		return nil, err
	}

	result, err := s.agent.escalation.Trigger(req.Context(), jobID)
	if err != nil {
		return nil, err
	}
	if result.Triggered {
		s.publish(stream.TopicEscalation, eventEscalationTriggered, job.CompanyID, result.EventID, result)
		s.audit(req, caller, "escalation.trigger", "job", jobID, nil)
	}
	return result, nil
}

func (s *HTTPServer) jobTimeTracking(resp http.ResponseWriter, req *http.Request, jobID, eventName string) (interface{}, error) {
	if req.Method != http.MethodPost {
		return nil, CodedError(405, ErrInvalidMethod)
	}
	caller, err := s.authenticate(req)
	if err != nil {
		return nil, err
	}

	event := structs.TimeTrackingEvent(eventName)
	if !event.Valid() {
		return nil, CodedError(http.StatusNotFound, "unknown time-tracking event")
	}

	if _, err := s.agent.gateway.Job(req.Context(), caller, jobID); err != nil {
		return nil, err
	}

	tracking, err := s.agent.store.RecordTimeTracking(req.Context(), jobID, event, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	return tracking, nil
}

type batchDispatchBody struct {
	CompanyID string   `json:"companyId"`
	JobIDs    []string `json:"jobIds" validate:"required,min=1"`
}

func (s *HTTPServer) BatchDispatchRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	if req.Method != http.MethodPost {
		return nil, CodedError(405, ErrInvalidMethod)
	}
	caller, err := s.authenticate(req)
	if err != nil {
		return nil, err
	}

	var body batchDispatchBody
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

	result, err := s.agent.dispatcher.BatchDispatch(req.Context(), company, body.JobIDs)
	if err != nil {
		return nil, err
	}

	// The dispatcher only decides; each accepted assignment is persisted as
	// a normal transition. Failures fall back to the unassigned list rather
	// than failing the batch.
	applied := result.Assignments[:0]
	for _, assignment := range result.Assignments {
		job, err := s.agent.store.JobByID(req.Context(), assignment.JobID)
		if err == nil && job != nil {
			var plan *structs.TransitionPlan
			plan, err = structs.PlanTransition(job, &structs.TransitionRequest{
				To:               structs.JobStatusAssigned,
				TechID:           assignment.TechID,
				RequestedBy:      caller.UserID,
				Score:            pointer.Of(assignment.Score),
				DriveTimeMinutes: pointer.Of(assignment.DriveTimeMinutes),
			}, time.Now().UTC())
			if err == nil {
				err = s.agent.store.ApplyJobTransition(req.Context(), plan)
			}
		}
		if err != nil {
			s.logger.Warn("batch assignment failed to persist", "job_id", assignment.JobID,
				"tech_id", assignment.TechID, "error", err)
			result.Unassigned = append(result.Unassigned, &dispatch.Unassigned{
				JobID:  assignment.JobID,
				Reason: "assignment failed: " + err.Error(),
			})
			continue
		}
		applied = append(applied, assignment)
		s.publish(stream.TopicJob, eventJobAssigned, company, assignment.JobID, assignment)
	}
	result.Assignments = applied
	result.Stats.Assigned = len(result.Assignments)
	result.Stats.Unassigned = len(result.Unassigned)

	s.audit(req, caller, "jobs.batch-dispatch", "company", company, map[string]string{
		"requested":  strings.Join(body.JobIDs, ","),
		"assigned":   strconv.Itoa(result.Stats.Assigned),
		"unassigned": strconv.Itoa(result.Stats.Unassigned),
	})
	return result, nil
}
