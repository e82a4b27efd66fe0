// Copyright (c) Fieldward, Inc.
// SPDX-License-Identifier: BUSL-1.1

package structs

import (
	"fmt"
	"time"

	multierror "github.com/hashicorp/go-multierror"

	"github.com/fieldward/fieldward/helper/pointer"
)

// JobStatus is the closed set of job lifecycle states.
type JobStatus string

const (
	JobStatusUnassigned JobStatus = "unassigned"
	JobStatusAssigned   JobStatus = "assigned"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusCancelled  JobStatus = "cancelled"
)

func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusUnassigned, JobStatusAssigned, JobStatusInProgress,
		JobStatusCompleted, JobStatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are legal from s.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusCancelled
}

// JobPriority is the closed set of job priorities.
type JobPriority string

const (
	JobPriorityLow       JobPriority = "low"
	JobPriorityMedium    JobPriority = "medium"
	JobPriorityHigh      JobPriority = "high"
	JobPriorityEmergency JobPriority = "emergency"
)

func (p JobPriority) Valid() bool {
	switch p {
	case JobPriorityLow, JobPriorityMedium, JobPriorityHigh, JobPriorityEmergency:
		return true
	}
	return false
}

// Rank maps a priority to its dispatch order. Lower ranks dispatch first.
func (p JobPriority) Rank() int {
	switch p {
	case JobPriorityEmergency:
		return 0
	case JobPriorityHigh:
		return 1
	case JobPriorityMedium:
		return 2
	case JobPriorityLow:
		return 3
	default:
		return 4
	}
}

func (p JobPriority) IsEmergency() bool {
	return p == JobPriorityEmergency
}

// Job is a unit of dispatched field work.
type Job struct {
	ID         string `json:"id"`
	CompanyID  string `json:"companyId"`
	CustomerID string `json:"customerId,omitempty"`
	LocationID string `json:"locationId,omitempty"`

	JobType     string      `json:"jobType"`
	Description string      `json:"description,omitempty"`
	Priority    JobPriority `json:"priority"`
	Status      JobStatus   `json:"status"`

	Address        Address       `json:"address"`
	Coordinates    *Coordinates  `json:"coordinates,omitempty"`
	GeocodeStatus  GeocodeStatus `json:"geocodingStatus"`
	GeocodeRetries int           `json:"-"`

	AssignedTechID string     `json:"assignedTechId,omitempty"`
	ScheduledTime  *time.Time `json:"scheduledTime,omitempty"`
	StartedAt      *time.Time `json:"startedAt,omitempty"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`

	RequiredSkills           []string `json:"requiredSkills,omitempty"`
	EstimatedDurationMinutes *int     `json:"estimatedDurationMinutes,omitempty"`
	ActualDurationMinutes    *int     `json:"actualDurationMinutes,omitempty"`
	DurationVarianceMinutes  *int     `json:"durationVarianceMinutes,omitempty"`

	// SourceScheduleID links jobs materialized from a recurring schedule
	// back to their origin.
	SourceScheduleID string `json:"sourceScheduleId,omitempty"`

	// IsAfterHours marks jobs created inside an after-hours window.
	IsAfterHours bool `json:"isAfterHours,omitempty"`

	CreateTime time.Time `json:"createdAt"`
	ModifyTime time.Time `json:"updatedAt"`
}

func (j *Job) Copy() *Job {
	if j == nil {
		return nil
	}
	nj := *j
	nj.Coordinates = j.Coordinates.Copy()
	if j.RequiredSkills != nil {
		nj.RequiredSkills = make([]string, len(j.RequiredSkills))
		copy(nj.RequiredSkills, j.RequiredSkills)
	}
	nj.ScheduledTime = pointer.Copy(j.ScheduledTime)
	nj.StartedAt = pointer.Copy(j.StartedAt)
	nj.CompletedAt = pointer.Copy(j.CompletedAt)
	nj.EstimatedDurationMinutes = pointer.Copy(j.EstimatedDurationMinutes)
	nj.ActualDurationMinutes = pointer.Copy(j.ActualDurationMinutes)
	nj.DurationVarianceMinutes = pointer.Copy(j.DurationVarianceMinutes)
	return &nj
}

func (j *Job) Canonicalize() {
	if j.Status == "" {
		j.Status = JobStatusUnassigned
	}
	if j.Priority == "" {
		j.Priority = JobPriorityMedium
	}
	if j.GeocodeStatus == "" {
		j.GeocodeStatus = GeocodePending
	}
}

func (j *Job) Validate() error {
	var mErr multierror.Error
	if j.CompanyID == "" {
		mErr.Errors = append(mErr.Errors, fmt.Errorf("missing company"))
	}
	if j.JobType == "" {
		mErr.Errors = append(mErr.Errors, fmt.Errorf("missing job type"))
	}
	if !j.Priority.Valid() {
		mErr.Errors = append(mErr.Errors, fmt.Errorf("invalid priority %q", j.Priority))
	}
	if !j.Status.Valid() {
		mErr.Errors = append(mErr.Errors, fmt.Errorf("invalid status %q", j.Status))
	}
	if !j.GeocodeStatus.Valid() {
		mErr.Errors = append(mErr.Errors, fmt.Errorf("invalid geocoding status %q", j.GeocodeStatus))
	}
	if j.EstimatedDurationMinutes != nil && *j.EstimatedDurationMinutes < 0 {
		mErr.Errors = append(mErr.Errors, fmt.Errorf("estimated duration cannot be negative"))
	}
	return mErr.ErrorOrNil()
}

// SetAddress replaces the service address and invalidates stale coordinates
// in the same write, so the new address is never visible with the old point.
func (j *Job) SetAddress(addr Address) {
	j.Address = addr
	j.Coordinates = nil
	j.GeocodeStatus = GeocodePending
	j.GeocodeRetries = 0
}

// TransitionRequest describes one requested job status change plus the
// caller-supplied inputs its side effects consume.
type TransitionRequest struct {
	To JobStatus

	// TechID names the technician for assigned transitions.
	TechID string

	// Reason is the human-supplied explanation on reassignments and
	// manual overrides.
	Reason string

	// RequestedBy identifies the acting user, or "system" for
	// dispatcher-originated assignments.
	RequestedBy string

	// ManualOverride marks a human choice rather than a scored one.
	ManualOverride bool

	// Score and DriveTimeMinutes carry the dispatcher's winning candidate
	// breakdown into the assignment log.
	Score            *float64
	DriveTimeMinutes *float64

	// Close-out inputs, honored on transitions to completed.
	ActualDurationMinutes *int
	FirstTimeFix          *bool
	CallbackRequired      *bool
	CustomerRating        *int
	Notes                 string
}

// TransitionPlan is the computed outcome of one legal transition: the
// updated job plus every side effect the store must apply in the same
// logical unit.
type TransitionPlan struct {
	// Job is the post-transition copy to persist.
	Job *Job

	// ReleaseTechID names a technician whose current_job_id must be
	// cleared and whose counter must be decremented, clamped at zero.
	ReleaseTechID string

	// StampLastCompleted additionally sets the released technician's
	// last_job_completed_at.
	StampLastCompleted bool

	// AssignTechID names a technician whose counter must be incremented
	// and whose current_job_id becomes this job.
	AssignTechID string

	// CreateTracking is the time-tracking row to insert, when the
	// transition initializes one.
	CreateTracking *JobTimeTracking

	// Completion is the close-out row to upsert, when the transition
	// produces one.
	Completion *JobCompletion

	// AssignmentLog and Reassignment are the audit rows to append.
	AssignmentLog *JobAssignmentLog
	Reassignment  *JobReassignment
}

// PlanTransition validates a requested status change against the current
// job and returns the full plan of writes. It never mutates its inputs.
// Illegal transitions return a ConflictError.
func PlanTransition(job *Job, req *TransitionRequest, now time.Time) (*TransitionPlan, error) {
	if !req.To.Valid() {
		return nil, NewValidationError(fmt.Sprintf("invalid job status %q", req.To))
	}
	if job.Status.Terminal() {
		return nil, NewConflictError("job %s is %s and cannot transition", job.ID, job.Status)
	}

	out := job.Copy()
	out.ModifyTime = now
	plan := &TransitionPlan{Job: out}

	switch req.To {
	case JobStatusAssigned:
		if req.TechID == "" {
			return nil, NewValidationError("missing technician for assignment")
		}
		switch job.Status {
		case JobStatusUnassigned:
			out.Status = JobStatusAssigned
			out.AssignedTechID = req.TechID
			plan.AssignTechID = req.TechID
			plan.CreateTracking = &JobTimeTracking{
				JobID:        job.ID,
				CompanyID:    job.CompanyID,
				DispatchedAt: pointer.Of(now),
				CreateTime:   now,
				ModifyTime:   now,
			}
			plan.AssignmentLog = newAssignmentLog(job, req, now)
		case JobStatusAssigned:
			if req.TechID == job.AssignedTechID {
				return nil, NewConflictError("job %s is already assigned to technician %s", job.ID, req.TechID)
			}
			out.AssignedTechID = req.TechID
			plan.ReleaseTechID = job.AssignedTechID
			plan.AssignTechID = req.TechID
			plan.Reassignment = &JobReassignment{
				CompanyID:    job.CompanyID,
				JobID:        job.ID,
				FromTechID:   job.AssignedTechID,
				ToTechID:     req.TechID,
				Reason:       req.Reason,
				ReassignedBy: req.RequestedBy,
				CreateTime:   now,
			}
			plan.AssignmentLog = newAssignmentLog(job, req, now)
		default:
			return nil, NewConflictError("cannot assign job %s in status %s", job.ID, job.Status)
		}

	case JobStatusInProgress:
		if job.Status != JobStatusAssigned {
			return nil, NewConflictError("cannot start job %s in status %s", job.ID, job.Status)
		}
		out.Status = JobStatusInProgress
		out.StartedAt = pointer.Of(now)

	case JobStatusCompleted:
		if job.Status != JobStatusInProgress {
			return nil, NewConflictError("cannot complete job %s in status %s", job.ID, job.Status)
		}
		if req.CustomerRating != nil && (*req.CustomerRating < 1 || *req.CustomerRating > 5) {
			return nil, NewValidationError("customer rating must be between 1 and 5")
		}
		out.Status = JobStatusCompleted
		out.CompletedAt = pointer.Of(now)

		actual := 0
		if req.ActualDurationMinutes != nil {
			actual = *req.ActualDurationMinutes
		} else if job.StartedAt != nil {
			actual = minutesBetween(*job.StartedAt, now)
		}
		out.ActualDurationMinutes = pointer.Of(actual)
		if job.EstimatedDurationMinutes != nil {
			out.DurationVarianceMinutes = pointer.Of(actual - *job.EstimatedDurationMinutes)
		}

		plan.ReleaseTechID = job.AssignedTechID
		plan.StampLastCompleted = true
		plan.Completion = &JobCompletion{
			JobID:            job.ID,
			CompanyID:        job.CompanyID,
			TechnicianID:     job.AssignedTechID,
			CompletedAt:      now,
			DurationMinutes:  pointer.Of(actual),
			FirstTimeFix:     pointer.Copy(req.FirstTimeFix),
			CallbackRequired: pointer.Copy(req.CallbackRequired),
			CustomerRating:   pointer.Copy(req.CustomerRating),
			Notes:            req.Notes,
			CreateTime:       now,
			ModifyTime:       now,
		}

	case JobStatusCancelled:
		out.Status = JobStatusCancelled
		if job.AssignedTechID != "" {
			plan.ReleaseTechID = job.AssignedTechID
			plan.StampLastCompleted = true
		}
		out.AssignedTechID = ""

	case JobStatusUnassigned:
		return nil, NewConflictError("cannot return job %s to unassigned", job.ID)
	}

	return plan, nil
}

func newAssignmentLog(job *Job, req *TransitionRequest, now time.Time) *JobAssignmentLog {
	return &JobAssignmentLog{
		CompanyID:        job.CompanyID,
		JobID:            job.ID,
		TechnicianID:     req.TechID,
		AssignedBy:       req.RequestedBy,
		Score:            pointer.Copy(req.Score),
		DriveTimeMinutes: pointer.Copy(req.DriveTimeMinutes),
		IsManualOverride: req.ManualOverride,
		Reason:           req.Reason,
		CreateTime:       now,
	}
}

// JobCompletion denormalizes close-out metrics for one completed job.
type JobCompletion struct {
	JobID        string `json:"jobId"`
	CompanyID    string `json:"companyId"`
	TechnicianID string `json:"technicianId,omitempty"`

	CompletedAt       time.Time `json:"completedAt"`
	DurationMinutes   *int      `json:"durationMinutes,omitempty"`
	DriveTimeMinutes  *int      `json:"driveTimeMinutes,omitempty"`
	WrenchTimeMinutes *int      `json:"wrenchTimeMinutes,omitempty"`
	OnSiteMinutes     *int      `json:"onSiteMinutes,omitempty"`

	FirstTimeFix     *bool  `json:"firstTimeFix,omitempty"`
	CallbackRequired *bool  `json:"callbackRequired,omitempty"`
	CustomerRating   *int   `json:"customerRating,omitempty"`
	Notes            string `json:"notes,omitempty"`

	CreateTime time.Time `json:"createdAt"`
	ModifyTime time.Time `json:"updatedAt"`
}

func (c *JobCompletion) Copy() *JobCompletion {
	if c == nil {
		return nil
	}
	nc := *c
	nc.DurationMinutes = pointer.Copy(c.DurationMinutes)
	nc.DriveTimeMinutes = pointer.Copy(c.DriveTimeMinutes)
	nc.WrenchTimeMinutes = pointer.Copy(c.WrenchTimeMinutes)
	nc.OnSiteMinutes = pointer.Copy(c.OnSiteMinutes)
	nc.FirstTimeFix = pointer.Copy(c.FirstTimeFix)
	nc.CallbackRequired = pointer.Copy(c.CallbackRequired)
	nc.CustomerRating = pointer.Copy(c.CustomerRating)
	return &nc
}

// MergeDerived coalesces late-arriving ledger metrics onto the completion.
// Incoming non-nil values win; nil inputs never erase a stored value.
func (c *JobCompletion) MergeDerived(drive, wrench, onSite *int) {
	if drive != nil {
		c.DriveTimeMinutes = pointer.Copy(drive)
	}
	if wrench != nil {
		c.WrenchTimeMinutes = pointer.Copy(wrench)
	}
	if onSite != nil {
		c.OnSiteMinutes = pointer.Copy(onSite)
	}
}

// JobAssignmentLog is one append-only record of a technician choice.
type JobAssignmentLog struct {
	ID           string `json:"id"`
	CompanyID    string `json:"companyId"`
	JobID        string `json:"jobId"`
	TechnicianID string `json:"technicianId"`
	AssignedBy   string `json:"assignedBy,omitempty"`

	Score            *float64 `json:"score,omitempty"`
	DriveTimeMinutes *float64 `json:"driveTimeMinutes,omitempty"`
	IsManualOverride bool     `json:"isManualOverride"`
	Reason           string   `json:"reason,omitempty"`

	CreateTime time.Time `json:"createdAt"`
}

// JobReassignment is one append-only record of a technician replacement.
type JobReassignment struct {
	ID           string `json:"id"`
	CompanyID    string `json:"companyId"`
	JobID        string `json:"jobId"`
	FromTechID   string `json:"fromTechId"`
	ToTechID     string `json:"toTechId"`
	Reason       string `json:"reason,omitempty"`
	ReassignedBy string `json:"reassignedBy,omitempty"`

	CreateTime time.Time `json:"createdAt"`
}
