// Copyright (c) Fieldward, Inc.
// SPDX-License-Identifier: BUSL-1.1

package dispatch

import (
	"context"
	"sort"
	"time"

	"github.com/hashicorp/go-hclog"
	metrics "github.com/hashicorp/go-metrics"

	"github.com/fieldward/fieldward/structs"
)

// MinAcceptScore is the floor below which the best candidate is still not
// assigned.
const MinAcceptScore = 20.0

// Unassignment reasons, stable strings surfaced to callers.
const (
	ReasonNotFoundOrAssigned = "not found or already assigned"
	ReasonNoTechnicians      = "no available technicians"
	ReasonNoCapacity         = "no technicians with capacity"
	ReasonNoSuitableTech     = "no suitable technician found"
)

// Store is the slice of persistence the dispatcher reads. It never writes;
// accepted assignments are persisted by the caller through the job state
// machine.
type Store interface {
	JobsByIDs(ctx context.Context, companyID string, ids []string) ([]*structs.Job, error)
	EligibleEmployees(ctx context.Context, companyID string, now time.Time) ([]*structs.Employee, error)
}

// Assignment is one accepted job-tech pair.
type Assignment struct {
	JobID            string  `json:"jobId"`
	TechID           string  `json:"techId"`
	Score            float64 `json:"score"`
	DriveTimeMinutes float64 `json:"driveTimeMinutes"`
}

// Unassigned is one job the batch could not place.
type Unassigned struct {
	JobID  string `json:"jobId"`
	Reason string `json:"reason"`
}

// Stats summarizes one batch.
type Stats struct {
	TotalJobs  int   `json:"totalJobs"`
	Assigned   int   `json:"assigned"`
	Unassigned int   `json:"unassigned"`
	DurationMs int64 `json:"durationMs"`
}

// Result is the outcome of one batch dispatch. Slices are always non-nil.
type Result struct {
	Assignments []*Assignment `json:"assignments"`
	Unassigned  []*Unassigned `json:"unassigned"`
	Stats       Stats         `json:"stats"`
}

// Dispatcher assigns batches of jobs to technicians. Decisions inside one
// batch are serialized: every acceptance shrinks the capacity the next job
// sees. Nothing is persisted here.
type Dispatcher struct {
	store  Store
	scorer *Scorer
	logger hclog.Logger

	// now is swapped in tests to drive the eligibility window.
	now func() time.Time
}

func NewDispatcher(store Store, scorer *Scorer, logger hclog.Logger) *Dispatcher {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Dispatcher{
		store:  store,
		scorer: scorer,
		logger: logger.Named("dispatch"),
		now:    time.Now,
	}
}

// BatchDispatch places each requested job with the best scoring technician,
// in priority order, against a shared in-memory capacity view.
func (d *Dispatcher) BatchDispatch(ctx context.Context, companyID string, jobIDs []string) (*Result, error) {
	start := d.now()
	defer metrics.MeasureSince([]string{"fieldward", "dispatch", "batch"}, start)

	result := &Result{
		Assignments: make([]*Assignment, 0, len(jobIDs)),
		Unassigned:  make([]*Unassigned, 0),
	}
	result.Stats.TotalJobs = len(jobIDs)
	if len(jobIDs) == 0 {
		return d.finish(result, start), nil
	}

	jobs, err := d.store.JobsByIDs(ctx, companyID, jobIDs)
	if err != nil {
		return nil, err
	}
	dispatchable := make([]*structs.Job, 0, len(jobs))
	seen := make(map[string]bool, len(jobs))
	for _, job := range jobs {
		if job.Status == structs.JobStatusUnassigned {
			dispatchable = append(dispatchable, job)
			seen[job.ID] = true
		}
	}
	for _, id := range jobIDs {
		if !seen[id] {
			result.Unassigned = append(result.Unassigned, &Unassigned{JobID: id, Reason: ReasonNotFoundOrAssigned})
		}
	}

	pool, err := d.store.EligibleEmployees(ctx, companyID, start)
	if err != nil {
		return nil, err
	}
	if len(pool) == 0 {
		for _, job := range dispatchable {
			result.Unassigned = append(result.Unassigned, &Unassigned{JobID: job.ID, Reason: ReasonNoTechnicians})
		}
		return d.finish(result, start), nil
	}

	// Remaining capacity per tech, shared across the whole batch.
	capacity := make(map[string]int, len(pool))
	for _, tech := range pool {
		max := tech.MaxConcurrentJobs
		if max <= 0 {
			max = structs.DispatchFallbackMaxJobs
		}
		capacity[tech.ID] = max - tech.CurrentJobsCount
	}

	// Urgent first; input order breaks ties within a priority.
	sort.SliceStable(dispatchable, func(i, j int) bool {
		return dispatchable[i].Priority.Rank() < dispatchable[j].Priority.Rank()
	})

	for _, job := range dispatchable {
		available := make([]*structs.Employee, 0, len(pool))
		for _, tech := range pool {
			if capacity[tech.ID] > 0 && tech.CurrentLocation != nil {
				available = append(available, tech)
			}
		}
		if len(available) == 0 {
			result.Unassigned = append(result.Unassigned, &Unassigned{JobID: job.ID, Reason: ReasonNoCapacity})
			continue
		}

		candidates := d.scorer.Score(ctx, job, available, job.Priority.IsEmergency())
		if len(candidates) == 0 || candidates[0].Score < MinAcceptScore {
			result.Unassigned = append(result.Unassigned, &Unassigned{JobID: job.ID, Reason: ReasonNoSuitableTech})
			continue
		}

		best := candidates[0]
		capacity[best.TechID]--
		result.Assignments = append(result.Assignments, &Assignment{
			JobID:            job.ID,
			TechID:           best.TechID,
			Score:            best.Score,
			DriveTimeMinutes: best.DriveTimeMinutes,
		})
		d.logger.Debug("job placed", "job_id", job.ID, "tech_id", best.TechID,
			"score", best.Score, "drive_minutes", best.DriveTimeMinutes)
	}

	return d.finish(result, start), nil
}

func (d *Dispatcher) finish(result *Result, start time.Time) *Result {
	result.Stats.Assigned = len(result.Assignments)
	result.Stats.Unassigned = len(result.Unassigned)
	result.Stats.DurationMs = d.now().Sub(start).Milliseconds()
	metrics.IncrCounter([]string{"fieldward", "dispatch", "assigned"}, float32(result.Stats.Assigned))
	metrics.IncrCounter([]string{"fieldward", "dispatch", "unassigned"}, float32(result.Stats.Unassigned))
	return result
}
