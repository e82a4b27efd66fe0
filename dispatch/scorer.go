// Copyright (c) Fieldward, Inc.
// SPDX-License-Identifier: BUSL-1.1

// Package dispatch ranks technicians for jobs and assigns them in bulk.
// The scorer turns drive time, availability, skills, rating, and workload
// into one comparable number; the dispatcher serializes a batch of jobs
// through a shared capacity view.
package dispatch

import (
	"context"
	"math"
	"sort"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-set/v3"

	"github.com/fieldward/fieldward/routing"
	"github.com/fieldward/fieldward/structs"
)

const (
	driveWeightNormal    = 40.0
	driveWeightEmergency = 60.0
	availabilityWeight   = 20.0
	skillWeight          = 20.0
	ratingWeight         = 10.0
	workloadWeight       = 10.0

	// Drive times at or beyond the cutoff contribute zero proximity.
	driveCutoffNormal    = 45.0
	driveCutoffEmergency = 20.0

	// unratedDefault stands in for techs with no rating history.
	unratedDefault = 3.0
)

// Candidate is one scored technician. Breakdown carries each signal's
// contribution so dispatch decisions can be audited.
type Candidate struct {
	Employee         *structs.Employee  `json:"-"`
	TechID           string             `json:"techId"`
	Score            float64            `json:"score"`
	DriveTimeMinutes float64            `json:"driveTimeMinutes"`
	DriveEstimated   bool               `json:"driveEstimated"`
	Breakdown        map[string]float64 `json:"breakdown"`
}

// Scorer ranks technicians for a job using the routing estimator for drive
// proximity.
type Scorer struct {
	estimator routing.Estimator
	logger    hclog.Logger
}

func NewScorer(estimator routing.Estimator, logger hclog.Logger) *Scorer {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Scorer{
		estimator: estimator,
		logger:    logger.Named("scorer"),
	}
}

// Score ranks techs for the job, best first. Totals are not clamped, so
// emergency drive weighting can push a perfect candidate past 100. A job
// without coordinates cannot be scored and yields an empty list; techs
// without a current location are excluded.
func (s *Scorer) Score(ctx context.Context, job *structs.Job, techs []*structs.Employee, isEmergency bool) []*Candidate {
	if job.Coordinates == nil {
		s.logger.Debug("job has no coordinates, nothing to score", "job_id", job.ID)
		return nil
	}

	pool := make([]*structs.Employee, 0, len(techs))
	for _, tech := range techs {
		if tech.CurrentLocation != nil {
			pool = append(pool, tech)
		}
	}
	if len(pool) == 0 {
		return nil
	}

	origin := routing.Coord{Lat: job.Coordinates.Latitude, Lon: job.Coordinates.Longitude}
	dests := make([]routing.Coord, len(pool))
	for i, tech := range pool {
		dests[i] = routing.Coord{Lat: tech.CurrentLocation.Latitude, Lon: tech.CurrentLocation.Longitude}
	}
	drives := s.estimator.DriveTimeMatrix(ctx, origin, dests)

	candidates := make([]*Candidate, 0, len(pool))
	for i, tech := range pool {
		candidates = append(candidates, scoreOne(job, tech, drives[i], isEmergency))
	}
	rankCandidates(candidates)
	return candidates
}

func scoreOne(job *structs.Job, tech *structs.Employee, drive routing.RouteInfo, isEmergency bool) *Candidate {
	driveWeight, cutoff := driveWeightNormal, driveCutoffNormal
	if isEmergency {
		driveWeight, cutoff = driveWeightEmergency, driveCutoffEmergency
	}

	minutes := finite(drive.Minutes())
	proximity := finite((1 - math.Min(minutes/cutoff, 1)) * driveWeight)

	availability := 0.0
	if tech.IsAvailable {
		availability = availabilityWeight
	}

	skills := skillCoverage(job.RequiredSkills, tech.Skills)

	rating := tech.Rating
	if rating == 0 {
		rating = unratedDefault
	}
	ratingScore := finite(rating / 5 * ratingWeight)

	workload := math.Max(0, workloadWeight-float64(tech.CurrentJobsCount)*2)

	breakdown := map[string]float64{
		"driveProximity": proximity,
		"availability":   availability,
		"skillCoverage":  skills,
		"rating":         ratingScore,
		"workload":       workload,
	}
	total := 0.0
	for _, v := range breakdown {
		total += v
	}

	return &Candidate{
		Employee:         tech,
		TechID:           tech.ID,
		Score:            finite(total),
		DriveTimeMinutes: minutes,
		DriveEstimated:   drive.Estimated,
		Breakdown:        breakdown,
	}
}

// skillCoverage is the matched fraction of the job's required skills. A job
// with no requirements scores every tech full marks.
func skillCoverage(required, held []string) float64 {
	if len(required) == 0 {
		return skillWeight
	}
	have := set.From(held)
	matched := 0
	for _, skill := range required {
		if have.Contains(skill) {
			matched++
		}
	}
	return finite(float64(matched) / float64(len(required)) * skillWeight)
}

// rankCandidates orders best first: descending total, then ascending drive
// time, then descending rating, then ascending current workload.
func rankCandidates(candidates []*Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.DriveTimeMinutes != b.DriveTimeMinutes {
			return a.DriveTimeMinutes < b.DriveTimeMinutes
		}
		if a.Employee.Rating != b.Employee.Rating {
			return a.Employee.Rating > b.Employee.Rating
		}
		return a.Employee.CurrentJobsCount < b.Employee.CurrentJobsCount
	})
}

// finite maps NaN and infinities to zero so corrupt input never poisons a
// ranking.
func finite(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	return x
}
