// Copyright (c) Fieldward, Inc.
// SPDX-License-Identifier: BUSL-1.1

package agent

import (
	"net/http"
	"strings"
	"time"

	"github.com/fieldward/fieldward/eta"
	"github.com/fieldward/fieldward/routing"
	"github.com/fieldward/fieldward/structs"
)

type etaTokenBody struct {
	JobID string `json:"jobId" validate:"required"`
}

// etaTokenResponse carries the minted token and the absolute expiry so the
// client can render a countdown without knowing the TTL policy.
type etaTokenResponse struct {
	Token     string    `json:"token"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (s *HTTPServer) ETATokenRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	if req.Method != http.MethodPost {
		return nil, CodedError(405, ErrInvalidMethod)
	}
	caller, err := s.authenticate(req)
	if err != nil {
		return nil, err
	}

	var body etaTokenBody
	if err := decodeBody(req, &body); err != nil {
		return nil, err
	}
	if err := validateBody(&body); err != nil {
		return nil, err
	}

	job, err := s.agent.gateway.Job(req.Context(), caller, body.JobID)
	if err != nil {
		return nil, err
	}

	token, err := s.agent.etaTokens.Mint(req.Context(), eta.Token{
		JobID:     job.ID,
		CompanyID: job.CompanyID,
	}, eta.DefaultTTL)
	if err != nil {
		return nil, err
	}

	return created(&etaTokenResponse{
		Token:     token,
		URL:       "/eta/" + token,
		ExpiresAt: time.Now().UTC().Add(eta.DefaultTTL),
	}), nil
}

// etaLookupResponse is the public "where is my technician" view. It exposes
// no identifiers beyond the tech's first name.
type etaLookupResponse struct {
	Status     structs.JobStatus `json:"status"`
	ETAMinutes *float64          `json:"etaMinutes,omitempty"`
	Estimated  bool              `json:"estimated,omitempty"`
	TechName   string            `json:"techName,omitempty"`
}

// ETALookupRequest serves the public token lookup. Unknown and expired
// tokens are indistinguishable from never-issued ones.
func (s *HTTPServer) ETALookupRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	if req.Method != http.MethodGet {
		return nil, CodedError(405, ErrInvalidMethod)
	}

	token := strings.TrimPrefix(req.URL.Path, "/eta/")
	if token == "" || strings.Contains(token, "/") {
		return nil, structs.NewNotFoundError("ETA")
	}

	tok, err := s.agent.etaTokens.Resolve(req.Context(), token)
	if err != nil {
		return nil, err
	}
	if tok == nil {
		return nil, structs.NewNotFoundError("ETA")
	}

	job, err := s.agent.store.JobByID(req.Context(), tok.JobID)
	if err != nil {
		return nil, err
	}
	if job == nil || job.CompanyID != tok.CompanyID {
		return nil, structs.NewNotFoundError("ETA")
	}

	out := &etaLookupResponse{Status: job.Status}
	if job.AssignedTechID == "" {
		return out, nil
	}

	tech, err := s.agent.store.EmployeeByID(req.Context(), job.AssignedTechID)
	if err != nil {
		return nil, err
	}
	if tech == nil {
		return out, nil
	}
	out.TechName = firstName(tech.Name)

	// Drive time needs both endpoints. Routing itself never fails; missing
	// coordinates are the only reason to omit the estimate.
	if tech.CurrentLocation == nil || job.Coordinates == nil {
		return out, nil
	}
	info := s.agent.router.DriveTime(req.Context(),
		routing.Coord{Lat: tech.CurrentLocation.Latitude, Lon: tech.CurrentLocation.Longitude},
		routing.Coord{Lat: job.Coordinates.Latitude, Lon: job.Coordinates.Longitude},
	)
	minutes := info.Minutes()
	out.ETAMinutes = &minutes
	out.Estimated = info.Estimated
	return out, nil
}

func firstName(full string) string {
	if i := strings.IndexByte(full, ' '); i > 0 {
		return full[:i]
	}
	return full
}
