// Copyright (c) Fieldward, Inc.
// SPDX-License-Identifier: BUSL-1.1

package agent

import (
	"net/http"
)

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

func (s *HTTPServer) HealthRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	if req.Method != http.MethodGet {
		return nil, CodedError(405, ErrInvalidMethod)
	}
	return &healthResponse{Status: "ok", Version: s.agent.config.Version}, nil
}

// HealthLiveRequest answers the process-is-up probe. It deliberately checks
// nothing downstream.
func (s *HTTPServer) HealthLiveRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	if req.Method != http.MethodGet {
		return nil, CodedError(405, ErrInvalidMethod)
	}
	return map[string]string{"status": "live"}, nil
}

// HealthReadyRequest answers the traffic-readiness probe: the backing store
// must be reachable.
func (s *HTTPServer) HealthReadyRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	if req.Method != http.MethodGet {
		return nil, CodedError(405, ErrInvalidMethod)
	}
	if err := s.agent.Ready(req.Context()); err != nil {
		s.logger.Warn("readiness probe failed", "error", err)
		return nil, CodedError(http.StatusServiceUnavailable, "store unavailable")
	}
	return map[string]string{"status": "ready"}, nil
}
