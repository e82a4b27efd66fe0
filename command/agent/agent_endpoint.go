// Copyright (c) Fieldward, Inc.
// SPDX-License-Identifier: BUSL-1.1

package agent

import (
	"net/http"

	"github.com/fieldward/fieldward/workers"
)

// agentSelf is the introspection view served to operators.
type agentSelf struct {
	Version string                 `json:"version"`
	Store   string                 `json:"store"`
	Config  map[string]interface{} `json:"config"`

	Workers           map[string]workers.WorkerStats `json:"workers"`
	StreamSubscribers int                            `json:"streamSubscribers"`
}

func (s *HTTPServer) AgentSelfRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	if req.Method != http.MethodGet {
		return nil, CodedError(405, ErrInvalidMethod)
	}
	caller, err := s.authenticate(req)
	if err != nil {
		return nil, err
	}
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}

	storeKind := "postgres"
	if s.agent.config.DevMode {
		storeKind = "memory"
	}

	return &agentSelf{
		Version:           s.agent.config.Version,
		Store:             storeKind,
		Config:            s.agent.config.Sanitized(),
		Workers:           s.agent.runner.Stats(),
		StreamSubscribers: s.agent.broker.SubscriberCount(),
	}, nil
}
