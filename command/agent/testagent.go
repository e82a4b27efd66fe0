// Copyright (c) Fieldward, Inc.
// SPDX-License-Identifier: BUSL-1.1

package agent

import (
	"context"
	"testing"
	"time"

	"github.com/fieldward/fieldward/helper/testlog"
	"github.com/fieldward/fieldward/mock"
	"github.com/fieldward/fieldward/structs"
)

// TestAgent is a dev-mode Agent plus a running HTTPServer bound to an
// ephemeral port. Construction failures fail the test immediately.
type TestAgent struct {
	T testing.TB

	Config *Config
	Agent  *Agent
	Server *HTTPServer
}

// NewTestAgent starts an agent on the in-memory store for endpoint tests.
// The callback may mutate the config before the agent starts. Background
// worker intervals are stretched to an hour so nothing ticks mid-test;
// tests that need a tick drive the runner directly.
func NewTestAgent(t testing.TB, cb func(c *Config)) *TestAgent {
	conf := DevConfig()
	conf.BindAddr = "127.0.0.1"
	conf.Port = 0
	conf.Workers = WorkerConfig{
		GeocodeInterval:    time.Hour,
		ScheduleInterval:   time.Hour,
		RenewalInterval:    time.Hour,
		ReviewInterval:     time.Hour,
		EscalationInterval: time.Hour,
	}
	if cb != nil {
		cb(conf)
	}
	if err := conf.Validate(); err != nil {
		t.Fatalf("invalid test config: %v", err)
	}

	agent, err := NewAgent(conf, testlog.HCLogger(t))
	if err != nil {
		t.Fatalf("failed to start test agent: %v", err)
	}
	srv, err := NewHTTPServer(agent, conf)
	if err != nil {
		agent.Shutdown()
		t.Fatalf("failed to start test http server: %v", err)
	}

	return &TestAgent{
		T:      t,
		Config: conf,
		Agent:  agent,
		Server: srv,
	}
}

// Shutdown stops the HTTP server first so in-flight handlers finish before
// the agent tears down the components behind them.
func (a *TestAgent) Shutdown() {
	a.Server.Shutdown()
	a.Agent.Shutdown()
}

// URL returns the base URL of the running HTTP server.
func (a *TestAgent) URL() string {
	return "http://" + a.Server.Addr
}

// SeedAuth inserts a company and an active user with the given role, and
// returns both along with a minted bearer token for the user.
func (a *TestAgent) SeedAuth(role structs.Role) (*structs.Company, *structs.User, string) {
	a.T.Helper()
	ctx := context.Background()

	company := mock.Company()
	if err := a.Agent.Store().UpsertCompany(ctx, company); err != nil {
		a.T.Fatalf("failed to seed company: %v", err)
	}

	user := mock.User(company.ID)
	user.Role = role
	if err := a.Agent.Store().UpsertUser(ctx, user); err != nil {
		a.T.Fatalf("failed to seed user: %v", err)
	}

	token, err := a.Agent.tokens.Mint(user)
	if err != nil {
		a.T.Fatalf("failed to mint token: %v", err)
	}
	return company, user, token
}
