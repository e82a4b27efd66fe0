// Copyright (c) Fieldward, Inc.
// SPDX-License-Identifier: BUSL-1.1

// Package agent wires the dispatch core together and exposes it over HTTP:
// it owns the store, the domain components, the background workers, and the
// event broker, and hands them to the HTTP surface.
package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/hashicorp/go-hclog"
	metrics "github.com/hashicorp/go-metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/fieldward/fieldward/afterhours"
	"github.com/fieldward/fieldward/auth"
	"github.com/fieldward/fieldward/dispatch"
	"github.com/fieldward/fieldward/escalation"
	"github.com/fieldward/fieldward/eta"
	"github.com/fieldward/fieldward/geocode"
	"github.com/fieldward/fieldward/routing"
	"github.com/fieldward/fieldward/state"
	"github.com/fieldward/fieldward/state/pgstore"
	"github.com/fieldward/fieldward/stream"
	"github.com/fieldward/fieldward/workers"
)

// Agent is the long running daemon. It owns one store (in-memory in dev
// mode, Postgres otherwise), the dispatch components built on it, the
// background worker runner, and the live event broker.
type Agent struct {
	config *Config

	logger     log.Logger
	httpLogger log.Logger

	store   state.Store
	pg      *pgstore.PGStore // nil in dev mode
	gateway *state.Gateway

	tokens  *auth.TokenManager
	limiter *auth.IPRateLimiter

	router     *routing.Client
	geocoder   *geocode.Client
	dispatcher *dispatch.Dispatcher
	evaluator  *afterhours.Evaluator
	escalation *escalation.Engine

	etaTokens eta.TokenStore
	redis     *redis.Client // nil unless REDIS_URL is set

	broker *stream.Broker
	runner *workers.Runner

	// InmemSink aggregates go-metrics for the JSON metrics endpoint.
	InmemSink *metrics.InmemSink

	// promRegistry backs the prometheus rendering of /v1/metrics.
	promRegistry *prometheus.Registry
	httpMetrics  *httpMetrics

	shutdown     bool
	shutdownCh   chan struct{}
	shutdownLock sync.Mutex
}

// NewAgent builds and starts an agent from a validated config. The workers
// are running when it returns; the caller starts the HTTP listener.
func NewAgent(config *Config, logger log.Logger) (*Agent, error) {
	a := &Agent{
		config:     config,
		logger:     logger,
		httpLogger: logger.Named("http"),
		shutdownCh: make(chan struct{}),
	}

	if err := a.setupTelemetry(); err != nil {
		return nil, err
	}
	if err := a.setupStore(); err != nil {
		return nil, err
	}
	a.setupComponents()
	if err := a.setupETATokens(); err != nil {
		return nil, err
	}
	a.setupWorkers()

	a.runner.SetEnabled(true)
	return a, nil
}

// setupTelemetry initializes the in-memory go-metrics sink that the whole
// codebase reports into, plus the prometheus registry behind
// /v1/metrics?format=prometheus.
func (a *Agent) setupTelemetry() error {
	inm := metrics.NewInmemSink(10*time.Second, time.Minute)
	metrics.DefaultInmemSignal(inm)

	conf := metrics.DefaultConfig("fieldward")
	conf.EnableHostname = false
	if _, err := metrics.NewGlobal(conf, inm); err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	a.InmemSink = inm

	a.promRegistry = prometheus.NewRegistry()
	a.promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.httpMetrics = newHTTPMetrics(a.promRegistry)
	return nil
}

func (a *Agent) setupStore() error {
	if a.config.DevMode {
		store, err := state.NewStateStore(a.logger)
		if err != nil {
			return err
		}
		a.store = store
		a.gateway = state.NewGateway(store)
		a.logger.Info("running with in-memory state store; nothing is persisted")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pg, err := pgstore.Open(ctx, a.config.DatabaseURL, a.logger)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	if err := pg.Migrate(ctx); err != nil {
		pg.Close()
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	a.pg = pg
	a.store = pg
	a.gateway = state.NewGateway(pg)
	return nil
}

func (a *Agent) setupComponents() {
	a.tokens = auth.NewTokenManager([]byte(a.config.JWTSecret), 0)
	a.limiter = auth.NewIPRateLimiter(0, 0)

	a.router = routing.NewClient(routing.Config{
		BaseURL: a.config.RoutingBaseURL,
		Logger:  a.logger,
	})
	a.geocoder = geocode.NewClient(geocode.Config{
		APIKey: a.config.GeocodingAPIKey,
		Logger: a.logger,
	})

	scorer := dispatch.NewScorer(a.router, a.logger)
	a.dispatcher = dispatch.NewDispatcher(a.store, scorer, a.logger)
	a.evaluator = afterhours.NewEvaluator(a.store, a.logger)
	a.escalation = escalation.NewEngine(a.store, nil, a.logger)
	a.broker = stream.NewBroker(a.logger)
}

func (a *Agent) setupETATokens() error {
	if a.config.RedisURL == "" {
		a.etaTokens = eta.NewMemoryStore()
		return nil
	}
	opts, err := redis.ParseURL(a.config.RedisURL)
	if err != nil {
		return fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	a.redis = redis.NewClient(opts)
	a.etaTokens = eta.NewRedisStore(a.redis)
	a.logger.Info("eta tokens stored in redis", "addr", opts.Addr)
	return nil
}

func (a *Agent) setupWorkers() {
	w := a.config.Workers
	pool := []workers.Worker{
		workers.NewScheduleWorker(a.store, a.logger, w.ScheduleInterval),
		workers.NewRenewalWorker(a.store, a.logger, w.RenewalInterval),
		workers.NewReviewScheduler(a.store, a.logger, w.ReviewInterval),
		workers.NewReviewDispatcher(a.store, nil, a.logger, w.ReviewInterval),
		workers.NewEscalationWorker(a.escalation, a.logger, w.EscalationInterval),
	}

	// The geocoding provider rejects unauthenticated traffic, so without a
	// key the worker would only burn its retry budget.
	if a.config.GeocodingAPIKey != "" || a.config.DevMode {
		pool = append(pool, workers.NewGeocodeWorker(a.store, a.geocoder, a.logger, w.GeocodeInterval))
	} else {
		a.logger.Warn("GEOCODING_API_KEY not set; geocoding worker disabled")
	}

	a.runner = workers.NewRunner(a.logger, pool...)
}

// Store exposes the agent's state store, primarily for tests that seed
// data behind the HTTP surface.
func (a *Agent) Store() state.Store {
	return a.store
}

// Gateway exposes the tenant-scoped query gateway.
func (a *Agent) Gateway() *state.Gateway {
	return a.gateway
}

// Ready reports whether the agent can serve traffic. With Postgres this is
// a connection check; the in-memory store is always ready.
func (a *Agent) Ready(ctx context.Context) error {
	if a.pg != nil {
		return a.pg.Ping(ctx)
	}
	return nil
}

// Shutdown stops the workers, closes every event subscription, and releases
// the store. Safe to call more than once.
func (a *Agent) Shutdown() error {
	a.shutdownLock.Lock()
	defer a.shutdownLock.Unlock()

	if a.shutdown {
		return nil
	}
	a.logger.Info("requesting shutdown")

	a.runner.SetEnabled(false)
	a.broker.CloseAll()
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("failed to close redis client", "error", err)
		}
	}
	if a.pg != nil {
		if err := a.pg.Close(); err != nil {
			a.logger.Error("failed to close database", "error", err)
		}
	}

	a.logger.Info("shutdown complete")
	a.shutdown = true
	close(a.shutdownCh)
	return nil
}
