// Copyright (c) Fieldward, Inc.
// SPDX-License-Identifier: BUSL-1.1

package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"strconv"
	"strings"
	"time"

	log "github.com/hashicorp/go-hclog"
	metrics "github.com/hashicorp/go-metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/cors"

	"github.com/fieldward/fieldward/helper/uuid"
	"github.com/fieldward/fieldward/structs"
)

const (
	// ErrInvalidMethod is used if the HTTP method is not supported.
	ErrInvalidMethod = "Invalid method"

	// ErrInternal is the opaque message for unclassified failures. The
	// real error stays in the server log, keyed by request id.
	ErrInternal = "internal server error"
)

// HTTPServer wraps an Agent and exposes it over HTTP.
type HTTPServer struct {
	agent      *Agent
	mux        *http.ServeMux
	listener   net.Listener
	listenerCh chan struct{}
	logger     log.Logger
	Addr       string
}

// NewHTTPServer starts a new HTTP server over the agent.
func NewHTTPServer(agent *Agent, config *Config) (*HTTPServer, error) {
	ln, err := net.Listen("tcp", config.HTTPAddr())
	if err != nil {
		return nil, fmt.Errorf("failed to start HTTP listener: %w", err)
	}

	mux := http.NewServeMux()
	srv := &HTTPServer{
		agent:      agent,
		mux:        mux,
		listener:   ln,
		listenerCh: make(chan struct{}),
		logger:     agent.httpLogger,
		Addr:       ln.Addr().String(),
	}
	srv.registerHandlers(config.EnableDebug)

	go func() {
		defer close(srv.listenerCh)
		http.Serve(ln, mux)
	}()

	return srv, nil
}

// Shutdown closes the listener and waits for the serve loop to return.
func (s *HTTPServer) Shutdown() {
	if s != nil {
		s.logger.Debug("shutting down http server")
		s.listener.Close()
		<-s.listenerCh
	}
}

// publicCORS builds the CORS wrapper for the unauthenticated endpoints.
// An empty allow-list keeps the public lookup usable from anywhere.
func (s *HTTPServer) publicCORS() *cors.Cors {
	origins := s.agent.config.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"HEAD", "GET", "POST"},
		AllowedHeaders: []string{"*"},
	})
}

func (s *HTTPServer) registerHandlers(enableDebug bool) {
	allowCORS := s.publicCORS()

	s.mux.Handle("/login", allowCORS.Handler(http.HandlerFunc(s.wrap(s.LoginRequest))))
	s.mux.Handle("/register", allowCORS.Handler(http.HandlerFunc(s.wrap(s.RegisterRequest))))
	s.mux.Handle("/onboard", allowCORS.Handler(http.HandlerFunc(s.wrap(s.OnboardRequest))))
	s.mux.Handle("/verify-email", allowCORS.Handler(http.HandlerFunc(s.wrap(s.VerifyEmailRequest))))
	s.mux.Handle("/verify-email/confirm", allowCORS.Handler(http.HandlerFunc(s.wrap(s.VerifyEmailConfirmRequest))))

	s.mux.HandleFunc("/jobs", s.wrap(s.JobsRequest))
	s.mux.HandleFunc("/jobs/batch-dispatch", s.wrap(s.BatchDispatchRequest))
	s.mux.HandleFunc("/jobs/", s.wrap(s.JobSpecificRequest))

	s.mux.HandleFunc("/customers", s.wrap(s.CustomersRequest))
	s.mux.HandleFunc("/customers/", s.wrap(s.CustomerSpecificRequest))
	s.mux.HandleFunc("/equipment/", s.wrap(s.EquipmentSpecificRequest))

	s.mux.HandleFunc("/employees", s.wrap(s.EmployeesRequest))
	s.mux.HandleFunc("/employees/", s.wrap(s.EmployeeSpecificRequest))

	s.mux.HandleFunc("/escalations", s.wrap(s.EscalationsRequest))
	s.mux.HandleFunc("/escalations/", s.wrap(s.EscalationSpecificRequest))
	s.mux.HandleFunc("/escalation-policies", s.wrap(s.EscalationPoliciesRequest))

	s.mux.HandleFunc("/afterhours/evaluate", s.wrap(s.AfterHoursEvaluateRequest))
	s.mux.HandleFunc("/afterhours/rules", s.wrap(s.AfterHoursRulesRequest))

	s.mux.HandleFunc("/refrigerant-logs", s.wrap(s.RefrigerantLogsRequest))

	s.mux.HandleFunc("/eta/token", s.wrap(s.ETATokenRequest))
	s.mux.Handle("/eta/", allowCORS.Handler(http.HandlerFunc(s.wrap(s.ETALookupRequest))))

	s.mux.HandleFunc("/sms/inbound", s.wrap(s.SMSInboundRequest))

	s.mux.HandleFunc("/health", s.wrap(s.HealthRequest))
	s.mux.HandleFunc("/health/live", s.wrap(s.HealthLiveRequest))
	s.mux.HandleFunc("/health/ready", s.wrap(s.HealthReadyRequest))

	s.mux.HandleFunc("/v1/metrics", s.wrap(s.MetricsRequest))
	s.mux.HandleFunc("/v1/agent/self", s.wrap(s.AgentSelfRequest))

	// The websocket upgrade hijacks the connection, so the stream endpoint
	// bypasses wrap and encodes its own errors.
	s.mux.HandleFunc("/v1/events/stream", s.EventStreamRequest)

	if enableDebug {
		s.mux.HandleFunc("/debug/pprof/", pprof.Index)
		s.mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		s.mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		s.mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		s.mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
}

// HTTPCodedError couples an error with the HTTP status it should produce.
type HTTPCodedError interface {
	error
	Code() int
}

func CodedError(c int, s string) HTTPCodedError {
	return &codedError{s, c}
}

type codedError struct {
	s    string
	code int
}

func (e *codedError) Error() string {
	return e.s
}

func (e *codedError) Code() int {
	return e.code
}

// errorResponse is the stable error body: message, status code echo, and
// the request id to quote when reporting problems. Validation failures add
// per-field details.
type errorResponse struct {
	Error     string            `json:"error"`
	Code      int               `json:"code"`
	RequestID string            `json:"requestId"`
	Details   map[string]string `json:"details,omitempty"`
}

// errorCode classifies an error into its response status, client-safe
// message, and optional field details. Unknown errors collapse to an
// opaque 500.
func errorCode(err error) (int, string, map[string]string) {
	var coded HTTPCodedError
	if errors.As(err, &coded) {
		return coded.Code(), coded.Error(), nil
	}

	var verr *structs.ValidationError
	if errors.As(err, &verr) {
		return http.StatusBadRequest, verr.Error(), verr.Details
	}

	switch {
	case errors.Is(err, structs.ErrTokenRequired),
		errors.Is(err, structs.ErrInvalidToken),
		errors.Is(err, structs.ErrInvalidCredentials):
		return http.StatusUnauthorized, err.Error(), nil
	case errors.Is(err, structs.ErrPermissionDenied):
		return http.StatusForbidden, err.Error(), nil
	}

	var nfe *structs.NotFoundError
	if errors.As(err, &nfe) {
		return http.StatusNotFound, nfe.Error(), nil
	}
	var ce *structs.ConflictError
	if errors.As(err, &ce) {
		return http.StatusConflict, ce.Error(), nil
	}
	var se *structs.SemanticError
	if errors.As(err, &se) {
		return http.StatusUnprocessableEntity, se.Error(), nil
	}
	var rle *structs.RateLimitError
	if errors.As(err, &rle) {
		return http.StatusTooManyRequests, rle.Error(), nil
	}
	var ee *structs.ExternalError
	if errors.As(err, &ee) {
		return http.StatusBadGateway, fmt.Sprintf("%s unavailable", ee.Provider), nil
	}

	return http.StatusInternalServerError, ErrInternal, nil
}

// wrap turns an (interface{}, error) handler into an http.HandlerFunc:
// it stamps a request id, encodes successes as JSON, translates errors to
// the stable error body, and records request telemetry.
func (s *HTTPServer) wrap(handler func(resp http.ResponseWriter, req *http.Request) (interface{}, error)) func(resp http.ResponseWriter, req *http.Request) {
	f := func(resp http.ResponseWriter, req *http.Request) {
		setHeaders(resp, s.agent.config.HTTPAPIResponseHeaders)

		reqID := requestID()
		resp.Header().Set("X-Request-Id", reqID)

		start := time.Now()
		defer func() {
			s.logger.Debug("request complete", "method", req.Method,
				"path", req.URL.Path, "duration", time.Since(start))
		}()

		obj, err := handler(resp, req)
		if err != nil {
			code, msg, details := errorCode(err)
			if code >= 500 {
				s.logger.Error("request failed", "method", req.Method,
					"path", req.URL.Path, "request_id", reqID, "error", err)
			} else {
				s.logger.Debug("request rejected", "method", req.Method,
					"path", req.URL.Path, "code", code, "error", err)
			}

			var rle *structs.RateLimitError
			if errors.As(err, &rle) {
				resp.Header().Set("Retry-After", strconv.Itoa(rle.RetryAfterSeconds))
			}

			s.agent.httpMetrics.observe(req.Method, code, time.Since(start))
			metrics.IncrCounterWithLabels([]string{"fieldward", "http", "error"}, 1,
				[]metrics.Label{{Name: "code", Value: strconv.Itoa(code)}})

			writeJSON(resp, code, &errorResponse{
				Error:     msg,
				Code:      code,
				RequestID: reqID,
				Details:   details,
			})
			return
		}

		s.agent.httpMetrics.observe(req.Method, statusFor(req, obj), time.Since(start))
		if obj != nil {
			writeJSON(resp, statusFor(req, obj), obj)
		}
	}
	return f
}

// statusFor picks the success status: creations return 201, everything
// else 200.
func statusFor(req *http.Request, obj interface{}) int {
	if req.Method == http.MethodPost {
		if _, ok := obj.(*createdResponse); ok {
			return http.StatusCreated
		}
	}
	return http.StatusOK
}

// createdResponse marks a body that should be sent with 201.
type createdResponse struct {
	Body interface{}
}

func (c *createdResponse) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Body)
}

func created(body interface{}) *createdResponse {
	return &createdResponse{Body: body}
}

func writeJSON(resp http.ResponseWriter, code int, obj interface{}) {
	buf, err := json.Marshal(obj)
	if err != nil {
		resp.WriteHeader(http.StatusInternalServerError)
		return
	}
	resp.Header().Set("Content-Type", "application/json")
	resp.WriteHeader(code)
	resp.Write(buf)
}

// requestID is short enough to read out loud and long enough to grep.
func requestID() string {
	return strings.ReplaceAll(uuid.Generate(), "-", "")[:12]
}

// decodeBody decodes a JSON request body, rejecting unparseable input as a
// validation failure.
func decodeBody(req *http.Request, out interface{}) error {
	if req.Body == nil {
		return structs.NewValidationError("request body required")
	}
	dec := json.NewDecoder(req.Body)
	if err := dec.Decode(out); err != nil {
		return structs.NewValidationError(fmt.Sprintf("invalid request body: %v", err))
	}
	return nil
}

// authenticate resolves the caller from the Authorization header, or from
// the token query parameter for browser event streams that cannot set
// headers.
func (s *HTTPServer) authenticate(req *http.Request) (*structs.AuthUser, error) {
	raw := req.Header.Get("Authorization")
	if raw != "" {
		const prefix = "Bearer "
		if !strings.HasPrefix(raw, prefix) {
			return nil, structs.ErrInvalidToken
		}
		raw = strings.TrimPrefix(raw, prefix)
	} else {
		raw = req.URL.Query().Get("token")
	}
	if raw == "" {
		return nil, structs.ErrTokenRequired
	}
	return s.agent.tokens.Verify(raw)
}

// requireAdmin gates management endpoints to admin and platform callers.
func requireAdmin(caller *structs.AuthUser) error {
	if caller.Role == structs.RoleAdmin || caller.Role == structs.RolePlatform {
		return nil
	}
	return structs.ErrPermissionDenied
}

// rateLimit spends one slot of the per-IP budget on the public auth
// endpoints.
func (s *HTTPServer) rateLimit(req *http.Request) error {
	return s.agent.limiter.Allow(clientIP(req))
}

// clientIP prefers the first forwarded address so limits follow the real
// client through a proxy.
func clientIP(req *http.Request) string {
	if fwd := req.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = fwd[:i]
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		return req.RemoteAddr
	}
	return host
}

// audit appends an audit row for a mutating request. Audit failures are
// logged but never fail the request that triggered them.
func (s *HTTPServer) audit(req *http.Request, caller *structs.AuthUser, action, entity, entityID string, detail map[string]string) {
	entry := &structs.AuditLog{
		ID:         uuid.Generate(),
		CompanyID:  caller.CompanyID,
		UserID:     caller.UserID,
		Action:     action,
		Entity:     entity,
		EntityID:   entityID,
		Detail:     detail,
		CreateTime: time.Now().UTC(),
	}
	if err := s.agent.gateway.Audit(req.Context(), entry); err != nil {
		s.logger.Error("audit append failed", "action", action,
			"entity", entity, "entity_id", entityID, "error", err)
	}
}

func setHeaders(resp http.ResponseWriter, headers map[string]string) {
	for field, value := range headers {
		resp.Header().Set(field, value)
	}
}

// httpMetrics is the prometheus view of the HTTP surface.
type httpMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func newHTTPMetrics(reg *prometheus.Registry) *httpMetrics {
	m := &httpMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fieldward",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests served, by method and status code.",
		}, []string{"method", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "fieldward",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency, by method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
	reg.MustRegister(m.requests, m.duration)
	return m
}

func (m *httpMetrics) observe(method string, code int, elapsed time.Duration) {
	m.requests.WithLabelValues(method, strconv.Itoa(code)).Inc()
	m.duration.WithLabelValues(method).Observe(elapsed.Seconds())
}
