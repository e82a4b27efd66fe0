// Copyright (c) Fieldward, Inc.
// SPDX-License-Identifier: BUSL-1.1

package agent

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shoenig/test/must"

	"github.com/fieldward/fieldward/ci"
	"github.com/fieldward/fieldward/structs"
)

// httpTest runs f against a fresh dev-mode agent.
func httpTest(t testing.TB, cb func(c *Config), f func(srv *TestAgent)) {
	s := NewTestAgent(t, cb)
	defer s.Shutdown()
	f(s)
}

func encodeReq(obj interface{}) io.Reader {
	buf := bytes.NewBuffer(nil)
	json.NewEncoder(buf).Encode(obj)
	return buf
}

// authedReq builds a request carrying token as a bearer credential. A nil
// body sends no payload.
func authedReq(t testing.TB, method, path, token string, body interface{}) *http.Request {
	var reader io.Reader
	if body != nil {
		reader = encodeReq(body)
	}
	req, err := http.NewRequest(method, path, reader)
	must.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

// decodeResp decodes a recorded JSON response into out.
func decodeResp(t testing.TB, respW *httptest.ResponseRecorder, out interface{}) {
	must.NoError(t, json.Unmarshal(respW.Body.Bytes(), out))
}

func TestHTTPServer_ErrorCode(t *testing.T) {
	ci.Parallel(t)

	cases := []struct {
		name     string
		err      error
		wantCode int
		wantMsg  string
	}{
		{
			name:     "coded error passes through",
			err:      CodedError(418, "teapot"),
			wantCode: 418,
			wantMsg:  "teapot",
		},
		{
			name:     "validation",
			err:      structs.NewValidationError("bad input"),
			wantCode: 400,
			wantMsg:  "bad input",
		},
		{
			name:     "token required",
			err:      structs.ErrTokenRequired,
			wantCode: 401,
			wantMsg:  "Authorization token required",
		},
		{
			name:     "invalid token",
			err:      structs.ErrInvalidToken,
			wantCode: 401,
			wantMsg:  "Invalid or expired token",
		},
		{
			name:     "invalid credentials",
			err:      structs.ErrInvalidCredentials,
			wantCode: 401,
			wantMsg:  "Invalid email or password",
		},
		{
			name:     "permission denied",
			err:      structs.ErrPermissionDenied,
			wantCode: 403,
			wantMsg:  "Permission denied",
		},
		{
			name:     "not found",
			err:      structs.NewNotFoundError("Job"),
			wantCode: 404,
			wantMsg:  "Job not found",
		},
		{
			name:     "conflict",
			err:      structs.NewConflictError("already assigned"),
			wantCode: 409,
			wantMsg:  "already assigned",
		},
		{
			name:     "semantic",
			err:      structs.NewSemanticError("email not verified"),
			wantCode: 422,
			wantMsg:  "email not verified",
		},
		{
			name:     "rate limited",
			err:      &structs.RateLimitError{RetryAfterSeconds: 12},
			wantCode: 429,
			wantMsg:  "rate limited, retry after 12 seconds",
		},
		{
			name:     "external hides the inner error",
			err:      structs.NewExternalError("geocoding", errors.New("connection reset")),
			wantCode: 502,
			wantMsg:  "geocoding unavailable",
		},
		{
			name:     "unknown collapses to opaque 500",
			err:      errors.New("pq: deadlock detected"),
			wantCode: 500,
			wantMsg:  "internal server error",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, msg, _ := errorCode(tc.err)
			must.Eq(t, tc.wantCode, code)
			must.Eq(t, tc.wantMsg, msg)
		})
	}
}

func TestHTTPServer_ErrorCode_ValidationDetails(t *testing.T) {
	ci.Parallel(t)

	err := structs.NewValidationError("request validation failed").
		WithDetail("email", "must be a valid email address")
	code, _, details := errorCode(err)
	must.Eq(t, 400, code)
	must.Eq(t, "must be a valid email address", details["email"])
}

func TestHTTPServer_Wrap_ErrorBody(t *testing.T) {
	ci.Parallel(t)
	httpTest(t, nil, func(s *TestAgent) {
		handler := func(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
			return nil, structs.NewNotFoundError("Job")
		}

		respW := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/jobs/nope", nil)
		s.Server.wrap(handler)(respW, req)

		must.Eq(t, 404, respW.Code)
		must.Eq(t, "application/json", respW.Header().Get("Content-Type"))

		var body errorResponse
		decodeResp(t, respW, &body)
		must.Eq(t, "Job not found", body.Error)
		must.Eq(t, 404, body.Code)
		must.Eq(t, respW.Header().Get("X-Request-Id"), body.RequestID)
		must.Eq(t, 12, len(body.RequestID))
	})
}

func TestHTTPServer_Wrap_InternalErrorIsOpaque(t *testing.T) {
	ci.Parallel(t)
	httpTest(t, nil, func(s *TestAgent) {
		handler := func(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
			return nil, errors.New("pq: connection refused on 10.2.3.4")
		}

		respW := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/jobs", nil)
		s.Server.wrap(handler)(respW, req)

		must.Eq(t, 500, respW.Code)
		var body errorResponse
		decodeResp(t, respW, &body)
		must.Eq(t, "internal server error", body.Error)
		must.StrNotContains(t, respW.Body.String(), "10.2.3.4")
	})
}

func TestHTTPServer_Wrap_RetryAfterHeader(t *testing.T) {
	ci.Parallel(t)
	httpTest(t, nil, func(s *TestAgent) {
		handler := func(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
			return nil, &structs.RateLimitError{RetryAfterSeconds: 30}
		}

		respW := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/login", nil)
		s.Server.wrap(handler)(respW, req)

		must.Eq(t, 429, respW.Code)
		must.Eq(t, "30", respW.Header().Get("Retry-After"))
	})
}

func TestHTTPServer_Wrap_CreatedStatus(t *testing.T) {
	ci.Parallel(t)
	httpTest(t, nil, func(s *TestAgent) {
		handler := func(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
			return created(map[string]string{"id": "abc"}), nil
		}

		// POST of a created body is a 201 with the inner object as the body.
		respW := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/customers", nil)
		s.Server.wrap(handler)(respW, req)
		must.Eq(t, 201, respW.Code)

		var body map[string]string
		decodeResp(t, respW, &body)
		must.Eq(t, "abc", body["id"])

		// The same body on a GET stays a 200.
		respW = httptest.NewRecorder()
		req, _ = http.NewRequest("GET", "/customers", nil)
		s.Server.wrap(handler)(respW, req)
		must.Eq(t, 200, respW.Code)
	})
}

func TestHTTPServer_Wrap_RequestIDUnique(t *testing.T) {
	ci.Parallel(t)
	httpTest(t, nil, func(s *TestAgent) {
		handler := func(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
			return map[string]string{}, nil
		}

		ids := make(map[string]bool)
		for i := 0; i < 8; i++ {
			respW := httptest.NewRecorder()
			req, _ := http.NewRequest("GET", "/health", nil)
			s.Server.wrap(handler)(respW, req)
			ids[respW.Header().Get("X-Request-Id")] = true
		}
		must.Eq(t, 8, len(ids))
	})
}

func TestHTTPServer_Authenticate(t *testing.T) {
	ci.Parallel(t)
	httpTest(t, nil, func(s *TestAgent) {
		_, _, token := s.SeedAuth(structs.RoleDispatcher)

		// No credentials at all.
		req, _ := http.NewRequest("GET", "/jobs", nil)
		_, err := s.Server.authenticate(req)
		must.ErrorIs(t, err, structs.ErrTokenRequired)

		// A non-bearer Authorization header is rejected, not ignored.
		req, _ = http.NewRequest("GET", "/jobs", nil)
		req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
		_, err = s.Server.authenticate(req)
		must.ErrorIs(t, err, structs.ErrInvalidToken)

		// Garbage bearer tokens fail verification.
		req, _ = http.NewRequest("GET", "/jobs", nil)
		req.Header.Set("Authorization", "Bearer not-a-jwt")
		_, err = s.Server.authenticate(req)
		must.ErrorIs(t, err, structs.ErrInvalidToken)

		// A valid bearer token resolves the caller.
		req = authedReq(t, "GET", "/jobs", token, nil)
		caller, err := s.Server.authenticate(req)
		must.NoError(t, err)
		must.Eq(t, structs.RoleDispatcher, caller.Role)

		// The query parameter fallback serves websocket clients.
		req, _ = http.NewRequest("GET", "/v1/events/stream?token="+token, nil)
		caller, err = s.Server.authenticate(req)
		must.NoError(t, err)
		must.Eq(t, structs.RoleDispatcher, caller.Role)
	})
}

func TestHTTPServer_MethodNotAllowed(t *testing.T) {
	ci.Parallel(t)
	httpTest(t, nil, func(s *TestAgent) {
		_, _, token := s.SeedAuth(structs.RoleDispatcher)

		respW := httptest.NewRecorder()
		req := authedReq(t, "DELETE", "/jobs", token, nil)
		s.Server.wrap(s.Server.JobsRequest)(respW, req)

		must.Eq(t, 405, respW.Code)
		var body errorResponse
		decodeResp(t, respW, &body)
		must.Eq(t, ErrInvalidMethod, body.Error)
	})
}

func TestClientIP(t *testing.T) {
	ci.Parallel(t)

	req, _ := http.NewRequest("GET", "/login", nil)
	req.RemoteAddr = "203.0.113.9:53122"
	must.Eq(t, "203.0.113.9", clientIP(req))

	// The first forwarded hop wins when a proxy is in front.
	req.Header.Set("X-Forwarded-For", "198.51.100.4, 203.0.113.9")
	must.Eq(t, "198.51.100.4", clientIP(req))
}

func TestHTTPServer_HealthEndpoints(t *testing.T) {
	ci.Parallel(t)
	httpTest(t, nil, func(s *TestAgent) {
		// Over the real listener so mux registration is covered too.
		resp, err := http.Get(s.URL() + "/health")
		must.NoError(t, err)
		defer resp.Body.Close()
		must.Eq(t, 200, resp.StatusCode)

		var health healthResponse
		must.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
		must.Eq(t, "ok", health.Status)
		must.StrContains(t, health.Version, "1.4.2")

		for _, path := range []string{"/health/live", "/health/ready"} {
			probe, err := http.Get(s.URL() + path)
			must.NoError(t, err)
			probe.Body.Close()
			must.Eq(t, 200, probe.StatusCode)
		}
	})
}

func TestHTTPServer_PprofDisabledByDefault(t *testing.T) {
	ci.Parallel(t)
	httpTest(t, nil, func(s *TestAgent) {
		resp, err := http.Get(s.URL() + "/debug/pprof/")
		must.NoError(t, err)
		defer resp.Body.Close()
		must.Eq(t, 404, resp.StatusCode)
	})
}
