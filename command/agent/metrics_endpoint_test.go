// Copyright (c) Fieldward, Inc.
// SPDX-License-Identifier: BUSL-1.1

package agent

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	metrics "github.com/hashicorp/go-metrics"
	"github.com/shoenig/test/must"

	"github.com/fieldward/fieldward/ci"
)

func TestHTTP_Metrics_JSON(t *testing.T) {
	ci.Parallel(t)
	httpTest(t, nil, func(s *TestAgent) {
		// Make sure at least one counter exists in the current interval.
		metrics.IncrCounter([]string{"fieldward", "test", "tick"}, 1)

		req, err := http.NewRequest(http.MethodGet, "/v1/metrics", nil)
		must.NoError(t, err)

		respW := httptest.NewRecorder()
		obj, err := s.Server.MetricsRequest(respW, req)
		must.NoError(t, err)
		must.NotNil(t, obj)
	})
}

func TestHTTP_Metrics_Prometheus(t *testing.T) {
	ci.Parallel(t)
	httpTest(t, nil, func(s *TestAgent) {
		resp, err := http.Get(s.URL() + "/v1/metrics?format=prometheus")
		must.NoError(t, err)
		defer resp.Body.Close()

		must.Eq(t, http.StatusOK, resp.StatusCode)
		body, err := io.ReadAll(resp.Body)
		must.NoError(t, err)

		// The registry always carries the Go runtime collectors.
		must.StrContains(t, string(body), "go_goroutines")
	})
}

func TestHTTP_Metrics_MethodNotAllowed(t *testing.T) {
	ci.Parallel(t)
	httpTest(t, nil, func(s *TestAgent) {
		req, err := http.NewRequest(http.MethodPost, "/v1/metrics", nil)
		must.NoError(t, err)

		_, err = s.Server.MetricsRequest(httptest.NewRecorder(), req)
		must.Error(t, err)
		code, _, _ := errorCode(err)
		must.Eq(t, 405, code)
	})
}
