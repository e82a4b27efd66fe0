// Copyright (c) Fieldward, Inc.
// SPDX-License-Identifier: BUSL-1.1

package agent

import (
	"net/http"

	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *HTTPServer) MetricsRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	if req.Method != http.MethodGet {
		return nil, CodedError(405, ErrInvalidMethod)
	}

	if format := req.URL.Query().Get("format"); format == "prometheus" {
		handlerOptions := promhttp.HandlerOpts{
			ErrorLog:           s.logger.StandardLogger(&hclog.StandardLoggerOptions{InferLevels: true}),
			ErrorHandling:      promhttp.ContinueOnError,
			DisableCompression: true,
		}
		promhttp.HandlerFor(s.agent.promRegistry, handlerOptions).ServeHTTP(resp, req)
		return nil, nil
	}

	return s.agent.InmemSink.DisplayMetrics(resp, req)
}
