// Copyright (c) Fieldward, Inc.
// SPDX-License-Identifier: BUSL-1.1

package agent

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fieldward/fieldward/stream"
)

// Event types published to the dispatch-board stream.
const (
	eventJobCreated       = "JobCreated"
	eventJobUpdated       = "JobUpdated"
	eventJobStatusChanged = "JobStatusChanged"
	eventJobAssigned      = "JobAssigned"

	eventEscalationTriggered = "EscalationTriggered"
	eventEscalationResolved  = "EscalationResolved"

	eventEmployeeLocation = "EmployeeLocationUpdated"
)

const (
	// streamWriteTimeout bounds each frame write.
	streamWriteTimeout = 10 * time.Second

	// streamPongWait is how long a client may stay silent before the
	// connection is considered dead. Pings go out at a third of it.
	streamPongWait   = 60 * time.Second
	streamPingPeriod = 20 * time.Second
)

// publish pushes one event onto the dispatch-board stream. Never blocks.
func (s *HTTPServer) publish(topic stream.Topic, eventType, companyID, key string, payload any) {
	s.agent.broker.Publish(&stream.Event{
		Topic:     topic,
		Type:      eventType,
		CompanyID: companyID,
		Key:       key,
		Payload:   payload,
	})
}

// EventStreamRequest upgrades to a websocket and relays broker events.
// Browsers cannot set headers on websocket dials, so the token may arrive
// as a query parameter. This handler bypasses wrap because the upgrade
// hijacks the connection.
func (s *HTTPServer) EventStreamRequest(resp http.ResponseWriter, req *http.Request) {
	caller, err := s.authenticate(req)
	if err != nil {
		code, msg, _ := errorCode(err)
		writeJSON(resp, code, &errorResponse{Error: msg, Code: code, RequestID: requestID()})
		return
	}

	query := req.URL.Query()
	var topics []stream.Topic
	if raw := query.Get("topics"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				topics = append(topics, stream.Topic(t))
			}
		}
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkStreamOrigin,
	}
	conn, err := upgrader.Upgrade(resp, req, nil)
	if err != nil {
		// Upgrade already wrote the failure response.
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	// Non-platform callers are pinned to their own company regardless of
	// what they ask for.
	sub := s.agent.broker.Subscribe(&stream.SubscribeRequest{
		CompanyID: caller.EffectiveCompany(query.Get("companyId")),
		Topics:    topics,
	})
	defer sub.Unsubscribe()

	ctx, cancel := context.WithCancel(req.Context())
	defer cancel()

	// The read loop only exists to notice the client going away.
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// WriteControl is safe concurrently with WriteJSON.
	go func() {
		ticker := time.NewTicker(streamPingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				deadline := time.Now().Add(streamWriteTimeout)
				if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	s.logger.Debug("event stream subscriber connected", "user", caller.UserID)
	for {
		event, err := sub.Next(ctx)
		if err != nil {
			return
		}
		conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
		if err := conn.WriteJSON(event); err != nil {
			return
		}
	}
}

// checkStreamOrigin mirrors the CORS allow-list for websocket dials. An
// empty allow-list admits any origin, matching the public endpoints.
func (s *HTTPServer) checkStreamOrigin(req *http.Request) bool {
	origin := req.Header.Get("Origin")
	if origin == "" {
		return true
	}
	allowed := s.agent.config.AllowedOrigins
	if len(allowed) == 0 {
		return true
	}
	for _, candidate := range allowed {
		if candidate == "*" || strings.EqualFold(candidate, origin) {
			return true
		}
	}
	return false
}
