// Copyright (c) Fieldward, Inc.
// SPDX-License-Identifier: BUSL-1.1

package agent

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/fieldward/fieldward/helper/uuid"
	"github.com/fieldward/fieldward/structs"
)

// smsSignatureHeader carries the provider's hex HMAC-SHA256 of the raw
// request body.
const smsSignatureHeader = "X-Fieldward-Signature"

// smsInboundBody is the provider webhook payload.
type smsInboundBody struct {
	From       string `json:"from"`
	To         string `json:"to"`
	Body       string `json:"body"`
	ProviderID string `json:"providerId"`
}

// SMSInboundRequest captures one inbound message. The webhook authenticates
// by body signature, not bearer token: with no shared secret configured the
// endpoint refuses everything rather than accepting unsigned traffic.
func (s *HTTPServer) SMSInboundRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	if req.Method != http.MethodPost {
		return nil, CodedError(405, ErrInvalidMethod)
	}

	secret := s.agent.config.SMSWebhookSecret
	if secret == "" {
		return nil, CodedError(http.StatusForbidden, "sms webhook not configured")
	}

	raw, err := io.ReadAll(io.LimitReader(req.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if !verifySMSSignature(secret, raw, req.Header.Get(smsSignatureHeader)) {
		return nil, CodedError(http.StatusForbidden, "invalid webhook signature")
	}

	var body smsInboundBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, structs.NewValidationError("invalid webhook body")
	}
	if body.From == "" {
		return nil, structs.NewValidationError("missing sender phone")
	}

	now := time.Now().UTC()
	msg := &structs.SMSMessage{
		ID:         uuid.Generate(),
		Direction:  structs.SMSInbound,
		From:       body.From,
		To:         body.To,
		Body:       body.Body,
		ProviderID: body.ProviderID,
		CreateTime: now,
	}

	// Attribution rides on the sender's phone. An unmatched message is
	// still captured, just without a tenant or after-hours snapshot.
	customer, err := s.agent.store.CustomerByPhone(req.Context(), body.From)
	if err != nil {
		return nil, err
	}
	if customer != nil {
		msg.CompanyID = customer.CompanyID
		msg.CustomerID = customer.ID

		eval, err := s.agent.evaluator.Evaluate(req.Context(), customer.CompanyID, "", now)
		if err != nil {
			s.logger.Warn("after-hours evaluation failed on inbound sms", "error", err)
		} else {
			msg.AfterHours = eval.IsAfterHours
		}
	}

	if err := s.agent.store.AppendSMSMessage(req.Context(), msg); err != nil {
		return nil, err
	}

	s.logger.Info("inbound sms captured", "from", body.From,
		"matched", customer != nil, "after_hours", msg.AfterHours)
	return map[string]string{"id": msg.ID, "status": "received"}, nil
}

// verifySMSSignature checks the hex HMAC-SHA256 of body in constant time.
func verifySMSSignature(secret string, body []byte, signature string) bool {
	if signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	want := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(want), []byte(signature))
}
