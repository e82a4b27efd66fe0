// Copyright (c) Fieldward, Inc.
// SPDX-License-Identifier: BUSL-1.1

package structs

import "time"

// AuditLog is one append-only record of a privileged action. Rows are
// never updated or deleted.
type AuditLog struct {
	ID        string `json:"id"`
	CompanyID string `json:"companyId"`
	UserID    string `json:"userId,omitempty"`

	Action   string            `json:"action"`
	Entity   string            `json:"entity"`
	EntityID string            `json:"entityId,omitempty"`
	Detail   map[string]string `json:"detail,omitempty"`

	CreateTime time.Time `json:"createdAt"`
}

func (a *AuditLog) Copy() *AuditLog {
	if a == nil {
		return nil
	}
	na := *a
	if a.Detail != nil {
		na.Detail = make(map[string]string, len(a.Detail))
		for k, v := range a.Detail {
			na.Detail[k] = v
		}
	}
	return &na
}

// SMSDirection distinguishes webhook-received messages from sent ones.
type SMSDirection string

const (
	SMSInbound  SMSDirection = "inbound"
	SMSOutbound SMSDirection = "outbound"
)

// SMSMessage is one message crossing the SMS boundary. Inbound rows come
// from the provider webhook; outbound rows are queued for the transport
// collaborator.
type SMSMessage struct {
	ID        string `json:"id"`
	CompanyID string `json:"companyId,omitempty"`

	Direction  SMSDirection `json:"direction"`
	From       string       `json:"from"`
	To         string       `json:"to"`
	Body       string       `json:"body"`
	ProviderID string       `json:"providerId,omitempty"`

	// CustomerID is set when the counterparty phone matches a customer.
	CustomerID string `json:"customerId,omitempty"`

	// AfterHours snapshots the after-hours evaluation at receipt time, so
	// later rule edits do not rewrite history.
	AfterHours bool `json:"afterHours,omitempty"`

	CreateTime time.Time `json:"createdAt"`
}
