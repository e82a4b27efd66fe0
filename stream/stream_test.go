// Copyright (c) Fieldward, Inc.
// SPDX-License-Identifier: BUSL-1.1

package stream

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/shoenig/test/must"
	"github.com/stretchr/testify/require"

	"github.com/fieldward/fieldward/ci"
	"github.com/fieldward/fieldward/helper/testlog"
)

// TestEvent_WireShape pins the frame the dashboard websocket clients parse.
func TestEvent_WireShape(t *testing.T) {
	ci.Parallel(t)

	event := &Event{
		Topic:     TopicJob,
		Type:      "JobAssigned",
		CompanyID: "company-1",
		Key:       "job-1",
		CreatedAt: time.Date(2024, 3, 13, 17, 0, 0, 0, time.UTC),
		Payload:   map[string]string{"technicianId": "emp-1"},
	}

	out, err := json.Marshal(event)
	require.NoError(t, err)
	require.JSONEq(t, `{
		"topic": "Job",
		"type": "JobAssigned",
		"companyId": "company-1",
		"key": "job-1",
		"createdAt": "2024-03-13T17:00:00Z",
		"payload": {"technicianId": "emp-1"}
	}`, string(out))

	// Events without a payload marshal without the key at all.
	event.Payload = nil
	out, err = json.Marshal(event)
	require.NoError(t, err)
	require.NotContains(t, string(out), "payload")
}

func TestBroker_CompanyScoping(t *testing.T) {
	ci.Parallel(t)

	broker := NewBroker(testlog.HCLogger(t))
	tenant := broker.Subscribe(&SubscribeRequest{CompanyID: "company-1"})
	defer tenant.Unsubscribe()
	platform := broker.Subscribe(&SubscribeRequest{})
	defer platform.Unsubscribe()

	broker.Publish(&Event{Topic: TopicJob, Type: "JobAssigned", CompanyID: "company-1", Key: "job-1"})
	broker.Publish(&Event{Topic: TopicJob, Type: "JobAssigned", CompanyID: "company-2", Key: "job-2"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	// The tenant only sees its own company.
	event, err := tenant.Next(ctx)
	must.NoError(t, err)
	must.Eq(t, "job-1", event.Key)
	must.False(t, event.CreatedAt.IsZero())

	// The platform view sees both.
	event, err = platform.Next(ctx)
	must.NoError(t, err)
	must.Eq(t, "job-1", event.Key)
	event, err = platform.Next(ctx)
	must.NoError(t, err)
	must.Eq(t, "job-2", event.Key)
}

func TestBroker_TopicFilter(t *testing.T) {
	ci.Parallel(t)

	broker := NewBroker(testlog.HCLogger(t))
	sub := broker.Subscribe(&SubscribeRequest{
		CompanyID: "company-1",
		Topics:    []Topic{TopicEscalation},
	})
	defer sub.Unsubscribe()

	broker.Publish(&Event{Topic: TopicJob, Type: "JobAssigned", CompanyID: "company-1", Key: "job-1"})
	broker.Publish(&Event{Topic: TopicEscalation, Type: "EscalationTriggered", CompanyID: "company-1", Key: "evt-1"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	event, err := sub.Next(ctx)
	must.NoError(t, err)
	must.Eq(t, "evt-1", event.Key)
}

func TestBroker_LossyOnSlowSubscriber(t *testing.T) {
	ci.Parallel(t)

	broker := NewBroker(testlog.HCLogger(t))
	sub := broker.Subscribe(&SubscribeRequest{CompanyID: "company-1"})
	defer sub.Unsubscribe()

	// Publish past the buffer without consuming; nothing may block.
	for i := 0; i < subscriptionBuffer+16; i++ {
		broker.Publish(&Event{Topic: TopicJob, Type: "JobUpdated", CompanyID: "company-1", Key: "job-1"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	drained := 0
	for {
		_, err := sub.Next(ctx)
		if err != nil {
			break
		}
		drained++
		if drained == subscriptionBuffer {
			break
		}
	}
	must.Eq(t, subscriptionBuffer, drained)
}

func TestBroker_Close(t *testing.T) {
	ci.Parallel(t)

	broker := NewBroker(testlog.HCLogger(t))
	sub := broker.Subscribe(&SubscribeRequest{})
	must.Eq(t, 1, broker.SubscriberCount())

	sub.Unsubscribe()
	sub.Unsubscribe() // idempotent
	must.Eq(t, 0, broker.SubscriberCount())

	_, err := sub.Next(context.Background())
	must.ErrorIs(t, err, ErrSubscriptionClosed)

	second := broker.Subscribe(&SubscribeRequest{})
	broker.CloseAll()
	_, err = second.Next(context.Background())
	must.ErrorIs(t, err, ErrSubscriptionClosed)
	must.Eq(t, 0, broker.SubscriberCount())
}
