// Copyright (c) Fieldward, Inc.
// SPDX-License-Identifier: BUSL-1.1

// Package stream fans job lifecycle and escalation events out to live
// subscribers, feeding the dispatch board. Delivery is lossy: a subscriber
// that cannot keep up loses events rather than stalling publishers.
package stream

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"
	metrics "github.com/hashicorp/go-metrics"
)

// Topic groups events by entity kind.
type Topic string

const (
	TopicJob        Topic = "Job"
	TopicEscalation Topic = "Escalation"
	TopicEmployee   Topic = "Employee"

	// AllTopics subscribes to everything.
	AllTopics Topic = "*"
)

// Event is one published occurrence. CompanyID scopes visibility: tenant
// subscribers only see their own company's events.
type Event struct {
	Topic     Topic     `json:"topic"`
	Type      string    `json:"type"`
	CompanyID string    `json:"companyId"`
	Key       string    `json:"key"`
	CreatedAt time.Time `json:"createdAt"`
	Payload   any       `json:"payload,omitempty"`
}

// SubscribeRequest narrows a subscription. An empty CompanyID is the
// platform view; empty Topics means all topics.
type SubscribeRequest struct {
	CompanyID string
	Topics    []Topic
}

func (r *SubscribeRequest) wants(e *Event) bool {
	if r.CompanyID != "" && r.CompanyID != e.CompanyID {
		return false
	}
	if len(r.Topics) == 0 {
		return true
	}
	for _, topic := range r.Topics {
		if topic == AllTopics || topic == e.Topic {
			return true
		}
	}
	return false
}

// ErrSubscriptionClosed signals the subscriber should resubscribe.
var ErrSubscriptionClosed = errors.New("subscription closed")

const (
	subscriptionStateOpen uint32 = 0

	subscriptionStateClosed uint32 = 1

	// subscriptionBuffer is each subscriber's event backlog before the
	// broker starts dropping.
	subscriptionBuffer = 64
)

// Subscription is one subscriber's view of the stream.
type Subscription struct {
	// state must be accessed atomically.
	state uint32

	req    *SubscribeRequest
	events chan *Event

	// forceClosed is closed when the broker shuts the subscription down.
	forceClosed chan struct{}

	// unsub frees broker resources. Idempotent.
	unsub func()
}

// Next blocks for the next event the subscription can see.
func (s *Subscription) Next(ctx context.Context) (*Event, error) {
	if atomic.LoadUint32(&s.state) == subscriptionStateClosed {
		return nil, ErrSubscriptionClosed
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.forceClosed:
		return nil, ErrSubscriptionClosed
	case event := <-s.events:
		return event, nil
	}
}

// Unsubscribe releases the subscription. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.unsub()
}

func (s *Subscription) forceClose() {
	if atomic.CompareAndSwapUint32(&s.state, subscriptionStateOpen, subscriptionStateClosed) {
		close(s.forceClosed)
	}
}

// Broker is the in-process publish half. Publishing never blocks.
type Broker struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	logger hclog.Logger
}

func NewBroker(logger hclog.Logger) *Broker {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Broker{
		subs:   make(map[*Subscription]struct{}),
		logger: logger.Named("stream"),
	}
}

// Subscribe registers a new subscriber.
func (b *Broker) Subscribe(req *SubscribeRequest) *Subscription {
	sub := &Subscription{
		req:         req,
		events:      make(chan *Event, subscriptionBuffer),
		forceClosed: make(chan struct{}),
	}
	sub.unsub = func() {
		b.mu.Lock()
		delete(b.subs, sub)
		b.mu.Unlock()
		sub.forceClose()
	}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

// Publish fans one event out to every matching subscriber, dropping it for
// subscribers whose buffers are full.
func (b *Broker) Publish(event *Event) {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	metrics.IncrCounter([]string{"fieldward", "stream", "published"}, 1)
	for sub := range b.subs {
		if !sub.req.wants(event) {
			continue
		}
		select {
		case sub.events <- event:
		default:
			metrics.IncrCounter([]string{"fieldward", "stream", "dropped"}, 1)
			b.logger.Debug("event dropped for slow subscriber",
				"topic", event.Topic, "type", event.Type, "key", event.Key)
		}
	}
}

// CloseAll force-closes every subscription, normally during shutdown.
func (b *Broker) CloseAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs {
		sub.forceClose()
		delete(b.subs, sub)
	}
}

// SubscriberCount reports the live subscriptions, for agent stats.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
