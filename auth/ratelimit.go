// Copyright (c) Fieldward, Inc.
// SPDX-License-Identifier: BUSL-1.1

package auth

import (
	"math"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"github.com/fieldward/fieldward/structs"
)

const (
	// DefaultLoginRate allows a handful of attempts per minute per IP.
	DefaultLoginRate = rate.Limit(5.0 / 60.0)

	DefaultLoginBurst = 5

	// limiterCacheSize bounds how many client IPs are tracked. Evicted
	// IPs simply start a fresh budget.
	limiterCacheSize = 4096
)

// IPRateLimiter enforces a token-bucket budget per client IP. The bucket
// set is capped by an LRU so hostile traffic cannot grow it without bound.
type IPRateLimiter struct {
	cache *lru.Cache[string, *rate.Limiter]
	limit rate.Limit
	burst int
}

func NewIPRateLimiter(limit rate.Limit, burst int) *IPRateLimiter {
	if limit <= 0 {
		limit = DefaultLoginRate
	}
	if burst <= 0 {
		burst = DefaultLoginBurst
	}
	cache, _ := lru.New[string, *rate.Limiter](limiterCacheSize)
	return &IPRateLimiter{
		cache: cache,
		limit: limit,
		burst: burst,
	}
}

// Allow consumes one slot for the IP, returning a RateLimitError carrying
// the retry delay when the budget is spent.
func (l *IPRateLimiter) Allow(ip string) error {
	limiter, ok := l.cache.Get(ip)
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.cache.Add(ip, limiter)
	}

	reservation := limiter.Reserve()
	delay := reservation.Delay()
	if delay == 0 {
		return nil
	}
	reservation.Cancel()
	return &structs.RateLimitError{
		RetryAfterSeconds: int(math.Ceil(delay.Seconds())),
	}
}
