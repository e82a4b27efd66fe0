// Copyright (c) Fieldward, Inc.
// SPDX-License-Identifier: BUSL-1.1

// Package eta mints the short-lived opaque tokens behind the public
// "where is my technician" lookup. Tokens live in Redis when configured,
// falling back to an in-process store for single-node and dev deployments.
package eta

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fieldward/fieldward/helper/uuid"
)

// DefaultTTL is how long a minted token resolves.
const DefaultTTL = 4 * time.Hour

const redisKeyPrefix = "fieldward:eta:"

// Token is what a public token resolves to.
type Token struct {
	JobID     string `json:"jobId"`
	CompanyID string `json:"companyId"`
}

// TokenStore mints and resolves public ETA tokens. Resolve returns nil for
// unknown or expired tokens.
type TokenStore interface {
	Mint(ctx context.Context, tok Token, ttl time.Duration) (string, error)
	Resolve(ctx context.Context, token string) (*Token, error)
}

// RedisStore keeps tokens in Redis so every node resolves them.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Mint(ctx context.Context, tok Token, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	token := newToken()
	payload, err := json.Marshal(tok)
	if err != nil {
		return "", err
	}
	if err := s.client.Set(ctx, redisKeyPrefix+token, payload, ttl).Err(); err != nil {
		return "", fmt.Errorf("eta token write failed: %w", err)
	}
	return token, nil
}

func (s *RedisStore) Resolve(ctx context.Context, token string) (*Token, error) {
	payload, err := s.client.Get(ctx, redisKeyPrefix+token).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("eta token read failed: %w", err)
	}
	var tok Token
	if err := json.Unmarshal(payload, &tok); err != nil {
		return nil, fmt.Errorf("eta token decode failed: %w", err)
	}
	return &tok, nil
}

type memoryEntry struct {
	tok       Token
	expiresAt time.Time
}

// MemoryStore is the single-node fallback. Expired entries are dropped
// lazily on resolve and opportunistically on mint.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry

	// now is swapped in tests.
	now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (s *MemoryStore) Mint(_ context.Context, tok Token, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	token := newToken()
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	for key, entry := range s.entries {
		if entry.expiresAt.Before(now) {
			delete(s.entries, key)
		}
	}
	s.entries[token] = memoryEntry{tok: tok, expiresAt: now.Add(ttl)}
	return token, nil
}

func (s *MemoryStore) Resolve(_ context.Context, token string) (*Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[token]
	if !ok {
		return nil, nil
	}
	if entry.expiresAt.Before(s.now()) {
		delete(s.entries, token)
		return nil, nil
	}
	tok := entry.tok
	return &tok, nil
}

// newToken produces an opaque URL-safe token.
func newToken() string {
	return strings.ReplaceAll(uuid.Generate(), "-", "")
}
