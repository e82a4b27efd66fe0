// Copyright (c) Fieldward, Inc.
// SPDX-License-Identifier: BUSL-1.1

package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/shoenig/test/must"
	"golang.org/x/time/rate"

	"github.com/fieldward/fieldward/ci"
	"github.com/fieldward/fieldward/mock"
	"github.com/fieldward/fieldward/structs"
)

func TestTokenManager_RoundTrip(t *testing.T) {
	ci.Parallel(t)

	mgr := NewTokenManager([]byte("test-secret"), time.Hour)
	user := mock.User("company-1")

	token, err := mgr.Mint(user)
	must.NoError(t, err)
	must.NotEq(t, "", token)

	got, err := mgr.Verify(token)
	must.NoError(t, err)
	must.Eq(t, user.ID, got.UserID)
	must.Eq(t, user.Email, got.Email)
	must.Eq(t, user.Role, got.Role)
	must.Eq(t, "company-1", got.CompanyID)
	must.False(t, got.IsPlatform())
}

func TestTokenManager_PlatformUser(t *testing.T) {
	ci.Parallel(t)

	mgr := NewTokenManager([]byte("test-secret"), time.Hour)
	token, err := mgr.Mint(mock.PlatformUser())
	must.NoError(t, err)

	got, err := mgr.Verify(token)
	must.NoError(t, err)
	must.True(t, got.IsPlatform())
	must.Eq(t, "", got.CompanyID)
}

func TestTokenManager_Rejections(t *testing.T) {
	ci.Parallel(t)

	mgr := NewTokenManager([]byte("test-secret"), time.Hour)
	user := mock.User("company-1")

	// Garbage and empty tokens.
	_, err := mgr.Verify("not-a-token")
	must.ErrorIs(t, err, structs.ErrInvalidToken)
	_, err = mgr.Verify("")
	must.ErrorIs(t, err, structs.ErrInvalidToken)

	// A token signed with a different secret.
	other := NewTokenManager([]byte("other-secret"), time.Hour)
	token, err := other.Mint(user)
	must.NoError(t, err)
	_, err = mgr.Verify(token)
	must.ErrorIs(t, err, structs.ErrInvalidToken)

	// An expired token.
	t0 := time.Date(2024, 3, 12, 10, 0, 0, 0, time.UTC)
	mgr.now = func() time.Time { return t0 }
	token, err = mgr.Mint(user)
	must.NoError(t, err)
	mgr.now = func() time.Time { return t0.Add(2 * time.Hour) }
	_, err = mgr.Verify(token)
	must.ErrorIs(t, err, structs.ErrInvalidToken)

	// A tenant role without a company claim.
	mgr.now = time.Now
	broken := mock.User("company-1")
	broken.CompanyID = ""
	token, err = mgr.Mint(broken)
	must.NoError(t, err)
	_, err = mgr.Verify(token)
	must.ErrorIs(t, err, structs.ErrInvalidToken)
}

func TestPasswordHashing(t *testing.T) {
	ci.Parallel(t)

	hash, err := HashPassword("correct horse battery staple")
	must.NoError(t, err)
	must.NotEq(t, "correct horse battery staple", hash)

	must.True(t, CheckPassword(hash, "correct horse battery staple"))
	must.False(t, CheckPassword(hash, "wrong password"))
	must.False(t, CheckPassword("", "anything"))
}

func TestIPRateLimiter(t *testing.T) {
	ci.Parallel(t)

	// One request per hour with a burst of two.
	limiter := NewIPRateLimiter(rate.Every(time.Hour), 2)

	must.NoError(t, limiter.Allow("10.0.0.1"))
	must.NoError(t, limiter.Allow("10.0.0.1"))

	err := limiter.Allow("10.0.0.1")
	must.Error(t, err)
	var rle *structs.RateLimitError
	must.True(t, errors.As(err, &rle))
	must.Positive(t, rle.RetryAfterSeconds)

	// A different IP has its own budget.
	must.NoError(t, limiter.Allow("10.0.0.2"))
}
