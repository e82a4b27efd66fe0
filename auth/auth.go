// Copyright (c) Fieldward, Inc.
// SPDX-License-Identifier: BUSL-1.1

// Package auth covers request identity: bearer token mint and verify,
// password hashing, and the per-IP budget on the public endpoints.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/fieldward/fieldward/structs"
)

// DefaultTokenTTL is how long a minted bearer token stays valid.
const DefaultTokenTTL = 24 * time.Hour

// Claims is the JWT payload. Role and company pin the caller's tenant view
// server-side; clients cannot widen them without breaking the signature.
type Claims struct {
	Email     string       `json:"email"`
	Role      structs.Role `json:"role"`
	CompanyID string       `json:"companyId,omitempty"`
	jwt.RegisteredClaims
}

// TokenManager mints and verifies HS256 bearer tokens.
type TokenManager struct {
	secret []byte
	ttl    time.Duration

	// now is swapped in tests to drive expiry.
	now func() time.Time
}

func NewTokenManager(secret []byte, ttl time.Duration) *TokenManager {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenManager{
		secret: secret,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Mint issues a signed token for the user.
func (m *TokenManager) Mint(user *structs.User) (string, error) {
	now := m.now()
	claims := &Claims{
		Email:     user.Email,
		Role:      user.Role,
		CompanyID: user.CompanyID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("token signing failed: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a bearer token, returning the caller
// identity. Any failure collapses to ErrInvalidToken so the response never
// explains what was wrong with the token.
func (m *TokenManager) Verify(tokenString string) (*structs.AuthUser, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(m.now), jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return nil, structs.ErrInvalidToken
	}
	if !claims.Role.Valid() {
		return nil, structs.ErrInvalidToken
	}
	if claims.Role != structs.RolePlatform && claims.CompanyID == "" {
		return nil, structs.ErrInvalidToken
	}
	return &structs.AuthUser{
		UserID:    claims.Subject,
		Email:     claims.Email,
		Role:      claims.Role,
		CompanyID: claims.CompanyID,
	}, nil
}

// HashPassword produces a bcrypt hash for storage.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("password hashing failed: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether the password matches the stored hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
