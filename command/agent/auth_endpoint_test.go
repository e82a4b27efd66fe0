// Copyright (c) Fieldward, Inc.
// SPDX-License-Identifier: BUSL-1.1

package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shoenig/test/must"

	"github.com/fieldward/fieldward/auth"
	"github.com/fieldward/fieldward/ci"
	"github.com/fieldward/fieldward/mock"
	"github.com/fieldward/fieldward/structs"
)

// fromIP pins the request's client IP so rate-limit buckets are
// deterministic across test cases.
func fromIP(req *http.Request, ip string) *http.Request {
	req.RemoteAddr = ip + ":51000"
	return req
}

func TestHTTP_Onboard(t *testing.T) {
	ci.Parallel(t)
	httpTest(t, nil, func(s *TestAgent) {
		body := map[string]interface{}{
			"companyName": "Lone Star Climate",
			"timezone":    "America/Chicago",
			"industry":    "hvac",
			"name":        "Ana Alvarez",
			"email":       "ana@lonestar.example",
			"password":    "opensesame1",
		}

		respW := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/onboard", encodeReq(body))
		s.Server.wrap(s.Server.OnboardRequest)(respW, req)
		must.Eq(t, 201, respW.Code)

		var session sessionResponse
		decodeResp(t, respW, &session)
		must.NotEq(t, "", session.Token)
		must.NotNil(t, session.User)
		must.Eq(t, structs.RoleAdmin, session.User.Role)
		must.Eq(t, "ana@lonestar.example", session.User.Email)
		must.NotNil(t, session.Company)
		must.Eq(t, "Lone Star Climate", session.Company.Name)
		must.Eq(t, session.Company.ID, session.User.CompanyID)

		// The minted token is immediately usable.
		caller, err := s.Agent.tokens.Verify(session.Token)
		must.NoError(t, err)
		must.Eq(t, session.User.ID, caller.UserID)

		// The password hash never leaves the server.
		must.StrNotContains(t, respW.Body.String(), "passwordHash")
	})
}

func TestHTTP_Onboard_DuplicateEmail(t *testing.T) {
	ci.Parallel(t)
	httpTest(t, nil, func(s *TestAgent) {
		body := map[string]interface{}{
			"companyName": "Lone Star Climate",
			"name":        "Ana Alvarez",
			"email":       "ana@lonestar.example",
			"password":    "opensesame1",
		}

		req, _ := http.NewRequest("POST", "/onboard", encodeReq(body))
		_, err := s.Server.OnboardRequest(httptest.NewRecorder(), req)
		must.NoError(t, err)

		req, _ = http.NewRequest("POST", "/onboard", encodeReq(body))
		_, err = s.Server.OnboardRequest(httptest.NewRecorder(), req)
		must.Error(t, err)
		must.True(t, structs.IsConflict(err))
	})
}

func TestHTTP_Onboard_ValidationDetails(t *testing.T) {
	ci.Parallel(t)
	httpTest(t, nil, func(s *TestAgent) {
		// Missing the company name, short password, malformed email.
		body := map[string]interface{}{
			"name":     "Ana Alvarez",
			"email":    "not-an-email",
			"password": "short",
		}

		respW := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/onboard", encodeReq(body))
		s.Server.wrap(s.Server.OnboardRequest)(respW, req)
		must.Eq(t, 400, respW.Code)

		var errBody errorResponse
		decodeResp(t, respW, &errBody)
		must.MapContainsKey(t, errBody.Details, "companyName")
		must.MapContainsKey(t, errBody.Details, "email")
		must.MapContainsKey(t, errBody.Details, "password")
	})
}

func TestHTTP_Login(t *testing.T) {
	ci.Parallel(t)
	httpTest(t, nil, func(s *TestAgent) {
		ctx := context.Background()

		company := mock.Company()
		must.NoError(t, s.Agent.Store().UpsertCompany(ctx, company))

		hash, err := auth.HashPassword("opensesame1")
		must.NoError(t, err)
		user := mock.User(company.ID)
		user.Email = "dana@example.com"
		user.PasswordHash = hash
		must.NoError(t, s.Agent.Store().UpsertUser(ctx, user))

		login := func(ip, email, password string) (interface{}, error) {
			body := map[string]string{"email": email, "password": password}
			req, _ := http.NewRequest("POST", "/login", encodeReq(body))
			return s.Server.LoginRequest(httptest.NewRecorder(), fromIP(req, ip))
		}

		// Case-insensitive email, correct password.
		obj, err := login("198.51.100.1", "Dana@Example.com", "opensesame1")
		must.NoError(t, err)
		session := obj.(*sessionResponse)
		must.NotEq(t, "", session.Token)
		must.Eq(t, user.ID, session.User.ID)

		// Wrong password, unknown account, and disabled account all return
		// the same error.
		_, err = login("198.51.100.2", "dana@example.com", "wrong-password")
		must.ErrorIs(t, err, structs.ErrInvalidCredentials)

		_, err = login("198.51.100.3", "nobody@example.com", "opensesame1")
		must.ErrorIs(t, err, structs.ErrInvalidCredentials)

		user.IsActive = false
		must.NoError(t, s.Agent.Store().UpsertUser(ctx, user))
		_, err = login("198.51.100.4", "dana@example.com", "opensesame1")
		must.ErrorIs(t, err, structs.ErrInvalidCredentials)
	})
}

func TestHTTP_Login_RateLimited(t *testing.T) {
	ci.Parallel(t)
	httpTest(t, nil, func(s *TestAgent) {
		body := map[string]string{"email": "dana@example.com", "password": "nope"}

		// The per-IP budget allows a burst of 5; the sixth attempt is
		// refused before credentials are even checked.
		var lastErr error
		for i := 0; i < 6; i++ {
			req, _ := http.NewRequest("POST", "/login", encodeReq(body))
			_, lastErr = s.Server.LoginRequest(httptest.NewRecorder(), fromIP(req, "198.51.100.77"))
		}
		must.Error(t, lastErr)

		var rle *structs.RateLimitError
		must.True(t, errors.As(lastErr, &rle))
		must.Greater(t, 0, rle.RetryAfterSeconds)

		// A different client IP still has its own budget.
		req, _ := http.NewRequest("POST", "/login", encodeReq(body))
		_, err := s.Server.LoginRequest(httptest.NewRecorder(), fromIP(req, "198.51.100.78"))
		must.ErrorIs(t, err, structs.ErrInvalidCredentials)
	})
}

func TestHTTP_Register_RequiresVerifiedEmail(t *testing.T) {
	ci.Parallel(t)
	httpTest(t, nil, func(s *TestAgent) {
		ctx := context.Background()
		email := "founder@kelvinworks.example"
		body := map[string]interface{}{
			"companyName": "Kelvin Works",
			"name":        "Kim Osei",
			"email":       email,
			"password":    "opensesame1",
		}

		register := func(ip string) (interface{}, error) {
			req, _ := http.NewRequest("POST", "/register", encodeReq(body))
			return s.Server.RegisterRequest(httptest.NewRecorder(), fromIP(req, ip))
		}

		// No verification on file.
		_, err := register("198.51.100.10")
		must.Error(t, err)
		code, _, _ := errorCode(err)
		must.Eq(t, 422, code)

		// Request a code.
		req, _ := http.NewRequest("POST", "/verify-email", encodeReq(map[string]string{"email": email}))
		_, err = s.Server.VerifyEmailRequest(httptest.NewRecorder(), fromIP(req, "198.51.100.11"))
		must.NoError(t, err)

		v, err := s.Agent.Store().EmailVerificationByEmail(ctx, email)
		must.NoError(t, err)
		must.NotNil(t, v)
		must.Eq(t, 6, len(v.Code))
		must.False(t, v.Verified)

		// A pending (unconfirmed) verification is not enough.
		_, err = register("198.51.100.12")
		must.Error(t, err)

		// Confirm with the issued code.
		confirm := map[string]string{"email": email, "code": v.Code}
		req, _ = http.NewRequest("POST", "/verify-email/confirm", encodeReq(confirm))
		_, err = s.Server.VerifyEmailConfirmRequest(httptest.NewRecorder(), fromIP(req, "198.51.100.13"))
		must.NoError(t, err)

		// Now registration goes through and seats the admin.
		obj, err := register("198.51.100.14")
		must.NoError(t, err)
		session := obj.(*createdResponse).Body.(*sessionResponse)
		must.Eq(t, structs.RoleAdmin, session.User.Role)
		must.Eq(t, email, session.User.Email)
	})
}

func TestHTTP_VerifyEmailConfirm_WrongCode(t *testing.T) {
	ci.Parallel(t)
	httpTest(t, nil, func(s *TestAgent) {
		ctx := context.Background()
		email := "founder@kelvinworks.example"

		req, _ := http.NewRequest("POST", "/verify-email", encodeReq(map[string]string{"email": email}))
		_, err := s.Server.VerifyEmailRequest(httptest.NewRecorder(), fromIP(req, "198.51.100.20"))
		must.NoError(t, err)

		v, err := s.Agent.Store().EmailVerificationByEmail(ctx, email)
		must.NoError(t, err)

		wrong := "000000"
		if v.Code == wrong {
			wrong = "111111"
		}
		confirm := map[string]string{"email": email, "code": wrong}
		req, _ = http.NewRequest("POST", "/verify-email/confirm", encodeReq(confirm))
		_, err = s.Server.VerifyEmailConfirmRequest(httptest.NewRecorder(), fromIP(req, "198.51.100.21"))
		must.Error(t, err)
		must.True(t, structs.IsValidation(err))

		// The row stays unverified.
		v, err = s.Agent.Store().EmailVerificationByEmail(ctx, email)
		must.NoError(t, err)
		must.False(t, v.Verified)

		// An email nobody asked to verify is a 404, not a probe oracle for
		// code guessing.
		confirm = map[string]string{"email": "other@example.com", "code": "123456"}
		req, _ = http.NewRequest("POST", "/verify-email/confirm", encodeReq(confirm))
		_, err = s.Server.VerifyEmailConfirmRequest(httptest.NewRecorder(), fromIP(req, "198.51.100.22"))
		must.Error(t, err)
		must.True(t, structs.IsNotFound(err))
	})
}

func TestHTTP_VerifyEmailConfirm_Idempotent(t *testing.T) {
	ci.Parallel(t)
	httpTest(t, nil, func(s *TestAgent) {
		ctx := context.Background()
		email := "founder@kelvinworks.example"

		req, _ := http.NewRequest("POST", "/verify-email", encodeReq(map[string]string{"email": email}))
		_, err := s.Server.VerifyEmailRequest(httptest.NewRecorder(), fromIP(req, "198.51.100.30"))
		must.NoError(t, err)

		v, err := s.Agent.Store().EmailVerificationByEmail(ctx, email)
		must.NoError(t, err)

		confirm := map[string]string{"email": email, "code": v.Code}
		for i := 0; i < 2; i++ {
			req, _ = http.NewRequest("POST", "/verify-email/confirm", encodeReq(confirm))
			_, err = s.Server.VerifyEmailConfirmRequest(httptest.NewRecorder(),
				fromIP(req, fmt.Sprintf("198.51.100.3%d", i+1)))
			must.NoError(t, err)
		}

		v, err = s.Agent.Store().EmailVerificationByEmail(ctx, email)
		must.NoError(t, err)
		must.True(t, v.Verified)
		must.NotNil(t, v.VerifiedAt)
	})
}
