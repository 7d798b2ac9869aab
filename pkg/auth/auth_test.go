// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/a2akit/pkg/rpcerror"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "disabled", cfg: Config{}},
		{name: "valid", cfg: Config{Enabled: true, JWKSURL: "https://auth.example.com/jwks.json"}},
		{name: "missing url", cfg: Config{Enabled: true}, wantErr: true},
		{name: "relative url", cfg: Config{Enabled: true, JWKSURL: "/jwks.json"}, wantErr: true},
		{name: "negative refresh", cfg: Config{Enabled: true, JWKSURL: "http://idp/jwks", RefreshInterval: -time.Second}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	var cfg Config
	cfg.SetDefaults()
	assert.Equal(t, DefaultRefreshInterval, cfg.RefreshInterval)
}

func TestNewFromConfig(t *testing.T) {
	v, err := NewFromConfig(context.Background(), Config{})
	require.NoError(t, err)
	assert.Nil(t, v)

	_, err = NewFromConfig(context.Background(), Config{Enabled: true})
	assert.Error(t, err)
}

func TestNewJWTValidator_FetchFails(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := NewJWTValidator(context.Background(), Config{Enabled: true, JWKSURL: srv.URL + "/jwks.json"})
	assert.Error(t, err)
}

func TestJWTValidator_ValidateToken(t *testing.T) {
	f := newFixture(t)

	claims, err := f.validator.ValidateToken(context.Background(), f.sign(t, map[string]any{
		"email":     "dev@example.com",
		"role":      "admin",
		"tenant_id": "acme",
		"team":      "core",
	}))
	require.NoError(t, err)
	assert.Equal(t, "user-123", claims.Subject)
	assert.Equal(t, "dev@example.com", claims.Email)
	assert.Equal(t, "admin", claims.Role)
	assert.Equal(t, "acme", claims.TenantID)
	assert.Equal(t, "core", claims.StringClaim("team"))
	assert.NotContains(t, claims.Custom, "iss")
	assert.NotContains(t, claims.Custom, "role")
}

func TestJWTValidator_Rejects(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name  string
		token func() string
		want  error
	}{
		{name: "garbage", token: func() string { return "not-a-jwt" }, want: ErrInvalidToken},
		{
			name: "expired",
			token: func() string {
				return f.sign(t, map[string]any{
					jwt.IssuedAtKey:   time.Now().Add(-2 * time.Hour),
					jwt.ExpirationKey: time.Now().Add(-time.Hour),
				})
			},
			want: ErrTokenExpired,
		},
		{
			name:  "wrong issuer",
			token: func() string { return f.sign(t, map[string]any{jwt.IssuerKey: "https://evil.test"}) },
			want:  ErrInvalidToken,
		},
		{
			name:  "wrong audience",
			token: func() string { return f.sign(t, map[string]any{jwt.AudienceKey: "other"}) },
			want:  ErrInvalidToken,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.validator.ValidateToken(context.Background(), tt.token())
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) rpcerror.Response {
	t.Helper()
	var env rpcerror.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestMiddleware(t *testing.T) {
	f := newFixture(t)
	handler := Middleware(f.validator, nil, "/health")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := ClaimsFromContext(r.Context())
		if claims == nil {
			_, _ = w.Write([]byte("anonymous"))
			return
		}
		_, _ = w.Write([]byte(claims.Subject))
	}))

	tests := []struct {
		name       string
		path       string
		header     string
		wantStatus int
		wantBody   string
		wantMsg    string
	}{
		{name: "valid", path: "/", header: "Bearer " + f.sign(t, nil), wantStatus: http.StatusOK, wantBody: "user-123"},
		{name: "skipped path", path: "/health", wantStatus: http.StatusOK, wantBody: "anonymous"},
		{name: "missing header", path: "/", wantStatus: http.StatusUnauthorized, wantMsg: "Missing Authorization header"},
		{name: "wrong scheme", path: "/", header: "Basic Zm9vOmJhcg==", wantStatus: http.StatusUnauthorized, wantMsg: "Invalid Authorization format, expected: Bearer <token>"},
		{name: "bad token", path: "/", header: "Bearer nope", wantStatus: http.StatusUnauthorized, wantMsg: "Invalid token"},
		{
			name: "expired token",
			path: "/",
			header: "Bearer " + f.sign(t, map[string]any{
				jwt.IssuedAtKey:   time.Now().Add(-2 * time.Hour),
				jwt.ExpirationKey: time.Now().Add(-time.Hour),
			}),
			wantStatus: http.StatusUnauthorized,
			wantMsg:    "Token expired",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, tt.wantBody, rec.Body.String())
				return
			}
			assert.Equal(t, BearerScheme, rec.Header().Get("WWW-Authenticate"))
			env := decodeEnvelope(t, rec)
			assert.Equal(t, "2.0", env.JSONRPC)
			assert.Equal(t, rpcerror.AuthenticationRequired, env.Error.Code)
			assert.Equal(t, tt.wantMsg, env.Error.Message)
			assert.Equal(t, BearerScheme, env.Error.Data["auth_scheme"])
		})
	}
}

func TestRequireRole(t *testing.T) {
	f := newFixture(t)
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	handler := Middleware(f.validator, nil)(RequireRole("admin", "operator")(ok))

	serve := func(header string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", header)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusNoContent, serve("Bearer "+f.sign(t, map[string]any{"role": "operator"})).Code)

	rec := serve("Bearer " + f.sign(t, map[string]any{"role": "viewer"}))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Forbidden: insufficient permissions", decodeEnvelope(t, rec).Error.Message)

	bare := httptest.NewRecorder()
	RequireRole("admin")(ok).ServeHTTP(bare, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, bare.Code)
	assert.Equal(t, "Authentication required", decodeEnvelope(t, bare).Error.Message)
}

func TestClaimsHelpers(t *testing.T) {
	var nilClaims *Claims
	assert.False(t, nilClaims.HasAnyRole("admin"))
	assert.Empty(t, nilClaims.StringClaim("x"))
	assert.Nil(t, ClaimsFromContext(context.Background()))

	c := &Claims{Subject: "s", Role: "admin", Custom: map[string]any{"n": 1}}
	assert.True(t, c.HasAnyRole("viewer", "admin"))
	assert.Empty(t, c.StringClaim("n"))
	assert.Same(t, c, ClaimsFromContext(ContextWithClaims(context.Background(), c)))
}
