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

// Package auth protects the agent endpoints with JWT bearer tokens.
//
// Tokens are verified against a JWKS document fetched from the identity
// provider and refreshed in the background. Rejected requests receive a
// JSON-RPC error envelope (code -32005) with HTTP 401, so A2A clients see
// an AuthenticationRequired error rather than a bare status.
//
//	server:
//	  auth:
//	    enabled: true
//	    jwks_url: "https://auth.example.com/.well-known/jwks.json"
//	    issuer: "https://auth.example.com"
//	    audience: "a2a-agents"
package auth

import (
	"context"
	"errors"
	"slices"
)

var (
	ErrUnauthorized = errors.New("unauthorized: authentication required")
	ErrForbidden    = errors.New("forbidden: insufficient permissions")
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

type contextKey struct{}

// Claims are the identity fields read from a validated token.
type Claims struct {
	Subject  string `json:"sub"`
	Email    string `json:"email,omitempty"`
	Role     string `json:"role,omitempty"`
	TenantID string `json:"tenant_id,omitempty"`

	// Custom holds every claim not mapped above, minus the registered
	// time and issuer claims.
	Custom map[string]any `json:"-"`
}

// StringClaim returns a custom claim when it is a string.
func (c *Claims) StringClaim(key string) string {
	if c == nil || c.Custom == nil {
		return ""
	}
	s, _ := c.Custom[key].(string)
	return s
}

// HasAnyRole reports whether the role claim is one of roles.
func (c *Claims) HasAnyRole(roles ...string) bool {
	return c != nil && slices.Contains(roles, c.Role)
}

// ClaimsFromContext returns the claims stored by the middleware, or nil.
func ClaimsFromContext(ctx context.Context) *Claims {
	claims, _ := ctx.Value(contextKey{}).(*Claims)
	return claims
}

// ContextWithClaims stores claims in ctx.
func ContextWithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, contextKey{}, claims)
}
