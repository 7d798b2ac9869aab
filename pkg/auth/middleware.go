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
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/kadirpekel/a2akit/pkg/rpcerror"
)

// BearerScheme is advertised in WWW-Authenticate and the error data.
const BearerScheme = "Bearer"

// Middleware rejects requests without a valid bearer token and stores
// the claims of accepted ones in the request context. Requests whose
// path is in skip pass through untouched.
func Middleware(v TokenValidator, logger *slog.Logger, skip ...string) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if slices.Contains(skip, r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get("Authorization")
			if header == "" {
				writeAuthError(w, http.StatusUnauthorized, "Missing Authorization header")
				return
			}
			token, ok := strings.CutPrefix(header, BearerScheme+" ")
			if !ok || strings.TrimSpace(token) == "" {
				writeAuthError(w, http.StatusUnauthorized, "Invalid Authorization format, expected: Bearer <token>")
				return
			}

			claims, err := v.ValidateToken(r.Context(), strings.TrimSpace(token))
			if err != nil {
				logger.Warn("Rejected bearer token", "path", r.URL.Path, "error", err)
				msg := "Invalid token"
				if errors.Is(err, ErrTokenExpired) {
					msg = "Token expired"
				}
				writeAuthError(w, http.StatusUnauthorized, msg)
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithClaims(r.Context(), claims)))
		})
	}
}

// RequireRole admits only requests whose claims carry one of roles. It
// must run after Middleware.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			switch {
			case claims == nil:
				writeAuthError(w, http.StatusUnauthorized, "")
			case !claims.HasAnyRole(roles...):
				writeAuthError(w, http.StatusForbidden, "Forbidden: insufficient permissions")
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

func writeAuthError(w http.ResponseWriter, status int, msg string) {
	env := rpcerror.Envelope(rpcerror.NewAuthentication(msg, BearerScheme), nil, nil)
	w.Header().Set("Content-Type", "application/json")
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", BearerScheme)
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}
