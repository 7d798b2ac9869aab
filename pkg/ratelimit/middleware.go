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

package ratelimit

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"slices"
	"strconv"

	"github.com/kadirpekel/a2akit/pkg/auth"
	"github.com/kadirpekel/a2akit/pkg/rpcerror"
)

// KeyFunc names the caller of a request. An empty key skips limiting.
type KeyFunc func(r *http.Request) string

// CallerKey uses the authenticated subject, or the client address when
// the request carries no claims.
func CallerKey(r *http.Request) string {
	if claims := auth.ClaimsFromContext(r.Context()); claims != nil && claims.Subject != "" {
		return "sub:" + claims.Subject
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

// Middleware rejects requests over the limit with 429. Paths in skip are
// not counted. Store failures let the request through.
func Middleware(l *Limiter, key KeyFunc, logger *slog.Logger, skip ...string) func(http.Handler) http.Handler {
	if key == nil {
		key = CallerKey
	}
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions || slices.Contains(skip, r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			k := key(r)
			if k == "" {
				next.ServeHTTP(w, r)
				return
			}

			res, err := l.Allow(r.Context(), k)
			if err != nil {
				logger.Error("Rate limit check failed", "key", k, "error", err)
				next.ServeHTTP(w, r)
				return
			}
			setHeaders(w, res)
			if !res.Allowed {
				logger.Warn("Rate limited", "key", k, "reason", res.Reason)
				writeLimited(w, res)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func setHeaders(w http.ResponseWriter, res *Result) {
	u := res.tightest()
	if u == nil {
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(u.Limit, 10))
	w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(u.Remaining, 10))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(u.ResetsAt.Unix(), 10))
}

func writeLimited(w http.ResponseWriter, res *Result) {
	retry := int64(math.Ceil(res.RetryAfter.Seconds()))
	cause := rpcerror.NewServiceUnavailable(res.Reason).WithData(map[string]any{
		"retry_after_seconds": retry,
	})
	cause.Cause = fmt.Errorf("%w: %s", ErrExceeded, res.Reason)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", strconv.FormatInt(retry, 10))
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(rpcerror.Envelope(cause, nil, nil))
}
