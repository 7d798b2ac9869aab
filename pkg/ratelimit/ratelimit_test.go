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
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/a2akit/pkg/auth"
	"github.com/kadirpekel/a2akit/pkg/rpcerror"
)

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newLimiter(t *testing.T, rules ...Rule) (*Limiter, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	l, err := New(Config{Enabled: true, Limits: rules}, WithClock(clock.Now))
	require.NoError(t, err)
	return l, clock
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "disabled", cfg: Config{}},
		{name: "valid", cfg: Config{Enabled: true, Limits: []Rule{{Window: WindowMinute, Limit: 10}}}},
		{name: "no limits", cfg: Config{Enabled: true}, wantErr: "at least one limit"},
		{name: "bad window", cfg: Config{Enabled: true, Limits: []Rule{{Window: "week", Limit: 1}}}, wantErr: "invalid window"},
		{name: "zero limit", cfg: Config{Enabled: true, Limits: []Rule{{Window: WindowHour}}}, wantErr: "must be positive"},
		{
			name:    "duplicate window",
			cfg:     Config{Enabled: true, Limits: []Rule{{Window: WindowHour, Limit: 1}, {Window: WindowHour, Limit: 2}}},
			wantErr: "duplicate window",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestNewFromConfig_Disabled(t *testing.T) {
	l, err := NewFromConfig(Config{})
	require.NoError(t, err)
	assert.Nil(t, l)

	_, err = NewFromConfig(Config{Enabled: true})
	assert.Error(t, err)
}

func TestLimiter_Allow(t *testing.T) {
	l, clock := newLimiter(t, Rule{Window: WindowMinute, Limit: 2}, Rule{Window: WindowHour, Limit: 3})
	ctx := context.Background()

	res, err := l.Allow(ctx, "a")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, int64(1), res.Usages[0].Remaining)

	res, err = l.Allow(ctx, "a")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = l.Allow(ctx, "a")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Contains(t, res.Reason, "per minute")
	assert.Equal(t, time.Minute, res.RetryAfter)
	assert.Equal(t, int64(2), res.Usages[0].Current, "rejected requests are not counted")

	other, err := l.Allow(ctx, "b")
	require.NoError(t, err)
	assert.True(t, other.Allowed, "keys are independent")

	clock.Advance(time.Minute)
	res, err = l.Allow(ctx, "a")
	require.NoError(t, err)
	assert.True(t, res.Allowed, "minute window restarted")

	clock.Advance(time.Minute)
	res, err = l.Allow(ctx, "a")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Contains(t, res.Reason, "per hour")
	assert.Equal(t, 58*time.Minute, res.RetryAfter)

	_, err = l.Allow(ctx, "")
	assert.Error(t, err)
}

func TestMemoryStore_DeleteExpired(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	_, _, err := s.Increment(ctx, "a", WindowSecond, 1, now)
	require.NoError(t, err)
	_, _, err = s.Increment(ctx, "a", WindowDay, 1, now)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Len())

	n, err := s.DeleteExpired(ctx, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, s.Len())

	count, _, err := s.Get(ctx, "a", WindowSecond, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Zero(t, count)

	require.NoError(t, s.Close())
	assert.Zero(t, s.Len())
}

func TestLimiter_Run(t *testing.T) {
	store := NewMemoryStore()
	l, err := New(Config{Enabled: true, Limits: []Rule{{Window: WindowSecond, Limit: 5}}, CleanupInterval: 10 * time.Millisecond}, WithStore(store))
	require.NoError(t, err)

	_, err = l.Allow(context.Background(), "a")
	require.NoError(t, err)
	require.Equal(t, 1, store.Len())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	assert.Eventually(t, func() bool { return store.Len() == 0 }, 3*time.Second, 20*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}

func TestCallerKey(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", nil)
	r.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "ip:10.0.0.1", CallerKey(r))

	r = r.WithContext(auth.ContextWithClaims(r.Context(), &auth.Claims{Subject: "alice"}))
	assert.Equal(t, "sub:alice", CallerKey(r))
}

func TestMiddleware(t *testing.T) {
	l, _ := newLimiter(t, Rule{Window: WindowMinute, Limit: 1})
	handler := Middleware(l, nil, nil, "/health")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(path string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodPost, path, nil)
		r.RemoteAddr = "10.0.0.2:1234"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		return w
	}

	w := do("/")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	w = do("/")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	var env rpcerror.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, rpcerror.InternalError, env.Error.Code)
	assert.Contains(t, env.Error.Message, "per minute")
	assert.EqualValues(t, 60, env.Error.Data["retry_after_seconds"])

	assert.Equal(t, http.StatusOK, do("/health").Code, "skipped paths are not limited")
}
