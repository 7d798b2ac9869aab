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
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrExceeded is wrapped by errors for rejected requests.
var ErrExceeded = errors.New("rate limit exceeded")

// Limiter applies the configured rules to caller keys.
type Limiter struct {
	cfg    Config
	store  Store
	logger *slog.Logger
	now    func() time.Time

	// mu makes the check and the increment of Allow atomic.
	mu sync.Mutex
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithStore replaces the default MemoryStore.
func WithStore(s Store) Option {
	return func(l *Limiter) {
		if s != nil {
			l.store = s
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// New creates a Limiter for cfg.
func New(cfg Config, opts ...Option) (*Limiter, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rate limit config: %w", err)
	}
	l := &Limiter{cfg: cfg, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	if l.store == nil {
		l.store = NewMemoryStore()
	}
	return l, nil
}

// NewFromConfig returns nil when rate limiting is disabled.
func NewFromConfig(cfg Config, opts ...Option) (*Limiter, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	return New(cfg, opts...)
}

// Allow counts one request for key when every rule has room, and reports
// the usage either way. Rejected requests are not counted.
func (l *Limiter) Allow(ctx context.Context, key string) (*Result, error) {
	if key == "" {
		return nil, errors.New("rate limit key is required")
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	res := &Result{Allowed: true, Usages: make([]Usage, 0, len(l.cfg.Limits))}
	for _, r := range l.cfg.Limits {
		current, ends, err := l.store.Get(ctx, key, r.Window, now)
		if err != nil {
			return nil, fmt.Errorf("read %s counter: %w", r.Window, err)
		}
		if current >= r.Limit {
			res.Allowed = false
			if res.Reason == "" {
				res.Reason = fmt.Sprintf("%d requests per %s exceeded", r.Limit, r.Window)
			}
			if wait := ends.Sub(now); wait > res.RetryAfter {
				res.RetryAfter = wait
			}
		}
		res.Usages = append(res.Usages, Usage{Window: r.Window, Current: current, Limit: r.Limit, ResetsAt: ends})
	}
	if !res.Allowed {
		for i := range res.Usages {
			res.Usages[i].Remaining = max(res.Usages[i].Limit-res.Usages[i].Current, 0)
		}
		return res, nil
	}

	for i, r := range l.cfg.Limits {
		current, ends, err := l.store.Increment(ctx, key, r.Window, 1, now)
		if err != nil {
			return nil, fmt.Errorf("increment %s counter: %w", r.Window, err)
		}
		res.Usages[i].Current = current
		res.Usages[i].ResetsAt = ends
		res.Usages[i].Remaining = max(r.Limit-current, 0)
	}
	return res, nil
}

// Run drops expired counters every cleanup interval until ctx is done.
func (l *Limiter) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := l.store.DeleteExpired(ctx, l.now())
			if err != nil {
				l.logger.Warn("Rate limit cleanup failed", "error", err)
				continue
			}
			if n > 0 {
				l.logger.Debug("Dropped expired rate limit windows", "count", n)
			}
		}
	}
}

func (l *Limiter) Close() error {
	return l.store.Close()
}
