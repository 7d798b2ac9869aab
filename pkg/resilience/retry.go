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

// Package resilience provides retry, timeout and circuit breaker wrappers
// and an ErrorHandler that composes them around agent work.
package resilience

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"net"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/kadirpekel/a2akit/pkg/rpcerror"
)

// Retry defaults.
const (
	DefaultMaxRetries    = 3
	DefaultBackoffFactor = 2.0
	DefaultMaxWait       = 60 * time.Second
)

// RetryHandler re-runs failed operations with exponential backoff.
type RetryHandler struct {
	// MaxRetries is the total number of attempts.
	MaxRetries int
	// BackoffFactor is the base of the exponential wait.
	BackoffFactor float64
	// MaxWait caps a single wait.
	MaxWait time.Duration
	// Unit scales the wait; the wait after attempt n is Unit*factor^n.
	// Zero means one second.
	Unit time.Duration
	// OnRetry, when set, is called before each wait.
	OnRetry func(err error, wait time.Duration)

	Logger *slog.Logger
}

// NewRetryHandler returns a handler with default backoff settings.
func NewRetryHandler(maxRetries int) *RetryHandler {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &RetryHandler{
		MaxRetries:    maxRetries,
		BackoffFactor: DefaultBackoffFactor,
		MaxWait:       DefaultMaxWait,
	}
}

// exponentialWait yields min(unit*factor^n, max) for n = 0, 1, 2...
type exponentialWait struct {
	unit    time.Duration
	factor  float64
	max     time.Duration
	attempt int
}

func (b *exponentialWait) NextBackOff() time.Duration {
	d := time.Duration(math.Pow(b.factor, float64(b.attempt)) * float64(b.unit))
	b.attempt++
	if d > b.max || d < 0 {
		return b.max
	}
	return d
}

func (b *exponentialWait) Reset() {
	b.attempt = 0
}

// Wait returns the delay applied after the given zero-based attempt.
func (r *RetryHandler) Wait(attempt int) time.Duration {
	b := r.backOff()
	b.attempt = attempt
	return b.NextBackOff()
}

func (r *RetryHandler) backOff() *exponentialWait {
	unit := r.Unit
	if unit <= 0 {
		unit = time.Second
	}
	factor := r.BackoffFactor
	if factor <= 0 {
		factor = DefaultBackoffFactor
	}
	maxWait := r.MaxWait
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}
	return &exponentialWait{unit: unit, factor: factor, max: maxWait}
}

// Execute runs fn until it succeeds, returns a non-retryable error, or
// the attempts are exhausted. The last error is returned.
func (r *RetryHandler) Execute(ctx context.Context, fn func(context.Context) error) error {
	attempts := r.MaxRetries
	if attempts <= 0 {
		attempts = DefaultMaxRetries
	}
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}

	attempt := 0
	op := func() (struct{}, error) {
		attempt++
		err := fn(ctx)
		if err == nil {
			return struct{}{}, nil
		}
		if !IsRetryable(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		if attempt < attempts {
			logger.Warn("Attempt failed, retrying", "attempt", attempt, "max_attempts", attempts, "error", err)
		} else {
			logger.Error("All retry attempts failed", "attempts", attempts, "error", err)
		}
		return struct{}{}, err
	}

	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(r.backOff()),
		backoff.WithMaxTries(uint(attempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, wait time.Duration) {
			if r.OnRetry != nil {
				r.OnRetry(err, wait)
			}
		}),
	)
	return err
}

// IsRetryable reports whether err is worth another attempt: internal
// errors, timeouts and transport failures.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		return false
	}

	var rpcErr *rpcerror.Error
	if errors.As(err, &rpcErr) {
		return rpcErr.Code == rpcerror.InternalError
	}

	if rpcerror.IsTimeout(err) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}
