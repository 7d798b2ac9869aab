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

package resilience

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kadirpekel/a2akit/pkg/rpcerror"
)

// Options selects the layers of an ErrorHandler.
type Options struct {
	EnableRetry          bool
	EnableTimeout        bool
	EnableCircuitBreaker bool
	MaxRetries           int
	Timeout              time.Duration
	// RaiseErrors makes Guard return failures as errors instead of
	// converting them to JSON-RPC envelopes.
	RaiseErrors bool
}

// DefaultOptions enables retry and timeout, leaves the breaker off.
func DefaultOptions() Options {
	return Options{
		EnableRetry:   true,
		EnableTimeout: true,
		MaxRetries:    DefaultMaxRetries,
		Timeout:       DefaultTimeout,
	}
}

// OptionsFromEnv overlays the A2A_* and AGENT_CHUNK_TIMEOUT variables on
// DefaultOptions.
func OptionsFromEnv() Options {
	o := DefaultOptions()
	o.EnableRetry = envBool("A2A_ENABLE_RETRY", o.EnableRetry)
	o.EnableTimeout = envBool("A2A_ENABLE_TIMEOUT", o.EnableTimeout)
	o.EnableCircuitBreaker = envBool("A2A_ENABLE_CIRCUIT_BREAKER", o.EnableCircuitBreaker)
	o.RaiseErrors = envBool("A2A_RAISE_ERRORS", o.RaiseErrors)
	if v, err := strconv.Atoi(strings.TrimSpace(os.Getenv("A2A_MAX_RETRIES"))); err == nil && v > 0 {
		o.MaxRetries = v
	}
	if v, err := strconv.ParseFloat(strings.TrimSpace(os.Getenv("AGENT_CHUNK_TIMEOUT")), 64); err == nil && v > 0 {
		o.Timeout = time.Duration(v * float64(time.Second))
	}
	return o
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
}

// ErrorHandler composes circuit breaker, retry and timeout around an
// operation, in that order from the outside in. Disabled layers are
// skipped.
type ErrorHandler struct {
	Retry   *RetryHandler
	Timeout *TimeoutManager
	Breaker *CircuitBreaker

	raiseErrors bool
	logger      *slog.Logger
}

// NewErrorHandler builds the layers selected by opts.
func NewErrorHandler(opts Options, logger *slog.Logger) *ErrorHandler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &ErrorHandler{raiseErrors: opts.RaiseErrors, logger: logger}
	if opts.EnableRetry {
		h.Retry = NewRetryHandler(opts.MaxRetries)
		h.Retry.Logger = logger
	}
	if opts.EnableTimeout {
		h.Timeout = NewTimeoutManager(opts.Timeout)
	}
	if opts.EnableCircuitBreaker {
		h.Breaker = NewCircuitBreaker(0, 0, 0)
		h.Breaker.Logger = logger
	}
	return h
}

// Execute runs fn through the enabled layers and returns its error.
func (h *ErrorHandler) Execute(ctx context.Context, fn func(context.Context) error) error {
	call := fn

	if h.Timeout != nil {
		inner := call
		call = func(ctx context.Context) error {
			return h.Timeout.Execute(ctx, inner)
		}
	}
	if h.Retry != nil {
		inner := call
		call = func(ctx context.Context) error {
			return h.Retry.Execute(ctx, inner)
		}
	}
	if h.Breaker != nil {
		inner := call
		call = func(ctx context.Context) error {
			return h.Breaker.Execute(ctx, inner)
		}
	}

	return call(ctx)
}

// Guard runs fn like Execute. On failure it logs the error and, unless
// RaiseErrors is set, returns the JSON-RPC envelope describing it with a
// nil error.
func (h *ErrorHandler) Guard(ctx context.Context, requestID any, ectx *rpcerror.Context, fn func(context.Context) error) (*rpcerror.Response, error) {
	err := h.Execute(ctx, fn)
	if err == nil {
		return nil, nil
	}
	return h.Handle(err, requestID, ectx)
}

// Handle converts err according to the RaiseErrors setting.
func (h *ErrorHandler) Handle(err error, requestID any, ectx *rpcerror.Context) (*rpcerror.Response, error) {
	var attrs []any
	if ectx != nil {
		attrs = rpcerror.LogAttrs(err, *ectx)
	} else {
		attrs = []any{"error", err}
	}
	h.logger.Error("Error in protected execution", attrs...)

	if h.raiseErrors {
		return nil, err
	}
	resp := rpcerror.Envelope(err, requestID, ectx)
	return &resp, nil
}

// Do runs fn through h and returns its value.
func Do[T any](ctx context.Context, h *ErrorHandler, fn func(context.Context) (T, error)) (T, error) {
	var (
		mu  sync.Mutex
		out T
	)
	err := h.Execute(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		mu.Lock()
		out = v
		mu.Unlock()
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	mu.Lock()
	defer mu.Unlock()
	return out, nil
}
