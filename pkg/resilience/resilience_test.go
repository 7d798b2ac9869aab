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
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/a2akit/pkg/rpcerror"
)

func fastRetry(attempts int) *RetryHandler {
	r := NewRetryHandler(attempts)
	r.Unit = time.Millisecond
	return r
}

func TestRetryHandler_Wait(t *testing.T) {
	r := NewRetryHandler(3)
	assert.Equal(t, 1*time.Second, r.Wait(0))
	assert.Equal(t, 2*time.Second, r.Wait(1))
	assert.Equal(t, 4*time.Second, r.Wait(2))
	assert.Equal(t, 60*time.Second, r.Wait(10), "capped at MaxWait")
}

func TestRetryHandler_RetriesUntilSuccess(t *testing.T) {
	var calls atomic.Int32
	var waits []time.Duration
	r := fastRetry(3)
	r.OnRetry = func(_ error, d time.Duration) { waits = append(waits, d) }

	err := r.Execute(context.Background(), func(context.Context) error {
		if calls.Add(1) < 3 {
			return rpcerror.Internal(errors.New("flaky"))
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond}, waits)
}

func TestRetryHandler_ExhaustsAttempts(t *testing.T) {
	var calls atomic.Int32
	err := fastRetry(3).Execute(context.Background(), func(context.Context) error {
		calls.Add(1)
		return fmt.Errorf("read: %w", io.ErrUnexpectedEOF)
	})
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetryHandler_NonRetryableReturnsImmediately(t *testing.T) {
	var calls atomic.Int32
	bad := rpcerror.NewInvalidParams("missing text")
	err := fastRetry(5).Execute(context.Background(), func(context.Context) error {
		calls.Add(1)
		return bad
	})
	assert.ErrorIs(t, err, bad)
	assert.Equal(t, int32(1), calls.Load())
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"internal", rpcerror.Internal(errors.New("x")), true},
		{"unavailable", rpcerror.NewServiceUnavailable(""), true},
		{"task not found", rpcerror.NewTaskNotFound("t"), false},
		{"timeout", &TimeoutError{After: time.Second}, true},
		{"deadline", context.DeadlineExceeded, true},
		{"sdk invalid params", fmt.Errorf("bad: %w", a2a.ErrInvalidParams), false},
		{"conn refused", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), true},
		{"plain", errors.New("nope"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestTimeoutManager(t *testing.T) {
	tm := NewTimeoutManager(20 * time.Millisecond)

	err := tm.Execute(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "Operation timed out after 0.02 seconds", err.Error())
	assert.ErrorIs(t, err, rpcerror.ErrTimeout)
	assert.Equal(t, rpcerror.InternalError, rpcerror.CodeFor(err))

	err = tm.Execute(context.Background(), func(context.Context) error { return nil })
	assert.NoError(t, err)

	// A function ignoring its context is waited for, then reported as
	// timed out.
	var finished atomic.Bool
	err = tm.Execute(context.Background(), func(context.Context) error {
		time.Sleep(80 * time.Millisecond)
		finished.Store(true)
		return nil
	})
	assert.ErrorAs(t, err, &te)
	assert.True(t, finished.Load(), "Execute returned before fn")
}

func TestErrorHandler_RetryAfterTimeoutIsSequential(t *testing.T) {
	h := &ErrorHandler{Retry: fastRetry(2), Timeout: NewTimeoutManager(20 * time.Millisecond)}

	var running, overlapped, calls atomic.Int32
	err := h.Execute(context.Background(), func(context.Context) error {
		if running.Add(1) > 1 {
			overlapped.Store(1)
		}
		defer running.Add(-1)
		if calls.Add(1) == 1 {
			time.Sleep(60 * time.Millisecond)
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.Zero(t, overlapped.Load(), "attempts ran concurrently")
}

func TestTimeoutManager_ParentCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewTimeoutManager(time.Second).Execute(ctx, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.Canceled)
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestCircuitBreaker(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Unix(1000, 0)}
	cb := NewCircuitBreaker(2, 10*time.Second, 1)
	cb.now = clock.now

	var transitions []string
	cb.OnStateChange = func(from, to CircuitState) {
		transitions = append(transitions, from.String()+"->"+to.String())
	}

	boom := errors.New("boom")
	fail := func(context.Context) error { return boom }
	ok := func(context.Context) error { return nil }

	assert.ErrorIs(t, cb.Execute(ctx, fail), boom)
	assert.Equal(t, CircuitClosed, cb.State())
	assert.ErrorIs(t, cb.Execute(ctx, fail), boom)
	assert.Equal(t, CircuitOpen, cb.State())

	called := false
	err := cb.Execute(ctx, func(context.Context) error { called = true; return nil })
	assert.False(t, called)
	var rpcErr *rpcerror.Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, rpcerror.InternalError, rpcErr.Code)
	assert.Equal(t, "Circuit breaker is open. Service unavailable for 10s", err.Error())

	clock.advance(11 * time.Second)
	assert.Equal(t, CircuitHalfOpen, cb.State())

	// A failed trial call reopens the circuit.
	assert.ErrorIs(t, cb.Execute(ctx, fail), boom)
	assert.Equal(t, CircuitOpen, cb.State())

	clock.advance(11 * time.Second)
	require.NoError(t, cb.Execute(ctx, ok))
	assert.Equal(t, CircuitClosed, cb.State())
	assert.Zero(t, cb.Failures())

	assert.Equal(t, []string{
		"closed->open", "open->half-open", "half-open->open", "open->half-open", "half-open->closed",
	}, transitions)
}

func TestCircuitBreaker_TrialLimitReopens(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Unix(1000, 0)}
	cb := NewCircuitBreaker(1, 10*time.Second, 1)
	cb.now = clock.now

	boom := errors.New("boom")
	assert.ErrorIs(t, cb.Execute(ctx, func(context.Context) error { return boom }), boom)
	clock.advance(11 * time.Second)

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- cb.Execute(ctx, func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	called := false
	err := cb.Execute(ctx, func(context.Context) error { called = true; return nil })
	assert.False(t, called)
	assert.EqualError(t, err, "Circuit breaker is open (half-open test failed)")

	cb.mu.Lock()
	state := cb.state
	cb.mu.Unlock()
	assert.Equal(t, CircuitOpen, state)

	close(release)
	require.NoError(t, <-done)
}

func TestCircuitBreaker_SuccessResetsCount(t *testing.T) {
	ctx := context.Background()
	cb := NewCircuitBreaker(2, time.Minute, 1)
	boom := errors.New("boom")

	_ = cb.Execute(ctx, func(context.Context) error { return boom })
	_ = cb.Execute(ctx, func(context.Context) error { return nil })
	_ = cb.Execute(ctx, func(context.Context) error { return boom })
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestErrorHandler_ComposesEnabledLayers(t *testing.T) {
	ctx := context.Background()

	h := NewErrorHandler(Options{EnableRetry: true, EnableCircuitBreaker: true, MaxRetries: 2}, nil)
	require.Nil(t, h.Timeout)
	require.NotNil(t, h.Breaker)
	h.Retry.Unit = time.Millisecond

	var calls atomic.Int32
	err := h.Execute(ctx, func(context.Context) error {
		calls.Add(1)
		return rpcerror.Internal(errors.New("down"))
	})
	require.Error(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 1, h.Breaker.Failures(), "the breaker sees one failure per retried call")
}

func TestErrorHandler_TimeoutInsideRetry(t *testing.T) {
	h := NewErrorHandler(Options{EnableRetry: true, EnableTimeout: true, MaxRetries: 2, Timeout: 10 * time.Millisecond}, nil)
	h.Retry.Unit = time.Millisecond

	var calls atomic.Int32
	err := h.Execute(context.Background(), func(ctx context.Context) error {
		calls.Add(1)
		<-ctx.Done()
		return ctx.Err()
	})
	var te *TimeoutError
	assert.ErrorAs(t, err, &te)
	assert.Equal(t, int32(2), calls.Load())
}

func TestErrorHandler_Guard(t *testing.T) {
	ctx := context.Background()

	h := NewErrorHandler(Options{}, nil)
	resp, err := h.Guard(ctx, "r1", &rpcerror.Context{Agent: "echo"}, func(context.Context) error {
		return rpcerror.NewTaskNotFound("t")
	})
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, rpcerror.TaskNotFound, resp.Error.Code)
	assert.Equal(t, "r1", resp.ID)

	resp, err = h.Guard(ctx, "r2", nil, func(context.Context) error { return nil })
	assert.NoError(t, err)
	assert.Nil(t, resp)

	raising := NewErrorHandler(Options{RaiseErrors: true}, nil)
	boom := errors.New("boom")
	resp, err = raising.Guard(ctx, 1, nil, func(context.Context) error { return boom })
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, boom)
}

func TestDo(t *testing.T) {
	h := NewErrorHandler(DefaultOptions(), nil)
	v, err := Do(context.Background(), h, func(context.Context) (string, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", v)

	v, err = Do(context.Background(), h, func(context.Context) (string, error) {
		return "ignored", rpcerror.NewInvalidParams("bad")
	})
	assert.Error(t, err)
	assert.Empty(t, v)
}

func TestOptionsFromEnv(t *testing.T) {
	t.Setenv("A2A_ENABLE_RETRY", "false")
	t.Setenv("A2A_ENABLE_TIMEOUT", "")
	t.Setenv("A2A_ENABLE_CIRCUIT_BREAKER", "true")
	t.Setenv("A2A_MAX_RETRIES", "5")
	t.Setenv("AGENT_CHUNK_TIMEOUT", "30")
	t.Setenv("A2A_RAISE_ERRORS", "TRUE")

	o := OptionsFromEnv()
	assert.False(t, o.EnableRetry)
	assert.True(t, o.EnableTimeout)
	assert.True(t, o.EnableCircuitBreaker)
	assert.Equal(t, 5, o.MaxRetries)
	assert.Equal(t, 30*time.Second, o.Timeout)
	assert.True(t, o.RaiseErrors)
}
