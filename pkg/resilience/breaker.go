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
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/kadirpekel/a2akit/pkg/rpcerror"
)

// Circuit breaker defaults.
const (
	DefaultFailureThreshold = 5
	DefaultRecoveryTimeout  = 60 * time.Second
	DefaultHalfOpenRequests = 1
)

// CircuitState is the breaker position.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker stops calling a failing dependency for a cooldown period.
type CircuitBreaker struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
	HalfOpenRequests int

	// OnStateChange, when set, is called after every state change.
	OnStateChange func(from, to CircuitState)
	Logger        *slog.Logger

	now func() time.Time

	mu          sync.Mutex
	state       CircuitState
	failures    int
	successes   int
	lastFailure time.Time
	trials      int
}

// NewCircuitBreaker returns a closed breaker. Non-positive arguments
// select the defaults.
func NewCircuitBreaker(threshold int, recovery time.Duration, halfOpen int) *CircuitBreaker {
	if threshold <= 0 {
		threshold = DefaultFailureThreshold
	}
	if recovery <= 0 {
		recovery = DefaultRecoveryTimeout
	}
	if halfOpen <= 0 {
		halfOpen = DefaultHalfOpenRequests
	}
	return &CircuitBreaker{
		FailureThreshold: threshold,
		RecoveryTimeout:  recovery,
		HalfOpenRequests: halfOpen,
		now:              time.Now,
	}
}

// State returns the current position, accounting for an elapsed cooldown.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.maybeHalfOpen()
	return cb.state
}

// Failures returns the consecutive failure count.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

func (cb *CircuitBreaker) clock() time.Time {
	if cb.now != nil {
		return cb.now()
	}
	return time.Now()
}

func (cb *CircuitBreaker) logger() *slog.Logger {
	if cb.Logger != nil {
		return cb.Logger
	}
	return slog.Default()
}

// setState must be called with cb.mu held.
func (cb *CircuitBreaker) setState(to CircuitState) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	if cb.OnStateChange != nil {
		cb.OnStateChange(from, to)
	}
}

// maybeHalfOpen must be called with cb.mu held.
func (cb *CircuitBreaker) maybeHalfOpen() {
	if cb.state == CircuitOpen && cb.clock().Sub(cb.lastFailure) > cb.RecoveryTimeout {
		cb.setState(CircuitHalfOpen)
		cb.trials = 0
		cb.logger().Info("Circuit breaker entering half-open state")
	}
}

// admit decides whether a call may proceed.
func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.maybeHalfOpen()

	switch cb.state {
	case CircuitOpen:
		remaining := cb.RecoveryTimeout - cb.clock().Sub(cb.lastFailure)
		return rpcerror.NewServiceUnavailable(fmt.Sprintf(
			"Circuit breaker is open. Service unavailable for %.0fs", math.Max(0, remaining.Seconds())))
	case CircuitHalfOpen:
		if cb.trials >= cb.HalfOpenRequests {
			cb.setState(CircuitOpen)
			return rpcerror.NewServiceUnavailable("Circuit breaker is open (half-open test failed)")
		}
		cb.trials++
	}
	return nil
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		cb.successes++
		if cb.state == CircuitHalfOpen {
			cb.logger().Info("Circuit breaker closing after successful half-open test")
			cb.setState(CircuitClosed)
			cb.trials = 0
		}
		cb.failures = 0
		return
	}

	cb.failures++
	cb.lastFailure = cb.clock()

	switch {
	case cb.state == CircuitHalfOpen:
		cb.logger().Warn("Circuit breaker half-open test failed", "error", err)
		cb.setState(CircuitOpen)
		cb.trials = 0
	case cb.failures >= cb.FailureThreshold:
		cb.logger().Error("Circuit breaker opening", "failures", cb.failures)
		cb.setState(CircuitOpen)
	}
}

// Execute runs fn unless the circuit is open.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := cb.admit(); err != nil {
		return err
	}
	err := fn(ctx)
	cb.record(err)
	return err
}
