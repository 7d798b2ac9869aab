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
	"strconv"
	"time"

	"github.com/kadirpekel/a2akit/pkg/rpcerror"
)

// DefaultTimeout bounds a single protected operation.
const DefaultTimeout = 120 * time.Second

// TimeoutError is returned when an operation outlives its budget.
type TimeoutError struct {
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("Operation timed out after %s seconds", strconv.FormatFloat(e.After.Seconds(), 'f', -1, 64))
}

func (e *TimeoutError) Unwrap() error {
	return rpcerror.ErrTimeout
}

// TimeoutManager runs operations under a deadline.
type TimeoutManager struct {
	Timeout time.Duration
}

func NewTimeoutManager(timeout time.Duration) *TimeoutManager {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &TimeoutManager{Timeout: timeout}
}

// Execute runs fn with a derived deadline. If the deadline passes first,
// fn sees its context cancelled and Execute returns a *TimeoutError once
// fn has returned.
func (t *TimeoutManager) Execute(ctx context.Context, fn func(context.Context) error) error {
	return t.ExecuteWithTimeout(ctx, t.Timeout, fn)
}

// ExecuteWithTimeout is Execute with an explicit budget.
func (t *TimeoutManager) ExecuteWithTimeout(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn(runCtx)
	}()

	select {
	case err := <-done:
		if err != nil && runCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return &TimeoutError{After: timeout}
		}
		return err
	case <-runCtx.Done():
		// fn may still hold state shared with the caller or a retry.
		<-done
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &TimeoutError{After: timeout}
	}
}
