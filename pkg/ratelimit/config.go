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
	"errors"
	"fmt"
	"time"
)

// Window is a fixed rate limiting window.
type Window string

const (
	WindowSecond Window = "second"
	WindowMinute Window = "minute"
	WindowHour   Window = "hour"
	WindowDay    Window = "day"
)

// Duration returns the window length. Unknown windows are an hour.
func (w Window) Duration() time.Duration {
	switch w {
	case WindowSecond:
		return time.Second
	case WindowMinute:
		return time.Minute
	case WindowDay:
		return 24 * time.Hour
	default:
		return time.Hour
	}
}

func (w Window) valid() bool {
	switch w {
	case WindowSecond, WindowMinute, WindowHour, WindowDay:
		return true
	}
	return false
}

// Rule allows Limit requests per Window.
type Rule struct {
	Window Window `yaml:"window" mapstructure:"window" json:"window" jsonschema:"enum=second,enum=minute,enum=hour,enum=day"`
	Limit  int64  `yaml:"limit" mapstructure:"limit" json:"limit" jsonschema:"minimum=1"`
}

// DefaultCleanupInterval is how often expired windows are dropped.
const DefaultCleanupInterval = time.Minute

// Config configures request rate limiting.
type Config struct {
	// Default: false
	Enabled bool   `yaml:"enabled,omitempty" mapstructure:"enabled" json:"enabled,omitempty"`
	Limits  []Rule `yaml:"limits,omitempty" mapstructure:"limits" json:"limits,omitempty"`

	// Default: 1m
	CleanupInterval time.Duration `yaml:"cleanup_interval,omitempty" mapstructure:"cleanup_interval" json:"cleanup_interval,omitempty"`
}

// SetDefaults fills the cleanup interval.
func (c *Config) SetDefaults() {
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = DefaultCleanupInterval
	}
}

// Validate checks the rules of an enabled config.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if len(c.Limits) == 0 {
		return errors.New("at least one limit is required when enabled")
	}
	seen := make(map[Window]bool, len(c.Limits))
	for i, r := range c.Limits {
		if !r.Window.valid() {
			return fmt.Errorf("limits[%d]: invalid window %q", i, r.Window)
		}
		if r.Limit <= 0 {
			return fmt.Errorf("limits[%d]: limit must be positive", i)
		}
		if seen[r.Window] {
			return fmt.Errorf("limits[%d]: duplicate window %q", i, r.Window)
		}
		seen[r.Window] = true
	}
	return nil
}

// Usage is the state of one rule for one caller.
type Usage struct {
	Window    Window    `json:"window"`
	Current   int64     `json:"current"`
	Limit     int64     `json:"limit"`
	Remaining int64     `json:"remaining"`
	ResetsAt  time.Time `json:"resets_at"`
}

// Result is the outcome of Allow.
type Result struct {
	Allowed bool
	// Reason names the first exceeded rule.
	Reason     string
	Usages     []Usage
	RetryAfter time.Duration
}

// tightest is the usage with the fewest remaining requests.
func (r *Result) tightest() *Usage {
	var out *Usage
	for i := range r.Usages {
		if out == nil || r.Usages[i].Remaining < out.Remaining {
			out = &r.Usages[i]
		}
	}
	return out
}
