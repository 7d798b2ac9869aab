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

package observability

import (
	"context"
	"errors"
	"net/http"
	"sync"
)

// Manager owns the tracer and metrics of one server.
type Manager struct {
	config  Config
	tracer  *Tracer
	metrics *Metrics
	mu      sync.RWMutex
}

// NewManager returns an uninitialized manager. Call Initialize before use.
func NewManager(cfg Config) *Manager {
	cfg.SetDefaults()
	return &Manager{config: cfg}
}

// Initialize builds the tracer and, when enabled, the metrics.
func (m *Manager) Initialize(ctx context.Context, opts ...TracerOption) error {
	if err := m.config.Validate(); err != nil {
		return err
	}

	tracer, err := NewTracer(ctx, m.config.Tracing, opts...)
	if err != nil {
		return err
	}

	var metrics *Metrics
	if m.config.Metrics.Enabled {
		if metrics, err = NewMetrics(m.config.Metrics); err != nil {
			_ = tracer.Shutdown(ctx)
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.tracer, m.metrics = tracer, metrics
	return nil
}

// Tracer returns the tracer, or nil before Initialize.
func (m *Manager) Tracer() *Tracer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tracer
}

// Metrics returns the metrics, or nil when disabled.
func (m *Manager) Metrics() *Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.metrics
}

// MetricsPath is the configured scrape path.
func (m *Manager) MetricsPath() string {
	return m.config.Metrics.Endpoint
}

// Middleware wraps handlers with HTTPMiddleware.
func (m *Manager) Middleware() func(http.Handler) http.Handler {
	tracer := m.Tracer()
	if tracer == nil {
		return HTTPMiddleware(nil, m.Metrics())
	}
	return HTTPMiddleware(tracer, m.Metrics())
}

// Shutdown flushes the tracer and stops the metrics provider.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	if m.tracer != nil {
		errs = append(errs, m.tracer.Shutdown(ctx))
	}
	errs = append(errs, m.metrics.Shutdown(ctx))
	return errors.Join(errs...)
}
