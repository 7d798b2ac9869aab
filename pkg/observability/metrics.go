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
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/kadirpekel/a2akit/pkg/resilience"
	"github.com/kadirpekel/a2akit/pkg/task"
)

// Metrics records the server's instruments and serves them in the
// prometheus text format. All methods are safe on a nil receiver.
type Metrics struct {
	provider *sdkmetric.MeterProvider
	registry *prometheus.Registry

	tasks        metric.Int64Counter
	transitions  metric.Int64Counter
	retries      metric.Int64Counter
	circuit      metric.Int64Gauge
	httpRequests metric.Int64Counter
	httpDuration metric.Float64Histogram
	llmTokens    metric.Int64Counter
}

// NewMetrics creates the meter provider and a private prometheus registry.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	var registerer prometheus.Registerer = registry
	if len(cfg.ConstLabels) > 0 {
		registerer = prometheus.WrapRegistererWith(prometheus.Labels(cfg.ConstLabels), registry)
	}

	exporter, err := otelprom.New(
		otelprom.WithRegisterer(registerer),
		otelprom.WithoutScopeInfo(),
		otelprom.WithoutTargetInfo(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter(InstrumentationName)
	m := &Metrics{provider: provider, registry: registry}

	if m.tasks, err = meter.Int64Counter(MetricTasks,
		metric.WithDescription("Tasks entering each state")); err != nil {
		return nil, fmt.Errorf("failed to create tasks counter: %w", err)
	}
	if m.transitions, err = meter.Int64Counter(MetricTransitions,
		metric.WithDescription("Accepted task state transitions")); err != nil {
		return nil, fmt.Errorf("failed to create transitions counter: %w", err)
	}
	if m.retries, err = meter.Int64Counter(MetricRetries,
		metric.WithDescription("Retried operations")); err != nil {
		return nil, fmt.Errorf("failed to create retries counter: %w", err)
	}
	if m.circuit, err = meter.Int64Gauge(MetricCircuitState,
		metric.WithDescription("Circuit breaker state (0 closed, 1 open, 2 half-open)")); err != nil {
		return nil, fmt.Errorf("failed to create circuit gauge: %w", err)
	}
	if m.httpRequests, err = meter.Int64Counter(MetricHTTPRequests,
		metric.WithDescription("HTTP requests served")); err != nil {
		return nil, fmt.Errorf("failed to create http requests counter: %w", err)
	}
	if m.httpDuration, err = meter.Float64Histogram(MetricHTTPDuration,
		metric.WithDescription("HTTP request duration in seconds")); err != nil {
		return nil, fmt.Errorf("failed to create http duration histogram: %w", err)
	}
	if m.llmTokens, err = meter.Int64Counter(MetricLLMTokens,
		metric.WithDescription("LLM tokens by provider, model and kind")); err != nil {
		return nil, fmt.Errorf("failed to create llm tokens counter: %w", err)
	}
	return m, nil
}

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// OnTransition implements task.Observer.
func (m *Metrics) OnTransition(_ string, from, to task.State) {
	if m == nil {
		return
	}
	ctx := context.Background()
	m.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from.String()),
		attribute.String("to", to.String()),
	))
	m.tasks.Add(ctx, 1, metric.WithAttributes(attribute.String("state", to.String())))
}

// RecordTokens counts prompt and completion tokens of one model call.
func (m *Metrics) RecordTokens(ctx context.Context, provider, model string, prompt, completion int) {
	if m == nil {
		return
	}
	for kind, n := range map[string]int{"prompt": prompt, "completion": completion} {
		if n <= 0 {
			continue
		}
		m.llmTokens.Add(ctx, int64(n), metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("model", model),
			attribute.String("kind", kind),
		))
	}
}

// RecordRetry counts one retry attempt.
func (m *Metrics) RecordRetry(error, time.Duration) {
	if m == nil {
		return
	}
	m.retries.Add(context.Background(), 1)
}

// RecordCircuitState publishes the breaker position.
func (m *Metrics) RecordCircuitState(_, to resilience.CircuitState) {
	if m == nil {
		return
	}
	m.circuit.Record(context.Background(), int64(to))
}

// RecordHTTPRequest records one served request.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.String("status", strconv.Itoa(status)),
	)
	m.httpRequests.Add(ctx, 1, attrs)
	m.httpDuration.Record(ctx, d.Seconds(), attrs)
}

// Instrument hooks the retry and breaker layers of h into m. Existing
// hooks keep running.
func (m *Metrics) Instrument(h *resilience.ErrorHandler) {
	if m == nil || h == nil {
		return
	}
	if h.Retry != nil {
		prev := h.Retry.OnRetry
		h.Retry.OnRetry = func(err error, wait time.Duration) {
			if prev != nil {
				prev(err, wait)
			}
			m.RecordRetry(err, wait)
		}
	}
	if h.Breaker != nil {
		prev := h.Breaker.OnStateChange
		h.Breaker.OnStateChange = func(from, to resilience.CircuitState) {
			if prev != nil {
				prev(from, to)
			}
			m.RecordCircuitState(from, to)
		}
		m.RecordCircuitState(h.Breaker.State(), h.Breaker.State())
	}
}

// Shutdown stops the meter provider.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}

var _ task.Observer = (*Metrics)(nil)
