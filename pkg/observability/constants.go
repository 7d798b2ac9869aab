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

import "time"

const (
	DefaultServiceName   = "a2akit"
	DefaultSamplingRate  = 1.0
	DefaultOTLPEndpoint  = "localhost:4317"
	DefaultMetricsPath   = "/metrics"
	DefaultExportTimeout = 10 * time.Second

	ExporterOTLP   = "otlp"
	ExporterStdout = "stdout"

	// InstrumentationName is the tracer and meter scope.
	InstrumentationName = "github.com/kadirpekel/a2akit"
)

// Span and attribute names.
const (
	SpanHTTPRequest = "http.request"

	AttrHTTPMethod       = "http.request.method"
	AttrHTTPRoute        = "http.route"
	AttrHTTPStatusCode   = "http.response.status_code"
	AttrHTTPResponseSize = "http.response.body.size"
	AttrErrorType        = "error.type"
)

// Metric names.
const (
	MetricTasks        = "a2a_tasks_total"
	MetricTransitions  = "a2a_task_transitions_total"
	MetricRetries      = "a2a_retries_total"
	MetricCircuitState = "a2a_circuit_state"
	MetricHTTPRequests = "a2a_http_requests_total"
	MetricHTTPDuration = "a2a_http_request_duration_seconds"
	MetricLLMTokens    = "a2a_llm_tokens_total"
)
