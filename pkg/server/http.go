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

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/a2aproject/a2a-go/a2asrv"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kadirpekel/a2akit/pkg/auth"
	"github.com/kadirpekel/a2akit/pkg/config"
	"github.com/kadirpekel/a2akit/pkg/observability"
	"github.com/kadirpekel/a2akit/pkg/ratelimit"
	"github.com/kadirpekel/a2akit/pkg/task"
)

// Well-known card locations. The legacy path predates protocol 0.3.
const (
	AgentCardPath       = a2asrv.WellKnownAgentCardPath
	LegacyAgentCardPath = "/.well-known/agent.json"
	HealthPath          = "/health"
	DebugTasksPath      = "/debug/tasks/{id}"
)

// HTTPServer serves a single agent.
type HTTPServer struct {
	cfg      *config.ServerConfig
	card     *a2a.AgentCard
	executor a2asrv.AgentExecutor
	logger   *slog.Logger

	taskStore      task.Store
	authValidator  auth.TokenValidator
	observability  *observability.Manager
	limiter        *ratelimit.Limiter
	handlerOptions []a2asrv.RequestHandlerOption

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// HTTPServerOption configures the HTTP server.
type HTTPServerOption func(*HTTPServer)

// WithTaskStore shares store with the SDK request handler and the debug
// endpoint. Without it tasks live in a private memory store.
func WithTaskStore(store task.Store) HTTPServerOption {
	return func(s *HTTPServer) {
		s.taskStore = store
	}
}

// WithAuthValidator requires a bearer token on every route except
// discovery, health and metrics.
func WithAuthValidator(v auth.TokenValidator) HTTPServerOption {
	return func(s *HTTPServer) {
		s.authValidator = v
	}
}

// WithObservability traces and measures every request and mounts the
// metrics endpoint when metrics are enabled.
func WithObservability(obs *observability.Manager) HTTPServerOption {
	return func(s *HTTPServer) {
		s.observability = obs
	}
}

// WithRateLimiter limits JSON-RPC calls per caller. Discovery, health
// and metrics are never limited.
func WithRateLimiter(l *ratelimit.Limiter) HTTPServerOption {
	return func(s *HTTPServer) {
		s.limiter = l
	}
}

// WithLogger sets the access and lifecycle logger.
func WithLogger(l *slog.Logger) HTTPServerOption {
	return func(s *HTTPServer) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRequestHandlerOptions passes extra options to a2asrv.NewHandler.
func WithRequestHandlerOptions(opts ...a2asrv.RequestHandlerOption) HTTPServerOption {
	return func(s *HTTPServer) {
		s.handlerOptions = append(s.handlerOptions, opts...)
	}
}

// NewHTTPServer creates a server for card backed by executor.
func NewHTTPServer(cfg *config.ServerConfig, card *a2a.AgentCard, executor a2asrv.AgentExecutor, opts ...HTTPServerOption) *HTTPServer {
	if cfg.Host == "" || cfg.Port == 0 {
		cfg.SetDefaults()
	}

	s := &HTTPServer{
		cfg:      cfg,
		card:     card,
		executor: executor,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.taskStore == nil {
		s.taskStore = task.NewMemoryStore()
	}
	return s
}

// Card returns the served agent card.
func (s *HTTPServer) Card() *a2a.AgentCard {
	return s.card
}

// Handler builds the routed and wrapped handler.
func (s *HTTPServer) Handler() http.Handler {
	r := chi.NewRouter()

	// Outermost first: observability sees every request, CORS answers
	// preflights before auth runs.
	r.Use(middleware.Recoverer)
	if s.observability != nil {
		r.Use(s.observability.Middleware())
	}
	r.Use(s.accessLog)
	if config.BoolValue(s.cfg.CORS.Enabled, true) {
		r.Use(corsMiddleware(s.cfg.CORS))
	}
	public := []string{HealthPath, AgentCardPath, LegacyAgentCardPath}
	if s.metricsEnabled() {
		public = append(public, s.observability.MetricsPath())
	}
	if s.authValidator != nil {
		skip := append(slices.Clone(public), s.cfg.Auth.SkipPaths...)
		r.Use(auth.Middleware(s.authValidator, s.logger, skip...))
		s.logger.Info("Authentication enabled", "skip_paths", skip)
	}
	// After auth so callers are keyed by subject when there is one.
	if s.limiter != nil {
		r.Use(ratelimit.Middleware(s.limiter, ratelimit.CallerKey, s.logger, public...))
		s.logger.Info("Rate limiting enabled", "rules", len(s.cfg.RateLimit.Limits))
	}

	handlerOpts := append([]a2asrv.RequestHandlerOption{a2asrv.WithTaskStore(s.taskStore)}, s.handlerOptions...)
	requestHandler := a2asrv.NewHandler(s.executor, handlerOpts...)
	r.Handle("/", a2asrv.NewJSONRPCHandler(requestHandler))

	cardHandler := a2asrv.NewStaticAgentCardHandler(s.card)
	r.Method(http.MethodGet, AgentCardPath, cardHandler)
	r.Method(http.MethodGet, LegacyAgentCardPath, cardHandler)

	r.Get(HealthPath, s.handleHealth)

	if s.metricsEnabled() {
		r.Method(http.MethodGet, s.observability.MetricsPath(), s.observability.Metrics().Handler())
		s.logger.Info("Metrics endpoint enabled", "path", s.observability.MetricsPath())
	}
	if s.cfg.Debug {
		r.Get(DebugTasksPath, s.handleDebugTask)
	}
	return r
}

func (s *HTTPServer) metricsEnabled() bool {
	return s.observability != nil && s.observability.Metrics() != nil
}

// Start listens on the configured address and serves until ctx is done.
func (s *HTTPServer) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully
// within the configured timeout.
func (s *HTTPServer) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	s.mu.Lock()
	s.server = srv
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("HTTP server starting", "address", ln.Addr().String(), "agent", s.card.Name)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = config.DefaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	s.logger.Info("HTTP server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP shutdown error: %w", err)
	}
	return nil
}

// Address is the bound address once serving, else the configured one.
func (s *HTTPServer) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.cfg.Addr()
}
