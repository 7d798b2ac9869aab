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

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/a2aproject/a2a-go/a2asrv"
	"golang.org/x/sync/errgroup"

	"github.com/kadirpekel/a2akit/examples/echo"
	"github.com/kadirpekel/a2akit/pkg/auth"
	"github.com/kadirpekel/a2akit/pkg/compliance"
	"github.com/kadirpekel/a2akit/pkg/config"
	"github.com/kadirpekel/a2akit/pkg/executor"
	"github.com/kadirpekel/a2akit/pkg/logger"
	"github.com/kadirpekel/a2akit/pkg/model"
	"github.com/kadirpekel/a2akit/pkg/model/provider"
	"github.com/kadirpekel/a2akit/pkg/observability"
	"github.com/kadirpekel/a2akit/pkg/ratelimit"
	"github.com/kadirpekel/a2akit/pkg/resilience"
	"github.com/kadirpekel/a2akit/pkg/server"
	"github.com/kadirpekel/a2akit/pkg/session"
	"github.com/kadirpekel/a2akit/pkg/task"
)

// Agent kinds served by ServeCmd.
const (
	agentEcho = "echo"
	agentLLM  = "llm"
)

// DefaultInstruction is the system prompt of the LLM agent when the
// config has none.
const DefaultInstruction = "You are a helpful assistant."

// ServeCmd starts the A2A server.
type ServeCmd struct {
	Agent string `help:"Agent to serve (echo, llm). The llm agent answers without a model when no API key is set." default:"llm" enum:"echo,llm"`
	Host  string `help:"Host to bind (overrides config and HOST)."`
	Port  int    `help:"Port to listen on (overrides config and PORT)."`
	Watch bool   `help:"Watch the config source and reload the log level on change."`
	Debug bool   `help:"Mount /debug/tasks/{id}."`
}

// apply lays the command-line overrides over cfg.
func (c *ServeCmd) apply(cfg *config.Config) {
	if c.Host != "" {
		cfg.Server.Host = c.Host
	}
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}
	if c.Debug {
		cfg.Server.Debug = true
	}
	if c.Agent == agentLLM && cfg.Agent.Instruction == "" {
		cfg.Agent.Instruction = DefaultInstruction
	}
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	echoAgent := echo.New()
	defaultName := echoAgent.Name()
	if c.Agent == agentLLM {
		defaultName = "LLM Agent"
	}

	cfg, loader, err := cli.loadConfig(ctx, defaultName,
		config.WithOnChange(cli.onConfigChange),
		config.WithLogger(slog.Default()),
	)
	if err != nil {
		return err
	}
	if loader != nil {
		defer loader.Close()
	}
	if err := cli.initLogger(&cfg.Logger); err != nil {
		return err
	}
	log := logger.GetLogger()

	if c.Agent == agentEcho {
		echoAgent.Configure(&cfg.Agent)
	}
	c.apply(cfg)

	obs := observability.NewManager(cfg.Observability)
	if err := obs.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize observability: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := obs.Shutdown(shutdownCtx); err != nil {
			log.Warn("Observability shutdown failed", "error", err)
		}
	}()
	metrics := obs.Metrics()

	store, closeStore, err := config.NewTaskStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create task store: %w", err)
	}
	defer func() {
		if err := closeStore(); err != nil {
			log.Warn("Task store close failed", "error", err)
		}
	}()
	if config.BoolValue(cfg.Task.Recover, true) {
		n, err := task.Recover(ctx, store, log)
		if err != nil {
			log.Warn("Task recovery failed", "error", err)
		} else if n > 0 {
			log.Info("Recovered interrupted tasks", "count", n)
		}
	}

	errHandler := resilience.NewErrorHandler(cfg.Resilience.Options(), log)
	metrics.Instrument(errHandler)
	monitor := task.NewHeartbeatMonitor(cfg.Task.HeartbeatInterval, log)
	sessions := session.NewManager(cfg.Session.Options(log))

	opts := []executor.Option{
		executor.WithLogger(log),
		executor.WithMonitor(monitor),
		executor.WithErrorHandler(errHandler),
		executor.WithHeartbeatInterval(cfg.Task.HeartbeatInterval),
	}
	if metrics != nil {
		opts = append(opts, executor.WithObserver(metrics))
	}

	var exec a2asrv.AgentExecutor
	switch c.Agent {
	case agentEcho:
		exec = executor.NewBase(cfg.Agent.Name, echoAgent, opts...)
	default:
		llmExec, err := newLLMExecutor(ctx, cfg, sessions, metrics, log, opts)
		if err != nil {
			return err
		}
		defer func() { _ = llmExec.Close() }()
		exec = llmExec
	}

	card := compliance.NewCard(cardOptions(cfg, os.Getenv))
	if _, err := compliance.ValidateStartup(card, nil, cfg.Resilience.RaiseErrors, log); err != nil {
		return err
	}

	srvOpts := []server.HTTPServerOption{
		server.WithTaskStore(store),
		server.WithObservability(obs),
		server.WithLogger(log),
	}
	validator, err := auth.NewFromConfig(ctx, cfg.Server.Auth)
	if err != nil {
		return fmt.Errorf("failed to create auth validator: %w", err)
	}
	if validator != nil {
		defer validator.Close()
		srvOpts = append(srvOpts, server.WithAuthValidator(validator))
	}
	limiter, err := ratelimit.NewFromConfig(cfg.Server.RateLimit, ratelimit.WithLogger(log))
	if err != nil {
		return fmt.Errorf("failed to create rate limiter: %w", err)
	}
	if limiter != nil {
		defer limiter.Close()
		srvOpts = append(srvOpts, server.WithRateLimiter(limiter))
	}
	srv := server.NewHTTPServer(&cfg.Server, card, exec, srvOpts...)

	metricsPath := ""
	if metrics != nil {
		metricsPath = obs.MetricsPath()
	}
	printBanner(os.Stdout, cfg, card.URL, metricsPath)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Start(gctx) })
	g.Go(func() error { return monitor.Run(gctx) })
	g.Go(func() error { return sessions.Run(gctx) })
	if limiter != nil {
		g.Go(func() error { return limiter.Run(gctx) })
	}
	if c.Watch {
		if loader == nil {
			log.Warn("Nothing to watch, running from environment configuration")
		} else {
			g.Go(func() error { return loader.Watch(gctx) })
		}
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("Shutdown complete")
	return nil
}

// llmAgent adapts the agent section to executor.LLMAgent.
type llmAgent struct {
	cfg *config.AgentConfig
}

func (a llmAgent) Name() string        { return a.cfg.Name }
func (a llmAgent) Description() string { return a.cfg.Description }
func (a llmAgent) Instruction() string { return a.cfg.Instruction }
func (a llmAgent) Tools() []model.Tool { return nil }

// newLLM builds the model named by the llm section, or detects one from
// the provider API key variables when the section is not explicit.
func newLLM(ctx context.Context, c *config.LLMConfig, getenv func(string) string) (model.LLM, error) {
	opts := provider.Options{MaxTokens: c.MaxTokens, Temperature: c.Temperature, BaseURL: c.BaseURL}
	if c.Explicit() {
		return provider.New(ctx, c.Selection(), opts)
	}
	return provider.FromEnv(ctx, c.Getenv(getenv), opts)
}

func newLLMExecutor(ctx context.Context, cfg *config.Config, sessions *session.Manager, metrics *observability.Metrics, log *slog.Logger, opts []executor.Option) (*executor.LLMExecutor, error) {
	llm, err := newLLM(ctx, &cfg.LLM, os.Getenv)
	switch {
	case errors.Is(err, model.ErrNoAPIKey):
		log.Warn("No LLM API key found, answering without a model", "agent", cfg.Agent.Name)
		opts = append(opts, executor.WithoutLLM())
	case err != nil:
		return nil, fmt.Errorf("failed to create LLM: %w", err)
	default:
		log.Info("LLM configured", "provider", llm.Provider(), "model", llm.Name())
		opts = append(opts, executor.WithLLM(llm))
	}

	opts = append(opts,
		executor.WithSessions(sessions),
		executor.WithHistoryTokens(cfg.Session.HistoryTokens),
	)
	if metrics != nil {
		opts = append(opts, executor.WithTokenRecorder(metrics))
	}
	return executor.NewLLM(ctx, llmAgent{cfg: &cfg.Agent}, opts...)
}
