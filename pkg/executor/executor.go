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

// Package executor provides a2asrv.AgentExecutor implementations that drive
// the task lifecycle for simple processors and LLM-backed agents.
//
// Both executors follow the same event sequence:
//   - New task: submitted
//   - Before processing: working, with a status message
//   - While processing: heartbeats and, for LLMs, partial text
//   - On success: the response (message or artifact), then completed
//   - On error: failed, with a description of the error
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/a2aproject/a2a-go/a2asrv"
	"github.com/a2aproject/a2a-go/a2asrv/eventqueue"

	"github.com/kadirpekel/a2akit/pkg/model"
	"github.com/kadirpekel/a2akit/pkg/resilience"
	"github.com/kadirpekel/a2akit/pkg/session"
	"github.com/kadirpekel/a2akit/pkg/task"
)

// Sink receives the events produced by an execution.
type Sink interface {
	task.Updater

	// WriteMessage answers without creating a task.
	WriteMessage(ctx context.Context, text string) error

	// CloseArtifact marks the streamed artifact as complete.
	CloseArtifact(ctx context.Context) error
}

// SinkFactory creates the Sink for one request.
type SinkFactory func(reqCtx *a2asrv.RequestContext, queue eventqueue.Queue) Sink

func queueSink(reqCtx *a2asrv.RequestContext, queue eventqueue.Queue) Sink {
	return task.NewQueueUpdater(reqCtx, queue)
}

// TokenRecorder is notified of the token usage of each model call.
type TokenRecorder interface {
	RecordTokens(ctx context.Context, provider, model string, prompt, completion int)
}

// config holds the settings shared by both executors.
type config struct {
	logger            *slog.Logger
	monitor           *task.HeartbeatMonitor
	observer          task.Observer
	heartbeatInterval time.Duration
	handler           *resilience.ErrorHandler
	sinks             SinkFactory

	// LLM executor only.
	llm           model.LLM
	llmSet        bool
	sessions      *session.Manager
	historyTokens int
	tokens        TokenRecorder
}

// Option configures an executor.
type Option func(*config)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMonitor registers running tasks with a shared heartbeat monitor.
func WithMonitor(m *task.HeartbeatMonitor) Option {
	return func(c *config) {
		c.monitor = m
	}
}

// WithObserver is notified of every task transition.
func WithObserver(o task.Observer) Option {
	return func(c *config) {
		c.observer = o
	}
}

// WithHeartbeatInterval overrides AGENT_HEARTBEAT_INTERVAL.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.heartbeatInterval = d
		}
	}
}

// WithErrorHandler sets the resilience layers wrapped around processing.
// Defaults to resilience.OptionsFromEnv().
func WithErrorHandler(h *resilience.ErrorHandler) Option {
	return func(c *config) {
		if h != nil {
			c.handler = h
		}
	}
}

// WithSinkFactory replaces the event queue writer.
func WithSinkFactory(f SinkFactory) Option {
	return func(c *config) {
		if f != nil {
			c.sinks = f
		}
	}
}

func newConfig(opts []Option) *config {
	c := &config{
		logger:            slog.Default(),
		heartbeatInterval: task.HeartbeatIntervalFromEnv(),
		sinks:             queueSink,
		historyTokens:     DefaultHistoryTokens,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.handler == nil {
		c.handler = resilience.NewErrorHandler(resilience.OptionsFromEnv(), c.logger)
	}
	return c
}

// newManager builds a Manager for the request, resuming from the stored
// task state when there is one.
func (c *config) newManager(reqCtx *a2asrv.RequestContext, sink Sink) *task.Manager {
	opts := []task.Option{
		task.WithLogger(c.logger),
		task.WithHeartbeatInterval(c.heartbeatInterval),
	}
	if c.observer != nil {
		opts = append(opts, task.WithObserver(c.observer))
	}
	if reqCtx.StoredTask != nil {
		opts = append(opts, task.WithInitialState(task.FromWire(reqCtx.StoredTask.Status.State)))
	}
	return task.NewManager(string(reqCtx.TaskID), reqCtx.ContextID, sink, opts...)
}

// begin announces a new task and moves it to working. Heartbeats come
// from the shared monitor when one is configured, otherwise from the
// Manager itself. The returned func stops them.
func (c *config) begin(ctx context.Context, reqCtx *a2asrv.RequestContext, mgr *task.Manager, sink Sink, status string) (func(), error) {
	if reqCtx.StoredTask == nil {
		if err := sink.UpdateStatus(ctx, task.StateSubmitted, nil, false); err != nil {
			return func() {}, err
		}
	}

	var err error
	switch mgr.State() {
	case task.StateSubmitted:
		err = mgr.StartWorking(ctx, status)
	case task.StateWorking:
	default:
		err = mgr.TransitionTo(ctx, task.StateWorking, status)
	}

	if c.monitor != nil {
		mgr.StopHeartbeat()
		c.monitor.Add(mgr)
		return func() { c.monitor.Remove(mgr.TaskID()) }, err
	}
	if err == nil {
		mgr.StartHeartbeat(ctx)
	}
	return mgr.StopHeartbeat, err
}

// cancel moves the stored task to canceled.
func (c *config) cancel(ctx context.Context, reqCtx *a2asrv.RequestContext, queue eventqueue.Queue) error {
	sink := c.sinks(reqCtx, queue)
	mgr := c.newManager(reqCtx, sink)
	if err := mgr.CancelTask(ctx, "Cancelled by user"); err != nil {
		return fmt.Errorf("cancel task %s: %w", reqCtx.TaskID, err)
	}
	return nil
}

// NewRequestID returns a timestamp based id such as
// 20250101_120000_123456.
func NewRequestID(now time.Time) string {
	return now.Format("20060102_150405") + fmt.Sprintf("_%06d", now.Nanosecond()/1000)
}
