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

// Package task implements the A2A task lifecycle: a validated state
// machine, heartbeats for long-running work, and task persistence.
package task

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/google/uuid"
)

// DefaultHeartbeatInterval is used when no interval is configured.
const DefaultHeartbeatInterval = 10 * time.Second

// HeartbeatMessage is the status text sent while a task is working.
const HeartbeatMessage = "Still processing..."

// InterruptedMessage is the failure reason for tasks found working at startup.
const InterruptedMessage = "Task interrupted by agent restart"

var defaultMessages = map[State]string{
	StateCompleted:     "Task completed successfully",
	StateFailed:        "Task failed",
	StateCanceled:      "Task cancelled",
	StateInputRequired: "Additional input required to continue",
	StateRejected:      "Cannot process this request",
	StateAuthRequired:  "Authentication required to continue",
}

// Observer is notified after every accepted transition.
type Observer interface {
	OnTransition(taskID string, from, to State)
}

// Option configures a Manager.
type Option func(*Manager)

// WithHeartbeatInterval overrides the heartbeat period.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.heartbeatInterval = d
		}
	}
}

// WithInitialState starts the machine in s instead of submitted, for
// resuming a stored task.
func WithInitialState(s State) Option {
	return func(m *Manager) {
		if s.Valid() {
			m.state = s
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

func WithObserver(o Observer) Option {
	return func(m *Manager) {
		m.observer = o
	}
}

// Manager tracks the lifecycle of a single task and mirrors every state
// change to an Updater.
type Manager struct {
	taskID  string
	updater Updater
	logger  *slog.Logger

	heartbeatInterval time.Duration
	observer          Observer

	mu        sync.Mutex
	contextID string
	state     State
	history   []Transition
	createdAt time.Time
	updatedAt time.Time

	hbMu     sync.Mutex
	hbCancel context.CancelFunc
	hbDone   chan struct{}
}

// NewManager creates a Manager in the submitted state.
func NewManager(taskID, contextID string, updater Updater, opts ...Option) *Manager {
	now := time.Now().UTC()
	m := &Manager{
		taskID:            taskID,
		contextID:         contextID,
		updater:           updater,
		logger:            slog.Default(),
		heartbeatInterval: DefaultHeartbeatInterval,
		state:             StateSubmitted,
		createdAt:         now,
		updatedAt:         now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("task_id", taskID)
	return m
}

// HeartbeatIntervalFromEnv reads AGENT_HEARTBEAT_INTERVAL (seconds).
func HeartbeatIntervalFromEnv() time.Duration {
	if v := strings.TrimSpace(os.Getenv("AGENT_HEARTBEAT_INTERVAL")); v != "" {
		if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
			return time.Duration(secs * float64(time.Second))
		}
	}
	return DefaultHeartbeatInterval
}

func (m *Manager) TaskID() string {
	return m.taskID
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// History returns a copy of the recorded transitions.
func (m *Manager) History() []Transition {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Transition, len(m.history))
	copy(out, m.history)
	return out
}

func (m *Manager) IsTerminal() bool {
	return m.State().IsTerminal()
}

func (m *Manager) IsActive() bool {
	return m.State().IsActive()
}

func (m *Manager) CanCancel() bool {
	return !m.State().IsTerminal()
}

// ContextID returns the conversation context id, allocating one of the
// form ctx_xxxxxxxx on first use when the request carried none.
func (m *Manager) ContextID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.contextID == "" {
		m.contextID = "ctx_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	}
	return m.contextID
}

// TransitionTo moves the task to state and publishes the change.
// The state is advanced even if publishing fails; the publish error is
// returned.
func (m *Manager) TransitionTo(ctx context.Context, state State, message string) error {
	m.mu.Lock()
	from := m.state
	if !state.Valid() {
		m.mu.Unlock()
		return &StateError{From: from, To: string(state), err: ErrInvalidState}
	}
	if !from.CanTransitionTo(state) {
		m.mu.Unlock()
		return &StateError{From: from, To: string(state), err: ErrInvalidTransition}
	}

	now := time.Now().UTC()
	m.history = append(m.history, Transition{From: from, To: state, Timestamp: now, Message: message})
	m.state = state
	m.updatedAt = now

	err := m.publish(ctx, state, message)
	m.mu.Unlock()

	m.logger.Info("Task state changed", "from", from, "to", state)
	if m.observer != nil {
		m.observer.OnTransition(m.taskID, from, state)
	}
	if state.IsTerminal() {
		m.StopHeartbeat()
	}
	return err
}

// publish must be called with m.mu held.
func (m *Manager) publish(ctx context.Context, state State, message string) error {
	if m.updater == nil {
		return nil
	}

	if state == StateWorking {
		if err := m.updater.UpdateStatus(ctx, StateWorking, nil, false); err != nil {
			return err
		}
		if message == "" {
			return nil
		}
		return m.updater.UpdateStatus(ctx, StateWorking, m.textMessage(message), false)
	}

	if message == "" {
		message = defaultMessages[state]
	}
	var msg *a2a.Message
	if message != "" {
		msg = m.textMessage(message)
	}
	final := state.IsTerminal() || state == StateInputRequired || state == StateAuthRequired
	return m.updater.UpdateStatus(ctx, state, msg, final)
}

func (m *Manager) textMessage(text string) *a2a.Message {
	return m.updater.NewAgentMessage(a2a.TextPart{Text: text})
}

// StartWorking moves a submitted task to working and starts its heartbeat.
func (m *Manager) StartWorking(ctx context.Context, message string) error {
	if m.State() != StateSubmitted {
		m.logger.Warn("Cannot start working", "state", m.State())
		return nil
	}
	if message == "" {
		message = "Processing task..."
	}
	if err := m.TransitionTo(ctx, StateWorking, message); err != nil {
		return err
	}
	m.StartHeartbeat(ctx)
	return nil
}

// CompleteTask finishes a working or input_required task.
func (m *Manager) CompleteTask(ctx context.Context, message string) error {
	switch st := m.State(); st {
	case StateWorking, StateInputRequired:
	default:
		m.logger.Warn("Cannot complete task", "state", st)
		return nil
	}
	if message == "" {
		message = defaultMessages[StateCompleted]
	}
	return m.TransitionTo(ctx, StateCompleted, message)
}

// FailTask fails any non-terminal task.
func (m *Manager) FailTask(ctx context.Context, errMsg string) error {
	if m.IsTerminal() {
		m.logger.Warn("Cannot fail task in terminal state", "state", m.State())
		return nil
	}
	return m.TransitionTo(ctx, StateFailed, errMsg)
}

// CancelTask cancels any non-terminal task.
func (m *Manager) CancelTask(ctx context.Context, reason string) error {
	if !m.CanCancel() {
		m.logger.Warn("Cannot cancel task in terminal state", "state", m.State())
		return nil
	}
	if reason == "" {
		reason = "Task cancelled by user"
	}
	return m.TransitionTo(ctx, StateCanceled, reason)
}

// RequestInput pauses a working task until the client replies.
func (m *Manager) RequestInput(ctx context.Context, prompt string) error {
	if st := m.State(); st != StateWorking {
		m.logger.Warn("Can only request input from working state", "state", st)
		return nil
	}
	return m.TransitionTo(ctx, StateInputRequired, prompt)
}

// RejectTask refuses a submitted task.
func (m *Manager) RejectTask(ctx context.Context, reason string) error {
	if st := m.State(); st != StateSubmitted {
		m.logger.Warn("Can only reject submitted tasks", "state", st)
		return nil
	}
	return m.TransitionTo(ctx, StateRejected, reason)
}

// RequireAuth asks the client to authenticate before continuing.
func (m *Manager) RequireAuth(ctx context.Context, message string) error {
	if st := m.State(); st != StateSubmitted && st != StateWorking {
		m.logger.Warn("Cannot require auth", "state", st)
		return nil
	}
	return m.TransitionTo(ctx, StateAuthRequired, message)
}

// RecoverInterruptedTask fails a task left in working by a previous
// process. It returns true when the task was recovered.
func (m *Manager) RecoverInterruptedTask(ctx context.Context) (bool, error) {
	if m.State() != StateWorking {
		return false, nil
	}
	m.logger.Warn("Recovering interrupted task")
	if err := m.FailTask(ctx, InterruptedMessage); err != nil {
		return true, err
	}
	return true, nil
}

// SendHeartbeat emits a working status if the task is still working.
func (m *Manager) SendHeartbeat(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateWorking || m.updater == nil {
		return nil
	}
	return m.updater.UpdateStatus(ctx, StateWorking, m.textMessage(HeartbeatMessage), false)
}

// StartHeartbeat begins periodic heartbeats. Calling it while a heartbeat
// is running has no effect.
func (m *Manager) StartHeartbeat(ctx context.Context) {
	m.hbMu.Lock()
	defer m.hbMu.Unlock()
	if m.hbCancel != nil {
		return
	}

	hbCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.hbCancel = cancel
	m.hbDone = done

	go m.heartbeatLoop(hbCtx, done)
}

func (m *Manager) heartbeatLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if m.State() != StateWorking {
				return
			}
			if err := m.SendHeartbeat(ctx); err != nil {
				m.logger.Error("Heartbeat failed", "error", err)
			}
		}
	}
}

// StopHeartbeat stops the heartbeat and waits for it to exit.
func (m *Manager) StopHeartbeat() {
	m.hbMu.Lock()
	cancel, done := m.hbCancel, m.hbDone
	m.hbCancel, m.hbDone = nil, nil
	m.hbMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// StateInfo is a snapshot of a task's lifecycle.
type StateInfo struct {
	TaskID       string       `json:"task_id"`
	ContextID    string       `json:"context_id"`
	CurrentState State        `json:"current_state"`
	IsTerminal   bool         `json:"is_terminal"`
	IsActive     bool         `json:"is_active"`
	CanCancel    bool         `json:"can_cancel"`
	CreatedAt    string       `json:"created_at"`
	UpdatedAt    string       `json:"updated_at"`
	StateHistory []Transition `json:"state_history"`
	HistoryCount int          `json:"history_count"`
}

// StateInfo returns a snapshot of the task.
func (m *Manager) StateInfo() StateInfo {
	contextID := m.ContextID()

	m.mu.Lock()
	defer m.mu.Unlock()

	history := make([]Transition, len(m.history))
	copy(history, m.history)

	return StateInfo{
		TaskID:       m.taskID,
		ContextID:    contextID,
		CurrentState: m.state,
		IsTerminal:   m.state.IsTerminal(),
		IsActive:     m.state.IsActive(),
		CanCancel:    !m.state.IsTerminal(),
		CreatedAt:    m.createdAt.Format(time.RFC3339),
		UpdatedAt:    m.updatedAt.Format(time.RFC3339),
		StateHistory: history,
		HistoryCount: len(history),
	}
}
