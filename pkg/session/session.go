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

// Package session keeps bounded, expiring conversation histories.
//
// A Manager holds at most MaxSessions sessions. Creating one more evicts
// the least recently updated session. Sessions idle for longer than
// Timeout are ended by the cleanup loop; ending a child session merges
// its variables into the parent.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Defaults.
const (
	DefaultMaxSessions     = 100
	DefaultMaxMessages     = 1000
	DefaultTimeout         = time.Hour
	DefaultCleanupInterval = 5 * time.Minute
)

// Message roles.
const (
	RoleUser   = "user"
	RoleAgent  = "agent"
	RoleSystem = "system"
)

// ErrNotFound is returned for unknown session ids.
var ErrNotFound = errors.New("session not found")

// Message is one conversation turn.
type Message struct {
	ID        string         `json:"message_id"`
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Session is a conversation. Values returned by Manager are snapshots.
type Session struct {
	ID        string         `json:"session_id"`
	TaskID    string         `json:"task_id,omitempty"`
	ParentID  string         `json:"parent_session_id,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	Messages  []Message      `json:"messages"`
	Metadata  map[string]any `json:"metadata"`
	Variables map[string]any `json:"variables"`
}

func (s *Session) clone() *Session {
	c := *s
	c.Messages = append([]Message(nil), s.Messages...)
	c.Metadata = maps.Clone(s.Metadata)
	c.Variables = maps.Clone(s.Variables)
	return &c
}

// Options configures a Manager.
type Options struct {
	MaxSessions     int
	MaxMessages     int
	Timeout         time.Duration
	CleanupInterval time.Duration
	Logger          *slog.Logger
	// Counter sizes history for Context. Defaults to EstimateCounter.
	Counter Counter
}

// CreateOptions describes a new session. An empty ID is generated.
type CreateOptions struct {
	ID       string
	TaskID   string
	ParentID string
	Metadata map[string]any
}

// Manager stores sessions in memory.
type Manager struct {
	opts Options
	now  func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager returns a manager; zero options select the defaults.
func NewManager(opts Options) *Manager {
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = DefaultMaxSessions
	}
	if opts.MaxMessages <= 0 {
		opts.MaxMessages = DefaultMaxMessages
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = DefaultCleanupInterval
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Counter == nil {
		opts.Counter = EstimateCounter{}
	}
	return &Manager{
		opts:     opts,
		now:      func() time.Time { return time.Now().UTC() },
		sessions: make(map[string]*Session),
	}
}

// Create adds a session, evicting the least recently updated one when the
// manager is full. An existing session with the same id is replaced.
func (m *Manager) Create(opts CreateOptions) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createLocked(opts).clone()
}

func (m *Manager) createLocked(opts CreateOptions) *Session {
	if _, exists := m.sessions[opts.ID]; !exists && len(m.sessions) >= m.opts.MaxSessions {
		m.evictOldestLocked()
	}

	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := m.now()
	meta := opts.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	s := &Session{
		ID:        id,
		TaskID:    opts.TaskID,
		ParentID:  opts.ParentID,
		CreatedAt: now,
		UpdatedAt: now,
		Messages:  []Message{},
		Metadata:  meta,
		Variables: map[string]any{},
	}
	m.sessions[id] = s
	m.opts.Logger.Debug("Created session", "session_id", id)
	return s
}

func (m *Manager) evictOldestLocked() {
	var oldest *Session
	for _, s := range m.sessions {
		if oldest == nil || s.UpdatedAt.Before(oldest.UpdatedAt) {
			oldest = s
		}
	}
	if oldest != nil {
		delete(m.sessions, oldest.ID)
		m.opts.Logger.Info("Evicted oldest session", "session_id", oldest.ID)
	}
}

// touchLocked returns the session and marks it used.
func (m *Manager) touchLocked(id string) (*Session, bool) {
	s, ok := m.sessions[id]
	if ok {
		s.UpdatedAt = m.now()
	}
	return s, ok
}

// Get returns a snapshot of the session and marks it used.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.touchLocked(id)
	if !ok {
		return nil, false
	}
	return s.clone(), true
}

// GetOrCreate returns the session with id, creating it when missing.
func (m *Manager) GetOrCreate(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.touchLocked(id); ok {
		return s.clone()
	}
	return m.createLocked(CreateOptions{ID: id}).clone()
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// AddMessage appends a turn. When the session is full, the older half of
// its messages is dropped and the session is marked truncated.
func (m *Manager) AddMessage(id, role, content string, metadata map[string]any) (Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.touchLocked(id)
	if !ok {
		return Message{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	if len(s.Messages) >= m.opts.MaxMessages {
		keep := m.opts.MaxMessages / 2
		s.Messages = append([]Message(nil), s.Messages[len(s.Messages)-keep:]...)
		s.Metadata["truncated"] = true
		s.Metadata["truncated_at"] = m.now().Format(time.RFC3339)
		m.opts.Logger.Info("Truncated session messages", "session_id", id, "kept", keep)
	}

	msg := Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: m.now(),
		Metadata:  metadata,
	}
	s.Messages = append(s.Messages, msg)
	return msg, nil
}

// Messages returns up to limit most recent messages, optionally filtered
// by role. A non-positive limit returns all of them.
func (m *Manager) Messages(id string, limit int, role string) []Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.touchLocked(id)
	if !ok {
		return nil
	}
	var out []Message
	for _, msg := range s.Messages {
		if role == "" || msg.Role == role {
			out = append(out, msg)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// History returns the most recent messages that fit in maxTokens.
func (m *Manager) History(id string, maxTokens int) []Message {
	msgs := m.Messages(id, 0, "")
	return FitTokens(m.opts.Counter, msgs, maxTokens)
}

// Context renders History as "role: content" lines.
func (m *Manager) Context(id string, maxTokens int) string {
	msgs := m.History(id, maxTokens)
	lines := make([]string, len(msgs))
	for i, msg := range msgs {
		lines[i] = msg.Role + ": " + msg.Content
	}
	return strings.Join(lines, "\n")
}

// SetVariable stores a session variable.
func (m *Manager) SetVariable(id, key string, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.touchLocked(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.Variables[key] = value
	return nil
}

// Variable returns a session variable.
func (m *Manager) Variable(id, key string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.touchLocked(id)
	if !ok {
		return nil, false
	}
	v, ok := s.Variables[key]
	return v, ok
}

// End removes a session. A child session's variables and a summary are
// merged into its parent first.
func (m *Manager) End(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.endLocked(id)
}

func (m *Manager) endLocked(id string) bool {
	s, ok := m.sessions[id]
	if !ok {
		return false
	}
	if parent, ok := m.sessions[s.ParentID]; ok && s.ParentID != "" {
		maps.Copy(parent.Variables, s.Variables)
		parent.Metadata["child_"+s.ID] = map[string]any{
			"messages":  len(s.Messages),
			"variables": maps.Clone(s.Variables),
			"ended_at":  m.now().Format(time.RFC3339),
		}
	}
	delete(m.sessions, id)
	m.opts.Logger.Debug("Ended session", "session_id", id)
	return true
}

// CleanupExpired ends every session idle for longer than Timeout and
// returns how many were ended.
func (m *Manager) CleanupExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var expired []*Session
	for _, s := range m.sessions {
		if now.Sub(s.UpdatedAt) > m.opts.Timeout {
			expired = append(expired, s)
		}
	}
	// Children first so their state reaches a parent that is also expiring.
	sort.Slice(expired, func(i, j int) bool {
		return expired[i].ParentID != "" && expired[j].ParentID == ""
	})
	for _, s := range expired {
		if m.endLocked(s.ID) {
			m.opts.Logger.Info("Cleaned up expired session", "session_id", s.ID)
		}
	}
	return len(expired)
}

// Run runs the cleanup loop until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.opts.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.CleanupExpired()
		}
	}
}

// Start runs the cleanup loop in the background. It is idempotent.
func (m *Manager) Start(ctx context.Context) {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if m.cancel != nil {
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	go func(done chan struct{}) {
		defer close(done)
		_ = m.Run(ctx)
	}(m.done)
	m.opts.Logger.Info("Session manager started")
}

// Stop ends the cleanup loop and waits for it.
func (m *Manager) Stop() {
	m.runMu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.runMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	m.opts.Logger.Info("Session manager stopped")
}
