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

package task

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type statusEvent struct {
	state State
	text  string
	final bool
}

type fakeUpdater struct {
	mu        sync.Mutex
	events    []statusEvent
	artifacts [][]a2a.Part
	err       error
}

func (f *fakeUpdater) UpdateStatus(_ context.Context, state State, msg *a2a.Message, final bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, statusEvent{state: state, text: messageText(msg), final: final})
	return f.err
}

func (f *fakeUpdater) AddArtifact(_ context.Context, _ string, parts ...a2a.Part) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.artifacts = append(f.artifacts, parts)
	return f.err
}

func (f *fakeUpdater) NewAgentMessage(parts ...a2a.Part) *a2a.Message {
	return a2a.NewMessage(a2a.MessageRoleAgent, parts...)
}

func (f *fakeUpdater) snapshot() []statusEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]statusEvent, len(f.events))
	copy(out, f.events)
	return out
}

func messageText(msg *a2a.Message) string {
	if msg == nil {
		return ""
	}
	var sb strings.Builder
	for _, p := range msg.Parts {
		if tp, ok := p.(a2a.TextPart); ok {
			sb.WriteString(tp.Text)
		}
	}
	return sb.String()
}

func TestTransitionTable(t *testing.T) {
	tests := []struct {
		from, to State
		allowed  bool
	}{
		{StateSubmitted, StateWorking, true},
		{StateSubmitted, StateRejected, true},
		{StateSubmitted, StateCanceled, true},
		{StateSubmitted, StateAuthRequired, true},
		{StateSubmitted, StateCompleted, false},
		{StateWorking, StateInputRequired, true},
		{StateWorking, StateCompleted, true},
		{StateWorking, StateFailed, true},
		{StateWorking, StateAuthRequired, true},
		{StateWorking, StateSubmitted, false},
		{StateInputRequired, StateAuthRequired, false},
		{StateInputRequired, StateWorking, true},
		{StateInputRequired, StateCompleted, false},
		{StateAuthRequired, StateWorking, true},
		{StateUnknown, StateFailed, true},
		{StateUnknown, StateCompleted, false},
		{StateCompleted, StateWorking, false},
		{StateFailed, StateWorking, false},
		{StateCanceled, StateWorking, false},
		{StateRejected, StateWorking, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestStatePredicates(t *testing.T) {
	for _, s := range States() {
		terminal := s == StateCompleted || s == StateCanceled || s == StateFailed || s == StateRejected
		assert.Equal(t, terminal, s.IsTerminal(), s)
		active := s == StateWorking || s == StateInputRequired || s == StateAuthRequired
		assert.Equal(t, active, s.IsActive(), s)
		assert.Equal(t, s, FromWire(s.Wire()), s)
	}
}

func TestParseState(t *testing.T) {
	s, err := ParseState("input-required")
	require.NoError(t, err)
	assert.Equal(t, StateInputRequired, s)

	s, err = ParseState("AUTH_REQUIRED")
	require.NoError(t, err)
	assert.Equal(t, StateAuthRequired, s)

	_, err = ParseState("paused")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestManager_HappyPath(t *testing.T) {
	ctx := context.Background()
	up := &fakeUpdater{}
	m := NewManager("t1", "c1", up, WithHeartbeatInterval(time.Hour))

	require.NoError(t, m.StartWorking(ctx, ""))
	require.NoError(t, m.CompleteTask(ctx, ""))

	assert.Equal(t, StateCompleted, m.State())
	assert.True(t, m.IsTerminal())
	assert.False(t, m.CanCancel())

	assert.Equal(t, []statusEvent{
		{state: StateWorking},
		{state: StateWorking, text: "Processing task..."},
		{state: StateCompleted, text: "Task completed successfully", final: true},
	}, up.snapshot())

	history := m.History()
	require.Len(t, history, 2)
	assert.Equal(t, StateSubmitted, history[0].From)
	assert.Equal(t, StateWorking, history[0].To)
	assert.Equal(t, "Processing task...", history[0].Message)
	assert.Equal(t, StateCompleted, history[1].To)
}

func TestManager_InvalidTransition(t *testing.T) {
	ctx := context.Background()
	m := NewManager("t1", "", &fakeUpdater{})

	err := m.TransitionTo(ctx, StateCompleted, "done")
	var stateErr *StateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, "Invalid transition: submitted -> completed", err.Error())
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, StateSubmitted, m.State())
	assert.Empty(t, m.History())

	err = m.TransitionTo(ctx, State("paused"), "")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestManager_TerminalIsAbsorbing(t *testing.T) {
	ctx := context.Background()
	up := &fakeUpdater{}
	m := NewManager("t1", "", up)

	require.NoError(t, m.CancelTask(ctx, ""))
	assert.Equal(t, StateCanceled, m.State())
	assert.Equal(t, "Task cancelled by user", up.snapshot()[0].text)

	// Convenience methods become no-ops once terminal.
	require.NoError(t, m.FailTask(ctx, "late"))
	require.NoError(t, m.CancelTask(ctx, "again"))
	require.NoError(t, m.StartWorking(ctx, ""))
	assert.Equal(t, StateCanceled, m.State())
	assert.Len(t, up.snapshot(), 1)

	err := m.TransitionTo(ctx, StateWorking, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestManager_DefaultMessages(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		setup func(m *Manager)
		act   func(m *Manager) error
		want  statusEvent
	}{
		{
			name:  "fail",
			setup: func(m *Manager) { _ = m.StartWorking(ctx, "go") },
			act:   func(m *Manager) error { return m.TransitionTo(ctx, StateFailed, "") },
			want:  statusEvent{state: StateFailed, text: "Task failed", final: true},
		},
		{
			name:  "input required",
			setup: func(m *Manager) { _ = m.StartWorking(ctx, "go") },
			act:   func(m *Manager) error { return m.TransitionTo(ctx, StateInputRequired, "") },
			want:  statusEvent{state: StateInputRequired, text: "Additional input required to continue", final: true},
		},
		{
			name:  "reject",
			setup: func(*Manager) {},
			act:   func(m *Manager) error { return m.RejectTask(ctx, "") },
			want:  statusEvent{state: StateRejected, text: "Cannot process this request", final: true},
		},
		{
			name:  "auth",
			setup: func(*Manager) {},
			act:   func(m *Manager) error { return m.RequireAuth(ctx, "") },
			want:  statusEvent{state: StateAuthRequired, text: "Authentication required to continue", final: true},
		},
		{
			name:  "cancel transition",
			setup: func(*Manager) {},
			act:   func(m *Manager) error { return m.TransitionTo(ctx, StateCanceled, "") },
			want:  statusEvent{state: StateCanceled, text: "Task cancelled", final: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			up := &fakeUpdater{}
			m := NewManager("t", "", up, WithHeartbeatInterval(time.Hour))
			tt.setup(m)
			require.NoError(t, tt.act(m))
			events := up.snapshot()
			require.NotEmpty(t, events)
			assert.Equal(t, tt.want, events[len(events)-1])
			m.StopHeartbeat()
		})
	}
}

func TestManager_Preconditions(t *testing.T) {
	ctx := context.Background()
	up := &fakeUpdater{}
	m := NewManager("t", "", up)

	// Not working yet: these are ignored.
	require.NoError(t, m.CompleteTask(ctx, ""))
	require.NoError(t, m.RequestInput(ctx, "more?"))
	assert.Equal(t, StateSubmitted, m.State())
	assert.Empty(t, up.snapshot())

	require.NoError(t, m.StartWorking(ctx, ""))
	require.NoError(t, m.RejectTask(ctx, "nope"))
	assert.Equal(t, StateWorking, m.State())

	require.NoError(t, m.RequestInput(ctx, "which file?"))
	assert.Equal(t, StateInputRequired, m.State())
	require.NoError(t, m.RequireAuth(ctx, ""))
	assert.Equal(t, StateInputRequired, m.State())

	require.NoError(t, m.CompleteTask(ctx, "thanks"))
	assert.Equal(t, StateCompleted, m.State())
}

func TestManager_RequireAuthThenResume(t *testing.T) {
	ctx := context.Background()
	m := NewManager("t", "", &fakeUpdater{}, WithHeartbeatInterval(time.Hour))

	require.NoError(t, m.RequireAuth(ctx, "login please"))
	assert.Equal(t, StateAuthRequired, m.State())
	assert.True(t, m.IsActive())

	history := m.History()
	require.Len(t, history, 1)
	assert.Equal(t, Transition{From: StateSubmitted, To: StateAuthRequired, Timestamp: history[0].Timestamp, Message: "login please"}, history[0])

	require.NoError(t, m.TransitionTo(ctx, StateWorking, "resumed"))
	assert.Equal(t, StateWorking, m.State())

	// The helper and the table agree.
	direct := NewManager("d", "", &fakeUpdater{}, WithHeartbeatInterval(time.Hour))
	require.NoError(t, direct.TransitionTo(ctx, StateAuthRequired, ""))
	assert.Equal(t, StateAuthRequired, direct.State())

	paused := NewManager("p", "", &fakeUpdater{}, WithInitialState(StateInputRequired), WithHeartbeatInterval(time.Hour))
	require.NoError(t, paused.RequireAuth(ctx, ""))
	assert.Equal(t, StateInputRequired, paused.State())
	var stateErr *StateError
	assert.ErrorAs(t, paused.TransitionTo(ctx, StateAuthRequired, ""), &stateErr)
}

func TestManager_UpdaterErrorStillAdvances(t *testing.T) {
	boom := errors.New("queue closed")
	m := NewManager("t", "", &fakeUpdater{err: boom})

	err := m.TransitionTo(context.Background(), StateWorking, "")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, StateWorking, m.State())
}

func TestManager_ContextID(t *testing.T) {
	m := NewManager("t", "given", nil)
	assert.Equal(t, "given", m.ContextID())

	m = NewManager("t", "", nil)
	id := m.ContextID()
	assert.Regexp(t, `^ctx_[0-9a-f]{8}$`, id)
	assert.Equal(t, id, m.ContextID())
}

func TestManager_RecoverInterruptedTask(t *testing.T) {
	ctx := context.Background()

	up := &fakeUpdater{}
	m := NewManager("t", "", up, WithInitialState(StateWorking))
	ok, err := m.RecoverInterruptedTask(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, StateFailed, m.State())
	assert.Equal(t, InterruptedMessage, up.snapshot()[0].text)

	m = NewManager("t2", "", &fakeUpdater{})
	ok, err = m.RecoverInterruptedTask(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestManager_Heartbeat(t *testing.T) {
	ctx := context.Background()
	up := &fakeUpdater{}
	m := NewManager("t", "", up, WithHeartbeatInterval(10*time.Millisecond))

	require.NoError(t, m.StartWorking(ctx, ""))
	m.StartHeartbeat(ctx) // idempotent

	require.Eventually(t, func() bool {
		for _, e := range up.snapshot() {
			if e.text == HeartbeatMessage {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, m.CompleteTask(ctx, ""))
	count := len(up.snapshot())
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, count, len(up.snapshot()), "no heartbeats after terminal state")
}

type recordingObserver struct {
	mu    sync.Mutex
	moves []string
}

func (r *recordingObserver) OnTransition(_ string, from, to State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.moves = append(r.moves, string(from)+"->"+string(to))
}

func TestManager_StateInfo(t *testing.T) {
	ctx := context.Background()
	obs := &recordingObserver{}
	m := NewManager("t-42", "ctx-1", &fakeUpdater{}, WithObserver(obs), WithHeartbeatInterval(time.Hour))
	require.NoError(t, m.StartWorking(ctx, ""))

	info := m.StateInfo()
	assert.Equal(t, "t-42", info.TaskID)
	assert.Equal(t, "ctx-1", info.ContextID)
	assert.Equal(t, StateWorking, info.CurrentState)
	assert.False(t, info.IsTerminal)
	assert.True(t, info.IsActive)
	assert.True(t, info.CanCancel)
	assert.Equal(t, 1, info.HistoryCount)
	assert.NotEmpty(t, info.CreatedAt)
	_, err := time.Parse(time.RFC3339, info.UpdatedAt)
	assert.NoError(t, err)

	assert.Equal(t, []string{"submitted->working"}, obs.moves)
	m.StopHeartbeat()
}
