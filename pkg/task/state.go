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
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/a2aproject/a2a-go/a2a"
)

// State is a task lifecycle state.
type State string

const (
	StateSubmitted     State = "submitted"
	StateWorking       State = "working"
	StateInputRequired State = "input_required"
	StateCompleted     State = "completed"
	StateCanceled      State = "canceled"
	StateFailed        State = "failed"
	StateRejected      State = "rejected"
	StateAuthRequired  State = "auth_required"
	StateUnknown       State = "unknown"
)

var (
	// ErrInvalidTransition is wrapped by StateError for disallowed moves.
	ErrInvalidTransition = errors.New("invalid task state transition")
	// ErrInvalidState is wrapped by StateError for unknown state names.
	ErrInvalidState = errors.New("invalid task state")
)

// transitions is the adjacency map of allowed moves. Terminal states
// have no outgoing edges.
var transitions = map[State][]State{
	StateSubmitted:     {StateWorking, StateRejected, StateCanceled, StateAuthRequired},
	StateWorking:       {StateInputRequired, StateCompleted, StateFailed, StateCanceled, StateAuthRequired},
	StateInputRequired: {StateWorking, StateCanceled},
	StateAuthRequired:  {StateWorking, StateCanceled},
	StateUnknown:       {StateWorking, StateFailed},
	StateCompleted:     nil,
	StateCanceled:      nil,
	StateFailed:        nil,
	StateRejected:      nil,
}

var wireStates = map[State]a2a.TaskState{
	StateSubmitted:     a2a.TaskStateSubmitted,
	StateWorking:       a2a.TaskStateWorking,
	StateInputRequired: a2a.TaskStateInputRequired,
	StateCompleted:     a2a.TaskStateCompleted,
	StateCanceled:      a2a.TaskStateCanceled,
	StateFailed:        a2a.TaskStateFailed,
	StateRejected:      a2a.TaskStateRejected,
	StateAuthRequired:  a2a.TaskStateAuthRequired,
	StateUnknown:       a2a.TaskStateUnknown,
}

// States returns every known state in declaration order.
func States() []State {
	return []State{
		StateSubmitted, StateWorking, StateInputRequired, StateCompleted, StateCanceled,
		StateFailed, StateRejected, StateAuthRequired, StateUnknown,
	}
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// IsTerminal reports whether no transition leaves s.
func (s State) IsTerminal() bool {
	switch s {
	case StateCompleted, StateCanceled, StateFailed, StateRejected:
		return true
	}
	return false
}

// IsActive reports whether work is in progress or paused awaiting the client.
func (s State) IsActive() bool {
	switch s {
	case StateWorking, StateInputRequired, StateAuthRequired:
		return true
	}
	return false
}

// CanTransitionTo reports whether s -> to is allowed.
func (s State) CanTransitionTo(to State) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Wire returns the protocol representation of s.
func (s State) Wire() a2a.TaskState {
	if ws, ok := wireStates[s]; ok {
		return ws
	}
	return a2a.TaskStateUnknown
}

func (s State) String() string {
	return string(s)
}

// FromWire converts a protocol state to State.
func FromWire(ws a2a.TaskState) State {
	for s, w := range wireStates {
		if w == ws {
			return s
		}
	}
	return StateUnknown
}

// ParseState accepts both the snake_case names and the protocol's
// kebab-case names.
func ParseState(name string) (State, error) {
	s := State(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_"))
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidState, name)
	}
	return s, nil
}

// StateError reports a rejected transition.
type StateError struct {
	From State
	To   string
	err  error
}

func (e *StateError) Error() string {
	return fmt.Sprintf("Invalid transition: %s -> %s", e.From, e.To)
}

func (e *StateError) Unwrap() error {
	return e.err
}

// Transition is one entry of a task's state history.
type Transition struct {
	From      State     `json:"from"`
	To        State     `json:"to"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message,omitempty"`
}
