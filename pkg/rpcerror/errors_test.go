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

package rpcerror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"testing"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name    string
		err     *Error
		code    int
		message string
		data    map[string]any
	}{
		{"task not found", NewTaskNotFound("t-1"), TaskNotFound, "Task not found: t-1", map[string]any{"task_id": "t-1"}},
		{"terminal", NewTaskTerminalState("t-2", "completed"), TaskTerminalState, "Task t-2 is in terminal state: completed",
			map[string]any{"task_id": "t-2", "state": "completed"}},
		{"streaming", NewStreamingNotSupported(), UnsupportedStreaming, "This agent does not support streaming", nil},
		{"push", NewPushNotSupported(), UnsupportedPushNotification, "This agent does not support push notifications", nil},
		{"auth default", NewAuthentication("", ""), AuthenticationRequired, "Authentication required", nil},
		{"auth scheme", NewAuthentication("token expired", "Bearer"), AuthenticationRequired, "token expired",
			map[string]any{"auth_scheme": "Bearer"}},
		{"invalid response", NewInvalidAgentResponse("empty"), InvalidAgentResponse, "Invalid agent response: empty", nil},
		{"unavailable", NewServiceUnavailable(""), InternalError, "Service temporarily unavailable", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.message, tt.err.Error())
			assert.Equal(t, tt.data, tt.err.Data)
		})
	}
}

func TestTaskNotFoundWrapsSDKSentinel(t *testing.T) {
	assert.ErrorIs(t, NewTaskNotFound("x"), a2a.ErrTaskNotFound)
}

func TestCodeFor(t *testing.T) {
	var syntaxErr error = &json.SyntaxError{}
	_, numErr := strconv.Atoi("nope")

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"rpc error", NewTaskNotFound("a"), TaskNotFound},
		{"wrapped rpc error", fmt.Errorf("outer: %w", NewPushNotSupported()), UnsupportedPushNotification},
		{"json syntax", syntaxErr, ParseError},
		{"invalid argument", fmt.Errorf("bad: %w", ErrInvalidArgument), InvalidParams},
		{"num error", numErr, InvalidParams},
		{"sdk invalid params", fmt.Errorf("bad: %w", a2a.ErrInvalidParams), InvalidParams},
		{"permission", os.ErrPermission, AuthenticationRequired},
		{"not implemented", ErrNotImplemented, MethodNotFound},
		{"unsupported", errors.ErrUnsupported, MethodNotFound},
		{"deadline", context.DeadlineExceeded, InternalError},
		{"plain", errors.New("boom"), InternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CodeFor(tt.err))
		})
	}
	assert.Zero(t, CodeFor(nil))
}

func TestEnvelope(t *testing.T) {
	t.Setenv("A2A_DEBUG", "")

	resp := Envelope(NewTaskTerminalState("t-9", "failed"), "req-1", &Context{TaskID: "t-9", Agent: "echo"})

	assert.Equal(t, "2.0", resp.JSONRPC)
	assert.Equal(t, "req-1", resp.ID)
	assert.Equal(t, TaskTerminalState, resp.Error.Code)
	assert.Equal(t, "Task t-9 is in terminal state: failed", resp.Error.Message)
	assert.Equal(t, "TaskTerminalStateError", resp.Error.Data["type"])
	assert.Equal(t, "t-9", resp.Error.Data["task_id"])
	assert.Equal(t, "failed", resp.Error.Data["state"])
	assert.NotEmpty(t, resp.Error.Data["timestamp"])
	assert.Equal(t, Context{TaskID: "t-9", Agent: "echo"}, resp.Error.Data["context"])
	assert.NotContains(t, resp.Error.Data, "traceback")

	raw, err := json.Marshal(resp)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "2.0", decoded["jsonrpc"])
	assert.Contains(t, decoded, "error")
}

func TestEnvelope_DebugTraceback(t *testing.T) {
	t.Setenv("A2A_DEBUG", "true")

	resp := Envelope(errors.New("boom"), 7, nil)
	assert.Equal(t, InternalError, resp.Error.Code)
	assert.Contains(t, resp.Error.Data["traceback"], "goroutine")
	assert.NotContains(t, resp.Error.Data, "context")
}

func TestEnrich(t *testing.T) {
	out := Enrich(fmt.Errorf("bad input: %w", ErrInvalidArgument), Context{TaskID: "t", Method: "message/send"})

	assert.Equal(t, "InvalidArgumentError", out["error_type"])
	assert.Equal(t, "bad input: invalid argument", out["error_message"])
	assert.Equal(t, "t", out["task_id"])
	assert.Equal(t, "message/send", out["method"])
	assert.NotContains(t, out, "agent")
	assert.NotEmpty(t, out["timestamp"])
}

func TestInternalKeepsTypedError(t *testing.T) {
	orig := NewTaskNotFound("a")
	assert.Same(t, orig, Internal(fmt.Errorf("wrap: %w", orig)))

	plain := Internal(errors.New("x"))
	assert.Equal(t, InternalError, plain.Code)
	assert.Nil(t, Internal(nil))
}
