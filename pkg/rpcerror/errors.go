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

// Package rpcerror defines JSON-RPC and A2A error codes, typed errors
// carrying those codes, and the JSON-RPC error envelope.
package rpcerror

import (
	"errors"
	"fmt"

	"github.com/a2aproject/a2a-go/a2a"
)

// JSON-RPC 2.0 codes.
const (
	ParseError     = -32700
	InvalidRequest = -32600
	MethodNotFound = -32601
	InvalidParams  = -32602
	InternalError  = -32603
)

// A2A protocol codes.
const (
	TaskNotFound                = -32001
	TaskTerminalState           = -32002
	UnsupportedStreaming        = -32003
	UnsupportedPushNotification = -32004
	AuthenticationRequired      = -32005
	InvalidAgentResponse        = -32006
	ExtendedCardNotConfigured   = -32007
)

// Sentinels recognised by CodeFor. Wrap them to classify domain errors.
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrPermission      = errors.New("permission denied")
	ErrNotImplemented  = errors.New("not implemented")
	ErrTimeout         = errors.New("timeout")
)

// Error is an error with a JSON-RPC code and optional structured data.
type Error struct {
	Code    int
	Message string
	Data    map[string]any
	Cause   error

	// kind names the error class in envelopes, e.g. "TaskNotFoundError".
	kind string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Kind returns the class name reported as data.type in envelopes.
func (e *Error) Kind() string {
	if e.kind != "" {
		return e.kind
	}
	return "A2AError"
}

// New creates an Error with the given code and message.
func New(code int, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithData returns e after merging data into it.
func (e *Error) WithData(data map[string]any) *Error {
	if len(data) == 0 {
		return e
	}
	if e.Data == nil {
		e.Data = make(map[string]any, len(data))
	}
	for k, v := range data {
		e.Data[k] = v
	}
	return e
}

func NewTaskNotFound(taskID string) *Error {
	return &Error{
		Code:    TaskNotFound,
		Message: fmt.Sprintf("Task not found: %s", taskID),
		Data:    map[string]any{"task_id": taskID},
		Cause:   a2a.ErrTaskNotFound,
		kind:    "TaskNotFoundError",
	}
}

func NewTaskTerminalState(taskID, state string) *Error {
	return &Error{
		Code:    TaskTerminalState,
		Message: fmt.Sprintf("Task %s is in terminal state: %s", taskID, state),
		Data:    map[string]any{"task_id": taskID, "state": state},
		kind:    "TaskTerminalStateError",
	}
}

func NewStreamingNotSupported() *Error {
	return &Error{
		Code:    UnsupportedStreaming,
		Message: "This agent does not support streaming",
		kind:    "StreamingNotSupportedError",
	}
}

func NewPushNotSupported() *Error {
	return &Error{
		Code:    UnsupportedPushNotification,
		Message: "This agent does not support push notifications",
		kind:    "PushNotificationNotSupportedError",
	}
}

// NewAuthentication reports missing or invalid credentials. An empty
// message falls back to "Authentication required"; scheme is added to
// the data when set.
func NewAuthentication(message, scheme string) *Error {
	if message == "" {
		message = "Authentication required"
	}
	e := &Error{Code: AuthenticationRequired, Message: message, Cause: ErrPermission, kind: "AuthenticationError"}
	if scheme != "" {
		e.Data = map[string]any{"auth_scheme": scheme}
	}
	return e
}

func NewInvalidAgentResponse(message string) *Error {
	return &Error{
		Code:    InvalidAgentResponse,
		Message: fmt.Sprintf("Invalid agent response: %s", message),
		kind:    "InvalidAgentResponseError",
	}
}

// NewServiceUnavailable is an internal error signalling a dependency
// is temporarily refusing work (e.g. an open circuit).
func NewServiceUnavailable(message string) *Error {
	if message == "" {
		message = "Service temporarily unavailable"
	}
	return &Error{Code: InternalError, Message: message, kind: "ServiceUnavailableError"}
}

func NewInvalidParams(message string) *Error {
	return &Error{Code: InvalidParams, Message: message, Cause: ErrInvalidArgument, kind: "InvalidParamsError"}
}

func NewExtendedCardNotConfigured() *Error {
	return &Error{
		Code:    ExtendedCardNotConfigured,
		Message: "Authenticated extended card is not configured",
		kind:    "ExtendedCardNotConfiguredError",
	}
}

// Internal wraps err as an internal error, keeping an existing *Error as is.
func Internal(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Code: InternalError, Message: err.Error(), Cause: err, kind: "InternalError"}
}
