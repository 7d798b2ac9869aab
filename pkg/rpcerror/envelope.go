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
	"errors"
	"os"
	"runtime/debug"
	"strings"
	"time"
)

// Context describes where an error happened.
type Context struct {
	TaskID    string `json:"task_id,omitempty"`
	ContextID string `json:"context_id,omitempty"`
	Agent     string `json:"agent,omitempty"`
	Method    string `json:"method,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// Body is the "error" member of a JSON-RPC response.
type Body struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// Response is a JSON-RPC 2.0 error response.
type Response struct {
	JSONRPC string `json:"jsonrpc"`
	Error   Body   `json:"error"`
	ID      any    `json:"id"`
}

// DebugEnabled reports whether A2A_DEBUG asks for stack traces in envelopes.
func DebugEnabled() bool {
	return strings.EqualFold(os.Getenv("A2A_DEBUG"), "true")
}

// Envelope builds the JSON-RPC error response for err.
func Envelope(err error, requestID any, ectx *Context) Response {
	if err == nil {
		err = errors.New("unknown error")
	}

	data := map[string]any{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"type":      TypeName(err),
	}

	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		for k, v := range rpcErr.Data {
			data[k] = v
		}
	}

	if ectx != nil {
		data["context"] = *ectx
	}

	if DebugEnabled() {
		data["traceback"] = string(debug.Stack())
	}

	return Response{
		JSONRPC: "2.0",
		Error: Body{
			Code:    CodeFor(err),
			Message: err.Error(),
			Data:    data,
		},
		ID: requestID,
	}
}

// Enrich flattens err and its context into a map suitable for structured
// logging.
func Enrich(err error, ectx Context) map[string]any {
	out := map[string]any{
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
		"error_type":    TypeName(err),
		"error_message": "",
	}
	if err != nil {
		out["error_message"] = err.Error()
	}

	for k, v := range map[string]string{
		"task_id":    ectx.TaskID,
		"context_id": ectx.ContextID,
		"agent":      ectx.Agent,
		"method":     ectx.Method,
		"request_id": ectx.RequestID,
	} {
		if v != "" {
			out[k] = v
		}
	}
	return out
}

// LogAttrs converts Enrich output into slog key/value pairs.
func LogAttrs(err error, ectx Context) []any {
	enriched := Enrich(err, ectx)
	attrs := make([]any, 0, len(enriched)*2)
	for k, v := range enriched {
		attrs = append(attrs, k, v)
	}
	return attrs
}
