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

	"github.com/a2aproject/a2a-go/a2a"
)

// CodeFor maps an arbitrary error to the JSON-RPC code it should be
// reported with.
func CodeFor(err error) int {
	if err == nil {
		return 0
	}

	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr.Code
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return ParseError
	}

	var numErr *strconv.NumError
	if errors.Is(err, ErrInvalidArgument) || errors.Is(err, a2a.ErrInvalidParams) || errors.As(err, &numErr) {
		return InvalidParams
	}

	if errors.Is(err, ErrPermission) || errors.Is(err, os.ErrPermission) {
		return AuthenticationRequired
	}

	if errors.Is(err, ErrNotImplemented) || errors.Is(err, errors.ErrUnsupported) {
		return MethodNotFound
	}

	// Timeouts and everything else are reported as internal errors.
	return InternalError
}

// IsTimeout reports whether err is a deadline or timeout failure.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrTimeout)
}

// TypeName returns the class name used as data.type in envelopes.
func TypeName(err error) string {
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr.Kind()
	}
	switch {
	case IsTimeout(err):
		return "TimeoutError"
	case errors.Is(err, ErrInvalidArgument):
		return "InvalidArgumentError"
	case errors.Is(err, ErrPermission), errors.Is(err, os.ErrPermission):
		return "PermissionError"
	case errors.Is(err, ErrNotImplemented):
		return "NotImplementedError"
	}
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return "ParseError"
	}
	return fmt.Sprintf("%T", err)
}
