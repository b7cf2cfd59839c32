// Copyright 2025 Tom Barlow
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

// Package mcperrors defines the unified error taxonomy surfaced to MCP
// clients as JSON-RPC {code, message} objects.
package mcperrors

import "fmt"

// Kind identifies one of the closed set of MCP error categories.
type Kind string

const (
	KindParseError          Kind = "parse_error"
	KindInvalidRequest      Kind = "invalid_request"
	KindToolNotFound        Kind = "tool_not_found"
	KindInvalidArguments    Kind = "invalid_arguments"
	KindInternalError       Kind = "internal_error"
	KindOdooError           Kind = "odoo_error"
	KindAuthenticationError Kind = "authentication_error"
	KindAccessDenied        Kind = "access_denied"
	KindOperationDisabled   Kind = "operation_disabled"
	KindTimeout             Kind = "timeout"
	KindTransportError      Kind = "transport_error"
)

// codes maps each Kind to its JSON-RPC error code.
var codes = map[Kind]int{
	KindParseError:          -32700,
	KindInvalidRequest:      -32600,
	KindToolNotFound:        -32601,
	KindInvalidArguments:    -32602,
	KindInternalError:       -32603,
	KindOdooError:           -32000,
	KindAuthenticationError: -32001,
	KindAccessDenied:        -32002,
	KindOperationDisabled:   -32003,
	KindTimeout:             -32004,
	KindTransportError:      -32005,
}

// Error is the taxonomy's concrete type. It implements error and carries
// enough structure to be rendered directly as a JSON-RPC error object.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap supports errors.Is/errors.As against the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Code returns the JSON-RPC error code for this error's Kind.
func (e *Error) Code() int {
	return codes[e.Kind]
}

// New creates an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an Error of the given kind wrapping an underlying cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// ParseError, InvalidRequest, ... are convenience constructors, one per kind.

func ParseError(message string) *Error { return New(KindParseError, message) }

func InvalidRequest(message string) *Error { return New(KindInvalidRequest, message) }

func ToolNotFound(name string) *Error {
	return New(KindToolNotFound, fmt.Sprintf("tool not found: %s", name))
}

func InvalidArguments(message string) *Error { return New(KindInvalidArguments, message) }

func InternalError(message string, cause error) *Error {
	return Wrap(KindInternalError, message, cause)
}

func OdooError(message string, cause error) *Error {
	return Wrap(KindOdooError, message, cause)
}

func AuthenticationError(message string) *Error { return New(KindAuthenticationError, message) }

func AccessDenied(message string) *Error { return New(KindAccessDenied, message) }

func OperationDisabled(message string) *Error { return New(KindOperationDisabled, message) }

func Timeout(message string) *Error { return New(KindTimeout, message) }

func TransportError(message string, cause error) *Error {
	return Wrap(KindTransportError, message, cause)
}

// CodeOf returns the JSON-RPC code for err if it is (or wraps) an *Error,
// otherwise -32603 (InternalError).
func CodeOf(err error) int {
	var e *Error
	if as(err, &e) {
		return e.Code()
	}
	return codes[KindInternalError]
}

// MessageOf returns the top-level message for err, falling back to err.Error().
func MessageOf(err error) string {
	var e *Error
	if as(err, &e) {
		return e.Message
	}
	return err.Error()
}

// as is a small local indirection around errors.As to avoid importing
// "errors" twice under two names in callers that also alias this package.
func as(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
