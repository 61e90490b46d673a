// Copyright (C) 2017 Michael J. Fromberger. All Rights Reserved.

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/socotra/mcp-go/code"
)

// Error is the concrete type of errors returned from RPC calls.
// It also represents the JSON encoding of the JSON-RPC error object.
type Error struct {
	Code    code.Code       `json:"code"`              // the machine-readable error code
	Message string          `json:"message,omitempty"` // the human-readable error message
	Data    json.RawMessage `json:"data,omitempty"`    // optional ancillary error data
}

// Error returns a human-readable description of e.
func (e *Error) Error() string { return fmt.Sprintf("[%d] %s", e.Code, e.Message) }

// ErrCode trivially satisfies the ErrCoder interface for an *Error.
func (e *Error) ErrCode() code.Code { return e.Code }

// WithData marshals v as JSON and constructs a copy of e whose Data field
// includes the result. If v == nil or if marshaling v fails, e is returned
// without modification.
func (e *Error) WithData(v any) *Error {
	if v == nil {
		return e
	} else if data, err := json.Marshal(v); err == nil {
		return &Error{Code: e.Code, Message: e.Message, Data: data}
	}
	return e
}

// An ErrCoder is a value that can report an error code.
type ErrCoder interface {
	ErrCode() code.Code
}

// ErrorCode categorizes err the way the wire layer does: nil maps to
// code.NoError, a wrapped ErrCoder reports its own code, context
// cancellation and deadline errors map to their MCP counterparts, and
// anything else is code.SystemError.
func ErrorCode(err error) code.Code {
	if err == nil {
		return code.NoError
	}
	var c ErrCoder
	if errors.As(err, &c) {
		return c.ErrCode()
	} else if errors.Is(err, context.Canceled) {
		return code.Cancelled
	} else if errors.Is(err, context.DeadlineExceeded) {
		return code.DeadlineExceeded
	}
	return code.SystemError
}

// errServerStopped is recorded when the server is shut down by an explicit
// call to its Stop method. WaitStatus reports it as Stopped with a nil Err.
var errServerStopped = errors.New("the server has been stopped")

// errClientStopped is the error reported when a client is shut down by an
// explicit call to its Close method.
var errClientStopped = errors.New("the client has been stopped")

// errEmptyMethod is the error reported for an empty request method name.
var errEmptyMethod = &Error{Code: code.InvalidRequest, Message: "empty method name"}

// errNoSuchMethod is the error reported for an unknown method name.
var errNoSuchMethod = &Error{Code: code.MethodNotFound, Message: code.MethodNotFound.Error()}

// errDuplicateID is the error reported for a duplicated request ID.
var errDuplicateID = &Error{Code: code.InvalidRequest, Message: "duplicate request ID"}

// errInvalidRequest is the error reported for an invalid request object or batch.
var errInvalidRequest = &Error{Code: code.ParseError, Message: "invalid request value"}

// errEmptyBatch is the error reported for an empty request batch.
var errEmptyBatch = &Error{Code: code.InvalidRequest, Message: "empty request batch"}

// errInvalidParams is the error reported for invalid request parameters.
var errInvalidParams = &Error{Code: code.InvalidParams, Message: code.InvalidParams.Error()}

// ErrConnClosed is returned by a server's push-to-client methods if they are
// invoked after the connection closed.
var ErrConnClosed = errors.New("connection is closed")

// errTaskNotExecuted is the error reported for a request whose task was
// never assigned a handler (e.g. a duplicate ID or malformed batch entry
// that failed validation before dispatch).
var errTaskNotExecuted = &Error{Code: code.InternalError, Message: "method was not executed"}

// Errorf returns an error value of concrete type *Error having the specified
// code and formatted message string.
func Errorf(c code.Code, msg string, args ...any) *Error {
	return &Error{Code: c, Message: fmt.Sprintf(msg, args...)}
}
