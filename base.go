// Copyright (C) 2017 Michael J. Fromberger. All Rights Reserved.

package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/socotra/mcp-go/code"
)

// An Assigner assigns a Handler to handle the specified method name, or nil if
// no method is available to handle the request.
type Assigner interface {
	// Assign returns the handler for the named method, or nil.
	// The implementation can obtain the complete request from ctx using the
	// mcp.InboundRequest function.
	Assign(ctx context.Context, method string) Handler
}

// Namer is an optional interface that an Assigner may implement to expose the
// names of its methods, as NewServer's strict-capability check does.
type Namer interface {
	// Names returns all known method names in lexicographic order.
	Names() []string
}

// A Handler implements a method given a request. The response value must be
// JSON-marshalable or nil. In case of error, the handler can return a value of
// type *mcp.Error to control the response code sent back to the caller;
// otherwise the engine will wrap the resulting value with code.InternalError.
//
// The context passed to the handler by a *mcp.Server includes two special
// values the handler may extract: the server via mcp.ServerFromContext, and
// the inbound request via mcp.InboundRequest.
type Handler = func(context.Context, *Request) (any, error)

// A Schema is the typed counterpart of a Handler: it pairs a method literal
// with a strict parser, matching §4.A's requirement that a registered method
// expose a string literal "method" field and a safeParse(data) function. Most
// MCP methods are defined this way rather than as raw Handlers so that
// params/result types are checked at the call site.
type Schema[T any] struct {
	Method string
	Parse  func(json.RawMessage) (T, error)
}

// SafeParse decodes data as T. Empty data reports ok=false with a nil error,
// malformed data reports ok=false with the parse error, so callers can
// distinguish "absent" from "malformed" without a type switch.
func (s Schema[T]) SafeParse(data json.RawMessage) (value T, ok bool, err error) {
	if len(data) == 0 {
		return value, false, nil
	}
	value, err = s.Parse(data)
	return value, err == nil, err
}

// A Request is a request message from one peer to the other.
type Request struct {
	id     json.RawMessage // the request ID, nil for notifications
	method string          // the name of the method being requested
	params json.RawMessage // method parameters
}

// IsNotification reports whether the request is a notification, and thus does
// not require a value response.
func (r *Request) IsNotification() bool { return r.id == nil }

// ID returns the request identifier for r, or "" if r is a notification.
func (r *Request) ID() string { return string(r.id) }

// Method reports the method name for the request.
func (r *Request) Method() string { return r.method }

// HasParams reports whether the request has non-empty parameters.
func (r *Request) HasParams() bool { return len(r.params) != 0 }

// UnmarshalParams decodes the request parameters of r into v. If r has empty
// parameters, it returns nil without modifying v. If the parameters are
// invalid, UnmarshalParams returns an InvalidParams error.
//
// By default, unknown object keys are ignored when unmarshaling into a v of
// struct type. If the type of v implements DisallowUnknownFields, unknown
// fields instead generate an InvalidParams error; mcp.StrictFields adapts an
// existing struct value to this interface.
func (r *Request) UnmarshalParams(v any) error {
	if len(r.params) == 0 {
		return nil
	}
	switch t := v.(type) {
	case *json.RawMessage:
		*t = json.RawMessage(string(r.params)) // copy
		return nil
	case strictFielder:
		dec := json.NewDecoder(bytes.NewReader(r.params))
		dec.DisallowUnknownFields()
		if err := dec.Decode(v); err != nil {
			return errInvalidParams.WithData(err.Error())
		}
		return nil
	}
	if err := json.Unmarshal(r.params, v); err != nil {
		return errInvalidParams.WithData(err.Error())
	}
	return nil
}

// ParamString returns the encoded request parameters of r as a string.
func (r *Request) ParamString() string { return string(r.params) }

// A Response is a response message from the called peer back to the caller.
type Response struct {
	id     string
	err    *Error
	result json.RawMessage

	// Waiters synchronize on reading from ch. The first successful reader from
	// ch completes the request and is responsible for updating the response
	// fields and then closing ch. The sender owns writing to ch, and ensures
	// that at most one write is ever performed.
	ch     chan *jmessage
	cancel func()
}

// ID returns the request identifier for r.
func (r *Response) ID() string { return r.id }

// Error returns a non-nil *Error if the response contains an error.
func (r *Response) Error() *Error { return r.err }

// UnmarshalResult decodes the result message into v. If the request failed,
// UnmarshalResult returns the same *Error value returned by r.Error(), and v
// is left unmodified.
func (r *Response) UnmarshalResult(v any) error {
	if r.err != nil {
		return r.err
	}
	switch t := v.(type) {
	case *json.RawMessage:
		*t = json.RawMessage(string(r.result)) // copy
		return nil
	case strictFielder:
		dec := json.NewDecoder(bytes.NewReader(r.result))
		dec.DisallowUnknownFields()
		return dec.Decode(v)
	}
	return json.Unmarshal(r.result, v)
}

// ResultString returns the encoded result message of r as a string. If r has
// no result, for example if r is an error response, it returns "".
func (r *Response) ResultString() string { return string(r.result) }

// MarshalJSON converts the response to equivalent wire JSON.
func (r *Response) MarshalJSON() ([]byte, error) {
	return (&jmessage{
		ID: json.RawMessage(r.id),
		R:  r.result,
		E:  r.err,
	}).toJSON()
}

// wait blocks until r is complete. It is safe to call this multiple times and
// from concurrent goroutines.
func (r *Response) wait() {
	raw, ok := <-r.ch
	if ok {
		// The first waiter to get a real value (ok == true) updates the
		// response, THEN closes the channel and cancels the context. This
		// order ensures subsequent waiters see the same response and do not
		// race on accessing it.
		r.err = raw.E
		r.result = raw.R
		close(r.ch)
		r.cancel() // release the context observer

		if id := string(fixID(raw.ID)); id != r.id {
			panic(fmt.Sprintf("mismatched response ID %q expecting %q", id, r.id))
		}
	}
}

// filterError distinguishes context errors from other error types. If err is
// not a context error, it is returned unchanged.
func filterError(e *Error) error {
	switch e.Code {
	case code.Cancelled:
		return context.Canceled
	case code.DeadlineExceeded:
		return context.DeadlineExceeded
	}
	return e
}
