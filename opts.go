// Copyright (C) 2017 Michael J. Fromberger. All Rights Reserved.

package mcp

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/socotra/mcp-go/schema"
)

// ServerOptions control the behaviour of a server created by NewServer.
// A nil *ServerOptions provides sensible defaults.
type ServerOptions struct {
	// Identity advertised to the client during initialize.
	Info ServerInfo

	// Capabilities this server declares during initialize. The capability
	// gate (capability.go) consults this value before allowing a handler to
	// be registered for a method requiring a capability.
	Capabilities ServerCapabilities

	// If not nil, send structured debug logs here.
	Logger *zap.Logger

	// If not nil, the methods of this value are called to log each request
	// received and each response or error returned.
	RPCLog RPCLogger

	// Validator compiles the requested schemas that ElicitInput checks
	// elicitation responses against. If nil, schema.NewJSONSchemaValidator()
	// is used.
	Validator schema.Validator

	// Completions attaches autocompletion callbacks to prompt and resource
	// argument slots (§4.H). If nil, completion/complete always returns an
	// empty completion set, even when Capabilities.Completions is declared.
	Completions *schema.CompletionRegistry

	// Instructs the server to allow server-initiated requests to the client
	// (createMessage, listRoots, elicitInput), a non-standard extension of
	// plain JSON-RPC request/response symmetry that MCP requires. If false,
	// these methods report errors.
	AllowPush bool

	// Require that handler registration for a method whose required
	// capability this server did not declare fails synchronously.
	EnforceStrictCapabilities bool

	// Methods eligible for debounced (coalesced) notification sends. If nil,
	// the list-changed notifications are debounced by default.
	DebounceMethods map[string]bool

	// Allows up to the specified number of goroutines to execute in parallel
	// in request handlers. A value less than 1 uses runtime.NumCPU().
	Concurrency int

	// If set, this function is called to create a new base request context.
	NewContext func() context.Context

	// If nonzero, this value is used as the server start time.
	StartTime time.Time
}

func (s *ServerOptions) logger() *zap.Logger {
	if s == nil || s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func (s *ServerOptions) allowPush() bool    { return s != nil && s.AllowPush }
func (s *ServerOptions) strictCaps() bool   { return s != nil && s.EnforceStrictCapabilities }
func (s *ServerOptions) capabilities() ServerCapabilities {
	if s == nil {
		return ServerCapabilities{}
	}
	return s.Capabilities
}

func (s *ServerOptions) debounceMethods() map[string]bool {
	if s != nil && s.DebounceMethods != nil {
		return s.DebounceMethods
	}
	return map[string]bool{
		"notifications/tools/list_changed":     true,
		"notifications/resources/list_changed": true,
		"notifications/prompts/list_changed":   true,
		"notifications/roots/list_changed":     true,
	}
}

func (s *ServerOptions) concurrency() int64 {
	if s == nil || s.Concurrency < 1 {
		return int64(runtime.NumCPU())
	}
	return int64(s.Concurrency)
}

func (s *ServerOptions) startTime() time.Time {
	if s == nil {
		return time.Time{}
	}
	return s.StartTime
}

func (s *ServerOptions) newContext() func() context.Context {
	if s == nil || s.NewContext == nil {
		return context.Background
	}
	return s.NewContext
}

func (s *ServerOptions) rpcLog() RPCLogger {
	if s == nil || s.RPCLog == nil {
		return nullRPCLogger{}
	}
	return s.RPCLog
}

func (s *ServerOptions) validator() schema.Validator {
	if s == nil || s.Validator == nil {
		return schema.NewJSONSchemaValidator()
	}
	return s.Validator
}

func (s *ServerOptions) completions() *schema.CompletionRegistry {
	if s == nil {
		return nil
	}
	return s.Completions
}

// ClientOptions control the behaviour of a client created by NewClient.
// A nil *ClientOptions provides sensible defaults.
type ClientOptions struct {
	// Identity of the client. The Client does not read this field; Connect
	// advertises the ClientInfo passed to it instead.
	Info ClientInfo

	// Capabilities this client declares during initialize.
	Capabilities ClientCapabilities

	// If not nil, send structured debug logs here.
	Logger *zap.Logger

	// Validator compiles the tool output schemas captured by ListTools.
	// Elicitation request/result checking uses its own fixed schemas and
	// does not consult it. If nil, schema.NewJSONSchemaValidator() is used.
	Validator schema.Validator

	// Default per-request timeout, applied when a call does not supply its
	// own Options.Timeout. Defaults to 60s per §4.D.
	DefaultTimeout time.Duration

	// If set, called when a notification is received from the server and no
	// more specific handler claims it.
	OnNotify func(*Request)

	// If set, called when the server sends a request the client has not
	// registered a specific handler for.
	OnCallback func(context.Context, *Request) (any, error)

	// If set, called when the context for a request terminates early. The
	// hook receives the client and the (cancelled) response.
	OnCancel func(cli *Client, rsp *Response)
}

func (c *ClientOptions) logger() *zap.Logger {
	if c == nil || c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

func (c *ClientOptions) capabilities() ClientCapabilities {
	if c == nil {
		return ClientCapabilities{}
	}
	return normalizeElicitationCapability(c.Capabilities)
}

func (c *ClientOptions) defaultTimeout() time.Duration {
	if c == nil || c.DefaultTimeout <= 0 {
		return 60 * time.Second
	}
	return c.DefaultTimeout
}

func (c *ClientOptions) validator() schema.Validator {
	if c == nil || c.Validator == nil {
		return schema.NewJSONSchemaValidator()
	}
	return c.Validator
}

func (c *ClientOptions) handleNotification() func(*jmessage) {
	if c == nil || c.OnNotify == nil {
		return nil
	}
	h := c.OnNotify
	return func(req *jmessage) { h(&Request{method: req.M, params: req.P}) }
}

func (c *ClientOptions) handleCallback() func(context.Context, *jmessage) []byte {
	if c == nil || c.OnCallback == nil {
		return nil
	}
	cb := c.OnCallback
	return func(ctx context.Context, req *jmessage) []byte {
		// Recover panics from the callback handler so the peer always gets a
		// response, even if the callback fails without a result.
		rsp := &jmessage{ID: req.ID}
		v, err := panicToError(func() (any, error) {
			return cb(ctx, &Request{id: req.ID, method: req.M, params: req.P})
		})
		if err == nil {
			rsp.R, err = marshalResult(v)
		}
		if err != nil {
			rsp.R = nil
			if e, ok := err.(*Error); ok {
				rsp.E = e
			} else {
				rsp.E = &Error{Code: ErrorCode(err), Message: err.Error()}
			}
		}
		bits, _ := rsp.toJSON()
		return bits
	}
}

func (c *ClientOptions) handleCancel() func(*Client, *Response) {
	if c == nil {
		return nil
	}
	return c.OnCancel
}

func panicToError(f func() (any, error)) (v any, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic in callback handler: %v", p)
		}
	}()
	return f()
}

// An RPCLogger receives callbacks from a server recording the receipt of
// requests and the delivery of responses, invoked synchronously with
// request processing.
type RPCLogger interface {
	LogRequest(ctx context.Context, req *Request)
	LogResponse(ctx context.Context, rsp *Response)
}

type nullRPCLogger struct{}

func (nullRPCLogger) LogRequest(context.Context, *Request)   {}
func (nullRPCLogger) LogResponse(context.Context, *Response) {}
