// Copyright 2026 Socotra, Inc.

package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/socotra/mcp-go/code"
	"github.com/socotra/mcp-go/schema"
)

// Options configures a single MCP request issued through a Client's domain
// methods (CallTool, ListTools, ...), as distinct from ClientOptions which
// configures the Client as a whole.
type Options struct {
	// Timeout overrides ClientOptions.DefaultTimeout for this call alone. A
	// zero value keeps the client default.
	Timeout time.Duration

	// OnProgress, if set, is called for every notifications/progress message
	// that carries this call's progress token, until the call completes.
	OnProgress func(ProgressParams)
}

// ClientHandlers collects the handlers a Client installs for the three
// request types a server may send back to it. A nil field reports
// code.MethodNotFound to the server rather than panicking; declare the
// matching ClientCapabilities field only for handlers that are set.
type ClientHandlers struct {
	CreateMessage func(context.Context, CreateMessageParams) (*CreateMessageResult, error)
	ListRoots     func(context.Context) (*ListRootsResult, error)
	Elicit        func(context.Context, ElicitParams) (*ElicitResult, error)
}

// elicitRequestSchemaDoc describes the shape of an inbound elicitation/create
// request. It validates the envelope MCP defines (§4.F.1), not the
// caller-supplied RequestedSchema, which is opaque to this check.
var elicitRequestSchemaDoc = map[string]any{
	"type":     "object",
	"required": []any{"message"},
	"properties": map[string]any{
		"mode":            map[string]any{"type": "string", "enum": []any{"form", "url"}},
		"message":         map[string]any{"type": "string"},
		"requestedSchema": map[string]any{"type": "object"},
		"elicitationId":   map[string]any{"type": "string"},
		"url":             map[string]any{"type": "string"},
	},
}

// elicitResultSchemaDoc describes the shape an elicitation handler's result
// must have before it is returned to the server.
var elicitResultSchemaDoc = map[string]any{
	"type":     "object",
	"required": []any{"action"},
	"properties": map[string]any{
		"action":    map[string]any{"type": "string", "enum": []any{"accept", "decline", "cancel"}},
		"content":   map[string]any{"type": "object"},
		"openedUrl": map[string]any{"type": "boolean"},
	},
}

var (
	elicitSchemasOnce    sync.Once
	elicitRequestSchema  schema.CompiledSchema
	elicitResultSchemaCS schema.CompiledSchema
)

// compiledElicitSchemas lazily compiles the fixed request/result envelope
// schemas used to validate elicitation traffic crossing DispatchHandlers.
func compiledElicitSchemas() (schema.CompiledSchema, schema.CompiledSchema) {
	elicitSchemasOnce.Do(func() {
		v := schema.NewJSONSchemaValidator()
		reqCS, err := v.Compile(elicitRequestSchemaDoc)
		if err != nil {
			panic("mcp: invalid elicitation request schema: " + err.Error())
		}
		resCS, err := v.Compile(elicitResultSchemaDoc)
		if err != nil {
			panic("mcp: invalid elicit-result schema: " + err.Error())
		}
		elicitRequestSchema = reqCS
		elicitResultSchemaCS = resCS
	})
	return elicitRequestSchema, elicitResultSchemaCS
}

// DispatchHandlers builds the ClientOptions.OnCallback dispatcher for h. It
// is the glue between the generic push-call mechanism in opts.go/client.go
// and MCP's three server-initiated request methods. caps is the
// capabilities this client declared to the server during Connect; it gates
// the elicitation case and, when form.applyDefaults was declared, drives
// default injection into an accepted form response (§4.F.1).
func DispatchHandlers(caps ClientCapabilities, h ClientHandlers) func(context.Context, *Request) (any, error) {
	caps = normalizeElicitationCapability(caps)
	return func(ctx context.Context, req *Request) (any, error) {
		switch req.Method() {
		case "sampling/createMessage":
			if h.CreateMessage == nil {
				return nil, &Error{Code: code.MethodNotFound, Message: "sampling is not supported by this client"}
			}
			var params CreateMessageParams
			if err := req.UnmarshalParams(&params); err != nil {
				return nil, &Error{Code: code.InvalidParams, Message: err.Error()}
			}
			return h.CreateMessage(ctx, params)

		case "roots/list":
			if h.ListRoots == nil {
				return nil, &Error{Code: code.MethodNotFound, Message: "roots are not supported by this client"}
			}
			return h.ListRoots(ctx)

		case "elicitation/create":
			return dispatchElicit(ctx, req, caps, h.Elicit)

		default:
			return nil, &Error{Code: code.MethodNotFound, Message: code.MethodNotFound.Error()}
		}
	}
}

// dispatchElicit implements the inbound half of form/url elicitation
// (§4.F.1): validate the request envelope, gate on the mode capability this
// client declared, invoke the handler, validate its result envelope, and
// apply schema defaults to an accepted form response when the client
// declared form.applyDefaults.
func dispatchElicit(ctx context.Context, req *Request, caps ClientCapabilities, handler func(context.Context, ElicitParams) (*ElicitResult, error)) (any, error) {
	if handler == nil {
		return nil, &Error{Code: code.MethodNotFound, Message: "elicitation is not supported by this client"}
	}

	reqSchema, resSchema := compiledElicitSchemas()

	var params ElicitParams
	if err := req.UnmarshalParams(&params); err != nil {
		return nil, &Error{Code: code.InvalidParams, Message: err.Error()}
	}
	if ok, msg := reqSchema.Validate(params); !ok {
		return nil, &Error{Code: code.InvalidParams, Message: fmt.Sprintf("elicitation request does not match the elicitation schema: %s", msg)}
	}

	mode := params.Mode
	if mode == "" {
		mode = ElicitModeForm
	}
	if !elicitationModeCapability(caps, mode) {
		return nil, &Error{Code: code.InvalidRequest, Message: fmt.Sprintf("client does not support %s elicitation", mode)}
	}

	result, err := handler(ctx, params)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, &Error{Code: code.InternalError, Message: "elicitation handler returned no result"}
	}
	if ok, msg := resSchema.Validate(*result); !ok {
		return nil, &Error{Code: code.InternalError, Message: fmt.Sprintf("elicitation handler result does not match the elicit-result schema: %s", msg)}
	}

	if mode == ElicitModeForm && result.Action == ElicitAccept && params.RequestedSchema != nil &&
		caps.Elicitation != nil && caps.Elicitation.Form != nil && caps.Elicitation.Form.ApplyDefaults {
		result.Content = schema.ApplyDefaults(params.RequestedSchema, result.Content)
	}
	return result, nil
}

// Connect performs the initialize handshake (§4.E): it sends initialize
// with this client's capabilities, records the server's declared
// capabilities and negotiated protocol version, and sends
// notifications/initialized to complete the handshake. It is an error to
// issue any other MCP method before Connect returns successfully.
func (c *Client) Connect(ctx context.Context, info ClientInfo) (*InitializeResult, error) {
	params := InitializeParams{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    c.caps,
		ClientInfo:      info,
	}
	var result InitializeResult
	if err := c.CallResult(ctx, "initialize", params, &result); err != nil {
		return nil, err
	}

	supported := false
	for _, v := range SupportedProtocolVersions {
		if v == result.ProtocolVersion {
			supported = true
			break
		}
	}
	if !supported {
		return nil, fmt.Errorf("server negotiated unsupported protocol version %q", result.ProtocolVersion)
	}

	c.mu.Lock()
	c.peerCaps = result.Capabilities
	c.protocol = result.ProtocolVersion
	c.initialized = true
	c.mu.Unlock()

	if err := c.Notify(ctx, "notifications/initialized", nil); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) checkServerCapability(method string) error {
	c.mu.Lock()
	caps := c.peerCaps
	c.mu.Unlock()
	if required, satisfied := requiredServerCapability(method, caps); required && !satisfied {
		return capabilityError("server", method, method)
	}
	return nil
}

// call issues method with params, applying opts's timeout and progress
// subscription, and decodes the result into result (when non-nil).
func (c *Client) call(ctx context.Context, method string, params any, opts *Options, result any) error {
	cctx := ctx
	timeout := c.callTimeout(opts)
	var cancel context.CancelFunc
	if timeout > 0 {
		cctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	sendParams := params
	var token string
	if opts != nil && opts.OnProgress != nil {
		token = uuid.NewString()
		c.mu.Lock()
		c.progress[token] = opts.OnProgress
		c.mu.Unlock()
		defer func() {
			c.mu.Lock()
			delete(c.progress, token)
			c.mu.Unlock()
		}()
		sendParams = withProgressToken(params, token)
	}

	rsp, err := c.Call(cctx, method, sendParams)
	if err != nil {
		return err
	}
	if result == nil {
		return nil
	}
	return rsp.UnmarshalResult(result)
}

func (c *Client) callTimeout(opts *Options) time.Duration {
	if opts != nil && opts.Timeout > 0 {
		return opts.Timeout
	}
	return c.defaultTimeout
}

func withProgressToken(params any, token string) any {
	bits, err := json.Marshal(params)
	if err != nil {
		return params
	}
	var m map[string]any
	if err := json.Unmarshal(bits, &m); err != nil || m == nil {
		m = map[string]any{}
	}
	meta, _ := m["_meta"].(map[string]any)
	if meta == nil {
		meta = map[string]any{}
	}
	meta["progressToken"] = token
	m["_meta"] = meta
	return m
}

// Ping issues the bidirectional liveness check that either side may send.
func (c *Client) Ping(ctx context.Context) error {
	return c.call(ctx, "ping", struct{}{}, nil, nil)
}

// ListTools returns the server's tool catalog and refreshes the cached
// output-schema validators used by CallTool (§4.F tool-output validation).
func (c *Client) ListTools(ctx context.Context, cursor string) (*ListToolsResult, error) {
	if err := c.checkServerCapability("tools/list"); err != nil {
		return nil, err
	}
	var result ListToolsResult
	if err := c.call(ctx, "tools/list", cursorParams(cursor), nil, &result); err != nil {
		return nil, err
	}
	c.validator.InvalidateAll()
	for _, t := range result.Tools {
		if t.OutputSchema == nil {
			continue
		}
		if _, err := c.validator.CompileNamed(t.Name, t.OutputSchema); err != nil {
			c.logger.Warn("failed to compile tool output schema", zap.String("tool", t.Name), zap.Error(err))
		}
	}
	return &result, nil
}

// CallTool invokes a tool. For a tool whose outputSchema was captured by the
// last ListTools, a non-error result is rejected if it carries no
// structuredContent or if its structuredContent does not validate against
// that schema.
func (c *Client) CallTool(ctx context.Context, params CallToolParams, opts *Options) (*CallToolResult, error) {
	if err := c.checkServerCapability("tools/call"); err != nil {
		return nil, err
	}
	var result CallToolResult
	if err := c.call(ctx, "tools/call", params, opts, &result); err != nil {
		return nil, err
	}
	if cs, ok := c.validator.Get(params.Name); ok && !result.IsError {
		if result.StructuredContent == nil {
			return nil, Errorf(code.InvalidParams, "tool %q result must be an error or include structuredContent", params.Name)
		}
		if ok2, msg := cs.Validate(result.StructuredContent); !ok2 {
			return nil, Errorf(code.InvalidParams, "tool %q: Structured content does not match the tool's output schema: %s", params.Name, msg)
		}
	}
	return &result, nil
}

// ListPrompts returns the server's prompt catalog.
func (c *Client) ListPrompts(ctx context.Context, cursor string) (*ListPromptsResult, error) {
	if err := c.checkServerCapability("prompts/list"); err != nil {
		return nil, err
	}
	var result ListPromptsResult
	if err := c.call(ctx, "prompts/list", cursorParams(cursor), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetPrompt renders a named prompt template with the given arguments.
func (c *Client) GetPrompt(ctx context.Context, params GetPromptParams) (*GetPromptResult, error) {
	if err := c.checkServerCapability("prompts/get"); err != nil {
		return nil, err
	}
	var result GetPromptResult
	if err := c.call(ctx, "prompts/get", params, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListResources returns the server's resource catalog.
func (c *Client) ListResources(ctx context.Context, cursor string) (*ListResourcesResult, error) {
	if err := c.checkServerCapability("resources/list"); err != nil {
		return nil, err
	}
	var result ListResourcesResult
	if err := c.call(ctx, "resources/list", cursorParams(cursor), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListResourceTemplates returns the server's dynamic resource templates.
func (c *Client) ListResourceTemplates(ctx context.Context, cursor string) (*ListResourceTemplatesResult, error) {
	if err := c.checkServerCapability("resources/templates/list"); err != nil {
		return nil, err
	}
	var result ListResourceTemplatesResult
	if err := c.call(ctx, "resources/templates/list", cursorParams(cursor), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ReadResource fetches the contents of a single resource.
func (c *Client) ReadResource(ctx context.Context, uri string) (*ReadResourceResult, error) {
	if err := c.checkServerCapability("resources/read"); err != nil {
		return nil, err
	}
	var result ReadResourceResult
	if err := c.call(ctx, "resources/read", ReadResourceParams{URI: uri}, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SubscribeResource asks the server to send notifications/resources/updated
// for uri until UnsubscribeResource is called.
func (c *Client) SubscribeResource(ctx context.Context, uri string) error {
	if err := c.checkServerCapability("resources/subscribe"); err != nil {
		return err
	}
	return c.call(ctx, "resources/subscribe", SubscribeResourceParams{URI: uri}, nil, nil)
}

// UnsubscribeResource cancels a prior SubscribeResource.
func (c *Client) UnsubscribeResource(ctx context.Context, uri string) error {
	if err := c.checkServerCapability("resources/unsubscribe"); err != nil {
		return err
	}
	return c.call(ctx, "resources/unsubscribe", UnsubscribeResourceParams{URI: uri}, nil, nil)
}

// SetLoggingLevel asks the server to only forward notifications/message at
// or above level.
func (c *Client) SetLoggingLevel(ctx context.Context, level LogLevel) error {
	if err := c.checkServerCapability("logging/setLevel"); err != nil {
		return err
	}
	return c.call(ctx, "logging/setLevel", SetLevelParams{Level: level}, nil, nil)
}

// Complete requests autocompletion suggestions for one prompt or resource
// argument (§4.H).
func (c *Client) Complete(ctx context.Context, params CompleteParams) (*CompleteResult, error) {
	if err := c.checkServerCapability("completion/complete"); err != nil {
		return nil, err
	}
	var result CompleteResult
	if err := c.call(ctx, "completion/complete", params, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SendRootsListChanged notifies the server that this client's root set has
// changed, provided the client declared RootsCapability.ListChanged.
func (c *Client) SendRootsListChanged(ctx context.Context) error {
	c.mu.Lock()
	ok := c.caps.Roots != nil && c.caps.Roots.ListChanged
	c.mu.Unlock()
	if !ok {
		return capabilityError("client", "notifications/roots/list_changed", "roots.listChanged")
	}
	return c.Notify(ctx, "notifications/roots/list_changed", nil)
}

func cursorParams(cursor string) any {
	if cursor == "" {
		return nil
	}
	return map[string]any{"cursor": cursor}
}
