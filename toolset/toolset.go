// Package toolset provides ToolSet, a mcp.Assigner that serves tools/list
// and tools/call from a table of registered tools, adapting plain Go
// functions to mcp.Handler via the handler package's reflection helpers.
package toolset

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	mcp "github.com/socotra/mcp-go"
	"github.com/socotra/mcp-go/code"
	"github.com/socotra/mcp-go/handler"
)

// ToolSet collects tool registrations and serves them as the method pair
// tools/list and tools/call. It is the dispatcher handler.Map's own doc
// comment alludes to: one that "strips the tools/call envelope down to the
// tool's own Name field" before handing off to the tool's own handler.
type ToolSet struct {
	mu    sync.Mutex
	order []string
	tools map[string]*toolEntry
}

type toolEntry struct {
	tool    mcp.Tool
	handler handler.Func
}

// New returns an empty ToolSet.
func New() *ToolSet {
	return &ToolSet{tools: make(map[string]*toolEntry)}
}

// Register adapts fn to a handler.Func via handler.Check and adds tool
// under its own Name. fn's non-context argument becomes the shape tools/call
// expects for CallToolParams.Arguments, and its result is carried back as
// structuredContent; see handler.Check for the accepted function shapes.
func (s *ToolSet) Register(tool mcp.Tool, fn any) error {
	fi, err := handler.Check(fn)
	if err != nil {
		return fmt.Errorf("toolset: register %q: %w", tool.Name, err)
	}
	return s.add(tool, fi.Wrap())
}

// RegisterPositional is like Register, but adapts fn via handler.Positional
// so that its non-context parameters, named by argNames, can be supplied as
// either a JSON array in declaration order or an object keyed by argNames.
func (s *ToolSet) RegisterPositional(tool mcp.Tool, fn any, argNames ...string) error {
	fi, err := handler.Positional(fn, argNames...)
	if err != nil {
		return fmt.Errorf("toolset: register %q: %w", tool.Name, err)
	}
	return s.add(tool, fi.Wrap())
}

func (s *ToolSet) add(tool mcp.Tool, h handler.Func) error {
	if tool.Name == "" {
		return errors.New("toolset: tool name is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tools[tool.Name]; !exists {
		s.order = append(s.order, tool.Name)
	}
	s.tools[tool.Name] = &toolEntry{tool: tool, handler: h}
	return nil
}

// Assign implements mcp.Assigner for tools/list and tools/call.
func (s *ToolSet) Assign(_ context.Context, method string) mcp.Handler {
	switch method {
	case "tools/list":
		return s.handleList
	case "tools/call":
		return s.handleCall
	}
	return nil
}

// Names implements mcp.Namer so NewServer's strict-capability gate sees
// tools/list and tools/call without needing the full tool catalog.
func (s *ToolSet) Names() []string { return []string{"tools/call", "tools/list"} }

func (s *ToolSet) handleList(context.Context, *mcp.Request) (any, error) {
	s.mu.Lock()
	names := append([]string(nil), s.order...)
	s.mu.Unlock()
	sort.Strings(names)

	s.mu.Lock()
	defer s.mu.Unlock()
	tools := make([]mcp.Tool, 0, len(names))
	for _, name := range names {
		tools = append(tools, s.tools[name].tool)
	}
	return mcp.ListToolsResult{Tools: tools}, nil
}

func (s *ToolSet) handleCall(ctx context.Context, req *mcp.Request) (any, error) {
	var params mcp.CallToolParams
	if err := req.UnmarshalParams(&params); err != nil {
		return nil, &mcp.Error{Code: code.InvalidParams, Message: err.Error()}
	}

	s.mu.Lock()
	entry, ok := s.tools[params.Name]
	s.mu.Unlock()
	if !ok {
		return nil, &mcp.Error{Code: code.InvalidParams, Message: fmt.Sprintf("unknown tool %q", params.Name)}
	}

	argBits, err := json.Marshal(params.Arguments)
	if err != nil {
		return nil, &mcp.Error{Code: code.InvalidParams, Message: err.Error()}
	}
	inner := (&mcp.ParsedRequest{ID: req.ID(), Method: params.Name, Params: argBits}).ToRequest()

	v, herr := entry.handler(ctx, inner)
	if herr != nil {
		return toolError(herr), nil
	}
	return toolResult(v), nil
}

// toolError converts a handler failure into a tool-level error result
// rather than a JSON-RPC error, per MCP's isError convention: execution
// failures are reported in-band so a client (and the model it serves) can
// see what went wrong without the call itself failing.
func toolError(err error) mcp.CallToolResult {
	return mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{{Type: "text", Text: err.Error()}},
	}
}

// toolResult adapts a handler's return value to a CallToolResult: a result
// that is already one passes through unchanged, a nil result becomes an
// empty success, and anything else is rendered as both a JSON text block
// and, when it decodes as an object, structuredContent.
func toolResult(v any) mcp.CallToolResult {
	if v == nil {
		return mcp.CallToolResult{Content: []mcp.Content{}}
	}
	if result, ok := v.(mcp.CallToolResult); ok {
		return result
	}

	bits, err := json.Marshal(v)
	if err != nil {
		return mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{{Type: "text", Text: err.Error()}},
		}
	}
	result := mcp.CallToolResult{Content: []mcp.Content{{Type: "text", Text: string(bits)}}}
	var structured map[string]any
	if json.Unmarshal(bits, &structured) == nil {
		result.StructuredContent = structured
	}
	return result
}
