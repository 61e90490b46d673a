// Copyright 2026 Socotra, Inc.

package mcp_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/google/go-cmp/cmp"

	mcp "github.com/socotra/mcp-go"
	"github.com/socotra/mcp-go/code"
	"github.com/socotra/mcp-go/handler"
	"github.com/socotra/mcp-go/transport"
)

func newPair(t *testing.T, mux mcp.Assigner, sopts *mcp.ServerOptions) (*mcp.Client, *mcp.Server) {
	t.Helper()
	cch, sch := transport.Direct()
	srv := mcp.NewServer(mux, sopts).Start(sch)
	t.Cleanup(func() { srv.Stop(); srv.Wait() })
	cli := mcp.NewClient(cch, nil)
	t.Cleanup(func() { cli.Close() })
	return cli, srv
}

func connect(t *testing.T, cli *mcp.Client) *mcp.InitializeResult {
	t.Helper()
	res, err := cli.Connect(context.Background(), mcp.ClientInfo{Name: "test-client", Version: "0.0.1"})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return res
}

// TestHandshake verifies the initialize/initialized exchange negotiates the
// latest protocol version when client and server both support it.
func TestHandshake(t *testing.T) {
	defer leaktest.Check(t)()

	mux := handler.Map{}
	cli, _ := newPair(t, mux, &mcp.ServerOptions{
		Info: mcp.ServerInfo{Name: "test-server", Version: "1.0.0"},
	})
	res := connect(t, cli)

	if res.ProtocolVersion != mcp.ProtocolVersion {
		t.Errorf("ProtocolVersion = %q, want %q", res.ProtocolVersion, mcp.ProtocolVersion)
	}
	if res.ServerInfo.Name != "test-server" {
		t.Errorf("ServerInfo.Name = %q, want %q", res.ServerInfo.Name, "test-server")
	}
}

// TestToolRoundTrip exercises tools/list and tools/call end-to-end, and
// checks that a structured result matching the advertised output schema
// passes validation.
func TestToolRoundTrip(t *testing.T) {
	defer leaktest.Check(t)()

	mux := handler.Map{
		"tools/list": func(ctx context.Context, req *mcp.Request) (any, error) {
			return mcp.ListToolsResult{
				Tools: []mcp.Tool{{
					Name:        "echo",
					Description: "echoes its input",
					InputSchema: map[string]any{"type": "object"},
					OutputSchema: map[string]any{
						"type":     "object",
						"required": []any{"echoed"},
						"properties": map[string]any{
							"echoed": map[string]any{"type": "string"},
						},
					},
				}},
			}, nil
		},
		"tools/call": func(ctx context.Context, req *mcp.Request) (any, error) {
			var params mcp.CallToolParams
			if err := req.UnmarshalParams(&params); err != nil {
				return nil, err
			}
			msg, _ := params.Arguments["message"].(string)
			return mcp.CallToolResult{
				Content:           []mcp.Content{{Type: "text", Text: msg}},
				StructuredContent: map[string]any{"echoed": msg},
			}, nil
		},
	}
	cli, _ := newPair(t, mux, &mcp.ServerOptions{
		Capabilities: mcp.ServerCapabilities{Tools: &mcp.ToolsCapability{}},
	})
	connect(t, cli)

	tools, err := cli.ListTools(context.Background(), "")
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	if len(tools.Tools) != 1 || tools.Tools[0].Name != "echo" {
		t.Fatalf("ListTools: got %+v", tools.Tools)
	}

	result, err := cli.CallTool(context.Background(), mcp.CallToolParams{
		Name:      "echo",
		Arguments: map[string]any{"message": "hi"},
	}, nil)
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if diff := cmp.Diff(map[string]any{"echoed": "hi"}, result.StructuredContent); diff != "" {
		t.Errorf("StructuredContent mismatch (-want +got):\n%s", diff)
	}
}

// TestToolOutputSchemaRejectsMismatch verifies that a result failing its own
// advertised output schema is rejected client-side rather than silently
// passed through (§4.F).
func TestToolOutputSchemaRejectsMismatch(t *testing.T) {
	defer leaktest.Check(t)()

	mux := handler.Map{
		"tools/list": func(ctx context.Context, req *mcp.Request) (any, error) {
			return mcp.ListToolsResult{
				Tools: []mcp.Tool{{
					Name:        "broken",
					InputSchema: map[string]any{"type": "object"},
					OutputSchema: map[string]any{
						"type":     "object",
						"required": []any{"count"},
						"properties": map[string]any{
							"count": map[string]any{"type": "integer"},
						},
					},
				}},
			}, nil
		},
		"tools/call": func(ctx context.Context, req *mcp.Request) (any, error) {
			return mcp.CallToolResult{
				StructuredContent: map[string]any{"count": "not-a-number"},
			}, nil
		},
	}
	cli, _ := newPair(t, mux, &mcp.ServerOptions{
		Capabilities: mcp.ServerCapabilities{Tools: &mcp.ToolsCapability{}},
	})
	connect(t, cli)

	if _, err := cli.ListTools(context.Background(), ""); err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	_, err := cli.CallTool(context.Background(), mcp.CallToolParams{Name: "broken"}, nil)
	if err == nil {
		t.Fatal("CallTool: expected schema validation error, got nil")
	}
	if got := mcp.ErrorCode(err); got != code.InvalidParams {
		t.Errorf("CallTool error code = %v, want %v", got, code.InvalidParams)
	}
	if !strings.Contains(err.Error(), "Structured content does not match the tool's output schema") {
		t.Errorf("CallTool error = %q, want it to mention the output schema mismatch", err.Error())
	}
}

// TestCapabilityGateAtCall verifies that calling a method whose server
// capability was not declared at connect time fails locally, before any
// frame is sent.
func TestCapabilityGateAtCall(t *testing.T) {
	defer leaktest.Check(t)()

	cli, _ := newPair(t, handler.Map{}, &mcp.ServerOptions{})
	connect(t, cli)

	if _, err := cli.ListTools(context.Background(), ""); err == nil {
		t.Fatal("ListTools: expected capability error, got nil")
	}
}

// TestTimeout verifies that a call exceeding its Options.Timeout reports a
// deadline error rather than hanging; the notifications/cancelled with reason
// "timeout" that the client then sends to the server must not make either
// side panic or hang.
func TestTimeout(t *testing.T) {
	defer leaktest.Check(t)()

	block := make(chan struct{})
	t.Cleanup(func() { close(block) })

	mux := handler.Map{
		"tools/call": func(ctx context.Context, req *mcp.Request) (any, error) {
			select {
			case <-block:
			case <-ctx.Done():
			}
			return mcp.CallToolResult{}, ctx.Err()
		},
	}
	cli, _ := newPair(t, mux, &mcp.ServerOptions{
		Capabilities: mcp.ServerCapabilities{Tools: &mcp.ToolsCapability{}},
	})
	connect(t, cli)

	_, err := cli.CallTool(context.Background(), mcp.CallToolParams{Name: "slow"},
		&mcp.Options{Timeout: 20 * time.Millisecond})
	if err == nil {
		t.Fatal("CallTool: expected timeout error, got nil")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("CallTool: got %v, want a deadline-exceeded error", err)
	}
}

// TestCancellationPropagation verifies that cancelling the caller's context
// in flight unblocks the call with a cancellation error.
func TestCancellationPropagation(t *testing.T) {
	defer leaktest.Check(t)()

	started := make(chan struct{})
	block := make(chan struct{})
	t.Cleanup(func() { close(block) })

	mux := handler.Map{
		"tools/call": func(ctx context.Context, req *mcp.Request) (any, error) {
			close(started)
			select {
			case <-block:
			case <-ctx.Done():
			}
			return nil, ctx.Err()
		},
	}
	cli, _ := newPair(t, mux, &mcp.ServerOptions{
		Capabilities: mcp.ServerCapabilities{Tools: &mcp.ToolsCapability{}},
	})
	connect(t, cli)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := cli.CallTool(ctx, mcp.CallToolParams{Name: "slow"}, nil)
		done <- err
	}()

	<-started
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("CallTool: got %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("CallTool did not return after cancellation")
	}
}

// TestLogLevelFiltering verifies that SendLoggingMessage suppresses messages
// below the level last set by logging/setLevel.
func TestLogLevelFiltering(t *testing.T) {
	defer leaktest.Check(t)()

	var mu sync.Mutex
	var levels []mcp.LogLevel
	cch, sch := transport.Direct()
	srv := mcp.NewServer(handler.Map{}, &mcp.ServerOptions{
		AllowPush: true,
		Capabilities: mcp.ServerCapabilities{
			Logging: &mcp.LoggingCapability{},
		},
	}).Start(sch)
	t.Cleanup(func() { srv.Stop(); srv.Wait() })
	cli := mcp.NewClient(cch, &mcp.ClientOptions{
		OnNotify: func(req *mcp.Request) {
			if req.Method() != "notifications/message" {
				return
			}
			var p mcp.LoggingMessageParams
			if err := req.UnmarshalParams(&p); err == nil {
				mu.Lock()
				levels = append(levels, p.Level)
				mu.Unlock()
			}
		},
	})
	t.Cleanup(func() { cli.Close() })
	connect(t, cli)

	if err := cli.SetLoggingLevel(context.Background(), mcp.LogWarning); err != nil {
		t.Fatalf("SetLoggingLevel: %v", err)
	}

	if err := srv.SendLoggingMessage(context.Background(), mcp.LogInfo, "test", "should be filtered"); err != nil {
		t.Fatalf("SendLoggingMessage(info): %v", err)
	}
	if err := srv.SendLoggingMessage(context.Background(), mcp.LogError, "test", "should pass"); err != nil {
		t.Fatalf("SendLoggingMessage(error): %v", err)
	}

	received := func() []mcp.LogLevel {
		mu.Lock()
		defer mu.Unlock()
		return append([]mcp.LogLevel(nil), levels...)
	}
	for deadline := time.Now().Add(2 * time.Second); len(received()) == 0 && time.Now().Before(deadline); {
		time.Sleep(5 * time.Millisecond)
	}
	// Give any further delivery a moment to land before checking the total.
	time.Sleep(20 * time.Millisecond)
	if diff := cmp.Diff([]mcp.LogLevel{mcp.LogError}, received()); diff != "" {
		t.Errorf("delivered log levels mismatch (-want +got):\n%s", diff)
	}
}

// TestVersionNegotiationFallback verifies that a client proposing an
// unsupported protocol version still gets back a version the server does
// support (the newest one), per §4.E version negotiation.
func TestVersionNegotiationFallback(t *testing.T) {
	defer leaktest.Check(t)()

	cli, _ := newPair(t, handler.Map{}, &mcp.ServerOptions{})
	var res mcp.InitializeResult
	err := cli.CallResult(context.Background(), "initialize", mcp.InitializeParams{
		ProtocolVersion: "1999-01-01",
		ClientInfo:      mcp.ClientInfo{Name: "old-client", Version: "0.0.1"},
	}, &res)
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if res.ProtocolVersion != mcp.SupportedProtocolVersions[0] {
		t.Errorf("negotiated version = %q, want newest supported %q", res.ProtocolVersion, mcp.SupportedProtocolVersions[0])
	}
	found := false
	for _, v := range mcp.SupportedProtocolVersions {
		if v == res.ProtocolVersion {
			found = true
		}
	}
	if !found {
		t.Errorf("negotiated version %q is not in SupportedProtocolVersions", res.ProtocolVersion)
	}
}

// TestPing verifies the bidirectional liveness check.
func TestPing(t *testing.T) {
	defer leaktest.Check(t)()

	cli, _ := newPair(t, handler.Map{}, &mcp.ServerOptions{})
	connect(t, cli)
	if err := cli.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

// TestErrorCode verifies the ErrorCode helper's mapping for context errors
// and *Error values.
func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want code.Code
	}{
		{nil, code.NoError},
		{context.Canceled, code.Cancelled},
		{context.DeadlineExceeded, code.DeadlineExceeded},
		{&mcp.Error{Code: code.InvalidParams}, code.InvalidParams},
		{errors.New("boom"), code.SystemError},
	}
	for _, test := range tests {
		if got := mcp.ErrorCode(test.err); got != test.want {
			t.Errorf("ErrorCode(%v) = %v, want %v", test.err, got, test.want)
		}
	}
}
