// Copyright (C) 2017 Michael J. Fromberger. All Rights Reserved.

package mcp_test

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	mcp "github.com/socotra/mcp-go"
	"github.com/socotra/mcp-go/handler"
	"github.com/socotra/mcp-go/transport"
)

func TestServeOverListener(t *testing.T) {
	lst, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer lst.Close()

	mux := handler.Map{
		"tools/call": func(ctx context.Context, req *mcp.Request) (any, error) {
			return mcp.CallToolResult{Content: []mcp.Content{{Type: "text", Text: "ok"}}}, nil
		},
	}
	go mcp.Serve(lst, mux, &mcp.ServerOptions{
		Capabilities: mcp.ServerCapabilities{Tools: &mcp.ToolsCapability{}},
	}, transport.Line)

	conn, err := net.Dial("tcp", lst.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	cli := mcp.NewClient(transport.Line(conn, conn), nil)
	defer cli.Close()

	_, err = cli.Connect(context.Background(), mcp.Implementation{Name: "dialer", Version: "0.0.1"})
	require.NoError(t, err)

	result, err := cli.CallTool(context.Background(), mcp.CallToolParams{Name: "echo"}, nil)
	require.NoError(t, err)
	require.Equal(t, "ok", result.Content[0].Text)
}
