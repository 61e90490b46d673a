package proxy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	mcp "github.com/socotra/mcp-go"
	"github.com/socotra/mcp-go/handler"
	"github.com/socotra/mcp-go/transport"
)

func TestProxyForwardsCalls(t *testing.T) {
	// The "real" server, reachable only by the proxy.
	remoteClientCh, remoteServerCh := transport.Direct()
	remote := mcp.NewServer(handler.Map{
		"tools/call": func(ctx context.Context, req *mcp.Request) (any, error) {
			return mcp.CallToolResult{Content: []mcp.Content{{Type: "text", Text: "pong"}}}, nil
		},
	}, &mcp.ServerOptions{
		Capabilities: mcp.ServerCapabilities{Tools: &mcp.ToolsCapability{}},
	}).Start(remoteServerCh)
	defer remote.Stop()

	remoteClient := mcp.NewClient(remoteClientCh, nil)
	_, err := remoteClient.Connect(context.Background(), mcp.Implementation{Name: "gateway", Version: "0.0.1"})
	require.NoError(t, err)

	// The gateway: a local server whose mux is the proxy, fronting the
	// remote client above.
	localClientCh, localServerCh := transport.Direct()
	gateway := mcp.NewServer(New(remoteClient), &mcp.ServerOptions{
		Capabilities: mcp.ServerCapabilities{Tools: &mcp.ToolsCapability{}},
	}).Start(localServerCh)
	defer gateway.Stop()

	localClient := mcp.NewClient(localClientCh, nil)
	_, err = localClient.Connect(context.Background(), mcp.Implementation{Name: "caller", Version: "0.0.1"})
	require.NoError(t, err)

	result, err := localClient.CallTool(context.Background(), mcp.CallToolParams{Name: "echo"}, nil)
	require.NoError(t, err)
	require.Len(t, result.Content, 1)
	require.Equal(t, "pong", result.Content[0].Text)
}
