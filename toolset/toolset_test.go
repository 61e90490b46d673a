package toolset_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	mcp "github.com/socotra/mcp-go"
	"github.com/socotra/mcp-go/toolset"
	"github.com/socotra/mcp-go/transport"
)

type addArgs struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type addResult struct {
	Sum int `json:"sum"`
}

func newPair(t *testing.T, ts *toolset.ToolSet) *mcp.Client {
	t.Helper()
	cch, sch := transport.Direct()
	srv := mcp.NewServer(ts, &mcp.ServerOptions{
		Capabilities: mcp.ServerCapabilities{Tools: &mcp.ToolsCapability{}},
	}).Start(sch)
	t.Cleanup(func() { srv.Stop(); srv.Wait() })
	cli := mcp.NewClient(cch, nil)
	t.Cleanup(func() { cli.Close() })
	_, err := cli.Connect(context.Background(), mcp.ClientInfo{Name: "toolset-test", Version: "0.0.1"})
	require.NoError(t, err)
	return cli
}

func TestRegisterAndCall(t *testing.T) {
	ts := toolset.New()
	err := ts.Register(mcp.Tool{
		Name:        "add",
		Description: "adds two integers",
		InputSchema: map[string]any{"type": "object"},
	}, func(ctx context.Context, args addArgs) (addResult, error) {
		return addResult{Sum: args.X + args.Y}, nil
	})
	require.NoError(t, err)

	cli := newPair(t, ts)

	list, err := cli.ListTools(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, list.Tools, 1)
	require.Equal(t, "add", list.Tools[0].Name)

	result, err := cli.CallTool(context.Background(), mcp.CallToolParams{
		Name:      "add",
		Arguments: map[string]any{"x": float64(2), "y": float64(3)},
	}, nil)
	require.NoError(t, err)
	require.False(t, result.IsError)
	require.Equal(t, float64(5), result.StructuredContent["sum"])
}

func TestCallUnknownTool(t *testing.T) {
	ts := toolset.New()
	cli := newPair(t, ts)

	_, err := cli.CallTool(context.Background(), mcp.CallToolParams{Name: "missing"}, nil)
	require.Error(t, err)
}

func TestHandlerErrorBecomesToolError(t *testing.T) {
	ts := toolset.New()
	require.NoError(t, ts.Register(mcp.Tool{
		Name:        "fail",
		InputSchema: map[string]any{"type": "object"},
	}, func(ctx context.Context, args addArgs) (addResult, error) {
		return addResult{}, errors.New("boom")
	}))
	cli := newPair(t, ts)

	result, err := cli.CallTool(context.Background(), mcp.CallToolParams{Name: "fail"}, nil)
	require.NoError(t, err)
	require.True(t, result.IsError)
	require.Contains(t, result.Content[0].Text, "boom")
}

func TestRegisterPositional(t *testing.T) {
	ts := toolset.New()
	err := ts.RegisterPositional(mcp.Tool{
		Name:        "concat",
		InputSchema: map[string]any{"type": "object"},
	}, func(ctx context.Context, a, b string) (string, error) {
		return a + b, nil
	}, "a", "b")
	require.NoError(t, err)

	cli := newPair(t, ts)
	result, err := cli.CallTool(context.Background(), mcp.CallToolParams{
		Name:      "concat",
		Arguments: map[string]any{"a": "foo", "b": "bar"},
	}, nil)
	require.NoError(t, err)
	require.False(t, result.IsError)
	require.Contains(t, result.Content[0].Text, "foobar")
}
