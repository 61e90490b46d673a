// Package proxy implements a transparent MCP proxy that forwards every
// method it is asked to handle to a remote mcp.Client. It is used to bridge
// transports: a gateway process can accept tool/prompt/resource requests
// over one transport (say, stdio) and relay them unmodified to a server
// reachable only over another (say, SSE).
package proxy

import (
	"context"
	"encoding/json"

	mcp "github.com/socotra/mcp-go"
)

// New creates a proxy that forwards every inbound method to c. The result
// satisfies mcp.Assigner, so it can be used directly as the mux for an
// mcp.Server:
//
//	cli := mcp.NewClient(remoteCh, nil)
//	cli.Connect(ctx, mcp.Implementation{Name: "gateway", Version: v})
//	srv := mcp.NewServer(proxy.New(cli), opts)
//	srv.Start(localCh)
func New(c *mcp.Client) *Proxy {
	return &Proxy{client: c}
}

// A Proxy is an mcp.Assigner whose single handler forwards every request or
// notification it is given across the wrapped client unmodified.
type Proxy struct{ client *mcp.Client }

// Close closes the underlying client and reports its result.
func (p *Proxy) Close() error { return p.client.Close() }

// Assign implements mcp.Assigner. Every method name is forwarded, so the
// returned handler never depends on name.
func (p *Proxy) Assign(_ context.Context, _ string) mcp.Handler { return p.handle }

// Names implements mcp.Namer. It returns nil, since method resolution is
// delegated to the remote peer.
func (*Proxy) Names() []string { return nil }

func (p *Proxy) handle(ctx context.Context, req *mcp.Request) (any, error) {
	var params any
	if req.HasParams() {
		var msg json.RawMessage
		if err := req.UnmarshalParams(&msg); err != nil {
			return nil, err
		}
		params = msg
	}

	if req.IsNotification() {
		return nil, p.client.Notify(ctx, req.Method(), params)
	}

	rsp, err := p.client.Call(ctx, req.Method(), params)
	if err != nil {
		return nil, err
	}
	var result json.RawMessage
	if err := rsp.UnmarshalResult(&result); err != nil {
		return nil, err
	}
	return result, nil
}
