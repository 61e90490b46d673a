// Copyright (C) 2017 Michael J. Fromberger. All Rights Reserved.

package mcp

import "context"

// InboundRequest returns the inbound request associated with the context
// passed to a Handler, or nil if ctx does not have an inbound request.
// A *mcp.Server populates this value for handler contexts.
func InboundRequest(ctx context.Context) *Request {
	if v := ctx.Value(inboundRequestKey{}); v != nil {
		return v.(*Request)
	}
	return nil
}

type inboundRequestKey struct{}

// ServerFromContext returns the server associated with the context passed to
// a Handler by a *mcp.Server. It panics for a non-handler context.
//
// It is safe to retain the server and invoke its methods beyond the lifetime
// of the context from which it was extracted; however, a handler must not
// block on Wait or WaitStatus, since the server will deadlock waiting for the
// handler to return.
func ServerFromContext(ctx context.Context) *Server { return ctx.Value(serverKey{}).(*Server) }

type serverKey struct{}

// ClientFromContext returns the client associated with the given context.
// This is populated on the context passed by a *mcp.Client to a client-side
// callback handler (createMessage, listRoots, elicitInput).
//
// A callback handler MUST NOT close the client, since the close will
// deadlock waiting for the callback to return.
func ClientFromContext(ctx context.Context) *Client { return ctx.Value(clientKey{}).(*Client) }

type clientKey struct{}

// requestContextKey namespaces context values installed by the engine
// itself, as distinct from the unexported struct{} keys above (which exist
// per value to avoid collisions between packages).
type requestContextKey string
