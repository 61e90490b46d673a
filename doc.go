/*
Package mcp implements the shared protocol engine for the Model Context
Protocol (MCP): a symmetric, bidirectional JSON-RPC 2.0 messaging framework
in which a client (the "host") and a server (an external capability
provider) negotiate a protocol version, exchange typed requests,
notifications, and results, and expose a pluggable capability surface
(tools, prompts, resources, sampling, elicitation, logging, roots,
completion).

Connecting

A Client and a Server each run this package's JSON-RPC engine over a
transport.Channel. A minimal in-process pair, useful for tests, looks like:

	cch, sch := transport.Direct()
	srv := mcp.NewServer(assigner, &mcp.ServerOptions{
		Capabilities: mcp.ServerCapabilities{Tools: &mcp.ToolsCapability{}},
	})
	srv.Start(sch)

	cli := mcp.NewClient(cch, nil)
	if _, err := cli.Connect(ctx, mcp.Implementation{Name: "demo", Version: "0.1.0"}); err != nil {
		log.Fatal(err)
	}

Requests and notifications

The client exposes one wrapper method per MCP method (CallTool, ListTools,
GetPrompt, ...); each issues a request over the client's channel and
waits for the matching response, honoring the per-call Options (Timeout,
OnProgress). Notifications sent by a Server (SendToolsListChanged,
SendResourceUpdated, ...) are one-way and, for methods configured via
ServerOptions.DebounceMethods, are coalesced across a scheduler tick rather
than sent individually.

Handlers

A Server dispatches inbound requests to handlers registered through an
Assigner, the same pattern used for plain JSON-RPC services: a
toolset.ToolSet implements Assigner and Namer, and the server
looks up the handler for each inbound method name. Handler signatures are

	func(context.Context, *mcp.Request) (any, error)

A handler recovers the inbound request's server via mcp.ServerFromContext,
and its own parsed identity via mcp.InboundRequest, when it needs access
beyond its explicit parameters.

Capability gate

Before any request leaves the process, and before any handler is
registered under mcp.ServerOptions.EnforceStrictCapabilities, the engine
checks that the relevant capability was declared by the appropriate side at
connect time (see ClientCapabilities, ServerCapabilities and the capability
gate in capability.go).
Violations fail synchronously, before any frame is sent.
*/
package mcp
