// Copyright (C) 2017 Michael J. Fromberger. All Rights Reserved.

package mcp

import (
	"io"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/socotra/mcp-go/transport"
)

// Serve accepts connections from lst and starts a Server for each, using
// mux and opts, until lst.Accept reports an error (typically because lst
// was closed). It blocks until every server it started has finished. This
// is the entry point a gateway uses to expose an MCP server over a Unix
// domain socket or TCP listener, as an alternative to the stdio and SSE
// transports.
//
// framing converts each accepted net.Conn into a transport.Channel; a nil
// framing defaults to transport.Line, the same newline-delimited framing
// the stdio transport uses.
func Serve(lst net.Listener, mux Assigner, opts *ServerOptions, framing transport.Framing) error {
	if framing == nil {
		framing = transport.Line
	}
	logger := opts.logger()

	var wg sync.WaitGroup
	for {
		conn, err := lst.Accept()
		if err != nil {
			logger.Warn("listener accept failed", zap.Error(err))
			wg.Wait()
			return err
		}
		ch := framing(conn, conn)
		wg.Add(1)
		go func() {
			defer wg.Done()
			srv := NewServer(mux, opts).Start(ch)
			if err := srv.Wait(); err != nil && err != io.EOF {
				logger.Warn("connection server exited", zap.Error(err))
			}
		}()
	}
}
