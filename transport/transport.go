// Copyright (C) 2017 Michael J. Fromberger. All Rights Reserved.

// Package transport defines the communications channel used to carry MCP
// JSON-RPC frames between a client and a server, and provides the concrete
// transports a connection may run over: an in-memory pair for tests, a
// newline-framed pipe for subprocess (stdio) servers, and a Server-Sent
// Events transport for remote servers.
package transport

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

// A Channel represents the ability to transmit and receive data records. A
// channel does not interpret the contents of a record, but may add and
// remove framing so that records can be embedded in a stream. The methods of
// a Channel need not be safe for concurrent use: callers serialize their own
// sends, and a single goroutine owns Recv.
type Channel interface {
	// Send transmits one complete record.
	Send([]byte) error

	// Recv returns the next available record. It returns io.EOF when no
	// further records are available.
	Recv() ([]byte, error)

	// Close shuts down the channel. No further records may be sent or
	// received afterward.
	Close() error
}

// A Framing converts a reader and a writer into a Channel with a particular
// message-framing discipline.
type Framing func(io.Reader, io.WriteCloser) Channel

type direct struct {
	send chan<- []byte
	recv <-chan []byte
}

func (d direct) Send(msg []byte) (err error) {
	cp := make([]byte, len(msg))
	copy(cp, msg)
	defer func() {
		if p := recover(); p != nil {
			err = errSendClosed
		}
	}()
	d.send <- cp
	return nil
}

func (d direct) Recv() ([]byte, error) {
	msg, ok := <-d.recv
	if ok {
		return msg, nil
	}
	return nil, io.EOF
}

func (d direct) Close() error { close(d.send); return nil }

// Direct returns a pair of connected in-process channels with no encoding or
// framing overhead, suitable for tests and for embedding a server in the
// same process as its client.
func Direct() (client, server Channel) {
	c2s := make(chan []byte)
	s2c := make(chan []byte)
	client = direct{send: c2s, recv: s2c}
	server = direct{send: s2c, recv: c2s}
	return
}

// Line frames r and wc with newline-terminated records, the framing used by
// the stdio transport. Outbound records may not contain a literal LF.
func Line(r io.Reader, wc io.WriteCloser) Channel {
	return line{wc: wc, buf: bufio.NewReaderSize(r, 1<<20)}
}

type line struct {
	wc  io.WriteCloser
	buf *bufio.Reader
}

func (c line) Send(msg []byte) error {
	if bytes.ContainsAny(msg, "\n") {
		return errors.New("message contains LF")
	}
	out := make([]byte, len(msg)+1)
	copy(out, msg)
	out[len(msg)] = '\n'
	_, err := c.wc.Write(out)
	return err
}

func (c line) Recv() ([]byte, error) {
	var buf bytes.Buffer
	for {
		chunk, err := c.buf.ReadSlice('\n')
		buf.Write(chunk)
		if err == bufio.ErrBufferFull {
			continue
		}
		ln := buf.Bytes()
		if n := len(ln) - 1; n >= 0 {
			return ln[:n], err
		}
		return nil, err
	}
}

func (c line) Close() error { return c.wc.Close() }

// Pipe creates a pair of connected in-memory channels using framing,
// suitable for wiring a client and server together without a real process
// boundary while still exercising a real framing discipline.
func Pipe(framing Framing) (client, server Channel) {
	cr, sw := io.Pipe()
	sr, cw := io.Pipe()
	client = framing(cr, cw)
	server = framing(sr, sw)
	return
}

// IsErrClosing reports whether err is the error produced by operating on a
// channel or the pipes underneath it after Close.
func IsErrClosing(err error) bool {
	return errors.Is(err, io.ErrClosedPipe) || errors.Is(err, errSendClosed)
}

var errSendClosed = errors.New("send on closed channel")
