package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/r3labs/sse/v2"
	"go.uber.org/zap"
)

// SessionIDHeader is the HTTP header a client echoes back on every POST to
// the message endpoint so ServeMessage can tell which session's Server the
// frame belongs to, per the MCP streamable-HTTP transport's Mcp-Session-Id
// convention.
const SessionIDHeader = "Mcp-Session-Id"

// SSEServer exposes a server-side Channel over HTTP: inbound JSON-RPC
// frames arrive as POST bodies on the message endpoint, and outbound frames
// (responses, and server-initiated requests/notifications when push is
// enabled) are streamed to the client as Server-Sent Events. A single
// SSEServer multiplexes many sessions; each session gets its own inbound
// queue, keyed by the same id that scopes its outbound SSE stream, so one
// session's POSTed frames are never delivered to another session's Server.
type SSEServer struct {
	logger   *zap.Logger
	sessions *SessionManager
	sse      *sse.Server

	mu    sync.Mutex
	inbox map[string]chan []byte
}

// NewSSEServer constructs an SSEServer. Callers mount its ServeStream and
// ServeMessage methods at the endpoints their client is configured to
// reach, and obtain each session's Channel from Channel; a single SSEServer
// multiplexes all connected sessions.
func NewSSEServer(logger *zap.Logger) *SSEServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	srv := sse.New()
	srv.AutoReplay = false
	return &SSEServer{
		logger:   logger,
		sessions: NewSessionManager(),
		sse:      srv,
		inbox:    make(map[string]chan []byte),
	}
}

// ServeStream implements the SSE half (GET) of the transport: it opens an
// event stream for the given session. It blocks for the lifetime of the
// stream; the caller is expected to have already minted sessionID (for
// instance via Sessions().New) and to route subsequent POSTs for the same
// session through the SessionIDHeader header.
func (s *SSEServer) ServeStream(w http.ResponseWriter, r *http.Request, sessionID string) {
	s.sse.CreateStream(sessionID)
	defer s.sse.RemoveStream(sessionID)
	s.sse.ServeHTTP(w, r)
}

// Sessions exposes the session table backing this server, so callers
// wiring it into an HTTP mux can mint and validate session ids with the
// same bookkeeping ServeMessage and ServeStream key their routing off of.
func (s *SSEServer) Sessions() *SessionManager { return s.sessions }

// inboxFor returns the inbound queue for sessionID, creating it if this is
// the session's first frame.
func (s *SSEServer) inboxFor(sessionID string) chan []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.inbox[sessionID]
	if !ok {
		ch = make(chan []byte, 64)
		s.inbox[sessionID] = ch
	}
	return ch
}

// closeInbox removes and closes sessionID's inbound queue, waking any
// blocked Recv with a closed-channel read.
func (s *SSEServer) closeInbox(sessionID string) {
	s.mu.Lock()
	ch, ok := s.inbox[sessionID]
	delete(s.inbox, sessionID)
	s.mu.Unlock()
	if ok {
		close(ch)
	}
}

// ServeMessage implements the POST half: it decodes one JSON-RPC frame from
// the request body and delivers it to the Recv queue of the session named
// by the SessionIDHeader header, so frames POSTed for one session are never
// handed to another session's Server.
func (s *SSEServer) ServeMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get(SessionIDHeader)
	if sessionID == "" || !ValidSessionID(sessionID) {
		http.Error(w, "missing or invalid "+SessionIDHeader, http.StatusBadRequest)
		return
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r.Body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var probe json.RawMessage
	if err := json.Unmarshal(buf.Bytes(), &probe); err != nil {
		http.Error(w, "malformed JSON", http.StatusBadRequest)
		return
	}
	select {
	case s.inboxFor(sessionID) <- buf.Bytes():
		w.WriteHeader(http.StatusAccepted)
	case <-r.Context().Done():
		http.Error(w, "request cancelled", http.StatusRequestTimeout)
	}
}

// Publish streams msg to the subscribers of sessionID's event stream, framed
// as the SSE event type "message".
func (s *SSEServer) Publish(sessionID string, msg []byte) {
	s.sse.Publish(sessionID, &sse.Event{Event: []byte("message"), Data: msg})
}

// Channel returns a Channel view of this server for a single logical
// session, suitable for passing to (*mcp.Server).Start.
func (s *SSEServer) Channel(sessionID string) Channel {
	return &sseChannel{srv: s, sessionID: sessionID}
}

type sseChannel struct {
	srv       *SSEServer
	sessionID string
}

func (c *sseChannel) Send(msg []byte) error {
	c.srv.Publish(c.sessionID, msg)
	return nil
}

func (c *sseChannel) Recv() ([]byte, error) {
	msg, ok := <-c.srv.inboxFor(c.sessionID)
	if !ok {
		return nil, fmt.Errorf("sse channel closed")
	}
	return msg, nil
}

func (c *sseChannel) Close() error {
	c.srv.closeInbox(c.sessionID)
	c.srv.sse.RemoveStream(c.sessionID)
	return nil
}

// SSEClient is the client-side half: it POSTs outbound frames and consumes
// the inbound event stream via r3labs/sse's client.
type SSEClient struct {
	logger    *zap.Logger
	endpoint  string
	sessionID string
	http      *http.Client
	sub       *sse.Client
	events    chan *sse.Event
	cancel    context.CancelFunc
}

// NewSSEClient connects to a server's message/stream endpoints, identifying
// itself on every POST with sessionID so the server's ServeMessage routes
// the frame to this session and no other.
func NewSSEClient(logger *zap.Logger, streamURL, messageURL, sessionID string) *SSEClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	sub := sse.NewClient(streamURL)
	ctx, cancel := context.WithCancel(context.Background())
	c := &SSEClient{
		logger:    logger,
		endpoint:  messageURL,
		sessionID: sessionID,
		http:      http.DefaultClient,
		sub:       sub,
		events:    make(chan *sse.Event, 64),
		cancel:    cancel,
	}
	go func() {
		if err := sub.SubscribeChanRawWithContext(ctx, c.events); err != nil {
			logger.Debug("sse subscription ended", zap.Error(err))
		}
	}()
	return c
}

func (c *SSEClient) Send(msg []byte) error {
	req, err := http.NewRequest(http.MethodPost, c.endpoint, bytes.NewReader(msg))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SessionIDHeader, c.sessionID)
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sse post: unexpected status %s", resp.Status)
	}
	return nil
}

func (c *SSEClient) Recv() ([]byte, error) {
	ev, ok := <-c.events
	if !ok {
		return nil, fmt.Errorf("sse client closed")
	}
	return ev.Data, nil
}

func (c *SSEClient) Close() error {
	c.cancel()
	return nil
}
