// Copyright (C) 2017 Michael J. Fromberger. All Rights Reserved.

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/socotra/mcp-go/code"
	"github.com/socotra/mcp-go/schema"
	"github.com/socotra/mcp-go/transport"
)

var (
	serverMetrics = new(expvar.Map)

	serversActiveGauge     = new(expvar.Int)
	rpcRequestsCount       = new(expvar.Int)
	rpcErrorsCount         = new(expvar.Int)
	bytesReadCount         = new(expvar.Int)
	bytesWrittenCount      = new(expvar.Int)
	rpcCallsPushed         = new(expvar.Int)
	rpcNotificationsPushed = new(expvar.Int)
)

func init() {
	serverMetrics.Set("servers_active", serversActiveGauge)
	serverMetrics.Set("rpc_requests", rpcRequestsCount)
	serverMetrics.Set("rpc_errors", rpcErrorsCount)
	serverMetrics.Set("bytes_read", bytesReadCount)
	serverMetrics.Set("bytes_written", bytesWrittenCount)
	serverMetrics.Set("calls_pushed", rpcCallsPushed)
	serverMetrics.Set("notifications_pushed", rpcNotificationsPushed)
}

// ServerMetrics returns a map of exported server metrics for use with the
// expvar package. This map is shared among all server instances created by
// NewServer.
func ServerMetrics() *expvar.Map { return serverMetrics }

// A Server speaks the MCP server role: it receives requests and
// notifications from a client on a transport.Channel, dispatches them to
// handlers registered through an Assigner, and — when AllowPush is set —
// may itself issue requests back to the client (sampling/createMessage,
// roots/list, elicitation/create).
type Server struct {
	wg  sync.WaitGroup      // ready when workers are done at shutdown time
	mux Assigner            // associates method names with handlers
	sem *semaphore.Weighted // bounds concurrent execution

	allowP    bool
	logger    *zap.Logger
	rpcLog    RPCLogger
	newctx    func() context.Context
	start     time.Time
	opts        *ServerOptions
	validator   schema.Validator
	completions *schema.CompletionRegistry
	debounce    *debouncer

	mu *sync.Mutex

	nbar sync.WaitGroup     // notification barrier (see the dispatch method)
	err  error              // error from a previous operation
	work chan struct{}      // for signaling message availability
	inq  *queue             // inbound requests awaiting processing
	ch   transport.Channel  // the channel to the client

	used   map[string]context.CancelFunc
	call   map[string]*Response
	callID int64

	// MCP session state. One Server handles exactly one logical connection:
	// peerCaps, logLevel, and elicitations below are per-connection, not
	// per-client-id, so a transport that multiplexes many simultaneous MCP
	// sessions over one listener (transport/sse.go's SSEServer) must
	// construct one Server per transport.Session and Start it on the
	// Channel that SSEServer.Channel(sessionID) returns for that session —
	// never share a single Server across sessionIDs. The log-level filter
	// this implies (a client's logging/setLevel affects only its own
	// Server's logLevel) falls out of that invariant for free; there is no
	// separate sessions map to keep in sync with it.
	peerCaps     ClientCapabilities
	initialized  bool
	logLevel     LogLevel
	elicitations map[string]*elicitationRecord
}

// NewServer returns a new unstarted server that will dispatch incoming
// requests according to mux. To start serving, call Start. This function
// panics if mux == nil, and — when opts.EnforceStrictCapabilities is set
// and mux implements Namer — if mux names a method whose required server
// capability this server did not declare (§4.E rule 3). That check runs
// here, before any transport exists, so a violation fails synchronously
// with no frame ever sent.
func NewServer(mux Assigner, opts *ServerOptions) *Server {
	if mux == nil {
		panic("nil assigner")
	}
	if opts.strictCaps() {
		if namer, ok := mux.(Namer); ok {
			checkStrictCapabilities(namer.Names(), opts.capabilities())
		}
	}
	s := &Server{
		mux:          mux,
		sem:          semaphore.NewWeighted(opts.concurrency()),
		allowP:       opts.allowPush(),
		logger:       opts.logger(),
		rpcLog:       opts.rpcLog(),
		newctx:       opts.newContext(),
		mu:           new(sync.Mutex),
		start:        opts.startTime(),
		opts:         opts,
		validator:    opts.validator(),
		completions:  opts.completions(),
		debounce:     newDebouncer(),
		inq:          newQueue(),
		used:         make(map[string]context.CancelFunc),
		call:         make(map[string]*Response),
		callID:       1,
		logLevel:     LogInfo,
		elicitations: make(map[string]*elicitationRecord),
	}
	return s
}

// Start enables processing of requests from c and returns s to allow
// chaining with construction. It panics if the server is already running.
func (s *Server) Start(c transport.Channel) *Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ch != nil {
		panic("server is already running")
	}

	s.ch = c
	if s.start.IsZero() {
		s.start = time.Now().In(time.UTC)
	}
	serversActiveGauge.Add(1)

	s.err = nil
	s.work = make(chan struct{}, 1)

	s.wg.Add(2)
	go func() { defer s.wg.Done(); s.read(c) }()
	go func() { defer s.wg.Done(); s.serve() }()

	return s
}

// serve processes requests from the queue and dispatches them to handlers.
func (s *Server) serve() {
	for {
		next, err := s.nextRequest()
		if err != nil {
			s.logger.Debug("error reading from client", zap.Error(err))
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			next()
		}()
	}
}

func (s *Server) signal() {
	select {
	case s.work <- struct{}{}:
	default:
	}
}

func (s *Server) nextRequest() (func() error, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.ch != nil && s.inq.isEmpty() {
		s.mu.Unlock()
		<-s.work
		s.mu.Lock()
	}
	if s.ch == nil && s.inq.isEmpty() {
		return nil, s.err
	}
	ch := s.ch

	next := s.inq.pop()
	s.logger.Debug("dequeued request batch", zap.Int("len", len(next)), zap.Int("qlen", s.inq.size()))

	return s.dispatch(next, ch), nil
}

func (s *Server) waitForBarrier(n int) {
	s.mu.Unlock()
	defer s.mu.Lock()
	s.nbar.Wait()
	s.nbar.Add(n)
}

func (s *Server) dispatch(next jmessages, ch sender) func() error {
	start := time.Now()
	tasks := s.checkAndAssign(next)

	todo, notes := tasks.numToDo()
	s.waitForBarrier(notes)

	return func() error {
		var wg sync.WaitGroup
		for _, t := range tasks {
			if t.err != nil {
				continue
			}

			todo--
			if todo == 0 {
				t.val, t.err = s.invoke(t.ctx, t.m, t.hreq)
				if t.hreq.IsNotification() {
					s.nbar.Done()
				}
				break
			}
			t := t
			wg.Add(1)
			go func() {
				defer wg.Done()
				t.val, t.err = s.invoke(t.ctx, t.m, t.hreq)
				if t.hreq.IsNotification() {
					s.nbar.Done()
				}
			}()
		}

		wg.Wait()
		return s.deliver(tasks.responses(s.rpcLog), ch, time.Since(start))
	}
}

func (s *Server) deliver(rsps jmessages, ch sender, elapsed time.Duration) error {
	if len(rsps) == 0 {
		return nil
	}
	s.logger.Debug("completed requests", zap.Int("count", len(rsps)), zap.Duration("elapsed", elapsed))
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rsp := range rsps {
		if rsp.err == nil {
			s.cancel(string(rsp.ID))
		}
	}

	nw, err := encode(ch, rsps)
	bytesWrittenCount.Add(int64(nw))
	return err
}

func (s *Server) checkAndAssign(next jmessages) tasks {
	var ts tasks
	var ids []string
	dup := make(map[string]*task)

	for _, req := range next {
		fid := fixID(req.ID)
		t := &task{
			hreq:  &Request{id: fid, method: req.M, params: req.P},
			batch: req.batch,
		}
		if req.err != nil {
			t.err = req.err
		}
		id := string(fid)
		if old := dup[id]; old != nil {
			old.err = errDuplicateID.WithData(id)
			t.err = old.err
		} else if id != "" && s.used[id] != nil {
			t.err = errDuplicateID.WithData(id)
		} else if id != "" {
			dup[id] = t
		}
		ts = append(ts, t)
		ids = append(ids, id)
	}

	for i, t := range ts {
		id := ids[i]
		if t.err != nil {
			// deferred validation error
		} else if t.hreq.method == "" {
			t.err = errEmptyMethod
		} else {
			s.setContext(t, id)
			t.m = s.assign(t.ctx, t.hreq.method)
			if t.m == nil {
				t.err = errNoSuchMethod.WithData(t.hreq.method)
			}
		}

		if t.err != nil {
			s.logger.Debug("request check error", zap.String("method", t.hreq.method), zap.String("params", string(t.hreq.params)), zap.Error(t.err))
			rpcErrorsCount.Add(1)
		}
	}
	return ts
}

func (s *Server) setContext(t *task, id string) {
	t.ctx = context.WithValue(s.newctx(), inboundRequestKey{}, t.hreq)

	if id != "" {
		ctx, cancel := context.WithCancel(t.ctx)
		s.used[id] = cancel
		t.ctx = ctx
	}
}

func (s *Server) invoke(base context.Context, h Handler, req *Request) (json.RawMessage, error) {
	ctx := context.WithValue(base, serverKey{}, s)
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.sem.Release(1)

	s.rpcLog.LogRequest(ctx, req)
	v, err := h(ctx, req)
	if err != nil {
		if req.IsNotification() {
			s.logger.Debug("discarding error from notification", zap.String("method", req.Method()), zap.Error(err))
			return nil, nil
		}
		return nil, err
	}
	return json.Marshal(v)
}

// ErrPushUnsupported is returned by Notify and Callback when the server was
// not constructed with AllowPush set true.
var ErrPushUnsupported = errors.New("server push is not enabled")

// Notify posts a single server-initiated notification to the client. This
// is the mechanism behind the list-changed and resources/updated sends;
// most callers want NotifyDebounced or the typed helpers in server_mcp.go
// instead of calling this directly.
func (s *Server) Notify(ctx context.Context, method string, params any) error {
	if !s.allowP {
		return ErrPushUnsupported
	}
	_, err := s.pushReq(ctx, false, method, params)
	return err
}

// NotifyDebounced schedules method to be sent at most once per scheduler
// tick, coalescing bursts of triggers (e.g. many tool registrations in a
// row) into a single notification, per §4.D and ServerOptions.DebounceMethods.
func (s *Server) NotifyDebounced(ctx context.Context, method string, params any) {
	if s.opts.debounceMethods()[method] {
		s.debounce.schedule(method, func() {
			if err := s.Notify(ctx, method, params); err != nil {
				s.logger.Debug("debounced notify failed", zap.String("method", method), zap.Error(err))
			}
		})
		return
	}
	if err := s.Notify(ctx, method, params); err != nil {
		s.logger.Debug("notify failed", zap.String("method", method), zap.Error(err))
	}
}

// Callback posts a single server-side call to the client and blocks for the
// reply. This is the primitive underneath createMessage, listRoots, and
// elicitInput.
func (s *Server) Callback(ctx context.Context, method string, params any) (*Response, error) {
	if !s.allowP {
		return nil, ErrPushUnsupported
	}
	rsp, err := s.pushReq(ctx, true, method, params)
	if err != nil {
		return nil, err
	}
	rsp.wait()
	if err := rsp.Error(); err != nil {
		return nil, filterError(err)
	}
	return rsp, nil
}

// callClient issues a server-initiated request to the client and decodes
// its result into result.
func (s *Server) callClient(ctx context.Context, method string, params, result any) error {
	rsp, err := s.Callback(ctx, method, params)
	if err != nil {
		return err
	}
	if result == nil {
		return nil
	}
	return rsp.UnmarshalResult(result)
}

// notifyClient sends a server-initiated notification to the client.
func (s *Server) notifyClient(ctx context.Context, method string, params any) error {
	return s.Notify(ctx, method, params)
}

// peerCapabilities returns the client capabilities recorded at initialize.
func (s *Server) peerCapabilities() ClientCapabilities {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peerCaps
}

// recordElicitation registers bookkeeping for a url-mode elicitation so the
// later out-of-band completion notification can be correlated back to it.
func (s *Server) recordElicitation(id, mode, relatedRequestID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.elicitations[id] = &elicitationRecord{id: id, mode: mode, relatedRequestID: relatedRequestID}
}

// takeElicitation removes and returns the bookkeeping entry for id, if any.
func (s *Server) takeElicitation(id string) (*elicitationRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.elicitations[id]
	delete(s.elicitations, id)
	return rec, ok
}

func (s *Server) waitCallback(pctx context.Context, id string, p *Response) {
	<-pctx.Done()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.call[id]; !ok {
		return
	}
	delete(s.call, id)
	err := pctx.Err()
	s.logger.Debug("context ended for callback", zap.String("id", id), zap.Error(err))

	p.ch <- &jmessage{
		ID: json.RawMessage(id),
		E:  &Error{Code: ErrorCode(err), Message: err.Error()},
	}
}

func (s *Server) pushReq(ctx context.Context, wantID bool, method string, params any) (rsp *Response, _ error) {
	var bits []byte
	if params != nil {
		v, err := json.Marshal(params)
		if err != nil {
			return nil, err
		}
		bits = v
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ch == nil {
		return nil, ErrConnClosed
	}

	kind := "notification"
	var jid json.RawMessage
	if wantID {
		kind = "call"
		id := strconv.FormatInt(s.callID, 10)
		s.callID++

		cbctx, cancel := context.WithCancel(ctx)
		jid = json.RawMessage(id)
		rsp = &Response{
			ch:     make(chan *jmessage, 1),
			id:     id,
			cancel: cancel,
		}
		s.call[id] = rsp
		go s.waitCallback(cbctx, id, rsp)
		rpcCallsPushed.Add(1)
	} else {
		rpcNotificationsPushed.Add(1)
	}

	s.logger.Debug("posting server message", zap.String("kind", kind), zap.String("method", method))
	nw, err := encode(s.ch, jmessages{{
		ID: jid,
		M:  method,
		P:  bits,
	}})
	bytesWrittenCount.Add(int64(nw))
	return rsp, err
}

// Stop shuts down the server. Safe to call more than once or concurrently.
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stop(errServerStopped)
}

// ServerStatus describes the status of a stopped server.
type ServerStatus struct {
	Err     error
	Stopped bool
	Closed  bool
}

// Success reports whether the server exited without error.
func (s ServerStatus) Success() bool { return s.Err == nil }

// WaitStatus blocks until the server terminates, and returns the resulting
// status.
func (s *Server) WaitStatus() ServerStatus {
	s.wg.Wait()
	if !s.inq.isEmpty() {
		panic("s.inq is not empty at shutdown")
	}
	stat := ServerStatus{Err: s.err}
	if s.err == io.EOF || transport.IsErrClosing(s.err) {
		stat.Err = nil
		stat.Closed = true
	} else if s.err == errServerStopped {
		stat.Err = nil
		stat.Stopped = true
	}
	return stat
}

// Wait blocks until the server terminates and returns the resulting error.
func (s *Server) Wait() error { return s.WaitStatus().Err }

func (s *Server) stop(err error) {
	if s.ch == nil {
		return
	}
	s.logger.Debug("server signaled to stop", zap.Error(err))
	s.ch.Close()

	var keep jmessages
	s.inq.each(func(cur jmessages) {
		for _, req := range cur {
			if req.isNotification() {
				keep = append(keep, req)
			} else {
				s.cancel(string(req.ID))
			}
		}
	})
	s.inq.reset()
	for _, elt := range keep {
		s.inq.push(jmessages{elt})
	}
	close(s.work)

	for _, rsp := range s.call {
		rsp.cancel()
	}
	for id, cancel := range s.used {
		cancel()
		delete(s.used, id)
	}

	if len(s.used) != 0 {
		panic("s.used is not empty at shutdown")
	}

	s.err = err
	s.ch = nil
	serversActiveGauge.Add(-1)
}

func (s *Server) read(ch receiver) {
	for {
		var in jmessages
		var derr error
		bits, err := ch.Recv()
		bytesReadCount.Add(int64(len(bits)))
		if err == nil || (err == io.EOF && len(bits) != 0) {
			err = nil
			derr = in.parseJSON(bits)
			rpcRequestsCount.Add(int64(len(in)))
		}
		s.mu.Lock()
		if err != nil {
			s.stop(err)
			s.mu.Unlock()
			return
		} else if derr != nil {
			s.pushError(derr)
		} else if len(in) == 0 {
			s.pushError(errEmptyBatch)
		} else {
			keep := s.filterBatch(in)
			if len(keep) != 0 {
				s.logger.Debug("received request batch", zap.Int("size", len(keep)), zap.Int("qlen", s.inq.size()))
				s.inq.push(keep)
				if s.inq.size() == 1 {
					s.signal()
				}
			}
		}
		s.mu.Unlock()
	}
}

func (s *Server) filterBatch(next jmessages) jmessages {
	keep := make(jmessages, 0, len(next))
	for _, req := range next {
		if req.isRequestOrNotification() {
			keep = append(keep, req)
			continue
		}

		id := string(fixID(req.ID))
		if s.call[id] != nil {
			rsp := s.call[id]
			delete(s.call, id)
			rsp.ch <- req
			s.logger.Debug("received response for callback", zap.String("id", id))
		} else {
			keep = append(keep, req)
		}
	}
	return keep
}

// assign resolves the handler for name: the protocol-level methods
// (initialize, notifications/initialized, ping) are handled directly by the
// engine; everything else is gated by the declared server capability (if
// any is required) and then delegated to the Assigner supplied to
// NewServer.
func (s *Server) assign(ctx context.Context, name string) Handler {
	switch name {
	case "initialize":
		return s.handleInitialize
	case "notifications/initialized":
		return s.handleInitialized
	case "ping":
		return s.handlePing
	case "logging/setLevel":
		if s.opts.capabilities().Logging == nil {
			return nil
		}
		return s.handleSetLevel
	case "completion/complete":
		if s.opts.capabilities().Completions == nil {
			return nil
		}
		return s.handleComplete
	}
	if required, satisfied := requiredServerCapability(name, s.opts.capabilities()); required && !satisfied {
		return nil
	}
	return s.mux.Assign(ctx, name)
}

// checkStrictCapabilities panics if any of names requires a server
// capability this server did not declare in caps. It implements the
// registration-time half of the capability gate described in §4.E rule 3;
// the per-dispatch half lives in (*Server).assign above.
func checkStrictCapabilities(names []string, caps ServerCapabilities) {
	for _, name := range names {
		if required, satisfied := requiredServerCapability(name, caps); required && !satisfied {
			panic(fmt.Sprintf("Server does not support %s", serverCapabilityFamily(name)))
		}
	}
}

// serverCapabilityFamily maps a method name to the capability family named
// in ServerCapabilities that guards it, for use in registration-gate panic
// messages. It returns method itself for methods with no such requirement.
func serverCapabilityFamily(method string) string {
	switch {
	case method == "logging/setLevel":
		return "logging"
	case method == "prompts/list" || method == "prompts/get":
		return "prompts"
	case strings.HasPrefix(method, "resources/"):
		return "resources"
	case method == "tools/list" || method == "tools/call":
		return "tools"
	case method == "completion/complete":
		return "completions"
	}
	return method
}

func (s *Server) handleInitialize(ctx context.Context, req *Request) (any, error) {
	var params InitializeParams
	if err := req.UnmarshalParams(&params); err != nil {
		return nil, err
	}

	version := params.ProtocolVersion
	supported := false
	for _, v := range SupportedProtocolVersions {
		if v == version {
			supported = true
			break
		}
	}
	if !supported {
		version = SupportedProtocolVersions[0]
	}

	s.mu.Lock()
	s.peerCaps = normalizeElicitationCapability(params.Capabilities)
	s.mu.Unlock()

	return InitializeResult{
		ProtocolVersion: version,
		Capabilities:    s.opts.capabilities(),
		ServerInfo:      s.opts.Info,
	}, nil
}

func (s *Server) handleInitialized(ctx context.Context, req *Request) (any, error) {
	s.mu.Lock()
	s.initialized = true
	s.mu.Unlock()
	return nil, nil
}

func (s *Server) handlePing(ctx context.Context, req *Request) (any, error) {
	return struct{}{}, nil
}

func (s *Server) handleSetLevel(ctx context.Context, req *Request) (any, error) {
	var params SetLevelParams
	if err := req.UnmarshalParams(&params); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.logLevel = params.Level
	s.mu.Unlock()
	return struct{}{}, nil
}

// handleComplete implements component H's completion/complete (§4.H): it
// resolves the targeted prompt or resource argument to a registered
// completer by (owner, argument) slot, invokes it, and ranks and truncates
// the result. A reference with no attached completer returns the empty
// completion set rather than an error.
func (s *Server) handleComplete(ctx context.Context, req *Request) (any, error) {
	var params CompleteParams
	if err := req.UnmarshalParams(&params); err != nil {
		return nil, err
	}
	if s.completions == nil {
		return CompleteResult{Completion: Completion{Values: []string{}}}, nil
	}

	owner := params.Ref.Name
	if params.Ref.Type == "ref/resource" {
		owner = params.Ref.URI
	}
	completer, ok := s.completions.CompleterForSlot(owner, params.Argument.Name)
	if !ok {
		return CompleteResult{Completion: Completion{Values: []string{}}}, nil
	}

	candidates, err := completer(ctx, params.Argument.Value)
	if err != nil {
		return nil, Errorf(code.InternalError, "completion failed: %v", err)
	}
	values, total, hasMore := schema.RankAndTruncate(candidates, params.Argument.Value)
	return CompleteResult{Completion: Completion{Values: values, Total: total, HasMore: hasMore}}, nil
}

func (s *Server) pushError(err error) {
	s.logger.Debug("invalid request", zap.Error(err))
	var jerr *Error
	if e, ok := err.(*Error); ok {
		jerr = e
	} else {
		jerr = &Error{Code: ErrorCode(err), Message: err.Error()}
	}

	nw, err := encode(s.ch, jmessages{{
		ID: json.RawMessage("null"),
		E:  jerr,
	}})
	rpcErrorsCount.Add(1)
	bytesWrittenCount.Add(int64(nw))
	if err != nil {
		s.logger.Debug("writing error response", zap.Error(err))
	}
}

func (s *Server) cancel(id string) bool {
	cancel, ok := s.used[id]
	if ok {
		cancel()
		delete(s.used, id)
	}
	return ok
}

// A task represents a pending method invocation received by the server.
type task struct {
	m Handler

	ctx   context.Context
	hreq  *Request
	batch bool

	val json.RawMessage
	err error
}

type tasks []*task

func (ts tasks) responses(rpcLog RPCLogger) jmessages {
	var rsps jmessages
	for _, task := range ts {
		if task.hreq.id == nil {
			if c := ErrorCode(task.err); c != code.ParseError && c != code.InvalidRequest {
				continue
			}
		}
		rsp := &jmessage{ID: task.hreq.id, batch: task.batch}
		if rsp.ID == nil {
			rsp.ID = json.RawMessage("null")
		}
		if task.m == nil {
			rsp.err = errTaskNotExecuted
		}
		if task.err == nil {
			rsp.R = task.val
		} else if e, ok := task.err.(*Error); ok {
			rsp.E = e
		} else if c := ErrorCode(task.err); c != code.NoError {
			rsp.E = &Error{Code: c, Message: task.err.Error()}
		} else {
			rsp.E = &Error{Code: code.InternalError, Message: task.err.Error()}
		}
		rpcLog.LogResponse(task.ctx, &Response{
			id:     string(rsp.ID),
			err:    rsp.E,
			result: rsp.R,
		})
		rsps = append(rsps, rsp)
	}
	return rsps
}

func (ts tasks) numToDo() (todo, notes int) {
	for _, t := range ts {
		if t.err == nil {
			todo++
			if t.hreq.IsNotification() {
				notes++
			}
		}
	}
	return
}
