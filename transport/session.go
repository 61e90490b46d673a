package transport

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
)

// Session bundles a transport-level session id with the Channel it is
// attached to. The HTTP/SSE transport issues one per connecting client; the
// stdio and Direct transports have no equivalent, so session id is optional
// context rather than part of the Channel interface itself.
type Session struct {
	ID      string
	Channel Channel
}

// SessionManager tracks the live sessions of an HTTP-based transport,
// keyed by a server-minted id the client is expected to echo back on
// subsequent requests (the Mcp-Session-Id header in the SSE transport).
type SessionManager struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewSessionManager returns an empty session table.
func NewSessionManager() *SessionManager {
	return &SessionManager{sessions: make(map[string]*Session)}
}

// New mints a fresh session id, registers ch under it, and returns the
// session.
func (m *SessionManager) New(ch Channel) (*Session, error) {
	id, err := newSessionID()
	if err != nil {
		return nil, err
	}
	s := &Session{ID: id, Channel: ch}
	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()
	return s, nil
}

// Lookup returns the session registered under id, if any.
func (m *SessionManager) Lookup(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Delete removes id from the table, closing its channel.
func (m *SessionManager) Delete(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if ok {
		_ = s.Channel.Close()
	}
}

func newSessionID() (string, error) {
	var raw [16]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return hex.EncodeToString(raw[:]), nil
}

// ValidSessionID reports whether id consists entirely of visible ASCII
// (0x21-0x7E), the constraint the MCP spec places on the Mcp-Session-Id
// header so it can be carried verbatim without additional escaping.
func ValidSessionID(id string) bool {
	if id == "" {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x21 || id[i] > 0x7E {
			return false
		}
	}
	return true
}
