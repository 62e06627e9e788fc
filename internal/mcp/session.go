// ABOUTME: In-memory MCP session store.
// ABOUTME: Sessions are created by initialize and ended by DELETE.

package mcp

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// session tracks an active MCP client session.
type session struct {
	id              string
	protocolVersion string
	principal       string // authenticated caller, empty when auth is off
	ownerToken      string // credential used to verify session ownership on DELETE
	clientName      string
	createdAt       time.Time
}

// sessionStore manages active MCP sessions.
type sessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*session
}

func newSessionStore() *sessionStore {
	return &sessionStore{sessions: make(map[string]*session)}
}

func (s *sessionStore) create(protocolVersion, principal, ownerToken, clientName string) *session {
	sess := &session{
		id:              uuid.New().String(),
		protocolVersion: protocolVersion,
		principal:       principal,
		ownerToken:      ownerToken,
		clientName:      clientName,
		createdAt:       time.Now(),
	}
	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()
	return sess
}

func (s *sessionStore) get(id string) (*session, bool) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	return sess, ok
}

func (s *sessionStore) delete(id string) bool {
	s.mu.Lock()
	_, existed := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	return existed
}

func (s *sessionStore) count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
