// Package session isolates conversations per session identity. No
// conversation is ever shared between sessions.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/papercomputeco/chatline/pkg/conversation"
	"github.com/papercomputeco/chatline/pkg/merkle"
)

// ErrNotFound is returned for unknown or expired session ids.
var ErrNotFound = errors.New("session not found")

// Session is one user's interactive use of the running process.
type Session struct {
	ID           string
	Conversation *conversation.Conversation
	CreatedAt    time.Time

	// Recorder is nil when no transcript store is configured.
	Recorder *conversation.DAGRecorder

	mu       sync.Mutex
	lastSeen time.Time
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

// LastSeen is the last time the session was looked up.
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// Manager creates, finds and expires sessions.
type Manager struct {
	chatter conversation.Chatter
	storer  merkle.Storer
	ttl     time.Duration
	logger  *zap.Logger
	now     func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager returns a manager whose sessions talk to chatter. When storer is
// non-nil every session records its transcript there. A ttl of zero keeps
// sessions until they are ended.
func NewManager(chatter conversation.Chatter, storer merkle.Storer, ttl time.Duration, logger *zap.Logger) *Manager {
	return &Manager{
		chatter:  chatter,
		storer:   storer,
		ttl:      ttl,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Create starts a session with an empty conversation.
func (m *Manager) Create() *Session {
	now := m.now()
	s := &Session{
		ID:        uuid.NewString(),
		CreatedAt: now,
		lastSeen:  now,
	}

	opts := []conversation.Option{
		conversation.WithLogger(m.logger.With(zap.String("session", s.ID))),
	}
	if m.storer != nil {
		s.Recorder = conversation.NewDAGRecorder(m.storer)
		opts = append(opts, conversation.WithRecorder(s.Recorder))
	}
	s.Conversation = conversation.New(m.chatter, opts...)

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	m.logger.Info("session created", zap.String("session", s.ID))
	return s
}

// Get returns the session with id and marks it as seen.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}

	s.touch(m.now())
	return s, nil
}

// End removes the session. Its conversation is dropped.
func (m *Manager) End(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(m.sessions, id)

	m.logger.Info("session ended", zap.String("session", id))
	return nil
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep ends sessions idle for longer than the ttl and returns how many
// were removed. Sessions awaiting a reply are never swept.
func (m *Manager) Sweep(now time.Time) int {
	if m.ttl <= 0 {
		return 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, s := range m.sessions {
		if s.Conversation.Awaiting() || now.Sub(s.LastSeen()) <= m.ttl {
			continue
		}
		delete(m.sessions, id)
		removed++
	}

	if removed > 0 {
		m.logger.Info("expired idle sessions", zap.Int("removed", removed), zap.Int("remaining", len(m.sessions)))
	}
	return removed
}
