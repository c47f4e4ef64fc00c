// Package memory keeps per-session conversation history so follow-up
// questions can be answered with the preceding turns folded into the
// generation prompt.
package memory

import (
	"strings"
	"sync"
	"time"
)

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is a single message within a session.
type Turn struct {
	Role      Role
	Content   string
	Timestamp time.Time
}

type session struct {
	turns     []Turn
	updatedAt time.Time
}

const (
	// DefaultMaxTurns bounds the history kept per session (10 exchanges).
	DefaultMaxTurns = 20

	// DefaultTTL expires sessions after an hour of inactivity.
	DefaultTTL = time.Hour

	cleanupInterval = 5 * time.Minute
)

// Store is an in-process session history store. Sessions expire after a TTL
// of inactivity and each keeps at most maxTurns recent turns.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*session
	maxTurns int
	ttl      time.Duration
	done     chan struct{}
}

// NewStore creates a Store and starts its expiry sweeper. Call Close when
// the store is no longer needed.
func NewStore(maxTurns int, ttl time.Duration) *Store {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &Store{
		sessions: make(map[string]*session),
		maxTurns: maxTurns,
		ttl:      ttl,
		done:     make(chan struct{}),
	}
	go s.sweep()
	return s
}

// Close stops the expiry sweeper.
func (s *Store) Close() {
	close(s.done)
}

// Append records a turn for the session, creating the session on first use
// and trimming history beyond the per-session bound.
func (s *Store) Append(sessionID string, role Role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		sess = &session{}
		s.sessions[sessionID] = sess
	}

	sess.turns = append(sess.turns, Turn{Role: role, Content: content, Timestamp: time.Now()})
	sess.updatedAt = time.Now()

	if len(sess.turns) > s.maxTurns {
		sess.turns = sess.turns[len(sess.turns)-s.maxTurns:]
	}
}

// History returns a copy of the session's turns, most recent last, or nil
// for an unknown session. n > 0 limits the result to the last n turns.
func (s *Store) History(sessionID string, n int) []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}

	turns := sess.turns
	if n > 0 && len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out
}

// Clear drops a session.
func (s *Store) Clear(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

// Len reports the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *Store) sweep() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.expire()
		case <-s.done:
			return
		}
	}
}

func (s *Store) expire() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for id, sess := range s.sessions {
		if now.Sub(sess.updatedAt) > s.ttl {
			delete(s.sessions, id)
		}
	}
}

// FormatForPrompt renders turns as a plain transcript for inclusion in a
// generation prompt. Empty history renders as the empty string.
func FormatForPrompt(turns []Turn) string {
	if len(turns) == 0 {
		return ""
	}

	var sb strings.Builder
	for _, t := range turns {
		switch t.Role {
		case RoleUser:
			sb.WriteString("User: ")
		case RoleAssistant:
			sb.WriteString("Assistant: ")
		default:
			continue
		}
		sb.WriteString(t.Content)
		sb.WriteString("\n")
	}
	return sb.String()
}
