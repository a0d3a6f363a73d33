package query

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/factrag/backend/pkg/logger"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type ChatMessage struct {
	Role       Role     `json:"role"`
	Content    string   `json:"content"`
	References []string `json:"references"`
}

// Session is one conversation's ordered message history.
type Session struct {
	ID string

	mu       sync.Mutex
	messages []ChatMessage
	lastUsed time.Time
}

func NewSession() *Session {
	return &Session{ID: uuid.New().String(), lastUsed: time.Now()}
}

func (s *Session) Append(msgs ...ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msgs...)
	s.lastUsed = time.Now()
}

// Messages returns a copy of the full history.
func (s *Session) Messages() []ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ChatMessage, len(s.messages))
	copy(out, s.messages)
	return out
}

// Recent returns a copy of the last n messages, oldest first.
func (s *Session) Recent(n int) []ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 {
		return []ChatMessage{}
	}
	start := len(s.messages) - n
	if start < 0 {
		start = 0
	}
	out := make([]ChatMessage, len(s.messages)-start)
	copy(out, s.messages[start:])
	return out
}

func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastUsed)
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastUsed = time.Now()
	s.mu.Unlock()
}

// SessionStore keeps sessions in memory and drops the ones idle longer than
// the configured TTL.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	idleTTL  time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewSessionStore(idleTTL time.Duration) *SessionStore {
	if idleTTL <= 0 {
		idleTTL = 30 * time.Minute
	}
	return &SessionStore{
		sessions: make(map[string]*Session),
		idleTTL:  idleTTL,
		stopCh:   make(chan struct{}),
	}
}

// GetOrCreate returns the session for id, or a new session when id is empty
// or unknown.
func (st *SessionStore) GetOrCreate(id string) *Session {
	st.mu.Lock()
	defer st.mu.Unlock()

	if s, ok := st.sessions[id]; ok && id != "" {
		s.touch()
		return s
	}

	s := NewSession()
	st.sessions[s.ID] = s
	return s
}

func (st *SessionStore) Get(id string) (*Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[id]
	return s, ok
}

func (st *SessionStore) Delete(id string) {
	st.mu.Lock()
	delete(st.sessions, id)
	st.mu.Unlock()
}

func (st *SessionStore) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

// Evict removes sessions idle for longer than the TTL and returns how many
// were dropped.
func (st *SessionStore) Evict(now time.Time) int {
	st.mu.Lock()
	defer st.mu.Unlock()

	removed := 0
	for id, s := range st.sessions {
		if s.idleSince(now) > st.idleTTL {
			delete(st.sessions, id)
			removed++
		}
	}
	return removed
}

// StartEviction runs Evict every interval until Stop is called.
func (st *SessionStore) StartEviction(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-st.stopCh:
				return
			case now := <-ticker.C:
				if n := st.Evict(now); n > 0 {
					logger.Debug("Evicted idle chat sessions", zap.Int("count", n))
				}
			}
		}
	}()
}

func (st *SessionStore) Stop() {
	st.stopOnce.Do(func() { close(st.stopCh) })
}
