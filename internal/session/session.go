package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultInactivityWindow is how long a session stays active without use.
const DefaultInactivityWindow = time.Hour

// Status is the lifecycle state reported by Restore.
type Status string

const (
	StatusCreated Status = "created"
	StatusActive  Status = "active"
	// StatusReauthorized is returned after an expired session was renewed.
	StatusReauthorized Status = "reauthorized"
)

// Session is the per-conversation state.
type Session struct {
	ID               string         `json:"id"`
	CreatedAt        time.Time      `json:"created_at"`
	Identity         IdentityState  `json:"identity"`
	MemoryAccess     bool           `json:"memory_access"`
	LastActive       time.Time      `json:"last_active"`
	AuthToken        string         `json:"auth_token"`
	AuthRefreshed    time.Time      `json:"auth_refreshed"`
	Status           Status         `json:"status"`
	Reauthorizations int            `json:"reauthorizations"`
	Context          map[string]any `json:"context"`
}

func (s *Session) clone() Session {
	out := *s
	out.Context = make(map[string]any, len(s.Context))
	for k, v := range s.Context {
		out.Context[k] = v
	}
	return out
}

// Manager owns every session. Sessions are never deleted, only renewed.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	window   time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewManager returns a Manager expiring sessions after window of
// inactivity.
func NewManager(window time.Duration, logger *zap.Logger) *Manager {
	if window <= 0 {
		window = DefaultInactivityWindow
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		sessions: make(map[string]*Session),
		window:   window,
		logger:   logger,
		now:      time.Now,
	}
}

// Restore returns the session for chatID, creating it if needed. An
// expired session, or one that lost memory access, gets a new auth token
// before it is returned; Restore never fails.
func (m *Manager) Restore(chatID string) Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UTC()
	s, ok := m.sessions[chatID]
	if !ok {
		s = &Session{
			ID:           chatID,
			CreatedAt:    now,
			Identity:     StateAwakening,
			MemoryAccess: true,
			LastActive:   now,
			Status:       StatusCreated,
			Context:      map[string]any{},
		}
		m.sessions[chatID] = s
		m.issueToken(s, now)
		activeSessions.Set(float64(len(m.sessions)))
		return s.clone()
	}

	// Expiry is judged on the previous activity, before refreshing it.
	expired := now.Sub(s.LastActive) > m.window
	s.LastActive = now
	s.Status = StatusActive
	if expired || !s.MemoryAccess {
		m.logger.Info("reauthorizing session",
			zap.String("chat_id", chatID),
			zap.Bool("expired", expired),
			zap.Bool("memory_access", s.MemoryAccess))
		s.MemoryAccess = true
		s.Status = StatusReauthorized
		s.Reauthorizations++
		m.issueToken(s, now)
		sessionReauths.Inc()
	}
	return s.clone()
}

func (m *Manager) issueToken(s *Session, now time.Time) {
	s.AuthToken = uuid.NewString()
	s.AuthRefreshed = now
}

// SetIdentity records the guard state on a session.
func (m *Manager) SetIdentity(chatID string, state IdentityState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[chatID]; ok {
		s.Identity = state
	}
}

// SetContext stores a value in the session context.
func (m *Manager) SetContext(chatID, key string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[chatID]; ok {
		s.Context[key] = value
	}
}

// RevokeMemoryAccess clears the memory access flag; the next Restore
// re-authorizes the session.
func (m *Manager) RevokeMemoryAccess(chatID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[chatID]; ok {
		s.MemoryAccess = false
	}
}

// Get returns a session without touching it.
func (m *Manager) Get(chatID string) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[chatID]
	if !ok {
		return Session{}, false
	}
	return s.clone(), true
}

// Len returns the number of known sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
