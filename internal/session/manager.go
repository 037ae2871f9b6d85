package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

var ErrNotFound = errors.New("session not found")

// Session is one mounted dashboard. Its ID is the session_id sent with
// symptom analysis.
type Session struct {
	ID              string    `json:"session_id"`
	UserID          string    `json:"user_id"`
	UserName        string    `json:"user_name"`
	Status          Status    `json:"status"`
	SpeechSupported bool      `json:"speech_supported"`
	Lat             float64   `json:"lat"`
	Lon             float64   `json:"lon"`
	Submissions     int       `json:"submissions"`
	StartedAt       time.Time `json:"started_at"`
	LastActivityAt  time.Time `json:"last_activity_at"`
}

// Options describe the client that opened the dashboard.
type Options struct {
	SpeechSupported bool
	Lat             float64
	Lon             float64
}

type Manager struct {
	mu                sync.RWMutex
	sessions          map[string]*Session
	ended             map[string]chan struct{}
	inactivityTimeout time.Duration
	onExpire          func(*Session)
}

func NewManager(inactivityTimeout time.Duration) *Manager {
	if inactivityTimeout <= 0 {
		inactivityTimeout = 10 * time.Minute
	}
	return &Manager{
		sessions:          make(map[string]*Session),
		ended:             make(map[string]chan struct{}),
		inactivityTimeout: inactivityTimeout,
	}
}

func (m *Manager) SetExpireHook(hook func(*Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = hook
}

func (m *Manager) Create(userID, userName string, opts Options) *Session {
	now := time.Now().UTC()
	s := &Session{
		ID:              uuid.NewString(),
		UserID:          userID,
		UserName:        userName,
		Status:          StatusActive,
		SpeechSupported: opts.SpeechSupported,
		Lat:             opts.Lat,
		Lon:             opts.Lon,
		StartedAt:       now,
		LastActivityAt:  now,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	m.ended[s.ID] = make(chan struct{})
	return clone(s)
}

func (m *Manager) Get(sessionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(s), nil
}

func (m *Manager) Touch(sessionID string) error {
	return m.update(sessionID, func(*Session) {})
}

// RecordSubmission counts one utterance against the session.
func (m *Manager) RecordSubmission(sessionID string) error {
	return m.update(sessionID, func(s *Session) { s.Submissions++ })
}

// Done returns a channel closed when the session ends, whether by End,
// EndForUser or inactivity expiry.
func (m *Manager) Done(sessionID string) (<-chan struct{}, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ch, ok := m.ended[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return ch, nil
}

func (m *Manager) End(sessionID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	m.endLocked(s, time.Now().UTC())
	return clone(s), nil
}

// EndForUser ends every active session of userID, used on logout.
func (m *Manager) EndForUser(userID string) []*Session {
	now := time.Now().UTC()
	m.mu.Lock()
	defer m.mu.Unlock()
	var ended []*Session
	for _, s := range m.sessions {
		if s.UserID == userID && s.Status == StatusActive {
			m.endLocked(s, now)
			ended = append(ended, clone(s))
		}
	}
	return ended
}

func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.expireInactive(time.Now().UTC())
			}
		}
	}()
}

func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, s := range m.sessions {
		if s.Status == StatusActive {
			count++
		}
	}
	return count
}

func (m *Manager) update(sessionID string, fn func(*Session)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	fn(s)
	s.LastActivityAt = time.Now().UTC()
	return nil
}

func (m *Manager) endLocked(s *Session, now time.Time) {
	if s.Status == StatusEnded {
		return
	}
	s.Status = StatusEnded
	s.LastActivityAt = now
	if ch, ok := m.ended[s.ID]; ok {
		close(ch)
	}
}

func (m *Manager) expireInactive(now time.Time) {
	var expired []*Session

	m.mu.Lock()
	for _, s := range m.sessions {
		if s.Status != StatusActive {
			continue
		}
		if now.Sub(s.LastActivityAt) < m.inactivityTimeout {
			continue
		}
		m.endLocked(s, now)
		expired = append(expired, clone(s))
	}
	// ended sessions are kept for one more timeout so late reads still resolve
	for id, s := range m.sessions {
		if s.Status == StatusEnded && now.Sub(s.LastActivityAt) >= m.inactivityTimeout {
			delete(m.sessions, id)
			delete(m.ended, id)
		}
	}
	hook := m.onExpire
	m.mu.Unlock()

	if hook != nil {
		for _, s := range expired {
			hook(s)
		}
	}
}

func clone(s *Session) *Session {
	c := *s
	return &c
}
