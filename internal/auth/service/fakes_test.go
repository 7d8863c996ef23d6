package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"identity-service/internal/autherr"
	sessiondomain "identity-service/internal/session/domain"
	"identity-service/internal/telemetry"
	userdomain "identity-service/internal/user/domain"
)

type memUsers struct {
	mu   sync.Mutex
	byID map[string]*userdomain.User
}

func newMemUsers() *memUsers {
	return &memUsers{byID: map[string]*userdomain.User{}}
}

func (m *memUsers) GetByID(_ context.Context, id string) (*userdomain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, autherr.ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*userdomain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("user %s: %w", email, autherr.ErrNotFound)
}

func (m *memUsers) Create(_ context.Context, u *userdomain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.byID {
		if existing.Email == u.Email {
			return autherr.ErrAlreadyExists
		}
	}
	cp := *u
	m.byID[u.ID] = &cp
	return nil
}

func (m *memUsers) setActive(id string, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[id].IsActive = active
}

type memSessions struct {
	mu   sync.Mutex
	byID map[string]*sessiondomain.Session
	// gate, when set, runs inside every GetByID after the record is read and the lock released.
	gate func()
	// beforeSwap, when set, runs before every UpdateRefreshHash.
	beforeSwap func()
}

func newMemSessions() *memSessions {
	return &memSessions{byID: map[string]*sessiondomain.Session{}}
}

func (m *memSessions) Create(_ context.Context, s *sessiondomain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[s.ID]; ok {
		return autherr.ErrConflict
	}
	cp := *s
	m.byID[s.ID] = &cp
	return nil
}

func (m *memSessions) GetByID(_ context.Context, id string) (*sessiondomain.Session, error) {
	m.mu.Lock()
	s, ok := m.byID[id]
	var cp sessiondomain.Session
	if ok {
		cp = *s
	}
	m.mu.Unlock()
	if m.gate != nil {
		m.gate()
	}
	if !ok {
		return nil, autherr.ErrSessionNotFound
	}
	return &cp, nil
}

func (m *memSessions) Delete(_ context.Context, id string) (*sessiondomain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	if !ok {
		return nil, autherr.ErrSessionNotFound
	}
	delete(m.byID, id)
	return s, nil
}

func (m *memSessions) DeleteAllForUser(_ context.Context, userID string) ([]*sessiondomain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*sessiondomain.Session
	for id, s := range m.byID {
		if s.UserID == userID {
			out = append(out, s)
			delete(m.byID, id)
		}
	}
	return out, nil
}

func (m *memSessions) UpdateRefreshHash(_ context.Context, id, expectedOldHash string, r sessiondomain.Rotation) error {
	if m.beforeSwap != nil {
		m.beforeSwap()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	if !ok {
		return autherr.ErrSessionNotFound
	}
	if s.RefreshTokenHash != expectedOldHash {
		return autherr.ErrConflict
	}
	next := s.Apply(r)
	m.byID[id] = &next
	return nil
}

func (m *memSessions) get(id string) (sessiondomain.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	if !ok {
		return sessiondomain.Session{}, false
	}
	return *s, true
}

func (m *memSessions) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type captureEmitter struct {
	mu     sync.Mutex
	events []eventRecord
}

type eventRecord struct {
	Type, UserID, SessionID, Outcome, Kind string
}

func (c *captureEmitter) Emit(_ context.Context, ev *telemetry.AuthEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, eventRecord{
		Type: ev.Type, UserID: ev.UserID, SessionID: ev.SessionID, Outcome: ev.Outcome, Kind: ev.Kind,
	})
	return nil
}

func (c *captureEmitter) snapshot() []eventRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]eventRecord(nil), c.events...)
}
