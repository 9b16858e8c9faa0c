package service

import (
	"sync"

	"github.com/Wyydra/yarelay/internal/core/domain"
	"github.com/Wyydra/yarelay/internal/core/port"
)

type SessionState int

const (
	StateUnauthenticated SessionState = iota
	StateAuthenticated
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Session is the per-connection state machine:
// Unauthenticated -> Authenticated -> Closed. The identity bound by the first
// successful announce never changes afterwards.
type Session struct {
	conn port.Conn

	mu       sync.Mutex
	state    SessionState
	userID   domain.UserID
	username string
}

func NewSession(conn port.Conn) *Session {
	return &Session{conn: conn}
}

func (s *Session) Conn() port.Conn {
	return s.conn
}

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Identity returns the bound user while the session is authenticated.
func (s *Session) Identity() (domain.UserID, string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAuthenticated {
		return "", "", false
	}
	return s.userID, s.username, true
}

// canBind checks whether userID may be announced on this session without
// changing anything.
func (s *Session) canBind(userID domain.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkBindLocked(userID)
}

func (s *Session) bind(user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkBindLocked(user.ID); err != nil {
		return err
	}
	s.state = StateAuthenticated
	s.userID = user.ID
	s.username = user.Username
	return nil
}

func (s *Session) checkBindLocked(userID domain.UserID) error {
	switch s.state {
	case StateClosed:
		return domain.Unauthorized("connection closed")
	case StateAuthenticated:
		if s.userID != userID {
			return domain.Unauthorized("connection already announced as another user")
		}
	}
	return nil
}

// close moves the session to Closed and returns the identity it had, if any.
// Only the first call reports wasOpen.
func (s *Session) close() (userID domain.UserID, authenticated, wasOpen bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return "", false, false
	}
	authenticated = s.state == StateAuthenticated
	userID = s.userID
	s.state = StateClosed
	return userID, authenticated, true
}

// requireIdentity returns the bound identity or Unauthorized.
func (s *Session) requireIdentity() (domain.UserID, string, error) {
	id, name, ok := s.Identity()
	if !ok {
		return "", "", domain.Unauthorized("not authenticated")
	}
	return id, name, nil
}

// requireSelf checks that the session is authenticated as claimed.
func (s *Session) requireSelf(claimed domain.UserID) (domain.UserID, string, error) {
	id, name, err := s.requireIdentity()
	if err != nil {
		return "", "", err
	}
	if id != claimed {
		return "", "", domain.Unauthorized("unauthorized")
	}
	return id, name, nil
}
