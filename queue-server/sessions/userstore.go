package sessions

import (
	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
)

const (
	sessionName = "cloudvid-queue-session"
	userIDKey   = "user_id"
	usernameKey = "username"
)

// SessionUser is the authenticated user attached to a session.
type SessionUser struct {
	ID       string
	Username string
}

// UserStore persists the authenticated user across requests.
type UserStore interface {
	// GetUser retrieves the authenticated user from the session. Returns nil
	// if the session carries no user.
	GetUser() (*SessionUser, error)
	// SetUser stores the authenticated user in the session.
	SetUser(user *SessionUser) error
	// Clear removes the authenticated user from the session.
	Clear() error
}

// GorillaUserStore implements the UserStore interface using gorilla sessions
type GorillaUserStore struct {
	store   sessions.Store
	request *gin.Context
}

// NewGorillaUserStore creates a new GorillaUserStore for a specific request
func NewGorillaUserStore(store sessions.Store, c *gin.Context) UserStore {
	return &GorillaUserStore{
		store:   store,
		request: c,
	}
}

// GetUser retrieves the authenticated user from the session
func (s *GorillaUserStore) GetUser() (*SessionUser, error) {
	session, err := s.store.Get(s.request.Request, sessionName)
	if err != nil {
		return nil, err
	}

	// Both values are stored as plain strings so no gob registration is needed
	id, ok := session.Values[userIDKey].(string)
	if !ok || id == "" {
		return nil, nil
	}

	username, _ := session.Values[usernameKey].(string)

	return &SessionUser{ID: id, Username: username}, nil
}

// SetUser stores the authenticated user in the session
func (s *GorillaUserStore) SetUser(user *SessionUser) error {
	session, err := s.store.Get(s.request.Request, sessionName)
	if err != nil {
		return err
	}

	session.Values[userIDKey] = user.ID
	session.Values[usernameKey] = user.Username
	return session.Save(s.request.Request, s.request.Writer)
}

// Clear removes the authenticated user from the session
func (s *GorillaUserStore) Clear() error {
	session, err := s.store.Get(s.request.Request, sessionName)
	if err != nil {
		return err
	}

	delete(session.Values, userIDKey)
	delete(session.Values, usernameKey)
	return session.Save(s.request.Request, s.request.Writer)
}
