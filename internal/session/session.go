// Package session owns the authentication lifecycle: persisted tokens, the
// current user, and the transitions between logged-in and logged-out.
package session

import (
	"github.com/eternisai/groupspend-sync/internal/api"
	"github.com/eternisai/groupspend-sync/internal/auth"
)

// Status is the lifecycle state of a Session.
type Status int

const (
	StatusUninitialized Status = iota
	StatusInitializing
	StatusAuthenticated
	StatusUnauthenticated
)

func (s Status) String() string {
	switch s {
	case StatusUninitialized:
		return "uninitialized"
	case StatusInitializing:
		return "initializing"
	case StatusAuthenticated:
		return "authenticated"
	case StatusUnauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

// MarshalText renders the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Session is a snapshot of who is logged in.
// Status is StatusAuthenticated iff both tokens and User are present.
type Session struct {
	AccessToken  string
	RefreshToken string
	User         *api.UserProfile
	Status       Status
}

// Authenticated reports whether the session holds usable credentials.
func (s Session) Authenticated() bool {
	return s.Status == StatusAuthenticated
}

// UserID returns the profile id, or "" without a user.
func (s Session) UserID() string {
	if s.User == nil {
		return ""
	}
	return s.User.ID
}

// Subject returns the access token's subject, or "" when it cannot be decoded.
func (s Session) Subject() string {
	sub, _ := auth.Subject(s.AccessToken)
	return sub
}

func (s Session) clone() Session {
	if s.User != nil {
		u := *s.User
		s.User = &u
	}
	return s
}
