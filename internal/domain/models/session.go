package models

import "time"

type SessionState string

const (
	SessionActive  SessionState = "active"
	SessionExpired SessionState = "expired"
	SessionRevoked SessionState = "revoked"
)

// RevokeReason records why a session left the active state.
type RevokeReason string

const (
	ReasonLogout       RevokeReason = "logout"
	ReasonRevoked      RevokeReason = "revoked"
	ReasonExpired      RevokeReason = "expired"
	ReasonInvalidated  RevokeReason = "invalidated"
	ReasonSessionLimit RevokeReason = "session_limit"
)

type Session struct {
	ID            string
	UserID        string
	TokenDigest   string
	RefreshDigest string
	DeviceInfo    string
	IPAddress     string
	LastActiveAt  time.Time
	IsActive      bool
	ExpiresAt     time.Time
	CreatedAt     time.Time
	RevokedAt     *time.Time
	LoggedOutAt   *time.Time
	RevokeReason  RevokeReason
}

// State derives the lifecycle state. Expired is never stored: it is an
// active record whose expiry has passed.
func (s Session) State(now time.Time) SessionState {
	switch {
	case !s.IsActive:
		return SessionRevoked
	case now.After(s.ExpiresAt):
		return SessionExpired
	default:
		return SessionActive
	}
}

// SessionUpdate lists the mutable fields of an active session. A nil field is left unchanged.
type SessionUpdate struct {
	TokenDigest   *string
	RefreshDigest *string
	LastActiveAt  *time.Time
	ExpiresAt     *time.Time
}

type SessionFilter struct {
	ActiveOnly bool
	Limit      int
	Cursor     string
}

type SessionPage struct {
	Sessions   []Session
	NextCursor string
}
