package sessions

import (
	"time"

	"sessions/internal/domain/models"
	"sessions/internal/lib/device"
)

type Config struct {
	DefaultTTL           time.Duration
	RememberMeTTL        time.Duration
	MaxActiveSessions    int
	ProviderRetryBackoff time.Duration
}

type LoginRequest struct {
	Identifier string
	Secret     string
	RememberMe bool
	Metadata   device.RequestMetadata
}

type UserSummary struct {
	ID       string
	Email    string
	FullName string
	RoleID   string
	Status   models.AccountStatus
}

// SessionBundle is what a successful login hands back to the caller. It is
// the only place raw tokens leave the manager.
type SessionBundle struct {
	SessionID    string
	AccessToken  string
	RefreshToken string
	IDToken      string
	ExpiresIn    int64
	ExpiresAt    time.Time
	User         UserSummary
}

type TokenBundle struct {
	SessionID    string
	AccessToken  string
	IDToken      string
	RefreshToken string
	ExpiresIn    int64
	ExpiresAt    time.Time
}

// SessionInfo is the caller-facing projection of a session. It never
// carries token digests.
type SessionInfo struct {
	SessionID    string
	UserID       string
	DeviceInfo   string
	IPAddress    string
	State        models.SessionState
	IsActive     bool
	CreatedAt    time.Time
	LastActiveAt time.Time
	ExpiresAt    time.Time
	RevokedAt    *time.Time
	LoggedOutAt  *time.Time
	RevokeReason models.RevokeReason
}

type SessionContext struct {
	SessionID string
	UserID    string
	User      UserSummary
	Session   SessionInfo
}

type SessionDetails struct {
	Session SessionInfo
	User    UserSummary
}

type PageRequest struct {
	Limit  int
	Cursor string
}

type SessionPage struct {
	Sessions   []SessionInfo
	NextCursor string
}

type RevokeResult struct {
	Revoked int
	Total   int
}

func sessionInfo(s models.Session, now time.Time) SessionInfo {
	return SessionInfo{
		SessionID:    s.ID,
		UserID:       s.UserID,
		DeviceInfo:   s.DeviceInfo,
		IPAddress:    s.IPAddress,
		State:        s.State(now),
		IsActive:     s.IsActive,
		CreatedAt:    s.CreatedAt,
		LastActiveAt: s.LastActiveAt,
		ExpiresAt:    s.ExpiresAt,
		RevokedAt:    s.RevokedAt,
		LoggedOutAt:  s.LoggedOutAt,
		RevokeReason: s.RevokeReason,
	}
}

func userSummary(p models.UserProfile) UserSummary {
	return UserSummary{
		ID:       p.ID,
		Email:    p.Email,
		FullName: p.FullName,
		RoleID:   p.RoleID,
		Status:   p.Status,
	}
}
