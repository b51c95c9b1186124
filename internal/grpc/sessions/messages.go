package sessionsgrpc

import "time"

type User struct {
	ID       string `json:"id"`
	Email    string `json:"email,omitempty"`
	FullName string `json:"fullName,omitempty"`
	RoleID   string `json:"roleId,omitempty"`
	Status   string `json:"status,omitempty"`
}

type Session struct {
	SessionID    string     `json:"sessionId"`
	UserID       string     `json:"userId"`
	DeviceInfo   string     `json:"deviceInfo"`
	IPAddress    string     `json:"ipAddress"`
	State        string     `json:"state"`
	IsActive     bool       `json:"isActive"`
	Current      bool       `json:"current,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	LastActiveAt time.Time  `json:"lastActiveAt"`
	ExpiresAt    time.Time  `json:"expiresAt"`
	RevokedAt    *time.Time `json:"revokedAt,omitempty"`
	LoggedOutAt  *time.Time `json:"loggedOutAt,omitempty"`
	RevokeReason string     `json:"revokeReason,omitempty"`
}

type LoginRequest struct {
	Identifier string `json:"identifier"`
	Secret     string `json:"secret"`
	RememberMe bool   `json:"rememberMe,omitempty"`
}

type LoginResponse struct {
	SessionID    string    `json:"sessionId"`
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	IDToken      string    `json:"idToken"`
	ExpiresIn    int64     `json:"expiresIn"`
	ExpiresAt    time.Time `json:"expiresAt"`
	User         User      `json:"user"`
}

type LogoutRequest struct {
	SessionID   string `json:"sessionId"`
	AccessToken string `json:"accessToken,omitempty"`
}

type LogoutResponse struct {
	Success bool `json:"success"`
}

// ValidateRequest is empty: the bearer token travels in the authorization metadata.
type ValidateRequest struct{}

type ValidateResponse struct {
	SessionID   string  `json:"sessionId"`
	UserID      string  `json:"userId"`
	User        User    `json:"user"`
	SessionInfo Session `json:"sessionInfo"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
	SessionID    string `json:"sessionId,omitempty"`
}

type RefreshResponse struct {
	AccessToken  string    `json:"accessToken"`
	IDToken      string    `json:"idToken"`
	RefreshToken string    `json:"refreshToken,omitempty"`
	ExpiresIn    int64     `json:"expiresIn"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

type ActiveSessionsRequest struct {
	UserID string `json:"userId,omitempty"`
}

type ActiveSessionsResponse struct {
	ActiveSessionsCount int       `json:"activeSessionsCount"`
	Sessions            []Session `json:"sessions"`
}

type AllSessionsRequest struct {
	UserID    string `json:"userId,omitempty"`
	Limit     int    `json:"limit,omitempty"`
	NextToken string `json:"nextToken,omitempty"`
}

type AllSessionsResponse struct {
	Sessions  []Session `json:"sessions"`
	NextToken string    `json:"nextToken,omitempty"`
}

type SessionDetailsRequest struct {
	SessionID string `json:"sessionId"`
}

type SessionDetailsResponse struct {
	Session Session `json:"session"`
	User    User    `json:"user"`
}

type RevokeSessionRequest struct {
	SessionID string `json:"sessionId"`
}

type RevokeSessionResponse struct {
	Success bool `json:"success"`
}

type RevokeAllSessionsRequest struct {
	UserID          string `json:"userId,omitempty"`
	ExceptSessionID string `json:"exceptSessionId,omitempty"`
}

type RevokeAllSessionsResponse struct {
	RevokedCount  int `json:"revokedCount"`
	TotalSessions int `json:"totalSessions"`
}
