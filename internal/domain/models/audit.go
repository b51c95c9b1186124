package models

import "time"

type AuditEvent struct {
	ID        string
	Action    string
	UserID    string
	SessionID string
	IPAddress string
	Metadata  map[string]string
	CreatedAt time.Time
}
