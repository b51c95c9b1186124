package models

import (
	"time"
)

type AccountStatus string

const (
	AccountActive    AccountStatus = "active"
	AccountInactive  AccountStatus = "inactive"
	AccountSuspended AccountStatus = "suspended"
)

type Account struct {
	ID              string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	Email           string
	PassHash        []byte
	FullName        string
	RoleID          string
	Status          AccountStatus
	Confirmed       bool
	TokenGeneration int64
}

// UserProfile is the read-only view other components get of an account.
type UserProfile struct {
	ID       string
	Email    string
	FullName string
	RoleID   string
	Status   AccountStatus
}

func (a Account) Profile() UserProfile {
	return UserProfile{
		ID:       a.ID,
		Email:    a.Email,
		FullName: a.FullName,
		RoleID:   a.RoleID,
		Status:   a.Status,
	}
}

type RefreshToken struct {
	TokenHash  string
	AccountID  string
	Generation int64
	ExpiresAt  time.Time
	Revoked    bool
	CreatedAt  time.Time
}
