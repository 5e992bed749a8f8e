package models

import "time"

type User struct {
	ID        int64      `json:"id"`
	Login     string     `json:"login"`
	Email     string     `json:"email"`
	Nicename  string     `json:"nicename,omitempty"`
	LastLogin *time.Time `json:"last_login,omitempty"`
}

// UserFilter selects users for a campaign. AfterID is the keyset cursor:
// only users with a greater id are returned, in ascending id order.
type UserFilter struct {
	Roles        []string
	UnloggedOnly bool
	AfterID      int64
	Limit        int
}

// Credential is the data download password record. Only the hash is stored.
type Credential struct {
	UserLogin string    `json:"user_login"`
	PassHash  string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ResetKey is a stored password reset key for one user.
type ResetKey struct {
	UserID   int64
	KeyHash  string
	IssuedAt time.Time
}
