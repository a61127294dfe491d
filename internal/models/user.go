// Package models defines the data structures that map to database tables
// and provides the core types used throughout the application.
package models

import "time"

// Role represents a user's permission level in the system.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// BootstrapAdminID is the account created first on a fresh install. It can
// never be deleted and its role can never change.
const BootstrapAdminID int64 = 1

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

// User represents an account that owns videos and settings.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // Never serialize the hash
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// IsAdmin returns true if the user has the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// IsBootstrap returns true for the protected first account.
func (u *User) IsBootstrap() bool {
	return u.ID == BootstrapAdminID
}

// UserSummary is a row of the admin users table: the account plus its
// video count and effective video settings.
type UserSummary struct {
	User
	VideoCount int     `json:"video_count"`
	AdURL      *string `json:"ad_url"`
	Domains    *string `json:"domains"`
}
