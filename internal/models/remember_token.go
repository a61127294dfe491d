// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package models

import (
	"time"

	"github.com/google/uuid"
)

// RememberToken is the server-side half of a "remember me" login. The
// browser holds the token value and the owning user id in two cookies.
type RememberToken struct {
	ID        uuid.UUID `json:"id"`
	UserID    int64     `json:"user_id"`
	Token     string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Expired reports whether the token is no longer usable at now.
func (t *RememberToken) Expired(now time.Time) bool {
	return !t.ExpiresAt.After(now)
}
