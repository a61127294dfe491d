// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package models

import "time"

// Video maps a public slug to an external file reference owned by a user.
type Video struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Slug      string    `json:"slug"`
	FileID    string    `json:"file_id"`
	Title     string    `json:"title"`
	Subtitle  *string   `json:"subtitle"` // Nullable
	CreatedAt time.Time `json:"created_at"`
}

// SubtitleOrEmpty dereferences the subtitle for forms and templates.
func (v *Video) SubtitleOrEmpty() string {
	if v.Subtitle == nil {
		return ""
	}
	return *v.Subtitle
}

// VideoStats are the dashboard counters, either for one owner or site-wide.
type VideoStats struct {
	Total      int `json:"total"`
	LastDay    int `json:"last_day"`
	LastWeek   int `json:"last_week"`
	Users      int `json:"users"`       // Admin view only
	NewUsers7d int `json:"new_users_7d"` // Admin view only
}
