// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package models

import (
	"strings"
	"time"
)

// Defaults used when no site settings row can be found.
const (
	DefaultSiteTitle  = "Video Platform"
	DefaultFaviconURL = "/favicon.ico"
)

// VideoSettings holds a user's ad and domain configuration. Several rows
// may exist per user; the one with the highest id is the effective one.
type VideoSettings struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	AdURL     *string   `json:"ad_url"`
	Domains   *string   `json:"domains"` // Newline-separated allow-list
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SplitDomains splits a newline-separated domain list, dropping blank lines.
func SplitDomains(domains string) []string {
	var out []string
	for _, line := range strings.Split(domains, "\n") {
		if d := strings.TrimSpace(line); d != "" {
			out = append(out, d)
		}
	}
	return out
}

// SiteSettings holds the site title and favicon. Only rows owned by an
// admin account take global effect.
type SiteSettings struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"user_id"`
	SiteTitle  string    `json:"site_title"`
	FaviconURL *string   `json:"favicon_url"`
	CreatedAt  time.Time `json:"created_at"`
}

// DefaultSiteSettings returns the fallback used when lookups fail.
func DefaultSiteSettings() SiteSettings {
	return SiteSettings{SiteTitle: DefaultSiteTitle}
}

// Favicon returns the favicon URL or the default.
func (s SiteSettings) Favicon() string {
	if s.FaviconURL == nil || *s.FaviconURL == "" {
		return DefaultFaviconURL
	}
	return *s.FaviconURL
}

// Title returns the site title or the default.
func (s SiteSettings) Title() string {
	if s.SiteTitle == "" {
		return DefaultSiteTitle
	}
	return s.SiteTitle
}
