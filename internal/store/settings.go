// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"proxyplayer/internal/dbx"
	"proxyplayer/internal/models"
)

// VideoSettingsInput is the ad/domain part of the settings form.
type VideoSettingsInput struct {
	AdURL   string
	Domains string
}

// SiteSettingsInput is the admin-only part of the settings form.
type SiteSettingsInput struct {
	SiteTitle  string
	FaviconURL string
}

// SettingsStore manages per-user video settings and site settings. Both
// tables may hold several rows per user; the highest id is the effective one.
type SettingsStore struct {
	db *sql.DB
}

// NewSettingsStore returns a new SettingsStore backed by the given database.
func NewSettingsStore(db *sql.DB) *SettingsStore {
	return &SettingsStore{db: db}
}

// LatestVideoSettings returns the user's effective video settings, or nil
// when the user never saved any.
func (s *SettingsStore) LatestVideoSettings(ctx context.Context, userID int64) (*models.VideoSettings, error) {
	vs := &models.VideoSettings{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, ad_url, domains, created_at, updated_at
		FROM video_settings WHERE user_id = $1
		ORDER BY id DESC LIMIT 1
	`, userID).Scan(&vs.ID, &vs.UserID, &vs.AdURL, &vs.Domains, &vs.CreatedAt, &vs.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest video settings: %w", err)
	}
	return vs, nil
}

const siteColumns = `ss.id, ss.user_id, ss.site_title, ss.favicon_url, ss.created_at`

func scanSite(row *sql.Row) (*models.SiteSettings, error) {
	ss := &models.SiteSettings{}
	err := row.Scan(&ss.ID, &ss.UserID, &ss.SiteTitle, &ss.FaviconURL, &ss.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return ss, nil
}

// LatestSiteSettings returns the user's latest site settings row, or nil.
func (s *SettingsStore) LatestSiteSettings(ctx context.Context, userID int64) (*models.SiteSettings, error) {
	ss, err := scanSite(s.db.QueryRowContext(ctx, `
		SELECT `+siteColumns+` FROM site_settings ss
		WHERE ss.user_id = $1 ORDER BY ss.id DESC LIMIT 1
	`, userID))
	if err != nil {
		return nil, fmt.Errorf("latest site settings: %w", err)
	}
	return ss, nil
}

// AdminSiteSettings returns the most recent site settings row saved by any
// admin account, or nil.
func (s *SettingsStore) AdminSiteSettings(ctx context.Context) (*models.SiteSettings, error) {
	ss, err := scanSite(s.db.QueryRowContext(ctx, `
		SELECT `+siteColumns+` FROM site_settings ss
		JOIN users u ON u.id = ss.user_id
		WHERE u.role = 'admin'
		ORDER BY ss.id DESC LIMIT 1
	`))
	if err != nil {
		return nil, fmt.Errorf("admin site settings: %w", err)
	}
	return ss, nil
}

// Effective resolves the site settings a viewer sees: the latest admin row,
// overridden by the viewer's own row when the viewer is an admin. Lookup
// failures are logged and fall back to defaults.
func (s *SettingsStore) Effective(ctx context.Context, viewerID int64, viewerIsAdmin bool) models.SiteSettings {
	out := models.DefaultSiteSettings()

	ss, err := s.AdminSiteSettings(ctx)
	if err != nil {
		slog.Warn("site settings lookup failed, using defaults", "error", err)
	} else if ss != nil {
		out = *ss
	}

	if viewerIsAdmin && viewerID != 0 {
		own, err := s.LatestSiteSettings(ctx, viewerID)
		if err != nil {
			slog.Warn("admin site settings lookup failed", "user_id", viewerID, "error", err)
		} else if own != nil {
			out = *own
		}
	}
	return out
}

// Save stores the user's video settings and, when site is non-nil, the
// site settings, as one transaction.
func (s *SettingsStore) Save(ctx context.Context, userID int64, video VideoSettingsInput, site *SiteSettingsInput) error {
	return dbx.WithTx(ctx, s.db, func(ctx context.Context, tx dbx.DBTX) error {
		if err := upsertVideoSettings(ctx, tx, userID, video); err != nil {
			return err
		}
		if site == nil {
			return nil
		}
		return upsertSiteSettings(ctx, tx, userID, *site)
	})
}

// upsertVideoSettings rewrites the user's latest row or inserts the first one.
func upsertVideoSettings(ctx context.Context, q dbx.DBTX, userID int64, in VideoSettingsInput) error {
	adURL, domains := nullIfEmpty(in.AdURL), nullIfEmpty(normalizeDomains(in.Domains))

	res, err := q.ExecContext(ctx, `
		UPDATE video_settings SET ad_url = $2, domains = $3, updated_at = NOW()
		WHERE id = (SELECT id FROM video_settings WHERE user_id = $1 ORDER BY id DESC LIMIT 1)
	`, userID, adURL, domains)
	if err != nil {
		return fmt.Errorf("update video settings: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	if _, err := q.ExecContext(ctx,
		`INSERT INTO video_settings (user_id, ad_url, domains) VALUES ($1, $2, $3)`,
		userID, adURL, domains,
	); err != nil {
		return fmt.Errorf("insert video settings: %w", err)
	}
	return nil
}

// upsertSiteSettings rewrites the user's latest site row or inserts one.
func upsertSiteSettings(ctx context.Context, q dbx.DBTX, userID int64, in SiteSettingsInput) error {
	title := strings.TrimSpace(in.SiteTitle)
	if title == "" {
		title = models.DefaultSiteTitle
	}
	favicon := nullIfEmpty(in.FaviconURL)

	res, err := q.ExecContext(ctx, `
		UPDATE site_settings SET site_title = $2, favicon_url = $3
		WHERE id = (SELECT id FROM site_settings WHERE user_id = $1 ORDER BY id DESC LIMIT 1)
	`, userID, title, favicon)
	if err != nil {
		return fmt.Errorf("update site settings: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	if _, err := q.ExecContext(ctx,
		`INSERT INTO site_settings (user_id, site_title, favicon_url) VALUES ($1, $2, $3)`,
		userID, title, favicon,
	); err != nil {
		return fmt.Errorf("insert site settings: %w", err)
	}
	return nil
}

// normalizeDomains trims every line and drops blank ones.
func normalizeDomains(raw string) string {
	return strings.Join(models.SplitDomains(raw), "\n")
}
