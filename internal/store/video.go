// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"proxyplayer/internal/models"
	"proxyplayer/internal/slug"
)

const videoColumns = `id, user_id, slug, file_id, title, subtitle, created_at`

// NewVideo is the input for adding a video from the dashboard.
type NewVideo struct {
	UserID   int64
	Title    string
	FileID   string
	Subtitle string
}

// VideoUpdate is the input for the edit form.
type VideoUpdate struct {
	Title    string
	FileID   string
	Subtitle string
}

// VideoFilter selects a page of videos. OwnerID 0 means every owner.
type VideoFilter struct {
	OwnerID int64
	Search  string
	Limit   int
	Offset  int
}

// VideoStore handles video CRUD and slug allocation.
type VideoStore struct {
	db      *sql.DB
	newSlug slug.Generator
}

// NewVideoStore creates a new VideoStore.
func NewVideoStore(db *sql.DB) *VideoStore {
	return &VideoStore{db: db, newSlug: slug.Default()}
}

func scanVideo(row interface{ Scan(...any) error }) (*models.Video, error) {
	v := &models.Video{}
	if err := row.Scan(&v.ID, &v.UserID, &v.Slug, &v.FileID, &v.Title, &v.Subtitle, &v.CreatedAt); err != nil {
		return nil, err
	}
	return v, nil
}

// Create inserts a video under a freshly allocated slug. A duplicate file id
// yields a *ConflictError for "file_id"; a slug lost to a concurrent insert
// is retried with a new value.
func (s *VideoStore) Create(ctx context.Context, in NewVideo) (*models.Video, error) {
	taken, err := s.FileIDTaken(ctx, in.FileID, 0)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, &ConflictError{Field: "file_id"}
	}

	for attempt := 0; attempt < slug.MaxAttempts; attempt++ {
		sl, err := slug.Unique(ctx, s.newSlug, s.SlugTaken, slug.MaxAttempts)
		if err != nil {
			return nil, fmt.Errorf("create video: %w", err)
		}

		v, err := scanVideo(s.db.QueryRowContext(ctx, `
			INSERT INTO videos (user_id, slug, file_id, title, subtitle)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING `+videoColumns,
			in.UserID, sl, strings.TrimSpace(in.FileID), strings.TrimSpace(in.Title), nullIfEmpty(in.Subtitle),
		))
		if err == nil {
			return v, nil
		}

		err = classify(err)
		var ce *ConflictError
		if errors.As(err, &ce) && ce.Field == "slug" {
			continue
		}
		return nil, fmt.Errorf("create video: %w", err)
	}
	return nil, fmt.Errorf("create video: %w", slug.ErrExhausted)
}

// SlugTaken reports whether any video already uses the slug.
func (s *VideoStore) SlugTaken(ctx context.Context, sl string) (bool, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM videos WHERE slug = $1)`, sl,
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("check slug: %w", err)
	}
	return exists, nil
}

// FileIDTaken reports whether a video other than exceptID uses fileID.
func (s *VideoStore) FileIDTaken(ctx context.Context, fileID string, exceptID int64) (bool, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM videos WHERE file_id = $1 AND id <> $2)`,
		strings.TrimSpace(fileID), exceptID,
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("check file id: %w", err)
	}
	return exists, nil
}

// FindBySlug looks a video up by its globally unique slug.
func (s *VideoStore) FindBySlug(ctx context.Context, sl string) (*models.Video, error) {
	v, err := scanVideo(s.db.QueryRowContext(ctx,
		`SELECT `+videoColumns+` FROM videos WHERE slug = $1`, sl))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find video by slug: %w", err)
	}
	return v, nil
}

// FindOwned looks a video up by id, restricted to ownerID unless ownerID is 0.
func (s *VideoStore) FindOwned(ctx context.Context, id, ownerID int64) (*models.Video, error) {
	v, err := scanVideo(s.db.QueryRowContext(ctx,
		`SELECT `+videoColumns+` FROM videos WHERE id = $1 AND ($2::bigint = 0 OR user_id = $2)`,
		id, ownerID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find video: %w", err)
	}
	return v, nil
}

// List returns one page of videos, newest first, plus the total number of
// videos matching the filter.
func (s *VideoStore) List(ctx context.Context, f VideoFilter) ([]models.Video, int, error) {
	where := `WHERE ($1::bigint = 0 OR user_id = $1)
		AND ($2::text = '' OR title ILIKE $3 OR file_id ILIKE $3 OR subtitle ILIKE $3)`
	args := []any{f.OwnerID, f.Search, likePattern(f.Search)}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM videos `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count videos: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+videoColumns+` FROM videos `+where+` ORDER BY id DESC LIMIT $4 OFFSET $5`,
		append(args, f.Limit, f.Offset)...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list videos: %w", err)
	}
	defer rows.Close()

	var videos []models.Video
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan video: %w", err)
		}
		videos = append(videos, *v)
	}
	return videos, total, rows.Err()
}

// Update edits a video owned by ownerID (any owner when ownerID is 0) and
// returns the new row.
func (s *VideoStore) Update(ctx context.Context, id, ownerID int64, upd VideoUpdate) (*models.Video, error) {
	taken, err := s.FileIDTaken(ctx, upd.FileID, id)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, &ConflictError{Field: "file_id"}
	}

	v, err := scanVideo(s.db.QueryRowContext(ctx, `
		UPDATE videos SET title = $1, file_id = $2, subtitle = $3
		WHERE id = $4 AND ($5::bigint = 0 OR user_id = $5)
		RETURNING `+videoColumns,
		strings.TrimSpace(upd.Title), strings.TrimSpace(upd.FileID), nullIfEmpty(upd.Subtitle), id, ownerID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update video: %w", classify(err))
	}
	return v, nil
}

// Delete removes a video owned by ownerID (any owner when ownerID is 0) and
// returns its slug.
func (s *VideoStore) Delete(ctx context.Context, id, ownerID int64) (string, error) {
	var sl string
	err := s.db.QueryRowContext(ctx, `
		DELETE FROM videos WHERE id = $1 AND ($2::bigint = 0 OR user_id = $2)
		RETURNING slug
	`, id, ownerID).Scan(&sl)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("delete video: %w", err)
	}
	return sl, nil
}

// Stats counts videos for ownerID (every owner when 0): total, added in the
// last 24 hours and in the last 7 days before now.
func (s *VideoStore) Stats(ctx context.Context, ownerID int64, now time.Time) (models.VideoStats, error) {
	var st models.VideoStats
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE created_at >= $2),
		       COUNT(*) FILTER (WHERE created_at >= $3)
		FROM videos WHERE ($1::bigint = 0 OR user_id = $1)
	`, ownerID, now.Add(-24*time.Hour), now.Add(-7*24*time.Hour)).Scan(&st.Total, &st.LastDay, &st.LastWeek)
	if err != nil {
		return st, fmt.Errorf("video stats: %w", err)
	}
	return st, nil
}
