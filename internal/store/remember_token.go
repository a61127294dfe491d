// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"proxyplayer/internal/dbx"
	"proxyplayer/internal/models"
)

// RememberTokenStore persists "remember me" tokens. A user has at most one
// live token: Replace purges the old one before inserting.
type RememberTokenStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewRememberTokenStore creates a new RememberTokenStore.
func NewRememberTokenStore(db *sql.DB) *RememberTokenStore {
	return &RememberTokenStore{db: db, now: time.Now}
}

// Replace deletes the user's existing tokens (and any expired token of any
// user) and inserts the new one, atomically.
func (s *RememberTokenStore) Replace(ctx context.Context, userID int64, token string, expiresAt time.Time) (*models.RememberToken, error) {
	t := &models.RememberToken{
		ID:        uuid.New(),
		UserID:    userID,
		Token:     token,
		ExpiresAt: expiresAt,
	}

	err := dbx.WithTx(ctx, s.db, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM remember_tokens WHERE user_id = $1 OR expires_at <= $2`,
			userID, s.now(),
		); err != nil {
			return fmt.Errorf("purge remember tokens: %w", err)
		}

		err := tx.QueryRowContext(ctx, `
			INSERT INTO remember_tokens (id, user_id, token, expires_at)
			VALUES ($1, $2, $3, $4)
			RETURNING created_at
		`, t.ID, t.UserID, t.Token, t.ExpiresAt).Scan(&t.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert remember token: %w", classify(err))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// FindValid returns the token matching both the value and the user id that
// has not expired at now.
func (s *RememberTokenStore) FindValid(ctx context.Context, userID int64, token string, now time.Time) (*models.RememberToken, error) {
	t := &models.RememberToken{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, token, expires_at, created_at
		FROM remember_tokens
		WHERE token = $1 AND user_id = $2 AND expires_at > $3
	`, token, userID, now).Scan(&t.ID, &t.UserID, &t.Token, &t.ExpiresAt, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find remember token: %w", err)
	}
	return t, nil
}

// Delete removes the token identified by the cookie pair.
func (s *RememberTokenStore) Delete(ctx context.Context, userID int64, token string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM remember_tokens WHERE user_id = $1 AND token = $2`, userID, token,
	); err != nil {
		return fmt.Errorf("delete remember token: %w", err)
	}
	return nil
}
