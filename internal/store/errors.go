// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package store

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when a row addressed by id, slug or
	// credential does not exist (or is not visible to the caller).
	ErrNotFound = errors.New("not found")

	// ErrConflict matches every *ConflictError via errors.Is.
	ErrConflict = errors.New("already exists")

	// ErrProtectedUser is returned when deleting the bootstrap admin or
	// changing its role.
	ErrProtectedUser = errors.New("the bootstrap account cannot be deleted and its role cannot change")
)

// pgUniqueViolation is the SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

// uniqueFields maps unique constraint names to the column they guard.
var uniqueFields = map[string]string{
	"users_username_key":        "username",
	"users_email_key":           "email",
	"videos_slug_key":           "slug",
	"videos_file_id_key":        "file_id",
	"remember_tokens_token_key": "token",
}

// ConflictError reports a unique-constraint violation on Field.
type ConflictError struct {
	Field string
	Err   error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s already exists", e.Field)
}

func (e *ConflictError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrConflict) true for any ConflictError.
func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// classify turns a unique violation from PostgreSQL into a ConflictError and
// passes every other error through untouched.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		field, ok := uniqueFields[pgErr.ConstraintName]
		if !ok {
			field = pgErr.ConstraintName
		}
		return &ConflictError{Field: field, Err: err}
	}
	return err
}

// nullIfEmpty maps blank form values to SQL NULL.
func nullIfEmpty(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// likePattern builds a case-insensitive substring pattern for ILIKE,
// escaping the wildcard characters in the user's input.
func likePattern(search string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(search) + "%"
}
