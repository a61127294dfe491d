// Package store provides database access methods for all proxyplayer
// entities. Each store struct wraps a *sql.DB and exposes typed query methods.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"proxyplayer/internal/dbx"
	"proxyplayer/internal/models"
)

const userColumns = `id, username, email, password_hash, role, created_at`

// dummyHash is compared against when a username does not exist so a failed
// login costs the same whether or not the account is real.
var dummyHash = sync.OnceValue(func() []byte {
	h, _ := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), bcrypt.DefaultCost)
	return h
})

// NewUser is the input for account creation.
type NewUser struct {
	Username string
	Email    string
	Password string
	Role     models.Role
}

// UserUpdate is the input for an admin edit. An empty Password keeps the
// current one.
type UserUpdate struct {
	Username string
	Email    string
	Role     models.Role
	Password string
}

// UserStore handles all user-related database operations.
type UserStore struct {
	db   *sql.DB
	cost int
}

// NewUserStore creates a new UserStore with the given database connection.
func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db, cost: bcrypt.DefaultCost}
}

func scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	u := &models.User{}
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt); err != nil {
		return nil, err
	}
	return u, nil
}

// Create inserts a new user with a bcrypt-hashed password. A taken username
// or email yields a *ConflictError naming the field.
func (s *UserStore) Create(ctx context.Context, in NewUser) (*models.User, error) {
	return s.create(ctx, s.db, in)
}

// CreateWithSettings creates the user and its first video settings row in
// one transaction.
func (s *UserStore) CreateWithSettings(ctx context.Context, in NewUser, settings VideoSettingsInput) (*models.User, error) {
	var u *models.User
	err := dbx.WithTx(ctx, s.db, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		if u, err = s.create(ctx, tx, in); err != nil {
			return err
		}
		return upsertVideoSettings(ctx, tx, u.ID, settings)
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *UserStore) create(ctx context.Context, q dbx.DBTX, in NewUser) (*models.User, error) {
	if in.Role == "" {
		in.Role = models.RoleUser
	}
	if !in.Role.Valid() {
		return nil, fmt.Errorf("create user: invalid role %q", in.Role)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u, err := scanUser(q.QueryRowContext(ctx, `
		INSERT INTO users (username, email, password_hash, role)
		VALUES ($1, $2, $3, $4)
		RETURNING `+userColumns,
		in.Username, in.Email, string(hash), in.Role,
	))
	if err != nil {
		return nil, fmt.Errorf("create user: %w", classify(err))
	}
	return u, nil
}

// Verify checks a username/password pair. It returns (nil, nil) for an
// unknown user and for a wrong password alike, and spends one bcrypt
// comparison in both cases.
func (s *UserStore) Verify(ctx context.Context, username, password string) (*models.User, error) {
	u, err := s.FindByUsername(ctx, username)
	if errors.Is(err, ErrNotFound) {
		_ = bcrypt.CompareHashAndPassword(dummyHash(), []byte(password))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, nil
	}
	return u, nil
}

// FindByUsername retrieves a user by username.
func (s *UserStore) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = $1`, username))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user by username: %w", err)
	}
	return u, nil
}

// FindByID retrieves a user by id.
func (s *UserStore) FindByID(ctx context.Context, id int64) (*models.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return u, nil
}

// Role returns the role of the given user.
func (s *UserStore) Role(ctx context.Context, id int64) (models.Role, error) {
	var role models.Role
	err := s.db.QueryRowContext(ctx, `SELECT role FROM users WHERE id = $1`, id).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("user role: %w", err)
	}
	return role, nil
}

// List returns all users (optionally filtered by a username/email substring)
// with their video counts and latest video settings, ordered by id.
func (s *UserStore) List(ctx context.Context, search string) ([]models.UserSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id, u.username, u.email, u.password_hash, u.role, u.created_at,
		       (SELECT COUNT(*) FROM videos v WHERE v.user_id = u.id),
		       vs.ad_url, vs.domains
		FROM users u
		LEFT JOIN LATERAL (
			SELECT ad_url, domains FROM video_settings
			WHERE user_id = u.id ORDER BY id DESC LIMIT 1
		) vs ON TRUE
		WHERE $1::text = '' OR u.username ILIKE $2 OR u.email ILIKE $2
		ORDER BY u.id ASC
	`, search, likePattern(search))
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []models.UserSummary
	for rows.Next() {
		var u models.UserSummary
		if err := rows.Scan(
			&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt,
			&u.VideoCount, &u.AdURL, &u.Domains,
		); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// Update applies an admin edit and, when settings is non-nil, upserts the
// user's video settings in the same transaction. Changing the bootstrap
// account's role fails with ErrProtectedUser.
func (s *UserStore) Update(ctx context.Context, id int64, upd UserUpdate, settings *VideoSettingsInput) error {
	if !upd.Role.Valid() {
		return fmt.Errorf("update user: invalid role %q", upd.Role)
	}

	var hash string
	if upd.Password != "" {
		h, err := bcrypt.GenerateFromPassword([]byte(upd.Password), s.cost)
		if err != nil {
			return fmt.Errorf("hash password: %w", err)
		}
		hash = string(h)
	}

	return dbx.WithTx(ctx, s.db, func(ctx context.Context, tx dbx.DBTX) error {
		// The bootstrap account keeps whatever role it has.
		if id == models.BootstrapAdminID {
			var current models.Role
			err := tx.QueryRowContext(ctx, `SELECT role FROM users WHERE id = $1 FOR UPDATE`, id).Scan(&current)
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			if err != nil {
				return fmt.Errorf("update user: %w", err)
			}
			if current != upd.Role {
				return ErrProtectedUser
			}
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE users
			SET username = $1, email = $2, role = $3,
			    password_hash = CASE WHEN $4 = '' THEN password_hash ELSE $4 END
			WHERE id = $5
		`, upd.Username, upd.Email, upd.Role, hash, id)
		if err != nil {
			return fmt.Errorf("update user: %w", classify(err))
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		if settings == nil {
			return nil
		}
		return upsertVideoSettings(ctx, tx, id, *settings)
	})
}

// Delete removes a user. Videos, settings and remember tokens go with it
// through ON DELETE CASCADE.
func (s *UserStore) Delete(ctx context.Context, id int64) error {
	if id == models.BootstrapAdminID {
		return ErrProtectedUser
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Count returns the number of registered users.
func (s *UserStore) Count(ctx context.Context) (int, error) {
	return s.CountSince(ctx, time.Time{})
}

// CountSince returns the number of users registered at or after since.
func (s *UserStore) CountSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE created_at >= $1`, since).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}
