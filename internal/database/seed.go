package database

import (
	"database/sql"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"
)

// Seed populates the database with initial development data.
// It creates a default admin user if no account exists yet, which makes it
// the bootstrap admin (id 1) on a fresh database.
func Seed(db *sql.DB) error {
	// Check if any users exist already.
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM users").Scan(&count); err != nil {
		return fmt.Errorf("seed check users: %w", err)
	}

	if count > 0 {
		slog.Info("database already seeded, skipping")
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte("admin123"), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("seed bcrypt: %w", err)
	}

	_, err = db.Exec(`
		INSERT INTO users (username, email, password_hash, role)
		VALUES ($1, $2, $3, $4)
	`, "admin", "admin@proxyplayer.local", string(hash), "admin")
	if err != nil {
		return fmt.Errorf("seed insert admin: %w", err)
	}

	slog.Info("database seeded with default admin user",
		"username", "admin",
		"password", "admin123",
	)

	return nil
}

// MakeAdmin promotes the bootstrap account (id 1) to the admin role. It is
// the recovery path for installs where the first account registered
// through the public form.
func MakeAdmin(db *sql.DB) error {
	res, err := db.Exec(`UPDATE users SET role = 'admin' WHERE id = 1`)
	if err != nil {
		return fmt.Errorf("make admin: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("make admin rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("make admin: no user with id 1")
	}
	slog.Info("user 1 promoted to admin")
	return nil
}
