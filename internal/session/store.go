// Package session provides Valkey-backed HTTP session management.
// Sessions are identified by a secure cookie and stored as JSON in Valkey
// with automatic TTL expiry.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// CookieName is the name of the session cookie sent to the browser.
	CookieName = "pp_session"

	// DefaultTTL is how long a session key lives in Valkey past its last
	// write when no other TTL applies.
	DefaultTTL = 24 * time.Hour

	// keyPrefix namespaces session keys in Valkey to avoid collisions.
	keyPrefix = "session:"

	// idLength is the byte length of the random session ID (32 bytes = 64 hex chars).
	idLength = 32
)

// ErrNoSession is returned when the request carries no session cookie or
// the session it names is gone from Valkey.
var ErrNoSession = errors.New("no session")

// Flash is a one-shot message shown on the next page view.
type Flash struct {
	Kind    string `json:"kind"` // "success" or "error"
	Message string `json:"message"`
}

// Data holds the session payload stored in Valkey.
type Data struct {
	ID               string    `json:"-"`
	UserID           int64     `json:"user_id"`
	Username         string    `json:"username"`
	Role             string    `json:"role"`
	RememberMe       bool      `json:"remember_me"`
	LastActivity     time.Time `json:"last_activity"`
	LastRegeneration time.Time `json:"last_regeneration"`
	CreatedAt        time.Time `json:"created_at"`
	Flash            *Flash    `json:"flash,omitempty"`
}

// IsAdmin reports whether the session belongs to an admin account.
func (d *Data) IsAdmin() bool {
	return d != nil && d.Role == "admin"
}

// CookieWriter receives cookies set by the session layer. An
// http.ResponseWriter is adapted with ResponseCookies; handler responses
// implement it directly.
type CookieWriter interface {
	SetCookie(c *http.Cookie)
}

type responseCookies struct{ w http.ResponseWriter }

func (rc responseCookies) SetCookie(c *http.Cookie) { http.SetCookie(rc.w, c) }

// ResponseCookies adapts w to a CookieWriter.
func ResponseCookies(w http.ResponseWriter) CookieWriter {
	return responseCookies{w: w}
}

// Store manages session lifecycle in Valkey.
type Store struct {
	client *redis.Client
	secure bool
}

// NewStore creates a session store backed by the given Valkey client.
// When secure is true the session cookie carries the Secure attribute.
func NewStore(client *redis.Client, secure bool) *Store {
	return &Store{client: client, secure: secure}
}

// Create generates a new session ID, stores data under it with the given
// TTL and sets the session cookie.
func (s *Store) Create(ctx context.Context, cw CookieWriter, r *http.Request, data *Data, ttl time.Duration) error {
	id, err := generateID()
	if err != nil {
		return fmt.Errorf("session create: %w", err)
	}
	data.ID = id
	if err := s.Save(ctx, data, ttl); err != nil {
		return err
	}
	s.setCookie(cw, r, id)
	return nil
}

// ID returns the session ID carried by the request cookie, or "".
func (s *Store) ID(r *http.Request) string {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// Load retrieves the session named by id.
func (s *Store) Load(ctx context.Context, id string) (*Data, error) {
	if id == "" {
		return nil, ErrNoSession
	}

	payload, err := s.client.Get(ctx, keyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("session get: %w", err)
	}

	var data Data
	if err := json.Unmarshal(payload, &data); err != nil {
		return nil, fmt.Errorf("session unmarshal: %w", err)
	}
	data.ID = id
	return &data, nil
}

// Save writes data under its ID and resets the key TTL.
func (s *Store) Save(ctx context.Context, data *Data, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("session marshal: %w", err)
	}
	if err := s.client.Set(ctx, keyPrefix+data.ID, payload, ttl).Err(); err != nil {
		return fmt.Errorf("session store: %w", err)
	}
	return nil
}

// Rotate moves data to a fresh ID, deletes the old key and reissues the
// cookie. The payload is otherwise untouched.
func (s *Store) Rotate(ctx context.Context, cw CookieWriter, r *http.Request, data *Data, ttl time.Duration) error {
	oldID := data.ID
	if err := s.Create(ctx, cw, r, data, ttl); err != nil {
		return fmt.Errorf("session rotate: %w", err)
	}
	if err := s.client.Del(ctx, keyPrefix+oldID).Err(); err != nil {
		return fmt.Errorf("session rotate: delete old: %w", err)
	}
	return nil
}

// Destroy removes the session from Valkey and clears the cookie.
func (s *Store) Destroy(ctx context.Context, cw CookieWriter, id string) error {
	expire(cw, CookieName)
	if id == "" {
		return nil
	}
	if err := s.client.Del(ctx, keyPrefix+id).Err(); err != nil {
		return fmt.Errorf("session destroy: %w", err)
	}
	return nil
}

func (s *Store) setCookie(cw CookieWriter, r *http.Request, id string) {
	cw.SetCookie(&http.Cookie{
		Name:     CookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secure || (r != nil && r.TLS != nil),
		SameSite: http.SameSiteLaxMode,
	})
}

// expire tells the browser to drop the named cookie immediately.
func expire(cw CookieWriter, name string) {
	cw.SetCookie(&http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
	})
}

// generateID creates a cryptographically random session identifier.
func generateID() (string, error) {
	b := make([]byte, idLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
