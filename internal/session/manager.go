// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"proxyplayer/internal/models"
	"proxyplayer/internal/store"
)

// Remember-me cookie names.
const (
	RememberTokenCookie = "remember_token"
	RememberUserCookie  = "remember_user"
)

// Defaults for Config fields left zero.
const (
	DefaultIdleTimeout    = 12 * time.Hour
	DefaultRotateInterval = 30 * time.Minute
	DefaultRememberTTL    = 30 * 24 * time.Hour
)

// ErrExpired is reported when a non-remembered session has been idle past
// the timeout.
var ErrExpired = errors.New("session expired")

// State is the authentication state of one client.
type State int

const (
	Anonymous State = iota
	Authenticated
	AuthenticatedRemembered
	Expired
)

func (s State) String() string {
	switch s {
	case Authenticated:
		return "authenticated"
	case AuthenticatedRemembered:
		return "authenticated_remembered"
	case Expired:
		return "expired"
	default:
		return "anonymous"
	}
}

// Err maps the state to the error a gate reports for it: nil when logged
// in, ErrExpired or ErrNoSession otherwise.
func (s State) Err() error {
	switch s {
	case Authenticated, AuthenticatedRemembered:
		return nil
	case Expired:
		return ErrExpired
	default:
		return ErrNoSession
	}
}

// LoggedIn reports whether the state carries an identity.
func (s State) LoggedIn() bool {
	return s == Authenticated || s == AuthenticatedRemembered
}

// TokenStore persists remember-me tokens.
type TokenStore interface {
	Replace(ctx context.Context, userID int64, token string, expiresAt time.Time) (*models.RememberToken, error)
	FindValid(ctx context.Context, userID int64, token string, now time.Time) (*models.RememberToken, error)
	Delete(ctx context.Context, userID int64, token string) error
}

// UserLookup loads the current user row for a session.
type UserLookup interface {
	FindByID(ctx context.Context, id int64) (*models.User, error)
}

// Config tunes the Manager's timers and cookie security.
type Config struct {
	IdleTimeout    time.Duration
	RotateInterval time.Duration
	RememberTTL    time.Duration
	Secure         bool
}

// Manager drives the login, remember-me, expiry and logout transitions on
// top of a Store.
type Manager struct {
	store  *Store
	tokens TokenStore
	users  UserLookup
	cfg    Config
	now    func() time.Time
}

// NewManager creates a Manager. Zero Config durations take the defaults.
func NewManager(st *Store, tokens TokenStore, users UserLookup, cfg Config) *Manager {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.RotateInterval <= 0 {
		cfg.RotateInterval = DefaultRotateInterval
	}
	if cfg.RememberTTL <= 0 {
		cfg.RememberTTL = DefaultRememberTTL
	}
	return &Manager{store: st, tokens: tokens, users: users, cfg: cfg, now: time.Now}
}

// keyTTL is how long Valkey keeps a session. Non-remembered sessions
// outlive the idle timeout by a day so an expired visit can still be told
// apart from a first visit.
func (m *Manager) keyTTL(d *Data) time.Duration {
	if d.RememberMe {
		return m.cfg.RememberTTL
	}
	return m.cfg.IdleTimeout + DefaultTTL
}

// Resume works out the client's state from its cookies. It never fails:
// storage problems are logged and the client is treated as anonymous.
//
// A live session gets its activity stamp refreshed, and its ID rotated
// when the last rotation is older than the rotate interval. A
// non-remembered session idle past the timeout is destroyed and reported
// as Expired. Without a session, a valid remember-me cookie pair starts a
// new remembered session; an invalid pair is cleared.
func (m *Manager) Resume(ctx context.Context, cw CookieWriter, r *http.Request) (*Data, State) {
	now := m.now()

	if id := m.store.ID(r); id != "" {
		data, err := m.store.Load(ctx, id)
		switch {
		case err == nil:
			return m.touch(ctx, cw, r, data, now)
		case errors.Is(err, ErrNoSession):
			m.store.Destroy(ctx, cw, "")
		default:
			slog.Warn("session load failed", "error", err)
		}
	}

	return m.replayRemember(ctx, cw, r, now)
}

func (m *Manager) touch(ctx context.Context, cw CookieWriter, r *http.Request, data *Data, now time.Time) (*Data, State) {
	if !data.RememberMe && now.Sub(data.LastActivity) > m.cfg.IdleTimeout {
		if err := m.store.Destroy(ctx, cw, data.ID); err != nil {
			slog.Warn("expired session destroy failed", "error", err)
		}
		return nil, Expired
	}

	u, err := m.users.FindByID(ctx, data.UserID)
	switch {
	case err == nil:
		data.Username = u.Username
		data.Role = string(u.Role)
	case isNotFound(err):
		// The account was deleted under a live session.
		m.store.Destroy(ctx, cw, data.ID)
		m.clearRemember(cw)
		return nil, Anonymous
	default:
		slog.Warn("session user refresh failed", "user_id", data.UserID, "error", err)
	}

	data.LastActivity = now
	ttl := m.keyTTL(data)
	if now.Sub(data.LastRegeneration) >= m.cfg.RotateInterval {
		data.LastRegeneration = now
		if err := m.store.Rotate(ctx, cw, r, data, ttl); err != nil {
			slog.Warn("session rotation failed", "error", err)
		}
	} else if err := m.store.Save(ctx, data, ttl); err != nil {
		slog.Warn("session save failed", "error", err)
	}

	if data.RememberMe {
		return data, AuthenticatedRemembered
	}
	return data, Authenticated
}

func (m *Manager) replayRemember(ctx context.Context, cw CookieWriter, r *http.Request, now time.Time) (*Data, State) {
	userID, token, present := rememberPair(r)
	if !present {
		return nil, Anonymous
	}
	if userID == 0 || token == "" {
		m.clearRemember(cw)
		return nil, Anonymous
	}

	if _, err := m.tokens.FindValid(ctx, userID, token, now); err != nil {
		if !isNotFound(err) {
			slog.Warn("remember token lookup failed", "user_id", userID, "error", err)
		}
		m.clearRemember(cw)
		return nil, Anonymous
	}

	u, err := m.users.FindByID(ctx, userID)
	if err != nil {
		if !isNotFound(err) {
			slog.Warn("remember user lookup failed", "user_id", userID, "error", err)
		}
		m.clearRemember(cw)
		return nil, Anonymous
	}

	data := m.newData(u, true, now)
	if err := m.store.Create(ctx, cw, r, data, m.keyTTL(data)); err != nil {
		slog.Warn("remember session create failed", "user_id", userID, "error", err)
		return nil, Anonymous
	}
	slog.Info("session restored from remember token", "user_id", userID)
	return data, AuthenticatedRemembered
}

// Login starts a session for u. With remember set it also mints a
// remember token, replacing any earlier one for the user, and sets the
// cookie pair. Any session the client already had is discarded.
func (m *Manager) Login(ctx context.Context, cw CookieWriter, r *http.Request, u *models.User, remember bool) (*Data, error) {
	now := m.now()

	if old := m.store.ID(r); old != "" {
		if err := m.store.Destroy(ctx, cw, old); err != nil {
			slog.Warn("previous session destroy failed", "error", err)
		}
	}

	if remember {
		token, err := newRememberToken()
		if err != nil {
			return nil, fmt.Errorf("login: %w", err)
		}
		expires := now.Add(m.cfg.RememberTTL)
		if _, err := m.tokens.Replace(ctx, u.ID, token, expires); err != nil {
			return nil, fmt.Errorf("login: %w", err)
		}
		m.setRemember(cw, r, u.ID, token, expires)
	}

	data := m.newData(u, remember, now)
	if err := m.store.Create(ctx, cw, r, data, m.keyTTL(data)); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	return data, nil
}

// Logout ends the session: the Valkey key, the remember token row named by
// the cookie pair, and all three cookies. data is the session Resume
// produced for this request, if any; it may have been rotated or replayed
// from the remember pair, so its key is destroyed along with the one the
// cookie names. Storage errors are logged; the cookies are cleared
// regardless.
func (m *Manager) Logout(ctx context.Context, cw CookieWriter, r *http.Request, data *Data) {
	cookieID := m.store.ID(r)
	if err := m.store.Destroy(ctx, cw, cookieID); err != nil {
		slog.Warn("logout session destroy failed", "error", err)
	}
	if data != nil && data.ID != "" && data.ID != cookieID {
		if err := m.store.Destroy(ctx, cw, data.ID); err != nil {
			slog.Warn("logout session destroy failed", "error", err)
		}
	}

	if userID, token, present := rememberPair(r); present {
		if userID != 0 && token != "" {
			if err := m.tokens.Delete(ctx, userID, token); err != nil {
				slog.Warn("logout remember token delete failed", "user_id", userID, "error", err)
			}
		}
		m.clearRemember(cw)
	}
}

// Save persists changes a handler made to data.
func (m *Manager) Save(ctx context.Context, data *Data) error {
	return m.store.Save(ctx, data, m.keyTTL(data))
}

// SetFlash stores a one-shot message in the session.
func (m *Manager) SetFlash(ctx context.Context, data *Data, kind, msg string) {
	if data == nil {
		return
	}
	data.Flash = &Flash{Kind: kind, Message: msg}
	if err := m.Save(ctx, data); err != nil {
		slog.Warn("flash save failed", "error", err)
	}
}

// PopFlash returns and clears the pending flash message, if any.
func (m *Manager) PopFlash(ctx context.Context, data *Data) *Flash {
	if data == nil || data.Flash == nil {
		return nil
	}
	f := data.Flash
	data.Flash = nil
	if err := m.Save(ctx, data); err != nil {
		slog.Warn("flash clear failed", "error", err)
	}
	return f
}

func (m *Manager) newData(u *models.User, remember bool, now time.Time) *Data {
	return &Data{
		UserID:           u.ID,
		Username:         u.Username,
		Role:             string(u.Role),
		RememberMe:       remember,
		LastActivity:     now,
		LastRegeneration: now,
		CreatedAt:        now,
	}
}

func (m *Manager) setRemember(cw CookieWriter, r *http.Request, userID int64, token string, expires time.Time) {
	secure := m.cfg.Secure || (r != nil && r.TLS != nil)
	for _, c := range []*http.Cookie{
		{Name: RememberTokenCookie, Value: token},
		{Name: RememberUserCookie, Value: strconv.FormatInt(userID, 10)},
	} {
		c.Path = "/"
		c.Expires = expires
		c.MaxAge = int(m.cfg.RememberTTL.Seconds())
		c.HttpOnly = true
		c.Secure = secure
		c.SameSite = http.SameSiteLaxMode
		cw.SetCookie(c)
	}
}

func (m *Manager) clearRemember(cw CookieWriter) {
	expire(cw, RememberTokenCookie)
	expire(cw, RememberUserCookie)
}

// rememberPair reads the remember-me cookies. present is true when either
// cookie exists; a malformed user id comes back as 0.
func rememberPair(r *http.Request) (userID int64, token string, present bool) {
	tc, terr := r.Cookie(RememberTokenCookie)
	uc, uerr := r.Cookie(RememberUserCookie)
	if terr != nil && uerr != nil {
		return 0, "", false
	}
	if tc != nil {
		token = tc.Value
	}
	if uc != nil {
		if id, err := strconv.ParseInt(uc.Value, 10, 64); err == nil && id > 0 {
			userID = id
		}
	}
	return userID, token, true
}

// newRememberToken returns 32 random bytes, hex encoded.
func newRememberToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("remember token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
