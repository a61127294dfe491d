// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package middleware

import (
	"context"
	"net/http"
	"strings"

	"proxyplayer/internal/route"
	"proxyplayer/internal/session"
)

// Resumer works out the caller's session from the request cookies.
type Resumer interface {
	Resume(ctx context.Context, cw session.CookieWriter, r *http.Request) (*session.Data, session.State)
}

// LoadSession resumes the caller's session and stores it in the request
// context, where session.FromContext finds it. This middleware does NOT
// enforce authentication.
func LoadSession(sessions Resumer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			data, state := sessions.Resume(r.Context(), session.ResponseCookies(w), r)
			ctx := session.NewContext(r.Context(), data, state)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AuthPolicy classifies request paths by prefix. Prefixes match whole
// segments: "/edit" covers "/edit" and "/edit/3" but not "/editor".
type AuthPolicy struct {
	// Mount is stripped from the path before matching and prepended to
	// redirect targets.
	Mount string

	// Public paths never require a session.
	Public []string

	// Protected paths require a session. Unauthenticated requests are sent
	// to the login page.
	Protected []string

	// AdminOnly paths additionally require the admin role; other users are
	// sent to the dashboard.
	AdminOnly []string

	// API paths answer an unauthenticated request with a 401 JSON error
	// instead of a redirect.
	API []string

	// DefaultProtected decides paths matching none of the lists, which is
	// where the player route lives.
	DefaultProtected bool
}

// DefaultAuthPolicy returns the application's route classification.
func DefaultAuthPolicy(mount string, playerRequiresAuth bool) AuthPolicy {
	return AuthPolicy{
		Mount:            mount,
		Public:           []string{"/login", "/register", "/logout", "/health", "/favicon.ico"},
		Protected:        []string{"/dashboard", "/settings", "/edit", "/api.php", "/users", "/user-edit", "/add-user"},
		AdminOnly:        []string{"/users", "/user-edit", "/add-user"},
		API:              []string{"/api.php"},
		DefaultProtected: playerRequiresAuth,
	}
}

func hasPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

// protected reports whether a cleaned path needs a session.
func (p AuthPolicy) protected(path string) bool {
	switch {
	case path == "/" || hasPrefix(path, p.Public):
		return false
	case hasPrefix(path, p.Protected) || hasPrefix(path, p.AdminOnly) || hasPrefix(path, p.API):
		return true
	}
	return p.DefaultProtected
}

func (p AuthPolicy) url(path string) string {
	return strings.TrimSuffix("/"+strings.Trim(p.Mount, "/"), "/") + path
}

// Gate enforces an AuthPolicy before the request reaches the route table.
// Must be applied after LoadSession in the middleware chain.
func Gate(policy AuthPolicy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := route.Clean(r.URL.Path, policy.Mount)
			if !policy.protected(path) {
				next.ServeHTTP(w, r)
				return
			}

			data, state := session.FromContext(r.Context())
			if data == nil || !state.LoggedIn() {
				switch {
				case hasPrefix(path, policy.API):
					resp := route.JSON(http.StatusUnauthorized, map[string]string{
						"status":  "error",
						"message": "Unauthorized",
					})
					resp.Header.Set("Access-Control-Allow-Origin", "*")
					resp.Write(w)
				case state == session.Expired:
					http.Redirect(w, r, policy.url("/login?expired=1"), http.StatusSeeOther)
				default:
					http.Redirect(w, r, policy.url("/login"), http.StatusSeeOther)
				}
				return
			}

			if hasPrefix(path, policy.AdminOnly) && !data.IsAdmin() {
				http.Redirect(w, r, policy.url("/dashboard"), http.StatusSeeOther)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
