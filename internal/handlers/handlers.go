// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package handlers implements the application's pages and endpoints as
// route.HandlerFunc values. Handler groups carry their storage and
// configuration; the session and path parameters arrive on the request.
package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"proxyplayer/internal/middleware"
	"proxyplayer/internal/render"
	"proxyplayer/internal/route"
	"proxyplayer/internal/session"
	"proxyplayer/internal/store"
)

// Flash kinds understood by the templates.
const (
	flashSuccess = "success"
	flashError   = "error"
)

// base holds what every page-rendering group needs.
type base struct {
	renderer *render.Renderer
	sessions *session.Manager
	settings *store.SettingsStore
	mount    string
}

func newBase(renderer *render.Renderer, sessions *session.Manager, settings *store.SettingsStore, mount string) base {
	return base{
		renderer: renderer,
		sessions: sessions,
		settings: settings,
		mount:    strings.TrimRight(mount, "/"),
	}
}

// url prefixes an absolute app path with the mount point.
func (b *base) url(path string) string {
	return b.mount + path
}

// page renders a template with the common fields filled in: session, CSRF
// token, effective site settings and any pending flash message.
func (b *base) page(req *route.Request, status int, name string, p *render.Page) *route.Response {
	ctx := req.Context()

	p.Mount = b.mount
	p.Session = req.Session
	p.CSRFToken = middleware.CSRFTokenFromCtx(ctx)
	if p.Data == nil {
		p.Data = map[string]any{}
	}

	var viewerID int64
	var viewerIsAdmin bool
	if req.Session != nil {
		viewerID, viewerIsAdmin = req.Session.UserID, req.Session.IsAdmin()
	}
	p.Site = b.settings.Effective(ctx, viewerID, viewerIsAdmin)

	if p.Flash == nil && req.LoggedIn() {
		p.Flash = b.sessions.PopFlash(ctx, req.Session)
	}

	body, err := b.renderer.Render(name, p)
	if err != nil {
		slog.Error("render failed", "template", name, "error", err)
		return serverError()
	}
	return route.HTML(status, body)
}

// redirectWithFlash stores a flash message and redirects to path.
func (b *base) redirectWithFlash(req *route.Request, path, kind, msg string) *route.Response {
	b.sessions.SetFlash(req.Context(), req.Session, kind, msg)
	return route.Redirect(b.url(path))
}

// serverError is the static body for failures the user cannot fix.
func serverError() *route.Response {
	return route.Text(http.StatusInternalServerError, "Internal Server Error")
}

// ownerScope returns the owner filter for video queries: admins see every
// video (0), other users only their own.
func ownerScope(sess *session.Data) int64 {
	if sess.IsAdmin() {
		return 0
	}
	return sess.UserID
}

// queryID parses the "id" query parameter.
func queryID(req *route.Request) (int64, bool) {
	return parseID(req.URL.Query().Get("id"))
}

func parseID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// baseURL returns the absolute URL the app is reachable at for this request,
// used to print shareable player links.
func baseURL(r *http.Request, mount string) string {
	scheme := "http"
	if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		scheme = "https"
	}
	return scheme + "://" + r.Host + mount
}
