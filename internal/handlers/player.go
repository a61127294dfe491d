// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"proxyplayer/internal/cache"
	"proxyplayer/internal/models"
	"proxyplayer/internal/render"
	"proxyplayer/internal/resolver"
	"proxyplayer/internal/route"
	"proxyplayer/internal/slug"
	"proxyplayer/internal/store"
)

// Player serves the public player page and the JSON endpoint it calls.
type Player struct {
	renderer *render.Renderer
	resolver *resolver.Service
	settings *store.SettingsStore
	cache    *cache.PlayerCache
	mount    string
}

// NewPlayer creates a new Player handler group.
func NewPlayer(renderer *render.Renderer, res *resolver.Service, settings *store.SettingsStore, pc *cache.PlayerCache, mount string) *Player {
	return &Player{
		renderer: renderer,
		resolver: res,
		settings: settings,
		cache:    pc,
		mount:    strings.TrimRight(mount, "/"),
	}
}

// apiResult is the api.php response body.
type apiResult struct {
	Status   string `json:"status"`
	EmbedURL string `json:"embed_url,omitempty"`
	Message  string `json:"message,omitempty"`
}

func apiJSON(status int, body apiResult) *route.Response {
	resp := route.JSON(status, body)
	resp.Header.Set("Access-Control-Allow-Origin", "*")
	resp.Header.Set("Access-Control-Allow-Methods", "GET, POST")
	resp.Header.Set("Access-Control-Allow-Headers", "Content-Type")
	return resp
}

func apiError(status int, msg string) *route.Response {
	return apiJSON(status, apiResult{Status: "error", Message: msg})
}

// API resolves ?slug= to an embed URL through the embed API.
func (p *Player) API(req *route.Request) *route.Response {
	s := strings.TrimSpace(req.FormValue("slug"))
	if s == "" {
		return apiError(http.StatusBadRequest, "Slug parameter is required")
	}

	embedURL, err := p.resolver.Resolve(req.Context(), s)
	var upErr *resolver.UpstreamError
	var badErr *resolver.BadResponseError
	switch {
	case errors.Is(err, resolver.ErrNotFound):
		return apiError(http.StatusNotFound, "Video not found")
	case errors.As(err, &upErr):
		slog.Error("embed api call failed", "slug", s, "status", upErr.Status, "error", upErr.Err)
		return apiError(http.StatusInternalServerError, "API request failed: "+upErr.Error())
	case errors.As(err, &badErr):
		slog.Error("embed api bad response", "slug", s, "body", badErr.Body)
		return apiError(http.StatusInternalServerError, "Invalid API response")
	case err != nil:
		slog.Error("resolve failed", "slug", s, "error", err)
		return apiError(http.StatusInternalServerError, "Database error")
	}

	return apiJSON(http.StatusOK, apiResult{Status: "success", EmbedURL: embedURL})
}

// cachedPlayer is what the player cache stores per slug.
type cachedPlayer struct {
	HTML           []byte `json:"html"`
	FrameAncestors string `json:"frame_ancestors,omitempty"`
}

// Page renders the iframe page for /:slug. Pages are cached per slug.
func (p *Player) Page(req *route.Request) *route.Response {
	ctx := req.Context()
	s := req.Params.Get("slug")
	if !slug.Valid(s) {
		return route.Text(http.StatusNotFound, "Video not found")
	}

	if raw, ok := p.cache.Get(ctx, s); ok {
		var entry cachedPlayer
		if err := json.Unmarshal(raw, &entry); err == nil {
			return playerResponse(entry)
		}
		slog.Warn("player cache entry unreadable", "slug", s)
	}

	_, apiReq, err := p.resolver.Lookup(ctx, s)
	switch {
	case errors.Is(err, resolver.ErrNotFound):
		return route.Text(http.StatusNotFound, "Video not found")
	case err != nil:
		slog.Error("player lookup failed", "slug", s, "error", err)
		return serverError()
	}

	// The page is the same for every viewer, so it shows the global site
	// settings rather than the viewer's.
	body, err := p.renderer.Render("player", &render.Page{
		Mount: p.mount,
		Site:  p.settings.Effective(ctx, 0, false),
		Data:  map[string]any{"APIURL": p.mount + "/api.php?slug=" + url.QueryEscape(s)},
	})
	if err != nil {
		slog.Error("render failed", "template", "player", "error", err)
		return serverError()
	}

	entry := cachedPlayer{HTML: body}
	if apiReq.Domains != nil {
		entry.FrameAncestors = frameAncestors(*apiReq.Domains)
	}
	if raw, err := json.Marshal(entry); err == nil {
		p.cache.Set(ctx, s, raw)
	}
	return playerResponse(entry)
}

func playerResponse(entry cachedPlayer) *route.Response {
	resp := route.HTML(http.StatusOK, entry.HTML)
	if entry.FrameAncestors != "" {
		resp.Header.Set("Content-Security-Policy", entry.FrameAncestors)
	}
	return resp
}

// hostSource matches a CSP host-source with an optional scheme and port.
var hostSource = regexp.MustCompile(`^([a-z][a-z0-9+.-]*://)?(\*\.)?[a-z0-9.-]+(:[0-9]+)?$`)

// frameAncestors builds a frame-ancestors policy from the owner's
// newline-separated domain list. Entries that are not valid host sources
// are skipped; an empty result means no restriction.
func frameAncestors(domains string) string {
	var sources []string
	for _, entry := range models.SplitDomains(domains) {
		d := strings.ToLower(strings.TrimRight(entry, "/"))
		if d == "" || !hostSource.MatchString(d) {
			continue
		}
		sources = append(sources, d)
	}
	if len(sources) == 0 {
		return ""
	}
	return "frame-ancestors 'self' " + strings.Join(sources, " ")
}
