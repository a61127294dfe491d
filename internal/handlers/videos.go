// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"proxyplayer/internal/cache"
	"proxyplayer/internal/models"
	"proxyplayer/internal/render"
	"proxyplayer/internal/route"
	"proxyplayer/internal/session"
	"proxyplayer/internal/store"
)

// videosPerPage is the dashboard page size.
const videosPerPage = 5

// Videos handles the dashboard (list, add, delete) and the edit page.
type Videos struct {
	base
	videos *store.VideoStore
	users  *store.UserStore
	player *cache.PlayerCache
	now    func() time.Time
}

// NewVideos creates a new Videos handler group.
func NewVideos(renderer *render.Renderer, sessions *session.Manager, videos *store.VideoStore, users *store.UserStore, settings *store.SettingsStore, player *cache.PlayerCache, mount string) *Videos {
	return &Videos{
		base:   newBase(renderer, sessions, settings, mount),
		videos: videos,
		users:  users,
		player: player,
		now:    time.Now,
	}
}

// Dashboard lists one page of videos with the counters. Admins see every
// video; other users their own.
func (v *Videos) Dashboard(req *route.Request) *route.Response {
	ctx := req.Context()
	sess := req.Session
	owner := ownerScope(sess)

	q := req.URL.Query()
	search := strings.TrimSpace(q.Get("search"))
	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}

	filter := store.VideoFilter{OwnerID: owner, Search: search, Limit: videosPerPage, Offset: (page - 1) * videosPerPage}
	list, total, err := v.videos.List(ctx, filter)
	if err != nil {
		slog.Error("list videos failed", "user_id", sess.UserID, "error", err)
		return serverError()
	}

	pager := render.NewPagination(total, page, videosPerPage, func(n int) string {
		vals := url.Values{"page": {strconv.Itoa(n)}}
		if search != "" {
			vals.Set("search", search)
		}
		return v.url("/dashboard") + "?" + vals.Encode()
	})
	// A page past the end shows the last page instead of an empty list.
	if pager.Page != page && total > 0 {
		filter.Offset = pager.Offset()
		if list, _, err = v.videos.List(ctx, filter); err != nil {
			slog.Error("list videos failed", "user_id", sess.UserID, "error", err)
			return serverError()
		}
	}

	return v.page(req, http.StatusOK, "dashboard", &render.Page{
		Title:   "Dashboard",
		Section: "dashboard",
		Data: map[string]any{
			"Videos":     list,
			"Total":      total,
			"Search":     search,
			"Pagination": pager,
			"Stats":      v.stats(req, owner),
			"IsAdmin":    sess.IsAdmin(),
			"PlayerBase": baseURL(req.Request, v.mount),
		},
	})
}

// stats collects the dashboard counters. Failures only blank the counters.
func (v *Videos) stats(req *route.Request, owner int64) models.VideoStats {
	ctx := req.Context()
	now := v.now()

	st, err := v.videos.Stats(ctx, owner, now)
	if err != nil {
		slog.Warn("video stats failed", "error", err)
	}
	if !req.Session.IsAdmin() {
		return st
	}
	if st.Users, err = v.users.Count(ctx); err != nil {
		slog.Warn("user count failed", "error", err)
	}
	if st.NewUsers7d, err = v.users.CountSince(ctx, now.Add(-7*24*time.Hour)); err != nil {
		slog.Warn("user count failed", "error", err)
	}
	return st
}

// DashboardSubmit adds a video or, with action=delete, removes one.
func (v *Videos) DashboardSubmit(req *route.Request) *route.Response {
	if req.FormValue("action") == "delete" {
		return v.delete(req)
	}
	return v.add(req)
}

func (v *Videos) add(req *route.Request) *route.Response {
	title := strings.TrimSpace(req.FormValue("title"))
	fileID := strings.TrimSpace(req.FormValue("file_id"))
	subtitle := strings.TrimSpace(req.FormValue("subtitle"))

	if err := validateVideo(title, fileID, subtitle); err != nil {
		return v.redirectWithFlash(req, "/dashboard", flashError, err.Error())
	}

	video, err := v.videos.Create(req.Context(), store.NewVideo{
		UserID:   req.Session.UserID,
		Title:    title,
		FileID:   fileID,
		Subtitle: subtitle,
	})
	var ce *store.ConflictError
	switch {
	case errors.As(err, &ce) && ce.Field == "file_id":
		return v.redirectWithFlash(req, "/dashboard", flashError, "File ID already exists")
	case err != nil:
		slog.Error("add video failed", "user_id", req.Session.UserID, "error", err)
		return v.redirectWithFlash(req, "/dashboard", flashError, "Failed to add video")
	}

	slog.Info("video added", "video_id", video.ID, "slug", video.Slug, "user_id", video.UserID)
	return v.redirectWithFlash(req, "/dashboard", flashSuccess, "Video added successfully")
}

func (v *Videos) delete(req *route.Request) *route.Response {
	id, ok := parseID(req.FormValue("id"))
	if !ok {
		return v.redirectWithFlash(req, "/dashboard", flashError, "Video not found")
	}

	slug, err := v.videos.Delete(req.Context(), id, ownerScope(req.Session))
	switch {
	case errors.Is(err, store.ErrNotFound):
		return v.redirectWithFlash(req, "/dashboard", flashError, "Video not found")
	case err != nil:
		slog.Error("delete video failed", "video_id", id, "error", err)
		return v.redirectWithFlash(req, "/dashboard", flashError, "Failed to delete video")
	}

	v.player.Invalidate(req.Context(), slug)
	slog.Info("video deleted", "video_id", id, "slug", slug, "by", req.Session.UserID)
	return v.redirectWithFlash(req, "/dashboard", flashSuccess, "Video deleted successfully")
}

// EditPage renders the edit form for a video the caller may change.
func (v *Videos) EditPage(req *route.Request) *route.Response {
	video, resp := v.find(req)
	if resp != nil {
		return resp
	}
	return v.editForm(req, http.StatusOK, video, "")
}

func (v *Videos) editForm(req *route.Request, status int, video *models.Video, errMsg string) *route.Response {
	return v.page(req, status, "edit", &render.Page{
		Title:   "Edit Video",
		Section: "dashboard",
		Data:    map[string]any{"Video": video, "Error": errMsg},
	})
}

// find loads the video named by ?id=, or returns the redirect to send.
func (v *Videos) find(req *route.Request) (*models.Video, *route.Response) {
	id, ok := queryID(req)
	if !ok {
		return nil, v.redirectWithFlash(req, "/dashboard", flashError, "No video ID provided")
	}
	video, err := v.videos.FindOwned(req.Context(), id, ownerScope(req.Session))
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, v.redirectWithFlash(req, "/dashboard", flashError, "Video not found")
	case err != nil:
		slog.Error("find video failed", "video_id", id, "error", err)
		return nil, serverError()
	}
	return video, nil
}

// EditSubmit saves the edit form.
func (v *Videos) EditSubmit(req *route.Request) *route.Response {
	video, resp := v.find(req)
	if resp != nil {
		return resp
	}

	upd := store.VideoUpdate{
		Title:    strings.TrimSpace(req.FormValue("title")),
		FileID:   strings.TrimSpace(req.FormValue("file_id")),
		Subtitle: strings.TrimSpace(req.FormValue("subtitle")),
	}
	// Re-render with what the user typed.
	typed := *video
	typed.Title, typed.FileID = upd.Title, upd.FileID
	typed.Subtitle = &upd.Subtitle

	if err := validateVideo(upd.Title, upd.FileID, upd.Subtitle); err != nil {
		return v.editForm(req, http.StatusOK, &typed, err.Error())
	}

	updated, err := v.videos.Update(req.Context(), video.ID, ownerScope(req.Session), upd)
	var ce *store.ConflictError
	switch {
	case errors.As(err, &ce) && ce.Field == "file_id":
		return v.editForm(req, http.StatusOK, &typed, "File ID already exists")
	case errors.Is(err, store.ErrNotFound):
		return v.redirectWithFlash(req, "/dashboard", flashError, "Video not found")
	case err != nil:
		slog.Error("update video failed", "video_id", video.ID, "error", err)
		return v.editForm(req, http.StatusInternalServerError, &typed, "Failed to update video")
	}

	v.player.Invalidate(req.Context(), updated.Slug)
	slog.Info("video updated", "video_id", updated.ID, "by", req.Session.UserID)
	return v.redirectWithFlash(req, "/dashboard", flashSuccess, "Video updated successfully")
}
