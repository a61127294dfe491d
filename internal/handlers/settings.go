package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"proxyplayer/internal/cache"
	"proxyplayer/internal/models"
	"proxyplayer/internal/render"
	"proxyplayer/internal/route"
	"proxyplayer/internal/session"
	"proxyplayer/internal/store"
)

// Settings handles the per-user settings page. Admins also edit the site
// title and favicon there.
type Settings struct {
	base
	player     *cache.PlayerCache
	adNetworks []string
}

// NewSettings creates a new Settings handler group.
func NewSettings(renderer *render.Renderer, sessions *session.Manager, settings *store.SettingsStore, player *cache.PlayerCache, mount string, adNetworks []string) *Settings {
	return &Settings{
		base:       newBase(renderer, sessions, settings, mount),
		player:     player,
		adNetworks: adNetworks,
	}
}

type settingsForm struct {
	AdURL      string
	Domains    string
	SiteTitle  string
	FaviconURL string
}

// Page renders the settings form with the caller's latest values.
func (s *Settings) Page(req *route.Request) *route.Response {
	ctx := req.Context()
	sess := req.Session

	var form settingsForm
	vs, err := s.settings.LatestVideoSettings(ctx, sess.UserID)
	if err != nil {
		slog.Error("load video settings failed", "user_id", sess.UserID, "error", err)
		return serverError()
	}
	if vs != nil {
		form.AdURL = deref(vs.AdURL)
		form.Domains = deref(vs.Domains)
	}

	form.SiteTitle = models.DefaultSiteTitle
	if sess.IsAdmin() {
		ss, err := s.settings.LatestSiteSettings(ctx, sess.UserID)
		if err != nil {
			slog.Warn("load site settings failed", "user_id", sess.UserID, "error", err)
		} else if ss != nil {
			form.SiteTitle = ss.Title()
			form.FaviconURL = deref(ss.FaviconURL)
		}
	}

	return s.form(req, http.StatusOK, form, "")
}

func (s *Settings) form(req *route.Request, status int, f settingsForm, errMsg string) *route.Response {
	return s.page(req, status, "settings", &render.Page{
		Title:   "Settings",
		Section: "settings",
		Data: map[string]any{
			"AdURL":      f.AdURL,
			"Domains":    f.Domains,
			"SiteTitle":  f.SiteTitle,
			"FaviconURL": f.FaviconURL,
			"IsAdmin":    req.Session.IsAdmin(),
			"AdNetworks": s.adNetworks,
			"Error":      errMsg,
		},
	})
}

// Submit saves video settings, plus site settings for admins, in one
// transaction.
func (s *Settings) Submit(req *route.Request) *route.Response {
	sess := req.Session
	f := settingsForm{
		AdURL:      strings.TrimSpace(req.FormValue("ad_url")),
		Domains:    req.FormValue("domains"),
		SiteTitle:  strings.TrimSpace(req.FormValue("site_title")),
		FaviconURL: strings.TrimSpace(req.FormValue("favicon_url")),
	}

	if err := validateAdURL(f.AdURL, s.adNetworks); err != nil {
		return s.form(req, http.StatusOK, f, err.Error())
	}

	var site *store.SiteSettingsInput
	if sess.IsAdmin() {
		site = &store.SiteSettingsInput{SiteTitle: f.SiteTitle, FaviconURL: f.FaviconURL}
	}

	video := store.VideoSettingsInput{AdURL: f.AdURL, Domains: f.Domains}
	if err := s.settings.Save(req.Context(), sess.UserID, video, site); err != nil {
		slog.Error("save settings failed", "user_id", sess.UserID, "error", err)
		return s.form(req, http.StatusInternalServerError, f, "Failed to save settings")
	}

	// Player pages embed the site title and the owner's domain policy.
	s.player.InvalidateAll(req.Context())

	slog.Info("settings saved", "user_id", sess.UserID, "site", site != nil)
	return s.redirectWithFlash(req, "/settings", flashSuccess, "Settings saved successfully")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
