// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"proxyplayer/internal/cache"
	"proxyplayer/internal/models"
	"proxyplayer/internal/render"
	"proxyplayer/internal/route"
	"proxyplayer/internal/session"
	"proxyplayer/internal/store"
)

// Users handles the admin-only account management pages.
type Users struct {
	base
	users      *store.UserStore
	player     *cache.PlayerCache
	adNetworks []string
}

// NewUsers creates a new Users handler group.
func NewUsers(renderer *render.Renderer, sessions *session.Manager, users *store.UserStore, settings *store.SettingsStore, player *cache.PlayerCache, mount string, adNetworks []string) *Users {
	return &Users{
		base:       newBase(renderer, sessions, settings, mount),
		users:      users,
		player:     player,
		adNetworks: adNetworks,
	}
}

// userForm is the add/edit user form as submitted.
type userForm struct {
	ID       int64 // 0 when adding
	Username string
	Email    string
	Role     models.Role
	Password string
	AdURL    string
	Domains  string
}

func readUserForm(req *route.Request, id int64) userForm {
	f := userForm{
		ID:       id,
		Username: strings.TrimSpace(req.FormValue("username")),
		Email:    strings.TrimSpace(req.FormValue("email")),
		Role:     models.Role(req.FormValue("role")),
		Password: req.FormValue("password"),
		AdURL:    strings.TrimSpace(req.FormValue("ad_url")),
		Domains:  req.FormValue("domains"),
	}
	if f.Role == "" {
		f.Role = models.RoleUser
	}
	return f
}

// List renders all accounts, optionally filtered by ?search=.
func (u *Users) List(req *route.Request) *route.Response {
	search := strings.TrimSpace(req.URL.Query().Get("search"))
	users, err := u.users.List(req.Context(), search)
	if err != nil {
		slog.Error("list users failed", "error", err)
		return serverError()
	}
	return u.page(req, http.StatusOK, "users", &render.Page{
		Title:   "Users",
		Section: "users",
		Data:    map[string]any{"Users": users, "Search": search},
	})
}

// ListSubmit handles the delete buttons on the users list.
func (u *Users) ListSubmit(req *route.Request) *route.Response {
	if req.FormValue("action") != "delete" {
		return route.Redirect(u.url("/users"))
	}
	id, ok := parseID(req.FormValue("id"))
	if !ok {
		return u.redirectWithFlash(req, "/users", flashError, "User not found")
	}
	if id == req.Session.UserID {
		return u.redirectWithFlash(req, "/users", flashError, "You cannot delete your own account")
	}

	err := u.users.Delete(req.Context(), id)
	switch {
	case errors.Is(err, store.ErrProtectedUser):
		return u.redirectWithFlash(req, "/users", flashError, "The first account cannot be deleted")
	case errors.Is(err, store.ErrNotFound):
		return u.redirectWithFlash(req, "/users", flashError, "User not found")
	case err != nil:
		slog.Error("delete user failed", "target", id, "error", err)
		return u.redirectWithFlash(req, "/users", flashError, "Failed to delete user")
	}

	// The user's videos went with the account.
	u.player.InvalidateAll(req.Context())
	slog.Info("user deleted", "target", id, "by", req.Session.UserID)
	return u.redirectWithFlash(req, "/users", flashSuccess, "User deleted successfully")
}

func (u *Users) form(req *route.Request, status int, f userForm, errMsg string) *route.Response {
	title, action := "Add User", u.url("/add-user")
	if f.ID != 0 {
		title, action = "Edit User", u.url("/user-edit")+"?id="+strconv.FormatInt(f.ID, 10)
	}
	return u.page(req, status, "user_edit", &render.Page{
		Title:   title,
		Section: "users",
		Data: map[string]any{
			"Action":    action,
			"New":       f.ID == 0,
			"Bootstrap": f.ID == models.BootstrapAdminID,
			"Username":  f.Username,
			"Email":     f.Email,
			"Role":      string(f.Role),
			"AdURL":     f.AdURL,
			"Domains":   f.Domains,
			"Error":     errMsg,
		},
	})
}

// conflictMessage maps a unique violation to the form error.
func conflictMessage(err error) (string, bool) {
	var ce *store.ConflictError
	if !errors.As(err, &ce) {
		return "", false
	}
	switch ce.Field {
	case "username":
		return "Username already exists", true
	case "email":
		return "Email already registered", true
	}
	return "Username or email already exists", true
}

// EditPage renders the edit form for ?id=.
func (u *Users) EditPage(req *route.Request) *route.Response {
	ctx := req.Context()
	id, ok := queryID(req)
	if !ok {
		return route.Redirect(u.url("/users"))
	}

	user, err := u.users.FindByID(ctx, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return u.redirectWithFlash(req, "/users", flashError, "User not found")
	case err != nil:
		slog.Error("find user failed", "target", id, "error", err)
		return serverError()
	}

	f := userForm{ID: user.ID, Username: user.Username, Email: user.Email, Role: user.Role}
	vs, err := u.settings.LatestVideoSettings(ctx, user.ID)
	if err != nil {
		slog.Error("load video settings failed", "target", id, "error", err)
		return serverError()
	}
	if vs != nil {
		f.AdURL, f.Domains = deref(vs.AdURL), deref(vs.Domains)
	}
	return u.form(req, http.StatusOK, f, "")
}

// EditSubmit saves the account and its video settings in one transaction.
// A blank password keeps the current one.
func (u *Users) EditSubmit(req *route.Request) *route.Response {
	id, ok := queryID(req)
	if !ok {
		return route.Redirect(u.url("/users"))
	}
	f := readUserForm(req, id)

	// The role select is disabled for the first account, so keep its role.
	if id == models.BootstrapAdminID {
		role, err := u.users.Role(req.Context(), id)
		switch {
		case errors.Is(err, store.ErrNotFound):
			return u.redirectWithFlash(req, "/users", flashError, "User not found")
		case err != nil:
			slog.Error("load user role failed", "target", id, "error", err)
			return serverError()
		}
		f.Role = role
	}

	if err := validateAccount(f.Username, f.Email, f.Password, f.Role, true); err != nil {
		return u.form(req, http.StatusOK, f, err.Error())
	}
	if err := validateAdURL(f.AdURL, u.adNetworks); err != nil {
		return u.form(req, http.StatusOK, f, err.Error())
	}

	err := u.users.Update(req.Context(), id, store.UserUpdate{
		Username: f.Username,
		Email:    f.Email,
		Role:     f.Role,
		Password: f.Password,
	}, &store.VideoSettingsInput{AdURL: f.AdURL, Domains: f.Domains})
	if msg, ok := conflictMessage(err); ok {
		return u.form(req, http.StatusOK, f, msg)
	}
	switch {
	case errors.Is(err, store.ErrProtectedUser):
		return u.form(req, http.StatusOK, f, "The role of the first account cannot be changed")
	case errors.Is(err, store.ErrNotFound):
		return u.redirectWithFlash(req, "/users", flashError, "User not found")
	case err != nil:
		slog.Error("update user failed", "target", id, "error", err)
		return u.form(req, http.StatusInternalServerError, f, "Failed to update user")
	}

	u.player.InvalidateAll(req.Context())
	slog.Info("user updated", "target", id, "by", req.Session.UserID)
	return u.redirectWithFlash(req, "/users", flashSuccess, "User updated successfully")
}

// AddPage renders the empty add-user form.
func (u *Users) AddPage(req *route.Request) *route.Response {
	return u.form(req, http.StatusOK, userForm{Role: models.RoleUser}, "")
}

// AddSubmit creates an account with its first video settings row.
func (u *Users) AddSubmit(req *route.Request) *route.Response {
	f := readUserForm(req, 0)

	if err := validateAccount(f.Username, f.Email, f.Password, f.Role, false); err != nil {
		return u.form(req, http.StatusOK, f, err.Error())
	}
	if err := validateAdURL(f.AdURL, u.adNetworks); err != nil {
		return u.form(req, http.StatusOK, f, err.Error())
	}

	user, err := u.users.CreateWithSettings(req.Context(), store.NewUser{
		Username: f.Username,
		Email:    f.Email,
		Password: f.Password,
		Role:     f.Role,
	}, store.VideoSettingsInput{AdURL: f.AdURL, Domains: f.Domains})
	if msg, ok := conflictMessage(err); ok {
		return u.form(req, http.StatusOK, f, msg)
	}
	if err != nil {
		slog.Error("create user failed", "error", err)
		return u.form(req, http.StatusInternalServerError, f, "Failed to create user. Please try again.")
	}

	slog.Info("user created", "target", user.ID, "role", user.Role, "by", req.Session.UserID)
	return u.redirectWithFlash(req, "/users", flashSuccess, "User created successfully")
}
