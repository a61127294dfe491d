package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"proxyplayer/internal/render"
	"proxyplayer/internal/route"
	"proxyplayer/internal/session"
	"proxyplayer/internal/store"
)

// Auth groups the login, registration and logout handlers.
type Auth struct {
	base
	users *store.UserStore
}

// NewAuth creates a new Auth handler group.
func NewAuth(renderer *render.Renderer, sessions *session.Manager, users *store.UserStore, settings *store.SettingsStore, mount string) *Auth {
	return &Auth{
		base:  newBase(renderer, sessions, settings, mount),
		users: users,
	}
}

// Home sends logged-in users to the dashboard and everyone else to login,
// keeping the expired notice when the session timed out.
func (a *Auth) Home(req *route.Request) *route.Response {
	if req.LoggedIn() {
		return route.Redirect(a.url("/dashboard"))
	}
	if req.State == session.Expired {
		return route.Redirect(a.url("/login") + "?expired=1")
	}
	return route.Redirect(a.url("/login"))
}

// LoginPage renders the login form.
func (a *Auth) LoginPage(req *route.Request) *route.Response {
	if req.LoggedIn() {
		return route.Redirect(a.url("/dashboard"))
	}
	return a.loginForm(req, http.StatusOK, "", "")
}

func (a *Auth) loginForm(req *route.Request, status int, username, errMsg string) *route.Response {
	return a.page(req, status, "login", &render.Page{
		Title: "Login",
		Data: map[string]any{
			"Username": username,
			"Error":    errMsg,
			"Expired":  req.URL.Query().Get("expired") == "1" || req.State == session.Expired,
		},
	})
}

// LoginSubmit verifies the credentials and starts a session, optionally
// with a remember-me token.
func (a *Auth) LoginSubmit(req *route.Request) *route.Response {
	if req.LoggedIn() {
		return route.Redirect(a.url("/dashboard"))
	}

	username := strings.TrimSpace(req.FormValue("username"))
	password := req.FormValue("password")
	remember := req.FormValue("remember_me") != ""

	if username == "" || password == "" {
		return a.loginForm(req, http.StatusOK, username, "All fields are required")
	}

	user, err := a.users.Verify(req.Context(), username, password)
	if err != nil {
		slog.Error("login lookup failed", "error", err)
		return a.loginForm(req, http.StatusInternalServerError, username, "An unexpected error occurred.")
	}
	if user == nil {
		slog.Info("login failed", "username", username)
		return a.loginForm(req, http.StatusOK, username, "Invalid username or password")
	}

	resp := route.Redirect(a.url("/dashboard"))
	if _, err := a.sessions.Login(req.Context(), resp, req.Request, user, remember); err != nil {
		slog.Error("session create failed", "user_id", user.ID, "error", err)
		return a.loginForm(req, http.StatusInternalServerError, username, "An unexpected error occurred.")
	}

	slog.Info("user logged in", "user_id", user.ID, "remember", remember)
	return resp
}

// RegisterPage renders the sign-up form.
func (a *Auth) RegisterPage(req *route.Request) *route.Response {
	if req.LoggedIn() {
		return route.Redirect(a.url("/dashboard"))
	}
	return a.registerForm(req, http.StatusOK, "", "", "")
}

func (a *Auth) registerForm(req *route.Request, status int, username, email, errMsg string) *route.Response {
	return a.page(req, status, "register", &render.Page{
		Title: "Register",
		Data:  map[string]any{"Username": username, "Email": email, "Error": errMsg},
	})
}

// RegisterSubmit creates a regular account and logs it in.
func (a *Auth) RegisterSubmit(req *route.Request) *route.Response {
	if req.LoggedIn() {
		return route.Redirect(a.url("/dashboard"))
	}

	username := strings.TrimSpace(req.FormValue("username"))
	email := strings.TrimSpace(req.FormValue("email"))
	password := req.FormValue("password")
	confirm := req.FormValue("confirm_password")

	if err := validateRegistration(username, email, password, confirm); err != nil {
		return a.registerForm(req, http.StatusOK, username, email, err.Error())
	}

	user, err := a.users.Create(req.Context(), store.NewUser{
		Username: username,
		Email:    email,
		Password: password,
	})
	var ce *store.ConflictError
	switch {
	case errors.As(err, &ce) && ce.Field == "username":
		return a.registerForm(req, http.StatusOK, username, email, "Username already exists")
	case errors.As(err, &ce) && ce.Field == "email":
		return a.registerForm(req, http.StatusOK, username, email, "Email already registered")
	case err != nil:
		slog.Error("registration failed", "error", err)
		return a.registerForm(req, http.StatusInternalServerError, username, email, "Registration failed. Please try again.")
	}

	resp := route.Redirect(a.url("/dashboard"))
	data, err := a.sessions.Login(req.Context(), resp, req.Request, user, false)
	if err != nil {
		slog.Error("session create failed", "user_id", user.ID, "error", err)
		return route.Redirect(a.url("/login"))
	}
	a.sessions.SetFlash(req.Context(), data, flashSuccess, "Welcome, "+user.Username+"! Your account has been created.")

	slog.Info("user registered", "user_id", user.ID)
	return resp
}

// Logout ends the session, deletes the remember token and clears the
// cookies, then redirects to the login page.
func (a *Auth) Logout(req *route.Request) *route.Response {
	resp := route.Redirect(a.url("/login"))
	a.sessions.Logout(req.Context(), resp, req.Request, req.Session)
	if req.Session != nil {
		slog.Info("user logged out", "user_id", req.Session.UserID)
	}
	return resp
}
