// Package router sets up the HTTP stack: the chi mux with the global
// middleware chain, and the ordered route table that serves the
// application's pages.
package router

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"proxyplayer/internal/handlers"
	"proxyplayer/internal/middleware"
	"proxyplayer/internal/route"
)

// NotFoundBody is the static body for unknown paths.
const NotFoundBody = "404 - Page Not Found"

// Handlers bundles the handler groups the route table dispatches to.
type Handlers struct {
	Auth     *handlers.Auth
	Videos   *handlers.Videos
	Settings *handlers.Settings
	Users    *handlers.Users
	Player   *handlers.Player
}

// Options configures the middleware chain.
type Options struct {
	// Mount is the path prefix the app is served under ("" for the root).
	Mount string

	// PlayerRequiresAuth puts the /:slug player pages behind login.
	PlayerRequiresAuth bool

	// SecureCookies marks the CSRF cookie Secure.
	SecureCookies bool

	// LoginLimiter throttles POST /login and POST /register. Nil disables it.
	LoginLimiter *middleware.RateLimiter
}

// reserved are the first path segments owned by literal routes. Anything
// else with a single segment is a player page.
var reserved = map[string]bool{
	"login": true, "register": true, "logout": true, "health": true,
	"dashboard": true, "settings": true, "edit": true, "api.php": true,
	"users": true, "user-edit": true, "add-user": true,
}

// Routes builds the application's route table. Literal routes come first;
// the /:slug catch-all must stay last.
func Routes(h Handlers, mount string) *route.Table {
	t := route.NewTable(mount)

	t.Get("/", h.Auth.Home)

	// Auth
	t.Get("/login", h.Auth.LoginPage)
	t.Post("/login", h.Auth.LoginSubmit)
	t.Get("/register", h.Auth.RegisterPage)
	t.Post("/register", h.Auth.RegisterSubmit)
	t.Any("/logout", h.Auth.Logout)

	// Videos
	t.Get("/dashboard", h.Videos.Dashboard)
	t.Post("/dashboard", h.Videos.DashboardSubmit)
	t.Get("/edit", h.Videos.EditPage)
	t.Post("/edit", h.Videos.EditSubmit)

	// Settings
	t.Get("/settings", h.Settings.Page)
	t.Post("/settings", h.Settings.Submit)

	// User management (admin only, enforced by the gate)
	t.Get("/users", h.Users.List)
	t.Post("/users", h.Users.ListSubmit)
	t.Get("/user-edit", h.Users.EditPage)
	t.Post("/user-edit", h.Users.EditSubmit)
	t.Get("/add-user", h.Users.AddPage)
	t.Post("/add-user", h.Users.AddSubmit)

	// Embed resolution
	t.Get("/api.php", h.Player.API)
	t.Post("/api.php", h.Player.API)

	// Player pages
	t.Get("/:slug", h.Player.Page)

	t.NotFound(func(*route.Request) *route.Response {
		return route.Text(http.StatusNotFound, NotFoundBody)
	})
	return t
}

// New creates the chi router: global middleware, the health check, the
// rate-limited auth submissions, and the route table for everything else.
func New(sessions middleware.Resumer, h Handlers, opts Options) chi.Router {
	mount := strings.TrimRight(opts.Mount, "/")
	table := Routes(h, mount)

	embeddable := func(r *http.Request) bool {
		seg := strings.TrimPrefix(route.Clean(r.URL.Path, mount), "/")
		return seg != "" && !strings.Contains(seg, "/") && !reserved[seg]
	}

	r := chi.NewRouter()

	// Global middleware, applied to every request. Logger is outermost so
	// a recovered panic is logged with its request id.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.SecureHeaders(embeddable))
	r.Use(middleware.LoadSession(sessions))
	r.Use(middleware.NewCSRF(opts.SecureCookies))
	r.Use(middleware.Gate(middleware.DefaultAuthPolicy(mount, opts.PlayerRequiresAuth)))

	// Health check answers before the table.
	r.Get(mount+"/health", healthHandler)

	if opts.LoginLimiter != nil {
		limited := r.With(opts.LoginLimiter.Middleware)
		limited.Post(mount+"/login", table.ServeHTTP)
		limited.Post(mount+"/register", table.ServeHTTP)
	}

	// The table does its own matching, so every other request goes to it.
	r.NotFound(table.ServeHTTP)
	r.MethodNotAllowed(table.ServeHTTP)

	return r
}

// healthHandler returns a simple JSON health check response.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}
