// Package main is the entry point for the proxyplayer server.
// It loads configuration, connects to services, sets up routing, and starts
// the HTTP server with graceful shutdown support. Run with the make-admin
// argument to promote the bootstrap account and exit.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"proxyplayer/internal/cache"
	"proxyplayer/internal/config"
	"proxyplayer/internal/database"
	"proxyplayer/internal/handlers"
	"proxyplayer/internal/middleware"
	"proxyplayer/internal/render"
	"proxyplayer/internal/resolver"
	"proxyplayer/internal/router"
	"proxyplayer/internal/session"
	"proxyplayer/internal/store"
)

// Login and registration attempts allowed per client IP and window.
const (
	authAttempts = 10
	authWindow   = 15 * time.Minute
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("configuration loaded",
		"env", cfg.Env,
		"addr", cfg.Addr(),
		"base_path", cfg.BasePath,
		"player_requires_auth", cfg.PlayerRequiresAuth,
		"trusted_proxies", len(cfg.TrustedProxies),
	)

	// Connect to PostgreSQL.
	db, err := database.Connect(cfg.DSN())
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "make-admin":
			if err := database.MakeAdmin(db); err != nil {
				slog.Error("make-admin failed", "error", err)
				os.Exit(1)
			}
			return
		default:
			slog.Error("unknown command", "command", os.Args[1])
			os.Exit(2)
		}
	}

	// Seed a default admin in development (no-op if users exist).
	if cfg.IsDev() {
		if err := database.Seed(db); err != nil {
			slog.Error("failed to seed database", "error", err)
			os.Exit(1)
		}
	}

	// Connect to Valkey (sessions, player cache, rate limiting).
	valkeyClient, err := cache.ConnectValkey(cfg.ValkeyHost, cfg.ValkeyPort, cfg.ValkeyPassword)
	if err != nil {
		slog.Error("failed to connect to valkey", "error", err)
		os.Exit(1)
	}
	defer valkeyClient.Close()

	renderer, err := render.New()
	if err != nil {
		slog.Error("failed to initialize template renderer", "error", err)
		os.Exit(1)
	}

	userStore := store.NewUserStore(db)
	videoStore := store.NewVideoStore(db)
	settingsStore := store.NewSettingsStore(db)
	tokenStore := store.NewRememberTokenStore(db)

	sessions := session.NewManager(
		session.NewStore(valkeyClient, cfg.SecureCookies),
		tokenStore,
		userStore,
		session.Config{
			IdleTimeout:    cfg.SessionIdleTimeout,
			RotateInterval: cfg.SessionRotateInterval,
			RememberTTL:    cfg.RememberTTL,
			Secure:         cfg.SecureCookies,
		},
	)

	res := resolver.New(videoStore, settingsStore, resolver.Config{
		Endpoint: cfg.EmbedAPIURL,
		Timeout:  cfg.EmbedAPITimeout,
	})
	playerCache := cache.NewPlayerCache(valkeyClient, cache.DefaultPlayerTTL)

	mount := cfg.BasePath
	h := router.Handlers{
		Auth:     handlers.NewAuth(renderer, sessions, userStore, settingsStore, mount),
		Videos:   handlers.NewVideos(renderer, sessions, videoStore, userStore, settingsStore, playerCache, mount),
		Settings: handlers.NewSettings(renderer, sessions, settingsStore, playerCache, mount, cfg.AdNetworks),
		Users:    handlers.NewUsers(renderer, sessions, userStore, settingsStore, playerCache, mount, cfg.AdNetworks),
		Player:   handlers.NewPlayer(renderer, res, settingsStore, playerCache, mount),
	}

	limiter := middleware.NewRateLimiter(valkeyClient, "auth", authAttempts, authWindow).
		TrustProxies(cfg.TrustedProxies)
	r := router.New(sessions, h, router.Options{
		Mount:              mount,
		PlayerRequiresAuth: cfg.PlayerRequiresAuth,
		SecureCookies:      cfg.SecureCookies,
		LoginLimiter:       limiter,
	})

	// WriteTimeout must cover the embed API call behind api.php.
	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: cfg.EmbedAPITimeout + 20*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown: wait for SIGINT or SIGTERM, then drain connections.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped gracefully")
}
