// ARIA - routine assistant PWA server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/klauspost/compress/gzhttp"

	"github.com/ashureev/aria/internal/api"
	"github.com/ashureev/aria/internal/config"
	"github.com/ashureev/aria/internal/identity"
	"github.com/ashureev/aria/internal/middleware"
	"github.com/ashureev/aria/internal/session"
	"github.com/ashureev/aria/internal/shell"
	"github.com/ashureev/aria/internal/store"
	"github.com/ashureev/aria/internal/webhook"
	"github.com/ashureev/aria/web"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "cache", cfg.Shell.CacheName)

	routine, err := config.LoadRoutine(cfg.Chat.RoutinePath)
	if err != nil {
		slog.Error("Failed to load routine", "path", cfg.Chat.RoutinePath, "error", err)
		os.Exit(1)
	}

	// Initialize dependencies.
	cache, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize cache database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := cache.Close(); closeErr != nil {
			slog.Error("Failed to close cache database", "error", closeErr)
		}
	}()
	slog.Info("Cache database connected", "path", cfg.DBPath)

	var origin shell.Origin = shell.NewFSOrigin(web.Dist())
	if cfg.Shell.Origin != "" {
		origin, err = shell.NewHTTPOrigin(cfg.Shell.Origin, http.DefaultClient)
		if err != nil {
			slog.Error("Invalid shell origin", "origin", cfg.Shell.Origin, "error", err)
			os.Exit(1)
		}
		slog.Info("App shell fetched from remote origin", "origin", cfg.Shell.Origin)
	}

	shellMgr := shell.NewManager(cache, origin,
		shell.WithGeneration(cfg.Shell.CacheName),
		shell.WithLogger(logger))

	client := webhook.New(webhook.Config{
		MessageEndpoint: cfg.Webhook.MessageEndpoint,
		TaskEndpoint:    cfg.Webhook.TaskEndpoint,
		PushEndpoint:    cfg.Webhook.PushEndpoint,
		UserID:          cfg.Webhook.UserID,
	}, webhook.WithLogger(logger))

	sm := session.NewManager(logger)
	shellMgr.OnClaim(sm.ShellActivated)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := shellMgr.Install(ctx); err != nil {
		// Requests pass through to the origin until a later install succeeds.
		slog.Warn("App shell install failed", "generation", cfg.Shell.CacheName, "error", err)
	}

	// Initialize handlers.
	baseHandler := api.NewHandler(shellMgr, client, cfg, logger)
	healthHandler := api.NewHealthHandler(baseHandler)
	shellHandler := api.NewShellHandler(baseHandler)
	pushHandler := api.NewPushHandler(baseHandler)
	wsHandler := session.NewHandler(sm, client, session.Options{
		AllowedOrigin:  cfg.FrontendURL,
		IsDev:          cfg.IsDevelopment(),
		TypingDelay:    cfg.Chat.TypingDelay,
		ToastDuration:  cfg.Chat.ToastDuration,
		Greeting:       cfg.Chat.Greeting,
		VAPIDPublicKey: cfg.VAPIDPublicKey,
		Routine:        routine,
		Generation:     shellMgr.Generation,
	}, logger)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS([]string{"*"}))
	r.Use(identity.Middleware(cfg.IsDevelopment()))

	r.Route("/api", func(r chi.Router) {
		healthHandler.RegisterHealth(r)
		shellHandler.RegisterRoutes(r)
		pushHandler.RegisterRoutes(r)
	})

	// WebSocket endpoint.
	r.Get("/ws/chat", wsHandler.ServeHTTP)

	// Service worker and manifest bypass the shell cache.
	r.With(middleware.ServiceWorker).Get("/sw.js", web.FileHandler("sw.js", "text/javascript; charset=utf-8").ServeHTTP)
	r.With(middleware.ServiceWorker).Get("/manifest.webmanifest",
		web.FileHandler("manifest.webmanifest", "application/manifest+json").ServeHTTP)

	// App shell, cache first.
	r.Handle("/*", gzhttp.GzipHandler(shellMgr))

	// Create server.
	// WebSocket sessions are long lived, so there is no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")
	sm.CloseAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
