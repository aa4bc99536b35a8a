// Package api provides the JSON HTTP endpoints of the ARIA server.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ashureev/aria/internal/config"
	"github.com/ashureev/aria/internal/domain"
	"github.com/ashureev/aria/internal/shell"
)

// Shell is the app shell cache as seen by the API.
type Shell interface {
	Status() shell.Status
	Install(ctx context.Context) error
	Ping(ctx context.Context) error
}

// Forwarder stores push subscriptions on the backend.
type Forwarder interface {
	RegisterPushSubscription(ctx context.Context, sub *domain.PushSubscription) bool
}

// Handler provides common handler dependencies.
type Handler struct {
	shell     Shell
	forwarder Forwarder
	cfg       *config.Config
	logger    *slog.Logger
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(sh Shell, forwarder Forwarder, cfg *config.Config, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		shell:     sh,
		forwarder: forwarder,
		cfg:       cfg,
		logger:    logger,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}
