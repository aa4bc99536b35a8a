package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/aria/internal/store"
)

// ShellHandler exposes the app shell cache state and a reinstall trigger.
type ShellHandler struct {
	*Handler
	installMu sync.Mutex
}

// NewShellHandler creates a shell handler.
func NewShellHandler(base *Handler) *ShellHandler {
	return &ShellHandler{Handler: base}
}

// RegisterRoutes registers shell routes.
func (h *ShellHandler) RegisterRoutes(r chi.Router) {
	r.Get("/shell", h.Status)
	r.Post("/shell/install", h.Install)
}

// Status returns the cache manager state.
func (h *ShellHandler) Status(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, h.shell.Status())
}

// Install re-runs install and activation for the configured generation.
func (h *ShellHandler) Install(w http.ResponseWriter, r *http.Request) {
	if !h.installMu.TryLock() {
		h.logger.Warn("Shell install already in progress")
		Error(w, http.StatusConflict, "install_in_progress")
		return
	}
	defer h.installMu.Unlock()

	if err := h.installWithRetry(r.Context()); err != nil {
		h.logger.Error("Shell install failed", "error", err)
		Error(w, http.StatusBadGateway, err.Error())
		return
	}

	status := h.shell.Status()
	h.logger.Info("Shell installed", "generation", status.Active)
	JSON(w, http.StatusOK, status)
}

// installWithRetry retries with exponential backoff while the cache
// database reports busy.
func (h *ShellHandler) installWithRetry(ctx context.Context) error {
	maxRetries := 3
	baseDelay := 50 * time.Millisecond
	if h.cfg != nil {
		maxRetries = h.cfg.Retry.InstallMaxRetries
		baseDelay = h.cfg.Retry.InstallRetryBaseDelay
	}

	var err error
	for i := range maxRetries {
		err = h.shell.Install(ctx)
		if err == nil || !errors.Is(err, store.ErrBusy) {
			return err
		}
		if i == maxRetries-1 {
			break
		}

		delay := baseDelay * time.Duration(1<<i)
		h.logger.Debug("Cache database busy during install, retrying", "attempt", i+1, "delay", delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}
