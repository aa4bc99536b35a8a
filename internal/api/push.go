package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/aria/internal/domain"
)

const maxSubscriptionBody = 16 << 10

// PushHandler exposes the VAPID key and a direct subscription endpoint.
type PushHandler struct {
	*Handler
}

// NewPushHandler creates a push handler.
func NewPushHandler(base *Handler) *PushHandler {
	return &PushHandler{Handler: base}
}

// RegisterRoutes registers push routes.
func (h *PushHandler) RegisterRoutes(r chi.Router) {
	r.Get("/push/key", h.Key)
	r.Post("/push/subscription", h.Subscribe)
}

// Key returns the application server key, or 404 when push is not configured.
func (h *PushHandler) Key(w http.ResponseWriter, _ *http.Request) {
	if h.cfg == nil || h.cfg.VAPIDPublicKey == "" {
		Error(w, http.StatusNotFound, "push_not_configured")
		return
	}
	JSON(w, http.StatusOK, map[string]string{"public_key": h.cfg.VAPIDPublicKey})
}

// Subscribe forwards a subscription posted by the page.
func (h *PushHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var sub domain.PushSubscription
	if err := json.NewDecoder(io.LimitReader(r.Body, maxSubscriptionBody)).Decode(&sub); err != nil {
		Error(w, http.StatusBadRequest, "invalid subscription")
		return
	}
	if !sub.Valid() {
		Error(w, http.StatusBadRequest, "subscription endpoint required")
		return
	}

	if !h.forwarder.RegisterPushSubscription(r.Context(), &sub) {
		Error(w, http.StatusBadGateway, "subscription_not_stored")
		return
	}
	JSON(w, http.StatusCreated, map[string]string{"status": "registered"})
}
