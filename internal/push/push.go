// Package push wraps the client's push subscription flow and forwards the
// resulting subscription for storage. It keeps no state beyond the
// configured application server key.
package push

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ashureev/aria/internal/domain"
)

var (
	// ErrUnsupported is returned when the client cannot receive push messages.
	ErrUnsupported = errors.New("push notifications not supported")

	// ErrNoKey is returned when no application server key is configured.
	ErrNoKey = errors.New("application server key not configured")

	// ErrPermissionDenied is returned when the user refuses notifications.
	ErrPermissionDenied = errors.New("notification permission not granted")
)

// Permission is the notification permission state of a client.
type Permission string

const (
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
	PermissionDefault Permission = "default"
)

// SubscribeOptions are passed to the platform when subscribing.
type SubscribeOptions struct {
	UserVisibleOnly      bool
	ApplicationServerKey []byte
}

// Platform is the client-side push capability.
type Platform interface {
	Supported() bool
	RequestPermission(ctx context.Context) (Permission, error)
	Subscribe(ctx context.Context, opts SubscribeOptions) (*domain.PushSubscription, error)
	Subscription(ctx context.Context) (*domain.PushSubscription, error)
	Unsubscribe(ctx context.Context) (bool, error)
}

// Forwarder stores subscriptions on the backend.
type Forwarder interface {
	RegisterPushSubscription(ctx context.Context, sub *domain.PushSubscription) bool
}

// Registrar drives subscribe/unsubscribe for one client.
type Registrar struct {
	platform  Platform
	forwarder Forwarder
	publicKey string
	logger    *slog.Logger
}

// NewRegistrar creates a registrar. publicKey is the URL-safe base64 VAPID key.
func NewRegistrar(platform Platform, forwarder Forwarder, publicKey string, logger *slog.Logger) *Registrar {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registrar{
		platform:  platform,
		forwarder: forwarder,
		publicKey: publicKey,
		logger:    logger,
	}
}

// Supported reports whether the client can receive push messages.
func (r *Registrar) Supported() bool {
	return r.platform != nil && r.platform.Supported()
}

// RequestPermission asks the user for notification permission.
// Unsupported clients are reported as denied.
func (r *Registrar) RequestPermission(ctx context.Context) Permission {
	if !r.Supported() {
		r.logger.Info("Push notifications not supported")
		return PermissionDenied
	}
	perm, err := r.platform.RequestPermission(ctx)
	if err != nil {
		r.logger.Warn("Permission request failed", "error", err)
		return PermissionDenied
	}
	r.logger.Info("Push permission", "permission", perm)
	return perm
}

// Subscribe creates a push subscription and forwards it to the backend.
// The subscription is returned even when forwarding fails.
func (r *Registrar) Subscribe(ctx context.Context) (*domain.PushSubscription, error) {
	if r.publicKey == "" {
		r.logger.Info("VAPID key not configured")
		return nil, ErrNoKey
	}
	if !r.Supported() {
		return nil, ErrUnsupported
	}

	key, err := DecodeApplicationServerKey(r.publicKey)
	if err != nil {
		return nil, err
	}

	if perm := r.RequestPermission(ctx); perm != PermissionGranted {
		return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, perm)
	}

	sub, err := r.platform.Subscribe(ctx, SubscribeOptions{
		UserVisibleOnly:      true,
		ApplicationServerKey: key,
	})
	if err != nil {
		r.logger.Error("Subscription failed", "error", err)
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	r.logger.Info("Subscribed", "endpoint", sub.Endpoint)

	if r.forwarder.RegisterPushSubscription(ctx, sub) {
		r.logger.Info("Subscription registered with backend")
	}
	return sub, nil
}

// Unsubscribe removes the current subscription, if any.
func (r *Registrar) Unsubscribe(ctx context.Context) bool {
	if !r.Supported() {
		return false
	}
	ok, err := r.platform.Unsubscribe(ctx)
	if err != nil {
		r.logger.Error("Unsubscribe failed", "error", err)
		return false
	}
	if ok {
		r.logger.Info("Unsubscribed")
	}
	return ok
}

// Subscription returns the current subscription, or nil.
func (r *Registrar) Subscription(ctx context.Context) *domain.PushSubscription {
	if !r.Supported() {
		return nil
	}
	sub, err := r.platform.Subscription(ctx)
	if err != nil {
		r.logger.Error("getSubscription failed", "error", err)
		return nil
	}
	return sub
}

// DecodeApplicationServerKey decodes a base64 key in either alphabet, with
// or without padding.
func DecodeApplicationServerKey(key string) ([]byte, error) {
	key = strings.TrimRight(strings.TrimSpace(key), "=")
	key = strings.NewReplacer("+", "-", "/", "_").Replace(key)
	raw, err := base64.RawURLEncoding.DecodeString(key)
	if err != nil {
		return nil, fmt.Errorf("decode application server key: %w", err)
	}
	return raw, nil
}
