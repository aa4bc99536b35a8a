package session

import (
	"context"
	"encoding/base64"
	"errors"

	"github.com/ashureev/aria/internal/domain"
	"github.com/ashureev/aria/internal/push"
)

// platform implements push.Platform by asking the page over the socket.
type platform struct {
	s *Session
}

var _ push.Platform = platform{}

func (p platform) Supported() bool {
	return p.s.Capabilities().Push
}

func (p platform) RequestPermission(ctx context.Context) (push.Permission, error) {
	reply, err := p.s.request(ctx, ActionPermission, "")
	if err != nil {
		return push.PermissionDefault, err
	}
	if reply.Error != "" {
		return push.PermissionDefault, errors.New(reply.Error)
	}
	return push.Permission(reply.Permission), nil
}

func (p platform) Subscribe(ctx context.Context, opts push.SubscribeOptions) (*domain.PushSubscription, error) {
	key := base64.RawURLEncoding.EncodeToString(opts.ApplicationServerKey)
	reply, err := p.s.request(ctx, ActionSubscribe, key)
	if err != nil {
		return nil, err
	}
	if reply.Error != "" {
		return nil, errors.New(reply.Error)
	}
	if !reply.Subscription.Valid() {
		return nil, errors.New("page returned an invalid subscription")
	}
	return reply.Subscription, nil
}

func (p platform) Subscription(ctx context.Context) (*domain.PushSubscription, error) {
	reply, err := p.s.request(ctx, ActionSubscription, "")
	if err != nil {
		return nil, err
	}
	if reply.Error != "" {
		return nil, errors.New(reply.Error)
	}
	return reply.Subscription, nil
}

func (p platform) Unsubscribe(ctx context.Context) (bool, error) {
	reply, err := p.s.request(ctx, ActionUnsubscribe, "")
	if err != nil {
		return false, err
	}
	if reply.Error != "" {
		return false, errors.New(reply.Error)
	}
	return reply.OK, nil
}
