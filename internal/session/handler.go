package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"
	_ "time/tzdata"

	"github.com/coder/websocket"

	"github.com/ashureev/aria/internal/chat"
	"github.com/ashureev/aria/internal/domain"
	"github.com/ashureev/aria/internal/identity"
	"github.com/ashureev/aria/internal/push"
)

// TimezoneParam is the query parameter carrying the page's IANA time zone.
const TimezoneParam = "tz"

// pushTimeout bounds a whole subscribe exchange, permission prompt included.
const pushTimeout = 2 * time.Minute

// Backend is what a session needs from the webhook client.
type Backend interface {
	chat.API
	push.Forwarder
}

// Options configures the chat WebSocket handler.
type Options struct {
	AllowedOrigin  string
	IsDev          bool
	TypingDelay    time.Duration
	ToastDuration  time.Duration
	Greeting       string
	VAPIDPublicKey string
	Routine        []domain.TaskGroup
	// Generation reports the active app shell generation, sent in welcome.
	Generation func() string
	// Clock stamps messages; nil means time.Now.
	Clock func() time.Time
}

// Handler serves /ws/chat.
type Handler struct {
	sm      *Manager
	backend Backend
	opts    Options
	logger  *slog.Logger
}

// NewHandler creates a chat WebSocket handler.
func NewHandler(sm *Manager, backend Backend, opts Options, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{sm: sm, backend: backend, opts: opts, logger: logger}
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	deviceID := identity.DeviceIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	logger := h.logger.With("device", identity.ShortID(deviceID), "session_id", sessionID)
	logger.Info("WebSocket connection request", "ip", identity.IPFromRequest(r))

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		logger.Error("Failed to accept WebSocket", "error", err)
		return
	}

	s := newSession(deviceID, sessionID, ws, logger)
	defer s.Close("session ended")

	h.sm.Register(s)
	defer h.sm.Unregister(s)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go s.writeLoop(ctx)

	welcome := serverMessage{Type: MsgWelcome}
	if h.opts.Generation != nil {
		welcome.Generation = h.opts.Generation()
	}
	h.send(s, welcome)

	renderer := chat.NewHTMLRenderer(s, h.opts.ToastDuration, logger)
	defer renderer.Close()
	setTimezone(renderer, r.URL.Query().Get(TimezoneParam), logger)

	controller := chat.NewController(h.backend, renderer, h.opts.Routine,
		chat.WithTypingDelay(h.opts.TypingDelay),
		chat.WithGreeting(h.opts.Greeting),
		chat.WithClock(h.opts.Clock),
		chat.WithLogger(logger))
	registrar := push.NewRegistrar(platform{s: s}, h.backend, h.opts.VAPIDPublicKey, logger)

	controller.Start()

	var wg sync.WaitGroup
	h.readLoop(ctx, s, controller, renderer, registrar, &wg, logger)

	cancel()
	wg.Wait()
	controller.Wait()
	logger.Info("Chat session ended")
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.opts.IsDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.opts.AllowedOrigin == "" || h.opts.AllowedOrigin == "*" {
		return true
	}
	if origin == h.opts.AllowedOrigin {
		return true
	}
	h.logger.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.opts.AllowedOrigin)
	return false
}

//nolint:gocognit // Message dispatch coordinates chat, push and socket state.
func (h *Handler) readLoop(ctx context.Context, s *Session, c *chat.Controller, renderer *chat.HTMLRenderer, reg *push.Registrar, wg *sync.WaitGroup, logger *slog.Logger) {
	for {
		_, data, err := s.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled) {
				logger.Debug("WebSocket closed")
			} else {
				logger.Warn("WebSocket read error", "error", err)
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Debug("Ignoring malformed frame", "error", err)
			h.sendError(s, "malformed message")
			continue
		}

		switch msg.Type {
		case MsgHello:
			if msg.Capabilities != nil {
				s.setCapabilities(*msg.Capabilities)
			}
			setTimezone(renderer, msg.Timezone, logger)
			logger.Debug("Client hello", "push", s.Capabilities().Push)
		case MsgSend:
			c.Submit(ctx, msg.Content)
		case MsgQuickReply:
			c.QuickReply(ctx, msg.Content)
		case MsgToggleTask:
			ref := chat.TaskRef{Group: msg.Group, Index: msg.Index}
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := c.ToggleTask(ctx, ref); err != nil {
					logger.Warn("Toggle rejected", "group", ref.Group, "index", ref.Index, "error", err)
					h.sendError(s, "unknown task")
				}
			}()
		case MsgPushSubscribe:
			wg.Add(1)
			go func() {
				defer wg.Done()
				h.subscribe(ctx, s, reg)
			}()
		case MsgPushUnsubscribe:
			wg.Add(1)
			go func() {
				defer wg.Done()
				pctx, cancel := context.WithTimeout(ctx, pushTimeout)
				defer cancel()
				ok := reg.Unsubscribe(pctx)
				subscribed := !ok && reg.Subscription(pctx) != nil
				h.send(s, serverMessage{Type: MsgPushStatus, Subscribed: &subscribed})
			}()
		case MsgPushReply:
			if !s.resolve(msg) {
				logger.Debug("Unmatched push reply", "request_id", msg.RequestID)
			}
		case MsgPing:
			h.send(s, serverMessage{Type: MsgPong})
		default:
			logger.Debug("Unknown message type", "type", msg.Type)
		}
	}
}

func (h *Handler) subscribe(ctx context.Context, s *Session, reg *push.Registrar) {
	ctx, cancel := context.WithTimeout(ctx, pushTimeout)
	defer cancel()

	sub, err := reg.Subscribe(ctx)
	subscribed := err == nil
	status := serverMessage{Type: MsgPushStatus, Subscribed: &subscribed}
	if err != nil {
		status.Error = err.Error()
	} else {
		status.Endpoint = sub.Endpoint
	}
	h.send(s, status)
}

func (h *Handler) sendError(s *Session, text string) {
	h.send(s, serverMessage{Type: MsgError, Error: text})
}

// setTimezone switches message times to the page's zone. Empty or unknown
// names keep the current zone.
func setTimezone(renderer *chat.HTMLRenderer, name string, logger *slog.Logger) {
	if name == "" || name == "Local" {
		return
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		logger.Debug("Ignoring unknown time zone", "timezone", name, "error", err)
		return
	}
	renderer.SetLocation(loc)
}

func (h *Handler) send(s *Session, msg serverMessage) {
	if err := s.Send(msg); err != nil && !errors.Is(err, ErrClosed) {
		s.logger.Debug("Failed to send message", "type", msg.Type, "error", err)
	}
}
