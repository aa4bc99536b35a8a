package session

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/aria/internal/chat"
	"github.com/ashureev/aria/internal/domain"
	"github.com/ashureev/aria/internal/identity"
	"github.com/ashureev/aria/internal/webhook"
)

const testVAPIDKey = "BEl62iUYgUivxIkv69yViEuiBIa-Ib9-SkvMeAtA3LFgDzkrxZJjSgSnfckjBJuBkr3qBUYIHBQFLXYp5Nksh8U"

// recordingBackend answers like the unconfigured webhook client and records
// forwarded subscriptions.
type recordingBackend struct {
	*webhook.Client

	mu   sync.Mutex
	subs []*domain.PushSubscription
}

func (b *recordingBackend) RegisterPushSubscription(_ context.Context, sub *domain.PushSubscription) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, sub)
	return true
}

func (b *recordingBackend) forwarded() []*domain.PushSubscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*domain.PushSubscription(nil), b.subs...)
}

func startServer(t *testing.T) (*httptest.Server, *Manager, *recordingBackend) {
	t.Helper()
	return startServerWith(t, func(*Options) {})
}

func startServerWith(t *testing.T, configure func(*Options)) (*httptest.Server, *Manager, *recordingBackend) {
	t.Helper()
	backend := &recordingBackend{Client: webhook.New(webhook.Config{}, webhook.WithLogger(quietLogger()))}
	sm := NewManager(quietLogger())
	opts := Options{
		IsDev:          true,
		ToastDuration:  time.Hour,
		VAPIDPublicKey: testVAPIDKey,
		Routine: []domain.TaskGroup{{
			ID:    "morning",
			Title: "Morning",
			Tasks: []domain.Task{{ID: 1, Title: "Meds"}, {ID: 2, Title: "Walk"}},
		}},
	}
	configure(&opts)
	h := NewHandler(sm, backend, opts, quietLogger())
	srv := httptest.NewServer(identity.Middleware(true)(h))
	t.Cleanup(srv.Close)
	return srv, sm, backend
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	return dialQuery(t, srv, "session_id=tab-1")
}

func dialQuery(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/?"+query, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.CloseNow() })
	return conn
}

func write(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, wsjson.Write(ctx, conn, v))
}

// readUntil reads frames until match returns true.
func readUntil(t *testing.T, conn *websocket.Conn, match func(serverMessage) bool) serverMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		var msg serverMessage
		require.NoError(t, wsjson.Read(ctx, conn, &msg))
		if match(msg) {
			return msg
		}
	}
}

func hasOp(msg serverMessage, pred func(chat.Op) bool) bool {
	if msg.Type != MsgPatch {
		return false
	}
	for _, op := range msg.Ops {
		if pred(op) {
			return true
		}
	}
	return false
}

func TestHandler_RendersRoutineOnConnect(t *testing.T) {
	srv, _, _ := startServer(t)
	conn := dial(t, srv)

	msg := readUntil(t, conn, func(m serverMessage) bool {
		return hasOp(m, func(op chat.Op) bool { return strings.Contains(op.HTML, "routine-card") })
	})
	assert.Equal(t, chat.ElemConversation, msg.Ops[0].Target)
	assert.Contains(t, msg.Ops[0].HTML, "0 of 2")
}

func TestHandler_SendMessage(t *testing.T) {
	srv, _, _ := startServer(t)
	conn := dial(t, srv)

	write(t, conn, clientMessage{Type: MsgSend, Content: "I'm done"})

	readUntil(t, conn, func(m serverMessage) bool {
		return hasOp(m, func(op chat.Op) bool { return op.Op == chat.OpSetValue && op.Target == chat.ElemInput })
	})
	readUntil(t, conn, func(m serverMessage) bool {
		return hasOp(m, func(op chat.Op) bool {
			return op.Op == chat.OpAppend && strings.Contains(op.HTML, "message aria") && strings.Contains(op.HTML, "Got it")
		})
	})
}

func TestHandler_ToggleTask(t *testing.T) {
	srv, _, _ := startServer(t)
	conn := dial(t, srv)

	write(t, conn, clientMessage{Type: MsgToggleTask, Group: "morning", Index: 1})

	msg := readUntil(t, conn, func(m serverMessage) bool {
		return hasOp(m, func(op chat.Op) bool { return op.Target == "badge-morning" })
	})
	assert.Equal(t, chat.Op{Op: chat.OpToggleClass, Target: "task-morning-1", Class: "completed", On: true}, msg.Ops[0])
	assert.Equal(t, "1 of 2", msg.Ops[1].Text)

	write(t, conn, clientMessage{Type: MsgToggleTask, Group: "evening"})
	errMsg := readUntil(t, conn, func(m serverMessage) bool { return m.Type == MsgError })
	assert.Equal(t, "unknown task", errMsg.Error)
}

func TestHandler_Ping(t *testing.T) {
	srv, _, _ := startServer(t)
	conn := dial(t, srv)

	write(t, conn, clientMessage{Type: MsgPing})
	readUntil(t, conn, func(m serverMessage) bool { return m.Type == MsgPong })
}

func TestHandler_PushSubscribe(t *testing.T) {
	srv, _, backend := startServer(t)
	conn := dial(t, srv)

	write(t, conn, clientMessage{Type: MsgHello, Capabilities: &Capabilities{Push: true, Notifications: true}})
	write(t, conn, clientMessage{Type: MsgPushSubscribe})

	perm := readUntil(t, conn, func(m serverMessage) bool { return m.Type == MsgPushRequest })
	assert.Equal(t, ActionPermission, perm.Action)
	write(t, conn, clientMessage{Type: MsgPushReply, RequestID: perm.RequestID, Permission: "granted"})

	sub := readUntil(t, conn, func(m serverMessage) bool { return m.Type == MsgPushRequest })
	assert.Equal(t, ActionSubscribe, sub.Action)
	assert.Equal(t, testVAPIDKey, sub.Key)
	write(t, conn, clientMessage{
		Type:      MsgPushReply,
		RequestID: sub.RequestID,
		Subscription: &domain.PushSubscription{
			Endpoint: "https://push.example/abc",
			Keys:     domain.PushSubscriptionKeys{P256dh: "BNc", Auth: "tBH"},
		},
	})

	status := readUntil(t, conn, func(m serverMessage) bool { return m.Type == MsgPushStatus })
	require.NotNil(t, status.Subscribed)
	assert.True(t, *status.Subscribed)
	assert.Equal(t, "https://push.example/abc", status.Endpoint)

	forwarded := backend.forwarded()
	require.Len(t, forwarded, 1)
	assert.Equal(t, "https://push.example/abc", forwarded[0].Endpoint)
}

func TestHandler_PushUnsupportedWithoutHello(t *testing.T) {
	srv, _, backend := startServer(t)
	conn := dial(t, srv)

	write(t, conn, clientMessage{Type: MsgPushSubscribe})

	status := readUntil(t, conn, func(m serverMessage) bool {
		assert.NotEqual(t, MsgPushRequest, m.Type, "unsupported page must not be asked")
		return m.Type == MsgPushStatus
	})
	require.NotNil(t, status.Subscribed)
	assert.False(t, *status.Subscribed)
	assert.NotEmpty(t, status.Error)
	assert.Empty(t, backend.forwarded())
}

func TestHandler_ShellActivated(t *testing.T) {
	srv, sm, _ := startServer(t)
	conn := dial(t, srv)

	require.Eventually(t, func() bool { return sm.Count() == 1 }, 5*time.Second, 10*time.Millisecond)
	sm.ShellActivated("aria-pwa-v2")

	msg := readUntil(t, conn, func(m serverMessage) bool { return m.Type == MsgShellActivated })
	assert.Equal(t, "aria-pwa-v2", msg.Generation)
}

func TestHandler_WelcomeCarriesGeneration(t *testing.T) {
	srv, _, _ := startServerWith(t, func(o *Options) {
		o.Generation = func() string { return "aria-pwa-v1" }
	})
	conn := dial(t, srv)

	msg := readUntil(t, conn, func(m serverMessage) bool { return true })
	assert.Equal(t, MsgWelcome, msg.Type)
	assert.Equal(t, "aria-pwa-v1", msg.Generation)
}

// 19:04 UTC is 3:04 PM in New York (EDT) and 4:04 AM the next day in Tokyo.
var fixedClock = func() time.Time { return time.Date(2026, 3, 14, 19, 4, 0, 0, time.UTC) }

func messageTimeIn(t *testing.T, conn *websocket.Conn, sender string) string {
	t.Helper()
	var html string
	readUntil(t, conn, func(m serverMessage) bool {
		return hasOp(m, func(op chat.Op) bool {
			if op.Op == chat.OpAppend && strings.Contains(op.HTML, "message "+sender) {
				html = op.HTML
				return true
			}
			return false
		})
	})
	return html
}

func TestHandler_TimezoneFromQuery(t *testing.T) {
	srv, _, _ := startServerWith(t, func(o *Options) {
		o.Greeting = "Good afternoon."
		o.Clock = fixedClock
	})
	conn := dialQuery(t, srv, "session_id=tab-1&tz=America/New_York")

	assert.Contains(t, messageTimeIn(t, conn, "aria"), "3:04 PM")
}

func TestHandler_TimezoneFromHello(t *testing.T) {
	srv, _, _ := startServerWith(t, func(o *Options) { o.Clock = fixedClock })
	conn := dial(t, srv)

	write(t, conn, clientMessage{Type: MsgHello, Timezone: "Asia/Tokyo"})
	write(t, conn, clientMessage{Type: MsgSend, Content: "hi"})

	assert.Contains(t, messageTimeIn(t, conn, "user"), "4:04 AM")
}

func TestHandler_UnknownTimezoneKeepsZone(t *testing.T) {
	srv, _, _ := startServerWith(t, func(o *Options) { o.Clock = fixedClock })
	conn := dialQuery(t, srv, "session_id=tab-1&tz=America/New_York")

	write(t, conn, clientMessage{Type: MsgHello, Timezone: "Mars/Olympus_Mons"})
	write(t, conn, clientMessage{Type: MsgSend, Content: "hi"})

	assert.Contains(t, messageTimeIn(t, conn, "user"), "3:04 PM")
}

func TestHandler_RejectsForeignOrigin(t *testing.T) {
	sm := NewManager(quietLogger())
	h := NewHandler(sm, &recordingBackend{Client: webhook.New(webhook.Config{})},
		Options{AllowedOrigin: "https://aria.example"}, quietLogger())

	req := httptest.NewRequest("GET", "/ws/chat", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, 403, rec.Code)
}
