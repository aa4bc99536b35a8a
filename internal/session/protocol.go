package session

import (
	"github.com/ashureev/aria/internal/chat"
	"github.com/ashureev/aria/internal/domain"
)

// Client → server message types.
const (
	MsgHello           = "hello"
	MsgSend            = "send"
	MsgQuickReply      = "quick_reply"
	MsgToggleTask      = "toggle_task"
	MsgPushSubscribe   = "push_subscribe"
	MsgPushUnsubscribe = "push_unsubscribe"
	MsgPushReply       = "push_reply"
	MsgPing            = "ping"
)

// Server → client message types.
const (
	MsgWelcome        = "welcome"
	MsgPatch          = "patch"
	MsgPushRequest    = "push_request"
	MsgPushStatus     = "push_status"
	MsgShellActivated = "shell_activated"
	MsgPong           = "pong"
	MsgError          = "error"
)

// Push request actions.
const (
	ActionPermission   = "permission"
	ActionSubscribe    = "subscribe"
	ActionSubscription = "subscription"
	ActionUnsubscribe  = "unsubscribe"
)

// Capabilities are reported by the page in its hello.
type Capabilities struct {
	Push          bool `json:"push"`
	Notifications bool `json:"notifications"`
}

// clientMessage is the union of every inbound frame.
type clientMessage struct {
	Type         string                   `json:"type"`
	Content      string                   `json:"content,omitempty"`
	Group        string                   `json:"group,omitempty"`
	Index        int                      `json:"index,omitempty"`
	Capabilities *Capabilities            `json:"capabilities,omitempty"`
	Timezone     string                   `json:"timezone,omitempty"`
	RequestID    string                   `json:"request_id,omitempty"`
	Permission   string                   `json:"permission,omitempty"`
	Subscription *domain.PushSubscription `json:"subscription,omitempty"`
	OK           bool                     `json:"ok,omitempty"`
	Error        string                   `json:"error,omitempty"`
}

// serverMessage is the union of every outbound frame.
type serverMessage struct {
	Type       string    `json:"type"`
	Ops        []chat.Op `json:"ops,omitempty"`
	RequestID  string    `json:"request_id,omitempty"`
	Action     string    `json:"action,omitempty"`
	Key        string    `json:"key,omitempty"`
	Generation string    `json:"generation,omitempty"`
	Subscribed *bool     `json:"subscribed,omitempty"`
	Endpoint   string    `json:"endpoint,omitempty"`
	Error      string    `json:"error,omitempty"`
}
