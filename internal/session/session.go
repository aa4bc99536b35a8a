package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/ashureev/aria/internal/chat"
)

var (
	// ErrClosed is returned when sending on a closed session.
	ErrClosed = errors.New("session closed")

	// ErrSlowClient is returned when the outbound queue is full.
	ErrSlowClient = errors.New("client not reading")
)

const (
	outboundQueueSize = 256
	writeTimeout      = 10 * time.Second
)

// Session is one connected tab.
type Session struct {
	DeviceID  string
	SessionID string

	conn   *websocket.Conn
	out    chan []byte
	done   chan struct{}
	once   sync.Once
	logger *slog.Logger

	mu      sync.Mutex
	caps    Capabilities
	pending map[string]chan clientMessage
}

func newSession(deviceID, sessionID string, conn *websocket.Conn, logger *slog.Logger) *Session {
	return &Session{
		DeviceID:  deviceID,
		SessionID: sessionID,
		conn:      conn,
		out:       make(chan []byte, outboundQueueSize),
		done:      make(chan struct{}),
		logger:    logger,
		pending:   make(map[string]chan clientMessage),
	}
}

// Send queues v as a JSON text frame. It never blocks; a client that falls
// too far behind is disconnected.
func (s *Session) Send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case <-s.done:
		return ErrClosed
	default:
	}
	select {
	case s.out <- data:
		return nil
	case <-s.done:
		return ErrClosed
	default:
		s.logger.Warn("Outbound queue full, closing session", "session_id", s.SessionID)
		s.Close("client too slow")
		return ErrSlowClient
	}
}

// Patch sends DOM ops to the page.
func (s *Session) Patch(ops ...chat.Op) {
	if err := s.Send(serverMessage{Type: MsgPatch, Ops: ops}); err != nil && !errors.Is(err, ErrClosed) {
		s.logger.Debug("Failed to send patch", "session_id", s.SessionID, "error", err)
	}
}

// Done is closed when the session ends.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Close ends the session. Safe to call more than once.
func (s *Session) Close(reason string) {
	s.once.Do(func() {
		close(s.done)
		if s.conn != nil {
			if err := s.conn.Close(websocket.StatusNormalClosure, reason); err != nil {
				s.logger.Debug("Failed to close websocket", "session_id", s.SessionID, "error", err)
			}
		}
	})
}

// Capabilities returns what the page reported in its hello.
func (s *Session) Capabilities() Capabilities {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.caps
}

func (s *Session) setCapabilities(c Capabilities) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.caps = c
}

// writeLoop drains the outbound queue until the session closes.
func (s *Session) writeLoop(ctx context.Context) {
	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			return
		case data := <-s.out:
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := s.conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				if ctx.Err() == nil {
					s.logger.Debug("WebSocket write error", "session_id", s.SessionID, "error", err)
				}
				s.Close("write failed")
				return
			}
		}
	}
}

// request sends a push_request and waits for the matching push_reply.
func (s *Session) request(ctx context.Context, action, key string) (clientMessage, error) {
	id := uuid.NewString()
	reply := make(chan clientMessage, 1)

	s.mu.Lock()
	s.pending[id] = reply
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
	}()

	if err := s.Send(serverMessage{Type: MsgPushRequest, RequestID: id, Action: action, Key: key}); err != nil {
		return clientMessage{}, err
	}

	select {
	case msg := <-reply:
		return msg, nil
	case <-ctx.Done():
		return clientMessage{}, ctx.Err()
	case <-s.done:
		return clientMessage{}, ErrClosed
	}
}

// resolve delivers a push_reply to its waiting request. Unknown ids are dropped.
func (s *Session) resolve(msg clientMessage) bool {
	s.mu.Lock()
	reply, ok := s.pending[msg.RequestID]
	delete(s.pending, msg.RequestID)
	s.mu.Unlock()

	if !ok {
		return false
	}
	reply <- msg
	return true
}
