package session

import (
	"io"
	"log/slog"
	"strconv"
	"sync"
	"testing"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSession(deviceID, sessionID string) *Session {
	return newSession(deviceID, sessionID, nil, quietLogger())
}

func TestManager_Register(t *testing.T) {
	sm := NewManager(quietLogger())
	s := testSession("device123", "tab-1")

	sm.Register(s)

	if got := sm.Get("device123", "tab-1"); got != s {
		t.Errorf("Expected session %p, got %p", s, got)
	}
}

func TestManager_Unregister(t *testing.T) {
	sm := NewManager(quietLogger())
	s := testSession("device123", "tab-1")

	sm.Register(s)
	sm.Unregister(s)

	if got := sm.Get("device123", "tab-1"); got != nil {
		t.Errorf("Expected nil session, got %p", got)
	}
	if sm.Count() != 0 {
		t.Errorf("Expected no sessions, got %d", sm.Count())
	}
}

func TestManager_UnregisterStale(t *testing.T) {
	sm := NewManager(quietLogger())
	s1 := testSession("device123", "tab-1")
	s2 := testSession("device123", "tab-2")

	sm.Register(s1)
	sm.Register(s2)
	sm.Unregister(s1)

	if got := sm.Get("device123", "tab-2"); got != s2 {
		t.Errorf("Expected session %p, got %p", s2, got)
	}
}

func TestManager_ReplaceClosesPrevious(t *testing.T) {
	sm := NewManager(quietLogger())
	old := testSession("device123", "tab-1")
	replacement := testSession("device123", "tab-1")

	sm.Register(old)
	sm.Register(replacement)

	select {
	case <-old.Done():
	default:
		t.Fatal("replaced session should be closed")
	}

	// A late unregister from the replaced session must not remove the new one.
	sm.Unregister(old)
	if got := sm.Get("device123", "tab-1"); got != replacement {
		t.Errorf("Expected replacement session, got %p", got)
	}
}

func TestManager_ShellActivatedBroadcast(t *testing.T) {
	sm := NewManager(quietLogger())
	a := testSession("device-a", "tab-1")
	b := testSession("device-b", "tab-1")
	closed := testSession("device-c", "tab-1")
	sm.Register(a)
	sm.Register(b)
	sm.Register(closed)
	closed.Close("gone")

	sm.ShellActivated("aria-pwa-v2")

	for _, s := range []*Session{a, b} {
		select {
		case data := <-s.out:
			if string(data) != `{"type":"shell_activated","generation":"aria-pwa-v2"}` {
				t.Errorf("unexpected frame %s", data)
			}
		default:
			t.Errorf("session %s got no broadcast", s.DeviceID)
		}
	}
}

func TestManager_CloseAll(t *testing.T) {
	sm := NewManager(quietLogger())
	s := testSession("device123", "tab-1")
	sm.Register(s)

	sm.CloseAll()

	if sm.Count() != 0 {
		t.Errorf("Expected no sessions, got %d", sm.Count())
	}
	select {
	case <-s.Done():
	default:
		t.Error("session should be closed")
	}
}

func TestManager_ConcurrentAccess(t *testing.T) {
	sm := NewManager(quietLogger())
	deviceID := "concurrentDevice"

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		for i := range 1000 {
			sm.Register(testSession(deviceID, "tab-"+strconv.Itoa(i)))
		}
	}()
	go func() {
		defer wg.Done()
		for i := range 1000 {
			sm.Get(deviceID, "tab-"+strconv.Itoa(i))
		}
	}()
	go func() {
		defer wg.Done()
		for range 100 {
			sm.Broadcast(serverMessage{Type: MsgPong})
		}
	}()
	wg.Wait()
}

func TestSession_SlowClientIsClosed(t *testing.T) {
	s := testSession("device123", "tab-1")

	for range outboundQueueSize {
		if err := s.Send(serverMessage{Type: MsgPong}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if err := s.Send(serverMessage{Type: MsgPong}); err != ErrSlowClient {
		t.Fatalf("Expected ErrSlowClient, got %v", err)
	}
	if err := s.Send(serverMessage{Type: MsgPong}); err != ErrClosed {
		t.Fatalf("Expected ErrClosed, got %v", err)
	}
}

func TestSession_ResolveUnknownRequest(t *testing.T) {
	s := testSession("device123", "tab-1")
	if s.resolve(clientMessage{Type: MsgPushReply, RequestID: "nope"}) {
		t.Error("unknown request id should not resolve")
	}
}
