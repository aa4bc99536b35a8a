package identity

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func serve(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, string, string) {
	t.Helper()
	var gotDevice, gotSession string
	h := Middleware(true)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		gotDevice = DeviceIDFromContext(r.Context())
		gotSession = SessionIDFromContext(r.Context())
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, gotDevice, gotSession
}

func TestMiddleware_MintsDeviceID(t *testing.T) {
	rec, device, session := serve(t, httptest.NewRequest(http.MethodGet, "/ws/chat", nil))

	if !anonIDPattern.MatchString(device) {
		t.Fatalf("unexpected device id %q", device)
	}
	if session != DefaultSessionIDValue {
		t.Errorf("session = %q, want %q", session, DefaultSessionIDValue)
	}

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != AnonCookieName || cookies[0].Value != device {
		t.Fatalf("unexpected cookies %v", cookies)
	}
	if !cookies[0].HttpOnly {
		t.Error("cookie should be HttpOnly")
	}
}

func TestMiddleware_ReusesValidCookie(t *testing.T) {
	existing := "anon_" + strings.Repeat("ab", 16)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: AnonCookieName, Value: existing})
	req.Header.Set(SessionHeaderName, "tab-7")

	_, device, session := serve(t, req)
	if device != existing {
		t.Errorf("device = %q, want %q", device, existing)
	}
	if session != "tab-7" {
		t.Errorf("session = %q, want tab-7", session)
	}
}

func TestMiddleware_RejectsForgedCookie(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: AnonCookieName, Value: "admin"})

	_, device, _ := serve(t, req)
	if device == "admin" {
		t.Fatal("forged cookie accepted")
	}
}

func TestSanitizeSessionID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"tab-1", "tab-1"},
		{"  tab-2  ", "tab-2"},
		{"", DefaultSessionIDValue},
		{"bad id", DefaultSessionIDValue},
		{"<script>", DefaultSessionIDValue},
		{strings.Repeat("a", 129), DefaultSessionIDValue},
	}
	for _, tt := range tests {
		if got := sanitizeSessionID(tt.in); got != tt.want {
			t.Errorf("sanitizeSessionID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSessionIDFromQuery(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ws/chat?session_id=tab-9", nil)
	_, _, session := serve(t, req)
	if session != "tab-9" {
		t.Errorf("session = %q, want tab-9", session)
	}
}

func TestShortID(t *testing.T) {
	if got := ShortID("anon_0123456789abcdef0123456789abcdef"); got != "89abcdef" {
		t.Errorf("ShortID = %q", got)
	}
	if got := ShortID("short"); got != "short" {
		t.Errorf("ShortID = %q", got)
	}
}
