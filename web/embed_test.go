package web

import (
	"io/fs"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ashureev/aria/internal/shell"
)

func TestDistContainsManifest(t *testing.T) {
	dist := Dist()
	for _, url := range shell.DefaultManifest() {
		name := strings.TrimPrefix(url, "/")
		if name == "" {
			continue
		}
		if _, err := fs.Stat(dist, name); err != nil {
			t.Errorf("manifest asset %s missing from dist: %v", url, err)
		}
	}
}

func TestFileHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	FileHandler("manifest.webmanifest", "application/manifest+json").
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/manifest.webmanifest", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/manifest+json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), `"start_url": "/"`) {
		t.Errorf("unexpected body %q", rec.Body.String())
	}
}
