package shell

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/ashureev/aria/internal/domain"
	"github.com/ashureev/aria/internal/store"
)

// CacheStatusHeader reports how a response was produced: hit, network or offline.
const CacheStatusHeader = "X-Aria-Cache"

// ServeHTTP answers every request from the active cache generation when an
// exact match exists, and from the origin otherwise.
//
// When the lookup or the live fetch fails, navigation requests get the
// cached offline document. Everything else gets an empty 502.
func (m *Manager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	generation := m.Generation()

	if generation != "" && (r.Method == http.MethodGet || r.Method == http.MethodHead) {
		asset, err := m.storage.Match(ctx, generation, cacheKey(r))
		if err != nil {
			m.logger.Warn("Cache lookup failed",
				"url", cacheKey(r),
				"generation", generation,
				"busy", errors.Is(err, store.ErrBusy),
				"error", err)
			m.fallback(w, r, generation)
			return
		}
		if asset != nil {
			writeAsset(w, r, asset, "hit")
			return
		}
	}

	live, err := m.origin.Fetch(ctx, r)
	if err != nil {
		m.logger.Warn("Network fetch failed", "url", cacheKey(r), "error", err)
		m.fallback(w, r, generation)
		return
	}
	writeAsset(w, r, live, "network")
}

func (m *Manager) fallback(w http.ResponseWriter, r *http.Request, generation string) {
	if generation != "" && IsNavigation(r) {
		doc, err := m.storage.Match(r.Context(), generation, OfflineDocument)
		if err == nil && doc != nil {
			writeAsset(w, r, doc, "offline")
			return
		}
		if err != nil {
			m.logger.Warn("Offline document lookup failed", "generation", generation, "error", err)
		}
	}
	w.WriteHeader(http.StatusBadGateway)
}

// IsNavigation reports whether r is a top-level page navigation.
func IsNavigation(r *http.Request) bool {
	if mode := r.Header.Get("Sec-Fetch-Mode"); mode != "" {
		return mode == "navigate"
	}
	if r.Method != http.MethodGet {
		return false
	}
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "text/html")
}

func writeAsset(w http.ResponseWriter, r *http.Request, asset *domain.CachedAsset, source string) {
	header := w.Header()
	for k, v := range asset.Header {
		header[k] = append([]string(nil), v...)
	}
	header.Set(CacheStatusHeader, source)

	if asset.ETag != "" {
		header.Set("ETag", asset.ETag)
		if match := r.Header.Get("If-None-Match"); match != "" && etagMatches(match, asset.ETag) {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}

	status := asset.Status
	if status == 0 {
		status = http.StatusOK
	}
	header.Set("Content-Length", strconv.Itoa(len(asset.Body)))
	w.WriteHeader(status)
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write(asset.Body)
}

func etagMatches(ifNoneMatch, etag string) bool {
	for _, candidate := range strings.Split(ifNoneMatch, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}
