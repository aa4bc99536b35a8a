package domain

import (
	"net/http"
	"time"
)

// CachedAsset is a stored response for one exact app-shell URL.
type CachedAsset struct {
	URL      string
	Status   int
	Header   http.Header
	Body     []byte
	ETag     string
	StoredAt time.Time
}
