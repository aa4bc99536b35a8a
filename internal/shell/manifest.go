// Package shell keeps the offline app-shell cache: a fixed manifest of
// static assets stored under one named cache generation and served ahead
// of the network.
package shell

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// DefaultGeneration names the cache generation baked into this build.
// Bump it to ship a new shell; staleness is never resolved any other way.
const DefaultGeneration = "aria-pwa-v1"

// OfflineDocument is served in place of a failed page navigation.
const OfflineDocument = "/index.html"

// Manifest is the ordered list of exact URL paths that make up the app shell.
type Manifest []string

// DefaultManifest returns the app shell shipped in web/dist.
func DefaultManifest() Manifest {
	return Manifest{
		"/",
		"/index.html",
		"/css/styles.css",
		"/js/app.js",
		"/js/push.js",
		"/icons/icon-192.png",
		"/icons/icon-512.png",
	}
}

// etagFor derives a strong validator from the asset body.
func etagFor(body []byte) string {
	sum := blake3.Sum256(body)
	return `"` + hex.EncodeToString(sum[:16]) + `"`
}
