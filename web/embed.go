// Package web embeds the built frontend (dist/). The app shell is served
// through the shell cache; the service worker script and the web app
// manifest are served directly so browsers always revalidate them.
package web

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed all:dist
var distFS embed.FS

// Dist returns the embedded frontend rooted at dist/.
func Dist() fs.FS {
	subFS, err := fs.Sub(distFS, "dist")
	if err != nil {
		panic("web: failed to create sub filesystem: " + err.Error())
	}
	return subFS
}

// FileHandler serves a single embedded file with the given content type.
func FileHandler(name, contentType string) http.Handler {
	dist := Dist()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if contentType != "" {
			w.Header().Set("Content-Type", contentType)
		}
		http.ServeFileFS(w, r, dist, name)
	})
}
