package middleware

import "net/http"

// ServiceWorker marks a response as a service worker script or web app
// manifest. Browsers must revalidate these on every load, and the worker
// may control the whole origin.
func ServiceWorker(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Service-Worker-Allowed", "/")
		w.Header().Set("Cache-Control", "no-cache")
		next.ServeHTTP(w, r)
	})
}
