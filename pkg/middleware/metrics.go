package middleware

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/atrium-works/atrium/pkg/observability"
)

// Metrics records request counts and latencies per route template, so path
// parameters do not explode the label space.
func Metrics(m *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rw, r)

			path := r.URL.Path
			if route := mux.CurrentRoute(r); route != nil {
				if tmpl, err := route.GetPathTemplate(); err == nil {
					path = tmpl
				}
			}
			m.ObserveHTTPRequest(r.Method, path, rw.statusCode, time.Since(start))
		})
	}
}
