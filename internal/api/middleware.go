package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/harrylevesque/scanfulfill/internal/metrics"
)

// instrument records request metrics under the route name and logs
// every request at debug level.
func instrument(logger *slog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			name := "unmatched"
			if route := mux.CurrentRoute(r); route != nil && route.GetName() != "" {
				name = route.GetName()
			}
			elapsed := time.Since(start)
			metrics.HTTPRequestDuration.WithLabelValues(name, r.Method).Observe(elapsed.Seconds())
			metrics.HTTPRequestsTotal.WithLabelValues(name, r.Method, strconv.Itoa(wrapped.statusCode)).Inc()
			logger.Debug("api request", "method", r.Method, "path", r.URL.Path, "status", wrapped.statusCode, "duration", elapsed)
		})
	}
}

// responseWriter captures the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the Flusher underneath.
func (rw *responseWriter) Unwrap() http.ResponseWriter { return rw.ResponseWriter }
