package middleware

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"places-cache/internal/common/logging"
)

// statusRecorder captures the status code and body size written by a handler
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytes += n
	return n, err
}

func record(w http.ResponseWriter) *statusRecorder {
	return &statusRecorder{ResponseWriter: w, status: http.StatusOK}
}

// routeTemplate returns the mux path template, keeping place IDs out of
// metric labels. Unmatched requests report "unmatched".
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// probes are logged at debug so load balancer checks do not drown lookups
var probes = map[string]bool{"/health": true, "/metrics": true}

// LoggingMiddleware logs every request with its route, status and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := record(w)

		next.ServeHTTP(rec, r)

		fields := []logging.Field{
			{Key: "method", Value: r.Method},
			{Key: "route", Value: routeTemplate(r)},
			{Key: "path", Value: r.URL.Path},
			{Key: "status", Value: rec.status},
			{Key: "bytes", Value: rec.bytes},
			{Key: "duration_ms", Value: time.Since(start).Milliseconds()},
			{Key: "client", Value: ClientIPKey(r)},
		}
		if r.URL.RawQuery != "" {
			fields = append(fields, logging.Field{Key: "query", Value: r.URL.RawQuery})
		}

		logger := logging.WithContext(r.Context())
		switch {
		case rec.status >= 500:
			logger.Error("HTTP request completed", nil, fields...)
		case rec.status >= 400:
			logger.Warn("HTTP request completed", fields...)
		case probes[r.URL.Path]:
			logger.Debug("HTTP request completed", fields...)
		default:
			logger.Info("HTTP request completed", fields...)
		}
	})
}
