package metrics

import (
	"net/http"
	"regexp"
	"time"
)

// HTTPMiddleware records request count, duration, size and in-flight
// requests for next.
func HTTPMiddleware(m *Metrics, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		m.HTTPRequestsInFlight.Inc()
		defer m.HTTPRequestsInFlight.Dec()

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		size := r.ContentLength
		if size < 0 {
			size = 0
		}
		m.RecordHTTP(r.Method, r.URL.Path, rw.statusCode, time.Since(start).Seconds(), size)
	})
}

// responseWriter captures the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (w *responseWriter) WriteHeader(code int) {
	if !w.written {
		w.statusCode = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.WriteHeader(w.statusCode)
	}
	return w.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *responseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

var evaluationPath = regexp.MustCompile(`^/v1/evaluations/[^/]+`)

// normalizePath replaces evaluation IDs with {id} to bound label
// cardinality.
//
//	/v1/evaluations/ev-123/matrix -> /v1/evaluations/{id}/matrix
func normalizePath(path string) string {
	switch path {
	case "/v1/evaluations/preview", "/v1/evaluations/batch":
		return path
	}
	return evaluationPath.ReplaceAllString(path, "/v1/evaluations/{id}")
}
