package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/okian/voeux/pkg/metrics"
)

// MetricsMiddleware records request count, latency and failure class per
// endpoint.
func MetricsMiddleware(next http.HandlerFunc, endpoint string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		ms := float64(time.Since(start).Microseconds()) / 1000
		code := strconv.Itoa(rec.status)
		metrics.RecordHTTPRequest(endpoint, r.Method, code)
		metrics.RecordHTTPRequestDuration(endpoint, r.Method, code, ms)
		if class := failureClass(rec.status); class != "" {
			metrics.RecordErrorByEndpoint(endpoint, r.Method, class)
		}
	}
}

// failureClass groups statuses the way writeFailure produces them. Success
// statuses have no class.
func failureClass(status int) string {
	switch status {
	case http.StatusUnprocessableEntity:
		return "validation"
	case http.StatusConflict:
		return "conflict"
	case http.StatusTooManyRequests:
		return "backpressure"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusGatewayTimeout:
		return "timeout"
	case http.StatusServiceUnavailable:
		return "unavailable"
	}
	switch {
	case status >= http.StatusInternalServerError:
		return "server_error"
	case status >= http.StatusBadRequest:
		return "client_error"
	default:
		return ""
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}
