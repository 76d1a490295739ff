package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/maltehedderich/toolgate-go/internal/logger"
	"github.com/maltehedderich/toolgate-go/internal/metrics"
)

// responseWriter wraps http.ResponseWriter to capture status code and size
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	size       int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	size, err := rw.ResponseWriter.Write(b)
	rw.size += size
	return size, err
}

// Logging returns a middleware that logs requests and records HTTP metrics
func Logging() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			metrics.IncActiveRequests()
			next.ServeHTTP(rw, r)
			metrics.DecActiveRequests()

			duration := time.Since(start)
			metrics.RecordHTTPRequest(r.Method, strconv.Itoa(rw.statusCode), duration)

			log := logger.FromContext(r.Context(), "http")
			fields := logger.Fields{
				"method":        r.Method,
				"path":          r.URL.Path,
				"status":        rw.statusCode,
				"duration_ms":   duration.Milliseconds(),
				"response_size": rw.size,
				"remote_ip":     ClientIP(r),
				"user_agent":    r.UserAgent(),
			}

			switch {
			case rw.statusCode >= 500:
				log.Error("request completed", fields)
			case rw.statusCode >= 400:
				log.Warn("request completed", fields)
			default:
				log.Info("request completed", fields)
			}
		})
	}
}
