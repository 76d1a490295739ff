package middleware

import (
	"net/http"

	"github.com/maltehedderich/toolgate-go/internal/logger"
)

// CorrelationIDHeader is the HTTP header for correlation ID
const CorrelationIDHeader = "X-Correlation-ID"

// CorrelationID returns a middleware that adds a correlation ID to requests
func CorrelationID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			correlationID := r.Header.Get(CorrelationIDHeader)
			if correlationID == "" {
				correlationID = logger.GenerateCorrelationID()
			}

			ctx := logger.WithCorrelationID(r.Context(), correlationID)
			r = r.WithContext(ctx)

			w.Header().Set(CorrelationIDHeader, correlationID)

			next.ServeHTTP(w, r)
		})
	}
}
