package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/maltehedderich/toolgate-go/internal/logger"
	"github.com/maltehedderich/toolgate-go/internal/rpc"
)

// Recovery returns a middleware that recovers from panics. No error in
// this service is ever fatal to the process; every path terminates in a
// response.
func Recovery() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					stack := debug.Stack()

					log := logger.FromContext(r.Context(), "recovery")
					log.Error("panic recovered", logger.Fields{
						"error":     fmt.Sprintf("%v", err),
						"stack":     string(stack),
						"method":    r.Method,
						"path":      r.URL.Path,
						"remote_ip": ClientIP(r),
					})

					_ = rpc.WriteError(w, http.StatusInternalServerError, nil,
						rpc.CodeInternal, "Internal error", nil)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
