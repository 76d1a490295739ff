package ratelimit

import (
	"bytes"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/maltehedderich/toolgate-go/internal/logger"
	"github.com/maltehedderich/toolgate-go/internal/metrics"
	"github.com/maltehedderich/toolgate-go/internal/rpc"
	"github.com/maltehedderich/toolgate-go/internal/tracing"
)

// Middleware gates every inbound tool call through the limiter. Rejected
// requests get the JSON-RPC error mapping (-32000 rate limited, -32001
// blocked) with a Retry-After hint; allowed requests carry quota headers
// and proceed downstream with the body restored and otherwise untouched.
//
// Malformed bodies are limited too, under the default tool cost, before
// the parse error is returned: floods of invalid JSON get no free pass.
func Middleware(limiter *Limiter, maxBodySize int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log := logger.FromContext(r.Context(), "ratelimit")

			body, readErr := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
			_ = r.Body.Close()

			tool := ""
			var id json.RawMessage
			var req *rpc.Request
			var parseErr error
			if readErr == nil {
				req, parseErr = rpc.Parse(body)
				if parseErr == nil {
					tool = req.ToolName()
					id = req.ID
				}
			}

			clientID := ClientIP(r)
			checkStart := time.Now()
			decision := limiter.Check(r.Context(), clientID, tool, time.Now())
			metrics.RecordRateLimitCheck(outcome(decision), time.Since(checkStart))
			tracing.AnnotateDecision(r.Context(), tool, outcome(decision))

			if !decision.Allowed {
				status := http.StatusTooManyRequests
				if decision.Code == rpc.CodeIPBlocked {
					status = http.StatusForbidden
				}

				log.Warn("request rejected", logger.Fields{
					"client_id":   clientID,
					"tool":        tool,
					"code":        decision.Code,
					"retry_after": int(decision.RetryAfter.Seconds()),
				})

				setRetryAfter(w, decision)
				_ = rpc.WriteError(w, status, id, decision.Code, decision.Message, map[string]interface{}{
					"retryAfter": int(decision.RetryAfter.Seconds()),
				})
				return
			}

			addQuotaHeaders(w, decision)

			if readErr != nil || int64(len(body)) > maxBodySize {
				_ = rpc.WriteError(w, http.StatusRequestEntityTooLarge, id, rpc.CodeInvalidRequest,
					"Request body too large", nil)
				return
			}
			if parseErr != nil {
				_ = rpc.WriteError(w, http.StatusBadRequest, nil, rpc.CodeParse, "Parse error", nil)
				return
			}

			r.Body = io.NopCloser(bytes.NewReader(body))
			r.ContentLength = int64(len(body))
			next.ServeHTTP(w, r)
		})
	}
}

// outcome maps a decision to a metrics label.
func outcome(d *Decision) string {
	switch {
	case d.Allowed:
		return "allowed"
	case d.Code == rpc.CodeIPBlocked:
		return "blocked"
	default:
		return "rate_limited"
	}
}

// addQuotaHeaders attaches the quota headers from the most constraining
// ceiling. A zero limit means both budgets failed open and there is no
// quota state to report.
func addQuotaHeaders(w http.ResponseWriter, d *Decision) {
	if d.Limit <= 0 {
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(d.Limit, 10))
	w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(d.Remaining, 10))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.Reset.Unix(), 10))
	w.Header().Set("X-RateLimit-Window", string(d.Window))
}

// setRetryAfter sets the Retry-After header on rejections.
func setRetryAfter(w http.ResponseWriter, d *Decision) {
	seconds := int(d.RetryAfter.Seconds())
	if seconds < 1 {
		seconds = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(seconds))
}

// ClientIP extracts the client identity from the request. It trusts
// X-Forwarded-For and X-Real-IP (this service runs behind the edge proxy
// that sets them) before falling back to the connection address.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// The first entry is the original client
		ips := strings.Split(xff, ",")
		if ip := strings.TrimSpace(ips[0]); ip != "" {
			return ip
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
