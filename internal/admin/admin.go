// Package admin exposes the operator surface for the blocklist and
// violation counters. It is served on its own listener, never on the
// public router, and carries no authentication of its own: the listener
// binds to loopback by default and network policy is expected to do the
// rest.
package admin

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/maltehedderich/toolgate-go/internal/logger"
	"github.com/maltehedderich/toolgate-go/internal/metrics"
	"github.com/maltehedderich/toolgate-go/internal/middleware"
	"github.com/maltehedderich/toolgate-go/internal/ratelimit"
)

// Handler serves the administrative endpoints.
type Handler struct {
	blocklist     *ratelimit.Blocklist
	violations    *ratelimit.ViolationTracker
	blockDuration time.Duration
	logger        *logger.ComponentLogger
}

// New creates an admin handler over the limiter's blocklist and violation
// tracker. blockDuration is the default applied when a block request does
// not specify one.
func New(blocklist *ratelimit.Blocklist, violations *ratelimit.ViolationTracker, blockDuration time.Duration) *Handler {
	return &Handler{
		blocklist:     blocklist,
		violations:    violations,
		blockDuration: blockDuration,
		logger:        logger.Get().WithComponent("admin"),
	}
}

// Mux returns the admin route mux.
func (h *Handler) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/admin/block", h.handleBlock)
	mux.HandleFunc("/admin/unblock", h.handleUnblock)
	mux.HandleFunc("/admin/violations", h.handleViolations)
	return mux
}

type blockRequest struct {
	ClientID string `json:"client_id"`
	Reason   string `json:"reason"`
	Duration string `json:"duration,omitempty"`
}

type unblockRequest struct {
	ClientID string `json:"client_id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// handleBlock serves POST (create or extend a block) and GET (inspect a
// block) on /admin/block.
func (h *Handler) handleBlock(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.blockClient(w, r)
	case http.MethodGet:
		h.getBlock(w, r)
	default:
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *Handler) blockClient(w http.ResponseWriter, r *http.Request) {
	var req blockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ClientID == "" {
		h.writeError(w, http.StatusBadRequest, "client_id is required")
		return
	}

	reason := req.Reason
	if reason == "" {
		reason = "manual block"
	}

	duration := h.blockDuration
	if req.Duration != "" {
		parsed, err := time.ParseDuration(req.Duration)
		if err != nil || parsed <= 0 {
			h.writeError(w, http.StatusBadRequest, "invalid duration")
			return
		}
		duration = parsed
	}

	violations, err := h.violations.Count(r.Context(), req.ClientID)
	if err != nil {
		// The count is informational on a manual block; proceed without it.
		violations = 0
	}

	entry, err := h.blocklist.Block(r.Context(), req.ClientID, reason, violations, time.Now(), duration)
	if err != nil {
		h.logger.Error("manual block failed", logger.Fields{
			"client_id": req.ClientID,
			"error":     err.Error(),
		})
		h.writeError(w, http.StatusInternalServerError, "failed to write block entry")
		return
	}
	if entry == nil {
		h.writeError(w, http.StatusConflict, "block lifetime cap already reached")
		return
	}

	metrics.RecordBlock("manual")
	h.logger.Info("client blocked", logger.Fields{
		"client_id":  req.ClientID,
		"reason":     reason,
		"expires_at": entry.ExpiresAt.UTC().Format(time.RFC3339),
	})

	h.writeJSON(w, http.StatusOK, entry)
}

func (h *Handler) getBlock(w http.ResponseWriter, r *http.Request) {
	clientID := r.URL.Query().Get("client_id")
	if clientID == "" {
		h.writeError(w, http.StatusBadRequest, "client_id is required")
		return
	}

	entry, err := h.blocklist.Check(r.Context(), clientID, time.Now())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to read block entry")
		return
	}
	if entry == nil {
		h.writeError(w, http.StatusNotFound, "client is not blocked")
		return
	}

	h.writeJSON(w, http.StatusOK, entry)
}

// handleUnblock serves POST /admin/unblock.
func (h *Handler) handleUnblock(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req unblockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ClientID == "" {
		h.writeError(w, http.StatusBadRequest, "client_id is required")
		return
	}

	if err := h.blocklist.Unblock(r.Context(), req.ClientID); err != nil {
		h.logger.Error("unblock failed", logger.Fields{
			"client_id": req.ClientID,
			"error":     err.Error(),
		})
		h.writeError(w, http.StatusInternalServerError, "failed to delete block entry")
		return
	}

	metrics.RecordUnblock()
	h.logger.Info("client unblocked", logger.Fields{
		"client_id": req.ClientID,
	})

	h.writeJSON(w, http.StatusOK, map[string]string{
		"client_id": req.ClientID,
		"status":    "unblocked",
	})
}

// handleViolations serves GET /admin/violations?client_id=...
func (h *Handler) handleViolations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	clientID := r.URL.Query().Get("client_id")
	if clientID == "" {
		h.writeError(w, http.StatusBadRequest, "client_id is required")
		return
	}

	count, err := h.violations.Count(r.Context(), clientID)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to read violation count")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"client_id":  clientID,
		"violations": count,
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = middleware.WriteJSON(w, v)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, errorResponse{Error: message})
}
