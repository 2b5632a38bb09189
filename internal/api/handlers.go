/**
 * @description
 * HTTP handlers for the upsell service's small surface: the inbound guest
 * message webhook, a manual tick trigger for testing/operations, and the
 * health check wired in the router.
 */
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/hoststack/upsell-service/internal/app"
)

// Engine is the part of the upsell engine the HTTP layer needs.
type Engine interface {
	HandleGuestReply(ctx context.Context, guestAddress, text string, receivedAt time.Time) (string, error)
	RunAll(ctx context.Context, now time.Time) (app.TickStats, error)
}

// Handlers holds the dependencies for the HTTP endpoints.
type Handlers struct {
	engine        Engine
	limiter       *app.RedisMessageRateLimiter
	webhookSecret string
	rateLimit     int
	rateWindow    time.Duration
	logger        *slog.Logger
}

// NewHandlers creates the HTTP handlers. limiter may be nil to disable
// webhook rate limiting.
func NewHandlers(engine Engine, limiter *app.RedisMessageRateLimiter, webhookSecret string, rateLimit int, rateWindow time.Duration, logger *slog.Logger) *Handlers {
	return &Handlers{
		engine:        engine,
		limiter:       limiter,
		webhookSecret: webhookSecret,
		rateLimit:     rateLimit,
		rateWindow:    rateWindow,
		logger:        logger,
	}
}

type inboundMessageRequest struct {
	GuestAddress string     `json:"guest_address"`
	Text         string     `json:"text"`
	ReceivedAt   *time.Time `json:"received_at,omitempty"`
}

type inboundMessageResponse struct {
	Reply string `json:"reply"`
}

// InboundMessageHandler receives a guest message from the messaging webhook
// and runs it through the response classifier. 200 with a reply body means
// the caller should relay the confirmation back to the guest; 204 means the
// message is not an upsell reply and should be routed elsewhere.
func (h *Handlers) InboundMessageHandler(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("X-Webhook-Secret") != h.webhookSecret {
		http.Error(w, "invalid webhook secret", http.StatusUnauthorized)
		return
	}

	var req inboundMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.GuestAddress == "" || req.Text == "" {
		http.Error(w, "guest_address and text are required", http.StatusBadRequest)
		return
	}

	if _, retryAfter, err := h.limiter.ConsumeRateLimit(r.Context(), req.GuestAddress, h.rateLimit, h.rateWindow); err != nil {
		// Fail open: a rate limiter outage must not block guest replies.
		h.logger.Error("rate limit check failed", "guest_address", req.GuestAddress, "error", err)
	} else if retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		http.Error(w, "too many messages", http.StatusTooManyRequests)
		return
	}

	receivedAt := time.Now().UTC()
	if req.ReceivedAt != nil {
		receivedAt = req.ReceivedAt.UTC()
	}

	reply, err := h.engine.HandleGuestReply(r.Context(), req.GuestAddress, req.Text, receivedAt)
	if err != nil {
		h.logger.Error("failed to handle guest reply", "guest_address", req.GuestAddress, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if reply == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	respondJSON(w, http.StatusOK, inboundMessageResponse{Reply: reply})
}

// RunTickHandler triggers a full engine pass over all enabled properties
// and returns the aggregated tick counts.
func (h *Handlers) RunTickHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.RunAll(r.Context(), time.Now().UTC())
	if err != nil {
		h.logger.Error("manual tick failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
