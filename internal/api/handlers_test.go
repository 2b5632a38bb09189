package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hoststack/upsell-service/internal/app"
)

type engineStub struct {
	reply     string
	replyErr  error
	stats     app.TickStats
	lastText  string
	lastGuest string
}

func (s *engineStub) HandleGuestReply(ctx context.Context, guestAddress, text string, receivedAt time.Time) (string, error) {
	s.lastGuest = guestAddress
	s.lastText = text
	return s.reply, s.replyErr
}

func (s *engineStub) RunAll(ctx context.Context, now time.Time) (app.TickStats, error) {
	return s.stats, nil
}

func newTestHandlers(engine Engine) *Handlers {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewHandlers(engine, nil, "webhook-secret", 30, time.Minute, logger)
}

func TestInboundMessageHandler_RejectsBadSecret(t *testing.T) {
	h := newTestHandlers(&engineStub{})
	router := NewRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/messages", strings.NewReader(`{"guest_address":"+47911","text":"YES"}`))
	req.Header.Set("X-Webhook-Secret", "wrong")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestInboundMessageHandler_ReturnsConfirmation(t *testing.T) {
	stub := &engineStub{reply: "Great, that's booked! 45.00 USD has been added to your stay. See you soon."}
	h := newTestHandlers(stub)
	router := NewRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/messages", strings.NewReader(`{"guest_address":"+4791000001","text":"YES"}`))
	req.Header.Set("X-Webhook-Secret", "webhook-secret")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body inboundMessageResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !strings.Contains(body.Reply, "45.00") {
		t.Fatalf("expected confirmation reply, got %q", body.Reply)
	}
	if stub.lastGuest != "+4791000001" || stub.lastText != "YES" {
		t.Fatalf("expected message forwarded to engine, got %q %q", stub.lastGuest, stub.lastText)
	}
}

func TestInboundMessageHandler_NonReplyYields204(t *testing.T) {
	h := newTestHandlers(&engineStub{reply: ""})
	router := NewRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/messages", strings.NewReader(`{"guest_address":"+4791000001","text":"what time is breakfast?"}`))
	req.Header.Set("X-Webhook-Secret", "webhook-secret")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for non-upsell message, got %d", rec.Code)
	}
}

func TestInboundMessageHandler_RequiresAddressAndText(t *testing.T) {
	h := newTestHandlers(&engineStub{})
	router := NewRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/messages", strings.NewReader(`{"text":"YES"}`))
	req.Header.Set("X-Webhook-Secret", "webhook-secret")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestRunTickHandler_ReturnsStats(t *testing.T) {
	h := newTestHandlers(&engineStub{stats: app.TickStats{Scheduled: 2, Sent: 1, Expired: 3}})
	router := NewRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/internal/ticks/run", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var stats app.TickStats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("failed to decode stats: %v", err)
	}
	if stats.Scheduled != 2 || stats.Sent != 1 || stats.Expired != 3 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}
