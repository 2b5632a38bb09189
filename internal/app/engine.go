/**
 * @description
 * The tick orchestrator for the upsell engine. One tick per property runs
 * candidate generation -> guarded scheduling -> dispatch of due offers ->
 * expiry sweep, in that order, so a draft created this tick with a due send
 * time is eligible for sending in the same tick.
 *
 * Idempotency is the concurrency safety net: scheduling is a no-op when a
 * non-terminal duplicate exists, and every status transition is a guarded
 * compare-and-set, so overlapping or re-run ticks cannot double-create,
 * double-mark or double-expire offers.
 */

package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hoststack/upsell-service/internal/domain"
)

// Repository defines the persistence operations the engine needs. All offer
// writers go through these guarded transitions; no other component writes
// offer status directly.
type Repository interface {
	GetEnabledProperties(ctx context.Context) ([]domain.PropertySnapshot, error)
	GetConfirmedBookings(ctx context.Context, propertyID uuid.UUID) ([]domain.Booking, error)

	// ScheduleOffer inserts a draft unless a non-terminal offer with the same
	// (booking id, offer type) already exists. Returns false on duplicate.
	ScheduleOffer(ctx context.Context, offer *domain.UpsellOffer) (bool, error)

	GetDueOffers(ctx context.Context, propertyID uuid.UUID, now time.Time) ([]domain.UpsellOffer, error)
	GetExpiredSentOffers(ctx context.Context, propertyID uuid.UUID, now time.Time) ([]domain.UpsellOffer, error)

	// FindLatestSentOffer returns the most recently sent outstanding offer for
	// a guest address, or nil when there is none.
	FindLatestSentOffer(ctx context.Context, guestAddress string) (*domain.UpsellOffer, error)

	// Guarded transitions. Each returns false when the offer was not in the
	// required starting state (a legitimate no-op under overlapping ticks).
	MarkOfferSent(ctx context.Context, offerID uuid.UUID, sentAt, expiresAt time.Time, messageText string) (bool, error)
	MarkOfferResponded(ctx context.Context, offerID uuid.UUID, status domain.OfferStatus, rawReply string, respondedAt time.Time) (bool, error)
	MarkOfferExpired(ctx context.Context, offerID uuid.UUID, now time.Time) (bool, error)

	RecordSendFailure(ctx context.Context, offerID uuid.UUID) error
}

// Transport sends a rendered message to a guest address over one channel.
type Transport interface {
	Send(ctx context.Context, address, text string) error
}

// EventPublisher publishes offer lifecycle events for external consumers
// (host dashboards). May be backed by a nil producer, in which case the
// engine skips publishing.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, body any) error
}

// TickStats are the per-tick counts surfaced to the orchestrator and, via
// the manual trigger endpoint, to operators.
type TickStats struct {
	Scheduled    int `json:"scheduled"`
	Sent         int `json:"sent"`
	SendFailures int `json:"send_failures"`
	Expired      int `json:"expired"`
}

// Add accumulates another tick's counts into s.
func (s *TickStats) Add(other TickStats) {
	s.Scheduled += other.Scheduled
	s.Sent += other.Sent
	s.SendFailures += other.SendFailures
	s.Expired += other.Expired
}

// Engine runs the upsell offer lifecycle for enabled properties.
type Engine struct {
	repo         Repository
	transports   map[domain.Channel]Transport
	events       EventPublisher
	logger       *slog.Logger
	expiryWindow time.Duration
	sendTimeout  time.Duration
}

// NewEngine creates the engine. events may be nil to disable lifecycle
// event publishing.
func NewEngine(repo Repository, chat, sms Transport, events EventPublisher, logger *slog.Logger, expiryWindow, sendTimeout time.Duration) *Engine {
	return &Engine{
		repo: repo,
		transports: map[domain.Channel]Transport{
			domain.ChannelChatApp: chat,
			domain.ChannelSMS:     sms,
		},
		events:       events,
		logger:       logger,
		expiryWindow: expiryWindow,
		sendTimeout:  sendTimeout,
	}
}

// RunAll runs one tick for every enabled property. A failure inside one
// property's tick is logged and does not abort the others; only the initial
// property/config read aborts the whole pass.
func (e *Engine) RunAll(ctx context.Context, now time.Time) (TickStats, error) {
	snapshots, err := e.repo.GetEnabledProperties(ctx)
	if err != nil {
		return TickStats{}, fmt.Errorf("load enabled properties: %w", err)
	}

	var total TickStats
	for _, snap := range snapshots {
		stats, err := e.RunTick(ctx, snap, now)
		if err != nil {
			e.logger.Error("tick failed for property", "property_id", snap.Property.ID, "error", err)
			continue
		}
		total.Add(stats)
	}
	return total, nil
}

// RunTick executes one scan -> schedule -> dispatch -> expire pass for a
// single property using the given config snapshot.
func (e *Engine) RunTick(ctx context.Context, snap domain.PropertySnapshot, now time.Time) (TickStats, error) {
	var stats TickStats

	bookings, err := e.repo.GetConfirmedBookings(ctx, snap.Property.ID)
	if err != nil {
		return stats, fmt.Errorf("load bookings for property %s: %w", snap.Property.ID, err)
	}

	drafts := GenerateCandidates(snap, bookings, now)
	for i := range drafts {
		created, err := e.repo.ScheduleOffer(ctx, &drafts[i])
		if err != nil {
			e.logger.Error("failed to schedule offer", "booking_id", drafts[i].BookingID, "offer_type", drafts[i].Type, "error", err)
			continue
		}
		if !created {
			// Non-terminal duplicate; reconciliation, not accumulation.
			continue
		}
		stats.Scheduled++
		e.publish(ctx, "offer.scheduled", drafts[i], now)
	}

	e.dispatchDue(ctx, snap.Property.ID, now, &stats)
	e.expireStale(ctx, snap.Property.ID, now, &stats)

	return stats, nil
}

// expireStale demotes unanswered sent offers past their deadline. Re-running
// over an already-expired set is a no-op because the transition requires the
// starting state to be sent.
func (e *Engine) expireStale(ctx context.Context, propertyID uuid.UUID, now time.Time, stats *TickStats) {
	stale, err := e.repo.GetExpiredSentOffers(ctx, propertyID, now)
	if err != nil {
		e.logger.Error("failed to load stale offers", "property_id", propertyID, "error", err)
		return
	}

	for _, offer := range stale {
		ok, err := e.repo.MarkOfferExpired(ctx, offer.ID, now)
		if err != nil {
			e.logger.Error("failed to expire offer", "offer_id", offer.ID, "error", err)
			continue
		}
		if !ok {
			e.logger.Info("offer no longer expirable, skipping", "offer_id", offer.ID)
			continue
		}
		stats.Expired++
		offer.Status = domain.OfferStatusExpired
		e.publish(ctx, "offer.expired", offer, now)
	}
}

// HandleGuestReply classifies an inbound guest message against the guest's
// most recently sent outstanding offer. Returns the confirmation text to
// relay back to the guest, or "" when the message is not an upsell reply and
// should be routed elsewhere.
func (e *Engine) HandleGuestReply(ctx context.Context, guestAddress, text string, receivedAt time.Time) (string, error) {
	verdict := Classify(text)
	if verdict == VerdictNone {
		return "", nil
	}

	offer, err := e.repo.FindLatestSentOffer(ctx, guestAddress)
	if err != nil {
		return "", fmt.Errorf("load outstanding offer for guest: %w", err)
	}
	if offer == nil {
		// The guest said yes or no, but not to an offer of ours.
		return "", nil
	}

	status := domain.OfferStatusAccepted
	if verdict == VerdictDecline {
		status = domain.OfferStatusDeclined
	}

	ok, err := e.repo.MarkOfferResponded(ctx, offer.ID, status, text, receivedAt)
	if err != nil {
		return "", fmt.Errorf("record guest response: %w", err)
	}
	if !ok {
		// Raced with the expiry sweeper or a duplicate webhook delivery.
		e.logger.Info("offer no longer awaiting response, ignoring reply", "offer_id", offer.ID)
		return "", nil
	}

	routingKey := "offer.accepted"
	if status == domain.OfferStatusDeclined {
		routingKey = "offer.declined"
	}
	offer.Status = status
	e.publish(ctx, routingKey, *offer, receivedAt)

	return confirmationMessage(*offer, verdict), nil
}

// confirmationMessage builds the guest-facing acknowledgment for a
// classified reply.
func confirmationMessage(offer domain.UpsellOffer, verdict Verdict) string {
	if verdict == VerdictDecline {
		return "No problem at all, thanks for letting us know. Enjoy your stay!"
	}
	if offer.Price != nil && *offer.Price > 0 {
		return fmt.Sprintf("Great, that's booked! %s has been added to your stay. See you soon.", formatMoney(offer.Price, offer.Currency))
	}
	if offer.Type == domain.OfferTypeStayExtension {
		return "Great! We'll confirm the extension dates and pricing with you shortly."
	}
	return "Great, that's confirmed. Thank you!"
}

func (e *Engine) publish(ctx context.Context, routingKey string, offer domain.UpsellOffer, occurredAt time.Time) {
	if e.events == nil {
		return
	}
	event := domain.OfferEvent{
		OfferID:    offer.ID,
		PropertyID: offer.PropertyID,
		BookingID:  offer.BookingID,
		Type:       offer.Type,
		Status:     offer.Status,
		OccurredAt: occurredAt,
	}
	if err := e.events.Publish(ctx, routingKey, event); err != nil {
		e.logger.Error("failed to publish offer event", "routing_key", routingKey, "offer_id", offer.ID, "error", err)
	}
}
