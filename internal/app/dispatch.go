/**
 * @description
 * The dispatch pass: render and send every due scheduled offer over its
 * stored channel, then mark it sent with its expiry deadline. A failed or
 * timed-out send leaves the offer scheduled; the next tick's due-set retries
 * it implicitly.
 */

package app

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hoststack/upsell-service/internal/domain"
)

// dispatchDue sends all scheduled offers whose send time has arrived. One
// unresponsive guest endpoint cannot stall the pass: each transport call is
// bounded by the configured per-send timeout.
func (e *Engine) dispatchDue(ctx context.Context, propertyID uuid.UUID, now time.Time, stats *TickStats) {
	due, err := e.repo.GetDueOffers(ctx, propertyID, now)
	if err != nil {
		e.logger.Error("failed to load due offers", "property_id", propertyID, "error", err)
		return
	}

	for _, offer := range due {
		text := RenderOfferMessage(offer)

		transport, ok := e.transports[offer.Channel]
		if !ok || transport == nil {
			e.logger.Error("no transport for channel", "offer_id", offer.ID, "channel", offer.Channel)
			continue
		}

		sendCtx, cancel := context.WithTimeout(ctx, e.sendTimeout)
		err := transport.Send(sendCtx, offer.GuestAddress, text)
		cancel()
		if err != nil {
			e.logger.Error("send failed, offer stays scheduled for retry",
				"offer_id", offer.ID, "channel", offer.Channel, "attempts", offer.SendAttempts+1, "error", err)
			if recErr := e.repo.RecordSendFailure(ctx, offer.ID); recErr != nil {
				e.logger.Error("failed to record send failure", "offer_id", offer.ID, "error", recErr)
			}
			stats.SendFailures++
			continue
		}

		expiresAt := now.Add(e.expiryWindow)
		marked, err := e.repo.MarkOfferSent(ctx, offer.ID, now, expiresAt, text)
		if err != nil {
			e.logger.Error("failed to mark offer sent", "offer_id", offer.ID, "error", err)
			continue
		}
		if !marked {
			// Another worker got there first; the transport is at-least-once.
			e.logger.Info("offer no longer scheduled, skipping sent mark", "offer_id", offer.ID)
			continue
		}

		stats.Sent++
		offer.Status = domain.OfferStatusSent
		e.publish(ctx, "offer.sent", offer, now)
	}
}
