/**
 * @description
 * Persistence for the offer state machine. Creation is guarded against
 * non-terminal duplicates per (booking id, offer type) and every status
 * transition is a conditional UPDATE from its required starting state, so
 * overlapping ticks and concurrent sweepers stay safe.
 *
 * @notes
 * - The duplicate guard is backed by a partial unique index on
 *   (booking_id, offer_type) WHERE status IN ('scheduled', 'sent'); a
 *   unique-violation from a concurrent insert is reported as a duplicate,
 *   not an error.
 */

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hoststack/upsell-service/internal/domain"
)

const uniqueViolationCode = "23505"

const offerColumns = `
    id, property_id, booking_id, offer_type, status, price, currency, details,
    guest_address, channel, scheduled_at, sent_at, expires_at, message_text,
    guest_reply, responded_at, send_attempts, created_at, updated_at
`

// ScheduleOffer inserts a draft as 'scheduled' unless a non-terminal offer
// with the same (booking id, offer type) already exists. Returns false on
// duplicate. This is what makes re-running candidate generation every tick a
// reconciliation instead of an accumulation.
func (r *Repository) ScheduleOffer(ctx context.Context, offer *domain.UpsellOffer) (bool, error) {
	details, err := json.Marshal(offer.Details)
	if err != nil {
		return false, fmt.Errorf("marshal offer details: %w", err)
	}

	query := `
        INSERT INTO upsell_offers (
            id, property_id, booking_id, offer_type, status, price, currency, details,
            guest_address, channel, scheduled_at, send_attempts, created_at, updated_at
        )
        SELECT $1, $2, $3, $4, 'scheduled', $5, $6, $7, $8, $9, $10, 0, NOW(), NOW()
        WHERE NOT EXISTS (
            SELECT 1 FROM upsell_offers
            WHERE booking_id = $3
              AND offer_type = $4
              AND status IN ('scheduled', 'sent')
        )
    `
	tag, err := r.db.Exec(ctx, query,
		offer.ID, offer.PropertyID, offer.BookingID, offer.Type,
		offer.Price, offer.Currency, details,
		offer.GuestAddress, offer.Channel, offer.ScheduledAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return false, nil
		}
		return false, fmt.Errorf("insert offer: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// GetDueOffers fetches all scheduled offers for a property whose send time
// has arrived.
func (r *Repository) GetDueOffers(ctx context.Context, propertyID uuid.UUID, now time.Time) ([]domain.UpsellOffer, error) {
	query := `
        SELECT ` + offerColumns + `
        FROM upsell_offers
        WHERE property_id = $1
          AND status = 'scheduled'
          AND scheduled_at <= $2
        ORDER BY scheduled_at ASC
    `
	return r.queryOffers(ctx, query, propertyID, now)
}

// GetExpiredSentOffers fetches all sent offers for a property whose expiry
// deadline has passed without a response.
func (r *Repository) GetExpiredSentOffers(ctx context.Context, propertyID uuid.UUID, now time.Time) ([]domain.UpsellOffer, error) {
	query := `
        SELECT ` + offerColumns + `
        FROM upsell_offers
        WHERE property_id = $1
          AND status = 'sent'
          AND expires_at < $2
        ORDER BY expires_at ASC
    `
	return r.queryOffers(ctx, query, propertyID, now)
}

// FindLatestSentOffer returns the guest address's most recently sent
// outstanding offer, or nil when there is none. A guest with several
// outstanding offers is matched against the latest one only.
func (r *Repository) FindLatestSentOffer(ctx context.Context, guestAddress string) (*domain.UpsellOffer, error) {
	query := `
        SELECT ` + offerColumns + `
        FROM upsell_offers
        WHERE guest_address = $1
          AND status = 'sent'
        ORDER BY sent_at DESC
        LIMIT 1
    `
	row := r.db.QueryRow(ctx, query, guestAddress)
	offer, err := scanOffer(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return offer, nil
}

// MarkOfferSent moves an offer from scheduled to sent, stamping the sent
// time, the expiry deadline, and the literal outgoing text for audit. The
// guard makes the transition a no-op from any other state.
func (r *Repository) MarkOfferSent(ctx context.Context, offerID uuid.UUID, sentAt, expiresAt time.Time, messageText string) (bool, error) {
	query := `
        UPDATE upsell_offers
        SET status = 'sent',
            sent_at = $2,
            expires_at = $3,
            message_text = $4,
            updated_at = NOW()
        WHERE id = $1
          AND status = 'scheduled'
    `
	tag, err := r.db.Exec(ctx, query, offerID, sentAt, expiresAt, messageText)
	if err != nil {
		return false, fmt.Errorf("mark offer sent: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkOfferResponded moves a sent offer to accepted or declined, recording
// the raw guest reply.
func (r *Repository) MarkOfferResponded(ctx context.Context, offerID uuid.UUID, status domain.OfferStatus, rawReply string, respondedAt time.Time) (bool, error) {
	if status != domain.OfferStatusAccepted && status != domain.OfferStatusDeclined {
		return false, fmt.Errorf("invalid response status %q", status)
	}

	query := `
        UPDATE upsell_offers
        SET status = $2,
            guest_reply = $3,
            responded_at = $4,
            updated_at = NOW()
        WHERE id = $1
          AND status = 'sent'
    `
	tag, err := r.db.Exec(ctx, query, offerID, status, rawReply, respondedAt)
	if err != nil {
		return false, fmt.Errorf("mark offer responded: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkOfferExpired moves a sent offer past its expiry deadline to expired.
func (r *Repository) MarkOfferExpired(ctx context.Context, offerID uuid.UUID, now time.Time) (bool, error) {
	query := `
        UPDATE upsell_offers
        SET status = 'expired',
            updated_at = NOW()
        WHERE id = $1
          AND status = 'sent'
          AND expires_at < $2
    `
	tag, err := r.db.Exec(ctx, query, offerID, now)
	if err != nil {
		return false, fmt.Errorf("mark offer expired: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// RecordSendFailure increments the offer's attempt counter after a failed
// dispatch. The offer stays scheduled; the next tick retries it.
func (r *Repository) RecordSendFailure(ctx context.Context, offerID uuid.UUID) error {
	query := `
        UPDATE upsell_offers
        SET send_attempts = send_attempts + 1,
            updated_at = NOW()
        WHERE id = $1
          AND status = 'scheduled'
    `
	_, err := r.db.Exec(ctx, query, offerID)
	if err != nil {
		return fmt.Errorf("record send failure: %w", err)
	}
	return nil
}

func (r *Repository) queryOffers(ctx context.Context, query string, args ...any) ([]domain.UpsellOffer, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query offers: %w", err)
	}
	defer rows.Close()

	var offers []domain.UpsellOffer
	for rows.Next() {
		offer, err := scanOffer(rows)
		if err != nil {
			return nil, err
		}
		offers = append(offers, *offer)
	}
	return offers, rows.Err()
}

func scanOffer(row pgx.Row) (*domain.UpsellOffer, error) {
	var offer domain.UpsellOffer
	var details []byte
	err := row.Scan(
		&offer.ID, &offer.PropertyID, &offer.BookingID, &offer.Type, &offer.Status,
		&offer.Price, &offer.Currency, &details,
		&offer.GuestAddress, &offer.Channel, &offer.ScheduledAt,
		&offer.SentAt, &offer.ExpiresAt, &offer.MessageText,
		&offer.GuestReply, &offer.RespondedAt, &offer.SendAttempts,
		&offer.CreatedAt, &offer.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(details) > 0 {
		if err := json.Unmarshal(details, &offer.Details); err != nil {
			return nil, fmt.Errorf("unmarshal offer details: %w", err)
		}
	}
	return &offer, nil
}
