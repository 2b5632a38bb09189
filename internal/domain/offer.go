/**
 * @description
 * This file defines the central mutable entity of the upsell engine: the
 * UpsellOffer, together with its type, status, and delivery channel enums and
 * the lifecycle transition table.
 *
 * @notes
 * - Prices are stored as `int64` in the smallest currency unit (cents) to
 *   avoid floating-point inaccuracies with money.
 * - `ValidTransition` is the single source of truth for the offer state
 *   machine; the guarded UPDATE statements in the store mirror it.
 */

package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// OfferType identifies one of the monetizable guest propositions.
type OfferType string

const (
	OfferTypeLateCheckout  OfferType = "late_checkout"
	OfferTypeEarlyCheckin  OfferType = "early_checkin"
	OfferTypeGapNight      OfferType = "gap_night"
	OfferTypeStayExtension OfferType = "stay_extension"
	OfferTypeReviewRequest OfferType = "review_request"
)

// OfferStatus is the lifecycle state of an offer.
// scheduled -> sent -> {accepted | declined | expired}
type OfferStatus string

const (
	OfferStatusScheduled OfferStatus = "scheduled"
	OfferStatusSent      OfferStatus = "sent"
	OfferStatusAccepted  OfferStatus = "accepted"
	OfferStatusDeclined  OfferStatus = "declined"
	OfferStatusExpired   OfferStatus = "expired"
)

// Terminal reports whether an offer in this status is immutable.
func (s OfferStatus) Terminal() bool {
	switch s {
	case OfferStatusAccepted, OfferStatusDeclined, OfferStatusExpired:
		return true
	}
	return false
}

// ValidTransition reports whether the state machine permits moving an offer
// from one status to another. Everything not listed here is a no-op for the
// store's guarded updates.
func ValidTransition(from, to OfferStatus) bool {
	switch from {
	case OfferStatusScheduled:
		return to == OfferStatusSent
	case OfferStatusSent:
		return to == OfferStatusAccepted || to == OfferStatusDeclined || to == OfferStatusExpired
	}
	return false
}

// Channel is the messaging transport an offer is delivered through.
type Channel string

const (
	ChannelChatApp Channel = "chat_app"
	ChannelSMS     Channel = "sms"
)

// ChatAddressPrefix is the reserved prefix that marks a guest contact address
// as a chat-app handle; anything else is treated as a raw phone number.
const ChatAddressPrefix = "chat:"

// ChannelForAddress classifies a guest contact address into a delivery
// channel. The decision is made once at candidate-generation time and stored
// on the offer, so dispatch never re-derives it.
func ChannelForAddress(address string) Channel {
	if strings.HasPrefix(address, ChatAddressPrefix) {
		return ChannelChatApp
	}
	return ChannelSMS
}

// OfferDetails carries the type-specific payload of an offer. It is persisted
// as JSONB; only the fields relevant to the offer's type are populated.
type OfferDetails struct {
	GapStart      *time.Time `json:"gap_start,omitempty"`
	GapEnd        *time.Time `json:"gap_end,omitempty"`
	GapNights     *int       `json:"gap_nights,omitempty"`
	NightlyPrice  *int64     `json:"nightly_price,omitempty"`  // in cents
	DiscountPct   *int       `json:"discount_pct,omitempty"`
	MaxHours      *int       `json:"max_hours,omitempty"`
	NewCheckoutAt *time.Time `json:"new_checkout_at,omitempty"`
	NewCheckinAt  *time.Time `json:"new_checkin_at,omitempty"`
	ReviewLinks   []string   `json:"review_links,omitempty"`
}

// UpsellOffer maps directly to the `upsell_offers` table.
type UpsellOffer struct {
	ID           uuid.UUID    `json:"id"`
	PropertyID   uuid.UUID    `json:"property_id"`
	BookingID    uuid.UUID    `json:"booking_id"`
	Type         OfferType    `json:"offer_type"`
	Status       OfferStatus  `json:"status"`
	Price        *int64       `json:"price,omitempty"` // in cents; nil for types priced at acceptance time
	Currency     string       `json:"currency"`
	Details      OfferDetails `json:"details"`
	GuestAddress string       `json:"guest_address"`
	Channel      Channel      `json:"channel"`
	ScheduledAt  time.Time    `json:"scheduled_at"`
	SentAt       *time.Time   `json:"sent_at,omitempty"`
	ExpiresAt    *time.Time   `json:"expires_at,omitempty"`
	MessageText  *string      `json:"message_text,omitempty"`
	GuestReply   *string      `json:"guest_reply,omitempty"`
	RespondedAt  *time.Time   `json:"responded_at,omitempty"`
	SendAttempts int          `json:"send_attempts"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// OfferEvent is the payload published to the events exchange after each
// successful lifecycle transition.
type OfferEvent struct {
	OfferID    uuid.UUID   `json:"offer_id"`
	PropertyID uuid.UUID   `json:"property_id"`
	BookingID  uuid.UUID   `json:"booking_id"`
	Type       OfferType   `json:"offer_type"`
	Status     OfferStatus `json:"status"`
	OccurredAt time.Time   `json:"occurred_at"`
}
