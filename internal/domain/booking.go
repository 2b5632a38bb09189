/**
 * @description
 * Read-only inputs to the upsell engine: properties, their upsell
 * configuration, and the bookings produced by the external calendar sync.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// BookingStatusConfirmed is the only booking status the engine acts on.
const BookingStatusConfirmed = "confirmed"

// Property represents a rental unit owned by a host account.
type Property struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// UpsellConfig holds the per-property offer flags and parameters. It is
// edited by the host dashboard and read-only here.
type UpsellConfig struct {
	PropertyID uuid.UUID `json:"property_id"`
	Enabled    bool      `json:"enabled"`
	Currency   string    `json:"currency"`

	LateCheckoutEnabled         bool  `json:"late_checkout_enabled"`
	LateCheckoutPricePerHour    int64 `json:"late_checkout_price_per_hour"` // in cents
	LateCheckoutMaxHours        int   `json:"late_checkout_max_hours"`
	LateCheckoutSendHoursBefore int   `json:"late_checkout_send_hours_before"`

	EarlyCheckinEnabled         bool  `json:"early_checkin_enabled"`
	EarlyCheckinPricePerHour    int64 `json:"early_checkin_price_per_hour"` // in cents
	EarlyCheckinMaxHours        int   `json:"early_checkin_max_hours"`
	EarlyCheckinSendHoursBefore int   `json:"early_checkin_send_hours_before"`

	GapNightEnabled        bool  `json:"gap_night_enabled"`
	GapNightBasePrice      int64 `json:"gap_night_base_price"` // per night, in cents
	GapNightDiscountPct    int   `json:"gap_night_discount_pct"`
	GapNightMaxNights      int   `json:"gap_night_max_nights"`
	GapNightSendDaysBefore int   `json:"gap_night_send_days_before"`

	StayExtensionEnabled         bool `json:"stay_extension_enabled"`
	StayExtensionDiscountPct     int  `json:"stay_extension_discount_pct"`
	StayExtensionSendHoursBefore int  `json:"stay_extension_send_hours_before"`

	ReviewRequestEnabled       bool     `json:"review_request_enabled"`
	ReviewRequestSendHoursAfter int     `json:"review_request_send_hours_after"`
	ReviewLinks                []string `json:"review_links"`
}

// PropertySnapshot is the read-only view of a property and its configuration
// taken at the start of a tick. The orchestrator owns refreshing it; nothing
// inside a tick re-reads config.
type PropertySnapshot struct {
	Property Property
	Config   UpsellConfig
}

// Booking represents a confirmed guest reservation from the calendar sync.
type Booking struct {
	ID           uuid.UUID `json:"id"`
	PropertyID   uuid.UUID `json:"property_id"`
	GuestAddress string    `json:"guest_address"`
	CheckIn      time.Time `json:"check_in"`
	CheckOut     time.Time `json:"check_out"`
	Status       string    `json:"status"`
}
