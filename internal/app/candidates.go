/**
 * @description
 * Candidate generation: for one property's enabled configuration and its
 * confirmed bookings, compute the set of offer drafts that should exist this
 * tick. Generation is pure; persistence and de-duplication happen in the
 * store's guarded insert.
 *
 * @notes
 * - An enabled offer type with missing pricing parameters is skipped for
 *   that booking; the other types still generate.
 * - Drafts whose computed send time is not in the future are discarded, so
 *   the engine never schedules into the past.
 */

package app

import (
	"time"

	"github.com/google/uuid"

	"github.com/hoststack/upsell-service/internal/domain"
)

// GenerateCandidates produces the offer drafts for one property. Bookings
// must be confirmed and sorted ascending by check-in. No side effects.
func GenerateCandidates(snap domain.PropertySnapshot, bookings []domain.Booking, now time.Time) []domain.UpsellOffer {
	if !snap.Config.Enabled {
		return nil
	}

	var drafts []domain.UpsellOffer
	for _, booking := range bookings {
		if booking.Status != domain.BookingStatusConfirmed {
			continue
		}
		if booking.GuestAddress == "" || booking.CheckIn.IsZero() || booking.CheckOut.IsZero() {
			// Data error on this booking; the other bookings still generate.
			continue
		}

		if draft, ok := lateCheckoutDraft(snap, booking, now); ok {
			drafts = append(drafts, draft)
		}
		if draft, ok := earlyCheckinDraft(snap, booking, now); ok {
			drafts = append(drafts, draft)
		}
		if draft, ok := stayExtensionDraft(snap, booking, now); ok {
			drafts = append(drafts, draft)
		}
		if draft, ok := reviewRequestDraft(snap, booking, now); ok {
			drafts = append(drafts, draft)
		}
	}

	if snap.Config.GapNightEnabled {
		for _, gap := range DetectGaps(bookings, snap.Config.GapNightMaxNights) {
			if draft, ok := gapNightDraft(snap, gap, now); ok {
				drafts = append(drafts, draft)
			}
		}
	}

	return drafts
}

func lateCheckoutDraft(snap domain.PropertySnapshot, booking domain.Booking, now time.Time) (domain.UpsellOffer, bool) {
	cfg := snap.Config
	if !cfg.LateCheckoutEnabled || cfg.LateCheckoutPricePerHour <= 0 || cfg.LateCheckoutMaxHours <= 0 {
		return domain.UpsellOffer{}, false
	}

	scheduledAt := booking.CheckOut.Add(-time.Duration(cfg.LateCheckoutSendHoursBefore) * time.Hour)
	if !scheduledAt.After(now) {
		return domain.UpsellOffer{}, false
	}

	price := cfg.LateCheckoutPricePerHour * int64(cfg.LateCheckoutMaxHours)
	maxHours := cfg.LateCheckoutMaxHours
	newCheckout := booking.CheckOut.Add(time.Duration(maxHours) * time.Hour)

	return newDraft(snap, booking, domain.OfferTypeLateCheckout, &price, scheduledAt, domain.OfferDetails{
		MaxHours:      &maxHours,
		NewCheckoutAt: &newCheckout,
	}), true
}

func earlyCheckinDraft(snap domain.PropertySnapshot, booking domain.Booking, now time.Time) (domain.UpsellOffer, bool) {
	cfg := snap.Config
	if !cfg.EarlyCheckinEnabled || cfg.EarlyCheckinPricePerHour <= 0 || cfg.EarlyCheckinMaxHours <= 0 {
		return domain.UpsellOffer{}, false
	}

	scheduledAt := booking.CheckIn.Add(-time.Duration(cfg.EarlyCheckinSendHoursBefore) * time.Hour)
	if !scheduledAt.After(now) {
		return domain.UpsellOffer{}, false
	}

	price := cfg.EarlyCheckinPricePerHour * int64(cfg.EarlyCheckinMaxHours)
	maxHours := cfg.EarlyCheckinMaxHours
	// The advertised new check-in is the standard one shifted back by the
	// maximum purchasable hours.
	newCheckin := booking.CheckIn.Add(-time.Duration(maxHours) * time.Hour)

	return newDraft(snap, booking, domain.OfferTypeEarlyCheckin, &price, scheduledAt, domain.OfferDetails{
		MaxHours:     &maxHours,
		NewCheckinAt: &newCheckin,
	}), true
}

func stayExtensionDraft(snap domain.PropertySnapshot, booking domain.Booking, now time.Time) (domain.UpsellOffer, bool) {
	cfg := snap.Config
	if !cfg.StayExtensionEnabled || cfg.StayExtensionDiscountPct <= 0 {
		return domain.UpsellOffer{}, false
	}

	scheduledAt := booking.CheckOut.Add(-time.Duration(cfg.StayExtensionSendHoursBefore) * time.Hour)
	if !scheduledAt.After(now) {
		return domain.UpsellOffer{}, false
	}

	discount := cfg.StayExtensionDiscountPct
	// Price is computed at acceptance time, once the length of the extension
	// is known; the draft carries only the discount.
	return newDraft(snap, booking, domain.OfferTypeStayExtension, nil, scheduledAt, domain.OfferDetails{
		DiscountPct: &discount,
	}), true
}

func reviewRequestDraft(snap domain.PropertySnapshot, booking domain.Booking, now time.Time) (domain.UpsellOffer, bool) {
	cfg := snap.Config
	if !cfg.ReviewRequestEnabled || len(cfg.ReviewLinks) == 0 {
		return domain.UpsellOffer{}, false
	}

	scheduledAt := booking.CheckOut.Add(time.Duration(cfg.ReviewRequestSendHoursAfter) * time.Hour)
	if !scheduledAt.After(now) {
		return domain.UpsellOffer{}, false
	}

	var price int64 = 0
	links := append([]string(nil), cfg.ReviewLinks...)

	return newDraft(snap, booking, domain.OfferTypeReviewRequest, &price, scheduledAt, domain.OfferDetails{
		ReviewLinks: links,
	}), true
}

func gapNightDraft(snap domain.PropertySnapshot, gap GapCandidate, now time.Time) (domain.UpsellOffer, bool) {
	cfg := snap.Config
	if cfg.GapNightBasePrice <= 0 || gap.Departing.GuestAddress == "" {
		return domain.UpsellOffer{}, false
	}

	scheduledAt := gap.GapStart.AddDate(0, 0, -cfg.GapNightSendDaysBefore)
	if !scheduledAt.After(now) {
		return domain.UpsellOffer{}, false
	}

	nightly := cfg.GapNightBasePrice * int64(100-cfg.GapNightDiscountPct) / 100
	total := nightly * int64(gap.Nights)
	nights := gap.Nights
	discount := cfg.GapNightDiscountPct
	gapStart := gap.GapStart
	gapEnd := gap.GapEnd

	return newDraft(snap, gap.Departing, domain.OfferTypeGapNight, &total, scheduledAt, domain.OfferDetails{
		GapStart:     &gapStart,
		GapEnd:       &gapEnd,
		GapNights:    &nights,
		NightlyPrice: &nightly,
		DiscountPct:  &discount,
	}), true
}

func newDraft(snap domain.PropertySnapshot, booking domain.Booking, offerType domain.OfferType, price *int64, scheduledAt time.Time, details domain.OfferDetails) domain.UpsellOffer {
	return domain.UpsellOffer{
		ID:           uuid.New(),
		PropertyID:   snap.Property.ID,
		BookingID:    booking.ID,
		Type:         offerType,
		Status:       domain.OfferStatusScheduled,
		Price:        price,
		Currency:     snap.Config.Currency,
		Details:      details,
		GuestAddress: booking.GuestAddress,
		Channel:      domain.ChannelForAddress(booking.GuestAddress),
		ScheduledAt:  scheduledAt,
	}
}
