/**
 * @description
 * Deterministic guest-facing message rendering, one template per offer type.
 * Rendering is pure and total: unknown offer types fall back to a generic
 * yes/no prompt instead of failing the dispatch pass.
 */

package app

import (
	"fmt"
	"strings"

	"github.com/hoststack/upsell-service/internal/domain"
)

const offerTimeFormat = "Mon, Jan 2 at 15:04"

// RenderOfferMessage returns the outgoing text for an offer.
func RenderOfferMessage(offer domain.UpsellOffer) string {
	switch offer.Type {
	case domain.OfferTypeLateCheckout:
		return renderLateCheckout(offer)
	case domain.OfferTypeEarlyCheckin:
		return renderEarlyCheckin(offer)
	case domain.OfferTypeGapNight:
		return renderGapNight(offer)
	case domain.OfferTypeStayExtension:
		return renderStayExtension(offer)
	case domain.OfferTypeReviewRequest:
		return renderReviewRequest(offer)
	}
	return "You have a new offer from your host. Reply YES to accept or NO to decline."
}

func renderLateCheckout(offer domain.UpsellOffer) string {
	hours := 0
	if offer.Details.MaxHours != nil {
		hours = *offer.Details.MaxHours
	}
	checkout := ""
	if offer.Details.NewCheckoutAt != nil {
		checkout = offer.Details.NewCheckoutAt.Format(offerTimeFormat)
	}
	return fmt.Sprintf(
		"Enjoying your stay? You can keep your room for up to %d extra hours (checkout by %s) for %s. Reply YES to book or NO to pass.",
		hours, checkout, formatMoney(offer.Price, offer.Currency),
	)
}

func renderEarlyCheckin(offer domain.UpsellOffer) string {
	hours := 0
	if offer.Details.MaxHours != nil {
		hours = *offer.Details.MaxHours
	}
	checkin := ""
	if offer.Details.NewCheckinAt != nil {
		checkin = offer.Details.NewCheckinAt.Format(offerTimeFormat)
	}
	return fmt.Sprintf(
		"Want to start your stay earlier? You can check in from %s, up to %d hours before the standard time, for %s. Reply YES to book or NO to pass.",
		checkin, hours, formatMoney(offer.Price, offer.Currency),
	)
}

func renderGapNight(offer domain.UpsellOffer) string {
	nights := 0
	if offer.Details.GapNights != nil {
		nights = *offer.Details.GapNights
	}
	discount := 0
	if offer.Details.DiscountPct != nil {
		discount = *offer.Details.DiscountPct
	}
	nightly := "-"
	if offer.Details.NightlyPrice != nil {
		nightly = formatMoney(offer.Details.NightlyPrice, offer.Currency)
	}
	return fmt.Sprintf(
		"Good news: the calendar after your stay is open. Stay %d extra night(s) at %d%% off: %s per night, %s total. Reply YES to book or NO to pass.",
		nights, discount, nightly, formatMoney(offer.Price, offer.Currency),
	)
}

func renderStayExtension(offer domain.UpsellOffer) string {
	discount := 0
	if offer.Details.DiscountPct != nil {
		discount = *offer.Details.DiscountPct
	}
	return fmt.Sprintf(
		"Thinking about staying longer? Extend your stay and get %d%% off the additional nights. Reply YES if you are interested or NO to pass.",
		discount,
	)
}

func renderReviewRequest(offer domain.UpsellOffer) string {
	return fmt.Sprintf(
		"Thanks for staying with us! If you enjoyed your visit, we would love a review: %s",
		strings.Join(offer.Details.ReviewLinks, ", "),
	)
}

// formatMoney renders a minor-unit amount as e.g. "45.00 USD".
func formatMoney(amount *int64, currency string) string {
	if amount == nil {
		return "-"
	}
	return fmt.Sprintf("%d.%02d %s", *amount/100, *amount%100, currency)
}
