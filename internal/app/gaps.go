/**
 * @description
 * Gap detection over a property's confirmed booking timeline. A gap is a
 * vacancy window of whole nights between two consecutive bookings, eligible
 * to be sold to the departing guest as extra nights.
 */

package app

import (
	"time"

	"github.com/hoststack/upsell-service/internal/domain"
)

// GapCandidate is a vacancy window between two consecutive confirmed
// bookings, keyed to the departing booking.
type GapCandidate struct {
	Departing domain.Booking
	GapStart  time.Time // the departing booking's check-out
	GapEnd    time.Time // the next booking's check-in
	Nights    int
}

// DetectGaps walks consecutive booking pairs and emits one candidate per gap
// of 1..maxNights whole nights. Bookings must be sorted ascending by
// check-in. Overlapping or same-day turnovers produce nothing. The result is
// recomputed fresh each tick; bookings can change between ticks.
func DetectGaps(bookings []domain.Booking, maxNights int) []GapCandidate {
	if len(bookings) < 2 || maxNights < 1 {
		return nil
	}

	var candidates []GapCandidate
	for i := 0; i < len(bookings)-1; i++ {
		current := bookings[i]
		next := bookings[i+1]

		nights := wholeNights(current.CheckOut, next.CheckIn)
		if nights < 1 || nights > maxNights {
			continue
		}

		candidates = append(candidates, GapCandidate{
			Departing: current,
			GapStart:  current.CheckOut,
			GapEnd:    next.CheckIn,
			Nights:    nights,
		})
	}
	return candidates
}

// wholeNights returns the number of complete nights between two instants,
// or 0 when `to` is not after `from`.
func wholeNights(from, to time.Time) int {
	if !to.After(from) {
		return 0
	}
	return int(to.Sub(from).Hours() / 24)
}
