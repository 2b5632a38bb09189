/**
 * @description
 * Data access layer for the upsell engine: reads of properties, configs and
 * bookings. The tables are owned by the platform's schema management; this
 * service only consumes them.
 */

package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hoststack/upsell-service/internal/domain"
)

// Repository handles database operations for the upsell engine.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// GetEnabledProperties fetches every property whose upsell configuration is
// enabled, together with a snapshot of that configuration. The snapshot is
// taken once per tick; nothing inside a tick re-reads config.
func (r *Repository) GetEnabledProperties(ctx context.Context) ([]domain.PropertySnapshot, error) {
	query := `
        SELECT p.id, p.name,
               c.enabled, c.currency,
               c.late_checkout_enabled, c.late_checkout_price_per_hour, c.late_checkout_max_hours, c.late_checkout_send_hours_before,
               c.early_checkin_enabled, c.early_checkin_price_per_hour, c.early_checkin_max_hours, c.early_checkin_send_hours_before,
               c.gap_night_enabled, c.gap_night_base_price, c.gap_night_discount_pct, c.gap_night_max_nights, c.gap_night_send_days_before,
               c.stay_extension_enabled, c.stay_extension_discount_pct, c.stay_extension_send_hours_before,
               c.review_request_enabled, c.review_request_send_hours_after, c.review_links
        FROM properties p
        JOIN upsell_configs c ON c.property_id = p.id
        WHERE c.enabled = TRUE
        ORDER BY p.id
    `
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query enabled properties: %w", err)
	}
	defer rows.Close()

	var snapshots []domain.PropertySnapshot
	for rows.Next() {
		var snap domain.PropertySnapshot
		cfg := &snap.Config
		err := rows.Scan(
			&snap.Property.ID, &snap.Property.Name,
			&cfg.Enabled, &cfg.Currency,
			&cfg.LateCheckoutEnabled, &cfg.LateCheckoutPricePerHour, &cfg.LateCheckoutMaxHours, &cfg.LateCheckoutSendHoursBefore,
			&cfg.EarlyCheckinEnabled, &cfg.EarlyCheckinPricePerHour, &cfg.EarlyCheckinMaxHours, &cfg.EarlyCheckinSendHoursBefore,
			&cfg.GapNightEnabled, &cfg.GapNightBasePrice, &cfg.GapNightDiscountPct, &cfg.GapNightMaxNights, &cfg.GapNightSendDaysBefore,
			&cfg.StayExtensionEnabled, &cfg.StayExtensionDiscountPct, &cfg.StayExtensionSendHoursBefore,
			&cfg.ReviewRequestEnabled, &cfg.ReviewRequestSendHoursAfter, &cfg.ReviewLinks,
		)
		if err != nil {
			return nil, fmt.Errorf("scan property snapshot: %w", err)
		}
		cfg.PropertyID = snap.Property.ID
		snapshots = append(snapshots, snap)
	}
	return snapshots, rows.Err()
}

// GetConfirmedBookings fetches a property's confirmed bookings ordered
// ascending by check-in, the order the gap detector requires.
func (r *Repository) GetConfirmedBookings(ctx context.Context, propertyID uuid.UUID) ([]domain.Booking, error) {
	query := `
        SELECT id, property_id, guest_address, check_in, check_out, status
        FROM bookings
        WHERE property_id = $1
          AND status = 'confirmed'
        ORDER BY check_in ASC
    `
	rows, err := r.db.Query(ctx, query, propertyID)
	if err != nil {
		return nil, fmt.Errorf("query confirmed bookings: %w", err)
	}
	defer rows.Close()

	var bookings []domain.Booking
	for rows.Next() {
		var b domain.Booking
		if err := rows.Scan(&b.ID, &b.PropertyID, &b.GuestAddress, &b.CheckIn, &b.CheckOut, &b.Status); err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}
