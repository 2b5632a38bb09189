package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hoststack/upsell-service/internal/domain"
)

// fakeRepo is an in-memory Repository with the same guarded-transition
// semantics as the postgres implementation.
type fakeRepo struct {
	snapshots   []domain.PropertySnapshot
	bookings    map[uuid.UUID][]domain.Booking
	offers      map[uuid.UUID]*domain.UpsellOffer
	bookingErrs map[uuid.UUID]error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		bookings:    make(map[uuid.UUID][]domain.Booking),
		offers:      make(map[uuid.UUID]*domain.UpsellOffer),
		bookingErrs: make(map[uuid.UUID]error),
	}
}

func (f *fakeRepo) GetEnabledProperties(ctx context.Context) ([]domain.PropertySnapshot, error) {
	return f.snapshots, nil
}

func (f *fakeRepo) GetConfirmedBookings(ctx context.Context, propertyID uuid.UUID) ([]domain.Booking, error) {
	if err := f.bookingErrs[propertyID]; err != nil {
		return nil, err
	}
	return f.bookings[propertyID], nil
}

func (f *fakeRepo) ScheduleOffer(ctx context.Context, offer *domain.UpsellOffer) (bool, error) {
	for _, existing := range f.offers {
		if existing.BookingID == offer.BookingID && existing.Type == offer.Type && !existing.Status.Terminal() {
			return false, nil
		}
	}
	stored := *offer
	f.offers[offer.ID] = &stored
	return true, nil
}

func (f *fakeRepo) GetDueOffers(ctx context.Context, propertyID uuid.UUID, now time.Time) ([]domain.UpsellOffer, error) {
	var due []domain.UpsellOffer
	for _, o := range f.offers {
		if o.PropertyID == propertyID && o.Status == domain.OfferStatusScheduled && !o.ScheduledAt.After(now) {
			due = append(due, *o)
		}
	}
	return due, nil
}

func (f *fakeRepo) GetExpiredSentOffers(ctx context.Context, propertyID uuid.UUID, now time.Time) ([]domain.UpsellOffer, error) {
	var stale []domain.UpsellOffer
	for _, o := range f.offers {
		if o.PropertyID == propertyID && o.Status == domain.OfferStatusSent && o.ExpiresAt != nil && o.ExpiresAt.Before(now) {
			stale = append(stale, *o)
		}
	}
	return stale, nil
}

func (f *fakeRepo) FindLatestSentOffer(ctx context.Context, guestAddress string) (*domain.UpsellOffer, error) {
	var latest *domain.UpsellOffer
	for _, o := range f.offers {
		if o.GuestAddress != guestAddress || o.Status != domain.OfferStatusSent || o.SentAt == nil {
			continue
		}
		if latest == nil || o.SentAt.After(*latest.SentAt) {
			latest = o
		}
	}
	if latest == nil {
		return nil, nil
	}
	copied := *latest
	return &copied, nil
}

func (f *fakeRepo) MarkOfferSent(ctx context.Context, offerID uuid.UUID, sentAt, expiresAt time.Time, messageText string) (bool, error) {
	o, ok := f.offers[offerID]
	if !ok || !domain.ValidTransition(o.Status, domain.OfferStatusSent) {
		return false, nil
	}
	o.Status = domain.OfferStatusSent
	o.SentAt = &sentAt
	o.ExpiresAt = &expiresAt
	o.MessageText = &messageText
	return true, nil
}

func (f *fakeRepo) MarkOfferResponded(ctx context.Context, offerID uuid.UUID, status domain.OfferStatus, rawReply string, respondedAt time.Time) (bool, error) {
	o, ok := f.offers[offerID]
	if !ok || !domain.ValidTransition(o.Status, status) {
		return false, nil
	}
	o.Status = status
	o.GuestReply = &rawReply
	o.RespondedAt = &respondedAt
	return true, nil
}

func (f *fakeRepo) MarkOfferExpired(ctx context.Context, offerID uuid.UUID, now time.Time) (bool, error) {
	o, ok := f.offers[offerID]
	if !ok || o.Status != domain.OfferStatusSent || o.ExpiresAt == nil || !o.ExpiresAt.Before(now) {
		return false, nil
	}
	o.Status = domain.OfferStatusExpired
	return true, nil
}

func (f *fakeRepo) RecordSendFailure(ctx context.Context, offerID uuid.UUID) error {
	if o, ok := f.offers[offerID]; ok && o.Status == domain.OfferStatusScheduled {
		o.SendAttempts++
	}
	return nil
}

func (f *fakeRepo) singleOffer(t *testing.T) *domain.UpsellOffer {
	t.Helper()
	if len(f.offers) != 1 {
		t.Fatalf("expected exactly one offer in store, got %d", len(f.offers))
	}
	for _, o := range f.offers {
		return o
	}
	return nil
}

type fakeTransport struct {
	err  error
	sent []string
}

func (f *fakeTransport) Send(ctx context.Context, address, text string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, address+": "+text)
	return nil
}

func newTestEngine(repo Repository, chat, sms Transport) *Engine {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewEngine(repo, chat, sms, nil, logger, 24*time.Hour, 2*time.Second)
}

func lateCheckoutOnlySnapshot() domain.PropertySnapshot {
	snap := testSnapshot()
	snap.Config.EarlyCheckinEnabled = false
	snap.Config.GapNightEnabled = false
	snap.Config.StayExtensionEnabled = false
	snap.Config.ReviewRequestEnabled = false
	return snap
}

func TestRunTick_IdempotentReconciliation(t *testing.T) {
	repo := newFakeRepo()
	snap := lateCheckoutOnlySnapshot()
	booking := confirmedBooking(snap.Property.ID, "+4791000001", day(2026, time.April, 6, 15), day(2026, time.April, 10, 11))
	repo.bookings[snap.Property.ID] = []domain.Booking{booking}
	engine := newTestEngine(repo, &fakeTransport{}, &fakeTransport{})

	now := day(2026, time.April, 1, 9)

	first, err := engine.RunTick(context.Background(), snap, now)
	if err != nil {
		t.Fatalf("first tick failed: %v", err)
	}
	if first.Scheduled != 1 {
		t.Fatalf("expected 1 offer scheduled on first tick, got %d", first.Scheduled)
	}

	second, err := engine.RunTick(context.Background(), snap, now)
	if err != nil {
		t.Fatalf("second tick failed: %v", err)
	}
	if second.Scheduled != 0 {
		t.Fatalf("expected re-run to schedule nothing, got %d", second.Scheduled)
	}
	if len(repo.offers) != 1 {
		t.Fatalf("expected offer count to stay at 1, got %d", len(repo.offers))
	}
}

func TestRunTick_DispatchDueBoundary(t *testing.T) {
	sendTime := day(2026, time.April, 9, 23)
	cases := []struct {
		name     string
		now      time.Time
		wantSent bool
	}{
		{"one second early", sendTime.Add(-time.Second), false},
		{"exactly due", sendTime, true},
		{"one second late", sendTime.Add(time.Second), true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := newFakeRepo()
			snap := lateCheckoutOnlySnapshot()
			price := int64(4500)
			offer := domain.UpsellOffer{
				ID:           uuid.New(),
				PropertyID:   snap.Property.ID,
				BookingID:    uuid.New(),
				Type:         domain.OfferTypeLateCheckout,
				Status:       domain.OfferStatusScheduled,
				Price:        &price,
				Currency:     "USD",
				GuestAddress: "+4791000001",
				Channel:      domain.ChannelSMS,
				ScheduledAt:  sendTime,
			}
			repo.offers[offer.ID] = &offer
			sms := &fakeTransport{}
			engine := newTestEngine(repo, &fakeTransport{}, sms)

			stats, err := engine.RunTick(context.Background(), snap, tc.now)
			if err != nil {
				t.Fatalf("tick failed: %v", err)
			}
			if tc.wantSent && (stats.Sent != 1 || len(sms.sent) != 1) {
				t.Fatalf("expected offer to be sent at %v", tc.now)
			}
			if !tc.wantSent && (stats.Sent != 0 || len(sms.sent) != 0 || offer.Status != domain.OfferStatusScheduled) {
				t.Fatalf("expected offer to stay scheduled at %v", tc.now)
			}
		})
	}
}

func TestRunTick_SendFailureLeavesOfferScheduledForRetry(t *testing.T) {
	repo := newFakeRepo()
	snap := lateCheckoutOnlySnapshot()
	booking := confirmedBooking(snap.Property.ID, "+4791000001", day(2026, time.April, 6, 15), day(2026, time.April, 10, 11))
	repo.bookings[snap.Property.ID] = []domain.Booking{booking}
	sms := &fakeTransport{err: errors.New("gateway unavailable")}
	engine := newTestEngine(repo, &fakeTransport{}, sms)

	// First tick schedules; second tick at the due time fails to send.
	if _, err := engine.RunTick(context.Background(), snap, day(2026, time.April, 1, 9)); err != nil {
		t.Fatalf("scheduling tick failed: %v", err)
	}
	dueTime := booking.CheckOut.Add(-12 * time.Hour)
	stats, err := engine.RunTick(context.Background(), snap, dueTime)
	if err != nil {
		t.Fatalf("dispatch tick failed: %v", err)
	}
	if stats.SendFailures != 1 || stats.Sent != 0 {
		t.Fatalf("expected one send failure, got %+v", stats)
	}

	offer := repo.singleOffer(t)
	if offer.Status != domain.OfferStatusScheduled {
		t.Fatalf("expected offer to stay scheduled after failed send, got %s", offer.Status)
	}
	if offer.SendAttempts != 1 {
		t.Fatalf("expected one recorded send attempt, got %d", offer.SendAttempts)
	}

	// Gateway recovers; the next tick's due-set retries implicitly.
	sms.err = nil
	stats, err = engine.RunTick(context.Background(), snap, dueTime.Add(3*time.Minute))
	if err != nil {
		t.Fatalf("retry tick failed: %v", err)
	}
	if stats.Sent != 1 {
		t.Fatalf("expected retry to send, got %+v", stats)
	}
	if offer.Status != domain.OfferStatusSent {
		t.Fatalf("expected offer sent after retry, got %s", offer.Status)
	}
}

func TestLateCheckoutOfferLifecycle_AcceptPath(t *testing.T) {
	repo := newFakeRepo()
	snap := lateCheckoutOnlySnapshot()
	checkOut := day(2026, time.April, 10, 11)
	booking := confirmedBooking(snap.Property.ID, "+4791000001", day(2026, time.April, 6, 15), checkOut)
	repo.bookings[snap.Property.ID] = []domain.Booking{booking}
	sms := &fakeTransport{}
	engine := newTestEngine(repo, &fakeTransport{}, sms)

	// Generation tick: one offer, scheduled 12h before checkout, price 45.00.
	if _, err := engine.RunTick(context.Background(), snap, checkOut.Add(-48*time.Hour)); err != nil {
		t.Fatalf("generation tick failed: %v", err)
	}
	offer := repo.singleOffer(t)
	if !offer.ScheduledAt.Equal(checkOut.Add(-12 * time.Hour)) {
		t.Fatalf("expected scheduled_at = checkout - 12h, got %v", offer.ScheduledAt)
	}
	if offer.Price == nil || *offer.Price != 4500 {
		t.Fatalf("expected price 4500, got %v", offer.Price)
	}

	// Dispatch tick at the send time: offer goes out and gets a 24h expiry.
	sendTime := offer.ScheduledAt
	stats, err := engine.RunTick(context.Background(), snap, sendTime)
	if err != nil {
		t.Fatalf("dispatch tick failed: %v", err)
	}
	if stats.Sent != 1 || len(sms.sent) != 1 {
		t.Fatalf("expected offer dispatched, got %+v", stats)
	}
	if offer.Status != domain.OfferStatusSent {
		t.Fatalf("expected offer sent, got %s", offer.Status)
	}
	if offer.ExpiresAt == nil || !offer.ExpiresAt.Equal(sendTime.Add(24*time.Hour)) {
		t.Fatalf("expected 24h expiry from send time, got %v", offer.ExpiresAt)
	}
	if offer.MessageText == nil || !strings.Contains(*offer.MessageText, "45.00") {
		t.Fatalf("expected audit copy of outgoing text with price, got %v", offer.MessageText)
	}

	// Guest accepts within the window.
	reply, err := engine.HandleGuestReply(context.Background(), booking.GuestAddress, "YES", sendTime.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("HandleGuestReply failed: %v", err)
	}
	if !strings.Contains(reply, "45") {
		t.Fatalf("expected confirmation to state the price, got %q", reply)
	}
	if offer.Status != domain.OfferStatusAccepted {
		t.Fatalf("expected offer accepted, got %s", offer.Status)
	}
	if offer.GuestReply == nil || *offer.GuestReply != "YES" {
		t.Fatalf("expected raw reply recorded, got %v", offer.GuestReply)
	}
}

func TestLateCheckoutOfferLifecycle_ExpiryPath(t *testing.T) {
	repo := newFakeRepo()
	snap := lateCheckoutOnlySnapshot()
	checkOut := day(2026, time.April, 10, 11)
	booking := confirmedBooking(snap.Property.ID, "+4791000001", day(2026, time.April, 6, 15), checkOut)
	repo.bookings[snap.Property.ID] = []domain.Booking{booking}
	engine := newTestEngine(repo, &fakeTransport{}, &fakeTransport{})

	if _, err := engine.RunTick(context.Background(), snap, checkOut.Add(-48*time.Hour)); err != nil {
		t.Fatalf("generation tick failed: %v", err)
	}
	offer := repo.singleOffer(t)
	sendTime := offer.ScheduledAt
	if _, err := engine.RunTick(context.Background(), snap, sendTime); err != nil {
		t.Fatalf("dispatch tick failed: %v", err)
	}

	// No reply within the 24h window: the sweeper expires the offer.
	stats, err := engine.RunTick(context.Background(), snap, sendTime.Add(24*time.Hour+time.Second))
	if err != nil {
		t.Fatalf("expiry tick failed: %v", err)
	}
	if stats.Expired != 1 {
		t.Fatalf("expected one expired offer, got %+v", stats)
	}
	if offer.Status != domain.OfferStatusExpired {
		t.Fatalf("expected offer expired, got %s", offer.Status)
	}

	// Re-running the sweep is a no-op.
	stats, err = engine.RunTick(context.Background(), snap, sendTime.Add(25*time.Hour))
	if err != nil {
		t.Fatalf("repeat expiry tick failed: %v", err)
	}
	if stats.Expired != 0 {
		t.Fatalf("expected expiry sweep to be idempotent, got %+v", stats)
	}

	// A late reply after expiry is discarded.
	reply, err := engine.HandleGuestReply(context.Background(), booking.GuestAddress, "YES", sendTime.Add(26*time.Hour))
	if err != nil {
		t.Fatalf("HandleGuestReply failed: %v", err)
	}
	if reply != "" {
		t.Fatalf("expected late reply to be discarded, got %q", reply)
	}
	if offer.Status != domain.OfferStatusExpired {
		t.Fatalf("expected offer to stay expired, got %s", offer.Status)
	}
}

func TestHandleGuestReply_DeclineAcknowledges(t *testing.T) {
	repo := newFakeRepo()
	snap := lateCheckoutOnlySnapshot()
	sentAt := day(2026, time.April, 9, 23)
	expires := sentAt.Add(24 * time.Hour)
	price := int64(4500)
	offer := domain.UpsellOffer{
		ID:           uuid.New(),
		PropertyID:   snap.Property.ID,
		BookingID:    uuid.New(),
		Type:         domain.OfferTypeLateCheckout,
		Status:       domain.OfferStatusSent,
		Price:        &price,
		Currency:     "USD",
		GuestAddress: "+4791000001",
		Channel:      domain.ChannelSMS,
		ScheduledAt:  sentAt.Add(-time.Hour),
		SentAt:       &sentAt,
		ExpiresAt:    &expires,
	}
	repo.offers[offer.ID] = &offer
	engine := newTestEngine(repo, &fakeTransport{}, &fakeTransport{})

	reply, err := engine.HandleGuestReply(context.Background(), offer.GuestAddress, "Nei", sentAt.Add(time.Hour))
	if err != nil {
		t.Fatalf("HandleGuestReply failed: %v", err)
	}
	if reply == "" {
		t.Fatal("expected a decline acknowledgment")
	}
	if offer.Status != domain.OfferStatusDeclined {
		t.Fatalf("expected offer declined, got %s", offer.Status)
	}
}

func TestHandleGuestReply_NoOutstandingOfferDiscardsVerdict(t *testing.T) {
	repo := newFakeRepo()
	engine := newTestEngine(repo, &fakeTransport{}, &fakeTransport{})

	reply, err := engine.HandleGuestReply(context.Background(), "+4791000001", "YES", day(2026, time.April, 10, 9))
	if err != nil {
		t.Fatalf("HandleGuestReply failed: %v", err)
	}
	if reply != "" {
		t.Fatalf("expected no reply without an outstanding offer, got %q", reply)
	}
}

func TestHandleGuestReply_NonReplyTextLeavesOfferUntouched(t *testing.T) {
	repo := newFakeRepo()
	snap := lateCheckoutOnlySnapshot()
	sentAt := day(2026, time.April, 9, 23)
	expires := sentAt.Add(24 * time.Hour)
	offer := domain.UpsellOffer{
		ID:           uuid.New(),
		PropertyID:   snap.Property.ID,
		BookingID:    uuid.New(),
		Type:         domain.OfferTypeLateCheckout,
		Status:       domain.OfferStatusSent,
		Currency:     "USD",
		GuestAddress: "+4791000001",
		Channel:      domain.ChannelSMS,
		ScheduledAt:  sentAt.Add(-time.Hour),
		SentAt:       &sentAt,
		ExpiresAt:    &expires,
	}
	repo.offers[offer.ID] = &offer
	engine := newTestEngine(repo, &fakeTransport{}, &fakeTransport{})

	reply, err := engine.HandleGuestReply(context.Background(), offer.GuestAddress, "maybe", sentAt.Add(time.Hour))
	if err != nil {
		t.Fatalf("HandleGuestReply failed: %v", err)
	}
	if reply != "" {
		t.Fatalf("expected no reply for unclassified text, got %q", reply)
	}
	if offer.Status != domain.OfferStatusSent {
		t.Fatalf("expected offer untouched, got %s", offer.Status)
	}
}

func TestRunAll_PropertyFailureDoesNotAbortOthers(t *testing.T) {
	repo := newFakeRepo()
	broken := lateCheckoutOnlySnapshot()
	healthy := lateCheckoutOnlySnapshot()
	repo.snapshots = []domain.PropertySnapshot{broken, healthy}
	repo.bookingErrs[broken.Property.ID] = errors.New("connection reset")
	booking := confirmedBooking(healthy.Property.ID, "+4791000002", day(2026, time.April, 6, 15), day(2026, time.April, 10, 11))
	repo.bookings[healthy.Property.ID] = []domain.Booking{booking}
	engine := newTestEngine(repo, &fakeTransport{}, &fakeTransport{})

	stats, err := engine.RunAll(context.Background(), day(2026, time.April, 1, 9))
	if err != nil {
		t.Fatalf("RunAll failed: %v", err)
	}
	if stats.Scheduled != 1 {
		t.Fatalf("expected the healthy property to still schedule, got %+v", stats)
	}
}
