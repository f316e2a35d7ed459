package booking

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripnest/internal/app/policies"
	"tripnest/internal/apperr"
	domainlistings "tripnest/internal/domain/listings"
	"tripnest/internal/domain/shared/money"
	"tripnest/internal/infra/storage/memory"
)

type stubPayments struct {
	created int32
}

func (s *stubPayments) CreateIntent(_ context.Context, _ string, _ money.Money) (string, error) {
	n := atomic.AddInt32(&s.created, 1)
	return fmt.Sprintf("pi_stub_%d", n), nil
}

func (s *stubPayments) CancelIntent(context.Context, string) error { return nil }

func (s *stubPayments) IssueRefund(context.Context, string, money.Money) error { return nil }

func seedListing(t *testing.T, factory memory.Factory, id string, nightly, cleaning, service int64, instant bool) {
	t.Helper()
	listing, err := domainlistings.NewListing(domainlistings.CreateListingParams{
		ID:                   domainlistings.ListingID(id),
		Host:                 "host-1",
		Title:                "Canal View Loft",
		GuestsLimit:          4,
		CancellationPolicyID: "flexible",
		InstantBook:          instant,
		Currency:             "USD",
		NightlyRateCents:     nightly,
		CleaningFeeCents:     cleaning,
		ServiceFeeCents:      service,
		Now:                  time.Now(),
	})
	require.NoError(t, err)
	require.NoError(t, listing.Activate(time.Now()))
	require.NoError(t, factory.ListingsRepo.Save(context.Background(), listing))
}

func newRequestHandler(factory memory.Factory) *RequestBookingHandler {
	return &RequestBookingHandler{
		UoWFactory: factory,
		Pricing:    policies.StandardPricing{},
		Payments:   &stubPayments{},
		Outbox:     memory.NewOutbox(),
	}
}

func futureRange(nights int) (time.Time, time.Time) {
	start := time.Now().UTC().AddDate(0, 2, 0).Truncate(24 * time.Hour)
	return start, start.AddDate(0, 0, nights)
}

func TestRequestBookingCreatesPendingWithIntent(t *testing.T) {
	factory := memory.NewFactory()
	seedListing(t, factory, "lst-1", 100_00, 50_00, 30_00, false)
	handler := newRequestHandler(factory)

	in, out := futureRange(3)
	res, err := handler.Handle(context.Background(), RequestBookingCommand{
		ListingID: "lst-1",
		GuestID:   "guest-1",
		CheckIn:   in,
		CheckOut:  out,
		Guests:    2,
	})
	require.NoError(t, err)
	assert.Equal(t, "PENDING", res.State)
	assert.Equal(t, int64(380_00), res.TotalCents)
	assert.Equal(t, "USD", res.Currency)
	assert.NotEmpty(t, res.PaymentIntentID)
	assert.NotEmpty(t, res.BookingID)
}

func TestRequestBookingOverlapConflicts(t *testing.T) {
	factory := memory.NewFactory()
	seedListing(t, factory, "lst-1", 100_00, 0, 0, false)
	handler := newRequestHandler(factory)

	in, out := futureRange(3)
	_, err := handler.Handle(context.Background(), RequestBookingCommand{
		ListingID: "lst-1", GuestID: "guest-1", CheckIn: in, CheckOut: out, Guests: 2,
	})
	require.NoError(t, err)

	// Shifted by one night, still overlapping.
	_, err = handler.Handle(context.Background(), RequestBookingCommand{
		ListingID: "lst-1", GuestID: "guest-2", CheckIn: in.AddDate(0, 0, 1), CheckOut: out.AddDate(0, 0, 1), Guests: 2,
	})
	require.Error(t, err)
	assert.True(t, apperr.IsConflict(err))
}

func TestRequestBookingBackToBackAllowed(t *testing.T) {
	factory := memory.NewFactory()
	seedListing(t, factory, "lst-1", 100_00, 0, 0, false)
	handler := newRequestHandler(factory)

	in, out := futureRange(3)
	_, err := handler.Handle(context.Background(), RequestBookingCommand{
		ListingID: "lst-1", GuestID: "guest-1", CheckIn: in, CheckOut: out, Guests: 2,
	})
	require.NoError(t, err)

	// Check-in on the previous guest's check-out day does not overlap.
	_, err = handler.Handle(context.Background(), RequestBookingCommand{
		ListingID: "lst-1", GuestID: "guest-2", CheckIn: out, CheckOut: out.AddDate(0, 0, 2), Guests: 2,
	})
	require.NoError(t, err)
}

func TestRequestBookingConcurrentExactlyOneWins(t *testing.T) {
	factory := memory.NewFactory()
	seedListing(t, factory, "lst-1", 100_00, 0, 0, false)
	handler := newRequestHandler(factory)

	in, out := futureRange(3)
	const n = 10
	var (
		wg        sync.WaitGroup
		successes int32
	)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := handler.Handle(context.Background(), RequestBookingCommand{
				ListingID: "lst-1",
				GuestID:   fmt.Sprintf("guest-%d", i),
				CheckIn:   in,
				CheckOut:  out,
				Guests:    2,
			})
			if err == nil {
				atomic.AddInt32(&successes, 1)
			}
			errs[i] = err
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), successes)
	for _, err := range errs {
		if err == nil {
			continue
		}
		code := apperr.CodeOf(err)
		assert.Contains(t, []string{apperr.CodeConflict, apperr.CodeTransient}, code, "unexpected error: %v", err)
	}
}

func TestRequestBookingValidation(t *testing.T) {
	factory := memory.NewFactory()
	seedListing(t, factory, "lst-1", 100_00, 0, 0, false)
	handler := newRequestHandler(factory)

	in, out := futureRange(3)

	_, err := handler.Handle(context.Background(), RequestBookingCommand{
		ListingID: "lst-1", GuestID: "g", CheckIn: out, CheckOut: in, Guests: 2,
	})
	assert.True(t, apperr.IsValidation(err))

	_, err = handler.Handle(context.Background(), RequestBookingCommand{
		ListingID: "lst-1", GuestID: "g", CheckIn: in, CheckOut: out, Guests: 0,
	})
	assert.True(t, apperr.IsValidation(err))

	_, err = handler.Handle(context.Background(), RequestBookingCommand{
		ListingID: "lst-missing", GuestID: "g", CheckIn: in, CheckOut: out, Guests: 2,
	})
	assert.True(t, apperr.IsNotFound(err))
}

func TestRequestBookingInstantFreeStayConfirms(t *testing.T) {
	factory := memory.NewFactory()
	seedListing(t, factory, "lst-free", 0, 0, 0, true)
	handler := newRequestHandler(factory)

	in, out := futureRange(2)
	res, err := handler.Handle(context.Background(), RequestBookingCommand{
		ListingID: "lst-free", GuestID: "guest-1", CheckIn: in, CheckOut: out, Guests: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, "CONFIRMED", res.State)
	assert.Zero(t, res.TotalCents)
	assert.Empty(t, res.PaymentIntentID)
}
