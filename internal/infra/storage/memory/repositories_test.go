package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainbooking "tripnest/internal/domain/booking"
	domainpayments "tripnest/internal/domain/payments"
	"tripnest/internal/domain/pricing"
	"tripnest/internal/domain/shared/daterange"
	"tripnest/internal/domain/shared/money"
)

func storedBooking(t *testing.T, repo *BookingRepository) *domainbooking.Booking {
	t.Helper()
	start := time.Now().UTC().AddDate(0, 1, 0).Truncate(24 * time.Hour)
	dr, err := daterange.New(start, start.AddDate(0, 0, 2))
	require.NoError(t, err)
	price, err := pricing.Quote(pricing.QuoteParams{
		Nights:      2,
		NightlyRate: money.Must(100_00, "USD"),
	})
	require.NoError(t, err)
	b, err := domainbooking.NewBooking(domainbooking.CreateParams{
		ID:        "bkg-1",
		ListingID: "lst-1",
		GuestID:   "guest-1",
		Range:     dr,
		Guests:    1,
		Price:     price,
		CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	b.ClearEvents()
	require.NoError(t, repo.Save(context.Background(), b))
	return b
}

func TestBookingSaveRejectsStaleVersion(t *testing.T) {
	repo := NewBookingRepository()
	storedBooking(t, repo)

	first, err := repo.ByID(context.Background(), "bkg-1")
	require.NoError(t, err)
	second, err := repo.ByID(context.Background(), "bkg-1")
	require.NoError(t, err)

	require.NoError(t, repo.Save(context.Background(), first))
	err = repo.Save(context.Background(), second)
	assert.ErrorIs(t, err, domainbooking.ErrConcurrentUpdate)

	// The winning write is intact.
	current, err := repo.ByID(context.Background(), "bkg-1")
	require.NoError(t, err)
	assert.Equal(t, first.Version, current.Version)
}

func TestPaymentSaveRejectsStaleVersion(t *testing.T) {
	repo := NewPaymentRepository()
	p, err := domainpayments.NewCapturedPayment(domainpayments.CaptureParams{
		ID:         "pay-1",
		IntentID:   "pi_1",
		BookingID:  "bkg-1",
		Amount:     money.Must(200_00, "USD"),
		Processor:  "webhook",
		CapturedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	p.ClearEvents()
	require.NoError(t, repo.Save(context.Background(), p))

	first, err := repo.ByIntentID(context.Background(), "pi_1")
	require.NoError(t, err)
	second, err := repo.ByIntentID(context.Background(), "pi_1")
	require.NoError(t, err)

	require.NoError(t, repo.Save(context.Background(), first))
	err = repo.Save(context.Background(), second)
	assert.ErrorIs(t, err, domainpayments.ErrConcurrentUpdate)
}
