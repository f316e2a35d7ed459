package booking

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	paymentsapp "tripnest/internal/app/handlers/payments"
	"tripnest/internal/apperr"
	domainbooking "tripnest/internal/domain/booking"
	domainpayments "tripnest/internal/domain/payments"
	"tripnest/internal/infra/storage/memory"
)

// TestBookingPaymentFlow walks the whole happy path: a guest books three
// nights at $100 plus a $50 cleaning fee, the processor confirms the $350
// capture, a duplicate delivery is acknowledged without a second payment, and
// a second guest asking for the same window is turned away.
func TestBookingPaymentFlow(t *testing.T) {
	factory := memory.NewFactory()
	seedListing(t, factory, "lst-flow", 100_00, 50_00, 0, false)
	requestHandler := newRequestHandler(factory)
	processor := &paymentsapp.ProcessEventHandler{
		UoWFactory: factory,
		Outbox:     memory.NewOutbox(),
	}
	ctx := context.Background()

	in, out := futureRange(3)
	res, err := requestHandler.Handle(ctx, RequestBookingCommand{
		ListingID: "lst-flow",
		GuestID:   "guest-1",
		CheckIn:   in,
		CheckOut:  out,
		Guests:    2,
	})
	require.NoError(t, err)
	assert.Equal(t, "PENDING", res.State)
	assert.Equal(t, int64(350_00), res.TotalCents)
	require.NotEmpty(t, res.PaymentIntentID)

	event := paymentsapp.ProcessPaymentEventCommand{
		EventID:     "evt-flow-1",
		EventType:   paymentsapp.EventPaymentSucceeded,
		Source:      "webhook",
		IntentID:    res.PaymentIntentID,
		AmountCents: 350_00,
		Currency:    "USD",
		ReceivedAt:  time.Now().UTC(),
	}
	applied, err := processor.Handle(ctx, event)
	require.NoError(t, err)
	assert.Equal(t, paymentsapp.OutcomeApplied, applied.Outcome)

	b, err := factory.BookingRepo.ByID(ctx, domainbooking.BookingID(res.BookingID))
	require.NoError(t, err)
	assert.Equal(t, domainbooking.StateConfirmed, b.State)
	assert.Equal(t, domainbooking.PaymentCompleted, b.PaymentStatus)

	// The provider redelivers; the outcome reports the duplicate and the
	// payment row is untouched.
	redelivered, err := processor.Handle(ctx, event)
	require.NoError(t, err)
	assert.Equal(t, paymentsapp.OutcomeAlreadyProcessed, redelivered.Outcome)

	p, err := factory.PaymentsRepo.ByIntentID(ctx, res.PaymentIntentID)
	require.NoError(t, err)
	assert.Equal(t, domainpayments.PaymentCompleted, p.Status)
	assert.Equal(t, int64(350_00), p.Amount.Amount)

	_, err = requestHandler.Handle(ctx, RequestBookingCommand{
		ListingID: "lst-flow",
		GuestID:   "guest-2",
		CheckIn:   in,
		CheckOut:  out,
		Guests:    1,
	})
	require.Error(t, err)
	assert.True(t, apperr.IsConflict(err))
}
