package payments

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripnest/internal/apperr"
	domainbooking "tripnest/internal/domain/booking"
	domainpayments "tripnest/internal/domain/payments"
	"tripnest/internal/domain/pricing"
	"tripnest/internal/domain/shared/daterange"
	"tripnest/internal/domain/shared/money"
	"tripnest/internal/infra/storage/memory"
)

const (
	testIntent = "pi_test_1"
	testTotal  = int64(380_00)
)

func seedBooking(t *testing.T, factory memory.Factory) *domainbooking.Booking {
	t.Helper()
	start := time.Now().UTC().AddDate(0, 2, 0).Truncate(24 * time.Hour)
	dr, err := daterange.New(start, start.AddDate(0, 0, 3))
	require.NoError(t, err)
	price, err := pricing.Quote(pricing.QuoteParams{
		Nights:      3,
		NightlyRate: money.Must(100_00, "USD"),
		CleaningFee: money.Must(50_00, "USD"),
		ServiceFee:  money.Must(30_00, "USD"),
	})
	require.NoError(t, err)
	b, err := domainbooking.NewBooking(domainbooking.CreateParams{
		ID:              "bkg-1",
		ListingID:       "lst-1",
		GuestID:         "guest-1",
		Range:           dr,
		Guests:          2,
		Price:           price,
		PaymentIntentID: testIntent,
		CreatedAt:       time.Now().UTC(),
	})
	require.NoError(t, err)
	b.ClearEvents()
	require.NoError(t, factory.BookingRepo.Save(context.Background(), b))
	return b
}

func newProcessor(factory memory.Factory) *ProcessEventHandler {
	return &ProcessEventHandler{
		UoWFactory: factory,
		Outbox:     memory.NewOutbox(),
	}
}

func succeededEvent(id string) ProcessPaymentEventCommand {
	return ProcessPaymentEventCommand{
		EventID:     id,
		EventType:   EventPaymentSucceeded,
		Source:      "webhook",
		IntentID:    testIntent,
		AmountCents: testTotal,
		Currency:    "USD",
		ReceivedAt:  time.Now().UTC(),
	}
}

func TestSucceededEventConfirmsBooking(t *testing.T) {
	factory := memory.NewFactory()
	seedBooking(t, factory)
	h := newProcessor(factory)

	res, err := h.Handle(context.Background(), succeededEvent("evt-1"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.Equal(t, "bkg-1", res.BookingID)

	b, err := factory.BookingRepo.ByID(context.Background(), "bkg-1")
	require.NoError(t, err)
	assert.Equal(t, domainbooking.StateConfirmed, b.State)
	assert.Equal(t, domainbooking.PaymentCompleted, b.PaymentStatus)

	p, err := factory.PaymentsRepo.ByIntentID(context.Background(), testIntent)
	require.NoError(t, err)
	assert.Equal(t, domainpayments.PaymentCompleted, p.Status)
	assert.Equal(t, testTotal, p.Amount.Amount)
}

func TestDuplicateDeliverySameEventID(t *testing.T) {
	factory := memory.NewFactory()
	seedBooking(t, factory)
	h := newProcessor(factory)

	first, err := h.Handle(context.Background(), succeededEvent("evt-1"))
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, first.Outcome)
	firstPayment, err := factory.PaymentsRepo.ByIntentID(context.Background(), testIntent)
	require.NoError(t, err)

	second, err := h.Handle(context.Background(), succeededEvent("evt-1"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyProcessed, second.Outcome)

	// Still exactly one payment, untouched by the redelivery.
	p, err := factory.PaymentsRepo.ByIntentID(context.Background(), testIntent)
	require.NoError(t, err)
	assert.Equal(t, firstPayment.ID, p.ID)
	assert.Equal(t, firstPayment.Version, p.Version)
}

func TestDuplicateIntentDifferentEventID(t *testing.T) {
	factory := memory.NewFactory()
	seedBooking(t, factory)
	h := newProcessor(factory)

	_, err := h.Handle(context.Background(), succeededEvent("evt-1"))
	require.NoError(t, err)

	res, err := h.Handle(context.Background(), succeededEvent("evt-2"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyApplied, res.Outcome)
}

func TestInFlightEventIsTransient(t *testing.T) {
	factory := memory.NewFactory()
	seedBooking(t, factory)
	h := newProcessor(factory)

	ev, err := domainpayments.NewWebhookEvent("evt-1", EventPaymentSucceeded, "webhook", nil, time.Now())
	require.NoError(t, err)
	require.NoError(t, factory.WebhookEvents.Insert(context.Background(), ev))

	_, err = h.Handle(context.Background(), succeededEvent("evt-1"))
	require.Error(t, err)
	assert.True(t, apperr.IsTransient(err))
}

func TestFailedEventRecordsDetailKeepsState(t *testing.T) {
	factory := memory.NewFactory()
	seedBooking(t, factory)
	h := newProcessor(factory)

	cmd := succeededEvent("evt-1")
	cmd.EventType = EventPaymentFailed
	cmd.FailureReason = "card_declined"
	res, err := h.Handle(context.Background(), cmd)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)

	b, err := factory.BookingRepo.ByID(context.Background(), "bkg-1")
	require.NoError(t, err)
	assert.Equal(t, domainbooking.StatePending, b.State)
	assert.Equal(t, domainbooking.PaymentFailed, b.PaymentStatus)
	assert.Equal(t, "card_declined", b.FailureDetail)
}

func TestStaleFailureAfterSuccessIgnored(t *testing.T) {
	factory := memory.NewFactory()
	seedBooking(t, factory)
	h := newProcessor(factory)

	_, err := h.Handle(context.Background(), succeededEvent("evt-1"))
	require.NoError(t, err)

	cmd := succeededEvent("evt-2")
	cmd.EventType = EventPaymentFailed
	cmd.FailureReason = "card_declined"
	res, err := h.Handle(context.Background(), cmd)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyApplied, res.Outcome)

	b, err := factory.BookingRepo.ByID(context.Background(), "bkg-1")
	require.NoError(t, err)
	assert.Equal(t, domainbooking.StateConfirmed, b.State)
}

func TestRefundBeforeCaptureIsTransient(t *testing.T) {
	factory := memory.NewFactory()
	seedBooking(t, factory)
	h := newProcessor(factory)

	cmd := succeededEvent("evt-1")
	cmd.EventType = EventChargeRefunded
	cmd.RefundedCents = testTotal
	_, err := h.Handle(context.Background(), cmd)
	require.Error(t, err)
	assert.True(t, apperr.IsTransient(err))

	// The ledger row survives the failed attempt so the retry path is FAILED,
	// not PROCESSING.
	ev, err := factory.WebhookEvents.ByID(context.Background(), "evt-1")
	require.NoError(t, err)
	assert.Equal(t, domainpayments.EventFailed, ev.Status)
}

func TestFullRefundMarksBookingRefunded(t *testing.T) {
	factory := memory.NewFactory()
	seedBooking(t, factory)
	h := newProcessor(factory)

	_, err := h.Handle(context.Background(), succeededEvent("evt-1"))
	require.NoError(t, err)

	cmd := succeededEvent("evt-2")
	cmd.EventType = EventChargeRefunded
	cmd.RefundedCents = testTotal
	res, err := h.Handle(context.Background(), cmd)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)

	p, err := factory.PaymentsRepo.ByIntentID(context.Background(), testIntent)
	require.NoError(t, err)
	assert.Equal(t, domainpayments.PaymentRefunded, p.Status)

	b, err := factory.BookingRepo.ByID(context.Background(), "bkg-1")
	require.NoError(t, err)
	assert.Equal(t, domainbooking.StateRefunded, b.State)
}

func TestPartialRefundKeepsBookingConfirmed(t *testing.T) {
	factory := memory.NewFactory()
	seedBooking(t, factory)
	h := newProcessor(factory)

	_, err := h.Handle(context.Background(), succeededEvent("evt-1"))
	require.NoError(t, err)

	cmd := succeededEvent("evt-2")
	cmd.EventType = EventChargeRefunded
	cmd.RefundedCents = 100_00
	res, err := h.Handle(context.Background(), cmd)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)

	p, err := factory.PaymentsRepo.ByIntentID(context.Background(), testIntent)
	require.NoError(t, err)
	assert.Equal(t, domainpayments.PaymentPartiallyRefunded, p.Status)

	b, err := factory.BookingRepo.ByID(context.Background(), "bkg-1")
	require.NoError(t, err)
	assert.Equal(t, domainbooking.StateConfirmed, b.State)

	// Redelivery of the same cumulative amount is a no-op.
	cmd2 := succeededEvent("evt-3")
	cmd2.EventType = EventChargeRefunded
	cmd2.RefundedCents = 100_00
	res2, err := h.Handle(context.Background(), cmd2)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyApplied, res2.Outcome)
}

func TestUnhandledEventTypeIgnored(t *testing.T) {
	factory := memory.NewFactory()
	seedBooking(t, factory)
	h := newProcessor(factory)

	cmd := succeededEvent("evt-1")
	cmd.EventType = "customer.updated"
	res, err := h.Handle(context.Background(), cmd)
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, res.Outcome)

	ev, err := factory.WebhookEvents.ByID(context.Background(), "evt-1")
	require.NoError(t, err)
	assert.Equal(t, domainpayments.EventProcessed, ev.Status)
}

func TestConcurrentDeliveriesSameIntent(t *testing.T) {
	factory := memory.NewFactory()
	seedBooking(t, factory)
	h := newProcessor(factory)

	const n = 8
	var wg sync.WaitGroup
	outcomes := make([]Outcome, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := h.Handle(context.Background(), succeededEvent(fmt.Sprintf("evt-c%d", i)))
			if err != nil {
				errs[i] = err
				return
			}
			outcomes[i] = res.Outcome
		}(i)
	}
	wg.Wait()

	applied := 0
	for i := 0; i < n; i++ {
		switch {
		case errs[i] != nil:
			// Lock contention is the only acceptable failure; the provider
			// redelivers those.
			assert.True(t, apperr.IsTransient(errs[i]), "unexpected error: %v", errs[i])
		case outcomes[i] == OutcomeApplied:
			applied++
		default:
			assert.Equal(t, OutcomeAlreadyApplied, outcomes[i])
		}
	}
	assert.Equal(t, 1, applied)

	p, err := factory.PaymentsRepo.ByIntentID(context.Background(), testIntent)
	require.NoError(t, err)
	assert.Equal(t, domainpayments.PaymentCompleted, p.Status)
	assert.Equal(t, int64(1), p.Version)

	b, err := factory.BookingRepo.ByID(context.Background(), "bkg-1")
	require.NoError(t, err)
	assert.Equal(t, domainbooking.StateConfirmed, b.State)
}

func TestEventIDRequired(t *testing.T) {
	h := newProcessor(memory.NewFactory())
	_, err := h.Handle(context.Background(), ProcessPaymentEventCommand{EventType: EventPaymentSucceeded, IntentID: testIntent})
	assert.True(t, apperr.IsValidation(err))
}
