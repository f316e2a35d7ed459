package booking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripnest/internal/domain/pricing"
	"tripnest/internal/domain/shared/daterange"
	"tripnest/internal/domain/shared/money"
)

var (
	checkIn  = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	checkOut = time.Date(2024, 6, 4, 0, 0, 0, 0, time.UTC)
	created  = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
)

func testPrice(t *testing.T, totalCents int64) pricing.PriceBreakdown {
	t.Helper()
	p, err := pricing.Quote(pricing.QuoteParams{
		Nights:      3,
		NightlyRate: money.Must(totalCents/3, "USD"),
	})
	require.NoError(t, err)
	return p
}

func testBooking(t *testing.T, instant bool) *Booking {
	t.Helper()
	dr, err := daterange.New(checkIn, checkOut)
	require.NoError(t, err)
	b, err := NewBooking(CreateParams{
		ID:        "bkg-1",
		ListingID: "lst-1",
		GuestID:   "guest-1",
		Range:     dr,
		Guests:    2,
		Price:     testPrice(t, 300_00),
		Policy: CancellationPolicySnapshot{
			PolicyID:                 "flexible",
			PreCheckInPenaltyPercent: 20,
		},
		PaymentIntentID: "pi_test_1",
		InstantBook:     instant,
		CreatedAt:       created,
	})
	require.NoError(t, err)
	return b
}

func TestNewBookingStartsPending(t *testing.T) {
	b := testBooking(t, false)
	assert.Equal(t, StatePending, b.State)
	assert.Equal(t, PaymentUnpaid, b.PaymentStatus)
	require.Len(t, b.PendingEvents(), 1)
	assert.Equal(t, "booking.requested", b.PendingEvents()[0].EventName())
}

func TestNewBookingInstantStartsConfirmed(t *testing.T) {
	b := testBooking(t, true)
	assert.Equal(t, StateConfirmed, b.State)
	names := []string{}
	for _, e := range b.PendingEvents() {
		names = append(names, e.EventName())
	}
	assert.Equal(t, []string{"booking.requested", "booking.confirmed"}, names)
}

func TestApproveRequiresCompletedPayment(t *testing.T) {
	b := testBooking(t, false)
	err := b.Approve(created)

	var ste *StateTransitionError
	require.ErrorAs(t, err, &ste)
	assert.Equal(t, StatePending, ste.From)
	assert.Equal(t, StateConfirmed, ste.To)
	assert.Contains(t, ste.Reason, "payment")
	assert.Equal(t, StatePending, b.State)
}

func TestApproveAfterPayment(t *testing.T) {
	b := testBooking(t, false)
	require.NoError(t, b.ApplyPaymentSuccess("pi_test_1", created))
	// Payment success already confirms a pending booking.
	assert.Equal(t, StateConfirmed, b.State)
	assert.Equal(t, PaymentCompleted, b.PaymentStatus)
}

func TestApproveZeroTotalBooking(t *testing.T) {
	dr, _ := daterange.New(checkIn, checkOut)
	price, err := pricing.Quote(pricing.QuoteParams{
		Nights:      3,
		NightlyRate: money.Must(10_00, "USD"),
		Discount:    money.Must(99_00, "USD"),
	})
	require.NoError(t, err)
	b, err := NewBooking(CreateParams{
		ID: "bkg-2", ListingID: "lst-1", GuestID: "guest-1",
		Range: dr, Guests: 1, Price: price, CreatedAt: created,
	})
	require.NoError(t, err)

	require.NoError(t, b.Approve(created))
	assert.Equal(t, StateConfirmed, b.State)
}

func TestRejectOnlyFromPending(t *testing.T) {
	b := testBooking(t, false)
	require.NoError(t, b.Reject("dates unavailable", created))
	assert.Equal(t, StateRejected, b.State)
	assert.True(t, b.State.IsTerminal())

	err := b.Reject("again", created)
	var ste *StateTransitionError
	require.ErrorAs(t, err, &ste)
	assert.Equal(t, StateRejected, ste.From)
}

func TestCancelPendingComputesRefund(t *testing.T) {
	b := testBooking(t, false)
	refund, penalty, err := b.Cancel("change of plans", created)
	require.NoError(t, err)
	assert.Equal(t, StateCancelled, b.State)
	assert.Equal(t, int64(240_00), refund.Amount)
	assert.Equal(t, int64(60_00), penalty.Amount)
	assert.Equal(t, "change of plans", b.CancelReason)
}

func TestCancelAfterCheckInDateFails(t *testing.T) {
	b := testBooking(t, true)
	_, _, err := b.Cancel("too late", checkIn.Add(2*time.Hour))
	var ste *StateTransitionError
	require.ErrorAs(t, err, &ste)
	assert.Equal(t, StateConfirmed, b.State)
}

func TestLifecycleHappyPath(t *testing.T) {
	b := testBooking(t, false)
	require.NoError(t, b.ApplyPaymentSuccess("pi_test_1", created))

	require.NoError(t, b.CheckIn(checkIn.Add(15*time.Hour)))
	assert.Equal(t, StateCheckedIn, b.State)

	require.NoError(t, b.CheckOut(checkOut.Add(10*time.Hour)))
	assert.Equal(t, StateCheckedOut, b.State)

	require.NoError(t, b.Complete(checkOut.Add(24*time.Hour)))
	assert.Equal(t, StateCompleted, b.State)
	assert.True(t, b.State.IsTerminal())
}

func TestCheckInBeforeDateFails(t *testing.T) {
	b := testBooking(t, true)
	err := b.CheckIn(checkIn.Add(-24 * time.Hour))
	var ste *StateTransitionError
	require.ErrorAs(t, err, &ste)
	assert.Equal(t, "check-in date not reached", ste.Reason)
}

func TestNoBackwardsTransition(t *testing.T) {
	b := testBooking(t, true)
	require.NoError(t, b.CheckIn(checkIn))

	// checked_in cannot go back to confirmed via approval.
	err := b.Approve(checkIn)
	var ste *StateTransitionError
	require.ErrorAs(t, err, &ste)
	assert.Equal(t, StateCheckedIn, ste.From)
}

func TestTerminalStatesAreFinal(t *testing.T) {
	b := testBooking(t, false)
	_, _, err := b.Cancel("no", created)
	require.NoError(t, err)

	assert.Error(t, b.Approve(created))
	assert.Error(t, b.Reject("x", created))
	assert.Error(t, b.CheckIn(checkIn))
	_, _, err = b.Cancel("again", created)
	assert.Error(t, err)
	assert.Error(t, b.ApplyPaymentSuccess("pi_test_1", created))
}

func TestCompleteBlockedByDispute(t *testing.T) {
	b := testBooking(t, true)
	require.NoError(t, b.CheckIn(checkIn))
	require.NoError(t, b.CheckOut(checkOut))
	b.DisputeOpen = true

	err := b.Complete(checkOut)
	var ste *StateTransitionError
	require.ErrorAs(t, err, &ste)
	assert.Equal(t, "open dispute", ste.Reason)
}

func TestMarkRefundedRequiresCompletedPayment(t *testing.T) {
	b := testBooking(t, true)
	err := b.MarkRefunded(money.Must(300_00, "USD"), created)
	var ste *StateTransitionError
	require.ErrorAs(t, err, &ste)

	require.NoError(t, b.ApplyPaymentSuccess("pi_test_1", created))
	require.NoError(t, b.MarkRefunded(money.Must(300_00, "USD"), created))
	assert.Equal(t, StateRefunded, b.State)
	assert.Equal(t, PaymentRefunded, b.PaymentStatus)
	assert.Equal(t, int64(300_00), b.RefundAmount.Amount)
}

func TestRecordPaymentFailureKeepsState(t *testing.T) {
	b := testBooking(t, false)
	b.RecordPaymentFailure("card_declined", created)
	assert.Equal(t, StatePending, b.State)
	assert.Equal(t, PaymentFailed, b.PaymentStatus)
	assert.Equal(t, "card_declined", b.FailureDetail)
}

func TestStateTransitionErrorMessage(t *testing.T) {
	err := &StateTransitionError{From: StateCompleted, To: StateCancelled, Reason: "booking is not cancellable"}
	assert.Equal(t, "booking: cannot transition COMPLETED -> CANCELLED: booking is not cancellable", err.Error())
}

func TestAnonymize(t *testing.T) {
	b := testBooking(t, false)
	b.SpecialRequests = "late arrival"
	b.Anonymize(created)
	assert.Equal(t, AnonymizedGuestID, b.GuestID)
	assert.Empty(t, b.SpecialRequests)
}
