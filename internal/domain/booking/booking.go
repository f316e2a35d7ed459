package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tripnest/internal/domain/listings"
	"tripnest/internal/domain/pricing"
	"tripnest/internal/domain/shared/daterange"
	"tripnest/internal/domain/shared/events"
	"tripnest/internal/domain/shared/money"
)

var (
	ErrInvalidGuests   = errors.New("booking: guests count must be positive")
	ErrBookingNotFound = errors.New("booking: not found")
	// ErrConcurrentUpdate reports a lost optimistic-version race: the booking
	// changed between load and save.
	ErrConcurrentUpdate = errors.New("booking: concurrent update")
)

// AnonymizedGuestID replaces the guest reference on historical bookings when
// the guest account is erased. Bookings themselves are never hard-deleted.
const AnonymizedGuestID = "guest-anonymized"

type BookingID string

type BookingState string

const (
	StatePending    BookingState = "PENDING"
	StateConfirmed  BookingState = "CONFIRMED"
	StateCheckedIn  BookingState = "CHECKED_IN"
	StateCheckedOut BookingState = "CHECKED_OUT"
	StateCompleted  BookingState = "COMPLETED"
	StateRejected   BookingState = "REJECTED"
	StateCancelled  BookingState = "CANCELLED"
	StateRefunded   BookingState = "REFUNDED"
)

// IsTerminal reports whether no transition may leave the state.
func (s BookingState) IsTerminal() bool {
	switch s {
	case StateRejected, StateCancelled, StateRefunded, StateCompleted:
		return true
	}
	return false
}

// OccupyingStates are the states that block a listing's dates. Bookings in
// any other state do not participate in the overlap invariant.
func OccupyingStates() []BookingState {
	return []BookingState{StatePending, StateConfirmed, StateCheckedIn}
}

type PaymentStatus string

const (
	PaymentUnpaid    PaymentStatus = "UNPAID"
	PaymentCompleted PaymentStatus = "COMPLETED"
	PaymentFailed    PaymentStatus = "FAILED"
	PaymentRefunded  PaymentStatus = "REFUNDED"
)

// StateTransitionError reports an illegal lifecycle transition. It names the
// attempted transition and the violated guard; callers must not treat it as a
// silent no-op.
type StateTransitionError struct {
	From   BookingState
	To     BookingState
	Reason string
}

func (e *StateTransitionError) Error() string {
	return fmt.Sprintf("booking: cannot transition %s -> %s: %s", e.From, e.To, e.Reason)
}

type Booking struct {
	ID        BookingID
	ListingID listings.ListingID
	GuestID   string
	Range     daterange.DateRange
	Guests    int
	Price     pricing.PriceBreakdown
	State     BookingState

	PaymentStatus PaymentStatus
	// PaymentIntentID is the external provider's idempotency-bearing
	// identifier linking webhook deliveries back to this booking.
	PaymentIntentID string
	FailureDetail   string

	SpecialRequests string
	Policy          CancellationPolicySnapshot
	CancelReason    string
	CancelledAt     time.Time
	RefundAmount    money.Money
	DisputeOpen     bool

	CreatedAt time.Time
	UpdatedAt time.Time
	Version   int64
	events.EventRecorder
}

type Repository interface {
	ByID(ctx context.Context, id BookingID) (*Booking, error)
	Save(ctx context.Context, booking *Booking) error
	ListByGuest(ctx context.Context, guestID string) ([]*Booking, error)
	ListByListing(ctx context.Context, listingID listings.ListingID) ([]*Booking, error)
	// FindOverlapping returns bookings for the listing whose half-open date
	// range overlaps the given one and whose state is in states. The query
	// shape is explicit here so locking decisions stay visible in one place.
	FindOverlapping(ctx context.Context, listingID listings.ListingID, r daterange.DateRange, states []BookingState) ([]*Booking, error)
	// ByPaymentIntent resolves the booking a payment event refers to, if any.
	ByPaymentIntent(ctx context.Context, intentID string) (*Booking, error)
	// AnonymizeGuest detaches a guest from their historical bookings.
	AnonymizeGuest(ctx context.Context, guestID string) error
}

type CreateParams struct {
	ID              BookingID
	ListingID       listings.ListingID
	GuestID         string
	Range           daterange.DateRange
	Guests          int
	Price           pricing.PriceBreakdown
	Policy          CancellationPolicySnapshot
	SpecialRequests string
	PaymentIntentID string
	// InstantBook creates the booking directly in the confirmed state; the
	// listing allows booking without host approval.
	InstantBook bool
	CreatedAt   time.Time
}

func NewBooking(params CreateParams) (*Booking, error) {
	if params.Guests <= 0 {
		return nil, ErrInvalidGuests
	}
	if params.GuestID == "" {
		return nil, errors.New("booking: guest id required")
	}
	if err := params.Price.RecalculateTotal(); err != nil {
		return nil, err
	}
	now := params.CreatedAt.UTC()
	state := StatePending
	if params.InstantBook {
		state = StateConfirmed
	}
	b := &Booking{
		ID:              params.ID,
		ListingID:       params.ListingID,
		GuestID:         params.GuestID,
		Range:           params.Range,
		Guests:          params.Guests,
		Price:           params.Price.Copy(),
		Policy:          params.Policy,
		SpecialRequests: params.SpecialRequests,
		PaymentIntentID: params.PaymentIntentID,
		State:           state,
		PaymentStatus:   PaymentUnpaid,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	b.Record(BookingRequested{BookingID: b.ID, ListingID: b.ListingID, GuestID: b.GuestID, Range: b.Range, GuestsCount: b.Guests, QuotedPrice: b.Price.Total, At: now})
	if state == StateConfirmed {
		b.Record(BookingConfirmed{BookingID: b.ID, ListingID: b.ListingID, Range: b.Range, Total: b.Price.Total, At: now})
	}
	return b, nil
}

// RequiresUpfrontPayment reports whether the booking must see a successful
// payment before host approval may confirm it.
func (b *Booking) RequiresUpfrontPayment() bool {
	return b.Price.Total.Amount > 0
}

// Approve transitions pending -> confirmed on host approval. For bookings
// requiring upfront payment, approval is only legal once the payment
// processor has recorded a successful capture.
func (b *Booking) Approve(now time.Time) error {
	if b.State != StatePending {
		return &StateTransitionError{From: b.State, To: StateConfirmed, Reason: "only pending bookings can be approved"}
	}
	if b.RequiresUpfrontPayment() && b.PaymentStatus != PaymentCompleted {
		return &StateTransitionError{From: b.State, To: StateConfirmed, Reason: "upfront payment not completed"}
	}
	b.State = StateConfirmed
	b.UpdatedAt = now.UTC()
	b.Record(BookingConfirmed{BookingID: b.ID, ListingID: b.ListingID, Range: b.Range, Total: b.Price.Total, At: b.UpdatedAt})
	return nil
}

// Reject transitions pending -> rejected on host decline.
func (b *Booking) Reject(reason string, now time.Time) error {
	if b.State != StatePending {
		return &StateTransitionError{From: b.State, To: StateRejected, Reason: "only pending bookings can be rejected"}
	}
	b.State = StateRejected
	b.UpdatedAt = now.UTC()
	b.Record(BookingRejected{BookingID: b.ID, Reason: reason, At: b.UpdatedAt})
	return nil
}

// Cancel transitions pending/confirmed -> cancelled before check-in. The
// cancellation policy snapshot determines the refund split.
func (b *Booking) Cancel(reason string, now time.Time) (money.Money, money.Money, error) {
	switch b.State {
	case StatePending, StateConfirmed:
	default:
		return money.Money{}, money.Money{}, &StateTransitionError{From: b.State, To: StateCancelled, Reason: "booking is not cancellable"}
	}
	now = now.UTC()
	if !now.Before(b.Range.CheckIn) {
		return money.Money{}, money.Money{}, &StateTransitionError{From: b.State, To: StateCancelled, Reason: "cancellation after check-in"}
	}
	refund, penalty, err := b.Policy.CalculateRefund(b.Price.Total, now, b.Range.CheckIn)
	if err != nil {
		return money.Money{}, money.Money{}, err
	}
	b.State = StateCancelled
	b.CancelReason = reason
	b.CancelledAt = now
	b.UpdatedAt = now
	b.Record(BookingCancelled{BookingID: b.ID, Refund: refund, Penalty: penalty, Reason: reason, At: now})
	return refund, penalty, nil
}

// CheckIn transitions confirmed -> checked_in once the stay has started.
func (b *Booking) CheckIn(now time.Time) error {
	if b.State != StateConfirmed {
		return &StateTransitionError{From: b.State, To: StateCheckedIn, Reason: "cannot check in before confirmed"}
	}
	now = now.UTC()
	if dayOf(now).Before(dayOf(b.Range.CheckIn)) {
		return &StateTransitionError{From: b.State, To: StateCheckedIn, Reason: "check-in date not reached"}
	}
	b.State = StateCheckedIn
	b.UpdatedAt = now
	b.Record(BookingCheckedIn{BookingID: b.ID, At: now})
	return nil
}

// CheckOut transitions checked_in -> checked_out once the stay has ended.
func (b *Booking) CheckOut(now time.Time) error {
	if b.State != StateCheckedIn {
		return &StateTransitionError{From: b.State, To: StateCheckedOut, Reason: "cannot check out before checked in"}
	}
	now = now.UTC()
	if dayOf(now).Before(dayOf(b.Range.CheckOut)) {
		return &StateTransitionError{From: b.State, To: StateCheckedOut, Reason: "check-out date not reached"}
	}
	b.State = StateCheckedOut
	b.UpdatedAt = now
	b.Record(BookingCheckedOut{BookingID: b.ID, At: now})
	return nil
}

// Complete finalizes a checked-out stay.
func (b *Booking) Complete(now time.Time) error {
	if b.State != StateCheckedOut {
		return &StateTransitionError{From: b.State, To: StateCompleted, Reason: "only checked-out bookings can be completed"}
	}
	if b.DisputeOpen {
		return &StateTransitionError{From: b.State, To: StateCompleted, Reason: "open dispute"}
	}
	b.State = StateCompleted
	b.UpdatedAt = now.UTC()
	b.Record(BookingCompleted{BookingID: b.ID, At: b.UpdatedAt})
	return nil
}

// ApplyPaymentSuccess is driven by the payment event processor. It updates
// payment status and booking status together: a pending booking becomes
// confirmed, a confirmed one just gains the completed payment status.
func (b *Booking) ApplyPaymentSuccess(intentID string, now time.Time) error {
	switch b.State {
	case StatePending, StateConfirmed:
	default:
		return &StateTransitionError{From: b.State, To: StateConfirmed, Reason: "payment success for a non-active booking"}
	}
	now = now.UTC()
	if intentID != "" {
		b.PaymentIntentID = intentID
	}
	b.PaymentStatus = PaymentCompleted
	b.FailureDetail = ""
	if b.State == StatePending {
		b.State = StateConfirmed
		b.Record(BookingConfirmed{BookingID: b.ID, ListingID: b.ListingID, Range: b.Range, Total: b.Price.Total, At: now})
	}
	b.UpdatedAt = now
	return nil
}

// RecordPaymentFailure keeps the booking in its prior state and stores the
// failure detail for operators.
func (b *Booking) RecordPaymentFailure(detail string, now time.Time) {
	b.PaymentStatus = PaymentFailed
	b.FailureDetail = detail
	b.UpdatedAt = now.UTC()
	b.Record(BookingPaymentFailed{BookingID: b.ID, Detail: detail, At: b.UpdatedAt})
}

// MarkRefunded is driven by the payment event processor when a full refund
// lands. Only bookings with a completed payment can be refunded.
func (b *Booking) MarkRefunded(amount money.Money, now time.Time) error {
	switch b.State {
	case StateConfirmed, StateCheckedIn, StateCheckedOut:
	default:
		return &StateTransitionError{From: b.State, To: StateRefunded, Reason: "booking state does not allow refund"}
	}
	if b.PaymentStatus != PaymentCompleted {
		return &StateTransitionError{From: b.State, To: StateRefunded, Reason: "no completed payment to refund"}
	}
	b.State = StateRefunded
	b.PaymentStatus = PaymentRefunded
	b.RefundAmount = amount
	b.UpdatedAt = now.UTC()
	b.Record(BookingRefunded{BookingID: b.ID, Amount: amount, At: b.UpdatedAt})
	return nil
}

// Anonymize detaches the guest reference when the account is erased; the
// booking itself stays as history.
func (b *Booking) Anonymize(now time.Time) {
	b.GuestID = AnonymizedGuestID
	b.SpecialRequests = ""
	b.UpdatedAt = now.UTC()
}

func dayOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
