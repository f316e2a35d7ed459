package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"tripnest/internal/app/commands"
	"tripnest/internal/app/middleware"
	"tripnest/internal/app/outbox"
	"tripnest/internal/app/policies"
	"tripnest/internal/app/uow"
	"tripnest/internal/apperr"
	domainbooking "tripnest/internal/domain/booking"
	domainlistings "tripnest/internal/domain/listings"
	domainrange "tripnest/internal/domain/shared/daterange"
)

const requestBookingKey = "booking.request"

type RequestBookingCommand struct {
	CommandID       string
	ListingID       string
	GuestID         string
	CheckIn         time.Time
	CheckOut        time.Time
	Guests          int
	SpecialRequests string
	IdempotencyKeyV string
}

func (c RequestBookingCommand) Key() string { return requestBookingKey }

func (c RequestBookingCommand) IdempotencyKey() string { return c.IdempotencyKeyV }

func (c RequestBookingCommand) ResultPrototype() any { return &RequestBookingResult{} }

type RequestBookingResult struct {
	BookingID       string `json:"booking_id"`
	State           string `json:"state"`
	TotalCents      int64  `json:"total_cents"`
	Currency        string `json:"currency"`
	PaymentIntentID string `json:"payment_intent_id,omitempty"`
}

type RequestBookingHandler struct {
	UoWFactory uow.UoWFactory
	Pricing    policies.PricingPort
	Payments   policies.PaymentsPort
	Outbox     outbox.Outbox
	Encoder    outbox.EventEncoder
}

var ErrUnitOfWorkRequired = errors.New("booking: unit of work required")

// Handle reserves a date range on a listing. The listing lock is taken before
// the overlap check so two concurrent requests for the same listing serialize:
// exactly one creates the booking, the other sees the conflict or a retryable
// lock failure.
func (h *RequestBookingHandler) Handle(ctx context.Context, cmd RequestBookingCommand) (*RequestBookingResult, error) {
	unit, ok := uow.FromContext(ctx)
	managed := false
	committed := false
	if !ok {
		if h.UoWFactory == nil {
			return nil, ErrUnitOfWorkRequired
		}
		var err error
		unit, err = h.UoWFactory.Begin(ctx, uow.TxOptions{})
		if err != nil {
			return nil, err
		}
		ctx = uow.ContextWithUnitOfWork(ctx, unit)
		managed = true
	}
	if managed {
		defer func() {
			if !committed {
				_ = unit.Rollback(ctx)
			}
		}()
	}

	dr, err := domainrange.New(cmd.CheckIn, cmd.CheckOut)
	if err != nil {
		return nil, apperr.Validation(err.Error())
	}
	now := time.Now().UTC()
	if err := domainbooking.ValidateDateRange(dr, now); err != nil {
		return nil, apperr.Validation(err.Error())
	}
	if cmd.Guests <= 0 {
		return nil, apperr.Validation("guests count must be positive")
	}

	listingID := domainlistings.ListingID(cmd.ListingID)
	if err := unit.Locks().LockListing(ctx, listingID); err != nil {
		return nil, err
	}

	listing, err := unit.Listings().ByID(ctx, listingID)
	if err != nil {
		if errors.Is(err, domainlistings.ErrListingNotFound) {
			return nil, apperr.NotFound("listing")
		}
		return nil, err
	}
	if err := listing.AcceptsStay(cmd.Guests, dr.Nights()); err != nil {
		return nil, apperr.Validation(err.Error())
	}

	overlapping, err := unit.Booking().FindOverlapping(ctx, listing.ID, dr, domainbooking.OccupyingStates())
	if err != nil {
		return nil, err
	}
	if len(overlapping) > 0 {
		return nil, apperr.Conflict("dates are no longer available")
	}

	price, err := h.Pricing.Quote(ctx, listing, dr, cmd.Guests)
	if err != nil {
		return nil, err
	}

	bookingID := cmd.CommandID
	if bookingID == "" {
		bookingID = uuid.NewString()
	}

	intentID := ""
	if h.Payments != nil && price.Total.Amount > 0 {
		intentID, err = h.Payments.CreateIntent(ctx, bookingID, price.Total)
		if err != nil {
			return nil, err
		}
	}

	b, err := domainbooking.NewBooking(domainbooking.CreateParams{
		ID:              domainbooking.BookingID(bookingID),
		ListingID:       listing.ID,
		GuestID:         cmd.GuestID,
		Range:           dr,
		Guests:          cmd.Guests,
		Price:           price,
		Policy:          policySnapshot(listing, dr, now),
		SpecialRequests: cmd.SpecialRequests,
		PaymentIntentID: intentID,
		InstantBook:     listing.InstantBook && price.Total.Amount == 0,
		CreatedAt:       now,
	})
	if err != nil {
		return nil, apperr.Validation(err.Error())
	}

	if err := unit.Booking().Save(ctx, b); err != nil {
		return nil, err
	}

	pending := b.PendingEvents()
	b.ClearEvents()
	if err := outbox.RecordDomainEvents(ctx, h.Outbox, h.encoder(), pending); err != nil {
		return nil, err
	}

	if managed {
		if err := unit.Commit(ctx); err != nil {
			return nil, err
		}
		committed = true
	}

	return &RequestBookingResult{
		BookingID:       string(b.ID),
		State:           string(b.State),
		TotalCents:      b.Price.Total.Amount,
		Currency:        b.Price.Total.Currency,
		PaymentIntentID: b.PaymentIntentID,
	}, nil
}

// policySnapshot freezes the listing's cancellation terms at booking time.
func policySnapshot(listing *domainlistings.Listing, dr domainrange.DateRange, now time.Time) domainbooking.CancellationPolicySnapshot {
	snapshot := domainbooking.CancellationPolicySnapshot{PolicyID: listing.CancellationPolicyID}
	switch listing.CancellationPolicyID {
	case "flexible":
		snapshot.FreeCancellationUntil = dr.CheckIn.AddDate(0, 0, -1)
		snapshot.PreCheckInPenaltyPercent = 0
		snapshot.PostCheckInPenaltyPercent = 100
	case "moderate":
		snapshot.FreeCancellationUntil = dr.CheckIn.AddDate(0, 0, -5)
		snapshot.PreCheckInPenaltyPercent = 50
		snapshot.PostCheckInPenaltyPercent = 100
	case "strict":
		snapshot.PreCheckInPenaltyPercent = 50
		snapshot.PostCheckInPenaltyPercent = 100
	}
	return snapshot
}

func (h *RequestBookingHandler) encoder() outbox.EventEncoder {
	if h.Encoder != nil {
		return h.Encoder
	}
	return outbox.JSONEventEncoder{}
}

var _ commands.Handler[RequestBookingCommand, *RequestBookingResult] = (*RequestBookingHandler)(nil)
var _ middleware.IdempotentCommand = (*RequestBookingCommand)(nil)
