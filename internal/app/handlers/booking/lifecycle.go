package booking

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"tripnest/internal/app/commands"
	"tripnest/internal/app/outbox"
	"tripnest/internal/app/policies"
	"tripnest/internal/app/uow"
	"tripnest/internal/apperr"
	domainbooking "tripnest/internal/domain/booking"
	domainuser "tripnest/internal/domain/user"
)

const (
	approveBookingKey  = "booking.approve"
	rejectBookingKey   = "booking.reject"
	cancelBookingKey   = "booking.cancel"
	checkInBookingKey  = "booking.check_in"
	checkOutBookingKey = "booking.check_out"
	completeBookingKey = "booking.complete"
)

// Actor identifies who is driving a lifecycle transition; handlers enforce
// that the actor owns the relevant side of the booking.
type Actor struct {
	UserID string
	Roles  []string
}

func (a Actor) isAdmin() bool {
	for _, r := range a.Roles {
		if r == string(domainuser.RoleAdmin) {
			return true
		}
	}
	return false
}

type ApproveBookingCommand struct {
	BookingID string
	Actor     Actor
}

func (c ApproveBookingCommand) Key() string { return approveBookingKey }

type RejectBookingCommand struct {
	BookingID string
	Reason    string
	Actor     Actor
}

func (c RejectBookingCommand) Key() string { return rejectBookingKey }

type CancelBookingCommand struct {
	BookingID string
	Reason    string
	Actor     Actor
}

func (c CancelBookingCommand) Key() string { return cancelBookingKey }

type CheckInCommand struct {
	BookingID string
	Actor     Actor
}

func (c CheckInCommand) Key() string { return checkInBookingKey }

type CheckOutCommand struct {
	BookingID string
	Actor     Actor
}

func (c CheckOutCommand) Key() string { return checkOutBookingKey }

type CompleteBookingCommand struct {
	BookingID string
	Actor     Actor
}

func (c CompleteBookingCommand) Key() string { return completeBookingKey }

type LifecycleResult struct {
	BookingID   string `json:"booking_id"`
	State       string `json:"state"`
	RefundCents int64  `json:"refund_cents,omitempty"`
}

// LifecycleHandler hosts all booking state transitions. Each transition locks
// the booking row first so concurrent mutations of the same booking serialize.
type LifecycleHandler struct {
	UoWFactory uow.UoWFactory
	Payments   policies.PaymentsPort
	Notifier   policies.Notifier
	Outbox     outbox.Outbox
	Encoder    outbox.EventEncoder
	Logger     *slog.Logger
}

type mutate func(ctx context.Context, unit uow.UnitOfWork, b *domainbooking.Booking) (*LifecycleResult, error)

func (h *LifecycleHandler) withBooking(ctx context.Context, bookingID string, fn mutate) (*LifecycleResult, error) {
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

	id := domainbooking.BookingID(bookingID)
	if err := unit.Locks().LockBooking(ctx, id); err != nil {
		return nil, err
	}
	b, err := unit.Booking().ByID(ctx, id)
	if err != nil {
		if errors.Is(err, domainbooking.ErrBookingNotFound) {
			return nil, apperr.NotFound("booking")
		}
		return nil, err
	}

	result, err := fn(ctx, unit, b)
	if err != nil {
		return nil, err
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
	return result, nil
}

// requireHost checks the actor is the host of the booking's listing.
func (h *LifecycleHandler) requireHost(ctx context.Context, unit uow.UnitOfWork, b *domainbooking.Booking, actor Actor) error {
	if actor.isAdmin() {
		return nil
	}
	listing, err := unit.Listings().ByID(ctx, b.ListingID)
	if err != nil {
		return err
	}
	if string(listing.Host) != actor.UserID {
		return apperr.Authentication("actor is not the listing host")
	}
	return nil
}

func requireGuest(b *domainbooking.Booking, actor Actor) error {
	if actor.isAdmin() {
		return nil
	}
	if b.GuestID != actor.UserID {
		return apperr.Authentication("actor is not the booking guest")
	}
	return nil
}

// requireParty admits the booking guest, the listing host, or an admin.
// Cancellation is the one transition either side may trigger.
func (h *LifecycleHandler) requireParty(ctx context.Context, unit uow.UnitOfWork, b *domainbooking.Booking, actor Actor) error {
	if actor.isAdmin() || b.GuestID == actor.UserID {
		return nil
	}
	listing, err := unit.Listings().ByID(ctx, b.ListingID)
	if err != nil {
		return err
	}
	if string(listing.Host) == actor.UserID {
		return nil
	}
	return apperr.Authentication("actor is neither the booking guest nor the listing host")
}

func (h *LifecycleHandler) HandleApprove(ctx context.Context, cmd ApproveBookingCommand) (*LifecycleResult, error) {
	return h.withBooking(ctx, cmd.BookingID, func(ctx context.Context, unit uow.UnitOfWork, b *domainbooking.Booking) (*LifecycleResult, error) {
		if err := h.requireHost(ctx, unit, b, cmd.Actor); err != nil {
			return nil, err
		}
		if err := b.Approve(time.Now()); err != nil {
			return nil, transitionErr(err)
		}
		h.notifyConfirmed(ctx, b)
		return &LifecycleResult{BookingID: cmd.BookingID, State: string(b.State)}, nil
	})
}

func (h *LifecycleHandler) HandleReject(ctx context.Context, cmd RejectBookingCommand) (*LifecycleResult, error) {
	return h.withBooking(ctx, cmd.BookingID, func(ctx context.Context, unit uow.UnitOfWork, b *domainbooking.Booking) (*LifecycleResult, error) {
		if err := h.requireHost(ctx, unit, b, cmd.Actor); err != nil {
			return nil, err
		}
		if err := b.Reject(cmd.Reason, time.Now()); err != nil {
			return nil, transitionErr(err)
		}
		if b.PaymentIntentID != "" && h.Payments != nil {
			if err := h.Payments.CancelIntent(ctx, b.PaymentIntentID); err != nil {
				h.logger().WarnContext(ctx, "cancel payment intent failed", "booking_id", b.ID, "err", err)
			}
		}
		return &LifecycleResult{BookingID: cmd.BookingID, State: string(b.State)}, nil
	})
}

func (h *LifecycleHandler) HandleCancel(ctx context.Context, cmd CancelBookingCommand) (*LifecycleResult, error) {
	return h.withBooking(ctx, cmd.BookingID, func(ctx context.Context, unit uow.UnitOfWork, b *domainbooking.Booking) (*LifecycleResult, error) {
		if err := h.requireParty(ctx, unit, b, cmd.Actor); err != nil {
			return nil, err
		}
		paid := b.PaymentStatus == domainbooking.PaymentCompleted
		refund, _, err := b.Cancel(cmd.Reason, time.Now())
		if err != nil {
			return nil, transitionErr(err)
		}
		// The refund is requested here; the booking moves to refunded only
		// when the processor confirms it through a webhook.
		if paid && refund.Amount > 0 && h.Payments != nil {
			if err := h.Payments.IssueRefund(ctx, b.PaymentIntentID, refund); err != nil {
				h.logger().WarnContext(ctx, "refund request failed", "booking_id", b.ID, "err", err)
			}
		}
		if h.Notifier != nil {
			if err := h.Notifier.BookingCancelled(ctx, b); err != nil {
				h.logger().WarnContext(ctx, "cancellation notification failed", "booking_id", b.ID, "err", err)
			}
		}
		return &LifecycleResult{BookingID: cmd.BookingID, State: string(b.State), RefundCents: refund.Amount}, nil
	})
}

func (h *LifecycleHandler) HandleCheckIn(ctx context.Context, cmd CheckInCommand) (*LifecycleResult, error) {
	return h.withBooking(ctx, cmd.BookingID, func(ctx context.Context, unit uow.UnitOfWork, b *domainbooking.Booking) (*LifecycleResult, error) {
		if err := requireGuest(b, cmd.Actor); err != nil {
			return nil, err
		}
		if err := b.CheckIn(time.Now()); err != nil {
			return nil, transitionErr(err)
		}
		return &LifecycleResult{BookingID: cmd.BookingID, State: string(b.State)}, nil
	})
}

func (h *LifecycleHandler) HandleCheckOut(ctx context.Context, cmd CheckOutCommand) (*LifecycleResult, error) {
	return h.withBooking(ctx, cmd.BookingID, func(ctx context.Context, unit uow.UnitOfWork, b *domainbooking.Booking) (*LifecycleResult, error) {
		if err := requireGuest(b, cmd.Actor); err != nil {
			return nil, err
		}
		if err := b.CheckOut(time.Now()); err != nil {
			return nil, transitionErr(err)
		}
		return &LifecycleResult{BookingID: cmd.BookingID, State: string(b.State)}, nil
	})
}

func (h *LifecycleHandler) HandleComplete(ctx context.Context, cmd CompleteBookingCommand) (*LifecycleResult, error) {
	return h.withBooking(ctx, cmd.BookingID, func(ctx context.Context, unit uow.UnitOfWork, b *domainbooking.Booking) (*LifecycleResult, error) {
		if err := h.requireHost(ctx, unit, b, cmd.Actor); err != nil {
			return nil, err
		}
		if err := b.Complete(time.Now()); err != nil {
			return nil, transitionErr(err)
		}
		return &LifecycleResult{BookingID: cmd.BookingID, State: string(b.State)}, nil
	})
}

func (h *LifecycleHandler) notifyConfirmed(ctx context.Context, b *domainbooking.Booking) {
	if h.Notifier == nil {
		return
	}
	if err := h.Notifier.BookingConfirmed(ctx, b); err != nil {
		h.logger().WarnContext(ctx, "confirmation notification failed", "booking_id", b.ID, "err", err)
	}
}

func (h *LifecycleHandler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func (h *LifecycleHandler) encoder() outbox.EventEncoder {
	if h.Encoder != nil {
		return h.Encoder
	}
	return outbox.JSONEventEncoder{}
}

// transitionErr wraps a domain transition failure with its transport status.
func transitionErr(err error) error {
	var ste *domainbooking.StateTransitionError
	if errors.As(err, &ste) {
		return apperr.StateTransition(string(ste.From), string(ste.To), ste.Reason).Wrap(ste)
	}
	return err
}

var _ commands.Handler[ApproveBookingCommand, *LifecycleResult] = commands.HandlerFunc[ApproveBookingCommand, *LifecycleResult]((&LifecycleHandler{}).HandleApprove)
