package booking

import (
	"context"
	"errors"

	"tripnest/internal/app/dto"
	handlersupport "tripnest/internal/app/handlers/support"
	"tripnest/internal/app/queries"
	"tripnest/internal/app/uow"
	"tripnest/internal/apperr"
	domainbooking "tripnest/internal/domain/booking"
)

const getBookingKey = "booking.get"

type GetBookingQuery struct {
	BookingID string
	Actor     Actor
}

func (q GetBookingQuery) Key() string { return getBookingKey }

type GetBookingHandler struct {
	UoWFactory uow.UoWFactory
}

// Handle returns the booking to its guest, the listing host, or an admin.
func (h *GetBookingHandler) Handle(ctx context.Context, q GetBookingQuery) (dto.BookingView, error) {
	unit, execCtx, cleanup, err := handlersupport.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return dto.BookingView{}, err
	}
	if cleanup != nil {
		defer cleanup()
	}

	b, err := unit.Booking().ByID(execCtx, domainbooking.BookingID(q.BookingID))
	if err != nil {
		if errors.Is(err, domainbooking.ErrBookingNotFound) {
			return dto.BookingView{}, apperr.NotFound("booking")
		}
		return dto.BookingView{}, err
	}

	listing, err := unit.Listings().ByID(execCtx, b.ListingID)
	if err != nil {
		listing = nil
	}

	if !q.Actor.isAdmin() && b.GuestID != q.Actor.UserID {
		if listing == nil || string(listing.Host) != q.Actor.UserID {
			return dto.BookingView{}, apperr.NotFound("booking")
		}
	}

	return dto.MapBookingView(b, listing), nil
}

var _ queries.Handler[GetBookingQuery, dto.BookingView] = (*GetBookingHandler)(nil)
