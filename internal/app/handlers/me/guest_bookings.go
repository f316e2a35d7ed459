package me

import (
	"context"
	"log/slog"
	"strings"

	"tripnest/internal/app/dto"
	handlersupport "tripnest/internal/app/handlers/support"
	"tripnest/internal/app/queries"
	"tripnest/internal/app/uow"
	"tripnest/internal/apperr"
	domainlistings "tripnest/internal/domain/listings"
)

const listGuestBookingsKey = "me.bookings.list"

type ListGuestBookingsQuery struct {
	GuestID string
}

func (q ListGuestBookingsQuery) Key() string { return listGuestBookingsKey }

type ListGuestBookingsHandler struct {
	UoWFactory uow.UoWFactory
	Logger     *slog.Logger
}

func (h *ListGuestBookingsHandler) Handle(ctx context.Context, q ListGuestBookingsQuery) (dto.BookingCollection, error) {
	guestID := strings.TrimSpace(q.GuestID)
	if guestID == "" {
		return dto.BookingCollection{}, apperr.Validation("guest id is required")
	}
	unit, execCtx, cleanup, err := handlersupport.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return dto.BookingCollection{}, err
	}
	if cleanup != nil {
		defer cleanup()
	}

	bookings, err := unit.Booking().ListByGuest(execCtx, guestID)
	if err != nil {
		return dto.BookingCollection{}, err
	}

	listingCache := make(map[domainlistings.ListingID]*domainlistings.Listing)
	items := make([]dto.BookingView, 0, len(bookings))
	for _, b := range bookings {
		listing, ok := listingCache[b.ListingID]
		if !ok {
			listing, err = unit.Listings().ByID(execCtx, b.ListingID)
			if err != nil {
				if h.Logger != nil {
					h.Logger.Warn("listing missing for booking", "booking_id", b.ID, "listing_id", b.ListingID, "error", err)
				}
				listing = nil
			}
			listingCache[b.ListingID] = listing
		}
		items = append(items, dto.MapBookingView(b, listing))
	}

	return dto.BookingCollection{Items: items}, nil
}

var _ queries.Handler[ListGuestBookingsQuery, dto.BookingCollection] = (*ListGuestBookingsHandler)(nil)
