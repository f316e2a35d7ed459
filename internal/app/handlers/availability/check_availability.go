package availability

import (
	"context"
	"time"

	"tripnest/internal/app/dto"
	handlersupport "tripnest/internal/app/handlers/support"
	"tripnest/internal/app/queries"
	"tripnest/internal/app/uow"
	"tripnest/internal/apperr"
	domainbooking "tripnest/internal/domain/booking"
	domainlistings "tripnest/internal/domain/listings"
	domainrange "tripnest/internal/domain/shared/daterange"
)

const checkAvailabilityKey = "availability.check"

type CheckAvailabilityQuery struct {
	ListingID string
	From      time.Time
	To        time.Time
}

func (q CheckAvailabilityQuery) Key() string { return checkAvailabilityKey }

// CheckAvailabilityHandler derives availability from the booking ledger:
// dates are free when no occupying booking overlaps them. There is no
// separate calendar to keep in sync.
type CheckAvailabilityHandler struct {
	UoWFactory uow.UoWFactory
}

func (h *CheckAvailabilityHandler) Handle(ctx context.Context, q CheckAvailabilityQuery) (dto.Availability, error) {
	window, err := domainrange.New(q.From, q.To)
	if err != nil {
		return dto.Availability{}, apperr.Validation(err.Error())
	}

	unit, execCtx, cleanup, err := handlersupport.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return dto.Availability{}, err
	}
	if cleanup != nil {
		defer cleanup()
	}

	listingID := domainlistings.ListingID(q.ListingID)
	if _, err := unit.Listings().ByID(execCtx, listingID); err != nil {
		return dto.Availability{}, apperr.NotFound("listing")
	}

	overlapping, err := unit.Booking().FindOverlapping(execCtx, listingID, window, domainbooking.OccupyingStates())
	if err != nil {
		return dto.Availability{}, err
	}

	result := dto.Availability{
		ListingID: q.ListingID,
		From:      window.CheckIn,
		To:        window.CheckOut,
		Available: len(overlapping) == 0,
		Booked:    make([]dto.BookedRange, 0, len(overlapping)),
	}
	for _, b := range overlapping {
		result.Booked = append(result.Booked, dto.BookedRange{
			CheckIn:  b.Range.CheckIn,
			CheckOut: b.Range.CheckOut,
		})
	}
	return result, nil
}

var _ queries.Handler[CheckAvailabilityQuery, dto.Availability] = (*CheckAvailabilityHandler)(nil)
