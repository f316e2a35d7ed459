package postgres

import (
	"context"
	"errors"

	"gorm.io/gorm"

	domainbooking "tripnest/internal/domain/booking"
	domainlistings "tripnest/internal/domain/listings"
	"tripnest/internal/domain/shared/daterange"
)

type BookingRepository struct {
	tx *gorm.DB
}

func (r *BookingRepository) ByID(ctx context.Context, id domainbooking.BookingID) (*domainbooking.Booking, error) {
	var row bookingRow
	err := r.tx.WithContext(ctx).Where("id = ?", string(id)).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainbooking.ErrBookingNotFound
		}
		return nil, err
	}
	return rowToBooking(row)
}

// Save persists the booking with an optimistic version check: updates filter
// on the version the caller loaded, so a lost race surfaces as
// ErrConcurrentUpdate instead of silently overwriting.
func (r *BookingRepository) Save(ctx context.Context, b *domainbooking.Booking) error {
	prev := b.Version
	b.Version++
	row, err := bookingToRow(b)
	if err != nil {
		return err
	}
	if prev == 0 {
		return r.tx.WithContext(ctx).Create(&row).Error
	}
	res := r.tx.WithContext(ctx).
		Model(&bookingRow{}).
		Where("id = ? AND version = ?", row.ID, prev).
		Select("*").Omit("id", "created_at").
		Updates(row)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domainbooking.ErrConcurrentUpdate
	}
	return nil
}

func (r *BookingRepository) ListByGuest(ctx context.Context, guestID string) ([]*domainbooking.Booking, error) {
	var rows []bookingRow
	err := r.tx.WithContext(ctx).
		Where("guest_id = ?", guestID).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rowsToBookings(rows)
}

func (r *BookingRepository) ListByListing(ctx context.Context, listingID domainlistings.ListingID) ([]*domainbooking.Booking, error) {
	var rows []bookingRow
	err := r.tx.WithContext(ctx).
		Where("listing_id = ?", string(listingID)).
		Order("check_in ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rowsToBookings(rows)
}

// FindOverlapping applies the half-open overlap predicate in SQL:
// [a,b) and [c,d) intersect iff a < d and c < b.
func (r *BookingRepository) FindOverlapping(ctx context.Context, listingID domainlistings.ListingID, dr daterange.DateRange, states []domainbooking.BookingState) ([]*domainbooking.Booking, error) {
	stateValues := make([]string, 0, len(states))
	for _, s := range states {
		stateValues = append(stateValues, string(s))
	}
	var rows []bookingRow
	err := r.tx.WithContext(ctx).
		Where("listing_id = ? AND state IN ?", string(listingID), stateValues).
		Where("check_in < ? AND ? < check_out", dr.CheckOut, dr.CheckIn).
		Order("check_in ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rowsToBookings(rows)
}

func (r *BookingRepository) ByPaymentIntent(ctx context.Context, intentID string) (*domainbooking.Booking, error) {
	var row bookingRow
	err := r.tx.WithContext(ctx).
		Where("payment_intent_id = ? AND payment_intent_id <> ''", intentID).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainbooking.ErrBookingNotFound
		}
		return nil, err
	}
	return rowToBooking(row)
}

func (r *BookingRepository) AnonymizeGuest(ctx context.Context, guestID string) error {
	return r.tx.WithContext(ctx).
		Model(&bookingRow{}).
		Where("guest_id = ?", guestID).
		Updates(map[string]any{
			"guest_id":         domainbooking.AnonymizedGuestID,
			"special_requests": "",
		}).Error
}

func rowsToBookings(rows []bookingRow) ([]*domainbooking.Booking, error) {
	out := make([]*domainbooking.Booking, 0, len(rows))
	for _, row := range rows {
		b, err := rowToBooking(row)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

var _ domainbooking.Repository = (*BookingRepository)(nil)
