package uow

import (
	"context"

	domainbooking "tripnest/internal/domain/booking"
	domainlistings "tripnest/internal/domain/listings"
	domainpayments "tripnest/internal/domain/payments"
	domainuser "tripnest/internal/domain/user"
)

// UnitOfWork coordinates repositories inside a transaction boundary.
type UnitOfWork interface {
	Listings() domainlistings.ListingRepository
	Booking() domainbooking.Repository
	Payments() domainpayments.Repository
	WebhookEvents() domainpayments.WebhookEventRepository
	Users() domainuser.Repository
	Locks() Locker

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Locker serializes writers on a contended aggregate for the lifetime of the
// unit of work. Implementations fail fast when the lock is held elsewhere so
// callers can surface a retryable error instead of queueing.
type Locker interface {
	LockListing(ctx context.Context, id domainlistings.ListingID) error
	LockBooking(ctx context.Context, id domainbooking.BookingID) error
	// LockPaymentIntent locks the intent key itself, not a row: the payment
	// row may not exist yet when the first webhook delivery arrives.
	LockPaymentIntent(ctx context.Context, intentID string) error
}

// UoWFactory starts unit of work instances.
type UoWFactory interface {
	Begin(ctx context.Context, opts TxOptions) (UnitOfWork, error)
}

// TxOptions configure transaction boundaries.
type TxOptions struct {
	ReadOnly bool
}
