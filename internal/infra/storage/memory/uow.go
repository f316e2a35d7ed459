package memory

import (
	"context"
	"errors"

	"tripnest/internal/app/uow"
	domainbooking "tripnest/internal/domain/booking"
	domainlistings "tripnest/internal/domain/listings"
	domainpayments "tripnest/internal/domain/payments"
	domainuser "tripnest/internal/domain/user"
)

// Factory wires in-memory repositories into a unit-of-work boundary.
type Factory struct {
	ListingsRepo  domainlistings.ListingRepository
	BookingRepo   domainbooking.Repository
	PaymentsRepo  domainpayments.Repository
	WebhookEvents domainpayments.WebhookEventRepository
	UsersRepo     domainuser.Repository
	LockRegistry  *LockRegistry
}

// NewFactory builds a factory with fresh in-memory stores.
func NewFactory() Factory {
	return Factory{
		ListingsRepo:  NewListingRepository(),
		BookingRepo:   NewBookingRepository(),
		PaymentsRepo:  NewPaymentRepository(),
		WebhookEvents: NewWebhookEventStore(),
		UsersRepo:     NewUserRepository(),
		LockRegistry:  NewLockRegistry(),
	}
}

// ErrFactoryMisconfigured indicates missing repositories.
var ErrFactoryMisconfigured = errors.New("memory: unit of work factory misconfigured")

// Begin starts a lightweight transaction boundary. Writes are not isolated,
// but the lock registry gives the same writer exclusion the relational store
// enforces with row locks: locks taken during the unit are held until Commit
// or Rollback.
func (f Factory) Begin(ctx context.Context, opts uow.TxOptions) (uow.UnitOfWork, error) {
	if f.ListingsRepo == nil || f.BookingRepo == nil || f.PaymentsRepo == nil || f.WebhookEvents == nil {
		return nil, ErrFactoryMisconfigured
	}
	registry := f.LockRegistry
	if registry == nil {
		registry = NewLockRegistry()
	}
	return &Unit{
		listings:      f.ListingsRepo,
		booking:       f.BookingRepo,
		payments:      f.PaymentsRepo,
		webhookEvents: f.WebhookEvents,
		users:         f.UsersRepo,
		locks:         newUnitLocks(registry),
	}, nil
}

// Unit is a lightweight uow.UnitOfWork backed by in-memory stores.
type Unit struct {
	listings      domainlistings.ListingRepository
	booking       domainbooking.Repository
	payments      domainpayments.Repository
	webhookEvents domainpayments.WebhookEventRepository
	users         domainuser.Repository
	locks         *unitLocks
	done          bool
}

func (u *Unit) Listings() domainlistings.ListingRepository {
	return u.listings
}

func (u *Unit) Booking() domainbooking.Repository {
	return u.booking
}

func (u *Unit) Payments() domainpayments.Repository {
	return u.payments
}

func (u *Unit) WebhookEvents() domainpayments.WebhookEventRepository {
	return u.webhookEvents
}

func (u *Unit) Users() domainuser.Repository {
	return u.users
}

func (u *Unit) Locks() uow.Locker {
	return u.locks
}

func (u *Unit) Commit(ctx context.Context) error {
	if !u.done {
		u.locks.releaseAll()
		u.done = true
	}
	return nil
}

func (u *Unit) Rollback(ctx context.Context) error {
	if !u.done {
		u.locks.releaseAll()
		u.done = true
	}
	return nil
}
