package postgres

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"tripnest/internal/app/uow"
	domainbooking "tripnest/internal/domain/booking"
	domainlistings "tripnest/internal/domain/listings"
	domainpayments "tripnest/internal/domain/payments"
	domainuser "tripnest/internal/domain/user"
)

// Factory opens gorm transactions as unit-of-work boundaries.
type Factory struct {
	DB *gorm.DB
}

var ErrFactoryMisconfigured = errors.New("postgres: unit of work factory misconfigured")

func (f Factory) Begin(ctx context.Context, opts uow.TxOptions) (uow.UnitOfWork, error) {
	if f.DB == nil {
		return nil, ErrFactoryMisconfigured
	}
	tx := f.DB.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}
	return &Unit{tx: tx}, nil
}

// Unit wraps one gorm transaction. Row and advisory locks taken through
// Locks() are released by Postgres when the transaction ends.
type Unit struct {
	tx   *gorm.DB
	done bool
}

func (u *Unit) Listings() domainlistings.ListingRepository {
	return &ListingRepository{tx: u.tx}
}

func (u *Unit) Booking() domainbooking.Repository {
	return &BookingRepository{tx: u.tx}
}

func (u *Unit) Payments() domainpayments.Repository {
	return &PaymentRepository{tx: u.tx}
}

func (u *Unit) WebhookEvents() domainpayments.WebhookEventRepository {
	return &WebhookEventRepository{tx: u.tx}
}

func (u *Unit) Users() domainuser.Repository {
	return &UserRepository{tx: u.tx}
}

func (u *Unit) Locks() uow.Locker {
	return &Locks{tx: u.tx}
}

// Tx exposes the transaction for stores that must write inside the same
// boundary (outbox).
func (u *Unit) Tx() *gorm.DB {
	return u.tx
}

func (u *Unit) Commit(ctx context.Context) error {
	if u.done {
		return nil
	}
	u.done = true
	return u.tx.Commit().Error
}

func (u *Unit) Rollback(ctx context.Context) error {
	if u.done {
		return nil
	}
	u.done = true
	return u.tx.Rollback().Error
}
