package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tripnest/internal/apperr"
	domainbooking "tripnest/internal/domain/booking"
	domainlistings "tripnest/internal/domain/listings"
)

// SQLSTATE raised by FOR UPDATE NOWAIT when the row is already locked.
const lockNotAvailable = "55P03"

// Locks serializes writers with Postgres locks scoped to the transaction.
// NOWAIT keeps contention visible: the loser fails fast with a transient
// error instead of queueing behind the winner.
type Locks struct {
	tx *gorm.DB
}

func (l *Locks) LockListing(ctx context.Context, id domainlistings.ListingID) error {
	var row listingRow
	err := l.tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE", Options: "NOWAIT"}).
		Where("id = ?", string(id)).
		Take(&row).Error
	return mapLockErr(err, "listing")
}

func (l *Locks) LockBooking(ctx context.Context, id domainbooking.BookingID) error {
	var row bookingRow
	err := l.tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE", Options: "NOWAIT"}).
		Where("id = ?", string(id)).
		Take(&row).Error
	return mapLockErr(err, "booking")
}

// LockPaymentIntent uses a transaction-scoped advisory lock: the payment row
// may not exist yet when the first event for the intent arrives.
func (l *Locks) LockPaymentIntent(ctx context.Context, intentID string) error {
	var acquired bool
	err := l.tx.WithContext(ctx).
		Raw("SELECT pg_try_advisory_xact_lock(hashtext(?))", intentID).
		Scan(&acquired).Error
	if err != nil {
		return err
	}
	if !acquired {
		return apperr.Transient("payment intent is being processed", nil)
	}
	return nil
}

func mapLockErr(err error, resource string) error {
	if err == nil {
		return nil
	}
	// A missing row is not a locking failure; existence is checked by the
	// repository read that follows.
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == lockNotAvailable {
		return apperr.Transient(resource+" is locked by another request", err)
	}
	return err
}
