package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tripnest/internal/app/middleware"
)

// IdempotencyStore keeps command results keyed by the caller's idempotency
// key. Records outlive the transaction that produced them on purpose: a retry
// after a failed attempt should see the recorded error, not re-run the
// command.
type IdempotencyStore struct {
	DB  *gorm.DB
	TTL time.Duration
}

func (s *IdempotencyStore) Get(ctx context.Context, key string) (middleware.IdempotencyRecord, bool, error) {
	var row idempotencyRow
	err := s.DB.WithContext(ctx).Where("key = ?", key).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return middleware.IdempotencyRecord{}, false, nil
		}
		return middleware.IdempotencyRecord{}, false, err
	}
	if s.TTL > 0 && time.Since(row.OccurredAt) > s.TTL {
		return middleware.IdempotencyRecord{}, false, nil
	}
	return middleware.IdempotencyRecord{
		Key:        row.Key,
		Payload:    row.Payload,
		Error:      row.Error,
		OccurredAt: row.OccurredAt,
	}, true, nil
}

func (s *IdempotencyStore) Save(ctx context.Context, rec middleware.IdempotencyRecord) error {
	row := idempotencyRow{
		Key:        rec.Key,
		Payload:    rec.Payload,
		Error:      rec.Error,
		OccurredAt: rec.OccurredAt,
	}
	return s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"payload", "error", "occurred_at"}),
		}).
		Create(&row).Error
}

var _ middleware.IdempotencyStore = (*IdempotencyStore)(nil)
