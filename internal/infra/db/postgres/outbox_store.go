package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	appoutbox "tripnest/internal/app/outbox"
	"tripnest/internal/app/uow"
	infraoutbox "tripnest/internal/infra/outbox"
)

// OutboxStore persists domain events in the same transaction as the state
// change that produced them, and hands them to the relay worker afterwards.
type OutboxStore struct {
	DB *gorm.DB
}

// Add writes the record through the active unit of work so the event commits
// or rolls back together with the business mutation.
func (s *OutboxStore) Add(ctx context.Context, record appoutbox.EventRecord) error {
	tx := s.DB
	if unit, ok := uow.FromContext(ctx); ok {
		if pgUnit, ok := unit.(*Unit); ok {
			tx = pgUnit.Tx()
		}
	}
	headers, err := json.Marshal(record.Headers)
	if err != nil {
		return err
	}
	row := outboxRow{
		ID:            record.ID,
		Name:          record.Name,
		Payload:       record.Payload,
		OccurredAt:    record.OccurredAt.UTC(),
		Aggregate:     record.Aggregate,
		Headers:       headers,
		State:         infraoutbox.StateNew,
		NextAttemptAt: time.Now().UTC(),
		CreatedAt:     time.Now().UTC(),
	}
	return tx.WithContext(ctx).Create(&row).Error
}

// Flush is a no-op: rows become visible to the worker on transaction commit.
func (s *OutboxStore) Flush(ctx context.Context) error { return nil }

// Claim picks the oldest due entry with SKIP LOCKED so concurrent workers
// never grab the same row, then flips it to CLAIMED in the same transaction.
func (s *OutboxStore) Claim(ctx context.Context, workerID string) (*infraoutbox.EventDocument, error) {
	var claimed *outboxRow
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row outboxRow
		err := tx.
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("state IN ? AND next_attempt_at <= ?", []string{infraoutbox.StateNew, infraoutbox.StateFailed}, time.Now().UTC()).
			Order("created_at ASC").
			Take(&row).Error
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		res := tx.Model(&outboxRow{}).
			Where("id = ?", row.ID).
			Updates(map[string]any{
				"state":      infraoutbox.StateClaimed,
				"claimed_by": workerID,
				"claimed_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		row.State = infraoutbox.StateClaimed
		row.ClaimedBy = workerID
		row.ClaimedAt = &now
		claimed = &row
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return rowToEventDocument(claimed)
}

func (s *OutboxStore) MarkSent(ctx context.Context, id string) error {
	return s.DB.WithContext(ctx).
		Model(&outboxRow{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"state":   infraoutbox.StateSent,
			"sent_at": time.Now().UTC(),
		}).Error
}

func (s *OutboxStore) MarkFailed(ctx context.Context, id string, next time.Time, errMsg string) error {
	return s.DB.WithContext(ctx).
		Model(&outboxRow{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"state":           infraoutbox.StateFailed,
			"attempts":        gorm.Expr("attempts + 1"),
			"next_attempt_at": next.UTC(),
			"last_error":      errMsg,
		}).Error
}

func rowToEventDocument(row *outboxRow) (*infraoutbox.EventDocument, error) {
	headers := map[string]string{}
	if len(row.Headers) > 0 {
		if err := json.Unmarshal(row.Headers, &headers); err != nil {
			return nil, err
		}
	}
	doc := &infraoutbox.EventDocument{
		ID:          row.ID,
		Name:        row.Name,
		Payload:     row.Payload,
		OccurredAt:  row.OccurredAt,
		Aggregate:   row.Aggregate,
		Headers:     headers,
		State:       row.State,
		Attempts:    row.Attempts,
		NextAttempt: row.NextAttemptAt,
		ClaimedBy:   row.ClaimedBy,
		LastError:   row.LastError,
	}
	if row.ClaimedAt != nil {
		doc.ClaimedAt = *row.ClaimedAt
	}
	if row.SentAt != nil {
		doc.SentAt = *row.SentAt
	}
	return doc, nil
}

var (
	_ appoutbox.Outbox  = (*OutboxStore)(nil)
	_ infraoutbox.Store = (*OutboxStore)(nil)
)
