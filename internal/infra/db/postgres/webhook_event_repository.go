package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	domainpayments "tripnest/internal/domain/payments"
)

// SQLSTATE for a primary key or unique index violation.
const uniqueViolation = "23505"

type WebhookEventRepository struct {
	tx *gorm.DB
}

func (r *WebhookEventRepository) Insert(ctx context.Context, event *domainpayments.WebhookEvent) error {
	row := webhookEventToRow(event)
	err := r.tx.WithContext(ctx).Create(&row).Error
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domainpayments.ErrDuplicateEvent
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domainpayments.ErrDuplicateEvent
		}
		return err
	}
	return nil
}

func (r *WebhookEventRepository) ByID(ctx context.Context, id string) (*domainpayments.WebhookEvent, error) {
	var row webhookEventRow
	err := r.tx.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainpayments.ErrEventNotFound
		}
		return nil, err
	}
	return rowToWebhookEvent(row), nil
}

func (r *WebhookEventRepository) MarkProcessed(ctx context.Context, id string, at time.Time) error {
	return r.updateStatus(ctx, id, domainpayments.EventProcessed, "", at)
}

func (r *WebhookEventRepository) MarkFailed(ctx context.Context, id string, reason string, at time.Time) error {
	return r.updateStatus(ctx, id, domainpayments.EventFailed, reason, at)
}

func (r *WebhookEventRepository) updateStatus(ctx context.Context, id string, status domainpayments.WebhookEventStatus, reason string, at time.Time) error {
	res := r.tx.WithContext(ctx).
		Model(&webhookEventRow{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     string(status),
			"error":      reason,
			"updated_at": at.UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domainpayments.ErrEventNotFound
	}
	return nil
}

var _ domainpayments.WebhookEventRepository = (*WebhookEventRepository)(nil)
