package postgres

import (
	"context"
	"errors"

	"gorm.io/gorm"

	domainpayments "tripnest/internal/domain/payments"
)

type PaymentRepository struct {
	tx *gorm.DB
}

func (r *PaymentRepository) ByIntentID(ctx context.Context, intentID string) (*domainpayments.Payment, error) {
	var row paymentRow
	err := r.tx.WithContext(ctx).Where("intent_id = ?", intentID).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainpayments.ErrPaymentNotFound
		}
		return nil, err
	}
	return rowToPayment(row), nil
}

// Save applies the same version-filtered update discipline as bookings.
func (r *PaymentRepository) Save(ctx context.Context, p *domainpayments.Payment) error {
	prev := p.Version
	p.Version++
	row := paymentToRow(p)
	if prev == 0 {
		return r.tx.WithContext(ctx).Create(&row).Error
	}
	res := r.tx.WithContext(ctx).
		Model(&paymentRow{}).
		Where("id = ? AND version = ?", row.ID, prev).
		Select("*").Omit("id", "created_at").
		Updates(row)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domainpayments.ErrConcurrentUpdate
	}
	return nil
}

var _ domainpayments.Repository = (*PaymentRepository)(nil)
