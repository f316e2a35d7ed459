package payments

import (
	"context"
	"errors"
	"time"

	"tripnest/internal/domain/booking"
	"tripnest/internal/domain/shared/events"
	"tripnest/internal/domain/shared/money"
)

var (
	ErrPaymentNotFound  = errors.New("payments: not found")
	ErrIntentRequired   = errors.New("payments: intent id is required")
	ErrOverRefund       = errors.New("payments: refund exceeds captured amount")
	ErrConcurrentUpdate = errors.New("payments: concurrent update")
)

type PaymentID string

type PaymentStatus string

const (
	PaymentInitiated         PaymentStatus = "INITIATED"
	PaymentCompleted         PaymentStatus = "COMPLETED"
	PaymentFailed            PaymentStatus = "FAILED"
	PaymentRefunded          PaymentStatus = "REFUNDED"
	PaymentPartiallyRefunded PaymentStatus = "PARTIALLY_REFUNDED"
)

// Payment is the internal record of money movement for a booking, keyed by
// the processor's intent id. One intent maps to at most one payment row;
// duplicate webhook deliveries must never create a second one.
type Payment struct {
	ID              PaymentID
	IntentID        string
	BookingID       booking.BookingID
	Amount          money.Money
	RefundedAmount  money.Money
	Status          PaymentStatus
	Processor       string
	ProcessorRef    string
	FailureDetail   string
	CapturedAt      time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
	Version         int64
	events.EventRecorder
}

type Repository interface {
	ByIntentID(ctx context.Context, intentID string) (*Payment, error)
	Save(ctx context.Context, payment *Payment) error
}

type CaptureParams struct {
	ID           PaymentID
	IntentID     string
	BookingID    booking.BookingID
	Amount       money.Money
	Processor    string
	ProcessorRef string
	CapturedAt   time.Time
}

// NewCapturedPayment records a successful capture reported by the processor.
func NewCapturedPayment(params CaptureParams) (*Payment, error) {
	if params.IntentID == "" {
		return nil, ErrIntentRequired
	}
	if params.Amount.Currency == "" {
		return nil, money.ErrInvalidCurrency
	}
	now := params.CapturedAt.UTC()
	p := &Payment{
		ID:             params.ID,
		IntentID:       params.IntentID,
		BookingID:      params.BookingID,
		Amount:         params.Amount,
		RefundedAmount: money.Money{Amount: 0, Currency: params.Amount.Currency},
		Status:         PaymentCompleted,
		Processor:      params.Processor,
		ProcessorRef:   params.ProcessorRef,
		CapturedAt:     now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	p.Record(PaymentCaptured{PaymentID: p.ID, IntentID: p.IntentID, BookingID: p.BookingID, Amount: p.Amount, At: now})
	return p, nil
}

// NewFailedPayment records a capture attempt the processor reported as failed.
func NewFailedPayment(params CaptureParams, detail string) (*Payment, error) {
	if params.IntentID == "" {
		return nil, ErrIntentRequired
	}
	now := params.CapturedAt.UTC()
	p := &Payment{
		ID:            params.ID,
		IntentID:      params.IntentID,
		BookingID:     params.BookingID,
		Amount:        params.Amount,
		Status:        PaymentFailed,
		Processor:     params.Processor,
		ProcessorRef:  params.ProcessorRef,
		FailureDetail: detail,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	p.Record(PaymentFailedEvent{PaymentID: p.ID, IntentID: p.IntentID, Detail: detail, At: now})
	return p, nil
}

// IsRefunded reports whether a refund of this cumulative amount was already
// applied, which lets the processor treat redeliveries as no-ops.
func (p *Payment) IsRefunded(cumulative money.Money) bool {
	return p.RefundedAmount.Equal(cumulative) &&
		(p.Status == PaymentRefunded || p.Status == PaymentPartiallyRefunded)
}

// ApplyRefund records the cumulative refunded amount from the processor. A
// refund equal to the captured amount marks the payment fully refunded.
func (p *Payment) ApplyRefund(cumulative money.Money, now time.Time) error {
	if cumulative.Currency != p.Amount.Currency {
		return money.ErrCurrencyMismatch
	}
	if cumulative.Amount < 0 || cumulative.Amount > p.Amount.Amount {
		return ErrOverRefund
	}
	now = now.UTC()
	p.RefundedAmount = cumulative
	if cumulative.Equal(p.Amount) {
		p.Status = PaymentRefunded
	} else {
		p.Status = PaymentPartiallyRefunded
	}
	p.UpdatedAt = now
	p.Record(PaymentRefundedEvent{PaymentID: p.ID, IntentID: p.IntentID, BookingID: p.BookingID, Amount: cumulative, Full: p.Status == PaymentRefunded, At: now})
	return nil
}

// MarkFailed flips an initiated payment to failed.
func (p *Payment) MarkFailed(detail string, now time.Time) {
	p.Status = PaymentFailed
	p.FailureDetail = detail
	p.UpdatedAt = now.UTC()
	p.Record(PaymentFailedEvent{PaymentID: p.ID, IntentID: p.IntentID, Detail: detail, At: p.UpdatedAt})
}
