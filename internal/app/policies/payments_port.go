package policies

import (
	"context"

	"tripnest/internal/domain/shared/money"
)

// PaymentsPort abstracts the external payment processor. Creating an intent
// reserves an idempotency-bearing identifier with the processor; the actual
// capture is reported back asynchronously through webhooks.
type PaymentsPort interface {
	CreateIntent(ctx context.Context, bookingID string, amount money.Money) (string, error)
	CancelIntent(ctx context.Context, intentID string) error
	IssueRefund(ctx context.Context, intentID string, amount money.Money) error
}
