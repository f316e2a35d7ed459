package payments

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripnest/internal/domain/shared/money"
)

var capturedAt = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func capturedPayment(t *testing.T) *Payment {
	t.Helper()
	p, err := NewCapturedPayment(CaptureParams{
		ID:         "pay-1",
		IntentID:   "pi_test_1",
		BookingID:  "bkg-1",
		Amount:     money.Must(350_00, "USD"),
		Processor:  "stripe",
		CapturedAt: capturedAt,
	})
	require.NoError(t, err)
	return p
}

func TestNewCapturedPayment(t *testing.T) {
	p := capturedPayment(t)
	assert.Equal(t, PaymentCompleted, p.Status)
	assert.Equal(t, int64(0), p.RefundedAmount.Amount)
	require.Len(t, p.PendingEvents(), 1)
	assert.Equal(t, "payment.captured", p.PendingEvents()[0].EventName())
}

func TestNewCapturedPaymentRequiresIntent(t *testing.T) {
	_, err := NewCapturedPayment(CaptureParams{Amount: money.Must(1, "USD")})
	assert.ErrorIs(t, err, ErrIntentRequired)
}

func TestApplyRefundPartialThenFull(t *testing.T) {
	p := capturedPayment(t)

	require.NoError(t, p.ApplyRefund(money.Must(100_00, "USD"), capturedAt))
	assert.Equal(t, PaymentPartiallyRefunded, p.Status)

	require.NoError(t, p.ApplyRefund(money.Must(350_00, "USD"), capturedAt))
	assert.Equal(t, PaymentRefunded, p.Status)
	assert.True(t, p.IsRefunded(money.Must(350_00, "USD")))
}

func TestApplyRefundRejectsOverRefund(t *testing.T) {
	p := capturedPayment(t)
	assert.ErrorIs(t, p.ApplyRefund(money.Must(350_01, "USD"), capturedAt), ErrOverRefund)
	assert.ErrorIs(t, p.ApplyRefund(money.Must(100_00, "EUR"), capturedAt), money.ErrCurrencyMismatch)
}

func TestIsRefundedExactMatchOnly(t *testing.T) {
	p := capturedPayment(t)
	require.NoError(t, p.ApplyRefund(money.Must(100_00, "USD"), capturedAt))
	assert.True(t, p.IsRefunded(money.Must(100_00, "USD")))
	assert.False(t, p.IsRefunded(money.Must(99_99, "USD")))
}

func TestNewWebhookEventRequiresID(t *testing.T) {
	_, err := NewWebhookEvent("", "payment_intent.succeeded", "stripe", nil, capturedAt)
	assert.Error(t, err)

	ev, err := NewWebhookEvent("evt_1", "payment_intent.succeeded", "stripe", []byte(`{}`), capturedAt)
	require.NoError(t, err)
	assert.Equal(t, EventProcessing, ev.Status)
}
