package payments

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"tripnest/internal/app/handlers/payments"
	"tripnest/internal/app/policies"
	"tripnest/internal/apperr"
	"tripnest/internal/domain/shared/money"
)

// eventEnvelope is the wire shape of a processor delivery.
type eventEnvelope struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		PaymentIntentID string `json:"payment_intent_id"`
		BookingID       string `json:"booking_id"`
		AmountCents     int64  `json:"amount_cents"`
		RefundedCents   int64  `json:"refunded_cents"`
		Currency        string `json:"currency"`
		FailureReason   string `json:"failure_reason"`
	} `json:"data"`
}

// ParseEvent decodes a verified webhook body into the processing command.
// Verification must happen before this is called.
func ParseEvent(body []byte, receivedAt time.Time) (payments.ProcessPaymentEventCommand, error) {
	var envelope eventEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return payments.ProcessPaymentEventCommand{}, apperr.Validation("malformed webhook payload")
	}
	if envelope.ID == "" {
		return payments.ProcessPaymentEventCommand{}, apperr.Validation("webhook event id is required")
	}
	return payments.ProcessPaymentEventCommand{
		EventID:       envelope.ID,
		EventType:     envelope.Type,
		Source:        "webhook",
		IntentID:      envelope.Data.PaymentIntentID,
		BookingID:     envelope.Data.BookingID,
		AmountCents:   envelope.Data.AmountCents,
		RefundedCents: envelope.Data.RefundedCents,
		Currency:      envelope.Data.Currency,
		FailureReason: envelope.Data.FailureReason,
		Raw:           body,
		ReceivedAt:    receivedAt,
	}, nil
}

// SandboxProvider is a local stand-in for the external processor. It mints
// intent ids and remembers refund requests; captures arrive only through
// webhook deliveries, mirroring the asynchronous production flow.
type SandboxProvider struct {
	mu      sync.Mutex
	intents map[string]string // intent id -> booking id
	refunds map[string]int64  // intent id -> requested cents
}

func NewSandboxProvider() *SandboxProvider {
	return &SandboxProvider{
		intents: make(map[string]string),
		refunds: make(map[string]int64),
	}
}

func (p *SandboxProvider) CreateIntent(_ context.Context, bookingID string, _ money.Money) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := "pi_" + uuid.NewString()
	p.intents[id] = bookingID
	return id, nil
}

func (p *SandboxProvider) CancelIntent(_ context.Context, intentID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.intents, intentID)
	return nil
}

func (p *SandboxProvider) IssueRefund(_ context.Context, intentID string, amount money.Money) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refunds[intentID] += amount.Amount
	return nil
}

var _ policies.PaymentsPort = (*SandboxProvider)(nil)
