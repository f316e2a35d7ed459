package payments

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrDuplicateEvent signals that the event id was already recorded in the
	// ledger. Callers treat it as "already handled", not as a failure.
	ErrDuplicateEvent = errors.New("payments: webhook event already recorded")
	ErrEventNotFound  = errors.New("payments: webhook event not found")
)

type WebhookEventStatus string

const (
	EventProcessing WebhookEventStatus = "PROCESSING"
	EventProcessed  WebhookEventStatus = "PROCESSED"
	EventFailed     WebhookEventStatus = "FAILED"
)

// WebhookEvent is the dedup ledger row for one processor delivery. The id is
// the processor's event id, so inserting the same delivery twice violates the
// primary key and surfaces as ErrDuplicateEvent.
type WebhookEvent struct {
	ID         string
	Type       string
	Source     string
	Payload    []byte
	Status     WebhookEventStatus
	Error      string
	ReceivedAt time.Time
	UpdatedAt  time.Time
}

type WebhookEventRepository interface {
	// Insert records the event in the PROCESSING state before any business
	// mutation happens. Returns ErrDuplicateEvent if the id exists.
	Insert(ctx context.Context, event *WebhookEvent) error
	ByID(ctx context.Context, id string) (*WebhookEvent, error)
	MarkProcessed(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id string, reason string, at time.Time) error
}

func NewWebhookEvent(id, eventType, source string, payload []byte, receivedAt time.Time) (*WebhookEvent, error) {
	if id == "" {
		return nil, errors.New("payments: webhook event id is required")
	}
	now := receivedAt.UTC()
	return &WebhookEvent{
		ID:         id,
		Type:       eventType,
		Source:     source,
		Payload:    payload,
		Status:     EventProcessing,
		ReceivedAt: now,
		UpdatedAt:  now,
	}, nil
}
