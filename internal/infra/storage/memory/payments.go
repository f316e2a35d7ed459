package memory

import (
	"context"
	"sync"
	"time"

	domainpayments "tripnest/internal/domain/payments"
)

// PaymentRepository keeps payments in memory, indexed by intent id.
type PaymentRepository struct {
	mu       sync.RWMutex
	byIntent map[string]*domainpayments.Payment
}

func NewPaymentRepository() *PaymentRepository {
	return &PaymentRepository{byIntent: make(map[string]*domainpayments.Payment)}
}

func (r *PaymentRepository) ByIntentID(ctx context.Context, intentID string) (*domainpayments.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byIntent[intentID]
	if !ok {
		return nil, domainpayments.ErrPaymentNotFound
	}
	clone := *p
	return &clone, nil
}

func (r *PaymentRepository) Save(ctx context.Context, p *domainpayments.Payment) error {
	if p.IntentID == "" {
		return domainpayments.ErrIntentRequired
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byIntent[p.IntentID]; ok && existing.Version != p.Version {
		return domainpayments.ErrConcurrentUpdate
	}
	p.Version++
	clone := *p
	r.byIntent[p.IntentID] = &clone
	return nil
}

// WebhookEventStore is the in-memory dedup ledger. Insert is atomic under the
// mutex, mirroring the unique-key insert the relational store relies on.
type WebhookEventStore struct {
	mu    sync.Mutex
	items map[string]*domainpayments.WebhookEvent
}

func NewWebhookEventStore() *WebhookEventStore {
	return &WebhookEventStore{items: make(map[string]*domainpayments.WebhookEvent)}
}

func (s *WebhookEventStore) Insert(ctx context.Context, event *domainpayments.WebhookEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.items[event.ID]; exists {
		return domainpayments.ErrDuplicateEvent
	}
	clone := *event
	s.items[event.ID] = &clone
	return nil
}

func (s *WebhookEventStore) ByID(ctx context.Context, id string) (*domainpayments.WebhookEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.items[id]
	if !ok {
		return nil, domainpayments.ErrEventNotFound
	}
	clone := *ev
	return &clone, nil
}

func (s *WebhookEventStore) MarkProcessed(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.items[id]
	if !ok {
		return domainpayments.ErrEventNotFound
	}
	ev.Status = domainpayments.EventProcessed
	ev.Error = ""
	ev.UpdatedAt = at.UTC()
	return nil
}

func (s *WebhookEventStore) MarkFailed(ctx context.Context, id string, reason string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.items[id]
	if !ok {
		return domainpayments.ErrEventNotFound
	}
	ev.Status = domainpayments.EventFailed
	ev.Error = reason
	ev.UpdatedAt = at.UTC()
	return nil
}

var _ domainpayments.Repository = (*PaymentRepository)(nil)
var _ domainpayments.WebhookEventRepository = (*WebhookEventStore)(nil)
