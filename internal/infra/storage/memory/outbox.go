package memory

import (
	"context"
	"sync"
	"time"

	appoutbox "tripnest/internal/app/outbox"
	infraoutbox "tripnest/internal/infra/outbox"
)

// Outbox stages event records and exposes them as a relay-worker store. Add
// appends immediately (memory units have no deferred commit); Flush is a
// no-op kept for the middleware contract.
type Outbox struct {
	mu      sync.Mutex
	records map[string]*infraoutbox.EventDocument
	order   []string
}

func NewOutbox() *Outbox {
	return &Outbox{records: make(map[string]*infraoutbox.EventDocument)}
}

func (o *Outbox) Add(ctx context.Context, record appoutbox.EventRecord) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	doc := &infraoutbox.EventDocument{
		ID:          record.ID,
		Name:        record.Name,
		Payload:     record.Payload,
		OccurredAt:  record.OccurredAt,
		Aggregate:   record.Aggregate,
		Headers:     record.Headers,
		State:       infraoutbox.StateNew,
		NextAttempt: time.Now().UTC(),
	}
	o.records[record.ID] = doc
	o.order = append(o.order, record.ID)
	return nil
}

func (o *Outbox) Flush(ctx context.Context) error {
	return nil
}

func (o *Outbox) Claim(ctx context.Context, workerID string) (*infraoutbox.EventDocument, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	now := time.Now().UTC()
	for _, id := range o.order {
		doc := o.records[id]
		if doc.State != infraoutbox.StateNew && doc.State != infraoutbox.StateFailed {
			continue
		}
		if doc.NextAttempt.After(now) {
			continue
		}
		doc.State = infraoutbox.StateClaimed
		doc.ClaimedBy = workerID
		doc.ClaimedAt = now
		clone := *doc
		return &clone, nil
	}
	return nil, nil
}

func (o *Outbox) MarkSent(ctx context.Context, id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if doc, ok := o.records[id]; ok {
		doc.State = infraoutbox.StateSent
		doc.SentAt = time.Now().UTC()
	}
	return nil
}

func (o *Outbox) MarkFailed(ctx context.Context, id string, next time.Time, errMsg string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if doc, ok := o.records[id]; ok {
		doc.State = infraoutbox.StateFailed
		doc.NextAttempt = next
		doc.LastError = errMsg
		doc.Attempts++
	}
	return nil
}

var _ appoutbox.Outbox = (*Outbox)(nil)
var _ infraoutbox.Store = (*Outbox)(nil)
