package payments

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"tripnest/internal/app/commands"
	"tripnest/internal/app/outbox"
	"tripnest/internal/app/policies"
	"tripnest/internal/app/uow"
	"tripnest/internal/apperr"
	domainbooking "tripnest/internal/domain/booking"
	domainpayments "tripnest/internal/domain/payments"
	"tripnest/internal/domain/shared/money"
)

const processPaymentEventKey = "payments.process_event"

// Event types the processor understands. Anything else is acknowledged and
// recorded without touching business state.
const (
	EventPaymentSucceeded = "payment_intent.succeeded"
	EventPaymentFailed    = "payment_intent.payment_failed"
	EventChargeRefunded   = "charge.refunded"
)

type Outcome string

const (
	// OutcomeApplied: this delivery performed the business mutation.
	OutcomeApplied Outcome = "APPLIED"
	// OutcomeAlreadyApplied: the business effect was in place before this
	// delivery ran; the event is acknowledged as a success.
	OutcomeAlreadyApplied Outcome = "ALREADY_APPLIED"
	// OutcomeAlreadyProcessed: the exact event id was fully processed by an
	// earlier delivery.
	OutcomeAlreadyProcessed Outcome = "ALREADY_PROCESSED"
	// OutcomeIgnored: recognized delivery, unhandled event type.
	OutcomeIgnored Outcome = "IGNORED"
)

type ProcessPaymentEventCommand struct {
	EventID        string
	EventType      string
	Source         string
	IntentID       string
	BookingID      string
	AmountCents    int64
	Currency       string
	RefundedCents  int64
	FailureReason  string
	Raw            []byte
	ReceivedAt     time.Time
}

func (c ProcessPaymentEventCommand) Key() string { return processPaymentEventKey }

type ProcessResult struct {
	Outcome   Outcome `json:"outcome"`
	BookingID string  `json:"booking_id,omitempty"`
	PaymentID string  `json:"payment_id,omitempty"`
}

// ProcessEventHandler applies one payment processor delivery exactly once.
//
// It deliberately manages its own transactions instead of riding the command
// bus transaction middleware: the event ledger row must survive a business
// rollback, so the insert commits before the business transaction starts and
// the failure mark commits after it rolls back.
type ProcessEventHandler struct {
	UoWFactory uow.UoWFactory
	Notifier   policies.Notifier
	Outbox     outbox.Outbox
	Encoder    outbox.EventEncoder
	Logger     *slog.Logger
}

func (h *ProcessEventHandler) Handle(ctx context.Context, cmd ProcessPaymentEventCommand) (*ProcessResult, error) {
	if cmd.EventID == "" {
		return nil, apperr.Validation("event id is required")
	}
	if cmd.IntentID == "" && cmd.EventType != "" && handledType(cmd.EventType) {
		return nil, apperr.Validation("payment intent id is required")
	}
	if h.UoWFactory == nil {
		return nil, errors.New("payments: uow factory required")
	}

	// Phase 1: record the delivery in the event ledger before any business
	// mutation. The commit here is intentional; a later rollback must not
	// erase the ledger row.
	proceed, res, err := h.recordDelivery(ctx, cmd)
	if err != nil || !proceed {
		return res, err
	}

	// Phase 2: apply the business effect and flip the ledger row to
	// processed in one transaction.
	res, bizErr := h.apply(ctx, cmd)
	if bizErr != nil {
		h.markFailed(ctx, cmd.EventID, bizErr)
		if apperr.CodeOf(bizErr) != "" {
			return nil, bizErr
		}
		return nil, apperr.Transient("payment event processing failed", bizErr)
	}
	return res, nil
}

// recordDelivery inserts the ledger row. For a duplicate id it decides, from
// the stored status, whether the caller should retry, acknowledge, or reapply.
func (h *ProcessEventHandler) recordDelivery(ctx context.Context, cmd ProcessPaymentEventCommand) (bool, *ProcessResult, error) {
	unit, err := h.UoWFactory.Begin(ctx, uow.TxOptions{})
	if err != nil {
		return false, nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = unit.Rollback(ctx)
		}
	}()
	ctx = uow.ContextWithUnitOfWork(ctx, unit)

	ev, err := domainpayments.NewWebhookEvent(cmd.EventID, cmd.EventType, cmd.Source, cmd.Raw, cmd.ReceivedAt)
	if err != nil {
		return false, nil, apperr.Validation(err.Error())
	}
	insertErr := unit.WebhookEvents().Insert(ctx, ev)
	if insertErr == nil {
		if err := unit.Commit(ctx); err != nil {
			return false, nil, err
		}
		committed = true
		return true, nil, nil
	}
	if !errors.Is(insertErr, domainpayments.ErrDuplicateEvent) {
		return false, nil, insertErr
	}

	existing, err := unit.WebhookEvents().ByID(ctx, cmd.EventID)
	if err != nil {
		return false, nil, err
	}
	switch existing.Status {
	case domainpayments.EventProcessed:
		return false, &ProcessResult{Outcome: OutcomeAlreadyProcessed}, nil
	case domainpayments.EventProcessing:
		// Another delivery of the same event is in flight (or crashed
		// mid-way). Let the provider redeliver.
		return false, nil, apperr.Transient("event is currently being processed", nil)
	case domainpayments.EventFailed:
		// Earlier attempt failed after recording the row; retry the
		// business effect now.
		return true, nil, nil
	default:
		return false, nil, errors.New("payments: unknown webhook event status")
	}
}

func (h *ProcessEventHandler) apply(ctx context.Context, cmd ProcessPaymentEventCommand) (*ProcessResult, error) {
	unit, err := h.UoWFactory.Begin(ctx, uow.TxOptions{})
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = unit.Rollback(ctx)
		}
	}()
	ctx = uow.ContextWithUnitOfWork(ctx, unit)

	now := time.Now().UTC()
	var res *ProcessResult

	switch cmd.EventType {
	case EventPaymentSucceeded:
		res, err = h.applySucceeded(ctx, unit, cmd, now)
	case EventPaymentFailed:
		res, err = h.applyFailed(ctx, unit, cmd, now)
	case EventChargeRefunded:
		res, err = h.applyRefund(ctx, unit, cmd, now)
	default:
		h.logger().InfoContext(ctx, "ignoring unhandled payment event type", "event_id", cmd.EventID, "type", cmd.EventType)
		res = &ProcessResult{Outcome: OutcomeIgnored}
	}
	if err != nil {
		return nil, err
	}

	if err := unit.WebhookEvents().MarkProcessed(ctx, cmd.EventID, now); err != nil {
		return nil, err
	}
	if err := unit.Commit(ctx); err != nil {
		return nil, err
	}
	committed = true
	return res, nil
}

func (h *ProcessEventHandler) applySucceeded(ctx context.Context, unit uow.UnitOfWork, cmd ProcessPaymentEventCommand, now time.Time) (*ProcessResult, error) {
	if err := unit.Locks().LockPaymentIntent(ctx, cmd.IntentID); err != nil {
		return nil, err
	}

	b, err := h.resolveBooking(ctx, unit, cmd)
	if err != nil {
		return nil, err
	}
	if err := unit.Locks().LockBooking(ctx, b.ID); err != nil {
		return nil, err
	}

	// Idempotency recheck inside the lock: a concurrent duplicate may have
	// completed between the ledger insert and acquiring the lock.
	existing, err := unit.Payments().ByIntentID(ctx, cmd.IntentID)
	if err != nil && !errors.Is(err, domainpayments.ErrPaymentNotFound) {
		return nil, err
	}
	if existing != nil && existing.Status == domainpayments.PaymentCompleted {
		return &ProcessResult{Outcome: OutcomeAlreadyApplied, BookingID: string(b.ID), PaymentID: string(existing.ID)}, nil
	}

	amount, err := money.New(cmd.AmountCents, cmd.Currency)
	if err != nil {
		return nil, apperr.Validation("invalid payment amount")
	}
	// Reconciliation: a capture that does not match the quoted total is
	// applied but flagged for operators.
	if !amount.Equal(b.Price.Total) {
		h.logger().WarnContext(ctx, "captured amount differs from booking total",
			"event_id", cmd.EventID, "booking_id", b.ID,
			"captured", amount.String(), "expected", b.Price.Total.String())
	}

	payment, err := domainpayments.NewCapturedPayment(domainpayments.CaptureParams{
		ID:         domainpayments.PaymentID(uuid.NewString()),
		IntentID:   cmd.IntentID,
		BookingID:  b.ID,
		Amount:     amount,
		Processor:  cmd.Source,
		CapturedAt: now,
	})
	if err != nil {
		return nil, err
	}
	if err := unit.Payments().Save(ctx, payment); err != nil {
		return nil, err
	}

	if err := b.ApplyPaymentSuccess(cmd.IntentID, now); err != nil {
		return nil, transitionErr(err)
	}
	if err := unit.Booking().Save(ctx, b); err != nil {
		return nil, err
	}
	if err := h.recordEvents(ctx, b, payment); err != nil {
		return nil, err
	}

	// Side effects are best effort: a notification failure never rolls the
	// payment back.
	if h.Notifier != nil {
		if err := h.Notifier.BookingConfirmed(ctx, b); err != nil {
			h.logger().WarnContext(ctx, "confirmation notification failed", "booking_id", b.ID, "err", err)
		}
	}
	return &ProcessResult{Outcome: OutcomeApplied, BookingID: string(b.ID), PaymentID: string(payment.ID)}, nil
}

func (h *ProcessEventHandler) applyFailed(ctx context.Context, unit uow.UnitOfWork, cmd ProcessPaymentEventCommand, now time.Time) (*ProcessResult, error) {
	if err := unit.Locks().LockPaymentIntent(ctx, cmd.IntentID); err != nil {
		return nil, err
	}
	b, err := h.resolveBooking(ctx, unit, cmd)
	if err != nil {
		return nil, err
	}
	if err := unit.Locks().LockBooking(ctx, b.ID); err != nil {
		return nil, err
	}

	if b.PaymentStatus == domainbooking.PaymentFailed && b.FailureDetail == cmd.FailureReason {
		return &ProcessResult{Outcome: OutcomeAlreadyApplied, BookingID: string(b.ID)}, nil
	}
	// A failure event arriving after a success is stale; the capture wins.
	if b.PaymentStatus == domainbooking.PaymentCompleted {
		h.logger().InfoContext(ctx, "stale payment failure event ignored", "event_id", cmd.EventID, "booking_id", b.ID)
		return &ProcessResult{Outcome: OutcomeAlreadyApplied, BookingID: string(b.ID)}, nil
	}

	b.RecordPaymentFailure(cmd.FailureReason, now)
	if err := unit.Booking().Save(ctx, b); err != nil {
		return nil, err
	}
	if err := h.recordEvents(ctx, b, nil); err != nil {
		return nil, err
	}
	if h.Notifier != nil {
		if err := h.Notifier.PaymentFailed(ctx, b, cmd.FailureReason); err != nil {
			h.logger().WarnContext(ctx, "payment failure notification failed", "booking_id", b.ID, "err", err)
		}
	}
	return &ProcessResult{Outcome: OutcomeApplied, BookingID: string(b.ID)}, nil
}

func (h *ProcessEventHandler) applyRefund(ctx context.Context, unit uow.UnitOfWork, cmd ProcessPaymentEventCommand, now time.Time) (*ProcessResult, error) {
	if err := unit.Locks().LockPaymentIntent(ctx, cmd.IntentID); err != nil {
		return nil, err
	}
	payment, err := unit.Payments().ByIntentID(ctx, cmd.IntentID)
	if err != nil {
		if errors.Is(err, domainpayments.ErrPaymentNotFound) {
			// Refund before the capture event landed; out-of-order
			// delivery, let the provider retry.
			return nil, apperr.Transient("refund for unknown payment intent", err)
		}
		return nil, err
	}

	cumulative, err := money.New(cmd.RefundedCents, cmd.Currency)
	if err != nil {
		return nil, apperr.Validation("invalid refund amount")
	}
	if payment.IsRefunded(cumulative) {
		return &ProcessResult{Outcome: OutcomeAlreadyApplied, BookingID: string(payment.BookingID), PaymentID: string(payment.ID)}, nil
	}
	if err := payment.ApplyRefund(cumulative, now); err != nil {
		return nil, apperr.Validation(err.Error())
	}
	if err := unit.Payments().Save(ctx, payment); err != nil {
		return nil, err
	}

	var b *domainbooking.Booking
	if payment.BookingID != "" {
		if err := unit.Locks().LockBooking(ctx, payment.BookingID); err != nil {
			return nil, err
		}
		b, err = unit.Booking().ByID(ctx, payment.BookingID)
		if err != nil {
			return nil, err
		}
		if payment.Status == domainpayments.PaymentRefunded && !b.State.IsTerminal() {
			if err := b.MarkRefunded(cumulative, now); err != nil {
				return nil, transitionErr(err)
			}
		}
		if err := unit.Booking().Save(ctx, b); err != nil {
			return nil, err
		}
	}
	if err := h.recordEvents(ctx, b, payment); err != nil {
		return nil, err
	}
	return &ProcessResult{Outcome: OutcomeApplied, BookingID: string(payment.BookingID), PaymentID: string(payment.ID)}, nil
}

// resolveBooking finds the booking for the event, preferring the explicit id
// and falling back to the intent reference stored at reservation time.
func (h *ProcessEventHandler) resolveBooking(ctx context.Context, unit uow.UnitOfWork, cmd ProcessPaymentEventCommand) (*domainbooking.Booking, error) {
	if cmd.BookingID != "" {
		b, err := unit.Booking().ByID(ctx, domainbooking.BookingID(cmd.BookingID))
		if err == nil {
			return b, nil
		}
		if !errors.Is(err, domainbooking.ErrBookingNotFound) {
			return nil, err
		}
	}
	b, err := unit.Booking().ByPaymentIntent(ctx, cmd.IntentID)
	if err != nil {
		if errors.Is(err, domainbooking.ErrBookingNotFound) {
			// The reservation transaction may not be visible yet.
			return nil, apperr.Transient("no booking for payment intent", err)
		}
		return nil, err
	}
	return b, nil
}

// markFailed records the failure on the ledger row in its own transaction so
// the mark survives the rolled-back business transaction.
func (h *ProcessEventHandler) markFailed(ctx context.Context, eventID string, cause error) {
	unit, err := h.UoWFactory.Begin(ctx, uow.TxOptions{})
	if err != nil {
		h.logger().ErrorContext(ctx, "cannot mark webhook event failed", "event_id", eventID, "err", err)
		return
	}
	ctx = uow.ContextWithUnitOfWork(ctx, unit)
	if err := unit.WebhookEvents().MarkFailed(ctx, eventID, cause.Error(), time.Now().UTC()); err != nil {
		h.logger().ErrorContext(ctx, "cannot mark webhook event failed", "event_id", eventID, "err", err)
		_ = unit.Rollback(ctx)
		return
	}
	if err := unit.Commit(ctx); err != nil {
		h.logger().ErrorContext(ctx, "cannot commit webhook event failure mark", "event_id", eventID, "err", err)
	}
}

func (h *ProcessEventHandler) recordEvents(ctx context.Context, b *domainbooking.Booking, p *domainpayments.Payment) error {
	if h.Outbox == nil {
		return nil
	}
	encoder := h.Encoder
	if encoder == nil {
		encoder = outbox.JSONEventEncoder{}
	}
	if b != nil {
		pending := b.PendingEvents()
		b.ClearEvents()
		if err := outbox.RecordDomainEvents(ctx, h.Outbox, encoder, pending); err != nil {
			return err
		}
	}
	if p != nil {
		pending := p.PendingEvents()
		p.ClearEvents()
		if err := outbox.RecordDomainEvents(ctx, h.Outbox, encoder, pending); err != nil {
			return err
		}
	}
	return nil
}

func (h *ProcessEventHandler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func handledType(t string) bool {
	switch t {
	case EventPaymentSucceeded, EventPaymentFailed, EventChargeRefunded:
		return true
	}
	return false
}

func transitionErr(err error) error {
	var ste *domainbooking.StateTransitionError
	if errors.As(err, &ste) {
		return apperr.StateTransition(string(ste.From), string(ste.To), ste.Reason).Wrap(ste)
	}
	return err
}

var _ commands.Handler[ProcessPaymentEventCommand, *ProcessResult] = (*ProcessEventHandler)(nil)
