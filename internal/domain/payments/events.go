package payments

import (
	"time"

	"tripnest/internal/domain/booking"
	"tripnest/internal/domain/shared/money"
)

type PaymentCaptured struct {
	PaymentID PaymentID
	IntentID  string
	BookingID booking.BookingID
	Amount    money.Money
	At        time.Time
}

func (e PaymentCaptured) EventName() string     { return "payment.captured" }
func (e PaymentCaptured) AggregateID() string   { return string(e.PaymentID) }
func (e PaymentCaptured) OccurredAt() time.Time { return e.At }

type PaymentFailedEvent struct {
	PaymentID PaymentID
	IntentID  string
	Detail    string
	At        time.Time
}

func (e PaymentFailedEvent) EventName() string     { return "payment.failed" }
func (e PaymentFailedEvent) AggregateID() string   { return string(e.PaymentID) }
func (e PaymentFailedEvent) OccurredAt() time.Time { return e.At }

type PaymentRefundedEvent struct {
	PaymentID PaymentID
	IntentID  string
	BookingID booking.BookingID
	Amount    money.Money
	Full      bool
	At        time.Time
}

func (e PaymentRefundedEvent) EventName() string     { return "payment.refunded" }
func (e PaymentRefundedEvent) AggregateID() string   { return string(e.PaymentID) }
func (e PaymentRefundedEvent) OccurredAt() time.Time { return e.At }
