package payments

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripnest/internal/app/commands"
	paymentsapp "tripnest/internal/app/handlers/payments"
	domainbooking "tripnest/internal/domain/booking"
	"tripnest/internal/domain/pricing"
	"tripnest/internal/domain/shared/daterange"
	"tripnest/internal/domain/shared/money"
	"tripnest/internal/infra/storage/memory"
)

func newEventConsumer(t *testing.T) (*EventConsumer, memory.Factory) {
	t.Helper()
	factory := memory.NewFactory()
	bus := commands.NewInMemoryBus()
	commands.RegisterHandler(bus, paymentsapp.ProcessPaymentEventCommand{}.Key(), &paymentsapp.ProcessEventHandler{
		UoWFactory: factory,
		Outbox:     memory.NewOutbox(),
	})
	return &EventConsumer{Commands: bus}, factory
}

func seedPendingBooking(t *testing.T, factory memory.Factory, intentID string) {
	t.Helper()
	start := time.Now().UTC().AddDate(0, 2, 0).Truncate(24 * time.Hour)
	dr, err := daterange.New(start, start.AddDate(0, 0, 3))
	require.NoError(t, err)
	price, err := pricing.Quote(pricing.QuoteParams{
		Nights:      3,
		NightlyRate: money.Must(100_00, "USD"),
		CleaningFee: money.Must(50_00, "USD"),
		ServiceFee:  money.Must(30_00, "USD"),
	})
	require.NoError(t, err)
	b, err := domainbooking.NewBooking(domainbooking.CreateParams{
		ID:              "bkg-1",
		ListingID:       "lst-1",
		GuestID:         "guest-1",
		Range:           dr,
		Guests:          2,
		Price:           price,
		PaymentIntentID: intentID,
		CreatedAt:       time.Now().UTC(),
	})
	require.NoError(t, err)
	b.ClearEvents()
	require.NoError(t, factory.BookingRepo.Save(context.Background(), b))
}

func eventRecord(eventID, eventType, intentID string, amount, refunded int64) *sarama.ConsumerMessage {
	body := fmt.Sprintf(`{"id":%q,"type":%q,"data":{"payment_intent_id":%q,"amount_cents":%d,"refunded_cents":%d,"currency":"USD"}}`,
		eventID, eventType, intentID, amount, refunded)
	return &sarama.ConsumerMessage{Topic: "payment-events", Value: []byte(body)}
}

func TestEventConsumerConfirmsBooking(t *testing.T) {
	consumer, factory := newEventConsumer(t)
	seedPendingBooking(t, factory, "pi_1")

	err := consumer.Handle(context.Background(), eventRecord("evt-1", "payment_intent.succeeded", "pi_1", 380_00, 0))
	require.NoError(t, err)

	b, err := factory.BookingRepo.ByID(context.Background(), "bkg-1")
	require.NoError(t, err)
	assert.Equal(t, domainbooking.StateConfirmed, b.State)

	ev, err := factory.WebhookEvents.ByID(context.Background(), "evt-1")
	require.NoError(t, err)
	assert.Equal(t, "broker", ev.Source)
}

func TestEventConsumerAcksDuplicates(t *testing.T) {
	consumer, factory := newEventConsumer(t)
	seedPendingBooking(t, factory, "pi_1")

	msg := eventRecord("evt-1", "payment_intent.succeeded", "pi_1", 380_00, 0)
	require.NoError(t, consumer.Handle(context.Background(), msg))
	require.NoError(t, consumer.Handle(context.Background(), msg))
}

func TestEventConsumerDropsMalformedRecord(t *testing.T) {
	consumer, _ := newEventConsumer(t)
	err := consumer.Handle(context.Background(), &sarama.ConsumerMessage{Value: []byte("not json")})
	assert.NoError(t, err)
}

func TestEventConsumerPropagatesTransient(t *testing.T) {
	consumer, factory := newEventConsumer(t)
	seedPendingBooking(t, factory, "pi_1")

	// Refund before any capture is out-of-order delivery; the record must
	// stay unmarked so the group retries it.
	err := consumer.Handle(context.Background(), eventRecord("evt-refund", "charge.refunded", "pi_1", 380_00, 380_00))
	assert.Error(t, err)
}
