package payments

import (
	"context"
	"log/slog"
	"time"

	"github.com/IBM/sarama"

	"tripnest/internal/app/commands"
	"tripnest/internal/app/handlers/payments"
	"tripnest/internal/apperr"
	"tripnest/internal/infra/broker/kafka"
)

// EventConsumer feeds processor events arriving on a broker topic into the
// same pipeline the webhook endpoint uses, so both delivery paths share the
// event ledger and its exactly-once guarantees. Transient failures propagate
// so the record stays unmarked and the group redelivers it; anything else is
// already recorded on the ledger row and the record is acknowledged.
type EventConsumer struct {
	Commands commands.Bus
	Logger   *slog.Logger
}

func (c *EventConsumer) Handle(ctx context.Context, msg *sarama.ConsumerMessage) error {
	cmd, err := ParseEvent(msg.Value, time.Now().UTC())
	if err != nil {
		// Malformed records would never parse on redelivery either.
		c.logger().WarnContext(ctx, "dropping malformed payment event record",
			"topic", msg.Topic, "offset", msg.Offset, "err", err)
		return nil
	}
	cmd.Source = "broker"

	result, err := commands.Dispatch[payments.ProcessPaymentEventCommand, *payments.ProcessResult](ctx, c.Commands, cmd)
	if err != nil {
		if apperr.IsTransient(err) {
			return err
		}
		c.logger().ErrorContext(ctx, "payment event rejected", "event_id", cmd.EventID, "err", err)
		return nil
	}
	c.logger().InfoContext(ctx, "payment event consumed", "event_id", cmd.EventID, "outcome", result.Outcome)
	return nil
}

func (c *EventConsumer) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

var _ kafka.MessageHandler = (*EventConsumer)(nil)
