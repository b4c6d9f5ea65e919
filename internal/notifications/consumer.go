package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"product-catalog/internal/products"
	"product-catalog/internal/products/messaging"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	consumerTag = "notifications-service"

	AlertExpired      = "expired"
	AlertExpiringSoon = "expiring_soon"
)

var errMalformedEvent = errors.New("malformed event")

type Options struct {
	ExpiringSoonDays int
	Location         *time.Location
	Now              func() time.Time
}

// Consumer reads product events and reports stock that has expired or is
// about to expire.
type Consumer struct {
	channel *amqp.Channel
	queue   string
	logger  *slog.Logger
	opts    Options
}

func NewConsumer(conn *amqp.Connection, queue string, logger *slog.Logger, opts Options) (*Consumer, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := messaging.DeclareQueue(ch, queue); err != nil {
		_ = ch.Close()
		return nil, err
	}

	return newConsumer(ch, queue, logger, opts), nil
}

func newConsumer(ch *amqp.Channel, queue string, logger *slog.Logger, opts Options) *Consumer {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Consumer{
		channel: ch,
		queue:   queue,
		logger:  logger,
		opts:    opts,
	}
}

func (c *Consumer) Listen(ctx context.Context) error {
	msgs, err := c.channel.Consume(
		c.queue,
		consumerTag,
		false, // manual ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("consume queue %q: %w", c.queue, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}

			if err := c.handleMessage(msg.Body); err != nil {
				c.logger.Error("handle message failed", "message_id", msg.MessageId, "error", err)
				// A body that cannot be decoded will never succeed.
				_ = msg.Nack(false, !errors.Is(err, errMalformedEvent))
				continue
			}

			_ = msg.Ack(false)
		}
	}
}

func (c *Consumer) handleMessage(body []byte) error {
	var event products.ProductEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("%w: %w", errMalformedEvent, err)
	}

	switch event.EventType {
	case products.EventImported:
		c.logger.Info("products imported",
			"imported_count", event.ImportedCount,
			"timestamp", event.Timestamp,
		)
		return nil
	case products.EventDeleted:
		c.logger.Info("product removed from stock",
			"product_id", event.ProductID,
			"timestamp", event.Timestamp,
		)
		return nil
	}

	today := products.DateOnly(c.opts.Now().In(c.opts.Location))
	alert, daysLeft := ExpiryAlert(event, today, c.opts.ExpiringSoonDays)
	switch alert {
	case AlertExpired:
		c.logger.Warn("product expired",
			"product_id", event.ProductID,
			"name", event.Name,
			"category", event.Category,
			"quantity", event.Quantity,
			"expiration_date", products.DisplayDate(*event.ExpirationDate),
		)
	case AlertExpiringSoon:
		c.logger.Warn("product expiring soon",
			"product_id", event.ProductID,
			"name", event.Name,
			"quantity", event.Quantity,
			"expiration_date", products.DisplayDate(*event.ExpirationDate),
			"days_left", daysLeft,
		)
	default:
		c.logger.Info("notification event",
			"event_type", event.EventType,
			"product_id", event.ProductID,
			"name", event.Name,
			"timestamp", event.Timestamp,
		)
	}
	return nil
}

// ExpiryAlert classifies a created or updated product by its expiration date
// relative to today. A product expiring today is not yet expired.
func ExpiryAlert(event products.ProductEvent, today time.Time, soonDays int) (string, int) {
	if event.ExpirationDate == nil {
		return "", 0
	}
	if event.EventType != products.EventCreated && event.EventType != products.EventUpdated {
		return "", 0
	}

	expiration := products.DateOnly(*event.ExpirationDate)
	daysLeft := int(expiration.Sub(products.DateOnly(today)).Hours() / 24)
	switch {
	case daysLeft < 0:
		return AlertExpired, daysLeft
	case daysLeft <= soonDays:
		return AlertExpiringSoon, daysLeft
	default:
		return "", daysLeft
	}
}

func (c *Consumer) Close() error {
	return c.channel.Close()
}
