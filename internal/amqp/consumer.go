package amqp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"budgetapp/internal/log"

	"github.com/rabbitmq/amqp091-go"
)

// ExportHandler processes one export request. A returned error requeues
// the delivery unless it wraps ErrPermanent.
type ExportHandler func(ctx context.Context, req *ExportRequest) error

// ErrPermanent marks a handler failure that retrying will not fix. The
// delivery is rejected without requeue, which dead-letters it when the
// queue has a dead-letter exchange.
var ErrPermanent = errors.New("permanent failure")

var errDeliveriesClosed = errors.New("message channel closed")

// ConsumeExports consumes export requests until ctx ends or the channel
// closes.
func (c *Client) ConsumeExports(ctx context.Context, handler ExportHandler) error {
	ch := c.currentChannel()
	if ch == nil {
		return fmt.Errorf("start consuming: %w", amqp091.ErrClosed)
	}
	msgs, err := ch.Consume(
		c.queueName, // queue
		"",          // consumer
		false,       // auto-ack (we want manual ack)
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	slog.InfoContext(ctx, "Started consuming export requests",
		log.FieldComponent, log.ComponentAMQP, "queue", c.queueName)

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Stopping message consumption", "reason", ctx.Err())
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return errDeliveriesClosed
			}
			handleDelivery(ctx, delivery, handler)
		}
	}
}

// Run keeps ConsumeExports alive across broker restarts, reconnecting with
// exponential backoff. It returns when ctx ends or reconnecting fails.
func (c *Client) Run(ctx context.Context, handler ExportHandler) error {
	for {
		err := c.ConsumeExports(ctx, handler)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.WarnContext(ctx, "Export consumer stopped, reconnecting",
			log.FieldComponent, log.ComponentAMQP,
			log.FieldError, err)
		if err := c.reconnect(ctx); err != nil {
			return err
		}
	}
}

// handleDelivery acks processed messages, drops undecodable ones and
// permanent failures, and requeues other handler failures. Messages of
// other types are acked unread.
func handleDelivery(ctx context.Context, d amqp091.Delivery, handler ExportHandler) {
	if d.Type != "" && d.Type != TypeExportRequest {
		slog.DebugContext(ctx, "Skipping message of unexpected type", "type", d.Type)
		_ = d.Ack(false)
		return
	}

	req, err := ExportRequestFromJSON(d.Body)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to unmarshal message",
			log.FieldComponent, log.ComponentAMQP,
			log.FieldError, err,
			log.FieldErrorType, log.ErrorTypeDecode)
		_ = d.Nack(false, false)
		return
	}

	slog.InfoContext(ctx, "Processing export request",
		log.FieldMessageID, req.ID,
		log.FieldMonth, string(req.Month),
		log.FieldRows, len(req.Rows))

	if err := handler(ctx, req); err != nil {
		requeue := !errors.Is(err, ErrPermanent)
		slog.ErrorContext(ctx, "Failed to handle message",
			log.FieldError, err,
			log.FieldMessageID, req.ID,
			log.FieldMonth, string(req.Month),
			"requeue", requeue)
		_ = d.Nack(false, requeue)
		return
	}

	_ = d.Ack(false)
	slog.InfoContext(ctx, "Successfully processed export request", log.FieldMessageID, req.ID)
}
