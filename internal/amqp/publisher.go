package amqp

import (
	"context"
	"fmt"
	"log/slog"

	"budgetapp/internal/budget"
	"budgetapp/internal/export"
	"budgetapp/internal/log"
)

// PublishChange publishes a change event on ChangeRoutingKey.
func (c *Client) PublishChange(ctx context.Context, change budget.Change) error {
	msg := NewChangeEvent(change)
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := c.publish(ctx, ChangeRoutingKey, TypeChangeEvent, msg.ID, body); err != nil {
		return err
	}
	slog.DebugContext(ctx, "Published change event",
		log.FieldComponent, log.ComponentAMQP,
		log.FieldMessageID, msg.ID,
		log.FieldOperation, change.Op,
		log.FieldMonth, string(change.Month),
		"revision", change.Revision)
	return nil
}

// PublishExport queues a batch for the export worker.
func (c *Client) PublishExport(ctx context.Context, b export.Batch) error {
	msg := NewExportRequest(b)
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := c.publish(ctx, c.queueName, TypeExportRequest, msg.ID, body); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Published export request",
		log.FieldComponent, log.ComponentAMQP,
		log.FieldMessageID, msg.ID,
		log.FieldMonth, string(msg.Month),
		log.FieldRows, len(msg.Rows),
		"exchange", c.exchangeName,
		"queue", c.queueName)
	return nil
}

type (
	ChangePublisher interface {
		PublishChange(ctx context.Context, change budget.Change) error
	}

	ExportPublisher interface {
		PublishExport(ctx context.Context, b export.Batch) error
	}
)

var (
	_ ChangePublisher = (*Client)(nil)
	_ ExportPublisher = (*Client)(nil)
)

// ChangeNotifier forwards engine changes to the broker. Publish failures
// are logged; the mutation has already been applied.
type ChangeNotifier struct {
	publisher ChangePublisher
}

func NewChangeNotifier(p ChangePublisher) *ChangeNotifier {
	return &ChangeNotifier{publisher: p}
}

var _ budget.Notifier = (*ChangeNotifier)(nil)

func (n *ChangeNotifier) Notify(ctx context.Context, change budget.Change) {
	if err := n.publisher.PublishChange(ctx, change); err != nil {
		slog.WarnContext(ctx, "Failed to publish change event",
			log.NewFields().
				WithComponent(log.ComponentAMQP).
				WithOperation(change.Op).
				WithMonth(string(change.Month)).
				WithError(err, log.ErrorTypeNetwork).
				ToSlice()...)
	}
}

// ExportSink hands batches to the worker through the queue.
type ExportSink struct {
	publisher ExportPublisher
}

func NewExportSink(p ExportPublisher) *ExportSink {
	return &ExportSink{publisher: p}
}

var _ export.Sink = (*ExportSink)(nil)

func (s *ExportSink) Name() string { return "amqp" }

func (s *ExportSink) Write(ctx context.Context, b export.Batch) error {
	return s.publisher.PublishExport(ctx, b)
}
