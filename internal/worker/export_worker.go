// Package worker drains export requests from the queue into the
// configured sinks.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"budgetapp/internal/amqp"
	"budgetapp/internal/export"
	"budgetapp/internal/log"
)

// DefaultMaxAttempts is how many deliveries of one batch the worker tries
// before giving up on it.
const DefaultMaxAttempts = 5

// ExportWorker writes each queued batch to every sink. A redelivered batch
// only goes to the sinks that have not taken it yet, so appending sinks do
// not see it twice.
type ExportWorker struct {
	sinks       []export.Sink
	timeout     time.Duration
	maxAttempts int
	logger      *log.Logger

	mu      sync.Mutex
	pending map[string]*batchProgress
}

type batchProgress struct {
	attempts int
	written  map[string]bool
}

func NewExportWorker(logger *log.Logger, timeout time.Duration, sinks ...export.Sink) *ExportWorker {
	if logger == nil {
		logger = log.Discard()
	}
	return &ExportWorker{
		sinks:       sinks,
		timeout:     timeout,
		maxAttempts: DefaultMaxAttempts,
		logger:      logger.WithComponent(log.ComponentWorker),
		pending:     make(map[string]*batchProgress),
	}
}

// SetMaxAttempts changes the per-batch attempt limit; n <= 0 restores
// DefaultMaxAttempts.
func (w *ExportWorker) SetMaxAttempts(n int) {
	if n <= 0 {
		n = DefaultMaxAttempts
	}
	w.mu.Lock()
	w.maxAttempts = n
	w.mu.Unlock()
}

// begin counts an attempt for the batch and returns the sinks still owed it.
func (w *ExportWorker) begin(id string) (remaining []export.Sink, attempt, limit int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	p := w.pending[id]
	if p == nil {
		p = &batchProgress{written: make(map[string]bool)}
		w.pending[id] = p
	}
	p.attempts++
	for _, s := range w.sinks {
		if !p.written[s.Name()] {
			remaining = append(remaining, s)
		}
	}
	return remaining, p.attempts, w.maxAttempts
}

func (w *ExportWorker) markWritten(id, sink string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if p := w.pending[id]; p != nil {
		p.written[sink] = true
	}
}

func (w *ExportWorker) forget(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.pending, id)
}

// recordingSink marks the batch written for its sink once Write succeeds.
type recordingSink struct {
	export.Sink
	done func(sink string)
}

func (s recordingSink) Write(ctx context.Context, b export.Batch) error {
	if err := s.Sink.Write(ctx, b); err != nil {
		return err
	}
	s.done(s.Name())
	return nil
}

// HandleExportRequest fans the request's batch out to the sinks that have
// not written it yet. A failure is returned so the delivery is requeued;
// once the attempt limit is reached the error wraps amqp.ErrPermanent.
func (w *ExportWorker) HandleExportRequest(ctx context.Context, req *amqp.ExportRequest) error {
	start := time.Now()
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	remaining, attempt, limit := w.begin(req.ID)
	if len(w.sinks) > 0 && len(remaining) == 0 {
		w.forget(req.ID)
		return nil
	}
	sinks := make([]export.Sink, 0, len(remaining))
	for _, s := range remaining {
		sinks = append(sinks, recordingSink{Sink: s, done: func(name string) { w.markWritten(req.ID, name) }})
	}

	if err := export.Fanout(ctx, req.Batch, sinks...); err != nil {
		w.logger.ErrorContext(ctx, "Export request failed",
			append(log.NewFields().
				WithOperation(log.OpExport).
				WithMonth(string(req.Month)).
				WithError(err, log.ErrorTypeNetwork).
				ToSlice(),
				log.FieldMessageID, req.ID,
				"attempt", attempt)...)
		if attempt >= limit {
			w.forget(req.ID)
			return fmt.Errorf("export %s: giving up after %d attempts: %w: %w", req.ID, attempt, amqp.ErrPermanent, err)
		}
		return fmt.Errorf("export %s: %w", req.ID, err)
	}
	w.forget(req.ID)

	w.logger.InfoContext(ctx, "Export request completed",
		log.FieldMessageID, req.ID,
		log.FieldMonth, string(req.Month),
		log.FieldRows, len(req.Rows),
		"sinks", len(sinks),
		"attempt", attempt,
		"queued_for", start.Sub(req.RequestedAt).Round(time.Millisecond).String(),
		log.FieldDuration, time.Since(start).Milliseconds())
	return nil
}

// Consumer is the queue capability the worker runs on.
type Consumer interface {
	Run(ctx context.Context, handler amqp.ExportHandler) error
}

// Run consumes until ctx ends.
func (w *ExportWorker) Run(ctx context.Context, c Consumer) error {
	w.logger.InfoContext(ctx, "Export worker started", "sinks", len(w.sinks))
	err := c.Run(ctx, w.HandleExportRequest)
	if ctx.Err() != nil {
		w.logger.InfoContext(ctx, "Export worker stopped")
		return nil
	}
	return err
}
