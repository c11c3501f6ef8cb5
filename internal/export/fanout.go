package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"budgetapp/internal/core"
	"budgetapp/internal/log"
	"budgetapp/internal/sheets"
	"budgetapp/internal/storage"

	"golang.org/x/sync/errgroup"
)

// ErrNoSinks is returned by Fanout when there is nowhere to write.
var ErrNoSinks = errors.New("no export sinks configured")

// Batch is one month of flattened rows travelling to the sinks.
type Batch struct {
	ID    string        `json:"id"`
	Month core.MonthKey `json:"month"`
	Rows  []Row         `json:"rows"`
}

// Sink receives row batches.
type Sink interface {
	Name() string
	Write(ctx context.Context, b Batch) error
}

// SinkError records which sink failed.
type SinkError struct {
	Sink string
	Err  error
}

func (e *SinkError) Error() string { return fmt.Sprintf("sink %s: %v", e.Sink, e.Err) }
func (e *SinkError) Unwrap() error { return e.Err }

// Fanout writes b to every sink concurrently. The first failure cancels the
// remaining writes and is returned wrapped in a SinkError.
func Fanout(ctx context.Context, b Batch, sinks ...Sink) error {
	if len(sinks) == 0 {
		return ErrNoSinks
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, s := range sinks {
		g.Go(func() error {
			start := time.Now()
			if err := s.Write(gctx, b); err != nil {
				return &SinkError{Sink: s.Name(), Err: err}
			}
			slog.DebugContext(gctx, "Export batch written",
				log.FieldComponent, log.ComponentExport,
				log.FieldBackend, s.Name(),
				log.FieldMessageID, b.ID,
				log.FieldMonth, string(b.Month),
				log.FieldRows, len(b.Rows),
				log.FieldDuration, time.Since(start).Milliseconds())
			return nil
		})
	}
	return g.Wait()
}

// SheetSink appends batches to a spreadsheet.
type SheetSink struct {
	appender sheets.RowAppender
}

func NewSheetSink(a sheets.RowAppender) *SheetSink {
	return &SheetSink{appender: a}
}

func (s *SheetSink) Name() string { return "sheets" }

func (s *SheetSink) Write(ctx context.Context, b Batch) error {
	if len(b.Rows) == 0 {
		return nil
	}
	if _, err := s.appender.AppendRows(ctx, b.Month.Year(), Table(b.Rows, false)); err != nil {
		return fmt.Errorf("append %d rows for %s: %w", len(b.Rows), b.Month, err)
	}
	return nil
}

// BlobSink stores each batch as a CSV document in a blob store, one key
// per month. A later batch for the same month replaces the earlier one.
type BlobSink struct {
	store storage.BlobStore
}

func NewBlobSink(store storage.BlobStore) *BlobSink {
	return &BlobSink{store: store}
}

func (s *BlobSink) Name() string { return "blob" }

// CSVKey is the blob key a month's CSV export is stored under.
func CSVKey(month core.MonthKey) string {
	return "budgetapp:export:" + string(month) + ".csv"
}

func (s *BlobSink) Write(ctx context.Context, b Batch) error {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, b.Rows); err != nil {
		return err
	}
	if err := s.store.Put(ctx, CSVKey(b.Month), buf.Bytes()); err != nil {
		return fmt.Errorf("store csv for %s: %w", b.Month, err)
	}
	return nil
}
