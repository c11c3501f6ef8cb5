// Package scheduler runs the monthly rollover that materializes the new
// month and optionally exports the one that just closed.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"budgetapp/internal/core"
	"budgetapp/internal/log"

	"github.com/robfig/cron/v3"
)

// MonthChanger is the engine capability the rollover needs.
type MonthChanger interface {
	ChangeMonth(ctx context.Context, key core.MonthKey) (bool, error)
	State() (core.BudgetState, bool)
}

// ExportFunc exports a closed month.
type ExportFunc func(ctx context.Context, month core.MonthKey) error

type Rollover struct {
	engine   MonthChanger
	schedule string
	now      func() time.Time
	export   ExportFunc
	timeout  time.Duration
	logger   *log.Logger

	mu   sync.Mutex
	cron *cron.Cron

	runMu sync.Mutex
	// calendar is the calendar month the last run observed. It is separate
	// from the state's current month, which is whatever the user viewed last.
	calendar core.MonthKey
}

type Option func(*Rollover)

func WithClock(now func() time.Time) Option {
	return func(r *Rollover) { r.now = now }
}

// WithExport exports the closed calendar month after each rollover.
func WithExport(fn ExportFunc, timeout time.Duration) Option {
	return func(r *Rollover) {
		r.export = fn
		r.timeout = timeout
	}
}

func WithLogger(l *log.Logger) Option {
	return func(r *Rollover) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRollover validates schedule, a standard five-field cron expression.
func NewRollover(engine MonthChanger, schedule string, opts ...Option) (*Rollover, error) {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("parse rollover schedule %q: %w", schedule, err)
	}
	r := &Rollover{
		engine:   engine,
		schedule: schedule,
		now:      time.Now,
		timeout:  30 * time.Second,
		logger:   log.Discard(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.WithComponent(log.ComponentScheduler)
	r.calendar = core.MonthKeyOf(r.now())
	return r, nil
}

// RunOnce rolls the budget into the month of now once the calendar has moved
// past the month seen by the previous run (or by NewRollover). The month the
// user is viewing is left alone until then. It reports whether a rollover
// happened.
func (r *Rollover) RunOnce(ctx context.Context) (bool, error) {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	if _, ok := r.engine.State(); !ok {
		return false, nil
	}
	target := core.MonthKeyOf(r.now())
	closed := r.calendar
	if target <= closed {
		return false, nil
	}

	changed, err := r.engine.ChangeMonth(ctx, target)
	if err != nil {
		return false, fmt.Errorf("change month to %s: %w", target, err)
	}
	r.calendar = target
	r.logger.InfoContext(ctx, "Month rolled over",
		log.FieldOperation, log.OpRollover,
		"from", string(closed),
		"to", string(target),
		"changed", changed)

	if r.export != nil {
		ectx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()
		if err := r.export(ectx, closed); err != nil {
			r.logger.ErrorContext(ctx, "Failed to export closed month",
				log.NewFields().
					WithOperation(log.OpExport).
					WithMonth(string(closed)).
					WithError(err, log.ErrorTypeNetwork).
					ToSlice()...)
		}
	}
	return true, nil
}

// Start runs RunOnce on the schedule until Stop.
func (r *Rollover) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cron != nil {
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc(r.schedule, func() {
		if _, err := r.RunOnce(ctx); err != nil {
			r.logger.ErrorContext(ctx, "Scheduled rollover failed", log.FieldError, err)
		}
	}); err != nil {
		return fmt.Errorf("add rollover job: %w", err)
	}
	c.Start()
	r.cron = c
	r.logger.InfoContext(ctx, "Rollover scheduled", "schedule", r.schedule)
	return nil
}

// Stop halts the schedule and waits for a running job to finish.
func (r *Rollover) Stop() {
	r.mu.Lock()
	c := r.cron
	r.cron = nil
	r.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}
