package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"budgetapp/internal/budget"
	"budgetapp/internal/core"
	"budgetapp/internal/storage"
)

type movableClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *movableClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *movableClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func newLoadedEngine(t *testing.T, clock *movableClock) *budget.Engine {
	t.Helper()
	gw := storage.NewGateway(storage.NewMemoryStore(), nil, storage.WithClock(clock.Now))
	e := budget.NewEngine(gw, budget.WithClock(clock.Now))
	e.Load(context.Background())
	return e
}

func TestNewRollover_RejectsBadSchedule(t *testing.T) {
	if _, err := NewRollover(nil, "every tuesday"); err == nil {
		t.Fatal("expected schedule parse error")
	}
}

func TestRunOnce_RollsIntoNewMonthAndCarriesRecurring(t *testing.T) {
	ctx := context.Background()
	clock := &movableClock{now: time.Date(2024, 5, 20, 9, 0, 0, 0, time.UTC)}
	engine := newLoadedEngine(t, clock)
	engine.AddExpense(ctx, core.ExpenseDraft{Title: "Rent", Amount: core.Money{Cents: 90000}, Date: "2024-05-01", Category: "Rent/Mortgage", Recurring: true}, 0)
	engine.AddExpense(ctx, core.ExpenseDraft{Title: "Coffee", Amount: core.Money{Cents: 300}, Date: "2024-05-02", Category: "Dining"}, 0)

	var exported []core.MonthKey
	r, err := NewRollover(engine, "5 0 1 * *",
		WithClock(clock.Now),
		WithExport(func(_ context.Context, m core.MonthKey) error {
			exported = append(exported, m)
			return nil
		}, time.Second))
	if err != nil {
		t.Fatalf("NewRollover: %v", err)
	}

	if rolled, err := r.RunOnce(ctx); err != nil || rolled {
		t.Fatalf("same month should not roll: rolled=%v err=%v", rolled, err)
	}

	clock.Set(time.Date(2024, 6, 1, 0, 5, 0, 0, time.UTC))
	rolled, err := r.RunOnce(ctx)
	if err != nil || !rolled {
		t.Fatalf("expected rollover, rolled=%v err=%v", rolled, err)
	}

	state, _ := engine.State()
	if state.CurrentMonth != "2024-06" {
		t.Fatalf("current month = %s", state.CurrentMonth)
	}
	june := state.Months["2024-06"].Accounts["1"]
	if len(june.Expenses) != 1 || june.Expenses[0].Title != "Rent" || june.Expenses[0].Date != "2024-06-01" {
		t.Errorf("unexpected carried expenses %+v", june.Expenses)
	}
	if len(exported) != 1 || exported[0] != "2024-05" {
		t.Errorf("exported = %v, want [2024-05]", exported)
	}
}

func TestRunOnce_ExportFailureDoesNotFailRollover(t *testing.T) {
	clock := &movableClock{now: time.Date(2024, 5, 20, 9, 0, 0, 0, time.UTC)}
	engine := newLoadedEngine(t, clock)
	r, err := NewRollover(engine, "@monthly",
		WithClock(clock.Now),
		WithExport(func(context.Context, core.MonthKey) error { return errors.New("sheets down") }, time.Second))
	if err != nil {
		t.Fatal(err)
	}

	clock.Set(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	if rolled, err := r.RunOnce(context.Background()); err != nil || !rolled {
		t.Fatalf("rolled=%v err=%v", rolled, err)
	}
}

func TestRunOnce_KeepsViewedMonthUntilCalendarAdvances(t *testing.T) {
	tests := []struct {
		name   string
		viewed core.MonthKey
	}{
		{"earlier month", "2024-03"},
		{"later month", "2024-08"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			clock := &movableClock{now: time.Date(2024, 5, 20, 9, 0, 0, 0, time.UTC)}
			engine := newLoadedEngine(t, clock)
			if _, err := engine.ChangeMonth(ctx, tt.viewed); err != nil {
				t.Fatal(err)
			}

			var exported []core.MonthKey
			r, err := NewRollover(engine, "@monthly",
				WithClock(clock.Now),
				WithExport(func(_ context.Context, m core.MonthKey) error {
					exported = append(exported, m)
					return nil
				}, time.Second))
			if err != nil {
				t.Fatal(err)
			}

			if rolled, err := r.RunOnce(ctx); err != nil || rolled {
				t.Fatalf("startup run: rolled=%v err=%v", rolled, err)
			}
			clock.Set(time.Date(2024, 5, 31, 23, 0, 0, 0, time.UTC))
			if rolled, _ := r.RunOnce(ctx); rolled {
				t.Fatal("same calendar month must not roll")
			}
			if state, _ := engine.State(); state.CurrentMonth != tt.viewed {
				t.Fatalf("current month = %s, want %s", state.CurrentMonth, tt.viewed)
			}
			if len(exported) != 0 {
				t.Fatalf("exported = %v before the calendar moved", exported)
			}

			clock.Set(time.Date(2024, 6, 1, 0, 5, 0, 0, time.UTC))
			if rolled, err := r.RunOnce(ctx); err != nil || !rolled {
				t.Fatalf("rolled=%v err=%v", rolled, err)
			}
			if state, _ := engine.State(); state.CurrentMonth != "2024-06" {
				t.Errorf("current month = %s, want 2024-06", state.CurrentMonth)
			}
			if len(exported) != 1 || exported[0] != "2024-05" {
				t.Errorf("exported = %v, want the closed calendar month [2024-05]", exported)
			}

			if rolled, _ := r.RunOnce(ctx); rolled {
				t.Error("second run in the same month must not roll again")
			}
		})
	}
}

func TestRunOnce_ClockGoingBackDoesNothing(t *testing.T) {
	ctx := context.Background()
	clock := &movableClock{now: time.Date(2024, 5, 20, 9, 0, 0, 0, time.UTC)}
	engine := newLoadedEngine(t, clock)
	exports := 0
	r, _ := NewRollover(engine, "@monthly",
		WithClock(clock.Now),
		WithExport(func(context.Context, core.MonthKey) error { exports++; return nil }, time.Second))

	clock.Set(time.Date(2024, 4, 30, 9, 0, 0, 0, time.UTC))
	if rolled, err := r.RunOnce(ctx); err != nil || rolled {
		t.Fatalf("rolled=%v err=%v", rolled, err)
	}
	if state, _ := engine.State(); state.CurrentMonth != "2024-05" {
		t.Errorf("current month = %s", state.CurrentMonth)
	}
	if exports != 0 {
		t.Errorf("exports = %d", exports)
	}
}

func TestRunOnce_BeforeLoadIsNoop(t *testing.T) {
	clock := &movableClock{now: time.Date(2024, 5, 20, 9, 0, 0, 0, time.UTC)}
	gw := storage.NewGateway(storage.NewMemoryStore(), nil)
	engine := budget.NewEngine(gw)
	r, _ := NewRollover(engine, "@monthly", WithClock(clock.Now))
	if rolled, err := r.RunOnce(context.Background()); err != nil || rolled {
		t.Fatalf("rolled=%v err=%v", rolled, err)
	}
}

func TestStartStop(t *testing.T) {
	clock := &movableClock{now: time.Date(2024, 5, 20, 9, 0, 0, 0, time.UTC)}
	r, err := NewRollover(newLoadedEngine(t, clock), "@every 1h", WithClock(clock.Now))
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	r.Stop()
	r.Stop()
}
