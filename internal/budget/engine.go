// Package budget owns the in-process budget state: month initialization and
// every mutation, each persisted as a whole-state write.
package budget

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"budgetapp/internal/core"
	"budgetapp/internal/log"
)

// ErrLastActiveAccount is returned when archiving would leave no active account.
var ErrLastActiveAccount = errors.New("cannot archive the last active account")

// Storage is the persistence capability the engine runs on.
type Storage interface {
	Load(ctx context.Context) core.BudgetState
	Save(ctx context.Context, state core.BudgetState) error
	Clear(ctx context.Context) error
}

// Notifier receives a Change after each persisted mutation.
type Notifier interface {
	Notify(ctx context.Context, change Change)
}

// Change describes one applied mutation.
type Change struct {
	Op        string        `json:"op"`
	Month     core.MonthKey `json:"month"`
	AccountID int           `json:"accountId,omitempty"`
	ExpenseID *int          `json:"expenseId,omitempty"`
	Revision  uint64        `json:"revision"`
	At        time.Time     `json:"at"`
}

// Mutation names carried in Change.Op.
const (
	OpAddExpense     = "add_expense"
	OpEditExpense    = "edit_expense"
	OpDeleteExpense  = "delete_expense"
	OpSetIncome      = "set_income"
	OpSetBudgets     = "set_category_budgets"
	OpAddCategory    = "add_category"
	OpDeleteCategory = "delete_category"
	OpAddAccount     = "add_account"
	OpRenameAccount  = "rename_account"
	OpArchiveAccount = "archive_account"
	OpChangeMonth    = "change_month"
	OpSwitchAccount  = "switch_account"
	OpResetMonth     = "reset_month"
	OpSetCurrency    = "set_currency"
	OpUpdateProfile  = "update_profile"
	OpClearAll       = "clear_all"
)

// Engine serializes all reads and writes of the BudgetState. Mutations are
// no-ops until Load has run.
type Engine struct {
	mu       sync.RWMutex
	store    Storage
	state    core.BudgetState
	loaded   bool
	revision uint64

	logger   *log.Logger
	notifier Notifier
	now      func() time.Time
}

type Option func(*Engine)

func WithLogger(logger *log.Logger) Option {
	return func(e *Engine) { e.logger = logger.WithComponent(log.ComponentEngine) }
}

func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(store Storage, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		logger: log.Discard().WithComponent(log.ComponentEngine),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Load reads the state from storage and materializes the current month.
func (e *Engine) Load(ctx context.Context) core.BudgetState {
	e.mu.Lock()
	defer e.mu.Unlock()

	state := e.store.Load(ctx)
	_, existed := state.Months[state.CurrentMonth]
	EnsureMonth(&state, state.CurrentMonth)
	if !existed {
		e.persist(ctx, log.OpLoad, state)
	}
	e.state = state
	e.loaded = true
	e.revision++

	e.logger.InfoContext(ctx, "Budget state loaded",
		log.FieldMonth, state.CurrentMonth.String(),
		log.FieldView, state.ActiveAccount.String(),
		"accounts", len(state.Accounts))
	return state.Clone()
}

// Reload discards the in-memory state and reads it again.
func (e *Engine) Reload(ctx context.Context) core.BudgetState {
	return e.Load(ctx)
}

// Loaded reports whether Load has completed.
func (e *Engine) Loaded() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.loaded
}

// State returns a deep copy of the current state.
func (e *Engine) State() (core.BudgetState, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.loaded {
		return core.BudgetState{}, false
	}
	return e.state.Clone(), true
}

// Revision increases after every applied mutation.
func (e *Engine) Revision() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.revision
}

// mutate runs fn against a copy of the state. When fn reports a change the
// copy is persisted and replaces the current state.
func (e *Engine) mutate(ctx context.Context, op string, fn func(s *core.BudgetState) (Change, bool, error)) (bool, error) {
	e.mu.Lock()
	if !e.loaded {
		e.mu.Unlock()
		e.logger.DebugContext(ctx, "Mutation ignored before load", log.FieldOperation, op)
		return false, nil
	}

	next := e.state.Clone()
	change, changed, err := fn(&next)
	if err != nil || !changed {
		e.mu.Unlock()
		return false, err
	}

	e.persist(ctx, op, next)
	e.state = next
	e.revision++
	change.Op = op
	change.Revision = e.revision
	change.At = e.now()
	if change.Month == "" {
		change.Month = next.CurrentMonth
	}
	notifier := e.notifier
	e.mu.Unlock()

	if notifier != nil {
		notifier.Notify(ctx, change)
	}
	return true, nil
}

func (e *Engine) persist(ctx context.Context, op string, state core.BudgetState) {
	if err := e.store.Save(ctx, state); err != nil {
		e.logger.ErrorContext(ctx, "Failed to persist budget state",
			log.NewFields().WithOperation(op).WithError(err, log.ErrorTypeDatabase).ToSlice()...)
	}
}

// targetAccount resolves the account a mutation applies to: the explicit id
// when non-zero, else the active account, else the first account. With
// skipArchived the fallback is the first non-archived account.
func targetAccount(s *core.BudgetState, explicit int, skipArchived bool) (int, bool) {
	if explicit > 0 {
		return explicit, s.FindAccount(explicit) >= 0
	}
	if id, ok := s.ActiveAccount.AccountID(); ok && s.FindAccount(id) >= 0 {
		return id, true
	}
	if len(s.Accounts) == 0 {
		return 0, false
	}
	if skipArchived {
		for _, a := range s.Accounts {
			if !a.Archived {
				return a.ID, true
			}
		}
	}
	return s.Accounts[0].ID, true
}

// AddExpense appends a new expense to the current month of the target
// account (0 selects the active account) and returns it.
func (e *Engine) AddExpense(ctx context.Context, draft core.ExpenseDraft, accountID int) (core.Expense, bool) {
	var created core.Expense
	ok, _ := e.mutate(ctx, OpAddExpense, func(s *core.BudgetState) (Change, bool, error) {
		acct, found := targetAccount(s, accountID, false)
		if !found {
			return Change{}, false, nil
		}
		month := EnsureMonth(s, s.CurrentMonth)
		bucket := month.Accounts[core.AccountKey(acct)]

		category := draft.Category
		if category == "" {
			category = core.FallbackCategory
		}
		created = core.Expense{
			ID:        month.NextExpenseID,
			Title:     strings.TrimSpace(draft.Title),
			Amount:    draft.Amount,
			Date:      draft.Date,
			Category:  category,
			Recurring: draft.Recurring,
			AccountID: acct,
		}
		month.NextExpenseID++
		bucket.Expenses = append(bucket.Expenses, created)

		id := created.ID
		return Change{AccountID: acct, ExpenseID: &id}, true, nil
	})
	if ok {
		e.logger.InfoContext(ctx, "Expense added",
			log.NewFields().WithAccount(created.AccountID).
				WithExpense(created.ID, created.Title, created.Amount.Cents, created.Category).ToSlice()...)
	}
	return created, ok
}

// EditExpense merges patch into the expense with the given id in the
// account's current-month list. Unknown ids are ignored.
func (e *Engine) EditExpense(ctx context.Context, id, accountID int, patch core.ExpensePatch) bool {
	ok, _ := e.mutate(ctx, OpEditExpense, func(s *core.BudgetState) (Change, bool, error) {
		month, exists := s.Months[s.CurrentMonth]
		if !exists {
			return Change{}, false, nil
		}
		bucket := month.Accounts[core.AccountKey(accountID)]
		if bucket == nil {
			return Change{}, false, nil
		}
		for i := range bucket.Expenses {
			if bucket.Expenses[i].ID == id {
				bucket.Expenses[i] = patch.Apply(bucket.Expenses[i])
				return Change{AccountID: accountID, ExpenseID: &id}, true, nil
			}
		}
		return Change{}, false, nil
	})
	return ok
}

// DeleteExpense removes an expense from the account's current-month list.
func (e *Engine) DeleteExpense(ctx context.Context, id, accountID int) bool {
	ok, _ := e.mutate(ctx, OpDeleteExpense, func(s *core.BudgetState) (Change, bool, error) {
		month, exists := s.Months[s.CurrentMonth]
		if !exists {
			return Change{}, false, nil
		}
		bucket := month.Accounts[core.AccountKey(accountID)]
		if bucket == nil {
			return Change{}, false, nil
		}
		kept := bucket.Expenses[:0]
		removed := false
		for _, exp := range bucket.Expenses {
			if exp.ID == id {
				removed = true
				continue
			}
			kept = append(kept, exp)
		}
		bucket.Expenses = kept
		return Change{AccountID: accountID, ExpenseID: &id}, removed, nil
	})
	return ok
}

// forwardMonths returns the current month and every existing later month.
func forwardMonths(s *core.BudgetState) []*core.MonthData {
	EnsureMonth(s, s.CurrentMonth)
	var out []*core.MonthData
	for _, key := range s.MonthKeys() {
		if key >= s.CurrentMonth {
			out = append(out, EnsureMonth(s, key))
		}
	}
	return out
}

// SetIncome sets the target account's income in the current month and in
// every later month that already exists.
func (e *Engine) SetIncome(ctx context.Context, amount core.Money, accountID int) bool {
	ok, _ := e.mutate(ctx, OpSetIncome, func(s *core.BudgetState) (Change, bool, error) {
		acct, found := targetAccount(s, accountID, true)
		if !found {
			return Change{}, false, nil
		}
		key := core.AccountKey(acct)
		for _, month := range forwardMonths(s) {
			month.Accounts[key].Income = amount
		}
		return Change{AccountID: acct}, true, nil
	})
	return ok
}

// SetCategoryBudgets stores each positive amount and removes categories
// whose amount is zero, negative or NaN, in the current month and every
// later existing month.
func (e *Engine) SetCategoryBudgets(ctx context.Context, budgets map[string]float64, accountID int) bool {
	ok, _ := e.mutate(ctx, OpSetBudgets, func(s *core.BudgetState) (Change, bool, error) {
		acct, found := targetAccount(s, accountID, false)
		if !found || len(budgets) == 0 {
			return Change{}, false, nil
		}
		key := core.AccountKey(acct)
		for _, month := range forwardMonths(s) {
			bucket := month.Accounts[key]
			for cat, raw := range budgets {
				if amount, valid := core.ParseBudgetAmount(raw); valid {
					bucket.CategoryBudgets[cat] = amount
				} else {
					delete(bucket.CategoryBudgets, cat)
				}
			}
		}
		return Change{AccountID: acct}, true, nil
	})
	return ok
}

// SetCategoryBudget is SetCategoryBudgets for a single category.
func (e *Engine) SetCategoryBudget(ctx context.Context, category string, amount float64, accountID int) bool {
	return e.SetCategoryBudgets(ctx, map[string]float64{category: amount}, accountID)
}

// AddCategory appends name to the account's categories unless present.
func (e *Engine) AddCategory(ctx context.Context, name string, accountID int) bool {
	name = strings.TrimSpace(name)
	ok, _ := e.mutate(ctx, OpAddCategory, func(s *core.BudgetState) (Change, bool, error) {
		acct, found := targetAccount(s, accountID, false)
		if !found || name == "" {
			return Change{}, false, nil
		}
		a := &s.Accounts[s.FindAccount(acct)]
		if a.HasCategory(name) {
			return Change{}, false, nil
		}
		a.Categories = append(a.Categories, name)
		return Change{AccountID: acct}, true, nil
	})
	return ok
}

// DeleteCategory removes name from the account's categories. Existing
// expenses and budgets keep their category.
func (e *Engine) DeleteCategory(ctx context.Context, name string, accountID int) bool {
	ok, _ := e.mutate(ctx, OpDeleteCategory, func(s *core.BudgetState) (Change, bool, error) {
		acct, found := targetAccount(s, accountID, false)
		if !found {
			return Change{}, false, nil
		}
		a := &s.Accounts[s.FindAccount(acct)]
		kept := make([]string, 0, len(a.Categories))
		for _, c := range a.Categories {
			if c != name {
				kept = append(kept, c)
			}
		}
		if len(kept) == len(a.Categories) {
			return Change{}, false, nil
		}
		a.Categories = kept
		return Change{AccountID: acct}, true, nil
	})
	return ok
}

// AddAccount creates an account with the next id and back-fills an empty
// bucket into every existing month. A positive initial balance becomes the
// account's income in the current month.
func (e *Engine) AddAccount(ctx context.Context, name, typ string, initialBalance core.Money) (core.Account, bool) {
	var created core.Account
	ok, _ := e.mutate(ctx, OpAddAccount, func(s *core.BudgetState) (Change, bool, error) {
		maxID := 0
		for _, a := range s.Accounts {
			if a.ID > maxID {
				maxID = a.ID
			}
		}
		if typ == "" {
			typ = core.AccountChecking
		}
		created = core.NewAccount(maxID+1, strings.TrimSpace(name), typ, e.now())
		s.Accounts = append(s.Accounts, created)

		for _, key := range s.MonthKeys() {
			EnsureMonth(s, key)
		}
		if initialBalance.Cents > 0 {
			month := EnsureMonth(s, s.CurrentMonth)
			month.Accounts[core.AccountKey(created.ID)].Income = initialBalance
		}
		return Change{AccountID: created.ID}, true, nil
	})
	if ok {
		e.logger.InfoContext(ctx, "Account added", log.FieldAccountID, created.ID, "name", created.Name, "type", created.Type)
	}
	return created, ok
}

// RenameAccount updates the account's display name.
func (e *Engine) RenameAccount(ctx context.Context, id int, name string) bool {
	name = strings.TrimSpace(name)
	ok, _ := e.mutate(ctx, OpRenameAccount, func(s *core.BudgetState) (Change, bool, error) {
		i := s.FindAccount(id)
		if i < 0 || name == "" || s.Accounts[i].Name == name {
			return Change{}, false, nil
		}
		s.Accounts[i].Name = name
		return Change{AccountID: id}, true, nil
	})
	return ok
}

// ArchiveAccount sets the archived flag. Archiving the last active account
// fails with ErrLastActiveAccount and leaves the state unchanged. When the
// archived account was the active view, the view moves to the first
// remaining active account.
func (e *Engine) ArchiveAccount(ctx context.Context, id int, archived bool) (bool, error) {
	return e.mutate(ctx, OpArchiveAccount, func(s *core.BudgetState) (Change, bool, error) {
		i := s.FindAccount(id)
		if i < 0 || s.Accounts[i].Archived == archived {
			return Change{}, false, nil
		}
		if archived && len(s.ActiveAccounts()) <= 1 {
			return Change{}, false, ErrLastActiveAccount
		}
		s.Accounts[i].Archived = archived
		if active, ok := s.ActiveAccount.AccountID(); archived && ok && active == id {
			s.ActiveAccount = core.AccountView(s.ActiveAccounts()[0].ID)
		}
		return Change{AccountID: id}, true, nil
	})
}

// ChangeMonth makes key the current month, initializing it if needed.
func (e *Engine) ChangeMonth(ctx context.Context, key core.MonthKey) (bool, error) {
	if !key.Valid() {
		return false, fmt.Errorf("change month: %w: %q", core.ErrInvalidMonthKey, key)
	}
	return e.mutate(ctx, OpChangeMonth, func(s *core.BudgetState) (Change, bool, error) {
		_, existed := s.Months[key]
		if s.CurrentMonth == key && existed {
			return Change{}, false, nil
		}
		EnsureMonth(s, key)
		s.CurrentMonth = key
		return Change{Month: key}, true, nil
	})
}

// SwitchAccount changes the active view. Unknown account ids are ignored.
func (e *Engine) SwitchAccount(ctx context.Context, view core.View) bool {
	ok, _ := e.mutate(ctx, OpSwitchAccount, func(s *core.BudgetState) (Change, bool, error) {
		if id, scoped := view.AccountID(); scoped && s.FindAccount(id) < 0 {
			return Change{}, false, nil
		}
		if s.ActiveAccount == view {
			return Change{}, false, nil
		}
		s.ActiveAccount = view
		id, _ := view.AccountID()
		return Change{AccountID: id}, true, nil
	})
	return ok
}

// ResetMonth empties every bucket of the current month and restarts its
// expense counter.
func (e *Engine) ResetMonth(ctx context.Context) bool {
	ok, _ := e.mutate(ctx, OpResetMonth, func(s *core.BudgetState) (Change, bool, error) {
		month, exists := s.Months[s.CurrentMonth]
		if !exists {
			return Change{}, false, nil
		}
		for key := range month.Accounts {
			month.Accounts[key] = core.NewAccountMonthData()
		}
		month.NextExpenseID = 0
		return Change{}, true, nil
	})
	if ok {
		e.logger.WarnContext(ctx, "Month reset", log.FieldOperation, OpResetMonth)
	}
	return ok
}

// SetCurrency changes the display currency.
func (e *Engine) SetCurrency(ctx context.Context, code string) (bool, error) {
	normalized, err := core.NormalizeCurrency(code)
	if err != nil {
		return false, fmt.Errorf("set currency %q: %w", code, err)
	}
	return e.mutate(ctx, OpSetCurrency, func(s *core.BudgetState) (Change, bool, error) {
		if s.Currency == normalized {
			return Change{}, false, nil
		}
		s.Currency = normalized
		return Change{}, true, nil
	})
}

// UpdateProfile replaces the stored user profile.
func (e *Engine) UpdateProfile(ctx context.Context, profile core.UserProfile) bool {
	ok, _ := e.mutate(ctx, OpUpdateProfile, func(s *core.BudgetState) (Change, bool, error) {
		p := profile
		p.Name = strings.TrimSpace(p.Name)
		p.KYCInfo = strings.TrimSpace(p.KYCInfo)
		s.UserProfile = &p
		return Change{}, true, nil
	})
	return ok
}

// ExportData returns the whole state as indented JSON.
func (e *Engine) ExportData() ([]byte, bool) {
	state, ok := e.State()
	if !ok {
		return nil, false
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		e.logger.Error("Failed to encode export", log.FieldError, err.Error())
		return nil, false
	}
	return data, true
}

// ClearAll removes the persisted blob and starts over from an in-memory
// default state. Nothing is written until the next mutation.
func (e *Engine) ClearAll(ctx context.Context) bool {
	e.mu.Lock()
	if !e.loaded {
		e.mu.Unlock()
		return false
	}
	if err := e.store.Clear(ctx); err != nil {
		e.logger.ErrorContext(ctx, "Failed to clear persisted state",
			log.NewFields().WithOperation(OpClearAll).WithError(err, log.ErrorTypeDatabase).ToSlice()...)
	}
	state := core.DefaultState(e.now())
	EnsureMonth(&state, state.CurrentMonth)
	e.state = state
	e.revision++
	change := Change{Op: OpClearAll, Month: state.CurrentMonth, Revision: e.revision, At: e.now()}
	notifier := e.notifier
	e.mu.Unlock()

	if notifier != nil {
		notifier.Notify(ctx, change)
	}
	return true
}
