package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"budgetapp/internal/core"
)

// ErrUnknownVersion marks a blob whose schema version this build cannot read.
var ErrUnknownVersion = errors.New("unknown schema version")

// SchemaV1 is the flat single-account shape: one income and one expense
// list per month.
type SchemaV1 struct {
	Version      int                       `json:"version"`
	CurrentMonth core.MonthKey             `json:"currentMonth"`
	Months       map[core.MonthKey]v1Month `json:"months"`
	Currency     string                    `json:"currency,omitempty"`
}

type v1Month struct {
	Income        core.Money     `json:"income"`
	Expenses      []core.Expense `json:"expenses"`
	NextExpenseID *int           `json:"nextExpenseId,omitempty"`
}

// SchemaV2 is the multi-account shape. Per-account categories and budgets
// may be missing and are filled from the legacy top-level fields.
type SchemaV2 struct {
	Version         int                               `json:"version"`
	CurrentMonth    core.MonthKey                     `json:"currentMonth"`
	ActiveAccount   storedView                        `json:"activeAccountId"`
	Accounts        []core.Account                    `json:"accounts"`
	Months          map[core.MonthKey]*core.MonthData `json:"months"`
	Currency        string                            `json:"currency"`
	UserProfile     *core.UserProfile                 `json:"userProfile,omitempty"`
	Categories      []string                          `json:"categories,omitempty"`
	CategoryBudgets map[string]core.Money             `json:"categoryBudgets,omitempty"`
}

// storedView reads activeAccountId leniently. Anything other than "all" or
// a positive id (0, false, "", null, an unknown shape) leaves it unset so
// migration picks the first active account.
type storedView struct {
	view core.View
	set  bool
}

func (s *storedView) UnmarshalJSON(data []byte) error {
	*s = storedView{}
	raw := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if v, err := core.ParseView(raw); err == nil {
		*s = storedView{view: v, set: true}
	}
	return nil
}

type versionProbe struct {
	Version  *int            `json:"version"`
	Accounts json.RawMessage `json:"accounts"`
	Months   json.RawMessage `json:"months"`
}

// DetectVersion reports the schema version of a raw blob. Untagged blobs
// are classified by shape.
func DetectVersion(data []byte) (int, error) {
	var probe versionProbe
	if err := json.Unmarshal(data, &probe); err != nil {
		return 0, fmt.Errorf("decode version: %w", err)
	}
	if probe.Version != nil {
		return *probe.Version, nil
	}
	switch {
	case len(probe.Accounts) > 0 && string(probe.Accounts) != "null":
		return 2, nil
	case len(probe.Months) > 0 && string(probe.Months) != "null":
		return 1, nil
	}
	return 0, ErrUnknownVersion
}

// Decode parses a persisted blob of any known version and migrates it to
// the current shape. Versions newer than core.CurrentVersion are rejected.
func Decode(data []byte, now time.Time) (core.BudgetState, error) {
	version, err := DetectVersion(data)
	if err != nil {
		return core.BudgetState{}, err
	}

	switch version {
	case 1:
		var v1 SchemaV1
		if err := json.Unmarshal(data, &v1); err != nil {
			return core.BudgetState{}, fmt.Errorf("decode v1: %w", err)
		}
		return migrateV2(migrateV1(v1), now), nil
	case 2, core.CurrentVersion:
		// Current blobs go through the v2 fill-in too so partially written
		// records still come out complete.
		var v2 SchemaV2
		if err := json.Unmarshal(data, &v2); err != nil {
			return core.BudgetState{}, fmt.Errorf("decode v%d: %w", version, err)
		}
		return migrateV2(v2, now), nil
	default:
		return core.BudgetState{}, fmt.Errorf("%w: %d", ErrUnknownVersion, version)
	}
}

// migrateV1 moves every month's data into account "1".
func migrateV1(in SchemaV1) SchemaV2 {
	out := SchemaV2{
		Version:       2,
		CurrentMonth:  in.CurrentMonth,
		ActiveAccount: storedView{view: core.AccountView(1), set: true},
		Accounts: []core.Account{{
			ID:   1,
			Name: "Main",
			Type: core.AccountChecking,
		}},
		Months:   make(map[core.MonthKey]*core.MonthData, len(in.Months)),
		Currency: in.Currency,
	}

	for key, m := range in.Months {
		bucket := core.NewAccountMonthData()
		bucket.Income = m.Income
		next := 0
		for _, e := range m.Expenses {
			e.AccountID = 1
			bucket.Expenses = append(bucket.Expenses, e)
			if e.ID+1 > next {
				next = e.ID + 1
			}
		}
		if m.NextExpenseID != nil && *m.NextExpenseID > next {
			next = *m.NextExpenseID
		}
		out.Months[key] = &core.MonthData{
			NextExpenseID: next,
			Accounts:      map[string]*core.AccountMonthData{core.AccountKey(1): bucket},
		}
	}
	return out
}

// migrateV2 fills per-account categories and budgets and normalizes the
// result into the current shape.
func migrateV2(in SchemaV2, now time.Time) core.BudgetState {
	if len(in.Accounts) == 0 {
		return core.DefaultState(now)
	}

	state := core.BudgetState{
		Version:      core.CurrentVersion,
		CurrentMonth: in.CurrentMonth,
		Accounts:     make([]core.Account, 0, len(in.Accounts)),
		Months:       make(map[core.MonthKey]*core.MonthData, len(in.Months)),
		Currency:     in.Currency,
		UserProfile:  in.UserProfile,
	}

	fallbackCats := in.Categories
	if len(fallbackCats) == 0 {
		fallbackCats = core.DefaultCategories
	}
	for _, a := range in.Accounts {
		if a.Categories == nil {
			a.Categories = append([]string{}, fallbackCats...)
		}
		if a.Name == "" {
			a.Name = fmt.Sprintf("Account %d", a.ID)
		}
		if a.Type == "" {
			a.Type = core.AccountChecking
		}
		if a.CreatedAt == 0 {
			a.CreatedAt = now.UnixMilli()
		}
		state.Accounts = append(state.Accounts, a)
	}

	for key, m := range in.Months {
		if !key.Valid() || m == nil {
			continue
		}
		month := &core.MonthData{
			NextExpenseID: m.NextExpenseID,
			Accounts:      make(map[string]*core.AccountMonthData, len(m.Accounts)),
		}
		for acct, b := range m.Accounts {
			if b == nil {
				b = core.NewAccountMonthData()
			}
			if b.Expenses == nil {
				b.Expenses = []core.Expense{}
			}
			if b.CategoryBudgets == nil {
				b.CategoryBudgets = make(map[string]core.Money, len(in.CategoryBudgets))
				for cat, v := range in.CategoryBudgets {
					b.CategoryBudgets[cat] = v
				}
			}
			for _, e := range b.Expenses {
				if e.ID+1 > month.NextExpenseID {
					month.NextExpenseID = e.ID + 1
				}
			}
			month.Accounts[acct] = b
		}
		state.Months[key] = month
	}

	if !state.CurrentMonth.Valid() {
		state.CurrentMonth = core.MonthKeyOf(now)
	}
	if code, err := core.NormalizeCurrency(state.Currency); err == nil {
		state.Currency = code
	} else {
		state.Currency = core.DefaultCurrency
	}

	if len(state.ActiveAccounts()) == 0 {
		state.Accounts[0].Archived = false
	}
	switch {
	case !in.ActiveAccount.set:
		state.ActiveAccount = core.AccountView(firstActiveID(state))
	case in.ActiveAccount.view.IsAll():
		state.ActiveAccount = core.AllAccounts()
	default:
		id, _ := in.ActiveAccount.view.AccountID()
		if state.FindAccount(id) < 0 {
			id = firstActiveID(state)
		}
		state.ActiveAccount = core.AccountView(id)
	}
	return state
}

func firstActiveID(state core.BudgetState) int {
	active := state.ActiveAccounts()
	ids := make([]int, 0, len(active))
	for _, a := range active {
		ids = append(ids, a.ID)
	}
	sort.Ints(ids)
	if len(ids) == 0 {
		return 1
	}
	return ids[0]
}
