package budget

import (
	"sort"

	"budgetapp/internal/core"
)

// EnsureMonth makes sure state.Months[key] exists and holds a bucket for
// every known account, then returns it. A new month carries income,
// category budgets and recurring expenses forward from the nearest earlier
// month. Calling it again for the same key changes nothing.
func EnsureMonth(state *core.BudgetState, key core.MonthKey) *core.MonthData {
	if state.Months == nil {
		state.Months = make(map[core.MonthKey]*core.MonthData)
	}

	if month, ok := state.Months[key]; ok {
		backfillAccounts(state, month)
		return month
	}

	source := carrySource(state, key)
	month := &core.MonthData{
		Accounts: make(map[string]*core.AccountMonthData, len(state.Accounts)),
	}

	next := 0
	for _, acct := range state.Accounts {
		id := core.AccountKey(acct.ID)
		bucket := core.NewAccountMonthData()
		if source != nil {
			if prev, ok := source.Accounts[id]; ok && prev != nil {
				bucket.Income = prev.Income
				for cat, amount := range prev.CategoryBudgets {
					bucket.CategoryBudgets[cat] = amount
				}
				for _, e := range prev.Expenses {
					if !e.Recurring {
						continue
					}
					e.ID = next
					e.Date = key.FirstDay()
					if e.AccountID == 0 {
						e.AccountID = acct.ID
					}
					bucket.Expenses = append(bucket.Expenses, e)
					next++
				}
			}
		}
		month.Accounts[id] = bucket
	}
	month.NextExpenseID = next

	state.Months[key] = month
	return month
}

func backfillAccounts(state *core.BudgetState, month *core.MonthData) {
	if month.Accounts == nil {
		month.Accounts = make(map[string]*core.AccountMonthData, len(state.Accounts))
	}
	for _, acct := range state.Accounts {
		id := core.AccountKey(acct.ID)
		if month.Accounts[id] == nil {
			month.Accounts[id] = core.NewAccountMonthData()
		}
	}
}

// carrySource picks the greatest existing month strictly before key,
// falling back to the state's current month when that is earlier.
func carrySource(state *core.BudgetState, key core.MonthKey) *core.MonthData {
	keys := make([]core.MonthKey, 0, len(state.Months))
	for k := range state.Months {
		if k < key {
			keys = append(keys, k)
		}
	}
	if len(keys) > 0 {
		sort.Slice(keys, func(i, j int) bool { return keys[i] > keys[j] })
		return state.Months[keys[0]]
	}
	if state.CurrentMonth != "" && state.CurrentMonth < key {
		return state.Months[state.CurrentMonth]
	}
	return nil
}
