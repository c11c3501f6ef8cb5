// Package query derives read-only views over a budget state snapshot:
// per-view income and expenses, totals, balances, category breakdowns,
// budget progress and expense search.
package query

import (
	"strconv"

	"budgetapp/internal/core"
)

// IncomeForView sums the income of every bucket for the all view, or
// returns the one account's income (zero when absent).
func IncomeForView(month *core.MonthData, view core.View) core.Money {
	if month == nil {
		return core.Money{}
	}
	if id, ok := view.AccountID(); ok {
		if b := month.Accounts[core.AccountKey(id)]; b != nil {
			return b.Income
		}
		return core.Money{}
	}
	var total core.Money
	for _, key := range month.AccountKeys() {
		if b := month.Accounts[key]; b != nil {
			total = total.Add(b.Income)
		}
	}
	return total
}

// ExpensesForView returns a copy of the view's expense list. The all view
// concatenates buckets in ascending account id order and tags each expense
// with its owning account.
func ExpensesForView(month *core.MonthData, view core.View) []core.Expense {
	if month == nil {
		return []core.Expense{}
	}
	if id, ok := view.AccountID(); ok {
		b := month.Accounts[core.AccountKey(id)]
		if b == nil {
			return []core.Expense{}
		}
		return tagged(b.Expenses, id)
	}
	out := []core.Expense{}
	for _, key := range month.AccountKeys() {
		b := month.Accounts[key]
		if b == nil {
			continue
		}
		id := accountIDFromKey(key)
		out = append(out, tagged(b.Expenses, id)...)
	}
	return out
}

// BudgetsForView returns the category budgets for the view. The all view
// adds up every account's budget per category.
func BudgetsForView(month *core.MonthData, view core.View) map[string]core.Money {
	out := map[string]core.Money{}
	if month == nil {
		return out
	}
	for _, key := range month.AccountKeys() {
		if id, ok := view.AccountID(); ok && key != core.AccountKey(id) {
			continue
		}
		b := month.Accounts[key]
		if b == nil {
			continue
		}
		for cat, amount := range b.CategoryBudgets {
			out[cat] = out[cat].Add(amount)
		}
	}
	return out
}

func tagged(in []core.Expense, accountID int) []core.Expense {
	out := make([]core.Expense, len(in))
	for i, e := range in {
		if e.AccountID == 0 {
			e.AccountID = accountID
		}
		out[i] = e
	}
	return out
}

func accountIDFromKey(key string) int {
	id, err := strconv.Atoi(key)
	if err != nil {
		return 0
	}
	return id
}

// TotalExpense sums the amounts of the list.
func TotalExpense(expenses []core.Expense) core.Money {
	var total core.Money
	for _, e := range expenses {
		total = total.Add(e.Amount)
	}
	return total
}

// Balance is income minus spending.
func Balance(income, spent core.Money) core.Money {
	return income.Sub(spent)
}
