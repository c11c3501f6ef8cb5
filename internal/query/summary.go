package query

import (
	"budgetapp/internal/core"
)

// Summary is everything the dashboard shows for one month and view.
type Summary struct {
	Month       core.MonthKey   `json:"month"`
	View        core.View       `json:"view"`
	Currency    string          `json:"currency"`
	Income      core.Money      `json:"income"`
	Spent       core.Money      `json:"spent"`
	Balance     core.Money      `json:"balance"`
	Status      BalanceStatus   `json:"balanceStatus"`
	SavingsRate SavingsRate     `json:"savingsRate"`
	Categories  []CategoryTotal `json:"categories"`
	Progress    []Progress      `json:"progress"`
	Expenses    []core.Expense  `json:"expenses"`
}

// Summarize computes the Summary for key and view. A month that was never
// initialized yields zero totals.
func Summarize(state core.BudgetState, key core.MonthKey, view core.View) Summary {
	month := state.Months[key]
	expenses := ExpensesForView(month, view)
	income := IncomeForView(month, view)
	spent := TotalExpense(expenses)
	balance := Balance(income, spent)

	return Summary{
		Month:       key,
		View:        view,
		Currency:    state.Currency,
		Income:      income,
		Spent:       spent,
		Balance:     balance,
		Status:      ClassifyBalance(balance),
		SavingsRate: ComputeSavingsRate(income, balance),
		Categories:  CategoryTotals(expenses),
		Progress:    ProgressRows(expenses, BudgetsForView(month, view)),
		Expenses:    DefaultSort.Apply(expenses),
	}
}

// AccountSummary is the per-account block of a report.
type AccountSummary struct {
	Account core.Account `json:"account"`
	Summary
}

// AccountSummaries summarizes each non-archived account for key, in list
// order.
func AccountSummaries(state core.BudgetState, key core.MonthKey) []AccountSummary {
	active := state.ActiveAccounts()
	out := make([]AccountSummary, 0, len(active))
	for _, acct := range active {
		out = append(out, AccountSummary{
			Account: acct,
			Summary: Summarize(state, key, core.AccountView(acct.ID)),
		})
	}
	return out
}

// AccountLabels returns a lookup from account id to display name.
func AccountLabels(state core.BudgetState) func(int) string {
	names := make(map[int]string, len(state.Accounts))
	for _, a := range state.Accounts {
		names[a.ID] = a.Name
	}
	return func(id int) string { return names[id] }
}
