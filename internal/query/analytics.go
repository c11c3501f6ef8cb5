package query

import (
	"sort"

	"github.com/shopspring/decimal"

	"budgetapp/internal/core"
)

var hundred = decimal.NewFromInt(100)

// SavingsRate is balance/income as a percentage. Valid is false when income
// is not positive and the rate does not apply.
type SavingsRate struct {
	Percent decimal.Decimal
	Valid   bool
}

// String renders the rate with one decimal, or a dash when not applicable.
func (r SavingsRate) String() string {
	if !r.Valid {
		return "-"
	}
	return r.Percent.StringFixed(1) + "%"
}

func (r SavingsRate) MarshalJSON() ([]byte, error) {
	if !r.Valid {
		return []byte("null"), nil
	}
	return []byte(r.Percent.Round(2).String()), nil
}

// ComputeSavingsRate returns (balance / income) * 100 when income > 0.
func ComputeSavingsRate(income, balance core.Money) SavingsRate {
	if income.Cents <= 0 {
		return SavingsRate{}
	}
	pct := decimal.NewFromInt(balance.Cents).Mul(hundred).Div(decimal.NewFromInt(income.Cents))
	return SavingsRate{Percent: pct, Valid: true}
}

type BalanceStatus string

const (
	BalanceDeficit BalanceStatus = "deficit"
	BalanceNeutral BalanceStatus = "neutral"
	BalanceSurplus BalanceStatus = "surplus"
)

func ClassifyBalance(b core.Money) BalanceStatus {
	switch {
	case b.Cents < 0:
		return BalanceDeficit
	case b.Cents == 0:
		return BalanceNeutral
	default:
		return BalanceSurplus
	}
}

// CategoryTotal is the amount spent in one category.
type CategoryTotal struct {
	Name   string     `json:"name"`
	Amount core.Money `json:"amount"`
}

// CategoryTotals groups expenses by category (empty means "Other"), largest
// first with ties broken by name.
func CategoryTotals(expenses []core.Expense) []CategoryTotal {
	byCat := totalsByCategory(expenses)
	out := make([]CategoryTotal, 0, len(byCat))
	for name, amount := range byCat {
		out = append(out, CategoryTotal{Name: name, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Amount.Cents != out[j].Amount.Cents {
			return out[i].Amount.Cents > out[j].Amount.Cents
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func totalsByCategory(expenses []core.Expense) map[string]core.Money {
	byCat := make(map[string]core.Money)
	for _, e := range expenses {
		cat := categoryOf(e)
		byCat[cat] = byCat[cat].Add(e.Amount)
	}
	return byCat
}

type ProgressStatus string

const (
	ProgressNoBudget ProgressStatus = "no-budget"
	ProgressOnTrack  ProgressStatus = "on-track"
	ProgressWarning  ProgressStatus = "warning"
	ProgressOver     ProgressStatus = "over-budget"
)

// Progress compares spending in one category with its budget.
type Progress struct {
	Category  string     `json:"category"`
	Spent     core.Money `json:"spent"`
	Budget    core.Money `json:"budget"`
	HasBudget bool       `json:"hasBudget"`
	// DisplayPercent is clamped to 100 for bar widths.
	DisplayPercent float64 `json:"displayPercent"`
	// ActualPercent is unclamped and drives Status.
	ActualPercent float64        `json:"actualPercent"`
	Status        ProgressStatus `json:"status"`
}

// BudgetProgress computes progress for category. A missing or non-positive
// budget reports ProgressNoBudget with zero percentages.
func BudgetProgress(category string, spent core.Money, budgets map[string]core.Money) Progress {
	p := Progress{Category: category, Spent: spent, Status: ProgressNoBudget}
	budget, ok := budgets[category]
	if !ok || budget.Cents <= 0 {
		return p
	}
	p.Budget = budget
	p.HasBudget = true

	actual := decimal.NewFromInt(spent.Cents).Mul(hundred).Div(decimal.NewFromInt(budget.Cents))
	p.ActualPercent = actual.InexactFloat64()
	p.DisplayPercent = decimal.Min(actual, hundred).InexactFloat64()

	switch {
	case actual.LessThan(decimal.NewFromInt(75)):
		p.Status = ProgressOnTrack
	case actual.GreaterThan(hundred):
		p.Status = ProgressOver
	default:
		p.Status = ProgressWarning
	}
	return p
}

// ProgressRows returns one row per category that has spending or a budget,
// ordered by spending, largest first.
func ProgressRows(expenses []core.Expense, budgets map[string]core.Money) []Progress {
	spent := totalsByCategory(expenses)
	names := make([]string, 0, len(spent)+len(budgets))
	seen := make(map[string]bool)
	for name := range spent {
		names = append(names, name)
		seen[name] = true
	}
	for name := range budgets {
		if !seen[name] {
			names = append(names, name)
		}
	}
	sort.Slice(names, func(i, j int) bool {
		a, b := spent[names[i]].Cents, spent[names[j]].Cents
		if a != b {
			return a > b
		}
		return names[i] < names[j]
	})

	rows := make([]Progress, 0, len(names))
	for _, name := range names {
		rows = append(rows, BudgetProgress(name, spent[name], budgets))
	}
	return rows
}
