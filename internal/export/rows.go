// Package export flattens budget data into rows, CSV, JSON and an HTML
// report, and fans row batches out to external sinks.
package export

import (
	"encoding/csv"
	"fmt"
	"io"

	"budgetapp/internal/core"
	"budgetapp/internal/query"
)

const (
	UnknownAccount       = "Unknown"
	UncategorizedExpense = "Uncategorized"
)

// Header is the column order of every flattened export.
var Header = []string{"Date", "Account", "Description", "Amount", "Category"}

// Row is one expense flattened for spreadsheets and CSV files.
type Row struct {
	Date        string     `json:"date"`
	Account     string     `json:"account"`
	Description string     `json:"description"`
	Amount      core.Money `json:"amount"`
	Category    string     `json:"category"`
}

// Values returns the row in Header order.
func (r Row) Values() []string {
	return []string{r.Date, r.Account, r.Description, r.Amount.String(), r.Category}
}

// Rows flattens the expenses visible in view for month key, newest first.
func Rows(state core.BudgetState, key core.MonthKey, view core.View) []Row {
	expenses := query.DefaultSort.Apply(query.ExpensesForView(state.Months[key], view))
	label := query.AccountLabels(state)

	rows := make([]Row, 0, len(expenses))
	for _, e := range expenses {
		account := label(e.AccountID)
		if account == "" {
			account = UnknownAccount
		}
		category := e.Category
		if category == "" {
			category = UncategorizedExpense
		}
		rows = append(rows, Row{
			Date:        e.Date,
			Account:     account,
			Description: e.Title,
			Amount:      e.Amount,
			Category:    category,
		})
	}
	return rows
}

// Table returns the rows as string cells, optionally preceded by Header.
func Table(rows []Row, withHeader bool) [][]string {
	out := make([][]string, 0, len(rows)+1)
	if withHeader {
		out = append(out, append([]string(nil), Header...))
	}
	for _, r := range rows {
		out = append(out, r.Values())
	}
	return out
}

// WriteCSV writes Header followed by rows.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(Table(rows, true)); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}
