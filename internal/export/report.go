package export

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"time"

	"budgetapp/internal/core"
	"budgetapp/internal/query"
	appweb "budgetapp/web"
)

const reportTemplate = "report.html"

// Report is the data behind the HTML month report.
type Report struct {
	Month       core.MonthKey
	Currency    string
	GeneratedAt time.Time
	Overall     query.Summary
	Accounts    []query.AccountSummary
}

// BuildReport summarizes month key across all accounts and per account.
func BuildReport(state core.BudgetState, key core.MonthKey, now time.Time) Report {
	return Report{
		Month:       key,
		Currency:    state.Currency,
		GeneratedAt: now,
		Overall:     query.Summarize(state, key, core.AllAccounts()),
		Accounts:    query.AccountSummaries(state, key),
	}
}

// ParseTemplates parses every embedded page template. The money and
// accountName helpers are placeholders until BindState is applied.
func ParseTemplates() (*template.Template, error) {
	tmpl, err := template.New("pages").
		Funcs(stateFuncs(core.BudgetState{})).
		ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return tmpl, nil
}

// BindState returns a copy of tmpl whose helpers format amounts in the
// state's currency and resolve account names against it.
func BindState(tmpl *template.Template, state core.BudgetState) (*template.Template, error) {
	clone, err := tmpl.Clone()
	if err != nil {
		return nil, fmt.Errorf("clone templates: %w", err)
	}
	return clone.Funcs(stateFuncs(state)), nil
}

func stateFuncs(state core.BudgetState) template.FuncMap {
	labels := query.AccountLabels(state)
	return template.FuncMap{
		"money": func(m core.Money) string { return m.Format(state.Currency) },
		"accountName": func(id int) string {
			if name := labels(id); name != "" {
				return name
			}
			return UnknownAccount
		},
		"sortOptions": query.SortOptions,
	}
}

// RenderReport writes the HTML report for month key.
func RenderReport(w io.Writer, tmpl *template.Template, state core.BudgetState, key core.MonthKey, now time.Time) error {
	bound, err := BindState(tmpl, state)
	if err != nil {
		return err
	}
	// Buffered: a failed render writes nothing.
	var buf bytes.Buffer
	if err := bound.ExecuteTemplate(&buf, reportTemplate, BuildReport(state, key, now)); err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	_, err = buf.WriteTo(w)
	return err
}
