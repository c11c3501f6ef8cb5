package http

import (
	"bytes"
	"net/http"
	"net/url"
	"slices"
	"strconv"

	"budgetapp/internal/core"
	"budgetapp/internal/export"
	"budgetapp/internal/form"
	"budgetapp/internal/log"
	"budgetapp/internal/query"
)

type expenseForm struct {
	Label     string
	Editing   bool
	Expense   core.Expense
	AccountID int
}

type indexPage struct {
	Summary    query.Summary
	ViewLabel  string
	PrevMonth  core.MonthKey
	NextMonth  core.MonthKey
	Editable   bool
	Expenses   []core.Expense
	Accounts   []core.Account
	Categories []string
	Query      string
	Category   string
	Sort       string
	Form       expenseForm
	Error      string
}

// modeTarget is where the dashboard lands for a form mode.
func modeTarget(m form.Mode) string {
	id, acct, ok := m.Target()
	if !ok {
		return "/"
	}
	v := url.Values{}
	v.Set("edit", strconv.Itoa(id))
	v.Set("account", strconv.Itoa(acct))
	return "/?" + v.Encode()
}

// findExpense looks up id in the account's bucket of month key.
func findExpense(state core.BudgetState, key core.MonthKey, id, accountID int) (core.Expense, bool) {
	month := state.Months[key]
	if month == nil {
		return core.Expense{}, false
	}
	bucket := month.Accounts[core.AccountKey(accountID)]
	if bucket == nil {
		return core.Expense{}, false
	}
	for _, e := range bucket.Expenses {
		if e.ID == id {
			e.AccountID = accountID
			return e, true
		}
	}
	return core.Expense{}, false
}

// editMode reads the edit/account query pair. Stale targets fall back to
// adding.
func editMode(q url.Values, state core.BudgetState) form.Mode {
	mode := form.Adding()
	id, err1 := strconv.Atoi(q.Get("edit"))
	acct, err2 := strconv.Atoi(q.Get("account"))
	if err1 != nil || err2 != nil {
		return mode
	}
	if _, ok := findExpense(state, state.CurrentMonth, id, acct); !ok {
		return mode
	}
	return mode.Select(id, acct)
}

func viewLabel(state core.BudgetState, view core.View) string {
	id, ok := view.AccountID()
	if !ok {
		return "All accounts"
	}
	if name := state.AccountName(id); name != "" {
		return name
	}
	return export.UnknownAccount
}

// categoriesFor lists the categories offered by the form: the scoped
// account's, or every active account's in the all view.
func categoriesFor(state core.BudgetState, view core.View) []string {
	var out []string
	for _, a := range state.ActiveAccounts() {
		if id, ok := view.AccountID(); ok && id != a.ID {
			continue
		}
		for _, c := range a.Categories {
			if !slices.Contains(out, c) {
				out = append(out, c)
			}
		}
	}
	return out
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if s.templates == nil {
		InternalServerError("templates not loaded").Write(w)
		return
	}
	if !s.engine.Loaded() {
		http.Error(w, "budget state not loaded", http.StatusServiceUnavailable)
		return
	}
	state, rev := s.snapshot()
	key, view, err := monthView(r, state)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	q := r.URL.Query()
	mode := form.Adding()
	if key == state.CurrentMonth {
		mode = editMode(q, state)
	}
	page := s.indexPage(r, state, rev, key, view, mode)
	s.renderIndex(w, r, state, page, http.StatusOK)
}

func (s *Server) indexPage(r *http.Request, state core.BudgetState, rev uint64, key core.MonthKey, view core.View, mode form.Mode) indexPage {
	q := r.URL.Query()
	summary := s.summary(state, rev, key, view)

	order, err := query.ParseSort(q.Get("sort"))
	if err != nil {
		order = query.DefaultSort
	}
	filter := query.Filter{
		Text:         q.Get("q"),
		Category:     q.Get("category"),
		AccountLabel: query.AccountLabels(state),
	}

	page := indexPage{
		Summary:    summary,
		ViewLabel:  viewLabel(state, view),
		PrevMonth:  key.Add(-1),
		NextMonth:  key.Add(1),
		Editable:   key == state.CurrentMonth,
		Expenses:   query.Search(summary.Expenses, filter, order),
		Accounts:   state.ActiveAccounts(),
		Categories: categoriesFor(state, view),
		Query:      filter.Text,
		Category:   filter.Category,
		Sort:       order.String(),
		Form:       expenseForm{Label: mode.Label(), Expense: core.Expense{Date: core.FormatDate(s.now())}},
	}
	if id, acct, ok := mode.Target(); ok {
		e, _ := findExpense(state, state.CurrentMonth, id, acct)
		page.Form = expenseForm{Label: mode.Label(), Editing: true, Expense: e, AccountID: acct}
	} else if id, ok := view.AccountID(); ok {
		page.Form.AccountID = id
	}
	return page
}

func (s *Server) renderIndex(w http.ResponseWriter, r *http.Request, state core.BudgetState, page indexPage, status int) {
	bound, err := export.BindState(s.templates, state)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Template binding failed", log.FieldError, err.Error())
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	var buf bytes.Buffer
	if err := bound.ExecuteTemplate(&buf, "index.html", page); err != nil {
		s.logger.ErrorContext(r.Context(), "Index template execution failed",
			log.FieldOperation, log.OpRender, log.FieldError, err.Error())
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// handleFormSubmit saves the dashboard form: an edit when it carries an
// expense id, otherwise a new expense.
func (s *Server) handleFormSubmit(w http.ResponseWriter, r *http.Request) {
	p, ok := parseBody(w, r)
	if !ok {
		return
	}
	accountID, _ := p.GetInt("accountId", 0)
	mode := form.Adding()
	if id, err := p.GetInt("id", -1); err == nil && id >= 0 {
		mode = mode.Select(id, accountID)
	}

	var saveErr error
	if id, acct, editing := mode.Target(); editing {
		patch, err := expensePatch(p)
		// An unchecked checkbox is not posted.
		recurring := p.GetBool("recurring")
		patch.Recurring = &recurring
		if err == nil && !s.engine.EditExpense(r.Context(), id, acct, patch) {
			mode = mode.Cancel()
		}
		saveErr = err
	} else {
		draft, err := s.expenseDraft(p)
		if err == nil {
			if _, added := s.engine.AddExpense(r.Context(), draft, accountID); !added {
				err = core.ErrInvalidAccountID
			}
		}
		saveErr = err
	}

	if saveErr != nil {
		state, rev := s.snapshot()
		page := s.indexPage(r, state, rev, state.CurrentMonth, state.ActiveAccount, form.Adding())
		page.Form = expenseForm{
			Label:     mode.Label(),
			Editing:   mode.IsEditing(),
			AccountID: accountID,
			Expense:   submittedExpense(p),
		}
		if id, _, ok := mode.Target(); ok {
			page.Form.Expense.ID = id
		}
		page.Error = saveErr.Error()
		s.renderIndex(w, r, state, page, http.StatusUnprocessableEntity)
		return
	}
	http.Redirect(w, r, modeTarget(mode.Save()), http.StatusSeeOther)
}

// submittedExpense echoes the posted fields back into the form.
func submittedExpense(p *RequestBodyParser) core.Expense {
	e := core.Expense{
		Title:     p.Get("title"),
		Date:      p.Get("date"),
		Category:  p.Get("category"),
		Recurring: p.GetBool("recurring"),
	}
	if m, err := p.GetMoney("amount"); err == nil {
		e.Amount = m
	}
	return e
}

// handleFormDelete removes an expense from the dashboard. When the form was
// editing a different expense it stays in editing.
func (s *Server) handleFormDelete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	p, ok := parseBody(w, r)
	if !ok {
		return
	}
	accountID, _ := p.GetInt("accountId", 0)

	mode := form.Adding()
	editID, err1 := p.GetInt("editId", -1)
	editAcct, err2 := p.GetInt("editAccount", 0)
	if err1 == nil && err2 == nil && editID >= 0 {
		mode = mode.Select(editID, editAcct)
	}

	s.engine.DeleteExpense(r.Context(), id, accountID)
	http.Redirect(w, r, modeTarget(mode.Deleted(id, accountID)), http.StatusSeeOther)
}
