package http

import (
	"net/http"

	"budgetapp/internal/core"
	"budgetapp/internal/query"
)

// monthView resolves the month and view query parameters against the
// state's current month and active view.
func monthView(r *http.Request, state core.BudgetState) (core.MonthKey, core.View, error) {
	q := r.URL.Query()
	key, err := ParseMonthParam(q, state.CurrentMonth)
	if err != nil {
		return "", core.View{}, err
	}
	view, err := ParseViewParam(q, state.ActiveAccount)
	if err != nil {
		return "", core.View{}, err
	}
	return key, view, nil
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	state, rev := s.snapshot()
	NewResponse().Revision(rev).JSON(state).Write(w)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	state, rev := s.snapshot()
	key, view, err := monthView(r, state)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	NewResponse().Revision(rev).JSON(s.summary(state, rev, key, view)).Write(w)
}

func (s *Server) handleAccountSummaries(w http.ResponseWriter, r *http.Request) {
	state, rev := s.snapshot()
	key, err := ParseMonthParam(r.URL.Query(), state.CurrentMonth)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	NewResponse().Revision(rev).JSON(query.AccountSummaries(state, key)).Write(w)
}

// handleListExpenses supports q (free text over title, category and
// account name), category (exact) and sort (date|amount|title, -asc/-desc).
func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	state, rev := s.snapshot()
	key, view, err := monthView(r, state)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	q := r.URL.Query()
	order, err := query.ParseSort(q.Get("sort"))
	if err != nil {
		UnprocessableEntityError(err.Error()).Write(w)
		return
	}
	filter := query.Filter{
		Text:         q.Get("q"),
		Category:     q.Get("category"),
		AccountLabel: query.AccountLabels(state),
	}
	expenses := query.Search(query.ExpensesForView(state.Months[key], view), filter, order)
	NewResponse().Revision(rev).JSON(expenses).Write(w)
}
