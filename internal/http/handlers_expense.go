package http

import (
	"net/http"

	"budgetapp/internal/core"
	"budgetapp/internal/log"
)

// expenseDraft reads a new expense from the body. The date defaults to
// today and the category to the engine's fallback.
func (s *Server) expenseDraft(p *RequestBodyParser) (core.ExpenseDraft, error) {
	amount, err := p.GetMoney("amount")
	if err != nil {
		return core.ExpenseDraft{}, err
	}
	d := core.ExpenseDraft{
		Title:     p.Get("title"),
		Amount:    amount,
		Date:      p.Get("date"),
		Category:  p.Get("category"),
		Recurring: p.GetBool("recurring"),
	}
	if d.Date == "" {
		d.Date = core.FormatDate(s.now())
	}
	return d, d.Validate()
}

// expensePatch reads the fields present in the body.
func expensePatch(p *RequestBodyParser) (core.ExpensePatch, error) {
	var patch core.ExpensePatch
	if p.Has("title") {
		v := p.Get("title")
		patch.Title = &v
	}
	if p.Has("amount") {
		m, err := p.GetMoney("amount")
		if err != nil {
			return patch, err
		}
		patch.Amount = &m
	}
	if p.Has("date") {
		v := p.Get("date")
		patch.Date = &v
	}
	if p.Has("category") {
		v := p.Get("category")
		if v == "" {
			v = core.FallbackCategory
		}
		patch.Category = &v
	}
	if p.Has("recurring") {
		v := p.GetBool("recurring")
		patch.Recurring = &v
	}
	return patch, patch.Validate()
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	p, ok := parseBody(w, r)
	if !ok {
		return
	}
	accountID, err := p.GetInt("accountId", 0)
	if err != nil {
		UnprocessableEntityError(err.Error()).Write(w)
		return
	}
	draft, err := s.expenseDraft(p)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	created, ok := s.engine.AddExpense(r.Context(), draft, accountID)
	if !ok {
		NotFoundError("account not found").Write(w)
		return
	}
	s.logger.DebugContext(r.Context(), "Expense created via API",
		log.FieldExpenseID, created.ID, log.FieldAccountID, created.AccountID)
	s.respond(w, http.StatusCreated, created)
}

// expenseTarget resolves the {id} path value and the owning account. The
// account defaults to the active one.
func (s *Server) expenseTarget(r *http.Request) (id, accountID int, err error) {
	id, err = pathID(r, "id")
	if err != nil {
		return 0, 0, err
	}
	accountID, err = ParseAccountParam(r.URL.Query())
	if err != nil {
		return 0, 0, err
	}
	if accountID == 0 {
		state, _ := s.engine.State()
		accountID, _ = state.ActiveAccount.AccountID()
	}
	return id, accountID, nil
}

func (s *Server) handleEditExpense(w http.ResponseWriter, r *http.Request) {
	id, accountID, err := s.expenseTarget(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	p, ok := parseBody(w, r)
	if !ok {
		return
	}
	patch, err := expensePatch(p)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !s.engine.EditExpense(r.Context(), id, accountID, patch) {
		NotFoundError("expense not found").Write(w)
		return
	}
	s.respondChanged(w, true)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	id, accountID, err := s.expenseTarget(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	if !s.engine.DeleteExpense(r.Context(), id, accountID) {
		NotFoundError("expense not found").Write(w)
		return
	}
	s.respondChanged(w, true)
}
