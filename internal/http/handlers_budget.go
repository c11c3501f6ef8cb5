package http

import (
	"net/http"
	"strings"
)

func (s *Server) handleSetIncome(w http.ResponseWriter, r *http.Request) {
	p, ok := parseBody(w, r)
	if !ok {
		return
	}
	accountID, err := p.GetInt("accountId", 0)
	if err != nil {
		UnprocessableEntityError(err.Error()).Write(w)
		return
	}
	amount, err := p.GetMoney("amount")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !s.engine.SetIncome(r.Context(), amount, accountID) {
		NotFoundError("account not found").Write(w)
		return
	}
	s.respondChanged(w, true)
}

// handleSetBudgets takes {"budgets": {"Food": 300, "Fun": 0}}. Zero or
// negative amounts clear the budget.
func (s *Server) handleSetBudgets(w http.ResponseWriter, r *http.Request) {
	p, ok := parseBody(w, r)
	if !ok {
		return
	}
	accountID, err := p.GetInt("accountId", 0)
	if err != nil {
		UnprocessableEntityError(err.Error()).Write(w)
		return
	}
	budgets, err := p.GetFloatMap("budgets")
	if err != nil {
		UnprocessableEntityError(err.Error()).Write(w)
		return
	}
	if len(budgets) == 0 {
		UnprocessableEntityError("no budgets given").Write(w)
		return
	}
	s.respondChanged(w, s.engine.SetCategoryBudgets(r.Context(), budgets, accountID))
}

func (s *Server) handleSetBudget(w http.ResponseWriter, r *http.Request) {
	category := strings.TrimSpace(r.PathValue("category"))
	p, ok := parseBody(w, r)
	if !ok {
		return
	}
	accountID, err := p.GetInt("accountId", 0)
	if err != nil {
		UnprocessableEntityError(err.Error()).Write(w)
		return
	}
	amount, err := parseAmountFloat(p.Get("amount"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondChanged(w, s.engine.SetCategoryBudget(r.Context(), category, amount, accountID))
}

func (s *Server) handleAddCategory(w http.ResponseWriter, r *http.Request) {
	p, ok := parseBody(w, r)
	if !ok {
		return
	}
	accountID, err := p.GetInt("accountId", 0)
	if err != nil {
		UnprocessableEntityError(err.Error()).Write(w)
		return
	}
	name := p.Get("name")
	if name == "" {
		UnprocessableEntityError("empty category name").Write(w)
		return
	}
	if accountID != 0 && !s.accountExists(accountID) {
		NotFoundError("account not found").Write(w)
		return
	}
	if !s.engine.AddCategory(r.Context(), name, accountID) {
		ConflictError("category already exists").Write(w)
		return
	}
	s.respondChanged(w, true)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	accountID, err := ParseAccountParam(r.URL.Query())
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	if !s.engine.DeleteCategory(r.Context(), r.PathValue("name"), accountID) {
		NotFoundError("category not found").Write(w)
		return
	}
	s.respondChanged(w, true)
}
