package http

import (
	"net/http"
	"slices"

	"budgetapp/internal/core"
)

func (s *Server) handleAddAccount(w http.ResponseWriter, r *http.Request) {
	p, ok := parseBody(w, r)
	if !ok {
		return
	}
	name := p.Get("name")
	if name == "" {
		s.fail(w, r, core.ErrEmptyName)
		return
	}
	typ := p.Get("type")
	if typ != "" && !slices.Contains(core.AccountTypes, typ) {
		UnprocessableEntityError("unknown account type: " + typ).Write(w)
		return
	}
	var initial core.Money
	if p.Has("initialBalance") {
		m, err := p.GetMoney("initialBalance")
		if err != nil {
			s.fail(w, r, err)
			return
		}
		initial = m
	}

	created, ok := s.engine.AddAccount(r.Context(), name, typ, initial)
	if !ok {
		ServiceUnavailableError("budget state not loaded").Write(w)
		return
	}
	s.respond(w, http.StatusCreated, created)
}

func (s *Server) accountExists(id int) bool {
	state, _ := s.engine.State()
	return state.FindAccount(id) >= 0
}

func (s *Server) handleRenameAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	p, ok := parseBody(w, r)
	if !ok {
		return
	}
	name := p.Get("name")
	if name == "" {
		s.fail(w, r, core.ErrEmptyName)
		return
	}
	if !s.accountExists(id) {
		NotFoundError("account not found").Write(w)
		return
	}
	s.respondChanged(w, s.engine.RenameAccount(r.Context(), id, name))
}

// handleArchiveAccount takes {"archived": true|false}; it defaults to true.
func (s *Server) handleArchiveAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	p, ok := parseBody(w, r)
	if !ok {
		return
	}
	archived := true
	if p.Has("archived") {
		archived = p.GetBool("archived")
	}
	if !s.accountExists(id) {
		NotFoundError("account not found").Write(w)
		return
	}
	applied, err := s.engine.ArchiveAccount(r.Context(), id, archived)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondChanged(w, applied)
}
