package http

import (
	"net/http"

	"budgetapp/internal/core"
)

func (s *Server) handleChangeMonth(w http.ResponseWriter, r *http.Request) {
	p, ok := parseBody(w, r)
	if !ok {
		return
	}
	key, err := core.ParseMonthKey(p.Get("month"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	applied, err := s.engine.ChangeMonth(r.Context(), key)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondChanged(w, applied)
}

func (s *Server) handleResetMonth(w http.ResponseWriter, r *http.Request) {
	s.respondChanged(w, s.engine.ResetMonth(r.Context()))
}

// handleSwitchView takes {"view": "all"} or {"view": 2}.
func (s *Server) handleSwitchView(w http.ResponseWriter, r *http.Request) {
	p, ok := parseBody(w, r)
	if !ok {
		return
	}
	view, err := core.ParseView(p.Get("view"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if id, scoped := view.AccountID(); scoped && !s.accountExists(id) {
		NotFoundError("account not found").Write(w)
		return
	}
	s.respondChanged(w, s.engine.SwitchAccount(r.Context(), view))
}

func (s *Server) handleSetCurrency(w http.ResponseWriter, r *http.Request) {
	p, ok := parseBody(w, r)
	if !ok {
		return
	}
	applied, err := s.engine.SetCurrency(r.Context(), p.Get("currency"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondChanged(w, applied)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	p, ok := parseBody(w, r)
	if !ok {
		return
	}
	profile := core.UserProfile{
		Name:     p.Get("name"),
		Age:      p.Get("age"),
		Gender:   p.Get("gender"),
		KYCInfo:  p.Get("kycInfo"),
		PhotoURI: p.Get("photoUri"),
	}
	if err := profile.Validate(); err != nil {
		UnprocessableEntityError(err.Error()).Write(w)
		return
	}
	s.respondChanged(w, s.engine.UpdateProfile(r.Context(), profile))
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	state := s.engine.Reload(r.Context())
	s.respond(w, http.StatusOK, state)
}

func (s *Server) handleClearAll(w http.ResponseWriter, r *http.Request) {
	s.respondChanged(w, s.engine.ClearAll(r.Context()))
}
