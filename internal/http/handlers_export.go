package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"

	"budgetapp/internal/core"
	"budgetapp/internal/export"
	"budgetapp/internal/log"

	"github.com/google/uuid"
)

func attachment(w http.ResponseWriter, contentType, filename string) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
}

func (s *Server) handleExportJSON(w http.ResponseWriter, r *http.Request) {
	data, ok := s.engine.ExportData()
	if !ok {
		InternalServerError("export failed").Write(w)
		return
	}
	attachment(w, "application/json", fmt.Sprintf("budget-%s.json", core.FormatDate(s.now())))
	_, _ = w.Write(data)
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	state, _ := s.snapshot()
	key, view, err := monthView(r, state)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := export.WriteCSV(&buf, export.Rows(state, key, view)); err != nil {
		s.fail(w, r, err)
		return
	}
	attachment(w, "text/csv; charset=utf-8", fmt.Sprintf("expenses-%s.csv", key))
	_, _ = buf.WriteTo(w)
}

func (s *Server) handleExportReport(w http.ResponseWriter, r *http.Request) {
	if s.templates == nil {
		InternalServerError("templates not loaded").Write(w)
		return
	}
	state, _ := s.snapshot()
	key, err := ParseMonthParam(r.URL.Query(), state.CurrentMonth)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := export.RenderReport(&buf, s.templates, state, key, s.now()); err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

type exportAccepted struct {
	ID    string        `json:"id"`
	Month core.MonthKey `json:"month"`
	Rows  int           `json:"rows"`
	Sinks []string      `json:"sinks"`
}

// handleExportSinks flattens one month and delivers it to every configured
// sink concurrently.
func (s *Server) handleExportSinks(w http.ResponseWriter, r *http.Request) {
	state, _ := s.snapshot()
	key, view, err := monthView(r, state)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	batch := export.Batch{ID: uuid.NewString(), Month: key, Rows: export.Rows(state, key, view)}

	ctx, cancel := context.WithTimeout(r.Context(), s.exportTimeout)
	defer cancel()
	if err := export.Fanout(ctx, batch, s.sinks...); err != nil {
		if errors.Is(err, export.ErrNoSinks) {
			ServiceUnavailableError(err.Error()).Write(w)
			return
		}
		s.logger.ErrorContext(r.Context(), "Export failed",
			log.NewFields().WithOperation(log.OpExport).WithMonth(string(key)).
				WithError(err, log.ErrorTypeNetwork).ToSlice()...)
		ErrorResponse(http.StatusBadGateway, err.Error()).Write(w)
		return
	}

	names := make([]string, 0, len(s.sinks))
	for _, sink := range s.sinks {
		names = append(names, sink.Name())
	}
	s.respond(w, http.StatusAccepted, exportAccepted{ID: batch.ID, Month: key, Rows: len(batch.Rows), Sinks: names})
}
