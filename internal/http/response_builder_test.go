package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestResponseBuilder(t *testing.T) {
	rec := httptest.NewRecorder()
	NewResponse().
		Status(http.StatusCreated).
		Header("X-Custom", "yes").
		Revision(42).
		JSON(map[string]int{"id": 7}).
		Write(rec)

	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q", got)
	}
	if got := rec.Header().Get(RevisionHeader); got != "42" {
		t.Errorf("%s = %q", RevisionHeader, got)
	}
	if rec.Header().Get("X-Custom") != "yes" {
		t.Error("custom header missing")
	}
	var body map[string]int
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body["id"] != 7 {
		t.Errorf("body = %s, %v", rec.Body.String(), err)
	}
}

func TestResponseBuilder_NoBody(t *testing.T) {
	rec := httptest.NewRecorder()
	NewResponse().Status(http.StatusNoContent).Write(rec)
	if rec.Code != http.StatusNoContent || rec.Body.Len() != 0 {
		t.Errorf("status=%d body=%q", rec.Code, rec.Body.String())
	}
}

func TestResponseBuilder_EncodeFailure(t *testing.T) {
	rec := httptest.NewRecorder()
	NewResponse().JSON(map[string]any{"bad": make(chan int)}).Write(rec)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestErrorResponses(t *testing.T) {
	tests := []struct {
		name    string
		builder *ResponseBuilder
		status  int
	}{
		{"bad request", BadRequestError("bad"), http.StatusBadRequest},
		{"unprocessable", UnprocessableEntityError("bad"), http.StatusUnprocessableEntity},
		{"not found", NotFoundError("bad"), http.StatusNotFound},
		{"conflict", ConflictError("bad"), http.StatusConflict},
		{"unavailable", ServiceUnavailableError("bad"), http.StatusServiceUnavailable},
		{"internal", InternalServerError("bad"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.builder.Write(rec)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
			var body errorBody
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body.Error != "bad" {
				t.Errorf("body = %s, %v", rec.Body.String(), err)
			}
		})
	}
}
