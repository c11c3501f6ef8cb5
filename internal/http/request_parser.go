// Package http serves the budget dashboard and its JSON API.
//
// This file implements utilities for parsing and validating HTTP request data.
// Handlers accept either JSON or form-encoded bodies through one parser.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"budgetapp/internal/core"
)

// maxBodyBytes bounds every request body.
const maxBodyBytes = 1 << 20

var errMissingField = errors.New("missing field")

// RequestBodyParser handles different content types for request body parsing.
// It supports both JSON objects and form-encoded data.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]json.RawMessage
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser creates a parser for the given request.
// It reads the body once and stores it for subsequent parsing.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}
	if r.Body != nil {
		p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	}
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	trimmed := strings.TrimSpace(string(p.body))
	if trimmed == "" {
		p.formData = url.Values{}
		return nil
	}

	if trimmed[0] == '{' {
		p.jsonData = make(map[string]json.RawMessage)
		if err := json.Unmarshal([]byte(trimmed), &p.jsonData); err != nil {
			p.err = fmt.Errorf("decode json body: %w", err)
			return p.err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(trimmed)
	if p.err != nil {
		p.err = fmt.Errorf("decode form body: %w", p.err)
	}
	return p.err
}

// Has reports whether key is present in the body.
func (p *RequestBodyParser) Has(key string) bool {
	if p.jsonData != nil {
		raw, ok := p.jsonData[key]
		return ok && string(raw) != "null"
	}
	if p.formData != nil {
		_, ok := p.formData[key]
		return ok
	}
	return false
}

// Get returns a sanitized string value from the parsed data (JSON or form).
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if raw, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(raw))
		}
		return ""
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

// GetInt returns the integer value of key, or def when absent or empty.
func (p *RequestBodyParser) GetInt(key string, def int) (int, error) {
	v := p.Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: not an integer: %q", key, v)
	}
	return n, nil
}

// GetBool accepts JSON booleans and the usual form spellings; a checkbox
// sends "on".
func (p *RequestBodyParser) GetBool(key string) bool {
	switch strings.ToLower(p.Get(key)) {
	case "true", "1", "on", "yes":
		return true
	}
	return false
}

// GetMoney parses key as a non-negative amount.
func (p *RequestBodyParser) GetMoney(key string) (core.Money, error) {
	v := p.Get(key)
	if v == "" {
		return core.Money{}, fmt.Errorf("%s: %w", key, errMissingField)
	}
	m, err := core.ParseMoney(v)
	if err != nil {
		return core.Money{}, fmt.Errorf("%s: %w", key, err)
	}
	return m, nil
}

// GetFloatMap reads a category-to-amount object. JSON bodies carry it as an
// object under key; form bodies use one "key.<category>" field per entry.
func (p *RequestBodyParser) GetFloatMap(key string) (map[string]float64, error) {
	out := make(map[string]float64)
	if p.jsonData != nil {
		raw, ok := p.jsonData[key]
		if !ok {
			return out, nil
		}
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		return out, nil
	}
	prefix := key + "."
	for field, values := range p.formData {
		name, ok := strings.CutPrefix(field, prefix)
		if !ok || name == "" || len(values) == 0 {
			continue
		}
		f, err := parseAmountFloat(values[0])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", field, err)
		}
		out[sanitizeInput(name)] = f
	}
	return out, nil
}

// parseAmountFloat accepts comma decimals; an empty value clears a budget.
func parseAmountFloat(s string) (float64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	if s == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, core.ErrInvalidAmount
	}
	return f, nil
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

// stringValue renders a raw JSON scalar as a plain string.
func stringValue(raw json.RawMessage) string {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// ParseMonthParam reads the month query parameter, falling back to def.
func ParseMonthParam(query url.Values, def core.MonthKey) (core.MonthKey, error) {
	v := strings.TrimSpace(query.Get("month"))
	if v == "" {
		return def, nil
	}
	return core.ParseMonthKey(v)
}

// ParseViewParam reads the view query parameter ("all" or an account id),
// falling back to def.
func ParseViewParam(query url.Values, def core.View) (core.View, error) {
	v := strings.TrimSpace(query.Get("view"))
	if v == "" {
		return def, nil
	}
	return core.ParseView(v)
}

// ParseAccountParam reads the optional accountId query parameter. Zero means
// the active account.
func ParseAccountParam(query url.Values) (int, error) {
	v := strings.TrimSpace(query.Get("accountId"))
	if v == "" {
		return 0, nil
	}
	id, err := strconv.Atoi(v)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q", core.ErrInvalidAccountID, v)
	}
	return id, nil
}

// pathID parses a non-negative integer path value.
func pathID(r *http.Request, name string) (int, error) {
	v := r.PathValue(name)
	id, err := strconv.Atoi(v)
	if err != nil || id < 0 {
		return 0, fmt.Errorf("invalid %s: %q", name, v)
	}
	return id, nil
}
