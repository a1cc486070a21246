// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request data.
// Bill payloads arrive either form-encoded or as JSON; both are read through
// RequestBodyParser so that handlers see one flat key/value view.

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

	"bills/internal/core"
)

// maxBodyBytes bounds bill payloads; a title, an amount and a date fit
// comfortably.
const maxBodyBytes = 64 << 10

var (
	ErrMalformedBody = errors.New("malformed request body")
	ErrInvalidID     = errors.New("invalid bill id")
	ErrInvalidQuery  = errors.New("invalid query parameter")
)

// MonthParams holds parsed year/month values from request parameters.
type MonthParams struct {
	Year  int
	Month int
}

// ParseMonthParams extracts year and month from query parameters, defaulting
// to the month containing today. Non-numeric values are rejected; the range
// of month is checked by the service.
func ParseMonthParams(query url.Values, today core.Date) (MonthParams, error) {
	var params MonthParams
	if t, err := today.Time(); err == nil {
		params.Year, params.Month = t.Year(), int(t.Month())
	}

	if v := strings.TrimSpace(query.Get("year")); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil {
			return MonthParams{}, fmt.Errorf("%w: year %q", ErrInvalidQuery, v)
		}
		params.Year = y
	}
	if v := strings.TrimSpace(query.Get("month")); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil {
			return MonthParams{}, fmt.Errorf("%w: month %q", ErrInvalidQuery, v)
		}
		params.Month = m
	}

	return params, nil
}

// ParseDateQuery returns the ?date= parameter, or today when it is absent.
func ParseDateQuery(query url.Values, today core.Date) (core.Date, error) {
	raw := strings.TrimSpace(query.Get("date"))
	if raw == "" {
		return today, nil
	}
	return core.ParseDate(raw)
}

// ParseID reads the {id} path segment.
func ParseID(r *http.Request) (int64, error) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidID, raw)
	}
	return id, nil
}

// ParseDraft builds a bill draft from the add/edit form fields. Empty fields
// stay empty so the service can report the draft as incomplete; fields that
// are present but unparseable are rejected here.
func ParseDraft(p *RequestBodyParser) (core.BillDraft, error) {
	if err := p.Parse(); err != nil {
		return core.BillDraft{}, fmt.Errorf("%w: %w", ErrMalformedBody, err)
	}

	draft := core.BillDraft{Title: p.Get("title")}

	amount, err := core.ParseOptionalAmount(p.Get("amount"))
	if err != nil {
		return core.BillDraft{}, err
	}
	draft.Amount = amount

	if raw := p.Get("date"); raw != "" {
		date, err := core.ParseDate(raw)
		if err != nil {
			return core.BillDraft{}, err
		}
		draft.Date = date
	}

	return draft, nil
}

// RequestBodyParser handles different content types for request body parsing.
// It supports both JSON objects and form-encoded data.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]any
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

	p.body, p.err = io.ReadAll(r.Body)
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

	if len(p.body) == 0 {
		p.formData = url.Values{}
		return nil
	}

	if p.IsJSONContent() || p.body[0] == '{' {
		p.jsonData = make(map[string]any)
		if err := json.Unmarshal(p.body, &p.jsonData); err != nil {
			p.jsonData = nil
			p.err = err
			return err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(string(p.body))
	return p.err
}

// Get returns a trimmed, sanitized string value from the parsed data.
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return strings.TrimSpace(sanitizeInput(stringValue(val)))
		}
		return ""
	}
	if p.formData != nil {
		return strings.TrimSpace(sanitizeInput(p.formData.Get(key)))
	}
	return ""
}

// IsJSONContent reports whether the Content-Type declares JSON.
func (p *RequestBodyParser) IsJSONContent() bool {
	return strings.HasPrefix(strings.ToLower(p.contentType), "application/json")
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

// stringValue converts a decoded JSON value to its form-field string.
func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// sanitizeInput removes control characters except tab, newline and carriage
// return.
func sanitizeInput(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
}
