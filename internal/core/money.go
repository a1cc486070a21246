// Package core provides the bill domain model.
//
// This file parses user-entered amounts. Amounts are kept as float64 to match
// the REAL column they are stored in; parsing goes through decimal so that
// comma separators and stray whitespace are handled before the conversion.
package core

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount converts the amount field of the bill form to a number.
//
// Both dot (12.34) and comma (12,34) separators are accepted. Zero and negative
// values are valid bill amounts. Empty or non-numeric input, and values too
// large for a float64, yield ErrInvalidAmount.
//
// Examples:
//
//	ParseAmount("12.34") -> 12.34, nil
//	ParseAmount("12,34") -> 12.34, nil
//	ParseAmount("-5")    -> -5, nil
//	ParseAmount("abc")   -> 0, ErrInvalidAmount
//	ParseAmount("1e400") -> 0, ErrInvalidAmount
func ParseAmount(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	f := d.InexactFloat64()
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, ErrInvalidAmount
	}
	return f, nil
}

// ParseOptionalAmount is ParseAmount for form fields that may be left empty.
// An empty field returns nil without error.
func ParseOptionalAmount(s string) (*float64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	v, err := ParseAmount(s)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
