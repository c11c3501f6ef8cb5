// Package core provides money parsing and handling utilities.
//
// Money is kept in integer cents. On the wire it is a plain JSON number
// (12.5, 1000) so blobs written by older clients decode without loss.
package core

import (
	"bytes"
	"strconv"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

type Money struct {
	Cents int64
}

// ParseDecimalToCents converts a decimal string to cents with proper rounding.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and performs
// half-up rounding on the third decimal place. Negative values are rejected.
// Zero is rejected unless allowZero is set.
//
// Examples:
//
//	ParseDecimalToCents("12.34", false) -> 1234, nil
//	ParseDecimalToCents("12,345", false) -> 1235, nil (rounds up)
//	ParseDecimalToCents("0", true) -> 0, nil
func ParseDecimalToCents(s string, allowZero bool) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return 0, ErrInvalidAmount
	}
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return 0, ErrInvalidAmount
	}
	for _, p := range parts {
		for _, r := range p {
			if !unicode.IsDigit(r) {
				return 0, ErrInvalidAmount
			}
		}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	cents := d.Shift(2).Round(0)
	if !cents.IsInteger() || cents.GreaterThan(decimal.NewFromInt(1<<62)) {
		return 0, ErrInvalidAmount
	}
	v := cents.IntPart()
	if v < 0 || (v == 0 && !allowZero) {
		return 0, ErrInvalidAmount
	}
	return v, nil
}

// ParseMoney parses a user-entered non-negative amount.
func ParseMoney(s string) (Money, error) {
	cents, err := ParseDecimalToCents(s, true)
	if err != nil {
		return Money{}, err
	}
	return Money{Cents: cents}, nil
}

// MoneyFromFloat rounds a float amount half away from zero to cents.
func MoneyFromFloat(v float64) Money {
	return Money{Cents: decimal.NewFromFloat(v).Shift(2).Round(0).IntPart()}
}

// Decimal returns the amount as an exact decimal in currency units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

// Float returns the amount in currency units for display purposes.
// Use cents for calculations.
func (m Money) Float() float64 {
	return float64(m.Cents) / 100.0
}

func (m Money) Add(o Money) Money { return Money{Cents: m.Cents + o.Cents} }
func (m Money) Sub(o Money) Money { return Money{Cents: m.Cents - o.Cents} }

// String formats the amount with two decimals, e.g. "12.50".
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

// Format renders the amount with the currency symbol, e.g. "$12.50" or "-€3.00".
func (m Money) Format(currency string) string {
	sym := CurrencySymbol(currency)
	if m.Cents < 0 {
		return "-" + sym + Money{Cents: -m.Cents}.String()
	}
	return sym + m.String()
}

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.Decimal().String()), nil
}

func (m *Money) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		m.Cents = 0
		return nil
	}
	raw := strings.Trim(string(data), `"`)
	if raw == "" {
		m.Cents = 0
		return nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		if f, ferr := strconv.ParseFloat(raw, 64); ferr == nil {
			*m = MoneyFromFloat(f)
			return nil
		}
		// Hand-edited blobs carry values like "20$" or "12,50 EUR". Keep
		// the leading number; anything without one decodes as zero.
		d = leadingDecimal(raw)
	}
	m.Cents = d.Shift(2).Round(0).IntPart()
	return nil
}

// leadingDecimal parses the longest numeric prefix of s, accepting a comma
// as the decimal separator. It returns zero when s has no numeric prefix.
func leadingDecimal(s string) decimal.Decimal {
	s = strings.TrimSpace(s)
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	digits, sep := 0, false
	for ; end < len(s); end++ {
		c := s[end]
		if c >= '0' && c <= '9' {
			digits++
			continue
		}
		if (c == '.' || c == ',') && !sep {
			sep = true
			continue
		}
		break
	}
	if digits == 0 {
		return decimal.Zero
	}
	num := strings.TrimRight(strings.ReplaceAll(s[:end], ",", "."), ".")
	d, err := decimal.NewFromString(strings.TrimPrefix(num, "+"))
	if err != nil {
		return decimal.Zero
	}
	return d
}
