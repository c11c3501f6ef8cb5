package core

import (
	"fmt"
	"time"
)

const (
	monthLayout = "2006-01"
	dateLayout  = "2006-01-02"
)

// MonthKey identifies one calendar month as "YYYY-MM". Keys compare
// chronologically as plain strings.
type MonthKey string

// MonthKeyOf returns the key of the month containing t.
func MonthKeyOf(t time.Time) MonthKey {
	return MonthKey(t.Format(monthLayout))
}

// ParseMonthKey validates s as a zero-padded "YYYY-MM" key.
func ParseMonthKey(s string) (MonthKey, error) {
	t, err := time.Parse(monthLayout, s)
	if err != nil || t.Format(monthLayout) != s {
		return "", fmt.Errorf("%w: %q", ErrInvalidMonthKey, s)
	}
	return MonthKey(s), nil
}

// Valid reports whether k is a well-formed key.
func (k MonthKey) Valid() bool {
	_, err := ParseMonthKey(string(k))
	return err == nil
}

// Time returns midnight UTC of the first day of the month.
func (k MonthKey) Time() time.Time {
	t, _ := time.Parse(monthLayout, string(k))
	return t
}

// FirstDay returns the "YYYY-MM-01" date of the month.
func (k MonthKey) FirstDay() string {
	return string(k) + "-01"
}

// Add moves the key by n months.
func (k MonthKey) Add(n int) MonthKey {
	return MonthKeyOf(k.Time().AddDate(0, n, 0))
}

// Year returns the four-digit year.
func (k MonthKey) Year() int {
	return k.Time().Year()
}

// Month returns the month number (1-12).
func (k MonthKey) Month() int {
	return int(k.Time().Month())
}

func (k MonthKey) String() string {
	return string(k)
}

// ParseDate validates an ISO "YYYY-MM-DD" date string.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil || t.Format(dateLayout) != s {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return t, nil
}

// FormatDate renders t as "YYYY-MM-DD".
func FormatDate(t time.Time) string {
	return t.Format(dateLayout)
}
