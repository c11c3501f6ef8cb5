package query

import (
	"fmt"
	"sort"
	"strings"

	"budgetapp/internal/core"
)

// Filter narrows an expense list. Text matches title, category and, when
// AccountLabel is set, the owning account's label, ignoring case. Category
// must match exactly when non-empty. Expenses without a category count as
// core.FallbackCategory, as they do in the category totals.
type Filter struct {
	Text         string
	Category     string
	AccountLabel func(accountID int) string
}

// Apply returns the matching expenses in their original order.
func (f Filter) Apply(expenses []core.Expense) []core.Expense {
	needle := strings.ToLower(strings.TrimSpace(f.Text))
	out := make([]core.Expense, 0, len(expenses))
	for _, e := range expenses {
		if f.Category != "" && categoryOf(e) != f.Category {
			continue
		}
		if needle != "" && !f.matchesText(e, needle) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func (f Filter) matchesText(e core.Expense, needle string) bool {
	if strings.Contains(strings.ToLower(e.Title), needle) ||
		strings.Contains(strings.ToLower(categoryOf(e)), needle) {
		return true
	}
	if f.AccountLabel != nil {
		return strings.Contains(strings.ToLower(f.AccountLabel(e.AccountID)), needle)
	}
	return false
}

func categoryOf(e core.Expense) string {
	if e.Category == "" {
		return core.FallbackCategory
	}
	return e.Category
}

// LessFunc orders two expenses ascending.
type LessFunc func(a, b core.Expense) bool

// sortKeys maps a sort key name to its ascending comparator. It is fixed at
// init and only read afterwards.
var sortKeys = map[string]LessFunc{
	"date":   func(a, b core.Expense) bool { return a.Date < b.Date },
	"amount": func(a, b core.Expense) bool { return a.Amount.Cents < b.Amount.Cents },
	"title":  func(a, b core.Expense) bool { return strings.ToLower(a.Title) < strings.ToLower(b.Title) },
}

// SortOptions lists every key in both directions, keys in name order.
func SortOptions() []string {
	keys := make([]string, 0, len(sortKeys))
	for k := range sortKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		out = append(out, Sort{Key: k, Desc: true}.String(), Sort{Key: k}.String())
	}
	return out
}

// Sort selects a key and direction.
type Sort struct {
	Key  string
	Desc bool
}

// DefaultSort is newest first.
var DefaultSort = Sort{Key: "date", Desc: true}

func (s Sort) String() string {
	if s.Desc {
		return s.Key + "-desc"
	}
	return s.Key + "-asc"
}

// ParseSort accepts "key", "key-asc" or "key-desc". An empty string yields
// DefaultSort.
func ParseSort(raw string) (Sort, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return DefaultSort, nil
	}
	key, dir, _ := strings.Cut(raw, "-")
	if _, ok := sortKeys[key]; !ok {
		return Sort{}, fmt.Errorf("unknown sort key: %s", key)
	}
	switch dir {
	case "", "asc":
		return Sort{Key: key}, nil
	case "desc":
		return Sort{Key: key, Desc: true}, nil
	default:
		return Sort{}, fmt.Errorf("unknown sort direction: %s", dir)
	}
}

// Apply returns a sorted copy. Equal elements keep their input order.
func (s Sort) Apply(expenses []core.Expense) []core.Expense {
	out := append([]core.Expense(nil), expenses...)
	less, ok := sortKeys[s.Key]
	if !ok {
		less = sortKeys[DefaultSort.Key]
	}
	sort.SliceStable(out, func(i, j int) bool {
		if s.Desc {
			return less(out[j], out[i])
		}
		return less(out[i], out[j])
	})
	return out
}

// Search filters then sorts.
func Search(expenses []core.Expense, f Filter, s Sort) []core.Expense {
	return s.Apply(f.Apply(expenses))
}
