package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	ports "budgetapp/internal/sheets"
)

var ErrEmptyRow = errors.New("empty row")

var (
	_ ports.RowAppender   = (*Store)(nil)
	_ ports.HealthChecker = (*Store)(nil)
)

// Store keeps appended rows in memory, keyed by year.
type Store struct {
	mu    sync.Mutex
	years map[int][][]string
	total int
}

func New() *Store {
	return &Store{years: map[int][][]string{}}
}

// AppendRows stores the rows and returns a synthetic range reference.
func (s *Store) AppendRows(_ context.Context, year int, rows [][]string) (string, error) {
	for _, r := range rows {
		if len(r) == 0 {
			return "", ErrEmptyRow
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	first := len(s.years[year]) + 1
	for _, r := range rows {
		s.years[year] = append(s.years[year], append([]string(nil), r...))
	}
	s.total += len(rows)
	return fmt.Sprintf("mem:%d!%d:%d", year, first, first+len(rows)-1), nil
}

// Rows returns a copy of the rows appended for year.
func (s *Store) Rows(year int) [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]string, len(s.years[year]))
	for i, r := range s.years[year] {
		out[i] = append([]string(nil), r...)
	}
	return out
}

// Len returns the number of rows appended across all years.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

func (s *Store) HealthCheck(context.Context) error { return nil }
