package cache

import (
	"fmt"
	"time"

	"budgetapp/internal/core"
	"budgetapp/internal/query"
)

// SummaryKey identifies one computed summary. The engine revision is part
// of the key, so a mutation makes every earlier entry unreachable.
type SummaryKey struct {
	Revision uint64
	Month    core.MonthKey
	View     core.View
}

func (k SummaryKey) String() string {
	return fmt.Sprintf("%d|%s|%s", k.Revision, k.Month, k.View)
}

// Summaries memoizes query.Summarize results. A nil *Summaries computes
// every time.
type Summaries struct {
	lru *LRUCache[query.Summary]
}

// NewSummaries returns nil when ttl is zero, which disables caching.
func NewSummaries(maxSize int, ttl time.Duration) *Summaries {
	if ttl <= 0 {
		return nil
	}
	return &Summaries{lru: NewLRUCache[query.Summary](maxSize, ttl)}
}

// Get returns the cached summary for key or stores the result of compute.
func (s *Summaries) Get(key SummaryKey, compute func() query.Summary) query.Summary {
	if s == nil {
		return compute()
	}
	k := key.String()
	if v, ok := s.lru.Get(k); ok {
		return v
	}
	v := compute()
	s.lru.Set(k, v)
	return v
}

// Cleaner exposes the backing cache to a Manager. It is nil for a disabled
// cache.
func (s *Summaries) Cleaner() Cleaner {
	if s == nil {
		return nil
	}
	return s.lru
}

func (s *Summaries) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return s.lru.Stats()
}
