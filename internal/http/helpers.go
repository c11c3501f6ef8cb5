package http

import (
	"strings"
)

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// changed is the body returned by mutations that have no entity to echo.
type changed struct {
	Changed  bool   `json:"changed"`
	Revision uint64 `json:"revision"`
}
