package sheets

import "context"

// Ports for outbound spreadsheet adapters.
type (
	// RowAppender appends rows to the expense sheet of the given year and
	// returns a reference to the written range.
	RowAppender interface {
		AppendRows(ctx context.Context, year int, rows [][]string) (rowRef string, err error)
	}

	// HealthChecker reports whether the spreadsheet is reachable.
	HealthChecker interface {
		HealthCheck(ctx context.Context) error
	}
)
