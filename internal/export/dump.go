package export

import (
	"encoding/json"
	"fmt"
	"io"

	"budgetapp/internal/core"
)

// WriteJSON writes the full state as indented JSON, the same shape the
// storage layer persists.
func WriteJSON(w io.Writer, state core.BudgetState) error {
	state.Version = core.CurrentVersion
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(state); err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	return nil
}
