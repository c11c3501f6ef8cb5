package core

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type ViewKind uint8

const (
	// ViewAll aggregates every account.
	ViewAll ViewKind = iota
	// ViewAccount scopes to a single account.
	ViewAccount
)

// View is the active selection: all accounts or exactly one.
// The zero value is the all-accounts view.
type View struct {
	Kind ViewKind
	ID   int
}

const allSentinel = "all"

func AllAccounts() View {
	return View{Kind: ViewAll}
}

func AccountView(id int) View {
	return View{Kind: ViewAccount, ID: id}
}

func (v View) IsAll() bool {
	return v.Kind == ViewAll
}

// AccountID returns the account id when the view is scoped to one account.
func (v View) AccountID() (int, bool) {
	if v.Kind != ViewAccount {
		return 0, false
	}
	return v.ID, true
}

func (v View) String() string {
	if v.IsAll() {
		return allSentinel
	}
	return strconv.Itoa(v.ID)
}

// ParseView accepts "all" or a positive account id.
func ParseView(s string) (View, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, allSentinel) {
		return AllAccounts(), nil
	}
	id, err := strconv.Atoi(s)
	if err != nil || id <= 0 {
		return View{}, fmt.Errorf("%w: %q", ErrInvalidAccountID, s)
	}
	return AccountView(id), nil
}

// MarshalJSON writes "all" or the numeric id.
func (v View) MarshalJSON() ([]byte, error) {
	if v.IsAll() {
		return json.Marshal(allSentinel)
	}
	return json.Marshal(v.ID)
}

func (v *View) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" || s == `""` {
		*v = AllAccounts()
		return nil
	}
	parsed, err := ParseView(strings.Trim(s, `"`))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
