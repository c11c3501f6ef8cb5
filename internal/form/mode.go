// Package form tracks whether the expense form is adding a new entry or
// editing an existing one.
package form

// Mode is the expense form state. The zero value is Adding.
type Mode struct {
	editing   bool
	expenseID int
	accountID int
}

// Adding returns the default mode.
func Adding() Mode { return Mode{} }

// Editing returns the mode for editing expense id of account.
func Editing(expenseID, accountID int) Mode {
	return Mode{editing: true, expenseID: expenseID, accountID: accountID}
}

func (m Mode) IsEditing() bool { return m.editing }

// Target returns the expense being edited.
func (m Mode) Target() (expenseID, accountID int, ok bool) {
	return m.expenseID, m.accountID, m.editing
}

// Label is the heading shown above the form.
func (m Mode) Label() string {
	if m.editing {
		return "Edit expense"
	}
	return "Add expense"
}

// Select enters editing for the chosen expense.
func (m Mode) Select(expenseID, accountID int) Mode {
	return Editing(expenseID, accountID)
}

// Save leaves editing after the form was submitted.
func (m Mode) Save() Mode { return Adding() }

// Cancel leaves editing without changes.
func (m Mode) Cancel() Mode { return Adding() }

// Deleted leaves editing only when the deleted expense is the one being
// edited.
func (m Mode) Deleted(expenseID, accountID int) Mode {
	if m.editing && m.expenseID == expenseID && m.accountID == accountID {
		return Adding()
	}
	return m
}
