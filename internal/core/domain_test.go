package core

import (
	"encoding/json"
	"testing"
	"time"
)

func TestExpenseDraftValidate(t *testing.T) {
	good := ExpenseDraft{Title: "Coffee", Amount: Money{Cents: 350}, Date: "2024-03-02", Category: "Dining"}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	free := good
	free.Amount = Money{}
	if err := free.Validate(); err != nil {
		t.Fatalf("zero amount should be accepted, got %v", err)
	}

	bads := []ExpenseDraft{
		{Title: "  ", Amount: Money{Cents: 1}, Date: "2024-03-02"},
		{Title: "a", Amount: Money{Cents: -1}, Date: "2024-03-02"},
		{Title: "a", Amount: Money{Cents: 1}, Date: "2024-3-2"},
		{Title: "a", Amount: Money{Cents: 1}, Date: "2024-02-30"},
		{Title: string(make([]byte, 201)), Amount: Money{Cents: 1}, Date: "2024-03-02"},
	}
	for i, d := range bads {
		if err := d.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestExpensePatchApplyKeepsAmount(t *testing.T) {
	e := Expense{ID: 3, Title: "Rent", Amount: Money{Cents: 100000}, Date: "2024-01-01", Category: "Rent/Mortgage"}
	title := "Rent (flat)"
	got := ExpensePatch{Title: &title}.Apply(e)
	if got.Title != title {
		t.Fatalf("title = %q", got.Title)
	}
	if got.Amount != e.Amount {
		t.Fatalf("amount changed to %v", got.Amount)
	}
	if got.ID != 3 {
		t.Fatalf("id changed to %d", got.ID)
	}
}

func TestExpenseCategoryDecoding(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{`{"id":1,"title":"a","amount":2,"date":"2024-01-01","category":"Dining"}`, "Dining"},
		{`{"id":1,"title":"a","amount":2,"date":"2024-01-01","category":["Travel"]}`, "Travel"},
		{`{"id":1,"title":"a","amount":2,"date":"2024-01-01","category":[]}`, ""},
		{`{"id":1,"title":"a","amount":2,"date":"2024-01-01"}`, ""},
	}
	for _, tc := range cases {
		var e Expense
		if err := json.Unmarshal([]byte(tc.in), &e); err != nil {
			t.Fatalf("%s: %v", tc.in, err)
		}
		if e.Category != tc.want {
			t.Errorf("%s: category = %q, want %q", tc.in, e.Category, tc.want)
		}
		if e.Amount.Cents != 200 {
			t.Errorf("%s: amount = %d cents", tc.in, e.Amount.Cents)
		}
	}
}

func TestStateCloneIsDeep(t *testing.T) {
	s := DefaultState(time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC))
	s.Months["2024-05"] = &MonthData{Accounts: map[string]*AccountMonthData{"1": NewAccountMonthData()}}
	c := s.Clone()
	c.Months["2024-05"].Accounts["1"].Income = Money{Cents: 5}
	c.Months["2024-05"].Accounts["1"].CategoryBudgets["Dining"] = Money{Cents: 1}
	c.Accounts[0].Categories[0] = "changed"

	if s.Months["2024-05"].Accounts["1"].Income.Cents != 0 {
		t.Fatalf("income leaked into original")
	}
	if len(s.Months["2024-05"].Accounts["1"].CategoryBudgets) != 0 {
		t.Fatalf("budgets leaked into original")
	}
	if s.Accounts[0].Categories[0] != "Groceries" {
		t.Fatalf("categories leaked into original")
	}
}

func TestMonthAccountKeysNumericOrder(t *testing.T) {
	m := &MonthData{Accounts: map[string]*AccountMonthData{"10": nil, "2": nil, "1": nil}}
	got := m.AccountKeys()
	want := []string{"1", "2", "10"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("keys = %v, want %v", got, want)
		}
	}
}

func TestUserProfileValidate(t *testing.T) {
	good := UserProfile{Name: "Ada", Age: "30", Gender: "F", KYCInfo: "ABC123"}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	bads := []UserProfile{
		{Name: "A", Age: "30", Gender: "F", KYCInfo: "ABC123"},
		{Name: "Ada", Age: "20", Gender: "F", KYCInfo: "ABC123"},
		{Name: "Ada", Age: "x", Gender: "F", KYCInfo: "ABC123"},
		{Name: "Ada", Age: "30", Gender: " ", KYCInfo: "ABC123"},
		{Name: "Ada", Age: "30", Gender: "F", KYCInfo: "AB"},
	}
	for i, p := range bads {
		if err := p.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestDefaultState(t *testing.T) {
	s := DefaultState(time.Date(2024, 2, 29, 12, 0, 0, 0, time.UTC))
	if s.Version != CurrentVersion || s.CurrentMonth != "2024-02" || s.Currency != "USD" {
		t.Fatalf("unexpected defaults: %+v", s)
	}
	if len(s.Accounts) != 1 || s.Accounts[0].Name != "Main" || s.Accounts[0].Type != AccountChecking {
		t.Fatalf("unexpected accounts: %+v", s.Accounts)
	}
	if id, ok := s.ActiveAccount.AccountID(); !ok || id != 1 {
		t.Fatalf("active account = %v", s.ActiveAccount)
	}
	if len(s.Accounts[0].Categories) != len(DefaultCategories) {
		t.Fatalf("categories not seeded")
	}
}
