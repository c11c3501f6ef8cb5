package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// CurrentVersion is the schema version written by this module.
const CurrentVersion = 3

type (
	Account struct {
		ID         int      `json:"id"`
		Name       string   `json:"name"`
		Type       string   `json:"type"`
		Archived   bool     `json:"archived"`
		CreatedAt  int64    `json:"createdAt"` // epoch milliseconds
		Categories []string `json:"categories"`
	}

	Expense struct {
		ID        int    `json:"id"`
		Title     string `json:"title"`
		Amount    Money  `json:"amount"`
		Date      string `json:"date"`     // YYYY-MM-DD
		Category  string `json:"category"` // single category name
		Recurring bool   `json:"recurring,omitempty"`
		AccountID int    `json:"accountId,omitempty"`
	}

	AccountMonthData struct {
		Income          Money            `json:"income"`
		Expenses        []Expense        `json:"expenses"`
		CategoryBudgets map[string]Money `json:"categoryBudgets"`
	}

	MonthData struct {
		NextExpenseID int                          `json:"nextExpenseId"`
		Accounts      map[string]*AccountMonthData `json:"accounts"`
	}

	UserProfile struct {
		Name     string `json:"name"`
		Age      string `json:"age"`
		Gender   string `json:"gender"`
		KYCInfo  string `json:"kycInfo"`
		PhotoURI string `json:"photoUri,omitempty"`
	}

	// BudgetState is the root persisted object.
	BudgetState struct {
		Version       int                     `json:"version"`
		CurrentMonth  MonthKey                `json:"currentMonth"`
		ActiveAccount View                    `json:"activeAccountId"`
		Accounts      []Account               `json:"accounts"`
		Months        map[MonthKey]*MonthData `json:"months"`
		Currency      string                  `json:"currency"`
		UserProfile   *UserProfile            `json:"userProfile,omitempty"`
	}
)

var (
	ErrEmptyTitle       = errors.New("empty title")
	ErrTitleTooLong     = errors.New("title too long (max 200 characters)")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidDate      = errors.New("invalid date")
	ErrEmptyName        = errors.New("empty name")
	ErrUnknownCurrency  = errors.New("unknown currency")
	ErrInvalidMonthKey  = errors.New("invalid month key")
	ErrInvalidAccountID = errors.New("invalid account id")
)

// AccountKey is the string key used for an account inside MonthData.
func AccountKey(id int) string {
	return strconv.Itoa(id)
}

// NewAccountMonthData returns an empty bucket.
func NewAccountMonthData() *AccountMonthData {
	return &AccountMonthData{
		Expenses:        []Expense{},
		CategoryBudgets: map[string]Money{},
	}
}

// Clone returns a deep copy of the bucket.
func (a *AccountMonthData) Clone() *AccountMonthData {
	if a == nil {
		return nil
	}
	out := &AccountMonthData{
		Income:          a.Income,
		Expenses:        append([]Expense{}, a.Expenses...),
		CategoryBudgets: make(map[string]Money, len(a.CategoryBudgets)),
	}
	for k, v := range a.CategoryBudgets {
		out.CategoryBudgets[k] = v
	}
	return out
}

// Clone returns a deep copy of the month.
func (m *MonthData) Clone() *MonthData {
	if m == nil {
		return nil
	}
	out := &MonthData{
		NextExpenseID: m.NextExpenseID,
		Accounts:      make(map[string]*AccountMonthData, len(m.Accounts)),
	}
	for k, v := range m.Accounts {
		out.Accounts[k] = v.Clone()
	}
	return out
}

// AccountKeys returns the month's account keys in ascending numeric order.
func (m *MonthData) AccountKeys() []string {
	keys := make([]string, 0, len(m.Accounts))
	for k := range m.Accounts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, errA := strconv.Atoi(keys[i])
		b, errB := strconv.Atoi(keys[j])
		if errA != nil || errB != nil {
			return keys[i] < keys[j]
		}
		return a < b
	})
	return keys
}

func (a Account) Clone() Account {
	a.Categories = append([]string{}, a.Categories...)
	return a
}

// HasCategory reports whether name is in the account's category list.
func (a Account) HasCategory(name string) bool {
	for _, c := range a.Categories {
		if c == name {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the state.
func (s BudgetState) Clone() BudgetState {
	out := s
	out.Accounts = make([]Account, len(s.Accounts))
	for i, a := range s.Accounts {
		out.Accounts[i] = a.Clone()
	}
	out.Months = make(map[MonthKey]*MonthData, len(s.Months))
	for k, m := range s.Months {
		out.Months[k] = m.Clone()
	}
	if s.UserProfile != nil {
		p := *s.UserProfile
		out.UserProfile = &p
	}
	return out
}

// MonthKeys returns the materialized month keys in chronological order.
func (s BudgetState) MonthKeys() []MonthKey {
	keys := make([]MonthKey, 0, len(s.Months))
	for k := range s.Months {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// FindAccount returns the index of the account with the given id, or -1.
func (s BudgetState) FindAccount(id int) int {
	for i, a := range s.Accounts {
		if a.ID == id {
			return i
		}
	}
	return -1
}

// ActiveAccounts returns the non-archived accounts in list order.
func (s BudgetState) ActiveAccounts() []Account {
	out := make([]Account, 0, len(s.Accounts))
	for _, a := range s.Accounts {
		if !a.Archived {
			out = append(out, a)
		}
	}
	return out
}

// AccountName returns the account's display name, or "" when unknown.
func (s BudgetState) AccountName(id int) string {
	if i := s.FindAccount(id); i >= 0 {
		return s.Accounts[i].Name
	}
	return ""
}

// UnmarshalJSON accepts the category either as a string or as a
// single-element list, which older blobs use.
func (e *Expense) UnmarshalJSON(data []byte) error {
	type plain Expense
	var raw struct {
		plain
		Category json.RawMessage `json:"category"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*e = Expense(raw.plain)
	e.Category = ""
	if len(raw.Category) == 0 || string(raw.Category) == "null" {
		return nil
	}
	var single string
	if err := json.Unmarshal(raw.Category, &single); err == nil {
		e.Category = single
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw.Category, &list); err != nil {
		return fmt.Errorf("expense %d category: %w", e.ID, err)
	}
	if len(list) > 0 {
		e.Category = list[0]
	}
	return nil
}

// ExpenseDraft carries user input for a new expense.
type ExpenseDraft struct {
	Title     string
	Amount    Money
	Date      string
	Category  string
	Recurring bool
}

// Validate checks the draft at the input boundary.
func (d ExpenseDraft) Validate() error {
	if len(strings.TrimSpace(d.Title)) == 0 {
		return ErrEmptyTitle
	}
	if len(d.Title) > 200 {
		return ErrTitleTooLong
	}
	if d.Amount.Cents < 0 {
		return ErrInvalidAmount
	}
	if _, err := ParseDate(d.Date); err != nil {
		return err
	}
	return nil
}

// ExpensePatch holds optional replacement fields for an existing expense.
type ExpensePatch struct {
	Title     *string
	Amount    *Money
	Date      *string
	Category  *string
	Recurring *bool
}

// Validate checks only the fields present in the patch.
func (p ExpensePatch) Validate() error {
	if p.Title != nil {
		if len(strings.TrimSpace(*p.Title)) == 0 {
			return ErrEmptyTitle
		}
		if len(*p.Title) > 200 {
			return ErrTitleTooLong
		}
	}
	if p.Amount != nil && p.Amount.Cents < 0 {
		return ErrInvalidAmount
	}
	if p.Date != nil {
		if _, err := ParseDate(*p.Date); err != nil {
			return err
		}
	}
	return nil
}

// Apply merges the patch into e. Amount keeps its old value when absent.
func (p ExpensePatch) Apply(e Expense) Expense {
	if p.Title != nil {
		e.Title = *p.Title
	}
	if p.Amount != nil {
		e.Amount = *p.Amount
	}
	if p.Date != nil {
		e.Date = *p.Date
	}
	if p.Category != nil {
		e.Category = *p.Category
	}
	if p.Recurring != nil {
		e.Recurring = *p.Recurring
	}
	return e
}

// Validate applies the profile form rules.
func (p UserProfile) Validate() error {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return ErrEmptyName
	}
	if len(name) < 2 {
		return errors.New("name is too short")
	}
	age, err := strconv.Atoi(strings.TrimSpace(p.Age))
	if err != nil {
		return errors.New("age is required")
	}
	if age < 21 || age > 99 {
		return errors.New("age must be between 21 and 99")
	}
	if strings.TrimSpace(p.Gender) == "" {
		return errors.New("gender is required")
	}
	kyc := strings.TrimSpace(p.KYCInfo)
	if kyc == "" {
		return errors.New("KYC info is required")
	}
	if len(kyc) < 5 {
		return errors.New("KYC ID is too short")
	}
	return nil
}

// ParseBudgetAmount converts a raw budget value; NaN, infinities and values
// that do not round to a positive cent amount report ok=false.
func ParseBudgetAmount(v float64) (Money, bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return Money{}, false
	}
	m := MoneyFromFloat(v)
	if m.Cents <= 0 {
		return Money{}, false
	}
	return m, true
}
