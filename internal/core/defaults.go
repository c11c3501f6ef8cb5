package core

import (
	"strings"
	"time"
)

// DefaultCategories seeds every new account.
var DefaultCategories = []string{
	"Groceries", "Rent/Mortgage", "Utilities", "Dining", "Transport",
	"Health", "Shopping", "Subscriptions", "Travel", "Other",
}

// FallbackCategory is used for expenses without a category.
const FallbackCategory = "Other"

const (
	AccountChecking   = "Checking"
	AccountSavings    = "Savings"
	AccountCreditCard = "Credit Card"
	AccountCash       = "Cash"
)

// AccountTypes lists the selectable account types.
var AccountTypes = []string{AccountChecking, AccountSavings, AccountCreditCard, AccountCash}

const DefaultCurrency = "USD"

// Currencies lists the supported currency codes in display order.
var Currencies = []string{"USD", "EUR", "GBP", "JPY", "INR", "CAD", "AUD"}

var currencySymbols = map[string]string{
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
	"JPY": "¥",
	"INR": "₹",
	"CAD": "C$",
	"AUD": "A$",
}

// CurrencySymbol returns the display symbol, falling back to "$".
func CurrencySymbol(code string) string {
	if s, ok := currencySymbols[strings.ToUpper(code)]; ok {
		return s
	}
	return "$"
}

// NormalizeCurrency upper-cases code and checks it is supported.
func NormalizeCurrency(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if _, ok := currencySymbols[code]; !ok {
		return "", ErrUnknownCurrency
	}
	return code, nil
}

// NewAccount builds an account seeded with the default categories.
func NewAccount(id int, name, typ string, now time.Time) Account {
	return Account{
		ID:         id,
		Name:       name,
		Type:       typ,
		CreatedAt:  now.UnixMilli(),
		Categories: append([]string{}, DefaultCategories...),
	}
}

// DefaultState returns a fresh state with a single "Main" checking account.
func DefaultState(now time.Time) BudgetState {
	return BudgetState{
		Version:       CurrentVersion,
		CurrentMonth:  MonthKeyOf(now),
		ActiveAccount: AccountView(1),
		Accounts:      []Account{NewAccount(1, "Main", AccountChecking, now)},
		Months:        map[MonthKey]*MonthData{},
		Currency:      DefaultCurrency,
	}
}
