package ledger

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"flowstate/internal/model"
)

// AccountView is the part of an account the monthly summary reads.
type AccountView struct {
	ID      string
	Name    string
	Balance decimal.Decimal
	Type    model.AccountType
}

// Entry is a dated posting.
type Entry struct {
	Posting
	Category string
	Date     time.Time
}

// Expected is a receivable as seen by the summary.
type Expected struct {
	Amount       decimal.Decimal
	ExpectedDate time.Time
	Received     bool
}

// CategoryTotal is the expense total for one category.
type CategoryTotal struct {
	Category string          `json:"category"`
	Amount   decimal.Decimal `json:"amount"`
}

// CardInvoice is the month's expense total charged to a credit card.
type CardInvoice struct {
	AccountID string          `json:"account_id"`
	Name      string          `json:"name"`
	Total     decimal.Decimal `json:"total"`
}

// Summary is the monthly finance overview.
type Summary struct {
	Month            string          `json:"month"`
	TotalBalance     decimal.Decimal `json:"total_balance"`
	Income           decimal.Decimal `json:"income"`
	Expenses         decimal.Decimal `json:"expenses"`
	CashExpenses     decimal.Decimal `json:"cash_expenses"`
	ByCategory       []CategoryTotal `json:"by_category"`
	Invoices         []CardInvoice   `json:"invoices"`
	PendingTotal     decimal.Decimal `json:"pending_total"`
	PendingThisMonth decimal.Decimal `json:"pending_this_month"`
	PendingCount     int             `json:"pending_count"`
}

// MonthLayout formats the month a summary covers.
const MonthLayout = "2006-01"

func sameMonth(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month()
}

// Summarize aggregates the month containing month. Entry dates are compared
// in month's location. CashExpenses leaves out credit-card accounts.
func Summarize(month time.Time, accounts []AccountView, entries []Entry, expected []Expected) Summary {
	s := Summary{
		Month:      month.Format(MonthLayout),
		ByCategory: []CategoryTotal{},
		Invoices:   []CardInvoice{},
	}

	cards := make(map[string]int)
	for _, a := range accounts {
		s.TotalBalance = s.TotalBalance.Add(a.Balance)
		if a.Type == model.AccountCreditCard {
			cards[a.ID] = len(s.Invoices)
			s.Invoices = append(s.Invoices, CardInvoice{AccountID: a.ID, Name: a.Name})
		}
	}

	byCategory := make(map[string]decimal.Decimal)
	for _, e := range entries {
		if !sameMonth(e.Date.In(month.Location()), month) {
			continue
		}
		if e.Type == model.Income {
			s.Income = s.Income.Add(e.Amount)
			continue
		}
		s.Expenses = s.Expenses.Add(e.Amount)
		byCategory[e.Category] = byCategory[e.Category].Add(e.Amount)
		if i, ok := cards[e.AccountID]; ok {
			s.Invoices[i].Total = s.Invoices[i].Total.Add(e.Amount)
		} else {
			s.CashExpenses = s.CashExpenses.Add(e.Amount)
		}
	}
	for cat, amt := range byCategory {
		s.ByCategory = append(s.ByCategory, CategoryTotal{Category: cat, Amount: amt})
	}
	sort.Slice(s.ByCategory, func(i, j int) bool {
		if c := s.ByCategory[i].Amount.Cmp(s.ByCategory[j].Amount); c != 0 {
			return c > 0
		}
		return s.ByCategory[i].Category < s.ByCategory[j].Category
	})

	for _, r := range expected {
		if r.Received {
			continue
		}
		s.PendingCount++
		s.PendingTotal = s.PendingTotal.Add(r.Amount)
		if sameMonth(r.ExpectedDate.In(month.Location()), month) {
			s.PendingThisMonth = s.PendingThisMonth.Add(r.Amount)
		}
	}
	return s
}
