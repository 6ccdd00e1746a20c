package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type AccountType string

const (
	AccountChecking   AccountType = "checking"
	AccountSavings    AccountType = "savings"
	AccountInvestment AccountType = "investment"
	AccountCash       AccountType = "cash"
	AccountCreditCard AccountType = "credit-card"
)

func (t AccountType) Valid() bool {
	switch t {
	case AccountChecking, AccountSavings, AccountInvestment, AccountCash, AccountCreditCard:
		return true
	}
	return false
}

type TransactionType string

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"
)

func (t TransactionType) Valid() bool {
	return t == Income || t == Expense
}

// Account holds money; Balance is maintained by incremental postings.
type Account struct {
	Owned
	Name        string              `gorm:"not null" json:"name"`
	Balance     decimal.Decimal     `gorm:"type:decimal(20,2);not null" json:"balance"`
	Color       string              `gorm:"size:32" json:"color"`
	Type        AccountType         `gorm:"size:16;not null" json:"type"`
	CreditLimit decimal.NullDecimal `gorm:"type:decimal(20,2)" json:"credit_limit"`
}

func (Account) TableName() string { return string(TableAccounts) }

func (a *Account) Validate() error {
	if err := required("name", a.Name); err != nil {
		return err
	}
	if !a.Type.Valid() {
		return invalid("type", "unknown account type %q", a.Type)
	}
	return nil
}

func (a *Account) Normalize(time.Time) {
	if a.Type != AccountCreditCard {
		a.CreditLimit = decimal.NullDecimal{}
	}
}

// Transaction is a single posting against an account. Amount is always
// positive; the sign comes from Type.
type Transaction struct {
	Owned
	AccountID   string          `gorm:"size:64;not null;index" json:"account_id"`
	Amount      decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`
	Type        TransactionType `gorm:"size:16;not null" json:"type"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	Date        time.Time       `gorm:"index" json:"date"`
}

func (Transaction) TableName() string { return string(TableTransactions) }

func (t *Transaction) Validate() error {
	if err := required("account_id", t.AccountID); err != nil {
		return err
	}
	if !t.Amount.IsPositive() {
		return invalid("amount", "must be positive")
	}
	if !t.Type.Valid() {
		return invalid("type", "must be income or expense")
	}
	return nil
}

func (t *Transaction) References() []Reference {
	return []Reference{{Field: "account_id", Table: TableAccounts, ID: t.AccountID}}
}

// Goal is a savings target; CurrentAmount is edited by hand.
type Goal struct {
	Owned
	Title         string          `gorm:"not null" json:"title"`
	TargetAmount  decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"target_amount"`
	CurrentAmount decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"current_amount"`
	Deadline      *time.Time      `json:"deadline"`
	Color         string          `gorm:"size:32" json:"color"`
}

func (Goal) TableName() string { return string(TableGoals) }

func (g *Goal) Validate() error {
	if err := required("title", g.Title); err != nil {
		return err
	}
	if !g.TargetAmount.IsPositive() {
		return invalid("target_amount", "must be positive")
	}
	if g.CurrentAmount.IsNegative() {
		return invalid("current_amount", "must not be negative")
	}
	return nil
}

// Receivable is money expected from someone; it moves once from pending to received.
type Receivable struct {
	Owned
	Description  string          `gorm:"not null" json:"description"`
	Amount       decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`
	ExpectedDate time.Time       `json:"expected_date"`
	Category     string          `json:"category"`
	Received     bool            `gorm:"not null;default:false;index" json:"received"`
	ReceivedDate *time.Time      `json:"received_date"`
	AccountID    *string         `gorm:"size:64" json:"account_id"`
}

func (Receivable) TableName() string { return string(TableReceivables) }

func (r *Receivable) Validate() error {
	if err := required("description", r.Description); err != nil {
		return err
	}
	if !r.Amount.IsPositive() {
		return invalid("amount", "must be positive")
	}
	if r.Received && (r.ReceivedDate == nil || r.AccountID == nil || *r.AccountID == "") {
		return invalid("received", "received receivables need received_date and account_id")
	}
	return nil
}

func (r *Receivable) References() []Reference {
	if r.AccountID == nil || *r.AccountID == "" {
		return nil
	}
	return []Reference{{Field: "account_id", Table: TableAccounts, ID: *r.AccountID}}
}
