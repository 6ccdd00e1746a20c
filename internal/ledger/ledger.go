// Package ledger holds the posting arithmetic that keeps account balances in
// step with their transactions.
package ledger

import (
	"github.com/shopspring/decimal"

	"flowstate/internal/model"
)

// Posting is the part of a transaction that affects a balance.
type Posting struct {
	AccountID string
	Amount    decimal.Decimal
	Type      model.TransactionType
}

// Adjustment is a signed change to one account's balance.
type Adjustment struct {
	AccountID string
	Delta     decimal.Decimal
}

// Signed returns +amount for income and -amount for expense.
func Signed(amount decimal.Decimal, typ model.TransactionType) decimal.Decimal {
	if typ == model.Expense {
		return amount.Neg()
	}
	return amount
}

func (p Posting) signed() decimal.Decimal {
	return Signed(p.Amount, p.Type)
}

// Post returns the adjustment for a newly created transaction.
func Post(p Posting) []Adjustment {
	return []Adjustment{{AccountID: p.AccountID, Delta: p.signed()}}
}

// Reverse returns the adjustment that undoes p.
func Reverse(p Posting) []Adjustment {
	return []Adjustment{{AccountID: p.AccountID, Delta: p.signed().Neg()}}
}

// Repost returns the adjustments for editing old into updated. When the
// account is unchanged a single delta is returned; otherwise the old account
// is reversed and the new one posted.
func Repost(old, updated Posting) []Adjustment {
	if old.AccountID == updated.AccountID {
		return []Adjustment{{AccountID: old.AccountID, Delta: updated.signed().Sub(old.signed())}}
	}
	return append(Reverse(old), Post(updated)...)
}

// Apply adds every adjustment to balances and returns the ids it touched, in order.
func Apply(balances map[string]decimal.Decimal, adjs []Adjustment) []string {
	touched := make([]string, 0, len(adjs))
	for _, a := range adjs {
		balances[a.AccountID] = balances[a.AccountID].Add(a.Delta)
		touched = append(touched, a.AccountID)
	}
	return touched
}

// Project computes opening plus the signed sum of every posting per account.
// It is the full recomputation the incremental rules must agree with.
func Project(opening map[string]decimal.Decimal, postings []Posting) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(opening))
	for id, b := range opening {
		out[id] = b
	}
	for _, p := range postings {
		out[p.AccountID] = out[p.AccountID].Add(p.signed())
	}
	return out
}
