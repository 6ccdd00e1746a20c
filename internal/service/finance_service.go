package service

import (
	"context"
	"time"

	"flowstate/internal/ledger"
	"flowstate/internal/repository"
)

// FinanceService builds finance reports from stored rows.
type FinanceService struct {
	reg *repository.Registry
}

func NewFinanceService(reg *repository.Registry) *FinanceService {
	return &FinanceService{reg: reg}
}

// Summary aggregates the caller's month containing month.
func (s *FinanceService) Summary(ctx context.Context, userID string, month time.Time) (ledger.Summary, error) {
	accounts, err := s.reg.Accounts.List(ctx, userID)
	if err != nil {
		return ledger.Summary{}, err
	}
	txs, err := s.reg.Transactions.List(ctx, userID)
	if err != nil {
		return ledger.Summary{}, err
	}
	receivables, err := s.reg.Receivables.List(ctx, userID)
	if err != nil {
		return ledger.Summary{}, err
	}

	views := make([]ledger.AccountView, 0, len(accounts))
	for _, a := range accounts {
		views = append(views, ledger.AccountView{ID: a.ID, Name: a.Name, Balance: a.Balance, Type: a.Type})
	}
	entries := make([]ledger.Entry, 0, len(txs))
	for _, t := range txs {
		entries = append(entries, ledger.Entry{
			Posting:  ledger.Posting{AccountID: t.AccountID, Amount: t.Amount, Type: t.Type},
			Category: t.Category,
			Date:     t.Date,
		})
	}
	expected := make([]ledger.Expected, 0, len(receivables))
	for _, r := range receivables {
		expected = append(expected, ledger.Expected{Amount: r.Amount, ExpectedDate: r.ExpectedDate, Received: r.Received})
	}
	return ledger.Summarize(month, views, entries, expected), nil
}
