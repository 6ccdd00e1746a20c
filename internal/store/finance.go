package store

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"flowstate/internal/entity"
	"flowstate/internal/ledger"
	"flowstate/internal/model"
)

func validateAccount(a *entity.Account) error {
	if strings.TrimSpace(a.Name) == "" {
		return invalid("name", "is required")
	}
	if !a.Type.Valid() {
		return invalid("type", "unknown account type")
	}
	return nil
}

// CreateAccount opens an account. Its Balance is the opening balance.
func (s *Store) CreateAccount(ctx context.Context, a entity.Account) (entity.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.ID == "" {
		a.ID = s.newID()
	}
	if a.Type != model.AccountCreditCard {
		a.CreditLimit = nil
	}
	if err := validateAccount(&a); err != nil {
		return entity.Account{}, err
	}
	s.accounts = append(s.accounts, a)

	stored, err := create(ctx, s.gw, model.TableAccounts, entity.AccountToRow(a), entity.AccountFromRow)
	if err != nil {
		return a, err
	}
	s.replaceAccount(stored)
	return stored, nil
}

// UpdateAccount edits an account's labels, type and credit limit. The
// balance is never written here; only postings move it.
func (s *Store) UpdateAccount(ctx context.Context, a entity.Account) (entity.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := indexOf(s.accounts, a.ID, accountID)
	if i < 0 {
		return entity.Account{}, ErrNotFound
	}
	a.Balance = s.accounts[i].Balance
	if a.Type != model.AccountCreditCard {
		a.CreditLimit = nil
	}
	if err := validateAccount(&a); err != nil {
		return entity.Account{}, err
	}
	s.accounts[i] = a

	row := entity.AccountToRow(a)
	delete(row, "balance")
	stored, err := update(ctx, s.gw, model.TableAccounts, a.ID, row, entity.AccountFromRow)
	if err != nil {
		return a, err
	}
	s.replaceAccount(stored)
	return stored, nil
}

// DeleteAccount removes an account that no transaction references.
func (s *Store) DeleteAccount(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := indexOf(s.accounts, id, accountID)
	if i < 0 {
		return ErrNotFound
	}
	for _, t := range s.transactions {
		if t.AccountID == id {
			return ErrAccountInUse
		}
	}
	s.accounts = remove(s.accounts, i)
	return s.gw.Delete(ctx, model.TableAccounts, id)
}

func (s *Store) replaceAccount(a entity.Account) {
	if i := indexOf(s.accounts, a.ID, accountID); i >= 0 {
		s.accounts[i] = a
	}
}

func (s *Store) validateTransaction(t *entity.Transaction) error {
	if t.AccountID == "" {
		return invalid("accountId", "is required")
	}
	if indexOf(s.accounts, t.AccountID, accountID) < 0 {
		return invalid("accountId", fmt.Sprintf("account %q not found", t.AccountID))
	}
	if !t.Amount.IsPositive() {
		return invalid("amount", "must be positive")
	}
	if !t.Type.Valid() {
		return invalid("type", "must be income or expense")
	}
	return nil
}

func posting(t entity.Transaction) ledger.Posting {
	return ledger.Posting{AccountID: t.AccountID, Amount: t.Amount, Type: t.Type}
}

// post applies adjustments to the mirrored balances and returns the
// accounts it changed, first touch first.
func (s *Store) post(adjs []ledger.Adjustment) []string {
	balances := make(map[string]decimal.Decimal, len(adjs))
	for _, a := range adjs {
		if i := indexOf(s.accounts, a.AccountID, accountID); i >= 0 {
			balances[a.AccountID] = s.accounts[i].Balance
		}
	}
	var changed []string
	for _, id := range ledger.Apply(balances, adjs) {
		i := indexOf(s.accounts, id, accountID)
		if i < 0 || slices.Contains(changed, id) {
			continue
		}
		s.accounts[i].Balance = balances[id]
		changed = append(changed, id)
	}
	return changed
}

// persistBalances writes the mirrored balance of each account in order and
// stops at the first failure.
func (s *Store) persistBalances(ctx context.Context, ids []string) error {
	for _, id := range ids {
		i := indexOf(s.accounts, id, accountID)
		if i < 0 {
			continue
		}
		patch := entity.Row{"balance": s.accounts[i].Balance.String()}
		if _, err := update(ctx, s.gw, model.TableAccounts, id, patch, entity.AccountFromRow); err != nil {
			return fmt.Errorf("persist balance of %s: %w", id, err)
		}
	}
	return nil
}

// CreateTransaction records a transaction and posts it to its account.
func (s *Store) CreateTransaction(ctx context.Context, t entity.Transaction) (entity.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createTransaction(ctx, t)
}

func (s *Store) createTransaction(ctx context.Context, t entity.Transaction) (entity.Transaction, error) {
	if t.ID == "" {
		t.ID = s.newID()
	}
	if t.Category == "" {
		t.Category = defaultCategory
	}
	if t.Date.IsZero() {
		t.Date = s.now()
	}
	if err := s.validateTransaction(&t); err != nil {
		return entity.Transaction{}, err
	}
	s.transactions = append(s.transactions, t)
	changed := s.post(ledger.Post(posting(t)))

	stored, err := create(ctx, s.gw, model.TableTransactions, entity.TransactionToRow(t), entity.TransactionFromRow)
	if err != nil {
		return t, err
	}
	s.replaceTransaction(stored)
	return stored, s.persistBalances(ctx, changed)
}

// UpdateTransaction edits a transaction and reposts it. Moving it to another
// account reverses the old account and posts to the new one.
func (s *Store) UpdateTransaction(ctx context.Context, t entity.Transaction) (entity.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := indexOf(s.transactions, t.ID, transactionID)
	if i < 0 {
		return entity.Transaction{}, ErrNotFound
	}
	old := s.transactions[i]
	if t.Category == "" {
		t.Category = defaultCategory
	}
	if t.Date.IsZero() {
		t.Date = old.Date
	}
	if err := s.validateTransaction(&t); err != nil {
		return entity.Transaction{}, err
	}
	s.transactions[i] = t
	changed := s.post(ledger.Repost(posting(old), posting(t)))

	stored, err := update(ctx, s.gw, model.TableTransactions, t.ID, entity.TransactionToRow(t), entity.TransactionFromRow)
	if err != nil {
		return t, err
	}
	s.replaceTransaction(stored)
	return stored, s.persistBalances(ctx, changed)
}

// DeleteTransaction removes a transaction and reverses its posting.
func (s *Store) DeleteTransaction(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := indexOf(s.transactions, id, transactionID)
	if i < 0 {
		return ErrNotFound
	}
	old := s.transactions[i]
	s.transactions = remove(s.transactions, i)
	changed := s.post(ledger.Reverse(posting(old)))

	if err := s.gw.Delete(ctx, model.TableTransactions, id); err != nil {
		return err
	}
	return s.persistBalances(ctx, changed)
}

func (s *Store) replaceTransaction(t entity.Transaction) {
	if i := indexOf(s.transactions, t.ID, transactionID); i >= 0 {
		s.transactions[i] = t
	}
}

func validateGoal(g *entity.Goal) error {
	if strings.TrimSpace(g.Title) == "" {
		return invalid("title", "is required")
	}
	if !g.TargetAmount.IsPositive() {
		return invalid("targetAmount", "must be positive")
	}
	if g.CurrentAmount.IsNegative() {
		return invalid("currentAmount", "must not be negative")
	}
	return nil
}

func (s *Store) CreateGoal(ctx context.Context, g entity.Goal) (entity.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if g.ID == "" {
		g.ID = s.newID()
	}
	if err := validateGoal(&g); err != nil {
		return entity.Goal{}, err
	}
	s.goals = append(s.goals, g)

	stored, err := create(ctx, s.gw, model.TableGoals, entity.GoalToRow(g), entity.GoalFromRow)
	if err != nil {
		return g, err
	}
	s.replaceGoal(stored)
	return stored, nil
}

func (s *Store) UpdateGoal(ctx context.Context, g entity.Goal) (entity.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := indexOf(s.goals, g.ID, goalID)
	if i < 0 {
		return entity.Goal{}, ErrNotFound
	}
	if err := validateGoal(&g); err != nil {
		return entity.Goal{}, err
	}
	s.goals[i] = g

	stored, err := update(ctx, s.gw, model.TableGoals, g.ID, entity.GoalToRow(g), entity.GoalFromRow)
	if err != nil {
		return g, err
	}
	s.replaceGoal(stored)
	return stored, nil
}

func (s *Store) DeleteGoal(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := indexOf(s.goals, id, goalID)
	if i < 0 {
		return ErrNotFound
	}
	s.goals = remove(s.goals, i)
	return s.gw.Delete(ctx, model.TableGoals, id)
}

func (s *Store) replaceGoal(g entity.Goal) {
	if i := indexOf(s.goals, g.ID, goalID); i >= 0 {
		s.goals[i] = g
	}
}
