package store

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"flowstate/internal/entity"
	"flowstate/internal/ledger"
	"flowstate/internal/model"
)

func validateReceivable(r *entity.Receivable) error {
	if strings.TrimSpace(r.Description) == "" {
		return invalid("description", "is required")
	}
	if !r.Amount.IsPositive() {
		return invalid("amount", "must be positive")
	}
	if r.ExpectedDate.IsZero() {
		return invalid("expectedDate", "is required")
	}
	return nil
}

// CreateReceivable records money expected later. New receivables are always pending.
func (s *Store) CreateReceivable(ctx context.Context, r entity.Receivable) (entity.Receivable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ID == "" {
		r.ID = s.newID()
	}
	r.Received = false
	r.ReceivedDate = nil
	r.AccountID = ""
	if err := validateReceivable(&r); err != nil {
		return entity.Receivable{}, err
	}
	s.receivables = append(s.receivables, r)

	stored, err := create(ctx, s.gw, model.TableReceivables, entity.ReceivableToRow(r), entity.ReceivableFromRow)
	if err != nil {
		return r, err
	}
	s.replaceReceivable(stored)
	return stored, nil
}

// UpdateReceivable edits a receivable's description, amount, date and
// category. The received state is kept as is.
func (s *Store) UpdateReceivable(ctx context.Context, r entity.Receivable) (entity.Receivable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := indexOf(s.receivables, r.ID, receivableID)
	if i < 0 {
		return entity.Receivable{}, ErrNotFound
	}
	old := s.receivables[i]
	r.Received = old.Received
	r.ReceivedDate = old.ReceivedDate
	r.AccountID = old.AccountID
	if err := validateReceivable(&r); err != nil {
		return entity.Receivable{}, err
	}
	s.receivables[i] = r

	stored, err := update(ctx, s.gw, model.TableReceivables, r.ID, entity.ReceivableToRow(r), entity.ReceivableFromRow)
	if err != nil {
		return r, err
	}
	s.replaceReceivable(stored)
	return stored, nil
}

// MarkReceived settles a pending receivable into an account: the receivable
// is closed and an income transaction for its amount is posted. Settling it
// a second time fails with ErrAlreadyReceived and posts nothing.
//
// Remote writes go transaction, balance, receivable, so a failure part way
// leaves the stored receivable pending. The income transaction id is derived
// from the receivable, so a retry after Reload reuses a transaction that was
// already stored instead of posting it twice.
func (s *Store) MarkReceived(ctx context.Context, id, into string) (entity.Receivable, entity.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := indexOf(s.receivables, id, receivableID)
	if i < 0 {
		return entity.Receivable{}, entity.Transaction{}, ErrNotFound
	}
	r := s.receivables[i]
	if r.Received {
		return r, entity.Transaction{}, ErrAlreadyReceived
	}

	now := s.now()
	category := r.Category
	if category == "" {
		category = defaultCategory
	}
	t := entity.Transaction{
		ID:          incomeID(r.ID),
		AccountID:   into,
		Amount:      r.Amount,
		Type:        model.Income,
		Category:    category,
		Description: "Received: " + r.Description,
		Date:        now,
	}
	if err := s.validateTransaction(&t); err != nil {
		return r, entity.Transaction{}, err
	}

	r.Received = true
	r.ReceivedDate = &now
	r.AccountID = into
	s.receivables[i] = r

	if j := indexOf(s.transactions, t.ID, transactionID); j >= 0 {
		t = s.transactions[j]
	} else {
		s.transactions = append(s.transactions, t)
		changed := s.post(ledger.Post(posting(t)))

		stored, err := create(ctx, s.gw, model.TableTransactions, entity.TransactionToRow(t), entity.TransactionFromRow)
		if err != nil {
			return r, t, err
		}
		s.replaceTransaction(stored)
		t = stored
		if err := s.persistBalances(ctx, changed); err != nil {
			return r, t, err
		}
	}

	row := entity.ReceivableToRow(r)
	patch := entity.Row{"received": true, "received_date": row["received_date"], "account_id": into}
	stored, err := update(ctx, s.gw, model.TableReceivables, id, patch, entity.ReceivableFromRow)
	if err != nil {
		return r, t, err
	}
	s.replaceReceivable(stored)
	return stored, t, nil
}

// incomeID names the income transaction that settles receivable id.
func incomeID(id string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("receivable:"+id)).String()
}

func (s *Store) DeleteReceivable(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := indexOf(s.receivables, id, receivableID)
	if i < 0 {
		return ErrNotFound
	}
	s.receivables = remove(s.receivables, i)
	return s.gw.Delete(ctx, model.TableReceivables, id)
}

func (s *Store) replaceReceivable(r entity.Receivable) {
	if i := indexOf(s.receivables, r.ID, receivableID); i >= 0 {
		s.receivables[i] = r
	}
}
