package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"flowstate/internal/model"
)

// Table is the untyped CRUD surface of one owner-scoped table.
type Table interface {
	Name() model.Table
	ListRows(ctx context.Context, owner string) (any, error)
	CreateRow(ctx context.Context, owner string, body []byte) (any, error)
	UpdateRow(ctx context.Context, owner, id string, body []byte) (any, error)
	DeleteRow(ctx context.Context, owner, id string) (bool, error)
}

// Registry maps each table name to its typed repository.
type Registry struct {
	Tasks        *Repository[model.Task, *model.Task]
	Routines     *Repository[model.Routine, *model.Routine]
	Accounts     *Repository[model.Account, *model.Account]
	Transactions *Repository[model.Transaction, *model.Transaction]
	Goals        *Repository[model.Goal, *model.Goal]
	Receivables  *Repository[model.Receivable, *model.Receivable]

	tables map[model.Table]Table
}

// NewRegistry builds the repositories. now supplies the clock used to derive
// routine streaks; nil means time.Now.
func NewRegistry(db *gorm.DB, now func() time.Time) *Registry {
	r := &Registry{
		Tasks:        NewRepository[model.Task](db, model.TableTasks, now),
		Routines:     NewRepository[model.Routine](db, model.TableRoutines, now),
		Accounts:     NewRepository[model.Account](db, model.TableAccounts, now),
		Transactions: NewRepository[model.Transaction](db, model.TableTransactions, now),
		Goals:        NewRepository[model.Goal](db, model.TableGoals, now),
		Receivables:  NewRepository[model.Receivable](db, model.TableReceivables, now),
	}
	r.Accounts.beforeDelete = accountInUse

	r.tables = map[model.Table]Table{}
	for _, t := range []Table{r.Tasks, r.Routines, r.Accounts, r.Transactions, r.Goals, r.Receivables} {
		r.tables[t.Name()] = t
	}
	return r
}

// Lookup resolves a caller-supplied table name.
func (r *Registry) Lookup(name string) (Table, error) {
	t, err := model.ParseTable(name)
	if err != nil {
		return nil, err
	}
	return r.tables[t], nil
}

func accountInUse(tx *gorm.DB, owner, id string) error {
	var n int64
	err := tx.Model(&model.Transaction{}).
		Where("account_id = ? AND user_id = ?", id, owner).
		Count(&n).Error
	if err != nil {
		return fmt.Errorf("count transactions: %w", err)
	}
	if n > 0 {
		return &model.ValidationError{Field: "id", Message: fmt.Sprintf("account has %d transactions", n)}
	}
	return nil
}
