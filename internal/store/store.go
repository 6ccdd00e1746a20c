// Package store keeps the signed-in user's entities in memory and mirrors
// every change to the gateway.
//
// Mutations are applied to the local mirror first and then written remotely.
// A failed remote write is reported but not rolled back; Reload discards the
// mirror and rebuilds it from the gateway.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"flowstate/internal/entity"
	"flowstate/internal/model"
	"flowstate/internal/streak"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrAlreadyReceived = errors.New("receivable already received")
	ErrAccountInUse    = errors.New("account still has transactions")
)

// Gateway is the remote per-table CRUD surface, scoped to the signed-in user.
type Gateway interface {
	List(ctx context.Context, table model.Table) ([]entity.Row, error)
	Create(ctx context.Context, table model.Table, row entity.Row) (entity.Row, error)
	Update(ctx context.Context, table model.Table, id string, patch entity.Row) (entity.Row, bool, error)
	Delete(ctx context.Context, table model.Table, id string) error
}

type Store struct {
	mu    sync.Mutex
	gw    Gateway
	now   func() time.Time
	newID func() string

	tasks        []entity.Task
	routines     []entity.Routine
	accounts     []entity.Account
	transactions []entity.Transaction
	goals        []entity.Goal
	receivables  []entity.Receivable
}

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithIDs(newID func() string) Option {
	return func(s *Store) { s.newID = newID }
}

func New(gw Gateway, opts ...Option) *Store {
	s := &Store{gw: gw, now: time.Now, newID: uuid.NewString}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type mirror struct {
	tasks        []entity.Task
	routines     []entity.Routine
	accounts     []entity.Account
	transactions []entity.Transaction
	goals        []entity.Goal
	receivables  []entity.Receivable
}

// Reload replaces the whole mirror with the gateway's rows. On failure the
// previous mirror is kept.
func (s *Store) Reload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var m mirror
	var err error
	if m.tasks, err = load(ctx, s.gw, model.TableTasks, entity.TaskFromRow); err != nil {
		return err
	}
	if m.routines, err = load(ctx, s.gw, model.TableRoutines, entity.RoutineFromRow); err != nil {
		return err
	}
	if m.accounts, err = load(ctx, s.gw, model.TableAccounts, entity.AccountFromRow); err != nil {
		return err
	}
	if m.transactions, err = load(ctx, s.gw, model.TableTransactions, entity.TransactionFromRow); err != nil {
		return err
	}
	if m.goals, err = load(ctx, s.gw, model.TableGoals, entity.GoalFromRow); err != nil {
		return err
	}
	if m.receivables, err = load(ctx, s.gw, model.TableReceivables, entity.ReceivableFromRow); err != nil {
		return err
	}

	today := s.now()
	for i := range m.routines {
		r := &m.routines[i]
		r.CompletionHistory = streak.Normalize(r.CompletionHistory)
		r.Streak = streak.Compute(r.CompletionHistory, today)
	}

	s.tasks = m.tasks
	s.routines = m.routines
	s.accounts = m.accounts
	s.transactions = m.transactions
	s.goals = m.goals
	s.receivables = m.receivables
	return nil
}

func load[T any](ctx context.Context, gw Gateway, table model.Table, from func(entity.Row) (T, error)) ([]T, error) {
	rows, err := gw.List(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", table, err)
	}
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		v, err := from(row)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", table, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *Store) Tasks() []entity.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clone(s.tasks)
}

func (s *Store) Routines() []entity.Routine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clone(s.routines)
}

func (s *Store) Accounts() []entity.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clone(s.accounts)
}

func (s *Store) Transactions() []entity.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clone(s.transactions)
}

func (s *Store) Goals() []entity.Goal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clone(s.goals)
}

func (s *Store) Receivables() []entity.Receivable {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clone(s.receivables)
}

// Account returns one account by id.
func (s *Store) Account(id string) (entity.Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := indexOf(s.accounts, id, accountID); i >= 0 {
		return s.accounts[i], true
	}
	return entity.Account{}, false
}

func clone[T any](in []T) []T {
	out := make([]T, len(in))
	copy(out, in)
	return out
}

func indexOf[T any](items []T, id string, key func(*T) string) int {
	for i := range items {
		if key(&items[i]) == id {
			return i
		}
	}
	return -1
}

func remove[T any](items []T, i int) []T {
	return append(items[:i:i], items[i+1:]...)
}

func taskID(t *entity.Task) string               { return t.ID }
func routineID(r *entity.Routine) string         { return r.ID }
func accountID(a *entity.Account) string         { return a.ID }
func transactionID(t *entity.Transaction) string { return t.ID }
func goalID(g *entity.Goal) string               { return g.ID }
func receivableID(r *entity.Receivable) string   { return r.ID }

func invalid(field, msg string) error {
	return &model.ValidationError{Field: field, Message: msg}
}

// create writes a new row remotely and maps the stored row back.
func create[T any](ctx context.Context, gw Gateway, table model.Table, row entity.Row, from func(entity.Row) (T, error)) (T, error) {
	var zero T
	stored, err := gw.Create(ctx, table, row)
	if err != nil {
		return zero, err
	}
	v, err := from(stored)
	if err != nil {
		return zero, fmt.Errorf("read stored %s: %w", table, err)
	}
	return v, nil
}

// update patches a row remotely and maps the stored row back. A row the
// gateway no longer has is ErrNotFound.
func update[T any](ctx context.Context, gw Gateway, table model.Table, id string, patch entity.Row, from func(entity.Row) (T, error)) (T, error) {
	var zero T
	stored, found, err := gw.Update(ctx, table, id, patch)
	if err != nil {
		return zero, err
	}
	if !found {
		return zero, fmt.Errorf("update %s %s: %w", table, id, ErrNotFound)
	}
	v, err := from(stored)
	if err != nil {
		return zero, fmt.Errorf("read stored %s: %w", table, err)
	}
	return v, nil
}
