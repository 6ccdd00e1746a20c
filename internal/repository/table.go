package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"flowstate/internal/model"
)

// Row is implemented by pointers to the owned row types.
type Row[T any] interface {
	*T
	model.Record
}

// Repository is an owner-scoped store for one table. Every query filters on
// user_id; rows owned by someone else behave exactly like missing rows.
type Repository[T any, P Row[T]] struct {
	db      *gorm.DB
	table   model.Table
	columns map[string]bool
	now     func() time.Time

	// beforeDelete runs inside the delete transaction after the row is known to exist.
	beforeDelete func(tx *gorm.DB, owner, id string) error
}

func NewRepository[T any, P Row[T]](db *gorm.DB, table model.Table, now func() time.Time) *Repository[T, P] {
	if now == nil {
		now = time.Now
	}
	return &Repository[T, P]{
		db:      db,
		table:   table,
		columns: jsonColumns(new(T)),
		now:     now,
	}
}

// jsonColumns returns the JSON keys a row type accepts.
func jsonColumns(v any) map[string]bool {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("repository: marshal zero row: %v", err))
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		panic(fmt.Sprintf("repository: zero row is not an object: %v", err))
	}
	cols := make(map[string]bool, len(fields))
	for k := range fields {
		cols[k] = true
	}
	return cols
}

func (r *Repository[T, P]) Name() model.Table { return r.table }

// List returns the caller's rows ordered by id.
func (r *Repository[T, P]) List(ctx context.Context, owner string) ([]T, error) {
	return r.Find(ctx, owner, "")
}

// Find returns the caller's rows matching an extra where clause.
func (r *Repository[T, P]) Find(ctx context.Context, owner, query string, args ...any) ([]T, error) {
	db := r.db.WithContext(ctx).Where("user_id = ?", owner)
	if query != "" {
		db = db.Where(query, args...)
	}
	rows := []T{}
	if err := db.Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list %s: %w", r.table, err)
	}
	return rows, nil
}

// ListAll returns rows of every owner. Used by maintenance jobs only.
func (r *Repository[T, P]) ListAll(ctx context.Context) ([]T, error) {
	rows := []T{}
	if err := r.db.WithContext(ctx).Order("user_id, id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list all %s: %w", r.table, err)
	}
	return rows, nil
}

// Get returns the caller's row or nil when there is none.
func (r *Repository[T, P]) Get(ctx context.Context, owner, id string) (P, error) {
	var row T
	err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, owner).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", r.table, err)
	}
	return P(&row), nil
}

// Create stamps the owner, fills a missing id, then normalizes, validates and inserts.
// Caller-supplied ids are kept so optimistic client copies share identity with the stored row.
func (r *Repository[T, P]) Create(ctx context.Context, owner string, row P) (P, error) {
	row.SetOwner(owner)
	if row.GetID() == "" {
		row.SetID(uuid.NewString())
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.prepare(tx, owner, row); err != nil {
			return err
		}
		return tx.Create(row).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, &model.ValidationError{Field: "id", Message: fmt.Sprintf("%q already exists", row.GetID())}
	}
	if err != nil {
		return nil, wrap("create", r.table, err)
	}
	return row, nil
}

// Update merges patch over the caller's row. It returns nil when the row
// does not exist or belongs to someone else.
func (r *Repository[T, P]) Update(ctx context.Context, owner, id string, patch map[string]json.RawMessage) (P, error) {
	if err := r.checkPatch(id, patch); err != nil {
		return nil, err
	}
	var updated P
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current T
		err := tx.Where("id = ? AND user_id = ?", id, owner).First(&current).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		next, err := merge[T](&current, patch)
		if err != nil {
			return err
		}
		row := P(next)
		row.SetID(id)
		row.SetOwner(owner)
		if err := r.prepare(tx, owner, row); err != nil {
			return err
		}
		if err := tx.Save(row).Error; err != nil {
			return err
		}
		updated = row
		return nil
	})
	if err != nil {
		return nil, wrap("update", r.table, err)
	}
	return updated, nil
}

// Save writes a full row already scoped to its owner. Used by maintenance jobs.
func (r *Repository[T, P]) Save(ctx context.Context, row P) error {
	if n, ok := any(row).(model.Normalizer); ok {
		n.Normalize(r.now())
	}
	if err := row.Validate(); err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Save(row).Error; err != nil {
		return fmt.Errorf("save %s: %w", r.table, err)
	}
	return nil
}

// Delete removes the caller's row and reports whether one was removed.
func (r *Repository[T, P]) Delete(ctx context.Context, owner, id string) (bool, error) {
	var deleted bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(P(new(T))).Where("id = ? AND user_id = ?", id, owner).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		if r.beforeDelete != nil {
			if err := r.beforeDelete(tx, owner, id); err != nil {
				return err
			}
		}
		res := tx.Where("id = ? AND user_id = ?", id, owner).Delete(P(new(T)))
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected > 0
		return nil
	})
	if err != nil {
		return false, wrap("delete", r.table, err)
	}
	return deleted, nil
}

func (r *Repository[T, P]) prepare(tx *gorm.DB, owner string, row P) error {
	if n, ok := any(row).(model.Normalizer); ok {
		n.Normalize(r.now())
	}
	if err := row.Validate(); err != nil {
		return err
	}
	ref, ok := any(row).(model.Referrer)
	if !ok {
		return nil
	}
	for _, target := range ref.References() {
		var n int64
		err := tx.Table(string(target.Table)).
			Where("id = ? AND user_id = ?", target.ID, owner).
			Count(&n).Error
		if err != nil {
			return fmt.Errorf("check %s: %w", target.Field, err)
		}
		if n == 0 {
			return &model.ValidationError{Field: target.Field, Message: fmt.Sprintf("%s %q not found", target.Table, target.ID)}
		}
	}
	return nil
}

// checkPatch strips ownership, rejects id changes and unknown columns.
func (r *Repository[T, P]) checkPatch(id string, patch map[string]json.RawMessage) error {
	delete(patch, "user_id")
	if raw, ok := patch["id"]; ok {
		var got string
		if err := json.Unmarshal(raw, &got); err != nil || got != id {
			return &model.ValidationError{Field: "id", Message: "cannot be changed"}
		}
		delete(patch, "id")
	}
	return r.checkColumns(patch)
}

func (r *Repository[T, P]) checkColumns(fields map[string]json.RawMessage) error {
	var unknown []string
	for k := range fields {
		if !r.columns[k] {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)
	return &model.ValidationError{Field: unknown[0], Message: fmt.Sprintf("unknown column for %s", r.table)}
}

// decode parses a create body into a row, ignoring any caller-supplied owner.
func (r *Repository[T, P]) decode(body []byte) (P, error) {
	fields, err := decodeObject(body)
	if err != nil {
		return nil, err
	}
	delete(fields, "user_id")
	if err := r.checkColumns(fields); err != nil {
		return nil, err
	}
	var zero T
	row, err := merge[T](&zero, fields)
	if err != nil {
		return nil, err
	}
	return P(row), nil
}

func decodeObject(body []byte) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil || fields == nil {
		return nil, &model.ValidationError{Message: "body must be a JSON object"}
	}
	return fields, nil
}

// merge overlays JSON fields on a copy of base.
func merge[T any](base *T, fields map[string]json.RawMessage) (*T, error) {
	raw, err := json.Marshal(base)
	if err != nil {
		return nil, err
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(raw, &merged); err != nil {
		return nil, err
	}
	for k, v := range fields {
		merged[k] = v
	}
	raw, err = json.Marshal(merged)
	if err != nil {
		return nil, err
	}
	next := new(T)
	if err := json.Unmarshal(raw, next); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, &model.ValidationError{Field: typeErr.Field, Message: fmt.Sprintf("expected %s", typeErr.Type)}
		}
		return nil, &model.ValidationError{Message: err.Error()}
	}
	return next, nil
}

// wrap annotates storage errors but lets validation errors through untouched.
func wrap(op string, table model.Table, err error) error {
	var vErr *model.ValidationError
	if errors.As(err, &vErr) {
		return vErr
	}
	return fmt.Errorf("%s %s: %w", op, table, err)
}

// ListRows, CreateRow, UpdateRow and DeleteRow serve the untyped HTTP surface.

func (r *Repository[T, P]) ListRows(ctx context.Context, owner string) (any, error) {
	return r.List(ctx, owner)
}

func (r *Repository[T, P]) CreateRow(ctx context.Context, owner string, body []byte) (any, error) {
	row, err := r.decode(body)
	if err != nil {
		return nil, err
	}
	return r.Create(ctx, owner, row)
}

// UpdateRow returns a slice holding the updated row, or an empty slice.
func (r *Repository[T, P]) UpdateRow(ctx context.Context, owner, id string, body []byte) (any, error) {
	patch, err := decodeObject(body)
	if err != nil {
		return nil, err
	}
	row, err := r.Update(ctx, owner, id, patch)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return []T{}, nil
	}
	return []T{*row}, nil
}

func (r *Repository[T, P]) DeleteRow(ctx context.Context, owner, id string) (bool, error) {
	return r.Delete(ctx, owner, id)
}
