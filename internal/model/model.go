// Package model defines the persisted row schema shared by the gateway and its clients.
// Rows use snake_case JSON keys; ownership is carried by UserID and never serialized.
package model

import (
	"fmt"
	"time"
)

// Table names a logical collection exposed by the gateway.
type Table string

const (
	TableTasks        Table = "tasks"
	TableRoutines     Table = "routines"
	TableAccounts     Table = "accounts"
	TableTransactions Table = "transactions"
	TableGoals        Table = "goals"
	TableReceivables  Table = "receivables"
)

// Tables lists every table the gateway serves, in load order.
var Tables = []Table{TableTasks, TableRoutines, TableAccounts, TableTransactions, TableGoals, TableReceivables}

// ParseTable resolves a caller-supplied table name.
func ParseTable(name string) (Table, error) {
	for _, t := range Tables {
		if string(t) == name {
			return t, nil
		}
	}
	return "", &ValidationError{Field: "table", Message: fmt.Sprintf("unknown table %q", name)}
}

// Owned is embedded by every row owned by a single user. Ids are unique per
// owner only, so one user's ids say nothing about another's.
type Owned struct {
	UserID string `gorm:"primaryKey;size:64;not null" json:"-"`
	ID     string `gorm:"primaryKey;size:64" json:"id"`
}

func (o *Owned) GetID() string       { return o.ID }
func (o *Owned) SetID(id string)     { o.ID = id }
func (o *Owned) Owner() string       { return o.UserID }
func (o *Owned) SetOwner(uid string) { o.UserID = uid }

// Record is implemented by pointers to every owned row type.
type Record interface {
	GetID() string
	SetID(id string)
	Owner() string
	SetOwner(uid string)
	Validate() error
}

// Normalizer rewrites derived columns before a row is stored.
type Normalizer interface {
	Normalize(now time.Time)
}

// Reference is a strong pointer from one row to a row of another table.
type Reference struct {
	Field string
	Table Table
	ID    string
}

// Referrer is implemented by rows that must point at existing rows of the same owner.
type Referrer interface {
	References() []Reference
}

// ValidationError reports malformed input for a create or update.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func required(field, value string) error {
	if value == "" {
		return invalid(field, "is required")
	}
	return nil
}
