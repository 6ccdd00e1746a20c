// Package entity holds the in-memory entities mirrored by clients and the
// explicit mapping between them and the snake_case rows the gateway stores.
package entity

import (
	"time"

	"github.com/shopspring/decimal"

	"flowstate/internal/model"
)

type Task struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Priority    model.Priority `json:"priority"`
	Status      model.Status   `json:"status"`
	DueDate     *time.Time     `json:"dueDate,omitempty"`
	Tags        []string       `json:"tags"`
	Project     string         `json:"project,omitempty"`
	RoutineID   string         `json:"routineId,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	CompletedAt *time.Time     `json:"completedAt,omitempty"`
}

// SetStatus moves the task to next. Entering Done stamps CompletedAt,
// leaving Done clears it, and staying put changes nothing.
func (t *Task) SetStatus(next model.Status, now time.Time) {
	switch {
	case next == t.Status:
		return
	case next == model.StatusDone:
		t.CompletedAt = &now
	case t.Status == model.StatusDone:
		t.CompletedAt = nil
	}
	t.Status = next
}

type Routine struct {
	ID                string   `json:"id"`
	Title             string   `json:"title"`
	DaysOfWeek        []int    `json:"daysOfWeek"`
	StartTime         string   `json:"startTime"`
	EndTime           string   `json:"endTime"`
	Category          string   `json:"category"`
	Streak            int      `json:"streak"`
	CompletionHistory []string `json:"completionHistory"`
}

// ScheduledOn reports whether the routine runs on weekday.
func (r *Routine) ScheduledOn(weekday time.Weekday) bool {
	for _, d := range r.DaysOfWeek {
		if d == int(weekday) {
			return true
		}
	}
	return false
}

type Account struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Balance     decimal.Decimal   `json:"balance"`
	Color       string            `json:"color"`
	Type        model.AccountType `json:"type"`
	CreditLimit *decimal.Decimal  `json:"creditLimit,omitempty"`
}

type Transaction struct {
	ID          string                `json:"id"`
	AccountID   string                `json:"accountId"`
	Amount      decimal.Decimal       `json:"amount"`
	Type        model.TransactionType `json:"type"`
	Category    string                `json:"category"`
	Description string                `json:"description"`
	Date        time.Time             `json:"date"`
}

type Goal struct {
	ID            string          `json:"id"`
	Title         string          `json:"title"`
	TargetAmount  decimal.Decimal `json:"targetAmount"`
	CurrentAmount decimal.Decimal `json:"currentAmount"`
	Deadline      *time.Time      `json:"deadline,omitempty"`
	Color         string          `json:"color"`
}

type Receivable struct {
	ID           string          `json:"id"`
	Description  string          `json:"description"`
	Amount       decimal.Decimal `json:"amount"`
	ExpectedDate time.Time       `json:"expectedDate"`
	Category     string          `json:"category"`
	Received     bool            `json:"received"`
	ReceivedDate *time.Time      `json:"receivedDate,omitempty"`
	AccountID    string          `json:"accountId,omitempty"`
}
