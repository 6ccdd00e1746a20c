package model

import "time"

type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
	PriorityUrgent Priority = "Urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

type Status string

const (
	StatusBacklog    Status = "Backlog"
	StatusTodo       Status = "Todo"
	StatusInProgress Status = "InProgress"
	StatusDone       Status = "Done"
)

// Statuses lists the kanban columns in board order.
var Statuses = []Status{StatusBacklog, StatusTodo, StatusInProgress, StatusDone}

func (s Status) Valid() bool {
	switch s {
	case StatusBacklog, StatusTodo, StatusInProgress, StatusDone:
		return true
	}
	return false
}

// Task represents a single card on the kanban board.
type Task struct {
	Owned
	Title       string     `gorm:"not null" json:"title"`
	Description *string    `json:"description"`
	Priority    Priority   `gorm:"size:16;not null" json:"priority"`
	Status      Status     `gorm:"size:16;not null;index" json:"status"`
	DueDate     *time.Time `json:"due_date"`
	Tags        []string   `gorm:"serializer:json;type:text" json:"tags"`
	Project     *string    `json:"project"`
	RoutineID   *string    `gorm:"size:64" json:"routine_id"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at"`
}

func (Task) TableName() string { return string(TableTasks) }

func (t *Task) Validate() error {
	if err := required("title", t.Title); err != nil {
		return err
	}
	if !t.Priority.Valid() {
		return invalid("priority", "unknown priority %q", t.Priority)
	}
	if !t.Status.Valid() {
		return invalid("status", "unknown status %q", t.Status)
	}
	return nil
}

func (t *Task) Normalize(now time.Time) {
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	if t.Status == "" {
		t.Status = StatusBacklog
	}
	if t.Tags == nil {
		t.Tags = []string{}
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
}
