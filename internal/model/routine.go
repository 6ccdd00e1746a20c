package model

import (
	"time"

	"flowstate/internal/streak"
)

// Routine is a recurring habit; Streak is derived from CompletionHistory.
type Routine struct {
	Owned
	Title             string   `gorm:"not null" json:"title"`
	DaysOfWeek        []int    `gorm:"serializer:json;type:text" json:"days_of_week"`
	StartTime         string   `gorm:"size:5" json:"start_time"`
	EndTime           string   `gorm:"size:5" json:"end_time"`
	Category          string   `json:"category"`
	Streak            int      `json:"streak"`
	CompletionHistory []string `gorm:"serializer:json;type:text" json:"completion_history"`
}

func (Routine) TableName() string { return string(TableRoutines) }

func (r *Routine) Validate() error {
	if err := required("title", r.Title); err != nil {
		return err
	}
	for _, d := range r.DaysOfWeek {
		if d < 0 || d > 6 {
			return invalid("days_of_week", "day %d out of range 0-6", d)
		}
	}
	for field, v := range map[string]string{"start_time": r.StartTime, "end_time": r.EndTime} {
		if v == "" {
			continue
		}
		if _, err := time.Parse("15:04", v); err != nil {
			return invalid(field, "expected HH:mm, got %q", v)
		}
	}
	for _, day := range r.CompletionHistory {
		if _, err := time.Parse(streak.DateLayout, day); err != nil {
			return invalid("completion_history", "expected YYYY-MM-DD, got %q", day)
		}
	}
	return nil
}

// Normalize collapses duplicate history entries and recomputes the cached streak,
// so a stored streak is always the one derived from the stored history.
func (r *Routine) Normalize(now time.Time) {
	if r.DaysOfWeek == nil {
		r.DaysOfWeek = []int{}
	}
	r.CompletionHistory = streak.Normalize(r.CompletionHistory)
	r.Streak = streak.Compute(r.CompletionHistory, now)
}
