package store

import (
	"math"
	"sort"
	"time"

	"flowstate/internal/entity"
	"flowstate/internal/ledger"
	"flowstate/internal/model"
	"flowstate/internal/streak"
)

// FinanceSummary aggregates the month containing month from the mirror.
func (s *Store) FinanceSummary(month time.Time) ledger.Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	accounts := make([]ledger.AccountView, 0, len(s.accounts))
	for _, a := range s.accounts {
		accounts = append(accounts, ledger.AccountView{ID: a.ID, Name: a.Name, Balance: a.Balance, Type: a.Type})
	}
	entries := make([]ledger.Entry, 0, len(s.transactions))
	for _, t := range s.transactions {
		entries = append(entries, ledger.Entry{Posting: posting(t), Category: t.Category, Date: t.Date})
	}
	expected := make([]ledger.Expected, 0, len(s.receivables))
	for _, r := range s.receivables {
		expected = append(expected, ledger.Expected{Amount: r.Amount, ExpectedDate: r.ExpectedDate, Received: r.Received})
	}
	return ledger.Summarize(month, accounts, entries, expected)
}

// healthyStreak is the streak length above which a routine counts as healthy.
const healthyStreak = 3

type TaskStats struct {
	Total           int                  `json:"total"`
	ByStatus        map[model.Status]int `json:"byStatus"`
	CompletionRate  int                  `json:"completionRate"`
	HighPriority    int                  `json:"highPriority"`
	Routines        int                  `json:"routines"`
	HealthyRoutines int                  `json:"healthyRoutines"`
}

// Stats counts tasks by status and routines with a healthy streak.
// CompletionRate is the rounded percentage of tasks that are Done.
func (s *Store) Stats() TaskStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := TaskStats{ByStatus: make(map[model.Status]int, len(model.Statuses))}
	for _, status := range model.Statuses {
		st.ByStatus[status] = 0
	}
	for _, t := range s.tasks {
		st.Total++
		st.ByStatus[t.Status]++
		if t.Priority == model.PriorityHigh || t.Priority == model.PriorityUrgent {
			st.HighPriority++
		}
	}
	if st.Total > 0 {
		st.CompletionRate = int(math.Round(float64(st.ByStatus[model.StatusDone]) / float64(st.Total) * 100))
	}
	st.Routines = len(s.routines)
	for _, r := range s.routines {
		if r.Streak > healthyStreak {
			st.HealthyRoutines++
		}
	}
	return st
}

type DayActivity struct {
	Date      string `json:"date"`
	Completed int    `json:"completed"`
}

// RoutineActivity returns, oldest first, how many routines were completed on
// each of the last days days ending today.
func (s *Store) RoutineActivity(days int) []DayActivity {
	s.mu.Lock()
	defer s.mu.Unlock()

	today := s.now()
	out := make([]DayActivity, 0, max(days, 0))
	for i := days - 1; i >= 0; i-- {
		day := streak.Format(today.AddDate(0, 0, -i))
		n := 0
		for _, r := range s.routines {
			if streak.Contains(r.CompletionHistory, day) {
				n++
			}
		}
		out = append(out, DayActivity{Date: day, Completed: n})
	}
	return out
}

type ScheduledRoutine struct {
	entity.Routine
	Done bool `json:"done"`
}

type CalendarDay struct {
	Date     string             `json:"date"`
	Weekday  time.Weekday       `json:"weekday"`
	Routines []ScheduledRoutine `json:"routines"`
	Tasks    []entity.Task      `json:"tasks"`
}

// Week returns the seven days, Sunday first, of the week containing anchor.
// Each day lists the routines scheduled on it by start time and the tasks due
// that day. Dates are taken in anchor's location.
func (s *Store) Week(anchor time.Time) []CalendarDay {
	s.mu.Lock()
	defer s.mu.Unlock()

	y, m, d := anchor.Date()
	start := time.Date(y, m, d-int(anchor.Weekday()), 0, 0, 0, 0, anchor.Location())

	routines := clone(s.routines)
	sort.SliceStable(routines, func(i, j int) bool { return routines[i].StartTime < routines[j].StartTime })

	week := make([]CalendarDay, 0, 7)
	for i := 0; i < 7; i++ {
		day := start.AddDate(0, 0, i)
		key := streak.Format(day)
		cd := CalendarDay{Date: key, Weekday: day.Weekday(), Routines: []ScheduledRoutine{}, Tasks: []entity.Task{}}
		for _, r := range routines {
			if r.ScheduledOn(day.Weekday()) {
				cd.Routines = append(cd.Routines, ScheduledRoutine{Routine: r, Done: streak.Contains(r.CompletionHistory, key)})
			}
		}
		for _, t := range s.tasks {
			if t.DueDate != nil && streak.Format(t.DueDate.In(anchor.Location())) == key {
				cd.Tasks = append(cd.Tasks, t)
			}
		}
		week = append(week, cd)
	}
	return week
}
