package store

import (
	"context"
	"testing"
	"time"

	"flowstate/internal/entity"
	"flowstate/internal/model"
)

func TestStats(t *testing.T) {
	now := fixedNow
	s, _ := newStore(t, &now)
	ctx := context.Background()

	for _, task := range []entity.Task{
		{Title: "a", Status: model.StatusDone, Priority: model.PriorityHigh},
		{Title: "b", Status: model.StatusTodo, Priority: model.PriorityUrgent},
		{Title: "c", Priority: model.PriorityLow},
	} {
		if _, err := s.CreateTask(ctx, task); err != nil {
			t.Fatal(err)
		}
	}
	_, _ = s.CreateRoutine(ctx, entity.Routine{
		Title: "Meditate", StartTime: "06:00", EndTime: "06:10",
		CompletionHistory: []string{"2024-03-06", "2024-03-07", "2024-03-08", "2024-03-09", "2024-03-10"},
	})
	_, _ = s.CreateRoutine(ctx, entity.Routine{Title: "Stretch", StartTime: "06:10", EndTime: "06:20"})

	st := s.Stats()
	if st.Total != 3 || st.HighPriority != 2 || st.CompletionRate != 33 {
		t.Errorf("stats = %+v", st)
	}
	if st.ByStatus[model.StatusDone] != 1 || st.ByStatus[model.StatusBacklog] != 1 || st.ByStatus[model.StatusInProgress] != 0 {
		t.Errorf("by status = %v", st.ByStatus)
	}
	if st.Routines != 2 || st.HealthyRoutines != 1 {
		t.Errorf("routines = %d healthy = %d", st.Routines, st.HealthyRoutines)
	}
}

func TestStatsEmpty(t *testing.T) {
	now := fixedNow
	s, _ := newStore(t, &now)
	if st := s.Stats(); st.Total != 0 || st.CompletionRate != 0 || len(st.ByStatus) != len(model.Statuses) {
		t.Errorf("stats = %+v", st)
	}
}

func TestRoutineActivity(t *testing.T) {
	now := fixedNow
	s, _ := newStore(t, &now)
	ctx := context.Background()

	_, _ = s.CreateRoutine(ctx, entity.Routine{Title: "A", StartTime: "06:00", EndTime: "07:00", CompletionHistory: []string{"2024-03-10", "2024-03-09"}})
	_, _ = s.CreateRoutine(ctx, entity.Routine{Title: "B", StartTime: "08:00", EndTime: "09:00", CompletionHistory: []string{"2024-03-09", "2024-03-01"}})

	got := s.RoutineActivity(7)
	if len(got) != 7 {
		t.Fatalf("len = %d", len(got))
	}
	if got[0].Date != "2024-03-04" || got[6].Date != "2024-03-10" {
		t.Errorf("range = %s..%s", got[0].Date, got[6].Date)
	}
	if got[5].Completed != 2 || got[6].Completed != 1 || got[0].Completed != 0 {
		t.Errorf("activity = %+v", got)
	}
	if n := len(s.RoutineActivity(0)); n != 0 {
		t.Errorf("zero days gave %d entries", n)
	}
}

func TestWeek(t *testing.T) {
	now := fixedNow
	s, _ := newStore(t, &now)
	ctx := context.Background()

	gym, _ := s.CreateRoutine(ctx, entity.Routine{Title: "Gym", DaysOfWeek: []int{1, 3}, StartTime: "18:00", EndTime: "19:00"})
	standup, _ := s.CreateRoutine(ctx, entity.Routine{Title: "Standup", StartTime: "09:00", EndTime: "09:15", CompletionHistory: []string{"2024-03-11"}})
	due := time.Date(2024, 3, 13, 15, 0, 0, 0, time.UTC)
	_, _ = s.CreateTask(ctx, entity.Task{Title: "Report", DueDate: &due})
	_, _ = s.CreateTask(ctx, entity.Task{Title: "Someday"})

	week := s.Week(time.Date(2024, 3, 13, 9, 0, 0, 0, time.UTC))
	if len(week) != 7 {
		t.Fatalf("len = %d", len(week))
	}
	if week[0].Date != "2024-03-10" || week[0].Weekday != time.Sunday || week[6].Date != "2024-03-16" {
		t.Errorf("week spans %s..%s", week[0].Date, week[6].Date)
	}
	if len(week[0].Routines) != 0 {
		t.Errorf("sunday routines = %v", week[0].Routines)
	}

	monday := week[1].Routines
	if len(monday) != 2 || monday[0].ID != standup.ID || monday[1].ID != gym.ID {
		t.Fatalf("monday = %+v", monday)
	}
	if !monday[0].Done || monday[1].Done {
		t.Errorf("done flags = %v %v", monday[0].Done, monday[1].Done)
	}
	if len(week[2].Routines) != 1 {
		t.Errorf("tuesday routines = %d", len(week[2].Routines))
	}
	if len(week[3].Tasks) != 1 || week[3].Tasks[0].Title != "Report" {
		t.Errorf("wednesday tasks = %+v", week[3].Tasks)
	}
	for i, day := range week {
		if i != 3 && len(day.Tasks) != 0 {
			t.Errorf("%s has tasks %+v", day.Date, day.Tasks)
		}
	}
}

func TestFinanceSummary(t *testing.T) {
	now := fixedNow
	s, _ := newStore(t, &now)
	ctx := context.Background()

	checking, _ := s.CreateAccount(ctx, entity.Account{Name: "Checking", Balance: d("1000"), Type: model.AccountChecking})
	card, _ := s.CreateAccount(ctx, entity.Account{Name: "Card", Type: model.AccountCreditCard})

	mustTx := func(tx entity.Transaction) {
		t.Helper()
		if _, err := s.CreateTransaction(ctx, tx); err != nil {
			t.Fatal(err)
		}
	}
	mustTx(entity.Transaction{AccountID: checking.ID, Amount: d("500"), Type: model.Income, Category: "Salary"})
	mustTx(entity.Transaction{AccountID: card.ID, Amount: d("100"), Type: model.Expense, Category: "Food"})
	mustTx(entity.Transaction{AccountID: checking.ID, Amount: d("50"), Type: model.Expense, Category: "Food", Date: fixedNow.AddDate(0, -1, 0)})
	_, _ = s.CreateReceivable(ctx, entity.Receivable{Description: "Refund", Amount: d("200"), ExpectedDate: fixedNow.AddDate(0, 0, 3)})

	sum := s.FinanceSummary(fixedNow)
	if sum.Month != "2024-03" {
		t.Errorf("month = %s", sum.Month)
	}
	if !sum.TotalBalance.Equal(d("1350")) || !sum.Income.Equal(d("500")) || !sum.Expenses.Equal(d("100")) || !sum.CashExpenses.IsZero() {
		t.Errorf("summary = %+v", sum)
	}
	if len(sum.ByCategory) != 1 || sum.ByCategory[0].Category != "Food" || !sum.ByCategory[0].Amount.Equal(d("100")) {
		t.Errorf("by category = %+v", sum.ByCategory)
	}
	if sum.PendingCount != 1 || !sum.PendingThisMonth.Equal(d("200")) {
		t.Errorf("pending = %d %s", sum.PendingCount, sum.PendingThisMonth)
	}
}
