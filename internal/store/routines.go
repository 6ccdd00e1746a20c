package store

import (
	"context"
	"strings"
	"time"

	"flowstate/internal/entity"
	"flowstate/internal/model"
	"flowstate/internal/streak"
)

const defaultCategory = "General"

// weekdays are used when a routine is created without any days.
var weekdays = []int{1, 2, 3, 4, 5}

func validateRoutine(r *entity.Routine) error {
	if strings.TrimSpace(r.Title) == "" {
		return invalid("title", "is required")
	}
	for _, d := range r.DaysOfWeek {
		if d < 0 || d > 6 {
			return invalid("daysOfWeek", "days run from 0 (Sunday) to 6")
		}
	}
	for field, v := range map[string]string{"startTime": r.StartTime, "endTime": r.EndTime} {
		if _, err := time.Parse("15:04", v); err != nil {
			return invalid(field, "must be HH:mm")
		}
	}
	return nil
}

func (s *Store) CreateRoutine(ctx context.Context, r entity.Routine) (entity.Routine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ID == "" {
		r.ID = s.newID()
	}
	if len(r.DaysOfWeek) == 0 {
		r.DaysOfWeek = append([]int(nil), weekdays...)
	}
	if r.Category == "" {
		r.Category = defaultCategory
	}
	r.CompletionHistory = streak.Normalize(r.CompletionHistory)
	r.Streak = streak.Compute(r.CompletionHistory, s.now())
	if err := validateRoutine(&r); err != nil {
		return entity.Routine{}, err
	}
	s.routines = append(s.routines, r)

	stored, err := create(ctx, s.gw, model.TableRoutines, entity.RoutineToRow(r), entity.RoutineFromRow)
	if err != nil {
		return r, err
	}
	s.replaceRoutine(stored)
	return stored, nil
}

// UpdateRoutine edits a routine's schedule and labels. Completion history
// only changes through ToggleRoutine.
func (s *Store) UpdateRoutine(ctx context.Context, r entity.Routine) (entity.Routine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := indexOf(s.routines, r.ID, routineID)
	if i < 0 {
		return entity.Routine{}, ErrNotFound
	}
	if r.Category == "" {
		r.Category = defaultCategory
	}
	if r.DaysOfWeek == nil {
		r.DaysOfWeek = []int{}
	}
	r.CompletionHistory = s.routines[i].CompletionHistory
	r.Streak = streak.Compute(r.CompletionHistory, s.now())
	if err := validateRoutine(&r); err != nil {
		return entity.Routine{}, err
	}
	s.routines[i] = r

	row := entity.RoutineToRow(r)
	delete(row, "completion_history")
	delete(row, "streak")
	stored, err := update(ctx, s.gw, model.TableRoutines, r.ID, row, entity.RoutineFromRow)
	if err != nil {
		return r, err
	}
	s.replaceRoutine(stored)
	return stored, nil
}

// ToggleRoutine flips completion of day and recomputes the streak.
func (s *Store) ToggleRoutine(ctx context.Context, id string, day time.Time) (entity.Routine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := indexOf(s.routines, id, routineID)
	if i < 0 {
		return entity.Routine{}, ErrNotFound
	}
	r := s.routines[i]
	r.CompletionHistory = streak.Toggle(r.CompletionHistory, streak.Format(day))
	r.Streak = streak.Compute(r.CompletionHistory, s.now())
	s.routines[i] = r

	row := entity.RoutineToRow(r)
	patch := entity.Row{"completion_history": row["completion_history"], "streak": row["streak"]}
	stored, err := update(ctx, s.gw, model.TableRoutines, id, patch, entity.RoutineFromRow)
	if err != nil {
		return r, err
	}
	s.replaceRoutine(stored)
	return stored, nil
}

func (s *Store) DeleteRoutine(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := indexOf(s.routines, id, routineID)
	if i < 0 {
		return ErrNotFound
	}
	s.routines = remove(s.routines, i)
	return s.gw.Delete(ctx, model.TableRoutines, id)
}

func (s *Store) replaceRoutine(r entity.Routine) {
	if i := indexOf(s.routines, r.ID, routineID); i >= 0 {
		s.routines[i] = r
	}
}
