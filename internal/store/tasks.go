package store

import (
	"context"
	"strings"

	"flowstate/internal/entity"
	"flowstate/internal/model"
)

func validateTask(t *entity.Task) error {
	if strings.TrimSpace(t.Title) == "" {
		return invalid("title", "is required")
	}
	if !t.Priority.Valid() {
		return invalid("priority", "unknown priority")
	}
	if !t.Status.Valid() {
		return invalid("status", "unknown status")
	}
	return nil
}

// CreateTask adds a task. Missing fields get the form defaults and a task
// created as Done is stamped completed.
func (s *Store) CreateTask(ctx context.Context, t entity.Task) (entity.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if t.ID == "" {
		t.ID = s.newID()
	}
	if t.Priority == "" {
		t.Priority = model.PriorityMedium
	}
	if t.Status == "" {
		t.Status = model.StatusBacklog
	}
	if t.Tags == nil {
		t.Tags = []string{}
	}
	t.CreatedAt = now
	t.CompletedAt = nil
	if t.Status == model.StatusDone {
		t.CompletedAt = &now
	}
	if err := validateTask(&t); err != nil {
		return entity.Task{}, err
	}
	s.tasks = append(s.tasks, t)

	stored, err := create(ctx, s.gw, model.TableTasks, entity.TaskToRow(t), entity.TaskFromRow)
	if err != nil {
		return t, err
	}
	s.replaceTask(stored)
	return stored, nil
}

// UpdateTask replaces a task's editable fields. CreatedAt is kept and
// CompletedAt follows the status transition.
func (s *Store) UpdateTask(ctx context.Context, t entity.Task) (entity.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := indexOf(s.tasks, t.ID, taskID)
	if i < 0 {
		return entity.Task{}, ErrNotFound
	}
	next := t
	if next.Tags == nil {
		next.Tags = []string{}
	}
	old := s.tasks[i]
	next.CreatedAt = old.CreatedAt
	next.Status = old.Status
	next.CompletedAt = old.CompletedAt
	next.SetStatus(t.Status, s.now())
	if err := validateTask(&next); err != nil {
		return entity.Task{}, err
	}
	s.tasks[i] = next

	stored, err := update(ctx, s.gw, model.TableTasks, next.ID, entity.TaskToRow(next), entity.TaskFromRow)
	if err != nil {
		return next, err
	}
	s.replaceTask(stored)
	return stored, nil
}

// MoveTask changes only the status, as a board drag does.
func (s *Store) MoveTask(ctx context.Context, id string, status model.Status) (entity.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !status.Valid() {
		return entity.Task{}, invalid("status", "unknown status")
	}
	i := indexOf(s.tasks, id, taskID)
	if i < 0 {
		return entity.Task{}, ErrNotFound
	}
	t := s.tasks[i]
	t.SetStatus(status, s.now())
	s.tasks[i] = t

	row := entity.TaskToRow(t)
	patch := entity.Row{"status": row["status"], "completed_at": row["completed_at"]}
	stored, err := update(ctx, s.gw, model.TableTasks, id, patch, entity.TaskFromRow)
	if err != nil {
		return t, err
	}
	s.replaceTask(stored)
	return stored, nil
}

func (s *Store) DeleteTask(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := indexOf(s.tasks, id, taskID)
	if i < 0 {
		return ErrNotFound
	}
	s.tasks = remove(s.tasks, i)
	return s.gw.Delete(ctx, model.TableTasks, id)
}

func (s *Store) replaceTask(t entity.Task) {
	if i := indexOf(s.tasks, t.ID, taskID); i >= 0 {
		s.tasks[i] = t
	}
}
