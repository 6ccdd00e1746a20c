package service

import (
	"context"
	"fmt"
	"time"

	"flowstate/internal/repository"
	"flowstate/internal/streak"
)

// MaintenanceService runs background upkeep over every user's rows.
type MaintenanceService struct {
	reg *repository.Registry
}

func NewMaintenanceService(reg *repository.Registry) *MaintenanceService {
	return &MaintenanceService{reg: reg}
}

// RefreshStreaks re-derives cached routine streaks for the day containing now,
// so a missed day shows up without waiting for the next write. It returns the
// number of routines changed.
func (s *MaintenanceService) RefreshStreaks(ctx context.Context, now time.Time) (int, error) {
	routines, err := s.reg.Routines.ListAll(ctx)
	if err != nil {
		return 0, err
	}
	changed := 0
	for i := range routines {
		r := &routines[i]
		if streak.Compute(r.CompletionHistory, now) == r.Streak {
			continue
		}
		if err := s.reg.Routines.Save(ctx, r); err != nil {
			return changed, fmt.Errorf("refresh routine %s: %w", r.ID, err)
		}
		changed++
	}
	return changed, nil
}
