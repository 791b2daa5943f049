package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/philboiv1n/todolist/internal/repository"
)

// SchedulerService wraps cron-based background jobs.
type SchedulerService struct {
	cron *cron.Cron
}

func NewSchedulerService(loc *time.Location) *SchedulerService {
	return &SchedulerService{
		cron: cron.New(cron.WithLocation(loc), cron.WithSeconds()),
	}
}

// ScheduleInterval registers a periodic job every given duration.
func (s *SchedulerService) ScheduleInterval(interval time.Duration, job func()) (cron.EntryID, error) {
	if interval <= 0 {
		return 0, fmt.Errorf("interval must be positive")
	}
	seconds := int(interval.Seconds())
	if seconds <= 0 {
		seconds = 1
	}
	spec := fmt.Sprintf("@every %ds", seconds)
	return s.cron.AddFunc(spec, job)
}

func (s *SchedulerService) Start() {
	s.cron.Start()
}

func (s *SchedulerService) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// MaintenanceService runs housekeeping that is not part of any request:
// currently just trimming the login-attempt log down to its retention
// window. Task scheduling itself never happens here; next occurrences are
// created synchronously inside the toggle transaction.
type MaintenanceService struct {
	attemptRepo *repository.LoginAttemptRepository
	retention   time.Duration
}

func NewMaintenanceService(attemptRepo *repository.LoginAttemptRepository, retention time.Duration) *MaintenanceService {
	return &MaintenanceService{attemptRepo: attemptRepo, retention: retention}
}

// PruneLoginAttempts deletes attempt rows older than the retention window.
func (s *MaintenanceService) PruneLoginAttempts(ctx context.Context) error {
	cutoff := time.Now().Add(-s.retention)
	n, err := s.attemptRepo.PruneBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	if n > 0 {
		log.Printf("[info] pruned %d login attempts older than %s", n, s.retention)
	}
	return nil
}
