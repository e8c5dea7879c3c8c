package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clinicops/clinic-scheduling/pkg/logging"
)

// Invalidator is the cache hook mutations call. A nil Invalidator
// disables caching entirely.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Service owns the admin-facing schedule, vacation and settings
// mutations. Every mutation re-validates its input and invalidates the
// availability cache before returning.
type Service struct {
	repo   Repository
	cache  Invalidator
	logger *logging.Logger
	now    func() time.Time
}

func NewService(repo Repository, cache Invalidator, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		repo:   repo,
		cache:  cache,
		logger: logger,
		now:    time.Now,
	}
}

// WithClock overrides the clock, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) CreateSchedule(ctx context.Context, ws *WeeklySchedule) (*WeeklySchedule, error) {
	if err := ValidateWeeklySchedule(ws); err != nil {
		return nil, err
	}

	created, err := s.repo.CreateSchedule(ctx, ws)
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx)
	s.logger.Info("weekly schedule created", "id", created.ID, "day", created.DayOfWeek.String())
	return created, nil
}

func (s *Service) UpdateSchedule(ctx context.Context, ws *WeeklySchedule) (*WeeklySchedule, error) {
	if err := ValidateWeeklySchedule(ws); err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdateSchedule(ctx, ws)
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx)
	s.logger.Info("weekly schedule updated", "id", updated.ID, "day", updated.DayOfWeek.String())
	return updated, nil
}

func (s *Service) SetScheduleActive(ctx context.Context, id uuid.UUID, active bool) (*WeeklySchedule, error) {
	updated, err := s.repo.SetScheduleActive(ctx, id, active)
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx)
	s.logger.Info("weekly schedule toggled", "id", id, "active", active)
	return updated, nil
}

func (s *Service) DeleteSchedule(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.DeleteSchedule(ctx, id); err != nil {
		return err
	}

	s.invalidate(ctx)
	s.logger.Info("weekly schedule deleted", "id", id)
	return nil
}

func (s *Service) ListSchedules(ctx context.Context) ([]WeeklySchedule, error) {
	return s.repo.ListSchedules(ctx)
}

func (s *Service) CreateVacation(ctx context.Context, v *Vacation) (*Vacation, error) {
	if err := ValidateVacation(v, DateOf(s.now()), true); err != nil {
		return nil, err
	}

	created, err := s.repo.CreateVacation(ctx, v)
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx)
	s.logger.Info("vacation created", "id", created.ID,
		"start", created.StartDate.String(), "end", created.EndDate.String())
	return created, nil
}

// UpdateVacation only re-checks range ordering: an ongoing vacation's
// start date is legitimately in the past by the time it is edited.
func (s *Service) UpdateVacation(ctx context.Context, v *Vacation) (*Vacation, error) {
	if err := ValidateVacation(v, DateOf(s.now()), false); err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdateVacation(ctx, v)
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx)
	s.logger.Info("vacation updated", "id", updated.ID)
	return updated, nil
}

func (s *Service) DeleteVacation(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.DeleteVacation(ctx, id); err != nil {
		return err
	}

	s.invalidate(ctx)
	s.logger.Info("vacation deleted", "id", id)
	return nil
}

func (s *Service) ListVacations(ctx context.Context) ([]Vacation, error) {
	return s.repo.ListVacations(ctx)
}

func (s *Service) GetSettings(ctx context.Context) (Settings, error) {
	return s.repo.GetSettings(ctx)
}

func (s *Service) UpdateSettings(ctx context.Context, settings Settings) (Settings, error) {
	if err := ValidateSettings(settings); err != nil {
		return Settings{}, err
	}

	updated, err := s.repo.UpdateSettings(ctx, settings)
	if err != nil {
		return Settings{}, err
	}

	s.invalidate(ctx)
	s.logger.Info("clinic settings updated",
		"slot_duration_minutes", updated.SlotDurationMinutes,
		"advance_booking_days", updated.AdvanceBookingDays,
		"cancellation_hours", updated.CancellationHours,
		"max_patients_per_slot", updated.MaxPatientsPerSlot)
	return updated, nil
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		// Cached entries expire via TTL, so a failed invalidation is a
		// staleness window, not a correctness hole worth failing the
		// mutation over.
		s.logger.Warn(fmt.Sprintf("availability cache invalidation failed: %v", err))
	}
}
