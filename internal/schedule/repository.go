package schedule

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrScheduleNotFound = errors.New("weekly schedule not found")
	ErrVacationNotFound = errors.New("vacation not found")
)

// Repository contains all DB interactions needed by the availability
// and admin services.
type Repository interface {
	// Weekly schedules
	ActiveScheduleForWeekday(ctx context.Context, day time.Weekday) (*WeeklySchedule, error)
	GetSchedule(ctx context.Context, id uuid.UUID) (*WeeklySchedule, error)
	ListSchedules(ctx context.Context) ([]WeeklySchedule, error)
	CreateSchedule(ctx context.Context, ws *WeeklySchedule) (*WeeklySchedule, error)
	UpdateSchedule(ctx context.Context, ws *WeeklySchedule) (*WeeklySchedule, error)
	SetScheduleActive(ctx context.Context, id uuid.UUID, active bool) (*WeeklySchedule, error)
	DeleteSchedule(ctx context.Context, id uuid.UUID) error

	// Vacations
	HasVacationOn(ctx context.Context, d Date) (bool, error)
	ListVacations(ctx context.Context) ([]Vacation, error)
	CreateVacation(ctx context.Context, v *Vacation) (*Vacation, error)
	UpdateVacation(ctx context.Context, v *Vacation) (*Vacation, error)
	DeleteVacation(ctx context.Context, id uuid.UUID) error

	// Clinic settings (single row, lazily created with defaults)
	GetSettings(ctx context.Context) (Settings, error)
	UpdateSettings(ctx context.Context, s Settings) (Settings, error)
}
