package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/clinicops/clinic-scheduling/internal/booking"
	"github.com/clinicops/clinic-scheduling/internal/schedule"
	"github.com/clinicops/clinic-scheduling/pkg/logging"
)

// BookingService is the booking engine surface the handlers consume.
type BookingService interface {
	Book(ctx context.Context, patientID uuid.UUID, d schedule.Date, t schedule.TimeOfDay, notes *string) (*booking.Appointment, error)
	Confirm(ctx context.Context, id uuid.UUID) (*booking.Appointment, error)
	Complete(ctx context.Context, id uuid.UUID, adminNotes *string) (*booking.Appointment, error)
	Cancel(ctx context.Context, id uuid.UUID, reason string, by booking.CancelActor) (*booking.Appointment, error)
	MarkNoShow(ctx context.Context, id uuid.UUID) (*booking.Appointment, error)
	CanCancel(ctx context.Context, id uuid.UUID, actor booking.CancelActor, actorPatientID uuid.UUID) error
	Purge(ctx context.Context, id uuid.UUID) error
	GetAppointment(ctx context.Context, id uuid.UUID) (*booking.Appointment, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]booking.Appointment, error)
	CountByStatus(ctx context.Context, from, to schedule.Date) ([]booking.StatusCount, error)
}

// SlotService lists availability for the public slot endpoint.
type SlotService interface {
	SlotsForDate(ctx context.Context, d schedule.Date) ([]schedule.TimeOfDay, error)
	IsDateAvailable(ctx context.Context, d schedule.Date) (bool, error)
}

// AdminService is the schedule/vacation/settings admin surface.
type AdminService interface {
	ListSchedules(ctx context.Context) ([]schedule.WeeklySchedule, error)
	CreateSchedule(ctx context.Context, ws *schedule.WeeklySchedule) (*schedule.WeeklySchedule, error)
	UpdateSchedule(ctx context.Context, ws *schedule.WeeklySchedule) (*schedule.WeeklySchedule, error)
	SetScheduleActive(ctx context.Context, id uuid.UUID, active bool) (*schedule.WeeklySchedule, error)
	DeleteSchedule(ctx context.Context, id uuid.UUID) error
	ListVacations(ctx context.Context) ([]schedule.Vacation, error)
	CreateVacation(ctx context.Context, v *schedule.Vacation) (*schedule.Vacation, error)
	UpdateVacation(ctx context.Context, v *schedule.Vacation) (*schedule.Vacation, error)
	DeleteVacation(ctx context.Context, id uuid.UUID) error
	GetSettings(ctx context.Context) (schedule.Settings, error)
	UpdateSettings(ctx context.Context, s schedule.Settings) (schedule.Settings, error)
}

type RouterConfig struct {
	Bookings BookingService
	Slots    SlotService
	Admin    AdminService
	Location *time.Location
	Logger   *logging.Logger
	PgPool   *pgxpool.Pool
	Redis    *redis.Client
	Env      string
	Version  string
}

func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Availability
	r.Get("/slots", listSlotsHandler(cfg.Slots))

	// Appointments
	r.Post("/appointments", bookAppointmentHandler(cfg.Bookings, cfg.Location))
	r.Get("/appointments/{id}", getAppointmentHandler(cfg.Bookings))
	r.Post("/appointments/{id}/confirm", confirmAppointmentHandler(cfg.Bookings))
	r.Post("/appointments/{id}/complete", completeAppointmentHandler(cfg.Bookings))
	r.Post("/appointments/{id}/cancel", cancelAppointmentHandler(cfg.Bookings))
	r.Post("/appointments/{id}/no-show", noShowAppointmentHandler(cfg.Bookings))
	r.Get("/appointments/{id}/can-cancel", canCancelAppointmentHandler(cfg.Bookings))
	r.Delete("/appointments/{id}", purgeAppointmentHandler(cfg.Bookings))
	r.Get("/patients/{patientID}/appointments", listPatientAppointmentsHandler(cfg.Bookings))

	// Reporting
	r.Get("/reports/appointments", statusReportHandler(cfg.Bookings))

	// Admin
	r.Route("/admin", func(r chi.Router) {
		r.Get("/schedules", listSchedulesHandler(cfg.Admin))
		r.Post("/schedules", createScheduleHandler(cfg.Admin))
		r.Put("/schedules/{id}", updateScheduleHandler(cfg.Admin))
		r.Post("/schedules/{id}/toggle", toggleScheduleHandler(cfg.Admin))
		r.Delete("/schedules/{id}", deleteScheduleHandler(cfg.Admin))

		r.Get("/vacations", listVacationsHandler(cfg.Admin))
		r.Post("/vacations", createVacationHandler(cfg.Admin))
		r.Put("/vacations/{id}", updateVacationHandler(cfg.Admin))
		r.Delete("/vacations/{id}", deleteVacationHandler(cfg.Admin))

		r.Get("/settings", getSettingsHandler(cfg.Admin))
		r.Put("/settings", updateSettingsHandler(cfg.Admin))
	})

	return r
}
