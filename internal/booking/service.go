package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	redisclient "github.com/clinicops/clinic-scheduling/internal/redis"
	"github.com/clinicops/clinic-scheduling/internal/schedule"
	"github.com/clinicops/clinic-scheduling/pkg/logging"
)

const (
	EventBookingCreated       = "BOOKING_CREATED"
	EventAppointmentConfirmed = "APPOINTMENT_CONFIRMED"
	EventAppointmentCompleted = "APPOINTMENT_COMPLETED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
	EventAppointmentNoShow    = "APPOINTMENT_NO_SHOW"
	EventReminderDue          = "REMINDER_DUE"
)

// A patient with this many no-shows inside the trailing window cannot
// book until the oldest one ages out.
const (
	noShowLockoutThreshold = 3
	noShowLockoutWindow    = 30 * 24 * time.Hour
)

var (
	ErrPastDateTime            = errors.New("requested time is in the past")
	ErrBeyondHorizon           = errors.New("requested date is beyond the advance booking horizon")
	ErrDateUnavailable         = errors.New("no availability on the requested date")
	ErrSlotNotBookable         = errors.New("requested time is not a bookable slot")
	ErrSlotBeingBooked         = errors.New("slot is currently being booked, please retry")
	ErrPatientLockedOut        = errors.New("patient is temporarily blocked from booking due to repeated no-shows")
	ErrDuplicateBooking        = errors.New("patient already holds an appointment at this slot")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	ErrCancelReasonRequired    = errors.New("cancellation reason is required")
	ErrCancelDeadlinePassed    = errors.New("cancellation notice period has passed")
	ErrNotAppointmentOwner     = errors.New("appointment belongs to another patient")
)

// Calendar is the slice of the schedule package the engine needs beyond
// slot listing.
type Calendar interface {
	IsDateAvailable(ctx context.Context, d schedule.Date) (bool, error)
	Settings(ctx context.Context) (schedule.Settings, error)
}

// Engine validates bookings against the slot grid and the ledger, and
// owns every appointment status transition. It is stateless per call;
// the Redis slot lock plus the ledger's serialized reserve close the
// check-then-act window between concurrent bookings.
type Engine struct {
	repo     Ledger
	slots    schedule.SlotLister
	calendar Calendar
	locker   redisclient.Locker
	logger   *logging.Logger
	loc      *time.Location
	now      func() time.Time
}

func NewEngine(repo Ledger, slots schedule.SlotLister, calendar Calendar, locker redisclient.Locker, logger *logging.Logger) *Engine {
	if logger == nil {
		logger = logging.Default()
	}
	return &Engine{
		repo:     repo,
		slots:    slots,
		calendar: calendar,
		locker:   locker,
		logger:   logger,
		loc:      time.Local,
		now:      time.Now,
	}
}

// WithClock overrides the clock, for tests.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// WithLocation sets the clinic's local time zone used to interpret
// slot date+time pairs as instants.
func (e *Engine) WithLocation(loc *time.Location) *Engine {
	e.loc = loc
	return e
}

// Book reserves a slot for a patient and creates a pending appointment.
// Preconditions run in a fixed order and the first failure wins.
func (e *Engine) Book(ctx context.Context, patientID uuid.UUID, d schedule.Date, t schedule.TimeOfDay, notes *string) (*Appointment, error) {
	if _, err := e.repo.GetPatientByID(ctx, patientID); err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}

	now := e.now()
	if !d.At(t, e.loc).After(now) {
		return nil, ErrPastDateTime
	}

	settings, err := e.calendar.Settings(ctx)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	if d.After(schedule.DateOf(now).AddDays(settings.AdvanceBookingDays)) {
		return nil, ErrBeyondHorizon
	}

	available, err := e.calendar.IsDateAvailable(ctx, d)
	if err != nil {
		return nil, fmt.Errorf("check date availability: %w", err)
	}
	if !available {
		return nil, ErrDateUnavailable
	}

	slots, err := e.slots.SlotsForDate(ctx, d)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	if !containsSlot(slots, t) {
		return nil, ErrSlotNotBookable
	}

	occupied, err := e.repo.CountActiveAt(ctx, d, t)
	if err != nil {
		return nil, fmt.Errorf("count slot occupancy: %w", err)
	}
	if occupied >= settings.MaxPatientsPerSlot {
		return nil, ErrSlotTaken
	}

	noShows, err := e.repo.NoShowCountSince(ctx, patientID, now.Add(-noShowLockoutWindow))
	if err != nil {
		return nil, fmt.Errorf("count no-shows: %w", err)
	}
	if noShows >= noShowLockoutThreshold {
		return nil, ErrPatientLockedOut
	}

	duplicate, err := e.repo.PatientHasActiveAt(ctx, patientID, d, t)
	if err != nil {
		return nil, fmt.Errorf("check duplicate booking: %w", err)
	}
	if duplicate {
		return nil, ErrDuplicateBooking
	}

	var created *Appointment
	err = e.locker.WithSlotLock(ctx, SlotKey(d, t), func(lockCtx context.Context) error {
		appt, err := e.repo.ReserveSlot(lockCtx, patientID, d, t, notes, settings.MaxPatientsPerSlot)
		if err != nil {
			return err
		}
		created = appt
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		if errors.Is(err, ErrSlotTaken) {
			return nil, ErrSlotTaken
		}
		return nil, fmt.Errorf("reserve slot: %w", err)
	}

	e.logEvent(ctx, created.ID, EventBookingCreated, map[string]any{
		"patient_id": patientID.String(),
		"date":       d.String(),
		"start_time": t.String(),
	})
	e.logger.Info("appointment booked", "id", created.ID, "patient_id", patientID, "slot", created.SlotKey())

	return created, nil
}

// Confirm moves a pending appointment to confirmed.
func (e *Engine) Confirm(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := e.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	if appt.Status != StatusPending {
		return nil, ErrInvalidStatusTransition
	}

	updated, err := e.repo.Confirm(ctx, id, e.now())
	if err != nil {
		// Lost a race with another transition since the load.
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrInvalidStatusTransition
		}
		return nil, fmt.Errorf("confirm appointment: %w", err)
	}

	e.logEvent(ctx, updated.ID, EventAppointmentConfirmed, map[string]any{})
	return updated, nil
}

// Complete moves a confirmed appointment to completed, optionally
// replacing the admin notes. A completed appointment is what billing
// attaches payment records to.
func (e *Engine) Complete(ctx context.Context, id uuid.UUID, adminNotes *string) (*Appointment, error) {
	appt, err := e.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	if appt.Status != StatusConfirmed {
		return nil, ErrInvalidStatusTransition
	}

	updated, err := e.repo.Complete(ctx, id, e.now(), adminNotes)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrInvalidStatusTransition
		}
		return nil, fmt.Errorf("complete appointment: %w", err)
	}

	e.logEvent(ctx, updated.ID, EventAppointmentCompleted, map[string]any{})
	return updated, nil
}

// Cancel ends an active appointment. Patient-initiated cancellations
// must respect the configured notice period; admin and system cancels
// bypass it.
func (e *Engine) Cancel(ctx context.Context, id uuid.UUID, reason string, by CancelActor) (*Appointment, error) {
	if reason == "" {
		return nil, ErrCancelReasonRequired
	}

	appt, err := e.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	if !appt.IsActive() {
		return nil, ErrInvalidStatusTransition
	}

	if by == CancelledByPatient {
		settings, err := e.calendar.Settings(ctx)
		if err != nil {
			return nil, fmt.Errorf("load settings: %w", err)
		}
		if e.now().After(e.cancellationDeadline(appt, settings)) {
			return nil, ErrCancelDeadlinePassed
		}
	}

	updated, err := e.repo.Cancel(ctx, id, e.now(), reason, by)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrInvalidStatusTransition
		}
		return nil, fmt.Errorf("cancel appointment: %w", err)
	}

	e.logEvent(ctx, updated.ID, EventAppointmentCancelled, map[string]any{
		"reason":       reason,
		"cancelled_by": string(by),
	})
	return updated, nil
}

// MarkNoShow records that a confirmed appointment was missed.
func (e *Engine) MarkNoShow(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := e.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	if appt.Status != StatusConfirmed {
		return nil, ErrInvalidStatusTransition
	}

	updated, err := e.repo.MarkNoShow(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrInvalidStatusTransition
		}
		return nil, fmt.Errorf("mark no-show: %w", err)
	}

	e.logEvent(ctx, updated.ID, EventAppointmentNoShow, map[string]any{})
	return updated, nil
}

// CanCancel is the advisory pre-check UIs call before offering a cancel
// button. It returns nil when cancellation would currently be allowed
// for the actor, or the sentinel explaining why not. Staff actors skip
// the ownership and notice-period checks.
func (e *Engine) CanCancel(ctx context.Context, id uuid.UUID, actor CancelActor, actorPatientID uuid.UUID) error {
	appt, err := e.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return fmt.Errorf("load appointment: %w", err)
	}
	if !appt.IsActive() {
		return ErrInvalidStatusTransition
	}

	now := e.now()
	if !appt.StartsAt(e.loc).After(now) {
		return ErrPastDateTime
	}

	if actor == CancelledByPatient {
		if appt.PatientID != actorPatientID {
			return ErrNotAppointmentOwner
		}
		settings, err := e.calendar.Settings(ctx)
		if err != nil {
			return fmt.Errorf("load settings: %w", err)
		}
		if now.After(e.cancellationDeadline(appt, settings)) {
			return ErrCancelDeadlinePassed
		}
	}

	return nil
}

// Purge soft-deletes an appointment. Administrative only; normal flow
// never deletes.
func (e *Engine) Purge(ctx context.Context, id uuid.UUID) error {
	if err := e.repo.SoftDelete(ctx, id, e.now()); err != nil {
		return err
	}
	e.logger.Info("appointment purged", "id", id)
	return nil
}

func (e *Engine) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := e.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return appt, nil
}

func (e *Engine) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	if limit <= 0 {
		limit = 20 // default
	}
	if limit > 100 {
		limit = 100 // max
	}
	if offset < 0 {
		offset = 0
	}

	appts, err := e.repo.ListByPatient(ctx, patientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	return appts, nil
}

// CountByStatus feeds external dashboards and reports.
func (e *Engine) CountByStatus(ctx context.Context, from, to schedule.Date) ([]StatusCount, error) {
	counts, err := e.repo.CountByStatus(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("count appointments by status: %w", err)
	}
	return counts, nil
}

// EmitDueReminders emits a REMINDER_DUE event for each of tomorrow's
// confirmed appointments that has not been reminded yet. The reminder
// worker calls it periodically; delivery belongs to the notification
// system consuming the event log.
func (e *Engine) EmitDueReminders(ctx context.Context) (int, error) {
	tomorrow := schedule.DateOf(e.now()).AddDays(1)

	due, err := e.repo.FindConfirmedUnreminded(ctx, tomorrow)
	if err != nil {
		return 0, fmt.Errorf("find reminder-due appointments: %w", err)
	}

	emitted := 0
	for _, appt := range due {
		if err := e.repo.MarkReminded(ctx, appt.ID, e.now()); err != nil {
			if errors.Is(err, ErrAppointmentNotFound) {
				continue // another worker got it first
			}
			e.logger.Warn("failed to mark appointment reminded", "id", appt.ID, "error", err)
			continue
		}
		e.logEvent(ctx, appt.ID, EventReminderDue, map[string]any{
			"date":       appt.Date.String(),
			"start_time": appt.StartTime.String(),
		})
		emitted++
	}

	return emitted, nil
}

func (e *Engine) cancellationDeadline(appt *Appointment, settings schedule.Settings) time.Time {
	return appt.StartsAt(e.loc).Add(-time.Duration(settings.CancellationHours) * time.Hour)
}

func (e *Engine) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		e.logger.Warn("failed to marshal event payload", "event", eventType, "error", err)
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     e.now(),
	}

	if err := e.repo.InsertEvent(ctx, ev); err != nil {
		e.logger.Warn("failed to insert event log", "event", eventType, "appointment_id", appointmentID, "error", err)
	}
}

func containsSlot(slots []schedule.TimeOfDay, t schedule.TimeOfDay) bool {
	for _, s := range slots {
		if s == t {
			return true
		}
	}
	return false
}
