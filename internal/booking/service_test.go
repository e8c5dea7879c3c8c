package booking

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisclient "github.com/clinicops/clinic-scheduling/internal/redis"
	"github.com/clinicops/clinic-scheduling/internal/schedule"
)

var engineNow = time.Date(2025, time.June, 10, 8, 0, 0, 0, time.UTC)

// bookDate is two days out, well inside the default booking horizon.
var (
	bookDate = schedule.Date{Year: 2025, Month: time.June, Day: 12}
	bookTime = schedule.TimeOfDay(9 * 60)
)

type fakeCalendar struct {
	settings    schedule.Settings
	unavailable map[schedule.Date]bool
}

func (c *fakeCalendar) IsDateAvailable(_ context.Context, d schedule.Date) (bool, error) {
	return !c.unavailable[d], nil
}

func (c *fakeCalendar) Settings(context.Context) (schedule.Settings, error) {
	return c.settings, nil
}

type fakeSlots struct {
	grid map[schedule.Date][]schedule.TimeOfDay
}

func (s *fakeSlots) SlotsForDate(_ context.Context, d schedule.Date) ([]schedule.TimeOfDay, error) {
	return s.grid[d], nil
}

// passLocker runs the critical section inline and records slot keys.
type passLocker struct {
	err  error
	keys []string
}

func (l *passLocker) WithSlotLock(ctx context.Context, slotKey string, fn func(ctx context.Context) error) error {
	l.keys = append(l.keys, slotKey)
	if l.err != nil {
		return l.err
	}
	return fn(ctx)
}

type engineFixture struct {
	engine   *Engine
	ledger   *fakeLedger
	calendar *fakeCalendar
	slots    *fakeSlots
	locker   *passLocker
}

func newEngineFixture() *engineFixture {
	ledger := newFakeLedger()
	calendar := &fakeCalendar{
		settings:    schedule.DefaultSettings(),
		unavailable: map[schedule.Date]bool{},
	}
	slots := &fakeSlots{grid: map[schedule.Date][]schedule.TimeOfDay{
		bookDate: {bookTime, bookTime.Add(30), bookTime.Add(60)},
	}}
	locker := &passLocker{}

	engine := NewEngine(ledger, slots, calendar, locker, nil).
		WithClock(func() time.Time { return engineNow }).
		WithLocation(time.UTC)

	return &engineFixture{
		engine:   engine,
		ledger:   ledger,
		calendar: calendar,
		slots:    slots,
		locker:   locker,
	}
}

func TestBook_HappyPath(t *testing.T) {
	fx := newEngineFixture()
	patientID := fx.ledger.addPatient()
	notes := "first visit"

	appt, err := fx.engine.Book(context.Background(), patientID, bookDate, bookTime, &notes)
	require.NoError(t, err)

	assert.Equal(t, StatusPending, appt.Status)
	assert.Equal(t, patientID, appt.PatientID)
	assert.Equal(t, bookDate, appt.Date)
	assert.Equal(t, bookTime, appt.StartTime)
	require.NotNil(t, appt.Notes)
	assert.Equal(t, "first visit", *appt.Notes)

	assert.Equal(t, []string{SlotKey(bookDate, bookTime)}, fx.locker.keys)
	assert.Equal(t, []string{EventBookingCreated}, fx.ledger.eventTypes())
}

func TestBook_UnknownPatient(t *testing.T) {
	fx := newEngineFixture()

	_, err := fx.engine.Book(context.Background(), uuid404(), bookDate, bookTime, nil)
	assert.ErrorIs(t, err, ErrPatientNotFound)
	assert.Empty(t, fx.ledger.appts)
}

func TestBook_PastDateTime(t *testing.T) {
	fx := newEngineFixture()
	patientID := fx.ledger.addPatient()

	yesterday := schedule.DateOf(engineNow).AddDays(-1)
	_, err := fx.engine.Book(context.Background(), patientID, yesterday, bookTime, nil)
	assert.ErrorIs(t, err, ErrPastDateTime)

	// Earlier today is also in the past, even though the date matches.
	today := schedule.DateOf(engineNow)
	_, err = fx.engine.Book(context.Background(), patientID, today, schedule.TimeOfDay(7*60), nil)
	assert.ErrorIs(t, err, ErrPastDateTime)
}

func TestBook_BeyondHorizon(t *testing.T) {
	fx := newEngineFixture()
	patientID := fx.ledger.addPatient()

	horizon := fx.calendar.settings.AdvanceBookingDays
	tooFar := schedule.DateOf(engineNow).AddDays(horizon + 1)
	fx.slots.grid[tooFar] = []schedule.TimeOfDay{bookTime}

	_, err := fx.engine.Book(context.Background(), patientID, tooFar, bookTime, nil)
	assert.ErrorIs(t, err, ErrBeyondHorizon)

	// The horizon day itself is bookable.
	edge := schedule.DateOf(engineNow).AddDays(horizon)
	fx.slots.grid[edge] = []schedule.TimeOfDay{bookTime}
	_, err = fx.engine.Book(context.Background(), patientID, edge, bookTime, nil)
	assert.NoError(t, err)
}

func TestBook_DateUnavailable(t *testing.T) {
	fx := newEngineFixture()
	patientID := fx.ledger.addPatient()
	fx.calendar.unavailable[bookDate] = true

	_, err := fx.engine.Book(context.Background(), patientID, bookDate, bookTime, nil)
	assert.ErrorIs(t, err, ErrDateUnavailable)
}

func TestBook_OffGridTime(t *testing.T) {
	fx := newEngineFixture()
	patientID := fx.ledger.addPatient()

	_, err := fx.engine.Book(context.Background(), patientID, bookDate, bookTime.Add(15), nil)
	assert.ErrorIs(t, err, ErrSlotNotBookable)
}

func TestBook_SlotAtCapacity(t *testing.T) {
	fx := newEngineFixture()
	first := fx.ledger.addPatient()
	second := fx.ledger.addPatient()

	_, err := fx.engine.Book(context.Background(), first, bookDate, bookTime, nil)
	require.NoError(t, err)

	_, err = fx.engine.Book(context.Background(), second, bookDate, bookTime, nil)
	assert.ErrorIs(t, err, ErrSlotTaken)
}

func TestBook_CapacityAboveOne(t *testing.T) {
	fx := newEngineFixture()
	fx.calendar.settings.MaxPatientsPerSlot = 2
	first := fx.ledger.addPatient()
	second := fx.ledger.addPatient()
	third := fx.ledger.addPatient()
	ctx := context.Background()

	_, err := fx.engine.Book(ctx, first, bookDate, bookTime, nil)
	require.NoError(t, err)
	_, err = fx.engine.Book(ctx, second, bookDate, bookTime, nil)
	require.NoError(t, err)

	_, err = fx.engine.Book(ctx, third, bookDate, bookTime, nil)
	assert.ErrorIs(t, err, ErrSlotTaken)
}

func TestBook_CancelledAppointmentFreesSlot(t *testing.T) {
	fx := newEngineFixture()
	first := fx.ledger.addPatient()
	second := fx.ledger.addPatient()
	ctx := context.Background()

	appt, err := fx.engine.Book(ctx, first, bookDate, bookTime, nil)
	require.NoError(t, err)
	_, err = fx.engine.Cancel(ctx, appt.ID, "can't make it", CancelledByPatient)
	require.NoError(t, err)

	_, err = fx.engine.Book(ctx, second, bookDate, bookTime, nil)
	assert.NoError(t, err)
}

func TestBook_NoShowLockout(t *testing.T) {
	fx := newEngineFixture()
	patientID := fx.ledger.addPatient()

	recent := schedule.DateOf(engineNow)
	for i := 1; i <= 2; i++ {
		fx.ledger.addAppointment(Appointment{
			PatientID: patientID,
			Date:      recent.AddDays(-i),
			StartTime: bookTime,
			Status:    StatusNoShow,
		})
	}

	// Two recent no-shows: still allowed.
	_, err := fx.engine.Book(context.Background(), patientID, bookDate, bookTime, nil)
	require.NoError(t, err)

	fx.ledger.addAppointment(Appointment{
		PatientID: patientID,
		Date:      recent.AddDays(-3),
		StartTime: bookTime,
		Status:    StatusNoShow,
	})

	_, err = fx.engine.Book(context.Background(), patientID, bookDate, bookTime.Add(30), nil)
	assert.ErrorIs(t, err, ErrPatientLockedOut)
}

func TestBook_NoShowsAgeOut(t *testing.T) {
	fx := newEngineFixture()
	patientID := fx.ledger.addPatient()

	recent := schedule.DateOf(engineNow)
	fx.ledger.addAppointment(Appointment{
		PatientID: patientID, Date: recent.AddDays(-1), StartTime: bookTime, Status: StatusNoShow,
	})
	fx.ledger.addAppointment(Appointment{
		PatientID: patientID, Date: recent.AddDays(-2), StartTime: bookTime, Status: StatusNoShow,
	})
	// Outside the trailing window, so it no longer counts.
	fx.ledger.addAppointment(Appointment{
		PatientID: patientID, Date: recent.AddDays(-45), StartTime: bookTime, Status: StatusNoShow,
	})

	_, err := fx.engine.Book(context.Background(), patientID, bookDate, bookTime, nil)
	assert.NoError(t, err)
}

func TestBook_DuplicateSlot(t *testing.T) {
	fx := newEngineFixture()
	fx.calendar.settings.MaxPatientsPerSlot = 5
	patientID := fx.ledger.addPatient()
	ctx := context.Background()

	_, err := fx.engine.Book(ctx, patientID, bookDate, bookTime, nil)
	require.NoError(t, err)

	_, err = fx.engine.Book(ctx, patientID, bookDate, bookTime, nil)
	assert.ErrorIs(t, err, ErrDuplicateBooking)
}

func TestBook_LockContention(t *testing.T) {
	fx := newEngineFixture()
	patientID := fx.ledger.addPatient()
	fx.locker.err = redisclient.ErrLockNotAcquired

	_, err := fx.engine.Book(context.Background(), patientID, bookDate, bookTime, nil)
	assert.ErrorIs(t, err, ErrSlotBeingBooked)
	assert.Empty(t, fx.ledger.appts)
}

func TestConfirm(t *testing.T) {
	fx := newEngineFixture()
	patientID := fx.ledger.addPatient()

	appt, err := fx.engine.Book(context.Background(), patientID, bookDate, bookTime, nil)
	require.NoError(t, err)

	confirmed, err := fx.engine.Confirm(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, confirmed.Status)
	require.NotNil(t, confirmed.ConfirmedAt)
	assert.Equal(t, engineNow, *confirmed.ConfirmedAt)

	// Already confirmed: no second transition.
	_, err = fx.engine.Confirm(context.Background(), appt.ID)
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)
}

func TestComplete(t *testing.T) {
	fx := newEngineFixture()
	patientID := fx.ledger.addPatient()
	ctx := context.Background()

	appt, err := fx.engine.Book(ctx, patientID, bookDate, bookTime, nil)
	require.NoError(t, err)

	// Pending appointments cannot complete; confirmation comes first.
	_, err = fx.engine.Complete(ctx, appt.ID, nil)
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)

	_, err = fx.engine.Confirm(ctx, appt.ID)
	require.NoError(t, err)

	adminNotes := "follow-up in 6 months"
	done, err := fx.engine.Complete(ctx, appt.ID, &adminNotes)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)
	require.NotNil(t, done.AdminNotes)
	assert.Equal(t, adminNotes, *done.AdminNotes)
	require.NotNil(t, done.CompletedAt)
}

func TestCancel_RequiresReason(t *testing.T) {
	fx := newEngineFixture()
	_, err := fx.engine.Cancel(context.Background(), uuid404(), "", CancelledByPatient)
	assert.ErrorIs(t, err, ErrCancelReasonRequired)
}

func TestCancel_PendingAndConfirmed(t *testing.T) {
	fx := newEngineFixture()
	fx.calendar.settings.MaxPatientsPerSlot = 2
	patientA := fx.ledger.addPatient()
	patientB := fx.ledger.addPatient()
	ctx := context.Background()

	pending, err := fx.engine.Book(ctx, patientA, bookDate, bookTime, nil)
	require.NoError(t, err)
	confirmed, err := fx.engine.Book(ctx, patientB, bookDate, bookTime, nil)
	require.NoError(t, err)
	_, err = fx.engine.Confirm(ctx, confirmed.ID)
	require.NoError(t, err)

	got, err := fx.engine.Cancel(ctx, pending.ID, "schedule conflict", CancelledByPatient)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
	require.NotNil(t, got.CancelledBy)
	assert.Equal(t, CancelledByPatient, *got.CancelledBy)
	require.NotNil(t, got.CancellationReason)
	assert.Equal(t, "schedule conflict", *got.CancellationReason)

	_, err = fx.engine.Cancel(ctx, confirmed.ID, "clinic closure", CancelledByAdmin)
	require.NoError(t, err)
}

func TestCancel_TerminalStatus(t *testing.T) {
	fx := newEngineFixture()
	patientID := fx.ledger.addPatient()
	ctx := context.Background()

	appt, err := fx.engine.Book(ctx, patientID, bookDate, bookTime, nil)
	require.NoError(t, err)
	_, err = fx.engine.Confirm(ctx, appt.ID)
	require.NoError(t, err)
	_, err = fx.engine.Complete(ctx, appt.ID, nil)
	require.NoError(t, err)

	_, err = fx.engine.Cancel(ctx, appt.ID, "too late", CancelledByAdmin)
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)
}

func TestCancel_PatientDeadline(t *testing.T) {
	fx := newEngineFixture()
	patientID := fx.ledger.addPatient()
	ctx := context.Background()

	// Starts 10 hours from now; the default notice period is 24 hours.
	today := schedule.DateOf(engineNow)
	soon := schedule.TimeOfDay(18 * 60)
	fx.slots.grid[today] = []schedule.TimeOfDay{soon}

	appt, err := fx.engine.Book(ctx, patientID, today, soon, nil)
	require.NoError(t, err)

	_, err = fx.engine.Cancel(ctx, appt.ID, "changed my mind", CancelledByPatient)
	assert.ErrorIs(t, err, ErrCancelDeadlinePassed)

	// Admins are not bound by the notice period.
	got, err := fx.engine.Cancel(ctx, appt.ID, "provider sick", CancelledByAdmin)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
}

func TestMarkNoShow(t *testing.T) {
	fx := newEngineFixture()
	patientID := fx.ledger.addPatient()
	ctx := context.Background()

	appt, err := fx.engine.Book(ctx, patientID, bookDate, bookTime, nil)
	require.NoError(t, err)

	// Only confirmed appointments can be marked as missed.
	_, err = fx.engine.MarkNoShow(ctx, appt.ID)
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)

	_, err = fx.engine.Confirm(ctx, appt.ID)
	require.NoError(t, err)

	missed, err := fx.engine.MarkNoShow(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusNoShow, missed.Status)

	assert.Equal(t,
		[]string{EventBookingCreated, EventAppointmentConfirmed, EventAppointmentNoShow},
		fx.ledger.eventTypes())
}

func TestCanCancel(t *testing.T) {
	fx := newEngineFixture()
	owner := fx.ledger.addPatient()
	stranger := fx.ledger.addPatient()
	ctx := context.Background()

	appt, err := fx.engine.Book(ctx, owner, bookDate, bookTime, nil)
	require.NoError(t, err)

	assert.NoError(t, fx.engine.CanCancel(ctx, appt.ID, CancelledByPatient, owner))
	assert.ErrorIs(t, fx.engine.CanCancel(ctx, appt.ID, CancelledByPatient, stranger), ErrNotAppointmentOwner)

	// Staff skip the ownership check.
	assert.NoError(t, fx.engine.CanCancel(ctx, appt.ID, CancelledByAdmin, stranger))
}

func TestCanCancel_DeadlineAndPast(t *testing.T) {
	fx := newEngineFixture()
	patientID := fx.ledger.addPatient()
	ctx := context.Background()

	inside := fx.ledger.addAppointment(Appointment{
		PatientID: patientID,
		Date:      schedule.DateOf(engineNow),
		StartTime: schedule.TimeOfDay(18 * 60),
		Status:    StatusConfirmed,
	})
	assert.ErrorIs(t, fx.engine.CanCancel(ctx, inside.ID, CancelledByPatient, patientID), ErrCancelDeadlinePassed)
	assert.NoError(t, fx.engine.CanCancel(ctx, inside.ID, CancelledByAdmin, patientID))

	past := fx.ledger.addAppointment(Appointment{
		PatientID: patientID,
		Date:      schedule.DateOf(engineNow).AddDays(-1),
		StartTime: bookTime,
		Status:    StatusConfirmed,
	})
	assert.ErrorIs(t, fx.engine.CanCancel(ctx, past.ID, CancelledByAdmin, patientID), ErrPastDateTime)

	done := fx.ledger.addAppointment(Appointment{
		PatientID: patientID,
		Date:      bookDate,
		StartTime: bookTime,
		Status:    StatusCompleted,
	})
	assert.ErrorIs(t, fx.engine.CanCancel(ctx, done.ID, CancelledByAdmin, patientID), ErrInvalidStatusTransition)
}

func TestEmitDueReminders(t *testing.T) {
	fx := newEngineFixture()
	patientID := fx.ledger.addPatient()
	tomorrow := schedule.DateOf(engineNow).AddDays(1)

	due := fx.ledger.addAppointment(Appointment{
		PatientID: patientID, Date: tomorrow, StartTime: bookTime, Status: StatusConfirmed,
	})
	fx.ledger.addAppointment(Appointment{
		PatientID: patientID, Date: tomorrow, StartTime: bookTime.Add(30), Status: StatusPending,
	})
	already := engineNow.Add(-time.Hour)
	fx.ledger.addAppointment(Appointment{
		PatientID: patientID, Date: tomorrow, StartTime: bookTime.Add(60),
		Status: StatusConfirmed, RemindedAt: &already,
	})
	fx.ledger.addAppointment(Appointment{
		PatientID: patientID, Date: tomorrow.AddDays(1), StartTime: bookTime, Status: StatusConfirmed,
	})

	emitted, err := fx.engine.EmitDueReminders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, emitted)
	assert.Equal(t, []string{EventReminderDue}, fx.ledger.eventTypes())
	require.NotNil(t, fx.ledger.appts[due.ID].RemindedAt)

	// A second sweep finds nothing new.
	emitted, err = fx.engine.EmitDueReminders(context.Background())
	require.NoError(t, err)
	assert.Zero(t, emitted)
}

func TestPurge(t *testing.T) {
	fx := newEngineFixture()
	patientID := fx.ledger.addPatient()
	ctx := context.Background()

	appt, err := fx.engine.Book(ctx, patientID, bookDate, bookTime, nil)
	require.NoError(t, err)

	require.NoError(t, fx.engine.Purge(ctx, appt.ID))

	_, err = fx.engine.GetAppointment(ctx, appt.ID)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)

	// Purging twice is a not-found, not a silent no-op.
	assert.ErrorIs(t, fx.engine.Purge(ctx, appt.ID), ErrAppointmentNotFound)
}

func TestListByPatient_ClampsLimit(t *testing.T) {
	fx := newEngineFixture()
	patientID := fx.ledger.addPatient()

	for i := 0; i < 25; i++ {
		fx.ledger.addAppointment(Appointment{
			PatientID: patientID,
			Date:      bookDate.AddDays(i),
			StartTime: bookTime,
			Status:    StatusCompleted,
		})
	}

	appts, err := fx.engine.ListByPatient(context.Background(), patientID, 0, 0)
	require.NoError(t, err)
	assert.Len(t, appts, 20, "zero limit falls back to the default page size")

	appts, err = fx.engine.ListByPatient(context.Background(), patientID, 1000, 0)
	require.NoError(t, err)
	assert.Len(t, appts, 25, "oversized limit is capped, not rejected")
}

func uuid404() uuid.UUID {
	return uuid.MustParse("00000000-0000-0000-0000-0000000000ff")
}
