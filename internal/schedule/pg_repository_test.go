package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var scheduleColumns = []string{
	"id", "day_of_week", "start_time", "end_time", "break_start", "break_end",
	"is_active", "created_at", "updated_at",
}

func newRepoMock(t *testing.T) (pgxmock.PgxPoolIface, *PgRepository) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, NewPgRepository(mock)
}

func TestPgRepository_ActiveScheduleForWeekday(t *testing.T) {
	mock, repo := newRepoMock(t)
	id := uuid.New()
	now := time.Now()

	breakStart, breakEnd := "13:00", "14:00"
	mock.ExpectQuery(`SELECT (.+) FROM weekly_schedules\s+WHERE day_of_week = \$1 AND is_active`).
		WithArgs(int(time.Monday)).
		WillReturnRows(pgxmock.NewRows(scheduleColumns).
			AddRow(id, 1, "09:00", "17:00", &breakStart, &breakEnd, true, now, now))

	ws, err := repo.ActiveScheduleForWeekday(context.Background(), time.Monday)
	require.NoError(t, err)
	assert.Equal(t, id, ws.ID)
	assert.Equal(t, time.Monday, ws.DayOfWeek)
	assert.Equal(t, "09:00", ws.StartTime.String())
	assert.Equal(t, "17:00", ws.EndTime.String())
	require.True(t, ws.HasBreak())
	assert.Equal(t, "13:00", ws.BreakStart.String())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgRepository_ActiveScheduleForWeekday_NotFound(t *testing.T) {
	mock, repo := newRepoMock(t)

	mock.ExpectQuery(`SELECT (.+) FROM weekly_schedules`).
		WithArgs(int(time.Sunday)).
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.ActiveScheduleForWeekday(context.Background(), time.Sunday)
	assert.ErrorIs(t, err, ErrScheduleNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgRepository_CreateSchedule_WeekdayTaken(t *testing.T) {
	mock, repo := newRepoMock(t)

	mock.ExpectQuery(`INSERT INTO weekly_schedules`).
		WithArgs(pgxmock.AnyArg(), 1, "09:00", "17:00", (*string)(nil), (*string)(nil), true).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	_, err := repo.CreateSchedule(context.Background(), &WeeklySchedule{
		DayOfWeek: time.Monday,
		StartTime: TimeOfDay(9 * 60),
		EndTime:   TimeOfDay(17 * 60),
		IsActive:  true,
	})
	assert.ErrorIs(t, err, ErrWeekdayTaken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgRepository_HasVacationOn(t *testing.T) {
	mock, repo := newRepoMock(t)
	d := Date{Year: 2025, Month: time.June, Day: 15}

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(d.UTC()).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	covered, err := repo.HasVacationOn(context.Background(), d)
	require.NoError(t, err)
	assert.True(t, covered)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgRepository_GetSettings_LazyCreate(t *testing.T) {
	mock, repo := newRepoMock(t)
	def := DefaultSettings()
	now := time.Now()

	mock.ExpectExec(`INSERT INTO clinic_settings`).
		WithArgs(def.SlotDurationMinutes, def.AdvanceBookingDays, def.CancellationHours, def.MaxPatientsPerSlot).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(`SELECT slot_duration_minutes`).
		WillReturnRows(pgxmock.NewRows([]string{
			"slot_duration_minutes", "advance_booking_days", "cancellation_hours", "max_patients_per_slot", "updated_at",
		}).AddRow(30, 30, 24, 1, now))

	s, err := repo.GetSettings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 30, s.SlotDurationMinutes)
	assert.Equal(t, 1, s.MaxPatientsPerSlot)
	assert.NoError(t, mock.ExpectationsWereMet())
}
