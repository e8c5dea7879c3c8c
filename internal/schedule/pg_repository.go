package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// pgDB is the subset of pgxpool.Pool the repository uses. pgxmock
// satisfies it in tests.
type pgDB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgRepository struct {
	db pgDB
}

func NewPgRepository(db pgDB) *PgRepository {
	return &PgRepository{db: db}
}

// Helpers

func scanSchedule(row pgx.Row) (*WeeklySchedule, error) {
	var (
		ws                   WeeklySchedule
		day                  int
		startRaw, endRaw     string
		breakStart, breakEnd *string
	)

	err := row.Scan(
		&ws.ID,
		&day,
		&startRaw,
		&endRaw,
		&breakStart,
		&breakEnd,
		&ws.IsActive,
		&ws.CreatedAt,
		&ws.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrScheduleNotFound
		}
		return nil, err
	}

	ws.DayOfWeek = time.Weekday(day)
	if ws.StartTime, err = ParseTimeOfDay(startRaw); err != nil {
		return nil, err
	}
	if ws.EndTime, err = ParseTimeOfDay(endRaw); err != nil {
		return nil, err
	}
	if breakStart != nil && breakEnd != nil {
		bs, err := ParseTimeOfDay(*breakStart)
		if err != nil {
			return nil, err
		}
		be, err := ParseTimeOfDay(*breakEnd)
		if err != nil {
			return nil, err
		}
		ws.BreakStart, ws.BreakEnd = &bs, &be
	}

	return &ws, nil
}

func scanVacation(row pgx.Row) (*Vacation, error) {
	var (
		v          Vacation
		reason     *string
		start, end time.Time
	)

	err := row.Scan(
		&v.ID,
		&v.Title,
		&reason,
		&start,
		&end,
		&v.CreatedAt,
		&v.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrVacationNotFound
		}
		return nil, err
	}

	v.Reason = reason
	v.StartDate = DateOf(start)
	v.EndDate = DateOf(end)
	return &v, nil
}

func breakStrings(ws *WeeklySchedule) (bs, be *string) {
	if ws.HasBreak() {
		s := ws.BreakStart.String()
		e := ws.BreakEnd.String()
		return &s, &e
	}
	return nil, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Interface methods

func (r *PgRepository) ActiveScheduleForWeekday(ctx context.Context, day time.Weekday) (*WeeklySchedule, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, day_of_week, start_time, end_time, break_start, break_end, is_active, created_at, updated_at
		FROM weekly_schedules
		WHERE day_of_week = $1 AND is_active
	`, int(day))
	return scanSchedule(row)
}

func (r *PgRepository) GetSchedule(ctx context.Context, id uuid.UUID) (*WeeklySchedule, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, day_of_week, start_time, end_time, break_start, break_end, is_active, created_at, updated_at
		FROM weekly_schedules
		WHERE id = $1
	`, id)
	return scanSchedule(row)
}

func (r *PgRepository) ListSchedules(ctx context.Context) ([]WeeklySchedule, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, day_of_week, start_time, end_time, break_start, break_end, is_active, created_at, updated_at
		FROM weekly_schedules
		ORDER BY day_of_week
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []WeeklySchedule
	for rows.Next() {
		ws, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ws)
	}
	return result, rows.Err()
}

func (r *PgRepository) CreateSchedule(ctx context.Context, ws *WeeklySchedule) (*WeeklySchedule, error) {
	id := uuid.New()
	bs, be := breakStrings(ws)

	row := r.db.QueryRow(ctx, `
		INSERT INTO weekly_schedules (id, day_of_week, start_time, end_time, break_start, break_end, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		RETURNING id, day_of_week, start_time, end_time, break_start, break_end, is_active, created_at, updated_at
	`, id, int(ws.DayOfWeek), ws.StartTime.String(), ws.EndTime.String(), bs, be, ws.IsActive)

	created, err := scanSchedule(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrWeekdayTaken
		}
		return nil, err
	}
	return created, nil
}

func (r *PgRepository) UpdateSchedule(ctx context.Context, ws *WeeklySchedule) (*WeeklySchedule, error) {
	bs, be := breakStrings(ws)

	row := r.db.QueryRow(ctx, `
		UPDATE weekly_schedules
		SET day_of_week = $2,
		    start_time  = $3,
		    end_time    = $4,
		    break_start = $5,
		    break_end   = $6,
		    is_active   = $7,
		    updated_at  = now()
		WHERE id = $1
		RETURNING id, day_of_week, start_time, end_time, break_start, break_end, is_active, created_at, updated_at
	`, ws.ID, int(ws.DayOfWeek), ws.StartTime.String(), ws.EndTime.String(), bs, be, ws.IsActive)

	updated, err := scanSchedule(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrWeekdayTaken
		}
		return nil, err
	}
	return updated, nil
}

func (r *PgRepository) SetScheduleActive(ctx context.Context, id uuid.UUID, active bool) (*WeeklySchedule, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE weekly_schedules
		SET is_active = $2, updated_at = now()
		WHERE id = $1
		RETURNING id, day_of_week, start_time, end_time, break_start, break_end, is_active, created_at, updated_at
	`, id, active)

	updated, err := scanSchedule(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrWeekdayTaken
		}
		return nil, err
	}
	return updated, nil
}

func (r *PgRepository) DeleteSchedule(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM weekly_schedules WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrScheduleNotFound
	}
	return nil
}

func (r *PgRepository) HasVacationOn(ctx context.Context, d Date) (bool, error) {
	var covered bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM vacations
			WHERE start_date <= $1 AND end_date >= $1
		)
	`, d.UTC()).Scan(&covered)
	if err != nil {
		return false, err
	}
	return covered, nil
}

func (r *PgRepository) ListVacations(ctx context.Context) ([]Vacation, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, title, reason, start_date, end_date, created_at, updated_at
		FROM vacations
		ORDER BY start_date
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Vacation
	for rows.Next() {
		v, err := scanVacation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *v)
	}
	return result, rows.Err()
}

func (r *PgRepository) CreateVacation(ctx context.Context, v *Vacation) (*Vacation, error) {
	id := uuid.New()

	row := r.db.QueryRow(ctx, `
		INSERT INTO vacations (id, title, reason, start_date, end_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		RETURNING id, title, reason, start_date, end_date, created_at, updated_at
	`, id, v.Title, v.Reason, v.StartDate.UTC(), v.EndDate.UTC())

	return scanVacation(row)
}

func (r *PgRepository) UpdateVacation(ctx context.Context, v *Vacation) (*Vacation, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE vacations
		SET title = $2, reason = $3, start_date = $4, end_date = $5, updated_at = now()
		WHERE id = $1
		RETURNING id, title, reason, start_date, end_date, created_at, updated_at
	`, v.ID, v.Title, v.Reason, v.StartDate.UTC(), v.EndDate.UTC())

	return scanVacation(row)
}

func (r *PgRepository) DeleteVacation(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM vacations WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrVacationNotFound
	}
	return nil
}

func (r *PgRepository) GetSettings(ctx context.Context) (Settings, error) {
	def := DefaultSettings()

	// Lazily create the singleton row on first read.
	_, err := r.db.Exec(ctx, `
		INSERT INTO clinic_settings (id, slot_duration_minutes, advance_booking_days, cancellation_hours, max_patients_per_slot, updated_at)
		VALUES (1, $1, $2, $3, $4, now())
		ON CONFLICT (id) DO NOTHING
	`, def.SlotDurationMinutes, def.AdvanceBookingDays, def.CancellationHours, def.MaxPatientsPerSlot)
	if err != nil {
		return Settings{}, fmt.Errorf("ensure clinic settings: %w", err)
	}

	var s Settings
	err = r.db.QueryRow(ctx, `
		SELECT slot_duration_minutes, advance_booking_days, cancellation_hours, max_patients_per_slot, updated_at
		FROM clinic_settings
		WHERE id = 1
	`).Scan(
		&s.SlotDurationMinutes,
		&s.AdvanceBookingDays,
		&s.CancellationHours,
		&s.MaxPatientsPerSlot,
		&s.UpdatedAt,
	)
	if err != nil {
		return Settings{}, err
	}
	return s, nil
}

func (r *PgRepository) UpdateSettings(ctx context.Context, s Settings) (Settings, error) {
	var out Settings
	err := r.db.QueryRow(ctx, `
		INSERT INTO clinic_settings (id, slot_duration_minutes, advance_booking_days, cancellation_hours, max_patients_per_slot, updated_at)
		VALUES (1, $1, $2, $3, $4, now())
		ON CONFLICT (id) DO UPDATE
		SET slot_duration_minutes = EXCLUDED.slot_duration_minutes,
		    advance_booking_days  = EXCLUDED.advance_booking_days,
		    cancellation_hours    = EXCLUDED.cancellation_hours,
		    max_patients_per_slot = EXCLUDED.max_patients_per_slot,
		    updated_at            = now()
		RETURNING slot_duration_minutes, advance_booking_days, cancellation_hours, max_patients_per_slot, updated_at
	`, s.SlotDurationMinutes, s.AdvanceBookingDays, s.CancellationHours, s.MaxPatientsPerSlot).Scan(
		&out.SlotDurationMinutes,
		&out.AdvanceBookingDays,
		&out.CancellationHours,
		&out.MaxPatientsPerSlot,
		&out.UpdatedAt,
	)
	if err != nil {
		return Settings{}, err
	}
	return out, nil
}
