package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/clinicops/clinic-scheduling/internal/schedule"
)

// pgDB is the subset of pgxpool.Pool the repository uses. pgxmock
// satisfies it in tests.
type pgDB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgLedger struct {
	db pgDB
}

func NewPgLedger(db pgDB) *PgLedger {
	return &PgLedger{db: db}
}

const apptColumns = `id, patient_id, date, start_time, status, notes, admin_notes,
	cancellation_reason, cancelled_by, confirmed_at, completed_at, cancelled_at,
	reminded_at, created_at, updated_at, deleted_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		a           Appointment
		date        time.Time
		startRaw    string
		status      string
		cancelledBy *string
	)

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&date,
		&startRaw,
		&status,
		&a.Notes,
		&a.AdminNotes,
		&a.CancellationReason,
		&cancelledBy,
		&a.ConfirmedAt,
		&a.CompletedAt,
		&a.CancelledAt,
		&a.RemindedAt,
		&a.CreatedAt,
		&a.UpdatedAt,
		&a.DeletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Date = schedule.DateOf(date)
	if a.StartTime, err = schedule.ParseTimeOfDay(startRaw); err != nil {
		return nil, err
	}
	a.Status = Status(status)
	if cancelledBy != nil {
		actor := CancelActor(*cancelledBy)
		a.CancelledBy = &actor
	}

	return &a, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (r *PgLedger) GetPatientByID(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	var out uuid.UUID
	err := r.db.QueryRow(ctx, `SELECT id FROM patients WHERE id = $1`, id).Scan(&out)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, ErrPatientNotFound
		}
		return uuid.Nil, err
	}
	return out, nil
}

func (r *PgLedger) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+apptColumns+`
		FROM appointments
		WHERE id = $1 AND deleted_at IS NULL
	`, id)
	return scanAppointment(row)
}

func (r *PgLedger) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+apptColumns+`
		FROM appointments
		WHERE patient_id = $1 AND deleted_at IS NULL
		ORDER BY date DESC, start_time DESC
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	return result, rows.Err()
}

func (r *PgLedger) CountActiveAt(ctx context.Context, d schedule.Date, t schedule.TimeOfDay) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM appointments
		WHERE date = $1 AND start_time = $2
		  AND status IN ('pending', 'confirmed')
		  AND deleted_at IS NULL
	`, d.UTC(), t.String()).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *PgLedger) PatientHasActiveAt(ctx context.Context, patientID uuid.UUID, d schedule.Date, t schedule.TimeOfDay) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE patient_id = $1 AND date = $2 AND start_time = $3
			  AND status IN ('pending', 'confirmed')
			  AND deleted_at IS NULL
		)
	`, patientID, d.UTC(), t.String()).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (r *PgLedger) NoShowCountSince(ctx context.Context, patientID uuid.UUID, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM appointments
		WHERE patient_id = $1
		  AND status = 'no_show'
		  AND date >= $2
		  AND deleted_at IS NULL
	`, patientID, schedule.DateOf(since).UTC()).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// ReserveSlot serializes check-and-insert per slot with an advisory
// transaction lock, so the occupancy count cannot race a concurrent
// insert even when the Redis lock is bypassed or expires mid-flight.
func (r *PgLedger) ReserveSlot(ctx context.Context, patientID uuid.UUID, d schedule.Date, t schedule.TimeOfDay, notes *string, capacity int) (*Appointment, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin reserve tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, SlotKey(d, t)); err != nil {
		return nil, fmt.Errorf("acquire slot tx lock: %w", err)
	}

	var count int
	err = tx.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM appointments
		WHERE date = $1 AND start_time = $2
		  AND status IN ('pending', 'confirmed')
		  AND deleted_at IS NULL
	`, d.UTC(), t.String()).Scan(&count)
	if err != nil {
		return nil, fmt.Errorf("count active occupants: %w", err)
	}
	if count >= capacity {
		return nil, ErrSlotTaken
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, date, start_time, status, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 'pending', $5, now(), now())
		RETURNING `+apptColumns+`
	`, uuid.New(), patientID, d.UTC(), t.String(), notes)

	appt, err := scanAppointment(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrSlotTaken
		}
		return nil, fmt.Errorf("insert pending appointment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrSlotTaken
		}
		return nil, fmt.Errorf("commit reserve tx: %w", err)
	}

	return appt, nil
}

func (r *PgLedger) Confirm(ctx context.Context, id uuid.UUID, at time.Time) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'confirmed', confirmed_at = $2, updated_at = now()
		WHERE id = $1 AND status = 'pending' AND deleted_at IS NULL
		RETURNING `+apptColumns+`
	`, id, at)
	return scanAppointment(row)
}

func (r *PgLedger) Complete(ctx context.Context, id uuid.UUID, at time.Time, adminNotes *string) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'completed',
		    completed_at = $2,
		    admin_notes = COALESCE($3, admin_notes),
		    updated_at = now()
		WHERE id = $1 AND status = 'confirmed' AND deleted_at IS NULL
		RETURNING `+apptColumns+`
	`, id, at, adminNotes)
	return scanAppointment(row)
}

func (r *PgLedger) Cancel(ctx context.Context, id uuid.UUID, at time.Time, reason string, by CancelActor) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'cancelled',
		    cancelled_at = $2,
		    cancellation_reason = $3,
		    cancelled_by = $4,
		    updated_at = now()
		WHERE id = $1 AND status IN ('pending', 'confirmed') AND deleted_at IS NULL
		RETURNING `+apptColumns+`
	`, id, at, reason, string(by))
	return scanAppointment(row)
}

func (r *PgLedger) MarkNoShow(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'no_show', updated_at = now()
		WHERE id = $1 AND status = 'confirmed' AND deleted_at IS NULL
		RETURNING `+apptColumns+`
	`, id)
	return scanAppointment(row)
}

func (r *PgLedger) SoftDelete(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE appointments
		SET deleted_at = $2, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
	`, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *PgLedger) CountByStatus(ctx context.Context, from, to schedule.Date) ([]StatusCount, error) {
	rows, err := r.db.Query(ctx, `
		SELECT status, COUNT(*)
		FROM appointments
		WHERE date BETWEEN $1 AND $2 AND deleted_at IS NULL
		GROUP BY status
		ORDER BY status
	`, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []StatusCount
	for rows.Next() {
		var (
			sc     StatusCount
			status string
		)
		if err := rows.Scan(&status, &sc.Count); err != nil {
			return nil, err
		}
		sc.Status = Status(status)
		result = append(result, sc)
	}
	return result, rows.Err()
}

func (r *PgLedger) FindConfirmedUnreminded(ctx context.Context, d schedule.Date) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+apptColumns+`
		FROM appointments
		WHERE date = $1 AND status = 'confirmed'
		  AND reminded_at IS NULL
		  AND deleted_at IS NULL
		ORDER BY start_time
	`, d.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	return result, rows.Err()
}

func (r *PgLedger) MarkReminded(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE appointments
		SET reminded_at = $2, updated_at = now()
		WHERE id = $1 AND reminded_at IS NULL
	`, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *PgLedger) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
