package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/clinicops/clinic-scheduling/internal/schedule"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrPatientNotFound     = errors.New("patient not found")

	// ErrSlotTaken is also the commit-time translation of a storage
	// uniqueness conflict, so a lost race reports the same way as a
	// failed occupancy precheck.
	ErrSlotTaken = errors.New("slot is fully booked")
)

// Ledger contains all DB interactions needed by the booking engine.
// Active means status pending or confirmed and not soft-deleted.
type Ledger interface {
	GetPatientByID(ctx context.Context, id uuid.UUID) (uuid.UUID, error)

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error)

	// Occupancy and eligibility reads
	CountActiveAt(ctx context.Context, d schedule.Date, t schedule.TimeOfDay) (int, error)
	PatientHasActiveAt(ctx context.Context, patientID uuid.UUID, d schedule.Date, t schedule.TimeOfDay) (bool, error)
	NoShowCountSince(ctx context.Context, patientID uuid.UUID, since time.Time) (int, error)

	// ReserveSlot inserts a pending appointment inside a serializing
	// transaction that re-counts active occupants for the slot.
	// Returns ErrSlotTaken when the slot is at capacity.
	ReserveSlot(ctx context.Context, patientID uuid.UUID, d schedule.Date, t schedule.TimeOfDay, notes *string, capacity int) (*Appointment, error)

	// Compare-and-swap transitions; each matches only the legal source
	// status and reports ErrAppointmentNotFound on a miss.
	Confirm(ctx context.Context, id uuid.UUID, at time.Time) (*Appointment, error)
	Complete(ctx context.Context, id uuid.UUID, at time.Time, adminNotes *string) (*Appointment, error)
	Cancel(ctx context.Context, id uuid.UUID, at time.Time, reason string, by CancelActor) (*Appointment, error)
	MarkNoShow(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// SoftDelete excludes the appointment from all active queries.
	SoftDelete(ctx context.Context, id uuid.UUID, at time.Time) error

	// Reporting
	CountByStatus(ctx context.Context, from, to schedule.Date) ([]StatusCount, error)

	// Reminders
	FindConfirmedUnreminded(ctx context.Context, d schedule.Date) ([]Appointment, error)
	MarkReminded(ctx context.Context, id uuid.UUID, at time.Time) error

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}
