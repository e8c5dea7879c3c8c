package booking

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinicops/clinic-scheduling/internal/schedule"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "no_show"
)

// CancelActor records who initiated a cancellation.
type CancelActor string

const (
	CancelledByPatient CancelActor = "patient"
	CancelledByAdmin   CancelActor = "admin"
	CancelledBySystem  CancelActor = "system"
)

type Appointment struct {
	ID                 uuid.UUID
	PatientID          uuid.UUID
	Date               schedule.Date
	StartTime          schedule.TimeOfDay
	Status             Status
	Notes              *string
	AdminNotes         *string
	CancellationReason *string
	CancelledBy        *CancelActor
	ConfirmedAt        *time.Time
	CompletedAt        *time.Time
	CancelledAt        *time.Time
	RemindedAt         *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
	DeletedAt          *time.Time
}

// IsActive reports whether the appointment still occupies its slot.
func (a *Appointment) IsActive() bool {
	return a.Status == StatusPending || a.Status == StatusConfirmed
}

// IsFinal reports whether the appointment reached a terminal status.
func (a *Appointment) IsFinal() bool {
	switch a.Status {
	case StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// StartsAt combines date and start time into an instant in loc.
func (a *Appointment) StartsAt(loc *time.Location) time.Time {
	return a.Date.At(a.StartTime, loc)
}

// SlotKey identifies the occupied slot, and doubles as the Redis lock key.
func (a *Appointment) SlotKey() string {
	return SlotKey(a.Date, a.StartTime)
}

func SlotKey(d schedule.Date, t schedule.TimeOfDay) string {
	return d.String() + "T" + t.String()
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// StatusCount is one row of the status report query.
type StatusCount struct {
	Status Status
	Count  int64
}
