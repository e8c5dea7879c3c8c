package booking

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/clinicops/clinic-scheduling/internal/schedule"
)

// fakeLedger is an in-memory Ledger mirroring the Postgres semantics:
// compare-and-swap transitions report ErrAppointmentNotFound on a miss,
// and active means pending or confirmed and not soft-deleted.
type fakeLedger struct {
	patients map[uuid.UUID]bool
	appts    map[uuid.UUID]*Appointment
	events   []EventLog
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		patients: map[uuid.UUID]bool{},
		appts:    map[uuid.UUID]*Appointment{},
	}
}

func (f *fakeLedger) addPatient() uuid.UUID {
	id := uuid.New()
	f.patients[id] = true
	return id
}

func (f *fakeLedger) addAppointment(a Appointment) *Appointment {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	f.appts[a.ID] = &a
	return &a
}

func (f *fakeLedger) eventTypes() []string {
	out := make([]string, 0, len(f.events))
	for _, ev := range f.events {
		out = append(out, ev.EventType)
	}
	return out
}

func (f *fakeLedger) GetPatientByID(_ context.Context, id uuid.UUID) (uuid.UUID, error) {
	if !f.patients[id] {
		return uuid.Nil, ErrPatientNotFound
	}
	return id, nil
}

func (f *fakeLedger) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	a, ok := f.appts[id]
	if !ok || a.DeletedAt != nil {
		return nil, ErrAppointmentNotFound
	}
	copied := *a
	return &copied, nil
}

func (f *fakeLedger) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	var out []Appointment
	for _, a := range f.appts {
		if a.PatientID == patientID && a.DeletedAt == nil {
			out = append(out, *a)
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeLedger) CountActiveAt(_ context.Context, d schedule.Date, t schedule.TimeOfDay) (int, error) {
	n := 0
	for _, a := range f.appts {
		if a.Date == d && a.StartTime == t && a.IsActive() && a.DeletedAt == nil {
			n++
		}
	}
	return n, nil
}

func (f *fakeLedger) PatientHasActiveAt(_ context.Context, patientID uuid.UUID, d schedule.Date, t schedule.TimeOfDay) (bool, error) {
	for _, a := range f.appts {
		if a.PatientID == patientID && a.Date == d && a.StartTime == t && a.IsActive() && a.DeletedAt == nil {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeLedger) NoShowCountSince(_ context.Context, patientID uuid.UUID, since time.Time) (int, error) {
	cutoff := schedule.DateOf(since)
	n := 0
	for _, a := range f.appts {
		if a.PatientID == patientID && a.Status == StatusNoShow && a.DeletedAt == nil && !a.Date.Before(cutoff) {
			n++
		}
	}
	return n, nil
}

func (f *fakeLedger) ReserveSlot(ctx context.Context, patientID uuid.UUID, d schedule.Date, t schedule.TimeOfDay, notes *string, capacity int) (*Appointment, error) {
	occupied, _ := f.CountActiveAt(ctx, d, t)
	if occupied >= capacity {
		return nil, ErrSlotTaken
	}
	now := time.Now()
	return f.addAppointment(Appointment{
		PatientID: patientID,
		Date:      d,
		StartTime: t,
		Status:    StatusPending,
		Notes:     notes,
		CreatedAt: now,
		UpdatedAt: now,
	}), nil
}

func (f *fakeLedger) transition(id uuid.UUID, from Status, apply func(a *Appointment)) (*Appointment, error) {
	a, ok := f.appts[id]
	if !ok || a.DeletedAt != nil || a.Status != from {
		return nil, ErrAppointmentNotFound
	}
	apply(a)
	copied := *a
	return &copied, nil
}

func (f *fakeLedger) Confirm(_ context.Context, id uuid.UUID, at time.Time) (*Appointment, error) {
	return f.transition(id, StatusPending, func(a *Appointment) {
		a.Status = StatusConfirmed
		a.ConfirmedAt = &at
		a.UpdatedAt = at
	})
}

func (f *fakeLedger) Complete(_ context.Context, id uuid.UUID, at time.Time, adminNotes *string) (*Appointment, error) {
	return f.transition(id, StatusConfirmed, func(a *Appointment) {
		a.Status = StatusCompleted
		a.CompletedAt = &at
		if adminNotes != nil {
			a.AdminNotes = adminNotes
		}
		a.UpdatedAt = at
	})
}

func (f *fakeLedger) Cancel(_ context.Context, id uuid.UUID, at time.Time, reason string, by CancelActor) (*Appointment, error) {
	a, ok := f.appts[id]
	if !ok || a.DeletedAt != nil || !a.IsActive() {
		return nil, ErrAppointmentNotFound
	}
	a.Status = StatusCancelled
	a.CancelledAt = &at
	a.CancellationReason = &reason
	a.CancelledBy = &by
	a.UpdatedAt = at
	copied := *a
	return &copied, nil
}

func (f *fakeLedger) MarkNoShow(_ context.Context, id uuid.UUID) (*Appointment, error) {
	return f.transition(id, StatusConfirmed, func(a *Appointment) {
		a.Status = StatusNoShow
		a.UpdatedAt = time.Now()
	})
}

func (f *fakeLedger) SoftDelete(_ context.Context, id uuid.UUID, at time.Time) error {
	a, ok := f.appts[id]
	if !ok || a.DeletedAt != nil {
		return ErrAppointmentNotFound
	}
	a.DeletedAt = &at
	return nil
}

func (f *fakeLedger) CountByStatus(_ context.Context, from, to schedule.Date) ([]StatusCount, error) {
	counts := map[Status]int64{}
	for _, a := range f.appts {
		if a.DeletedAt == nil && !a.Date.Before(from) && !a.Date.After(to) {
			counts[a.Status]++
		}
	}
	var out []StatusCount
	for status, n := range counts {
		out = append(out, StatusCount{Status: status, Count: n})
	}
	return out, nil
}

func (f *fakeLedger) FindConfirmedUnreminded(_ context.Context, d schedule.Date) ([]Appointment, error) {
	var out []Appointment
	for _, a := range f.appts {
		if a.Date == d && a.Status == StatusConfirmed && a.RemindedAt == nil && a.DeletedAt == nil {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (f *fakeLedger) MarkReminded(_ context.Context, id uuid.UUID, at time.Time) error {
	a, ok := f.appts[id]
	if !ok || a.DeletedAt != nil || a.RemindedAt != nil {
		return ErrAppointmentNotFound
	}
	a.RemindedAt = &at
	return nil
}

func (f *fakeLedger) InsertEvent(_ context.Context, ev EventLog) error {
	ev.ID = int64(len(f.events) + 1)
	f.events = append(f.events, ev)
	return nil
}
