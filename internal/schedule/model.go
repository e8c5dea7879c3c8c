package schedule

import (
	"time"

	"github.com/google/uuid"
)

// WeeklySchedule is the availability window for one weekday, with an
// optional mid-day break. At most one active row exists per weekday.
type WeeklySchedule struct {
	ID         uuid.UUID
	DayOfWeek  time.Weekday
	StartTime  TimeOfDay
	EndTime    TimeOfDay
	BreakStart *TimeOfDay
	BreakEnd   *TimeOfDay
	IsActive   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (ws *WeeklySchedule) HasBreak() bool {
	return ws.BreakStart != nil && ws.BreakEnd != nil
}

// Vacation blanks out availability for an inclusive date range,
// regardless of the weekly schedule.
type Vacation struct {
	ID        uuid.UUID
	Title     string
	Reason    *string
	StartDate Date
	EndDate   Date
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Covers reports whether d falls within the vacation range, both ends inclusive.
func (v *Vacation) Covers(d Date) bool {
	return !d.Before(v.StartDate) && !d.After(v.EndDate)
}

// Settings is the clinic-wide booking configuration. A single row backs
// it; reads lazily create the row with defaults.
type Settings struct {
	SlotDurationMinutes int
	AdvanceBookingDays  int
	CancellationHours   int
	MaxPatientsPerSlot  int
	UpdatedAt           time.Time
}

// DefaultSettings are written on first read.
func DefaultSettings() Settings {
	return Settings{
		SlotDurationMinutes: 30,
		AdvanceBookingDays:  30,
		CancellationHours:   24,
		MaxPatientsPerSlot:  1,
	}
}
