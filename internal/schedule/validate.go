package schedule

import (
	"errors"
)

var (
	ErrInvalidWindow     = errors.New("end time must be after start time")
	ErrInvalidBreak      = errors.New("break must be a valid window inside the working window")
	ErrHalfBreak         = errors.New("break start and break end must both be set or both be empty")
	ErrWeekdayTaken      = errors.New("an active schedule already exists for this weekday")
	ErrVacationBackwards = errors.New("vacation end date must not be before start date")
	ErrVacationInPast    = errors.New("vacation start date must not be in the past")
	ErrInvalidSettings   = errors.New("invalid clinic settings")
)

// ValidateWeeklySchedule checks window ordering and break placement.
// The one-active-row-per-weekday rule is enforced separately at the
// storage layer, since it spans rows.
func ValidateWeeklySchedule(ws *WeeklySchedule) error {
	if !ws.StartTime.Valid() || !ws.EndTime.Valid() {
		return ErrInvalidWindow
	}
	if ws.EndTime <= ws.StartTime {
		return ErrInvalidWindow
	}
	if (ws.BreakStart == nil) != (ws.BreakEnd == nil) {
		return ErrHalfBreak
	}
	if ws.HasBreak() {
		bs, be := *ws.BreakStart, *ws.BreakEnd
		if !bs.Valid() || !be.Valid() || be <= bs {
			return ErrInvalidBreak
		}
		if bs < ws.StartTime || be > ws.EndTime {
			return ErrInvalidBreak
		}
	}
	return nil
}

// ValidateVacation checks range ordering and, when requireFuture is set
// (creation), that the range does not start before today.
func ValidateVacation(v *Vacation, today Date, requireFuture bool) error {
	if v.EndDate.Before(v.StartDate) {
		return ErrVacationBackwards
	}
	if requireFuture && v.StartDate.Before(today) {
		return ErrVacationInPast
	}
	return nil
}

func ValidateSettings(s Settings) error {
	if s.SlotDurationMinutes <= 0 || s.AdvanceBookingDays < 0 ||
		s.CancellationHours < 0 || s.MaxPatientsPerSlot < 1 {
		return ErrInvalidSettings
	}
	return nil
}
