package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// SlotLister produces the structurally available slot start times for a
// date, ignoring occupancy. Availability implements it directly and
// CachedSlots wraps it with memoization.
type SlotLister interface {
	SlotsForDate(ctx context.Context, d Date) ([]TimeOfDay, error)
}

// Availability computes candidate slots from the weekly schedule,
// vacations and clinic settings. It holds no state of its own; every
// call reads the current configuration.
type Availability struct {
	repo Repository
	now  func() time.Time
}

func NewAvailability(repo Repository) *Availability {
	return &Availability{
		repo: repo,
		now:  time.Now,
	}
}

// WithClock overrides the clock, for tests.
func (a *Availability) WithClock(now func() time.Time) *Availability {
	a.now = now
	return a
}

// SlotsForDate returns the ordered slot start times for d. Vacation
// days, weekdays without an active schedule and fully elapsed days all
// return an empty list, never an error; IsDateAvailable distinguishes
// the reason when callers need one.
func (a *Availability) SlotsForDate(ctx context.Context, d Date) ([]TimeOfDay, error) {
	onVacation, err := a.repo.HasVacationOn(ctx, d)
	if err != nil {
		return nil, fmt.Errorf("check vacations: %w", err)
	}
	if onVacation {
		return []TimeOfDay{}, nil
	}

	ws, err := a.repo.ActiveScheduleForWeekday(ctx, d.Weekday())
	if err != nil {
		if errors.Is(err, ErrScheduleNotFound) {
			return []TimeOfDay{}, nil
		}
		return nil, fmt.Errorf("load weekly schedule: %w", err)
	}

	settings, err := a.repo.GetSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	slots := buildSlots(ws, settings.SlotDurationMinutes)

	// Today's already elapsed times are not bookable.
	now := a.now()
	if d == DateOf(now) {
		cutoff := TimeOfDay(now.Hour()*60 + now.Minute())
		kept := slots[:0]
		for _, t := range slots {
			if t > cutoff {
				kept = append(kept, t)
			}
		}
		slots = kept
	}

	return slots, nil
}

// IsDateAvailable reports whether the date has any structural
// availability at all: not a vacation day and covered by an active
// weekly schedule.
func (a *Availability) IsDateAvailable(ctx context.Context, d Date) (bool, error) {
	onVacation, err := a.repo.HasVacationOn(ctx, d)
	if err != nil {
		return false, fmt.Errorf("check vacations: %w", err)
	}
	if onVacation {
		return false, nil
	}

	_, err = a.repo.ActiveScheduleForWeekday(ctx, d.Weekday())
	if err != nil {
		if errors.Is(err, ErrScheduleNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("load weekly schedule: %w", err)
	}
	return true, nil
}

// Settings exposes the current clinic settings to the booking engine.
func (a *Availability) Settings(ctx context.Context) (Settings, error) {
	return a.repo.GetSettings(ctx)
}

// buildSlots walks the working window in steps of the slot duration.
// A candidate [t, t+duration) is dropped when it overlaps the break,
// in which case the walk jumps straight to the break end; a candidate
// running past the window end is dropped outright.
func buildSlots(ws *WeeklySchedule, durationMinutes int) []TimeOfDay {
	slots := []TimeOfDay{}

	t := ws.StartTime
	for t.Add(durationMinutes) <= ws.EndTime {
		end := t.Add(durationMinutes)

		if ws.HasBreak() && t < *ws.BreakEnd && end > *ws.BreakStart {
			t = *ws.BreakEnd
			continue
		}

		slots = append(slots, t)
		t = end
	}

	return slots
}
