package schedule

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// fakeRepo is an in-memory Repository for generator and service tests.
type fakeRepo struct {
	schedules map[uuid.UUID]*WeeklySchedule
	vacations map[uuid.UUID]*Vacation
	settings  Settings
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		schedules: map[uuid.UUID]*WeeklySchedule{},
		vacations: map[uuid.UUID]*Vacation{},
		settings:  DefaultSettings(),
	}
}

func (f *fakeRepo) addSchedule(ws WeeklySchedule) *WeeklySchedule {
	if ws.ID == uuid.Nil {
		ws.ID = uuid.New()
	}
	f.schedules[ws.ID] = &ws
	return &ws
}

func (f *fakeRepo) addVacation(v Vacation) *Vacation {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	f.vacations[v.ID] = &v
	return &v
}

func (f *fakeRepo) ActiveScheduleForWeekday(_ context.Context, day time.Weekday) (*WeeklySchedule, error) {
	for _, ws := range f.schedules {
		if ws.IsActive && ws.DayOfWeek == day {
			copied := *ws
			return &copied, nil
		}
	}
	return nil, ErrScheduleNotFound
}

func (f *fakeRepo) GetSchedule(_ context.Context, id uuid.UUID) (*WeeklySchedule, error) {
	ws, ok := f.schedules[id]
	if !ok {
		return nil, ErrScheduleNotFound
	}
	copied := *ws
	return &copied, nil
}

func (f *fakeRepo) ListSchedules(_ context.Context) ([]WeeklySchedule, error) {
	var out []WeeklySchedule
	for _, ws := range f.schedules {
		out = append(out, *ws)
	}
	return out, nil
}

func (f *fakeRepo) CreateSchedule(ctx context.Context, ws *WeeklySchedule) (*WeeklySchedule, error) {
	if ws.IsActive {
		if _, err := f.ActiveScheduleForWeekday(ctx, ws.DayOfWeek); err == nil {
			return nil, ErrWeekdayTaken
		}
	}
	return f.addSchedule(*ws), nil
}

func (f *fakeRepo) UpdateSchedule(_ context.Context, ws *WeeklySchedule) (*WeeklySchedule, error) {
	if _, ok := f.schedules[ws.ID]; !ok {
		return nil, ErrScheduleNotFound
	}
	copied := *ws
	f.schedules[ws.ID] = &copied
	return ws, nil
}

func (f *fakeRepo) SetScheduleActive(_ context.Context, id uuid.UUID, active bool) (*WeeklySchedule, error) {
	ws, ok := f.schedules[id]
	if !ok {
		return nil, ErrScheduleNotFound
	}
	ws.IsActive = active
	copied := *ws
	return &copied, nil
}

func (f *fakeRepo) DeleteSchedule(_ context.Context, id uuid.UUID) error {
	if _, ok := f.schedules[id]; !ok {
		return ErrScheduleNotFound
	}
	delete(f.schedules, id)
	return nil
}

func (f *fakeRepo) HasVacationOn(_ context.Context, d Date) (bool, error) {
	for _, v := range f.vacations {
		if v.Covers(d) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRepo) ListVacations(_ context.Context) ([]Vacation, error) {
	var out []Vacation
	for _, v := range f.vacations {
		out = append(out, *v)
	}
	return out, nil
}

func (f *fakeRepo) CreateVacation(_ context.Context, v *Vacation) (*Vacation, error) {
	return f.addVacation(*v), nil
}

func (f *fakeRepo) UpdateVacation(_ context.Context, v *Vacation) (*Vacation, error) {
	if _, ok := f.vacations[v.ID]; !ok {
		return nil, ErrVacationNotFound
	}
	copied := *v
	f.vacations[v.ID] = &copied
	return v, nil
}

func (f *fakeRepo) DeleteVacation(_ context.Context, id uuid.UUID) error {
	if _, ok := f.vacations[id]; !ok {
		return ErrVacationNotFound
	}
	delete(f.vacations, id)
	return nil
}

func (f *fakeRepo) GetSettings(_ context.Context) (Settings, error) {
	return f.settings, nil
}

func (f *fakeRepo) UpdateSettings(_ context.Context, s Settings) (Settings, error) {
	f.settings = s
	return s, nil
}
