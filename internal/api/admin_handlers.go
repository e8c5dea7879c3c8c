package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/clinicops/clinic-scheduling/internal/schedule"
)

func listSchedulesHandler(svc AdminService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		schedules, err := svc.ListSchedules(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		resp := make([]WeeklyScheduleResponse, 0, len(schedules))
		for i := range schedules {
			resp = append(resp, toScheduleResponse(&schedules[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func createScheduleHandler(svc AdminService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, ok := decodeSchedule(w, r)
		if !ok {
			return
		}

		created, err := svc.CreateSchedule(r.Context(), ws)
		if err != nil {
			handleScheduleError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toScheduleResponse(created))
	}
}

func updateScheduleHandler(svc AdminService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_schedule_id", "id must be a valid UUID")
			return
		}

		ws, ok := decodeSchedule(w, r)
		if !ok {
			return
		}
		ws.ID = id

		updated, err := svc.UpdateSchedule(r.Context(), ws)
		if err != nil {
			handleScheduleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toScheduleResponse(updated))
	}
}

func toggleScheduleHandler(svc AdminService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_schedule_id", "id must be a valid UUID")
			return
		}

		var req struct {
			Active bool `json:"active"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		updated, err := svc.SetScheduleActive(r.Context(), id, req.Active)
		if err != nil {
			handleScheduleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toScheduleResponse(updated))
	}
}

func deleteScheduleHandler(svc AdminService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_schedule_id", "id must be a valid UUID")
			return
		}

		if err := svc.DeleteSchedule(r.Context(), id); err != nil {
			handleScheduleError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func listVacationsHandler(svc AdminService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vacations, err := svc.ListVacations(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		resp := make([]VacationResponse, 0, len(vacations))
		for i := range vacations {
			resp = append(resp, toVacationResponse(&vacations[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func createVacationHandler(svc AdminService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, ok := decodeVacation(w, r)
		if !ok {
			return
		}

		created, err := svc.CreateVacation(r.Context(), v)
		if err != nil {
			handleScheduleError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toVacationResponse(created))
	}
}

func updateVacationHandler(svc AdminService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_vacation_id", "id must be a valid UUID")
			return
		}

		v, ok := decodeVacation(w, r)
		if !ok {
			return
		}
		v.ID = id

		updated, err := svc.UpdateVacation(r.Context(), v)
		if err != nil {
			handleScheduleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toVacationResponse(updated))
	}
}

func deleteVacationHandler(svc AdminService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_vacation_id", "id must be a valid UUID")
			return
		}

		if err := svc.DeleteVacation(r.Context(), id); err != nil {
			handleScheduleError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func getSettingsHandler(svc AdminService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		settings, err := svc.GetSettings(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		writeJSON(w, http.StatusOK, toSettingsPayload(settings))
	}
}

func updateSettingsHandler(svc AdminService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SettingsPayload
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		updated, err := svc.UpdateSettings(r.Context(), schedule.Settings{
			SlotDurationMinutes: req.SlotDurationMinutes,
			AdvanceBookingDays:  req.AdvanceBookingDays,
			CancellationHours:   req.CancellationHours,
			MaxPatientsPerSlot:  req.MaxPatientsPerSlot,
		})
		if err != nil {
			handleScheduleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toSettingsPayload(updated))
	}
}

func decodeSchedule(w http.ResponseWriter, r *http.Request) (*schedule.WeeklySchedule, bool) {
	var req WeeklyScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return nil, false
	}

	if req.DayOfWeek < 0 || req.DayOfWeek > 6 {
		writeError(w, http.StatusBadRequest, "invalid_day_of_week", "day_of_week must be 0 (Sunday) through 6 (Saturday)")
		return nil, false
	}

	start, err := schedule.ParseTimeOfDay(req.StartTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_start_time", "start_time must be formatted HH:MM")
		return nil, false
	}
	end, err := schedule.ParseTimeOfDay(req.EndTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_end_time", "end_time must be formatted HH:MM")
		return nil, false
	}

	ws := &schedule.WeeklySchedule{
		DayOfWeek: time.Weekday(req.DayOfWeek),
		StartTime: start,
		EndTime:   end,
		IsActive:  req.IsActive,
	}

	if req.BreakStart != nil {
		bs, err := schedule.ParseTimeOfDay(*req.BreakStart)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_break_start", "break_start must be formatted HH:MM")
			return nil, false
		}
		ws.BreakStart = &bs
	}
	if req.BreakEnd != nil {
		be, err := schedule.ParseTimeOfDay(*req.BreakEnd)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_break_end", "break_end must be formatted HH:MM")
			return nil, false
		}
		ws.BreakEnd = &be
	}

	return ws, true
}

func decodeVacation(w http.ResponseWriter, r *http.Request) (*schedule.Vacation, bool) {
	var req VacationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return nil, false
	}

	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "missing_title", "title is required")
		return nil, false
	}

	start, err := schedule.ParseDate(req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_start_date", "start_date must be formatted YYYY-MM-DD")
		return nil, false
	}
	end, err := schedule.ParseDate(req.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_end_date", "end_date must be formatted YYYY-MM-DD")
		return nil, false
	}

	return &schedule.Vacation{
		Title:     req.Title,
		Reason:    req.Reason,
		StartDate: start,
		EndDate:   end,
	}, true
}

func handleScheduleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, schedule.ErrInvalidWindow),
		errors.Is(err, schedule.ErrInvalidBreak),
		errors.Is(err, schedule.ErrHalfBreak),
		errors.Is(err, schedule.ErrVacationBackwards),
		errors.Is(err, schedule.ErrVacationInPast),
		errors.Is(err, schedule.ErrInvalidSettings):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, schedule.ErrWeekdayTaken):
		writeError(w, http.StatusConflict, "weekday_taken", err.Error())
	case errors.Is(err, schedule.ErrScheduleNotFound):
		writeError(w, http.StatusNotFound, "schedule_not_found", err.Error())
	case errors.Is(err, schedule.ErrVacationNotFound):
		writeError(w, http.StatusNotFound, "vacation_not_found", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
