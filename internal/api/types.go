package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinicops/clinic-scheduling/internal/booking"
	"github.com/clinicops/clinic-scheduling/internal/schedule"
)

type BookAppointmentRequest struct {
	PatientID string  `json:"patient_id"`
	DateTime  string  `json:"datetime"` // ISO-8601
	Notes     *string `json:"notes,omitempty"`
}

type CancelAppointmentRequest struct {
	Reason      string `json:"reason"`
	CancelledBy string `json:"cancelled_by"` // patient, admin, system
}

type CompleteAppointmentRequest struct {
	AdminNotes *string `json:"admin_notes,omitempty"`
}

type AppointmentResponse struct {
	ID                 uuid.UUID  `json:"id"`
	PatientID          uuid.UUID  `json:"patient_id"`
	Date               string     `json:"date"`
	StartTime          string     `json:"start_time"`
	Status             string     `json:"status"`
	Notes              *string    `json:"notes,omitempty"`
	AdminNotes         *string    `json:"admin_notes,omitempty"`
	CancellationReason *string    `json:"cancellation_reason,omitempty"`
	CancelledBy        *string    `json:"cancelled_by,omitempty"`
	ConfirmedAt        *time.Time `json:"confirmed_at,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

func toAppointmentResponse(a *booking.Appointment) AppointmentResponse {
	resp := AppointmentResponse{
		ID:                 a.ID,
		PatientID:          a.PatientID,
		Date:               a.Date.String(),
		StartTime:          a.StartTime.String(),
		Status:             string(a.Status),
		Notes:              a.Notes,
		AdminNotes:         a.AdminNotes,
		CancellationReason: a.CancellationReason,
		ConfirmedAt:        a.ConfirmedAt,
		CompletedAt:        a.CompletedAt,
		CancelledAt:        a.CancelledAt,
		CreatedAt:          a.CreatedAt,
	}
	if a.CancelledBy != nil {
		by := string(*a.CancelledBy)
		resp.CancelledBy = &by
	}
	return resp
}

type SlotsResponse struct {
	Date      string   `json:"date"`
	Available bool     `json:"available"`
	Slots     []string `json:"slots"`
}

type StatusReportResponse struct {
	From   string           `json:"from"`
	To     string           `json:"to"`
	Counts map[string]int64 `json:"counts"`
}

type WeeklyScheduleRequest struct {
	DayOfWeek  int     `json:"day_of_week"` // 0 = Sunday
	StartTime  string  `json:"start_time"`  // "HH:MM"
	EndTime    string  `json:"end_time"`
	BreakStart *string `json:"break_start,omitempty"`
	BreakEnd   *string `json:"break_end,omitempty"`
	IsActive   bool    `json:"is_active"`
}

type WeeklyScheduleResponse struct {
	ID         uuid.UUID `json:"id"`
	DayOfWeek  int       `json:"day_of_week"`
	StartTime  string    `json:"start_time"`
	EndTime    string    `json:"end_time"`
	BreakStart *string   `json:"break_start,omitempty"`
	BreakEnd   *string   `json:"break_end,omitempty"`
	IsActive   bool      `json:"is_active"`
}

func toScheduleResponse(ws *schedule.WeeklySchedule) WeeklyScheduleResponse {
	resp := WeeklyScheduleResponse{
		ID:        ws.ID,
		DayOfWeek: int(ws.DayOfWeek),
		StartTime: ws.StartTime.String(),
		EndTime:   ws.EndTime.String(),
		IsActive:  ws.IsActive,
	}
	if ws.HasBreak() {
		bs := ws.BreakStart.String()
		be := ws.BreakEnd.String()
		resp.BreakStart, resp.BreakEnd = &bs, &be
	}
	return resp
}

type VacationRequest struct {
	Title     string  `json:"title"`
	Reason    *string `json:"reason,omitempty"`
	StartDate string  `json:"start_date"` // "2006-01-02"
	EndDate   string  `json:"end_date"`
}

type VacationResponse struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	Reason    *string   `json:"reason,omitempty"`
	StartDate string    `json:"start_date"`
	EndDate   string    `json:"end_date"`
}

func toVacationResponse(v *schedule.Vacation) VacationResponse {
	return VacationResponse{
		ID:        v.ID,
		Title:     v.Title,
		Reason:    v.Reason,
		StartDate: v.StartDate.String(),
		EndDate:   v.EndDate.String(),
	}
}

type SettingsPayload struct {
	SlotDurationMinutes int `json:"slot_duration_minutes"`
	AdvanceBookingDays  int `json:"advance_booking_days"`
	CancellationHours   int `json:"cancellation_hours"`
	MaxPatientsPerSlot  int `json:"max_patients_per_slot"`
}

func toSettingsPayload(s schedule.Settings) SettingsPayload {
	return SettingsPayload{
		SlotDurationMinutes: s.SlotDurationMinutes,
		AdvanceBookingDays:  s.AdvanceBookingDays,
		CancellationHours:   s.CancellationHours,
		MaxPatientsPerSlot:  s.MaxPatientsPerSlot,
	}
}
