package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/scheduling-engine/internal/schedule"
)

type BookAppointmentRequest struct {
	DoctorID           string    `json:"doctor_id"`
	FacilityID         string    `json:"facility_id"`
	PatientName        string    `json:"patient_name"`
	PatientPhone       string    `json:"patient_phone,omitempty"`
	PatientEmail       string    `json:"patient_email,omitempty"`
	StartAt            time.Time `json:"start_at"`
	DurationMinutes    int       `json:"duration_minutes,omitempty"`
	WaitingListEntryID string    `json:"waiting_list_entry_id,omitempty"`
}

type RescheduleRequest struct {
	NewStartAt time.Time `json:"new_start_at"`
	Reason     string    `json:"reason,omitempty"`
}

type CancelRequest struct {
	ActorID string `json:"actor_id"`
	Reason  string `json:"reason,omitempty"`
}

type CheckInRequest struct {
	ActorID string `json:"actor_id"`
}

type CompleteRequest struct {
	Notes string `json:"notes,omitempty"`
}

type AppointmentResponse struct {
	ID                uuid.UUID  `json:"id"`
	DoctorID          uuid.UUID  `json:"doctor_id"`
	FacilityID        uuid.UUID  `json:"facility_id"`
	PatientName       string     `json:"patient_name"`
	StartAt           time.Time  `json:"start_at"`
	DurationMinutes   int        `json:"duration_minutes"`
	Status            string     `json:"status"`
	RescheduledFromID *uuid.UUID `json:"rescheduled_from_id,omitempty"`
	BookedAt          time.Time  `json:"booked_at"`
}

func toAppointmentResponse(a *schedule.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:                a.ID,
		DoctorID:          a.DoctorID,
		FacilityID:        a.FacilityID,
		PatientName:       a.Patient.Name,
		StartAt:           a.StartAt,
		DurationMinutes:   a.DurationMinutes,
		Status:            string(a.Status),
		RescheduledFromID: a.RescheduledFromID,
		BookedAt:          a.BookedAt,
	}
}

type AvailabilityResponse struct {
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
}

type SlotResponse struct {
	Time      string    `json:"time"`
	StartAt   time.Time `json:"start_at"`
	Available bool      `json:"available"`
	Reason    string    `json:"reason,omitempty"`
}

type SlotsResponse struct {
	Date  string         `json:"date"`
	Slots []SlotResponse `json:"slots"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
