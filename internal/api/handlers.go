package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/clinicore/scheduling-engine/internal/schedule"
)

func checkAvailabilityHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, facilityID, ok := parseDirectoryParams(w, r)
		if !ok {
			return
		}

		startAt, err := time.Parse(time.RFC3339, r.URL.Query().Get("start_at"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_start_at", "start_at must be RFC3339")
			return
		}

		duration := 0
		if v := r.URL.Query().Get("duration_minutes"); v != "" {
			duration, err = strconv.Atoi(v)
			if err != nil || duration < 0 {
				writeError(w, http.StatusBadRequest, "invalid_duration", "duration_minutes must be a positive integer")
				return
			}
		}

		verdict, err := svc.CheckAvailability(r.Context(), doctorID, facilityID, startAt, duration)
		if err != nil {
			handleScheduleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, AvailabilityResponse{
			Available: verdict.Available,
			Reason:    verdict.Reason,
		})
	}
}

func getSlotsHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, facilityID, ok := parseDirectoryParams(w, r)
		if !ok {
			return
		}

		date, err := time.Parse("2006-01-02", r.URL.Query().Get("date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		slotMinutes := 0
		if v := r.URL.Query().Get("slot_minutes"); v != "" {
			slotMinutes, err = strconv.Atoi(v)
			if err != nil || slotMinutes < 0 {
				writeError(w, http.StatusBadRequest, "invalid_slot_minutes", "slot_minutes must be a positive integer")
				return
			}
		}

		slots, err := svc.GetAvailableSlots(r.Context(), doctorID, facilityID, date, slotMinutes)
		if err != nil {
			handleScheduleError(w, err)
			return
		}

		resp := SlotsResponse{
			Date:  date.Format("2006-01-02"),
			Slots: make([]SlotResponse, 0, len(slots)),
		}
		for _, s := range slots {
			resp.Slots = append(resp.Slots, SlotResponse{
				Time:      s.TimeOfDay,
				StartAt:   s.StartAt,
				Available: s.Available,
				Reason:    s.Reason,
			})
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func bookAppointmentHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BookAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		doctorID, err := uuid.Parse(req.DoctorID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
			return
		}
		facilityID, err := uuid.Parse(req.FacilityID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_facility_id", "facility_id must be a valid UUID")
			return
		}
		if req.PatientName == "" {
			writeError(w, http.StatusBadRequest, "missing_patient_name", "patient_name is required")
			return
		}
		if req.StartAt.IsZero() {
			writeError(w, http.StatusBadRequest, "missing_start_at", "start_at is required")
			return
		}

		booking := schedule.BookingRequest{
			DoctorID:   doctorID,
			FacilityID: facilityID,
			Patient: schedule.PatientRef{
				Name:  req.PatientName,
				Phone: req.PatientPhone,
				Email: req.PatientEmail,
			},
			StartAt:         req.StartAt,
			DurationMinutes: req.DurationMinutes,
		}

		if req.WaitingListEntryID != "" {
			entryID, err := uuid.Parse(req.WaitingListEntryID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_waiting_list_entry_id", "waiting_list_entry_id must be a valid UUID")
				return
			}
			booking.WaitingListEntryID = &entryID
		}

		appt, err := svc.BookAppointment(r.Context(), booking)
		if err != nil {
			handleScheduleError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func getAppointmentHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseAppointmentID(w, r)
		if !ok {
			return
		}

		appt, err := svc.GetAppointment(r.Context(), id)
		if err != nil {
			handleScheduleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func rescheduleAppointmentHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseAppointmentID(w, r)
		if !ok {
			return
		}

		var req RescheduleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if req.NewStartAt.IsZero() {
			writeError(w, http.StatusBadRequest, "missing_new_start_at", "new_start_at is required")
			return
		}

		appt, err := svc.RescheduleAppointment(r.Context(), id, req.NewStartAt, req.Reason)
		if err != nil {
			handleScheduleError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func cancelAppointmentHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseAppointmentID(w, r)
		if !ok {
			return
		}

		var req CancelRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		appt, err := svc.CancelAppointment(r.Context(), id, req.ActorID, req.Reason)
		if err != nil {
			handleScheduleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func confirmAppointmentHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseAppointmentID(w, r)
		if !ok {
			return
		}

		appt, err := svc.ConfirmAppointment(r.Context(), id)
		if err != nil {
			handleScheduleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func checkInPatientHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseAppointmentID(w, r)
		if !ok {
			return
		}

		var req CheckInRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		appt, err := svc.CheckInPatient(r.Context(), id, req.ActorID)
		if err != nil {
			handleScheduleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func completeAppointmentHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseAppointmentID(w, r)
		if !ok {
			return
		}

		var req CompleteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		appt, err := svc.CompleteAppointment(r.Context(), id, req.Notes)
		if err != nil {
			handleScheduleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func parseDirectoryParams(w http.ResponseWriter, r *http.Request) (doctorID, facilityID uuid.UUID, ok bool) {
	doctorID, err := uuid.Parse(r.URL.Query().Get("doctor_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
		return uuid.Nil, uuid.Nil, false
	}
	facilityID, err = uuid.Parse(r.URL.Query().Get("facility_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_facility_id", "facility_id must be a valid UUID")
		return uuid.Nil, uuid.Nil, false
	}
	return doctorID, facilityID, true
}

func parseAppointmentID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func handleScheduleError(w http.ResponseWriter, err error) {
	var slotErr *schedule.SlotUnavailableError

	switch {
	case errors.As(err, &slotErr):
		writeError(w, http.StatusConflict, "slot_unavailable", slotErr.Reason)
	case errors.Is(err, schedule.ErrDoctorNotFound):
		writeError(w, http.StatusNotFound, "doctor_not_found", err.Error())
	case errors.Is(err, schedule.ErrFacilityNotFound):
		writeError(w, http.StatusNotFound, "facility_not_found", err.Error())
	case errors.Is(err, schedule.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, schedule.ErrWaitingEntryNotFound):
		writeError(w, http.StatusConflict, "waiting_entry_not_active", err.Error())
	case errors.Is(err, schedule.ErrNotReschedulable):
		writeError(w, http.StatusConflict, "not_reschedulable", err.Error())
	case errors.Is(err, schedule.ErrNotCancellable):
		writeError(w, http.StatusConflict, "not_cancellable", err.Error())
	case errors.Is(err, schedule.ErrInvalidStatusTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	case errors.Is(err, schedule.ErrBusy):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, "busy", "schedule is busy, please retry shortly")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
