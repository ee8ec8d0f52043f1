package schedule

import "errors"

var (
	ErrFacilityNotFound     = errors.New("facility not found")
	ErrDoctorNotFound       = errors.New("doctor not found")
	ErrAppointmentNotFound  = errors.New("appointment not found")
	ErrWaitingEntryNotFound = errors.New("waiting list entry not found")

	// ErrBusy means lock contention on the booking path; safe to retry
	// with backoff.
	ErrBusy = errors.New("doctor schedule is busy, please retry")

	ErrNotReschedulable        = errors.New("appointment cannot be rescheduled from its current status")
	ErrNotCancellable          = errors.New("appointment cannot be cancelled from its current status")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
)

// SlotUnavailableError is returned when an availability check fails. Reason
// is user-facing and suitable for display next to alternate slots.
type SlotUnavailableError struct {
	Reason string
}

func (e *SlotUnavailableError) Error() string {
	return "slot unavailable: " + e.Reason
}
