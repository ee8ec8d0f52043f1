package schedule

import (
	"time"

	"github.com/google/uuid"
)

type RuleKind string

const (
	RuleRegular      RuleKind = "regular"
	RuleSpecificDate RuleKind = "specific_date"
	RuleBlocked      RuleKind = "blocked"
)

type AppointmentStatus string

const (
	StatusScheduled   AppointmentStatus = "scheduled"
	StatusConfirmed   AppointmentStatus = "confirmed"
	StatusCheckedIn   AppointmentStatus = "checked_in"
	StatusCompleted   AppointmentStatus = "completed"
	StatusCancelled   AppointmentStatus = "cancelled"
	StatusRescheduled AppointmentStatus = "rescheduled"
	StatusNoShow      AppointmentStatus = "no_show"
)

// IsTerminal reports whether no further transition is permitted from s.
func (s AppointmentStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusRescheduled, StatusNoShow:
		return true
	}
	return false
}

// countsAsBooked reports whether an appointment in this status occupies
// its time window for conflict purposes.
func (s AppointmentStatus) countsAsBooked() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusCheckedIn:
		return true
	}
	return false
}

type ReminderKind string

const (
	ReminderSevenDaysBefore ReminderKind = "seven_days_before"
	ReminderOneDayBefore    ReminderKind = "one_day_before"
	ReminderSameDay         ReminderKind = "same_day"
)

type ReminderStatus string

const (
	ReminderPending    ReminderStatus = "pending"
	ReminderDispatched ReminderStatus = "dispatched"
	ReminderCancelled  ReminderStatus = "cancelled"
)

type WaitingStatus string

const (
	WaitingActive    WaitingStatus = "active"
	WaitingScheduled WaitingStatus = "scheduled"
	WaitingExpired   WaitingStatus = "expired"
)

type Facility struct {
	ID        uuid.UUID
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Doctor struct {
	ID         uuid.UUID
	FacilityID uuid.UUID
	Name       string
	Specialty  *string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// AvailabilityRule governs when a doctor is bookable at a facility.
// Regular rules repeat weekly on DayOfWeek; SpecificDate and Blocked rules
// apply to a single Date. Start and End are minutes from midnight on the
// rule's date, half-open [Start, End).
type AvailabilityRule struct {
	ID            uuid.UUID
	DoctorID      uuid.UUID
	FacilityID    uuid.UUID
	Kind          RuleKind
	DayOfWeek     int // ISO: Monday=1 .. Sunday=7; regular rules only
	Date          time.Time
	StartMinute   int
	EndMinute     int
	IsAvailable   bool
	BufferMinutes int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// WindowOn resolves the rule's time-of-day window onto the given date.
func (r AvailabilityRule) WindowOn(date time.Time) (start, end time.Time) {
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	return day.Add(time.Duration(r.StartMinute) * time.Minute),
		day.Add(time.Duration(r.EndMinute) * time.Minute)
}

// PatientRef carries the patient contact fields. The engine treats them as
// opaque apart from picking a reminder channel.
type PatientRef struct {
	Name  string
	Phone string
	Email string
}

type Appointment struct {
	ID                 uuid.UUID
	FacilityID         uuid.UUID
	DoctorID           uuid.UUID
	Patient            PatientRef
	StartAt            time.Time
	DurationMinutes    int
	Status             AppointmentStatus
	RescheduledFromID  *uuid.UUID
	BookedAt           time.Time
	ConfirmedAt        *time.Time
	CheckedInAt        *time.Time
	CompletedAt        *time.Time
	CompletionNotes    *string
	CancelledAt        *time.Time
	CancelledBy        *string
	CancellationReason *string
	Note               *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// EndAt is the exclusive end of the appointment's window.
func (a Appointment) EndAt() time.Time {
	return a.StartAt.Add(time.Duration(a.DurationMinutes) * time.Minute)
}

type ReminderTask struct {
	ID               uuid.UUID
	AppointmentID    uuid.UUID
	Kind             ReminderKind
	ScheduledFor     time.Time
	RecipientChannel string
	Status           ReminderStatus
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type WaitingListEntry struct {
	ID            uuid.UUID
	FacilityID    uuid.UUID
	Patient       PatientRef
	Position      int
	Status        WaitingStatus
	AppointmentID *uuid.UUID
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// overlaps is the half-open interval test used everywhere: [aStart, aEnd)
// and [bStart, bEnd) overlap iff aStart < bEnd && bStart < aEnd. Windows
// that merely share a boundary instant do not overlap.
func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// isoWeekday maps time.Weekday onto Monday=1 .. Sunday=7.
func isoWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}
