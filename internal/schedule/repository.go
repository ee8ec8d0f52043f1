package schedule

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RuleSource yields the availability rules that can apply to a doctor at a
// facility on a given date: regular rules matching the date's weekday plus
// specific-date and blocked rules for that date.
type RuleSource interface {
	RulesFor(ctx context.Context, doctorID, facilityID uuid.UUID, date time.Time) ([]AvailabilityRule, error)
}

// ConflictSource yields booked appointments (scheduled/confirmed/checked-in)
// for a doctor at a facility whose window overlaps [start, end). The booking
// path supplies a locking implementation; browsing reads without locks.
type ConflictSource interface {
	AppointmentsOverlapping(ctx context.Context, doctorID, facilityID uuid.UUID, start, end time.Time) ([]Appointment, error)
}

// Repository contains all DB interactions needed by the service outside of
// the booking transaction.
type Repository interface {
	RuleSource
	ConflictSource

	GetFacilityByID(ctx context.Context, id uuid.UUID) (*Facility, error)
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// Single-row compare-and-set transitions. A miss because the row moved
	// to another status first surfaces as ErrAppointmentNotFound.
	ConfirmAppointment(ctx context.Context, id uuid.UUID, at time.Time) (*Appointment, error)
	CheckInAppointment(ctx context.Context, id uuid.UUID, at time.Time) (*Appointment, error)
	CompleteAppointment(ctx context.Context, id uuid.UUID, at time.Time, notes string) (*Appointment, error)

	// No-show sweeper
	FindNoShowCandidates(ctx context.Context, endedBefore time.Time) ([]Appointment, error)

	// Reminder tasks are written after the booking transaction commits.
	InsertReminderTask(ctx context.Context, task *ReminderTask) error
	ListReminderTasks(ctx context.Context, appointmentID uuid.UUID) ([]ReminderTask, error)

	// Event logging, best effort.
	InsertEvent(ctx context.Context, ev EventLog) error

	// InTx runs fn inside a single atomic transaction; fn returning an
	// error rolls the transaction back.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the write surface available inside a booking transaction.
type Tx interface {
	// LockOverlapping takes row locks over the conflict set so a concurrent
	// transaction targeting the same window blocks until commit or rollback.
	LockOverlapping(ctx context.Context, doctorID, facilityID uuid.UUID, start, end time.Time) ([]Appointment, error)

	InsertAppointment(ctx context.Context, appt *Appointment) error

	// MarkRescheduled flips a scheduled/confirmed row to rescheduled.
	MarkRescheduled(ctx context.Context, id uuid.UUID, at time.Time) (*Appointment, error)

	// CancelAppointment flips a scheduled/confirmed row to cancelled.
	CancelAppointment(ctx context.Context, id uuid.UUID, at time.Time, actor, reason string) (*Appointment, error)

	// MarkNoShow flips a scheduled/confirmed row to no-show.
	MarkNoShow(ctx context.Context, id uuid.UUID, at time.Time, note string) (*Appointment, error)

	// CancelPendingReminders cancels every pending reminder task for the
	// appointment and reports how many rows changed.
	CancelPendingReminders(ctx context.Context, appointmentID uuid.UUID) (int64, error)

	// MarkWaitingScheduled converts an active waiting-list entry and links
	// it to the appointment that satisfied it.
	MarkWaitingScheduled(ctx context.Context, entryID, appointmentID uuid.UUID, at time.Time) error
}
