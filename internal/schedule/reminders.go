package schedule

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ReminderQueue is the outbound dispatch collaborator. The engine only
// decides when a reminder should fire; delivery is downstream.
type ReminderQueue interface {
	Enqueue(ctx context.Context, recipient, channel string, scheduledFor time.Time, payload []byte) error
}

// ReminderScheduler derives the future reminder timestamps for a committed
// appointment and records/enqueues a task per offset. It runs after the
// booking transaction commits; its failure must never roll back a booking.
type ReminderScheduler struct {
	repo        Repository
	queue       ReminderQueue
	clock       Clock
	sameDayHour int
	log         zerolog.Logger
}

func NewReminderScheduler(repo Repository, queue ReminderQueue, clock Clock, sameDayHour int, log zerolog.Logger) *ReminderScheduler {
	return &ReminderScheduler{
		repo:        repo,
		queue:       queue,
		clock:       clock,
		sameDayHour: sameDayHour,
		log:         log.With().Str("component", "reminder_scheduler").Logger(),
	}
}

// ScheduleFor creates pending reminder tasks for every offset that still
// lies strictly in the future. Offsets already in the past are skipped, not
// errors: the appointment may have been booked close to its start time.
func (s *ReminderScheduler) ScheduleFor(ctx context.Context, appt *Appointment) error {
	now := s.clock.Now()
	recipient, channel := reminderRecipient(appt.Patient)

	payload, err := json.Marshal(map[string]any{
		"appointment_id": appt.ID.String(),
		"patient_name":   appt.Patient.Name,
		"start_at":       appt.StartAt,
	})
	if err != nil {
		return fmt.Errorf("marshal reminder payload: %w", err)
	}

	for kind, at := range reminderTimes(appt.StartAt, s.sameDayHour) {
		if !at.After(now) {
			continue
		}

		task := &ReminderTask{
			ID:               uuid.New(),
			AppointmentID:    appt.ID,
			Kind:             kind,
			ScheduledFor:     at,
			RecipientChannel: channel,
			Status:           ReminderPending,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := s.repo.InsertReminderTask(ctx, task); err != nil {
			return fmt.Errorf("insert reminder task %s: %w", kind, err)
		}

		// The task row stays pending for out-of-band retry when the
		// enqueue fails.
		if err := s.queue.Enqueue(ctx, recipient, channel, at, payload); err != nil {
			s.log.Error().Err(err).
				Str("appointment_id", appt.ID.String()).
				Str("kind", string(kind)).
				Msg("enqueue reminder failed")
		}
	}

	return nil
}

func reminderTimes(startAt time.Time, sameDayHour int) map[ReminderKind]time.Time {
	sameDay := time.Date(startAt.Year(), startAt.Month(), startAt.Day(), sameDayHour, 0, 0, 0, startAt.Location())
	return map[ReminderKind]time.Time{
		ReminderSevenDaysBefore: startAt.AddDate(0, 0, -7),
		ReminderOneDayBefore:    startAt.AddDate(0, 0, -1),
		ReminderSameDay:         sameDay,
	}
}

func reminderRecipient(p PatientRef) (recipient, channel string) {
	if p.Email != "" {
		return p.Email, "email"
	}
	return p.Phone, "sms"
}
