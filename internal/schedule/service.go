package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicore/scheduling-engine/internal/config"
	redisclient "github.com/clinicore/scheduling-engine/internal/redis"
)

const (
	EventAppointmentBooked      = "APPOINTMENT_BOOKED"
	EventAppointmentConfirmed   = "APPOINTMENT_CONFIRMED"
	EventAppointmentCheckedIn   = "APPOINTMENT_CHECKED_IN"
	EventAppointmentCompleted   = "APPOINTMENT_COMPLETED"
	EventAppointmentCancelled   = "APPOINTMENT_CANCELLED"
	EventAppointmentRescheduled = "APPOINTMENT_RESCHEDULED"
	EventAppointmentNoShow      = "APPOINTMENT_NO_SHOW"
)

// BookingRequest describes a new appointment to book. WaitingListEntryID is
// set when the booking converts a waiting-list entry.
type BookingRequest struct {
	DoctorID           uuid.UUID
	FacilityID         uuid.UUID
	Patient            PatientRef
	StartAt            time.Time
	DurationMinutes    int
	WaitingListEntryID *uuid.UUID
}

// Service is the booking transaction manager. All state-mutating operations
// re-verify availability inside an atomic transaction over a locking read so
// two concurrent requests cannot double-book the same doctor window.
type Service struct {
	repo      Repository
	locker    redisclient.Locker
	evaluator *Evaluator
	slots     *SlotGenerator
	reminders *ReminderScheduler
	clock     Clock
	cfg       config.Config
	log       zerolog.Logger
}

func NewService(repo Repository, locker redisclient.Locker, reminders *ReminderScheduler, clock Clock, cfg config.Config, log zerolog.Logger) *Service {
	evaluator := NewEvaluator(repo)
	return &Service{
		repo:      repo,
		locker:    locker,
		evaluator: evaluator,
		slots:     NewSlotGenerator(repo, evaluator),
		reminders: reminders,
		clock:     clock,
		cfg:       cfg,
		log:       log.With().Str("component", "schedule_service").Logger(),
	}
}

// lockedConflicts routes the evaluator's conflict query through the
// transaction's locking read.
type lockedConflicts struct {
	tx Tx
}

func (l lockedConflicts) AppointmentsOverlapping(ctx context.Context, doctorID, facilityID uuid.UUID, start, end time.Time) ([]Appointment, error) {
	return l.tx.LockOverlapping(ctx, doctorID, facilityID, start, end)
}

// CheckAvailability is the lock-free read path for a single window.
func (s *Service) CheckAvailability(ctx context.Context, doctorID, facilityID uuid.UUID, startAt time.Time, durationMinutes int) (Verdict, error) {
	if err := s.checkDirectory(ctx, doctorID, facilityID); err != nil {
		return Verdict{}, err
	}
	if durationMinutes <= 0 {
		durationMinutes = s.cfg.DefaultSlotMinutes
	}
	return s.evaluator.Evaluate(ctx, s.repo, doctorID, facilityID, startAt, durationMinutes)
}

// GetAvailableSlots returns the full slot list for a doctor's day. Safe to
// call repeatedly with arbitrary concurrency.
func (s *Service) GetAvailableSlots(ctx context.Context, doctorID, facilityID uuid.UUID, date time.Time, slotMinutes int) ([]Slot, error) {
	if err := s.checkDirectory(ctx, doctorID, facilityID); err != nil {
		return nil, err
	}
	if slotMinutes <= 0 {
		slotMinutes = s.cfg.DefaultSlotMinutes
	}
	return s.slots.GenerateSlots(ctx, s.repo, doctorID, facilityID, date, slotMinutes)
}

// BookAppointment reserves a window for a patient. The availability check is
// re-run inside the transaction over a locking read; the pre-check outside
// only exists to fail fast without taking locks.
func (s *Service) BookAppointment(ctx context.Context, req BookingRequest) (*Appointment, error) {
	if err := s.checkDirectory(ctx, req.DoctorID, req.FacilityID); err != nil {
		return nil, err
	}
	if req.DurationMinutes <= 0 {
		req.DurationMinutes = s.cfg.DefaultSlotMinutes
	}

	verdict, err := s.evaluator.Evaluate(ctx, s.repo, req.DoctorID, req.FacilityID, req.StartAt, req.DurationMinutes)
	if err != nil {
		return nil, err
	}
	if !verdict.Available {
		return nil, &SlotUnavailableError{Reason: verdict.Reason}
	}

	var created *Appointment

	err = s.locker.WithScheduleLock(ctx, req.DoctorID, req.StartAt, func(lockCtx context.Context) error {
		return s.repo.InTx(lockCtx, func(txCtx context.Context, tx Tx) error {
			verdict, err := s.evaluator.Evaluate(txCtx, lockedConflicts{tx}, req.DoctorID, req.FacilityID, req.StartAt, req.DurationMinutes)
			if err != nil {
				return fmt.Errorf("re-check availability: %w", err)
			}
			if !verdict.Available {
				return &SlotUnavailableError{Reason: verdict.Reason}
			}

			now := s.clock.Now()
			appt := &Appointment{
				ID:              uuid.New(),
				FacilityID:      req.FacilityID,
				DoctorID:        req.DoctorID,
				Patient:         req.Patient,
				StartAt:         req.StartAt,
				DurationMinutes: req.DurationMinutes,
				Status:          StatusScheduled,
				BookedAt:        now,
				CreatedAt:       now,
				UpdatedAt:       now,
			}
			if err := tx.InsertAppointment(txCtx, appt); err != nil {
				return fmt.Errorf("insert appointment: %w", err)
			}

			if req.WaitingListEntryID != nil {
				if err := tx.MarkWaitingScheduled(txCtx, *req.WaitingListEntryID, appt.ID, now); err != nil {
					return fmt.Errorf("convert waiting list entry: %w", err)
				}
			}

			created = appt
			return nil
		})
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrBusy
		}
		return nil, err
	}

	s.logEvent(ctx, created.ID, EventAppointmentBooked, map[string]any{
		"doctor_id":   created.DoctorID.String(),
		"facility_id": created.FacilityID.String(),
		"start_at":    created.StartAt,
	})

	// Reminder scheduling happens after commit only; its failure must never
	// undo a committed booking.
	if err := s.reminders.ScheduleFor(ctx, created); err != nil {
		s.log.Error().Err(err).Str("appointment_id", created.ID.String()).Msg("schedule reminders failed")
	}

	return created, nil
}

// RescheduleAppointment flips the old row to rescheduled and creates the
// replacement row with a back-reference, both in one transaction. The new
// window is re-verified inside the transaction after the old row is flipped,
// so moving an appointment within or adjacent to its own old window works.
func (s *Service) RescheduleAppointment(ctx context.Context, id uuid.UUID, newStartAt time.Time, reason string) (*Appointment, error) {
	old, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if old.Status != StatusScheduled && old.Status != StatusConfirmed {
		return nil, ErrNotReschedulable
	}

	var created *Appointment

	err = s.locker.WithScheduleLock(ctx, old.DoctorID, newStartAt, func(lockCtx context.Context) error {
		return s.repo.InTx(lockCtx, func(txCtx context.Context, tx Tx) error {
			now := s.clock.Now()

			if _, err := tx.MarkRescheduled(txCtx, old.ID, now); err != nil {
				if errors.Is(err, ErrAppointmentNotFound) {
					return ErrNotReschedulable
				}
				return fmt.Errorf("mark rescheduled: %w", err)
			}

			verdict, err := s.evaluator.Evaluate(txCtx, lockedConflicts{tx}, old.DoctorID, old.FacilityID, newStartAt, old.DurationMinutes)
			if err != nil {
				return fmt.Errorf("re-check availability: %w", err)
			}
			if !verdict.Available {
				return &SlotUnavailableError{Reason: verdict.Reason}
			}

			oldID := old.ID
			appt := &Appointment{
				ID:                uuid.New(),
				FacilityID:        old.FacilityID,
				DoctorID:          old.DoctorID,
				Patient:           old.Patient,
				StartAt:           newStartAt,
				DurationMinutes:   old.DurationMinutes,
				Status:            StatusScheduled,
				RescheduledFromID: &oldID,
				BookedAt:          now,
				CreatedAt:         now,
				UpdatedAt:         now,
			}
			if err := tx.InsertAppointment(txCtx, appt); err != nil {
				return fmt.Errorf("insert replacement appointment: %w", err)
			}

			if _, err := tx.CancelPendingReminders(txCtx, old.ID); err != nil {
				return fmt.Errorf("cancel reminders: %w", err)
			}

			created = appt
			return nil
		})
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrBusy
		}
		return nil, err
	}

	s.logEvent(ctx, created.ID, EventAppointmentRescheduled, map[string]any{
		"rescheduled_from": old.ID.String(),
		"new_start_at":     created.StartAt,
		"reason":           reason,
	})

	if err := s.reminders.ScheduleFor(ctx, created); err != nil {
		s.log.Error().Err(err).Str("appointment_id", created.ID.String()).Msg("schedule reminders failed")
	}

	return created, nil
}

// CancelAppointment flips a scheduled/confirmed row to cancelled and cancels
// its pending reminders in the same transaction.
func (s *Service) CancelAppointment(ctx context.Context, id uuid.UUID, actorID, reason string) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.Status != StatusScheduled && appt.Status != StatusConfirmed {
		return nil, ErrNotCancellable
	}

	var cancelled *Appointment

	err = s.repo.InTx(ctx, func(txCtx context.Context, tx Tx) error {
		updated, err := tx.CancelAppointment(txCtx, id, s.clock.Now(), actorID, reason)
		if err != nil {
			if errors.Is(err, ErrAppointmentNotFound) {
				// Lost the race against another transition.
				return ErrNotCancellable
			}
			return fmt.Errorf("cancel appointment: %w", err)
		}
		if _, err := tx.CancelPendingReminders(txCtx, id); err != nil {
			return fmt.Errorf("cancel reminders: %w", err)
		}
		cancelled = updated
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, id, EventAppointmentCancelled, map[string]any{
		"actor":  actorID,
		"reason": reason,
	})

	return cancelled, nil
}

// ConfirmAppointment moves a scheduled appointment to confirmed.
func (s *Service) ConfirmAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.Status != StatusScheduled {
		return nil, ErrInvalidStatusTransition
	}

	updated, err := s.repo.ConfirmAppointment(ctx, id, s.clock.Now())
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrInvalidStatusTransition
		}
		return nil, fmt.Errorf("confirm appointment: %w", err)
	}

	s.logEvent(ctx, id, EventAppointmentConfirmed, map[string]any{})
	return updated, nil
}

// CheckInPatient moves a scheduled or confirmed appointment to checked-in.
func (s *Service) CheckInPatient(ctx context.Context, id uuid.UUID, actorID string) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.Status != StatusScheduled && appt.Status != StatusConfirmed {
		return nil, ErrInvalidStatusTransition
	}

	updated, err := s.repo.CheckInAppointment(ctx, id, s.clock.Now())
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrInvalidStatusTransition
		}
		return nil, fmt.Errorf("check in appointment: %w", err)
	}

	s.logEvent(ctx, id, EventAppointmentCheckedIn, map[string]any{"actor": actorID})
	return updated, nil
}

// CompleteAppointment moves a checked-in appointment to completed.
func (s *Service) CompleteAppointment(ctx context.Context, id uuid.UUID, notes string) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.Status != StatusCheckedIn {
		return nil, ErrInvalidStatusTransition
	}

	updated, err := s.repo.CompleteAppointment(ctx, id, s.clock.Now(), notes)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrInvalidStatusTransition
		}
		return nil, fmt.Errorf("complete appointment: %w", err)
	}

	s.logEvent(ctx, id, EventAppointmentCompleted, map[string]any{})
	return updated, nil
}

// GetAppointment retrieves an appointment by ID.
func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetAppointmentByID(ctx, id)
}

// MarkNoShows transitions every unresolved appointment whose end is older
// than the grace period to no-show. Idempotent: appointments already swept,
// or moved on by staff in the meantime, are skipped via the status
// compare-and-set.
func (s *Service) MarkNoShows(ctx context.Context) (int, error) {
	now := s.clock.Now()
	cutoff := now.Add(-s.cfg.NoShowGracePeriod)

	candidates, err := s.repo.FindNoShowCandidates(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("find no-show candidates: %w", err)
	}

	swept := 0
	note := fmt.Sprintf("marked no-show %s after scheduled end", s.cfg.NoShowGracePeriod)

	for _, appt := range candidates {
		err := s.repo.InTx(ctx, func(txCtx context.Context, tx Tx) error {
			if _, err := tx.MarkNoShow(txCtx, appt.ID, now, note); err != nil {
				return err
			}
			_, err := tx.CancelPendingReminders(txCtx, appt.ID)
			return err
		})
		if err != nil {
			if errors.Is(err, ErrAppointmentNotFound) {
				continue
			}
			s.log.Error().Err(err).Str("appointment_id", appt.ID.String()).Msg("mark no-show failed")
			continue
		}
		swept++
		s.logEvent(ctx, appt.ID, EventAppointmentNoShow, map[string]any{
			"scheduled_start": appt.StartAt,
		})
	}

	return swept, nil
}

func (s *Service) checkDirectory(ctx context.Context, doctorID, facilityID uuid.UUID) error {
	if _, err := s.repo.GetFacilityByID(ctx, facilityID); err != nil {
		if errors.Is(err, ErrFacilityNotFound) {
			return err
		}
		return fmt.Errorf("load facility: %w", err)
	}
	if _, err := s.repo.GetDoctorByID(ctx, doctorID); err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return err
		}
		return fmt.Errorf("load doctor: %w", err)
	}
	return nil
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Error().Err(err).Str("event", eventType).Msg("marshal event payload failed")
		data = nil
	}

	apptID := appointmentID
	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.clock.Now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Error().Err(err).Str("event", eventType).Str("appointment_id", appointmentID.String()).Msg("insert event log failed")
	}
}
