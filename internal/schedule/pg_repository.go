package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgQuerier is satisfied by both *pgxpool.Pool and pgx.Tx so the scan and
// query helpers serve the pooled reads and the transactional writes alike.
type pgQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

const appointmentColumns = `
	id, facility_id, doctor_id,
	patient_name, patient_phone, patient_email,
	start_at, duration_minutes, status, rescheduled_from_id,
	booked_at, confirmed_at, checked_in_at, completed_at, completion_notes,
	cancelled_at, cancelled_by, cancellation_reason, note,
	created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.FacilityID,
		&a.DoctorID,
		&a.Patient.Name,
		&a.Patient.Phone,
		&a.Patient.Email,
		&a.StartAt,
		&a.DurationMinutes,
		&a.Status,
		&a.RescheduledFromID,
		&a.BookedAt,
		&a.ConfirmedAt,
		&a.CheckedInAt,
		&a.CompletedAt,
		&a.CompletionNotes,
		&a.CancelledAt,
		&a.CancelledBy,
		&a.CancellationReason,
		&a.Note,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	return &a, nil
}

func scanAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func scanRule(row pgx.Row) (*AvailabilityRule, error) {
	var r AvailabilityRule
	var dayOfWeek *int
	var date *time.Time

	err := row.Scan(
		&r.ID,
		&r.DoctorID,
		&r.FacilityID,
		&r.Kind,
		&dayOfWeek,
		&date,
		&r.StartMinute,
		&r.EndMinute,
		&r.IsAvailable,
		&r.BufferMinutes,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if dayOfWeek != nil {
		r.DayOfWeek = *dayOfWeek
	}
	if date != nil {
		r.Date = *date
	}
	return &r, nil
}

func queryOverlapping(ctx context.Context, q pgQuerier, doctorID, facilityID uuid.UUID, start, end time.Time, forUpdate bool) ([]Appointment, error) {
	sql := `
		SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE doctor_id = $1
		  AND facility_id = $2
		  AND status IN ('scheduled', 'confirmed', 'checked_in')
		  AND start_at < $4
		  AND start_at + make_interval(mins => duration_minutes) > $3
		ORDER BY start_at`
	if forUpdate {
		sql += `
		FOR UPDATE`
	}

	rows, err := q.Query(ctx, sql, doctorID, facilityID, start, end)
	if err != nil {
		return nil, err
	}
	return scanAppointments(rows)
}

// Interface methods

func (r *PgRepository) GetFacilityByID(ctx context.Context, id uuid.UUID) (*Facility, error) {
	var f Facility
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, created_at, updated_at
		FROM facilities
		WHERE id = $1
	`, id).Scan(&f.ID, &f.Name, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrFacilityNotFound
		}
		return nil, err
	}
	return &f, nil
}

func (r *PgRepository) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	var d Doctor
	err := r.pool.QueryRow(ctx, `
		SELECT id, facility_id, name, specialty, created_at, updated_at
		FROM doctors
		WHERE id = $1
	`, id).Scan(&d.ID, &d.FacilityID, &d.Name, &d.Specialty, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}
	return &d, nil
}

func (r *PgRepository) RulesFor(ctx context.Context, doctorID, facilityID uuid.UUID, date time.Time) ([]AvailabilityRule, error) {
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())

	rows, err := r.pool.Query(ctx, `
		SELECT id, doctor_id, facility_id, kind, day_of_week, date,
		       start_minute, end_minute, is_available, buffer_minutes,
		       created_at, updated_at
		FROM availability_rules
		WHERE doctor_id = $1
		  AND facility_id = $2
		  AND (
		        (kind = 'regular' AND day_of_week = $3)
		     OR (kind IN ('specific_date', 'blocked') AND date = $4)
		  )
	`, doctorID, facilityID, isoWeekday(date), day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []AvailabilityRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *rule)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) AppointmentsOverlapping(ctx context.Context, doctorID, facilityID uuid.UUID, start, end time.Time) ([]Appointment, error) {
	return queryOverlapping(ctx, r.pool, doctorID, facilityID, start, end, false)
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ConfirmAppointment(ctx context.Context, id uuid.UUID, at time.Time) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'confirmed',
		    confirmed_at = $2,
		    updated_at = $2
		WHERE id = $1
		  AND status = 'scheduled'
		RETURNING `+appointmentColumns,
		id, at)
	return scanAppointment(row)
}

func (r *PgRepository) CheckInAppointment(ctx context.Context, id uuid.UUID, at time.Time) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'checked_in',
		    checked_in_at = $2,
		    updated_at = $2
		WHERE id = $1
		  AND status IN ('scheduled', 'confirmed')
		RETURNING `+appointmentColumns,
		id, at)
	return scanAppointment(row)
}

func (r *PgRepository) CompleteAppointment(ctx context.Context, id uuid.UUID, at time.Time, notes string) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'completed',
		    completed_at = $2,
		    completion_notes = NULLIF($3, ''),
		    updated_at = $2
		WHERE id = $1
		  AND status = 'checked_in'
		RETURNING `+appointmentColumns,
		id, at, notes)
	return scanAppointment(row)
}

func (r *PgRepository) FindNoShowCandidates(ctx context.Context, endedBefore time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status IN ('scheduled', 'confirmed')
		  AND start_at + make_interval(mins => duration_minutes) < $1
		ORDER BY start_at
	`, endedBefore)
	if err != nil {
		return nil, err
	}
	return scanAppointments(rows)
}

func (r *PgRepository) InsertReminderTask(ctx context.Context, task *ReminderTask) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO reminder_tasks (id, appointment_id, kind, scheduled_for, recipient_channel, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, task.ID, task.AppointmentID, task.Kind, task.ScheduledFor, task.RecipientChannel, task.Status, task.CreatedAt, task.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert reminder task: %w", err)
	}
	return nil
}

func (r *PgRepository) ListReminderTasks(ctx context.Context, appointmentID uuid.UUID) ([]ReminderTask, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, appointment_id, kind, scheduled_for, recipient_channel, status, created_at, updated_at
		FROM reminder_tasks
		WHERE appointment_id = $1
		ORDER BY scheduled_for
	`, appointmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ReminderTask
	for rows.Next() {
		var t ReminderTask
		err := rows.Scan(&t.ID, &t.AppointmentID, &t.Kind, &t.ScheduledFor, &t.RecipientChannel, &t.Status, &t.CreatedAt, &t.UpdatedAt)
		if err != nil {
			return nil, err
		}
		result = append(result, t)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}

func (r *PgRepository) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	pgtx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer pgtx.Rollback(ctx)

	if err := fn(ctx, &pgTx{tx: pgtx}); err != nil {
		return err
	}

	if err := pgtx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// pgTx is the transactional write surface of the booking path.
type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) LockOverlapping(ctx context.Context, doctorID, facilityID uuid.UUID, start, end time.Time) ([]Appointment, error) {
	return queryOverlapping(ctx, t.tx, doctorID, facilityID, start, end, true)
}

func (t *pgTx) InsertAppointment(ctx context.Context, appt *Appointment) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO appointments (
			id, facility_id, doctor_id,
			patient_name, patient_phone, patient_email,
			start_at, duration_minutes, status, rescheduled_from_id,
			booked_at, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		appt.ID, appt.FacilityID, appt.DoctorID,
		appt.Patient.Name, appt.Patient.Phone, appt.Patient.Email,
		appt.StartAt, appt.DurationMinutes, appt.Status, appt.RescheduledFromID,
		appt.BookedAt, appt.CreatedAt, appt.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (t *pgTx) MarkRescheduled(ctx context.Context, id uuid.UUID, at time.Time) (*Appointment, error) {
	row := t.tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'rescheduled',
		    updated_at = $2
		WHERE id = $1
		  AND status IN ('scheduled', 'confirmed')
		RETURNING `+appointmentColumns,
		id, at)
	return scanAppointment(row)
}

func (t *pgTx) CancelAppointment(ctx context.Context, id uuid.UUID, at time.Time, actor, reason string) (*Appointment, error) {
	row := t.tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'cancelled',
		    cancelled_at = $2,
		    cancelled_by = NULLIF($3, ''),
		    cancellation_reason = NULLIF($4, ''),
		    updated_at = $2
		WHERE id = $1
		  AND status IN ('scheduled', 'confirmed')
		RETURNING `+appointmentColumns,
		id, at, actor, reason)
	return scanAppointment(row)
}

func (t *pgTx) MarkNoShow(ctx context.Context, id uuid.UUID, at time.Time, note string) (*Appointment, error) {
	row := t.tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'no_show',
		    note = NULLIF($3, ''),
		    updated_at = $2
		WHERE id = $1
		  AND status IN ('scheduled', 'confirmed')
		RETURNING `+appointmentColumns,
		id, at, note)
	return scanAppointment(row)
}

func (t *pgTx) CancelPendingReminders(ctx context.Context, appointmentID uuid.UUID) (int64, error) {
	tag, err := t.tx.Exec(ctx, `
		UPDATE reminder_tasks
		SET status = 'cancelled',
		    updated_at = now()
		WHERE appointment_id = $1
		  AND status = 'pending'
	`, appointmentID)
	if err != nil {
		return 0, fmt.Errorf("cancel pending reminders: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (t *pgTx) MarkWaitingScheduled(ctx context.Context, entryID, appointmentID uuid.UUID, at time.Time) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE waiting_list_entries
		SET status = 'scheduled',
		    appointment_id = $2,
		    updated_at = $3
		WHERE id = $1
		  AND status = 'active'
	`, entryID, appointmentID, at)
	if err != nil {
		return fmt.Errorf("mark waiting entry scheduled: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrWaitingEntryNotFound
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
