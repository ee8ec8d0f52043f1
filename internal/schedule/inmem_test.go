package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// In-memory repository used by the package tests. InTx serializes whole
// transactions behind one mutex, modeling the row-lock discipline of the
// Postgres implementation, and rolls written state back when fn errors.
type memRepo struct {
	rulesMu    sync.RWMutex
	facilities map[uuid.UUID]Facility
	doctors    map[uuid.UUID]Doctor
	rules      []AvailabilityRule

	txMu         sync.Mutex
	appointments map[uuid.UUID]*Appointment
	reminders    map[uuid.UUID]*ReminderTask
	waiting      map[uuid.UUID]*WaitingListEntry
	events       []EventLog
}

func newMemRepo() *memRepo {
	return &memRepo{
		facilities:   make(map[uuid.UUID]Facility),
		doctors:      make(map[uuid.UUID]Doctor),
		appointments: make(map[uuid.UUID]*Appointment),
		reminders:    make(map[uuid.UUID]*ReminderTask),
		waiting:      make(map[uuid.UUID]*WaitingListEntry),
	}
}

func (r *memRepo) addFacility(f Facility) { r.facilities[f.ID] = f }
func (r *memRepo) addDoctor(d Doctor)     { r.doctors[d.ID] = d }
func (r *memRepo) addRule(rule AvailabilityRule) {
	r.rulesMu.Lock()
	defer r.rulesMu.Unlock()
	r.rules = append(r.rules, rule)
}

func (r *memRepo) GetFacilityByID(_ context.Context, id uuid.UUID) (*Facility, error) {
	r.rulesMu.RLock()
	defer r.rulesMu.RUnlock()
	f, ok := r.facilities[id]
	if !ok {
		return nil, ErrFacilityNotFound
	}
	return &f, nil
}

func (r *memRepo) GetDoctorByID(_ context.Context, id uuid.UUID) (*Doctor, error) {
	r.rulesMu.RLock()
	defer r.rulesMu.RUnlock()
	d, ok := r.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	return &d, nil
}

func (r *memRepo) RulesFor(_ context.Context, doctorID, facilityID uuid.UUID, date time.Time) ([]AvailabilityRule, error) {
	r.rulesMu.RLock()
	defer r.rulesMu.RUnlock()

	dow := isoWeekday(date)
	var result []AvailabilityRule
	for _, rule := range r.rules {
		if rule.DoctorID != doctorID || rule.FacilityID != facilityID {
			continue
		}
		switch rule.Kind {
		case RuleRegular:
			if rule.DayOfWeek == dow {
				result = append(result, rule)
			}
		case RuleSpecificDate, RuleBlocked:
			if sameDate(rule.Date, date) {
				result = append(result, rule)
			}
		}
	}
	return result, nil
}

func (r *memRepo) overlapping(doctorID, facilityID uuid.UUID, start, end time.Time) []Appointment {
	var result []Appointment
	for _, a := range r.appointments {
		if a.DoctorID != doctorID || a.FacilityID != facilityID {
			continue
		}
		if a.Status.countsAsBooked() && overlaps(start, end, a.StartAt, a.EndAt()) {
			result = append(result, *a)
		}
	}
	return result
}

func (r *memRepo) AppointmentsOverlapping(_ context.Context, doctorID, facilityID uuid.UUID, start, end time.Time) ([]Appointment, error) {
	r.txMu.Lock()
	defer r.txMu.Unlock()
	return r.overlapping(doctorID, facilityID, start, end), nil
}

func (r *memRepo) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.txMu.Lock()
	defer r.txMu.Unlock()
	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *memRepo) transition(id uuid.UUID, from []AppointmentStatus, mutate func(*Appointment)) (*Appointment, error) {
	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	matched := false
	for _, s := range from {
		if a.Status == s {
			matched = true
			break
		}
	}
	if !matched {
		// Mirrors the compare-and-set UPDATE matching no row.
		return nil, ErrAppointmentNotFound
	}
	mutate(a)
	cp := *a
	return &cp, nil
}

func (r *memRepo) ConfirmAppointment(_ context.Context, id uuid.UUID, at time.Time) (*Appointment, error) {
	r.txMu.Lock()
	defer r.txMu.Unlock()
	return r.transition(id, []AppointmentStatus{StatusScheduled}, func(a *Appointment) {
		a.Status = StatusConfirmed
		a.ConfirmedAt = &at
		a.UpdatedAt = at
	})
}

func (r *memRepo) CheckInAppointment(_ context.Context, id uuid.UUID, at time.Time) (*Appointment, error) {
	r.txMu.Lock()
	defer r.txMu.Unlock()
	return r.transition(id, []AppointmentStatus{StatusScheduled, StatusConfirmed}, func(a *Appointment) {
		a.Status = StatusCheckedIn
		a.CheckedInAt = &at
		a.UpdatedAt = at
	})
}

func (r *memRepo) CompleteAppointment(_ context.Context, id uuid.UUID, at time.Time, notes string) (*Appointment, error) {
	r.txMu.Lock()
	defer r.txMu.Unlock()
	return r.transition(id, []AppointmentStatus{StatusCheckedIn}, func(a *Appointment) {
		a.Status = StatusCompleted
		a.CompletedAt = &at
		if notes != "" {
			a.CompletionNotes = &notes
		}
		a.UpdatedAt = at
	})
}

func (r *memRepo) FindNoShowCandidates(_ context.Context, endedBefore time.Time) ([]Appointment, error) {
	r.txMu.Lock()
	defer r.txMu.Unlock()
	var result []Appointment
	for _, a := range r.appointments {
		if (a.Status == StatusScheduled || a.Status == StatusConfirmed) && a.EndAt().Before(endedBefore) {
			result = append(result, *a)
		}
	}
	return result, nil
}

func (r *memRepo) InsertReminderTask(_ context.Context, task *ReminderTask) error {
	r.txMu.Lock()
	defer r.txMu.Unlock()
	cp := *task
	r.reminders[task.ID] = &cp
	return nil
}

func (r *memRepo) ListReminderTasks(_ context.Context, appointmentID uuid.UUID) ([]ReminderTask, error) {
	r.txMu.Lock()
	defer r.txMu.Unlock()
	var result []ReminderTask
	for _, t := range r.reminders {
		if t.AppointmentID == appointmentID {
			result = append(result, *t)
		}
	}
	return result, nil
}

func (r *memRepo) InsertEvent(_ context.Context, ev EventLog) error {
	r.txMu.Lock()
	defer r.txMu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *memRepo) snapshot() (appts map[uuid.UUID]*Appointment, rems map[uuid.UUID]*ReminderTask, wait map[uuid.UUID]*WaitingListEntry) {
	appts = make(map[uuid.UUID]*Appointment, len(r.appointments))
	for id, a := range r.appointments {
		cp := *a
		appts[id] = &cp
	}
	rems = make(map[uuid.UUID]*ReminderTask, len(r.reminders))
	for id, t := range r.reminders {
		cp := *t
		rems[id] = &cp
	}
	wait = make(map[uuid.UUID]*WaitingListEntry, len(r.waiting))
	for id, w := range r.waiting {
		cp := *w
		wait[id] = &cp
	}
	return appts, rems, wait
}

func (r *memRepo) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	r.txMu.Lock()
	defer r.txMu.Unlock()

	appts, rems, wait := r.snapshot()

	if err := fn(ctx, &memTx{repo: r}); err != nil {
		r.appointments = appts
		r.reminders = rems
		r.waiting = wait
		return err
	}
	return nil
}

// memTx runs with the repo's transaction mutex already held.
type memTx struct {
	repo *memRepo
}

func (t *memTx) LockOverlapping(_ context.Context, doctorID, facilityID uuid.UUID, start, end time.Time) ([]Appointment, error) {
	return t.repo.overlapping(doctorID, facilityID, start, end), nil
}

func (t *memTx) InsertAppointment(_ context.Context, appt *Appointment) error {
	cp := *appt
	t.repo.appointments[appt.ID] = &cp
	return nil
}

func (t *memTx) MarkRescheduled(_ context.Context, id uuid.UUID, at time.Time) (*Appointment, error) {
	return t.repo.transition(id, []AppointmentStatus{StatusScheduled, StatusConfirmed}, func(a *Appointment) {
		a.Status = StatusRescheduled
		a.UpdatedAt = at
	})
}

func (t *memTx) CancelAppointment(_ context.Context, id uuid.UUID, at time.Time, actor, reason string) (*Appointment, error) {
	return t.repo.transition(id, []AppointmentStatus{StatusScheduled, StatusConfirmed}, func(a *Appointment) {
		a.Status = StatusCancelled
		a.CancelledAt = &at
		if actor != "" {
			a.CancelledBy = &actor
		}
		if reason != "" {
			a.CancellationReason = &reason
		}
		a.UpdatedAt = at
	})
}

func (t *memTx) MarkNoShow(_ context.Context, id uuid.UUID, at time.Time, note string) (*Appointment, error) {
	return t.repo.transition(id, []AppointmentStatus{StatusScheduled, StatusConfirmed}, func(a *Appointment) {
		a.Status = StatusNoShow
		if note != "" {
			a.Note = &note
		}
		a.UpdatedAt = at
	})
}

func (t *memTx) CancelPendingReminders(_ context.Context, appointmentID uuid.UUID) (int64, error) {
	var n int64
	for _, rem := range t.repo.reminders {
		if rem.AppointmentID == appointmentID && rem.Status == ReminderPending {
			rem.Status = ReminderCancelled
			n++
		}
	}
	return n, nil
}

func (t *memTx) MarkWaitingScheduled(_ context.Context, entryID, appointmentID uuid.UUID, at time.Time) error {
	w, ok := t.repo.waiting[entryID]
	if !ok || w.Status != WaitingActive {
		return ErrWaitingEntryNotFound
	}
	w.Status = WaitingScheduled
	w.AppointmentID = &appointmentID
	w.UpdatedAt = at
	return nil
}

// fakeClock is a settable Clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// passLocker runs the critical section directly so tests exercise the
// transaction-level re-check rather than the Redis gate.
type passLocker struct{}

func (passLocker) WithScheduleLock(ctx context.Context, _ uuid.UUID, _ time.Time, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// failLocker simulates lock contention.
type failLocker struct {
	err error
}

func (l failLocker) WithScheduleLock(context.Context, uuid.UUID, time.Time, func(ctx context.Context) error) error {
	return l.err
}

// captureQueue records enqueued reminder jobs.
type captureQueue struct {
	mu   sync.Mutex
	jobs []capturedJob
	err  error
}

type capturedJob struct {
	Recipient    string
	Channel      string
	ScheduledFor time.Time
}

func (q *captureQueue) Enqueue(_ context.Context, recipient, channel string, scheduledFor time.Time, _ []byte) error {
	if q.err != nil {
		return q.err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, capturedJob{Recipient: recipient, Channel: channel, ScheduledFor: scheduledFor})
	return nil
}
