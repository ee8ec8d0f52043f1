package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 2026-09-01 is a Tuesday, 2026-09-07 and 2026-09-14 are Mondays.
var (
	tueSep1  = time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	monSep7  = time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)
	monSep14 = time.Date(2026, 9, 14, 0, 0, 0, 0, time.UTC)
)

func at(day time.Time, hour, min int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), hour, min, 0, 0, day.Location())
}

func regularRule(doctorID, facilityID uuid.UUID, dow, startMin, endMin, buffer int) AvailabilityRule {
	return AvailabilityRule{
		ID:            uuid.New(),
		DoctorID:      doctorID,
		FacilityID:    facilityID,
		Kind:          RuleRegular,
		DayOfWeek:     dow,
		StartMinute:   startMin,
		EndMinute:     endMin,
		IsAvailable:   true,
		BufferMinutes: buffer,
	}
}

func dateRule(doctorID, facilityID uuid.UUID, date time.Time, startMin, endMin int, available bool) AvailabilityRule {
	return AvailabilityRule{
		ID:          uuid.New(),
		DoctorID:    doctorID,
		FacilityID:  facilityID,
		Kind:        RuleSpecificDate,
		Date:        date,
		StartMinute: startMin,
		EndMinute:   endMin,
		IsAvailable: available,
	}
}

func blockedRule(doctorID, facilityID uuid.UUID, date time.Time, startMin, endMin int) AvailabilityRule {
	return AvailabilityRule{
		ID:          uuid.New(),
		DoctorID:    doctorID,
		FacilityID:  facilityID,
		Kind:        RuleBlocked,
		Date:        date,
		StartMinute: startMin,
		EndMinute:   endMin,
		IsAvailable: false,
	}
}

func bookedAppointment(doctorID, facilityID uuid.UUID, startAt time.Time, minutes int, status AppointmentStatus) *Appointment {
	return &Appointment{
		ID:              uuid.New(),
		DoctorID:        doctorID,
		FacilityID:      facilityID,
		Patient:         PatientRef{Name: "Pat Doe"},
		StartAt:         startAt,
		DurationMinutes: minutes,
		Status:          status,
		BookedAt:        startAt.AddDate(0, 0, -1),
	}
}

type evalFixture struct {
	repo       *memRepo
	eval       *Evaluator
	doctorID   uuid.UUID
	facilityID uuid.UUID
}

func newEvalFixture() *evalFixture {
	repo := newMemRepo()
	doctorID := uuid.New()
	facilityID := uuid.New()
	repo.addFacility(Facility{ID: facilityID, Name: "Main Clinic"})
	repo.addDoctor(Doctor{ID: doctorID, FacilityID: facilityID, Name: "Dr. Smith"})
	return &evalFixture{
		repo:       repo,
		eval:       NewEvaluator(repo),
		doctorID:   doctorID,
		facilityID: facilityID,
	}
}

func (f *evalFixture) evaluate(t *testing.T, startAt time.Time, minutes int) Verdict {
	t.Helper()
	v, err := f.eval.Evaluate(context.Background(), f.repo, f.doctorID, f.facilityID, startAt, minutes)
	require.NoError(t, err)
	return v
}

func TestEvaluateRegularWindow(t *testing.T) {
	f := newEvalFixture()
	f.repo.addRule(regularRule(f.doctorID, f.facilityID, 2, 9*60, 12*60, 0)) // Tuesdays 09:00-12:00

	v := f.evaluate(t, at(tueSep1, 9, 0), 30)
	assert.True(t, v.Available)

	// Fits exactly against the end of the window.
	v = f.evaluate(t, at(tueSep1, 11, 30), 30)
	assert.True(t, v.Available)

	// Runs past the end of the window.
	v = f.evaluate(t, at(tueSep1, 11, 45), 30)
	assert.False(t, v.Available)
	assert.Equal(t, ReasonOutsideSchedule, v.Reason)

	// Before the window opens.
	v = f.evaluate(t, at(tueSep1, 8, 0), 30)
	assert.False(t, v.Available)
	assert.Equal(t, ReasonOutsideSchedule, v.Reason)

	// No rule for Mondays at all.
	v = f.evaluate(t, at(monSep7, 9, 0), 30)
	assert.False(t, v.Available)
	assert.Equal(t, ReasonNoRuleForDay, v.Reason)
}

func TestEvaluateSpecificDatePrecedence(t *testing.T) {
	f := newEvalFixture()
	f.repo.addRule(regularRule(f.doctorID, f.facilityID, 1, 9*60, 12*60, 0)) // Mondays 09:00-12:00

	// Sep 7 is overridden to a narrower 10:00-12:00 window.
	f.repo.addRule(dateRule(f.doctorID, f.facilityID, monSep7, 10*60, 12*60, true))

	v := f.evaluate(t, at(monSep7, 9, 30), 30)
	assert.False(t, v.Available)
	assert.Equal(t, ReasonOutsideSchedule, v.Reason)

	v = f.evaluate(t, at(monSep7, 10, 30), 30)
	assert.True(t, v.Available)

	// The regular rule still governs other Mondays.
	v = f.evaluate(t, at(monSep14, 9, 30), 30)
	assert.True(t, v.Available)
}

func TestEvaluateSpecificDateDayOff(t *testing.T) {
	f := newEvalFixture()
	f.repo.addRule(regularRule(f.doctorID, f.facilityID, 1, 9*60, 12*60, 0))
	f.repo.addRule(dateRule(f.doctorID, f.facilityID, monSep7, 9*60, 10*60, false))

	// An unavailable override takes the whole date off, not just its window.
	v := f.evaluate(t, at(monSep7, 11, 0), 30)
	assert.False(t, v.Available)
	assert.Equal(t, ReasonOutsideSchedule, v.Reason)

	v = f.evaluate(t, at(monSep14, 11, 0), 30)
	assert.True(t, v.Available)
}

func TestEvaluateBlockSubtraction(t *testing.T) {
	f := newEvalFixture()
	f.repo.addRule(regularRule(f.doctorID, f.facilityID, 2, 9*60, 17*60, 0))
	f.repo.addRule(blockedRule(f.doctorID, f.facilityID, tueSep1, 10*60, 10*60+30))

	v := f.evaluate(t, at(tueSep1, 10, 15), 15)
	assert.False(t, v.Available)
	assert.Equal(t, ReasonBlocked, v.Reason)

	// Half-open: a request starting exactly at the block's end is clear.
	v = f.evaluate(t, at(tueSep1, 10, 30), 30)
	assert.True(t, v.Available)

	// A request ending exactly at the block's start is clear too.
	v = f.evaluate(t, at(tueSep1, 9, 30), 30)
	assert.True(t, v.Available)
}

func TestEvaluateConflictAdjacency(t *testing.T) {
	f := newEvalFixture()
	f.repo.addRule(regularRule(f.doctorID, f.facilityID, 2, 8*60, 12*60, 0))

	existing := bookedAppointment(f.doctorID, f.facilityID, at(tueSep1, 9, 0), 30, StatusScheduled)
	f.repo.appointments[existing.ID] = existing

	v := f.evaluate(t, at(tueSep1, 9, 0), 30)
	assert.False(t, v.Available)
	assert.Equal(t, ReasonAlreadyBooked, v.Reason)

	v = f.evaluate(t, at(tueSep1, 9, 15), 30)
	assert.False(t, v.Available)
	assert.Equal(t, ReasonAlreadyBooked, v.Reason)

	// Back-to-back windows sharing the 09:30 boundary coexist.
	v = f.evaluate(t, at(tueSep1, 9, 30), 30)
	assert.True(t, v.Available)

	v = f.evaluate(t, at(tueSep1, 8, 30), 30)
	assert.True(t, v.Available)
}

func TestEvaluateIgnoresTerminalStatuses(t *testing.T) {
	f := newEvalFixture()
	f.repo.addRule(regularRule(f.doctorID, f.facilityID, 2, 8*60, 12*60, 0))

	for _, status := range []AppointmentStatus{StatusCancelled, StatusRescheduled, StatusNoShow, StatusCompleted} {
		a := bookedAppointment(f.doctorID, f.facilityID, at(tueSep1, 9, 0), 30, status)
		f.repo.appointments[a.ID] = a
	}

	v := f.evaluate(t, at(tueSep1, 9, 0), 30)
	assert.True(t, v.Available)
}
