package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// User-facing reasons carried on unavailable verdicts.
const (
	ReasonOutsideSchedule = "Outside doctor schedule"
	ReasonNoRuleForDay    = "Doctor not available on this day"
	ReasonBlocked         = "Time slot is blocked"
	ReasonAlreadyBooked   = "Time slot already booked"
)

type Verdict struct {
	Available bool
	Reason    string
}

func unavailable(reason string) Verdict { return Verdict{Available: false, Reason: reason} }

// Evaluator decides whether a doctor is bookable for a given window. It is
// side-effect free: the same code runs lock-free for slot browsing and again
// inside the booking transaction over a locking ConflictSource.
type Evaluator struct {
	rules RuleSource
}

func NewEvaluator(rules RuleSource) *Evaluator {
	return &Evaluator{rules: rules}
}

// Evaluate applies rule precedence, the window check, blocked-rule
// subtraction and the booked-appointment conflict check, in that order.
func (e *Evaluator) Evaluate(ctx context.Context, conflicts ConflictSource, doctorID, facilityID uuid.UUID, startAt time.Time, durationMinutes int) (Verdict, error) {
	rules, err := e.rules.RulesFor(ctx, doctorID, facilityID, startAt)
	if err != nil {
		return Verdict{}, fmt.Errorf("load availability rules: %w", err)
	}

	rule, verdict := selectWindowRule(rules, startAt)
	if rule == nil {
		return verdict, nil
	}

	reqStart := startAt
	reqEnd := startAt.Add(time.Duration(durationMinutes) * time.Minute)

	winStart, winEnd := rule.WindowOn(startAt)
	if reqStart.Before(winStart) || reqEnd.After(winEnd) {
		return unavailable(ReasonOutsideSchedule), nil
	}

	// Blocked rules subtract from whichever rule applies. Half-open
	// intersection so a block ending at 10:30 does not touch a 10:30 slot.
	for _, r := range rules {
		if r.Kind != RuleBlocked || !sameDate(r.Date, startAt) {
			continue
		}
		blockStart, blockEnd := r.WindowOn(startAt)
		if overlaps(reqStart, reqEnd, blockStart, blockEnd) {
			return unavailable(ReasonBlocked), nil
		}
	}

	booked, err := conflicts.AppointmentsOverlapping(ctx, doctorID, facilityID, reqStart, reqEnd)
	if err != nil {
		return Verdict{}, fmt.Errorf("load overlapping appointments: %w", err)
	}
	for _, a := range booked {
		if a.Status.countsAsBooked() && overlaps(reqStart, reqEnd, a.StartAt, a.EndAt()) {
			return unavailable(ReasonAlreadyBooked), nil
		}
	}

	return Verdict{Available: true}, nil
}

// selectWindowRule picks the rule whose window governs the given instant's
// date. A specific-date rule wins over the regular weekly rule; a
// specific-date rule marked unavailable takes the whole date off. Returns
// nil with the explaining verdict when no window applies.
func selectWindowRule(rules []AvailabilityRule, at time.Time) (*AvailabilityRule, Verdict) {
	for i := range rules {
		r := &rules[i]
		if r.Kind == RuleSpecificDate && sameDate(r.Date, at) {
			if !r.IsAvailable {
				return nil, unavailable(ReasonOutsideSchedule)
			}
			return r, Verdict{}
		}
	}

	dow := isoWeekday(at)
	for i := range rules {
		r := &rules[i]
		if r.Kind == RuleRegular && r.DayOfWeek == dow {
			if !r.IsAvailable {
				return nil, unavailable(ReasonOutsideSchedule)
			}
			return r, Verdict{}
		}
	}

	return nil, unavailable(ReasonNoRuleForDay)
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
