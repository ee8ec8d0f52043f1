package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Slot is one candidate booking window within a day's schedule.
type Slot struct {
	TimeOfDay string // "15:04"
	StartAt   time.Time
	Available bool
	Reason    string
}

// SlotGenerator walks a day's schedule window in evaluator-sized steps and
// emits the full slot list with per-slot verdicts. Read only and
// deterministic for a fixed rule and appointment set.
type SlotGenerator struct {
	rules     RuleSource
	evaluator *Evaluator
}

func NewSlotGenerator(rules RuleSource, evaluator *Evaluator) *SlotGenerator {
	return &SlotGenerator{rules: rules, evaluator: evaluator}
}

// GenerateSlots produces every slot of slotMinutes length between the
// governing rule's start and end on date, stepping by slot duration plus the
// rule's buffer. No governing rule, or a specific-date rule taking the day
// off, yields an empty sequence.
func (g *SlotGenerator) GenerateSlots(ctx context.Context, conflicts ConflictSource, doctorID, facilityID uuid.UUID, date time.Time, slotMinutes int) ([]Slot, error) {
	rules, err := g.rules.RulesFor(ctx, doctorID, facilityID, date)
	if err != nil {
		return nil, fmt.Errorf("load availability rules: %w", err)
	}

	rule, _ := selectWindowRule(rules, date)
	if rule == nil {
		return []Slot{}, nil
	}

	winStart, winEnd := rule.WindowOn(date)
	slotLen := time.Duration(slotMinutes) * time.Minute
	step := slotLen + time.Duration(rule.BufferMinutes)*time.Minute

	var slots []Slot
	for cur := winStart; !cur.Add(slotLen).After(winEnd); cur = cur.Add(step) {
		verdict, err := g.evaluator.Evaluate(ctx, conflicts, doctorID, facilityID, cur, slotMinutes)
		if err != nil {
			return nil, err
		}
		slots = append(slots, Slot{
			TimeOfDay: cur.Format("15:04"),
			StartAt:   cur,
			Available: verdict.Available,
			Reason:    verdict.Reason,
		})
	}

	return slots, nil
}
