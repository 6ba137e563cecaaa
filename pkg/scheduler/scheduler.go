package scheduler

import (
	"sort"
	"time"

	"github.com/agl-detd/detd-go/pkg/detderr"
)

// Scheduler maintains the set of admitted scheduled streams on one
// interface. It is immutable: Add returns a new Scheduler plus the merged
// Schedule, never mutating the receiver, so a caller can discard a
// tentative admission by discarding the returned value (spec.md's Design
// Note "Scheduler purity").
type Scheduler struct {
	admitted []Traffic // Scheduled traffic only; best effort is implicit.
}

// New returns an empty Scheduler, admitting no scheduled streams.
func New() *Scheduler {
	return &Scheduler{}
}

// Admitted returns a copy of the currently admitted scheduled traffics.
func (s *Scheduler) Admitted() []Traffic {
	out := make([]Traffic, len(s.admitted))
	copy(out, s.admitted)
	return out
}

// Add admits traffic (which must have Type == Scheduled) alongside the
// streams already admitted, and returns the Scheduler reflecting that
// admission plus the freshly computed merged Schedule. It does not mutate
// the receiver. If traffic's slots overlap any already-admitted stream's
// slots over the merged cycle, it returns a schedule-conflict error and
// the receiver's pre-call state is unaffected.
func (s *Scheduler) Add(traffic Traffic) (*Scheduler, Schedule, error) {
	if traffic.Type != Scheduled {
		return nil, Schedule{}, detderr.Validation("only scheduled traffic can be added to the scheduler")
	}

	candidate := make([]Traffic, len(s.admitted), len(s.admitted)+1)
	copy(candidate, s.admitted)
	candidate = append(candidate, traffic)

	schedule, err := buildSchedule(candidate)
	if err != nil {
		return nil, Schedule{}, err
	}

	return &Scheduler{admitted: candidate}, schedule, nil
}

// buildSchedule computes the cycle (LCM of all periods), expands each
// stream to its per-cycle slots, rejects overlapping scheduled slots, and
// returns the canonical schedule with best-effort padding inserted.
// Grounded on original_source/detd/scheduler.py's Scheduler.reschedule and
// Schedule.add_best_effort_padding.
func buildSchedule(admitted []Traffic) (Schedule, error) {
	if len(admitted) == 0 {
		return Schedule{}, nil
	}

	periods := make([]int64, 0, len(admitted))
	for _, t := range admitted {
		periods = append(periods, int64(t.Spec.Interval))
	}
	cycle := time.Duration(lcmAll(periods))

	var slots []Slot
	for _, t := range admitted {
		n := int64(cycle) / int64(t.Spec.Interval)
		for i := int64(0); i < n; i++ {
			start := t.Stream.TxOffset + time.Duration(i)*t.Spec.Interval
			end := start + t.Duration
			slots = append(slots, Slot{Start: start, End: end, TC: t.TC})
		}
	}

	sort.Slice(slots, func(i, j int) bool {
		if slots[i].Start != slots[j].Start {
			return slots[i].Start < slots[j].Start
		}
		return slots[i].TC < slots[j].TC
	})

	for i := 0; i < len(slots); i++ {
		for j := i + 1; j < len(slots); j++ {
			if slots[j].Start >= slots[i].End {
				break
			}
			if overlaps(slots[i], slots[j]) {
				return Schedule{}, detderr.ScheduleConflict("new stream's transmission window overlaps an already-admitted stream")
			}
		}
	}

	padded := addBestEffortPadding(slots, cycle)

	return Schedule{Cycle: cycle, Slots: padded}, nil
}

// addBestEffortPadding inserts a TC-0 (best effort) slot in every gap
// between scheduled slots, and wraps the final slot to close the cycle,
// per spec.md section 4.4.
func addBestEffortPadding(scheduled []Slot, cycle time.Duration) []Slot {
	out := make([]Slot, 0, len(scheduled)*2+1)

	var cursor time.Duration
	for _, slot := range scheduled {
		if slot.Start > cursor {
			out = append(out, Slot{Start: cursor, End: slot.Start, TC: 0})
		}
		out = append(out, slot)
		cursor = slot.End
	}
	if cursor < cycle {
		out = append(out, Slot{Start: cursor, End: cycle, TC: 0})
	}

	return out
}

func gcd(a, b int64) int64 {
	for b != 0 {
		a, b = b, a%b
	}
	if a < 0 {
		return -a
	}
	return a
}

func lcm(a, b int64) int64 {
	if a == 0 || b == 0 {
		return 0
	}
	g := gcd(a, b)
	return (a / g) * b
}

func lcmAll(values []int64) int64 {
	result := int64(1)
	for _, v := range values {
		result = lcm(result, v)
	}
	return result
}
