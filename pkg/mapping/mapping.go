// Package mapping implements the resource allocator that assigns each
// admitted stream to a hardware Tx queue, and derives the
// socket-priority<->traffic-class map and the priority->PCP egress map.
// Grounded on original_source/detd/mapping.py's Mapping class (the
// statically pre-sized variant, not MappingNaive), restated as an
// immutable-state, copy-on-write type matching pkg/scheduler's purity so
// pkg/iface can discard a tentative allocation on rollback exactly like it
// discards a tentative Schedule.
package mapping

import (
	"github.com/agl-detd/detd-go/pkg/detderr"
)

const (
	numSocketPriorities = 16
	bestEffortTC        = 0
	bestEffortQueue     = 0
	// firstScheduledPriority mirrors original_source/detd/mapping.py:
	// priorities 0-6 are excluded from reservation because they can be
	// set by a socket without CAP_NET_ADMIN (man 7 socket); 7-15 remain.
	firstScheduledPriority = 7
)

// State is an immutable snapshot of one interface's resource assignment.
// New returns the state of a freshly created interface: no scheduled
// streams admitted, every socket priority mapped to the best-effort
// TC/queue/PCP. The zero value has no queues and no reserved priorities;
// use New.
type State struct {
	numTxQueues int

	// priorityToTC and priorityToPCP are always length
	// numSocketPriorities (16), per spec.md section 3's "Mapping State"
	// invariant that the priority->TC table is fully defined.
	priorityToTC    [numSocketPriorities]int
	priorityToPCP   [numSocketPriorities]uint8
	usedPriorities  map[int]bool
	usedQueues      map[int]bool
	tcToQueue       map[int]int
}

// New returns the initial mapping state for a device with the given
// number of Tx queues. Queue 0 and priorities 0-6 are reserved for best
// effort from the start, per spec.md section 4.5.
func New(numTxQueues int) State {
	s := State{
		numTxQueues:    numTxQueues,
		usedPriorities: make(map[int]bool, numSocketPriorities),
		usedQueues:     map[int]bool{bestEffortQueue: true},
		tcToQueue:      map[int]int{bestEffortTC: bestEffortQueue},
	}
	for p := 0; p < firstScheduledPriority; p++ {
		s.usedPriorities[p] = true
	}
	return s
}

// Assignment is the result of a successful Assign call: the resources a
// newly admitted scheduled stream was given.
type Assignment struct {
	SocketPriority int
	TC             int
	Queue          int
}

// Assign picks the smallest unused socket priority, the next free TC
// (starting at 1), and the next free queue (starting at numTxQueues-1,
// counting down, per spec.md section 4.5), and returns the State
// reflecting that assignment plus the Assignment itself. It does not
// mutate the receiver.
func (s State) Assign(pcp uint8) (State, Assignment, error) {
	priority, err := s.nextFreePriority()
	if err != nil {
		return State{}, Assignment{}, err
	}

	tc, err := s.nextFreeTC()
	if err != nil {
		return State{}, Assignment{}, err
	}

	queue, err := s.nextFreeQueue()
	if err != nil {
		return State{}, Assignment{}, err
	}

	next := s.clone()
	next.usedPriorities[priority] = true
	next.usedQueues[queue] = true
	next.tcToQueue[tc] = queue
	next.priorityToTC[priority] = tc
	next.priorityToPCP[priority] = pcp

	return next, Assignment{SocketPriority: priority, TC: tc, Queue: queue}, nil
}

func (s State) nextFreePriority() (int, error) {
	for p := firstScheduledPriority; p < numSocketPriorities; p++ {
		if !s.usedPriorities[p] {
			return p, nil
		}
	}
	return 0, detderr.NoCapacity("no free socket priority in 0..15")
}

func (s State) nextFreeTC() (int, error) {
	for tc := 1; ; tc++ {
		if tc >= s.numTxQueues {
			return 0, detderr.NoCapacity("no free traffic class: all hardware queues are committed")
		}
		if _, used := s.tcToQueue[tc]; !used {
			return tc, nil
		}
	}
}

func (s State) nextFreeQueue() (int, error) {
	for q := s.numTxQueues - 1; q > 0; q-- {
		if !s.usedQueues[q] {
			return q, nil
		}
	}
	return 0, detderr.NoCapacity("no free hardware Tx queue")
}

func (s State) clone() State {
	next := State{
		numTxQueues:    s.numTxQueues,
		usedPriorities: make(map[int]bool, len(s.usedPriorities)),
		usedQueues:     make(map[int]bool, len(s.usedQueues)),
		tcToQueue:      make(map[int]int, len(s.tcToQueue)),
	}
	next.priorityToTC = s.priorityToTC
	next.priorityToPCP = s.priorityToPCP
	for k, v := range s.usedPriorities {
		next.usedPriorities[k] = v
	}
	for k, v := range s.usedQueues {
		next.usedQueues[k] = v
	}
	for k, v := range s.tcToQueue {
		next.tcToQueue[k] = v
	}
	return next
}

// PriorityToTC returns the full 16-entry socket-priority -> traffic-class
// table, per spec.md section 6's taprio "map" field.
func (s State) PriorityToTC() [numSocketPriorities]int {
	return s.priorityToTC
}

// PriorityToPCP returns the VLAN egress priority->PCP map used by the
// VLAN sub-interface, per spec.md section 4.5.
func (s State) PriorityToPCP() map[int]uint8 {
	out := make(map[int]uint8, numSocketPriorities)
	for p, pcp := range s.priorityToPCP {
		if s.usedPriorities[p] && p >= firstScheduledPriority {
			out[p] = pcp
		}
	}
	return out
}

// TCToQueue returns the traffic-class -> hardware-queue table, including
// the best-effort TC 0 -> queue 0 entry.
func (s State) TCToQueue() map[int]int {
	out := make(map[int]int, len(s.tcToQueue))
	for tc, q := range s.tcToQueue {
		out[tc] = q
	}
	return out
}

// NumTC returns the number of distinct traffic classes currently in use,
// i.e. len(set(priorityToTC)) as original_source/detd/tc.py computes it.
func (s State) NumTC() int {
	seen := map[int]bool{}
	for _, tc := range s.priorityToTC {
		seen[tc] = true
	}
	return len(seen)
}
