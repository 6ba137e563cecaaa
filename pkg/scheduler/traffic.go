// Package scheduler maintains the set of admitted (traffic class, stream)
// entries on one interface and computes a merged gate-control list.
// Grounded on original_source/detd/scheduler.py and manager.py (Schedule,
// Slot, Traffic, Scheduler.add/reschedule), restated as a pure,
// copy-on-write API per spec.md's Design Note "Scheduler purity": Add
// returns a new Scheduler and Schedule rather than mutating in place, so
// the caller (pkg/iface) can discard a tentative admission trivially on
// rollback.
package scheduler

import (
	"fmt"
	"net"
	"time"

	"github.com/agl-detd/detd-go/pkg/detderr"
)

// TrafficType distinguishes scheduled (gated) traffic from best-effort
// traffic, per spec.md section 3.
type TrafficType int

const (
	// BestEffort traffic shares TC 0 / queue 0 and fills the complement
	// of the gate-control list.
	BestEffort TrafficType = iota
	// Scheduled traffic is admitted talker traffic with a dedicated gate
	// slot once per cycle repetition of its period.
	Scheduled
)

func (t TrafficType) String() string {
	if t == Scheduled {
		return "scheduled"
	}
	return "best_effort"
}

// StreamConfig is spec.md section 3's "Stream Configuration": destination
// MAC, VLAN id, PCP, and the transmission offset within the stream's own
// cycle.
type StreamConfig struct {
	DestMAC  net.HardwareAddr
	VID      uint16
	PCP      uint8
	TxOffset time.Duration
}

// Validate checks the invariants from spec.md section 4.3 step 1 that are
// local to the stream configuration (the caller additionally checks
// TxOffset against the traffic spec's interval, since that crosses both
// structs).
func (s StreamConfig) Validate() error {
	if len(s.DestMAC) != 6 {
		return detderr.Validation("destination MAC must be 48 bits")
	}
	if s.VID < 1 || s.VID > 4094 {
		return detderr.Validation("VLAN id must be in 1..4094")
	}
	if s.PCP > 7 {
		return detderr.Validation("PCP must be in 0..7")
	}
	if s.TxOffset < 0 {
		return detderr.Validation("tx offset must be non-negative")
	}
	return nil
}

// TrafficSpec is spec.md section 3's "Traffic Specification": cycle
// interval and frame size.
type TrafficSpec struct {
	Interval  time.Duration
	SizeBytes uint32

	// ExpectedTxmax, when non-zero, is the wire request's txmax field
	// restated relative to the stream's cycle start. spec.md section 9's
	// open question (a) resolves txmin as authoritative and requires
	// txmax to equal txmin + duration_ns exactly; NewScheduled enforces
	// that once duration is known. Zero opts out, for callers (tests,
	// direct programmatic admission) that have no wire-level txmax to
	// check.
	ExpectedTxmax time.Duration
}

// Validate checks the fields that do not require a link speed.
func (t TrafficSpec) Validate() error {
	if t.Interval <= 0 {
		return detderr.Validation("interval must be positive")
	}
	if t.SizeBytes == 0 {
		return detderr.Validation("frame size must be positive")
	}
	return nil
}

// Traffic is the admitted triple of spec.md section 3: a stream, its
// traffic spec, and its type. Duration is the precomputed transmission
// duration (spec.md section 3's "duration_ns"), and TC is the assigned
// traffic class (0 for best effort, device.Profile-bound for scheduled).
type Traffic struct {
	Type     TrafficType
	Stream   StreamConfig
	Spec     TrafficSpec
	TC       int
	Duration time.Duration
}

// NewBestEffort returns the process-wide best-effort Traffic, always on
// TC 0.
func NewBestEffort() Traffic {
	return Traffic{Type: BestEffort, TC: 0}
}

// NewScheduled returns a Scheduled Traffic bound to tc, carrying the
// caller-computed transmission duration (see
// device.Profile.TransmissionDuration).
func NewScheduled(stream StreamConfig, spec TrafficSpec, tc int, duration time.Duration) (Traffic, error) {
	if stream.TxOffset >= spec.Interval {
		return Traffic{}, detderr.Validation("tx offset must be strictly less than the interval")
	}
	if duration > spec.Interval {
		return Traffic{}, detderr.Validation("frame transmission duration exceeds the interval")
	}
	if spec.ExpectedTxmax != 0 && stream.TxOffset+duration != spec.ExpectedTxmax {
		return Traffic{}, detderr.Validation("txmax does not equal txmin + transmission duration")
	}
	return Traffic{
		Type:     Scheduled,
		Stream:   stream,
		Spec:     spec,
		TC:       tc,
		Duration: duration,
	}, nil
}

func (t Traffic) String() string {
	if t.Type == BestEffort {
		return "BE"
	}
	return fmt.Sprintf("Sc tc=%d interval=%s offset=%s duration=%s", t.TC, t.Spec.Interval, t.Stream.TxOffset, t.Duration)
}
