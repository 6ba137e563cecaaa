// Package device holds the per-interface hardware constants used by the
// scheduler and mapping: Tx queue count, supported features, and schedule
// constraints. Grounded on original_source/detd/devices.py (Device,
// IntelMgbe) restated per spec.md's Design Note 1: a registry mapping
// driver id to a device-profile record, no inheritance.
package device

import "time"

const gbpsToBps = 1000 * 1000 * 1000

// Profile is an immutable description of the TSN capabilities of one NIC
// driver family. Looked up by driver id via a Registry.
type Profile struct {
	// Name identifies the device family, e.g. "i225", "mgbe".
	Name string

	// NumTxQueues is the number of hardware Tx queues. Mapping's TC/queue
	// allocation is bounded by this value.
	NumTxQueues int

	// LinkBitsPerSecond is the nominal link speed used to derive a
	// stream's transmission duration from its frame size.
	LinkBitsPerSecond uint64

	// DisableEEE is true if Energy-Efficient Ethernet must be turned off
	// on this device before a taprio schedule is applied (spec.md
	// glossary: EEE causes latency spikes incompatible with gating).
	DisableEEE bool

	// MaxScheduleEntries bounds how many gate-control-list entries the
	// hardware/driver combination accepts. Zero means unbounded.
	MaxScheduleEntries int

	// MinCycleNanoseconds is the smallest cycle the device can realise.
	// Zero means unbounded (no minimum).
	MinCycleNanoseconds int64

	// BaseTimeCycleMultiple is how many whole cycles of lead time the
	// device needs before a new base-time; it replaces the 2-cycle default
	// of spec.md section 4.4, and zero means that default — restated from
	// original_source/detd/manager.py's get_base_time_multiple().
	BaseTimeCycleMultiple int64
}

// TransmissionDuration returns the ceil(size*8*1e9/link_bps) duration, per
// spec.md section 3, "Traffic Specification".
func (p Profile) TransmissionDuration(sizeBytes uint32) time.Duration {
	numerator := uint64(sizeBytes) * 8 * uint64(time.Second)
	d := numerator / p.LinkBitsPerSecond
	if numerator%p.LinkBitsPerSecond != 0 {
		d++
	}
	return time.Duration(d)
}

// SupportsSchedule reports whether a gate-control list of the given length
// fits within the device's constraints.
func (p Profile) SupportsSchedule(numEntries int, cycle time.Duration) bool {
	if p.MaxScheduleEntries > 0 && numEntries > p.MaxScheduleEntries {
		return false
	}
	if p.MinCycleNanoseconds > 0 && cycle.Nanoseconds() < p.MinCycleNanoseconds {
		return false
	}
	return true
}

// Well-known profiles restated from original_source/detd/devices/*.py.
// These round out the registry with real entries so it is exercisable
// end-to-end (SPEC_FULL.md section C.1) without inventing hardware.
var (
	ProfileI210 = Profile{
		Name:                  "i210",
		NumTxQueues:           4,
		LinkBitsPerSecond:     1 * gbpsToBps,
		DisableEEE:            true,
		BaseTimeCycleMultiple: 2,
	}
	ProfileI225 = Profile{
		Name:                  "i225",
		NumTxQueues:           4,
		LinkBitsPerSecond:     1 * gbpsToBps,
		DisableEEE:            true,
		BaseTimeCycleMultiple: 2,
	}
	// ProfileI226 is a supplemented entry: original_source's IntelI226
	// handler class is a stub (raises NotImplementedError), so this
	// restates the i225 queue layout at the i226's real 2.5 Gbps link
	// rate rather than translating unimplemented source.
	ProfileI226 = Profile{
		Name:                  "i226",
		NumTxQueues:           4,
		LinkBitsPerSecond:     2500 * 1000 * 1000,
		DisableEEE:            true,
		BaseTimeCycleMultiple: 2,
	}
	ProfileMGBE = Profile{
		Name:                  "mgbe",
		NumTxQueues:           8,
		LinkBitsPerSecond:     1 * gbpsToBps,
		DisableEEE:            true,
		BaseTimeCycleMultiple: 2,
	}
)
