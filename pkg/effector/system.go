// Package effector implements the System Effector of spec.md section 4.6:
// a list of reversible Actions applied in order, rolled back on the first
// failure. Grounded on the teacher's pkg/tc.Actuator (an interface with a
// single Actuate(objects) method that lists current kernel state, diffs it
// against the desired state, and applies/removes only what changed) and on
// original_source/detd/systemconf.py's SystemConfigurator, which composes
// DeviceConfigurator + QdiscConfigurator + VlanConfigurator the same way
// this package composes Actions.
//
// The concrete set of shell/netlink calls issued to the kernel is out of
// spec.md's scope (section 1): System is the abstract interface; concrete
// backends live in the driver subpackages.
package effector

import "time"

// TaprioSpec is the taprio qdisc configuration an effector Action renders,
// restated from original_source/detd/tc.py's
// CommandStringTcTaprioOffloadSet parameters (num_tc, map, queues,
// base-time, sched-entries) and spec.md section 6's kernel-effects list.
type TaprioSpec struct {
	NumTC        int
	PriorityToTC [16]int
	QueueRanges  []QueueRange
	BaseTime     time.Time
	Entries      []ScheduleEntry
}

// QueueRange is one "count@offset" term of the taprio "queues" argument,
// one per traffic class.
type QueueRange struct {
	TC     int
	Count  int
	Offset int
}

// ScheduleEntry is one taprio "sched-entry S <mask> <duration>" line.
type ScheduleEntry struct {
	GateMask uint8
	Duration time.Duration
}

// VlanSpec describes the 802.1Q sub-interface an AddVlanAction
// creates, per spec.md section 6.
type VlanSpec struct {
	Parent     string
	VID        uint16
	EgressPCP  map[int]uint8 // socket priority -> PCP
}

// System is the abstract interface to the OS that Actions are rendered
// against. A System must snapshot any value it is about to change before
// changing it, so that Undo can restore exactly what Apply overwrote —
// spec.md section 4.6: "the effector must snapshot 'prior value' before
// issuing the change; undo uses the snapshot, never assumed defaults."
type System interface {
	// SetFeature sets a device feature (e.g. "eee") to value and returns
	// the value that was in effect before the change, for Undo to
	// restore.
	SetFeature(iface, feature, value string) (prior string, err error)

	// ReplaceQdisc installs spec as the root qdisc on iface, replacing
	// whatever was there before.
	ReplaceQdisc(iface string, spec TaprioSpec) error
	// DeleteQdisc removes the root qdisc on iface, restoring pfifo_fast.
	DeleteQdisc(iface string) error

	// AddVlanLink creates the VLAN sub-interface described by spec.
	AddVlanLink(spec VlanSpec) error
	// DeleteVlanLink removes the named VLAN sub-interface.
	DeleteVlanLink(name string) error
}
