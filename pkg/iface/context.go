// Package iface implements the Interface Context of spec.md section 4.3:
// the per-NIC state machine that turns a validated talker request into a
// committed Mapping/Scheduler state and a System Effector transaction,
// with rollback on any failure. Grounded on
// original_source/detd/manager.py's per-interface dict of Device handlers
// plus systemconf.py's SystemConfigurator.setup, restated with an
// explicit lock held across allocation and effector apply per spec.md
// section 5, instead of the source's single-threaded serialisation.
package iface

import (
	"strconv"
	"sync"
	"time"

	"k8s.io/klog/v2"

	"github.com/agl-detd/detd-go/pkg/detderr"
	"github.com/agl-detd/detd-go/pkg/device"
	"github.com/agl-detd/detd-go/pkg/effector"
	"github.com/agl-detd/detd-go/pkg/mapping"
	"github.com/agl-detd/detd-go/pkg/scheduler"
)

// AdmissionRecord is one committed talker admission, kept so the
// Interface Context can answer the "Mapping state is verifiable" clause
// of spec.md section 8 scenario 6 without re-deriving it from Mapping.
type AdmissionRecord struct {
	Stream        scheduler.StreamConfig
	Spec          scheduler.TrafficSpec
	Assignment    mapping.Assignment
	VlanInterface string
}

// Context owns one interface's Mapping state, Scheduler and admission
// history, and serialises admission through a single mutex held from
// allocation through effector apply and commit, per spec.md section 5.
// Request validation runs before the mutex is taken.
type Context struct {
	name    string
	profile device.Profile
	sys     effector.System

	mu         sync.Mutex
	mapping    mapping.State
	scheduler  *scheduler.Scheduler
	admissions []AdmissionRecord
	vids       map[uint16]string

	// degraded is set once an effector undo has failed (KindEffectorFatal):
	// spec.md section 7 requires every subsequent admission on this
	// interface to fail fast until the process restarts.
	degraded    bool
	degradedErr error
}

// New returns a fresh Interface Context for name, backed by profile and
// by sys for kernel effects.
func New(name string, profile device.Profile, sys effector.System) *Context {
	return &Context{
		name:      name,
		profile:   profile,
		sys:       sys,
		mapping:   mapping.New(profile.NumTxQueues),
		scheduler: scheduler.New(),
		vids:      map[uint16]string{},
	}
}

// Name returns the interface name this Context governs.
func (c *Context) Name() string { return c.name }

// AddTalker runs spec.md section 4.3's six-step admission flow and
// returns the VLAN sub-interface name and socket priority assigned to the
// new stream.
func (c *Context) AddTalker(stream scheduler.StreamConfig, spec scheduler.TrafficSpec) (string, int, error) {
	if err := c.validate(stream, spec); err != nil {
		return "", 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.degraded {
		return "", 0, detderr.Wrap(detderr.KindEffectorFatal, c.degradedErr,
			"interface "+c.name+" is degraded after a prior rollback failure")
	}

	duration := c.profile.TransmissionDuration(spec.SizeBytes)

	nextMapping, assignment, err := c.mapping.Assign(stream.PCP)
	if err != nil {
		return "", 0, err
	}

	traffic, err := scheduler.NewScheduled(stream, spec, assignment.TC, duration)
	if err != nil {
		return "", 0, err
	}

	nextScheduler, schedule, err := c.scheduler.Add(traffic)
	if err != nil {
		return "", 0, err
	}

	if !c.profile.SupportsSchedule(len(schedule.Entries()), schedule.Cycle) {
		return "", 0, detderr.Validation("schedule exceeds device limits")
	}

	baseTime := scheduler.BaseTime(now(), schedule.Cycle, c.profile.BaseTimeCycleMultiple)

	vlanIface, existingVID := c.vids[stream.VID]
	actions := c.renderActions(nextMapping, schedule, baseTime, stream, existingVID)

	if err := effector.New(c.sys).Apply(actions); err != nil {
		if kind, ok := detderr.GetKind(err); ok && kind == detderr.KindEffectorFatal {
			c.degraded = true
			c.degradedErr = err
			klog.Errorf("interface %s degraded: %v", c.name, err)
		}
		return "", 0, err
	}

	c.mapping = nextMapping
	c.scheduler = nextScheduler

	if !existingVID {
		vlanIface = vlanSubInterface(c.name, stream.VID)
		c.vids[stream.VID] = vlanIface
	}

	c.admissions = append(c.admissions, AdmissionRecord{
		Stream:        stream,
		Spec:          spec,
		Assignment:    assignment,
		VlanInterface: vlanIface,
	})

	klog.V(1).Infof("admitted talker on %s: priority=%d tc=%d queue=%d vlan=%s",
		c.name, assignment.SocketPriority, assignment.TC, assignment.Queue, vlanIface)

	return vlanIface, assignment.SocketPriority, nil
}

// Admissions returns a copy of the committed admission history, for tests
// and introspection.
func (c *Context) Admissions() []AdmissionRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]AdmissionRecord, len(c.admissions))
	copy(out, c.admissions)
	return out
}

func (c *Context) validate(stream scheduler.StreamConfig, spec scheduler.TrafficSpec) error {
	if err := stream.Validate(); err != nil {
		return err
	}
	if err := spec.Validate(); err != nil {
		return err
	}
	if c.profile.MinCycleNanoseconds > 0 && spec.Interval.Nanoseconds() < c.profile.MinCycleNanoseconds {
		return detderr.Validation("interval is below the device's minimum cycle time")
	}
	return nil
}

// renderActions produces the ordered effector action list of spec.md
// section 4.3 step 4: EEE disable, qdisc replace, VLAN create — skipping
// the VLAN action when the VID was already realised by a prior admission
// on this interface, per original_source/detd/systemconf.py's
// already_configured_vids short-circuit.
func (c *Context) renderActions(next mapping.State, schedule scheduler.Schedule, baseTime time.Time,
	stream scheduler.StreamConfig, vidAlreadyConfigured bool) []effector.Action {

	actions := make([]effector.Action, 0, 3)

	if c.profile.DisableEEE {
		actions = append(actions, &effector.SetFeatureAction{
			Interface: c.name,
			Feature:   "eee",
			Value:     "off",
		})
	}

	actions = append(actions, &effector.ReplaceQdiscAction{
		Interface: c.name,
		Spec: effector.TaprioSpec{
			NumTC:        next.NumTC(),
			PriorityToTC: next.PriorityToTC(),
			QueueRanges:  queueRanges(next.TCToQueue()),
			BaseTime:     baseTime,
			Entries:      toScheduleEntries(schedule),
		},
	})

	if !vidAlreadyConfigured {
		actions = append(actions, &effector.AddVlanAction{
			Name: vlanSubInterface(c.name, stream.VID),
			Spec: effector.VlanSpec{
				Parent:    c.name,
				VID:       stream.VID,
				EgressPCP: next.PriorityToPCP(),
			},
		})
	}

	return actions
}

func queueRanges(tcToQueue map[int]int) []effector.QueueRange {
	out := make([]effector.QueueRange, 0, len(tcToQueue))
	for tc, queue := range tcToQueue {
		out = append(out, effector.QueueRange{TC: tc, Count: 1, Offset: queue})
	}
	return out
}

func toScheduleEntries(schedule scheduler.Schedule) []effector.ScheduleEntry {
	entries := schedule.Entries()
	out := make([]effector.ScheduleEntry, len(entries))
	for i, e := range entries {
		out[i] = effector.ScheduleEntry{GateMask: e.GateMask, Duration: e.Duration}
	}
	return out
}

func vlanSubInterface(name string, vid uint16) string {
	return name + "." + strconv.Itoa(int(vid))
}

// now is a seam so tests can fix the wall-clock instant BaseTime is
// computed from, without touching system time. Grounded on spec.md
// section 9's open question (b): base-time uses wall-clock now, not
// PTP-synchronised time — unresolved and explicitly noted, not silently
// assumed.
var now = time.Now
