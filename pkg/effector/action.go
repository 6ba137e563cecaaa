package effector

import "fmt"

// Action is one reversible step of a System Effector transaction, per
// spec.md section 4.6. Apply performs the change against sys; Undo
// reverses it using whatever state Apply captured. Grounded on the
// teacher's pkg/tc.Actuator pattern of comparing desired-vs-current state
// and issuing only the deltas, generalized here into an explicit
// forward/reverse pair so Effector can roll back a partially applied
// transaction without re-deriving "what changed".
type Action interface {
	Apply(sys System) error
	Undo(sys System) error
	fmt.Stringer
}

// SetFeatureAction sets a device feature such as "eee" to a fixed value,
// restoring whatever value was previously in effect on Undo. Grounded on
// original_source/detd/ethtool.py's EthtoolConfigurator, which disables
// EEE the same way before installing a schedule.
type SetFeatureAction struct {
	Interface string
	Feature   string
	Value     string

	prior    string
	captured bool
}

func (a *SetFeatureAction) Apply(sys System) error {
	prior, err := sys.SetFeature(a.Interface, a.Feature, a.Value)
	if err != nil {
		return err
	}
	a.prior = prior
	a.captured = true
	return nil
}

func (a *SetFeatureAction) Undo(sys System) error {
	if !a.captured {
		return nil
	}
	_, err := sys.SetFeature(a.Interface, a.Feature, a.prior)
	return err
}

func (a *SetFeatureAction) String() string {
	return fmt.Sprintf("set %s %s=%s on %s", a.Feature, a.Value, a.Interface, a.Interface)
}

// ReplaceQdiscAction installs a taprio root qdisc on Interface. Undo
// deletes the root qdisc, which leaves the kernel default (pfifo_fast);
// it does not reinstall a qdisc that was in place before Apply. Grounded on
// original_source/detd/tc.py's CommandStringTcTaprioOffloadSet and the
// teacher's pkg/tc/actuator_tc.go replace-qdisc step.
type ReplaceQdiscAction struct {
	Interface string
	Spec      TaprioSpec

	applied bool
}

func (a *ReplaceQdiscAction) Apply(sys System) error {
	if err := sys.ReplaceQdisc(a.Interface, a.Spec); err != nil {
		return err
	}
	a.applied = true
	return nil
}

func (a *ReplaceQdiscAction) Undo(sys System) error {
	if !a.applied {
		return nil
	}
	return sys.DeleteQdisc(a.Interface)
}

func (a *ReplaceQdiscAction) String() string {
	return fmt.Sprintf("replace qdisc on %s with taprio (%d entries, cycle %s)",
		a.Interface, len(a.Spec.Entries), cycleOf(a.Spec.Entries))
}

func cycleOf(entries []ScheduleEntry) string {
	var total int64
	for _, e := range entries {
		total += int64(e.Duration)
	}
	return fmt.Sprintf("%dns", total)
}

// AddVlanAction creates the VLAN sub-interface a talker's stream is routed
// through, removing it again on Undo. Grounded on
// original_source/detd/ip.py's IpLinkConfigurator, and the teacher's
// pkg/net/netlink_wrapper.go VLAN-link helpers.
type AddVlanAction struct {
	Spec VlanSpec
	Name string

	created bool
}

func (a *AddVlanAction) Apply(sys System) error {
	if err := sys.AddVlanLink(a.Spec); err != nil {
		return err
	}
	a.created = true
	return nil
}

func (a *AddVlanAction) Undo(sys System) error {
	if !a.created {
		return nil
	}
	return sys.DeleteVlanLink(a.Name)
}

func (a *AddVlanAction) String() string {
	return fmt.Sprintf("add vlan %s (vid %d) on %s", a.Name, a.Spec.VID, a.Spec.Parent)
}
