// Package mock provides an in-memory effector.System used by package tests
// and, per spec.md's DETD_TESTENV=HOST/CONTAINER convention, by the daemon
// itself when it is not running against real hardware. Grounded on the
// teacher's pkg/tc/driver/cmdline driver, which exists for the same reason
// (exercise the Actuator without touching the kernel), but this one keeps
// enough state to answer back, which cmdline's dry-run string rendering
// does not need to.
package mock

import (
	"fmt"
	"sync"

	"github.com/agl-detd/detd-go/pkg/effector"
)

// System is a fake effector.System backed by maps instead of netlink/ioctl
// calls. It is safe for concurrent use, matching the real drivers'
// contract (pkg/iface serializes per interface, but a test may exercise
// several interfaces against one shared mock).
type System struct {
	mu sync.Mutex

	features map[string]map[string]string
	qdiscs   map[string]effector.TaprioSpec
	vlans    map[string]effector.VlanSpec

	// FailFeature, FailQdisc, FailDeleteQdisc and FailVlan let a test
	// force a specific call to fail, to exercise Effector's rollback
	// path. FailDeleteQdisc is separate from FailQdisc so a test can let
	// ReplaceQdisc (Apply) succeed while making the subsequent
	// DeleteQdisc (Undo) fail.
	FailFeature     func(iface, feature, value string) error
	FailQdisc       func(iface string) error
	FailDeleteQdisc func(iface string) error
	FailVlan        func(spec effector.VlanSpec) error
}

// New returns an empty mock System.
func New() *System {
	return &System{
		features: map[string]map[string]string{},
		qdiscs:   map[string]effector.TaprioSpec{},
		vlans:    map[string]effector.VlanSpec{},
	}
}

func (s *System) SetFeature(iface, feature, value string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailFeature != nil {
		if err := s.FailFeature(iface, feature, value); err != nil {
			return "", err
		}
	}

	ifaceFeatures, ok := s.features[iface]
	if !ok {
		ifaceFeatures = map[string]string{}
		s.features[iface] = ifaceFeatures
	}
	prior := ifaceFeatures[feature]
	ifaceFeatures[feature] = value
	return prior, nil
}

func (s *System) ReplaceQdisc(iface string, spec effector.TaprioSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailQdisc != nil {
		if err := s.FailQdisc(iface); err != nil {
			return err
		}
	}
	s.qdiscs[iface] = spec
	return nil
}

func (s *System) DeleteQdisc(iface string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailDeleteQdisc != nil {
		if err := s.FailDeleteQdisc(iface); err != nil {
			return err
		}
	}
	delete(s.qdiscs, iface)
	return nil
}

func (s *System) AddVlanLink(spec effector.VlanSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailVlan != nil {
		if err := s.FailVlan(spec); err != nil {
			return err
		}
	}
	s.vlans[vlanName(spec)] = spec
	return nil
}

func (s *System) DeleteVlanLink(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.vlans, name)
	return nil
}

// Feature returns the current value of feature on iface, for assertions.
func (s *System) Feature(iface, feature string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.features[iface][feature]
}

// Qdisc returns the currently installed taprio spec on iface, if any.
func (s *System) Qdisc(iface string) (effector.TaprioSpec, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	spec, ok := s.qdiscs[iface]
	return spec, ok
}

// HasVlan reports whether the named VLAN link currently exists.
func (s *System) HasVlan(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.vlans[name]
	return ok
}

func vlanName(spec effector.VlanSpec) string {
	return fmt.Sprintf("%s.%d", spec.Parent, spec.VID)
}
