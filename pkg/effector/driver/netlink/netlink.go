// Package netlink is the production effector.System: it renders every
// Action as a real netlink (qdisc, link) or ioctl (ethtool feature) call
// against the kernel. Grounded on the teacher's pkg/net.NetlinkProvider
// (a thin interface wrapping package-level vishvananda/netlink functions,
// kept here for the same reason: so pkg/effector/driver/netlink/netlink_test.go
// can substitute a fake without touching a real NIC) and on
// original_source/detd/tc.py (CommandStringTcTaprioOffloadSet), ip.py
// (IpLinkConfigurator) and ethtool.py (EthtoolConfigurator), which this
// driver replaces shell-outs for with direct syscalls.
package netlink

import (
	"strconv"

	"github.com/pkg/errors"
	"github.com/vishvananda/netlink"

	"github.com/agl-detd/detd-go/pkg/effector"
)

// Provider is the subset of vishvananda/netlink this driver needs,
// restated as an interface (mirroring the teacher's NetlinkProvider) so
// tests can substitute a fake link table without a real NIC.
type Provider interface {
	LinkByName(name string) (netlink.Link, error)
	LinkAdd(link netlink.Link) error
	LinkDel(link netlink.Link) error
	LinkSetUp(link netlink.Link) error
	QdiscReplace(qdisc netlink.Qdisc) error
	QdiscDel(qdisc netlink.Qdisc) error
}

type providerImpl struct{}

func (providerImpl) LinkByName(name string) (netlink.Link, error) { return netlink.LinkByName(name) }
func (providerImpl) LinkAdd(link netlink.Link) error              { return netlink.LinkAdd(link) }
func (providerImpl) LinkDel(link netlink.Link) error              { return netlink.LinkDel(link) }
func (providerImpl) LinkSetUp(link netlink.Link) error            { return netlink.LinkSetUp(link) }
func (providerImpl) QdiscReplace(qdisc netlink.Qdisc) error       { return netlink.QdiscReplace(qdisc) }
func (providerImpl) QdiscDel(qdisc netlink.Qdisc) error           { return netlink.QdiscDel(qdisc) }

// Ethtool is the subset of ethtool feature get/set this driver needs,
// restated as an interface for the same fake-without-a-NIC reason as
// Provider. The real implementation issues SIOCETHTOOL ioctls
// (ETHTOOL_GEEE/ETHTOOL_SEEE, see ethtool.go);
// vishvananda/netlink does not wrap ethtool feature flags, so this driver
// talks to the kernel directly via golang.org/x/sys/unix, the same
// low-level syscall package netlink itself is built on.
type Ethtool interface {
	Feature(iface, feature string) (bool, error)
	SetFeature(iface, feature string, on bool) error
}

// System is the production effector.System.
type System struct {
	link    Provider
	ethtool Ethtool
}

// New returns a System backed by the real kernel.
func New() *System {
	return &System{link: providerImpl{}, ethtool: newIoctlEthtool()}
}

// NewWithProviders returns a System backed by the given Provider/Ethtool,
// for tests.
func NewWithProviders(link Provider, ethtool Ethtool) *System {
	return &System{link: link, ethtool: ethtool}
}

func (s *System) SetFeature(iface, feature, value string) (string, error) {
	on := value == "on"
	prior, err := s.ethtool.Feature(iface, feature)
	if err != nil {
		return "", errors.Wrapf(err, "reading %s feature %s", iface, feature)
	}
	if err := s.ethtool.SetFeature(iface, feature, on); err != nil {
		return "", errors.Wrapf(err, "setting %s feature %s=%v", iface, feature, on)
	}
	if prior {
		return "on", nil
	}
	return "off", nil
}

func (s *System) ReplaceQdisc(iface string, spec effector.TaprioSpec) error {
	link, err := s.link.LinkByName(iface)
	if err != nil {
		return errors.Wrapf(err, "looking up link %s", iface)
	}

	qdisc := toTaprio(link.Attrs().Index, spec)
	if err := s.link.QdiscReplace(qdisc); err != nil {
		return errors.Wrapf(err, "replacing qdisc on %s", iface)
	}
	return nil
}

func (s *System) DeleteQdisc(iface string) error {
	link, err := s.link.LinkByName(iface)
	if err != nil {
		return errors.Wrapf(err, "looking up link %s", iface)
	}

	qdisc := &netlink.GenericQdisc{
		QdiscAttrs: netlink.QdiscAttrs{
			LinkIndex: link.Attrs().Index,
			Parent:    netlink.HANDLE_ROOT,
			Handle:    netlink.MakeHandle(1, 0),
		},
		QdiscType: "taprio",
	}
	if err := s.link.QdiscDel(qdisc); err != nil {
		return errors.Wrapf(err, "deleting qdisc on %s", iface)
	}
	return nil
}

func (s *System) AddVlanLink(spec effector.VlanSpec) error {
	parent, err := s.link.LinkByName(spec.Parent)
	if err != nil {
		return errors.Wrapf(err, "looking up parent link %s", spec.Parent)
	}

	vlan := &netlink.Vlan{
		LinkAttrs: netlink.LinkAttrs{
			Name:        vlanName(spec),
			ParentIndex: parent.Attrs().Index,
		},
		VlanId:       int(spec.VID),
		VlanProtocol: netlink.VLAN_PROTOCOL_8021Q,
	}
	if err := s.link.LinkAdd(vlan); err != nil {
		return errors.Wrapf(err, "adding vlan link %s", vlan.Name)
	}
	if err := s.link.LinkSetUp(vlan); err != nil {
		return errors.Wrapf(err, "setting vlan link %s up", vlan.Name)
	}
	return nil
}

func (s *System) DeleteVlanLink(name string) error {
	link, err := s.link.LinkByName(name)
	if err != nil {
		return errors.Wrapf(err, "looking up vlan link %s", name)
	}
	if err := s.link.LinkDel(link); err != nil {
		return errors.Wrapf(err, "deleting vlan link %s", name)
	}
	return nil
}

func vlanName(spec effector.VlanSpec) string {
	return spec.Parent + "." + strconv.Itoa(int(spec.VID))
}

// toTaprio converts a TaprioSpec into the vishvananda/netlink Taprio
// qdisc, restating original_source/detd/tc.py's
// CommandStringTcTaprioOffloadSet argument layout (num_tc, map, queues,
// base-time, sched-entries) as netlink attributes instead of a command
// line.
func toTaprio(linkIndex int, spec effector.TaprioSpec) *netlink.Taprio {
	taprio := &netlink.Taprio{
		QdiscAttrs: netlink.QdiscAttrs{
			LinkIndex: linkIndex,
			Parent:    netlink.HANDLE_ROOT,
			Handle:    netlink.MakeHandle(1, 0),
		},
		NumTc:    uint32(spec.NumTC),
		BaseTime: spec.BaseTime.UnixNano(),
	}

	for p, tc := range spec.PriorityToTC {
		taprio.PriorityMap[p] = uint8(tc)
	}
	for _, r := range spec.QueueRanges {
		taprio.TcToHwQueue[r.TC] = r.Offset
		taprio.TcToQueueCount[r.TC] = r.Count
	}
	for _, e := range spec.Entries {
		taprio.ScheduleEntries = append(taprio.ScheduleEntries, netlink.TcTaprioSchedEntry{
			Command:  netlink.TC_TAPRIO_CMD_SET_GATES,
			GateMask: uint32(e.GateMask),
			Interval: uint32(e.Duration.Nanoseconds()),
		})
	}

	return taprio
}
