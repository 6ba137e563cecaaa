// Package cmdline implements a non-executing effector.System that renders
// each action as the tc/ip/ethtool command line that would produce it,
// for operators running the daemon with --dry-run. Grounded on the
// teacher's pkg/tc/driver/cmdline (a TC backend that shells out to the
// real tc binary) and on original_source/detd/tc.py, ip.py and ethtool.py,
// whose CommandString* classes build exactly these argument lists; unlike
// both of those, this driver never executes anything — it only logs and
// records the strings, per SPEC_FULL.md's "command-string dry-run driver"
// supplemented feature.
package cmdline

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"k8s.io/klog/v2"

	"github.com/agl-detd/detd-go/pkg/effector"
)

// System renders effector actions as command strings instead of applying
// them, logging each rendered line at klog verbosity 1 and recording it
// for inspection through Commands.
type System struct {
	mu       sync.Mutex
	commands []string
}

// New returns a System that only renders commands.
func New() *System {
	return &System{}
}

// Commands returns every command string rendered so far, in issue order.
func (s *System) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.commands))
	copy(out, s.commands)
	return out
}

func (s *System) record(cmd string) {
	klog.V(1).Infof("dry-run: %s", cmd)
	s.mu.Lock()
	s.commands = append(s.commands, cmd)
	s.mu.Unlock()
}

func (s *System) SetFeature(iface, feature, value string) (string, error) {
	s.record(fmt.Sprintf("ethtool -K %s %s %s", iface, feature, value))
	return "", nil
}

// ReplaceQdisc renders the taprio replace command the way
// original_source/detd/tc.py's CommandStringTcTaprioOffloadSet does: a
// "tc qdisc replace dev IFACE parent root handle 100 taprio" line followed
// by num_tc/map/queues/base-time/sched-entry arguments.
func (s *System) ReplaceQdisc(iface string, spec effector.TaprioSpec) error {
	var b strings.Builder
	fmt.Fprintf(&b, "tc qdisc replace dev %s parent root handle 100 taprio", iface)
	fmt.Fprintf(&b, " num_tc %d", spec.NumTC)
	fmt.Fprintf(&b, " map %s", renderPriorityMap(spec.PriorityToTC))
	fmt.Fprintf(&b, " queues %s", renderQueues(spec.QueueRanges))
	fmt.Fprintf(&b, " base-time %d", spec.BaseTime.UnixNano())
	for _, e := range spec.Entries {
		fmt.Fprintf(&b, " sched-entry S %02x %d", e.GateMask, e.Duration.Nanoseconds())
	}
	fmt.Fprintf(&b, " flags 0x2")
	s.record(b.String())
	return nil
}

func (s *System) DeleteQdisc(iface string) error {
	s.record(fmt.Sprintf("tc qdisc del dev %s parent root", iface))
	return nil
}

func (s *System) AddVlanLink(spec effector.VlanSpec) error {
	name := fmt.Sprintf("%s.%d", spec.Parent, spec.VID)
	s.record(fmt.Sprintf("ip link add link %s name %s type vlan id %d egress-qos-map %s",
		spec.Parent, name, spec.VID, renderEgressMap(spec.EgressPCP)))
	s.record(fmt.Sprintf("ip link set dev %s up", name))
	return nil
}

func (s *System) DeleteVlanLink(name string) error {
	s.record(fmt.Sprintf("ip link del dev %s", name))
	return nil
}

func renderPriorityMap(table [16]int) string {
	parts := make([]string, len(table))
	for i, tc := range table {
		parts[i] = fmt.Sprintf("%d", tc)
	}
	return strings.Join(parts, " ")
}

func renderQueues(ranges []effector.QueueRange) string {
	sorted := make([]effector.QueueRange, len(ranges))
	copy(sorted, ranges)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].TC < sorted[j].TC })

	parts := make([]string, len(sorted))
	for i, r := range sorted {
		parts[i] = fmt.Sprintf("%d@%d", r.Count, r.Offset)
	}
	return strings.Join(parts, " ")
}

func renderEgressMap(egress map[int]uint8) string {
	priorities := make([]int, 0, len(egress))
	for p := range egress {
		priorities = append(priorities, p)
	}
	sort.Ints(priorities)

	parts := make([]string, 0, len(priorities))
	for _, p := range priorities {
		parts = append(parts, fmt.Sprintf("%d:%d", p, egress[p]))
	}
	return strings.Join(parts, " ")
}
