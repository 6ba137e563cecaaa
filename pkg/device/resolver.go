package device

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Resolver maps a kernel interface name to the information the registry
// and Interface Context need before they can admit a talker on it.
// Grounded on original_source/detd/systemconf.py's SystemInformation
// (get_pci_id, via ethtool bus-info + /sys/bus/pci/devices/.../vendor and
// .../device), restated here against the shorter sysfs path the kernel
// already exposes under /sys/class/net, which needs no ethtool parsing.
type Resolver interface {
	// DriverID returns the "VVVV:DDDD" PCI vendor:device id backing
	// iface, in the same uppercase-hex format as the registry's keys.
	DriverID(iface string) (string, error)
	// OperState returns the kernel's reported operational state
	// ("up", "down", "unknown", ...), used by Validate to satisfy
	// spec.md section 4.3's "interface operational state can be
	// queried" precondition.
	OperState(iface string) (string, error)
}

const sysClassNet = "/sys/class/net"

// SysfsResolver is the production Resolver, reading directly from
// /sys/class/net. No library in the example corpus wraps this path —
// it is four lines of os.ReadFile, not a case for an external
// dependency.
//
// Root overrides the sysfs mount point; the zero value uses the real
// /sys/class/net, and tests set it to a temp directory standing in for
// sysfs so DriverID/OperState can be exercised without a real NIC.
type SysfsResolver struct {
	Root string
}

func (r SysfsResolver) root() string {
	if r.Root != "" {
		return r.Root
	}
	return sysClassNet
}

func (r SysfsResolver) DriverID(iface string) (string, error) {
	vendor, err := readHexID(r.root(), iface, "vendor")
	if err != nil {
		return "", err
	}
	product, err := readHexID(r.root(), iface, "device")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%s", vendor, product), nil
}

func (r SysfsResolver) OperState(iface string) (string, error) {
	path := fmt.Sprintf("%s/%s/operstate", r.root(), iface)
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrapf(err, "reading operstate for %s", iface)
	}
	return strings.TrimSpace(string(data)), nil
}

// readHexID reads <root>/<iface>/device/<field>, a "0xNNNN\n" line, and
// returns the 4-digit hex value uppercased without the "0x" prefix.
func readHexID(root, iface, field string) (string, error) {
	path := fmt.Sprintf("%s/%s/device/%s", root, iface, field)
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrapf(err, "reading %s for %s", field, iface)
	}

	s := strings.TrimSpace(string(data))
	s = strings.TrimPrefix(s, "0x")
	value, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return "", errors.Wrapf(err, "parsing %s %q for %s", field, s, iface)
	}
	return fmt.Sprintf("%04X", value), nil
}
