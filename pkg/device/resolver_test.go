package device_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/agl-detd/detd-go/pkg/device"
)

// writeSysfsIface lays out <root>/<iface>/{operstate,device/{vendor,device}}
// the way /sys/class/net does, standing in for the real sysfs mount the
// way original_source/tests/test_information.py stubs it out.
func writeSysfsIface(root, iface, operstate, vendor, product string) {
	deviceDir := filepath.Join(root, iface, "device")
	Expect(os.MkdirAll(deviceDir, 0755)).To(Succeed())
	if operstate != "" {
		Expect(os.WriteFile(filepath.Join(root, iface, "operstate"), []byte(operstate+"\n"), 0644)).To(Succeed())
	}
	if vendor != "" {
		Expect(os.WriteFile(filepath.Join(deviceDir, "vendor"), []byte(vendor+"\n"), 0644)).To(Succeed())
	}
	if product != "" {
		Expect(os.WriteFile(filepath.Join(deviceDir, "device"), []byte(product+"\n"), 0644)).To(Succeed())
	}
}

var _ = Describe("SysfsResolver", func() {
	var (
		root     string
		resolver device.SysfsResolver
	)

	BeforeEach(func() {
		root = GinkgoT().TempDir()
		resolver = device.SysfsResolver{Root: root}
	})

	Describe("DriverID", func() {
		It("reads and uppercases the vendor:device PCI id", func() {
			writeSysfsIface(root, "eth0", "up", "0x8086", "0x1533")

			id, err := resolver.DriverID("eth0")
			Expect(err).NotTo(HaveOccurred())
			Expect(id).To(Equal("8086:1533"))
		})

		It("accepts ids without the 0x prefix", func() {
			writeSysfsIface(root, "eth0", "up", "8086", "15f3")

			id, err := resolver.DriverID("eth0")
			Expect(err).NotTo(HaveOccurred())
			Expect(id).To(Equal("8086:15F3"))
		})

		It("errors when the vendor file is missing", func() {
			Expect(os.MkdirAll(filepath.Join(root, "eth0", "device"), 0755)).To(Succeed())

			_, err := resolver.DriverID("eth0")
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("vendor"))
		})

		It("errors when the device id is not valid hex", func() {
			writeSysfsIface(root, "eth0", "up", "0x8086", "not-hex")

			_, err := resolver.DriverID("eth0")
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("device"))
		})
	})

	Describe("OperState", func() {
		It("returns the trimmed operstate", func() {
			writeSysfsIface(root, "eth0", "down", "0x8086", "0x1533")

			state, err := resolver.OperState("eth0")
			Expect(err).NotTo(HaveOccurred())
			Expect(state).To(Equal("down"))
		})

		It("errors when the interface has no operstate file", func() {
			_, err := resolver.OperState("eth99")
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("operstate"))
		})
	})
})
