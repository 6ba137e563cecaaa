package iface_test

import (
	"net"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/agl-detd/detd-go/pkg/detderr"
	"github.com/agl-detd/detd-go/pkg/device"
	"github.com/agl-detd/detd-go/pkg/effector"
	"github.com/agl-detd/detd-go/pkg/effector/driver/mock"
	"github.com/agl-detd/detd-go/pkg/iface"
	"github.com/agl-detd/detd-go/pkg/scheduler"
)

func mustMAC(s string) net.HardwareAddr {
	mac, err := net.ParseMAC(s)
	ExpectWithOffset(1, err).ToNot(HaveOccurred())
	return mac
}

var _ = Describe("Interface Context", func() {

	var sys *mock.System
	var ctx *iface.Context

	BeforeEach(func() {
		sys = mock.New()
		ctx = iface.New("eth0", device.Profile{
			Name:                  "test",
			NumTxQueues:           8,
			LinkBitsPerSecond:     1_000_000_000,
			DisableEEE:            true,
			BaseTimeCycleMultiple: 2,
		}, sys)
	})

	It("admits the first scheduled stream and realises the taprio qdisc and VLAN (scenario 1)", func() {
		stream := scheduler.StreamConfig{DestMAC: mustMAC("01:02:03:04:05:06"), VID: 3, PCP: 6, TxOffset: 250_000 * time.Nanosecond}
		spec := scheduler.TrafficSpec{Interval: 2_000_000 * time.Nanosecond, SizeBytes: 1522}

		vlanIface, priority, err := ctx.AddTalker(stream, spec)
		Expect(err).ToNot(HaveOccurred())
		Expect(vlanIface).To(Equal("eth0.3"))
		Expect(priority).To(Equal(7))

		Expect(sys.Feature("eth0", "eee")).To(Equal("off"))
		Expect(sys.HasVlan("eth0.3")).To(BeTrue())

		qdisc, ok := sys.Qdisc("eth0")
		Expect(ok).To(BeTrue())
		Expect(qdisc.NumTC).To(Equal(2))
		Expect(qdisc.Entries).To(HaveLen(3))
	})

	It("skips re-creating the VLAN link when a second stream reuses the same VID", func() {
		first := scheduler.StreamConfig{DestMAC: mustMAC("01:02:03:04:05:06"), VID: 3, PCP: 6, TxOffset: 250_000 * time.Nanosecond}
		firstSpec := scheduler.TrafficSpec{Interval: 2_000_000 * time.Nanosecond, SizeBytes: 1522}
		_, _, err := ctx.AddTalker(first, firstSpec)
		Expect(err).ToNot(HaveOccurred())

		// any further VLAN creation fails, so the second admission only
		// succeeds if the VLAN action is skipped
		sys.FailVlan = func(effector.VlanSpec) error { return errInjected }

		second := scheduler.StreamConfig{DestMAC: mustMAC("01:02:03:04:05:07"), VID: 3, PCP: 5, TxOffset: 1_000_000 * time.Nanosecond}
		secondSpec := scheduler.TrafficSpec{Interval: 2_000_000 * time.Nanosecond, SizeBytes: 512}
		vlanIface, _, err := ctx.AddTalker(second, secondSpec)
		Expect(err).ToNot(HaveOccurred())
		Expect(vlanIface).To(Equal("eth0.3"))
	})

	It("rolls back and leaves no residual VLAN on an injected effector failure (scenario 5)", func() {
		sys.FailVlan = func(effector.VlanSpec) error { return errInjected }

		stream := scheduler.StreamConfig{DestMAC: mustMAC("01:02:03:04:05:06"), VID: 3, PCP: 6, TxOffset: 250_000 * time.Nanosecond}
		spec := scheduler.TrafficSpec{Interval: 2_000_000 * time.Nanosecond, SizeBytes: 1522}

		_, _, err := ctx.AddTalker(stream, spec)
		Expect(err).To(HaveOccurred())
		kind, ok := detderr.GetKind(err)
		Expect(ok).To(BeTrue())
		Expect(kind).To(Equal(detderr.KindEffectorTransient))

		Expect(sys.HasVlan("eth0.3")).To(BeFalse())
		_, hasQdisc := sys.Qdisc("eth0")
		Expect(hasQdisc).To(BeFalse())
		Expect(ctx.Admissions()).To(BeEmpty())
	})

	It("rejects an overlapping admission and leaves the first stream's commit untouched (scenario 4)", func() {
		first := scheduler.StreamConfig{DestMAC: mustMAC("01:02:03:04:05:06"), VID: 3, PCP: 6, TxOffset: 250_000 * time.Nanosecond}
		firstSpec := scheduler.TrafficSpec{Interval: 2_000_000 * time.Nanosecond, SizeBytes: 1522}
		_, _, err := ctx.AddTalker(first, firstSpec)
		Expect(err).ToNot(HaveOccurred())

		conflicting := scheduler.StreamConfig{DestMAC: mustMAC("01:02:03:04:05:08"), VID: 3, PCP: 4, TxOffset: 250_000 * time.Nanosecond}
		conflictingSpec := scheduler.TrafficSpec{Interval: 2_000_000 * time.Nanosecond, SizeBytes: 256}
		_, _, err = ctx.AddTalker(conflicting, conflictingSpec)
		Expect(err).To(HaveOccurred())
		kind, ok := detderr.GetKind(err)
		Expect(ok).To(BeTrue())
		Expect(kind).To(Equal(detderr.KindScheduleConflict))

		Expect(ctx.Admissions()).To(HaveLen(1))
	})

	It("quarantines the interface after an effector rollback failure", func() {
		sys.FailVlan = func(effector.VlanSpec) error { return errInjected }
		sys.FailDeleteQdisc = func(string) error { return errInjected }

		stream := scheduler.StreamConfig{DestMAC: mustMAC("01:02:03:04:05:06"), VID: 3, PCP: 6, TxOffset: 250_000 * time.Nanosecond}
		spec := scheduler.TrafficSpec{Interval: 2_000_000 * time.Nanosecond, SizeBytes: 1522}

		_, _, err := ctx.AddTalker(stream, spec)
		Expect(err).To(HaveOccurred())
		kind, ok := detderr.GetKind(err)
		Expect(ok).To(BeTrue())
		Expect(kind).To(Equal(detderr.KindEffectorFatal))

		// subsequent admissions fail fast while degraded
		other := scheduler.StreamConfig{DestMAC: mustMAC("01:02:03:04:05:09"), VID: 4, PCP: 5, TxOffset: 0}
		otherSpec := scheduler.TrafficSpec{Interval: 1_000_000 * time.Nanosecond, SizeBytes: 100}
		_, _, err = ctx.AddTalker(other, otherSpec)
		Expect(err).To(HaveOccurred())
		kind, ok = detderr.GetKind(err)
		Expect(ok).To(BeTrue())
		Expect(kind).To(Equal(detderr.KindEffectorFatal))
	})
})

var errInjected = &injectedErr{}

type injectedErr struct{}

func (*injectedErr) Error() string { return "injected failure" }
