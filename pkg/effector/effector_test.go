package effector_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/stretchr/testify/require"

	"github.com/agl-detd/detd-go/pkg/detderr"
	"github.com/agl-detd/detd-go/pkg/effector"
	"github.com/agl-detd/detd-go/pkg/effector/driver/mock"
	"github.com/agl-detd/detd-go/pkg/effector/driver/testifymock"
)

var _ = Describe("Effector", func() {

	It("applies every action in order", func() {
		sys := mock.New()
		e := effector.New(sys)

		feature := &effector.SetFeatureAction{Interface: "eth0", Feature: "eee", Value: "off"}
		vlan := &effector.AddVlanAction{Name: "eth0.3", Spec: effector.VlanSpec{Parent: "eth0", VID: 3}}

		err := e.Apply([]effector.Action{feature, vlan})
		Expect(err).ToNot(HaveOccurred())

		Expect(sys.Feature("eth0", "eee")).To(Equal("off"))
		Expect(sys.HasVlan("eth0.3")).To(BeTrue())
	})

	It("rolls back already-applied actions when a later one fails", func() {
		sys := mock.New()
		sys.FailVlan = func(spec effector.VlanSpec) error {
			return errBoom
		}
		e := effector.New(sys)

		feature := &effector.SetFeatureAction{Interface: "eth0", Feature: "eee", Value: "off"}
		vlan := &effector.AddVlanAction{Name: "eth0.3", Spec: effector.VlanSpec{Parent: "eth0", VID: 3}}

		err := e.Apply([]effector.Action{feature, vlan})
		Expect(err).To(HaveOccurred())
		kind, ok := detderr.GetKind(err)
		Expect(ok).To(BeTrue())
		Expect(kind).To(Equal(detderr.KindEffectorTransient))

		// feature was rolled back to whatever value preceded it (the
		// mock's zero value, "")
		Expect(sys.Feature("eth0", "eee")).To(Equal(""))
		Expect(sys.HasVlan("eth0.3")).To(BeFalse())
	})

	It("reports effector_fatal when rollback itself fails", func() {
		sys := mock.New()
		sys.FailDeleteQdisc = func(iface string) error { return errBoom }
		e := effector.New(sys)

		feature := &effector.SetFeatureAction{Interface: "eth0", Feature: "eee", Value: "off"}
		qdisc := &effector.ReplaceQdiscAction{
			Interface: "eth0",
			Spec: effector.TaprioSpec{
				NumTC:    1,
				Entries:  []effector.ScheduleEntry{{GateMask: 1, Duration: time.Millisecond}},
				BaseTime: time.Unix(0, 0),
			},
		}
		failing := &alwaysFailAction{}

		err := e.Apply([]effector.Action{feature, qdisc, failing})
		Expect(err).To(HaveOccurred())
		kind, ok := detderr.GetKind(err)
		Expect(ok).To(BeTrue())
		Expect(kind).To(Equal(detderr.KindEffectorFatal))
	})

	It("calls the system in the exact order actions are given, verified against a testify expectation set", func() {
		sys := testifymock.New()
		sys.On("SetFeature", "eth0", "eee", "off").Return("on", nil).Once()
		sys.On("AddVlanLink", effector.VlanSpec{Parent: "eth0", VID: 3}).Return(nil).Once()

		feature := &effector.SetFeatureAction{Interface: "eth0", Feature: "eee", Value: "off"}
		vlan := &effector.AddVlanAction{Name: "eth0.3", Spec: effector.VlanSpec{Parent: "eth0", VID: 3}}
		e := effector.New(sys)

		err := e.Apply([]effector.Action{feature, vlan})
		require.NoError(GinkgoT(), err)
		sys.AssertExpectations(GinkgoT())
	})
})

var errBoom = &boom{}

type boom struct{}

func (*boom) Error() string { return "boom" }

// alwaysFailAction is a test-only Action whose Apply always fails and
// whose presence forces Effector to attempt rolling back the actions
// applied before it.
type alwaysFailAction struct{}

func (*alwaysFailAction) Apply(effector.System) error { return errBoom }
func (*alwaysFailAction) Undo(effector.System) error  { return nil }
func (*alwaysFailAction) String() string              { return "always-fail" }
