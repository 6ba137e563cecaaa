// Package testifymock provides a testify/mock.Mock-backed effector.System,
// for tests that want to assert on call arguments and sequencing rather
// than just inspecting resulting state the way driver/mock's hand-rolled
// fake does. Grounded on the teacher's pkg/tc/actuator_tc_test.go, which
// stands up a `mock.Mock`-embedding fake of the TC interface and sets
// expectations with `.On(...).Return(...)`.
package testifymock

import (
	"github.com/stretchr/testify/mock"

	"github.com/agl-detd/detd-go/pkg/effector"
)

// System is an effector.System whose every call is recorded on an embedded
// mock.Mock, so a test can assert call order and arguments with
// `.AssertExpectations` / `.On(...)`, the same style as the teacher's
// tcMock.
type System struct {
	mock.Mock
}

// New returns an empty testify-backed mock System. Callers set expectations
// with .On before exercising it.
func New() *System {
	return &System{}
}

func (s *System) SetFeature(iface, feature, value string) (string, error) {
	args := s.Called(iface, feature, value)
	return args.String(0), args.Error(1)
}

func (s *System) ReplaceQdisc(iface string, spec effector.TaprioSpec) error {
	args := s.Called(iface, spec)
	return args.Error(0)
}

func (s *System) DeleteQdisc(iface string) error {
	args := s.Called(iface)
	return args.Error(0)
}

func (s *System) AddVlanLink(spec effector.VlanSpec) error {
	args := s.Called(spec)
	return args.Error(0)
}

func (s *System) DeleteVlanLink(name string) error {
	args := s.Called(name)
	return args.Error(0)
}
