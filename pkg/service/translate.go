package service

import (
	"net"
	"time"

	"github.com/agl-detd/detd-go/pkg/detderr"
	"github.com/agl-detd/detd-go/pkg/manager"
	"github.com/agl-detd/detd-go/pkg/ipc"
	"github.com/agl-detd/detd-go/pkg/scheduler"
)

// toTalkerConfig validates a wire-level StreamQosRequest and converts it
// into the domain-level manager.TalkerConfig, per spec.md section 4.3
// step 1 and section 6's field list. setup_socket must be false and
// talker must be true for the current scope (listener support and
// caller-managed sockets are both explicit spec.md Non-goals).
func toTalkerConfig(req ipc.StreamQosRequest) (manager.TalkerConfig, error) {
	if req.SetupSocket {
		return manager.TalkerConfig{}, detderr.Validation("setup_socket must be false in current scope")
	}
	if !req.Talker {
		return manager.TalkerConfig{}, detderr.Validation("only talker requests are supported in current scope")
	}
	if req.Interface == "" {
		return manager.TalkerConfig{}, detderr.Validation("interface must not be empty")
	}

	mac, err := net.ParseMAC(req.Dmac)
	if err != nil {
		return manager.TalkerConfig{}, detderr.Validation("dmac is not a valid MAC address: " + err.Error())
	}

	stream := scheduler.StreamConfig{
		DestMAC:  mac,
		VID:      uint16(req.Vid),
		PCP:      uint8(req.Pcp),
		TxOffset: time.Duration(req.Txmin) * time.Nanosecond,
	}
	if err := stream.Validate(); err != nil {
		return manager.TalkerConfig{}, err
	}

	spec := scheduler.TrafficSpec{
		Interval:      time.Duration(req.Period) * time.Nanosecond,
		SizeBytes:     req.Size,
		ExpectedTxmax: time.Duration(req.Txmax) * time.Nanosecond,
	}
	if err := spec.Validate(); err != nil {
		return manager.TalkerConfig{}, err
	}

	return manager.TalkerConfig{
		Interface: req.Interface,
		Stream:    stream,
		Spec:      spec,
	}, nil
}
