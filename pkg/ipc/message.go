// Package ipc implements the wire format of spec.md section 6: a
// DetdMessage oneof of StreamQosRequest/StreamQosResponse, encoded with
// the protobuf wire format. Grounded on original_source/detd/ipc.py's
// Message class (encode_stream_qos_request/response,
// decode_stream_qos_request/response) for field names and semantics; no
// ipc.proto or generated *_pb2 code ships with the example corpus, so
// field numbers below are this module's own assignment, encoded directly
// against google.golang.org/protobuf/encoding/protowire rather than
// through generated message types.
package ipc

import (
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/agl-detd/detd-go/pkg/detderr"
)

// Field numbers for StreamQosRequest, in original_source/detd/ipc.py's
// encode_stream_qos_request assignment order.
const (
	fieldInterface    = 1
	fieldPeriod       = 2
	fieldSize         = 3
	fieldDmac         = 4
	fieldVid          = 5
	fieldPcp          = 6
	fieldTxmin        = 7
	fieldTxmax        = 8
	fieldSetupSocket  = 9
	fieldBasetime     = 10
	fieldTalker       = 11
	fieldMaddress     = 12
	fieldHints        = 13
)

// Field numbers for StreamQosResponse.
const (
	fieldOk             = 1
	fieldVlanInterface  = 2
	fieldSocketPriority = 3
)

// Field numbers for the DetdMessage oneof wrapper.
const (
	fieldStreamQosRequest  = 1
	fieldStreamQosResponse = 2
)

// Hints mirrors original_source/detd/ipc.py's HintsMessage, carried
// through the wire format but not interpreted by this module — SPEC_FULL.md
// leaves Hints interpretation to a later extension, matching spec.md's
// "current scope" framing of setup_socket and basetime.
type Hints struct {
	TxSelection           uint32
	TxSelectionOffload    bool
	DataPath              uint32
	Preemption            bool
	LaunchTimeControl     bool
}

// StreamQosRequest is the wire-level request, before domain validation.
// Field names and units match spec.md section 6 exactly.
type StreamQosRequest struct {
	Interface   string
	Period      uint32 // ns
	Size        uint32 // bytes
	Dmac        string // "XX:XX:XX:XX:XX:XX"
	Vid         uint32
	Pcp         uint32
	Txmin       uint32 // ns, used as txoffset
	Txmax       uint32 // ns, upper bound of the transmit window
	SetupSocket bool
	Basetime    uint32 // ns; carried on the wire only: the service always computes base-time from the cycle
	Talker      bool
	Maddress    string
	Hints       *Hints
}

// StreamQosResponse is the wire-level response.
type StreamQosResponse struct {
	Ok             bool
	VlanInterface  string
	SocketPriority uint32
}

// EncodeRequest serialises req as a DetdMessage carrying a
// stream_qos_request.
func EncodeRequest(req StreamQosRequest) []byte {
	inner := encodeRequestFields(req)
	var b []byte
	b = protowire.AppendTag(b, fieldStreamQosRequest, protowire.BytesType)
	b = protowire.AppendBytes(b, inner)
	return b
}

// EncodeResponse serialises resp as a DetdMessage carrying a
// stream_qos_response.
func EncodeResponse(resp StreamQosResponse) []byte {
	inner := encodeResponseFields(resp)
	var b []byte
	b = protowire.AppendTag(b, fieldStreamQosResponse, protowire.BytesType)
	b = protowire.AppendBytes(b, inner)
	return b
}

func encodeRequestFields(req StreamQosRequest) []byte {
	var b []byte
	b = appendString(b, fieldInterface, req.Interface)
	b = appendVarint(b, fieldPeriod, uint64(req.Period))
	b = appendVarint(b, fieldSize, uint64(req.Size))
	b = appendString(b, fieldDmac, req.Dmac)
	b = appendVarint(b, fieldVid, uint64(req.Vid))
	b = appendVarint(b, fieldPcp, uint64(req.Pcp))
	b = appendVarint(b, fieldTxmin, uint64(req.Txmin))
	b = appendVarint(b, fieldTxmax, uint64(req.Txmax))
	b = appendBool(b, fieldSetupSocket, req.SetupSocket)
	b = appendVarint(b, fieldBasetime, uint64(req.Basetime))
	b = appendBool(b, fieldTalker, req.Talker)
	b = appendString(b, fieldMaddress, req.Maddress)
	if req.Hints != nil {
		b = protowire.AppendTag(b, fieldHints, protowire.BytesType)
		b = protowire.AppendBytes(b, encodeHints(*req.Hints))
	}
	return b
}

func encodeHints(h Hints) []byte {
	var b []byte
	b = appendVarint(b, 1, uint64(h.TxSelection))
	b = appendBool(b, 2, h.TxSelectionOffload)
	b = appendVarint(b, 3, uint64(h.DataPath))
	b = appendBool(b, 4, h.Preemption)
	b = appendBool(b, 5, h.LaunchTimeControl)
	return b
}

func encodeResponseFields(resp StreamQosResponse) []byte {
	var b []byte
	b = appendBool(b, fieldOk, resp.Ok)
	b = appendString(b, fieldVlanInterface, resp.VlanInterface)
	b = appendVarint(b, fieldSocketPriority, uint64(resp.SocketPriority))
	return b
}

// DecodeRequest parses a DetdMessage expected to carry a
// stream_qos_request. A message carrying anything else, or malformed
// wire data, is a protocol error per spec.md section 7.
func DecodeRequest(data []byte) (StreamQosRequest, error) {
	var req StreamQosRequest
	var found bool

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return StreamQosRequest{}, detderr.Protocol("malformed field tag")
		}
		data = data[n:]

		if num != fieldStreamQosRequest || typ != protowire.BytesType {
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return StreamQosRequest{}, detderr.Protocol("malformed field value")
			}
			data = data[n:]
			continue
		}

		inner, n := protowire.ConsumeBytes(data)
		if n < 0 {
			return StreamQosRequest{}, detderr.Protocol("malformed stream_qos_request")
		}
		data = data[n:]

		decoded, err := decodeRequestFields(inner)
		if err != nil {
			return StreamQosRequest{}, err
		}
		req = decoded
		found = true
	}

	if !found {
		return StreamQosRequest{}, detderr.Protocol("message did not contain a stream_qos_request")
	}
	return req, nil
}

func decodeRequestFields(data []byte) (StreamQosRequest, error) {
	var req StreamQosRequest

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return StreamQosRequest{}, detderr.Protocol("malformed field tag in stream_qos_request")
		}
		data = data[n:]

		switch {
		case num == fieldInterface && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return StreamQosRequest{}, detderr.Protocol("malformed interface field")
			}
			req.Interface = v
			data = data[n:]
		case num == fieldPeriod && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return StreamQosRequest{}, detderr.Protocol("malformed period field")
			}
			req.Period = uint32(v)
			data = data[n:]
		case num == fieldSize && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return StreamQosRequest{}, detderr.Protocol("malformed size field")
			}
			req.Size = uint32(v)
			data = data[n:]
		case num == fieldDmac && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return StreamQosRequest{}, detderr.Protocol("malformed dmac field")
			}
			req.Dmac = v
			data = data[n:]
		case num == fieldVid && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return StreamQosRequest{}, detderr.Protocol("malformed vid field")
			}
			req.Vid = uint32(v)
			data = data[n:]
		case num == fieldPcp && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return StreamQosRequest{}, detderr.Protocol("malformed pcp field")
			}
			req.Pcp = uint32(v)
			data = data[n:]
		case num == fieldTxmin && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return StreamQosRequest{}, detderr.Protocol("malformed txmin field")
			}
			req.Txmin = uint32(v)
			data = data[n:]
		case num == fieldTxmax && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return StreamQosRequest{}, detderr.Protocol("malformed txmax field")
			}
			req.Txmax = uint32(v)
			data = data[n:]
		case num == fieldSetupSocket && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return StreamQosRequest{}, detderr.Protocol("malformed setup_socket field")
			}
			req.SetupSocket = v != 0
			data = data[n:]
		case num == fieldBasetime && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return StreamQosRequest{}, detderr.Protocol("malformed basetime field")
			}
			req.Basetime = uint32(v)
			data = data[n:]
		case num == fieldTalker && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return StreamQosRequest{}, detderr.Protocol("malformed talker field")
			}
			req.Talker = v != 0
			data = data[n:]
		case num == fieldMaddress && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return StreamQosRequest{}, detderr.Protocol("malformed maddress field")
			}
			req.Maddress = v
			data = data[n:]
		case num == fieldHints && typ == protowire.BytesType:
			inner, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return StreamQosRequest{}, detderr.Protocol("malformed hints field")
			}
			hints, err := decodeHints(inner)
			if err != nil {
				return StreamQosRequest{}, err
			}
			req.Hints = &hints
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return StreamQosRequest{}, detderr.Protocol("malformed unknown field")
			}
			data = data[n:]
		}
	}

	return req, nil
}

func decodeHints(data []byte) (Hints, error) {
	var h Hints
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return Hints{}, detderr.Protocol("malformed field tag in hints")
		}
		data = data[n:]

		switch {
		case num == 1 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return Hints{}, detderr.Protocol("malformed hints tx_selection field")
			}
			h.TxSelection = uint32(v)
			data = data[n:]
		case num == 2 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return Hints{}, detderr.Protocol("malformed hints tx_selection_offload field")
			}
			h.TxSelectionOffload = v != 0
			data = data[n:]
		case num == 3 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return Hints{}, detderr.Protocol("malformed hints data_path field")
			}
			h.DataPath = uint32(v)
			data = data[n:]
		case num == 4 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return Hints{}, detderr.Protocol("malformed hints preemption field")
			}
			h.Preemption = v != 0
			data = data[n:]
		case num == 5 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return Hints{}, detderr.Protocol("malformed hints launch_time_control field")
			}
			h.LaunchTimeControl = v != 0
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return Hints{}, detderr.Protocol("malformed unknown hints field")
			}
			data = data[n:]
		}
	}
	return h, nil
}

// DecodeResponse parses a DetdMessage expected to carry a
// stream_qos_response.
func DecodeResponse(data []byte) (StreamQosResponse, error) {
	var resp StreamQosResponse
	var found bool

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return StreamQosResponse{}, detderr.Protocol("malformed field tag")
		}
		data = data[n:]

		if num != fieldStreamQosResponse || typ != protowire.BytesType {
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return StreamQosResponse{}, detderr.Protocol("malformed field value")
			}
			data = data[n:]
			continue
		}

		inner, n := protowire.ConsumeBytes(data)
		if n < 0 {
			return StreamQosResponse{}, detderr.Protocol("malformed stream_qos_response")
		}
		data = data[n:]

		decoded, err := decodeResponseFields(inner)
		if err != nil {
			return StreamQosResponse{}, err
		}
		resp = decoded
		found = true
	}

	if !found {
		return StreamQosResponse{}, detderr.Protocol("message did not contain a stream_qos_response")
	}
	return resp, nil
}

func decodeResponseFields(data []byte) (StreamQosResponse, error) {
	var resp StreamQosResponse

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return StreamQosResponse{}, detderr.Protocol("malformed field tag in stream_qos_response")
		}
		data = data[n:]

		switch {
		case num == fieldOk && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return StreamQosResponse{}, detderr.Protocol("malformed ok field")
			}
			resp.Ok = v != 0
			data = data[n:]
		case num == fieldVlanInterface && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return StreamQosResponse{}, detderr.Protocol("malformed vlan_interface field")
			}
			resp.VlanInterface = v
			data = data[n:]
		case num == fieldSocketPriority && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return StreamQosResponse{}, detderr.Protocol("malformed socket_priority field")
			}
			resp.SocketPriority = uint32(v)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return StreamQosResponse{}, detderr.Protocol("malformed unknown field")
			}
			data = data[n:]
		}
	}

	return resp, nil
}

func appendString(b []byte, field protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, field, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendVarint(b []byte, field protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, field, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBool(b []byte, field protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	return appendVarint(b, field, 1)
}
