// Package proxy implements spec.md section 4.7: the client-side mirror of
// pkg/service, used by in-process helpers and tests that want a talker
// admission without hand-rolling the wire protocol. Grounded on the
// teacher's pattern of pairing a server package with a thin client
// (pkg/net.NetlinkProvider-style direct wrapping) restated here around a
// Unix-domain socket dial instead of a netlink handle.
package proxy

import (
	"encoding/binary"
	"io"
	"net"
	"time"

	"github.com/pkg/errors"

	"github.com/agl-detd/detd-go/pkg/detderr"
	"github.com/agl-detd/detd-go/pkg/ipc"
)

const lengthPrefixSize = 4

// dialTimeout bounds how long Proxy.RequestStreamQos waits to connect to
// the service socket, per spec.md section 4.7's "connects to the same
// socket path" — a hung or absent service must not block its caller
// indefinitely.
const dialTimeout = 5 * time.Second

// Proxy is the client-side symmetric of pkg/service.Server.
type Proxy struct {
	socketPath string
}

// New returns a Proxy that dials socketPath on every request. It holds no
// long-lived connection, matching spec.md section 4.7's one-shot
// request/response framing.
func New(socketPath string) *Proxy {
	return &Proxy{socketPath: socketPath}
}

// RequestStreamQos sends req and returns the (vlan_iface, socket_priority)
// tuple on ok=true, or a request-failed error otherwise, per spec.md
// section 4.7.
func (p *Proxy) RequestStreamQos(req ipc.StreamQosRequest) (string, int, error) {
	conn, err := net.DialTimeout("unix", p.socketPath, dialTimeout)
	if err != nil {
		return "", 0, errors.Wrapf(err, "connecting to %s", p.socketPath)
	}
	defer conn.Close()

	if err := writeFrame(conn, ipc.EncodeRequest(req)); err != nil {
		return "", 0, errors.Wrap(err, "writing request")
	}

	payload, err := readFrame(conn)
	if err != nil {
		return "", 0, errors.Wrap(err, "reading response")
	}

	resp, err := ipc.DecodeResponse(payload)
	if err != nil {
		return "", 0, errors.Wrap(err, "decoding response")
	}

	if !resp.Ok {
		return "", 0, detderr.New(detderr.KindValidation, "request failed")
	}
	return resp.VlanInterface, int(resp.SocketPriority), nil
}

func writeFrame(w io.Writer, payload []byte) error {
	var lengthBuf [lengthPrefixSize]byte
	binary.BigEndian.PutUint32(lengthBuf[:], uint32(len(payload)))
	if _, err := w.Write(lengthBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

func readFrame(r io.Reader) ([]byte, error) {
	var lengthBuf [lengthPrefixSize]byte
	if _, err := io.ReadFull(r, lengthBuf[:]); err != nil {
		return nil, err
	}
	payload := make([]byte, binary.BigEndian.Uint32(lengthBuf[:]))
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}
