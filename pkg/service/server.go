// Package service implements spec.md section 4.1: the Unix-domain socket
// server that accepts length-prefixed protobuf frames and dispatches
// StreamQosRequests to the Manager. Grounded on the teacher's
// pkg/server.Server lifecycle (Options-driven construction, klog
// logging, graceful shutdown via context) restated around net.Listener
// instead of a Kubernetes informer loop.
package service

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"os"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/agl-detd/detd-go/pkg/detderr"
	"github.com/agl-detd/detd-go/pkg/ipc"
	"github.com/agl-detd/detd-go/pkg/manager"
)

const lengthPrefixSize = 4

// Dispatcher is the subset of *manager.Manager the Service needs,
// restated as an interface so tests can substitute a fake without
// standing up a real Manager/effector stack.
type Dispatcher interface {
	AddTalker(cfg manager.TalkerConfig) (vlanIface string, socketPriority int, err error)
}

// Server is the Service of spec.md section 4.1.
type Server struct {
	opts *Options
	mgr  Dispatcher

	listener net.Listener
	sem      chan struct{}
}

// New returns a Server that will bind opts.SocketPath and dispatch
// requests to mgr.
func New(opts *Options, mgr Dispatcher) *Server {
	return &Server{
		opts: opts,
		mgr:  mgr,
		sem:  make(chan struct{}, opts.Workers),
	}
}

// Run binds the socket and serves connections until ctx is cancelled. It
// blocks until shutdown completes.
func (s *Server) Run(ctx context.Context) error {
	if err := os.Remove(s.opts.SocketPath); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "removing stale socket at %s", s.opts.SocketPath)
	}

	listener, err := net.Listen("unix", s.opts.SocketPath)
	if err != nil {
		return errors.Wrapf(err, "binding unix socket at %s", s.opts.SocketPath)
	}
	s.listener = listener

	if err := os.Chmod(s.opts.SocketPath, os.FileMode(s.opts.SocketMode)); err != nil {
		listener.Close()
		return errors.Wrapf(err, "setting socket permissions on %s", s.opts.SocketPath)
	}

	klog.Infof("service listening on %s (workers=%d, max-frame=%d)", s.opts.SocketPath, s.opts.Workers, s.opts.MaxFrameBytes)

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return errors.Wrap(err, "accepting connection")
			}
		}

		s.sem <- struct{}{}
		go func() {
			defer func() { <-s.sem }()
			s.handle(conn)
		}()
	}
}

// handle serves exactly one request/response exchange on conn, per
// spec.md section 4.1, then closes it.
func (s *Server) handle(conn net.Conn) {
	defer conn.Close()

	payload, err := readFrame(conn, s.opts.MaxFrameBytes)
	if err != nil {
		klog.Warningf("dropping connection: %v", err)
		return
	}

	req, err := ipc.DecodeRequest(payload)
	if err != nil {
		klog.Warningf("dropping connection: malformed request: %v", err)
		return
	}

	resp := s.dispatch(req)

	if err := writeFrame(conn, ipc.EncodeResponse(resp)); err != nil {
		klog.Warningf("writing response: %v", err)
	}
}

func (s *Server) dispatch(req ipc.StreamQosRequest) ipc.StreamQosResponse {
	cfg, err := toTalkerConfig(req)
	if err != nil {
		klog.Warningf("rejecting request for %s: %v", req.Interface, err)
		return ipc.StreamQosResponse{Ok: false}
	}

	vlanIface, priority, err := s.mgr.AddTalker(cfg)
	if err != nil {
		klog.Warningf("admission failed for %s: %v", req.Interface, err)
		return ipc.StreamQosResponse{Ok: false}
	}

	return ipc.StreamQosResponse{Ok: true, VlanInterface: vlanIface, SocketPriority: uint32(priority)}
}

// readFrame reads one u32-length-prefixed payload, per spec.md section
// 4.1. A zero length or a length exceeding maxBytes terminates the
// connection without a response.
func readFrame(r io.Reader, maxBytes uint32) ([]byte, error) {
	var lengthBuf [lengthPrefixSize]byte
	if _, err := io.ReadFull(r, lengthBuf[:]); err != nil {
		return nil, detderr.Protocol("reading frame length: " + err.Error())
	}

	length := binary.BigEndian.Uint32(lengthBuf[:])
	if length == 0 {
		return nil, detderr.Protocol("zero-length frame")
	}
	if length > maxBytes {
		return nil, detderr.Protocol("frame exceeds maximum size")
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, detderr.Protocol("reading frame payload: " + err.Error())
	}
	return payload, nil
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
