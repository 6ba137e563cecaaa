package service_test

import (
	"context"
	"encoding/binary"
	"net"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/agl-detd/detd-go/pkg/ipc"
	"github.com/agl-detd/detd-go/pkg/manager"
	"github.com/agl-detd/detd-go/pkg/service"
)

type fakeDispatcher struct {
	vlanIface string
	priority  int
	err       error

	lastCfg manager.TalkerConfig
}

func (f *fakeDispatcher) AddTalker(cfg manager.TalkerConfig) (string, int, error) {
	f.lastCfg = cfg
	return f.vlanIface, f.priority, f.err
}

func testOptions(socketPath string) *service.Options {
	opts := service.NewOptions()
	opts.SocketPath = socketPath
	opts.Workers = 2
	return opts
}

func writeRawFrame(conn net.Conn, payload []byte) {
	var lengthBuf [4]byte
	binary.BigEndian.PutUint32(lengthBuf[:], uint32(len(payload)))
	_, err := conn.Write(lengthBuf[:])
	ExpectWithOffset(1, err).ToNot(HaveOccurred())
	_, err = conn.Write(payload)
	ExpectWithOffset(1, err).ToNot(HaveOccurred())
}

func readRawFrame(conn net.Conn) ([]byte, error) {
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var lengthBuf [4]byte
	if _, err := readFull(conn, lengthBuf[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(lengthBuf[:])
	payload := make([]byte, length)
	if _, err := readFull(conn, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

var _ = Describe("Server", func() {

	var (
		socketPath string
		cancel     context.CancelFunc
		done       chan error
	)

	startServer := func(dispatcher *fakeDispatcher) {
		ctx, c := context.WithCancel(context.Background())
		cancel = c
		srv := service.New(testOptions(socketPath), dispatcher)
		done = make(chan error, 1)
		go func() { done <- srv.Run(ctx) }()
		Eventually(func() error {
			conn, err := net.Dial("unix", socketPath)
			if err == nil {
				conn.Close()
			}
			return err
		}).Should(Succeed())
	}

	BeforeEach(func() {
		dir := GinkgoT().TempDir()
		socketPath = dir + "/detd.sock"
	})

	AfterEach(func() {
		if cancel != nil {
			cancel()
			Eventually(done).Should(Receive())
		}
	})

	It("serves a valid request and returns the dispatcher's response", func() {
		dispatcher := &fakeDispatcher{vlanIface: "eth0.3", priority: 7}
		startServer(dispatcher)

		conn, err := net.Dial("unix", socketPath)
		Expect(err).ToNot(HaveOccurred())
		defer conn.Close()

		req := ipc.StreamQosRequest{
			Interface: "eth0",
			Period:    2_000_000,
			Size:      1522,
			Dmac:      "01:02:03:04:05:06",
			Vid:       3,
			Pcp:       6,
			Txmin:     250_000,
			Talker:    true,
		}
		writeRawFrame(conn, ipc.EncodeRequest(req))

		payload, err := readRawFrame(conn)
		Expect(err).ToNot(HaveOccurred())

		resp, err := ipc.DecodeResponse(payload)
		Expect(err).ToNot(HaveOccurred())
		Expect(resp.Ok).To(BeTrue())
		Expect(resp.VlanInterface).To(Equal("eth0.3"))
		Expect(resp.SocketPriority).To(Equal(uint32(7)))

		Expect(dispatcher.lastCfg.Interface).To(Equal("eth0"))
	})

	It("returns ok=false when the dispatcher rejects the request", func() {
		dispatcher := &fakeDispatcher{err: errRejected}
		startServer(dispatcher)

		conn, err := net.Dial("unix", socketPath)
		Expect(err).ToNot(HaveOccurred())
		defer conn.Close()

		req := ipc.StreamQosRequest{Interface: "eth0", Period: 1000, Size: 100, Dmac: "01:02:03:04:05:06", Vid: 1, Talker: true}
		writeRawFrame(conn, ipc.EncodeRequest(req))

		payload, err := readRawFrame(conn)
		Expect(err).ToNot(HaveOccurred())

		resp, err := ipc.DecodeResponse(payload)
		Expect(err).ToNot(HaveOccurred())
		Expect(resp.Ok).To(BeFalse())
	})

	It("returns ok=false without calling the dispatcher when setup_socket is set", func() {
		dispatcher := &fakeDispatcher{vlanIface: "eth0.3", priority: 7}
		startServer(dispatcher)

		conn, err := net.Dial("unix", socketPath)
		Expect(err).ToNot(HaveOccurred())
		defer conn.Close()

		req := ipc.StreamQosRequest{Interface: "eth0", Period: 1000, Size: 100, Dmac: "01:02:03:04:05:06", Vid: 1, Talker: true, SetupSocket: true}
		writeRawFrame(conn, ipc.EncodeRequest(req))

		payload, err := readRawFrame(conn)
		Expect(err).ToNot(HaveOccurred())

		resp, err := ipc.DecodeResponse(payload)
		Expect(err).ToNot(HaveOccurred())
		Expect(resp.Ok).To(BeFalse())
		Expect(dispatcher.lastCfg.Interface).To(BeEmpty())
	})

	It("drops the connection without a response on a zero-length frame", func() {
		dispatcher := &fakeDispatcher{}
		startServer(dispatcher)

		conn, err := net.Dial("unix", socketPath)
		Expect(err).ToNot(HaveOccurred())
		defer conn.Close()

		writeRawFrame(conn, []byte{})

		_, err = readRawFrame(conn)
		Expect(err).To(HaveOccurred())
	})

	It("drops the connection without a response on an oversize frame", func() {
		dispatcher := &fakeDispatcher{}
		opts := testOptions(socketPath)
		opts.MaxFrameBytes = 8
		ctx, c := context.WithCancel(context.Background())
		cancel = c
		srv := service.New(opts, dispatcher)
		done = make(chan error, 1)
		go func() { done <- srv.Run(ctx) }()
		Eventually(func() error {
			conn, err := net.Dial("unix", socketPath)
			if err == nil {
				conn.Close()
			}
			return err
		}).Should(Succeed())

		conn, err := net.Dial("unix", socketPath)
		Expect(err).ToNot(HaveOccurred())
		defer conn.Close()

		writeRawFrame(conn, make([]byte, 64))

		_, err = readRawFrame(conn)
		Expect(err).To(HaveOccurred())
	})

	It("drops the connection without a response on malformed protobuf", func() {
		dispatcher := &fakeDispatcher{}
		startServer(dispatcher)

		conn, err := net.Dial("unix", socketPath)
		Expect(err).ToNot(HaveOccurred())
		defer conn.Close()

		writeRawFrame(conn, []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF})

		_, err = readRawFrame(conn)
		Expect(err).To(HaveOccurred())
	})
})

var errRejected = &rejectedErr{}

type rejectedErr struct{}

func (*rejectedErr) Error() string { return "rejected" }
