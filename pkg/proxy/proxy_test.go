package proxy_test

import (
	"context"
	"net"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/agl-detd/detd-go/pkg/ipc"
	"github.com/agl-detd/detd-go/pkg/manager"
	"github.com/agl-detd/detd-go/pkg/proxy"
	"github.com/agl-detd/detd-go/pkg/service"
)

type fakeDispatcher struct {
	vlanIface string
	priority  int
	err       error
}

func (f *fakeDispatcher) AddTalker(manager.TalkerConfig) (string, int, error) {
	return f.vlanIface, f.priority, f.err
}

var errRejected = &rejectedErr{}

type rejectedErr struct{}

func (*rejectedErr) Error() string { return "rejected" }

var _ = Describe("Proxy", func() {

	var (
		socketPath string
		cancel     context.CancelFunc
		done       chan error
	)

	startService := func(dispatcher *fakeDispatcher) {
		opts := service.NewOptions()
		opts.SocketPath = socketPath
		srv := service.New(opts, dispatcher)

		ctx, c := context.WithCancel(context.Background())
		cancel = c
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
		socketPath = GinkgoT().TempDir() + "/detd.sock"
	})

	AfterEach(func() {
		if cancel != nil {
			cancel()
			Eventually(done).Should(Receive())
			cancel = nil
		}
	})

	It("round-trips a successful admission through a real service socket", func() {
		startService(&fakeDispatcher{vlanIface: "eth0.3", priority: 7})

		p := proxy.New(socketPath)
		vlanIface, priority, err := p.RequestStreamQos(ipc.StreamQosRequest{
			Interface: "eth0",
			Period:    2_000_000,
			Size:      1522,
			Dmac:      "01:02:03:04:05:06",
			Vid:       3,
			Pcp:       6,
			Txmin:     250_000,
			Talker:    true,
		})
		Expect(err).ToNot(HaveOccurred())
		Expect(vlanIface).To(Equal("eth0.3"))
		Expect(priority).To(Equal(7))
	})

	It("returns a request-failed error when the service rejects the admission", func() {
		startService(&fakeDispatcher{err: errRejected})

		p := proxy.New(socketPath)
		_, _, err := p.RequestStreamQos(ipc.StreamQosRequest{
			Interface: "eth0", Period: 1000, Size: 100, Dmac: "01:02:03:04:05:06", Vid: 1, Talker: true,
		})
		Expect(err).To(HaveOccurred())
	})

	It("returns a connection error when no service is listening", func() {
		p := proxy.New(GinkgoT().TempDir() + "/no-such-service.sock")
		_, _, err := p.RequestStreamQos(ipc.StreamQosRequest{Interface: "eth0", Period: 1000, Size: 100, Dmac: "01:02:03:04:05:06", Vid: 1, Talker: true})
		Expect(err).To(HaveOccurred())
	})
})
