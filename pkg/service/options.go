package service

import (
	"flag"

	"github.com/spf13/pflag"
	"k8s.io/klog/v2"
)

// Options stores the command-line configuration for the Service, mirroring
// the teacher's pkg/server.Options/AddFlags pattern restated for a
// Unix-domain socket server instead of a Kubernetes informer loop.
type Options struct {
	// SocketPath is where the Service binds its Unix-domain socket.
	// Defaults to spec.md section 6's "/var/run/detd/detd_service.sock".
	SocketPath string
	// SocketMode is the filesystem permission bits applied to SocketPath,
	// spec.md section 6's "permissions 0660".
	SocketMode uint32
	// MaxFrameBytes caps the length-prefixed frame a connection may send,
	// per spec.md section 4.1's "length exceeding a configured cap (e.g.
	// 64 KiB)".
	MaxFrameBytes uint32
	// Workers bounds how many connections are served in parallel, per
	// spec.md section 5's "a configuration allows up to N worker threads
	// serving distinct connections in parallel".
	Workers int
	// DryRun selects the command-string rendering System Effector backend
	// (pkg/effector/driver/cmdline) instead of touching the kernel or the
	// in-memory mock, per SPEC_FULL.md section C.5's dry-run driver.
	DryRun bool
}

// NewOptions returns the spec-default Options.
func NewOptions() *Options {
	return &Options{
		SocketPath:    "/var/run/detd/detd_service.sock",
		SocketMode:    0660,
		MaxFrameBytes: 64 * 1024,
		Workers:       4,
	}
}

// AddFlags registers o's fields on fs, plus klog's flag set (--logtostderr,
// --log_file, ...), matching the teacher's pkg/server.Options.AddFlags.
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	klog.InitFlags(nil)
	fs.SortFlags = false
	fs.StringVar(&o.SocketPath, "socket-path", o.SocketPath, "Unix-domain socket path the service binds to.")
	fs.Uint32Var(&o.SocketMode, "socket-mode", o.SocketMode, "Filesystem permission bits applied to the socket path.")
	fs.Uint32Var(&o.MaxFrameBytes, "max-frame-bytes", o.MaxFrameBytes, "Maximum accepted length-prefixed frame size, in bytes.")
	fs.IntVar(&o.Workers, "workers", o.Workers, "Number of connections served in parallel.")
	fs.BoolVar(&o.DryRun, "dry-run", o.DryRun, "Render tc/ip/ethtool command strings instead of applying configuration.")
	fs.AddGoFlagSet(flag.CommandLine)
}
