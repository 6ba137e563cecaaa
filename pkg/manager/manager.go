// Package manager implements spec.md section 4.2: the single per-process
// registry of Interface Contexts, created once at startup. Grounded on
// original_source/detd/manager.py's Manager, which keeps a dict of
// Device handlers keyed by interface name; restated with the registry
// guarded by a short-lived lock used only for lookup/insertion, per
// spec.md section 5 and Design Note "Global service state".
package manager

import (
	"sync"

	"k8s.io/klog/v2"

	"github.com/agl-detd/detd-go/pkg/detderr"
	"github.com/agl-detd/detd-go/pkg/device"
	"github.com/agl-detd/detd-go/pkg/effector"
	"github.com/agl-detd/detd-go/pkg/iface"
	"github.com/agl-detd/detd-go/pkg/scheduler"
)

// TalkerConfig is spec.md section 4.2's add_talker argument triple:
// interface, stream, traffic spec.
type TalkerConfig struct {
	Interface string
	Stream    scheduler.StreamConfig
	Spec      scheduler.TrafficSpec
}

// Manager owns the registry of Interface Contexts. There is exactly one
// Manager per process (Design Note 2); callers pass it explicitly rather
// than reaching it through package-level state.
type Manager struct {
	resolver device.Resolver
	registry *device.Registry
	newSys   func(iface string) effector.System

	mu    sync.Mutex
	byIfc map[string]*iface.Context
}

// New returns a Manager that resolves device profiles via registry,
// queries interfaces via resolver, and builds a fresh effector.System for
// each newly seen interface via newSys.
func New(resolver device.Resolver, registry *device.Registry, newSys func(iface string) effector.System) *Manager {
	return &Manager{
		resolver: resolver,
		registry: registry,
		newSys:   newSys,
		byIfc:    map[string]*iface.Context{},
	}
}

// AddTalker looks up or creates the Interface Context for cfg.Interface
// and delegates to it, per spec.md section 4.2.
func (m *Manager) AddTalker(cfg TalkerConfig) (string, int, error) {
	ctx, err := m.contextFor(cfg.Interface)
	if err != nil {
		return "", 0, err
	}
	return ctx.AddTalker(cfg.Stream, cfg.Spec)
}

func (m *Manager) contextFor(name string) (*iface.Context, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ctx, ok := m.byIfc[name]; ok {
		return ctx, nil
	}

	if _, err := m.resolver.OperState(name); err != nil {
		return nil, detderr.Wrap(detderr.KindValidation, err, "interface "+name+" operational state could not be queried")
	}

	driverID, err := m.resolver.DriverID(name)
	if err != nil {
		return nil, detderr.Wrap(detderr.KindUnknownDevice, err, "could not determine driver id for "+name)
	}

	profile, err := m.registry.Lookup(driverID)
	if err != nil {
		return nil, err
	}

	klog.Infof("registering interface context for %s (driver %s, profile %s)", name, driverID, profile.Name)
	ctx := iface.New(name, profile, m.newSys(name))
	m.byIfc[name] = ctx
	return ctx, nil
}
