package device

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/agl-detd/detd-go/pkg/detderr"
)

// Registry maps a driver id (e.g. the PCI vendor:device string "8086:4BA0"
// from original_source/detd/systemconf.py's SystemInformation.get_pci_id)
// to a Profile. Restated per spec.md's Design Note 1 as a flat map, no
// inheritance.
type Registry struct {
	mu       sync.RWMutex
	profiles map[string]Profile
}

// NewRegistry creates a Registry seeded with the well-known profiles.
func NewRegistry() *Registry {
	r := &Registry{profiles: make(map[string]Profile)}
	r.Register("8086:1533", ProfileI210) // I210
	r.Register("8086:15F2", ProfileI225) // I225-LM
	r.Register("8086:125B", ProfileI226) // I226-LM
	r.Register("8086:4BA0", ProfileMGBE) // mGBE (Elkhart Lake / Tiger Lake)
	return r
}

// Register adds or replaces the Profile for a driver id.
func (r *Registry) Register(driverID string, p Profile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[driverID] = p
}

// Lookup returns the Profile registered for driverID, or an unknown-device
// error classified per spec.md section 7.
func (r *Registry) Lookup(driverID string) (Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.profiles[driverID]
	if !ok {
		return Profile{}, detderr.UnknownDevice(errors.Errorf("no device profile registered for driver id %q", driverID).Error())
	}
	return p, nil
}
