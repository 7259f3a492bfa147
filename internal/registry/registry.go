package registry

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"erevent/internal/apperr"
)

// Status values surfaced to API consumers.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Device is the coordinator's record of one participant. Address is always the
// source address observed at registration time, never a client-asserted value.
type Device struct {
	ID           string
	Name         string
	Address      string
	NotifyPort   int
	LastSeen     time.Time
	RegisteredAt time.Time
}

// View is a device as reported by List: the stored fields plus the status
// computed against the clock at read time.
type View struct {
	Name     string    `json:"name"`
	IP       string    `json:"ip"`
	LastSeen time.Time `json:"last_seen"`
	Status   string    `json:"status"`
}

// Registry is the authoritative device table. One coarse lock guards the map;
// entries are copied whole in and out so a reader never observes a record with
// only some fields updated.
type Registry struct {
	mu      sync.RWMutex
	devices map[string]Device

	timeout time.Duration
	now     func() time.Time
}

// New builds a registry with the given liveness timeout.
func New(timeout time.Duration) *Registry {
	return &Registry{
		devices: make(map[string]Device),
		timeout: timeout,
		now:     time.Now,
	}
}

// SetClock replaces the registry clock. Test hook.
func (r *Registry) SetClock(now func() time.Time) {
	r.mu.Lock()
	r.now = now
	r.mu.Unlock()
}

// Alive is the liveness rule applied wherever a status is surfaced.
func Alive(lastSeen, now time.Time, timeout time.Duration) bool {
	return now.Sub(lastSeen) < timeout
}

// Register inserts or overwrites the entry for id. Re-registering an existing
// id replaces name/address/last_seen in place, it never creates a duplicate.
func (r *Registry) Register(id, name, address string, notifyPort int) error {
	if id == "" || name == "" {
		return apperr.New(apperr.Validation, "registry.Register", "device_id and device_name are required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	dev := Device{
		ID:           id,
		Name:         name,
		Address:      address,
		NotifyPort:   notifyPort,
		LastSeen:     now,
		RegisteredAt: now,
	}
	if prev, ok := r.devices[id]; ok {
		dev.RegisteredAt = prev.RegisteredAt
	}
	r.devices[id] = dev

	log.Info().Str("device_id", id).Str("name", name).Str("ip", address).Msg("device registered")
	return nil
}

// Heartbeat refreshes last_seen for a known device. Unknown ids are reported,
// not auto-registered.
func (r *Registry) Heartbeat(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	dev, ok := r.devices[id]
	if !ok {
		return apperr.New(apperr.NotFound, "registry.Heartbeat", "unknown device %q", id)
	}
	dev.LastSeen = r.now()
	r.devices[id] = dev
	return nil
}

// Get returns the stored device record for id.
func (r *Registry) Get(id string) (Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	dev, ok := r.devices[id]
	if !ok {
		return Device{}, apperr.New(apperr.NotFound, "registry.Get", "unknown device %q", id)
	}
	return dev, nil
}

// List returns every known device with a freshly computed status. Liveness is
// evaluated lazily against the current clock; there is no background sweep, so
// status is only as fresh as the last query.
func (r *Registry) List() map[string]View {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := r.now()
	out := make(map[string]View, len(r.devices))
	for id, dev := range r.devices {
		out[id] = View{
			Name:     dev.Name,
			IP:       dev.Address,
			LastSeen: dev.LastSeen,
			Status:   r.statusLocked(dev, now),
		}
	}
	return out
}

// Online reports whether the device is currently within the liveness window.
func (r *Registry) Online(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	dev, ok := r.devices[id]
	if !ok {
		return false
	}
	return Alive(dev.LastSeen, r.now(), r.timeout)
}

// Len returns the number of known devices.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

// Prune drops devices silent for longer than retention. Devices are never
// deleted merely for being offline; this exists for callers that want to bound
// table growth over very long coordinator lifetimes. Returns the removed count.
func (r *Registry) Prune(retention time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	removed := 0
	for id, dev := range r.devices {
		if now.Sub(dev.LastSeen) > retention {
			delete(r.devices, id)
			removed++
		}
	}
	if removed > 0 {
		log.Info().Int("removed", removed).Msg("pruned silent devices")
	}
	return removed
}

func (r *Registry) statusLocked(dev Device, now time.Time) string {
	if Alive(dev.LastSeen, now, r.timeout) {
		return StatusOnline
	}
	return StatusOffline
}
