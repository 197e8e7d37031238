package device

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Lister is the part of a Repository the Registry needs to load itself.
type Lister interface {
	List(ctx context.Context) ([]Device, error)
}

// Registry is the process-wide keyed store of live devices.
//
// Entries are owned by the registry. Get and Values hand out deep copies,
// and the only way to change a stored device is Put or Update, so a caller
// can never keep a stale reference that silently diverges from the live entry.
//
// All public methods are thread-safe.
type Registry struct {
	mu      sync.RWMutex
	devices map[string]*Device
	logger  Logger
	now     func() time.Time
}

// NewRegistry creates an empty device registry.
func NewRegistry() *Registry {
	return &Registry{
		devices: make(map[string]*Device),
		logger:  noopLogger{},
		now:     time.Now,
	}
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry.
func Default() *Registry {
	return defaultRegistry
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if logger == nil {
		logger = noopLogger{}
	}
	r.logger = logger
}

// Load replaces the registry contents with every device from the repository.
func (r *Registry) Load(ctx context.Context, repo Lister) error {
	devices, err := repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.devices = make(map[string]*Device, len(devices))
	for i := range devices {
		r.devices[devices[i].ID] = devices[i].DeepCopy()
	}

	r.logger.Info("device registry loaded", "count", len(devices))
	return nil
}

// Get returns a copy of the live device with the given ID.
// Returns ErrDeviceNotFound if the device does not exist.
func (r *Registry) Get(id string) (*Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.devices[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	return d.DeepCopy(), nil
}

// Has reports whether a device with the given ID is registered.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.devices[id]
	return ok
}

// Put stores a device, replacing any existing entry with the same ID.
func (r *Registry) Put(d *Device) error {
	if d == nil || d.ID == "" {
		return ErrInvalidDevice
	}

	cpy := d.DeepCopy()
	now := r.now().UTC()
	if cpy.CreatedAt.IsZero() {
		cpy.CreatedAt = now
	}
	if cpy.UpdatedAt.IsZero() {
		cpy.UpdatedAt = now
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices[cpy.ID] = cpy
	return nil
}

// Update applies fn to the live device under the registry lock.
//
// fn receives a working copy; the copy replaces the stored entry only if fn
// returns nil, so a failed update leaves the device untouched.
func (r *Registry) Update(id string, fn func(d *Device) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.devices[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}

	work := d.DeepCopy()
	if err := fn(work); err != nil {
		return err
	}
	work.ID = id
	work.UpdatedAt = r.now().UTC()
	r.devices[id] = work
	return nil
}

// Remove deletes a device from the registry.
// Returns ErrDeviceNotFound if the device does not exist.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.devices[id]; !ok {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	delete(r.devices, id)
	return nil
}

// Values returns copies of every device, ordered by ID.
func (r *Registry) Values() []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	devices := make([]Device, 0, len(r.devices))
	for _, d := range r.devices {
		devices = append(devices, *d.DeepCopy())
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].ID < devices[j].ID })
	return devices
}

// Len returns the number of registered devices.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

// Reset drops every device. Intended for tests and re-bootstrap.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices = make(map[string]*Device)
}
