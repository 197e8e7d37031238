package sensor

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Lister is the part of a Repository the Registry needs to load itself.
type Lister interface {
	List(ctx context.Context) ([]Sensor, error)
}

// Registry is the process-wide keyed store of live sensors.
// Like the device registry it only hands out copies.
type Registry struct {
	mu      sync.RWMutex
	sensors map[string]*Sensor
	logger  Logger
	now     func() time.Time
}

// NewRegistry creates an empty sensor registry.
func NewRegistry() *Registry {
	return &Registry{
		sensors: make(map[string]*Sensor),
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

// Load replaces the registry contents with every sensor from the repository.
// Linked device sets come back empty; link restore fills them in.
func (r *Registry) Load(ctx context.Context, repo Lister) error {
	sensors, err := repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading sensors: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.sensors = make(map[string]*Sensor, len(sensors))
	for i := range sensors {
		s := sensors[i].DeepCopy()
		s.normaliseDeviceIDs()
		r.sensors[s.ID] = s
	}

	r.logger.Info("sensor registry loaded", "count", len(sensors))
	return nil
}

// Get returns a copy of the live sensor with the given ID.
func (r *Registry) Get(id string) (*Sensor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sensors[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSensorNotFound, id)
	}
	return s.DeepCopy(), nil
}

// Has reports whether a sensor with the given ID is registered.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sensors[id]
	return ok
}

// Put stores a sensor, replacing any existing entry with the same ID.
func (r *Registry) Put(s *Sensor) error {
	if s == nil || s.ID == "" {
		return ErrInvalidSensor
	}

	cpy := s.DeepCopy()
	cpy.normaliseDeviceIDs()
	now := r.now().UTC()
	if cpy.CreatedAt.IsZero() {
		cpy.CreatedAt = now
	}
	if cpy.UpdatedAt.IsZero() {
		cpy.UpdatedAt = now
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sensors[cpy.ID] = cpy
	return nil
}

// Update applies fn to a working copy of the sensor and stores it if fn
// returns nil.
func (r *Registry) Update(id string, fn func(s *Sensor) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updateLocked(id, fn)
}

func (r *Registry) updateLocked(id string, fn func(s *Sensor) error) error {
	s, ok := r.sensors[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSensorNotFound, id)
	}

	work := s.DeepCopy()
	if err := fn(work); err != nil {
		return err
	}
	work.ID = id
	work.normaliseDeviceIDs()
	work.UpdatedAt = r.now().UTC()
	r.sensors[id] = work
	return nil
}

// SetReading records a new reading and returns a copy of the updated sensor.
func (r *Registry) SetReading(id string, value float64) (*Sensor, error) {
	if err := validateReading(value); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	err := r.updateLocked(id, func(s *Sensor) error {
		at := r.now().UTC()
		s.Reading = value
		s.ReadingAt = &at
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.sensors[id].DeepCopy(), nil
}

// LinkDevice adds deviceID to the sensor's linked set.
// Adding an ID that is already present is a no-op.
func (r *Registry) LinkDevice(sensorID, deviceID string) error {
	return r.Update(sensorID, func(s *Sensor) error {
		s.AddDevice(deviceID)
		return nil
	})
}

// UnlinkDevice removes deviceID from the sensor's linked set.
// Removing an ID that is not present is a no-op.
func (r *Registry) UnlinkDevice(sensorID, deviceID string) error {
	return r.Update(sensorID, func(s *Sensor) error {
		s.RemoveDevice(deviceID)
		return nil
	})
}

// PurgeDevice removes deviceID from every sensor and returns the IDs of
// the sensors that held it.
func (r *Registry) PurgeDevice(deviceID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var affected []string
	for id, s := range r.sensors {
		if !s.HasDevice(deviceID) {
			continue
		}
		work := s.DeepCopy()
		work.RemoveDevice(deviceID)
		work.UpdatedAt = r.now().UTC()
		r.sensors[id] = work
		affected = append(affected, id)
	}
	sort.Strings(affected)
	return affected
}

// Remove deletes a sensor from the registry.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sensors[id]; !ok {
		return fmt.Errorf("%w: %s", ErrSensorNotFound, id)
	}
	delete(r.sensors, id)
	return nil
}

// Values returns copies of every sensor, ordered by ID.
func (r *Registry) Values() []Sensor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sensors := make([]Sensor, 0, len(r.sensors))
	for _, s := range r.sensors {
		sensors = append(sensors, *s.DeepCopy())
	}
	sort.Slice(sensors, func(i, j int) bool { return sensors[i].ID < sensors[j].ID })
	return sensors
}

// Len returns the number of registered sensors.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sensors)
}

// Reset drops every sensor. Intended for tests and re-bootstrap.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sensors = make(map[string]*Sensor)
}
