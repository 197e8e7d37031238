package simulation

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-automation/internal/automation"
	"github.com/nerrad567/gray-logic-automation/internal/sensor"
)

// Default settings.
const (
	DefaultInterval = 5 * time.Second
	DefaultMaxStep  = 50.0
)

// Logger defines the logging interface used by the simulator.
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

// Evaluator receives simulated readings.
type Evaluator interface {
	Evaluate(ctx context.Context, sensorID string, reading float64) []automation.Transition
}

// Config controls the simulation loop.
type Config struct {
	// Interval between ticks.
	Interval time.Duration

	// MaxStep bounds how far a reading moves per tick.
	MaxStep float64

	// Seed makes the walk reproducible when non-zero.
	Seed uint64
}

// bounds is the plausible range of readings for a sensor type.
type bounds struct {
	min, max float64
}

var typeBounds = map[sensor.Type]bounds{
	sensor.TypeLight:       {0, 100000},
	sensor.TypeTemperature: {-40, 60},
	sensor.TypeHumidity:    {0, 100},
	sensor.TypeMotion:      {0, 1},
	sensor.TypePower:       {0, 10000},
}

// Simulator periodically walks sensor readings and evaluates them.
type Simulator struct {
	sensors  *sensor.Registry
	eval     Evaluator
	interval time.Duration
	maxStep  float64

	rngMu sync.Mutex
	rng   *rand.Rand

	loggerMu sync.RWMutex
	logger   Logger

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a simulator over the sensor registry. Zero config values
// fall back to the package defaults.
func New(cfg Config, sensors *sensor.Registry, eval Evaluator) *Simulator {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.MaxStep <= 0 {
		cfg.MaxStep = DefaultMaxStep
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano()) //nolint:gosec // non-negative, only used as a seed
	}

	return &Simulator{
		sensors:  sensors,
		eval:     eval,
		interval: cfg.Interval,
		maxStep:  cfg.MaxStep,
		rng:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)), //nolint:gosec // simulation, not security
		logger:   noopLogger{},
		done:     make(chan struct{}),
	}
}

// SetLogger sets the logger for this simulator.
func (s *Simulator) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	s.loggerMu.Lock()
	s.logger = logger
	s.loggerMu.Unlock()
}

func (s *Simulator) log() Logger {
	s.loggerMu.RLock()
	defer s.loggerMu.RUnlock()
	return s.logger
}

// Start launches the tick loop. It returns immediately; the loop runs
// until ctx is cancelled or Stop is called.
func (s *Simulator) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.loop(ctx)
	s.log().Info("sensor simulation started", "interval", s.interval, "max_step", s.maxStep)
}

// Stop ends the tick loop and waits for it to finish. Safe to call more
// than once.
func (s *Simulator) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		s.wg.Wait()
		s.log().Info("sensor simulation stopped")
	})
}

func (s *Simulator) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick advances every registered sensor by one step and returns how many
// transitions the readings caused.
func (s *Simulator) Tick(ctx context.Context) int {
	transitions := 0
	for _, sen := range s.sensors.Values() {
		next := s.step(sen.Type, sen.Reading)
		applied := s.eval.Evaluate(ctx, sen.ID, next)
		transitions += len(applied)
		s.log().Debug("simulated reading", "sensor_id", sen.ID, "reading", next, "transitions", len(applied))
	}
	return transitions
}

// step returns the next reading for a sensor of the given type.
func (s *Simulator) step(t sensor.Type, current float64) float64 {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()

	if t == sensor.TypeMotion {
		// Motion flips occasionally rather than drifting.
		if s.rng.Float64() < 0.2 {
			if current >= 0.5 {
				return 0
			}
			return 1
		}
		return current
	}

	next := current + (s.rng.Float64()*2-1)*s.maxStep
	if b, ok := typeBounds[t]; ok {
		next = math.Max(b.min, math.Min(b.max, next))
	}
	return math.Round(next*100) / 100
}
