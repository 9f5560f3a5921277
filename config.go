package triathlon

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/LuisLeon1705/Triatlon-Ujap/kv"
	"github.com/LuisLeon1705/Triatlon-Ujap/timer"
	"go.uber.org/zap"
)

// DefaultTickInterval is the real-time cadence of simulation ticks.
const DefaultTickInterval = time.Second

// Auditor checks the participant set after every tick and returns the
// problems it found. See package invariants.
type Auditor interface {
	Audit(participants []*Participant) []error
}

// Config holds the configuration for a Simulation.
type Config struct {
	// Store holds the participant list, mode preference and pending edit.
	Store kv.Store

	// Logger for structured logging.
	Logger *zap.Logger

	// Random drives disqualification draws and speed jitter.
	// Default: math/rand seeded from the current time.
	Random Random

	// Ticker paces the simulation clock.
	// Default: timer.NewRealTicker()
	Ticker timer.Ticker

	// WallClock measures real elapsed time.
	// Default: timer.RealClock{}
	WallClock timer.Clock

	// TickInterval is the real time between ticks.
	// Default: 1s
	TickInterval time.Duration

	// DisqualifyProbability is the chance per update of a random
	// disqualification.
	// Default: 0.001
	DisqualifyProbability float64

	// SpeedJitter bounds the random factor on every distance increment.
	// Default: [0.8, 1.2]
	SpeedJitter SpeedJitter

	// Location is used to format absolute clock times.
	// Default: time.Local
	Location *time.Location

	// Listeners are notified after every state change.
	Listeners []Listener

	// Auditor, if set, checks the participant set after every tick.
	Auditor Auditor
}

// ConfigOption is a functional option for configuring a Simulation.
type ConfigOption func(*Config) error

// NewConfig creates a new Config with the given options.
func NewConfig(opts ...ConfigOption) (*Config, error) {
	cfg := &Config{
		Logger:                zap.NewNop(), // Default: no-op logger
		TickInterval:          DefaultTickInterval,
		DisqualifyProbability: DefaultDisqualifyProbability,
		SpeedJitter:           DefaultSpeedJitter,
		Location:              time.Local,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.Random == nil {
		cfg.Random = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if cfg.Ticker == nil {
		cfg.Ticker = timer.NewRealTicker()
	}
	if cfg.WallClock == nil {
		cfg.WallClock = timer.RealClock{}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// validate checks that all required configuration fields are set.
func (c *Config) validate() error {
	if c.Store == nil {
		return wrapConfig("store is required")
	}

	if c.TickInterval <= 0 {
		return wrapConfigf("tick interval must be positive, got %s", c.TickInterval)
	}

	if c.DisqualifyProbability < 0 || c.DisqualifyProbability > 1 {
		return wrapConfigf("disqualify probability must be in [0,1], got %v", c.DisqualifyProbability)
	}

	if c.SpeedJitter.Min <= 0 || c.SpeedJitter.Max < c.SpeedJitter.Min {
		return wrapConfigf("invalid speed jitter [%v, %v]", c.SpeedJitter.Min, c.SpeedJitter.Max)
	}

	if c.Location == nil {
		return wrapConfig("location is required")
	}

	return nil
}

// WithStore sets the participant store.
func WithStore(store kv.Store) ConfigOption {
	return func(c *Config) error {
		if store == nil {
			return fmt.Errorf("store cannot be nil")
		}
		c.Store = store
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) ConfigOption {
	return func(c *Config) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		c.Logger = logger
		return nil
	}
}

// WithRandom sets the randomness source.
func WithRandom(rng Random) ConfigOption {
	return func(c *Config) error {
		if rng == nil {
			return fmt.Errorf("random source cannot be nil")
		}
		c.Random = rng
		return nil
	}
}

// WithSeed uses a math/rand source seeded with seed, making runs repeatable.
func WithSeed(seed int64) ConfigOption {
	return func(c *Config) error {
		c.Random = rand.New(rand.NewSource(seed))
		return nil
	}
}

// WithTicker sets the tick source.
func WithTicker(ticker timer.Ticker) ConfigOption {
	return func(c *Config) error {
		if ticker == nil {
			return fmt.Errorf("ticker cannot be nil")
		}
		c.Ticker = ticker
		return nil
	}
}

// WithWallClock sets the clock used to measure real elapsed time.
func WithWallClock(clock timer.Clock) ConfigOption {
	return func(c *Config) error {
		if clock == nil {
			return fmt.Errorf("wall clock cannot be nil")
		}
		c.WallClock = clock
		return nil
	}
}

// WithTickInterval sets the real time between ticks.
func WithTickInterval(interval time.Duration) ConfigOption {
	return func(c *Config) error {
		c.TickInterval = interval
		return nil
	}
}

// WithDisqualifyProbability sets the chance per update of a random
// disqualification. Zero disables random disqualification.
func WithDisqualifyProbability(p float64) ConfigOption {
	return func(c *Config) error {
		c.DisqualifyProbability = p
		return nil
	}
}

// WithSpeedJitter sets the bounds of the random speed factor.
func WithSpeedJitter(min, max float64) ConfigOption {
	return func(c *Config) error {
		c.SpeedJitter = SpeedJitter{Min: min, Max: max}
		return nil
	}
}

// WithLocation sets the time zone for formatted clock times.
func WithLocation(loc *time.Location) ConfigOption {
	return func(c *Config) error {
		if loc == nil {
			return fmt.Errorf("location cannot be nil")
		}
		c.Location = loc
		return nil
	}
}

// WithListener adds a listener notified after every state change.
func WithListener(l Listener) ConfigOption {
	return func(c *Config) error {
		if l == nil {
			return fmt.Errorf("listener cannot be nil")
		}
		c.Listeners = append(c.Listeners, l)
		return nil
	}
}

// WithAuditor sets the auditor run after every tick.
func WithAuditor(a Auditor) ConfigOption {
	return func(c *Config) error {
		if a == nil {
			return fmt.Errorf("auditor cannot be nil")
		}
		c.Auditor = a
		return nil
	}
}
