package triathlon

import (
	"sync"
	"time"

	"github.com/LuisLeon1705/Triatlon-Ujap/timer"
	"go.uber.org/zap"
)

// ClockState is the lifecycle state of a Clock.
type ClockState int

const (
	ClockIdle ClockState = iota
	ClockRunning
	ClockFinished
	ClockStopped
)

func (s ClockState) String() string {
	switch s {
	case ClockIdle:
		return "idle"
	case ClockRunning:
		return "running"
	case ClockFinished:
		return "finished"
	case ClockStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// TickFunc receives the current simulated instant and the simulated time
// elapsed since the start.
type TickFunc func(now time.Time, elapsed time.Duration)

type stepResult int

const (
	stepIdle stepResult = iota
	stepTicked
	stepFinished
)

// Clock maps real time onto simulated race time and drives ticks.
//
// Real elapsed time is measured on the wall clock in whole seconds and
// multiplied by the mode's speed multiplier. Once real elapsed time reaches
// the mode's duration the clock finishes on its own, whether or not every
// participant has crossed the line.
type Clock struct {
	lifeMu sync.Mutex // serializes Start and Stop
	mu     sync.Mutex

	wall     timer.Clock
	ticker   timer.Ticker
	interval time.Duration
	logger   *zap.Logger

	state       ClockState
	mode        Mode
	multiplier  float64
	duration    time.Duration
	realStart   time.Time
	simStart    time.Time
	lastSimTime time.Time
	lastElapsed time.Duration

	onTick   TickFunc
	onFinish func()
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewClock creates an idle clock.
func NewClock(wall timer.Clock, ticker timer.Ticker, interval time.Duration, logger *zap.Logger) *Clock {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Clock{
		wall:     wall,
		ticker:   ticker,
		interval: interval,
		logger:   logger,
	}
}

// Start begins a run whose simulated time starts at startAt. Any running
// loop is stopped first. onTick is called from the clock goroutine for
// every tick; onFinish, if set, once the duration is exhausted.
func (c *Clock) Start(startAt time.Time, mode Mode, onTick TickFunc, onFinish func()) error {
	if startAt.IsZero() {
		return wrapValidation("start date and time are required")
	}
	if mode != ModeFast && mode != ModeNormal {
		return wrapValidationf("unknown simulation mode %q", mode)
	}

	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()

	c.stopLocked()

	c.mu.Lock()
	c.state = ClockRunning
	c.mode = mode
	c.multiplier = mode.SpeedMultiplier()
	c.duration = mode.Duration()
	c.realStart = c.wall.Now()
	c.simStart = startAt
	c.lastSimTime = startAt
	c.lastElapsed = 0
	c.onTick = onTick
	c.onFinish = onFinish
	c.stopCh = make(chan struct{})
	c.doneCh = make(chan struct{})
	stop, done := c.stopCh, c.doneCh
	c.ticker.Start(c.interval)
	c.mu.Unlock()

	c.logger.Info("clock started",
		zap.Time("sim_start", startAt),
		zap.String("mode", string(mode)),
		zap.Float64("speed_multiplier", c.multiplier),
		zap.Duration("duration", c.duration))

	go c.run(stop, done)
	return nil
}

// Stop cancels ticking and waits for the clock goroutine to exit. It must
// not be called from a TickFunc.
func (c *Clock) Stop() {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()
	c.stopLocked()
}

func (c *Clock) stopLocked() {
	c.mu.Lock()
	stop, done := c.stopCh, c.doneCh
	if c.state != ClockIdle {
		c.state = ClockStopped
	}
	c.stopCh = nil
	c.ticker.Stop()
	c.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	if done != nil {
		<-done
	}
}

func (c *Clock) run(stop <-chan struct{}, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-stop:
			return
		case <-c.ticker.C():
			if c.step() != stepTicked {
				return
			}
		}
	}
}

// Tick performs one tick synchronously. It reports whether the clock is
// still running afterwards. The clock goroutine calls it on every ticker
// fire; tests may call it directly. The tick that reaches the duration calls
// onFinish on the calling goroutine and ends the clock goroutine.
func (c *Clock) Tick() bool {
	return c.step() == stepTicked
}

func (c *Clock) step() stepResult {
	c.mu.Lock()
	if c.state != ClockRunning {
		c.mu.Unlock()
		return stepIdle
	}

	elapsedReal := c.wall.Now().Sub(c.realStart).Truncate(time.Second)
	if elapsedReal < 0 {
		elapsedReal = 0
	}

	if elapsedReal >= c.duration {
		c.state = ClockFinished
		c.ticker.Stop()
		if c.stopCh != nil {
			close(c.stopCh)
			c.stopCh = nil
		}
		onFinish := c.onFinish
		c.mu.Unlock()

		c.logger.Info("simulation time limit reached", zap.Duration("real_elapsed", elapsedReal))
		if onFinish != nil {
			onFinish()
		}
		return stepFinished
	}

	elapsedSim := time.Duration(float64(elapsedReal) * c.multiplier)
	now := c.simStart.Add(elapsedSim)
	c.lastSimTime = now
	c.lastElapsed = elapsedSim
	onTick := c.onTick
	c.mu.Unlock()

	if onTick != nil {
		onTick(now, elapsedSim)
	}
	return stepTicked
}

// State returns the lifecycle state.
func (c *Clock) State() ClockState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Mode returns the mode of the current or last run.
func (c *Clock) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// StartTime returns the simulated start instant, or the zero time when idle.
func (c *Clock) StartTime() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.simStart
}

// SimulatedNow returns the simulated instant of the last tick.
func (c *Clock) SimulatedNow() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSimTime
}

// Elapsed returns the simulated time elapsed at the last tick.
func (c *Clock) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastElapsed
}

// Done returns a channel closed when the current run's goroutine exits.
// When no run was ever started the channel is already closed.
func (c *Clock) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.doneCh == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return c.doneCh
}

// Clear forgets the times of the last run. It does not touch a running
// clock, and it leaves the state as it is.
func (c *Clock) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == ClockRunning {
		return
	}
	c.simStart = time.Time{}
	c.lastSimTime = time.Time{}
	c.lastElapsed = 0
}
