// Package timer provides the periodic tick source and wall clock used by the
// race simulation.
//
// Provides two tickers and two clocks:
// 1. RealTicker - Production ticker re-armed with time.AfterFunc
// 2. MockTicker - Controllable ticker for testing
// 3. RealClock / FakeClock - wall time, real or manually advanced
package timer

import (
	"sync"
	"time"
)

// Ticker delivers periodic ticks to the simulation clock.
// All implementations must be safe for concurrent use.
type Ticker interface {
	// Start starts ticking every interval.
	Start(interval time.Duration)

	// Stop stops the ticker. Pending ticks are discarded.
	Stop()

	// C returns a channel that receives on every tick.
	C() <-chan struct{}
}

// RealTicker implements Ticker on top of time.AfterFunc.
// A tick that is not consumed before the next one fires is dropped, so a
// slow consumer never sees a backlog.
type RealTicker struct {
	mu       sync.Mutex
	timer    *time.Timer
	ch       chan struct{}
	interval time.Duration
	gen      uint64
}

// NewRealTicker creates a new RealTicker.
func NewRealTicker() *RealTicker {
	return &RealTicker{
		ch: make(chan struct{}, 1),
	}
}

// Start starts ticking every interval, replacing any previous interval.
func (t *RealTicker) Start(interval time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopLocked()
	t.interval = interval
	t.gen++
	t.armLocked(t.gen)
}

func (t *RealTicker) armLocked(gen uint64) {
	t.timer = time.AfterFunc(t.interval, func() {
		t.fire(gen)
	})
}

func (t *RealTicker) fire(gen uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	// Stale callback from a stopped or restarted ticker.
	if gen != t.gen || t.timer == nil {
		return
	}

	select {
	case t.ch <- struct{}{}:
	default:
		// Previous tick still pending
	}
	t.armLocked(gen)
}

// Stop stops the ticker.
func (t *RealTicker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
}

func (t *RealTicker) stopLocked() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.gen++
	select {
	case <-t.ch:
	default:
	}
}

// C returns a channel that receives on every tick.
func (t *RealTicker) C() <-chan struct{} {
	return t.ch
}

// MockTicker implements Ticker for testing with manual control.
// Safe for concurrent use.
type MockTicker struct {
	ch       chan struct{}
	mu       sync.Mutex
	interval time.Duration
	running  bool
	starts   int
}

// NewMockTicker creates a new MockTicker.
func NewMockTicker() *MockTicker {
	return &MockTicker{
		ch: make(chan struct{}, 1),
	}
}

// Start records the interval but does not tick on its own.
func (t *MockTicker) Start(interval time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.interval = interval
	t.running = true
	t.starts++

	select {
	case <-t.ch:
	default:
	}
}

// Stop stops the ticker.
func (t *MockTicker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.running = false

	select {
	case <-t.ch:
	default:
	}
}

// C returns a channel that receives on every tick.
func (t *MockTicker) C() <-chan struct{} {
	return t.ch
}

// Fire delivers one tick if the ticker is running. It reports whether the
// tick was queued.
func (t *MockTicker) Fire() bool {
	t.mu.Lock()
	running := t.running
	t.mu.Unlock()

	if !running {
		return false
	}
	select {
	case t.ch <- struct{}{}:
		return true
	default:
		return false
	}
}

// IsRunning returns true if the ticker is running.
func (t *MockTicker) IsRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// Interval returns the interval passed to the last Start.
func (t *MockTicker) Interval() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.interval
}

// Starts returns how many times Start was called.
func (t *MockTicker) Starts() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.starts
}
