package triathlon

import (
	"fmt"
	"sync"
	"time"

	"github.com/LuisLeon1705/Triatlon-Ujap/kv"
	"github.com/LuisLeon1705/Triatlon-Ujap/timer"
)

// Compile-time interface verification.
// These ensure test types correctly implement production interfaces.
var (
	_ Random   = (*ScriptedRandom)(nil)
	_ Listener = (*RecordingListener)(nil)
	_ Listener = ListenerFunc(nil)
)

// TestEpoch is the wall-clock instant every TestHarness starts at.
var TestEpoch = time.Date(2024, time.March, 10, 8, 0, 0, 0, time.UTC)

// ScriptedRandom returns a fixed sequence of values, then repeats the last
// one forever. With no values it always returns Fallback.
type ScriptedRandom struct {
	mu       sync.Mutex
	values   []float64
	Fallback float64
	calls    int
}

// NewScriptedRandom creates a source returning values in order.
func NewScriptedRandom(values ...float64) *ScriptedRandom {
	return &ScriptedRandom{values: values, Fallback: 0.5}
}

// NeverDisqualify returns a source whose draws never trigger a
// disqualification and always give the mid jitter factor.
func NeverDisqualify() *ScriptedRandom {
	return &ScriptedRandom{Fallback: 0.5}
}

func (r *ScriptedRandom) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls++
	if len(r.values) == 0 {
		return r.Fallback
	}
	v := r.values[0]
	if len(r.values) > 1 {
		r.values = r.values[1:]
	}
	return v
}

// Calls returns how many values have been drawn.
func (r *ScriptedRandom) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// RecordingListener keeps every snapshot it receives.
type RecordingListener struct {
	mu        sync.Mutex
	snapshots []Standings
}

func (l *RecordingListener) StateChanged(s Standings) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.snapshots = append(l.snapshots, s)
}

// Snapshots returns a copy of the received snapshots.
func (l *RecordingListener) Snapshots() []Standings {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Standings(nil), l.snapshots...)
}

// Events returns the event of every received snapshot in order.
func (l *RecordingListener) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	events := make([]Event, len(l.snapshots))
	for i, s := range l.snapshots {
		events[i] = s.Event
	}
	return events
}

// NewTestParticipants creates n selected participants with ids 10001, 10002, ...
func NewTestParticipants(n int) []*Participant {
	participants := make([]*Participant, n)
	for i := range participants {
		p := NewParticipant(fmt.Sprintf("%d", 10001+i), fmt.Sprintf("Runner %d", i+1), "Valencia", 30)
		p.WillParticipate = true
		participants[i] = p
	}
	return participants
}

// TestHarness bundles a Simulation with its deterministic collaborators.
type TestHarness struct {
	Sim      *Simulation
	Store    *kv.Memory
	Repo     *Repository
	Ticker   *timer.MockTicker
	Wall     *timer.FakeClock
	Random   *ScriptedRandom
	Listener *RecordingListener
}

// NewTestHarness creates a Simulation over an in-memory store, a mock ticker
// and a fake wall clock. Extra options are applied last.
func NewTestHarness(rng *ScriptedRandom, opts ...ConfigOption) (*TestHarness, error) {
	if rng == nil {
		rng = NeverDisqualify()
	}
	h := &TestHarness{
		Store:    kv.NewMemory(),
		Ticker:   timer.NewMockTicker(),
		Wall:     timer.NewFakeClock(TestEpoch),
		Random:   rng,
		Listener: &RecordingListener{},
	}

	base := []ConfigOption{
		WithStore(h.Store),
		WithTicker(h.Ticker),
		WithWallClock(h.Wall),
		WithRandom(h.Random),
		WithListener(h.Listener),
		WithLocation(time.UTC),
	}
	cfg, err := NewConfig(append(base, opts...)...)
	if err != nil {
		return nil, err
	}
	sim, err := New(cfg)
	if err != nil {
		return nil, err
	}
	h.Sim = sim
	h.Repo = sim.repo
	return h, nil
}
