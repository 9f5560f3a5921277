package triathlon

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHarness(t *testing.T, rng *ScriptedRandom, opts ...ConfigOption) *TestHarness {
	t.Helper()
	h, err := NewTestHarness(rng, opts...)
	require.NoError(t, err)
	t.Cleanup(h.Sim.Stop)
	return h
}

func seed(t *testing.T, h *TestHarness, participants []*Participant) {
	t.Helper()
	require.NoError(t, h.Repo.SaveParticipants(context.Background(), participants))
}

func load(t *testing.T, h *TestHarness) []*Participant {
	t.Helper()
	ps, err := h.Repo.LoadParticipants(context.Background())
	require.NoError(t, err)
	return ps
}

func byID(ps []*Participant) map[string]*Participant {
	m := make(map[string]*Participant, len(ps))
	for _, p := range ps {
		m[p.ID] = p
	}
	return m
}

type countingAuditor struct {
	mu     sync.Mutex
	calls  int
	resets int
}

func (a *countingAuditor) Audit(participants []*Participant) []error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	return []error{errors.New("synthetic violation")}
}

func (a *countingAuditor) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.resets++
}

func TestNewRequiresConfig(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrConfig)

	_, err = New(&Config{})
	assert.ErrorIs(t, err, ErrConfig)
}

func TestStartValidation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	err := h.Sim.Start(ctx, time.Time{}, ModeFast)
	assert.ErrorIs(t, err, ErrValidation)

	err = h.Sim.Start(ctx, raceStart, Mode("warp"))
	assert.ErrorIs(t, err, ErrValidation)

	// Nobody selected
	ps := NewTestParticipants(2)
	for _, p := range ps {
		p.WillParticipate = false
	}
	seed(t, h, ps)

	err = h.Sim.Start(ctx, raceStart, ModeFast)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, ClockIdle, h.Sim.State())
	assert.Empty(t, h.Sim.RunID())
	assert.Empty(t, h.Listener.Events())
	assert.Equal(t, ps, load(t, h))
}

func TestRejectedStartKeepsRunningRace(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	seed(t, h, NewTestParticipants(2))

	require.NoError(t, h.Sim.Start(ctx, raceStart, ModeFast))
	runID := h.Sim.RunID()
	done := h.Sim.Done()

	require.NoError(t, h.Sim.SetParticipation(ctx, "10001", false))
	require.NoError(t, h.Sim.SetParticipation(ctx, "10002", false))

	err := h.Sim.Start(ctx, raceStart.Add(time.Hour), ModeFast)
	require.ErrorIs(t, err, ErrValidation)

	assert.Equal(t, ClockRunning, h.Sim.State())
	assert.Equal(t, runID, h.Sim.RunID())
	assert.True(t, h.Ticker.IsRunning())
	assert.Equal(t, 1, h.Ticker.Starts())
	select {
	case <-done:
		t.Fatal("running race should not be stopped")
	default:
	}
	assert.Equal(t, []Event{EventStarted, EventRegistry, EventRegistry}, h.Listener.Events())
}

func TestStartResetsSelectedParticipants(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	ps := NewTestParticipants(3)
	ps[0].Progress.Walk.Distance = 5000
	ps[0].Disqualified = true
	ps[0].Position = 2
	ps[2].WillParticipate = false
	ps[2].Progress.Walk.Distance = 1234
	seed(t, h, ps)

	require.NoError(t, h.Sim.Start(ctx, raceStart, ModeFast))

	got := byID(load(t, h))
	first := got[ps[0].ID]
	assert.False(t, first.Disqualified)
	assert.Zero(t, first.Progress.Walk.Distance)
	assert.Zero(t, first.Position)
	require.NotNil(t, first.Progress.Walk.SimStart)
	assert.Equal(t, raceStart, *first.Progress.Walk.SimStart)
	assert.Equal(t, "07:00:00", first.Progress.Walk.Start)
	assert.Equal(t, NotAvailable, first.Progress.Swim.Start)

	// Not selected, so untouched
	assert.Equal(t, 1234.0, got[ps[2].ID].Progress.Walk.Distance)
	assert.Nil(t, got[ps[2].ID].Progress.Walk.SimStart)

	assert.Equal(t, ClockRunning, h.Sim.State())
	assert.NotEmpty(t, h.Sim.RunID())
	assert.True(t, h.Ticker.IsRunning())

	mode, err := h.Sim.Mode(ctx)
	require.NoError(t, err)
	assert.Equal(t, ModeFast, mode)

	snaps := h.Listener.Snapshots()
	require.Len(t, snaps, 1)
	assert.Equal(t, EventStarted, snaps[0].Event)
	assert.Equal(t, "running", snaps[0].State)
	assert.Equal(t, h.Sim.RunID(), snaps[0].RunID)
	assert.Len(t, snaps[0].Rows, 2, "only selected participants are shown")
}

func TestStartUsesStoredMode(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	seed(t, h, NewTestParticipants(1))

	require.NoError(t, h.Sim.SetMode(ctx, ModeNormal))
	require.NoError(t, h.Sim.Start(ctx, raceStart, ""))

	assert.Equal(t, ModeNormal, h.Sim.clock.Mode())

	// One real second is one simulated second
	h.Wall.Advance(time.Second)
	require.True(t, h.Sim.clock.Tick())
	assert.Equal(t, raceStart.Add(time.Second), h.Sim.clock.SimulatedNow())
}

func TestStartTwiceCancelsPreviousRun(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	seed(t, h, NewTestParticipants(2))

	require.NoError(t, h.Sim.Start(ctx, raceStart, ModeFast))
	firstRun := h.Sim.RunID()
	firstDone := h.Sim.Done()

	require.NoError(t, h.Sim.Start(ctx, raceStart.Add(time.Hour), ModeFast))

	select {
	case <-firstDone:
	default:
		t.Fatal("first run should be stopped")
	}
	assert.NotEqual(t, firstRun, h.Sim.RunID())
	assert.Equal(t, 2, h.Ticker.Starts())
}

func TestTickAdvancesRanksAndPersists(t *testing.T) {
	ctx := context.Background()
	// Runner 1 draws the low jitter, runner 2 the high one
	h := newHarness(t, NewScriptedRandom(0.5, 0.0, 0.5, 0.99))
	ps := NewTestParticipants(2)
	seed(t, h, ps)

	require.NoError(t, h.Sim.Start(ctx, raceStart, ModeFast))

	now := raceStart.Add(1000 * time.Second)
	require.NoError(t, h.Sim.Tick(ctx, now, 1000*time.Second))

	got := byID(load(t, h))
	slow, fast := got[ps[0].ID], got[ps[1].ID]
	assert.InDelta(t, 194*0.8, slow.Progress.Walk.Distance, 1e-9)
	assert.InDelta(t, 194*1.196, fast.Progress.Walk.Distance, 1e-9)
	assert.Equal(t, "00:16:40", slow.Progress.Walk.Time)
	assert.Equal(t, "00:16:40", slow.TotalTime)
	assert.Equal(t, 1, fast.Position)
	assert.Equal(t, 2, slow.Position)

	snaps := h.Listener.Snapshots()
	last := snaps[len(snaps)-1]
	assert.Equal(t, EventTick, last.Event)
	require.NotNil(t, last.SimulatedTime)
	assert.Equal(t, now, *last.SimulatedTime)
	assert.Equal(t, "00:16:40", last.Elapsed)
	require.Len(t, last.Rows, 2)
	assert.Equal(t, ps[1].ID, last.Rows[0].ID)
	assert.True(t, last.Rows[0].PositionChanged, "0 to 1 is a change")

	// Second tick keeps the order
	require.NoError(t, h.Sim.Tick(ctx, now.Add(1000*time.Second), 2000*time.Second))
	snaps = h.Listener.Snapshots()
	last = snaps[len(snaps)-1]
	assert.Equal(t, 1, last.Rows[0].PreviousPosition)
	assert.False(t, last.Rows[0].PositionChanged)
	assert.False(t, last.Rows[1].PositionChanged)
}

func TestTickStampsFinishForPresetParticipant(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	ps := NewTestParticipants(2)
	ps[0].Progress.Walk.Distance = 10000
	ps[0].Progress.Swim.Distance = 10000
	ps[0].Progress.Bike.Distance = 30000
	seed(t, h, ps)

	now := raceStart.Add(2 * time.Hour)
	require.NoError(t, h.Sim.Tick(ctx, now, 2*time.Hour))

	got := byID(load(t, h))
	done := got[ps[0].ID]
	assert.True(t, done.Finished)
	require.NotNil(t, done.FinishTime)
	assert.Equal(t, now, *done.FinishTime)
	assert.Equal(t, MedalGold, done.Medal)
	assert.Equal(t, 1, done.Position)
	assert.Equal(t, MedalNone, got[ps[1].ID].Medal)
}

func TestTickSkipsTerminalParticipants(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	ps := NewTestParticipants(3)
	ps[0].Disqualified = true
	ps[0].Progress.Walk.Distance = 300
	finishAt(ps[1], time.Hour)
	ps[2].WillParticipate = false
	seed(t, h, ps)

	for i := 1; i <= 5; i++ {
		elapsed := time.Duration(i) * 1000 * time.Second
		require.NoError(t, h.Sim.Tick(ctx, raceStart.Add(elapsed), elapsed))
	}

	got := byID(load(t, h))
	assert.Equal(t, 300.0, got[ps[0].ID].Progress.Walk.Distance)
	assert.Equal(t, raceStart.Add(time.Hour), *got[ps[1].ID].FinishTime)
	assert.Zero(t, got[ps[2].ID].TotalDistance)
	assert.Zero(t, h.Random.Calls())
}

func TestTickRunsAuditor(t *testing.T) {
	ctx := context.Background()
	auditor := &countingAuditor{}
	h := newHarness(t, nil, WithAuditor(auditor))
	seed(t, h, NewTestParticipants(1))

	require.NoError(t, h.Sim.Start(ctx, raceStart, ModeFast))
	require.NoError(t, h.Sim.Tick(ctx, raceStart.Add(time.Second), time.Second))
	require.NoError(t, h.Sim.Tick(ctx, raceStart.Add(2*time.Second), 2*time.Second))

	auditor.mu.Lock()
	defer auditor.mu.Unlock()
	assert.Equal(t, 2, auditor.calls)
	assert.Equal(t, 1, auditor.resets)
}

func TestClockDrivesTicks(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	seed(t, h, NewTestParticipants(2))

	require.NoError(t, h.Sim.Start(ctx, raceStart, ModeFast))

	h.Wall.Advance(time.Second)
	require.True(t, h.Ticker.Fire())

	assert.Eventually(t, func() bool {
		events := h.Listener.Events()
		return len(events) == 2 && events[1] == EventTick
	}, 2*time.Second, 5*time.Millisecond)

	// Time limit ends the run
	h.Wall.Advance(239 * time.Second)
	assert.Eventually(t, func() bool { return h.Ticker.Fire() }, 2*time.Second, 5*time.Millisecond)

	select {
	case <-h.Sim.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("run did not finish")
	}
	assert.Equal(t, ClockFinished, h.Sim.State())

	events := h.Listener.Events()
	assert.Equal(t, EventFinished, events[len(events)-1])
}

func TestDisqualify(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	ps := NewTestParticipants(4)
	finishAt(ps[0], 100*time.Second)
	finishAt(ps[1], 150*time.Second)
	finishAt(ps[2], 200*time.Second)
	finishAt(ps[3], 250*time.Second)
	AssignMedals(ps)
	seed(t, h, ps)

	err := h.Sim.Disqualify(ctx, "99999")
	assert.ErrorIs(t, err, ErrNotFound)

	// A finished gold medalist can be disqualified; medals move up at once
	require.NoError(t, h.Sim.Disqualify(ctx, ps[0].ID))
	got := byID(load(t, h))
	assert.True(t, got[ps[0].ID].Disqualified)
	assert.Equal(t, MedalNone, got[ps[0].ID].Medal)
	assert.Equal(t, MedalGold, got[ps[1].ID].Medal)
	assert.Equal(t, MedalBronze, got[ps[3].ID].Medal)
	assert.Equal(t, []Event{EventDisqualified}, h.Listener.Events())

	// Again is a silent no-op
	require.NoError(t, h.Sim.Disqualify(ctx, ps[0].ID))
	assert.Len(t, h.Listener.Events(), 1)
}

func TestDisqualifyClosesPositionGap(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	ps := NewTestParticipants(3)
	for i, d := range []float64{300, 200, 100} {
		ps[i].Progress.Walk.Distance = d
		ps[i].TotalDistance = d
	}
	Rank(ps)
	seed(t, h, ps)

	require.NoError(t, h.Sim.Disqualify(ctx, "10001"))

	got := byID(load(t, h))
	assert.Equal(t, 1, got["10002"].Position)
	assert.Equal(t, 2, got["10003"].Position)
	assert.Equal(t, 1, got["10001"].Position, "disqualified keeps its stale position")

	st := h.Listener.Snapshots()[0]
	assert.Equal(t, EventDisqualified, st.Event)
	positions := make(map[string]int, len(st.Rows))
	for _, row := range st.Rows {
		positions[row.ID] = row.Position
	}
	assert.Equal(t, 1, positions["10002"])
	assert.Equal(t, 2, positions["10003"])
}

func TestDisqualifiedParticipantStopsProgressing(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	ps := NewTestParticipants(2)
	seed(t, h, ps)

	require.NoError(t, h.Sim.Start(ctx, raceStart, ModeFast))
	require.NoError(t, h.Sim.Tick(ctx, raceStart.Add(1000*time.Second), 1000*time.Second))
	require.NoError(t, h.Sim.Disqualify(ctx, ps[0].ID))

	frozen := byID(load(t, h))[ps[0].ID].Clone()

	for i := 2; i <= 10; i++ {
		elapsed := time.Duration(i) * 1000 * time.Second
		require.NoError(t, h.Sim.Tick(ctx, raceStart.Add(elapsed), elapsed))
	}

	got := byID(load(t, h))
	assert.Equal(t, frozen.Progress, got[ps[0].ID].Progress)
	assert.Equal(t, 1, got[ps[1].ID].Position)
	assert.Equal(t, frozen.Position, got[ps[0].ID].Position, "position is left stale")
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	ps := NewTestParticipants(3)
	ps[2].WillParticipate = false
	ps[2].Progress.Walk.Distance = 77
	seed(t, h, ps)

	require.NoError(t, h.Sim.Start(ctx, raceStart, ModeFast))
	require.NoError(t, h.Sim.Tick(ctx, raceStart.Add(1000*time.Second), 1000*time.Second))
	require.NoError(t, h.Sim.Reset(ctx))

	for _, p := range load(t, h) {
		assert.Zero(t, p.TotalDistance)
		assert.Zero(t, p.Progress.Walk.Distance)
		assert.Nil(t, p.Progress.Walk.SimStart)
		assert.Zero(t, p.Position)
	}
	assert.True(t, byID(load(t, h))[ps[0].ID].WillParticipate)

	assert.Equal(t, ClockStopped, h.Sim.State())
	assert.False(t, h.Ticker.IsRunning())
	assert.Empty(t, h.Sim.RunID())

	snaps := h.Listener.Snapshots()
	last := snaps[len(snaps)-1]
	assert.Equal(t, EventReset, last.Event)
	assert.Nil(t, last.StartTime)
	for _, row := range last.Rows {
		assert.False(t, row.PositionChanged)
	}
}

func TestCurrentStandingsOrder(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	ps := NewTestParticipants(5)
	finishAt(ps[3], 300*time.Second)
	finishAt(ps[4], 200*time.Second)
	ps[0].Position = 2
	ps[1].Position = 0
	ps[2].Position = 1
	seed(t, h, ps)

	st, err := h.Sim.CurrentStandings(ctx)
	require.NoError(t, err)

	ids := make([]string, len(st.Rows))
	for i, row := range st.Rows {
		ids[i] = row.ID
	}
	assert.Equal(t, []string{ps[4].ID, ps[3].ID, ps[2].ID, ps[0].ID, ps[1].ID}, ids)
	assert.Equal(t, EventSnapshot, st.Event)
	assert.Equal(t, "idle", st.State)
	assert.Equal(t, "50.00 Km", st.Rows[0].DistanceLabel)
}

// TestFullRace runs a seeded fast-mode race to the time limit through the
// ticker and checks the end state.
func TestFullRace(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, WithSeed(42), WithDisqualifyProbability(0.0005))
	seed(t, h, NewTestParticipants(10))

	require.NoError(t, h.Sim.Start(ctx, raceStart, ModeFast))

	for i := 1; i < 240; i++ {
		h.Wall.Advance(time.Second)
		require.True(t, h.Sim.clock.Tick())
	}
	h.Wall.Advance(time.Second)
	assert.False(t, h.Sim.clock.Tick())
	assert.Equal(t, ClockFinished, h.Sim.State())
	<-h.Sim.Done()

	events := h.Listener.Events()
	assert.Equal(t, EventFinished, events[len(events)-1])

	ps := load(t, h)
	medals := map[Medal]int{}
	for _, p := range ps {
		assert.Equal(t, p.Progress.TotalDistance(), p.TotalDistance)
		if p.Medal != MedalNone {
			medals[p.Medal]++
			assert.True(t, p.Finished)
			assert.False(t, p.Disqualified)
		}
		if p.Finished {
			assert.Equal(t, 50000.0, p.TotalDistance)
		}
	}
	for _, m := range []Medal{MedalGold, MedalSilver, MedalBronze} {
		assert.LessOrEqual(t, medals[m], 1)
	}
	assert.Equal(t, 1, medals[MedalGold])
}
