package triathlon

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Simulation runs the race: it owns the clock, advances every participant on
// each tick, ranks them, persists the set and notifies listeners.
//
// All reads and writes of the participant set go through mu, so ticks,
// disqualifications and registry changes never interleave. Start, Reset and
// Stop are further serialized by lifeMu. The clock is always stopped before
// mu is taken, which keeps a stale tick from seeing a half-reset set.
type Simulation struct {
	lifeMu sync.Mutex
	mu     sync.Mutex

	cfg     *Config
	repo    *Repository
	tracker *Tracker
	clock   *Clock
	logger  *zap.Logger

	runID     string
	mode      Mode
	previous  map[string]int
	runCtx    context.Context
	cancelRun context.CancelFunc

	lmu       sync.RWMutex
	listeners []Listener
}

// resetter is implemented by auditors that keep per-run history.
type resetter interface {
	Reset()
}

// New creates a Simulation from cfg.
func New(cfg *Config) (*Simulation, error) {
	if cfg == nil {
		return nil, wrapConfig("config is required")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	s := &Simulation{
		cfg:       cfg,
		repo:      NewRepository(cfg.Store, logger.Named("repository")),
		tracker:   NewTracker(cfg.Random, cfg.DisqualifyProbability, cfg.SpeedJitter, logger.Named("tracker")),
		clock:     NewClock(cfg.WallClock, cfg.Ticker, cfg.TickInterval, logger.Named("clock")),
		logger:    logger,
		mode:      DefaultMode,
		previous:  make(map[string]int),
		runCtx:    context.Background(),
		cancelRun: func() {},
		listeners: append([]Listener(nil), cfg.Listeners...),
	}
	return s, nil
}

// AddListener registers l for every later state change.
func (s *Simulation) AddListener(l Listener) {
	s.lmu.Lock()
	defer s.lmu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Start begins a new run at startAt. An empty mode uses the stored
// preference; an explicit one is stored as the new preference.
//
// Only participants with willParticipate are reset, and their walk leg is
// stamped with the start instant. At least one such participant is required.
func (s *Simulation) Start(ctx context.Context, startAt time.Time, mode Mode) error {
	if startAt.IsZero() {
		return wrapValidation("start date and time are required")
	}

	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()

	if mode == "" {
		stored, err := s.repo.LoadMode(ctx)
		if err != nil {
			return err
		}
		mode = stored
	} else {
		parsed, err := ParseMode(string(mode))
		if err != nil {
			return err
		}
		mode = parsed
	}

	// A rejected start leaves the running race alone
	if err := s.checkSelected(ctx); err != nil {
		return err
	}

	s.stopClock()

	s.mu.Lock()
	participants, err := s.repo.LoadParticipants(ctx)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	active := countSelected(participants)
	if active == 0 {
		s.mu.Unlock()
		return wrapValidation("no participants selected for the race")
	}

	start := startAt.In(s.cfg.Location)
	for _, p := range participants {
		if !p.WillParticipate {
			continue
		}
		p.ResetProgress()
		walkStart := start
		p.Progress.Walk.SimStart = &walkStart
		p.Progress.Walk.Start = FormatAbsoluteTime(start)
	}

	if err := s.repo.SaveParticipants(ctx, participants); err != nil {
		s.mu.Unlock()
		return err
	}
	if err := s.repo.SaveMode(ctx, mode); err != nil {
		s.mu.Unlock()
		return err
	}

	s.runID = uuid.NewString()
	s.mode = mode
	s.previous = make(map[string]int)
	s.runCtx, s.cancelRun = context.WithCancel(context.Background())
	if r, ok := s.cfg.Auditor.(resetter); ok {
		r.Reset()
	}

	if err := s.clock.Start(start, mode, s.onTick, s.onFinish); err != nil {
		s.mu.Unlock()
		return err
	}

	s.logger.Info("simulation started",
		zap.String("run_id", s.runID),
		zap.String("mode", string(mode)),
		zap.Time("start", start),
		zap.Int("participants", active))

	snapshot := s.standingsLocked(EventStarted, participants, start, 0)
	s.mu.Unlock()

	s.notify(snapshot)
	return nil
}

// checkSelected returns a validation error when nobody is selected for the
// next run.
func (s *Simulation) checkSelected(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	participants, err := s.repo.LoadParticipants(ctx)
	if err != nil {
		return err
	}
	if countSelected(participants) == 0 {
		return wrapValidation("no participants selected for the race")
	}
	return nil
}

func countSelected(participants []*Participant) int {
	n := 0
	for _, p := range participants {
		if p.WillParticipate {
			n++
		}
	}
	return n
}

// Reset stops the clock and reinitializes every participant's progress.
func (s *Simulation) Reset(ctx context.Context) error {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()

	s.stopClock()

	s.mu.Lock()
	participants, err := s.repo.LoadParticipants(ctx)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	for _, p := range participants {
		p.ResetProgress()
	}
	if err := s.repo.SaveParticipants(ctx, participants); err != nil {
		s.mu.Unlock()
		return err
	}

	s.logger.Info("simulation reset", zap.String("run_id", s.runID))

	s.runID = ""
	s.previous = make(map[string]int)
	s.clock.Clear()
	if r, ok := s.cfg.Auditor.(resetter); ok {
		r.Reset()
	}

	snapshot := s.standingsLocked(EventReset, participants, time.Time{}, 0)
	s.mu.Unlock()

	s.notify(snapshot)
	return nil
}

// Stop halts ticking without touching participant state.
func (s *Simulation) Stop() {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	s.stopClock()
}

// stopClock must be called with lifeMu held and mu not held.
func (s *Simulation) stopClock() {
	s.clock.Stop()
	s.cancelRun()
}

func (s *Simulation) onTick(now time.Time, elapsed time.Duration) {
	s.mu.Lock()
	ctx := s.runCtx
	s.mu.Unlock()

	if err := s.Tick(ctx, now, elapsed); err != nil {
		s.logger.Error("tick failed", zap.Error(err))
	}
}

func (s *Simulation) onFinish() {
	s.mu.Lock()
	participants, err := s.repo.LoadParticipants(s.runCtx)
	if err != nil {
		s.mu.Unlock()
		s.logger.Error("failed to load participants at finish", zap.Error(err))
		return
	}

	finished := 0
	for _, p := range participants {
		if p.WillParticipate && p.Finished && !p.Disqualified {
			finished++
		}
	}
	s.logger.Info("simulation finished",
		zap.String("run_id", s.runID),
		zap.Int("finishers", finished))

	snapshot := s.standingsLocked(EventFinished, participants, s.clock.SimulatedNow(), s.clock.Elapsed())
	s.mu.Unlock()

	s.notify(snapshot)
}

// Tick advances every racing participant to the simulated instant now.
// elapsed is the simulated time since the start of the run.
func (s *Simulation) Tick(ctx context.Context, now time.Time, elapsed time.Duration) error {
	s.mu.Lock()

	participants, err := s.repo.LoadParticipants(ctx)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	previous := make(map[string]int, len(participants))
	for _, p := range participants {
		if p.WillParticipate {
			previous[p.ID] = p.Position
		}
	}

	multiplier := s.mode.SpeedMultiplier()
	for _, p := range participants {
		if !p.Racing() {
			continue
		}
		// All legs capped without a finish stamp only happens with
		// preloaded data; bike is where the tracker stamps the finish.
		a, ok := p.CurrentActivity()
		if !ok {
			a = ActivityBike
		}
		s.tracker.Advance(p, a, a.MaxDistance(), a.BaseSpeed()*multiplier, now, elapsed)
	}

	AssignMedals(participants)
	Rank(participants)

	if err := s.repo.SaveParticipants(ctx, participants); err != nil {
		s.mu.Unlock()
		return err
	}
	s.previous = previous

	if s.cfg.Auditor != nil {
		for _, v := range s.cfg.Auditor.Audit(participants) {
			s.logger.Warn("invariant violation", zap.String("run_id", s.runID), zap.Error(v))
		}
	}

	snapshot := s.standingsLocked(EventTick, participants, now, elapsed)
	s.mu.Unlock()

	s.notify(snapshot)
	return nil
}

// Disqualify marks a participant as disqualified and recomputes medals and
// positions.
// Disqualifying someone already disqualified does nothing. Finished
// participants can still be disqualified and lose their medal.
func (s *Simulation) Disqualify(ctx context.Context, id string) error {
	s.mu.Lock()

	participants, err := s.repo.LoadParticipants(ctx)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	p := findParticipant(participants, id)
	if p == nil {
		s.mu.Unlock()
		return wrapNotFoundf("participant %q", id)
	}
	if p.Disqualified {
		s.mu.Unlock()
		return nil
	}

	p.Disqualified = true
	AssignMedals(participants)
	Rank(participants)

	if err := s.repo.SaveParticipants(ctx, participants); err != nil {
		s.mu.Unlock()
		return err
	}

	s.logger.Info("participant disqualified by operator",
		zap.String("run_id", s.runID),
		zap.String("participant", id),
		zap.Bool("was_finished", p.Finished))

	snapshot := s.standingsLocked(EventDisqualified, participants, s.clock.SimulatedNow(), s.clock.Elapsed())
	s.mu.Unlock()

	s.notify(snapshot)
	return nil
}

// CurrentStandings returns the snapshot listeners would receive now.
func (s *Simulation) CurrentStandings(ctx context.Context) (Standings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	participants, err := s.repo.LoadParticipants(ctx)
	if err != nil {
		return Standings{}, err
	}
	return s.standingsLocked(EventSnapshot, participants, s.clock.SimulatedNow(), s.clock.Elapsed()), nil
}

// State returns the clock's lifecycle state.
func (s *Simulation) State() ClockState {
	return s.clock.State()
}

// RunID returns the id of the current run, or "" when none was started
// since the last reset.
func (s *Simulation) RunID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runID
}

// Done returns a channel closed when the current run's clock stops ticking.
func (s *Simulation) Done() <-chan struct{} {
	return s.clock.Done()
}

// Location returns the time zone used for absolute clock times.
func (s *Simulation) Location() *time.Location {
	return s.cfg.Location
}

func (s *Simulation) standingsLocked(event Event, participants []*Participant, now time.Time, elapsed time.Duration) Standings {
	st := Standings{
		RunID:   s.runID,
		Event:   event,
		State:   s.clock.State().String(),
		Mode:    s.mode,
		Elapsed: FormatDuration(elapsed),
		Rows:    buildRows(participants, s.previous),
	}
	if start := s.clock.StartTime(); !start.IsZero() {
		st.StartTime = &start
	}
	if !now.IsZero() {
		st.SimulatedTime = &now
	}
	return st
}

func (s *Simulation) notify(st Standings) {
	s.lmu.RLock()
	listeners := append([]Listener(nil), s.listeners...)
	s.lmu.RUnlock()

	for _, l := range listeners {
		l.StateChanged(st)
	}
}

func findParticipant(participants []*Participant, id string) *Participant {
	for _, p := range participants {
		if p.ID == id {
			return p
		}
	}
	return nil
}
