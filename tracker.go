package triathlon

import (
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultDisqualifyProbability is the chance that a single update
	// disqualifies the participant.
	DefaultDisqualifyProbability = 0.001
)

// DefaultSpeedJitter bounds the random factor applied to every increment.
var DefaultSpeedJitter = SpeedJitter{Min: 0.8, Max: 1.2}

// Random is the source of randomness for progress updates.
// *math/rand.Rand satisfies it.
type Random interface {
	Float64() float64
}

// SpeedJitter bounds the uniform factor applied to each distance increment.
type SpeedJitter struct {
	Min float64
	Max float64
}

func (j SpeedJitter) sample(rng Random) float64 {
	return j.Min + rng.Float64()*(j.Max-j.Min)
}

// Outcome reports what a single Advance call did.
type Outcome struct {
	// Increment is the distance added before clamping.
	Increment float64

	// Disqualified is set when this call disqualified the participant.
	Disqualified bool

	// CompletedActivity is set when the leg reached its cap on this call.
	CompletedActivity bool

	// Finished is set when the participant completed the race on this call.
	Finished bool
}

// Tracker advances one participant on one leg per call.
type Tracker struct {
	rng                   Random
	disqualifyProbability float64
	jitter                SpeedJitter
	logger                *zap.Logger
}

// NewTracker creates a tracker drawing from rng.
func NewTracker(rng Random, disqualifyProbability float64, jitter SpeedJitter, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		rng:                   rng,
		disqualifyProbability: disqualifyProbability,
		jitter:                jitter,
		logger:                logger,
	}
}

// Advance moves p forward on activity a.
//
// speedFactor already includes the mode multiplier. now is the current
// simulated instant and elapsed the simulated time since the race started.
// Disqualified and finished participants are left untouched.
//
// The disqualification draw happens first and, when it hits, nothing else
// changes. Otherwise the leg is stamped on its first update, the distance
// grows by (speedFactor/10) times a jittered factor and is clamped to
// maxDistance, and reaching the cap stamps the leg's end together with the
// start of the next leg.
func (t *Tracker) Advance(p *Participant, a Activity, maxDistance, speedFactor float64, now time.Time, elapsed time.Duration) Outcome {
	var out Outcome
	if p.Disqualified || p.Finished {
		return out
	}

	if t.rng.Float64() < t.disqualifyProbability {
		p.Disqualified = true
		out.Disqualified = true
		t.logger.Info("participant disqualified",
			zap.String("participant", p.ID),
			zap.Stringer("activity", a))
		return out
	}

	out.Increment = (speedFactor / 10) * t.jitter.sample(t.rng)

	state := p.Progress.State(a)
	if state.SimStart == nil {
		start := now
		state.SimStart = &start
		state.Start = FormatAbsoluteTime(now)
	}

	state.Distance += out.Increment
	state.Time = FormatDuration(now.Sub(*state.SimStart))

	if state.Distance >= maxDistance {
		state.Distance = maxDistance

		if state.End == NotAvailable || state.End == "" {
			state.End = FormatAbsoluteTime(now)
			out.CompletedActivity = true

			// Legs run back to back
			if next, ok := a.Next(); ok {
				nextStart := now
				ns := p.Progress.State(next)
				ns.SimStart = &nextStart
				ns.Start = FormatAbsoluteTime(now)
			}

			t.logger.Debug("activity completed",
				zap.String("participant", p.ID),
				zap.Stringer("activity", a),
				zap.String("time", state.Time))
		}
	}

	p.TotalDistance = p.Progress.TotalDistance()
	p.TotalTime = FormatDuration(elapsed)

	if !p.Finished && allCompleted(&p.Progress) {
		finish := now
		p.Finished = true
		p.FinishTime = &finish
		out.Finished = true
		t.logger.Info("participant finished",
			zap.String("participant", p.ID),
			zap.String("total_time", p.TotalTime))
	}

	return out
}

func allCompleted(progress *Progress) bool {
	for _, a := range Activities {
		if !progress.State(a).Completed(a.MaxDistance()) {
			return false
		}
	}
	return true
}
