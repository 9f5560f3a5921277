// Package invariants checks participant snapshots against the race rules.
//
// A Detector is fed the full participant set after every tick. It checks
// each snapshot on its own (bounds, leg order, totals, medals, ranks) and
// against the previous one (sticky finish, sticky disqualification).
package invariants

import (
	"math"
	"sort"
	"sync"
	"time"

	triathlon "github.com/LuisLeon1705/Triatlon-Ujap"
)

// totalTolerance absorbs float rounding when summing legs.
const totalTolerance = 1e-6

// Detector records invariant violations across successive snapshots.
type Detector struct {
	mu sync.RWMutex

	// Last observed state by participant id
	last map[string]observation

	// Detected violations
	violations []Violation
}

// observation is what the sticky checks need from a previous snapshot.
type observation struct {
	distances    [3]float64
	finished     bool
	finishTime   *time.Time
	disqualified bool
}

func observe(p *triathlon.Participant) observation {
	o := observation{
		finished:     p.Finished,
		disqualified: p.Disqualified,
	}
	for i, a := range triathlon.Activities {
		o.distances[i] = p.Progress.State(a).Distance
	}
	if p.FinishTime != nil {
		ft := *p.FinishTime
		o.finishTime = &ft
	}
	return o
}

// NewDetector creates a new violation detector.
func NewDetector() *Detector {
	return &Detector{
		last:       make(map[string]observation),
		violations: make([]Violation, 0),
	}
}

// Audit observes participants and returns the new violations as errors.
// It satisfies triathlon.Auditor.
func (d *Detector) Audit(participants []*triathlon.Participant) []error {
	found := d.Observe(participants)
	if len(found) == 0 {
		return nil
	}
	errs := make([]error, len(found))
	for i, v := range found {
		errs[i] = v
	}
	return errs
}

// Observe checks a snapshot and returns the violations it introduced.
func (d *Detector) Observe(participants []*triathlon.Participant) []Violation {
	d.mu.Lock()
	defer d.mu.Unlock()

	var found []Violation
	next := make(map[string]observation, len(participants))

	for _, p := range participants {
		found = append(found, checkParticipant(p)...)
		if prev, ok := d.last[p.ID]; ok {
			found = append(found, checkTransition(p, prev)...)
		}
		next[p.ID] = observe(p)
	}
	found = append(found, checkMedals(participants)...)
	found = append(found, checkRanks(participants)...)

	d.last = next
	d.violations = append(d.violations, found...)
	return found
}

func checkParticipant(p *triathlon.Participant) []Violation {
	var found []Violation

	for _, a := range triathlon.Activities {
		dist := p.Progress.State(a).Distance
		if dist < 0 || dist > a.MaxDistance() {
			found = append(found, Violation{
				Type:        ViolationDistanceBounds,
				Description: "leg distance outside [0, cap]",
				Participant: p.ID,
				Context: map[string]any{
					"activity": a.String(),
					"distance": dist,
					"cap":      a.MaxDistance(),
				},
			})
		}
	}

	// A leg may only have started once the previous one is capped
	for i := 1; i < len(triathlon.Activities); i++ {
		prevLeg, leg := triathlon.Activities[i-1], triathlon.Activities[i]
		prevState := p.Progress.State(prevLeg)
		if p.Progress.State(leg).SimStart != nil && !prevState.Completed(prevLeg.MaxDistance()) {
			found = append(found, Violation{
				Type:        ViolationActivityOrder,
				Description: "leg started before the previous leg was complete",
				Participant: p.ID,
				Context: map[string]any{
					"activity":          leg.String(),
					"previous_activity": prevLeg.String(),
					"previous_distance": prevState.Distance,
				},
			})
		}
	}

	sum := p.Progress.TotalDistance()
	if math.Abs(sum-p.TotalDistance) > totalTolerance {
		found = append(found, Violation{
			Type:        ViolationTotalMismatch,
			Description: "total distance is not the sum of the legs",
			Participant: p.ID,
			Context: map[string]any{
				"total": p.TotalDistance,
				"sum":   sum,
			},
		})
	}

	if p.Medal != triathlon.MedalNone && (!p.Finished || p.Disqualified) {
		found = append(found, Violation{
			Type:        ViolationIneligibleMedal,
			Description: "medal held by a participant who is unfinished or disqualified",
			Participant: p.ID,
			Context: map[string]any{
				"medal":        string(p.Medal),
				"finished":     p.Finished,
				"disqualified": p.Disqualified,
			},
		})
	}

	return found
}

func checkTransition(p *triathlon.Participant, prev observation) []Violation {
	var found []Violation

	if prev.finished {
		switch {
		case !p.Finished:
			found = append(found, Violation{
				Type:        ViolationFinishChanged,
				Description: "finish was cleared",
				Participant: p.ID,
			})
		case p.FinishTime == nil || prev.finishTime == nil || !p.FinishTime.Equal(*prev.finishTime):
			found = append(found, Violation{
				Type:        ViolationFinishChanged,
				Description: "finish time changed",
				Participant: p.ID,
				Context: map[string]any{
					"before": prev.finishTime,
					"after":  p.FinishTime,
				},
			})
		}
	}

	if prev.disqualified {
		if !p.Disqualified {
			found = append(found, Violation{
				Type:        ViolationDisqualificationCleared,
				Description: "disqualification was lifted",
				Participant: p.ID,
			})
		}
		if observe(p).distances != prev.distances {
			found = append(found, Violation{
				Type:        ViolationProgressAfterDisqualification,
				Description: "distance changed after disqualification",
				Participant: p.ID,
				Context: map[string]any{
					"before": prev.distances,
					"after":  observe(p).distances,
				},
			})
		}
	}

	return found
}

func checkMedals(participants []*triathlon.Participant) []Violation {
	holders := make(map[triathlon.Medal][]string)
	for _, p := range participants {
		if p.Medal != triathlon.MedalNone {
			holders[p.Medal] = append(holders[p.Medal], p.ID)
		}
	}

	var found []Violation
	for _, medal := range []triathlon.Medal{triathlon.MedalGold, triathlon.MedalSilver, triathlon.MedalBronze} {
		if ids := holders[medal]; len(ids) > 1 {
			found = append(found, Violation{
				Type:        ViolationDuplicateMedal,
				Description: "medal awarded more than once",
				Context: map[string]any{
					"medal":        string(medal),
					"participants": ids,
				},
			})
		}
	}
	return found
}

func checkRanks(participants []*triathlon.Participant) []Violation {
	ranked := make([]*triathlon.Participant, 0, len(participants))
	for _, p := range participants {
		if p.Ranked() {
			ranked = append(ranked, p)
		}
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].Position < ranked[j].Position })

	for i, p := range ranked {
		if p.Position != i+1 {
			return []Violation{{
				Type:        ViolationRank,
				Description: "positions are not a dense 1..N",
				Participant: p.ID,
				Context: map[string]any{
					"position": p.Position,
					"expected": i + 1,
				},
			}}
		}
		if i > 0 && ranked[i-1].TotalDistance < p.TotalDistance {
			return []Violation{{
				Type:        ViolationRank,
				Description: "a lower position has more distance than a higher one",
				Participant: p.ID,
				Context: map[string]any{
					"position":       p.Position,
					"distance":       p.TotalDistance,
					"ahead_distance": ranked[i-1].TotalDistance,
					"ahead_position": ranked[i-1].Position,
				},
			}}
		}
	}
	return nil
}

// Violations returns all detected violations.
func (d *Detector) Violations() []Violation {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]Violation{}, d.violations...)
}

// HasViolations returns true if any violations were detected.
func (d *Detector) HasViolations() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.violations) > 0
}

// Reset clears all recorded data. Call it when a new run starts, since a
// restart legitimately clears finishes and disqualifications.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.last = make(map[string]observation)
	d.violations = make([]Violation, 0)
}
