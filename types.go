package triathlon

import (
	"fmt"
	"strings"
	"time"
)

// NotAvailable marks a start or end time that has not happened yet.
const NotAvailable = "N/A"

// ZeroTime is the formatted form of a zero elapsed time.
const ZeroTime = "00:00:00"

// Activity is one leg of the race. Legs are always run in the order
// walk, swim, bike.
type Activity int

const (
	ActivityWalk Activity = iota
	ActivitySwim
	ActivityBike
)

// Activities lists the legs in race order.
var Activities = [...]Activity{ActivityWalk, ActivitySwim, ActivityBike}

func (a Activity) String() string {
	switch a {
	case ActivityWalk:
		return "walk"
	case ActivitySwim:
		return "swim"
	case ActivityBike:
		return "bike"
	default:
		return fmt.Sprintf("activity(%d)", int(a))
	}
}

// MaxDistance returns the length of the leg in meters.
func (a Activity) MaxDistance() float64 {
	switch a {
	case ActivityWalk:
		return 10000
	case ActivitySwim:
		return 10000
	case ActivityBike:
		return 30000
	default:
		return 0
	}
}

// BaseSpeed returns the leg's speed baseline before the mode multiplier.
func (a Activity) BaseSpeed() float64 {
	switch a {
	case ActivityWalk:
		return 1.94
	case ActivitySwim:
		return 1.72
	case ActivityBike:
		return 12.5
	default:
		return 0
	}
}

// Next returns the leg that follows a, if any.
func (a Activity) Next() (Activity, bool) {
	if a < ActivityWalk || a >= ActivityBike {
		return 0, false
	}
	return a + 1, true
}

// ActivityState is a participant's progress on one leg.
type ActivityState struct {
	Distance float64    `json:"distance"`
	Time     string     `json:"time"`
	Start    string     `json:"start"`
	End      string     `json:"end"`
	SimStart *time.Time `json:"simStart,omitempty"`
}

func newActivityState() ActivityState {
	return ActivityState{
		Time:  ZeroTime,
		Start: NotAvailable,
		End:   NotAvailable,
	}
}

// Completed reports whether the leg has reached max.
func (s *ActivityState) Completed(max float64) bool {
	return s.Distance >= max
}

// Progress holds the three legs of a participant.
type Progress struct {
	Walk ActivityState `json:"walk"`
	Swim ActivityState `json:"swim"`
	Bike ActivityState `json:"bike"`
}

// NewProgress returns zeroed progress with every time unset.
func NewProgress() Progress {
	return Progress{
		Walk: newActivityState(),
		Swim: newActivityState(),
		Bike: newActivityState(),
	}
}

// State returns the leg state for a.
func (p *Progress) State(a Activity) *ActivityState {
	switch a {
	case ActivityWalk:
		return &p.Walk
	case ActivitySwim:
		return &p.Swim
	case ActivityBike:
		return &p.Bike
	default:
		panic(fmt.Sprintf("triathlon: unknown activity %d", int(a)))
	}
}

// TotalDistance sums the three legs.
func (p *Progress) TotalDistance() float64 {
	return p.Walk.Distance + p.Swim.Distance + p.Bike.Distance
}

// Medal is awarded to the first three finishers. The zero value means no medal.
type Medal string

const (
	MedalNone   Medal = ""
	MedalGold   Medal = "gold"
	MedalSilver Medal = "silver"
	MedalBronze Medal = "bronze"
)

var podium = [...]Medal{MedalGold, MedalSilver, MedalBronze}

// Participant is the record persisted in the participant store.
type Participant struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Municipality string `json:"municipality"`
	Age          int    `json:"age"`

	WillParticipate bool `json:"willParticipate"`

	Progress      Progress   `json:"progress"`
	TotalDistance float64    `json:"totalDistance"`
	TotalTime     string     `json:"totalTime"`
	Finished      bool       `json:"finished"`
	FinishTime    *time.Time `json:"finishTime,omitempty"`
	Disqualified  bool       `json:"disqualified"`
	Medal         Medal      `json:"medal,omitempty"`
	Position      int        `json:"position"`
}

// NewParticipant creates a participant with zeroed progress.
func NewParticipant(id, name, municipality string, age int) *Participant {
	p := &Participant{
		ID:           id,
		Name:         name,
		Municipality: municipality,
		Age:          age,
	}
	p.ResetProgress()
	return p
}

// ResetProgress clears every race field. Identity, display attributes and
// willParticipate are kept.
func (p *Participant) ResetProgress() {
	p.Progress = NewProgress()
	p.TotalDistance = 0
	p.TotalTime = ZeroTime
	p.Finished = false
	p.FinishTime = nil
	p.Disqualified = false
	p.Medal = MedalNone
	p.Position = 0
}

// Ranked reports whether the participant takes part in position ranking.
func (p *Participant) Ranked() bool {
	return p.WillParticipate && !p.Disqualified
}

// Racing reports whether the participant still receives progress updates.
func (p *Participant) Racing() bool {
	return p.WillParticipate && !p.Disqualified && !p.Finished
}

// CurrentActivity returns the first leg that has not reached its cap.
// ok is false once all three legs are complete.
func (p *Participant) CurrentActivity() (Activity, bool) {
	for _, a := range Activities {
		if !p.Progress.State(a).Completed(a.MaxDistance()) {
			return a, true
		}
	}
	return ActivityBike, false
}

// Clone returns a deep copy of p.
func (p *Participant) Clone() *Participant {
	c := *p
	c.Progress.Walk.SimStart = cloneTime(p.Progress.Walk.SimStart)
	c.Progress.Swim.SimStart = cloneTime(p.Progress.Swim.SimStart)
	c.Progress.Bike.SimStart = cloneTime(p.Progress.Bike.SimStart)
	c.FinishTime = cloneTime(p.FinishTime)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// Mode selects how fast simulated time runs.
type Mode string

const (
	// ModeFast runs 1000 simulated seconds per real second for 4 real minutes.
	ModeFast Mode = "fast"

	// ModeNormal runs in real time for 4 hours.
	ModeNormal Mode = "normal"
)

// DefaultMode is used when no preference has been stored.
const DefaultMode = ModeFast

// ParseMode accepts "fast", "normal" and the legacy "rapida".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fast", "rapida":
		return ModeFast, nil
	case "normal":
		return ModeNormal, nil
	default:
		return "", wrapValidationf("unknown simulation mode %q", s)
	}
}

// SpeedMultiplier returns how many simulated seconds pass per real second.
func (m Mode) SpeedMultiplier() float64 {
	if m == ModeNormal {
		return 1
	}
	return 1000
}

// Duration returns how long the simulation runs in real time.
func (m Mode) Duration() time.Duration {
	if m == ModeNormal {
		return 4 * time.Hour
	}
	return 4 * time.Minute
}
