package triathlon

import (
	"sort"
	"time"
)

// Event names what caused a Standings snapshot.
type Event string

const (
	EventStarted      Event = "started"
	EventTick         Event = "tick"
	EventFinished     Event = "finished"
	EventReset        Event = "reset"
	EventDisqualified Event = "disqualified"
	EventRegistry     Event = "registry"
	EventSnapshot     Event = "snapshot"
)

// Lifecycle reports whether e changes the run's lifecycle state rather than
// just its numbers.
func (e Event) Lifecycle() bool {
	return e == EventStarted || e == EventFinished || e == EventReset
}

// Listener is notified after every state change. Implementations must not
// block for long and must not call back into the Simulation synchronously.
type Listener interface {
	StateChanged(s Standings)
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc func(Standings)

// StateChanged calls f(s).
func (f ListenerFunc) StateChanged(s Standings) { f(s) }

// Standings is the snapshot handed to the presentation layer.
type Standings struct {
	RunID         string        `json:"runId,omitempty"`
	Event         Event         `json:"event"`
	State         string        `json:"state"`
	Mode          Mode          `json:"mode"`
	StartTime     *time.Time    `json:"startTime,omitempty"`
	SimulatedTime *time.Time    `json:"simulatedTime,omitempty"`
	Elapsed       string        `json:"elapsed"`
	Rows          []StandingRow `json:"rows"`
}

// StandingRow is one participant as displayed, with rank-change bookkeeping.
type StandingRow struct {
	Participant

	DistanceLabel    string `json:"distanceLabel"`
	PreviousPosition int    `json:"previousPosition,omitempty"`
	PositionChanged  bool   `json:"positionChanged"`
}

// unranked sorts participants without a position after everyone else.
const unranked = 999

// buildRows returns the display rows for the participants that take part:
// finishers first by finish time, then everyone else by position.
// previous holds the positions recorded before the last tick.
func buildRows(participants []*Participant, previous map[string]int) []StandingRow {
	shown := make([]*Participant, 0, len(participants))
	for _, p := range participants {
		if p.WillParticipate {
			shown = append(shown, p)
		}
	}

	sort.SliceStable(shown, func(i, j int) bool {
		a, b := shown[i], shown[j]
		switch {
		case a.Finished && b.Finished:
			return finishedBefore(a, b)
		case a.Finished != b.Finished:
			return a.Finished
		}
		return displayPosition(a) < displayPosition(b)
	})

	rows := make([]StandingRow, 0, len(shown))
	for _, p := range shown {
		row := StandingRow{
			Participant:   *p.Clone(),
			DistanceLabel: FormatDistance(p.TotalDistance),
		}
		if prev, ok := previous[p.ID]; ok {
			row.PreviousPosition = prev
			row.PositionChanged = prev != p.Position
		}
		rows = append(rows, row)
	}
	return rows
}

func finishedBefore(a, b *Participant) bool {
	if a.FinishTime == nil || b.FinishTime == nil {
		return a.FinishTime != nil
	}
	return a.FinishTime.Before(*b.FinishTime)
}

func displayPosition(p *Participant) int {
	if p.Position == 0 {
		return unranked
	}
	return p.Position
}
