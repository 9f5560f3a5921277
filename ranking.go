package triathlon

import "sort"

// Rank assigns dense positions 1..N to the participants that take part and
// are not disqualified, by descending total distance. Ties keep their
// current order. Everyone else keeps whatever position they had.
func Rank(participants []*Participant) {
	ranked := make([]*Participant, 0, len(participants))
	for _, p := range participants {
		if p.Ranked() {
			ranked = append(ranked, p)
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].TotalDistance > ranked[j].TotalDistance
	})

	for i, p := range ranked {
		p.Position = i + 1
	}
}

// AssignMedals recomputes medals from scratch. Every medal is cleared, then
// gold, silver and bronze go to the three earliest finishers that are not
// disqualified.
func AssignMedals(participants []*Participant) {
	finished := make([]*Participant, 0, len(podium))
	for _, p := range participants {
		if p.Finished && !p.Disqualified && p.FinishTime != nil {
			finished = append(finished, p)
		}
	}

	sort.SliceStable(finished, func(i, j int) bool {
		return finished[i].FinishTime.Before(*finished[j].FinishTime)
	})

	for _, p := range participants {
		p.Medal = MedalNone
	}

	for i, p := range finished {
		if i >= len(podium) {
			break
		}
		p.Medal = podium[i]
	}
}
