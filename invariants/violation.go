package invariants

import "fmt"

// Violation is a broken race invariant seen in a participant snapshot.
type Violation struct {
	// Type of violation
	Type ViolationType

	// Description of what went wrong
	Description string

	// Participant id, or "" for set-wide violations
	Participant string

	// Additional context (distances, times, positions)
	Context map[string]any
}

func (v Violation) Error() string {
	if v.Participant == "" {
		return fmt.Sprintf("%s: %s", v.Type, v.Description)
	}
	return fmt.Sprintf("%s: %s (participant %s)", v.Type, v.Description, v.Participant)
}

// ViolationType categorizes invariant violations.
type ViolationType int

const (
	// ViolationNone - no violation (shouldn't happen in Violation slice)
	ViolationNone ViolationType = iota

	// ViolationDistanceBounds - a leg distance is negative or above its cap
	ViolationDistanceBounds

	// ViolationActivityOrder - a leg started before the previous one was capped
	ViolationActivityOrder

	// ViolationTotalMismatch - totalDistance is not the sum of the legs
	ViolationTotalMismatch

	// ViolationFinishChanged - a finish was cleared or its time moved
	ViolationFinishChanged

	// ViolationProgressAfterDisqualification - a disqualified participant moved
	ViolationProgressAfterDisqualification

	// ViolationDisqualificationCleared - a disqualification was lifted mid-run
	ViolationDisqualificationCleared

	// ViolationIneligibleMedal - a medal on someone unfinished or disqualified
	ViolationIneligibleMedal

	// ViolationDuplicateMedal - the same medal held by more than one participant
	ViolationDuplicateMedal

	// ViolationRank - positions are not a dense 1..N by distance
	ViolationRank
)

func (v ViolationType) String() string {
	switch v {
	case ViolationNone:
		return "None"
	case ViolationDistanceBounds:
		return "DistanceBounds"
	case ViolationActivityOrder:
		return "ActivityOrder"
	case ViolationTotalMismatch:
		return "TotalMismatch"
	case ViolationFinishChanged:
		return "FinishChanged"
	case ViolationProgressAfterDisqualification:
		return "ProgressAfterDisqualification"
	case ViolationDisqualificationCleared:
		return "DisqualificationCleared"
	case ViolationIneligibleMedal:
		return "IneligibleMedal"
	case ViolationDuplicateMedal:
		return "DuplicateMedal"
	case ViolationRank:
		return "Rank"
	default:
		return "Unknown"
	}
}
