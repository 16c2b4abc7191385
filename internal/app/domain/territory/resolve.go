package territory

import "time"

// Resolve classifies the ownership transition for one cell given the current
// ownership snapshot. It is a pure function: the caller is responsible for
// reading current under a lock and persisting the returned record.
//
//   - current == nil: the cell is unclaimed, the claim is NEW.
//   - current owner is the claimant: DEFENSE, owner unchanged, timestamp
//     refreshed.
//   - current owner differs: ROBBERY, the claimant takes over.
//
// Team affiliation is carried onto the new record for team-ranking
// aggregation; it never influences the classification.
func Resolve(cell Cell, runnerID int64, teamID *int64, current *Ownership, now time.Time) (Transition, Ownership) {
	next := Ownership{
		Cell:       cell,
		RunnerID:   runnerID,
		TeamID:     teamID,
		CapturedAt: now,
	}

	switch {
	case current == nil:
		return TransitionNew, next
	case current.RunnerID == runnerID:
		return TransitionDefense, next
	default:
		return TransitionRobbery, next
	}
}
