package conquest

import (
	"fmt"

	"github.com/zonerun/backend/internal/app/domain/territory"
)

// CellClaim pairs one cell with the transition its claim resolved to.
type CellClaim struct {
	Cell       territory.Cell
	Transition territory.Transition
}

// Stats aggregates per-transition counts for one submission.
type Stats struct {
	New      int `json:"new"`
	Robbed   int `json:"robbed"`
	Defended int `json:"defended"`
	Total    int `json:"total"`
}

// Summary is the human-facing aggregation of a submission's claims.
type Summary struct {
	Stats    Stats
	Title    string
	Headline string
}

// Summarize aggregates claims into counts and a priority-ordered headline:
// taking territory from an opponent outranks expansion, which outranks
// reinforcing held ground. Pure aggregation; empty input yields a neutral
// result.
func Summarize(claims []CellClaim) Summary {
	var stats Stats
	for _, claim := range claims {
		switch claim.Transition {
		case territory.TransitionNew:
			stats.New++
		case territory.TransitionDefense:
			stats.Defended++
		case territory.TransitionRobbery:
			stats.Robbed++
		}
	}
	stats.Total = len(claims)

	summary := Summary{Stats: stats}
	switch {
	case stats.Robbed > 0:
		summary.Title = "Attack"
		summary.Headline = fmt.Sprintf("Attack successful! You took %d zone(s) from your opponents.", stats.Robbed)
	case stats.New > 0:
		summary.Title = "New territory"
		summary.Headline = fmt.Sprintf("New territory! You claimed %d neutral zone(s).", stats.New)
	case stats.Defended > 0:
		summary.Title = "Defense"
		summary.Headline = fmt.Sprintf("You reinforced your hold on %d zone(s).", stats.Defended)
	default:
		summary.Title = "No change"
		summary.Headline = "No territory changed hands."
	}
	return summary
}
