package territory

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Transition classifies a single cell's ownership change on one submission.
type Transition string

const (
	// TransitionNew marks a claim on a previously unowned cell.
	TransitionNew Transition = "NEW"
	// TransitionDefense marks a re-claim by the current owner.
	TransitionDefense Transition = "DEFENSE"
	// TransitionRobbery marks a takeover from a different owner.
	TransitionRobbery Transition = "ROBBERY"
)

// Cell identifies one fixed-resolution grid cell. It is a coordinate key, not
// an entity with its own lifecycle.
type Cell struct {
	X int
	Y int
}

// Key renders the canonical string form persisted by the stores.
func (c Cell) Key() string {
	return fmt.Sprintf("%d:%d", c.X, c.Y)
}

// Less orders cells by (X, Y). The conquest coordinator processes and locks
// cells in this order so that overlapping submissions cannot deadlock.
func (c Cell) Less(o Cell) bool {
	if c.X != o.X {
		return c.X < o.X
	}
	return c.Y < o.Y
}

// ParseCellKey parses the canonical "x:y" form.
func ParseCellKey(key string) (Cell, error) {
	parts := strings.SplitN(key, ":", 2)
	if len(parts) != 2 {
		return Cell{}, fmt.Errorf("malformed cell key %q", key)
	}
	x, err := strconv.Atoi(parts[0])
	if err != nil {
		return Cell{}, fmt.Errorf("malformed cell key %q: %w", key, err)
	}
	y, err := strconv.Atoi(parts[1])
	if err != nil {
		return Cell{}, fmt.Errorf("malformed cell key %q: %w", key, err)
	}
	return Cell{X: x, Y: y}, nil
}

// Ownership is the single mutable record per cell: who currently holds it,
// the holder's team affiliation if any, and when it last changed hands.
type Ownership struct {
	Cell       Cell
	RunnerID   int64
	TeamID     *int64
	CapturedAt time.Time
}

// CaptureEvent is one append-only ledger row. Events are never updated or
// deleted; rankings, feeds and achievement counting read from this history.
type CaptureEvent struct {
	ID         string
	TrackID    string
	Cell       Cell
	RunnerID   int64
	Transition Transition
	Points     int
	CreatedAt  time.Time
}
