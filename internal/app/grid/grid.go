package grid

import (
	"fmt"
	"math"
	"sort"

	"github.com/zonerun/backend/internal/app/domain/territory"
	"github.com/zonerun/backend/internal/app/domain/track"
)

// maxPathHops bounds a single pair's interpolated path. A pair of samples
// further apart than this at the configured resolution is not a plausible
// stride; the cover falls back to the two endpoint cells.
const maxPathHops = 4096

// Indexer maps geographic coordinates onto a fixed-resolution grid and
// interpolates contiguous cell paths between consecutive samples.
type Indexer struct {
	resolution float64
}

// NewIndexer builds an indexer for the given resolution in degrees per cell.
func NewIndexer(resolutionDeg float64) (*Indexer, error) {
	if !(resolutionDeg > 0) || math.IsInf(resolutionDeg, 0) {
		return nil, fmt.Errorf("grid resolution must be a positive finite number, got %v", resolutionDeg)
	}
	return &Indexer{resolution: resolutionDeg}, nil
}

// CellAt returns the cell containing the coordinate.
func (ix *Indexer) CellAt(lat, lon float64) (territory.Cell, error) {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return territory.Cell{}, fmt.Errorf("non-finite coordinate (%v, %v)", lat, lon)
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return territory.Cell{}, fmt.Errorf("coordinate (%v, %v) out of range", lat, lon)
	}
	return territory.Cell{
		X: int(math.Floor(lon / ix.resolution)),
		Y: int(math.Floor(lat / ix.resolution)),
	}, nil
}

// Path returns a shortest-hop sequence of 8-connected cells from a to b,
// inclusive of both endpoints. It fails when the pair spans more cells than
// maxPathHops, which signals malformed or wildly separated samples.
func (ix *Indexer) Path(a, b territory.Cell) ([]territory.Cell, error) {
	dx := abs(b.X - a.X)
	dy := abs(b.Y - a.Y)
	if dx > maxPathHops || dy > maxPathHops {
		return nil, fmt.Errorf("path from %s to %s exceeds %d hops", a.Key(), b.Key(), maxPathHops)
	}

	sx := 1
	if b.X < a.X {
		sx = -1
	}
	sy := 1
	if b.Y < a.Y {
		sy = -1
	}

	longest := dx
	if dy > longest {
		longest = dy
	}

	path := make([]territory.Cell, 0, longest+1)
	x, y := a.X, a.Y
	errAcc := dx - dy
	for {
		path = append(path, territory.Cell{X: x, Y: y})
		if x == b.X && y == b.Y {
			return path, nil
		}
		e2 := 2 * errAcc
		if e2 > -dy {
			errAcc -= dy
			x += sx
		}
		if e2 < dx {
			errAcc += dx
			y += sy
		}
	}
}

// Cover computes the full set of cells claimed by a track: each consecutive
// pair of samples is connected by an interpolated path so the claimed area
// stays contiguous under sparse sampling. When a pair's path cannot be
// computed the pair still contributes its two endpoint cells. The result is
// deduplicated and sorted in ascending (X, Y) order.
func (ix *Indexer) Cover(points []track.GeoPoint) []territory.Cell {
	cells := make([]*territory.Cell, len(points))
	for i, p := range points {
		if c, err := ix.CellAt(p.Lat, p.Lon); err == nil {
			cells[i] = &c
		}
	}

	set := make(map[territory.Cell]struct{})
	if len(points) == 1 && cells[0] != nil {
		set[*cells[0]] = struct{}{}
	}

	for i := 0; i+1 < len(cells); i++ {
		a, b := cells[i], cells[i+1]
		switch {
		case a == nil && b == nil:
			continue
		case a == nil:
			set[*b] = struct{}{}
			continue
		case b == nil:
			set[*a] = struct{}{}
			continue
		}

		path, err := ix.Path(*a, *b)
		if err != nil {
			set[*a] = struct{}{}
			set[*b] = struct{}{}
			continue
		}
		for _, c := range path {
			set[c] = struct{}{}
		}
	}

	result := make([]territory.Cell, 0, len(set))
	for c := range set {
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Less(result[j]) })
	return result
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
