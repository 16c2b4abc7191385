package track

import "time"

// GeoPoint is a single raw GPS sample within a track. Points are ordered by
// Sequence and immutable once submitted.
type GeoPoint struct {
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	Sequence  int       `json:"sequenceOrder"`
	Timestamp time.Time `json:"timestamp"`
}

// Track is one completed movement submission: the ordered GPS points plus the
// client-reported distance and duration totals. A track is created once per
// submission and never mutated.
type Track struct {
	ID              string     `json:"id"`
	RunnerID        int64      `json:"runnerId"`
	DistanceKm      float64    `json:"distanceKm"`
	DurationSeconds int        `json:"durationSeconds"`
	Points          []GeoPoint `json:"points,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// AverageSpeedKmh derives the mean speed from the reported totals. Callers
// must reject non-positive durations before calling.
func (t Track) AverageSpeedKmh() float64 {
	return t.DistanceKm / (float64(t.DurationSeconds) / 3600.0)
}
