package conquest

import (
	"errors"
	"fmt"
	"math"

	"github.com/zonerun/backend/internal/app/domain/track"
)

// RejectionError marks a track that failed plausibility validation. It is a
// client error: resubmitting the same track verbatim will fail again.
type RejectionError struct {
	Reason string
}

func (e *RejectionError) Error() string {
	return "track rejected: " + e.Reason
}

// IsRejection reports whether err (or anything it wraps) is a validation
// rejection as opposed to a transient storage failure.
func IsRejection(err error) bool {
	var r *RejectionError
	return errors.As(err, &r)
}

// ValidateTrack rejects physically implausible tracks before any state is
// mutated. A zero or negative duration would make the speed computation
// meaningless, and an average speed above the ceiling is presumed spoofed or
// vehicle-assisted.
func ValidateTrack(trk track.Track, ceilingKmh float64) error {
	if len(trk.Points) == 0 {
		return &RejectionError{Reason: "track has no points"}
	}
	if trk.DurationSeconds <= 0 {
		return &RejectionError{Reason: fmt.Sprintf("duration must be positive, got %ds", trk.DurationSeconds)}
	}
	if math.IsNaN(trk.DistanceKm) || math.IsInf(trk.DistanceKm, 0) || trk.DistanceKm < 0 {
		return &RejectionError{Reason: fmt.Sprintf("distance %v km is not a valid distance", trk.DistanceKm)}
	}

	speed := trk.AverageSpeedKmh()
	if speed > ceilingKmh {
		return &RejectionError{
			Reason: fmt.Sprintf("average speed %.1f km/h exceeds the %.1f km/h plausibility ceiling", speed, ceilingKmh),
		}
	}
	return nil
}
