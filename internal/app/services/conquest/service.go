package conquest

import (
	"context"
	"fmt"
	"time"

	"github.com/zonerun/backend/internal/app/domain/territory"
	"github.com/zonerun/backend/internal/app/domain/track"
	"github.com/zonerun/backend/internal/app/grid"
	"github.com/zonerun/backend/internal/app/metrics"
	"github.com/zonerun/backend/internal/app/storage"
	"github.com/zonerun/backend/pkg/logger"
)

// Policy holds the engine's tunable constants.
type Policy struct {
	SpeedCeilingKmh float64
	PointsNew       int
	PointsDefense   int
	PointsRobbery   int
}

// DefaultPolicy mirrors the configuration defaults.
func DefaultPolicy() Policy {
	return Policy{
		SpeedCeilingKmh: 30,
		PointsNew:       10,
		PointsDefense:   5,
		PointsRobbery:   15,
	}
}

// TrackSubmission is the raw payload of one completed run.
type TrackSubmission struct {
	DistanceKm      float64
	DurationSeconds int
	Points          []track.GeoPoint
}

// Result is the outcome of an accepted submission.
type Result struct {
	TrackID  string `json:"trackId"`
	Title    string `json:"title"`
	Headline string `json:"headline"`
	Stats    Stats  `json:"stats"`
}

// Hook is notified after a conquest commits. Implementations must tolerate a
// possibly-stale cumulative count; failures are logged and swallowed.
type Hook interface {
	OnCaptureCommitted(ctx context.Context, runnerID int64) (bool, error)
}

// Service coordinates one track submission: validation, cell cover,
// transactional ownership resolution and ledger append, then the post-commit
// achievement hook.
type Service struct {
	store   storage.TerritoryStore
	indexer *grid.Indexer
	policy  Policy
	hook    Hook
	log     *logger.Logger
}

// New constructs a conquest service.
func New(store storage.TerritoryStore, indexer *grid.Indexer, policy Policy, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("conquest")
	}
	return &Service{
		store:   store,
		indexer: indexer,
		policy:  policy,
		log:     log,
	}
}

// AttachHook registers the post-commit achievement hook.
func (s *Service) AttachHook(hook Hook) {
	s.hook = hook
}

// Submit processes one track for the given runner. All persistence happens in
// one transaction: either every cell in the cover is claimed and the ledger
// grows, or nothing changes. Validation failures surface as *RejectionError
// before any mutation; any other error means the transaction rolled back and
// the caller may retry.
func (s *Service) Submit(ctx context.Context, runnerID int64, teamID *int64, sub TrackSubmission) (Result, error) {
	trk := track.Track{
		RunnerID:        runnerID,
		DistanceKm:      sub.DistanceKm,
		DurationSeconds: sub.DurationSeconds,
		Points:          sub.Points,
	}

	if err := ValidateTrack(trk, s.policy.SpeedCeilingKmh); err != nil {
		metrics.ObserveSubmission("rejected", 0)
		return Result{}, err
	}

	cells := s.indexer.Cover(trk.Points)
	if len(cells) == 0 {
		metrics.ObserveSubmission("rejected", 0)
		return Result{}, &RejectionError{Reason: "no point in the track maps to a grid cell"}
	}

	now := time.Now().UTC()
	var (
		trackID string
		claims  []CellClaim
	)

	err := s.store.Conquer(ctx, func(tx storage.ConquestTx) error {
		saved, err := tx.InsertTrack(ctx, trk)
		if err != nil {
			return fmt.Errorf("insert track: %w", err)
		}
		trackID = saved.ID

		// Cells arrive sorted ascending from the indexer; locking in that
		// fixed order prevents lock-ordering deadlocks between overlapping
		// submissions.
		for _, cell := range cells {
			current, err := tx.LockOwnership(ctx, cell)
			if err != nil {
				return fmt.Errorf("lock cell %s: %w", cell.Key(), err)
			}

			transition, next := territory.Resolve(cell, runnerID, teamID, current, now)
			if err := tx.UpsertOwnership(ctx, next); err != nil {
				return fmt.Errorf("upsert cell %s: %w", cell.Key(), err)
			}

			evt := territory.CaptureEvent{
				TrackID:    saved.ID,
				Cell:       cell,
				RunnerID:   runnerID,
				Transition: transition,
				Points:     s.pointsFor(transition),
				CreatedAt:  now,
			}
			if _, err := tx.AppendCaptureEvent(ctx, evt); err != nil {
				return fmt.Errorf("append event for cell %s: %w", cell.Key(), err)
			}

			claims = append(claims, CellClaim{Cell: cell, Transition: transition})
		}
		return nil
	})
	if err != nil {
		metrics.ObserveSubmission("failed", 0)
		return Result{}, fmt.Errorf("conquest aborted: %w", err)
	}

	summary := Summarize(claims)
	for _, claim := range claims {
		metrics.IncTransition(string(claim.Transition))
	}
	metrics.ObserveSubmission("accepted", len(cells))

	headline := summary.Headline
	if s.hook != nil {
		// The conquest is already durable; a client disconnect must not
		// cancel the evaluation.
		awarded, err := s.hook.OnCaptureCommitted(context.WithoutCancel(ctx), runnerID)
		switch {
		case err != nil:
			// Best effort only: the conquest is already durable.
			s.log.WithError(err).WithField("runner_id", runnerID).Warn("achievement evaluation failed")
		case awarded:
			headline += " And you unlocked a new achievement!"
		}
	}

	s.log.WithField("runner_id", runnerID).
		WithField("track_id", trackID).
		WithField("cells", len(cells)).
		WithField("new", summary.Stats.New).
		WithField("robbed", summary.Stats.Robbed).
		WithField("defended", summary.Stats.Defended).
		Info("conquest committed")

	return Result{
		TrackID:  trackID,
		Title:    summary.Title,
		Headline: headline,
		Stats:    summary.Stats,
	}, nil
}

func (s *Service) pointsFor(t territory.Transition) int {
	switch t {
	case territory.TransitionDefense:
		return s.policy.PointsDefense
	case territory.TransitionRobbery:
		return s.policy.PointsRobbery
	default:
		return s.policy.PointsNew
	}
}
