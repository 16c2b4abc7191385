package storage

import (
	"context"

	"github.com/zonerun/backend/internal/app/domain/achievement"
	"github.com/zonerun/backend/internal/app/domain/territory"
	"github.com/zonerun/backend/internal/app/domain/track"
)

// ConquestTx is the unit of work handed to the conquest coordinator. Every
// method executes inside the same transaction; either all writes commit
// together or none do.
type ConquestTx interface {
	// InsertTrack persists the track header and its points, returning the
	// track with its generated identifier.
	InsertTrack(ctx context.Context, trk track.Track) (track.Track, error)

	// LockOwnership reads the current ownership of a cell under a row-level
	// lock held until the transaction ends. It returns nil when the cell is
	// unclaimed. Callers must lock cells in ascending (X, Y) order.
	LockOwnership(ctx context.Context, cell territory.Cell) (*territory.Ownership, error)

	// UpsertOwnership writes the new ownership record for a cell.
	UpsertOwnership(ctx context.Context, own territory.Ownership) error

	// AppendCaptureEvent appends one ledger row, returning it with its
	// generated identifier.
	AppendCaptureEvent(ctx context.Context, evt territory.CaptureEvent) (territory.CaptureEvent, error)
}

// TerritoryStore persists tracks, cell ownership and the capture ledger.
type TerritoryStore interface {
	// Conquer runs fn inside one transaction. An error from fn rolls the
	// whole unit back.
	Conquer(ctx context.Context, fn func(tx ConquestTx) error) error

	GetOwnership(ctx context.Context, cell territory.Cell) (*territory.Ownership, error)
	ListOwnerships(ctx context.Context) ([]territory.Ownership, error)
	ListCaptureEvents(ctx context.Context, cell territory.Cell) ([]territory.CaptureEvent, error)
	CountCaptureEvents(ctx context.Context, runnerID int64) (int64, error)
	ListTracks(ctx context.Context, runnerID int64) ([]track.Track, error)
}

// AchievementStore persists earned awards and their notifications.
type AchievementStore interface {
	HasAward(ctx context.Context, runnerID, achievementID int64) (bool, error)
	GrantAward(ctx context.Context, award achievement.Award) error
	ListAwards(ctx context.Context, runnerID int64) ([]achievement.Award, error)
	InsertNotification(ctx context.Context, n achievement.Notification) error
}
