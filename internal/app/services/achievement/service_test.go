package achievement

import (
	"context"
	"errors"
	"testing"

	"github.com/zonerun/backend/internal/app/domain/territory"
	"github.com/zonerun/backend/internal/app/storage"
	"github.com/zonerun/backend/internal/app/storage/memory"
)

// seedCaptures commits n ledger rows for the runner, one per distinct cell.
func seedCaptures(t *testing.T, store *memory.Store, runnerID int64, n int) {
	t.Helper()
	err := store.Conquer(context.Background(), func(tx storage.ConquestTx) error {
		for i := 0; i < n; i++ {
			cell := territory.Cell{X: i, Y: int(runnerID)}
			if err := tx.UpsertOwnership(context.Background(), territory.Ownership{Cell: cell, RunnerID: runnerID}); err != nil {
				return err
			}
			if _, err := tx.AppendCaptureEvent(context.Background(), territory.CaptureEvent{
				Cell:       cell,
				RunnerID:   runnerID,
				Transition: territory.TransitionNew,
				Points:     10,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed captures: %v", err)
	}
}

func TestOnCaptureCommittedGrantsFirstMedal(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := New(store, store, nil)

	seedCaptures(t, store, 42, 1)
	awarded, err := svc.OnCaptureCommitted(ctx, 42)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !awarded {
		t.Fatalf("first capture must earn a medal")
	}

	awards, err := svc.Awards(ctx, 42)
	if err != nil {
		t.Fatalf("awards: %v", err)
	}
	if len(awards) != 1 || awards[0].AchievementID != 1 {
		t.Fatalf("unexpected awards %+v", awards)
	}
}

func TestOnCaptureCommittedGrantsAtMostOnce(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := New(store, store, nil)

	seedCaptures(t, store, 42, 1)
	if _, err := svc.OnCaptureCommitted(ctx, 42); err != nil {
		t.Fatalf("first evaluation: %v", err)
	}

	awarded, err := svc.OnCaptureCommitted(ctx, 42)
	if err != nil {
		t.Fatalf("second evaluation: %v", err)
	}
	if awarded {
		t.Fatalf("re-evaluation must not re-grant")
	}
	awards, err := svc.Awards(ctx, 42)
	if err != nil {
		t.Fatalf("awards: %v", err)
	}
	if len(awards) != 1 {
		t.Fatalf("expected exactly one award, got %d", len(awards))
	}
}

func TestOnCaptureCommittedCatchesUpAfterStaleCounts(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := New(store, store, nil)

	// The runner crosses all three thresholds before the hook ever ran.
	seedCaptures(t, store, 42, 10)
	awarded, err := svc.OnCaptureCommitted(ctx, 42)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !awarded {
		t.Fatalf("expected medals to be granted")
	}
	awards, err := svc.Awards(ctx, 42)
	if err != nil {
		t.Fatalf("awards: %v", err)
	}
	if len(awards) != 3 {
		t.Fatalf("expected all three medals at once, got %+v", awards)
	}
}

func TestOnCaptureCommittedBelowThresholdDoesNothing(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := New(store, store, nil).WithRules(DefaultRules()[1:]) // 5 and 10 only

	seedCaptures(t, store, 42, 4)
	awarded, err := svc.OnCaptureCommitted(ctx, 42)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if awarded {
		t.Fatalf("4 captures must not reach the 5-capture medal")
	}
}

type brokenTerritory struct {
	storage.TerritoryStore
}

func (brokenTerritory) CountCaptureEvents(context.Context, int64) (int64, error) {
	return 0, errors.New("ledger unavailable")
}

func TestOnCaptureCommittedPropagatesCountErrors(t *testing.T) {
	store := memory.New()
	svc := New(brokenTerritory{store}, store, nil)

	if _, err := svc.OnCaptureCommitted(context.Background(), 42); err == nil {
		t.Fatalf("expected a count error")
	}
}
