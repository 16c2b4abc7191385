package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zonerun/backend/internal/app/domain/achievement"
	"github.com/zonerun/backend/internal/app/domain/territory"
	"github.com/zonerun/backend/internal/app/domain/track"
	"github.com/zonerun/backend/internal/app/storage"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local
// development. Ownership reads inside a conquest transaction take a per-cell
// mutex held until the transaction ends, mirroring the row-level locking the
// SQL store relies on.
type Store struct {
	mu            sync.Mutex
	ownerships    map[territory.Cell]territory.Ownership
	events        []territory.CaptureEvent
	tracks        map[string]track.Track
	trackOrder    []string
	awards        map[int64]map[int64]achievement.Award
	notifications []achievement.Notification
	cellLocks     map[territory.Cell]*sync.Mutex
}

var _ storage.TerritoryStore = (*Store)(nil)
var _ storage.AchievementStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		ownerships: make(map[territory.Cell]territory.Ownership),
		tracks:     make(map[string]track.Track),
		awards:     make(map[int64]map[int64]achievement.Award),
		cellLocks:  make(map[territory.Cell]*sync.Mutex),
	}
}

// conquestTx buffers writes until Conquer commits them.
type conquestTx struct {
	store      *Store
	locked     []territory.Cell
	trackWrite *track.Track
	upserts    map[territory.Cell]territory.Ownership
	appends    []territory.CaptureEvent
}

// Conquer runs fn with a buffered transaction. Writes become visible only
// when fn returns nil; per-cell locks taken by LockOwnership are released in
// both outcomes.
func (s *Store) Conquer(ctx context.Context, fn func(tx storage.ConquestTx) error) error {
	tx := &conquestTx{
		store:   s,
		upserts: make(map[territory.Cell]territory.Ownership),
	}
	defer tx.releaseLocks()

	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.trackWrite != nil {
		s.tracks[tx.trackWrite.ID] = *tx.trackWrite
		s.trackOrder = append(s.trackOrder, tx.trackWrite.ID)
	}
	for cell, own := range tx.upserts {
		s.ownerships[cell] = own
	}
	s.events = append(s.events, tx.appends...)
	return nil
}

func (tx *conquestTx) releaseLocks() {
	tx.store.mu.Lock()
	locks := make([]*sync.Mutex, 0, len(tx.locked))
	for _, cell := range tx.locked {
		locks = append(locks, tx.store.cellLocks[cell])
	}
	tx.store.mu.Unlock()

	for _, l := range locks {
		l.Unlock()
	}
	tx.locked = nil
}

func (tx *conquestTx) InsertTrack(_ context.Context, trk track.Track) (track.Track, error) {
	if trk.ID == "" {
		trk.ID = uuid.NewString()
	}
	if trk.CreatedAt.IsZero() {
		trk.CreatedAt = time.Now().UTC()
	}
	copied := trk
	copied.Points = append([]track.GeoPoint(nil), trk.Points...)
	tx.trackWrite = &copied
	return trk, nil
}

func (tx *conquestTx) LockOwnership(_ context.Context, cell territory.Cell) (*territory.Ownership, error) {
	tx.store.mu.Lock()
	lock, ok := tx.store.cellLocks[cell]
	if !ok {
		lock = &sync.Mutex{}
		tx.store.cellLocks[cell] = lock
	}
	tx.store.mu.Unlock()

	lock.Lock()
	tx.locked = append(tx.locked, cell)

	if own, ok := tx.upserts[cell]; ok {
		copied := own
		return &copied, nil
	}

	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	if own, ok := tx.store.ownerships[cell]; ok {
		copied := own
		return &copied, nil
	}
	return nil, nil
}

func (tx *conquestTx) UpsertOwnership(_ context.Context, own territory.Ownership) error {
	tx.upserts[own.Cell] = own
	return nil
}

func (tx *conquestTx) AppendCaptureEvent(_ context.Context, evt territory.CaptureEvent) (territory.CaptureEvent, error) {
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = time.Now().UTC()
	}
	tx.appends = append(tx.appends, evt)
	return evt, nil
}

// TerritoryStore reads ----------------------------------------------------

func (s *Store) GetOwnership(_ context.Context, cell territory.Cell) (*territory.Ownership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if own, ok := s.ownerships[cell]; ok {
		copied := own
		return &copied, nil
	}
	return nil, nil
}

func (s *Store) ListOwnerships(_ context.Context) ([]territory.Ownership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]territory.Ownership, 0, len(s.ownerships))
	for _, own := range s.ownerships {
		result = append(result, own)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Cell.Less(result[j].Cell) })
	return result, nil
}

func (s *Store) ListCaptureEvents(_ context.Context, cell territory.Cell) ([]territory.CaptureEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []territory.CaptureEvent
	for _, evt := range s.events {
		if evt.Cell == cell {
			result = append(result, evt)
		}
	}
	return result, nil
}

func (s *Store) CountCaptureEvents(_ context.Context, runnerID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	for _, evt := range s.events {
		if evt.RunnerID == runnerID {
			count++
		}
	}
	return count, nil
}

func (s *Store) ListTracks(_ context.Context, runnerID int64) ([]track.Track, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []track.Track
	for _, id := range s.trackOrder {
		trk := s.tracks[id]
		if trk.RunnerID == runnerID {
			copied := trk
			copied.Points = append([]track.GeoPoint(nil), trk.Points...)
			result = append(result, copied)
		}
	}
	return result, nil
}

// AchievementStore ---------------------------------------------------------

func (s *Store) HasAward(_ context.Context, runnerID, achievementID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.awards[runnerID][achievementID]
	return ok, nil
}

func (s *Store) GrantAward(_ context.Context, award achievement.Award) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if award.EarnedAt.IsZero() {
		award.EarnedAt = time.Now().UTC()
	}
	byRunner, ok := s.awards[award.RunnerID]
	if !ok {
		byRunner = make(map[int64]achievement.Award)
		s.awards[award.RunnerID] = byRunner
	}
	byRunner[award.AchievementID] = award
	return nil
}

func (s *Store) ListAwards(_ context.Context, runnerID int64) ([]achievement.Award, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]achievement.Award, 0, len(s.awards[runnerID]))
	for _, award := range s.awards[runnerID] {
		result = append(result, award)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].AchievementID < result[j].AchievementID })
	return result, nil
}

func (s *Store) InsertNotification(_ context.Context, n achievement.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	s.notifications = append(s.notifications, n)
	return nil
}
