package app

import (
	"fmt"

	"github.com/zonerun/backend/internal/app/grid"
	achievementsvc "github.com/zonerun/backend/internal/app/services/achievement"
	"github.com/zonerun/backend/internal/app/services/conquest"
	"github.com/zonerun/backend/internal/app/storage"
	"github.com/zonerun/backend/internal/app/storage/memory"
	"github.com/zonerun/backend/internal/config"
	"github.com/zonerun/backend/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Territory    storage.TerritoryStore
	Achievements storage.AchievementStore
}

// Application ties the engine services together.
type Application struct {
	log *logger.Logger

	Conquest     *conquest.Service
	Achievements *achievementsvc.Service
	Territory    storage.TerritoryStore
}

// New builds a fully initialised application with the provided stores and
// engine policy.
func New(stores Stores, engine config.EngineConfig, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}

	mem := memory.New()
	if stores.Territory == nil {
		stores.Territory = mem
	}
	if stores.Achievements == nil {
		stores.Achievements = mem
	}

	indexer, err := grid.NewIndexer(engine.GridResolutionDeg)
	if err != nil {
		return nil, fmt.Errorf("configure grid indexer: %w", err)
	}

	policy := conquest.Policy{
		SpeedCeilingKmh: engine.SpeedCeilingKmh,
		PointsNew:       engine.PointsNew,
		PointsDefense:   engine.PointsDefense,
		PointsRobbery:   engine.PointsRobbery,
	}

	achievements := achievementsvc.New(stores.Territory, stores.Achievements, log)
	conquestSvc := conquest.New(stores.Territory, indexer, policy, log)
	conquestSvc.AttachHook(achievements)

	return &Application{
		log:          log,
		Conquest:     conquestSvc,
		Achievements: achievements,
		Territory:    stores.Territory,
	}, nil
}
