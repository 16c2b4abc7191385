package achievement

import (
	"context"
	"fmt"

	"github.com/zonerun/backend/internal/app/domain/achievement"
	"github.com/zonerun/backend/internal/app/metrics"
	"github.com/zonerun/backend/internal/app/storage"
	"github.com/zonerun/backend/pkg/logger"
)

// Service evaluates achievement rules against a runner's cumulative capture
// count. It runs outside the conquest transaction and must tolerate being
// invoked with a stale count.
type Service struct {
	territory storage.TerritoryStore
	store     storage.AchievementStore
	rules     []achievement.Rule
	log       *logger.Logger
}

// DefaultRules is the static rule table: cumulative captures to medal.
func DefaultRules() []achievement.Rule {
	return []achievement.Rule{
		{ID: 1, Name: "First Steps", Description: "Capture your first zone.", CapturesRequired: 1},
		{ID: 2, Name: "Conqueror", Description: "Capture 5 zones.", CapturesRequired: 5},
		{ID: 3, Name: "King of the Hill", Description: "Capture 10 zones.", CapturesRequired: 10},
	}
}

// New constructs an achievement service with the default rule table.
func New(territory storage.TerritoryStore, store storage.AchievementStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("achievement")
	}
	return &Service{
		territory: territory,
		store:     store,
		rules:     DefaultRules(),
		log:       log,
	}
}

// WithRules replaces the rule table. Intended for tests.
func (s *Service) WithRules(rules []achievement.Rule) *Service {
	s.rules = rules
	return s
}

// OnCaptureCommitted re-evaluates all rules for the runner and grants any
// newly reached achievements exactly once, each with a notification. It
// reports whether anything was awarded. Thresholds are checked with >= rather
// than == so a stale or skipped count can never permanently miss a medal.
func (s *Service) OnCaptureCommitted(ctx context.Context, runnerID int64) (bool, error) {
	total, err := s.territory.CountCaptureEvents(ctx, runnerID)
	if err != nil {
		return false, fmt.Errorf("count captures: %w", err)
	}

	awarded := false
	for _, rule := range s.rules {
		if total < rule.CapturesRequired {
			continue
		}
		has, err := s.store.HasAward(ctx, runnerID, rule.ID)
		if err != nil {
			return awarded, fmt.Errorf("check award %d: %w", rule.ID, err)
		}
		if has {
			continue
		}

		if err := s.store.GrantAward(ctx, achievement.Award{RunnerID: runnerID, AchievementID: rule.ID}); err != nil {
			return awarded, fmt.Errorf("grant award %d: %w", rule.ID, err)
		}
		if err := s.store.InsertNotification(ctx, achievement.Notification{
			RunnerID: runnerID,
			Kind:     "ACHIEVEMENT",
			Title:    "New medal!",
			Message:  fmt.Sprintf("You unlocked %q.", rule.Name),
		}); err != nil {
			// The award itself is durable; a lost notification is not worth
			// failing the evaluation over.
			s.log.WithError(err).WithField("runner_id", runnerID).Warn("notification insert failed")
		}

		metrics.IncAward()
		awarded = true
		s.log.WithField("runner_id", runnerID).
			WithField("achievement", rule.Name).
			Info("achievement granted")
	}
	return awarded, nil
}

// Rules returns the active rule table.
func (s *Service) Rules() []achievement.Rule {
	return s.rules
}

// Awards lists the achievements a runner has earned.
func (s *Service) Awards(ctx context.Context, runnerID int64) ([]achievement.Award, error) {
	return s.store.ListAwards(ctx, runnerID)
}
