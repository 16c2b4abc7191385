package achievement

import "time"

// Rule maps a cumulative capture-event count to an achievement. Rules are
// static read-only input to the evaluation hook.
type Rule struct {
	ID               int64
	Name             string
	Description      string
	CapturesRequired int64
}

// Award records that a runner earned an achievement. Granted at most once per
// (runner, achievement) pair.
type Award struct {
	RunnerID      int64
	AchievementID int64
	EarnedAt      time.Time
}

// Notification is the user-facing message created alongside an award.
type Notification struct {
	ID        string
	RunnerID  int64
	Kind      string
	Title     string
	Message   string
	Read      bool
	CreatedAt time.Time
}
