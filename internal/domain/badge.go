package domain

import "time"

// ConditionType identifies the rule a badge threshold applies to.
// The set is closed; evaluation switches over it exhaustively.
type ConditionType string

const (
	ConditionFirstBook      ConditionType = "first_book"
	ConditionStreakDays     ConditionType = "streak_days"
	ConditionBooksCompleted ConditionType = "books_completed"
	ConditionPagesInMonth   ConditionType = "pages_in_month"
	ConditionReviewsWritten ConditionType = "reviews_written"
	ConditionLevelReached   ConditionType = "level_reached"
)

// BadgeDefinition is a static, versionable badge rule
type BadgeDefinition struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	ConditionType ConditionType `json:"condition_type"`
	Threshold     int           `json:"threshold"`
	ExpReward     int           `json:"exp_reward"`
}

// BadgeAward records that a user earned a badge. At most one award exists
// per (user, badge) pair.
type BadgeAward struct {
	UserID   string    `json:"user_id"`
	BadgeID  string    `json:"badge_id"`
	EarnedAt time.Time `json:"earned_at"`
}

// DefaultBadges is the built-in rule set evaluated after every submission
var DefaultBadges = []BadgeDefinition{
	{ID: "first-book", Name: "First Steps", ConditionType: ConditionFirstBook, Threshold: 1, ExpReward: 50},
	{ID: "streak-3", Name: "Warming Up", ConditionType: ConditionStreakDays, Threshold: 3, ExpReward: 30},
	{ID: "streak-7", Name: "One Week Strong", ConditionType: ConditionStreakDays, Threshold: 7, ExpReward: 100},
	{ID: "streak-30", Name: "Habit Formed", ConditionType: ConditionStreakDays, Threshold: 30, ExpReward: 500},
	{ID: "books-5", Name: "Shelf Starter", ConditionType: ConditionBooksCompleted, Threshold: 5, ExpReward: 150},
	{ID: "books-25", Name: "Bookworm", ConditionType: ConditionBooksCompleted, Threshold: 25, ExpReward: 750},
	{ID: "pages-1000", Name: "Thousand Pages", ConditionType: ConditionPagesInMonth, Threshold: 1000, ExpReward: 300},
	{ID: "reviews-1", Name: "First Impression", ConditionType: ConditionReviewsWritten, Threshold: 1, ExpReward: 25},
	{ID: "reviews-10", Name: "Critic", ConditionType: ConditionReviewsWritten, Threshold: 10, ExpReward: 200},
	{ID: "level-5", Name: "Rising Reader", ConditionType: ConditionLevelReached, Threshold: 5, ExpReward: 100},
	{ID: "level-10", Name: "Seasoned Reader", ConditionType: ConditionLevelReached, Threshold: 10, ExpReward: 400},
}
