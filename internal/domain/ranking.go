package domain

import "time"

// Period is a ranking time window
type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
	PeriodAllTime Period = "all-time"
)

// AllPeriods lists every ranking window, in recompute order
var AllPeriods = []Period{PeriodDaily, PeriodWeekly, PeriodMonthly, PeriodAllTime}

// Valid reports whether p is a known ranking period
func (p Period) Valid() bool {
	switch p {
	case PeriodDaily, PeriodWeekly, PeriodMonthly, PeriodAllTime:
		return true
	}
	return false
}

// RankingSnapshot is the latest recomputed EXP total for a (user, period)
// pair. It is overwritten on every recomputation, never appended.
type RankingSnapshot struct {
	UserID    string    `json:"user_id"`
	Period    Period    `json:"period"`
	TotalExp  int       `json:"total_exp"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RankingItem is one row of a ranked listing
type RankingItem struct {
	Rank     int    `json:"rank"`
	UserID   string `json:"user_id"`
	TotalExp int    `json:"total_exp"`
}

// WeeklyChampion is a derived, never-persisted leaderboard row blending
// streak and page volume for the current week.
type WeeklyChampion struct {
	UserID         string  `json:"user_id"`
	WeeklyStreak   int     `json:"weekly_streak"`
	WeeklyPages    int     `json:"weekly_pages"`
	WeeklyExp      int     `json:"weekly_exp"`
	CompositeScore float64 `json:"composite_score"`
	Rank           int     `json:"rank"`
}
