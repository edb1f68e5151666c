package ranking

import (
	"context"
	"testing"
	"time"

	"github.com/reading-progression/internal/domain"
)

func TestWeekActivityBackwardScan(t *testing.T) {
	// Thursday 2024-01-11; week starts Monday 2024-01-08
	now := time.Date(2024, time.January, 11, 18, 0, 0, 0, time.Local)
	logDay := func(d int, pages int) domain.ReadingLogEntry {
		return domain.ReadingLogEntry{
			Date:      time.Date(2024, time.January, d, 0, 0, 0, 0, time.Local),
			PagesRead: pages,
		}
	}

	// Mon..Thu all logged
	streak, pages := weekActivity([]domain.ReadingLogEntry{
		logDay(8, 10), logDay(9, 20), logDay(10, 30), logDay(11, 40),
	}, now)
	if streak != 4 || pages != 100 {
		t.Errorf("full week so far: streak=%d pages=%d, want 4/100", streak, pages)
	}

	// No log today, logged yesterday and the day before: scan from yesterday
	streak, _ = weekActivity([]domain.ReadingLogEntry{
		logDay(9, 20), logDay(10, 30),
	}, now)
	if streak != 2 {
		t.Errorf("yesterday fallback: streak=%d, want 2", streak)
	}

	// Gap earlier in the week stops the scan
	streak, _ = weekActivity([]domain.ReadingLogEntry{
		logDay(8, 10), logDay(10, 30), logDay(11, 40),
	}, now)
	if streak != 2 {
		t.Errorf("gap on Tuesday: streak=%d, want 2", streak)
	}

	// Only last week's activity counts for nothing
	streak, pages = weekActivity([]domain.ReadingLogEntry{
		logDay(3, 500),
	}, now)
	if streak != 0 || pages != 0 {
		t.Errorf("stale activity: streak=%d pages=%d, want 0/0", streak, pages)
	}

	// The scan never crosses Monday into the previous week
	streak, _ = weekActivity([]domain.ReadingLogEntry{
		logDay(8, 10), logDay(9, 20), logDay(10, 30), logDay(11, 40), logDay(7, 99),
	}, now)
	if streak != 4 {
		t.Errorf("week boundary: streak=%d, want 4", streak)
	}
}

func TestWeekActivityStoredDateLocations(t *testing.T) {
	// Log dates read back from a DATE column are UTC-located while now
	// carries the server zone; the scan must still match day for day
	jst := time.FixedZone("JST", 9*3600)
	now := time.Date(2024, time.January, 11, 18, 0, 0, 0, jst)

	var logs []domain.ReadingLogEntry
	for d := 8; d <= 11; d++ {
		logs = append(logs, domain.ReadingLogEntry{
			Date:      time.Date(2024, time.January, d, 0, 0, 0, 0, time.UTC),
			PagesRead: 10,
		})
	}

	streak, pages := weekActivity(logs, now)
	if streak != 4 {
		t.Errorf("streak = %d, want 4", streak)
	}
	if pages != 40 {
		t.Errorf("pages = %d, want 40", pages)
	}
}

func TestRankChampionsCompositeScore(t *testing.T) {
	candidates := []domain.WeeklyChampion{
		{UserID: "a", WeeklyStreak: 7, WeeklyPages: 500},
		{UserID: "b", WeeklyStreak: 3, WeeklyPages: 500},
		{UserID: "c", WeeklyStreak: 7, WeeklyPages: 100},
	}
	ranked := rankChampions(candidates, DefaultStreakWeight, DefaultPagesWeight, 10)

	if len(ranked) != 3 {
		t.Fatalf("got %d champions, want 3", len(ranked))
	}
	if ranked[0].UserID != "a" || ranked[0].Rank != 1 {
		t.Fatalf("rank 1 = %s (%d), want a (1)", ranked[0].UserID, ranked[0].Rank)
	}
	// a maxes both axes: 0.4*100 + 0.6*100
	if ranked[0].CompositeScore != 100 {
		t.Errorf("a composite = %f, want 100", ranked[0].CompositeScore)
	}
	// b: streak 3/7, pages 500/500
	wantB := 0.4*(3.0/7.0*100) + 0.6*100
	for _, c := range ranked {
		if c.UserID == "b" && (c.CompositeScore < wantB-0.001 || c.CompositeScore > wantB+0.001) {
			t.Errorf("b composite = %f, want %f", c.CompositeScore, wantB)
		}
	}
}

func TestRankChampionsTopNReRanked(t *testing.T) {
	candidates := []domain.WeeklyChampion{
		{UserID: "a", WeeklyStreak: 1, WeeklyPages: 100},
		{UserID: "b", WeeklyStreak: 2, WeeklyPages: 200},
		{UserID: "c", WeeklyStreak: 3, WeeklyPages: 300},
	}
	ranked := rankChampions(candidates, DefaultStreakWeight, DefaultPagesWeight, 2)
	if len(ranked) != 2 {
		t.Fatalf("got %d champions, want top 2", len(ranked))
	}
	if ranked[0].UserID != "c" || ranked[1].UserID != "b" {
		t.Fatalf("order = %s, %s, want c, b", ranked[0].UserID, ranked[1].UserID)
	}
	if ranked[0].Rank != 1 || ranked[1].Rank != 2 {
		t.Fatalf("ranks = %d, %d, want 1, 2", ranked[0].Rank, ranked[1].Rank)
	}
}

func TestSelectWeeklyExcludesInactiveUsers(t *testing.T) {
	store := newMemStore()
	now := time.Now()

	// A read today; B has a big stale snapshot but nothing this week
	store.logs["a"] = []domain.ReadingLogEntry{
		{UserID: "a", Date: now, PagesRead: 50, ExpGained: 50},
	}
	store.logs["b"] = []domain.ReadingLogEntry{
		{UserID: "b", Date: now.AddDate(0, 0, -30), PagesRead: 1000, ExpGained: 1000},
	}
	store.snapshots["a|weekly"] = domain.RankingSnapshot{UserID: "a", Period: domain.PeriodWeekly, TotalExp: 50}
	store.snapshots["b|weekly"] = domain.RankingSnapshot{UserID: "b", Period: domain.PeriodWeekly, TotalExp: 1000}

	agg := NewAggregator(store, nil, DefaultReviewExp, testLogger())
	selector := NewChampionSelector(agg, store, ChampionConfig{}, testLogger())

	champions, err := selector.SelectWeekly(context.Background(), 10)
	if err != nil {
		t.Fatalf("SelectWeekly failed: %v", err)
	}
	if len(champions) != 1 {
		t.Fatalf("got %d champions, want 1 (inactive user excluded)", len(champions))
	}
	if champions[0].UserID != "a" || champions[0].Rank != 1 {
		t.Fatalf("champion = %s (%d), want a (1)", champions[0].UserID, champions[0].Rank)
	}
}

func TestSelectWeeklySkipsFailingCandidate(t *testing.T) {
	store := newMemStore()
	store.snapshots["a|weekly"] = domain.RankingSnapshot{UserID: "a", Period: domain.PeriodWeekly, TotalExp: 50}
	store.failLogs = true

	agg := NewAggregator(store, nil, DefaultReviewExp, testLogger())
	selector := NewChampionSelector(agg, store, ChampionConfig{}, testLogger())

	champions, err := selector.SelectWeekly(context.Background(), 10)
	if err != nil {
		t.Fatalf("SelectWeekly should not fail when a candidate read fails: %v", err)
	}
	if len(champions) != 0 {
		t.Fatalf("got %d champions, want 0", len(champions))
	}
}
