package ranking

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/reading-progression/internal/domain"
	"github.com/reading-progression/internal/progression"
)

// Champion selection defaults
const (
	DefaultChampionPoolSize = 50
	DefaultStreakWeight     = 0.4
	DefaultPagesWeight      = 0.6
)

// ChampionConfig tunes weekly champion selection
type ChampionConfig struct {
	PoolSize     int
	StreakWeight float64
	PagesWeight  float64
}

func (c ChampionConfig) withDefaults() ChampionConfig {
	if c.PoolSize <= 0 {
		c.PoolSize = DefaultChampionPoolSize
	}
	if c.StreakWeight <= 0 && c.PagesWeight <= 0 {
		c.StreakWeight = DefaultStreakWeight
		c.PagesWeight = DefaultPagesWeight
	}
	return c
}

// ChampionSelector blends weekly streak and page volume into a composite
// top-N leaderboard. Purely read-time; nothing it produces is persisted.
type ChampionSelector struct {
	aggregator *Aggregator
	store      Store
	config     ChampionConfig
	logger     *slog.Logger
}

// NewChampionSelector creates a weekly champion selector
func NewChampionSelector(aggregator *Aggregator, store Store, cfg ChampionConfig, logger *slog.Logger) *ChampionSelector {
	return &ChampionSelector{
		aggregator: aggregator,
		store:      store,
		config:     cfg.withDefaults(),
		logger:     logger,
	}
}

// SelectWeekly ranks this week's top performers. Candidates come from the
// weekly ranking pool; users with no activity this week are excluded no
// matter how much EXP their snapshot still carries. A single candidate's
// failure is logged and skipped, never fatal to the listing.
func (s *ChampionSelector) SelectWeekly(ctx context.Context, topN int) ([]domain.WeeklyChampion, error) {
	if topN <= 0 {
		topN = 10
	}

	pool, err := s.aggregator.ListRankings(ctx, domain.PeriodWeekly, s.config.PoolSize)
	if err != nil {
		return nil, fmt.Errorf("listing weekly pool: %w", err)
	}

	now := time.Now()
	candidates := make([]domain.WeeklyChampion, 0, len(pool))
	for _, item := range pool {
		logs, err := s.store.ListReadingLogs(ctx, item.UserID, "", 0)
		if err != nil {
			s.logger.Warn("skipping champion candidate",
				"user_id", item.UserID,
				"error", err,
			)
			continue
		}

		streak, pages := weekActivity(logs, now)
		if streak == 0 {
			continue
		}
		candidates = append(candidates, domain.WeeklyChampion{
			UserID:       item.UserID,
			WeeklyStreak: streak,
			WeeklyPages:  pages,
			WeeklyExp:    item.TotalExp,
		})
	}

	return rankChampions(candidates, s.config.StreakWeight, s.config.PagesWeight, topN), nil
}

// weekActivity returns the consecutive-day streak within the current week,
// scanned backward from today (or yesterday), and the week's page total.
func weekActivity(logs []domain.ReadingLogEntry, now time.Time) (streak, pages int) {
	weekStart, _ := PeriodStart(domain.PeriodWeekly, now)
	today := progression.Midnight(now)

	days := make(map[time.Time]bool)
	for _, log := range logs {
		date := progression.Midnight(log.Date)
		if !date.Before(weekStart) && !date.After(today) {
			days[date] = true
			pages += log.PagesRead
		}
	}

	cursor := today
	if !days[cursor] {
		cursor = cursor.AddDate(0, 0, -1)
	}
	for !cursor.Before(weekStart) && days[cursor] {
		streak++
		cursor = cursor.AddDate(0, 0, -1)
	}
	return streak, pages
}

// rankChampions normalizes each candidate against the observed maxima,
// scores the weighted blend, and re-ranks the top N.
func rankChampions(candidates []domain.WeeklyChampion, streakWeight, pagesWeight float64, topN int) []domain.WeeklyChampion {
	maxStreak := 7
	maxPages := 1
	for _, c := range candidates {
		if c.WeeklyStreak > maxStreak {
			maxStreak = c.WeeklyStreak
		}
		if c.WeeklyPages > maxPages {
			maxPages = c.WeeklyPages
		}
	}

	for i := range candidates {
		normStreak := clampRatio(float64(candidates[i].WeeklyStreak)/float64(maxStreak)) * 100
		normPages := clampRatio(float64(candidates[i].WeeklyPages)/float64(maxPages)) * 100
		candidates[i].CompositeScore = streakWeight*normStreak + pagesWeight*normPages
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].CompositeScore > candidates[j].CompositeScore
	})

	if len(candidates) > topN {
		candidates = candidates[:topN]
	}
	for i := range candidates {
		candidates[i].Rank = i + 1
	}
	return candidates
}

func clampRatio(r float64) float64 {
	if r > 1 {
		return 1
	}
	if r < 0 {
		return 0
	}
	return r
}
