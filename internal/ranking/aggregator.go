// Package ranking recomputes period-scoped EXP totals from the raw activity
// log and produces ranked listings. Snapshots are always re-derived from
// scratch, so recomputation is idempotent and doubles as reconciliation.
package ranking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/reading-progression/internal/domain"
	"github.com/reading-progression/internal/progression"
)

// DefaultReviewExp is the EXP credited per review inside a period window
const DefaultReviewExp = 50

// Store is the slice of the repository the aggregator reads and writes
type Store interface {
	ListReadingLogs(ctx context.Context, userID, bookID string, limit int) ([]domain.ReadingLogEntry, error)
	ListReviews(ctx context.Context, userID string) ([]domain.Review, error)
	UpsertRankingSnapshot(ctx context.Context, snapshot domain.RankingSnapshot) error
	ListRankingSnapshots(ctx context.Context, period domain.Period, limit int) ([]domain.RankingSnapshot, error)
	IsAdministrator(ctx context.Context, userID string) (bool, error)
}

// Cache mirrors per-period totals for fast listings. Implemented by the
// Redis leaderboard; may be nil, in which case listings read the store.
type Cache interface {
	SetPeriodExp(ctx context.Context, period domain.Period, userID string, totalExp int) error
	RemoveUser(ctx context.Context, period domain.Period, userID string) error
	TopN(ctx context.Context, period domain.Period, n int) ([]domain.RankingItem, error)
	UserRank(ctx context.Context, period domain.Period, userID string) (*domain.RankingItem, error)
	RebuildPeriod(ctx context.Context, period domain.Period, totals map[string]int) error
}

// Aggregator recomputes ranking snapshots and serves ranked listings
type Aggregator struct {
	store     Store
	cache     Cache
	reviewExp int
	logger    *slog.Logger
}

// NewAggregator creates a ranking aggregator. cache may be nil.
func NewAggregator(store Store, cache Cache, reviewExp int, logger *slog.Logger) *Aggregator {
	if reviewExp <= 0 {
		reviewExp = DefaultReviewExp
	}
	return &Aggregator{
		store:     store,
		cache:     cache,
		reviewExp: reviewExp,
		logger:    logger,
	}
}

// PeriodStart returns the inclusive lower bound of a ranking window.
// ok is false for the all-time period, which has no lower bound.
func PeriodStart(period domain.Period, now time.Time) (start time.Time, ok bool) {
	today := progression.Midnight(now)
	switch period {
	case domain.PeriodDaily:
		return today, true
	case domain.PeriodWeekly:
		// ISO week, Monday first
		offset := int(today.Weekday()) - int(time.Monday)
		if offset < 0 {
			offset = 6
		}
		return today.AddDate(0, 0, -offset), true
	case domain.PeriodMonthly:
		return time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, today.Location()), true
	default:
		return time.Time{}, false
	}
}

// ComputePeriodExp re-derives a user's EXP total inside a period window.
// All-time short-circuits to the stored progress total; bounded periods sum
// log EXP plus the review credit over the raw activity records.
func (a *Aggregator) ComputePeriodExp(ctx context.Context, userID string, period domain.Period, progress domain.UserProgress) (int, error) {
	start, bounded := PeriodStart(period, time.Now())
	if !bounded {
		return progress.Exp, nil
	}

	logs, err := a.store.ListReadingLogs(ctx, userID, "", 0)
	if err != nil {
		return 0, fmt.Errorf("listing reading logs: %w", err)
	}
	total := 0
	for _, log := range logs {
		if !progression.Midnight(log.Date).Before(start) {
			total += log.ExpGained
		}
	}

	reviews, err := a.store.ListReviews(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("listing reviews: %w", err)
	}
	for _, review := range reviews {
		if !progression.Midnight(review.CreatedAt).Before(start) {
			total += a.reviewExp
		}
	}

	return total, nil
}

// RecomputeSnapshots re-derives and upserts all period snapshots for a user.
// A failure on one period is logged and does not abort the others.
func (a *Aggregator) RecomputeSnapshots(ctx context.Context, userID string, progress domain.UserProgress) error {
	isAdmin, err := a.store.IsAdministrator(ctx, userID)
	if err != nil {
		return fmt.Errorf("checking administrator flag: %w", err)
	}

	var firstErr error
	for _, period := range domain.AllPeriods {
		totalExp, err := a.ComputePeriodExp(ctx, userID, period, progress)
		if err != nil {
			a.logger.Error("failed to compute period exp",
				"user_id", userID,
				"period", period,
				"error", err,
			)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		snapshot := domain.RankingSnapshot{
			UserID:    userID,
			Period:    period,
			TotalExp:  totalExp,
			UpdatedAt: time.Now(),
		}
		if err := a.store.UpsertRankingSnapshot(ctx, snapshot); err != nil {
			a.logger.Error("failed to upsert ranking snapshot",
				"user_id", userID,
				"period", period,
				"error", err,
			)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		// Administrators keep durable snapshots but never enter the
		// listing mirror. Removal covers a user promoted after being
		// mirrored.
		if a.cache != nil {
			if isAdmin {
				err = a.cache.RemoveUser(ctx, period, userID)
			} else {
				err = a.cache.SetPeriodExp(ctx, period, userID, totalExp)
			}
			if err != nil {
				a.logger.Warn("failed to update ranking mirror",
					"user_id", userID,
					"period", period,
					"error", err,
				)
			}
		}
	}
	return firstErr
}

// ListRankings returns the period leaderboard, administrators excluded,
// ranks dense and 1-based in stable descending EXP order.
func (a *Aggregator) ListRankings(ctx context.Context, period domain.Period, limit int) ([]domain.RankingItem, error) {
	if !period.Valid() {
		return nil, domain.ErrInvalidPeriod
	}
	if limit <= 0 {
		limit = 100
	}

	if a.cache != nil {
		items, err := a.cache.TopN(ctx, period, limit)
		if err == nil {
			return items, nil
		}
		a.logger.Warn("ranking cache read failed, falling back to store",
			"period", period,
			"error", err,
		)
	}

	snapshots, err := a.store.ListRankingSnapshots(ctx, period, 0)
	if err != nil {
		return nil, fmt.Errorf("listing ranking snapshots: %w", err)
	}

	// Ties break on user id descending, matching the sorted-set mirror so
	// the two read paths agree
	sort.SliceStable(snapshots, func(i, j int) bool {
		if snapshots[i].TotalExp != snapshots[j].TotalExp {
			return snapshots[i].TotalExp > snapshots[j].TotalExp
		}
		return snapshots[i].UserID > snapshots[j].UserID
	})

	items := make([]domain.RankingItem, 0, limit)
	for _, snapshot := range snapshots {
		isAdmin, err := a.store.IsAdministrator(ctx, snapshot.UserID)
		if err != nil {
			return nil, fmt.Errorf("checking administrator flag: %w", err)
		}
		if isAdmin {
			continue
		}
		items = append(items, domain.RankingItem{
			Rank:     len(items) + 1,
			UserID:   snapshot.UserID,
			TotalExp: snapshot.TotalExp,
		})
		if len(items) >= limit {
			break
		}
	}
	return items, nil
}

// UserRanking returns one user's rank and total within a period.
// Administrators have no rank and report not found.
func (a *Aggregator) UserRanking(ctx context.Context, period domain.Period, userID string) (*domain.RankingItem, error) {
	if !period.Valid() {
		return nil, domain.ErrInvalidPeriod
	}

	isAdmin, err := a.store.IsAdministrator(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("checking administrator flag: %w", err)
	}
	if isAdmin {
		return nil, domain.ErrUserNotFound
	}

	if a.cache != nil {
		item, err := a.cache.UserRank(ctx, period, userID)
		if err == nil || errors.Is(err, domain.ErrUserNotFound) {
			return item, err
		}
		a.logger.Warn("ranking cache read failed, falling back to store",
			"period", period,
			"error", err,
		)
	}

	snapshots, err := a.store.ListRankingSnapshots(ctx, period, 0)
	if err != nil {
		return nil, fmt.Errorf("listing ranking snapshots: %w", err)
	}
	// Ties break on user id descending, matching the sorted-set mirror so
	// the two read paths agree
	sort.SliceStable(snapshots, func(i, j int) bool {
		if snapshots[i].TotalExp != snapshots[j].TotalExp {
			return snapshots[i].TotalExp > snapshots[j].TotalExp
		}
		return snapshots[i].UserID > snapshots[j].UserID
	})

	rank := 0
	for _, snapshot := range snapshots {
		isAdmin, err := a.store.IsAdministrator(ctx, snapshot.UserID)
		if err != nil {
			return nil, fmt.Errorf("checking administrator flag: %w", err)
		}
		if isAdmin {
			continue
		}
		rank++
		if snapshot.UserID == userID {
			return &domain.RankingItem{
				Rank:     rank,
				UserID:   userID,
				TotalExp: snapshot.TotalExp,
			}, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

// RebuildCache re-derives every period mirror from the durable snapshots,
// used on startup and by the periodic reconciliation pass.
func (a *Aggregator) RebuildCache(ctx context.Context) error {
	if a.cache == nil {
		return nil
	}
	for _, period := range domain.AllPeriods {
		snapshots, err := a.store.ListRankingSnapshots(ctx, period, 0)
		if err != nil {
			return fmt.Errorf("listing snapshots for rebuild: %w", err)
		}
		totals := make(map[string]int, len(snapshots))
		for _, snapshot := range snapshots {
			isAdmin, err := a.store.IsAdministrator(ctx, snapshot.UserID)
			if err != nil {
				return fmt.Errorf("checking administrator flag: %w", err)
			}
			if isAdmin {
				continue
			}
			totals[snapshot.UserID] = snapshot.TotalExp
		}
		if err := a.cache.RebuildPeriod(ctx, period, totals); err != nil {
			return fmt.Errorf("rebuilding %s mirror: %w", period, err)
		}
	}
	return nil
}
