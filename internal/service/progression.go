package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/reading-progression/internal/badge"
	"github.com/reading-progression/internal/domain"
	"github.com/reading-progression/internal/progression"
	"github.com/reading-progression/internal/ranking"
)

// casRetries bounds the reload-and-retry loop on version conflicts from
// concurrent submissions by the same user.
const casRetries = 3

// Config tunes the progression service
type Config struct {
	StreakBonusPerDay int
	ReviewExp         int
	Badges            []domain.BadgeDefinition
}

func (c Config) withDefaults() Config {
	if c.StreakBonusPerDay <= 0 {
		c.StreakBonusPerDay = progression.DefaultStreakBonusPerDay
	}
	if c.ReviewExp <= 0 {
		c.ReviewExp = ranking.DefaultReviewExp
	}
	if len(c.Badges) == 0 {
		c.Badges = domain.DefaultBadges
	}
	return c
}

// ProgressionService orchestrates the derived-state pipeline: EXP and level,
// streaks, badge awards, and ranking recomputation triggered by activity.
type ProgressionService struct {
	store      Store
	aggregator *ranking.Aggregator
	selector   *ranking.ChampionSelector
	recomputer Recomputer
	config     Config
	logger     *slog.Logger
}

// NewProgressionService creates the progression service. recomputer may be
// nil, in which case ranking snapshots are only refreshed by the periodic
// reconciliation pass.
func NewProgressionService(
	store Store,
	aggregator *ranking.Aggregator,
	selector *ranking.ChampionSelector,
	cfg Config,
	logger *slog.Logger,
) *ProgressionService {
	return &ProgressionService{
		store:      store,
		aggregator: aggregator,
		selector:   selector,
		config:     cfg.withDefaults(),
		logger:     logger,
	}
}

// SetRecomputer wires the background ranking recompute queue
func (s *ProgressionService) SetRecomputer(r Recomputer) {
	s.recomputer = r
}

// SubmitResult is the user-visible outcome of an activity submission
type SubmitResult struct {
	Progress  domain.ProgressSummary   `json:"progress"`
	ExpGained int                      `json:"exp_gained"`
	NewBadges []domain.BadgeDefinition `json:"new_badges,omitempty"`
}

// SubmitReadingLog records a reading session and runs the full derivation
// pipeline. The EXP/level/streak write is the only part the caller waits
// for with a hard failure; badge and ranking recomputation never sink a
// successful log save.
func (s *ProgressionService) SubmitReadingLog(ctx context.Context, sub domain.ReadingLogSubmission) (*SubmitResult, error) {
	if sub.UserID == "" || sub.BookID == "" || sub.PagesRead <= 0 {
		return nil, domain.ErrInvalidSubmission
	}
	logDate := sub.Date
	if logDate.IsZero() {
		logDate = time.Now()
	}

	var progress domain.UserProgress
	var expGained int
	err := s.mutateProgress(ctx, sub.UserID, func(p *domain.UserProgress) {
		prev := progression.StreakState{
			Current:         p.CurrentStreak,
			Longest:         p.LongestStreak,
			LastReadingDate: p.LastReadingDate,
		}
		next := progression.AdvanceStreak(prev, logDate)

		// The streak bonus is granted once per calendar day; a same-day
		// re-log earns page EXP only.
		bonusDays := 0
		if prev.LastReadingDate == nil || progression.DaysBetween(*prev.LastReadingDate, logDate) != 0 {
			bonusDays = next.Current
		}
		expGained = progression.ExpFromPages(sub.PagesRead, bonusDays, s.config.StreakBonusPerDay)

		p.Exp += expGained
		p.Level = progression.LevelFromExp(p.Exp)
		p.CurrentStreak = next.Current
		p.LongestStreak = next.Longest
		p.LastReadingDate = next.LastReadingDate
		p.TotalPagesRead += sub.PagesRead
	}, &progress)
	if err != nil {
		return nil, err
	}

	entry := domain.ReadingLogEntry{
		ID:        uuid.New().String(),
		UserID:    sub.UserID,
		BookID:    sub.BookID,
		Date:      progression.Midnight(logDate),
		StartPage: sub.StartPage,
		EndPage:   sub.EndPage,
		PagesRead: sub.PagesRead,
		ExpGained: expGained,
		CreatedAt: time.Now(),
	}
	if err := s.store.AppendReadingLog(ctx, entry); err != nil {
		return nil, fmt.Errorf("appending reading log: %w", err)
	}

	newBadges := s.evaluateBadges(ctx, &progress)
	s.enqueueRecompute(sub.UserID)

	return &SubmitResult{
		Progress:  s.summarize(progress),
		ExpGained: expGained,
		NewBadges: newBadges,
	}, nil
}

// SubmitReview records a review, grants the review EXP, and re-runs badge
// evaluation and ranking recomputation.
func (s *ProgressionService) SubmitReview(ctx context.Context, sub domain.ReviewSubmission) (*SubmitResult, error) {
	if sub.UserID == "" || sub.BookID == "" || sub.Rating < 1 || sub.Rating > 5 {
		return nil, domain.ErrInvalidSubmission
	}

	review := domain.Review{
		ID:        uuid.New().String(),
		UserID:    sub.UserID,
		BookID:    sub.BookID,
		Rating:    sub.Rating,
		Content:   sub.Content,
		CreatedAt: time.Now(),
	}
	if err := s.store.AppendReview(ctx, review); err != nil {
		return nil, fmt.Errorf("appending review: %w", err)
	}

	var progress domain.UserProgress
	err := s.mutateProgress(ctx, sub.UserID, func(p *domain.UserProgress) {
		p.Exp += s.config.ReviewExp
		p.Level = progression.LevelFromExp(p.Exp)
	}, &progress)
	if err != nil {
		return nil, err
	}

	newBadges := s.evaluateBadges(ctx, &progress)
	s.enqueueRecompute(sub.UserID)

	return &SubmitResult{
		Progress:  s.summarize(progress),
		ExpGained: s.config.ReviewExp,
		NewBadges: newBadges,
	}, nil
}

// CompleteBook marks a book completed and bumps the completion counter
func (s *ProgressionService) CompleteBook(ctx context.Context, userID, bookID string) (*SubmitResult, error) {
	if userID == "" || bookID == "" {
		return nil, domain.ErrInvalidSubmission
	}

	book, err := s.store.GetBook(ctx, bookID)
	if err != nil {
		return nil, err
	}
	// Another user's book is indistinguishable from a missing one
	if book.UserID != userID {
		return nil, domain.ErrBookNotFound
	}
	if book.Status != domain.BookStatusCompleted {
		if err := s.store.MarkBookCompleted(ctx, bookID); err != nil {
			return nil, fmt.Errorf("marking book completed: %w", err)
		}
	}

	var progress domain.UserProgress
	err = s.mutateProgress(ctx, userID, func(p *domain.UserProgress) {
		if book.Status != domain.BookStatusCompleted {
			p.TotalBooksCompleted++
		}
	}, &progress)
	if err != nil {
		return nil, err
	}

	newBadges := s.evaluateBadges(ctx, &progress)
	s.enqueueRecompute(userID)

	return &SubmitResult{
		Progress:  s.summarize(progress),
		NewBadges: newBadges,
	}, nil
}

// GetProgress returns a user's progression state with derived level fields
func (s *ProgressionService) GetProgress(ctx context.Context, userID string) (*domain.ProgressSummary, error) {
	progress, err := s.store.GetUserProgress(ctx, userID)
	if err != nil {
		return nil, err
	}
	summary := s.summarize(progress)
	return &summary, nil
}

// GetBadges returns a user's awarded badges
func (s *ProgressionService) GetBadges(ctx context.Context, userID string) ([]domain.BadgeAward, error) {
	return s.store.ListAwardedBadges(ctx, userID)
}

// GetRankings returns the period leaderboard
func (s *ProgressionService) GetRankings(ctx context.Context, period domain.Period, limit int) ([]domain.RankingItem, error) {
	return s.aggregator.ListRankings(ctx, period, limit)
}

// GetUserRanking returns a user's rank within a period
func (s *ProgressionService) GetUserRanking(ctx context.Context, period domain.Period, userID string) (*domain.RankingItem, error) {
	return s.aggregator.UserRanking(ctx, period, userID)
}

// GetWeeklyChampions returns the composite-scored weekly top N
func (s *ProgressionService) GetWeeklyChampions(ctx context.Context, topN int) ([]domain.WeeklyChampion, error) {
	return s.selector.SelectWeekly(ctx, topN)
}

// mutateProgress runs a read-modify-write on a user's progress under the
// versioned compare-and-swap, retrying on conflict with a fresh read. The
// final state is copied into out.
func (s *ProgressionService) mutateProgress(ctx context.Context, userID string, mutate func(*domain.UserProgress), out *domain.UserProgress) error {
	for attempt := 0; attempt < casRetries; attempt++ {
		progress, err := s.store.GetUserProgress(ctx, userID)
		if errors.Is(err, domain.ErrUserNotFound) {
			progress = domain.NewUserProgress(userID)
			if err := s.store.CreateUserProgress(ctx, progress); err != nil {
				return fmt.Errorf("creating user progress: %w", err)
			}
		} else if err != nil {
			return fmt.Errorf("loading user progress: %w", err)
		}

		mutate(&progress)
		progress.UpdatedAt = time.Now()

		err = s.store.SaveUserProgress(ctx, progress)
		if errors.Is(err, domain.ErrVersionConflict) {
			s.logger.Debug("progress version conflict, retrying",
				"user_id", userID,
				"attempt", attempt+1,
			)
			continue
		}
		if err != nil {
			return fmt.Errorf("saving user progress: %w", err)
		}
		progress.Version++
		*out = progress
		return nil
	}
	return fmt.Errorf("saving user progress for %s: %w", userID, domain.ErrVersionConflict)
}

// evaluateBadges finds newly satisfied badge conditions and awards them.
// The award record and the EXP grant are separate writes: a grant that
// fails after its record landed is logged and picked up by no retry, while
// a failed record leaves the badge claimable on the next evaluation.
func (s *ProgressionService) evaluateBadges(ctx context.Context, progress *domain.UserProgress) []domain.BadgeDefinition {
	history, awarded, err := s.loadActivity(ctx, progress.UserID)
	if err != nil {
		s.logger.Error("failed to load activity for badge evaluation",
			"user_id", progress.UserID,
			"error", err,
		)
		return nil
	}

	found := badge.FindNewBadges(*progress, history, awarded, s.config.Badges, time.Now())
	var newBadges []domain.BadgeDefinition
	for _, def := range found {
		inserted, err := s.store.RecordBadgeAward(ctx, domain.BadgeAward{
			UserID:   progress.UserID,
			BadgeID:  def.ID,
			EarnedAt: time.Now(),
		})
		if err != nil {
			s.logger.Error("failed to record badge award",
				"user_id", progress.UserID,
				"badge_id", def.ID,
				"error", err,
			)
			continue
		}
		if !inserted {
			// concurrent evaluation already awarded it
			continue
		}

		if def.ExpReward > 0 {
			err := s.mutateProgress(ctx, progress.UserID, func(p *domain.UserProgress) {
				p.Exp += def.ExpReward
				p.Level = progression.LevelFromExp(p.Exp)
			}, progress)
			if err != nil {
				s.logger.Error("failed to grant badge exp",
					"user_id", progress.UserID,
					"badge_id", def.ID,
					"exp_reward", def.ExpReward,
					"error", err,
				)
			}
		}

		s.logger.Info("badge awarded",
			"user_id", progress.UserID,
			"badge_id", def.ID,
			"exp_reward", def.ExpReward,
		)
		newBadges = append(newBadges, def)
	}
	return newBadges
}

// loadActivity gathers the raw records badge conditions inspect
func (s *ProgressionService) loadActivity(ctx context.Context, userID string) (badge.ActivityHistory, map[string]bool, error) {
	books, err := s.store.ListBooks(ctx, userID)
	if err != nil {
		return badge.ActivityHistory{}, nil, fmt.Errorf("listing books: %w", err)
	}
	logs, err := s.store.ListReadingLogs(ctx, userID, "", 0)
	if err != nil {
		return badge.ActivityHistory{}, nil, fmt.Errorf("listing reading logs: %w", err)
	}
	reviews, err := s.store.ListReviews(ctx, userID)
	if err != nil {
		return badge.ActivityHistory{}, nil, fmt.Errorf("listing reviews: %w", err)
	}
	awards, err := s.store.ListAwardedBadges(ctx, userID)
	if err != nil {
		return badge.ActivityHistory{}, nil, fmt.Errorf("listing awarded badges: %w", err)
	}

	awarded := make(map[string]bool, len(awards))
	for _, award := range awards {
		awarded[award.BadgeID] = true
	}
	return badge.ActivityHistory{Books: books, Logs: logs, Reviews: reviews}, awarded, nil
}

// enqueueRecompute requests a background snapshot refresh, best effort
func (s *ProgressionService) enqueueRecompute(userID string) {
	if s.recomputer == nil {
		return
	}
	if !s.recomputer.Enqueue(userID) {
		s.logger.Warn("recompute queue full, dropping request", "user_id", userID)
	}
}

func (s *ProgressionService) summarize(progress domain.UserProgress) domain.ProgressSummary {
	return domain.ProgressSummary{
		UserProgress:    progress,
		ExpToNextLevel:  progression.ExpToNextLevel(progress.Exp, progress.Level),
		ProgressPercent: progression.LevelProgressPercent(progress.Exp, progress.Level),
	}
}
