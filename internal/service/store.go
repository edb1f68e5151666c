package service

import (
	"context"

	"github.com/reading-progression/internal/domain"
)

// Store is the durable repository contract the progression core runs
// against. The postgres package provides the production implementation;
// tests use an in-memory fake.
type Store interface {
	GetUserProgress(ctx context.Context, userID string) (domain.UserProgress, error)
	CreateUserProgress(ctx context.Context, progress domain.UserProgress) error
	// SaveUserProgress persists progress only if the stored version still
	// matches progress.Version, returning domain.ErrVersionConflict
	// otherwise. This is the single-writer-per-user discipline.
	SaveUserProgress(ctx context.Context, progress domain.UserProgress) error

	AppendReadingLog(ctx context.Context, entry domain.ReadingLogEntry) error
	ListReadingLogs(ctx context.Context, userID, bookID string, limit int) ([]domain.ReadingLogEntry, error)

	AppendReview(ctx context.Context, review domain.Review) error
	ListReviews(ctx context.Context, userID string) ([]domain.Review, error)

	ListBooks(ctx context.Context, userID string) ([]domain.Book, error)
	GetBook(ctx context.Context, bookID string) (domain.Book, error)
	MarkBookCompleted(ctx context.Context, bookID string) error

	ListAwardedBadges(ctx context.Context, userID string) ([]domain.BadgeAward, error)
	// RecordBadgeAward durably records the award, reporting false when the
	// (user, badge) pair was already present.
	RecordBadgeAward(ctx context.Context, award domain.BadgeAward) (bool, error)

	UpsertRankingSnapshot(ctx context.Context, snapshot domain.RankingSnapshot) error
	ListRankingSnapshots(ctx context.Context, period domain.Period, limit int) ([]domain.RankingSnapshot, error)
	IsAdministrator(ctx context.Context, userID string) (bool, error)
}

// Recomputer accepts fire-and-forget ranking recompute requests.
// Enqueue reports false when the request was dropped.
type Recomputer interface {
	Enqueue(userID string) bool
}
