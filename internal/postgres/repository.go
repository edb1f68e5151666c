package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/reading-progression/internal/config"
	"github.com/reading-progression/internal/domain"
)

// Repository provides PostgreSQL-based data access
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewRepository creates a new PostgreSQL repository
func NewRepository(cfg *config.PostgresConfig, logger *slog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Repository{
		pool:   pool,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (r *Repository) Close() {
	r.pool.Close()
}

// Pool returns the underlying connection pool
func (r *Repository) Pool() *pgxpool.Pool {
	return r.pool
}

// RunMigrations executes database migrations
func (r *Repository) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS user_progress (
			user_id VARCHAR(64) PRIMARY KEY,
			exp INT NOT NULL DEFAULT 0,
			level INT NOT NULL DEFAULT 1,
			current_streak INT NOT NULL DEFAULT 0,
			longest_streak INT NOT NULL DEFAULT 0,
			last_reading_date DATE,
			total_pages_read INT NOT NULL DEFAULT 0,
			total_books_completed INT NOT NULL DEFAULT 0,
			is_admin BOOLEAN NOT NULL DEFAULT FALSE,
			version BIGINT NOT NULL DEFAULT 0,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS reading_logs (
			id VARCHAR(64) PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			book_id VARCHAR(64) NOT NULL,
			date DATE NOT NULL,
			start_page INT,
			end_page INT,
			pages_read INT NOT NULL,
			exp_gained INT NOT NULL DEFAULT 0,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS reviews (
			id VARCHAR(64) PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			book_id VARCHAR(64) NOT NULL,
			rating INT NOT NULL,
			content TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS books (
			id VARCHAR(64) PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			title VARCHAR(255) NOT NULL,
			total_pages INT,
			status VARCHAR(20) NOT NULL DEFAULT 'reading',
			completed_at TIMESTAMP,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS badge_awards (
			user_id VARCHAR(64) NOT NULL,
			badge_id VARCHAR(64) NOT NULL,
			earned_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (user_id, badge_id)
		)`,
		`CREATE TABLE IF NOT EXISTS ranking_snapshots (
			user_id VARCHAR(64) NOT NULL,
			period VARCHAR(20) NOT NULL,
			total_exp INT NOT NULL DEFAULT 0,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (user_id, period)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_reading_logs_user_date ON reading_logs(user_id, date DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_reviews_user ON reviews(user_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_books_user ON books(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_ranking_snapshots_period ON ranking_snapshots(period, total_exp DESC)`,
	}

	for _, migration := range migrations {
		_, err := r.pool.Exec(ctx, migration)
		if err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	r.logger.Info("database migrations completed")
	return nil
}

// GetUserProgress retrieves a user's progression state
func (r *Repository) GetUserProgress(ctx context.Context, userID string) (domain.UserProgress, error) {
	query := `
		SELECT user_id, exp, level, current_streak, longest_streak, last_reading_date,
			   total_pages_read, total_books_completed, version, updated_at
		FROM user_progress
		WHERE user_id = $1
	`
	var progress domain.UserProgress
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&progress.UserID,
		&progress.Exp,
		&progress.Level,
		&progress.CurrentStreak,
		&progress.LongestStreak,
		&progress.LastReadingDate,
		&progress.TotalPagesRead,
		&progress.TotalBooksCompleted,
		&progress.Version,
		&progress.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.UserProgress{}, domain.ErrUserNotFound
		}
		return domain.UserProgress{}, fmt.Errorf("getting user progress: %w", err)
	}
	return progress, nil
}

// CreateUserProgress inserts the initial progression row for a user.
// Concurrent creates collapse onto the existing row.
func (r *Repository) CreateUserProgress(ctx context.Context, progress domain.UserProgress) error {
	query := `
		INSERT INTO user_progress (user_id, exp, level, current_streak, longest_streak,
								   last_reading_date, total_pages_read, total_books_completed,
								   version, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, $9)
		ON CONFLICT (user_id) DO NOTHING
	`
	_, err := r.pool.Exec(ctx, query,
		progress.UserID,
		progress.Exp,
		progress.Level,
		progress.CurrentStreak,
		progress.LongestStreak,
		progress.LastReadingDate,
		progress.TotalPagesRead,
		progress.TotalBooksCompleted,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("creating user progress: %w", err)
	}
	return nil
}

// SaveUserProgress persists progress under the versioned compare-and-swap.
// The write applies only when the stored version still matches; a lost race
// surfaces as domain.ErrVersionConflict for the caller to retry.
func (r *Repository) SaveUserProgress(ctx context.Context, progress domain.UserProgress) error {
	query := `
		UPDATE user_progress
		SET exp = $3, level = $4, current_streak = $5, longest_streak = $6,
			last_reading_date = $7, total_pages_read = $8, total_books_completed = $9,
			version = version + 1, updated_at = $10
		WHERE user_id = $1 AND version = $2
	`
	result, err := r.pool.Exec(ctx, query,
		progress.UserID,
		progress.Version,
		progress.Exp,
		progress.Level,
		progress.CurrentStreak,
		progress.LongestStreak,
		progress.LastReadingDate,
		progress.TotalPagesRead,
		progress.TotalBooksCompleted,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("saving user progress: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrVersionConflict
	}
	return nil
}

// ListUserIDs returns every user with a progression row
func (r *Repository) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT user_id FROM user_progress`)
	if err != nil {
		return nil, fmt.Errorf("listing user ids: %w", err)
	}
	defer rows.Close()

	var userIDs []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("scanning user id: %w", err)
		}
		userIDs = append(userIDs, userID)
	}
	return userIDs, nil
}

// AppendReadingLog records an immutable reading-log entry
func (r *Repository) AppendReadingLog(ctx context.Context, entry domain.ReadingLogEntry) error {
	query := `
		INSERT INTO reading_logs (id, user_id, book_id, date, start_page, end_page,
								  pages_read, exp_gained, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.pool.Exec(ctx, query,
		entry.ID,
		entry.UserID,
		entry.BookID,
		entry.Date,
		entry.StartPage,
		entry.EndPage,
		entry.PagesRead,
		entry.ExpGained,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("appending reading log: %w", err)
	}
	return nil
}

// ListReadingLogs retrieves a user's reading logs, newest first.
// bookID filters to one book when non-empty; limit 0 means no limit.
func (r *Repository) ListReadingLogs(ctx context.Context, userID, bookID string, limit int) ([]domain.ReadingLogEntry, error) {
	query := `
		SELECT id, user_id, book_id, date, COALESCE(start_page, 0), COALESCE(end_page, 0),
			   pages_read, exp_gained, created_at
		FROM reading_logs
		WHERE user_id = $1 AND ($2 = '' OR book_id = $2)
		ORDER BY date DESC, created_at DESC
	`
	args := []interface{}{userID, bookID}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing reading logs: %w", err)
	}
	defer rows.Close()

	var entries []domain.ReadingLogEntry
	for rows.Next() {
		var entry domain.ReadingLogEntry
		err := rows.Scan(
			&entry.ID,
			&entry.UserID,
			&entry.BookID,
			&entry.Date,
			&entry.StartPage,
			&entry.EndPage,
			&entry.PagesRead,
			&entry.ExpGained,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning reading log: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// AppendReview records a review
func (r *Repository) AppendReview(ctx context.Context, review domain.Review) error {
	query := `
		INSERT INTO reviews (id, user_id, book_id, rating, content, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.pool.Exec(ctx, query,
		review.ID,
		review.UserID,
		review.BookID,
		review.Rating,
		review.Content,
		review.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("appending review: %w", err)
	}
	return nil
}

// ListReviews retrieves a user's reviews, newest first
func (r *Repository) ListReviews(ctx context.Context, userID string) ([]domain.Review, error) {
	query := `
		SELECT id, user_id, book_id, rating, COALESCE(content, ''), created_at
		FROM reviews
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("listing reviews: %w", err)
	}
	defer rows.Close()

	var reviews []domain.Review
	for rows.Next() {
		var review domain.Review
		err := rows.Scan(
			&review.ID,
			&review.UserID,
			&review.BookID,
			&review.Rating,
			&review.Content,
			&review.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning review: %w", err)
		}
		reviews = append(reviews, review)
	}
	return reviews, nil
}

// ListBooks retrieves a user's books
func (r *Repository) ListBooks(ctx context.Context, userID string) ([]domain.Book, error) {
	query := `
		SELECT id, user_id, title, COALESCE(total_pages, 0), status, completed_at, created_at
		FROM books
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("listing books: %w", err)
	}
	defer rows.Close()

	var books []domain.Book
	for rows.Next() {
		var book domain.Book
		err := rows.Scan(
			&book.ID,
			&book.UserID,
			&book.Title,
			&book.TotalPages,
			&book.Status,
			&book.CompletedAt,
			&book.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning book: %w", err)
		}
		books = append(books, book)
	}
	return books, nil
}

// GetBook retrieves a book by ID
func (r *Repository) GetBook(ctx context.Context, bookID string) (domain.Book, error) {
	query := `
		SELECT id, user_id, title, COALESCE(total_pages, 0), status, completed_at, created_at
		FROM books
		WHERE id = $1
	`
	var book domain.Book
	err := r.pool.QueryRow(ctx, query, bookID).Scan(
		&book.ID,
		&book.UserID,
		&book.Title,
		&book.TotalPages,
		&book.Status,
		&book.CompletedAt,
		&book.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Book{}, domain.ErrBookNotFound
		}
		return domain.Book{}, fmt.Errorf("getting book: %w", err)
	}
	return book, nil
}

// MarkBookCompleted flips a book to completed status
func (r *Repository) MarkBookCompleted(ctx context.Context, bookID string) error {
	query := `
		UPDATE books
		SET status = $2, completed_at = $3
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query, bookID, domain.BookStatusCompleted, time.Now())
	if err != nil {
		return fmt.Errorf("marking book completed: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrBookNotFound
	}
	return nil
}

// ListAwardedBadges retrieves a user's badge awards
func (r *Repository) ListAwardedBadges(ctx context.Context, userID string) ([]domain.BadgeAward, error) {
	query := `
		SELECT user_id, badge_id, earned_at
		FROM badge_awards
		WHERE user_id = $1
		ORDER BY earned_at
	`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("listing badge awards: %w", err)
	}
	defer rows.Close()

	var awards []domain.BadgeAward
	for rows.Next() {
		var award domain.BadgeAward
		if err := rows.Scan(&award.UserID, &award.BadgeID, &award.EarnedAt); err != nil {
			return nil, fmt.Errorf("scanning badge award: %w", err)
		}
		awards = append(awards, award)
	}
	return awards, nil
}

// RecordBadgeAward durably records an award exactly once per (user, badge)
// pair. Returns false when the pair was already present.
func (r *Repository) RecordBadgeAward(ctx context.Context, award domain.BadgeAward) (bool, error) {
	query := `
		INSERT INTO badge_awards (user_id, badge_id, earned_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, badge_id) DO NOTHING
	`
	result, err := r.pool.Exec(ctx, query, award.UserID, award.BadgeID, award.EarnedAt)
	if err != nil {
		return false, fmt.Errorf("recording badge award: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// UpsertRankingSnapshot overwrites the single snapshot row for a
// (user, period) pair
func (r *Repository) UpsertRankingSnapshot(ctx context.Context, snapshot domain.RankingSnapshot) error {
	query := `
		INSERT INTO ranking_snapshots (user_id, period, total_exp, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, period)
		DO UPDATE SET total_exp = $3, updated_at = $4
	`
	_, err := r.pool.Exec(ctx, query,
		snapshot.UserID,
		string(snapshot.Period),
		snapshot.TotalExp,
		snapshot.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upserting ranking snapshot: %w", err)
	}
	return nil
}

// ListRankingSnapshots retrieves snapshots for a period in descending EXP
// order; limit 0 means no limit
func (r *Repository) ListRankingSnapshots(ctx context.Context, period domain.Period, limit int) ([]domain.RankingSnapshot, error) {
	query := `
		SELECT user_id, period, total_exp, updated_at
		FROM ranking_snapshots
		WHERE period = $1
		ORDER BY total_exp DESC, user_id DESC
	`
	args := []interface{}{string(period)}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing ranking snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []domain.RankingSnapshot
	for rows.Next() {
		var snapshot domain.RankingSnapshot
		err := rows.Scan(
			&snapshot.UserID,
			&snapshot.Period,
			&snapshot.TotalExp,
			&snapshot.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning ranking snapshot: %w", err)
		}
		snapshots = append(snapshots, snapshot)
	}
	return snapshots, nil
}

// IsAdministrator reports whether a user is flagged as an administrator.
// Unknown users are not administrators.
func (r *Repository) IsAdministrator(ctx context.Context, userID string) (bool, error) {
	query := `SELECT is_admin FROM user_progress WHERE user_id = $1`
	var isAdmin bool
	err := r.pool.QueryRow(ctx, query, userID).Scan(&isAdmin)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("checking administrator flag: %w", err)
	}
	return isAdmin, nil
}
