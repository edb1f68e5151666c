package domain

import "time"

// BookStatus represents the reading state of a book
type BookStatus string

const (
	BookStatusReading   BookStatus = "reading"
	BookStatusCompleted BookStatus = "completed"
	BookStatusDropped   BookStatus = "dropped"
)

// UserProgress holds the derived progression state for a single user.
// Level must always equal LevelFromExp(Exp) after any mutation.
type UserProgress struct {
	UserID              string     `json:"user_id"`
	Exp                 int        `json:"exp"`
	Level               int        `json:"level"`
	CurrentStreak       int        `json:"current_streak"`
	LongestStreak       int        `json:"longest_streak"`
	LastReadingDate     *time.Time `json:"last_reading_date,omitempty"`
	TotalPagesRead      int        `json:"total_pages_read"`
	TotalBooksCompleted int        `json:"total_books_completed"`
	Version             int64      `json:"-"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// NewUserProgress returns the zero-valued progression state for a new account
func NewUserProgress(userID string) UserProgress {
	return UserProgress{
		UserID: userID,
		Level:  1,
	}
}

// ReadingLogEntry is an immutable record of a single reading session.
// ExpGained is fixed at submission time and re-summed by period aggregation.
type ReadingLogEntry struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	BookID    string    `json:"book_id"`
	Date      time.Time `json:"date"`
	StartPage int       `json:"start_page,omitempty"`
	EndPage   int       `json:"end_page,omitempty"`
	PagesRead int       `json:"pages_read"`
	ExpGained int       `json:"exp_gained"`
	CreatedAt time.Time `json:"created_at"`
}

// Review is a user's review of a book
type Review struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	BookID    string    `json:"book_id"`
	Rating    int       `json:"rating"`
	Content   string    `json:"content,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Book is the minimal book record the progression core reads
type Book struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Title       string     `json:"title"`
	TotalPages  int        `json:"total_pages,omitempty"`
	Status      BookStatus `json:"status"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// ReadingLogSubmission is a request to record a reading session
type ReadingLogSubmission struct {
	UserID    string    `json:"user_id"`
	BookID    string    `json:"book_id"`
	Date      time.Time `json:"date"`
	StartPage int       `json:"start_page,omitempty"`
	EndPage   int       `json:"end_page,omitempty"`
	PagesRead int       `json:"pages_read"`
}

// ReviewSubmission is a request to record a book review
type ReviewSubmission struct {
	UserID  string `json:"user_id"`
	BookID  string `json:"book_id"`
	Rating  int    `json:"rating"`
	Content string `json:"content,omitempty"`
}

// ProgressSummary is UserProgress enriched with ledger-derived fields for reads
type ProgressSummary struct {
	UserProgress
	ExpToNextLevel  int `json:"exp_to_next_level"`
	ProgressPercent int `json:"level_progress_percent"`
}
