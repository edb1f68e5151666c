package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/reading-progression/internal/domain"
)

// memStore is an in-memory Store with the same CAS discipline as the
// postgres repository
type memStore struct {
	progress  map[string]domain.UserProgress
	logs      []domain.ReadingLogEntry
	reviews   []domain.Review
	books     map[string]domain.Book
	awards    []domain.BadgeAward
	snapshots map[string]domain.RankingSnapshot
	admins    map[string]bool

	// forceConflicts makes the next N saves lose the race to a phantom
	// concurrent writer
	forceConflicts int
	saveAttempts   int
}

func newMemStore() *memStore {
	return &memStore{
		progress:  make(map[string]domain.UserProgress),
		books:     make(map[string]domain.Book),
		snapshots: make(map[string]domain.RankingSnapshot),
		admins:    make(map[string]bool),
	}
}

func (m *memStore) GetUserProgress(_ context.Context, userID string) (domain.UserProgress, error) {
	p, ok := m.progress[userID]
	if !ok {
		return domain.UserProgress{}, domain.ErrUserNotFound
	}
	return p, nil
}

func (m *memStore) CreateUserProgress(_ context.Context, p domain.UserProgress) error {
	if _, ok := m.progress[p.UserID]; !ok {
		m.progress[p.UserID] = p
	}
	return nil
}

func (m *memStore) SaveUserProgress(_ context.Context, p domain.UserProgress) error {
	m.saveAttempts++
	stored, ok := m.progress[p.UserID]
	if !ok {
		return domain.ErrUserNotFound
	}
	if m.forceConflicts > 0 {
		m.forceConflicts--
		stored.Version++
		m.progress[p.UserID] = stored
		return domain.ErrVersionConflict
	}
	if stored.Version != p.Version {
		return domain.ErrVersionConflict
	}
	p.Version++
	m.progress[p.UserID] = p
	return nil
}

func (m *memStore) AppendReadingLog(_ context.Context, entry domain.ReadingLogEntry) error {
	m.logs = append(m.logs, entry)
	return nil
}

func (m *memStore) ListReadingLogs(_ context.Context, userID, bookID string, limit int) ([]domain.ReadingLogEntry, error) {
	var out []domain.ReadingLogEntry
	for _, l := range m.logs {
		if l.UserID != userID {
			continue
		}
		if bookID != "" && l.BookID != bookID {
			continue
		}
		out = append(out, l)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memStore) AppendReview(_ context.Context, review domain.Review) error {
	m.reviews = append(m.reviews, review)
	return nil
}

func (m *memStore) ListReviews(_ context.Context, userID string) ([]domain.Review, error) {
	var out []domain.Review
	for _, r := range m.reviews {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) ListBooks(_ context.Context, userID string) ([]domain.Book, error) {
	var out []domain.Book
	for _, b := range m.books {
		if b.UserID == userID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *memStore) GetBook(_ context.Context, bookID string) (domain.Book, error) {
	b, ok := m.books[bookID]
	if !ok {
		return domain.Book{}, domain.ErrBookNotFound
	}
	return b, nil
}

func (m *memStore) MarkBookCompleted(_ context.Context, bookID string) error {
	b, ok := m.books[bookID]
	if !ok {
		return domain.ErrBookNotFound
	}
	now := time.Now()
	b.Status = domain.BookStatusCompleted
	b.CompletedAt = &now
	m.books[bookID] = b
	return nil
}

func (m *memStore) ListAwardedBadges(_ context.Context, userID string) ([]domain.BadgeAward, error) {
	var out []domain.BadgeAward
	for _, a := range m.awards {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memStore) RecordBadgeAward(_ context.Context, award domain.BadgeAward) (bool, error) {
	for _, a := range m.awards {
		if a.UserID == award.UserID && a.BadgeID == award.BadgeID {
			return false, nil
		}
	}
	m.awards = append(m.awards, award)
	return true, nil
}

func (m *memStore) UpsertRankingSnapshot(_ context.Context, snapshot domain.RankingSnapshot) error {
	m.snapshots[snapshot.UserID+"/"+string(snapshot.Period)] = snapshot
	return nil
}

func (m *memStore) ListRankingSnapshots(_ context.Context, period domain.Period, _ int) ([]domain.RankingSnapshot, error) {
	var out []domain.RankingSnapshot
	for _, s := range m.snapshots {
		if s.Period == period {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memStore) IsAdministrator(_ context.Context, userID string) (bool, error) {
	return m.admins[userID], nil
}

// fakeRecomputer records enqueued users
type fakeRecomputer struct {
	enqueued []string
	full     bool
}

func (f *fakeRecomputer) Enqueue(userID string) bool {
	if f.full {
		return false
	}
	f.enqueued = append(f.enqueued, userID)
	return true
}

func newTestService(store *memStore) (*ProgressionService, *fakeRecomputer) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewProgressionService(store, nil, nil, Config{}, logger)
	rec := &fakeRecomputer{}
	svc.SetRecomputer(rec)
	return svc, rec
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestSubmitReadingLogNewUser(t *testing.T) {
	store := newMemStore()
	svc, rec := newTestService(store)

	result, err := svc.SubmitReadingLog(context.Background(), domain.ReadingLogSubmission{
		UserID:    "alice",
		BookID:    "book-1",
		Date:      date(2024, time.March, 5),
		PagesRead: 30,
	})
	if err != nil {
		t.Fatalf("SubmitReadingLog: %v", err)
	}

	// 30 pages + streak day 1 bonus of 10
	if result.ExpGained != 40 {
		t.Errorf("ExpGained = %d, want 40", result.ExpGained)
	}
	if result.Progress.CurrentStreak != 1 {
		t.Errorf("CurrentStreak = %d, want 1", result.Progress.CurrentStreak)
	}
	if result.Progress.TotalPagesRead != 30 {
		t.Errorf("TotalPagesRead = %d, want 30", result.Progress.TotalPagesRead)
	}
	if result.Progress.Level != 1 {
		t.Errorf("Level = %d, want 1", result.Progress.Level)
	}

	if len(store.logs) != 1 {
		t.Fatalf("stored logs = %d, want 1", len(store.logs))
	}
	if store.logs[0].ExpGained != 40 {
		t.Errorf("log ExpGained = %d, want 40", store.logs[0].ExpGained)
	}

	if len(rec.enqueued) != 1 || rec.enqueued[0] != "alice" {
		t.Errorf("recompute enqueued = %v, want [alice]", rec.enqueued)
	}
}

func TestSubmitReadingLogSameDayNoStreakBonus(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(store)
	ctx := context.Background()

	day := date(2024, time.March, 5)
	if _, err := svc.SubmitReadingLog(ctx, domain.ReadingLogSubmission{
		UserID: "alice", BookID: "book-1", Date: day, PagesRead: 30,
	}); err != nil {
		t.Fatalf("first submit: %v", err)
	}

	result, err := svc.SubmitReadingLog(ctx, domain.ReadingLogSubmission{
		UserID: "alice", BookID: "book-1", Date: day, PagesRead: 20,
	})
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}

	// Same calendar day: page EXP only, streak unchanged
	if result.ExpGained != 20 {
		t.Errorf("ExpGained = %d, want 20", result.ExpGained)
	}
	if result.Progress.CurrentStreak != 1 {
		t.Errorf("CurrentStreak = %d, want 1", result.Progress.CurrentStreak)
	}
}

func TestSubmitReadingLogConsecutiveDays(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(store)
	ctx := context.Background()

	for d := 1; d <= 3; d++ {
		if _, err := svc.SubmitReadingLog(ctx, domain.ReadingLogSubmission{
			UserID: "alice", BookID: "book-1", Date: date(2024, time.March, d), PagesRead: 10,
		}); err != nil {
			t.Fatalf("submit day %d: %v", d, err)
		}
	}

	p, err := store.GetUserProgress(ctx, "alice")
	if err != nil {
		t.Fatalf("GetUserProgress: %v", err)
	}
	if p.CurrentStreak != 3 {
		t.Errorf("CurrentStreak = %d, want 3", p.CurrentStreak)
	}
	// Day EXP: (10+10) + (10+20) + (10+30), plus the streak-3 badge reward
	if p.Exp != 90+30 {
		t.Errorf("Exp = %d, want 120", p.Exp)
	}
}

func TestSubmitReadingLogRetriesOnVersionConflict(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(store)
	ctx := context.Background()

	if _, err := svc.SubmitReadingLog(ctx, domain.ReadingLogSubmission{
		UserID: "alice", BookID: "book-1", Date: date(2024, time.March, 1), PagesRead: 10,
	}); err != nil {
		t.Fatalf("seed submit: %v", err)
	}

	store.forceConflicts = 2
	store.saveAttempts = 0

	result, err := svc.SubmitReadingLog(ctx, domain.ReadingLogSubmission{
		UserID: "alice", BookID: "book-1", Date: date(2024, time.March, 2), PagesRead: 10,
	})
	if err != nil {
		t.Fatalf("SubmitReadingLog after conflicts: %v", err)
	}
	if store.saveAttempts < 3 {
		t.Errorf("saveAttempts = %d, want at least 3", store.saveAttempts)
	}
	if result.Progress.CurrentStreak != 2 {
		t.Errorf("CurrentStreak = %d, want 2", result.Progress.CurrentStreak)
	}
}

func TestSubmitReadingLogExhaustsRetries(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(store)
	ctx := context.Background()

	if _, err := svc.SubmitReadingLog(ctx, domain.ReadingLogSubmission{
		UserID: "alice", BookID: "book-1", Date: date(2024, time.March, 1), PagesRead: 10,
	}); err != nil {
		t.Fatalf("seed submit: %v", err)
	}

	store.forceConflicts = 100
	_, err := svc.SubmitReadingLog(ctx, domain.ReadingLogSubmission{
		UserID: "alice", BookID: "book-1", Date: date(2024, time.March, 2), PagesRead: 10,
	})
	if !errors.Is(err, domain.ErrVersionConflict) {
		t.Errorf("err = %v, want ErrVersionConflict", err)
	}
}

func TestSubmitReadingLogValidation(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(store)
	ctx := context.Background()

	cases := []domain.ReadingLogSubmission{
		{BookID: "book-1", PagesRead: 10},
		{UserID: "alice", PagesRead: 10},
		{UserID: "alice", BookID: "book-1", PagesRead: 0},
		{UserID: "alice", BookID: "book-1", PagesRead: -5},
	}
	for i, sub := range cases {
		if _, err := svc.SubmitReadingLog(ctx, sub); !errors.Is(err, domain.ErrInvalidSubmission) {
			t.Errorf("case %d: err = %v, want ErrInvalidSubmission", i, err)
		}
	}
	if len(store.logs) != 0 {
		t.Errorf("stored logs = %d, want 0", len(store.logs))
	}
}

func TestBadgeAwardedExactlyOnce(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(store)
	ctx := context.Background()

	var sawStreak3 int
	for d := 1; d <= 5; d++ {
		result, err := svc.SubmitReadingLog(ctx, domain.ReadingLogSubmission{
			UserID: "alice", BookID: "book-1", Date: date(2024, time.March, d), PagesRead: 10,
		})
		if err != nil {
			t.Fatalf("submit day %d: %v", d, err)
		}
		for _, b := range result.NewBadges {
			if b.ID == "streak-3" {
				sawStreak3++
			}
		}
	}
	if sawStreak3 != 1 {
		t.Errorf("streak-3 reported %d times, want 1", sawStreak3)
	}

	count := 0
	for _, a := range store.awards {
		if a.BadgeID == "streak-3" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("streak-3 awards stored = %d, want 1", count)
	}
}

func TestSubmitReview(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(store)
	ctx := context.Background()

	result, err := svc.SubmitReview(ctx, domain.ReviewSubmission{
		UserID:  "alice",
		BookID:  "book-1",
		Rating:  4,
		Content: "solid middle section",
	})
	if err != nil {
		t.Fatalf("SubmitReview: %v", err)
	}
	if result.ExpGained != 50 {
		t.Errorf("ExpGained = %d, want 50", result.ExpGained)
	}

	// Review EXP plus the first-review badge reward
	p, _ := store.GetUserProgress(ctx, "alice")
	if p.Exp != 75 {
		t.Errorf("Exp = %d, want 75", p.Exp)
	}

	foundBadge := false
	for _, b := range result.NewBadges {
		if b.ID == "reviews-1" {
			foundBadge = true
		}
	}
	if !foundBadge {
		t.Errorf("reviews-1 badge not in NewBadges: %v", result.NewBadges)
	}

	for _, rating := range []int{0, 6, -1} {
		_, err := svc.SubmitReview(ctx, domain.ReviewSubmission{
			UserID: "alice", BookID: "book-1", Rating: rating,
		})
		if !errors.Is(err, domain.ErrInvalidSubmission) {
			t.Errorf("rating %d: err = %v, want ErrInvalidSubmission", rating, err)
		}
	}
}

func TestCompleteBook(t *testing.T) {
	store := newMemStore()
	store.books["book-1"] = domain.Book{
		ID:     "book-1",
		UserID: "alice",
		Title:  "The Long Read",
		Status: domain.BookStatusReading,
	}
	svc, _ := newTestService(store)
	ctx := context.Background()

	result, err := svc.CompleteBook(ctx, "alice", "book-1")
	if err != nil {
		t.Fatalf("CompleteBook: %v", err)
	}
	if result.Progress.TotalBooksCompleted != 1 {
		t.Errorf("TotalBooksCompleted = %d, want 1", result.Progress.TotalBooksCompleted)
	}
	if store.books["book-1"].Status != domain.BookStatusCompleted {
		t.Errorf("book status = %s, want completed", store.books["book-1"].Status)
	}

	// Completing again must not double count
	result, err = svc.CompleteBook(ctx, "alice", "book-1")
	if err != nil {
		t.Fatalf("second CompleteBook: %v", err)
	}
	if result.Progress.TotalBooksCompleted != 1 {
		t.Errorf("TotalBooksCompleted after repeat = %d, want 1", result.Progress.TotalBooksCompleted)
	}

	if _, err := svc.CompleteBook(ctx, "alice", "missing"); !errors.Is(err, domain.ErrBookNotFound) {
		t.Errorf("err = %v, want ErrBookNotFound", err)
	}
}

func TestCompleteBookRejectsForeignBook(t *testing.T) {
	store := newMemStore()
	store.books["book-1"] = domain.Book{
		ID:     "book-1",
		UserID: "alice",
		Status: domain.BookStatusReading,
	}
	svc, _ := newTestService(store)
	ctx := context.Background()

	if _, err := svc.CompleteBook(ctx, "mallory", "book-1"); !errors.Is(err, domain.ErrBookNotFound) {
		t.Fatalf("err = %v, want ErrBookNotFound", err)
	}
	if store.books["book-1"].Status != domain.BookStatusReading {
		t.Errorf("book status = %s, want reading (untouched)", store.books["book-1"].Status)
	}
	if _, ok := store.progress["mallory"]; ok {
		t.Error("foreign completion must not create progress for the caller")
	}
}

func TestCompleteBookAwardsFirstBookBadge(t *testing.T) {
	store := newMemStore()
	store.books["book-1"] = domain.Book{
		ID:     "book-1",
		UserID: "alice",
		Status: domain.BookStatusReading,
	}
	svc, _ := newTestService(store)

	result, err := svc.CompleteBook(context.Background(), "alice", "book-1")
	if err != nil {
		t.Fatalf("CompleteBook: %v", err)
	}

	found := false
	for _, b := range result.NewBadges {
		if b.ID == "first-book" {
			found = true
		}
	}
	if !found {
		t.Errorf("first-book badge not awarded: %v", result.NewBadges)
	}
}

func TestSubmissionSucceedsWhenRecomputeQueueFull(t *testing.T) {
	store := newMemStore()
	svc, rec := newTestService(store)
	rec.full = true

	result, err := svc.SubmitReadingLog(context.Background(), domain.ReadingLogSubmission{
		UserID: "alice", BookID: "book-1", Date: date(2024, time.March, 5), PagesRead: 15,
	})
	if err != nil {
		t.Fatalf("SubmitReadingLog: %v", err)
	}
	if result.ExpGained == 0 {
		t.Error("expected EXP gain despite full recompute queue")
	}
}

func TestGetProgressUnknownUser(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(store)

	_, err := svc.GetProgress(context.Background(), "nobody")
	if !errors.Is(err, domain.ErrUserNotFound) {
		t.Errorf("err = %v, want ErrUserNotFound", err)
	}
}
