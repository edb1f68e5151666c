package ranking

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/reading-progression/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type memStore struct {
	logs      map[string][]domain.ReadingLogEntry
	reviews   map[string][]domain.Review
	snapshots map[string]domain.RankingSnapshot
	admins    map[string]bool
	failLogs  bool
}

func newMemStore() *memStore {
	return &memStore{
		logs:      make(map[string][]domain.ReadingLogEntry),
		reviews:   make(map[string][]domain.Review),
		snapshots: make(map[string]domain.RankingSnapshot),
		admins:    make(map[string]bool),
	}
}

func (m *memStore) ListReadingLogs(_ context.Context, userID, _ string, _ int) ([]domain.ReadingLogEntry, error) {
	if m.failLogs {
		return nil, errors.New("store unavailable")
	}
	return m.logs[userID], nil
}

func (m *memStore) ListReviews(_ context.Context, userID string) ([]domain.Review, error) {
	return m.reviews[userID], nil
}

func (m *memStore) UpsertRankingSnapshot(_ context.Context, snapshot domain.RankingSnapshot) error {
	m.snapshots[snapshot.UserID+"|"+string(snapshot.Period)] = snapshot
	return nil
}

func (m *memStore) ListRankingSnapshots(_ context.Context, period domain.Period, _ int) ([]domain.RankingSnapshot, error) {
	var out []domain.RankingSnapshot
	for _, snapshot := range m.snapshots {
		if snapshot.Period == period {
			out = append(out, snapshot)
		}
	}
	return out, nil
}

func (m *memStore) IsAdministrator(_ context.Context, userID string) (bool, error) {
	return m.admins[userID], nil
}

func TestPeriodStart(t *testing.T) {
	// Thursday 2024-01-11, in a non-UTC server zone; windows anchor to the
	// calendar date at UTC midnight like every stored log date
	jst := time.FixedZone("JST", 9*3600)
	now := time.Date(2024, time.January, 11, 15, 30, 0, 0, jst)

	daily, ok := PeriodStart(domain.PeriodDaily, now)
	if !ok || !daily.Equal(time.Date(2024, time.January, 11, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("daily start = %v, want 2024-01-11 00:00", daily)
	}

	weekly, ok := PeriodStart(domain.PeriodWeekly, now)
	if !ok || !weekly.Equal(time.Date(2024, time.January, 8, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("weekly start = %v, want Monday 2024-01-08 00:00", weekly)
	}

	// Sunday belongs to the week starting the previous Monday
	sunday := time.Date(2024, time.January, 14, 9, 0, 0, 0, jst)
	weekly, _ = PeriodStart(domain.PeriodWeekly, sunday)
	if !weekly.Equal(time.Date(2024, time.January, 8, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("weekly start from Sunday = %v, want Monday 2024-01-08", weekly)
	}

	monthly, ok := PeriodStart(domain.PeriodMonthly, now)
	if !ok || !monthly.Equal(time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("monthly start = %v, want 2024-01-01 00:00", monthly)
	}

	if _, ok := PeriodStart(domain.PeriodAllTime, now); ok {
		t.Error("all-time period should have no start")
	}
}

func TestComputePeriodExpWeeklySum(t *testing.T) {
	store := newMemStore()
	now := time.Now()
	store.logs["u1"] = []domain.ReadingLogEntry{
		{UserID: "u1", Date: now, PagesRead: 30, ExpGained: 30},
		{UserID: "u1", Date: now, PagesRead: 45, ExpGained: 45},
		{UserID: "u1", Date: now.AddDate(0, 0, -14), PagesRead: 200, ExpGained: 200},
	}
	store.reviews["u1"] = []domain.Review{
		{UserID: "u1", CreatedAt: now},
		{UserID: "u1", CreatedAt: now.AddDate(0, 0, -14)},
	}

	agg := NewAggregator(store, nil, DefaultReviewExp, testLogger())
	total, err := agg.ComputePeriodExp(context.Background(), "u1", domain.PeriodWeekly, domain.UserProgress{})
	if err != nil {
		t.Fatalf("ComputePeriodExp failed: %v", err)
	}
	if total != 125 {
		t.Fatalf("weekly exp = %d, want 30+45+50 = 125", total)
	}
}

func TestComputePeriodExpAllTime(t *testing.T) {
	store := newMemStore()
	agg := NewAggregator(store, nil, DefaultReviewExp, testLogger())

	progress := domain.UserProgress{UserID: "u1", Exp: 4321}
	total, err := agg.ComputePeriodExp(context.Background(), "u1", domain.PeriodAllTime, progress)
	if err != nil {
		t.Fatalf("ComputePeriodExp failed: %v", err)
	}
	if total != 4321 {
		t.Fatalf("all-time exp = %d, want stored progress total 4321", total)
	}
}

func TestRecomputeSnapshotsIdempotent(t *testing.T) {
	store := newMemStore()
	now := time.Now()
	store.logs["u1"] = []domain.ReadingLogEntry{
		{UserID: "u1", Date: now, PagesRead: 20, ExpGained: 20},
	}
	agg := NewAggregator(store, nil, DefaultReviewExp, testLogger())
	progress := domain.UserProgress{UserID: "u1", Exp: 20}

	ctx := context.Background()
	if err := agg.RecomputeSnapshots(ctx, "u1", progress); err != nil {
		t.Fatalf("first recompute failed: %v", err)
	}
	first := store.snapshots["u1|weekly"].TotalExp
	if err := agg.RecomputeSnapshots(ctx, "u1", progress); err != nil {
		t.Fatalf("second recompute failed: %v", err)
	}
	if got := store.snapshots["u1|weekly"].TotalExp; got != first {
		t.Fatalf("recompute not idempotent: %d then %d", first, got)
	}
	if len(store.snapshots) != len(domain.AllPeriods) {
		t.Fatalf("expected one snapshot per period, got %d", len(store.snapshots))
	}
}

func TestListRankingsExcludesAdminsAndRanksDense(t *testing.T) {
	store := newMemStore()
	store.admins["admin"] = true
	for _, s := range []domain.RankingSnapshot{
		{UserID: "a", Period: domain.PeriodWeekly, TotalExp: 300},
		{UserID: "b", Period: domain.PeriodWeekly, TotalExp: 500},
		{UserID: "admin", Period: domain.PeriodWeekly, TotalExp: 900},
		{UserID: "c", Period: domain.PeriodWeekly, TotalExp: 100},
	} {
		store.snapshots[s.UserID+"|"+string(s.Period)] = s
	}

	agg := NewAggregator(store, nil, DefaultReviewExp, testLogger())
	items, err := agg.ListRankings(context.Background(), domain.PeriodWeekly, 10)
	if err != nil {
		t.Fatalf("ListRankings failed: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("got %d items, want 3 (admin excluded)", len(items))
	}
	wantOrder := []string{"b", "a", "c"}
	for i, item := range items {
		if item.UserID != wantOrder[i] {
			t.Errorf("rank %d: got %s, want %s", i+1, item.UserID, wantOrder[i])
		}
		if item.Rank != i+1 {
			t.Errorf("item %s: rank = %d, want %d", item.UserID, item.Rank, i+1)
		}
	}
}

func TestListRankingsTieOrderMatchesMirror(t *testing.T) {
	store := newMemStore()
	for _, s := range []domain.RankingSnapshot{
		{UserID: "a", Period: domain.PeriodWeekly, TotalExp: 500},
		{UserID: "c", Period: domain.PeriodWeekly, TotalExp: 500},
		{UserID: "b", Period: domain.PeriodWeekly, TotalExp: 500},
	} {
		store.snapshots[s.UserID+"|"+string(s.Period)] = s
	}

	agg := NewAggregator(store, nil, DefaultReviewExp, testLogger())
	items, err := agg.ListRankings(context.Background(), domain.PeriodWeekly, 10)
	if err != nil {
		t.Fatalf("ListRankings failed: %v", err)
	}

	// Equal totals order by user id descending, the sorted-set tie rule,
	// so the cache and store paths agree
	wantOrder := []string{"c", "b", "a"}
	for i, item := range items {
		if item.UserID != wantOrder[i] {
			t.Errorf("rank %d: got %s, want %s", i+1, item.UserID, wantOrder[i])
		}
	}
}

func TestUserRanking(t *testing.T) {
	store := newMemStore()
	store.admins["admin"] = true
	for _, s := range []domain.RankingSnapshot{
		{UserID: "a", Period: domain.PeriodWeekly, TotalExp: 300},
		{UserID: "admin", Period: domain.PeriodWeekly, TotalExp: 900},
		{UserID: "b", Period: domain.PeriodWeekly, TotalExp: 500},
	} {
		store.snapshots[s.UserID+"|"+string(s.Period)] = s
	}

	agg := NewAggregator(store, nil, DefaultReviewExp, testLogger())
	ctx := context.Background()

	item, err := agg.UserRanking(ctx, domain.PeriodWeekly, "a")
	if err != nil {
		t.Fatalf("UserRanking failed: %v", err)
	}
	if item.Rank != 2 || item.TotalExp != 300 {
		t.Errorf("got rank %d exp %d, want rank 2 exp 300", item.Rank, item.TotalExp)
	}

	// Admins have no rank
	if _, err := agg.UserRanking(ctx, domain.PeriodWeekly, "admin"); !errors.Is(err, domain.ErrUserNotFound) {
		t.Errorf("admin lookup: err = %v, want ErrUserNotFound", err)
	}
	if _, err := agg.UserRanking(ctx, domain.PeriodWeekly, "ghost"); !errors.Is(err, domain.ErrUserNotFound) {
		t.Errorf("unknown user: err = %v, want ErrUserNotFound", err)
	}
}

func TestListRankingsRejectsUnknownPeriod(t *testing.T) {
	agg := NewAggregator(newMemStore(), nil, DefaultReviewExp, testLogger())
	if _, err := agg.ListRankings(context.Background(), domain.Period("hourly"), 10); !errors.Is(err, domain.ErrInvalidPeriod) {
		t.Fatalf("expected ErrInvalidPeriod, got %v", err)
	}
}
