package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/reading-progression/internal/config"
	"github.com/reading-progression/internal/domain"
	"github.com/reading-progression/internal/ranking"
)

// ProgressStore is the slice of the repository the worker needs
type ProgressStore interface {
	GetUserProgress(ctx context.Context, userID string) (domain.UserProgress, error)
	ListUserIDs(ctx context.Context) ([]string, error)
}

// Broadcaster pushes refreshed leaderboards to connected clients
type Broadcaster interface {
	BroadcastRankingUpdate(period domain.Period, items []domain.RankingItem)
}

// RecomputeWorker refreshes ranking snapshots off the request path. Log and
// review submissions enqueue their user; a periodic reconciliation pass
// recomputes every user so snapshots converge even when queue entries were
// dropped. Failures are logged and skipped, never propagated to the
// triggering action.
type RecomputeWorker struct {
	aggregator *ranking.Aggregator
	store      ProgressStore
	hub        Broadcaster
	config     *config.RecomputeConfig
	logger     *slog.Logger
	queue      chan string
	stopCh     chan struct{}
	doneCh     chan struct{}
	mu         sync.Mutex
	running    bool
}

// NewRecomputeWorker creates a recompute worker. hub may be nil.
func NewRecomputeWorker(
	aggregator *ranking.Aggregator,
	store ProgressStore,
	hub Broadcaster,
	cfg *config.RecomputeConfig,
	logger *slog.Logger,
) *RecomputeWorker {
	return &RecomputeWorker{
		aggregator: aggregator,
		store:      store,
		hub:        hub,
		config:     cfg,
		logger:     logger,
		queue:      make(chan string, cfg.QueueSize),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// Enqueue requests a snapshot refresh for one user without blocking.
// Returns false when the queue is full and the request was dropped; the
// periodic pass will pick the user up later.
func (w *RecomputeWorker) Enqueue(userID string) bool {
	select {
	case w.queue <- userID:
		return true
	default:
		return false
	}
}

// Start begins the background recompute loop
func (w *RecomputeWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info("recompute worker started",
		"interval", w.config.Interval,
		"queue_size", w.config.QueueSize,
	)

	go w.run(ctx)
	return nil
}

// Stop stops the background recompute loop
func (w *RecomputeWorker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("recompute worker stopped")
	return nil
}

// IsRunning returns whether the worker is currently running
func (w *RecomputeWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// run is the main worker loop
func (w *RecomputeWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case userID := <-w.queue:
			w.recomputeUser(ctx, userID)
			w.broadcastWeekly(ctx)
		case <-ticker.C:
			w.recomputeAll(ctx)
		}
	}
}

// recomputeUser refreshes all period snapshots for one user
func (w *RecomputeWorker) recomputeUser(ctx context.Context, userID string) {
	progress, err := w.store.GetUserProgress(ctx, userID)
	if err != nil {
		w.logger.Error("failed to load progress for recompute",
			"user_id", userID,
			"error", err,
		)
		return
	}
	if err := w.aggregator.RecomputeSnapshots(ctx, userID, progress); err != nil {
		w.logger.Error("failed to recompute snapshots",
			"user_id", userID,
			"error", err,
		)
	}
}

// recomputeAll runs a full reconciliation pass over every user
func (w *RecomputeWorker) recomputeAll(ctx context.Context) {
	w.logger.Info("starting recompute cycle")
	startTime := time.Now()

	userIDs, err := w.store.ListUserIDs(ctx)
	if err != nil {
		w.logger.Error("failed to list users for recompute", "error", err)
		return
	}

	recomputed := 0
	errorCount := 0
	for _, userID := range userIDs {
		progress, err := w.store.GetUserProgress(ctx, userID)
		if err != nil {
			w.logger.Error("failed to load progress for recompute",
				"user_id", userID,
				"error", err,
			)
			errorCount++
			continue
		}
		if err := w.aggregator.RecomputeSnapshots(ctx, userID, progress); err != nil {
			errorCount++
		} else {
			recomputed++
		}
	}

	w.broadcastWeekly(ctx)
	w.logger.Info("recompute cycle completed",
		"duration", time.Since(startTime),
		"recomputed", recomputed,
		"errors", errorCount,
	)
}

// broadcastWeekly pushes the refreshed weekly leaderboard to subscribers
func (w *RecomputeWorker) broadcastWeekly(ctx context.Context) {
	if w.hub == nil {
		return
	}
	items, err := w.aggregator.ListRankings(ctx, domain.PeriodWeekly, w.config.BroadcastTopN)
	if err != nil {
		w.logger.Warn("failed to list rankings for broadcast", "error", err)
		return
	}
	w.hub.BroadcastRankingUpdate(domain.PeriodWeekly, items)
}

// RunOnce runs a single full reconciliation pass (useful for manual triggers)
func (w *RecomputeWorker) RunOnce(ctx context.Context) {
	w.recomputeAll(ctx)
}
