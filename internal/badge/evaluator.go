// Package badge evaluates badge rules against a user's progression state.
// Evaluation is a pure filter; recording awards is the service's job.
package badge

import (
	"time"

	"github.com/reading-progression/internal/domain"
	"github.com/reading-progression/internal/progression"
)

// ActivityHistory is the raw activity a badge condition may inspect
type ActivityHistory struct {
	Books   []domain.Book
	Logs    []domain.ReadingLogEntry
	Reviews []domain.Review
}

// FindNewBadges returns every definition whose condition is satisfied and
// whose id is not yet in awarded. Calling it again with the updated awarded
// set never returns the same badge twice.
func FindNewBadges(
	progress domain.UserProgress,
	history ActivityHistory,
	awarded map[string]bool,
	defs []domain.BadgeDefinition,
	now time.Time,
) []domain.BadgeDefinition {
	var earned []domain.BadgeDefinition
	for _, def := range defs {
		if awarded[def.ID] {
			continue
		}
		if conditionMet(def, progress, history, now) {
			earned = append(earned, def)
		}
	}
	return earned
}

// conditionMet dispatches on the closed condition type set
func conditionMet(def domain.BadgeDefinition, progress domain.UserProgress, history ActivityHistory, now time.Time) bool {
	switch def.ConditionType {
	case domain.ConditionFirstBook:
		return len(history.Books) >= def.Threshold
	case domain.ConditionStreakDays:
		return progress.CurrentStreak >= def.Threshold
	case domain.ConditionBooksCompleted:
		return completedBooks(history.Books) >= def.Threshold
	case domain.ConditionReviewsWritten:
		return len(history.Reviews) >= def.Threshold
	case domain.ConditionLevelReached:
		return progress.Level >= def.Threshold
	case domain.ConditionPagesInMonth:
		return pagesInMonth(history.Logs, now) >= def.Threshold
	}
	return false
}

func completedBooks(books []domain.Book) int {
	count := 0
	for _, b := range books {
		if b.Status == domain.BookStatusCompleted {
			count++
		}
	}
	return count
}

// pagesInMonth sums pages for logs dated within the calendar month of now.
// Bounds are anchored the same way Midnight anchors log dates, so stored
// and submitted dates land in the same window regardless of zone.
func pagesInMonth(logs []domain.ReadingLogEntry, now time.Time) int {
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	next := first.AddDate(0, 1, 0)

	total := 0
	for _, log := range logs {
		date := progression.Midnight(log.Date)
		if !date.Before(first) && date.Before(next) {
			total += log.PagesRead
		}
	}
	return total
}
