package metrics

import (
	"context"
	"log/slog"
	"time"
)

// DB interface for sync progress queries
type DB interface {
	CountSyncProgressByStatus() (map[string]int, error)
}

// StartProgressCollector starts a background goroutine that periodically
// collects sync progress gauges from the database
func StartProgressCollector(ctx context.Context, db DB, interval time.Duration) {
	logger := slog.Default()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Collect once immediately
	collectProgress(db, logger)

	for {
		select {
		case <-ctx.Done():
			logger.Info("Progress collector stopping")
			return
		case <-ticker.C:
			collectProgress(db, logger)
		}
	}
}

func collectProgress(db DB, logger *slog.Logger) {
	counts, err := db.CountSyncProgressByStatus()
	if err != nil {
		logger.Error("Failed to count sync progress rows", "error", err)
		return
	}

	// Reset known statuses so vanished rows drop to zero
	for _, status := range []string{"pending", "in_progress", "completed", "failed"} {
		SyncProgressRows.WithLabelValues(status).Set(float64(counts[status]))
	}
}
