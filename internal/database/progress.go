package database

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rannmann/health-lens/internal/metrics"
)

// Sync progress statuses
const (
	ProgressPending    = "pending"
	ProgressInProgress = "in_progress"
	ProgressCompleted  = "completed"
	ProgressFailed     = "failed"
)

// SyncProgress tracks the frontier of imported history for one endpoint
type SyncProgress struct {
	UserID         string
	Endpoint       string
	LastSyncedDate *string
	Status         string
	Error          *string
	UpdatedAt      int64
}

// UpsertSyncProgress inserts or replaces the progress row for a user-endpoint
func (db *DB) UpsertSyncProgress(userID, endpoint string, lastSyncedDate *string, status string) error {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpUpsertSyncProgress))
	defer timer.ObserveDuration()

	_, err := db.conn.Exec(`
		INSERT INTO fitbit_sync_progress (user_id, endpoint, last_synced_date, status, error, updated_at)
		VALUES (?, ?, ?, ?, NULL, ?)
		ON CONFLICT(user_id, endpoint) DO UPDATE SET
			last_synced_date = excluded.last_synced_date,
			status = excluded.status,
			error = NULL,
			updated_at = excluded.updated_at
	`, userID, endpoint, lastSyncedDate, status, time.Now().Unix())

	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpUpsertSyncProgress).Inc()
		return fmt.Errorf("failed to upsert sync progress: %w", err)
	}
	return nil
}

// AdvanceSyncProgress moves the frontier for a user-endpoint without
// touching its status row otherwise
func (db *DB) AdvanceSyncProgress(userID, endpoint, lastSyncedDate, status string) error {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpAdvanceSyncProgress))
	defer timer.ObserveDuration()

	_, err := db.conn.Exec(`
		UPDATE fitbit_sync_progress
		SET last_synced_date = ?, status = ?, updated_at = ?
		WHERE user_id = ? AND endpoint = ?
	`, lastSyncedDate, status, time.Now().Unix(), userID, endpoint)

	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpAdvanceSyncProgress).Inc()
		return fmt.Errorf("failed to advance sync progress: %w", err)
	}
	return nil
}

// FailSyncProgress marks a user-endpoint as failed and records the error.
// Inserts the row if none exists; an existing frontier date is preserved.
func (db *DB) FailSyncProgress(userID, endpoint, errMsg string) error {
	_, err := db.conn.Exec(`
		INSERT INTO fitbit_sync_progress (user_id, endpoint, last_synced_date, status, error, updated_at)
		VALUES (?, ?, NULL, ?, ?, ?)
		ON CONFLICT(user_id, endpoint) DO UPDATE SET
			status = excluded.status,
			error = excluded.error,
			updated_at = excluded.updated_at
	`, userID, endpoint, ProgressFailed, errMsg, time.Now().Unix())

	if err != nil {
		return fmt.Errorf("failed to mark sync progress failed: %w", err)
	}
	return nil
}

// ListSyncProgress returns all progress rows for a user
func (db *DB) ListSyncProgress(userID string) ([]*SyncProgress, error) {
	rows, err := db.conn.Query(`
		SELECT user_id, endpoint, last_synced_date, status, error, updated_at
		FROM fitbit_sync_progress
		WHERE user_id = ?
		ORDER BY endpoint
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync progress: %w", err)
	}
	defer rows.Close()

	var progress []*SyncProgress
	for rows.Next() {
		var p SyncProgress
		if err := rows.Scan(&p.UserID, &p.Endpoint, &p.LastSyncedDate, &p.Status, &p.Error, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan sync progress: %w", err)
		}
		progress = append(progress, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync progress: %w", err)
	}

	return progress, nil
}

// CountSyncProgressByStatus returns how many progress rows exist per status
// across all users, for the metrics collector
func (db *DB) CountSyncProgressByStatus() (map[string]int, error) {
	rows, err := db.conn.Query(`
		SELECT status, COUNT(*) FROM fitbit_sync_progress GROUP BY status
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to count sync progress: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan sync progress count: %w", err)
		}
		counts[status] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync progress counts: %w", err)
	}

	return counts, nil
}
