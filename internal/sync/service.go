package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rannmann/health-lens/internal/config"
	"github.com/rannmann/health-lens/internal/database"
	"github.com/rannmann/health-lens/internal/fitbit"
	"github.com/rannmann/health-lens/internal/metrics"
)

const (
	// Tokens within this buffer of expiry are refreshed before use
	tokenExpiryBuffer = 5 * time.Minute

	dateLayout = "2006-01-02"
)

// Service orchestrates incremental syncs and historical backfills. One
// instance serves all users; backfill locks and rate limit state live on
// the instance, not in package globals.
type Service struct {
	db     *database.DB
	client *fitbit.Client
	cfg    *config.Config
	logger *slog.Logger

	mu        sync.Mutex
	backfills map[string]bool
}

// NewService creates a sync service
func NewService(db *database.DB, client *fitbit.Client, cfg *config.Config, logger *slog.Logger) *Service {
	return &Service{
		db:        db,
		client:    client,
		cfg:       cfg,
		logger:    logger,
		backfills: make(map[string]bool),
	}
}

// GetValidAccessToken returns a usable access token for the user,
// refreshing first when the stored token is expired or within the expiry
// buffer. On refresh failure the stored connection is left untouched so a
// later attempt can retry with the same refresh token.
func (s *Service) GetValidAccessToken(ctx context.Context, userID string) (*database.Connection, error) {
	exists, err := s.db.UserExists(userID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrUserNotFound
	}

	conn, err := s.db.GetConnection(userID)
	if err != nil {
		return nil, err
	}
	if conn == nil {
		return nil, ErrNoConnection
	}

	expiresAt := time.Unix(conn.ExpiresAt, 0)
	if time.Until(expiresAt) > tokenExpiryBuffer {
		return conn, nil
	}

	s.logger.Info("refreshing access token", "user_id", userID, "expires_at", expiresAt)

	tokens, err := s.client.RefreshToken(ctx, conn.RefreshToken)
	if err != nil {
		metrics.TokenRefreshesTotal.WithLabelValues(metrics.ResultFailure).Inc()
		return nil, fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}

	newExpiresAt := time.Now().Add(time.Duration(tokens.ExpiresIn) * time.Second).Unix()
	if err := s.db.UpdateConnectionTokens(userID, tokens.AccessToken, tokens.RefreshToken, newExpiresAt, tokens.Scope); err != nil {
		return nil, err
	}
	metrics.TokenRefreshesTotal.WithLabelValues(metrics.ResultSuccess).Inc()

	conn.AccessToken = tokens.AccessToken
	conn.RefreshToken = tokens.RefreshToken
	conn.ExpiresAt = newExpiresAt
	conn.Scope = tokens.Scope
	return conn, nil
}

// SyncResult reports what an incremental sync covered
type SyncResult struct {
	StartDate          string `json:"startDate"`
	EndDate            string `json:"endDate"`
	EndpointsAttempted int    `json:"endpointsAttempted"`
	UpToDate           bool   `json:"upToDate"`
}

// SyncUser pulls every endpoint forward from the last stored summary date
// to endDate. When startDate is empty it resumes from the newest
// daily_summary row; a user with no rows at all must backfill first.
func (s *Service) SyncUser(ctx context.Context, userID, startDate, endDate string) (*SyncResult, error) {
	conn, err := s.GetValidAccessToken(ctx, userID)
	if err != nil {
		metrics.SyncRunsTotal.WithLabelValues(metrics.ResultFailure).Inc()
		return nil, err
	}

	if endDate == "" {
		endDate = time.Now().Format(dateLayout)
	}
	if startDate == "" {
		latest, err := s.db.LatestSummaryDate(userID)
		if err != nil {
			metrics.SyncRunsTotal.WithLabelValues(metrics.ResultFailure).Inc()
			return nil, err
		}
		if latest == "" {
			metrics.SyncRunsTotal.WithLabelValues(metrics.ResultFailure).Inc()
			return nil, ErrNoHistory
		}
		startDate = latest
	}

	start, err := time.Parse(dateLayout, startDate)
	if err != nil {
		metrics.SyncRunsTotal.WithLabelValues(metrics.ResultFailure).Inc()
		return nil, fmt.Errorf("invalid start date %q: %w", startDate, err)
	}
	end, err := time.Parse(dateLayout, endDate)
	if err != nil {
		metrics.SyncRunsTotal.WithLabelValues(metrics.ResultFailure).Inc()
		return nil, fmt.Errorf("invalid end date %q: %w", endDate, err)
	}

	result := &SyncResult{StartDate: startDate, EndDate: endDate}
	if start.After(end) {
		result.UpToDate = true
		metrics.SyncRunsTotal.WithLabelValues(metrics.ResultSuccess).Inc()
		return result, nil
	}

	s.logger.Info("starting sync", "user_id", userID, "start_date", startDate, "end_date", endDate)

	for _, ep := range fitbit.Endpoints {
		result.EndpointsAttempted++

		if err := s.syncEndpoint(ctx, userID, conn, ep, startDate, endDate); err != nil {
			s.logger.Error("endpoint sync failed",
				"user_id", userID,
				"endpoint", string(ep.Key),
				"required", ep.Required,
				"error", err)

			if dbErr := s.db.FailSyncProgress(userID, string(ep.Key), err.Error()); dbErr != nil {
				s.logger.Error("failed to record sync failure", "user_id", userID, "endpoint", string(ep.Key), "error", dbErr)
			}

			if ep.Required {
				metrics.SyncRunsTotal.WithLabelValues(metrics.ResultFailure).Inc()
				return nil, fmt.Errorf("sync of %s failed: %w", ep.Key, err)
			}
			continue
		}

		if err := s.db.UpsertSyncProgress(userID, string(ep.Key), &endDate, database.ProgressCompleted); err != nil {
			s.logger.Error("failed to record sync progress", "user_id", userID, "endpoint", string(ep.Key), "error", err)
		}
	}

	metrics.SyncRunsTotal.WithLabelValues(metrics.ResultSuccess).Inc()
	return result, nil
}

// syncEndpoint fetches one endpoint for a range and applies the
// normalized patches
func (s *Service) syncEndpoint(ctx context.Context, userID string, conn *database.Connection, ep fitbit.Endpoint, startDate, endDate string) error {
	raw, err := s.client.FetchRange(ctx, userID, conn.FitbitUserID, conn.AccessToken, ep, startDate, endDate)
	if err != nil {
		return err
	}

	patches, err := fitbit.Normalize(ep.Key, raw)
	if err != nil {
		return err
	}

	for _, p := range patches {
		if p.Patch.IsEmpty() {
			continue
		}
		if err := s.db.ApplySummaryPatch(userID, p.Date, p.Patch); err != nil {
			return err
		}
	}

	return nil
}

// StartBackfill launches a historical import walking backward from
// endDate to startDate. Only one backfill per user may run at a time;
// the call returns as soon as the run is accepted.
func (s *Service) StartBackfill(userID, startDate, endDate string, endpointKeys []fitbit.EndpointKey) error {
	if startDate == "" {
		return fmt.Errorf("start date is required")
	}
	if _, err := time.Parse(dateLayout, startDate); err != nil {
		return fmt.Errorf("invalid start date %q: %w", startDate, err)
	}
	if endDate == "" {
		endDate = time.Now().AddDate(0, 0, -1).Format(dateLayout)
	}
	end, err := time.Parse(dateLayout, endDate)
	if err != nil {
		return fmt.Errorf("invalid end date %q: %w", endDate, err)
	}
	start, _ := time.Parse(dateLayout, startDate)
	if start.After(end) {
		return fmt.Errorf("start date %s is after end date %s", startDate, endDate)
	}

	endpoints := fitbit.Endpoints
	if len(endpointKeys) > 0 {
		endpoints = nil
		for _, key := range endpointKeys {
			ep, ok := fitbit.LookupEndpoint(key)
			if !ok {
				return fmt.Errorf("unknown endpoint: %s", key)
			}
			endpoints = append(endpoints, ep)
		}
	}

	s.mu.Lock()
	if s.backfills[userID] {
		s.mu.Unlock()
		return ErrBackfillInProgress
	}
	s.backfills[userID] = true
	s.mu.Unlock()

	metrics.BackfillsActive.Inc()

	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.backfills, userID)
			s.mu.Unlock()
			metrics.BackfillsActive.Dec()
		}()
		s.runBackfill(userID, startDate, endDate, endpoints)
	}()

	return nil
}

// BackfillRunning reports whether a backfill is active for the user
func (s *Service) BackfillRunning(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backfills[userID]
}

// runBackfill is the body of a backfill goroutine. It outlives the HTTP
// request that started it, so it carries its own context.
func (s *Service) runBackfill(userID, startDate, endDate string, endpoints []fitbit.Endpoint) {
	ctx := context.Background()

	s.logger.Info("starting backfill",
		"user_id", userID,
		"start_date", startDate,
		"end_date", endDate,
		"endpoints", len(endpoints))

	conn, err := s.GetValidAccessToken(ctx, userID)
	if err != nil {
		s.logger.Error("backfill aborted, no valid token", "user_id", userID, "error", err)
		metrics.BackfillRunsTotal.WithLabelValues(metrics.ResultFailure).Inc()
		return
	}

	for _, ep := range endpoints {
		if err := s.db.UpsertSyncProgress(userID, string(ep.Key), &startDate, database.ProgressInProgress); err != nil {
			s.logger.Error("failed to record backfill start", "user_id", userID, "endpoint", string(ep.Key), "error", err)
		}

		lastReached, err := s.backfillEndpoint(ctx, userID, conn, ep, startDate, endDate)
		if err != nil {
			s.logger.Error("backfill endpoint failed",
				"user_id", userID,
				"endpoint", string(ep.Key),
				"required", ep.Required,
				"error", err)

			if dbErr := s.db.FailSyncProgress(userID, string(ep.Key), err.Error()); dbErr != nil {
				s.logger.Error("failed to record backfill failure", "user_id", userID, "endpoint", string(ep.Key), "error", dbErr)
			}

			if ep.Required {
				metrics.BackfillRunsTotal.WithLabelValues(metrics.ResultFailure).Inc()
				return
			}
			continue
		}

		if err := s.db.AdvanceSyncProgress(userID, string(ep.Key), lastReached, database.ProgressCompleted); err != nil {
			s.logger.Error("failed to record backfill completion", "user_id", userID, "endpoint", string(ep.Key), "error", err)
		}
	}

	metrics.BackfillRunsTotal.WithLabelValues(metrics.ResultSuccess).Inc()
	s.logger.Info("backfill complete", "user_id", userID, "start_date", startDate, "end_date", endDate)
}

// backfillEndpoint walks one endpoint backward from endDate toward
// startDate in windows no wider than the endpoint allows. After each
// chunk the progress frontier advances to the chunk's start edge, so a
// crashed run resumes without gaps. An empty chunk before the cutoff
// date ends the walk early; devices do not report before their owner
// started wearing them.
func (s *Service) backfillEndpoint(ctx context.Context, userID string, conn *database.Connection, ep fitbit.Endpoint, startDate, endDate string) (string, error) {
	start, err := time.Parse(dateLayout, startDate)
	if err != nil {
		return "", fmt.Errorf("invalid start date %q: %w", startDate, err)
	}
	currentEnd, err := time.Parse(dateLayout, endDate)
	if err != nil {
		return "", fmt.Errorf("invalid end date %q: %w", endDate, err)
	}

	lastReached := endDate

	for !currentEnd.Before(start) {
		chunkStart := currentEnd.AddDate(0, 0, -(ep.MaxWindowDays - 1))
		if chunkStart.Before(start) {
			chunkStart = start
		}

		chunkStartStr := chunkStart.Format(dateLayout)
		chunkEndStr := currentEnd.Format(dateLayout)

		raw, err := s.client.FetchRange(ctx, userID, conn.FitbitUserID, conn.AccessToken, ep, chunkStartStr, chunkEndStr)
		if err != nil {
			if errors.Is(err, fitbit.ErrRateLimited) {
				// Retries inside the client were exhausted but the quota
				// will reset. Try the same chunk again rather than losing
				// the walk position.
				metrics.BackfillChunksTotal.WithLabelValues(string(ep.Key), metrics.ResultFailure).Inc()
				s.logger.Warn("rate limited during backfill, retrying chunk",
					"user_id", userID,
					"endpoint", string(ep.Key),
					"chunk_start", chunkStartStr,
					"chunk_end", chunkEndStr)
				continue
			}
			metrics.BackfillChunksTotal.WithLabelValues(string(ep.Key), metrics.ResultFailure).Inc()
			return lastReached, err
		}

		patches, err := fitbit.Normalize(ep.Key, raw)
		if err != nil {
			metrics.BackfillChunksTotal.WithLabelValues(string(ep.Key), metrics.ResultFailure).Inc()
			return lastReached, err
		}

		for _, p := range patches {
			if p.Patch.IsEmpty() {
				continue
			}
			if err := s.db.ApplySummaryPatch(userID, p.Date, p.Patch); err != nil {
				metrics.BackfillChunksTotal.WithLabelValues(string(ep.Key), metrics.ResultFailure).Inc()
				return lastReached, err
			}
		}

		metrics.BackfillChunksTotal.WithLabelValues(string(ep.Key), metrics.ResultSuccess).Inc()

		lastReached = chunkStartStr
		if err := s.db.AdvanceSyncProgress(userID, string(ep.Key), lastReached, database.ProgressInProgress); err != nil {
			s.logger.Error("failed to advance backfill progress", "user_id", userID, "endpoint", string(ep.Key), "error", err)
		}

		s.logger.Info("backfill chunk done",
			"user_id", userID,
			"endpoint", string(ep.Key),
			"chunk_start", chunkStartStr,
			"chunk_end", chunkEndStr,
			"patches", len(patches))

		if len(patches) == 0 && chunkStart.Before(s.cfg.BackfillCutoffDate) {
			s.logger.Info("no data before cutoff, stopping endpoint early",
				"user_id", userID,
				"endpoint", string(ep.Key),
				"chunk_start", chunkStartStr)
			break
		}

		currentEnd = chunkStart.AddDate(0, 0, -1)
	}

	return lastReached, nil
}

// BackfillStatus returns the stored progress rows for a user
func (s *Service) BackfillStatus(userID string) ([]*database.SyncProgress, error) {
	exists, err := s.db.UserExists(userID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrUserNotFound
	}
	return s.db.ListSyncProgress(userID)
}

// ConnectionStatus describes whether a user has a usable Fitbit link
type ConnectionStatus struct {
	Connected    bool   `json:"connected"`
	FitbitUserID string `json:"fitbitUserId,omitempty"`
	LastSync     int64  `json:"lastSync,omitempty"`
}

// Status reports whether the user's connection is currently usable. An
// expired token triggers a refresh attempt; a connection whose refresh
// fails is reported as disconnected rather than an error.
func (s *Service) Status(ctx context.Context, userID string) (*ConnectionStatus, error) {
	conn, err := s.db.GetConnection(userID)
	if err != nil {
		return nil, err
	}
	if conn == nil {
		return &ConnectionStatus{Connected: false}, nil
	}

	if time.Until(time.Unix(conn.ExpiresAt, 0)) <= tokenExpiryBuffer {
		refreshed, err := s.GetValidAccessToken(ctx, userID)
		if err != nil {
			s.logger.Warn("connection unusable, refresh failed", "user_id", userID, "error", err)
			return &ConnectionStatus{Connected: false}, nil
		}
		conn = refreshed
	}

	return &ConnectionStatus{
		Connected:    true,
		FitbitUserID: conn.FitbitUserID,
		LastSync:     conn.UpdatedAt,
	}, nil
}

// Disconnect removes the user's Fitbit connection. Stored summaries and
// progress rows are kept.
func (s *Service) Disconnect(userID string) error {
	deleted, err := s.db.DeleteConnection(userID)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrNoConnection
	}
	s.logger.Info("fitbit connection removed", "user_id", userID)
	return nil
}
