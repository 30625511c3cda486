package sync

import "errors"

// Sentinel errors surfaced to callers. Handlers map these to HTTP status
// codes; everything else is treated as internal.
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrNoConnection       = errors.New("no fitbit connection for user")
	ErrNoHistory          = errors.New("no synced history, run a backfill first")
	ErrBackfillInProgress = errors.New("backfill already in progress for user")
	ErrRefreshFailed      = errors.New("token refresh failed")
)
