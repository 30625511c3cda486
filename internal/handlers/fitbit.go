package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/rannmann/health-lens/internal/fitbit"
	"github.com/rannmann/health-lens/internal/oauth"
	syncsvc "github.com/rannmann/health-lens/internal/sync"
)

// FitbitHandler exposes the sync engine over HTTP
type FitbitHandler struct {
	oauth  *oauth.Manager
	sync   *syncsvc.Service
	logger *slog.Logger
}

// NewFitbitHandler creates the Fitbit HTTP handler
func NewFitbitHandler(oauthManager *oauth.Manager, syncService *syncsvc.Service, logger *slog.Logger) *FitbitHandler {
	return &FitbitHandler{
		oauth:  oauthManager,
		sync:   syncService,
		logger: logger,
	}
}

// HandleAuth redirects the browser to the Fitbit consent page
func (h *FitbitHandler) HandleAuth(w http.ResponseWriter, r *http.Request) {
	authURL, err := h.oauth.GenerateAuthURL()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

// HandleCallback completes the authorization code flow
func (h *FitbitHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	if errParam := r.URL.Query().Get("error"); errParam != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "authorization denied: " + errParam})
		return
	}

	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	if code == "" || state == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing code or state"})
		return
	}

	userID, fitbitUserID, err := h.oauth.HandleCallback(r.Context(), code, state)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"userId":       userID,
		"fitbitUserId": fitbitUserID,
	})
}

// HandleSync runs an incremental sync for a user
func (h *FitbitHandler) HandleSync(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing user id"})
		return
	}

	startDate := r.URL.Query().Get("startDate")
	endDate := r.URL.Query().Get("endDate")

	result, err := h.sync.SyncUser(r.Context(), userID, startDate, endDate)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

type backfillRequest struct {
	StartDate string   `json:"startDate"`
	EndDate   string   `json:"endDate"`
	Endpoints []string `json:"endpoints"`
}

// HandleBackfill starts a historical backfill for a user
func (h *FitbitHandler) HandleBackfill(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing user id"})
		return
	}

	var req backfillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.StartDate == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "startDate is required"})
		return
	}

	var keys []fitbit.EndpointKey
	for _, name := range req.Endpoints {
		keys = append(keys, fitbit.EndpointKey(name))
	}

	if err := h.sync.StartBackfill(userID, req.StartDate, req.EndDate, keys); err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":    "started",
		"startDate": req.StartDate,
	})
}

// HandleBackfillStatus reports per-endpoint progress for a user
func (h *FitbitHandler) HandleBackfillStatus(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing user id"})
		return
	}

	progress, err := h.sync.BackfillStatus(userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	type progressEntry struct {
		Endpoint       string  `json:"endpoint"`
		LastSyncedDate *string `json:"lastSyncedDate"`
		Status         string  `json:"status"`
		Error          *string `json:"error,omitempty"`
		UpdatedAt      int64   `json:"updatedAt"`
	}

	entries := make([]progressEntry, 0, len(progress))
	for _, p := range progress {
		entries = append(entries, progressEntry{
			Endpoint:       p.Endpoint,
			LastSyncedDate: p.LastSyncedDate,
			Status:         p.Status,
			Error:          p.Error,
			UpdatedAt:      p.UpdatedAt,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"running":   h.sync.BackfillRunning(userID),
		"endpoints": entries,
	})
}

// HandleStatus reports whether a user's Fitbit connection is usable
func (h *FitbitHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing userId"})
		return
	}

	status, err := h.sync.Status(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, status)
}

type disconnectRequest struct {
	UserID string `json:"userId"`
}

// HandleDisconnect removes a user's Fitbit connection
func (h *FitbitHandler) HandleDisconnect(w http.ResponseWriter, r *http.Request) {
	var req disconnectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "userId is required"})
		return
	}

	if err := h.sync.Disconnect(req.UserID); err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "disconnected"})
}

// writeError maps domain errors to HTTP status codes
func (h *FitbitHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var status int
	switch {
	case errors.Is(err, syncsvc.ErrUserNotFound):
		status = http.StatusNotFound
	case errors.Is(err, syncsvc.ErrNoConnection), errors.Is(err, syncsvc.ErrNoHistory):
		status = http.StatusBadRequest
	case errors.Is(err, syncsvc.ErrBackfillInProgress):
		status = http.StatusConflict
	case errors.Is(err, fitbit.ErrRateLimited):
		status = http.StatusTooManyRequests
	case fitbit.IsUnauthorized(err), errors.Is(err, syncsvc.ErrRefreshFailed):
		status = http.StatusBadGateway
	default:
		status = http.StatusInternalServerError
	}

	if status >= 500 {
		h.logger.Error("request failed", "path", r.URL.Path, "error", err)
	}

	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
