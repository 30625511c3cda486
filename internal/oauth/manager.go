package oauth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rannmann/health-lens/internal/config"
	"github.com/rannmann/health-lens/internal/database"
	"github.com/rannmann/health-lens/internal/fitbit"
)

const (
	authorizeURL = "https://www.fitbit.com/oauth2/authorize"

	// Scopes covering every endpoint the sync engine pulls
	scopes = "activity heartrate oxygen_saturation respiratory_rate sleep temperature"

	stateTTL = 10 * time.Minute
)

// Manager runs the Fitbit authorization code flow. States are held in
// memory; a restart mid-flow just means the user clicks connect again.
type Manager struct {
	cfg    *config.Config
	db     *database.DB
	client *fitbit.Client
	logger *slog.Logger

	mu     sync.Mutex
	states map[string]time.Time
}

// NewManager creates an OAuth manager
func NewManager(cfg *config.Config, db *database.DB, client *fitbit.Client, logger *slog.Logger) *Manager {
	return &Manager{
		cfg:    cfg,
		db:     db,
		client: client,
		logger: logger,
		states: make(map[string]time.Time),
	}
}

// GenerateAuthURL returns the Fitbit consent URL with a fresh state token
func (m *Manager) GenerateAuthURL() (string, error) {
	state, err := randomState()
	if err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}

	m.mu.Lock()
	m.states[state] = time.Now().Add(stateTTL)
	m.mu.Unlock()

	params := url.Values{
		"response_type": {"code"},
		"client_id":     {m.cfg.FitbitClientID},
		"redirect_uri":  {m.cfg.FitbitRedirectURI},
		"scope":         {scopes},
		"state":         {state},
	}

	return authorizeURL + "?" + params.Encode(), nil
}

// HandleCallback validates the state, exchanges the code, creates a user
// record and stores the connection. Returns the new user ID and the
// Fitbit-side user ID.
func (m *Manager) HandleCallback(ctx context.Context, code, state string) (string, string, error) {
	if !m.consumeState(state) {
		return "", "", fmt.Errorf("invalid or expired state")
	}

	tokens, err := m.client.ExchangeCode(ctx, code)
	if err != nil {
		return "", "", fmt.Errorf("code exchange failed: %w", err)
	}

	userID := uuid.NewString()
	if err := m.db.CreateUser(userID); err != nil {
		return "", "", err
	}

	conn := &database.Connection{
		UserID:       userID,
		FitbitUserID: tokens.UserID,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(tokens.ExpiresIn) * time.Second).Unix(),
		Scope:        tokens.Scope,
	}
	if err := m.db.UpsertConnection(conn); err != nil {
		return "", "", err
	}

	m.logger.Info("fitbit connection established",
		"user_id", userID,
		"fitbit_user_id", tokens.UserID,
		"scope", tokens.Scope)

	return userID, tokens.UserID, nil
}

// consumeState checks and removes a state token, sweeping expired ones
func (m *Manager) consumeState(state string) bool {
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	for s, expiry := range m.states {
		if now.After(expiry) {
			delete(m.states, s)
		}
	}

	expiry, ok := m.states[state]
	if !ok || now.After(expiry) {
		return false
	}
	delete(m.states, state)
	return true
}

func randomState() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
