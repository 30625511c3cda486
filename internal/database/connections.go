package database

import (
	"database/sql"
	"fmt"
	"time"
)

// Connection represents a user's Fitbit OAuth credentials
type Connection struct {
	UserID       string
	FitbitUserID string
	AccessToken  string
	RefreshToken string
	ExpiresAt    int64
	Scope        string
	CreatedAt    int64
	UpdatedAt    int64
}

// UpsertConnection inserts or replaces a user's Fitbit connection.
// The primary key on user_id enforces at most one connection per user.
func (db *DB) UpsertConnection(c *Connection) error {
	now := time.Now().Unix()
	c.CreatedAt = now
	c.UpdatedAt = now

	_, err := db.conn.Exec(`
		INSERT INTO fitbit_connections (
			user_id, fitbit_user_id, access_token, refresh_token,
			expires_at, scope, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			fitbit_user_id = excluded.fitbit_user_id,
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at = excluded.expires_at,
			scope = excluded.scope,
			updated_at = excluded.updated_at
	`, c.UserID, c.FitbitUserID, c.AccessToken, c.RefreshToken,
		c.ExpiresAt, c.Scope, c.CreatedAt, c.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to upsert connection: %w", err)
	}
	return nil
}

// GetConnection retrieves a user's Fitbit connection, or nil if none exists
func (db *DB) GetConnection(userID string) (*Connection, error) {
	var c Connection
	err := db.conn.QueryRow(`
		SELECT user_id, fitbit_user_id, access_token, refresh_token,
		       expires_at, scope, created_at, updated_at
		FROM fitbit_connections WHERE user_id = ?
	`, userID).Scan(
		&c.UserID, &c.FitbitUserID, &c.AccessToken, &c.RefreshToken,
		&c.ExpiresAt, &c.Scope, &c.CreatedAt, &c.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	return &c, nil
}

// UpdateConnectionTokens rotates a connection's OAuth tokens in place
func (db *DB) UpdateConnectionTokens(userID, accessToken, refreshToken string, expiresAt int64, scope string) error {
	result, err := db.conn.Exec(`
		UPDATE fitbit_connections
		SET access_token = ?, refresh_token = ?, expires_at = ?, scope = ?, updated_at = ?
		WHERE user_id = ?
	`, accessToken, refreshToken, expiresAt, scope, time.Now().Unix(), userID)

	if err != nil {
		return fmt.Errorf("failed to update connection tokens: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("connection not found")
	}

	return nil
}

// DeleteConnection removes a user's Fitbit connection.
// Returns false if no connection existed.
func (db *DB) DeleteConnection(userID string) (bool, error) {
	result, err := db.conn.Exec(`DELETE FROM fitbit_connections WHERE user_id = ?`, userID)
	if err != nil {
		return false, fmt.Errorf("failed to delete connection: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows > 0, nil
}
