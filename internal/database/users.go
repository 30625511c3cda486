package database

import (
	"database/sql"
	"fmt"
	"time"
)

// User represents a local user record
type User struct {
	ID        string
	CreatedAt int64
	LastLogin *int64
}

// CreateUser inserts a new user
func (db *DB) CreateUser(id string) error {
	_, err := db.conn.Exec(`INSERT INTO users (id, created_at) VALUES (?, ?)`,
		id, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// UserExists reports whether a user record exists
func (db *DB) UserExists(id string) (bool, error) {
	var found string
	err := db.conn.QueryRow(`SELECT id FROM users WHERE id = ?`, id).Scan(&found)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check user: %w", err)
	}
	return true, nil
}

// TouchLastLogin records the most recent login time for a user
func (db *DB) TouchLastLogin(id string) error {
	result, err := db.conn.Exec(`UPDATE users SET last_login = ? WHERE id = ?`,
		time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("user not found")
	}

	return nil
}
