package database

import (
	"testing"
	"time"
)

func TestUpsertAndGetConnection(t *testing.T) {
	db := setupTestDB(t)

	if err := db.CreateUser("user-1"); err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}

	conn := &Connection{
		UserID:       "user-1",
		FitbitUserID: "ABC123",
		AccessToken:  "access_token",
		RefreshToken: "refresh_token",
		ExpiresAt:    time.Now().Unix() + 3600,
		Scope:        "activity heartrate sleep",
	}

	if err := db.UpsertConnection(conn); err != nil {
		t.Fatalf("Failed to upsert connection: %v", err)
	}

	retrieved, err := db.GetConnection("user-1")
	if err != nil {
		t.Fatalf("Failed to get connection: %v", err)
	}
	if retrieved == nil {
		t.Fatal("Expected connection, got nil")
	}
	if retrieved.FitbitUserID != "ABC123" {
		t.Errorf("Expected fitbit_user_id ABC123, got %s", retrieved.FitbitUserID)
	}
	if retrieved.AccessToken != "access_token" {
		t.Errorf("Expected access_token 'access_token', got %s", retrieved.AccessToken)
	}
}

func TestGetNonexistentConnection(t *testing.T) {
	db := setupTestDB(t)

	conn, err := db.GetConnection("nobody")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if conn != nil {
		t.Error("Expected nil connection, got non-nil")
	}
}

func TestUpsertConnectionReplaces(t *testing.T) {
	db := setupTestDB(t)

	if err := db.CreateUser("user-1"); err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}

	first := &Connection{
		UserID:       "user-1",
		FitbitUserID: "OLD",
		AccessToken:  "old_access",
		RefreshToken: "old_refresh",
		ExpiresAt:    time.Now().Unix(),
		Scope:        "activity",
	}
	if err := db.UpsertConnection(first); err != nil {
		t.Fatalf("Failed to upsert first connection: %v", err)
	}

	second := &Connection{
		UserID:       "user-1",
		FitbitUserID: "NEW",
		AccessToken:  "new_access",
		RefreshToken: "new_refresh",
		ExpiresAt:    time.Now().Unix() + 7200,
		Scope:        "activity heartrate",
	}
	if err := db.UpsertConnection(second); err != nil {
		t.Fatalf("Failed to upsert second connection: %v", err)
	}

	retrieved, err := db.GetConnection("user-1")
	if err != nil {
		t.Fatalf("Failed to get connection: %v", err)
	}
	if retrieved.FitbitUserID != "NEW" {
		t.Errorf("Expected replaced fitbit_user_id NEW, got %s", retrieved.FitbitUserID)
	}
	if retrieved.AccessToken != "new_access" {
		t.Errorf("Expected replaced access token, got %s", retrieved.AccessToken)
	}
}

func TestUpdateConnectionTokens(t *testing.T) {
	db := setupTestDB(t)

	if err := db.CreateUser("user-1"); err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}

	conn := &Connection{
		UserID:       "user-1",
		FitbitUserID: "ABC123",
		AccessToken:  "old_access",
		RefreshToken: "old_refresh",
		ExpiresAt:    time.Now().Unix(),
		Scope:        "activity",
	}
	if err := db.UpsertConnection(conn); err != nil {
		t.Fatalf("Failed to upsert connection: %v", err)
	}

	newExpires := time.Now().Unix() + 28800
	if err := db.UpdateConnectionTokens("user-1", "new_access", "new_refresh", newExpires, "activity sleep"); err != nil {
		t.Fatalf("Failed to update tokens: %v", err)
	}

	retrieved, err := db.GetConnection("user-1")
	if err != nil {
		t.Fatalf("Failed to get connection: %v", err)
	}
	if retrieved.AccessToken != "new_access" {
		t.Errorf("Expected access_token 'new_access', got %s", retrieved.AccessToken)
	}
	if retrieved.RefreshToken != "new_refresh" {
		t.Errorf("Expected refresh_token 'new_refresh', got %s", retrieved.RefreshToken)
	}
	if retrieved.ExpiresAt != newExpires {
		t.Errorf("Expected expires_at %d, got %d", newExpires, retrieved.ExpiresAt)
	}
}

func TestUpdateConnectionTokensMissingUser(t *testing.T) {
	db := setupTestDB(t)

	err := db.UpdateConnectionTokens("nobody", "a", "r", time.Now().Unix(), "activity")
	if err == nil {
		t.Error("Expected error updating tokens for missing connection")
	}
}

func TestDeleteConnection(t *testing.T) {
	db := setupTestDB(t)

	if err := db.CreateUser("user-1"); err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}

	conn := &Connection{
		UserID:       "user-1",
		FitbitUserID: "ABC123",
		AccessToken:  "access",
		RefreshToken: "refresh",
		ExpiresAt:    time.Now().Unix() + 3600,
		Scope:        "activity",
	}
	if err := db.UpsertConnection(conn); err != nil {
		t.Fatalf("Failed to upsert connection: %v", err)
	}

	deleted, err := db.DeleteConnection("user-1")
	if err != nil {
		t.Fatalf("Failed to delete connection: %v", err)
	}
	if !deleted {
		t.Error("Expected delete to report true")
	}

	retrieved, err := db.GetConnection("user-1")
	if err != nil {
		t.Fatalf("Failed to get connection: %v", err)
	}
	if retrieved != nil {
		t.Error("Expected connection to be gone")
	}

	deleted, err = db.DeleteConnection("user-1")
	if err != nil {
		t.Fatalf("Failed on second delete: %v", err)
	}
	if deleted {
		t.Error("Expected second delete to report false")
	}
}
