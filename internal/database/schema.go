package database

// Schema contains all SQL statements for creating tables and indexes
const Schema = `
-- Users table: local user records, one per connected account
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    created_at INTEGER NOT NULL,
    last_login INTEGER
);

-- Fitbit connections: OAuth credentials, at most one row per user
CREATE TABLE IF NOT EXISTS fitbit_connections (
    user_id TEXT PRIMARY KEY,
    fitbit_user_id TEXT NOT NULL,

    -- OAuth tokens
    access_token TEXT NOT NULL,
    refresh_token TEXT NOT NULL,
    expires_at INTEGER NOT NULL,
    scope TEXT NOT NULL,

    -- Metadata
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,

    FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
);

-- Daily summary: wide sparse row of health metrics, one per user per date
CREATE TABLE IF NOT EXISTS daily_summary (
    user_id TEXT NOT NULL,
    date TEXT NOT NULL,  -- YYYY-MM-DD

    resting_hr INTEGER,
    steps INTEGER,
    hrv_rmssd REAL,
    spo2_avg REAL,
    breathing_rate REAL,
    skin_temp_delta REAL,
    total_sleep INTEGER,
    deep_sleep INTEGER,
    light_sleep INTEGER,
    rem_sleep INTEGER,
    wake_minutes INTEGER,
    azm_total INTEGER,
    azm_fatburn INTEGER,
    azm_cardio INTEGER,
    azm_peak INTEGER,

    PRIMARY KEY (user_id, date),
    FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
);

-- Sync progress: frontier of imported history, one row per user-endpoint
CREATE TABLE IF NOT EXISTS fitbit_sync_progress (
    user_id TEXT NOT NULL,
    endpoint TEXT NOT NULL,
    last_synced_date TEXT,  -- YYYY-MM-DD
    status TEXT NOT NULL DEFAULT 'pending',
    error TEXT,
    updated_at INTEGER NOT NULL,

    PRIMARY KEY (user_id, endpoint),
    FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
);

-- Indexes
CREATE INDEX IF NOT EXISTS idx_daily_summary_date ON daily_summary(date DESC);
CREATE INDEX IF NOT EXISTS idx_sync_progress_status ON fitbit_sync_progress(status);
`
