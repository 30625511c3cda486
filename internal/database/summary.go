package database

import (
	"database/sql"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rannmann/health-lens/internal/metrics"
)

// SummaryPatch is a sparse update to one user-date row of daily_summary.
// Nil fields are left untouched by ApplySummaryPatch.
type SummaryPatch struct {
	RestingHR     *int
	Steps         *int
	HRVRmssd      *float64
	SpO2Avg       *float64
	BreathingRate *float64
	SkinTempDelta *float64
	TotalSleep    *int
	DeepSleep     *int
	LightSleep    *int
	RemSleep      *int
	WakeMinutes   *int
	AZMTotal      *int
	AZMFatburn    *int
	AZMCardio     *int
	AZMPeak       *int
}

// Merge overlays the non-nil fields of other onto a copy of p
func (p SummaryPatch) Merge(other SummaryPatch) SummaryPatch {
	if other.RestingHR != nil {
		p.RestingHR = other.RestingHR
	}
	if other.Steps != nil {
		p.Steps = other.Steps
	}
	if other.HRVRmssd != nil {
		p.HRVRmssd = other.HRVRmssd
	}
	if other.SpO2Avg != nil {
		p.SpO2Avg = other.SpO2Avg
	}
	if other.BreathingRate != nil {
		p.BreathingRate = other.BreathingRate
	}
	if other.SkinTempDelta != nil {
		p.SkinTempDelta = other.SkinTempDelta
	}
	if other.TotalSleep != nil {
		p.TotalSleep = other.TotalSleep
	}
	if other.DeepSleep != nil {
		p.DeepSleep = other.DeepSleep
	}
	if other.LightSleep != nil {
		p.LightSleep = other.LightSleep
	}
	if other.RemSleep != nil {
		p.RemSleep = other.RemSleep
	}
	if other.WakeMinutes != nil {
		p.WakeMinutes = other.WakeMinutes
	}
	if other.AZMTotal != nil {
		p.AZMTotal = other.AZMTotal
	}
	if other.AZMFatburn != nil {
		p.AZMFatburn = other.AZMFatburn
	}
	if other.AZMCardio != nil {
		p.AZMCardio = other.AZMCardio
	}
	if other.AZMPeak != nil {
		p.AZMPeak = other.AZMPeak
	}
	return p
}

// IsEmpty reports whether the patch carries no fields
func (p SummaryPatch) IsEmpty() bool {
	return p == SummaryPatch{}
}

// DailySummary is the full daily_summary row as stored
type DailySummary struct {
	UserID string
	Date   string
	SummaryPatch
}

// ApplySummaryPatch merges a sparse patch into the user's row for a date.
// Columns absent from the patch keep their previously stored values; the
// statement is a column-wise merge, never a row replace.
func (db *DB) ApplySummaryPatch(userID, date string, patch SummaryPatch) error {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpApplySummaryPatch))
	defer timer.ObserveDuration()

	_, err := db.conn.Exec(`
		INSERT INTO daily_summary (
			user_id, date,
			resting_hr, steps, hrv_rmssd, spo2_avg, breathing_rate, skin_temp_delta,
			total_sleep, deep_sleep, light_sleep, rem_sleep, wake_minutes,
			azm_total, azm_fatburn, azm_cardio, azm_peak
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, date) DO UPDATE SET
			resting_hr = COALESCE(excluded.resting_hr, daily_summary.resting_hr),
			steps = COALESCE(excluded.steps, daily_summary.steps),
			hrv_rmssd = COALESCE(excluded.hrv_rmssd, daily_summary.hrv_rmssd),
			spo2_avg = COALESCE(excluded.spo2_avg, daily_summary.spo2_avg),
			breathing_rate = COALESCE(excluded.breathing_rate, daily_summary.breathing_rate),
			skin_temp_delta = COALESCE(excluded.skin_temp_delta, daily_summary.skin_temp_delta),
			total_sleep = COALESCE(excluded.total_sleep, daily_summary.total_sleep),
			deep_sleep = COALESCE(excluded.deep_sleep, daily_summary.deep_sleep),
			light_sleep = COALESCE(excluded.light_sleep, daily_summary.light_sleep),
			rem_sleep = COALESCE(excluded.rem_sleep, daily_summary.rem_sleep),
			wake_minutes = COALESCE(excluded.wake_minutes, daily_summary.wake_minutes),
			azm_total = COALESCE(excluded.azm_total, daily_summary.azm_total),
			azm_fatburn = COALESCE(excluded.azm_fatburn, daily_summary.azm_fatburn),
			azm_cardio = COALESCE(excluded.azm_cardio, daily_summary.azm_cardio),
			azm_peak = COALESCE(excluded.azm_peak, daily_summary.azm_peak)
	`, userID, date,
		patch.RestingHR, patch.Steps, patch.HRVRmssd, patch.SpO2Avg,
		patch.BreathingRate, patch.SkinTempDelta,
		patch.TotalSleep, patch.DeepSleep, patch.LightSleep, patch.RemSleep,
		patch.WakeMinutes,
		patch.AZMTotal, patch.AZMFatburn, patch.AZMCardio, patch.AZMPeak)

	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpApplySummaryPatch).Inc()
		return fmt.Errorf("failed to apply summary patch: %w", err)
	}

	metrics.SummaryPatchesAppliedTotal.Inc()
	return nil
}

// GetDailySummary retrieves a single user-date row, or nil if none exists
func (db *DB) GetDailySummary(userID, date string) (*DailySummary, error) {
	var s DailySummary
	err := db.conn.QueryRow(`
		SELECT user_id, date,
		       resting_hr, steps, hrv_rmssd, spo2_avg, breathing_rate, skin_temp_delta,
		       total_sleep, deep_sleep, light_sleep, rem_sleep, wake_minutes,
		       azm_total, azm_fatburn, azm_cardio, azm_peak
		FROM daily_summary WHERE user_id = ? AND date = ?
	`, userID, date).Scan(
		&s.UserID, &s.Date,
		&s.RestingHR, &s.Steps, &s.HRVRmssd, &s.SpO2Avg,
		&s.BreathingRate, &s.SkinTempDelta,
		&s.TotalSleep, &s.DeepSleep, &s.LightSleep, &s.RemSleep,
		&s.WakeMinutes,
		&s.AZMTotal, &s.AZMFatburn, &s.AZMCardio, &s.AZMPeak,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get daily summary: %w", err)
	}
	return &s, nil
}

// LatestSummaryDate returns the most recent daily_summary date for a user,
// or empty string if the user has no rows
func (db *DB) LatestSummaryDate(userID string) (string, error) {
	var date sql.NullString
	err := db.conn.QueryRow(`
		SELECT MAX(date) FROM daily_summary WHERE user_id = ?
	`, userID).Scan(&date)
	if err != nil {
		return "", fmt.Errorf("failed to get latest summary date: %w", err)
	}
	if !date.Valid {
		return "", nil
	}
	return date.String, nil
}

// CountSummaries returns the number of daily_summary rows for a user
func (db *DB) CountSummaries(userID string) (int, error) {
	var count int
	err := db.conn.QueryRow(`
		SELECT COUNT(*) FROM daily_summary WHERE user_id = ?
	`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count summaries: %w", err)
	}
	return count, nil
}
