package fitbit

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/rannmann/health-lens/internal/database"
)

// DatedPatch is one day's worth of normalized metrics from an endpoint
// response, ready to merge into the daily summary
type DatedPatch struct {
	Date  string
	Patch database.SummaryPatch
}

// Per-endpoint response shapes. Fitbit wraps most series in a named
// top-level key; spo2 returns a bare array.

type heartResponse struct {
	ActivitiesHeart []struct {
		DateTime string `json:"dateTime"`
		Value    *struct {
			RestingHeartRate *int `json:"restingHeartRate"`
		} `json:"value"`
	} `json:"activities-heart"`
}

type sleepResponse struct {
	Sleep []struct {
		DateOfSleep   string `json:"dateOfSleep"`
		MinutesAsleep int    `json:"minutesAsleep"`
		MinutesAwake  int    `json:"minutesAwake"`
		Levels        *struct {
			Summary *struct {
				Deep  *struct{ Minutes int } `json:"deep"`
				Light *struct{ Minutes int } `json:"light"`
				Rem   *struct{ Minutes int } `json:"rem"`
			} `json:"summary"`
		} `json:"levels"`
	} `json:"sleep"`
}

type stepsResponse struct {
	ActivitiesSteps []struct {
		DateTime string `json:"dateTime"`
		Value    string `json:"value"`
	} `json:"activities-steps"`
}

type hrvResponse struct {
	HRV []struct {
		DateTime string `json:"dateTime"`
		Value    *struct {
			DailyRmssd *float64 `json:"dailyRmssd"`
		} `json:"value"`
	} `json:"hrv"`
}

type azmResponse struct {
	ActivitiesAZM []struct {
		DateTime string `json:"dateTime"`
		Value    *struct {
			ActiveZoneMinutes        int `json:"activeZoneMinutes"`
			FatBurnActiveZoneMinutes int `json:"fatBurnActiveZoneMinutes"`
			CardioActiveZoneMinutes  int `json:"cardioActiveZoneMinutes"`
			PeakActiveZoneMinutes    int `json:"peakActiveZoneMinutes"`
		} `json:"value"`
	} `json:"activities-active-zone-minutes"`
}

type spo2Entry struct {
	DateTime string `json:"dateTime"`
	Value    *struct {
		Avg *float64 `json:"avg"`
	} `json:"value"`
}

type temperatureResponse struct {
	TempSkin []struct {
		DateTime string `json:"dateTime"`
		Value    *struct {
			NightlyRelative *float64 `json:"nightlyRelative"`
		} `json:"value"`
	} `json:"tempSkin"`
}

type breathingResponse struct {
	BR []struct {
		DateTime string `json:"dateTime"`
		Value    *struct {
			BreathingRate *float64 `json:"breathingRate"`
		} `json:"value"`
	} `json:"br"`
}

// Normalize maps one endpoint's raw response to canonical daily patches.
// Entries missing their value object are skipped; partial remote data is
// expected and not an error. Unknown keys are an error so new endpoints
// cannot silently pass through unhandled.
func Normalize(key EndpointKey, raw json.RawMessage) ([]DatedPatch, error) {
	switch key {
	case EndpointHeart:
		return normalizeHeart(raw)
	case EndpointSleep:
		return normalizeSleep(raw)
	case EndpointSteps:
		return normalizeSteps(raw)
	case EndpointHRV:
		return normalizeHRV(raw)
	case EndpointAZM:
		return normalizeAZM(raw)
	case EndpointSpO2:
		return normalizeSpO2(raw)
	case EndpointTemperature:
		return normalizeTemperature(raw)
	case EndpointBreathing:
		return normalizeBreathing(raw)
	default:
		return nil, fmt.Errorf("unknown endpoint key: %s", key)
	}
}

func normalizeHeart(raw json.RawMessage) ([]DatedPatch, error) {
	var resp heartResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse heart response: %w", err)
	}

	var patches []DatedPatch
	for _, day := range resp.ActivitiesHeart {
		if day.Value == nil || day.Value.RestingHeartRate == nil || day.DateTime == "" {
			continue
		}
		patches = append(patches, DatedPatch{
			Date:  day.DateTime,
			Patch: database.SummaryPatch{RestingHR: day.Value.RestingHeartRate},
		})
	}
	return patches, nil
}

// normalizeSleep sums all sessions sharing a calendar date before
// emitting one patch per date. Aggregation must happen here, in a single
// call, so re-applying the same response never double counts.
func normalizeSleep(raw json.RawMessage) ([]DatedPatch, error) {
	var resp sleepResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse sleep response: %w", err)
	}

	type sleepTotals struct {
		total, wake, deep, light, rem int
	}

	byDate := make(map[string]*sleepTotals)
	for _, session := range resp.Sleep {
		if session.DateOfSleep == "" {
			continue
		}
		totals, ok := byDate[session.DateOfSleep]
		if !ok {
			totals = &sleepTotals{}
			byDate[session.DateOfSleep] = totals
		}

		totals.total += session.MinutesAsleep
		totals.wake += session.MinutesAwake
		if session.Levels != nil && session.Levels.Summary != nil {
			if session.Levels.Summary.Deep != nil {
				totals.deep += session.Levels.Summary.Deep.Minutes
			}
			if session.Levels.Summary.Light != nil {
				totals.light += session.Levels.Summary.Light.Minutes
			}
			if session.Levels.Summary.Rem != nil {
				totals.rem += session.Levels.Summary.Rem.Minutes
			}
		}
	}

	dates := make([]string, 0, len(byDate))
	for date := range byDate {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	patches := make([]DatedPatch, 0, len(dates))
	for _, date := range dates {
		totals := byDate[date]
		patches = append(patches, DatedPatch{
			Date: date,
			Patch: database.SummaryPatch{
				TotalSleep:  &totals.total,
				WakeMinutes: &totals.wake,
				DeepSleep:   &totals.deep,
				LightSleep:  &totals.light,
				RemSleep:    &totals.rem,
			},
		})
	}
	return patches, nil
}

func normalizeSteps(raw json.RawMessage) ([]DatedPatch, error) {
	var resp stepsResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse steps response: %w", err)
	}

	var patches []DatedPatch
	for _, day := range resp.ActivitiesSteps {
		if day.DateTime == "" {
			continue
		}
		steps, err := strconv.Atoi(day.Value)
		if err != nil {
			continue
		}
		patches = append(patches, DatedPatch{
			Date:  day.DateTime,
			Patch: database.SummaryPatch{Steps: &steps},
		})
	}
	return patches, nil
}

func normalizeHRV(raw json.RawMessage) ([]DatedPatch, error) {
	var resp hrvResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse hrv response: %w", err)
	}

	var patches []DatedPatch
	for _, day := range resp.HRV {
		if day.Value == nil || day.Value.DailyRmssd == nil || day.DateTime == "" {
			continue
		}
		patches = append(patches, DatedPatch{
			Date:  day.DateTime,
			Patch: database.SummaryPatch{HRVRmssd: day.Value.DailyRmssd},
		})
	}
	return patches, nil
}

func normalizeAZM(raw json.RawMessage) ([]DatedPatch, error) {
	var resp azmResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse azm response: %w", err)
	}

	var patches []DatedPatch
	for _, day := range resp.ActivitiesAZM {
		if day.Value == nil || day.DateTime == "" {
			continue
		}
		total := day.Value.ActiveZoneMinutes
		fatburn := day.Value.FatBurnActiveZoneMinutes
		cardio := day.Value.CardioActiveZoneMinutes
		peak := day.Value.PeakActiveZoneMinutes
		patches = append(patches, DatedPatch{
			Date: day.DateTime,
			Patch: database.SummaryPatch{
				AZMTotal:   &total,
				AZMFatburn: &fatburn,
				AZMCardio:  &cardio,
				AZMPeak:    &peak,
			},
		})
	}
	return patches, nil
}

func normalizeSpO2(raw json.RawMessage) ([]DatedPatch, error) {
	var entries []spo2Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse spo2 response: %w", err)
	}

	var patches []DatedPatch
	for _, day := range entries {
		if day.Value == nil || day.Value.Avg == nil || day.DateTime == "" {
			continue
		}
		patches = append(patches, DatedPatch{
			Date:  day.DateTime,
			Patch: database.SummaryPatch{SpO2Avg: day.Value.Avg},
		})
	}
	return patches, nil
}

func normalizeTemperature(raw json.RawMessage) ([]DatedPatch, error) {
	var resp temperatureResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse temperature response: %w", err)
	}

	var patches []DatedPatch
	for _, day := range resp.TempSkin {
		if day.Value == nil || day.Value.NightlyRelative == nil || day.DateTime == "" {
			continue
		}
		patches = append(patches, DatedPatch{
			Date:  day.DateTime,
			Patch: database.SummaryPatch{SkinTempDelta: day.Value.NightlyRelative},
		})
	}
	return patches, nil
}

func normalizeBreathing(raw json.RawMessage) ([]DatedPatch, error) {
	var resp breathingResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse breathing response: %w", err)
	}

	var patches []DatedPatch
	for _, day := range resp.BR {
		if day.Value == nil || day.Value.BreathingRate == nil || day.DateTime == "" {
			continue
		}
		patches = append(patches, DatedPatch{
			Date:  day.DateTime,
			Patch: database.SummaryPatch{BreathingRate: day.Value.BreathingRate},
		})
	}
	return patches, nil
}
