package fitbit

import (
	"encoding/json"
	"testing"
)

func TestNormalizeHeart(t *testing.T) {
	raw := json.RawMessage(`{
		"activities-heart": [
			{"dateTime": "2024-03-01", "value": {"restingHeartRate": 55}},
			{"dateTime": "2024-03-02", "value": {}},
			{"dateTime": "2024-03-03", "value": {"restingHeartRate": 58}}
		]
	}`)

	patches, err := Normalize(EndpointHeart, raw)
	if err != nil {
		t.Fatalf("Failed to normalize heart: %v", err)
	}

	// The day without a resting rate is skipped
	if len(patches) != 2 {
		t.Fatalf("Expected 2 patches, got %d", len(patches))
	}
	if patches[0].Date != "2024-03-01" {
		t.Errorf("Expected date 2024-03-01, got %s", patches[0].Date)
	}
	if patches[0].Patch.RestingHR == nil || *patches[0].Patch.RestingHR != 55 {
		t.Errorf("Expected resting HR 55, got %v", patches[0].Patch.RestingHR)
	}
	if patches[1].Patch.RestingHR == nil || *patches[1].Patch.RestingHR != 58 {
		t.Errorf("Expected resting HR 58, got %v", patches[1].Patch.RestingHR)
	}
}

func TestNormalizeSleepAggregatesSessions(t *testing.T) {
	// Two sessions on the same night: a main sleep and a nap
	raw := json.RawMessage(`{
		"sleep": [
			{
				"dateOfSleep": "2024-03-01",
				"minutesAsleep": 400,
				"minutesAwake": 30,
				"levels": {"summary": {"deep": {"minutes": 80}, "light": {"minutes": 230}, "rem": {"minutes": 90}}}
			},
			{
				"dateOfSleep": "2024-03-01",
				"minutesAsleep": 60,
				"minutesAwake": 5,
				"levels": {"summary": {"deep": {"minutes": 10}, "light": {"minutes": 40}, "rem": {"minutes": 10}}}
			},
			{
				"dateOfSleep": "2024-02-29",
				"minutesAsleep": 420,
				"minutesAwake": 25
			}
		]
	}`)

	patches, err := Normalize(EndpointSleep, raw)
	if err != nil {
		t.Fatalf("Failed to normalize sleep: %v", err)
	}

	if len(patches) != 2 {
		t.Fatalf("Expected 2 patches, got %d", len(patches))
	}

	// Dates come back sorted ascending
	if patches[0].Date != "2024-02-29" || patches[1].Date != "2024-03-01" {
		t.Errorf("Unexpected date order: %s, %s", patches[0].Date, patches[1].Date)
	}

	aggregated := patches[1].Patch
	if aggregated.TotalSleep == nil || *aggregated.TotalSleep != 460 {
		t.Errorf("Expected total sleep 460, got %v", aggregated.TotalSleep)
	}
	if aggregated.WakeMinutes == nil || *aggregated.WakeMinutes != 35 {
		t.Errorf("Expected wake minutes 35, got %v", aggregated.WakeMinutes)
	}
	if aggregated.DeepSleep == nil || *aggregated.DeepSleep != 90 {
		t.Errorf("Expected deep sleep 90, got %v", aggregated.DeepSleep)
	}
	if aggregated.LightSleep == nil || *aggregated.LightSleep != 270 {
		t.Errorf("Expected light sleep 270, got %v", aggregated.LightSleep)
	}
	if aggregated.RemSleep == nil || *aggregated.RemSleep != 100 {
		t.Errorf("Expected REM sleep 100, got %v", aggregated.RemSleep)
	}

	// Session without stage levels still sums minutes
	classic := patches[0].Patch
	if classic.TotalSleep == nil || *classic.TotalSleep != 420 {
		t.Errorf("Expected total sleep 420, got %v", classic.TotalSleep)
	}
	if classic.DeepSleep == nil || *classic.DeepSleep != 0 {
		t.Errorf("Expected deep sleep 0 for classic session, got %v", classic.DeepSleep)
	}
}

func TestNormalizeSteps(t *testing.T) {
	raw := json.RawMessage(`{
		"activities-steps": [
			{"dateTime": "2024-03-01", "value": "10500"},
			{"dateTime": "2024-03-02", "value": "not-a-number"},
			{"dateTime": "2024-03-03", "value": "0"}
		]
	}`)

	patches, err := Normalize(EndpointSteps, raw)
	if err != nil {
		t.Fatalf("Failed to normalize steps: %v", err)
	}

	if len(patches) != 2 {
		t.Fatalf("Expected 2 patches, got %d", len(patches))
	}
	if patches[0].Patch.Steps == nil || *patches[0].Patch.Steps != 10500 {
		t.Errorf("Expected steps 10500, got %v", patches[0].Patch.Steps)
	}
	if patches[1].Patch.Steps == nil || *patches[1].Patch.Steps != 0 {
		t.Errorf("Expected steps 0, got %v", patches[1].Patch.Steps)
	}
}

func TestNormalizeHRV(t *testing.T) {
	raw := json.RawMessage(`{
		"hrv": [
			{"dateTime": "2024-03-01", "value": {"dailyRmssd": 38.2}},
			{"dateTime": "2024-03-02"}
		]
	}`)

	patches, err := Normalize(EndpointHRV, raw)
	if err != nil {
		t.Fatalf("Failed to normalize hrv: %v", err)
	}
	if len(patches) != 1 {
		t.Fatalf("Expected 1 patch, got %d", len(patches))
	}
	if patches[0].Patch.HRVRmssd == nil || *patches[0].Patch.HRVRmssd != 38.2 {
		t.Errorf("Expected rmssd 38.2, got %v", patches[0].Patch.HRVRmssd)
	}
}

func TestNormalizeAZM(t *testing.T) {
	raw := json.RawMessage(`{
		"activities-active-zone-minutes": [
			{"dateTime": "2024-03-01", "value": {"activeZoneMinutes": 45, "fatBurnActiveZoneMinutes": 30, "cardioActiveZoneMinutes": 10, "peakActiveZoneMinutes": 5}},
			{"dateTime": "2024-03-02", "value": {"activeZoneMinutes": 12}}
		]
	}`)

	patches, err := Normalize(EndpointAZM, raw)
	if err != nil {
		t.Fatalf("Failed to normalize azm: %v", err)
	}
	if len(patches) != 2 {
		t.Fatalf("Expected 2 patches, got %d", len(patches))
	}
	if *patches[0].Patch.AZMTotal != 45 || *patches[0].Patch.AZMFatburn != 30 ||
		*patches[0].Patch.AZMCardio != 10 || *patches[0].Patch.AZMPeak != 5 {
		t.Error("Unexpected AZM breakdown on full day")
	}

	// Absent zone fields default to zero
	if *patches[1].Patch.AZMTotal != 12 || *patches[1].Patch.AZMFatburn != 0 {
		t.Error("Expected absent zone minutes to default to 0")
	}
}

func TestNormalizeSpO2BareArray(t *testing.T) {
	raw := json.RawMessage(`[
		{"dateTime": "2024-03-01", "value": {"avg": 96.5}},
		{"dateTime": "2024-03-02", "value": {}}
	]`)

	patches, err := Normalize(EndpointSpO2, raw)
	if err != nil {
		t.Fatalf("Failed to normalize spo2: %v", err)
	}
	if len(patches) != 1 {
		t.Fatalf("Expected 1 patch, got %d", len(patches))
	}
	if patches[0].Patch.SpO2Avg == nil || *patches[0].Patch.SpO2Avg != 96.5 {
		t.Errorf("Expected spo2 avg 96.5, got %v", patches[0].Patch.SpO2Avg)
	}
}

func TestNormalizeTemperature(t *testing.T) {
	raw := json.RawMessage(`{
		"tempSkin": [
			{"dateTime": "2024-03-01", "value": {"nightlyRelative": -0.4}}
		]
	}`)

	patches, err := Normalize(EndpointTemperature, raw)
	if err != nil {
		t.Fatalf("Failed to normalize temperature: %v", err)
	}
	if len(patches) != 1 {
		t.Fatalf("Expected 1 patch, got %d", len(patches))
	}
	if patches[0].Patch.SkinTempDelta == nil || *patches[0].Patch.SkinTempDelta != -0.4 {
		t.Errorf("Expected skin temp delta -0.4, got %v", patches[0].Patch.SkinTempDelta)
	}
}

func TestNormalizeBreathing(t *testing.T) {
	raw := json.RawMessage(`{
		"br": [
			{"dateTime": "2024-03-01", "value": {"breathingRate": 14.8}}
		]
	}`)

	patches, err := Normalize(EndpointBreathing, raw)
	if err != nil {
		t.Fatalf("Failed to normalize breathing: %v", err)
	}
	if len(patches) != 1 {
		t.Fatalf("Expected 1 patch, got %d", len(patches))
	}
	if patches[0].Patch.BreathingRate == nil || *patches[0].Patch.BreathingRate != 14.8 {
		t.Errorf("Expected breathing rate 14.8, got %v", patches[0].Patch.BreathingRate)
	}
}

func TestNormalizeEmptyResponse(t *testing.T) {
	patches, err := Normalize(EndpointHeart, json.RawMessage(`{"activities-heart": []}`))
	if err != nil {
		t.Fatalf("Failed to normalize empty heart: %v", err)
	}
	if len(patches) != 0 {
		t.Errorf("Expected no patches, got %d", len(patches))
	}
}

func TestNormalizeUnknownEndpoint(t *testing.T) {
	_, err := Normalize(EndpointKey("pulse"), json.RawMessage(`{}`))
	if err == nil {
		t.Error("Expected error for unknown endpoint key")
	}
}

func TestNormalizeMalformedJSON(t *testing.T) {
	_, err := Normalize(EndpointSleep, json.RawMessage(`{"sleep": "nope"}`))
	if err == nil {
		t.Error("Expected error for malformed sleep payload")
	}
}
