package fitbit

// EndpointKey identifies a Fitbit range endpoint
type EndpointKey string

// Known endpoint keys
const (
	EndpointHeart       EndpointKey = "heart"
	EndpointSleep       EndpointKey = "sleep"
	EndpointSteps       EndpointKey = "steps"
	EndpointHRV         EndpointKey = "hrv"
	EndpointAZM         EndpointKey = "azm"
	EndpointSpO2        EndpointKey = "spo2"
	EndpointTemperature EndpointKey = "temperature"
	EndpointBreathing   EndpointKey = "breathing"
)

// Endpoint describes one Fitbit range endpoint
type Endpoint struct {
	Key  EndpointKey
	Path string

	// MaxWindowDays bounds the date span of a single remote query.
	// Exceeding it is a remote API contract violation; only the backfill
	// chunker enforces it locally.
	MaxWindowDays int

	// Required endpoints abort a sync or backfill run on failure.
	// Optional ones log and continue.
	Required bool
}

// Endpoints lists every range endpoint in processing order
var Endpoints = []Endpoint{
	{Key: EndpointHeart, Path: "activities/heart", MaxWindowDays: 365, Required: true},
	{Key: EndpointSleep, Path: "sleep", MaxWindowDays: 100, Required: true},
	{Key: EndpointSteps, Path: "activities/steps", MaxWindowDays: 1095, Required: true},
	{Key: EndpointHRV, Path: "hrv", MaxWindowDays: 30, Required: true},
	{Key: EndpointAZM, Path: "activities/active-zone-minutes", MaxWindowDays: 1095, Required: true},
	{Key: EndpointSpO2, Path: "spo2", MaxWindowDays: 1095, Required: false},
	{Key: EndpointTemperature, Path: "temp/skin", MaxWindowDays: 30, Required: false},
	{Key: EndpointBreathing, Path: "br", MaxWindowDays: 30, Required: false},
}

// LookupEndpoint returns the endpoint for a key
func LookupEndpoint(key EndpointKey) (Endpoint, bool) {
	for _, ep := range Endpoints {
		if ep.Key == key {
			return ep, true
		}
	}
	return Endpoint{}, false
}

// EndpointKeys returns all registry keys in processing order
func EndpointKeys() []EndpointKey {
	keys := make([]EndpointKey, len(Endpoints))
	for i, ep := range Endpoints {
		keys[i] = ep.Key
	}
	return keys
}
