package domain

import "time"

type ErrorBody struct {
	Kind        ErrorKind `json:"kind"`
	Stage       StageName `json:"stage,omitempty"`
	Rule        string    `json:"rule,omitempty"`
	Message     string    `json:"message"`
	Hint        string    `json:"hint,omitempty"`
	Identifiers []string  `json:"identifiers,omitempty"`
}

// ResponseEnvelope is the single response shape for every query, success or
// failure.
type ResponseEnvelope struct {
	RequestID string             `json:"request_id"`
	SessionID string             `json:"session_id"`
	Query     string             `json:"query"`
	Success   bool               `json:"success"`
	Domain    DomainIntent       `json:"domain,omitempty"`
	Intent    *CanonicalIntent   `json:"intent,omitempty"`
	Count     int                `json:"count"`
	Result    Payload            `json:"result,omitempty"`
	Map       *FeatureCollection `json:"map,omitempty"`
	Summary   string             `json:"summary,omitempty"`
	Message   string             `json:"message"`
	Error     *ErrorBody         `json:"error,omitempty"`
	Stages    []StageName        `json:"stages"`
	Timestamp time.Time          `json:"timestamp"`
}

// GeoJSON

type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

type Feature struct {
	Type       string         `json:"type"`
	Geometry   Geometry       `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

type Geometry struct {
	Type        string `json:"type"`
	Coordinates any    `json:"coordinates"`
}
