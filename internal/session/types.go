package session

import "time"

// CreateRequest defines payload for opening a dashboard session. The user
// comes from the signed-in identity, never from the payload.
type CreateRequest struct {
	SpeechSupported bool     `json:"speech_supported"`
	Lat             *float64 `json:"lat,omitempty"`
	Lon             *float64 `json:"lon,omitempty"`
}

// CreateResponse returns created session metadata.
type CreateResponse struct {
	SessionID       string    `json:"session_id"`
	UserID          string    `json:"user_id"`
	UserName        string    `json:"user_name"`
	Status          Status    `json:"status"`
	SpeechSupported bool      `json:"speech_supported"`
	QuickSymptoms   []string  `json:"quick_symptoms"`
	StartedAt       time.Time `json:"started_at"`
	LastActivityAt  time.Time `json:"last_activity_at"`
	InactivityTTLMS int64     `json:"inactivity_ttl_ms"`
}
