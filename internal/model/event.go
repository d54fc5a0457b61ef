// internal/model/event.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event
type EventType string

const (
	EventLinkConnected     EventType = "LINK_CONNECTED"
	EventLinkLost          EventType = "LINK_LOST"
	EventLinkDisconnected  EventType = "LINK_DISCONNECTED"
	EventDeviceIdentified  EventType = "DEVICE_IDENTIFIED"
	EventParametersLoaded  EventType = "PARAMETERS_LOADED"
	EventParameterChanged  EventType = "PARAMETER_CHANGED"
	EventParameterInvalid  EventType = "PARAMETER_INVALID"
	EventDefaultsRestored  EventType = "DEFAULTS_RESTORED"
	EventPreferencesStored EventType = "PREFERENCES_STORED"
)

// SessionEvent represents something that happened on the active link
type SessionEvent struct {
	ID        uuid.UUID              `json:"id"`
	EventType EventType              `json:"event_type"`
	SessionID uuid.UUID              `json:"session_id"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Source    string                 `json:"source"`
	Severity  string                 `json:"severity"` // INFO, WARNING, ERROR
}

// NewSessionEvent stamps a new event
func NewSessionEvent(eventType EventType, sessionID uuid.UUID, severity string, data map[string]interface{}) SessionEvent {
	return SessionEvent{
		ID:        uuid.New(),
		EventType: eventType,
		SessionID: sessionID,
		Data:      data,
		Timestamp: time.Now(),
		Source:    "pikoder-service",
		Severity:  severity,
	}
}
