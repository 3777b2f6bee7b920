// internal/model/event.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event
type EventType string

const (
	EventStateChanged     EventType = "STATE_CHANGED"
	EventReconnectAttempt EventType = "RECONNECT_ATTEMPT"
	EventPrintCompleted   EventType = "PRINT_COMPLETED"
	EventPrintFailed      EventType = "PRINT_FAILED"
	EventDrawerOpened     EventType = "DRAWER_OPENED"
	EventHealthUpdate     EventType = "HEALTH_UPDATE"
)

// StateEvent is published by the connection manager on every transition
type StateEvent struct {
	ID        uuid.UUID       `json:"id"`
	Type      EventType       `json:"type"`
	From      ConnectionState `json:"from"`
	To        ConnectionState `json:"to"`
	Device    *PrinterDevice  `json:"device,omitempty"`
	Attempt   int             `json:"attempt,omitempty"`
	Error     *ErrorInfo      `json:"error,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewStateEvent creates a state event stamped with a fresh id
func NewStateEvent(eventType EventType, from, to ConnectionState, at time.Time) StateEvent {
	return StateEvent{
		ID:        uuid.New(),
		Type:      eventType,
		From:      from,
		To:        to,
		Timestamp: at,
	}
}

// ServiceEvent is what the websocket hub fans out to UI subscribers
type ServiceEvent struct {
	ID        uuid.UUID  `json:"id"`
	Type      EventType  `json:"type"`
	Data      JSONObject `json:"data"`
	Timestamp time.Time  `json:"timestamp"`
	Source    string     `json:"source"`
	Severity  string     `json:"severity"` // INFO, WARNING, ERROR
}

// PrintEventData is attached to print completion events
type PrintEventData struct {
	JobID      uuid.UUID `json:"job_id"`
	OrderID    string    `json:"order_id"`
	Bytes      int       `json:"bytes"`
	Chunks     int       `json:"chunks"`
	DurationMs int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
}
