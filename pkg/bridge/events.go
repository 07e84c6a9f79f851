package bridge

import "time"

// EventType classifies bridge lifecycle notifications.
type EventType string

const (
	EventConnected    EventType = "connected"
	EventDisconnected EventType = "disconnected"
	EventTranscript   EventType = "transcript"
	EventToolCall     EventType = "tool_call"
	EventHealthCheck  EventType = "health_check"
	EventError        EventType = "error"
)

// Event is a lifecycle notification emitted on the bridge's Events channel.
type Event struct {
	Type    EventType
	CallID  string
	Text    string // transcript text or error detail
	Tool    string // tool name for EventToolCall
	Healthy bool   // valid for EventHealthCheck
	Final   bool   // set on the terminal EventDisconnected
	At      time.Time
}

// StatusSnapshot is a point-in-time view of a bridge for monitoring.
type StatusSnapshot struct {
	CallID            string    `json:"callId"`
	StreamSid         string    `json:"streamSid,omitempty"`
	State             string    `json:"state"`
	ReconnectAttempts int       `json:"reconnectAttempts"`
	LastHealthy       time.Time `json:"lastHealthy"`
	StartedAt         time.Time `json:"startedAt"`
}
