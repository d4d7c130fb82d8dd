package events

import (
	"encoding/json"
	"time"
)

// Payload is the body of an envelope. Kind names the variant on the wire.
type Payload interface {
	Kind() string
}

// Envelope is the single event type routed by the dispatcher.
type Envelope struct {
	topic   uint32
	Source  string
	Seq     uint64
	Time    time.Time
	Payload Payload
}

// Type returns the topic the envelope is routed on (required by kelindar/event).
func (e Envelope) Type() uint32 { return e.topic }

// Topic returns the topic the envelope was delivered on.
func (e Envelope) Topic() Topic { return Topic(e.topic) }

// Kind returns the payload kind, or an empty string for an empty envelope.
func (e Envelope) Kind() string {
	if e.Payload == nil {
		return ""
	}
	return e.Payload.Kind()
}

type envelopeJSON struct {
	Kind    string    `json:"kind"`
	Source  string    `json:"source"`
	Seq     uint64    `json:"seq"`
	Time    time.Time `json:"timestamp"`
	Payload Payload   `json:"payload,omitempty"`
}

// MarshalJSON renders the envelope with its payload kind.
func (e Envelope) MarshalJSON() ([]byte, error) {
	return json.Marshal(envelopeJSON{
		Kind:    e.Kind(),
		Source:  e.Source,
		Seq:     e.Seq,
		Time:    e.Time,
		Payload: e.Payload,
	})
}

// LogEntry represents a log entry for SSE streaming.
type LogEntry struct {
	Seq        uint64         `json:"seq" example:"42" doc:"Monotonic sequence number for deduplication"`
	Timestamp  string         `json:"timestamp" example:"2025-01-09T10:30:00.123Z" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"api" doc:"Source module"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured log attributes"`
}

// Kind implements Payload.
func (LogEntry) Kind() string { return "log_entry" }
