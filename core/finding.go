package core

import "time"

// Finding is a single indicator raised by a detector.
type Finding struct {
	Detector  string    `json:"detector" yaml:"detector"`
	Channel   string    `json:"channel" yaml:"channel"`
	EventID   string    `json:"event_id" yaml:"event_id"`
	RecordID  uint64    `json:"record_id" yaml:"record_id"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	Message   string    `json:"message" yaml:"message"`
	Results   []string  `json:"results,omitempty" yaml:"results,omitempty"`
	Command   string    `json:"command,omitempty" yaml:"command,omitempty"`
	Decoded   string    `json:"decoded,omitempty" yaml:"decoded,omitempty"`
}

// NewFinding fills the event-derived fields of a Finding.
func NewFinding(detector string, event *Event, message string) Finding {
	return Finding{
		Detector:  detector,
		Channel:   event.System.Channel,
		EventID:   event.System.EventID,
		RecordID:  event.RecordID,
		Timestamp: event.System.TimeCreated,
		Message:   message,
	}
}
