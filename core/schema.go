package core

import (
	"sort"
	"time"
)

// RawRecord is a single record as produced by a container decoder: an opaque
// identifier plus the record rendered as Windows event XML.
type RawRecord struct {
	RecordID uint64
	Data     string
}

// Provider identifies the component that emitted an event.
type Provider struct {
	Name            string `json:"name" yaml:"name"`
	GUID            string `json:"guid,omitempty" yaml:"guid,omitempty"`
	EventSourceName string `json:"event_source_name,omitempty" yaml:"event_source_name,omitempty"`
}

// Execution holds the process and thread that logged the event.
type Execution struct {
	ProcessID string `json:"process_id,omitempty" yaml:"process_id,omitempty"`
	ThreadID  string `json:"thread_id,omitempty" yaml:"thread_id,omitempty"`
}

// System is the fixed-shape header every Windows event carries.
type System struct {
	Provider      Provider  `json:"provider" yaml:"provider"`
	EventID       string    `json:"event_id" yaml:"event_id"`
	Version       string    `json:"version,omitempty" yaml:"version,omitempty"`
	Level         string    `json:"level,omitempty" yaml:"level,omitempty"`
	Task          string    `json:"task,omitempty" yaml:"task,omitempty"`
	Opcode        string    `json:"opcode,omitempty" yaml:"opcode,omitempty"`
	Keywords      string    `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	TimeCreated   time.Time `json:"time_created" yaml:"time_created"`
	EventRecordID string    `json:"event_record_id,omitempty" yaml:"event_record_id,omitempty"`
	ActivityID    string    `json:"activity_id,omitempty" yaml:"activity_id,omitempty"`
	Execution     Execution `json:"execution" yaml:"execution"`
	Channel       string    `json:"channel" yaml:"channel"`
	Computer      string    `json:"computer,omitempty" yaml:"computer,omitempty"`
	UserID        string    `json:"user_id,omitempty" yaml:"user_id,omitempty"`
}

// UserData is the optional provider-defined block. Name is the element
// directly under <UserData>; Fields maps every leaf element to its text.
type UserData struct {
	Name   string            `json:"name" yaml:"name"`
	Fields map[string]string `json:"fields" yaml:"fields"`
}

// Event is the structured form of a RawRecord. It is never modified after
// parsing; detectors only borrow it while observing.
type Event struct {
	RecordID  uint64            `json:"record_id" yaml:"record_id"`
	System    System            `json:"system" yaml:"system"`
	UserData  *UserData         `json:"user_data,omitempty" yaml:"user_data,omitempty"`
	EventData map[string]string `json:"event_data" yaml:"event_data"`
}

// Channel returns the event's channel name.
func (e *Event) Channel() string {
	return e.System.Channel
}

// EventID returns the event id as written in the record.
func (e *Event) EventID() string {
	return e.System.EventID
}

// Field looks a value up in EventData first and then in UserData.
func (e *Event) Field(name string) (string, bool) {
	if v, ok := e.EventData[name]; ok {
		return v, true
	}
	if e.UserData != nil {
		if v, ok := e.UserData.Fields[name]; ok {
			return v, true
		}
	}
	return "", false
}

// FieldOrEmpty is Field without the presence flag.
func (e *Event) FieldOrEmpty(name string) string {
	v, _ := e.Field(name)
	return v
}

// SortByRecordID orders events by the identifier the decoder assigned.
func SortByRecordID(events []*Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].RecordID < events[j].RecordID
	})
}
