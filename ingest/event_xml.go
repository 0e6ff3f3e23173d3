package ingest

import (
	"encoding/xml"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"evtriage/core"
)

// ParseError reports a record whose payload is not a usable event.
type ParseError struct {
	RecordID uint64
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("record %d: %v", e.RecordID, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

var (
	errMissingSystem  = errors.New("event has no System block")
	errMissingEventID = errors.New("event has no EventID")
)

type xmlEvent struct {
	XMLName   xml.Name      `xml:"Event"`
	System    *xmlSystem    `xml:"System"`
	EventData *xmlEventData `xml:"EventData"`
	UserData  *xmlNode      `xml:"UserData"`
}

type xmlSystem struct {
	Provider struct {
		Name            string `xml:"Name,attr"`
		GUID            string `xml:"Guid,attr"`
		EventSourceName string `xml:"EventSourceName,attr"`
	} `xml:"Provider"`
	EventID     string `xml:"EventID"`
	Version     string `xml:"Version"`
	Level       string `xml:"Level"`
	Task        string `xml:"Task"`
	Opcode      string `xml:"Opcode"`
	Keywords    string `xml:"Keywords"`
	TimeCreated struct {
		SystemTime string `xml:"SystemTime,attr"`
	} `xml:"TimeCreated"`
	EventRecordID string `xml:"EventRecordID"`
	Correlation   struct {
		ActivityID string `xml:"ActivityID,attr"`
	} `xml:"Correlation"`
	Execution struct {
		ProcessID string `xml:"ProcessID,attr"`
		ThreadID  string `xml:"ThreadID,attr"`
	} `xml:"Execution"`
	Channel  string `xml:"Channel"`
	Computer string `xml:"Computer"`
	Security struct {
		UserID string `xml:"UserID,attr"`
	} `xml:"Security"`
}

type xmlData struct {
	Name  string `xml:"Name,attr"`
	Value string `xml:",chardata"`
}

type xmlEventData struct {
	Data   []xmlData `xml:"Data"`
	Binary string    `xml:"Binary"`
}

// xmlNode captures an arbitrary element tree, used for UserData whose shape
// depends on the provider.
type xmlNode struct {
	XMLName xml.Name
	Content string    `xml:",chardata"`
	Nodes   []xmlNode `xml:",any"`
}

// ParseEvent converts one raw record into an Event. The record must be a
// single <Event> element with a System block carrying an EventID.
func ParseEvent(raw core.RawRecord) (*core.Event, error) {
	var doc xmlEvent
	if err := xml.Unmarshal([]byte(raw.Data), &doc); err != nil {
		return nil, &ParseError{RecordID: raw.RecordID, Err: err}
	}
	if doc.System == nil {
		return nil, &ParseError{RecordID: raw.RecordID, Err: errMissingSystem}
	}

	sys := doc.System
	eventID := strings.TrimSpace(sys.EventID)
	if eventID == "" {
		return nil, &ParseError{RecordID: raw.RecordID, Err: errMissingEventID}
	}

	created, err := parseSystemTime(sys.TimeCreated.SystemTime)
	if err != nil {
		return nil, &ParseError{RecordID: raw.RecordID, Err: err}
	}

	event := &core.Event{
		RecordID: raw.RecordID,
		System: core.System{
			Provider: core.Provider{
				Name:            sys.Provider.Name,
				GUID:            sys.Provider.GUID,
				EventSourceName: sys.Provider.EventSourceName,
			},
			EventID:       eventID,
			Version:       strings.TrimSpace(sys.Version),
			Level:         strings.TrimSpace(sys.Level),
			Task:          strings.TrimSpace(sys.Task),
			Opcode:        strings.TrimSpace(sys.Opcode),
			Keywords:      strings.TrimSpace(sys.Keywords),
			TimeCreated:   created,
			EventRecordID: strings.TrimSpace(sys.EventRecordID),
			ActivityID:    sys.Correlation.ActivityID,
			Execution: core.Execution{
				ProcessID: sys.Execution.ProcessID,
				ThreadID:  sys.Execution.ThreadID,
			},
			Channel:  strings.TrimSpace(sys.Channel),
			Computer: strings.TrimSpace(sys.Computer),
			UserID:   sys.Security.UserID,
		},
		EventData: eventDataFields(doc.EventData),
	}

	if doc.UserData != nil {
		event.UserData = userDataFields(doc.UserData)
	}

	return event, nil
}

// eventDataFields flattens <Data> elements. Unnamed elements become Data,
// Data2, Data3 and so on; a repeated name gets the same numeric suffix.
func eventDataFields(ed *xmlEventData) map[string]string {
	fields := make(map[string]string)
	if ed == nil {
		return fields
	}
	for _, d := range ed.Data {
		name := d.Name
		if name == "" {
			name = "Data"
		}
		fields[uniqueKey(fields, name)] = d.Value
	}
	if ed.Binary != "" {
		fields[uniqueKey(fields, "Binary")] = strings.TrimSpace(ed.Binary)
	}
	return fields
}

// userDataFields records the provider element's name and every leaf below it.
func userDataFields(root *xmlNode) *core.UserData {
	ud := &core.UserData{Fields: make(map[string]string)}
	if len(root.Nodes) == 0 {
		return ud
	}
	top := root.Nodes[0]
	ud.Name = top.XMLName.Local
	var walk func(n xmlNode)
	walk = func(n xmlNode) {
		if len(n.Nodes) == 0 {
			ud.Fields[uniqueKey(ud.Fields, n.XMLName.Local)] = strings.TrimSpace(n.Content)
			return
		}
		for _, child := range n.Nodes {
			walk(child)
		}
	}
	for _, child := range top.Nodes {
		walk(child)
	}
	return ud
}

func uniqueKey(fields map[string]string, name string) string {
	if _, taken := fields[name]; !taken {
		return name
	}
	for i := 2; ; i++ {
		key := name + strconv.Itoa(i)
		if _, taken := fields[key]; !taken {
			return key
		}
	}
}

// parseSystemTime accepts the RFC 3339 timestamps Windows writes, with or
// without a zone suffix. An empty value yields the zero time.
func parseSystemTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02T15:04:05.999999999", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid SystemTime %q: %w", s, err)
	}
	return t.UTC(), nil
}
