package detect

import (
	"io"
	"sort"
	"strconv"
	"time"

	"evtriage/core"
)

type channelEventKey struct {
	channel string
	eventID string
}

// GeneralDetector sees every event and summarises the whole run: how many
// events each channel and event id contributed and the time span covered.
type GeneralDetector struct {
	total      int
	perChannel map[string]int
	perEvent   map[channelEventKey]int
	first      time.Time
	last       time.Time
}

func NewGeneralDetector() *GeneralDetector {
	return &GeneralDetector{
		perChannel: make(map[string]int),
		perEvent:   make(map[channelEventKey]int),
	}
}

func (d *GeneralDetector) Name() string { return "General" }

func (d *GeneralDetector) Observe(event *core.Event) {
	d.total++
	channel := event.Channel()
	if channel == "" {
		channel = "(none)"
	}
	d.perChannel[channel]++
	d.perEvent[channelEventKey{channel: channel, eventID: event.EventID()}]++

	ts := event.System.TimeCreated
	if ts.IsZero() {
		return
	}
	if d.first.IsZero() || ts.Before(d.first) {
		d.first = ts
	}
	if ts.After(d.last) {
		d.last = ts
	}
}

// Findings is always empty; the general detector only summarises.
func (d *GeneralDetector) Findings() []core.Finding {
	return nil
}

// Total returns the number of events observed.
func (d *GeneralDetector) Total() int {
	return d.total
}

// ChannelCount returns how many events came from channel.
func (d *GeneralDetector) ChannelCount(channel string) int {
	return d.perChannel[channel]
}

// EventCount returns how many events with eventID came from channel.
func (d *GeneralDetector) EventCount(channel, eventID string) int {
	return d.perEvent[channelEventKey{channel: channel, eventID: eventID}]
}

// TimeRange returns the earliest and latest event timestamps seen.
func (d *GeneralDetector) TimeRange() (time.Time, time.Time) {
	return d.first, d.last
}

func (d *GeneralDetector) Report(w io.Writer) error {
	rw := &reportWriter{w: w}
	rw.header("Triage summary")
	rw.field("Events", strconv.Itoa(d.total))
	if d.total == 0 {
		rw.printf(quietColor, "No events observed.\n\n")
		return rw.err
	}
	rw.field("First", formatTime(d.first))
	rw.field("Last", formatTime(d.last))
	rw.printf(nil, "\n")

	channels := make([]string, 0, len(d.perChannel))
	for ch := range d.perChannel {
		channels = append(channels, ch)
	}
	sort.Strings(channels)

	keys := make([]channelEventKey, 0, len(d.perEvent))
	for k := range d.perEvent {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].channel != keys[j].channel {
			return keys[i].channel < keys[j].channel
		}
		return lessEventID(keys[i].eventID, keys[j].eventID)
	})

	rw.printf(labelColor, "%-50s %8s\n", "Channel", "Events")
	for _, ch := range channels {
		rw.printf(nil, "%-50s %8d\n", ch, d.perChannel[ch])
		for _, k := range keys {
			if k.channel == ch {
				rw.printf(nil, "  EventID %-40s %8d\n", k.eventID, d.perEvent[k])
			}
		}
	}
	rw.printf(nil, "\n")
	return rw.err
}

// lessEventID orders numeric ids numerically and anything else lexically after them.
func lessEventID(a, b string) bool {
	na, errA := strconv.Atoi(a)
	nb, errB := strconv.Atoi(b)
	switch {
	case errA == nil && errB == nil:
		return na < nb
	case errA == nil:
		return true
	case errB == nil:
		return false
	default:
		return a < b
	}
}
