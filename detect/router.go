package detect

import (
	"errors"
	"fmt"
	"io"

	"evtriage/config"
	"evtriage/core"
	"evtriage/metrics"

	"go.uber.org/zap"
)

var (
	// ErrDuplicateChannel is returned when two detectors claim the same channel.
	ErrDuplicateChannel = errors.New("channel already has a detector")

	// ErrNoGeneralDetector is returned when NewRouter gets a nil general detector.
	ErrNoGeneralDetector = errors.New("general detector is required")
)

// Router hands every event to the general detector and to the one
// specialized detector registered for its channel, if any. Channel names are
// matched exactly.
type Router struct {
	general     Detector
	specialized []ChannelDetector
	byChannel   map[string]ChannelDetector
}

func NewRouter(general Detector, specialized ...ChannelDetector) (*Router, error) {
	if general == nil {
		return nil, ErrNoGeneralDetector
	}
	r := &Router{
		general:   general,
		byChannel: make(map[string]ChannelDetector, len(specialized)),
	}
	for _, d := range specialized {
		ch := d.Channel()
		if existing, ok := r.byChannel[ch]; ok {
			return nil, fmt.Errorf("%w: %q claimed by %s and %s", ErrDuplicateChannel, ch, existing.Name(), d.Name())
		}
		r.byChannel[ch] = d
		r.specialized = append(r.specialized, d)
	}
	return r, nil
}

// NewDefaultRouter wires the general detector and the six channel detectors
// over a shared command analyzer.
func NewDefaultRouter(snap *config.Snapshot, logger *zap.SugaredLogger) (*Router, error) {
	analyzer, err := NewCommandAnalyzer(snap, logger)
	if err != nil {
		return nil, err
	}
	settings := snap.Settings
	if settings == nil {
		settings = config.Default()
	}

	return NewRouter(NewGeneralDetector(),
		NewSecurityDetector(analyzer, settings.Detection.MaxFailedLogons),
		NewSystemDetector(analyzer),
		NewApplicationDetector(),
		NewPowerShellDetector(analyzer),
		NewSysmonDetector(analyzer),
		NewAppLockerDetector(),
	)
}

// Route delivers one event. The general detector always observes it.
func (r *Router) Route(event *core.Event) {
	r.general.Observe(event)
	if d, ok := r.byChannel[event.Channel()]; ok {
		d.Observe(event)
		metrics.EventsRouted.WithLabelValues(d.Name()).Inc()
	}
}

// Lookup returns the specialized detector for channel.
func (r *Router) Lookup(channel string) (ChannelDetector, bool) {
	d, ok := r.byChannel[channel]
	return d, ok
}

// General returns the detector that sees every event.
func (r *Router) General() Detector {
	return r.general
}

// Detectors returns the general detector followed by the specialized ones in
// registration order.
func (r *Router) Detectors() []Detector {
	out := make([]Detector, 0, len(r.specialized)+1)
	out = append(out, r.general)
	for _, d := range r.specialized {
		out = append(out, d)
	}
	return out
}

// Findings collects every detector's findings in Detectors order.
func (r *Router) Findings() []core.Finding {
	var out []core.Finding
	for _, d := range r.Detectors() {
		out = append(out, d.Findings()...)
	}
	return out
}

// ReportAll writes every detector's report in Detectors order and stops at
// the first write error.
func (r *Router) ReportAll(w io.Writer) error {
	for _, d := range r.Detectors() {
		if err := d.Report(w); err != nil {
			return fmt.Errorf("%s report: %w", d.Name(), err)
		}
	}
	return nil
}
