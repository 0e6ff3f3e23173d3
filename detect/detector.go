package detect

import (
	"io"

	"evtriage/core"
	"evtriage/metrics"
)

// Detector consumes events one at a time and reports what it saw. A detector
// owns its state; Observe is never called concurrently.
type Detector interface {
	Name() string
	Observe(event *core.Event)
	Findings() []core.Finding
	Report(w io.Writer) error
}

// ChannelDetector is a Detector bound to one event log channel.
type ChannelDetector interface {
	Detector
	Channel() string
}

// Channel names of the specialized detectors.
const (
	ChannelSecurity    = "Security"
	ChannelSystem      = "System"
	ChannelApplication = "Application"
	ChannelPowerShell  = "Microsoft-Windows-PowerShell/Operational"
	ChannelSysmon      = "Microsoft-Windows-Sysmon/Operational"
	ChannelAppLocker   = "Microsoft-Windows-AppLocker/EXE and DLL"
)

// findingSet is the state shared by the channel detectors.
type findingSet struct {
	name     string
	channel  string
	findings []core.Finding
}

func (f *findingSet) Name() string    { return f.name }
func (f *findingSet) Channel() string { return f.channel }

func (f *findingSet) add(finding core.Finding) {
	f.findings = append(f.findings, finding)
	metrics.FindingsRaised.WithLabelValues(f.name).Inc()
}

// Findings returns a copy of the findings recorded so far.
func (f *findingSet) Findings() []core.Finding {
	out := make([]core.Finding, len(f.findings))
	copy(out, f.findings)
	return out
}

func (f *findingSet) Report(w io.Writer) error {
	return WriteFindings(w, f.title(), f.Findings())
}

func (f *findingSet) title() string {
	return f.name + " (" + f.channel + ")"
}

// commandFinding records a finding when analysis of command produced results.
func (f *findingSet) commandFinding(event *core.Event, message, command string, analysis Analysis, prefix ...string) {
	if !analysis.Suspicious() {
		return
	}
	finding := core.NewFinding(f.name, event, message)
	finding.Results = append(append([]string{}, prefix...), analysis.Results...)
	finding.Command = command
	finding.Decoded = analysis.Decoded
	f.add(finding)
}
