package detect

import (
	"strings"

	"evtriage/core"
)

// SystemDetector inspects the System channel: service installs, service
// configuration changes and log clearing.
type SystemDetector struct {
	findingSet
	analyzer *CommandAnalyzer
}

func NewSystemDetector(analyzer *CommandAnalyzer) *SystemDetector {
	return &SystemDetector{
		findingSet: findingSet{name: "System", channel: ChannelSystem},
		analyzer:   analyzer,
	}
}

func (d *SystemDetector) Observe(event *core.Event) {
	switch event.EventID() {
	case "7045":
		service := event.FieldOrEmpty("ServiceName")
		if names := d.analyzer.MatchDetection(service); len(names) > 0 {
			f := core.NewFinding(d.name, event, "New Service Created")
			f.Results = append([]string{"Service name: " + service}, names...)
			d.add(f)
		}
		command := event.FieldOrEmpty("ImagePath")
		d.commandFinding(event, "Suspicious Service Command", command, d.analyzer.Analyze(command), "Service name: "+service)
	case "7030":
		f := core.NewFinding(d.name, event, "Interactive service warning")
		f.Results = []string{
			"Service name: " + event.FieldOrEmpty("param1"),
			"Malware (and some third party software) trigger this warning",
		}
		d.add(f)
	case "7040":
		service := event.FieldOrEmpty("param1")
		if !strings.EqualFold(service, "Windows Event Log") {
			return
		}
		switch strings.ToLower(event.FieldOrEmpty("param3")) {
		case "disabled":
			f := core.NewFinding(d.name, event, "Event Log Service Stopped")
			f.Results = []string{"Service name: " + service, "Selective event log manipulation may follow this event."}
			d.add(f)
		case "auto start":
			f := core.NewFinding(d.name, event, "Event Log Service Started")
			f.Results = []string{"Service name: " + service, "Selective event log manipulation may precede this event."}
			d.add(f)
		}
	case "104":
		f := core.NewFinding(d.name, event, "System Log Clear")
		f.Results = []string{"The System log was cleared."}
		if user := event.FieldOrEmpty("SubjectUserName"); user != "" {
			f.Results = append(f.Results, "Account Name: "+user)
		}
		d.add(f)
	}
}
