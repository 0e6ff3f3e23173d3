package detect

import (
	"strings"

	"evtriage/core"
)

const emetProvider = "EMET"

// maxEMETLines caps how much of the EMET message is copied into a finding.
const maxEMETLines = 4

// ApplicationDetector reports EMET mitigations from the Application channel.
type ApplicationDetector struct {
	findingSet
}

func NewApplicationDetector() *ApplicationDetector {
	return &ApplicationDetector{findingSet: findingSet{name: "Application", channel: ChannelApplication}}
}

func (d *ApplicationDetector) Observe(event *core.Event) {
	if !strings.EqualFold(event.System.Provider.Name, emetProvider) {
		return
	}
	var message string
	switch event.EventID() {
	case "2":
		message = "EMET Block"
	case "3":
		message = "EMET Warning"
	default:
		return
	}
	f := core.NewFinding(d.name, event, message)
	f.Results = messageLines(event.FieldOrEmpty("Data"), maxEMETLines)
	d.add(f)
}

func messageLines(text string, limit int) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out = append(out, line)
		if len(out) == limit {
			break
		}
	}
	return out
}
