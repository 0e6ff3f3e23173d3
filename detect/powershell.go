package detect

import "evtriage/core"

// PowerShellDetector analyzes script blocks (4104) and pipeline payloads (4103).
type PowerShellDetector struct {
	findingSet
	analyzer *CommandAnalyzer
}

func NewPowerShellDetector(analyzer *CommandAnalyzer) *PowerShellDetector {
	return &PowerShellDetector{
		findingSet: findingSet{name: "PowerShell", channel: ChannelPowerShell},
		analyzer:   analyzer,
	}
}

func (d *PowerShellDetector) Observe(event *core.Event) {
	switch event.EventID() {
	case "4104":
		script := event.FieldOrEmpty("ScriptBlockText")
		d.commandFinding(event, "Suspicious PowerShell Script Block", script, d.analyzer.Analyze(script))
	case "4103":
		payload := event.FieldOrEmpty("Payload")
		d.commandFinding(event, "Suspicious PowerShell Pipeline", payload, d.analyzer.Analyze(payload))
	}
}
