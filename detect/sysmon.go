package detect

import (
	"strings"

	"evtriage/core"
)

// SysmonDetector inspects process creation (1) and image loads (7).
type SysmonDetector struct {
	findingSet
	analyzer *CommandAnalyzer
}

func NewSysmonDetector(analyzer *CommandAnalyzer) *SysmonDetector {
	return &SysmonDetector{
		findingSet: findingSet{name: "Sysmon", channel: ChannelSysmon},
		analyzer:   analyzer,
	}
}

func (d *SysmonDetector) Observe(event *core.Event) {
	switch event.EventID() {
	case "1":
		command := event.FieldOrEmpty("CommandLine")
		var prefix []string
		if parent := event.FieldOrEmpty("ParentImage"); parent != "" {
			prefix = append(prefix, "Parent: "+parent)
		}
		d.commandFinding(event, "Suspicious Command Line", command, d.analyzer.Analyze(command), prefix...)
	case "7":
		if !strings.EqualFold(event.FieldOrEmpty("Signed"), "false") {
			return
		}
		f := core.NewFinding(d.name, event, "Unsigned Image (DLL)")
		f.Results = []string{"Loaded by: " + event.FieldOrEmpty("Image")}
		f.Command = event.FieldOrEmpty("ImageLoaded")
		d.add(f)
	}
}
