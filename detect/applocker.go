package detect

import "evtriage/core"

// AppLockerDetector reports executables AppLocker blocked or would have blocked.
type AppLockerDetector struct {
	findingSet
}

func NewAppLockerDetector() *AppLockerDetector {
	return &AppLockerDetector{findingSet: findingSet{name: "AppLocker", channel: ChannelAppLocker}}
}

func (d *AppLockerDetector) Observe(event *core.Event) {
	var message string
	switch event.EventID() {
	case "8003":
		message = "AppLocker Warning"
	case "8004":
		message = "AppLocker Block"
	default:
		return
	}
	path := event.FieldOrEmpty("FilePath")
	f := core.NewFinding(d.name, event, message)
	f.Command = path
	f.Results = []string{"File: " + path}
	if user := event.FieldOrEmpty("TargetUser"); user != "" {
		f.Results = append(f.Results, "User SID: "+user)
	}
	d.add(f)
}
