package detect

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"evtriage/core"
)

// adminGroups are the group names whose membership changes are reported.
var adminGroups = map[string]bool{
	"administrators":    true,
	"domain admins":     true,
	"enterprise admins": true,
	"schema admins":     true,
}

type failedLogons struct {
	count int
	last  *core.Event
}

// SecurityDetector inspects the Security channel.
type SecurityDetector struct {
	findingSet
	analyzer        *CommandAnalyzer
	maxFailedLogons int
	failed          map[string]*failedLogons
}

func NewSecurityDetector(analyzer *CommandAnalyzer, maxFailedLogons int) *SecurityDetector {
	return &SecurityDetector{
		findingSet:      findingSet{name: "Security", channel: ChannelSecurity},
		analyzer:        analyzer,
		maxFailedLogons: maxFailedLogons,
		failed:          make(map[string]*failedLogons),
	}
}

func (d *SecurityDetector) Observe(event *core.Event) {
	switch event.EventID() {
	case "4688":
		command := event.FieldOrEmpty("CommandLine")
		d.commandFinding(event, "Suspicious Command Line", command, d.analyzer.Analyze(command))
	case "4720":
		f := core.NewFinding(d.name, event, "New User Created")
		f.Results = []string{
			"Username: " + event.FieldOrEmpty("TargetUserName"),
			"User SID: " + event.FieldOrEmpty("TargetSid"),
		}
		d.add(f)
	case "4728", "4732", "4756":
		d.groupMembership(event)
	case "1102":
		f := core.NewFinding(d.name, event, "Audit Log Clear")
		f.Results = []string{
			"The Audit log was cleared.",
			"Account Name: " + event.FieldOrEmpty("SubjectUserName"),
			"Domain Name: " + event.FieldOrEmpty("SubjectDomainName"),
		}
		d.add(f)
	case "4625":
		user := event.FieldOrEmpty("TargetUserName")
		if user == "" {
			user = "-"
		}
		entry, ok := d.failed[user]
		if !ok {
			entry = &failedLogons{}
			d.failed[user] = entry
		}
		entry.count++
		entry.last = event
	}
}

func (d *SecurityDetector) groupMembership(event *core.Event) {
	group := event.FieldOrEmpty("TargetUserName")
	if !adminGroups[strings.ToLower(group)] {
		return
	}
	scope := map[string]string{"4728": "global", "4732": "local", "4756": "universal"}[event.EventID()]
	f := core.NewFinding(d.name, event, fmt.Sprintf("User added to %s %s group", scope, group))
	f.Results = []string{
		"Username: " + event.FieldOrEmpty("MemberName"),
		"User SID: " + event.FieldOrEmpty("MemberSid"),
	}
	d.add(f)
}

// Findings returns per-event findings followed by one finding for each
// account whose failed logons reached the threshold, ordered by account.
func (d *SecurityDetector) Findings() []core.Finding {
	out := d.findingSet.Findings()

	users := make([]string, 0, len(d.failed))
	for user, entry := range d.failed {
		if entry.count >= d.maxFailedLogons {
			users = append(users, user)
		}
	}
	sort.Strings(users)
	for _, user := range users {
		entry := d.failed[user]
		f := core.NewFinding(d.name, entry.last, "High number of logon failures for one account")
		f.Results = []string{
			"Username: " + user,
			fmt.Sprintf("Total logon failures: %d", entry.count),
		}
		out = append(out, f)
	}
	return out
}

func (d *SecurityDetector) Report(w io.Writer) error {
	return WriteFindings(w, d.title(), d.Findings())
}
