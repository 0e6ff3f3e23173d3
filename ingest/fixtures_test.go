package ingest

import (
	"fmt"
	"strings"

	"evtriage/core"
)

const securityEventXML = `<Event xmlns="http://schemas.microsoft.com/win/2004/08/events/event">
  <System>
    <Provider Name="Microsoft-Windows-Security-Auditing" Guid="{54849625-5478-4994-A5BA-3E3B0328C30D}"/>
    <EventID>4688</EventID>
    <Version>2</Version>
    <Level>0</Level>
    <Task>13312</Task>
    <Opcode>0</Opcode>
    <Keywords>0x8020000000000000</Keywords>
    <TimeCreated SystemTime="2019-03-19T23:34:25.926233200Z"/>
    <EventRecordID>7321</EventRecordID>
    <Correlation/>
    <Execution ProcessID="4" ThreadID="92"/>
    <Channel>Security</Channel>
    <Computer>WIN-TRIAGE</Computer>
    <Security/>
  </System>
  <EventData>
    <Data Name="SubjectUserName">alice</Data>
    <Data Name="NewProcessName">C:\Windows\System32\cmd.exe</Data>
    <Data Name="CommandLine">cmd.exe /c whoami &amp; hostname</Data>
  </EventData>
</Event>`

const logClearedXML = `<Event xmlns="http://schemas.microsoft.com/win/2004/08/events/event">
  <System>
    <Provider Name="Microsoft-Windows-Eventlog" Guid="{fc65ddd8-d6ef-4962-83d5-6e5cfe9ce148}"/>
    <EventID>1102</EventID>
    <TimeCreated SystemTime="2019-03-19T23:40:00.000Z"/>
    <Channel>Security</Channel>
    <Computer>WIN-TRIAGE</Computer>
  </System>
  <UserData>
    <LogFileCleared xmlns="http://manifests.microsoft.com/win/2004/08/windows/eventlog">
      <SubjectUserSid>S-1-5-21-1</SubjectUserSid>
      <SubjectUserName>mallory</SubjectUserName>
      <SubjectDomainName>CORP</SubjectDomainName>
    </LogFileCleared>
  </UserData>
</Event>`

// simpleEvent renders a minimal event on channel with one named data field.
func simpleEvent(channel string, eventID, recordID int) string {
	return fmt.Sprintf(`<Event><System><EventID>%d</EventID><EventRecordID>%d</EventRecordID><Channel>%s</Channel></System><EventData><Data Name="N">%d</Data></EventData></Event>`,
		eventID, recordID, channel, recordID)
}

// rawRecords builds n records; every record whose id is a multiple of
// badEvery (when positive) holds invalid XML.
func rawRecords(n, badEvery int) []core.RawRecord {
	out := make([]core.RawRecord, 0, n)
	for i := 1; i <= n; i++ {
		data := simpleEvent("System", 7045, i)
		if badEvery > 0 && i%badEvery == 0 {
			data = strings.TrimSuffix(data, "</Event>")
		}
		out = append(out, core.RawRecord{RecordID: uint64(i), Data: data})
	}
	return out
}
