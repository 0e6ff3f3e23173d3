package ingest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"evtriage/core"
	"evtriage/metrics"

	"github.com/Velocidex/ordereddict"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestXMLExportDecoder(t *testing.T) {
	content := `<?xml version="1.0" encoding="utf-8"?>
<Events>
` + securityEventXML + "\n" + logClearedXML + `
</Events>`
	path := writeFile(t, "export.xml", content)

	records, err := NewXMLExportDecoder(zaptest.NewLogger(t).Sugar()).Decode(path)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, uint64(1), records[0].RecordID)
	assert.Equal(t, uint64(2), records[1].RecordID)

	first, err := ParseEvent(records[0])
	require.NoError(t, err)
	assert.Equal(t, "4688", first.EventID())
	assert.Equal(t, "cmd.exe /c whoami & hostname", first.EventData["CommandLine"])

	second, err := ParseEvent(records[1])
	require.NoError(t, err)
	assert.Equal(t, "mallory", second.UserData.Fields["SubjectUserName"])
}

func TestXMLExportDecoder_Unwrapped(t *testing.T) {
	path := writeFile(t, "single.xml", securityEventXML)

	records, err := NewXMLExportDecoder(nil).Decode(path)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestXMLExportDecoder_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "garbage", content: "this is not xml"},
		{name: "truncated", content: "<Events><Event><System>"},
		{name: "empty", content: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, "bad.xml", tt.content)
			_, err := NewXMLExportDecoder(nil).Decode(path)
			var cerr *ContainerError
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, "xml", cerr.Format)
		})
	}
}

func TestXMLExportDecoder_TruncatedKeepsEarlierEvents(t *testing.T) {
	content := "<Events>\n" + securityEventXML + "\n" + logClearedXML + "\n<Event><System><EventID>4688"
	path := writeFile(t, "truncated.xml", content)

	dropped := testutil.ToFloat64(metrics.RecordsDropped.WithLabelValues("chunk"))
	records, err := NewXMLExportDecoder(zaptest.NewLogger(t).Sugar()).Decode(path)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, dropped+1, testutil.ToFloat64(metrics.RecordsDropped.WithLabelValues("chunk")))

	last, err := ParseEvent(records[1])
	require.NoError(t, err)
	assert.Equal(t, "1102", last.EventID())
}

func TestXMLExportDecoder_SyntaxErrorMidStream(t *testing.T) {
	content := "<Events>" + securityEventXML + "<Event><System></Oops></Event>" + logClearedXML + "</Events>"
	path := writeFile(t, "damaged.xml", content)

	records, err := NewXMLExportDecoder(nil).Decode(path)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestEvtxDecoder_NotAContainer(t *testing.T) {
	path := writeFile(t, "bogus.evtx", strings.Repeat("not an evtx file ", 512))

	_, err := NewEvtxDecoder(zaptest.NewLogger(t).Sugar()).Decode(path)
	var cerr *ContainerError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "evtx", cerr.Format)
}

func TestEvtxDecoder_Missing(t *testing.T) {
	_, err := NewEvtxDecoder(nil).Decode(filepath.Join(t.TempDir(), "absent.evtx"))
	var cerr *ContainerError
	require.ErrorAs(t, err, &cerr)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestArchiveDecoder_DispatchesOnExtension(t *testing.T) {
	d := NewArchiveDecoder(zaptest.NewLogger(t).Sugar())

	records, err := d.Decode(writeFile(t, "log.XML", securityEventXML))
	require.NoError(t, err)
	assert.Len(t, records, 1)

	_, err = d.Decode(writeFile(t, "log.evtx", "junk"))
	var cerr *ContainerError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "evtx", cerr.Format)
}

func TestRenderEventXML(t *testing.T) {
	system := ordereddict.NewDict().
		Set("Provider", ordereddict.NewDict().Set("Name", "Microsoft-Windows-Sysmon")).
		Set("EventID", ordereddict.NewDict().Set("Value", uint64(1)).Set("Qualifiers", uint64(0))).
		Set("TimeCreated", ordereddict.NewDict().Set("SystemTime", float64(1553038465.5))).
		Set("EventRecordID", uint64(77)).
		Set("Channel", "Microsoft-Windows-Sysmon/Operational").
		Set("Computer", "host<1>")
	eventData := ordereddict.NewDict().
		Set("CommandLine", `powershell -c "a & b"`).
		Set("Image", `C:\Windows\System32\WindowsPowerShell\v1.0\powershell.exe`)
	record := ordereddict.NewDict().Set("Event",
		ordereddict.NewDict().Set("System", system).Set("EventData", eventData))

	event, err := ParseEvent(core.RawRecord{RecordID: 77, Data: RenderEventXML(record)})
	require.NoError(t, err)

	assert.Equal(t, "1", event.EventID())
	assert.Equal(t, "Microsoft-Windows-Sysmon/Operational", event.Channel())
	assert.Equal(t, "host<1>", event.System.Computer)
	assert.Equal(t, "77", event.System.EventRecordID)
	assert.Equal(t, int64(1553038465), event.System.TimeCreated.Unix())
	assert.Equal(t, 500000000, event.System.TimeCreated.Nanosecond())
	assert.Equal(t, `powershell -c "a & b"`, event.EventData["CommandLine"])
}

func TestRenderEventXML_UnnamedDataAndUserData(t *testing.T) {
	record := ordereddict.NewDict().
		Set("System", ordereddict.NewDict().Set("EventID", float64(104)).Set("Channel", "System")).
		Set("EventData", ordereddict.NewDict().Set("Data", []interface{}{"one", "two"})).
		Set("UserData", ordereddict.NewDict().Set("LogFileCleared",
			ordereddict.NewDict().Set("SubjectUserName", "bob")))

	event, err := ParseEvent(core.RawRecord{RecordID: 1, Data: RenderEventXML(record)})
	require.NoError(t, err)

	assert.Equal(t, "104", event.EventID())
	assert.Equal(t, "one", event.EventData["Data"])
	assert.Equal(t, "two", event.EventData["Data2"])
	require.NotNil(t, event.UserData)
	assert.Equal(t, "LogFileCleared", event.UserData.Name)
	assert.Equal(t, "bob", event.UserData.Fields["SubjectUserName"])
}
