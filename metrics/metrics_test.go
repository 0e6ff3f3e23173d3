package metrics

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRegistration(t *testing.T) {
	// Metrics are global; just make sure nothing panicked during registration
	assert.NotNil(t, RecordsDecoded)
	assert.NotNil(t, RecordsParsed)
	assert.NotNil(t, RecordsDropped)
	assert.NotNil(t, EventsRouted)
	assert.NotNil(t, FindingsRaised)
	assert.NotNil(t, BatchDuration)
	assert.NotNil(t, PatternsRejected)
	assert.NotNil(t, RegexTimeouts)
}

func TestWriteTextfile(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "evtriage_test_counter_total",
		Help: "test counter",
	})
	reg.MustRegister(counter)
	counter.Add(3)

	path := filepath.Join(t.TempDir(), "evtriage.prom")
	require.NoError(t, WriteTextfile(path, reg))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "evtriage_test_counter_total 3")
}

func TestWriteTextfile_MissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "evtriage.prom")
	err := WriteTextfile(path, prometheus.NewRegistry())
	assert.Error(t, err)
}
