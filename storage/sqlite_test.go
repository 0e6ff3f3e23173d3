package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"evtriage/core"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// setupTestSQLite creates a findings database in a temp directory.
func setupTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "findings.db")

	s, err := NewSQLite(dbPath, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	require.NotNil(t, s.DB)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleRun() RunRecord {
	started := time.Date(2016, 9, 20, 1, 15, 0, 0, time.UTC)
	return RunRecord{
		ID:         uuid.NewString(),
		Source:     "Security.evtx",
		StartedAt:  started,
		FinishedAt: started.Add(3 * time.Second),
		Records:    100,
		Events:     98,
		Dropped:    2,
	}
}

func sampleFindings() []core.Finding {
	ts := time.Date(2016, 9, 20, 1, 10, 4, 123000000, time.UTC)
	return []core.Finding{
		{
			Detector:  "Security",
			Channel:   "Security",
			EventID:   "4688",
			RecordID:  42,
			Timestamp: ts,
			Message:   "Suspicious Command Line",
			Results:   []string{"Long Command Line: greater than 1000 bytes", "Base64-encoded function"},
			Command:   "powershell.exe -enc AAAA",
			Decoded:   "IEX (New-Object Net.WebClient)",
		},
		{
			Detector:  "System",
			Channel:   "System",
			EventID:   "104",
			RecordID:  7,
			Timestamp: ts.Add(time.Minute),
			Message:   "System Log Clear",
		},
	}
}

func TestNewSQLite_Success(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "findings.db")

	s, err := NewSQLite(dbPath, nil)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, dbPath, s.Path)
	_, err = os.Stat(dbPath)
	assert.NoError(t, err, "database file should exist")

	var journalMode string
	require.NoError(t, s.DB.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	assert.Equal(t, "wal", journalMode)
}

func TestNewSQLite_EmptyPath(t *testing.T) {
	_, err := NewSQLite("", nil)
	assert.Error(t, err)
}

func TestNewSQLite_InMemory(t *testing.T) {
	s, err := NewSQLite(":memory:", zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	defer s.Close()

	run := sampleRun()
	require.NoError(t, s.SaveRun(context.Background(), run, sampleFindings()))

	got, err := s.ListFindings(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestSaveRun_RoundTrip(t *testing.T) {
	s := setupTestSQLite(t)
	ctx := context.Background()
	run := sampleRun()
	findings := sampleFindings()

	require.NoError(t, s.SaveRun(ctx, run, findings))

	gotRun, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.Source, gotRun.Source)
	assert.True(t, run.StartedAt.Equal(gotRun.StartedAt))
	assert.True(t, run.FinishedAt.Equal(gotRun.FinishedAt))
	assert.Equal(t, 100, gotRun.Records)
	assert.Equal(t, 98, gotRun.Events)
	assert.Equal(t, 2, gotRun.Dropped)

	got, err := s.ListFindings(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, findings[0].Results, got[0].Results)
	assert.Equal(t, findings[0].Decoded, got[0].Decoded)
	assert.Equal(t, uint64(42), got[0].RecordID)
	assert.True(t, findings[0].Timestamp.Equal(got[0].Timestamp))
	assert.Nil(t, got[1].Results)
	assert.Equal(t, "System Log Clear", got[1].Message)
}

func TestSaveRun_NoFindings(t *testing.T) {
	s := setupTestSQLite(t)
	run := sampleRun()

	require.NoError(t, s.SaveRun(context.Background(), run, nil))

	got, err := s.ListFindings(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSaveRun_InvalidRunID(t *testing.T) {
	s := setupTestSQLite(t)
	run := sampleRun()
	run.ID = "not-a-uuid"

	err := s.SaveRun(context.Background(), run, sampleFindings())
	assert.ErrorIs(t, err, ErrInvalidRunID)
}

func TestSaveRun_DuplicateRunRollsBack(t *testing.T) {
	s := setupTestSQLite(t)
	ctx := context.Background()
	run := sampleRun()

	require.NoError(t, s.SaveRun(ctx, run, sampleFindings()))
	assert.Error(t, s.SaveRun(ctx, run, sampleFindings()))

	got, err := s.ListFindings(ctx, run.ID)
	require.NoError(t, err)
	assert.Len(t, got, 2, "failed second insert must not leave partial rows")
}

func TestGetRun_NotFound(t *testing.T) {
	s := setupTestSQLite(t)

	_, err := s.GetRun(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestCountFindings(t *testing.T) {
	s := setupTestSQLite(t)
	ctx := context.Background()
	run := sampleRun()
	findings := append(sampleFindings(), core.Finding{
		Detector: "Security",
		Channel:  "Security",
		EventID:  "1102",
		Message:  "Audit Log Clear",
	})

	require.NoError(t, s.SaveRun(ctx, run, findings))

	counts, err := s.CountFindings(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"Security": 2, "System": 1}, counts)
}

func TestForeignKeysEnforced(t *testing.T) {
	s := setupTestSQLite(t)

	_, err := s.DB.Exec(`INSERT INTO findings (run_id, detector, channel, event_id, record_id, timestamp, message)
		VALUES ('missing', 'Security', 'Security', '4688', 1, '', 'x')`)
	assert.Error(t, err)
}
