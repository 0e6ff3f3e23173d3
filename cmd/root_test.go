package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const exportXML = `<Events>
<Event><System><Provider Name="Service Control Manager"/><EventID>7045</EventID><TimeCreated SystemTime="2019-03-19T23:34:25.000Z"/><EventRecordID>1</EventRecordID><Channel>System</Channel></System><EventData><Data Name="ServiceName">psexesvc</Data><Data Name="ImagePath">%SystemRoot%\PSEXESVC.exe</Data></EventData></Event>
<Event><System><Provider Name="Microsoft-Windows-Eventlog"/><EventID>104</EventID><TimeCreated SystemTime="2019-03-19T23:35:00.000Z"/><EventRecordID>2</EventRecordID><Channel>System</Channel></System><EventData/></Event>
</Events>`

var elapsedLine = regexp.MustCompile(`\d+\.\d{3} seconds elapsed\.\n$`)

// executeRoot runs the root command in a scratch directory and returns what
// it wrote to stdout and stderr.
func executeRoot(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)

	cmd := NewRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestNewRootCmd_Flags(t *testing.T) {
	cmd := NewRootCmd()
	assert.Equal(t, "evtriage", cmd.Use)

	shorthands := map[string]string{"filepath": "f", "threadnumber": "t", "credits": "c", "verbose": "v"}
	for name, short := range shorthands {
		flag := cmd.Flags().Lookup(name)
		require.NotNil(t, flag, "missing flag %s", name)
		assert.Equal(t, short, flag.Shorthand)
	}
	for name := range flagKeys {
		assert.NotNil(t, cmd.Flags().Lookup(name), "missing flag %s", name)
	}
	assert.Equal(t, "1", cmd.Flags().Lookup("threadnumber").DefValue)
}

func TestRoot_NoFlagsShowsHelp(t *testing.T) {
	t.Chdir(t.TempDir())

	out, _, err := executeRoot(t)
	require.NoError(t, err)
	assert.Contains(t, out, "Usage:")
	assert.NotContains(t, out, "seconds elapsed")
}

func TestRoot_Credits(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "credits.txt"), []byte("Thanks, everyone.\n"), 0o644))

	out, _, err := executeRoot(t, "-c", "--quiet")
	require.NoError(t, err)
	assert.Contains(t, out, "Thanks, everyone.\n")
	assert.Regexp(t, elapsedLine, out)
}

func TestRoot_CreditsMissing(t *testing.T) {
	t.Chdir(t.TempDir())

	out, _, err := executeRoot(t, "--credits", "--quiet")
	require.NoError(t, err)
	assert.Contains(t, out, "Error : credits.txt not found , ")
	assert.Regexp(t, elapsedLine, out)
}

func TestRoot_TriageExport(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "regexes.txt"), []byte("name,regex\nPsExec,^psexesvc$\n"), 0o644))
	archive := filepath.Join(dir, "system.xml")
	require.NoError(t, os.WriteFile(archive, []byte(exportXML), 0o644))
	export := filepath.Join(dir, "findings.json")

	out, _, err := executeRoot(t, "-f", archive, "-t", "4", "--quiet", "--no-color", "--export", export)
	require.NoError(t, err)

	assert.Contains(t, out, "New Service Created")
	assert.Contains(t, out, "System Log Clear")
	assert.Regexp(t, elapsedLine, out)
	assert.Equal(t, 4, viper.GetInt("engine.worker_count"))

	data, err := os.ReadFile(export)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message": "System Log Clear"`)
}

func TestRoot_BadArchive(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	archive := filepath.Join(dir, "broken.evtx")
	require.NoError(t, os.WriteFile(archive, []byte("garbage"), 0o644))

	out, errOut, err := executeRoot(t, "-f", archive, "--quiet", "-c")
	require.Error(t, err)
	assert.NotContains(t, out, "seconds elapsed")
	assert.NotContains(t, out, "credits")
	assert.Contains(t, errOut, "Triage failed")
}

func TestRoot_InvalidConfig(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	archive := filepath.Join(dir, "system.xml")
	require.NoError(t, os.WriteFile(archive, []byte(exportXML), 0o644))

	_, _, err := executeRoot(t, "-f", archive, "--quiet", "--export", "findings.csv")
	assert.Error(t, err)
}

func TestRoot_RejectsPositionalArgs(t *testing.T) {
	t.Chdir(t.TempDir())

	_, _, err := executeRoot(t, "Security.evtx")
	assert.Error(t, err)
}

func TestFindings_ReadsSavedRun(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "regexes.txt"), []byte("name,regex\nPsExec,^psexesvc$\n"), 0o644))
	archive := filepath.Join(dir, "system.xml")
	require.NoError(t, os.WriteFile(archive, []byte(exportXML), 0o644))
	db := filepath.Join(dir, "triage.db")

	out, _, err := executeRoot(t, "-f", archive, "--quiet", "--no-color", "--findings-db", db)
	require.NoError(t, err)
	m := regexp.MustCompile(`Run ([0-9a-f-]{36}) saved to `).FindStringSubmatch(out)
	require.Len(t, m, 2, out)
	runID := m[1]

	out, _, err = executeRoot(t, "findings", "--db", db, "--run", runID)
	require.NoError(t, err)
	assert.Contains(t, out, "Run "+runID)
	assert.Contains(t, out, "Source   : "+archive)
	assert.Contains(t, out, "New Service Created")
	assert.Contains(t, out, "System Log Clear")
}

func TestFindings_UnknownRun(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	archive := filepath.Join(dir, "system.xml")
	require.NoError(t, os.WriteFile(archive, []byte(exportXML), 0o644))
	db := filepath.Join(dir, "triage.db")

	_, _, err := executeRoot(t, "-f", archive, "--quiet", "--findings-db", db)
	require.NoError(t, err)

	_, errOut, err := executeRoot(t, "findings", "--db", db, "--run", "6f1c2d7e-0000-4000-8000-000000000000")
	require.Error(t, err)
	assert.Contains(t, errOut, "Cannot read run")

	_, _, err = executeRoot(t, "findings", "--db", db)
	assert.Error(t, err, "--run is required")
}

func TestFormatElapsed(t *testing.T) {
	assert.Equal(t, "1.500 seconds elapsed.", formatElapsed(1500*time.Millisecond))
	assert.Equal(t, "0.000 seconds elapsed.", formatElapsed(0))
}

func TestPrintCredits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credits.txt")
	require.NoError(t, os.WriteFile(path, []byte("a\nb\n"), 0o644))

	var buf bytes.Buffer
	printCredits(&buf, path)
	assert.Equal(t, "a\nb\n", buf.String())
}
