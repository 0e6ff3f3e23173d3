package patterns

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWhitelist(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		want        []string
		wantSkipped int
	}{
		{name: "headerless single row", input: "foo.*bar\n", want: []string{"foo.*bar"}},
		{name: "header skipped", input: "regex\nfoo\nbar\n", want: []string{"foo", "bar"}},
		{name: "header case insensitive", input: "Pattern\nfoo\n", want: []string{"foo"}},
		{name: "extra columns ignored", input: "foo,comment\n", want: []string{"foo"}},
		{name: "empty pattern skipped", input: "foo\n,x\nbar\n", want: []string{"foo", "bar"}, wantSkipped: 1},
		{name: "bom stripped", input: "\ufefffoo\n", want: []string{"foo"}},
		{name: "empty file", input: "", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := ParseWhitelist(strings.NewReader(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Rows)
			assert.Equal(t, tt.wantSkipped, res.Skipped)
		})
	}
}

func TestParseDetection(t *testing.T) {
	input := strings.Join([]string{
		"name,regex",
		"Mimikatz,invoke-mimikatz",
		"missing",
		",net user /add",
		"Empty,",
	}, "\n")

	res, err := ParseDetection(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, []NamedPattern{
		{Name: "Mimikatz", Pattern: "invoke-mimikatz"},
		{Name: "net user /add", Pattern: "net user /add"},
	}, res.Rows)
	assert.Equal(t, 2, res.Skipped)
	assert.Len(t, res.Issues, 2)
}

func TestParseDetection_NoHeader(t *testing.T) {
	res, err := ParseDetection(strings.NewReader("Mimikatz,invoke-mimikatz\n"))
	require.NoError(t, err)
	assert.Len(t, res.Rows, 1)
}

func TestReadFiles(t *testing.T) {
	dir := t.TempDir()
	wl := filepath.Join(dir, "whitelist.txt")
	det := filepath.Join(dir, "regexes.txt")
	require.NoError(t, os.WriteFile(wl, []byte("foo.*bar\n"), 0o600))
	require.NoError(t, os.WriteFile(det, []byte("regex\nx,y\n"), 0o600))

	w, err := ReadWhitelistFile(wl)
	require.NoError(t, err)
	assert.Equal(t, []string{"foo.*bar"}, w.Rows)

	// The header check only applies to the pattern column, so "regex" in the
	// single-column first row is a malformed detection row.
	d, err := ReadDetectionFile(det)
	require.NoError(t, err)
	assert.Equal(t, []NamedPattern{{Name: "x", Pattern: "y"}}, d.Rows)
	assert.Equal(t, 1, d.Skipped)
}

func TestReadFiles_Missing(t *testing.T) {
	_, err := ReadWhitelistFile(filepath.Join(t.TempDir(), "absent.txt"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = ReadDetectionFile(filepath.Join(t.TempDir(), "absent.txt"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
