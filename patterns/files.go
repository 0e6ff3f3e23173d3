package patterns

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// NamedPattern is one row of the detection file.
type NamedPattern struct {
	Name    string `json:"name" yaml:"name"`
	Pattern string `json:"pattern" yaml:"pattern"`
}

// ReadResult carries the rows accepted from a pattern file and the number of
// rows that were skipped as malformed.
type ReadResult[T any] struct {
	Rows    []T
	Skipped int
	// Issues holds one message per skipped row, for debug logging.
	Issues []string
}

// ReadDetectionFile reads name,pattern rows from path.
func ReadDetectionFile(path string) (ReadResult[NamedPattern], error) {
	f, err := os.Open(path)
	if err != nil {
		return ReadResult[NamedPattern]{}, fmt.Errorf("open detection file: %w", err)
	}
	defer f.Close()
	return ParseDetection(f)
}

// ReadWhitelistFile reads single-column pattern rows from path.
func ReadWhitelistFile(path string) (ReadResult[string], error) {
	f, err := os.Open(path)
	if err != nil {
		return ReadResult[string]{}, fmt.Errorf("open whitelist file: %w", err)
	}
	defer f.Close()
	return ParseWhitelist(f)
}

// ParseDetection parses detection rows. The pattern lives in the second
// column; a row without one is skipped. An empty name falls back to the
// pattern text.
func ParseDetection(r io.Reader) (ReadResult[NamedPattern], error) {
	var res ReadResult[NamedPattern]
	err := eachRecord(r, func(line int, rec []string) {
		if len(rec) < 2 || strings.TrimSpace(rec[1]) == "" {
			res.Skipped++
			res.Issues = append(res.Issues, fmt.Sprintf("line %d: missing pattern column", line))
			return
		}
		if line == 1 && isHeader(rec[1]) {
			return
		}
		name := strings.TrimSpace(rec[0])
		pattern := strings.TrimSpace(rec[1])
		if name == "" {
			name = pattern
		}
		res.Rows = append(res.Rows, NamedPattern{Name: name, Pattern: pattern})
	}, &res.Skipped, &res.Issues)
	return res, err
}

// ParseWhitelist parses whitelist rows. The pattern lives in the first column.
func ParseWhitelist(r io.Reader) (ReadResult[string], error) {
	var res ReadResult[string]
	err := eachRecord(r, func(line int, rec []string) {
		pattern := strings.TrimSpace(rec[0])
		if pattern == "" {
			res.Skipped++
			res.Issues = append(res.Issues, fmt.Sprintf("line %d: empty pattern", line))
			return
		}
		if line == 1 && isHeader(pattern) {
			return
		}
		res.Rows = append(res.Rows, pattern)
	}, &res.Skipped, &res.Issues)
	return res, err
}

// eachRecord calls fn for every well-formed CSV record. Records the CSV reader
// rejects are counted in skipped. line is the 1-based record ordinal.
func eachRecord(r io.Reader, fn func(line int, rec []string), skipped *int, issues *[]string) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	line := 0
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			return nil
		}
		line++
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				*skipped++
				*issues = append(*issues, perr.Error())
				continue
			}
			return fmt.Errorf("read pattern file: %w", err)
		}
		if line == 1 && len(rec) > 0 {
			rec[0] = strings.TrimPrefix(rec[0], "\ufeff")
		}
		if len(rec) == 0 {
			continue
		}
		fn(line, rec)
	}
}

func isHeader(field string) bool {
	field = strings.TrimSpace(field)
	return strings.EqualFold(field, "regex") || strings.EqualFold(field, "pattern")
}
