package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"evtriage/core"

	"gopkg.in/yaml.v3"
)

// Export is the document written by ExportFindings.
type Export struct {
	Run      RunRecord      `json:"run" yaml:"run"`
	Findings []core.Finding `json:"findings" yaml:"findings"`
}

// ExportFindings writes the run and its findings to path as JSON or YAML,
// chosen by the file extension.
func ExportFindings(path string, run RunRecord, findings []core.Finding) error {
	doc := Export{Run: run, Findings: findings}
	if doc.Findings == nil {
		doc.Findings = []core.Finding{}
	}

	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		data, err = json.MarshalIndent(doc, "", "  ")
	case ".yaml", ".yml":
		data, err = yaml.Marshal(doc)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	if err != nil {
		return fmt.Errorf("failed to encode findings: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}
	return nil
}
