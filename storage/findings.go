package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"evtriage/core"

	"github.com/google/uuid"
)

// RunRecord describes one triage run.
type RunRecord struct {
	ID         string    `json:"id" yaml:"id"`
	Source     string    `json:"source" yaml:"source"`
	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time `json:"finished_at" yaml:"finished_at"`
	Records    int       `json:"records" yaml:"records"`
	Events     int       `json:"events" yaml:"events"`
	Dropped    int       `json:"dropped" yaml:"dropped"`
}

// SaveRun writes the run and all of its findings in one transaction.
func (s *SQLite) SaveRun(ctx context.Context, run RunRecord, findings []core.Finding) error {
	if _, err := uuid.Parse(run.ID); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidRunID, run.ID)
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, source, started_at, finished_at, records, events, dropped) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Source, formatTimestamp(run.StartedAt), formatTimestamp(run.FinishedAt), run.Records, run.Events, run.Dropped)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO findings (run_id, detector, channel, event_id, record_id, timestamp, message, results, command, decoded)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare finding insert: %w", err)
	}
	defer stmt.Close()

	for _, f := range findings {
		results, err := json.Marshal(nonNil(f.Results))
		if err != nil {
			return fmt.Errorf("failed to encode results: %w", err)
		}
		_, err = stmt.ExecContext(ctx, run.ID, f.Detector, f.Channel, f.EventID, int64(f.RecordID),
			formatTimestamp(f.Timestamp), f.Message, string(results), f.Command, f.Decoded)
		if err != nil {
			return fmt.Errorf("failed to insert finding: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	s.Logger.Debugw("Run persisted", "run_id", run.ID, "findings", len(findings))
	return nil
}

// GetRun loads a run by id.
func (s *SQLite) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	var (
		run             RunRecord
		started, finish string
	)
	err := s.DB.QueryRowContext(ctx,
		`SELECT id, source, started_at, finished_at, records, events, dropped FROM runs WHERE id = ?`, id).
		Scan(&run.ID, &run.Source, &started, &finish, &run.Records, &run.Events, &run.Dropped)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}
	if run.StartedAt, err = parseTimestamp(started); err != nil {
		return nil, err
	}
	if run.FinishedAt, err = parseTimestamp(finish); err != nil {
		return nil, err
	}
	return &run, nil
}

// ListFindings returns a run's findings in insertion order.
func (s *SQLite) ListFindings(ctx context.Context, runID string) ([]core.Finding, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT detector, channel, event_id, record_id, timestamp, message, results, command, decoded
		 FROM findings WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query findings: %w", err)
	}
	defer rows.Close()

	var out []core.Finding
	for rows.Next() {
		var (
			f        core.Finding
			recordID int64
			ts       string
			results  string
		)
		if err := rows.Scan(&f.Detector, &f.Channel, &f.EventID, &recordID, &ts, &f.Message, &results, &f.Command, &f.Decoded); err != nil {
			return nil, fmt.Errorf("failed to scan finding: %w", err)
		}
		f.RecordID = uint64(recordID)
		if f.Timestamp, err = parseTimestamp(ts); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(results), &f.Results); err != nil {
			return nil, fmt.Errorf("failed to decode results: %w", err)
		}
		if len(f.Results) == 0 {
			f.Results = nil
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// CountFindings returns the number of findings per detector for a run.
func (s *SQLite) CountFindings(ctx context.Context, runID string) (map[string]int, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT detector, COUNT(*) FROM findings WHERE run_id = ? GROUP BY detector`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to count findings: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			detector string
			n        int
		)
		if err := rows.Scan(&detector, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[detector] = n
	}
	return counts, rows.Err()
}

func nonNil(results []string) []string {
	if results == nil {
		return []string{}
	}
	return results
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid stored timestamp %q: %w", s, err)
	}
	return t, nil
}
