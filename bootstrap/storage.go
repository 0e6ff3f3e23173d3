package bootstrap

import (
	"context"
	"fmt"
	"os"

	"evtriage/core"
	"evtriage/metrics"
	"evtriage/storage"

	"go.uber.org/zap"
)

// StoredRun is a run read back from a findings database.
type StoredRun struct {
	Run      *storage.RunRecord
	Findings []core.Finding
	Counts   map[string]int
}

// LoadRun reads one saved run and its findings from the database at path.
// A missing database is an error rather than a new empty file.
func LoadRun(ctx context.Context, path, runID string, sugar *zap.SugaredLogger) (*StoredRun, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("findings database: %w", err)
	}
	db, err := storage.NewSQLite(path, sugar)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	run, err := db.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	findings, err := db.ListFindings(ctx, runID)
	if err != nil {
		return nil, err
	}
	counts, err := db.CountFindings(ctx, runID)
	if err != nil {
		return nil, err
	}
	return &StoredRun{Run: run, Findings: findings, Counts: counts}, nil
}

// persist runs the optional post-run outputs. Each failure is logged and
// appended to summary.Warnings.
func (a *App) persist(summary *RunSummary, findings []core.Finding) {
	out := a.Config.Output
	run := storage.RunRecord{
		ID:         summary.RunID,
		Source:     summary.Source,
		StartedAt:  summary.StartedAt,
		FinishedAt: summary.FinishedAt,
		Records:    summary.Records,
		Events:     summary.Events,
		Dropped:    summary.Dropped,
	}

	if out.FindingsDB != "" {
		if err := a.saveFindings(out.FindingsDB, run, findings); err != nil {
			a.warn(summary, "findings database", err)
		} else {
			summary.SavedTo = out.FindingsDB
			a.Sugar.Infow("Findings saved", "path", out.FindingsDB, "run_id", run.ID, "findings", len(findings))
		}
	}

	if out.ExportFile != "" {
		if err := storage.ExportFindings(out.ExportFile, run, findings); err != nil {
			a.warn(summary, "findings export", err)
		} else {
			a.Sugar.Infow("Findings exported", "path", out.ExportFile, "findings", len(findings))
		}
	}

	if out.MetricsFile != "" {
		if err := metrics.WriteTextfile(out.MetricsFile, nil); err != nil {
			a.warn(summary, "metrics textfile", err)
		} else {
			a.Sugar.Debugw("Metrics written", "path", out.MetricsFile)
		}
	}
}

func (a *App) saveFindings(path string, run storage.RunRecord, findings []core.Finding) error {
	db, err := storage.NewSQLite(path, a.Sugar)
	if err != nil {
		return err
	}
	defer db.Close()

	return db.SaveRun(context.Background(), run, findings)
}

func (a *App) warn(summary *RunSummary, step string, err error) {
	msg := fmt.Sprintf("%s: %v", step, err)
	summary.Warnings = append(summary.Warnings, msg)
	a.Sugar.Warnw("Post-run step failed", "step", step, "error", err)
}
