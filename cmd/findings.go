package cmd

import (
	"context"
	"fmt"
	"io"
	"sort"

	"evtriage/bootstrap"
	"evtriage/detect"

	"github.com/spf13/cobra"
)

type findingsOptions struct {
	dbPath string
	runID  string
}

// newFindingsCmd reads a run back out of a findings database written with
// --findings-db.
func newFindingsCmd() *cobra.Command {
	opts := &findingsOptions{}

	cmd := &cobra.Command{
		Use:          "findings",
		Short:        "Show a run saved in a findings database",
		Example:      `  evtriage findings --db triage.db --run 0b4c6f2e-5d3a-4f0e-9a77-2f1d8c0b9e41`,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFindings(cmd, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.dbPath, "db", "", "Findings database written with --findings-db")
	flags.StringVar(&opts.runID, "run", "", "Run id printed in the triage log")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("run")
	return cmd
}

func runFindings(cmd *cobra.Command, opts *findingsOptions) error {
	logger, sugar, err := bootstrap.InitLogger("warn")
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	stored, err := bootstrap.LoadRun(context.Background(), opts.dbPath, opts.runID, sugar)
	if err != nil {
		errorColor.Fprintf(cmd.ErrOrStderr(), "Cannot read run %s: %v\n", opts.runID, err)
		return err
	}

	out := cmd.OutOrStdout()
	renderRun(out, stored)
	return detect.WriteFindings(out, "Stored findings", stored.Findings)
}

// renderRun prints the run header and the per-detector totals.
func renderRun(w io.Writer, stored *bootstrap.StoredRun) {
	run := stored.Run
	infoColor.Fprintf(w, "Run %s\n", run.ID)
	fmt.Fprintf(w, "Source   : %s\n", run.Source)
	fmt.Fprintf(w, "Started  : %s\n", run.StartedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "Duration : %s\n", run.FinishedAt.Sub(run.StartedAt))
	fmt.Fprintf(w, "Records  : %d read, %d parsed, %d dropped\n", run.Records, run.Events, run.Dropped)

	detectors := make([]string, 0, len(stored.Counts))
	for name := range stored.Counts {
		detectors = append(detectors, name)
	}
	sort.Strings(detectors)
	for _, name := range detectors {
		fmt.Fprintf(w, "  %-12s %d\n", name, stored.Counts[name])
	}
	fmt.Fprintln(w)
}
