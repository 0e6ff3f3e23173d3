package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"evtriage/bootstrap"
)

// printCredits copies the credits file to w verbatim.
func printCredits(w io.Writer, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(w, "Error : credits.txt not found , %v\n", err)
		return
	}
	_, _ = w.Write(data)
}

// renderWarnings lists post-run steps that failed.
func renderWarnings(w io.Writer, summary *bootstrap.RunSummary) {
	if summary == nil || len(summary.Warnings) == 0 {
		return
	}
	warningColor.Fprintf(w, "%d post-run step(s) failed:\n", len(summary.Warnings))
	for _, msg := range summary.Warnings {
		infoColor.Fprintf(w, "  - %s\n", msg)
	}
}

func formatElapsed(d time.Duration) string {
	return fmt.Sprintf("%.3f seconds elapsed.", d.Seconds())
}
