package detect

import (
	"fmt"
	"io"
	"strings"
	"time"

	"evtriage/core"

	"github.com/fatih/color"
)

var (
	headerColor  = color.New(color.FgBlue, color.Bold)
	messageColor = color.New(color.FgRed, color.Bold)
	quietColor   = color.New(color.FgGreen)
	labelColor   = color.New(color.FgCyan)
)

const ruleWidth = 80

// reportWriter remembers the first write error so report code can print
// freely and check once.
type reportWriter struct {
	w   io.Writer
	err error
}

func (r *reportWriter) printf(c *color.Color, format string, args ...any) {
	if r.err != nil {
		return
	}
	if c != nil {
		_, r.err = c.Fprintf(r.w, format, args...)
		return
	}
	_, r.err = fmt.Fprintf(r.w, format, args...)
}

func (r *reportWriter) header(title string) {
	r.printf(headerColor, "%s\n", title)
	r.printf(headerColor, "%s\n", strings.Repeat("=", ruleWidth))
}

func (r *reportWriter) field(label, value string) {
	if value == "" {
		return
	}
	lines := strings.Split(strings.TrimRight(value, "\n"), "\n")
	r.printf(labelColor, "%-8s: ", label)
	r.printf(nil, "%s\n", lines[0])
	for _, line := range lines[1:] {
		r.printf(nil, "%-8s  %s\n", "", line)
	}
}

// WriteFindings renders findings in the date/log/event/message block layout
// responders are used to from DeepBlueCLI.
func WriteFindings(w io.Writer, title string, findings []core.Finding) error {
	rw := &reportWriter{w: w}
	rw.header(title)
	if len(findings) == 0 {
		rw.printf(quietColor, "No findings.\n\n")
		return rw.err
	}
	for _, f := range findings {
		rw.field("Date", formatTime(f.Timestamp))
		rw.field("Log", f.Channel)
		rw.field("EventID", f.EventID)
		rw.printf(labelColor, "%-8s: ", "Message")
		rw.printf(messageColor, "%s\n", f.Message)
		rw.field("Results", strings.Join(f.Results, "\n"))
		rw.field("Command", f.Command)
		rw.field("Decoded", f.Decoded)
		rw.printf(nil, "\n")
	}
	rw.printf(nil, "%d finding(s)\n\n", len(findings))
	return rw.err
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}
