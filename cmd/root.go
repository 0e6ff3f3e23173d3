// Package cmd provides the evtriage command line.
package cmd

import (
	"fmt"
	"time"

	"evtriage/bootstrap"
	"evtriage/ingest"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// CLI output formatters
var (
	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow)
	infoColor    = color.New(color.FgCyan)
)

// flagKeys maps flags to the viper keys they override.
var flagKeys = map[string]string{
	"threadnumber": "engine.worker_count",
	"chunk-size":   "engine.chunk_size",
	"regexes":      "patterns.detection_file",
	"whitelist":    "patterns.whitelist_file",
	"export":       "output.export_file",
	"findings-db":  "output.findings_db",
	"metrics-file": "output.metrics_file",
	"no-color":     "output.no_color",
	"quiet":        "output.quiet",
}

type rootOptions struct {
	filePath   string
	credits    bool
	configFile string
	verbose    bool
}

// NewRootCmd creates the evtriage command.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "evtriage",
		Short: "Triage Windows event logs for signs of compromise",
		Long: `Triage a Windows event log archive (.evtx, or an XML export) and print
findings per log channel: suspicious command lines, new services and users,
cleared logs, brute-force logons and more.

Detection patterns are read from regexes.txt (name,pattern) and suppressed by
whitelist.txt (one pattern per line).`,
		Example: `  evtriage -f Security.evtx
  evtriage -f Security.evtx -t 8 --export findings.json
  evtriage -c
  evtriage findings --db triage.db --run <run id>`,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoot(cmd, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.filePath, "filepath", "f", "", "Event log archive to triage (.evtx or .xml)")
	flags.IntP("threadnumber", "t", 1, "Number of deserialization workers")
	flags.BoolVarP(&opts.credits, "credits", "c", false, "Print credits")
	flags.StringVar(&opts.configFile, "config", "", "Config file path (default: evtriage.yaml in . or ./config)")
	flags.Int("chunk-size", ingest.DefaultChunkSize, "Records per deserialization batch")
	flags.String("regexes", "regexes.txt", "Detection pattern file (name,pattern)")
	flags.String("whitelist", "whitelist.txt", "Whitelist pattern file")
	flags.String("export", "", "Write findings to this .json, .yaml or .yml file")
	flags.String("findings-db", "", "Append findings to this SQLite database")
	flags.String("metrics-file", "", "Write Prometheus metrics to this textfile")
	flags.Bool("no-color", false, "Disable colored output")
	flags.Bool("quiet", false, "Suppress the progress spinner")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")

	bindFlags(flags)
	cmd.AddCommand(newFindingsCmd())
	return cmd
}

func bindFlags(flags *pflag.FlagSet) {
	for name, key := range flagKeys {
		// Every name in flagKeys is registered above.
		_ = viper.BindPFlag(key, flags.Lookup(name))
	}
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

func runRoot(cmd *cobra.Command, opts *rootOptions) error {
	if opts.filePath == "" && !opts.credits {
		return cmd.Help()
	}
	start := time.Now()

	cfg, err := bootstrap.InitConfig(opts.configFile)
	if err != nil {
		return err
	}
	if opts.verbose {
		cfg.Log.Level = "debug"
	}
	if cfg.Output.NoColor {
		color.NoColor = true
	}

	logger, sugar, err := bootstrap.InitLogger(cfg.Log.Level)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()

	if opts.filePath != "" {
		app := bootstrap.NewApp(cfg, sugar,
			bootstrap.WithOutput(out),
			bootstrap.WithConfigFile(opts.configFile))

		var s *spinner.Spinner
		if !cfg.Output.Quiet {
			s = spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(errOut))
			s.Suffix = " Triaging " + opts.filePath
			s.Start()
		}

		summary, err := app.Run(opts.filePath)

		if s != nil {
			s.Stop()
		}
		if err != nil {
			errorColor.Fprintf(errOut, "Triage failed: %v\n", err)
			return fmt.Errorf("triage %s: %w", opts.filePath, err)
		}
		renderWarnings(errOut, summary)
		if summary.SavedTo != "" {
			infoColor.Fprintf(out, "Run %s saved to %s\n", summary.RunID, summary.SavedTo)
		}
	}

	if opts.credits {
		printCredits(out, cfg.Output.CreditsFile)
	}

	fmt.Fprintln(out, formatElapsed(time.Since(start)))
	return nil
}
