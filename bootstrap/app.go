package bootstrap

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"evtriage/config"
	"evtriage/core"
	"evtriage/detect"
	"evtriage/ingest"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// State is the orchestrator's position in a run.
type State int32

const (
	StateIdle State = iota
	StateIngesting
	StateDeserializing
	StateRouting
	StateReporting
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateIngesting:
		return "ingesting"
	case StateDeserializing:
		return "deserializing"
	case StateRouting:
		return "routing"
	case StateReporting:
		return "reporting"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// RunSummary describes a finished (or failed) run.
type RunSummary struct {
	RunID      string
	Source     string
	State      State
	StartedAt  time.Time
	FinishedAt time.Time

	Records int
	Batches int
	Events  int
	Dropped int

	// Findings counts findings per detector name.
	Findings map[string]int

	// SavedTo is the findings database the run was written to, if any.
	SavedTo string

	// Warnings lists post-run steps that failed without failing the run.
	Warnings []string
}

// TotalFindings sums Findings.
func (s *RunSummary) TotalFindings() int {
	total := 0
	for _, n := range s.Findings {
		total += n
	}
	return total
}

// App wires the decoder, pattern store and detectors into a single run.
type App struct {
	Config  *config.Config
	Sugar   *zap.SugaredLogger
	Store   *config.Store
	Decoder ingest.Decoder
	Out     io.Writer

	configFile string
	state      atomic.Int32
}

// Option configures an App.
type Option func(*App)

// WithDecoder replaces the extension-based archive decoder.
func WithDecoder(d ingest.Decoder) Option {
	return func(a *App) { a.Decoder = d }
}

// WithPatternSource replaces the file-backed pattern lists.
func WithPatternSource(src config.PatternSource) Option {
	return func(a *App) { a.Store = config.NewStore(a.Config, src, a.Sugar) }
}

// WithOutput sets where reports are written. Defaults to stdout.
func WithOutput(w io.Writer) Option {
	return func(a *App) { a.Out = w }
}

// WithConfigFile records the config file the settings came from, for logging.
func WithConfigFile(path string) Option {
	return func(a *App) { a.configFile = path }
}

// NewApp creates an idle App. A nil cfg uses config.Default and a nil logger
// discards logs.
func NewApp(cfg *config.Config, sugar *zap.SugaredLogger, opts ...Option) *App {
	if cfg == nil {
		cfg = config.Default()
	}
	if sugar == nil {
		sugar = zap.NewNop().Sugar()
	}
	app := &App{
		Config:  cfg,
		Sugar:   sugar,
		Decoder: ingest.NewArchiveDecoder(sugar),
		Out:     os.Stdout,
	}
	for _, opt := range opts {
		opt(app)
	}
	if app.Store == nil {
		app.Store = config.NewStore(cfg, nil, sugar)
	}
	return app
}

// State returns the current run state.
func (a *App) State() State {
	return State(a.state.Load())
}

func (a *App) setState(s State) {
	a.state.Store(int32(s))
	a.Sugar.Debugw("Run state changed", "state", s.String())
}

// Run triages the archive at path: decode, deserialize in parallel, route
// sequentially, then print every detector's report. Post-run persistence
// failures are logged and recorded in the summary without failing the run.
func (a *App) Run(path string) (*RunSummary, error) {
	summary := &RunSummary{
		RunID:     uuid.NewString(),
		Source:    path,
		StartedAt: time.Now(),
		Findings:  make(map[string]int),
	}
	logConfig(a.Sugar, a.Config, a.configFile)

	fail := func(err error) (*RunSummary, error) {
		a.setState(StateFailed)
		summary.State = StateFailed
		summary.FinishedAt = time.Now()
		a.Sugar.Errorw("Run failed", "run_id", summary.RunID, "path", path, "error", err)
		return summary, err
	}

	a.setState(StateIngesting)
	records, err := a.Decoder.Decode(path)
	if err != nil {
		return fail(err)
	}
	summary.Records = len(records)
	a.Sugar.Infow("Archive decoded", "run_id", summary.RunID, "path", path, "records", len(records))

	a.setState(StateDeserializing)
	snap := a.Store.Get()
	batches, err := ingest.Chunks(records, a.Config.Engine.ChunkSize)
	if err != nil {
		return fail(fmt.Errorf("failed to batch records: %w", err))
	}
	events, stats := ingest.DeserializeAll(batches, a.Store.ThreadNum(), a.Sugar)
	if a.Config.Engine.PreserveOrder {
		core.SortByRecordID(events)
	}
	summary.Batches = stats.Batches
	summary.Events = len(events)
	summary.Dropped = stats.Dropped

	a.setState(StateRouting)
	router, err := detect.NewDefaultRouter(snap, a.Sugar)
	if err != nil {
		return fail(fmt.Errorf("failed to build detectors: %w", err))
	}
	for _, event := range events {
		router.Route(event)
	}

	a.setState(StateReporting)
	if err := router.ReportAll(a.Out); err != nil {
		return fail(fmt.Errorf("failed to write reports: %w", err))
	}

	findings := router.Findings()
	for _, f := range findings {
		summary.Findings[f.Detector]++
	}
	summary.FinishedAt = time.Now()
	summary.State = StateDone

	a.persist(summary, findings)

	a.setState(StateDone)
	a.Sugar.Infow("Run complete",
		"run_id", summary.RunID,
		"events", summary.Events,
		"dropped", summary.Dropped,
		"findings", summary.TotalFindings(),
		"duration", summary.FinishedAt.Sub(summary.StartedAt))
	return summary, nil
}
