package config

import (
	"errors"
	"sync"
	"time"

	"evtriage/metrics"
	"evtriage/patterns"

	"go.uber.org/zap"
)

// PatternSource supplies the user pattern lists.
type PatternSource interface {
	LoadDetection() (patterns.ReadResult[patterns.NamedPattern], error)
	LoadWhitelist() (patterns.ReadResult[string], error)
}

// FileSource reads the pattern lists from CSV files on disk.
type FileSource struct {
	DetectionFile string
	WhitelistFile string
}

// NewFileSource returns a FileSource for the files named in cfg.
func NewFileSource(cfg PatternsConfig) *FileSource {
	return &FileSource{DetectionFile: cfg.DetectionFile, WhitelistFile: cfg.WhitelistFile}
}

func (s *FileSource) LoadDetection() (patterns.ReadResult[patterns.NamedPattern], error) {
	return patterns.ReadDetectionFile(s.DetectionFile)
}

func (s *FileSource) LoadWhitelist() (patterns.ReadResult[string], error) {
	return patterns.ReadWhitelistFile(s.WhitelistFile)
}

// Snapshot is the immutable configuration detectors read from. Detection and
// Whitelist only list patterns that compiled; the rest are in Rejected.
type Snapshot struct {
	WorkerCount int
	Detection   []patterns.NamedPattern
	Whitelist   []string
	Registry    *patterns.Registry
	Rejected    []*patterns.CompileError
	Settings    *Config
}

// Store builds the Snapshot on first use and hands out the same instance
// afterwards.
type Store struct {
	cfg    *Config
	source PatternSource
	logger *zap.SugaredLogger

	once     sync.Once
	snapshot *Snapshot
}

// NewStore creates a Store. A nil cfg uses Default() and a nil source reads
// the files named in cfg.
func NewStore(cfg *Config, source PatternSource, logger *zap.SugaredLogger) *Store {
	if cfg == nil {
		cfg = Default()
	}
	if source == nil {
		source = NewFileSource(cfg.Patterns)
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Store{cfg: cfg, source: source, logger: logger}
}

// Get returns the snapshot, building it exactly once even under concurrent
// first access.
func (s *Store) Get() *Snapshot {
	s.once.Do(func() {
		s.snapshot = s.build()
	})
	return s.snapshot
}

// ThreadNum returns the configured worker count, never less than one.
func (s *Store) ThreadNum() int {
	if s.cfg.Engine.WorkerCount < 1 {
		return 1
	}
	return s.cfg.Engine.WorkerCount
}

// Settings returns the configuration the store was created with.
func (s *Store) Settings() *Config {
	return s.cfg
}

func (s *Store) build() *Snapshot {
	start := time.Now()
	registry := patterns.NewRegistry(
		patterns.WithIgnoreCase(s.cfg.Patterns.IgnoreCase),
		patterns.WithWhitelistIgnoreCase(s.cfg.Patterns.WhitelistIgnoreCase),
		patterns.WithMatchTimeout(time.Duration(s.cfg.Engine.RegexTimeoutMS)*time.Millisecond),
	)
	patterns.RegisterBuiltins(registry)

	snap := &Snapshot{
		WorkerCount: s.ThreadNum(),
		Registry:    registry,
		Settings:    s.cfg,
	}

	whitelist, err := s.source.LoadWhitelist()
	if err != nil {
		s.logger.Warnw("Whitelist unavailable, continuing without it", "error", err)
	}
	s.logIssues("whitelist", whitelist.Issues)
	for _, src := range whitelist.Rows {
		if s.insert(snap, src, patterns.OriginWhitelist) {
			snap.Whitelist = append(snap.Whitelist, src)
		}
	}

	detection, err := s.source.LoadDetection()
	if err != nil {
		s.logger.Warnw("Detection patterns unavailable, continuing without them", "error", err)
	}
	s.logIssues("detection", detection.Issues)
	for _, np := range detection.Rows {
		if s.insert(snap, np.Pattern, patterns.OriginDetection) {
			snap.Detection = append(snap.Detection, np)
		}
	}

	s.logger.Infow("Pattern registry built",
		"patterns", registry.Len(),
		"whitelist", len(snap.Whitelist),
		"detection", len(snap.Detection),
		"rejected", len(snap.Rejected),
		"duration", time.Since(start))
	return snap
}

func (s *Store) insert(snap *Snapshot, src, origin string) bool {
	if prev, ok := snap.Registry.Get(src); ok && prev.Origin != origin {
		s.logger.Debugw("Pattern registered by more than one source", "pattern", src, "previous", prev.Origin, "origin", origin)
	}
	err := snap.Registry.Insert(src, origin)
	if err == nil {
		return true
	}
	var cerr *patterns.CompileError
	if errors.As(err, &cerr) {
		snap.Rejected = append(snap.Rejected, cerr)
	}
	metrics.PatternsRejected.WithLabelValues(origin).Inc()
	s.logger.Warnw("Skipping invalid pattern", "origin", origin, "pattern", src, "error", err)
	return false
}

func (s *Store) logIssues(origin string, issues []string) {
	for _, issue := range issues {
		s.logger.Debugw("Skipped malformed pattern row", "origin", origin, "issue", issue)
	}
}
