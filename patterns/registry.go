// Package patterns holds the compiled regular expressions detectors consult.
//
// Patterns are compiled with github.com/dlclark/regexp2 so that the .NET
// syntax used by published indicator lists works unchanged, and so that every
// match is bounded by a timeout.
package patterns

import (
	"errors"
	"fmt"
	"time"

	"evtriage/metrics"

	"github.com/dlclark/regexp2"
)

// DefaultMatchTimeout bounds a single match against one input string.
const DefaultMatchTimeout = 500 * time.Millisecond

// Origins record which source last inserted an entry.
const (
	OriginBuiltin   = "builtin"
	OriginWhitelist = "whitelist"
	OriginDetection = "detection"
)

var (
	// ErrPatternNotFound is returned when a source string was never registered.
	ErrPatternNotFound = errors.New("pattern not registered")

	// ErrMatchTimeout is returned when a match exceeds the registry's timeout.
	ErrMatchTimeout = errors.New("pattern match timeout")
)

// CompileError reports a pattern that could not be compiled.
type CompileError struct {
	Source string
	Origin string
	Err    error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("invalid %s pattern %q: %v", e.Origin, e.Source, e.Err)
}

func (e *CompileError) Unwrap() error {
	return e.Err
}

// Entry is a pattern's source text with its compiled matcher.
type Entry struct {
	Source  string
	Origin  string
	Matcher *regexp2.Regexp
}

// MatchString reports whether input contains a match. A timeout is counted
// and returned as ErrMatchTimeout.
func (e *Entry) MatchString(input string) (bool, error) {
	ok, err := e.Matcher.MatchString(input)
	if err != nil {
		metrics.RegexTimeouts.Inc()
		return false, fmt.Errorf("%w: %q: %v", ErrMatchTimeout, e.Source, err)
	}
	return ok, nil
}

// ReplaceAll replaces every match in input with repl.
func (e *Entry) ReplaceAll(input, repl string) (string, error) {
	out, err := e.Matcher.Replace(input, repl, -1, -1)
	if err != nil {
		metrics.RegexTimeouts.Inc()
		return input, fmt.Errorf("%w: %q: %v", ErrMatchTimeout, e.Source, err)
	}
	return out, nil
}

// Registry caches compiled patterns keyed by their source text. It holds at
// most one entry per source; inserting a source again replaces the previous
// entry.
//
// Insert is not safe for concurrent use. Once built, a Registry is only read
// and may be shared freely.
type Registry struct {
	entries          map[string]*Entry
	order            []string
	options          regexp2.RegexOptions
	whitelistOptions regexp2.RegexOptions
	timeout          time.Duration
}

// Option configures a Registry.
type Option func(*Registry)

// WithIgnoreCase compiles detection patterns case-insensitively. Built-ins
// always ignore case and whitelist entries follow WithWhitelistIgnoreCase.
func WithIgnoreCase(enabled bool) Option {
	return func(r *Registry) {
		r.options = setIgnoreCase(r.options, enabled)
	}
}

// WithWhitelistIgnoreCase compiles whitelist entries case-insensitively.
func WithWhitelistIgnoreCase(enabled bool) Option {
	return func(r *Registry) {
		r.whitelistOptions = setIgnoreCase(r.whitelistOptions, enabled)
	}
}

func setIgnoreCase(opts regexp2.RegexOptions, enabled bool) regexp2.RegexOptions {
	if enabled {
		return opts | regexp2.IgnoreCase
	}
	return opts &^ regexp2.IgnoreCase
}

// WithMatchTimeout sets the per-match timeout. Non-positive values keep the default.
func WithMatchTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// NewRegistry returns an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		entries:          make(map[string]*Entry),
		options:          regexp2.None,
		whitelistOptions: regexp2.None,
		timeout:          DefaultMatchTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Insert compiles source and stores it, replacing any entry with the same
// source text. On failure the registry is left unchanged.
func (r *Registry) Insert(source, origin string) error {
	re, err := regexp2.Compile(source, r.optionsFor(origin))
	if err != nil {
		return &CompileError{Source: source, Origin: origin, Err: err}
	}
	re.MatchTimeout = r.timeout

	if _, exists := r.entries[source]; !exists {
		r.order = append(r.order, source)
	}
	r.entries[source] = &Entry{Source: source, Origin: origin, Matcher: re}
	return nil
}

// Get returns the entry registered for source.
func (r *Registry) Get(source string) (*Entry, bool) {
	e, ok := r.entries[source]
	return e, ok
}

// MustGet returns the entry for source and panics if it is absent. It is meant
// for built-in patterns, which are always registered.
func (r *Registry) MustGet(source string) *Entry {
	e, ok := r.entries[source]
	if !ok {
		panic(fmt.Sprintf("patterns: %q is not registered", source))
	}
	return e
}

// Match reports whether the pattern registered for source matches input.
func (r *Registry) Match(source, input string) (bool, error) {
	e, ok := r.entries[source]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrPatternNotFound, source)
	}
	return e.MatchString(input)
}

// Len returns the number of distinct sources.
func (r *Registry) Len() int {
	return len(r.entries)
}

// Sources lists registered sources in first-insertion order.
func (r *Registry) Sources() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

func (r *Registry) optionsFor(origin string) regexp2.RegexOptions {
	switch origin {
	case OriginBuiltin:
		// Built-ins match command-line switches such as -Enc in any case.
		return r.options | regexp2.IgnoreCase
	case OriginWhitelist:
		return r.whitelistOptions
	default:
		return r.options
	}
}
