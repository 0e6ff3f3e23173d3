package detect

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"unicode/utf8"

	"evtriage/config"
	"evtriage/patterns"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/unicode"
)

// maxDecodedSize caps how much a gzip payload may expand to.
const maxDecodedSize = 1 << 20

// Result lines emitted by the analyzer.
const (
	ResultBase64           = "Base64-encoded function"
	ResultBase64Compressed = "Base64-encoded and compressed function"

	// ResultBase64Undecodable is raised when the encoded-command or
	// FromBase64String form is present but the payload does not decode.
	ResultBase64Undecodable = "Base64-encoded function (payload could not be decoded)"
)

var errEmptyPayload = errors.New("empty base64 payload")

// Analysis is what the analyzer found in one command line. Results is empty
// when nothing suspicious was seen. The value is shared through the cache and
// must be treated as read-only.
type Analysis struct {
	Results []string
	Decoded string
}

// Suspicious reports whether any result was produced.
func (a Analysis) Suspicious() bool {
	return len(a.Results) > 0
}

// CommandAnalyzer inspects command lines and script text for the indicators
// incident responders look for first: user-listed patterns, excessive length,
// obfuscation, and base64 payloads. Detectors call it from the single
// detection goroutine; the cache itself is synchronized.
type CommandAnalyzer struct {
	registry  *patterns.Registry
	whitelist []string
	detection []patterns.NamedPattern
	settings  config.DetectionConfig
	cache     *lru.Cache[string, Analysis]
	logger    *zap.SugaredLogger

	encoded       *patterns.Entry
	encodedPrefix *patterns.Entry
	fromBase64    *patterns.Entry
	fromB64Prefix *patterns.Entry
	quotedTail    *patterns.Entry
	gzipStream    *patterns.Entry
	commonSymbols *patterns.Entry
	binaryDigits  *patterns.Entry
}

// NewCommandAnalyzer builds an analyzer over the snapshot's patterns and thresholds.
func NewCommandAnalyzer(snap *config.Snapshot, logger *zap.SugaredLogger) (*CommandAnalyzer, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	settings := snap.Settings
	if settings == nil {
		settings = config.Default()
	}

	cache, err := lru.New[string, Analysis](settings.Engine.CommandCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create command cache: %w", err)
	}

	r := snap.Registry
	return &CommandAnalyzer{
		registry:      r,
		whitelist:     snap.Whitelist,
		detection:     snap.Detection,
		settings:      settings.Detection,
		cache:         cache,
		logger:        logger,
		encoded:       r.MustGet(patterns.EncodedCommand),
		encodedPrefix: r.MustGet(patterns.EncodedCommandPrefix),
		fromBase64:    r.MustGet(patterns.FromBase64),
		fromB64Prefix: r.MustGet(patterns.FromBase64Prefix),
		quotedTail:    r.MustGet(patterns.QuotedTail),
		gzipStream:    r.MustGet(patterns.GzipDecompress),
		commonSymbols: r.MustGet(patterns.CommonSymbols),
		binaryDigits:  r.MustGet(patterns.BinaryDigits),
	}, nil
}

// Analyze returns the analysis of command, computing it at most once per
// distinct command while it stays cached.
func (a *CommandAnalyzer) Analyze(command string) Analysis {
	if command == "" {
		return Analysis{}
	}
	if cached, ok := a.cache.Get(command); ok {
		return cached
	}
	result := a.analyze(command)
	a.cache.Add(command, result)
	return result
}

// MatchDetection returns the names of detection patterns that match text.
func (a *CommandAnalyzer) MatchDetection(text string) []string {
	var names []string
	for _, np := range a.detection {
		if a.matches(np.Pattern, text) {
			names = append(names, np.Name)
		}
	}
	return names
}

func (a *CommandAnalyzer) analyze(command string) Analysis {
	for _, src := range a.whitelist {
		if a.matches(src, command) {
			return Analysis{}
		}
	}

	var out Analysis
	if len(command) >= a.settings.MinCommandLength {
		out.Results = append(out.Results, fmt.Sprintf("Long Command Line: greater than %d bytes", a.settings.MinCommandLength))
	}
	out.Results = append(out.Results, a.obfuscation(command)...)
	out.Results = append(out.Results, a.MatchDetection(command)...)

	payload, found := a.extractBase64(command)
	if !found {
		return out
	}

	decoded, result, err := a.decodePayload(command, payload)
	if err != nil {
		a.logger.Debugw("Encoded payload could not be decoded", "error", err)
		out.Results = append(out.Results, ResultBase64Undecodable)
		return out
	}
	out.Decoded = decoded
	out.Results = append(out.Results, result)
	if result == ResultBase64 {
		out.Results = append(out.Results, a.obfuscation(decoded)...)
		out.Results = append(out.Results, a.MatchDetection(decoded)...)
	}
	return out
}

// decodePayload turns a base64 payload into script text. Gzip payloads are
// inflated; anything else is read as UTF-16LE (the -EncodedCommand encoding)
// unless it is NUL-free UTF-8.
func (a *CommandAnalyzer) decodePayload(command, payload string) (string, string, error) {
	raw, err := decodeBase64(payload)
	if err != nil {
		return "", "", err
	}

	if a.match(a.gzipStream, command) {
		text, truncated, err := gunzip(raw)
		if err != nil {
			return "", "", fmt.Errorf("gzip: %w", err)
		}
		if truncated {
			a.logger.Debugw("Decompressed payload truncated", "limit_bytes", maxDecodedSize)
		}
		return text, ResultBase64Compressed, nil
	}

	text, err := decodeScriptText(raw)
	if err != nil {
		return "", "", err
	}
	return text, ResultBase64, nil
}

// extractBase64 returns the base64 argument of an -EncodedCommand flag or a
// FromBase64String call. found is true whenever either form is present, even
// if no payload characters follow.
func (a *CommandAnalyzer) extractBase64(command string) (payload string, found bool) {
	if a.match(a.encoded, command) {
		return leadingBase64(a.replace(a.encodedPrefix, command)), true
	}
	if a.match(a.fromBase64, command) {
		stripped := a.replace(a.fromB64Prefix, command)
		return leadingBase64(a.replace(a.quotedTail, stripped)), true
	}
	return "", false
}

// leadingBase64 returns the run of base64 alphabet characters at the start
// of s, after surrounding whitespace is trimmed.
func leadingBase64(s string) string {
	s = strings.TrimSpace(s)
	end := strings.IndexFunc(s, func(r rune) bool {
		return !(r >= 'A' && r <= 'Z' || r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '+' || r == '/' || r == '=')
	})
	if end >= 0 {
		s = s[:end]
	}
	return s
}

// obfuscation flags text made mostly of unusual symbols or of binary digits.
// Short strings get a proportionally lower alphanumeric threshold.
func (a *CommandAnalyzer) obfuscation(text string) []string {
	lower := strings.ToLower(text)
	length := len(lower)
	if length == 0 {
		return nil
	}
	var results []string

	minPercent := math.Min(a.settings.MinAlphaPercent, float64(length)/100)
	noAlpha := a.replace(a.commonSymbols, lower)
	percent := float64(length-len(noAlpha)) / float64(length)
	if percent < minPercent {
		results = append(results, fmt.Sprintf("Possible command obfuscation: only %.0f%% alphanumeric and common symbols", percent*100))
	}

	noBinary := a.replace(a.binaryDigits, lower)
	binaryPercent := 1 - float64(len(noBinary))/float64(length)
	if binaryPercent > a.settings.MaxBinaryPercent {
		results = append(results, fmt.Sprintf("Possible command obfuscation: %.0f%% zeroes and ones", binaryPercent*100))
	}
	return results
}

func (a *CommandAnalyzer) matches(src, text string) bool {
	e, ok := a.registry.Get(src)
	if !ok {
		return false
	}
	return a.match(e, text)
}

func (a *CommandAnalyzer) match(e *patterns.Entry, text string) bool {
	ok, err := e.MatchString(text)
	if err != nil {
		a.logger.Debugw("Pattern match abandoned", "error", err)
		return false
	}
	return ok
}

func (a *CommandAnalyzer) replace(e *patterns.Entry, text string) string {
	out, err := e.ReplaceAll(text, "")
	if err != nil {
		a.logger.Debugw("Pattern replace abandoned", "error", err)
	}
	return out
}

// decodeBase64 accepts padded, unpadded and mis-padded standard encodings.
// A dangling sixth-bit character at the end is dropped.
func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimRight(s, "=")
	if len(s)%4 == 1 {
		s = s[:len(s)-1]
	}
	if s == "" {
		return nil, errEmptyPayload
	}
	b, err := base64.RawStdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid base64: %w", err)
	}
	return b, nil
}

// decodeScriptText reads UTF-16LE, ignoring an odd trailing byte. Payloads
// without NUL bytes that are valid UTF-8 are returned as is.
func decodeScriptText(b []byte) (string, error) {
	if bytes.IndexByte(b, 0) < 0 && utf8.Valid(b) {
		return string(b), nil
	}
	if len(b)%2 != 0 {
		b = b[:len(b)-1]
	}
	out, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder().Bytes(b)
	if err != nil {
		return "", fmt.Errorf("utf-16: %w", err)
	}
	return string(out), nil
}

// gunzip inflates at most maxDecodedSize bytes and reports whether the
// payload was longer.
func gunzip(b []byte) (string, bool, error) {
	zr, err := gzip.NewReader(bytes.NewReader(b))
	if err != nil {
		return "", false, err
	}
	defer zr.Close()

	out, err := io.ReadAll(io.LimitReader(zr, maxDecodedSize+1))
	if err != nil {
		return "", false, err
	}
	if len(out) > maxDecodedSize {
		return string(out[:maxDecodedSize]), true, nil
	}
	return string(out), false, nil
}
