package ingest

import (
	"encoding/xml"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"evtriage/core"
	"evtriage/metrics"
	"evtriage/util/goroutine"

	"github.com/Velocidex/ordereddict"
	"go.uber.org/zap"
	"www.velocidex.com/golang/evtx"
)

const formatEVTX = "evtx"

var errNoChunks = errors.New("container holds no chunks")

// systemAttrElements are System children whose dictionary entries are XML
// attributes rather than child elements.
var systemAttrElements = map[string]bool{
	"Provider":    true,
	"TimeCreated": true,
	"Correlation": true,
	"Execution":   true,
	"Security":    true,
}

// EvtxDecoder reads binary .evtx files. Each record's parsed dictionary is
// rendered back into Windows event XML so every format shares ParseEvent.
type EvtxDecoder struct {
	logger *zap.SugaredLogger
}

func NewEvtxDecoder(logger *zap.SugaredLogger) *EvtxDecoder {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &EvtxDecoder{logger: logger}
}

// Decode returns the records of every readable chunk. A chunk that fails to
// parse is logged and skipped; a file that cannot be opened or has no valid
// header is a ContainerError.
func (d *EvtxDecoder) Decode(path string) ([]core.RawRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ContainerError{Path: path, Format: formatEVTX, Err: err}
	}
	defer f.Close()

	chunks, err := evtx.GetChunks(f)
	if err != nil {
		return nil, &ContainerError{Path: path, Format: formatEVTX, Err: err}
	}
	if len(chunks) == 0 {
		return nil, &ContainerError{Path: path, Format: formatEVTX, Err: errNoChunks}
	}

	var records []core.RawRecord
	for i, chunk := range chunks {
		parsed, err := parseChunk(chunk, d.logger)
		if err != nil {
			metrics.RecordsDropped.WithLabelValues("chunk").Inc()
			d.logger.Warnw("Skipping unreadable chunk", "path", path, "chunk", i, "error", err)
			continue
		}
		for _, rec := range parsed {
			dict, ok := rec.Event.(*ordereddict.Dict)
			if !ok {
				metrics.RecordsDropped.WithLabelValues("parse").Inc()
				continue
			}
			records = append(records, core.RawRecord{
				RecordID: rec.Header.RecordID,
				Data:     RenderEventXML(dict),
			})
		}
	}

	metrics.RecordsDecoded.WithLabelValues(formatEVTX).Add(float64(len(records)))
	d.logger.Debugw("Decoded EVTX container", "path", path, "chunks", len(chunks), "records", len(records))
	return records, nil
}

func parseChunk(chunk *evtx.Chunk, logger *zap.SugaredLogger) (records []*evtx.EventRecord, err error) {
	defer goroutine.RecoverThen("evtx-chunk", logger, func(r any) {
		err = fmt.Errorf("chunk parser panic: %v", r)
	})
	return chunk.Parse(0)
}

// RenderEventXML writes a parsed record dictionary as an <Event> document.
// The dictionary may be the record itself or wrap it under an "Event" key.
func RenderEventXML(dict *ordereddict.Dict) string {
	if inner, ok := dict.Get("Event"); ok {
		if d, ok := inner.(*ordereddict.Dict); ok {
			dict = d
		}
	}

	var b strings.Builder
	b.WriteString(`<Event xmlns="http://schemas.microsoft.com/win/2004/08/events/event">`)
	for _, key := range dict.Keys() {
		value, _ := dict.Get(key)
		child, ok := value.(*ordereddict.Dict)
		if !ok {
			continue
		}
		switch key {
		case "System":
			renderSystem(&b, child)
		case "EventData":
			renderEventData(&b, child)
		default:
			renderElement(&b, key, child)
		}
	}
	b.WriteString("</Event>")
	return b.String()
}

func renderSystem(b *strings.Builder, sys *ordereddict.Dict) {
	b.WriteString("<System>")
	for _, key := range sys.Keys() {
		value, _ := sys.Get(key)
		child, isDict := value.(*ordereddict.Dict)
		switch {
		case isDict && systemAttrElements[key]:
			writeOpen(b, key)
			for _, attr := range child.Keys() {
				v, _ := child.Get(attr)
				if key == "TimeCreated" && attr == "SystemTime" {
					v = formatSystemTime(v)
				}
				writeAttr(b, attr, v)
			}
			b.WriteString("/>")
		case isDict:
			// EventID carries its number under Value plus an optional Qualifiers attribute.
			writeOpen(b, key)
			for _, attr := range child.Keys() {
				if attr == "Value" {
					continue
				}
				v, _ := child.Get(attr)
				writeAttr(b, attr, v)
			}
			b.WriteString(">")
			if v, ok := child.Get("Value"); ok {
				writeText(b, v)
			}
			writeClose(b, key)
		default:
			writeOpen(b, key)
			b.WriteString(">")
			writeText(b, value)
			writeClose(b, key)
		}
	}
	b.WriteString("</System>")
}

func renderEventData(b *strings.Builder, data *ordereddict.Dict) {
	b.WriteString("<EventData>")
	for _, key := range data.Keys() {
		value, _ := data.Get(key)
		if key == "Data" {
			if list, ok := value.([]interface{}); ok {
				for _, item := range list {
					b.WriteString("<Data>")
					writeText(b, item)
					b.WriteString("</Data>")
				}
				continue
			}
		}
		b.WriteString(`<Data Name="`)
		_ = xml.EscapeText(b, []byte(key))
		b.WriteString(`">`)
		writeText(b, value)
		b.WriteString("</Data>")
	}
	b.WriteString("</EventData>")
}

// renderElement writes a nested dictionary as nested elements. It serves
// UserData, whose layout is provider specific.
func renderElement(b *strings.Builder, name string, value interface{}) {
	writeOpen(b, name)
	b.WriteString(">")
	switch v := value.(type) {
	case *ordereddict.Dict:
		for _, key := range v.Keys() {
			child, _ := v.Get(key)
			renderElement(b, key, child)
		}
	case []interface{}:
		for _, item := range v {
			renderElement(b, "Item", item)
		}
	default:
		writeText(b, v)
	}
	writeClose(b, name)
}

func writeOpen(b *strings.Builder, name string) {
	b.WriteString("<")
	b.WriteString(name)
}

func writeClose(b *strings.Builder, name string) {
	b.WriteString("</")
	b.WriteString(name)
	b.WriteString(">")
}

func writeAttr(b *strings.Builder, name string, value interface{}) {
	b.WriteString(" ")
	b.WriteString(name)
	b.WriteString(`="`)
	_ = xml.EscapeText(b, []byte(formatValue(value)))
	b.WriteString(`"`)
}

func writeText(b *strings.Builder, value interface{}) {
	_ = xml.EscapeText(b, []byte(formatValue(value)))
}

func formatValue(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		if v == math.Trunc(v) && math.Abs(v) < 1e15 {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case []byte:
		return fmt.Sprintf("%X", v)
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(v)
	}
}

// formatSystemTime converts the epoch seconds the parser reports into the
// RFC 3339 form Windows writes.
func formatSystemTime(value interface{}) interface{} {
	var secs float64
	switch v := value.(type) {
	case float64:
		secs = v
	case uint64:
		secs = float64(v)
	case int64:
		secs = float64(v)
	default:
		return value
	}
	whole, frac := math.Modf(secs)
	return time.Unix(int64(whole), int64(frac*1e9)).UTC().Format(time.RFC3339Nano)
}
