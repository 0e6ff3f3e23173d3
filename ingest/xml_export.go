package ingest

import (
	"encoding/xml"
	"errors"
	"io"
	"os"
	"strings"

	"evtriage/core"
	"evtriage/metrics"

	"go.uber.org/zap"
)

const formatXML = "xml"

// XMLExportDecoder reads the XML produced by `wevtutil qe /f:xml` or
// Get-WinEvent | ConvertTo-Xml style exports: a sequence of <Event> elements,
// optionally wrapped in a root element. Records are numbered from 1 in file
// order.
type XMLExportDecoder struct {
	logger *zap.SugaredLogger
}

func NewXMLExportDecoder(logger *zap.SugaredLogger) *XMLExportDecoder {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &XMLExportDecoder{logger: logger}
}

type rawElement struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Inner   string     `xml:",innerxml"`
}

func (d *XMLExportDecoder) Decode(path string) ([]core.RawRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ContainerError{Path: path, Format: formatXML, Err: err}
	}
	defer f.Close()

	records, err := d.decode(f)
	if err != nil {
		return nil, &ContainerError{Path: path, Format: formatXML, Err: err}
	}
	metrics.RecordsDecoded.WithLabelValues(formatXML).Add(float64(len(records)))
	d.logger.Debugw("Decoded XML export", "path", path, "records", len(records))
	return records, nil
}

// decode collects every <Event> in the stream. A syntax error after at least
// one event keeps the events read so far, since truncated exports are common;
// an error before any event fails the whole container.
func (d *XMLExportDecoder) decode(r io.Reader) ([]core.RawRecord, error) {
	dec := xml.NewDecoder(r)
	var records []core.RawRecord
	sawElement := false
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if len(records) > 0 {
				return d.truncated(records, err), nil
			}
			return nil, err
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		sawElement = true
		if start.Name.Local != "Event" {
			continue
		}
		var el rawElement
		if err := dec.DecodeElement(&el, &start); err != nil {
			if len(records) > 0 {
				return d.truncated(records, err), nil
			}
			return nil, err
		}
		records = append(records, core.RawRecord{
			RecordID: uint64(len(records) + 1),
			Data:     standaloneEvent(el),
		})
	}
	if !sawElement {
		return nil, errors.New("no XML elements found")
	}
	return records, nil
}

func (d *XMLExportDecoder) truncated(records []core.RawRecord, err error) []core.RawRecord {
	metrics.RecordsDropped.WithLabelValues("chunk").Inc()
	d.logger.Warnw("XML export is damaged, keeping the events read so far",
		"records", len(records),
		"error", err)
	return records
}

// standaloneEvent re-serializes an <Event> element so the record is a
// standalone document. Namespaced attributes other than the default
// namespace are not carried over.
func standaloneEvent(el rawElement) string {
	var b strings.Builder
	b.WriteString("<")
	b.WriteString(el.XMLName.Local)
	if el.XMLName.Space != "" {
		b.WriteString(` xmlns="`)
		_ = xml.EscapeText(&b, []byte(el.XMLName.Space))
		b.WriteString(`"`)
	}
	for _, a := range el.Attrs {
		if a.Name.Space != "" || a.Name.Local == "xmlns" {
			continue
		}
		b.WriteString(" ")
		b.WriteString(a.Name.Local)
		b.WriteString(`="`)
		_ = xml.EscapeText(&b, []byte(a.Value))
		b.WriteString(`"`)
	}
	b.WriteString(">")
	b.WriteString(el.Inner)
	b.WriteString("</")
	b.WriteString(el.XMLName.Local)
	b.WriteString(">")
	return b.String()
}
