package ingest

import (
	"fmt"
	"path/filepath"
	"strings"

	"evtriage/core"

	"go.uber.org/zap"
)

// Decoder turns an archived log container into raw records.
type Decoder interface {
	Decode(path string) ([]core.RawRecord, error)
}

// ContainerError reports a container that could not be opened or decoded at
// all. It is the only fatal ingestion error.
type ContainerError struct {
	Path   string
	Format string
	Err    error
}

func (e *ContainerError) Error() string {
	return fmt.Sprintf("cannot decode %s container %s: %v", e.Format, e.Path, e.Err)
}

func (e *ContainerError) Unwrap() error {
	return e.Err
}

// ArchiveDecoder picks a decoder by file extension. Anything that is not
// .xml is treated as EVTX.
type ArchiveDecoder struct {
	evtx Decoder
	xml  Decoder
}

// NewArchiveDecoder returns a decoder for .evtx and .xml archives.
func NewArchiveDecoder(logger *zap.SugaredLogger) *ArchiveDecoder {
	return &ArchiveDecoder{
		evtx: NewEvtxDecoder(logger),
		xml:  NewXMLExportDecoder(logger),
	}
}

func (d *ArchiveDecoder) Decode(path string) ([]core.RawRecord, error) {
	if strings.EqualFold(filepath.Ext(path), ".xml") {
		return d.xml.Decode(path)
	}
	return d.evtx.Decode(path)
}
