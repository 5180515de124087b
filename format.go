package meshload

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/gogpu/meshload/meshcore"
)

// Format identifies a file type and declares its per-record byte layout.
// The pipeline is agnostic to the concrete triangle-mesh format as long
// as records are fixed-size and independently decodable.
//
// Probe must validate the header against the file size and return a
// *FormatError on any inconsistency; probing happens before any chunk
// work is scheduled.
type Format interface {
	// Name returns the format identifier (e.g. "stl-binary").
	Name() string

	// Probe reads the file header and returns the record layout.
	Probe(r io.ReaderAt, size int64) (meshcore.Layout, error)
}

// Binary STL constants: an 80-byte comment header, a uint32 triangle
// count, then 50-byte records (normal, three vertices, attribute word).
const (
	stlHeaderSize   = 84
	stlRecordSize   = 50
	stlNormalOffset = 0
	stlVertexOffset = 12
)

// STLBinary probes binary STL files. It is the default format of
// NewCoordinator.
type STLBinary struct{}

// Name returns "stl-binary".
func (STLBinary) Name() string { return "stl-binary" }

// Probe validates the STL header against the file size and returns the
// 50-byte record layout. ASCII STL files, truncated headers, payloads
// that are not a multiple of the record size, and headers whose declared
// triangle count disagrees with the file size all yield a *FormatError.
func (STLBinary) Probe(r io.ReaderAt, size int64) (meshcore.Layout, error) {
	if size < stlHeaderSize {
		return meshcore.Layout{}, &FormatError{Reason: fmt.Sprintf("file too small for STL header (%d bytes)", size)}
	}

	header := make([]byte, stlHeaderSize)
	if _, err := r.ReadAt(header, 0); err != nil {
		return meshcore.Layout{}, fmt.Errorf("meshload: read STL header: %w", err)
	}

	declared := int64(binary.LittleEndian.Uint32(header[80:84]))
	payload := size - stlHeaderSize

	// ASCII STL starts with "solid" and its size will not line up with
	// the binary record grid; require both signals before rejecting so
	// binary files whose comment begins with "solid" still load.
	if bytes.HasPrefix(header, []byte("solid")) && declared*stlRecordSize != payload {
		return meshcore.Layout{}, &FormatError{Reason: "ASCII STL is not supported; records are not fixed-size"}
	}

	if payload%stlRecordSize != 0 {
		return meshcore.Layout{}, &FormatError{
			Reason: fmt.Sprintf("payload %d bytes is not a multiple of the %d-byte record size", payload, stlRecordSize),
		}
	}
	if declared*stlRecordSize != payload {
		return meshcore.Layout{}, &FormatError{
			Reason: fmt.Sprintf("header declares %d records (%d bytes) but payload is %d bytes",
				declared, declared*stlRecordSize, payload),
		}
	}

	return meshcore.Layout{
		RecordSize:   stlRecordSize,
		HeaderSize:   stlHeaderSize,
		RecordCount:  declared,
		NormalOffset: stlNormalOffset,
		VertexOffset: stlVertexOffset,
	}, nil
}
