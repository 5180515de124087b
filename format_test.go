package meshload

import (
	"bytes"
	"encoding/binary"
	"math"
	"strings"
	"testing"
)

// buildSTL assembles a binary STL in memory: header comment, declared
// count, then count records with deterministic unit triangles.
func buildSTL(comment string, declared uint32, records int) []byte {
	buf := make([]byte, 84+records*50)
	copy(buf, comment)
	binary.LittleEndian.PutUint32(buf[80:], declared)
	for i := 0; i < records; i++ {
		rec := buf[84+i*50:]
		f := float32(i)
		verts := []float32{
			0, 0, 1, // normal
			f, 0, 0, f + 1, 0, 0, f, 1, 0, // vertices
		}
		for j, v := range verts {
			binary.LittleEndian.PutUint32(rec[j*4:], math.Float32bits(v))
		}
	}
	return buf
}

func TestSTLProbe(t *testing.T) {
	data := buildSTL("binary stl unit test", 3, 3)
	layout, err := STLBinary{}.Probe(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatal(err)
	}
	if layout.RecordCount != 3 {
		t.Errorf("RecordCount = %d, want 3", layout.RecordCount)
	}
	if layout.RecordSize != 50 || layout.HeaderSize != 84 {
		t.Errorf("layout = %+v, want 50-byte records after 84-byte header", layout)
	}
	if layout.NormalOffset != 0 || layout.VertexOffset != 12 {
		t.Errorf("offsets = %d/%d, want 0/12", layout.NormalOffset, layout.VertexOffset)
	}
	if layout.PayloadBytes() != 150 {
		t.Errorf("PayloadBytes = %d, want 150", layout.PayloadBytes())
	}
}

func TestSTLProbeRejects(t *testing.T) {
	count3 := buildSTL("ok", 3, 3)

	tests := []struct {
		name string
		data []byte
	}{
		{"too small for header", count3[:60]},
		{"truncated payload", count3[:len(count3)-7]},
		{"count mismatch", buildSTL("ok", 5, 3)},
		{"ascii stl", []byte("solid cube\n  facet normal 0 0 1\n  endfacet\nendsolid cube\n" + strings.Repeat(" ", 40))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := STLBinary{}.Probe(bytes.NewReader(tt.data), int64(len(tt.data)))
			if err == nil {
				t.Fatal("probe accepted invalid file")
			}
			if !IsFormatError(err) {
				t.Errorf("err = %v, want *FormatError", err)
			}
		})
	}
}

func TestSTLProbeBinaryWithSolidComment(t *testing.T) {
	// A binary file whose comment happens to start with "solid" must not
	// be mistaken for ASCII when the record grid lines up.
	data := buildSTL("solid part exported from cad", 2, 2)
	layout, err := STLBinary{}.Probe(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("binary file with solid comment rejected: %v", err)
	}
	if layout.RecordCount != 2 {
		t.Errorf("RecordCount = %d, want 2", layout.RecordCount)
	}
}

func TestSTLProbeEmptyMesh(t *testing.T) {
	data := buildSTL("empty", 0, 0)
	layout, err := STLBinary{}.Probe(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatal(err)
	}
	if layout.RecordCount != 0 || layout.PayloadBytes() != 0 {
		t.Errorf("layout = %+v, want zero records", layout)
	}
}
