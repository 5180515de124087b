package simd

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/gogpu/meshload/meshcore"
)

var stlLayout = meshcore.Layout{
	RecordSize:   50,
	NormalOffset: 0,
	VertexOffset: 12,
}

// record builds one 50-byte STL record from a normal and three vertices.
func record(normal [3]float32, verts [9]float32) []byte {
	rec := make([]byte, 50)
	for i, f := range normal {
		binary.LittleEndian.PutUint32(rec[i*4:], math.Float32bits(f))
	}
	for i, f := range verts {
		binary.LittleEndian.PutUint32(rec[12+i*4:], math.Float32bits(f))
	}
	return rec
}

func TestDecodeRecords(t *testing.T) {
	raw := append(
		record([3]float32{0, 0, 1}, [9]float32{0, 0, 0, 1, 0, 0, 0, 1, 0}),
		record([3]float32{1, 0, 0}, [9]float32{2, 2, 2, 2, 3, 2, 2, 2, 3})...,
	)

	pos := make([]float32, 18)
	nrm := make([]float32, 18)
	valid := make([]bool, 2)
	b := DecodeRecords(raw, stlLayout, 0, 2, pos, nrm, valid)

	wantPos := []float32{0, 0, 0, 1, 0, 0, 0, 1, 0, 2, 2, 2, 2, 3, 2, 2, 2, 3}
	for i, want := range wantPos {
		if pos[i] != want {
			t.Errorf("pos[%d] = %v, want %v", i, pos[i], want)
		}
	}

	// Normal replicated across the three vertices of each record.
	for i := 0; i < 3; i++ {
		if nrm[i*3] != 0 || nrm[i*3+1] != 0 || nrm[i*3+2] != 1 {
			t.Errorf("record 0 vertex %d normal = %v, want (0 0 1)", i, nrm[i*3:i*3+3])
		}
		if nrm[9+i*3] != 1 || nrm[9+i*3+1] != 0 || nrm[9+i*3+2] != 0 {
			t.Errorf("record 1 vertex %d normal = %v, want (1 0 0)", i, nrm[9+i*3:9+i*3+3])
		}
	}

	if !valid[0] || !valid[1] {
		t.Errorf("validity = %v, want both true", valid)
	}
	if b.Min != [3]float32{0, 0, 0} || b.Max != [3]float32{2, 3, 3} {
		t.Errorf("bounds = %v..%v, want [0 0 0]..[2 3 3]", b.Min, b.Max)
	}
}

func TestDecodeRecordsSpan(t *testing.T) {
	// Decoding a middle span writes only that span's output slots.
	raw := make([]byte, 0, 150)
	for i := 0; i < 3; i++ {
		f := float32(i + 1)
		raw = append(raw, record([3]float32{0, 0, 1}, [9]float32{f, 0, 0, f + 1, 0, 0, f, 1, 0})...)
	}
	pos := make([]float32, 27)
	nrm := make([]float32, 27)
	valid := make([]bool, 3)

	b := DecodeRecords(raw, stlLayout, 1, 1, pos, nrm, valid)

	if pos[0] != 0 || pos[18] != 0 {
		t.Error("span decode touched slots outside [9, 18)")
	}
	if pos[9] != 2 {
		t.Errorf("pos[9] = %v, want 2", pos[9])
	}
	if b.Min[0] != 2 || b.Max[0] != 3 {
		t.Errorf("span bounds x = [%v, %v], want [2, 3]", b.Min[0], b.Max[0])
	}
}

func TestRecordValidity(t *testing.T) {
	nan := float32(math.NaN())
	inf := float32(math.Inf(1))

	tests := []struct {
		name  string
		verts [9]float32
		want  bool
	}{
		{"proper triangle", [9]float32{0, 0, 0, 1, 0, 0, 0, 1, 0}, true},
		{"nan coordinate", [9]float32{nan, 0, 0, 1, 0, 0, 0, 1, 0}, false},
		{"inf coordinate", [9]float32{0, 0, 0, inf, 0, 0, 0, 1, 0}, false},
		{"coincident vertices", [9]float32{1, 1, 1, 1, 1, 1, 1, 1, 1}, false},
		{"collinear vertices", [9]float32{0, 0, 0, 1, 0, 0, 2, 0, 0}, false},
		{"sliver below threshold", [9]float32{0, 0, 0, 1, 0, 0, 2, 1e-7, 0}, false},
		{"small but real", [9]float32{0, 0, 0, 0.01, 0, 0, 0, 0.01, 0}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := record([3]float32{0, 0, 1}, tt.verts)
			pos := make([]float32, 9)
			nrm := make([]float32, 9)
			valid := make([]bool, 1)
			DecodeRecords(raw, stlLayout, 0, 1, pos, nrm, valid)
			if valid[0] != tt.want {
				t.Errorf("valid = %v, want %v", valid[0], tt.want)
			}
		})
	}
}

func TestDecodePreservesNaNPayload(t *testing.T) {
	// Invalid records are flagged, not dropped: the decoded floats keep
	// their original bit patterns.
	nan := float32(math.NaN())
	raw := record([3]float32{0, 0, 1}, [9]float32{nan, 5, 6, 1, 0, 0, 0, 1, 0})
	pos := make([]float32, 9)
	nrm := make([]float32, 9)
	valid := make([]bool, 1)
	b := DecodeRecords(raw, stlLayout, 0, 1, pos, nrm, valid)

	if !math.IsNaN(float64(pos[0])) {
		t.Errorf("pos[0] = %v, want NaN preserved", pos[0])
	}
	if valid[0] {
		t.Error("NaN record flagged valid")
	}
	// The NaN vertex is skipped by the bound, the finite ones are not.
	if b.Empty() {
		t.Fatal("bounds empty despite finite vertices")
	}
	if b.Max[1] != 1 {
		t.Errorf("bounds max y = %v, want 1", b.Max[1])
	}
}
