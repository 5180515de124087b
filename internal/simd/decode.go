// Package simd implements the CPU record-decode kernel.
//
// The kernel performs the same per-record transform as the GPU compute
// shader: extract the record normal and three vertices, replicate the
// normal per vertex, and fuse the validity check into the same pass. Loops
// are written flat and branch-light so the Go compiler can vectorize the
// inner float extraction.
package simd

import (
	"encoding/binary"
	"math"

	"github.com/gogpu/meshload/meshcore"
)

// DegenerateAreaSq is the squared-area threshold below which a triangle is
// flagged degenerate. Matches the GPU kernel constant.
const DegenerateAreaSq = 1e-12

// DecodeRecords decodes records [first, first+count) of raw into the given
// output slices, which must already be sized for the full chunk
// (9 floats per record in pos and nrm, one flag per record in valid).
//
// raw holds the chunk's record payload; record i starts at byte
// i*layout.RecordSize. The function returns the bounding box over the
// finite coordinates it decoded, so callers can merge per-span bounds
// without a second pass.
func DecodeRecords(raw []byte, layout meshcore.Layout, first, count int, pos, nrm []float32, valid []bool) meshcore.Bounds {
	bounds := meshcore.NewBounds()
	rs := layout.RecordSize

	for i := first; i < first+count; i++ {
		rec := raw[i*rs : i*rs+rs]
		o := i * 9

		nx := f32(rec[layout.NormalOffset:])
		ny := f32(rec[layout.NormalOffset+4:])
		nz := f32(rec[layout.NormalOffset+8:])

		var v [9]float32
		for j := 0; j < 3; j++ {
			base := layout.VertexOffset + j*12
			v[j*3+0] = f32(rec[base:])
			v[j*3+1] = f32(rec[base+4:])
			v[j*3+2] = f32(rec[base+8:])
		}

		copy(pos[o:o+9], v[:])
		nrm[o+0], nrm[o+1], nrm[o+2] = nx, ny, nz
		nrm[o+3], nrm[o+4], nrm[o+5] = nx, ny, nz
		nrm[o+6], nrm[o+7], nrm[o+8] = nx, ny, nz

		valid[i] = recordValid(v)

		bounds.Add(v[0], v[1], v[2])
		bounds.Add(v[3], v[4], v[5])
		bounds.Add(v[6], v[7], v[8])
	}

	return bounds
}

// recordValid reports whether a record's triangle is renderable: all nine
// coordinates finite and cross-product-derived squared area above the
// degeneracy threshold.
func recordValid(v [9]float32) bool {
	// Accumulate the non-finite check without branching per component.
	bad := false
	for _, c := range v {
		f := float64(c)
		bad = bad || math.IsNaN(f) || math.IsInf(f, 0)
	}
	if bad {
		return false
	}

	// Squared area = |(b-a) x (c-a)|^2 / 4.
	e1x := float64(v[3] - v[0])
	e1y := float64(v[4] - v[1])
	e1z := float64(v[5] - v[2])
	e2x := float64(v[6] - v[0])
	e2y := float64(v[7] - v[1])
	e2z := float64(v[8] - v[2])

	cx := e1y*e2z - e1z*e2y
	cy := e1z*e2x - e1x*e2z
	cz := e1x*e2y - e1y*e2x

	areaSq := (cx*cx + cy*cy + cz*cz) / 4
	return areaSq >= DegenerateAreaSq
}

func f32(b []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}
