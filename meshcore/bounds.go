package meshcore

import "math"

// Bounds is an axis-aligned bounding box over vertex coordinates.
//
// The zero value is not ready for use; call NewBounds to get an empty box
// whose min is +Inf and max is -Inf, so that Union and Add are associative
// and commutative with it as the identity. Non-finite coordinates never
// enter the box, so invalid records cannot poison the global bound.
type Bounds struct {
	Min [3]float32
	Max [3]float32
}

// NewBounds returns an empty bounding box.
func NewBounds() Bounds {
	inf := float32(math.Inf(1))
	return Bounds{
		Min: [3]float32{inf, inf, inf},
		Max: [3]float32{-inf, -inf, -inf},
	}
}

// Empty reports whether the box contains no points.
func (b Bounds) Empty() bool {
	return b.Min[0] > b.Max[0]
}

// Add extends the box by one point. Non-finite coordinates are skipped.
func (b *Bounds) Add(x, y, z float32) {
	if !finite(x) || !finite(y) || !finite(z) {
		return
	}
	if x < b.Min[0] {
		b.Min[0] = x
	}
	if x > b.Max[0] {
		b.Max[0] = x
	}
	if y < b.Min[1] {
		b.Min[1] = y
	}
	if y > b.Max[1] {
		b.Max[1] = y
	}
	if z < b.Min[2] {
		b.Min[2] = z
	}
	if z > b.Max[2] {
		b.Max[2] = z
	}
}

// Union merges another box into this one. The operation is commutative and
// associative, so partial bounds can combine pairwise in any order and
// still equal a serial scan over all vertices.
func (b *Bounds) Union(o Bounds) {
	if o.Empty() {
		return
	}
	for i := 0; i < 3; i++ {
		if o.Min[i] < b.Min[i] {
			b.Min[i] = o.Min[i]
		}
		if o.Max[i] > b.Max[i] {
			b.Max[i] = o.Max[i]
		}
	}
}

// Size returns the extent of the box per axis, or zeros when empty.
func (b Bounds) Size() [3]float32 {
	if b.Empty() {
		return [3]float32{}
	}
	return [3]float32{
		b.Max[0] - b.Min[0],
		b.Max[1] - b.Min[1],
		b.Max[2] - b.Min[2],
	}
}

// Center returns the midpoint of the box, or zeros when empty.
func (b Bounds) Center() [3]float32 {
	if b.Empty() {
		return [3]float32{}
	}
	return [3]float32{
		(b.Min[0] + b.Max[0]) / 2,
		(b.Min[1] + b.Max[1]) / 2,
		(b.Min[2] + b.Max[2]) / 2,
	}
}

func finite(v float32) bool {
	f := float64(v)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
