package meshcore

import (
	"math"
	"testing"
)

func TestBoundsAdd(t *testing.T) {
	b := NewBounds()
	if !b.Empty() {
		t.Fatal("new bounds should be empty")
	}

	b.Add(1, 2, 3)
	b.Add(-1, 5, 0)

	if b.Min != [3]float32{-1, 2, 0} {
		t.Errorf("Min = %v, want [-1 2 0]", b.Min)
	}
	if b.Max != [3]float32{1, 5, 3} {
		t.Errorf("Max = %v, want [1 5 3]", b.Max)
	}
}

func TestBoundsAddSkipsNonFinite(t *testing.T) {
	nan := float32(math.NaN())
	inf := float32(math.Inf(1))

	tests := []struct {
		name    string
		x, y, z float32
	}{
		{"nan x", nan, 0, 0},
		{"nan y", 0, nan, 0},
		{"nan z", 0, 0, nan},
		{"+inf", inf, 0, 0},
		{"-inf", 0, -inf, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBounds()
			b.Add(tt.x, tt.y, tt.z)
			if !b.Empty() {
				t.Errorf("bounds absorbed non-finite vertex: %v..%v", b.Min, b.Max)
			}
			// Finite vertices still land after a skipped one.
			b.Add(1, 1, 1)
			if b.Empty() || b.Min != [3]float32{1, 1, 1} {
				t.Errorf("finite vertex lost after skip: %v..%v", b.Min, b.Max)
			}
		})
	}
}

func TestBoundsUnion(t *testing.T) {
	a := NewBounds()
	a.Add(0, 0, 0)
	a.Add(1, 1, 1)

	b := NewBounds()
	b.Add(-2, 0.5, 3)

	a.Union(b)
	if a.Min != [3]float32{-2, 0, 0} || a.Max != [3]float32{1, 1, 3} {
		t.Errorf("union = %v..%v, want [-2 0 0]..[1 1 3]", a.Min, a.Max)
	}

	// Union with empty is identity, both ways.
	empty := NewBounds()
	before := a
	a.Union(empty)
	if a != before {
		t.Errorf("union with empty changed bounds: %v", a)
	}
	empty.Union(a)
	if empty != a {
		t.Errorf("empty.Union(a) = %v, want %v", empty, a)
	}
}

func TestBoundsUnionCommutative(t *testing.T) {
	a := NewBounds()
	a.Add(0, -1, 2)
	b := NewBounds()
	b.Add(5, 5, 5)
	b.Add(-3, 0, 0)

	ab := a
	ab.Union(b)
	ba := b
	ba.Union(a)
	if ab != ba {
		t.Errorf("a∪b = %v, b∪a = %v", ab, ba)
	}
}

func TestBoundsSizeCenter(t *testing.T) {
	b := NewBounds()
	b.Add(-1, 0, 2)
	b.Add(3, 4, 6)

	if got := b.Size(); got != [3]float32{4, 4, 4} {
		t.Errorf("Size() = %v, want [4 4 4]", got)
	}
	if got := b.Center(); got != [3]float32{1, 2, 4} {
		t.Errorf("Center() = %v, want [1 2 4]", got)
	}

	empty := NewBounds()
	if got := empty.Size(); got != [3]float32{} {
		t.Errorf("empty Size() = %v, want zeros", got)
	}
}
