package main

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"

	xdraw "golang.org/x/image/draw"

	"github.com/gogpu/meshload/meshcore"
)

// previewAccum collects decoded vertices for a point-cloud preview.
// Vertices of invalid triangles are skipped so corrupt records do not
// smear the projection.
type previewAccum struct {
	xs, ys, zs []float32
}

func newPreviewAccum() *previewAccum {
	return &previewAccum{}
}

func (a *previewAccum) add(buf *meshcore.GeometryBuffer) {
	for i := 0; i < buf.Records; i++ {
		if !buf.Validity[i] {
			continue
		}
		o := i * 9
		for j := 0; j < 3; j++ {
			a.xs = append(a.xs, buf.Position[o+j*3])
			a.ys = append(a.ys, buf.Position[o+j*3+1])
			a.zs = append(a.zs, buf.Position[o+j*3+2])
		}
	}
}

// write renders an XY orthographic projection shaded by depth, then
// scales it to the requested edge length with Catmull-Rom resampling.
func (a *previewAccum) write(path string, edge int, b meshcore.Bounds) error {
	if len(a.xs) == 0 || b.Empty() {
		return fmt.Errorf("no valid geometry to preview")
	}
	size := b.Size()
	spanX, spanY := float64(size[0]), float64(size[1])
	spanZ := float64(size[2])
	if spanX == 0 {
		spanX = 1
	}
	if spanY == 0 {
		spanY = 1
	}
	if spanZ == 0 {
		spanZ = 1
	}

	// Render at 2x and downsample for cheap antialiasing.
	const superscale = 2
	w := edge * superscale
	img := image.NewRGBA(image.Rect(0, 0, w, w))
	for i := range a.xs {
		px := int(float64(a.xs[i]-b.Min[0]) / spanX * float64(w-1))
		py := int(float64(a.ys[i]-b.Min[1]) / spanY * float64(w-1))
		depth := float64(a.zs[i]-b.Min[2]) / spanZ
		shade := uint8(64 + depth*191)
		img.SetRGBA(px, w-1-py, color.RGBA{R: shade, G: shade, B: shade, A: 255})
	}

	out := image.NewRGBA(image.Rect(0, 0, edge, edge))
	xdraw.CatmullRom.Scale(out, out.Bounds(), img, img.Bounds(), xdraw.Over, nil)

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, out)
}
