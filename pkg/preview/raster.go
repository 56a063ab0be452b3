package preview

import (
	"image"
	"image/color"
	stdmath "math"

	"github.com/go-gl/mathgl/mgl32"
)

// frameBuffer is a square color target with a depth buffer. Larger depth
// values are closer to the camera.
type frameBuffer struct {
	img   *image.NRGBA
	depth []float32
	size  int
}

func newFrameBuffer(size int, bg color.NRGBA) *frameBuffer {
	fb := &frameBuffer{
		img:   image.NewNRGBA(image.Rect(0, 0, size, size)),
		depth: make([]float32, size*size),
		size:  size,
	}
	for i := range fb.depth {
		fb.depth[i] = float32(stdmath.Inf(-1))
	}
	for i := 0; i < len(fb.img.Pix); i += 4 {
		fb.img.Pix[i], fb.img.Pix[i+1], fb.img.Pix[i+2], fb.img.Pix[i+3] = bg.R, bg.G, bg.B, bg.A
	}
	return fb
}

// triangle fills a screen-space triangle, sampling pixel centers. Both
// windings are drawn.
func (fb *frameBuffer) triangle(p0, p1, p2 mgl32.Vec3, c color.NRGBA) {
	area := edge(p0, p1, p2[0], p2[1])
	if area > -1e-8 && area < 1e-8 {
		return
	}

	minX := max(int(min(p0[0], p1[0], p2[0])), 0)
	maxX := min(int(max(p0[0], p1[0], p2[0]))+1, fb.size-1)
	minY := max(int(min(p0[1], p1[1], p2[1])), 0)
	maxY := min(int(max(p0[1], p1[1], p2[1]))+1, fb.size-1)

	for y := minY; y <= maxY; y++ {
		py := float32(y) + 0.5
		for x := minX; x <= maxX; x++ {
			px := float32(x) + 0.5

			w0 := edge(p1, p2, px, py) / area
			w1 := edge(p2, p0, px, py) / area
			w2 := edge(p0, p1, px, py) / area
			if w0 < 0 || w1 < 0 || w2 < 0 {
				continue
			}

			z := w0*p0[2] + w1*p1[2] + w2*p2[2]
			i := y*fb.size + x
			if z <= fb.depth[i] {
				continue
			}
			fb.depth[i] = z
			fb.img.SetNRGBA(x, y, c)
		}
	}
}

// edge is twice the signed area of (a, b, p).
func edge(a, b mgl32.Vec3, px, py float32) float32 {
	return (b[0]-a[0])*(py-a[1]) - (b[1]-a[1])*(px-a[0])
}
