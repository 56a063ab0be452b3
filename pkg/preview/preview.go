// Package preview renders engine meshes to small shaded thumbnails so an
// exported file can be checked without loading it into the engine.
package preview

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	stdmath "math"
	"os"
	"path/filepath"

	"github.com/HugoSmits86/nativewebp"
	"github.com/go-gl/mathgl/mgl32"
	"golang.org/x/image/draw"

	"github.com/Faultbox/mos-export/pkg/formats"
)

// ErrEmptyMesh is returned when a mesh has no triangles to draw.
var ErrEmptyMesh = errors.New("mesh has no triangles")

// Options control the rendered image.
type Options struct {
	Size        int     // Output width and height in pixels
	Supersample int     // Render at Size*Supersample, then downscale
	Yaw         float32 // Degrees about the vertical axis
	Pitch       float32 // Degrees about the horizontal axis
	Background  color.NRGBA
	Color       color.NRGBA
}

// DefaultOptions returns a 256 pixel three-quarter view on a transparent
// background.
func DefaultOptions() Options {
	return Options{
		Size:        256,
		Supersample: 2,
		Yaw:         -35,
		Pitch:       25,
		Color:       color.NRGBA{R: 160, G: 160, B: 170, A: 255},
	}
}

var lightDir = mgl32.Vec3{0.4, 0.6, 1}.Normalize()

const (
	ambient = 0.35
	diffuse = 0.65
	margin  = 8
)

// Render draws m with an orthographic camera fitted to its bounds. Triangles
// are flat shaded from the average of their stored vertex normals and lit
// from both sides.
func Render(m *formats.Mesh, opts Options) (*image.NRGBA, error) {
	if len(m.Indices) < 3 {
		return nil, ErrEmptyMesh
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if opts.Size <= 0 {
		return nil, fmt.Errorf("invalid preview size %d", opts.Size)
	}
	ss := max(opts.Supersample, 1)
	size := opts.Size * ss

	view := mgl32.HomogRotate3DX(mgl32.DegToRad(opts.Pitch)).Mul4(mgl32.HomogRotate3DY(mgl32.DegToRad(opts.Yaw)))
	rot := view.Mat3()

	projected := make([]mgl32.Vec3, len(m.Vertices))
	lo := mgl32.Vec3{float32(stdmath.Inf(1)), float32(stdmath.Inf(1)), 0}
	hi := mgl32.Vec3{float32(stdmath.Inf(-1)), float32(stdmath.Inf(-1)), 0}
	for i, v := range m.Vertices {
		p := rot.Mul3x1(mgl32.Vec3(v.Position))
		projected[i] = p
		lo = mgl32.Vec3{min(lo[0], p[0]), min(lo[1], p[1]), 0}
		hi = mgl32.Vec3{max(hi[0], p[0]), max(hi[1], p[1]), 0}
	}

	span := max(hi[0]-lo[0], hi[1]-lo[1], 1e-3)
	scale := float32(size-2*margin*ss) / span
	cx, cy := (lo[0]+hi[0])/2, (lo[1]+hi[1])/2

	fb := newFrameBuffer(size, opts.Background)
	for i := range projected {
		p := projected[i]
		projected[i] = mgl32.Vec3{
			(p[0]-cx)*scale + float32(size)/2,
			float32(size)/2 - (p[1]-cy)*scale,
			p[2],
		}
	}

	for t := 0; t+2 < len(m.Indices); t += 3 {
		a, b, c := m.Indices[t], m.Indices[t+1], m.Indices[t+2]

		n := mgl32.Vec3(m.Vertices[a].Normal).
			Add(mgl32.Vec3(m.Vertices[b].Normal)).
			Add(mgl32.Vec3(m.Vertices[c].Normal))
		if n.Len() < 1e-6 {
			pa, pb, pc := mgl32.Vec3(m.Vertices[a].Position), mgl32.Vec3(m.Vertices[b].Position), mgl32.Vec3(m.Vertices[c].Position)
			n = pb.Sub(pa).Cross(pc.Sub(pa))
		}
		shade := float32(ambient)
		if n.Len() > 1e-6 {
			ndl := rot.Mul3x1(n.Normalize()).Dot(lightDir)
			shade += diffuse * float32(stdmath.Abs(float64(ndl)))
		}

		fb.triangle(projected[a], projected[b], projected[c], shadeColor(opts.Color, shade))
	}

	if ss == 1 {
		return fb.img, nil
	}
	out := image.NewNRGBA(image.Rect(0, 0, opts.Size, opts.Size))
	draw.CatmullRom.Scale(out, out.Bounds(), fb.img, fb.img.Bounds(), draw.Src, nil)
	return out, nil
}

func shadeColor(c color.NRGBA, shade float32) color.NRGBA {
	scale := func(v uint8) uint8 {
		return uint8(min(float32(v)*shade, 255))
	}
	return color.NRGBA{R: scale(c.R), G: scale(c.G), B: scale(c.B), A: c.A}
}

// WriteWebP encodes img as lossless WebP.
func WriteWebP(w io.Writer, img image.Image) error {
	return nativewebp.Encode(w, img, nil)
}

// WriteFile renders m and writes the WebP image to path, creating parent
// directories.
func WriteFile(path string, m *formats.Mesh, opts Options) error {
	img, err := Render(m, opts)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteWebP(f, img); err != nil {
		f.Close()
		return fmt.Errorf("webp encode: %w", err)
	}
	return f.Close()
}
