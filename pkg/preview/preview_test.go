package preview

import (
	"bytes"
	"errors"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/Faultbox/mos-export/pkg/formats"
)

// quadMesh is a unit quad in the XY plane facing +Z.
func quadMesh() *formats.Mesh {
	n := [3]float32{0, 0, 1}
	return &formats.Mesh{
		Vertices: []formats.MeshVertex{
			{Position: [3]float32{0, 0, 0}, Normal: n},
			{Position: [3]float32{1, 0, 0}, Normal: n},
			{Position: [3]float32{1, 1, 0}, Normal: n},
			{Position: [3]float32{0, 1, 0}, Normal: n},
		},
		Indices: []uint32{0, 1, 2, 0, 2, 3},
	}
}

func TestRender(t *testing.T) {
	tests := []struct {
		name string
		opts func(o *Options)
	}{
		{"defaults", func(o *Options) {}},
		{"no supersampling", func(o *Options) { o.Supersample = 1 }},
		{"front view", func(o *Options) { o.Yaw, o.Pitch = 0, 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			opts.Size = 64
			tt.opts(&opts)

			img, err := Render(quadMesh(), opts)
			if err != nil {
				t.Fatalf("Render() error = %v", err)
			}
			if b := img.Bounds(); b.Dx() != 64 || b.Dy() != 64 {
				t.Fatalf("bounds = %v, want 64x64", b)
			}

			if center := img.NRGBAAt(32, 32); center.A == 0 {
				t.Error("center pixel should be covered by the mesh")
			}
			if corner := img.NRGBAAt(0, 0); corner.A != 0 {
				t.Errorf("corner pixel = %v, want transparent background", corner)
			}
		})
	}
}

func TestRender_Background(t *testing.T) {
	opts := DefaultOptions()
	opts.Size = 32
	opts.Supersample = 1
	opts.Background = color.NRGBA{R: 10, G: 20, B: 30, A: 255}

	img, err := Render(quadMesh(), opts)
	if err != nil {
		t.Fatal(err)
	}
	if got := img.NRGBAAt(0, 0); got != opts.Background {
		t.Errorf("corner = %v, want %v", got, opts.Background)
	}
}

func TestRender_Errors(t *testing.T) {
	if _, err := Render(&formats.Mesh{}, DefaultOptions()); !errors.Is(err, ErrEmptyMesh) {
		t.Errorf("expected ErrEmptyMesh, got %v", err)
	}

	bad := quadMesh()
	bad.Indices[5] = 9
	if _, err := Render(bad, DefaultOptions()); !errors.Is(err, formats.ErrMeshIndexRange) {
		t.Errorf("expected ErrMeshIndexRange, got %v", err)
	}

	opts := DefaultOptions()
	opts.Size = 0
	if _, err := Render(quadMesh(), opts); err == nil {
		t.Error("expected error for zero size")
	}
}

func TestWriteWebP(t *testing.T) {
	opts := DefaultOptions()
	opts.Size = 16
	img, err := Render(quadMesh(), opts)
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := WriteWebP(&buf, img); err != nil {
		t.Fatalf("WriteWebP() error = %v", err)
	}
	data := buf.Bytes()
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WEBP" {
		t.Errorf("output is not a WebP container: % x", data[:min(len(data), 12)])
	}
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "previews", "quad.webp")
	opts := DefaultOptions()
	opts.Size = 16

	if err := WriteFile(path, quadMesh(), opts); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if info, err := os.Stat(path); err != nil || info.Size() == 0 {
		t.Errorf("preview file missing or empty: %v", err)
	}
}
