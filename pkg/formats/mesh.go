// Package formats provides the engine mesh encoder/decoder and the RSM
// model parser used as a geometry source.
package formats

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	stdmath "math"
	"os"
	"path/filepath"
)

// Mesh record sizes in bytes. A mesh file is a little-endian dump:
//
//	offset 0                  int32  vertex count
//	offset 4                  int32  index count
//	offset 8                  vertex records, 40 bytes each
//	offset 8+40*vertexCount   uint32 indices, three per triangle
const (
	MeshHeaderSize = 8
	MeshVertexSize = 40
	MeshIndexSize  = 4
)

// Mesh format errors.
var (
	ErrTruncatedMesh     = errors.New("truncated mesh data")
	ErrInvalidMeshHeader = errors.New("invalid mesh header")
	ErrMeshTooLarge      = errors.New("mesh too large for int32 header")
	ErrMeshIndexRange    = errors.New("mesh index out of range")
)

// MeshVertex is one 40-byte vertex record.
type MeshVertex struct {
	Position [3]float32
	Normal   [3]float32
	Tangent  [3]float32 // Reserved, written as zero
	UV       [2]float32 // Top-left origin
	Weight   float32
}

// Mesh is a decoded or ready-to-encode engine mesh file.
type Mesh struct {
	Vertices []MeshVertex
	Indices  []uint32
}

// VertexCount returns the number of vertex records.
func (m *Mesh) VertexCount() int {
	return len(m.Vertices)
}

// IndexCount returns the number of index entries.
func (m *Mesh) IndexCount() int {
	return len(m.Indices)
}

// Size returns the encoded size in bytes.
func (m *Mesh) Size() int64 {
	return meshSize(int64(len(m.Vertices)), int64(len(m.Indices)))
}

func meshSize(vertexCount, indexCount int64) int64 {
	return MeshHeaderSize + MeshVertexSize*vertexCount + MeshIndexSize*indexCount
}

// Encode writes the mesh to w with a single Write call.
func (m *Mesh) Encode(w io.Writer) error {
	if len(m.Vertices) > stdmath.MaxInt32 || len(m.Indices) > stdmath.MaxInt32 {
		return fmt.Errorf("%w: %d vertices, %d indices", ErrMeshTooLarge, len(m.Vertices), len(m.Indices))
	}

	buf := bytes.NewBuffer(make([]byte, 0, m.Size()))

	// Header, then body
	for _, v := range []any{int32(len(m.Vertices)), int32(len(m.Indices)), m.Vertices, m.Indices} {
		if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
			return fmt.Errorf("encoding mesh: %w", err)
		}
	}

	_, err := w.Write(buf.Bytes())
	return err
}

// Bytes returns the encoded mesh.
func (m *Mesh) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := m.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ParseMesh decodes a mesh from a byte slice. Bytes after the declared
// index records are ignored.
func ParseMesh(data []byte) (*Mesh, error) {
	if len(data) < MeshHeaderSize {
		return nil, ErrTruncatedMesh
	}

	r := bytes.NewReader(data)

	var vertexCount, indexCount int32
	binary.Read(r, binary.LittleEndian, &vertexCount)
	binary.Read(r, binary.LittleEndian, &indexCount)

	if vertexCount < 0 || indexCount < 0 {
		return nil, fmt.Errorf("%w: %d vertices, %d indices", ErrInvalidMeshHeader, vertexCount, indexCount)
	}

	need := meshSize(int64(vertexCount), int64(indexCount))
	if int64(len(data)) < need {
		return nil, fmt.Errorf("%w: header declares %d bytes, got %d", ErrTruncatedMesh, need, len(data))
	}

	m := &Mesh{
		Vertices: make([]MeshVertex, vertexCount),
		Indices:  make([]uint32, indexCount),
	}
	if err := binary.Read(r, binary.LittleEndian, m.Vertices); err != nil {
		return nil, fmt.Errorf("reading vertices: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, m.Indices); err != nil {
		return nil, fmt.Errorf("reading indices: %w", err)
	}

	return m, nil
}

// ReadMesh decodes a mesh from a reader.
func ReadMesh(r io.Reader) (*Mesh, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading mesh: %w", err)
	}
	return ParseMesh(data)
}

// ParseMeshFile decodes a mesh file from disk.
func ParseMeshFile(path string) (*Mesh, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading mesh file: %w", err)
	}
	return ParseMesh(data)
}

// WriteMeshFile encodes the mesh to path, creating parent directories.
// A failed write leaves whatever was written in place.
func WriteMeshFile(path string, m *Mesh) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}

	if err := m.Encode(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Validate checks that every index refers to an existing vertex record.
func (m *Mesh) Validate() error {
	for i, idx := range m.Indices {
		if int64(idx) >= int64(len(m.Vertices)) {
			return fmt.Errorf("%w: index %d = %d, vertex count %d", ErrMeshIndexRange, i, idx, len(m.Vertices))
		}
	}
	return nil
}

// Bounds returns the axis-aligned bounding box of the vertex positions.
// An empty mesh yields zero bounds.
func (m *Mesh) Bounds() (lo, hi [3]float32) {
	if len(m.Vertices) == 0 {
		return lo, hi
	}
	lo = m.Vertices[0].Position
	hi = m.Vertices[0].Position
	for _, v := range m.Vertices[1:] {
		for k := 0; k < 3; k++ {
			lo[k] = min(lo[k], v.Position[k])
			hi[k] = max(hi[k], v.Position[k])
		}
	}
	return lo, hi
}
