package mesh

import (
	"errors"
	"fmt"

	"github.com/Faultbox/mos-export/pkg/formats"
	"github.com/Faultbox/mos-export/pkg/math"
)

// Flatten errors.
var (
	ErrMissingUVChannel = errors.New("mesh must have one uv layer")
	ErrInvalidFace      = errors.New("invalid face")
)

// Buffers holds the flattened vertex attributes as parallel arrays plus the
// triangle index buffer. All attribute slices have the same length.
type Buffers struct {
	Positions []math.Vec3
	Normals   []math.Vec3
	Tangents  []math.Vec3 // Always zero; reserved in the file layout
	UVs       []math.Vec2
	Weights   []float32
	Indices   []uint32 // Three entries per triangle
}

// VertexCount returns the number of emitted vertices.
func (b *Buffers) VertexCount() int {
	return len(b.Positions)
}

// IndexCount returns the number of index entries.
func (b *Buffers) IndexCount() int {
	return len(b.Indices)
}

// TriangleCount returns the number of triangles in the index buffer.
func (b *Buffers) TriangleCount() int {
	return len(b.Indices) / 3
}

// emit appends one vertex to every attribute array and returns its slot.
func (b *Buffers) emit(position, normal math.Vec3, uv math.Vec2, weight float32) uint32 {
	slot := uint32(len(b.Positions))
	b.Positions = append(b.Positions, position)
	b.Normals = append(b.Normals, normal)
	b.Tangents = append(b.Tangents, math.Vec3{})
	b.UVs = append(b.UVs, uv)
	b.Weights = append(b.Weights, weight)
	return slot
}

// MeshFile converts the buffers to the engine mesh record layout.
func (b *Buffers) MeshFile() *formats.Mesh {
	m := &formats.Mesh{
		Vertices: make([]formats.MeshVertex, len(b.Positions)),
		Indices:  append([]uint32(nil), b.Indices...),
	}
	for i := range b.Positions {
		m.Vertices[i] = formats.MeshVertex{
			Position: b.Positions[i].Array(),
			Normal:   b.Normals[i].Array(),
			Tangent:  b.Tangents[i].Array(),
			UV:       b.UVs[i].Array(),
			Weight:   b.Weights[i],
		}
	}
	return m
}

// Flatten converts a polygonal mesh into deduplicated vertex buffers and a
// triangle index buffer.
//
// Only the first UV layer is read. Positions, normals and UVs are rounded to
// six decimal digits and V is flipped to a top-left origin. Corners of smooth
// faces that reference the same source vertex share one output vertex, and
// the first corner seen decides its UV. Every corner of a flat face gets its
// own output vertex carrying the face normal. Quads are split along the
// corner 0 to corner 2 diagonal.
func Flatten(m *SourceMesh) (*Buffers, error) {
	if len(m.UVLayers) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingUVChannel, m.Name)
	}
	uvs := m.UVLayers[0].Data

	b := &Buffers{}
	slots := make(map[int]uint32)
	corners := make([]uint32, 0, 4)

	for fi := range m.Faces {
		face := &m.Faces[fi]
		if err := checkFace(m, face, len(uvs)); err != nil {
			return nil, fmt.Errorf("%s: face %d: %w", m.Name, fi, err)
		}

		corners = corners[:0]
		for j, vi := range face.Vertices {
			vert := &m.Vertices[vi]

			if face.Smooth {
				if slot, ok := slots[vi]; ok {
					corners = append(corners, slot)
					continue
				}
			}

			normal := face.Normal
			if face.Smooth {
				normal = vert.Normal
			}

			slot := b.emit(
				vert.Position.Round6(),
				normal.Round6(),
				math.FlipV(uvs[face.LoopStart+j]),
				vert.Weight,
			)
			if face.Smooth {
				slots[vi] = slot
			}
			corners = append(corners, slot)
		}

		b.Indices = AppendTriangles(b.Indices, corners)
	}

	return b, nil
}

// AppendTriangles appends the triangles of a 3 or 4 corner face to dst.
// A quad becomes (c0,c1,c2) and (c0,c2,c3).
func AppendTriangles(dst []uint32, corners []uint32) []uint32 {
	dst = append(dst, corners[0], corners[1], corners[2])
	if len(corners) == 4 {
		dst = append(dst, corners[0], corners[2], corners[3])
	}
	return dst
}

// checkFace rejects faces that cannot be indexed. Degenerate geometry such as
// zero-area triangles or repeated indices is passed through.
func checkFace(m *SourceMesh, face *Face, loops int) error {
	n := len(face.Vertices)
	if n != 3 && n != 4 {
		return fmt.Errorf("%w: %d corners", ErrInvalidFace, n)
	}
	for _, vi := range face.Vertices {
		if !m.validVertex(vi) {
			return fmt.Errorf("%w: vertex index %d out of range", ErrInvalidFace, vi)
		}
	}
	if face.LoopStart < 0 || face.LoopStart+n > loops {
		return fmt.Errorf("%w: uv loops %d..%d out of range", ErrInvalidFace, face.LoopStart, face.LoopStart+n-1)
	}
	return nil
}
