// Package mesh flattens polygonal source meshes into deduplicated vertex
// buffers and a triangle index buffer ready for the engine mesh format.
package mesh

import (
	"github.com/Faultbox/mos-export/pkg/math"
)

// Vertex is a source vertex as evaluated by the authoring side.
type Vertex struct {
	Position math.Vec3
	Normal   math.Vec3 // Vertex-averaged normal, used by smooth faces
	Weight   float32   // Single scalar weight carried to the output unchanged
}

// Face is an ordered polygon of 3 or 4 source vertex indices.
type Face struct {
	Vertices  []int     // Indices into SourceMesh.Vertices
	LoopStart int       // Index of the first corner in every UV layer
	Smooth    bool      // Smooth faces share vertices by source index
	Normal    math.Vec3 // Face normal, used by flat faces
}

// UVLayer holds one texture coordinate per face corner (loop), not per vertex.
type UVLayer struct {
	Name string
	Data []math.Vec2
}

// SourceMesh is the read-only polygonal input to Flatten.
type SourceMesh struct {
	Name     string
	Vertices []Vertex
	Faces    []Face
	UVLayers []UVLayer

	loops int
}

// NewSourceMesh creates an empty mesh with a single UV layer.
func NewSourceMesh(name string) *SourceMesh {
	return &SourceMesh{
		Name:     name,
		UVLayers: []UVLayer{{Name: "UVMap"}},
	}
}

// LoopCount returns the number of face corners in the mesh.
func (m *SourceMesh) LoopCount() int {
	n := 0
	for _, f := range m.Faces {
		n += len(f.Vertices)
	}
	return n
}

// AddVertex appends a vertex and returns its index.
func (m *SourceMesh) AddVertex(v Vertex) int {
	m.Vertices = append(m.Vertices, v)
	return len(m.Vertices) - 1
}

// AddFace appends a face with one UV per corner. The UVs go to the first
// layer; other layers receive zero coordinates. uvs may be nil when the mesh
// has no UV layers.
func (m *SourceMesh) AddFace(vertices []int, uvs []math.Vec2, smooth bool) {
	if m.loops == 0 && len(m.Faces) > 0 {
		m.loops = m.LoopCount()
	}

	m.Faces = append(m.Faces, Face{
		Vertices:  append([]int(nil), vertices...),
		LoopStart: m.loops,
		Smooth:    smooth,
	})
	m.loops += len(vertices)

	for i := range m.UVLayers {
		layer := &m.UVLayers[i]
		for j := range vertices {
			var uv math.Vec2
			if i == 0 && j < len(uvs) {
				uv = uvs[j]
			}
			layer.Data = append(layer.Data, uv)
		}
	}
}

// AddPolygon appends a polygon of any size. Triangles and quads are kept as
// they are; larger polygons are fan-split into triangles.
func (m *SourceMesh) AddPolygon(vertices []int, uvs []math.Vec2, smooth bool) {
	if len(vertices) <= 4 {
		m.AddFace(vertices, uvs, smooth)
		return
	}

	for _, tri := range SplitPolygon(len(vertices)) {
		verts := []int{vertices[tri[0]], vertices[tri[1]], vertices[tri[2]]}
		var triUVs []math.Vec2
		if len(uvs) == len(vertices) {
			triUVs = []math.Vec2{uvs[tri[0]], uvs[tri[1]], uvs[tri[2]]}
		}
		m.AddFace(verts, triUVs, smooth)
	}
}

// SplitPolygon returns the corner triples of a triangle fan around corner 0
// for a polygon with n corners. Polygons with fewer than 3 corners yield nil.
func SplitPolygon(n int) [][3]int {
	if n < 3 {
		return nil
	}
	tris := make([][3]int, 0, n-2)
	for i := 1; i+1 < n; i++ {
		tris = append(tris, [3]int{0, i, i + 1})
	}
	return tris
}

// ComputeNormals fills face normals (Newell) and area-weighted vertex normals
// from positions. Sources that carry authored vertex normals call
// ComputeFaceNormals instead.
func (m *SourceMesh) ComputeNormals() {
	m.ComputeFaceNormals()

	sums := make([]math.Vec3, len(m.Vertices))
	for _, f := range m.Faces {
		for _, tri := range SplitPolygon(len(f.Vertices)) {
			a, b, c := f.Vertices[tri[0]], f.Vertices[tri[1]], f.Vertices[tri[2]]
			if !m.validVertex(a) || !m.validVertex(b) || !m.validVertex(c) {
				continue
			}
			p0 := m.Vertices[a].Position
			// Unnormalized cross product weights by triangle area.
			n := m.Vertices[b].Position.Sub(p0).Cross(m.Vertices[c].Position.Sub(p0))
			sums[a] = sums[a].Add(n)
			sums[b] = sums[b].Add(n)
			sums[c] = sums[c].Add(n)
		}
	}

	for i := range m.Vertices {
		m.Vertices[i].Normal = sums[i].Normalize()
	}
}

// ComputeFaceNormals fills Face.Normal for every face from vertex positions.
func (m *SourceMesh) ComputeFaceNormals() {
	for i := range m.Faces {
		f := &m.Faces[i]
		points := make([]math.Vec3, 0, len(f.Vertices))
		for _, vi := range f.Vertices {
			if m.validVertex(vi) {
				points = append(points, m.Vertices[vi].Position)
			}
		}
		f.Normal = math.PolygonNormal(points)
	}
}

func (m *SourceMesh) validVertex(i int) bool {
	return i >= 0 && i < len(m.Vertices)
}
