package scene

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/Faultbox/mos-export/pkg/math"
	"github.com/Faultbox/mos-export/pkg/mesh"
)

// transform maps points with m and directions with the inverse transpose
// of its upper 3x3.
type transform struct {
	m      mgl32.Mat4
	normal mgl32.Mat3
}

func newTransform(m mgl32.Mat4) transform {
	return transform{m: m, normal: m.Mat3().Inv().Transpose()}
}

func (t transform) point(v math.Vec3) math.Vec3 {
	p := t.m.Mul4x1(mgl32.Vec3{v.X, v.Y, v.Z}.Vec4(1)).Vec3()
	return math.Vec3{X: p[0], Y: p[1], Z: p[2]}
}

func (t transform) direction(v math.Vec3) math.Vec3 {
	d := t.normal.Mul3x1(mgl32.Vec3{v.X, v.Y, v.Z})
	return math.Vec3{X: d[0], Y: d[1], Z: d[2]}.Normalize()
}

// mirrors reports whether the transform flips handedness.
func (t transform) mirrors() bool {
	return t.m.Mat3().Det() < 0
}

// applyTransform bakes t into the mesh. Mirroring transforms reverse the
// corner order of every face after corner 0, which keeps front faces and the
// quad diagonal intact.
func applyTransform(m *mesh.SourceMesh, t transform) {
	for i := range m.Vertices {
		v := &m.Vertices[i]
		v.Position = t.point(v.Position)
		v.Normal = t.direction(v.Normal)
	}

	if t.mirrors() {
		for i := range m.Faces {
			f := &m.Faces[i]
			n := len(f.Vertices)
			if n < 3 {
				continue
			}
			reverseInts(f.Vertices[1:])
			for l := range m.UVLayers {
				data := m.UVLayers[l].Data
				if f.LoopStart+n <= len(data) {
					reverseVec2(data[f.LoopStart+1 : f.LoopStart+n])
				}
			}
		}
	}

	m.ComputeFaceNormals()
}

func reverseInts(s []int) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

func reverseVec2(s []math.Vec2) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

// trsMatrix builds translation * rotation * scale. A zero quaternion or a
// zero scale is treated as its identity.
func trsMatrix(t [3]float32, q [4]float32, s [3]float32) mgl32.Mat4 {
	if s == ([3]float32{}) {
		s = [3]float32{1, 1, 1}
	}
	rot := mgl32.Ident4()
	if q != ([4]float32{}) {
		rot = mgl32.Quat{W: q[3], V: mgl32.Vec3{q[0], q[1], q[2]}}.Normalize().Mat4()
	}
	return mgl32.Translate3D(t[0], t[1], t[2]).Mul4(rot).Mul4(mgl32.Scale3D(s[0], s[1], s[2]))
}
