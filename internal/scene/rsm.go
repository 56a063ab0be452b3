package scene

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Faultbox/mos-export/pkg/formats"
	"github.com/Faultbox/mos-export/pkg/math"
	"github.com/Faultbox/mos-export/pkg/mesh"
)

// LoadRSM reads a Ragnarok Online RSM model. Every node with faces becomes
// one object.
func LoadRSM(path, library string, opts Options) ([]*Object, error) {
	rsm, err := formats.ParseRSMFile(path)
	if err != nil {
		return nil, err
	}
	return RSMObjects(rsm, library, opts), nil
}

// RSMObjects returns one object per mesh node. The node's vertex transform
// (offset and 3x3 matrix) is always applied; the hierarchy transform is
// applied only with Options.ApplyTransforms.
func RSMObjects(rsm *formats.RSM, library string, opts Options) []*Object {
	var objects []*Object
	for _, node := range rsm.MeshNodes() {
		var modifiers []string
		if opts.ApplyTransforms {
			modifiers = []string{ModifierTransform}
		}

		objects = append(objects, NewObject(node.Name, node.Name, library, modifiers, func() (*mesh.SourceMesh, error) {
			m, err := rsmNodeMesh(rsm, node)
			if err != nil {
				return nil, err
			}

			matrix := rsmVertexMatrix(node)
			if opts.ApplyTransforms {
				matrix = rsmHierarchyMatrix(rsm, node, make(map[string]bool)).Mul4(matrix)
			}
			applyTransform(m, newTransform(matrix))
			return m, nil
		}))
	}
	return objects
}

// rsmNodeMesh converts node faces into a source mesh. Smoothness follows the
// model-wide shading type.
func rsmNodeMesh(rsm *formats.RSM, node *formats.RSMNode) (*mesh.SourceMesh, error) {
	m := mesh.NewSourceMesh(node.Name)
	for _, v := range node.Vertices {
		m.AddVertex(mesh.Vertex{Position: math.V3(v)})
	}

	smooth := rsm.Shading == formats.RSMShadingSmooth
	for fi, face := range node.Faces {
		verts := make([]int, 3)
		uvs := make([]math.Vec2, 3)
		for j := 0; j < 3; j++ {
			vid, tid := int(face.VertexIDs[j]), int(face.TexCoordIDs[j])
			if vid >= len(node.Vertices) {
				return nil, fmt.Errorf("node %s: face %d: vertex id %d out of range", node.Name, fi, vid)
			}
			if tid >= len(node.TexCoords) {
				return nil, fmt.Errorf("node %s: face %d: texcoord id %d out of range", node.Name, fi, tid)
			}
			verts[j] = vid
			tc := node.TexCoords[tid]
			// RSM texture space has a top-left origin.
			uvs[j] = math.Vec2{X: tc.U, Y: 1 - tc.V}
		}
		m.AddFace(verts, uvs, smooth)
	}

	m.ComputeNormals()
	return m, nil
}

// rsmVertexMatrix is the per-node vertex transform: offset * matrix.
// Children do not inherit it.
func rsmVertexMatrix(node *formats.RSMNode) mgl32.Mat4 {
	offset := mgl32.Translate3D(node.Offset[0], node.Offset[1], node.Offset[2])
	return offset.Mul4(mgl32.Mat3(node.Matrix).Mat4())
}

// rsmHierarchyMatrix is parent * position * rotation * scale, the static part
// of the transform children inherit. Keyframe animation is not evaluated.
func rsmHierarchyMatrix(rsm *formats.RSM, node *formats.RSMNode, visited map[string]bool) mgl32.Mat4 {
	if visited[node.Name] {
		return mgl32.Ident4()
	}
	visited[node.Name] = true

	local := mgl32.Translate3D(node.Position[0], node.Position[1], node.Position[2])
	axis := mgl32.Vec3(node.RotAxis)
	if node.RotAngle != 0 && axis.Len() > 1e-6 {
		local = local.Mul4(mgl32.HomogRotate3D(node.RotAngle, axis.Normalize()))
	}
	scale := node.Scale
	if scale == ([3]float32{}) {
		scale = [3]float32{1, 1, 1}
	}
	local = local.Mul4(mgl32.Scale3D(scale[0], scale[1], scale[2]))

	if node.Parent != "" && node.Parent != node.Name {
		if parent := rsm.GetNodeByName(node.Parent); parent != nil {
			return rsmHierarchyMatrix(rsm, parent, visited).Mul4(local)
		}
	}
	return local
}
