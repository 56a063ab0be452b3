package scene

import (
	"errors"
	"fmt"
	stdmath "math"
	"slices"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"

	"github.com/Faultbox/mos-export/pkg/math"
	"github.com/Faultbox/mos-export/pkg/mesh"
)

// AttributeWeight is the custom glTF vertex attribute read as the per-vertex
// scalar weight.
const AttributeWeight = "_WEIGHT"

// ErrInvalidAccessor is returned for accessors that cannot be read as the
// expected attribute type.
var ErrInvalidAccessor = errors.New("invalid gltf accessor")

// LoadGLTF reads a .gltf or .glb file. Every node that references a mesh
// becomes one object; all triangle primitives of the mesh are merged.
func LoadGLTF(path, library string, opts Options) ([]*Object, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open gltf: %w", err)
	}
	return GLTFObjects(doc, library, opts), nil
}

// GLTFObjects returns the mesh-bearing nodes of a loaded document.
func GLTFObjects(doc *gltf.Document, library string, opts Options) []*Object {
	worlds := nodeWorldMatrices(doc)

	var objects []*Object
	for i, node := range doc.Nodes {
		if node.Mesh == nil || *node.Mesh < 0 || *node.Mesh >= len(doc.Meshes) {
			continue
		}
		meshIdx := *node.Mesh

		name := node.Name
		if name == "" {
			name = fmt.Sprintf("node%d", i)
		}
		meshName := doc.Meshes[meshIdx].Name
		if meshName == "" {
			meshName = fmt.Sprintf("mesh%d", meshIdx)
		}

		var modifiers []string
		world := worlds[i]
		applyWorld := opts.ApplyTransforms && world != mgl32.Ident4()
		if applyWorld {
			modifiers = []string{ModifierTransform}
		}

		smooth := opts.SmoothGLTF
		objects = append(objects, NewObject(name, meshName, library, modifiers, func() (*mesh.SourceMesh, error) {
			m, err := gltfMesh(doc, meshIdx, meshName, smooth)
			if err != nil {
				return nil, err
			}
			if applyWorld {
				applyTransform(m, newTransform(world))
			}
			return m, nil
		}))
	}
	return objects
}

// nodeWorldMatrices resolves every node's world matrix through the hierarchy.
// Nodes unreachable from a root keep their local matrix.
func nodeWorldMatrices(doc *gltf.Document) []mgl32.Mat4 {
	worlds := make([]mgl32.Mat4, len(doc.Nodes))
	hasParent := make([]bool, len(doc.Nodes))
	for _, n := range doc.Nodes {
		for _, c := range n.Children {
			if c >= 0 && c < len(doc.Nodes) {
				hasParent[c] = true
			}
		}
	}

	visited := make([]bool, len(doc.Nodes))
	var walk func(i int, parent mgl32.Mat4)
	walk = func(i int, parent mgl32.Mat4) {
		if visited[i] {
			return
		}
		visited[i] = true
		worlds[i] = parent.Mul4(localMatrix(doc.Nodes[i]))
		for _, c := range doc.Nodes[i].Children {
			if c >= 0 && c < len(doc.Nodes) {
				walk(c, worlds[i])
			}
		}
	}

	for i := range doc.Nodes {
		if !hasParent[i] {
			walk(i, mgl32.Ident4())
		}
	}
	for i := range doc.Nodes {
		if !visited[i] {
			worlds[i] = localMatrix(doc.Nodes[i])
		}
	}
	return worlds
}

// localMatrix returns the node matrix, or its TRS composition when the matrix
// is unset (zero or identity).
func localMatrix(n *gltf.Node) mgl32.Mat4 {
	var m mgl32.Mat4
	for i, f := range n.Matrix {
		m[i] = float32(f)
	}
	if m != (mgl32.Mat4{}) && m != mgl32.Ident4() {
		return m
	}

	var t, s [3]float32
	var q [4]float32
	for i := 0; i < 3; i++ {
		t[i] = float32(n.Translation[i])
		s[i] = float32(n.Scale[i])
	}
	for i := 0; i < 4; i++ {
		q[i] = float32(n.Rotation[i])
	}
	return trsMatrix(t, q, s)
}

// gltfMesh merges the triangle primitives of one glTF mesh.
func gltfMesh(doc *gltf.Document, meshIdx int, name string, smooth bool) (*mesh.SourceMesh, error) {
	m := &mesh.SourceMesh{Name: name}
	hasUV := false
	hasNormals := true

	for pi, prim := range doc.Meshes[meshIdx].Primitives {
		if prim.Mode != gltf.PrimitiveTriangles {
			// Lines and points carry no surface.
			continue
		}

		posIdx, ok := prim.Attributes[gltf.POSITION]
		if !ok {
			continue
		}
		positions, err := readAccessor(doc, posIdx, gltf.AccessorVec3, floatComponents, modeler.ReadPosition)
		if err != nil {
			return nil, fmt.Errorf("primitive %d positions: %w", pi, err)
		}
		count := len(positions)

		normals, err := readAttribute(doc, prim.Attributes, gltf.NORMAL, count, gltf.AccessorVec3, floatComponents, modeler.ReadNormal)
		if err != nil {
			return nil, fmt.Errorf("primitive %d normals: %w", pi, err)
		}
		uvs, err := readAttribute(doc, prim.Attributes, gltf.TEXCOORD_0, count, gltf.AccessorVec2, normalizedComponents, modeler.ReadTextureCoord)
		if err != nil {
			return nil, fmt.Errorf("primitive %d uvs: %w", pi, err)
		}
		weights, err := readAttribute(doc, prim.Attributes, AttributeWeight, count, gltf.AccessorScalar, normalizedComponents, readWeights)
		if err != nil {
			return nil, fmt.Errorf("primitive %d weights: %w", pi, err)
		}

		if uvs != nil && !hasUV {
			hasUV = true
			m.UVLayers = []mesh.UVLayer{{Name: gltf.TEXCOORD_0, Data: make([]math.Vec2, m.LoopCount())}}
		}
		hasNormals = hasNormals && normals != nil

		base := len(m.Vertices)
		for i, p := range positions {
			v := mesh.Vertex{Position: math.V3(p)}
			if normals != nil {
				v.Normal = math.V3(normals[i])
			}
			if weights != nil {
				v.Weight = weights[i]
			}
			m.AddVertex(v)
		}

		var indices []uint32
		if prim.Indices != nil {
			indices, err = readAccessor(doc, *prim.Indices, gltf.AccessorScalar, indexComponents, modeler.ReadIndices)
			if err != nil {
				return nil, fmt.Errorf("primitive %d indices: %w", pi, err)
			}
		} else {
			indices = make([]uint32, count)
			for i := range indices {
				indices[i] = uint32(i)
			}
		}

		for i := 0; i+2 < len(indices); i += 3 {
			tri := make([]int, 3)
			var triUVs []math.Vec2
			for j, idx := range indices[i : i+3] {
				if int64(idx) >= int64(count) {
					return nil, fmt.Errorf("primitive %d: %w: index %d out of range", pi, ErrInvalidAccessor, idx)
				}
				tri[j] = base + int(idx)
				if uvs != nil {
					// glTF uses a top-left origin; sources are bottom-left.
					uv := uvs[idx]
					triUVs = append(triUVs, math.Vec2{X: uv[0], Y: 1 - uv[1]})
				}
			}
			m.AddFace(tri, triUVs, smooth)
		}
	}

	if hasNormals {
		m.ComputeFaceNormals()
	} else {
		m.ComputeNormals()
	}
	return m, nil
}

// Component types accepted per attribute. Integer texture coordinates and
// weights are normalized.
var (
	floatComponents      = []gltf.ComponentType{gltf.ComponentFloat}
	normalizedComponents = []gltf.ComponentType{gltf.ComponentFloat, gltf.ComponentUbyte, gltf.ComponentUshort}
	indexComponents      = []gltf.ComponentType{gltf.ComponentUbyte, gltf.ComponentUshort, gltf.ComponentUint}
)

// readAttribute reads an optional vertex attribute. A missing attribute
// yields nil.
func readAttribute[E any](doc *gltf.Document, attrs map[string]int, name string, count int, typ gltf.AccessorType, components []gltf.ComponentType, read func(*gltf.Document, *gltf.Accessor, []E) ([]E, error)) ([]E, error) {
	idx, ok := attrs[name]
	if !ok {
		return nil, nil
	}
	data, err := readAccessor(doc, idx, typ, components, read)
	if err != nil {
		return nil, err
	}
	if len(data) != count {
		return nil, fmt.Errorf("%w: %s has %d elements for %d vertices", ErrInvalidAccessor, name, len(data), count)
	}
	return data, nil
}

// readAccessor checks an accessor and decodes it with read. Accessors with
// neither a buffer view nor sparse values are all zeros.
func readAccessor[E any](doc *gltf.Document, idx int, typ gltf.AccessorType, components []gltf.ComponentType, read func(*gltf.Document, *gltf.Accessor, []E) ([]E, error)) ([]E, error) {
	acc, err := checkAccessor(doc, idx, typ, components)
	if err != nil {
		return nil, err
	}
	if acc.BufferView == nil && acc.Sparse == nil {
		return make([]E, acc.Count), nil
	}

	data, err := read(doc, acc, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: accessor %d: %w", ErrInvalidAccessor, idx, err)
	}
	return data, nil
}

// readWeights decodes a scalar weight accessor, normalizing integer data.
func readWeights(doc *gltf.Document, acc *gltf.Accessor, buffer []float32) ([]float32, error) {
	data, err := modeler.ReadAccessor(doc, acc, nil)
	if err != nil {
		return nil, err
	}

	switch v := data.(type) {
	case []float32:
		return v, nil
	case []uint8:
		out := make([]float32, len(v))
		for i, w := range v {
			out[i] = float32(w) / stdmath.MaxUint8
		}
		return out, nil
	case []uint16:
		out := make([]float32, len(v))
		for i, w := range v {
			out[i] = float32(w) / stdmath.MaxUint16
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unexpected weight data %T", data)
	}
}

// checkAccessor validates the accessor type and, when it is backed by a
// buffer view, that every element lies inside the view and its buffer.
func checkAccessor(doc *gltf.Document, idx int, typ gltf.AccessorType, components []gltf.ComponentType) (*gltf.Accessor, error) {
	if idx < 0 || idx >= len(doc.Accessors) {
		return nil, fmt.Errorf("%w: accessor %d missing", ErrInvalidAccessor, idx)
	}
	acc := doc.Accessors[idx]
	if acc.Type != typ || !slices.Contains(components, acc.ComponentType) {
		return nil, fmt.Errorf("%w: accessor %d is %v %v, want %v", ErrInvalidAccessor, idx, acc.ComponentType, acc.Type, typ)
	}
	if acc.Count < 0 {
		return nil, fmt.Errorf("%w: accessor %d count %d", ErrInvalidAccessor, idx, acc.Count)
	}
	if acc.BufferView == nil {
		return acc, nil
	}

	if *acc.BufferView < 0 || *acc.BufferView >= len(doc.BufferViews) {
		return nil, fmt.Errorf("%w: accessor %d buffer view %d missing", ErrInvalidAccessor, idx, *acc.BufferView)
	}
	view := doc.BufferViews[*acc.BufferView]
	if view.Buffer < 0 || view.Buffer >= len(doc.Buffers) {
		return nil, fmt.Errorf("%w: buffer %d missing", ErrInvalidAccessor, view.Buffer)
	}
	if data := doc.Buffers[view.Buffer].Data; len(data) == 0 || view.ByteOffset < 0 || view.ByteOffset+view.ByteLength > len(data) {
		return nil, fmt.Errorf("%w: buffer view %d exceeds buffer %d", ErrInvalidAccessor, *acc.BufferView, view.Buffer)
	}

	elem := componentSize(acc.ComponentType) * componentCount(typ)
	stride := view.ByteStride
	if stride == 0 {
		stride = elem
	}
	if acc.Count > 0 {
		end := acc.ByteOffset + (acc.Count-1)*stride + elem
		if acc.ByteOffset < 0 || end > view.ByteLength {
			return nil, fmt.Errorf("%w: accessor %d exceeds buffer view", ErrInvalidAccessor, idx)
		}
	}
	return acc, nil
}

func componentCount(typ gltf.AccessorType) int {
	switch typ {
	case gltf.AccessorVec2:
		return 2
	case gltf.AccessorVec3:
		return 3
	case gltf.AccessorVec4:
		return 4
	default:
		return 1
	}
}

func componentSize(c gltf.ComponentType) int {
	switch c {
	case gltf.ComponentByte, gltf.ComponentUbyte:
		return 1
	case gltf.ComponentShort, gltf.ComponentUshort:
		return 2
	default:
		return 4
	}
}
