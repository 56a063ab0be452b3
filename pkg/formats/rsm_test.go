package formats

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/Faultbox/mos-export/pkg/encoding"
)

// testRSMNode describes a node written by makeRSM.
type testRSMNode struct {
	name     string
	parent   string
	vertices [][3]float32
	uvs      [][2]float32
	faces    []RSMFace
	rotKeys  int
}

// makeRSM creates a v1.x RSM file with the given shading and nodes.
func makeRSM(major, minor uint8, shading RSMShadingType, textures []string, nodes []testRSMNode) []byte {
	buf := new(bytes.Buffer)
	v := RSMVersion{major, minor}

	buf.WriteString("GRSM")
	buf.WriteByte(major)
	buf.WriteByte(minor)

	binary.Write(buf, binary.LittleEndian, int32(0)) // anim length
	binary.Write(buf, binary.LittleEndian, shading)
	if v.AtLeast(1, 4) {
		buf.WriteByte(255) // alpha
	}
	buf.Write(make([]byte, 16)) // reserved

	binary.Write(buf, binary.LittleEndian, int32(len(textures)))
	for _, tex := range textures {
		buf.Write(encoding.UTF8ToFixedString(tex, 40))
	}

	rootName := ""
	if len(nodes) > 0 {
		rootName = nodes[0].name
	}
	buf.Write(encoding.UTF8ToFixedString(rootName, 40))

	binary.Write(buf, binary.LittleEndian, int32(len(nodes)))
	for _, n := range nodes {
		buf.Write(encoding.UTF8ToFixedString(n.name, 40))
		buf.Write(encoding.UTF8ToFixedString(n.parent, 40))

		binary.Write(buf, binary.LittleEndian, int32(1)) // texture ids
		binary.Write(buf, binary.LittleEndian, int32(0))

		binary.Write(buf, binary.LittleEndian, [9]float32{1, 0, 0, 0, 1, 0, 0, 0, 1})
		binary.Write(buf, binary.LittleEndian, [3]float32{}) // offset
		binary.Write(buf, binary.LittleEndian, [3]float32{}) // position
		binary.Write(buf, binary.LittleEndian, float32(0))   // rot angle
		binary.Write(buf, binary.LittleEndian, [3]float32{}) // rot axis
		binary.Write(buf, binary.LittleEndian, [3]float32{1, 1, 1})

		binary.Write(buf, binary.LittleEndian, int32(len(n.vertices)))
		binary.Write(buf, binary.LittleEndian, n.vertices)

		binary.Write(buf, binary.LittleEndian, int32(len(n.uvs)))
		for _, uv := range n.uvs {
			if v.AtLeast(1, 2) {
				buf.Write([]byte{255, 255, 255, 255})
			}
			binary.Write(buf, binary.LittleEndian, uv)
		}

		binary.Write(buf, binary.LittleEndian, int32(len(n.faces)))
		for _, f := range n.faces {
			binary.Write(buf, binary.LittleEndian, f.VertexIDs)
			binary.Write(buf, binary.LittleEndian, f.TexCoordIDs)
			binary.Write(buf, binary.LittleEndian, f.TextureID)
			binary.Write(buf, binary.LittleEndian, uint16(0)) // padding
			binary.Write(buf, binary.LittleEndian, f.TwoSide)
			if v.AtLeast(1, 2) {
				binary.Write(buf, binary.LittleEndian, f.SmoothGroup)
			}
		}

		if !v.AtLeast(1, 5) {
			binary.Write(buf, binary.LittleEndian, int32(0)) // position keys
		}
		binary.Write(buf, binary.LittleEndian, int32(n.rotKeys))
		for i := 0; i < n.rotKeys; i++ {
			binary.Write(buf, binary.LittleEndian, int32(i*100))
			binary.Write(buf, binary.LittleEndian, [4]float32{0, 0, 0, 1})
		}
		if v.AtLeast(1, 5) {
			binary.Write(buf, binary.LittleEndian, int32(0)) // scale keys
		}
	}

	binary.Write(buf, binary.LittleEndian, int32(0)) // volume boxes
	return buf.Bytes()
}

func quadNode(name string) testRSMNode {
	return testRSMNode{
		name:     name,
		vertices: [][3]float32{{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0}},
		uvs:      [][2]float32{{0, 0}, {1, 0}, {1, 1}, {0, 1}},
		faces: []RSMFace{
			{VertexIDs: [3]uint16{0, 1, 2}, TexCoordIDs: [3]uint16{0, 1, 2}, SmoothGroup: 1},
			{VertexIDs: [3]uint16{0, 2, 3}, TexCoordIDs: [3]uint16{0, 2, 3}, SmoothGroup: 1},
		},
	}
}

func TestParseRSM_MagicValidation(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{"valid", makeRSM(1, 5, RSMShadingSmooth, nil, nil), nil},
		{"invalid magic", append([]byte("XXXX"), 1, 5), ErrInvalidRSMMagic},
		{"empty data", []byte{}, ErrTruncatedRSMData},
		{"truncated magic", []byte{'G', 'R', 'S'}, ErrTruncatedRSMData},
		{"truncated header", []byte{'G', 'R', 'S', 'M', 1, 5, 0}, ErrTruncatedRSMData},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRSM(tt.data)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestParseRSM_VersionSupport(t *testing.T) {
	tests := []struct {
		name    string
		major   uint8
		minor   uint8
		wantErr bool
	}{
		{"v1.1", 1, 1, false},
		{"v1.2", 1, 2, false},
		{"v1.3", 1, 3, false},
		{"v1.4", 1, 4, false},
		{"v1.5", 1, 5, false},
		{"v0.1 unsupported", 0, 1, true},
		{"v2.2 unsupported", 2, 2, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := makeRSM(tt.major, tt.minor, RSMShadingFlat, []string{"a.bmp"}, []testRSMNode{quadNode("root")})
			rsm, err := ParseRSM(data)
			if (err != nil) != tt.wantErr {
				t.Fatalf("version %d.%d: got error=%v, wantErr=%v", tt.major, tt.minor, err, tt.wantErr)
			}
			if err == nil && len(rsm.Nodes[0].Faces) != 2 {
				t.Errorf("faces = %d, want 2", len(rsm.Nodes[0].Faces))
			}
		})
	}
}

func TestRSMVersion_AtLeast(t *testing.T) {
	tests := []struct {
		version RSMVersion
		major   uint8
		minor   uint8
		want    bool
	}{
		{RSMVersion{1, 5}, 1, 5, true},
		{RSMVersion{1, 5}, 1, 4, true},
		{RSMVersion{1, 5}, 1, 6, false},
		{RSMVersion{1, 5}, 2, 0, false},
		{RSMVersion{2, 3}, 1, 9, true},
	}

	for _, tt := range tests {
		t.Run(tt.version.String(), func(t *testing.T) {
			if got := tt.version.AtLeast(tt.major, tt.minor); got != tt.want {
				t.Errorf("AtLeast(%d, %d) = %v, want %v", tt.major, tt.minor, got, tt.want)
			}
		})
	}
}

func TestRSMShadingType_String(t *testing.T) {
	tests := []struct {
		shading RSMShadingType
		want    string
	}{
		{RSMShadingNone, "None"},
		{RSMShadingFlat, "Flat"},
		{RSMShadingSmooth, "Smooth"},
		{RSMShadingType(99), "Unknown(99)"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.shading.String(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseRSM_Geometry(t *testing.T) {
	child := quadNode("lid")
	child.parent = "box"
	child.rotKeys = 2

	data := makeRSM(1, 4, RSMShadingSmooth, []string{"box.bmp"}, []testRSMNode{quadNode("box"), child})

	rsm, err := ParseRSM(data)
	if err != nil {
		t.Fatalf("ParseRSM failed: %v", err)
	}

	if rsm.Shading != RSMShadingSmooth {
		t.Errorf("Shading = %v, want Smooth", rsm.Shading)
	}
	if len(rsm.Textures) != 1 || rsm.Textures[0] != "box.bmp" {
		t.Errorf("Textures = %v", rsm.Textures)
	}
	if rsm.RootNode != "box" {
		t.Errorf("RootNode = %q, want box", rsm.RootNode)
	}
	if len(rsm.Nodes) != 2 {
		t.Fatalf("node count = %d, want 2", len(rsm.Nodes))
	}

	lid := rsm.GetNodeByName("lid")
	if lid == nil {
		t.Fatal("GetNodeByName(lid) returned nil")
	}
	if lid.Parent != "box" {
		t.Errorf("Parent = %q, want box", lid.Parent)
	}
	if lid.AnimationKeys != 2 {
		t.Errorf("AnimationKeys = %d, want 2", lid.AnimationKeys)
	}
	if len(lid.Vertices) != 4 || lid.Vertices[2] != [3]float32{1, 1, 0} {
		t.Errorf("Vertices = %v", lid.Vertices)
	}
	if len(lid.TexCoords) != 4 || lid.TexCoords[3].V != 1 {
		t.Errorf("TexCoords = %v", lid.TexCoords)
	}
	if lid.Faces[1].VertexIDs != [3]uint16{0, 2, 3} || lid.Faces[1].SmoothGroup != 1 {
		t.Errorf("Faces[1] = %+v", lid.Faces[1])
	}
	if lid.Scale != [3]float32{1, 1, 1} {
		t.Errorf("Scale = %v", lid.Scale)
	}
}

func TestParseRSM_TruncatedNode(t *testing.T) {
	data := makeRSM(1, 5, RSMShadingFlat, nil, []testRSMNode{quadNode("root")})
	_, err := ParseRSM(data[:len(data)-30])
	if !errors.Is(err, ErrTruncatedRSMData) {
		t.Errorf("expected ErrTruncatedRSMData, got %v", err)
	}
}

func TestParseRSM_InvalidCount(t *testing.T) {
	data := makeRSM(1, 5, RSMShadingFlat, nil, nil)
	// Node count sits after magic, version, anim length, shading, alpha,
	// reserved, texture count and root name.
	off := 4 + 2 + 4 + 4 + 1 + 16 + 4 + 40
	binary.LittleEndian.PutUint32(data[off:], 0xffffffff)

	_, err := ParseRSM(data)
	if !errors.Is(err, ErrInvalidRSMCount) {
		t.Errorf("expected ErrInvalidRSMCount, got %v", err)
	}
}

func TestRSM_MeshNodes(t *testing.T) {
	rsm := &RSM{Nodes: []RSMNode{
		{Name: "empty"},
		{Name: "mesh", Faces: make([]RSMFace, 1)},
	}}
	nodes := rsm.MeshNodes()
	if len(nodes) != 1 || nodes[0].Name != "mesh" {
		t.Errorf("MeshNodes() = %v", nodes)
	}
}
