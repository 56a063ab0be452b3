package formats

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Faultbox/mos-export/pkg/encoding"
)

// RSM format errors.
var (
	ErrInvalidRSMMagic       = errors.New("invalid RSM magic: expected 'GRSM'")
	ErrUnsupportedRSMVersion = errors.New("unsupported RSM version")
	ErrTruncatedRSMData      = errors.New("truncated RSM data")
	ErrInvalidRSMCount       = errors.New("invalid RSM element count")
)

// Upper bounds for element counts read from untrusted files.
const (
	maxRSMNodes    = 10000
	maxRSMElements = 1 << 20
	rsmNameLength  = 40
)

// RSMVersion represents the RSM file version.
type RSMVersion struct {
	Major uint8
	Minor uint8
}

// String returns the version as "Major.Minor".
func (v RSMVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// AtLeast returns true if version is >= major.minor.
func (v RSMVersion) AtLeast(major, minor uint8) bool {
	if v.Major != major {
		return v.Major > major
	}
	return v.Minor >= minor
}

// RSMShadingType is the model-wide shading mode.
type RSMShadingType int32

const (
	RSMShadingNone   RSMShadingType = 0
	RSMShadingFlat   RSMShadingType = 1
	RSMShadingSmooth RSMShadingType = 2
)

// String returns a human-readable shading type name.
func (s RSMShadingType) String() string {
	switch s {
	case RSMShadingNone:
		return "None"
	case RSMShadingFlat:
		return "Flat"
	case RSMShadingSmooth:
		return "Smooth"
	default:
		return fmt.Sprintf("Unknown(%d)", s)
	}
}

// RSMTexCoord is a texture coordinate with a vertex color (v1.2+).
type RSMTexCoord struct {
	Color [4]uint8
	U, V  float32
}

// RSMFace is a triangle referencing node vertices and texture coordinates.
type RSMFace struct {
	VertexIDs   [3]uint16
	TexCoordIDs [3]uint16
	TextureID   uint16
	TwoSide     int32
	SmoothGroup int32 // v1.2+
}

// RSMNode is one mesh node of the model hierarchy.
type RSMNode struct {
	Name       string
	Parent     string
	TextureIDs []int32

	Matrix   [9]float32 // 3x3, column major
	Offset   [3]float32
	Position [3]float32
	RotAngle float32
	RotAxis  [3]float32
	Scale    [3]float32

	Vertices  [][3]float32
	TexCoords []RSMTexCoord
	Faces     []RSMFace

	AnimationKeys int // position, rotation and scale keyframes read and discarded
}

// RSM is a parsed RSM (Resource Model) file. Only the static geometry is kept.
type RSM struct {
	Version    RSMVersion
	AnimLength int32
	Shading    RSMShadingType
	Alpha      float32
	Textures   []string
	RootNode   string
	Nodes      []RSMNode
}

// rsmReader wraps a bytes.Reader and remembers the first read error.
type rsmReader struct {
	r   *bytes.Reader
	err error
}

func (rr *rsmReader) read(v any) {
	if rr.err != nil {
		return
	}
	if err := binary.Read(rr.r, binary.LittleEndian, v); err != nil {
		rr.err = ErrTruncatedRSMData
	}
}

func (rr *rsmReader) skip(n int64) {
	if rr.err != nil {
		return
	}
	if int64(rr.r.Len()) < n {
		rr.err = ErrTruncatedRSMData
		return
	}
	rr.r.Seek(n, io.SeekCurrent)
}

func (rr *rsmReader) name() string {
	buf := make([]byte, rsmNameLength)
	rr.read(buf)
	return encoding.FixedStringToUTF8(buf)
}

func (rr *rsmReader) count(limit int32) int32 {
	var n int32
	rr.read(&n)
	if rr.err == nil && (n < 0 || n > limit) {
		rr.err = fmt.Errorf("%w: %d", ErrInvalidRSMCount, n)
	}
	if rr.err != nil {
		return 0
	}
	return n
}

// ParseRSM parses RSM data from a byte slice. Versions 1.1 to 1.5 are supported.
func ParseRSM(data []byte) (*RSM, error) {
	if len(data) < 6 {
		return nil, ErrTruncatedRSMData
	}
	if string(data[:4]) != "GRSM" {
		return nil, ErrInvalidRSMMagic
	}

	rsm := &RSM{
		Version: RSMVersion{Major: data[4], Minor: data[5]},
		Alpha:   1.0,
	}
	if rsm.Version.Major != 1 || rsm.Version.Minor < 1 || rsm.Version.Minor > 5 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedRSMVersion, rsm.Version)
	}

	rr := &rsmReader{r: bytes.NewReader(data[6:])}
	rr.read(&rsm.AnimLength)
	rr.read(&rsm.Shading)

	if rsm.Version.AtLeast(1, 4) {
		var alpha uint8
		rr.read(&alpha)
		rsm.Alpha = float32(alpha) / 255.0
	}

	// Reserved
	rr.skip(16)

	textureCount := rr.count(maxRSMElements)
	rsm.Textures = make([]string, textureCount)
	for i := range rsm.Textures {
		rsm.Textures[i] = rr.name()
	}

	rsm.RootNode = rr.name()

	nodeCount := rr.count(maxRSMNodes)
	if rr.err != nil {
		return nil, rr.err
	}

	rsm.Nodes = make([]RSMNode, nodeCount)
	for i := range rsm.Nodes {
		parseRSMNode(rr, rsm.Version, &rsm.Nodes[i])
		if rr.err != nil {
			return nil, fmt.Errorf("parsing node %d: %w", i, rr.err)
		}
	}

	// Volume boxes follow; they carry no geometry.
	return rsm, nil
}

func parseRSMNode(rr *rsmReader, version RSMVersion, node *RSMNode) {
	node.Name = rr.name()
	node.Parent = rr.name()

	node.TextureIDs = make([]int32, rr.count(maxRSMElements))
	rr.read(node.TextureIDs)

	rr.read(&node.Matrix)
	rr.read(&node.Offset)
	rr.read(&node.Position)
	rr.read(&node.RotAngle)
	rr.read(&node.RotAxis)
	rr.read(&node.Scale)

	node.Vertices = make([][3]float32, rr.count(maxRSMElements))
	rr.read(node.Vertices)

	node.TexCoords = make([]RSMTexCoord, rr.count(maxRSMElements))
	for i := range node.TexCoords {
		tc := &node.TexCoords[i]
		if version.AtLeast(1, 2) {
			rr.read(&tc.Color)
		} else {
			tc.Color = [4]uint8{255, 255, 255, 255}
		}
		rr.read(&tc.U)
		rr.read(&tc.V)
	}

	node.Faces = make([]RSMFace, rr.count(maxRSMElements))
	for i := range node.Faces {
		face := &node.Faces[i]
		rr.read(&face.VertexIDs)
		rr.read(&face.TexCoordIDs)
		rr.read(&face.TextureID)
		rr.skip(2) // padding
		rr.read(&face.TwoSide)
		if version.AtLeast(1, 2) {
			rr.read(&face.SmoothGroup)
		}
	}

	// Keyframes: position (frame + vec3) before v1.5, rotation (frame + quat),
	// scale (frame + vec3) from v1.5.
	if !version.AtLeast(1, 5) {
		n := rr.count(maxRSMElements)
		rr.skip(int64(n) * 16)
		node.AnimationKeys += int(n)
	}
	n := rr.count(maxRSMElements)
	rr.skip(int64(n) * 20)
	node.AnimationKeys += int(n)
	if version.AtLeast(1, 5) {
		n := rr.count(maxRSMElements)
		rr.skip(int64(n) * 16)
		node.AnimationKeys += int(n)
	}
}

// ParseRSMFile parses an RSM file from disk.
func ParseRSMFile(path string) (*RSM, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading RSM file: %w", err)
	}
	return ParseRSM(data)
}

// MeshNodes returns the nodes that carry at least one face.
func (rsm *RSM) MeshNodes() []*RSMNode {
	var nodes []*RSMNode
	for i := range rsm.Nodes {
		if len(rsm.Nodes[i].Faces) > 0 {
			nodes = append(nodes, &rsm.Nodes[i])
		}
	}
	return nodes
}

// GetNodeByName returns a node by its name, or nil if not found.
func (rsm *RSM) GetNodeByName(name string) *RSMNode {
	for i := range rsm.Nodes {
		if rsm.Nodes[i].Name == name {
			return &rsm.Nodes[i]
		}
	}
	return nil
}
