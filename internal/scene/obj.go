package scene

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/Faultbox/mos-export/pkg/math"
	"github.com/Faultbox/mos-export/pkg/mesh"
)

// ErrOBJSyntax is returned for malformed OBJ statements.
var ErrOBJSyntax = errors.New("obj syntax error")

// objCorner is one parsed "v/vt/vn" reference, zero-based, -1 when absent.
type objCorner struct {
	v, vt, vn int
}

type objFace struct {
	corners []objCorner
	smooth  bool
}

type objGroup struct {
	name  string
	faces []objFace
}

type objFile struct {
	positions []math.Vec3
	texCoords []math.Vec2
	normals   []math.Vec3
	groups    []*objGroup
}

// LoadOBJ reads a Wavefront OBJ file. Every "o" or "g" block with faces
// becomes one object; "s" statements select smooth or flat faces.
func LoadOBJ(path, library string) ([]*Object, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return ParseOBJ(f, library)
}

// ParseOBJ reads OBJ data. Objects without a name are named after the library.
// A name used by an earlier group gets a ".001", ".002", ... suffix so every
// object has its own mesh path.
func ParseOBJ(r io.Reader, library string) ([]*Object, error) {
	obj, err := parseOBJ(r, library)
	if err != nil {
		return nil, err
	}

	var objects []*Object
	used := make(map[string]bool)
	for _, g := range obj.groups {
		if len(g.faces) == 0 {
			continue
		}
		g.name = uniqueName(g.name, used)
		objects = append(objects, NewObject(g.name, g.name, library, nil, func() (*mesh.SourceMesh, error) {
			return obj.buildMesh(g)
		}))
	}
	return objects, nil
}

func uniqueName(name string, used map[string]bool) string {
	unique := name
	for i := 1; used[unique]; i++ {
		unique = fmt.Sprintf("%s.%03d", name, i)
	}
	used[unique] = true
	return unique
}

func parseOBJ(r io.Reader, defaultName string) (*objFile, error) {
	obj := &objFile{}
	current := &objGroup{name: defaultName}
	obj.groups = append(obj.groups, current)
	smooth := false

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		syntaxErr := func(msg string) error {
			return fmt.Errorf("%w: line %d: %s", ErrOBJSyntax, lineNo, msg)
		}

		switch fields[0] {
		case "v":
			p, err := parseFloats(fields[1:], 3)
			if err != nil {
				return nil, syntaxErr(err.Error())
			}
			obj.positions = append(obj.positions, math.Vec3{X: p[0], Y: p[1], Z: p[2]})

		case "vt":
			uv, err := parseFloats(fields[1:], 1)
			if err != nil {
				return nil, syntaxErr(err.Error())
			}
			t := math.Vec2{X: uv[0]}
			if len(uv) > 1 {
				t.Y = uv[1]
			}
			obj.texCoords = append(obj.texCoords, t)

		case "vn":
			n, err := parseFloats(fields[1:], 3)
			if err != nil {
				return nil, syntaxErr(err.Error())
			}
			obj.normals = append(obj.normals, math.Vec3{X: n[0], Y: n[1], Z: n[2]})

		case "f":
			if len(fields) < 4 {
				return nil, syntaxErr("face needs at least 3 corners")
			}
			face := objFace{smooth: smooth}
			for _, ref := range fields[1:] {
				c, err := obj.parseCorner(ref)
				if err != nil {
					return nil, syntaxErr(err.Error())
				}
				face.corners = append(face.corners, c)
			}
			current.faces = append(current.faces, face)

		case "s":
			smooth = len(fields) > 1 && fields[1] != "off" && fields[1] != "0"

		case "o", "g":
			name := defaultName
			if len(fields) > 1 {
				name = strings.Join(fields[1:], " ")
			}
			if len(current.faces) == 0 {
				current.name = name
			} else {
				current = &objGroup{name: name}
				obj.groups = append(obj.groups, current)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return obj, nil
}

func parseFloats(fields []string, minCount int) ([]float32, error) {
	if len(fields) < minCount {
		return nil, fmt.Errorf("expected %d values, got %d", minCount, len(fields))
	}
	out := make([]float32, len(fields))
	for i, s := range fields {
		f, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return nil, fmt.Errorf("bad number %q", s)
		}
		out[i] = float32(f)
	}
	return out, nil
}

// parseCorner parses "v", "v/vt", "v//vn" or "v/vt/vn". Negative indices are
// relative to the elements read so far.
func (obj *objFile) parseCorner(ref string) (objCorner, error) {
	c := objCorner{v: -1, vt: -1, vn: -1}
	parts := strings.Split(ref, "/")
	if len(parts) > 3 {
		return c, fmt.Errorf("bad face reference %q", ref)
	}

	counts := []int{len(obj.positions), len(obj.texCoords), len(obj.normals)}
	targets := []*int{&c.v, &c.vt, &c.vn}

	for i, part := range parts {
		if part == "" {
			if i == 0 {
				return c, fmt.Errorf("bad face reference %q", ref)
			}
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n == 0 {
			return c, fmt.Errorf("bad face reference %q", ref)
		}
		if n < 0 {
			n = counts[i] + n
		} else {
			n--
		}
		if n < 0 || n >= counts[i] {
			return c, fmt.Errorf("face reference %q out of range", ref)
		}
		*targets[i] = n
	}
	return c, nil
}

// buildMesh converts one group to a source mesh with group-local vertices.
func (obj *objFile) buildMesh(g *objGroup) (*mesh.SourceMesh, error) {
	m := &mesh.SourceMesh{Name: g.name}
	if len(obj.texCoords) > 0 {
		m.UVLayers = []mesh.UVLayer{{Name: "UVMap"}}
	}

	local := make(map[int]int)
	authored := make(map[int]math.Vec3)

	for _, face := range g.faces {
		verts := make([]int, len(face.corners))
		uvs := make([]math.Vec2, len(face.corners))

		for i, c := range face.corners {
			vi, ok := local[c.v]
			if !ok {
				vi = m.AddVertex(mesh.Vertex{Position: obj.positions[c.v]})
				local[c.v] = vi
			}
			verts[i] = vi
			if c.vt >= 0 {
				uvs[i] = obj.texCoords[c.vt]
			}
			if c.vn >= 0 {
				authored[vi] = authored[vi].Add(obj.normals[c.vn])
			}
		}

		m.AddPolygon(verts, uvs, face.smooth)
	}

	m.ComputeNormals()
	for vi, n := range authored {
		if n = n.Normalize(); n != (math.Vec3{}) {
			m.Vertices[vi].Normal = n
		}
	}

	return m, nil
}
