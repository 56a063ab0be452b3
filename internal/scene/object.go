// Package scene loads source model files into exportable objects and derives
// their destination mesh paths.
package scene

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Faultbox/mos-export/pkg/mesh"
)

// Scene errors.
var (
	ErrUnsupportedSource = errors.New("unsupported source file")
	ErrNoGeometry        = errors.New("object evaluated to no mesh")
)

// ModifierTransform is recorded on objects whose world transform was baked
// into their geometry.
const ModifierTransform = "Transform"

// Options control how source files are turned into objects.
type Options struct {
	// Library overrides the library name derived from the source file name.
	Library string
	// ApplyTransforms bakes node world transforms into the geometry.
	ApplyTransforms bool
	// SmoothGLTF marks glTF faces smooth. glTF vertices are already split
	// wherever attributes differ, so smooth faces only merge true duplicates.
	SmoothGLTF bool
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{SmoothGLTF: true}
}

// Object is one exportable mesh-bearing object of a loaded scene.
type Object struct {
	name      string
	meshName  string
	library   string
	modifiers []string
	evaluate  func() (*mesh.SourceMesh, error)
}

// NewObject creates an object whose geometry is produced by evaluate.
func NewObject(name, meshName, library string, modifiers []string, evaluate func() (*mesh.SourceMesh, error)) *Object {
	return &Object{
		name:      name,
		meshName:  meshName,
		library:   library,
		modifiers: modifiers,
		evaluate:  evaluate,
	}
}

// Name returns the object name.
func (o *Object) Name() string {
	return o.name
}

// MeshName returns the name of the mesh data the object uses.
func (o *Object) MeshName() string {
	return o.meshName
}

// Modifiers returns the names of the modifiers applied to the geometry.
func (o *Object) Modifiers() []string {
	return o.modifiers
}

// Geometry evaluates the object's mesh with modifiers applied.
func (o *Object) Geometry() (*mesh.SourceMesh, error) {
	m, err := o.evaluate()
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoGeometry, o.name)
	}
	if m.Name == "" {
		m.Name = o.meshName
	}
	return m, nil
}

// Path returns the object's destination path relative to the export root.
func (o *Object) Path() string {
	return MeshPath(o.library, o.name, o.meshName, o.modifiers)
}

// MeshPath derives "<library>/meshes/<name>.mesh". The name is the mesh data
// name unless modifiers are present, in which case it is the object name
// followed by "_<modifier>" for every modifier, lowercased. Names come from
// model files and are kept to a single path element.
func MeshPath(library, objectName, meshName string, modifiers []string) string {
	name := meshName
	if len(modifiers) > 0 {
		name = objectName
	}
	name = pathElement(name)
	for _, m := range modifiers {
		name += "_" + strings.ToLower(pathElement(m))
	}

	path := library + "/meshes/" + name + ".mesh"
	return strings.Trim(path, "/")
}

// pathElement replaces separators and turns "." and ".." into underscores.
func pathElement(name string) string {
	name = strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' {
			return '_'
		}
		return r
	}, name)
	if name == "." || name == ".." {
		return strings.Repeat("_", len(name))
	}
	return name
}

// LibraryName returns the base name of a source file without its extension.
func LibraryName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Load reads a source model file and returns its mesh-bearing objects.
func Load(path string, opts Options) ([]*Object, error) {
	library := opts.Library
	if library == "" {
		library = LibraryName(path)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".obj":
		return LoadOBJ(path, library)
	case ".gltf", ".glb":
		return LoadGLTF(path, library, opts)
	case ".rsm":
		return LoadRSM(path, library, opts)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSource, path)
	}
}
