package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Faultbox/mos-export/pkg/formats"
	"github.com/Faultbox/mos-export/pkg/math"
	"github.com/Faultbox/mos-export/pkg/mesh"
)

type testObject struct {
	name     string
	path     string
	geometry func() (*mesh.SourceMesh, error)
	calls    atomic.Int32
}

func (o *testObject) Name() string { return o.name }
func (o *testObject) Path() string { return o.path }

func (o *testObject) Geometry() (*mesh.SourceMesh, error) {
	o.calls.Add(1)
	return o.geometry()
}

// quadObject returns an object with a single flat quad.
func quadObject(name string) *testObject {
	return &testObject{
		name: name,
		path: "lib/meshes/" + name + ".mesh",
		geometry: func() (*mesh.SourceMesh, error) {
			m := mesh.NewSourceMesh(name)
			for _, p := range []math.Vec3{{}, {X: 1}, {X: 1, Y: 1}, {Y: 1}} {
				m.AddVertex(mesh.Vertex{Position: p, Normal: math.Vec3{Z: 1}})
			}
			m.AddFace([]int{0, 1, 2, 3}, []math.Vec2{{}, {X: 1}, {X: 1, Y: 1}, {Y: 1}}, false)
			m.ComputeFaceNormals()
			return m, nil
		},
	}
}

func failingObject(name string, err error) *testObject {
	return &testObject{
		name:     name,
		path:     "lib/meshes/" + name + ".mesh",
		geometry: func() (*mesh.SourceMesh, error) { return nil, err },
	}
}

func noUVObject(name string) *testObject {
	obj := quadObject(name)
	inner := obj.geometry
	obj.geometry = func() (*mesh.SourceMesh, error) {
		m, err := inner()
		if err != nil {
			return nil, err
		}
		m.UVLayers = nil
		return m, nil
	}
	return obj
}

func observedLogger() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.InfoLevel)
	return zap.New(core), logs
}

func TestExportObject(t *testing.T) {
	root := t.TempDir()
	log, logs := observedLogger()
	exp := New(Config{Root: root}, log)

	res, err := exp.ExportObject(quadObject("Quad"))
	if err != nil {
		t.Fatalf("ExportObject() error = %v", err)
	}

	wantPath := filepath.Join(root, "lib", "meshes", "Quad.mesh")
	if res.Path != wantPath {
		t.Errorf("Path = %q, want %q", res.Path, wantPath)
	}
	if res.Vertices != 4 || res.Indices != 6 {
		t.Errorf("counts = %d/%d, want 4/6", res.Vertices, res.Indices)
	}

	info, err := os.Stat(wantPath)
	if err != nil {
		t.Fatalf("mesh file missing: %v", err)
	}
	if want := int64(formats.MeshHeaderSize + 4*formats.MeshVertexSize + 6*formats.MeshIndexSize); info.Size() != want {
		t.Errorf("file size = %d, want %d", info.Size(), want)
	}

	parsed, err := formats.ParseMeshFile(wantPath)
	if err != nil {
		t.Fatal(err)
	}
	if parsed.VertexCount() != 4 || parsed.IndexCount() != 6 {
		t.Errorf("header counts = %d/%d", parsed.VertexCount(), parsed.IndexCount())
	}

	entries := logs.FilterMessage("wrote mesh").All()
	if len(entries) != 1 {
		t.Fatalf("got %d log entries, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["path"] != wantPath || fields["vertices"] != int64(4) || fields["indices"] != int64(6) {
		t.Errorf("log fields = %v", fields)
	}
}

func TestExportObject_GeometryFailure(t *testing.T) {
	root := t.TempDir()
	log, logs := observedLogger()
	exp := New(Config{Root: root}, log)

	cause := errors.New("modifier stack failed")
	_, err := exp.ExportObject(failingObject("Broken", cause))

	var objErr *ObjectError
	if !errors.As(err, &objErr) {
		t.Fatalf("expected *ObjectError, got %T", err)
	}
	if objErr.Object != "Broken" {
		t.Errorf("Object = %q, want Broken", objErr.Object)
	}
	if !errors.Is(err, ErrGeometryQuery) || !errors.Is(err, cause) {
		t.Errorf("error chain missing causes: %v", err)
	}

	if _, err := os.Stat(filepath.Join(root, "lib", "meshes", "Broken.mesh")); !os.IsNotExist(err) {
		t.Error("no file should be written for a failed geometry query")
	}
	if logs.FilterLevelExact(zapcore.ErrorLevel).Len() != 1 {
		t.Error("expected one error log entry")
	}
}

func TestExportObject_MissingUV(t *testing.T) {
	root := t.TempDir()
	exp := New(Config{Root: root}, nil)

	_, err := exp.ExportObject(noUVObject("Bare"))
	if !errors.Is(err, mesh.ErrMissingUVChannel) {
		t.Fatalf("expected ErrMissingUVChannel, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "lib")); !os.IsNotExist(err) {
		t.Error("nothing should be created when the mesh has no uv layer")
	}
}

func TestExportObject_IOFailure(t *testing.T) {
	root := t.TempDir()
	// A regular file where the library directory should go.
	if err := os.WriteFile(filepath.Join(root, "lib"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	exp := New(Config{Root: root}, nil)

	_, err := exp.ExportObject(quadObject("Quad"))
	if !errors.Is(err, ErrIO) {
		t.Errorf("expected ErrIO, got %v", err)
	}
}

func TestExportObject_NilGeometry(t *testing.T) {
	obj := failingObject("Empty", nil)
	_, err := New(Config{Root: t.TempDir()}, nil).ExportObject(obj)
	if !errors.Is(err, ErrGeometryQuery) {
		t.Errorf("expected ErrGeometryQuery, got %v", err)
	}
}

func TestExportObject_PathOutsideRoot(t *testing.T) {
	base := t.TempDir()
	root := filepath.Join(base, "out")

	for _, path := range []string{"../escaped.mesh", "lib/../../escaped.mesh", "/abs/escaped.mesh"} {
		t.Run(path, func(t *testing.T) {
			obj := quadObject("Escaped")
			obj.path = path

			_, err := New(Config{Root: root}, nil).ExportObject(obj)
			if !errors.Is(err, ErrIO) {
				t.Errorf("expected ErrIO, got %v", err)
			}
			if obj.calls.Load() != 0 {
				t.Error("geometry should not be queried for a rejected path")
			}
			if _, err := os.Stat(filepath.Join(base, "escaped.mesh")); !os.IsNotExist(err) {
				t.Error("nothing should be written outside the export root")
			}
		})
	}
}

func TestExportAll_DuplicatePaths(t *testing.T) {
	log, logs := observedLogger()
	exp := New(Config{Root: t.TempDir(), Workers: 1}, log)

	first := quadObject("Part")
	second := quadObject("Part.001")
	second.path = first.path

	if _, err := exp.ExportAll(context.Background(), []Object{first, second, quadObject("Other")}); err != nil {
		t.Fatal(err)
	}

	warnings := logs.FilterMessage("duplicate mesh path").All()
	if len(warnings) != 1 {
		t.Fatalf("got %d duplicate warnings, want 1", len(warnings))
	}
	fields := warnings[0].ContextMap()
	if fields["path"] != first.path || fields["object"] != "Part.001" || fields["overwrites"] != "Part" {
		t.Errorf("warning fields = %v", fields)
	}
}

func TestExportAll(t *testing.T) {
	for _, workers := range []int{0, 1, 4} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			root := t.TempDir()
			log, logs := observedLogger()
			exp := New(Config{Root: root, Workers: workers}, log)

			var notified atomic.Int32
			exp.OnResult(func(Result) { notified.Add(1) })

			objects := []Object{
				quadObject("A"),
				failingObject("B", errors.New("boom")),
				quadObject("C"),
				noUVObject("D"),
				quadObject("E"),
			}

			results, err := exp.ExportAll(context.Background(), objects)
			if err == nil {
				t.Fatal("expected a joined error")
			}
			if len(results) != len(objects) {
				t.Fatalf("got %d results, want %d", len(results), len(objects))
			}

			for i, obj := range objects {
				if results[i].Object != obj.Name() {
					t.Errorf("result %d is for %q, want %q", i, results[i].Object, obj.Name())
				}
			}
			for _, i := range []int{0, 2, 4} {
				if results[i].Err != nil {
					t.Errorf("%s: unexpected error %v", results[i].Object, results[i].Err)
				}
				if _, err := os.Stat(results[i].Path); err != nil {
					t.Errorf("%s: %v", results[i].Object, err)
				}
			}
			if !errors.Is(results[1].Err, ErrGeometryQuery) {
				t.Errorf("B: %v", results[1].Err)
			}
			if !errors.Is(results[3].Err, mesh.ErrMissingUVChannel) {
				t.Errorf("D: %v", results[3].Err)
			}

			if notified.Load() != int32(len(objects)) {
				t.Errorf("notified %d times, want %d", notified.Load(), len(objects))
			}

			summary := logs.FilterMessage("wrote all meshes").All()
			if len(summary) != 1 {
				t.Fatalf("got %d summary entries", len(summary))
			}
			fields := summary[0].ContextMap()
			if fields["written"] != int64(3) || fields["failed"] != int64(2) {
				t.Errorf("summary fields = %v", fields)
			}
		})
	}
}

func TestExportAll_StopOnError(t *testing.T) {
	exp := New(Config{Root: t.TempDir(), Workers: 1, StopOnError: true}, nil)

	after := quadObject("After")
	objects := []Object{
		quadObject("Before"),
		failingObject("Broken", errors.New("boom")),
		after,
	}

	results, err := exp.ExportAll(context.Background(), objects)
	if !errors.Is(err, ErrGeometryQuery) {
		t.Fatalf("expected ErrGeometryQuery, got %v", err)
	}
	if results[0].Err != nil {
		t.Errorf("Before: %v", results[0].Err)
	}
	if !errors.Is(results[2].Err, context.Canceled) {
		t.Errorf("After: expected context.Canceled, got %v", results[2].Err)
	}
	if after.calls.Load() != 0 {
		t.Error("objects after the failure should not be queried")
	}
}

func TestExportAll_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	obj := quadObject("Quad")
	results, err := New(Config{Root: t.TempDir(), Workers: 2}, nil).ExportAll(ctx, []Object{obj})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if results[0].Object != "Quad" || obj.calls.Load() != 0 {
		t.Errorf("cancelled export should not query geometry: %+v", results[0])
	}
}
