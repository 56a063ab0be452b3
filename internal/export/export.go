// Package export runs the per-object mesh export pipeline: geometry query,
// flattening, encoding and writing one engine mesh file per object.
package export

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/Faultbox/mos-export/pkg/formats"
	"github.com/Faultbox/mos-export/pkg/mesh"
)

// Export errors. Both are reported inside an *ObjectError.
var (
	ErrGeometryQuery = errors.New("geometry query failed")
	ErrIO            = errors.New("mesh write failed")
)

// ObjectError attaches the failing object's name to an export error.
type ObjectError struct {
	Object string
	Err    error
}

func (e *ObjectError) Error() string {
	return fmt.Sprintf("object %s: %v", e.Object, e.Err)
}

func (e *ObjectError) Unwrap() error {
	return e.Err
}

// Object is an exportable scene object.
type Object interface {
	Name() string
	// Geometry returns the mesh with all modifiers applied.
	Geometry() (*mesh.SourceMesh, error)
	// Path is the destination relative to the export root, slash separated.
	Path() string
}

// Result describes the outcome of exporting one object.
type Result struct {
	Object   string
	Path     string
	Vertices int
	Indices  int
	Err      error
}

// Config controls an Exporter.
type Config struct {
	Root        string // Directory mesh paths are resolved against
	Workers     int    // Objects exported in parallel; <= 1 exports sequentially
	StopOnError bool   // Stop dispatching objects after the first failure
}

// Exporter writes engine mesh files for scene objects.
type Exporter struct {
	cfg    Config
	log    *zap.Logger
	notify func(Result)
	mu     sync.Mutex
}

// New creates an exporter. A nil logger disables logging.
func New(cfg Config, log *zap.Logger) *Exporter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Exporter{cfg: cfg, log: log}
}

// OnResult registers a callback invoked once per exported or failed object.
// Calls are serialized.
func (e *Exporter) OnResult(fn func(Result)) {
	e.notify = fn
}

// ExportObject flattens one object and writes it to Root/Path. Nothing is
// written when the geometry query or flattening fails.
func (e *Exporter) ExportObject(obj Object) (Result, error) {
	res, err := e.exportObject(obj)
	res.Err = err

	if err != nil {
		e.log.Error("export failed", zap.String("object", res.Object), zap.Error(err))
	} else {
		e.log.Info("wrote mesh",
			zap.String("path", res.Path),
			zap.Int("vertices", res.Vertices),
			zap.Int("indices", res.Indices),
		)
	}
	e.report(res)
	return res, err
}

func (e *Exporter) exportObject(obj Object) (Result, error) {
	name := obj.Name()
	rel := filepath.FromSlash(obj.Path())
	res := Result{Object: name, Path: filepath.Join(e.cfg.Root, rel)}
	if !filepath.IsLocal(rel) {
		return res, &ObjectError{Object: name, Err: fmt.Errorf("%w: path %q is outside the export root", ErrIO, obj.Path())}
	}

	src, err := obj.Geometry()
	if err != nil {
		return res, &ObjectError{Object: name, Err: fmt.Errorf("%w: %w", ErrGeometryQuery, err)}
	}
	if src == nil {
		return res, &ObjectError{Object: name, Err: fmt.Errorf("%w: no mesh", ErrGeometryQuery)}
	}

	buffers, err := mesh.Flatten(src)
	if err != nil {
		return res, &ObjectError{Object: name, Err: err}
	}

	file := buffers.MeshFile()
	if err := formats.WriteMeshFile(res.Path, file); err != nil {
		return res, &ObjectError{Object: name, Err: fmt.Errorf("%w: %w", ErrIO, err)}
	}

	res.Vertices = file.VertexCount()
	res.Indices = file.IndexCount()
	return res, nil
}

func (e *Exporter) report(res Result) {
	if e.notify == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.notify(res)
}

// ExportAll exports every object and returns one result per object in input
// order. Every object gets its own flatten state and file, so objects can be
// exported in parallel. The returned error joins all object errors.
//
// Objects not started because ctx was cancelled, or because StopOnError
// tripped, carry the context error in their result. Objects sharing a
// destination are logged as a warning; the file keeps whichever was
// written last.
func (e *Exporter) ExportAll(ctx context.Context, objects []Object) ([]Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	owners := make(map[string]string, len(objects))
	for _, obj := range objects {
		path := obj.Path()
		if prev, ok := owners[path]; ok {
			e.log.Warn("duplicate mesh path", zap.String("path", path), zap.String("object", obj.Name()), zap.String("overwrites", prev))
			continue
		}
		owners[path] = obj.Name()
	}

	results := make([]Result, len(objects))
	workers := max(e.cfg.Workers, 1)

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				if ctx.Err() != nil {
					results[idx] = Result{Object: objects[idx].Name(), Err: context.Cause(ctx)}
					continue
				}
				res, err := e.ExportObject(objects[idx])
				results[idx] = res
				if err != nil && e.cfg.StopOnError {
					cancel()
				}
			}
		}()
	}

	next := 0
dispatch:
	for ; next < len(objects); next++ {
		select {
		case <-ctx.Done():
			break dispatch
		case jobs <- next:
		}
	}
	close(jobs)
	wg.Wait()

	for i := next; i < len(objects); i++ {
		results[i] = Result{Object: objects[i].Name(), Err: context.Cause(ctx)}
	}

	var errs []error
	written := 0
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, r.Err)
		} else {
			written++
		}
	}
	e.log.Info("wrote all meshes", zap.Int("written", written), zap.Int("failed", len(errs)))

	return results, errors.Join(errs...)
}
