// mosexport converts source models into engine mesh files.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/Faultbox/mos-export/internal/config"
	"github.com/Faultbox/mos-export/internal/export"
	"github.com/Faultbox/mos-export/internal/logger"
	"github.com/Faultbox/mos-export/internal/scene"
	"github.com/Faultbox/mos-export/pkg/formats"
	"github.com/Faultbox/mos-export/pkg/preview"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "export", "x":
		cmdExport(args)
	case "inspect", "info":
		cmdInspect(args)
	case "verify":
		cmdVerify(args)
	case "preview", "p":
		cmdPreview(args)
	case "config":
		cmdConfig(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`mosexport - engine mesh exporter

Usage:
  mosexport <command> [options]

Commands:
  export [flags] <model>...   Export every mesh object of .obj, .gltf, .glb or .rsm models
  inspect <file.mesh>...      Show header, size and bounds of mesh files
  verify <file.mesh>...       Decode and validate mesh files
  preview [flags] <file.mesh> <out.webp>
                              Render a shaded WebP thumbnail of a mesh file
  config [flags]              Print the effective configuration

Export flags:
  -config <path>       Config file (default ./config.yaml, then the user config dir)
  -out <dir>           Output directory
  -library <name>      Library name (default: model file name)
  -workers <n>         Objects exported in parallel
  -apply-transforms    Bake node transforms into geometry
  -flat-gltf           Export glTF faces flat
  -stop-on-error       Stop after the first failed object
  -grf <file.grf>      Read RSM models from a GRF archive; arguments are path patterns
  -dry-run             List objects and destination paths without writing
  -debug               Enable debug logging

Preview flags:
  -size <px>           Image width and height (default 256)
  -yaw <deg>           Camera rotation about the vertical axis
  -pitch <deg>         Camera rotation about the horizontal axis

Examples:
  mosexport export -out assets models/prontera.rsm
  mosexport export -apply-transforms -workers 8 scene.glb
  mosexport export -grf data.grf "data/model/prontera/*.rsm"
  mosexport inspect assets/prontera/meshes/base.mesh
  mosexport preview -size 512 assets/prontera/meshes/base.mesh base.webp`)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

func loadConfig(fs *flag.FlagSet, args []string) *config.Config {
	flags := config.RegisterFlags(fs)
	fs.Parse(args)

	cfg, err := config.Load(flags)
	if err != nil {
		fatalf("%v", err)
	}
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fatalf("%v", err)
	}
	return cfg
}

func cmdExport(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	dryRun := fs.Bool("dry-run", false, "List objects without writing")
	archive := fs.String("grf", "", "Read RSM models from this GRF archive; arguments are path patterns")
	cfg := loadConfig(fs, args)
	defer logger.Sync()

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: mosexport export [flags] <model>...")
		fmt.Fprintln(os.Stderr, "       mosexport export [flags] -grf <file.grf> <pattern>...")
		os.Exit(1)
	}

	opts := scene.Options{
		Library:         cfg.Export.Library,
		ApplyTransforms: cfg.Export.ApplyTransforms,
		SmoothGLTF:      cfg.Export.SmoothGLTF,
	}

	var objects []export.Object
	for _, path := range fs.Args() {
		var loaded []*scene.Object
		var err error
		if *archive != "" {
			loaded, err = scene.LoadArchive(*archive, path, opts)
		} else {
			loaded, err = scene.Load(path, opts)
		}
		if err != nil {
			fatalf("%s: %v", path, err)
		}
		logger.Sugar.Debugf("loaded %d objects from %s", len(loaded), path)
		for _, obj := range loaded {
			objects = append(objects, obj)
		}
	}

	if *dryRun {
		for _, obj := range objects {
			fmt.Printf("%-32s %s\n", obj.Name(), obj.Path())
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	exp := export.New(export.Config{
		Root:        cfg.Export.OutputDir,
		Workers:     cfg.Export.Workers,
		StopOnError: cfg.Export.StopOnError,
	}, logger.Named("export"))

	results, err := exp.ExportAll(ctx, objects)

	written := 0
	for _, r := range results {
		if r.Err == nil {
			written++
		}
	}
	fmt.Printf("Exported %d of %d objects to %s\n", written, len(results), cfg.Export.OutputDir)

	if err != nil {
		logger.Sync()
		os.Exit(1)
	}
}

func cmdInspect(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: mosexport inspect <file.mesh>...")
		os.Exit(1)
	}

	for _, path := range args {
		m, err := formats.ParseMeshFile(path)
		if err != nil {
			fatalf("%s: %v", path, err)
		}
		lo, hi := m.Bounds()

		fmt.Printf("File:      %s\n", path)
		fmt.Printf("Vertices:  %d\n", m.VertexCount())
		fmt.Printf("Indices:   %d (%d triangles)\n", m.IndexCount(), m.IndexCount()/3)
		fmt.Printf("Size:      %d bytes\n", m.Size())
		fmt.Printf("Bounds:    (%g, %g, %g) - (%g, %g, %g)\n", lo[0], lo[1], lo[2], hi[0], hi[1], hi[2])
		fmt.Println()
	}
}

func cmdVerify(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: mosexport verify <file.mesh>...")
		os.Exit(1)
	}

	failed := 0
	for _, path := range args {
		if err := verifyFile(path); err != nil {
			fmt.Printf("FAIL  %s: %v\n", path, err)
			failed++
			continue
		}
		fmt.Printf("OK    %s\n", path)
	}

	if failed > 0 {
		os.Exit(1)
	}
}

func verifyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	m, err := formats.ParseMesh(data)
	if err != nil {
		return err
	}
	if err := m.Validate(); err != nil {
		return err
	}
	if int64(len(data)) != m.Size() {
		return fmt.Errorf("file is %d bytes, header describes %d", len(data), m.Size())
	}
	return nil
}

func cmdPreview(args []string) {
	defaults := preview.DefaultOptions()
	fs := flag.NewFlagSet("preview", flag.ExitOnError)
	size := fs.Int("size", defaults.Size, "Image width and height in pixels")
	yaw := fs.Float64("yaw", float64(defaults.Yaw), "Camera yaw in degrees")
	pitch := fs.Float64("pitch", float64(defaults.Pitch), "Camera pitch in degrees")
	fs.Parse(args)

	if fs.NArg() != 2 {
		fmt.Fprintln(os.Stderr, "Usage: mosexport preview [flags] <file.mesh> <out.webp>")
		os.Exit(1)
	}
	src, dst := fs.Arg(0), fs.Arg(1)

	m, err := formats.ParseMeshFile(src)
	if err != nil {
		fatalf("%s: %v", src, err)
	}

	opts := defaults
	opts.Size = *size
	opts.Yaw = float32(*yaw)
	opts.Pitch = float32(*pitch)
	if err := preview.WriteFile(dst, m, opts); err != nil {
		fatalf("%s: %v", dst, err)
	}
	fmt.Printf("Wrote %s (%dx%d, %d triangles)\n", dst, opts.Size, opts.Size, m.IndexCount()/3)
}

func cmdConfig(args []string) {
	fs := flag.NewFlagSet("config", flag.ExitOnError)
	save := fs.Bool("save", false, "Write the effective config to the user config directory")
	output := fs.String("o", "", "Write the effective config to this file")
	cfg := loadConfig(fs, args)

	switch {
	case *output != "":
		if err := cfg.SaveTo(*output); err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("Saved config to %s\n", *output)
	case *save:
		if err := cfg.Save(); err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("Saved config to %s\n", config.ConfigDir())
	default:
		data, err := cfg.Marshal()
		if err != nil {
			fatalf("%v", err)
		}
		os.Stdout.Write(data)
	}
}
