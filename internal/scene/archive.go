package scene

import (
	"fmt"
	"path"

	"github.com/Faultbox/mos-export/pkg/formats"
	"github.com/Faultbox/mos-export/pkg/grf"
)

// LoadArchive loads the RSM models of a GRF archive whose paths match
// pattern, for example "data/model/prontera/*.rsm".
func LoadArchive(archivePath, pattern string, opts Options) ([]*Object, error) {
	a, err := grf.Open(archivePath)
	if err != nil {
		return nil, err
	}
	defer a.Close()

	return ArchiveObjects(a, pattern, opts)
}

// ArchiveObjects returns the objects of every matching RSM model. Each model
// is its own library unless Options.Library is set. Model data is parsed
// up front so the archive can be closed afterwards.
func ArchiveObjects(a *grf.Archive, pattern string, opts Options) ([]*Object, error) {
	names, err := a.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("pattern %q: %w", pattern, err)
	}

	var objects []*Object
	for _, name := range names {
		if path.Ext(name) != ".rsm" {
			continue
		}

		data, err := a.Read(name)
		if err != nil {
			return nil, err
		}
		rsm, err := formats.ParseRSM(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}

		library := opts.Library
		if library == "" {
			library = LibraryName(name)
		}
		objects = append(objects, RSMObjects(rsm, library, opts)...)
	}
	return objects, nil
}
