// Package published discovers the current published state of a sink
// directory: its sealed archives and at most one open-tail archive, plus
// the open-tail's sidecar resourcelist (the set of local source paths it
// was built from).
package published

import (
	"path/filepath"
	"sort"

	"github.com/clariah/quadsync/internal/archive"
	"github.com/clariah/quadsync/internal/rsxml"
	"github.com/clariah/quadsync/internal/syncerr"
)

// Sealed is one already-published, immutable archive.
type Sealed struct {
	ZipPath string
	ZipName string
}

// OpenTail is the at-most-one rewritable archive for a graph.
type OpenTail struct {
	ZipPath      string
	ZipName      string
	SidecarPath  string // <base>.xml next to the zip
	ManifestPath string // manifest_<base>.xml, if present
	URISet       map[string]struct{}
}

// State is a sink directory's discovered published state.
type State struct {
	Sealed   []Sealed
	OpenTail *OpenTail // nil if none
}

// Inspect globs sinkDir for part_def_*.zip and part_end_*.zip. More than
// one part_end_*.zip is an inconsistent sink and is fatal.
func Inspect(sinkDir string) (*State, error) {
	sealedMatches, err := filepath.Glob(filepath.Join(sinkDir, string(archive.PrefixSealed)+"*.zip"))
	if err != nil {
		return nil, syncerr.New(syncerr.IOError, "glob sealed archives", err)
	}
	sort.Strings(sealedMatches)

	sealed := make([]Sealed, 0, len(sealedMatches))
	for _, m := range sealedMatches {
		sealed = append(sealed, Sealed{ZipPath: m, ZipName: filepath.Base(m)})
	}

	tailMatches, err := filepath.Glob(filepath.Join(sinkDir, string(archive.PrefixOpenTail)+"*.zip"))
	if err != nil {
		return nil, syncerr.New(syncerr.IOError, "glob open-tail archive", err)
	}
	if len(tailMatches) > 1 {
		return nil, syncerr.New(syncerr.InconsistentSink,
			"found more than one part_end_*.zip in "+sinkDir, nil)
	}

	state := &State{Sealed: sealed}
	if len(tailMatches) == 1 {
		tail, err := loadOpenTail(sinkDir, tailMatches[0])
		if err != nil {
			return nil, err
		}
		state.OpenTail = tail
	}

	return state, nil
}

func loadOpenTail(sinkDir, zipPath string) (*OpenTail, error) {
	zipName := filepath.Base(zipPath)
	base := zipName[:len(zipName)-len(".zip")]
	sidecarPath := filepath.Join(sinkDir, base+".xml")
	manifestPath := filepath.Join(sinkDir, "manifest_"+base+".xml")

	doc, err := rsxml.ReadFile(sidecarPath)
	if err != nil {
		return nil, err
	}

	tail := &OpenTail{
		ZipPath:      zipPath,
		ZipName:      zipName,
		SidecarPath:  sidecarPath,
		ManifestPath: manifestPath,
		URISet:       rsxml.ParseResourceList(doc),
	}
	return tail, nil
}
