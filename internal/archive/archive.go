// Package archive writes a planned batch of input files to a zip archive
// plus its optional sidecars, and reports back the metadata the resource
// dump needs.
package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/clariah/quadsync/internal/catalog"
	"github.com/clariah/quadsync/internal/pathutil"
	"github.com/clariah/quadsync/internal/planner"
	"github.com/clariah/quadsync/internal/rsxml"
	"github.com/clariah/quadsync/internal/syncerr"
)

// Prefix selects the archive's filename family.
type Prefix string

const (
	PrefixSealed   Prefix = "part_def_"
	PrefixOpenTail Prefix = "part_end_"
	prefixManifest string = "manifest_"
)

// Record is everything the Resource Dump needs to know about one archive.
type Record struct {
	ZipName         string // e.g. part_def_00001.zip
	PublicURI       string
	LastModified    string
	MD5             string
	Length          int64
	MimeType        string
	ContentLinkHref string // manifest_ sidecar public URL, if emitted
}

// Writer produces archives. The engine depends on this interface, not on
// the concrete zip implementation, so a different ArchiveWriter can be
// selected by the --builder_class CLI flag (see SPEC_FULL.md §9 / spec.md
// Design Notes) without changing SyncEngine.
type Writer interface {
	Write(batch *planner.Batch, targetDir, publicPrefix string, prefix Prefix, emitSidecarResourceList, emitSidecarManifest bool) (*Record, error)
}

// ZipWriter is the engine's single built-in ArchiveWriter implementation.
type ZipWriter struct{}

// NewZipWriter returns the built-in zip-based ArchiveWriter.
func NewZipWriter() *ZipWriter {
	return &ZipWriter{}
}

// Write zips batch's member files (stored by basename, no directories) into
// targetDir, along with an internal manifest.xml. The zip's index is the
// current maximum existing index for prefix, plus one; the first
// allocation is 00000.
func (w *ZipWriter) Write(batch *planner.Batch, targetDir, publicPrefix string, prefix Prefix, emitSidecarResourceList, emitSidecarManifest bool) (*Record, error) {
	index, err := nextIndex(targetDir, string(prefix))
	if err != nil {
		return nil, err
	}

	base := fmt.Sprintf("%s%05d", prefix, index)
	zipName := base + ".zip"
	zipPath := filepath.Join(targetDir, zipName)

	manifestEntries, err := w.writeZip(batch, zipPath)
	if err != nil {
		return nil, err
	}

	if emitSidecarResourceList {
		localEntries := make([]rsxml.ManifestEntry, len(manifestEntries))
		for i, f := range batch.Files {
			size, _ := f.Size()
			md5sum, _ := f.MD5()
			localEntries[i] = rsxml.ManifestEntry{Loc: f.Path, LastMod: f.Timestamp, MD5: md5sum, Length: size}
		}
		if err := rsxml.WriteFile(filepath.Join(targetDir, base+".xml"), rsxml.NewResourceList(localEntries)); err != nil {
			return nil, err
		}
	}

	record := &Record{
		ZipName:      zipName,
		PublicURI:    publicPrefix + zipName,
		LastModified: lastModified(batch),
		MimeType:     "application/zip",
	}

	info, err := os.Stat(zipPath)
	if err != nil {
		return nil, syncerr.New(syncerr.IOError, "stat "+zipPath, err)
	}
	record.Length = info.Size()

	md5sum, err := pathutil.FileHash(zipPath)
	if err != nil {
		return nil, err
	}
	record.MD5 = md5sum

	if emitSidecarManifest {
		manifestName := prefixManifest + base + ".xml"
		manifestPath := filepath.Join(targetDir, manifestName)
		if err := rsxml.WriteFile(manifestPath, rsxml.NewResourceDumpManifest(manifestEntries)); err != nil {
			return nil, err
		}
		record.ContentLinkHref = publicPrefix + manifestName
	}

	return record, nil
}

// writeZip stores batch.Files by basename (preserving batch order) plus an
// internal manifest.xml enumerating members with size/md5/lastmod, and
// returns those manifest entries (using public-facing basenames as Loc)
// for reuse by the sidecar manifest.
func (w *ZipWriter) writeZip(batch *planner.Batch, zipPath string) ([]rsxml.ManifestEntry, error) {
	if err := pathutil.EnsureDir(filepath.Dir(zipPath)); err != nil {
		return nil, err
	}

	out, err := os.Create(zipPath)
	if err != nil {
		return nil, syncerr.New(syncerr.IOError, "create "+zipPath, err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)

	entries := make([]rsxml.ManifestEntry, 0, len(batch.Files))
	for _, f := range batch.Files {
		size, err := f.Size()
		if err != nil {
			return nil, err
		}
		md5sum, err := f.MD5()
		if err != nil {
			return nil, err
		}
		entries = append(entries, rsxml.ManifestEntry{Loc: f.Name, LastMod: f.Timestamp, MD5: md5sum, Length: size})

		if err := copyIntoZip(zw, f); err != nil {
			return nil, err
		}
	}

	manifestBytes, err := rsxml.Marshal(rsxml.NewResourceDumpManifest(entries))
	if err != nil {
		return nil, err
	}
	manifestW, err := zw.Create("manifest.xml")
	if err != nil {
		return nil, syncerr.New(syncerr.IOError, "zip entry manifest.xml", err)
	}
	if _, err := manifestW.Write(manifestBytes); err != nil {
		return nil, syncerr.New(syncerr.IOError, "write zip entry manifest.xml", err)
	}

	if err := zw.Close(); err != nil {
		return nil, syncerr.New(syncerr.IOError, "close zip "+zipPath, err)
	}
	return entries, nil
}

func copyIntoZip(zw *zip.Writer, f *catalog.InputFile) error {
	in, err := os.Open(f.Path)
	if err != nil {
		return syncerr.New(syncerr.IOError, "open "+f.Path, err)
	}
	defer in.Close() // scoped acquisition: released even if the copy below fails

	w, err := zw.Create(f.Name)
	if err != nil {
		return syncerr.New(syncerr.IOError, "zip entry "+f.Name, err)
	}
	if _, err := io.Copy(w, in); err != nil {
		return syncerr.New(syncerr.IOError, "write zip entry "+f.Name, err)
	}
	return nil
}

// nextIndex scans targetDir for "<prefix>*.zip" and returns the maximum
// existing numeric suffix plus one; 0 if none exist.
func nextIndex(targetDir, prefix string) (int, error) {
	matches, err := filepath.Glob(filepath.Join(targetDir, prefix+"*.zip"))
	if err != nil {
		return 0, syncerr.New(syncerr.IOError, "glob "+targetDir, err)
	}
	sort.Strings(matches)

	max := -1
	for _, m := range matches {
		name := filepath.Base(m)
		trimmed := name[len(prefix) : len(name)-len(".zip")]
		var n int
		if _, err := fmt.Sscanf(trimmed, "%05d", &n); err == nil && n > max {
			max = n
		}
	}
	return max + 1, nil
}

// lastModified returns the max timestamp among batch's files, or "" for an
// empty batch.
func lastModified(batch *planner.Batch) string {
	var max string
	for _, f := range batch.Files {
		if f.Timestamp > max {
			max = f.Timestamp
		}
	}
	return max
}
