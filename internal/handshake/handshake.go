// Package handshake detects whether an upstream producer has restarted
// from scratch by comparing a token file between the source and sink
// directories, wiping the sink's owned artifacts on mismatch.
package handshake

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/clariah/quadsync/internal/pathutil"
	"github.com/clariah/quadsync/internal/syncerr"
)

// FileName is the handshake token file, present at both the source and
// sink roots.
const FileName = "started_at.txt"

// ownedPrefixes lists the filename prefixes the engine considers its own;
// any immediate subdirectory of the sink is also owned (multi-graph case).
var ownedPrefixes = []string{
	FileName,
	"vql_graph_folder.csv",
	"vql_files_count.txt",
	"rdfpatch-",
	"resource-dump.xml",
	"capability-list.xml",
	"manifest_",
	"part_def_",
	"part_end_",
}

// Verify implements the decision table in spec.md §4.6. It returns the
// source's handshake token, or ("", false) when the run should abort
// quietly (missing source token) or has already errored (conflicting,
// non-empty sink).
func Verify(sourceDir, sinkDir string) (string, bool, error) {
	sourceToken, sourceHas, err := readToken(sourceDir)
	if err != nil {
		return "", false, err
	}
	if !sourceHas {
		return "", false, nil // warn; caller logs and does nothing
	}

	sinkToken, sinkHas, err := readToken(sinkDir)
	if err != nil {
		return "", false, err
	}

	if !sinkHas {
		if ownedFileCount(sinkDir) > 0 {
			return "", false, syncerr.New(syncerr.HandshakeConflictNonEmpty,
				"source handshake present but sink has no token and is not empty: "+sinkDir, nil)
		}
		if err := writeToken(sinkDir, sourceToken); err != nil {
			return "", false, err
		}
		return sourceToken, true, nil
	}

	if sinkToken != sourceToken {
		if err := wipeOwnedFiles(sinkDir); err != nil {
			return "", false, err
		}
		if err := writeToken(sinkDir, sourceToken); err != nil {
			return "", false, err
		}
	}

	return sourceToken, true, nil
}

func readToken(dir string) (string, bool, error) {
	path := filepath.Join(dir, FileName)
	if !pathutil.FileExists(path) {
		return "", false, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false, syncerr.New(syncerr.IOError, "read "+path, err)
	}
	return string(data), true, nil
}

func writeToken(dir, token string) error {
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte(token), 0o644); err != nil {
		return syncerr.New(syncerr.IOError, "write "+path, err)
	}
	return nil
}

func ownedFileCount(sinkDir string) int {
	entries, err := os.ReadDir(sinkDir)
	if err != nil {
		return 0
	}
	n := 0
	for _, e := range entries {
		if isOwned(e.Name(), e.IsDir()) {
			n++
		}
	}
	return n
}

// wipeOwnedFiles removes every file or subdirectory the engine owns,
// leaving anything else (an operator's own notes, for instance) untouched.
func wipeOwnedFiles(sinkDir string) error {
	entries, err := os.ReadDir(sinkDir)
	if err != nil {
		return syncerr.New(syncerr.IOError, "read dir "+sinkDir, err)
	}
	for _, e := range entries {
		if !isOwned(e.Name(), e.IsDir()) {
			continue
		}
		path := filepath.Join(sinkDir, e.Name())
		if err := os.RemoveAll(path); err != nil {
			return syncerr.New(syncerr.IOError, "remove "+path, err)
		}
	}
	return nil
}

func isOwned(name string, isDir bool) bool {
	if isDir {
		return true // any immediate subdirectory of the sink is owned (multi-graph case)
	}
	for _, p := range ownedPrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}
