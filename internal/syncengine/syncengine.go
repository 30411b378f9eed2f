// Package syncengine implements the per-graph state machine: diff planned
// batches against published state, seal full batches, rewrite the open
// tail, update the Resource Dump, and sweep the open-tail chain clean on
// error.
package syncengine

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/clariah/quadsync/internal/archive"
	"github.com/clariah/quadsync/internal/catalog"
	"github.com/clariah/quadsync/internal/metadatagraph"
	"github.com/clariah/quadsync/internal/pathutil"
	"github.com/clariah/quadsync/internal/planner"
	"github.com/clariah/quadsync/internal/published"
	"github.com/clariah/quadsync/internal/syncerr"
)

// Engine coordinates one graph. It depends on the ArchiveWriter interface,
// not a concrete implementation, so --builder_class can select a different
// one without touching this package.
type Engine struct {
	Writer                archive.Writer
	Catalog               *catalog.Catalog
	MaxBatchSize          int
	MoveResources         bool
	WriteSeparateManifest bool
}

// New returns an Engine wired to the built-in zip ArchiveWriter.
func New(maxBatchSize int, moveResources, writeSeparateManifest bool) *Engine {
	return &Engine{
		Writer:                archive.NewZipWriter(),
		Catalog:               catalog.New(),
		MaxBatchSize:          maxBatchSize,
		MoveResources:         moveResources,
		WriteSeparateManifest: writeSeparateManifest,
	}
}

// Result reports what a Synchronize call did.
type Result struct {
	StateChanged  bool
	SealedCount   int
	OpenTailDelta int
}

// Synchronize runs one graph's full cycle. The handshake check (spec.md
// §4.5 step 2) is performed once, at the orchestrator's root level (see
// DESIGN.md); by the time Synchronize is called the caller already holds a
// verified handshake token, so this entry point starts at step 1.
func (e *Engine) Synchronize(sourceDir string, graph metadatagraph.Graph, sourceDescriptionURL, now string) (Result, error) {
	if err := pathutil.EnsureDir(sourceDir); err != nil {
		return Result{}, syncerr.New(syncerr.IOError, "create source dir", err)
	}
	if err := pathutil.EnsureDir(graph.SinkDir); err != nil {
		return Result{}, syncerr.New(syncerr.IOError, "create sink dir", err)
	}

	result, err := e.synchronizeBody(sourceDir, graph, sourceDescriptionURL, now)
	if err != nil {
		if recErr := e.recoverOpenTail(graph); recErr != nil {
			slog.Error("error recovery itself failed", "graph", graph.SinkDir, "error", recErr)
		}
		return Result{}, err
	}
	return result, nil
}

func (e *Engine) synchronizeBody(sourceDir string, graph metadatagraph.Graph, sourceDescriptionURL, now string) (Result, error) {
	state, err := published.Inspect(graph.SinkDir)
	if err != nil {
		return Result{}, err
	}

	files, err := e.Catalog.Enumerate(sourceDir)
	if err != nil {
		return Result{}, err
	}

	sealedBatches, openTailBatch, err := planner.Plan(files, e.MaxBatchSize)
	if err != nil {
		return Result{}, err
	}

	var newArchives []*archive.Record
	var result Result

	for _, batch := range sealedBatches {
		rec, err := e.Writer.Write(batch, graph.SinkDir, graph.PublicURL, archive.PrefixSealed, false, e.WriteSeparateManifest)
		if err != nil {
			return Result{}, err
		}
		newArchives = append(newArchives, rec)
		result.StateChanged = true
		result.SealedCount += len(batch.Files)

		for _, f := range batch.Files {
			if err := pathutil.MoveOrRemove(f.Path, graph.SinkDir, e.MoveResources); err != nil {
				return Result{}, syncerr.New(syncerr.IOError, "retire "+f.Path, err)
			}
		}
	}

	oldURISet := map[string]struct{}{}
	oldCount := 0
	supersededURI := ""
	if state.OpenTail != nil {
		oldURISet = state.OpenTail.URISet
		oldCount = len(oldURISet)
	}
	newURISet := openTailBatch.URISet()

	if !sameURISet(oldURISet, newURISet) {
		result.StateChanged = true
		if state.OpenTail != nil {
			supersededURI = graph.PublicURL + state.OpenTail.ZipName
		}

		newCount := len(openTailBatch.Files)
		if newCount > 0 {
			rec, err := e.Writer.Write(openTailBatch, graph.SinkDir, graph.PublicURL, archive.PrefixOpenTail, true, e.WriteSeparateManifest)
			if err != nil {
				return Result{}, err
			}
			newArchives = append(newArchives, rec)
		}
		result.OpenTailDelta = newCount - oldCount
	}

	if result.StateChanged {
		if err := metadatagraph.Update(graph, sourceDescriptionURL, newArchives, supersededURI, now); err != nil {
			return Result{}, err
		}
	}

	if supersededURI != "" {
		if err := retireOpenTail(state.OpenTail); err != nil {
			return Result{}, err
		}
	}

	return result, nil
}

func retireOpenTail(tail *published.OpenTail) error {
	if err := pathutil.RemoveIfExists(tail.ZipPath); err != nil {
		return syncerr.New(syncerr.IOError, "remove "+tail.ZipPath, err)
	}
	if err := pathutil.RemoveIfExists(tail.SidecarPath); err != nil {
		return syncerr.New(syncerr.IOError, "remove "+tail.SidecarPath, err)
	}
	if err := pathutil.RemoveIfExists(tail.ManifestPath); err != nil {
		return syncerr.New(syncerr.IOError, "remove "+tail.ManifestPath, err)
	}
	return nil
}

// recoverOpenTail implements spec.md §4.5 step 8: local-to-the-open-tail
// crash recovery. Sealed archives and other graphs are never touched.
func (e *Engine) recoverOpenTail(graph metadatagraph.Graph) error {
	patterns := []string{
		string(archive.PrefixOpenTail) + "*.zip",
		string(archive.PrefixOpenTail) + "*.xml",
		"manifest_" + string(archive.PrefixOpenTail) + "*.xml",
	}

	for _, pattern := range patterns {
		matches, err := filepath.Glob(filepath.Join(graph.SinkDir, pattern))
		if err != nil {
			return syncerr.New(syncerr.IOError, "glob "+pattern, err)
		}
		for _, m := range matches {
			if err := pathutil.RemoveIfExists(m); err != nil {
				return syncerr.New(syncerr.IOError, "remove "+m, err)
			}
			slog.Info(fmt.Sprintf("error recovery: removed %s", m))
		}
	}

	if err := metadatagraph.RemoveByURIPrefix(graph, graph.PublicURL+string(archive.PrefixOpenTail)); err != nil {
		return err
	}

	slog.Info("error recovery: walk through error recovery completed. Now raising ...")
	return nil
}

func sameURISet(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
