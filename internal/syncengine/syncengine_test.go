package syncengine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clariah/quadsync/internal/metadatagraph"
	"github.com/clariah/quadsync/internal/published"
)

func writePatch(t *testing.T, dir, name string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("body"), 0o644))
}

func newGraph(sinkDir string) metadatagraph.Graph {
	return metadatagraph.Graph{SinkDir: sinkDir, PublicURL: "https://example.org/graph/"}
}

func TestSynchronizeSealsFullBatchAndKeepsOpenTail(t *testing.T) {
	sourceDir := t.TempDir()
	sinkDir := t.TempDir()
	graph := newGraph(sinkDir)

	writePatch(t, sourceDir, "rdfpatch-20200101000000")
	writePatch(t, sourceDir, "rdfpatch-20200102000000")
	writePatch(t, sourceDir, "rdfpatch-20200103000000")
	writePatch(t, sourceDir, "rdfpatch-20200104000000")

	e := New(2, false, true)
	result, err := e.Synchronize(sourceDir, graph, "https://example.org/.well-known/resourcesync", "2020-01-01T00:00:00Z")
	require.NoError(t, err)

	assert.True(t, result.StateChanged)
	assert.Equal(t, 2, result.SealedCount)
	assert.Equal(t, 1, result.OpenTailDelta)

	_, err = os.Stat(filepath.Join(sinkDir, "part_def_00000.zip"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(sinkDir, "part_end_00000.zip"))
	assert.NoError(t, err)

	// Sealed source files are removed (moveResources=false).
	_, err = os.Stat(filepath.Join(sourceDir, "rdfpatch-20200101000000"))
	assert.True(t, os.IsNotExist(err))
	// The held-back file remains untouched in source.
	_, err = os.Stat(filepath.Join(sourceDir, "rdfpatch-20200104000000"))
	assert.NoError(t, err)
}

func TestSynchronizeIsIdempotentWhenNothingChanges(t *testing.T) {
	sourceDir := t.TempDir()
	sinkDir := t.TempDir()
	graph := newGraph(sinkDir)
	writePatch(t, sourceDir, "rdfpatch-20200101000000")
	writePatch(t, sourceDir, "rdfpatch-20200102000000") // held back, keeps the tail non-empty

	e := New(2, false, true)
	first, err := e.Synchronize(sourceDir, graph, "https://example.org/.well-known/resourcesync", "2020-01-01T00:00:00Z")
	require.NoError(t, err)
	assert.True(t, first.StateChanged)

	result, err := e.Synchronize(sourceDir, graph, "https://example.org/.well-known/resourcesync", "2020-01-01T00:00:01Z")
	require.NoError(t, err)
	assert.False(t, result.StateChanged)
	assert.Equal(t, 0, result.SealedCount)
	assert.Equal(t, 0, result.OpenTailDelta)
}

func TestSynchronizeReplacesOpenTailWhenNewFileArrives(t *testing.T) {
	sourceDir := t.TempDir()
	sinkDir := t.TempDir()
	graph := newGraph(sinkDir)
	// Two files: the first becomes the open tail, the second is held back.
	writePatch(t, sourceDir, "rdfpatch-20200101000000")
	writePatch(t, sourceDir, "rdfpatch-20200102000000")

	e := New(10, false, true)
	_, err := e.Synchronize(sourceDir, graph, "https://example.org/.well-known/resourcesync", "2020-01-01T00:00:00Z")
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(sinkDir, "part_end_00000.zip"))
	require.NoError(t, err)

	// A third file arrives: the previously held-back file now joins the
	// tail, changing its member set and forcing a rewrite.
	writePatch(t, sourceDir, "rdfpatch-20200103000000")
	result, err := e.Synchronize(sourceDir, graph, "https://example.org/.well-known/resourcesync", "2020-01-01T00:00:01Z")
	require.NoError(t, err)
	assert.True(t, result.StateChanged)
	assert.Equal(t, 1, result.OpenTailDelta)

	// The old open-tail archive must have been retired, replaced by a new one.
	_, err = os.Stat(filepath.Join(sinkDir, "part_end_00000.zip"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(sinkDir, "part_end_00001.zip"))
	assert.NoError(t, err)
}

func TestSynchronizeMoveResourcesRelocatesSealedFiles(t *testing.T) {
	sourceDir := t.TempDir()
	sinkDir := t.TempDir()
	graph := newGraph(sinkDir)
	writePatch(t, sourceDir, "rdfpatch-20200101000000")
	writePatch(t, sourceDir, "rdfpatch-20200102000000")

	e := New(1, true, true)
	_, err := e.Synchronize(sourceDir, graph, "https://example.org/.well-known/resourcesync", "2020-01-01T00:00:00Z")
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(sinkDir, "rdfpatch-20200101000000"))
	assert.NoError(t, err, "sealed source file should be relocated into the sink, not deleted")
}

func TestInspectReflectsPublishedOpenTail(t *testing.T) {
	sourceDir := t.TempDir()
	sinkDir := t.TempDir()
	graph := newGraph(sinkDir)
	writePatch(t, sourceDir, "rdfpatch-20200101000000")
	writePatch(t, sourceDir, "rdfpatch-20200102000000") // held back, keeps the first file in the tail

	e := New(10, false, true)
	_, err := e.Synchronize(sourceDir, graph, "https://example.org/.well-known/resourcesync", "2020-01-01T00:00:00Z")
	require.NoError(t, err)

	state, err := published.Inspect(sinkDir)
	require.NoError(t, err)
	require.NotNil(t, state.OpenTail)
	_, ok := state.OpenTail.URISet["rdfpatch-20200101000000"]
	assert.True(t, ok)
}
