// Package orchestrator walks a source root, detects single-graph vs
// multi-graph mode, invokes the sync engine per graph, and maintains the
// root Source Description shared across every graph.
package orchestrator

import (
	"encoding/base64"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/clariah/quadsync/internal/handshake"
	"github.com/clariah/quadsync/internal/metadatagraph"
	"github.com/clariah/quadsync/internal/pathutil"
	"github.com/clariah/quadsync/internal/syncengine"
	"github.com/clariah/quadsync/internal/syncerr"
)

// multiGraphFlag is the presence-only file that switches the orchestrator
// into multi-graph mode. The original Python implementation called this
// file index.csv; spec.md renamed it, and that name is authoritative here.
const multiGraphFlag = "vql_graph_folder.csv"

const countersFile = "vql_files_count.txt"

// Options configures one orchestrator run; they map directly to the CLI
// flags in spec.md §6.
type Options struct {
	MaxBatchSize          int
	WriteSeparateManifest bool
	MoveResources         bool
}

// Summary aggregates counters across every graph processed in a run.
type Summary struct {
	GraphsProcessed int
	SealedCount     int
	OpenTailDelta   int
	Aborted         bool // handshake missing source token: quiet no-op
}

// Run executes one full orchestration pass.
func Run(sourceRoot, sinkRoot, publicRoot string, opts Options, now string) (Summary, error) {
	publicRoot = normalizePublicRoot(publicRoot)

	if err := pathutil.EnsureDir(sourceRoot); err != nil {
		return Summary{}, syncerr.New(syncerr.IOError, "create source root", err)
	}
	if err := pathutil.EnsureDir(sinkRoot); err != nil {
		return Summary{}, syncerr.New(syncerr.IOError, "create sink root", err)
	}

	token, ok, err := handshake.Verify(sourceRoot, sinkRoot)
	if err != nil {
		return Summary{}, err
	}
	if !ok {
		slog.Warn("no resource handshake found; not interfering with published state", "source", sourceRoot)
		return Summary{Aborted: true}, nil
	}
	slog.Info("synchronizing state", "handshake", token)

	graphs, err := discoverGraphs(sourceRoot, sinkRoot, publicRoot)
	if err != nil {
		return Summary{}, err
	}

	srcDesc, isNew, err := metadatagraph.LoadOrCreateSourceDescription(sinkRoot)
	if err != nil {
		return Summary{}, err
	}
	countBefore := len(srcDesc.URLs)
	sourceDescriptionURL := metadatagraph.SourceDescriptionURL(publicRoot)

	engine := syncengine.New(opts.MaxBatchSize, opts.MoveResources, opts.WriteSeparateManifest)

	summary := Summary{}
	for _, g := range graphs {
		result, err := engine.Synchronize(g.sourceDir, g.Graph, sourceDescriptionURL, now)
		if err != nil {
			return summary, err
		}

		summary.GraphsProcessed++
		summary.SealedCount += result.SealedCount
		summary.OpenTailDelta += result.OpenTailDelta

		if result.StateChanged {
			if metadatagraph.AddCapabilityList(srcDesc, g.CapabilityListURL()) {
				slog.Info("published resources", "graph", describeGraph(g.Graph.SinkDir), "sealed", result.SealedCount, "open_tail_delta", result.OpenTailDelta)
			}
		} else {
			slog.Info("no changes", "graph", describeGraph(g.Graph.SinkDir))
		}
	}

	if isNew || len(srcDesc.URLs) != countBefore {
		if err := metadatagraph.SaveSourceDescription(sinkRoot, srcDesc); err != nil {
			return summary, err
		}
	}

	if err := reconcileCounters(sourceRoot, sinkRoot, summary); err != nil {
		slog.Warn("counter reconciliation failed", "error", err)
	}

	return summary, nil
}

func normalizePublicRoot(publicRoot string) string {
	if publicRoot == "" {
		publicRoot = "http://example.com/"
	}
	if !strings.HasSuffix(publicRoot, "/") {
		publicRoot += "/"
	}
	return publicRoot
}

type graphEntry struct {
	metadatagraph.Graph
	sourceDir string
}

// discoverGraphs detects single-graph vs multi-graph mode per spec.md §4.8
// step 5.
func discoverGraphs(sourceRoot, sinkRoot, publicRoot string) ([]graphEntry, error) {
	flagPath := filepath.Join(sourceRoot, multiGraphFlag)
	if !pathutil.FileExists(flagPath) {
		return []graphEntry{{
			Graph:     metadatagraph.Graph{SinkDir: sinkRoot, PublicURL: publicRoot},
			sourceDir: sourceRoot,
		}}, nil
	}

	entries, err := os.ReadDir(sourceRoot)
	if err != nil {
		return nil, syncerr.New(syncerr.IOError, "read source root", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	graphs := make([]graphEntry, 0, len(names))
	for _, name := range names {
		graphs = append(graphs, graphEntry{
			Graph: metadatagraph.Graph{
				SinkDir:   filepath.Join(sinkRoot, name),
				PublicURL: publicRoot + name + "/",
			},
			sourceDir: filepath.Join(sourceRoot, name),
		})
	}
	return graphs, nil
}

// describeGraph names a graph for log lines. When the sink subdirectory
// name happens to be URL-safe base64 (as the original CLARIAH tooling
// encoded its graph IRIs), decode it purely for readability; this never
// affects any published document.
func describeGraph(sinkDir string) string {
	name := filepath.Base(sinkDir)
	if decoded, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(name); err == nil && len(decoded) > 0 {
		return string(decoded)
	}
	return name
}

// reconcileCounters maintains vql_files_count.txt in the sink as
// "<totalSealed>,<totalOpenTail>", adding this run's deltas to the stored
// totals, and warns (never fails) if the sink's running total diverges
// from the upstream's own counter file. Per spec.md's open question in
// §9, divergence is informational: the upstream may have begun a new file
// not yet eligible for publication.
func reconcileCounters(sourceRoot, sinkRoot string, summary Summary) error {
	sinkPath := filepath.Join(sinkRoot, countersFile)
	sealed, tail, err := readCounters(sinkPath)
	if err != nil {
		return err
	}

	sealed += summary.SealedCount
	tail += summary.OpenTailDelta

	if err := writeCounters(sinkPath, sealed, tail); err != nil {
		return err
	}

	sourcePath := filepath.Join(sourceRoot, countersFile)
	if pathutil.FileExists(sourcePath) {
		upstreamSealed, upstreamTail, err := readCounters(sourcePath)
		if err == nil && (upstreamSealed+upstreamTail) != (sealed+tail) {
			slog.Warn("sink/upstream counters diverge",
				"sink_total", sealed+tail, "upstream_total", upstreamSealed+upstreamTail)
		}
	}

	return nil
}

func readCounters(path string) (sealed, tail int, err error) {
	if !pathutil.FileExists(path) {
		return 0, 0, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, syncerr.New(syncerr.IOError, "read "+path, err)
	}
	parts := strings.SplitN(strings.TrimSpace(string(data)), ",", 2)
	if len(parts) != 2 {
		return 0, 0, nil
	}
	sealed, _ = strconv.Atoi(strings.TrimSpace(parts[0]))
	tail, _ = strconv.Atoi(strings.TrimSpace(parts[1]))
	return sealed, tail, nil
}

func writeCounters(path string, sealed, tail int) error {
	body := strconv.Itoa(sealed) + "," + strconv.Itoa(tail)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		return syncerr.New(syncerr.IOError, "write "+path, err)
	}
	return nil
}
