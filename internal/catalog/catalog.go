// Package catalog enumerates RDF change files in a source directory and
// extracts the metadata the planner and archive writer need: filename,
// logical timestamp, size, and (lazily) MD5.
package catalog

import (
	"bufio"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/clariah/quadsync/internal/pathutil"
	"github.com/clariah/quadsync/internal/syncerr"
)

const (
	patchPrefix = "rdfpatch-"
	dumpPrefix  = "rdfpatch-0d"

	timestampLayout = "YYYY-MM-DDTHH:MM:SSZ" // documentation only; see formatTimestamp
)

var checkpointLine = regexp.MustCompile(`^# at checkpoint`)
var digits = regexp.MustCompile(`\d+`)

// InputFile is a single RDF change file discovered on disk.
type InputFile struct {
	Path      string
	Name      string
	Timestamp string // ISO-8601 UTC, YYYY-MM-DDTHH:MM:SSZ

	sizeLoaded bool
	size       int64
	md5Loaded  bool
	md5        string
}

// Size returns the file's byte length, computing it lazily on first use.
func (f *InputFile) Size() (int64, error) {
	if f.sizeLoaded {
		return f.size, nil
	}
	info, err := os.Stat(f.Path)
	if err != nil {
		return 0, syncerr.New(syncerr.IOError, "stat "+f.Path, err)
	}
	f.size = info.Size()
	f.sizeLoaded = true
	return f.size, nil
}

// MD5 returns the file's hex-encoded MD5 digest, computing it lazily.
func (f *InputFile) MD5() (string, error) {
	if f.md5Loaded {
		return f.md5, nil
	}
	sum, err := pathutil.FileHash(f.Path)
	if err != nil {
		return "", syncerr.New(syncerr.IOError, "hash "+f.Path, err)
	}
	f.md5 = sum
	f.md5Loaded = true
	return f.md5, nil
}

// Catalog enumerates a source directory. It caches the dump-family
// checkpoint timestamp across calls, since the original source reads it
// once from the first dump file and reuses it for every dump file.
type Catalog struct {
	// RejectCheckpointMismatch, when true (the default), makes Enumerate
	// fail with syncerr.CheckpointMismatch if a later dump file's checkpoint
	// header disagrees with the cached value. See SPEC_FULL.md §5.
	RejectCheckpointMismatch bool

	dumpTimestamp      string
	dumpTimestampKnown bool
	dumpCheckpointRaw  string
}

// New returns a Catalog with the default (strict) checkpoint policy.
func New() *Catalog {
	return &Catalog{RejectCheckpointMismatch: true}
}

// Enumerate walks sourceDir (non-recursively) and returns InputFiles in
// lexicographic filename order, which is designed to coincide with
// chronological order for both filename families. Files that match
// neither family are silently ignored.
func (c *Catalog) Enumerate(sourceDir string) ([]*InputFile, error) {
	entries, err := os.ReadDir(sourceDir)
	if err != nil {
		return nil, syncerr.New(syncerr.IOError, "read dir "+sourceDir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	files := make([]*InputFile, 0, len(names))
	for _, name := range names {
		path := filepath.Join(sourceDir, name)
		ts, ok, err := c.timestampFor(path, name)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue // MalformedName / not ours: ignore
		}
		files = append(files, &InputFile{Path: path, Name: name, Timestamp: ts})
	}

	return files, nil
}

// timestampFor extracts the logical timestamp for name, returning
// ok=false when the file belongs to neither family (ignored, not an error).
func (c *Catalog) timestampFor(path, name string) (string, bool, error) {
	switch {
	case strings.HasPrefix(name, dumpPrefix):
		ts, err := c.dumpFileTimestamp(path)
		if err != nil {
			return "", false, err
		}
		return ts, true, nil

	case strings.HasPrefix(name, patchPrefix):
		rawTS := strings.TrimPrefix(name, patchPrefix)
		if len(rawTS) != 14 || !isAllDigits(rawTS) {
			return "", false, nil
		}
		return formatTimestamp(rawTS), true, nil

	default:
		return "", false, nil
	}
}

// dumpFileTimestamp returns the cached checkpoint timestamp, reading it
// from path on first encounter. Every subsequent dump file reuses this
// value (or, if RejectCheckpointMismatch, must agree with it).
func (c *Catalog) dumpFileTimestamp(path string) (string, error) {
	if c.dumpTimestampKnown && !c.RejectCheckpointMismatch {
		return c.dumpTimestamp, nil
	}

	raw, err := c.readCheckpoint(path)
	if err != nil {
		return "", err
	}

	if !c.dumpTimestampKnown {
		c.dumpCheckpointRaw = raw
		c.dumpTimestamp = formatTimestamp(raw)
		c.dumpTimestampKnown = true
		return c.dumpTimestamp, nil
	}

	if c.RejectCheckpointMismatch && raw != c.dumpCheckpointRaw {
		return "", syncerr.New(syncerr.CheckpointMismatch,
			"dump file "+path+" checkpoint "+raw+" disagrees with "+c.dumpCheckpointRaw, nil)
	}

	return c.dumpTimestamp, nil
}

// readCheckpoint scans path linewise for "# at checkpoint <digits>" and
// returns the first run of digits found.
func (c *Catalog) readCheckpoint(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", syncerr.New(syncerr.IOError, "open "+path, err)
	}
	defer f.Close() // scoped acquisition: released on every exit path

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if checkpointLine.MatchString(line) {
			match := digits.FindString(line)
			if match == "" {
				continue
			}
			return match, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", syncerr.New(syncerr.IOError, "scan "+path, err)
	}

	return "", syncerr.New(syncerr.CheckpointMissing,
		"no '# at checkpoint' line found in "+path, nil)
}

// formatTimestamp converts a 14-digit raw timestamp "20160613082341" into
// "2016-06-13T08:23:41Z".
func formatTimestamp(raw string) string {
	return raw[0:4] + "-" + raw[4:6] + "-" + raw[6:8] + "T" +
		raw[8:10] + ":" + raw[10:12] + ":" + raw[12:14] + "Z"
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
