// Package planner turns a chronologically ordered list of input files into
// a sequence of size-bounded batches, applying the hold-back-the-most-
// recent-file rule.
package planner

import (
	"github.com/clariah/quadsync/internal/catalog"
	"github.com/clariah/quadsync/internal/syncerr"
)

// MaxBatchSizeLimit is the Sitemap protocol's per-document item cap.
const MaxBatchSizeLimit = 50000

// Kind distinguishes a sealed (full, immutable) batch from the open-tail
// (under-sized, rewritable) batch.
type Kind int

const (
	Sealed Kind = iota
	OpenTail
)

func (k Kind) String() string {
	if k == Sealed {
		return "sealed"
	}
	return "open_tail"
}

// Batch is an ordered list of input files destined for one archive. The
// open-tail batch may legitimately have zero Files (nothing eligible
// beyond the held-back file); sealed batches are always non-empty.
type Batch struct {
	Kind  Kind
	Files []*catalog.InputFile
}

// URISet returns the set of file basenames in the batch, used as the
// equality key when comparing a freshly planned open-tail against the
// previously published one.
func (b *Batch) URISet() map[string]struct{} {
	set := make(map[string]struct{}, len(b.Files))
	for _, f := range b.Files {
		set[f.Name] = struct{}{}
	}
	return set
}

// ValidateMaxBatchSize enforces the Sitemap protocol's 50000-item cap.
// Configuration exceeding it fails fast at startup, before any filesystem
// change is made.
func ValidateMaxBatchSize(maxBatchSize int) error {
	if maxBatchSize < 1 || maxBatchSize > MaxBatchSizeLimit {
		return syncerr.New(syncerr.ConfigInvalid,
			"max batch size must be between 1 and 50000", nil)
	}
	return nil
}

// Plan holds back the single most-recent file (on the assumption the
// upstream may still be writing it), then partitions the rest into
// consecutive windows of maxBatchSize. All full windows are sealed.
//
// The open-tail batch is always returned, even with zero Files: an empty
// tail still carries meaning (it may supersede a previously published
// non-empty tail that has just been promoted into a sealed batch, or it
// may simply mean nothing is eligible for the tail yet). Callers decide
// whether an empty tail requires writing an archive.
//
// Planning is deterministic: Plan(files, k) always returns the same
// sequence for the same input.
func Plan(files []*catalog.InputFile, maxBatchSize int) (sealed []*Batch, openTail *Batch, err error) {
	if err := ValidateMaxBatchSize(maxBatchSize); err != nil {
		return nil, nil, err
	}

	if len(files) == 0 {
		return nil, &Batch{Kind: OpenTail}, nil
	}

	eligible := files[:len(files)-1] // hold back the most recent file

	for start := 0; start+maxBatchSize <= len(eligible); start += maxBatchSize {
		window := eligible[start : start+maxBatchSize]
		sealed = append(sealed, &Batch{Kind: Sealed, Files: window})
	}

	tailStart := len(sealed) * maxBatchSize
	openTail = &Batch{Kind: OpenTail, Files: eligible[tailStart:]}

	return sealed, openTail, nil
}
