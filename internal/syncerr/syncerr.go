// Package syncerr defines the typed error kinds the publication engine
// raises, modeled after the app-error pattern used across the codebase's
// HTTP layer.
package syncerr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers (the orchestrator, the CLI) can
// decide whether it is fatal, a warning, or triggers error recovery.
type Kind string

const (
	// ConfigInvalid: maxBatchSize > 50000, or a required CLI arg is missing.
	// Fatal at startup; no filesystem change.
	ConfigInvalid Kind = "config_invalid"

	// SourceMissing: sourceDir absent. The orchestrator creates it and
	// continues; this kind exists for completeness of the table in spec.md §7
	// and is not normally surfaced as an error.
	SourceMissing Kind = "source_missing"

	// HandshakeMissingSource: started_at.txt absent in source. Warn, do nothing.
	HandshakeMissingSource Kind = "handshake_missing_source"

	// HandshakeConflictNonEmpty: source token present, sink token absent,
	// sink already has owned files.
	HandshakeConflictNonEmpty Kind = "handshake_conflict_nonempty"

	// CheckpointMissing: a dump file lacks a "# at checkpoint" line.
	CheckpointMissing Kind = "checkpoint_missing"

	// CheckpointMismatch: a later dump file disagrees with the cached
	// checkpoint timestamp (see SPEC_FULL.md §5, resolving spec.md's open question).
	CheckpointMismatch Kind = "checkpoint_mismatch"

	// MalformedName: an rdfpatch- filename doesn't match either family.
	// Policy is to ignore the file, not fail; this kind is kept for callers
	// that want to log the decision.
	MalformedName Kind = "malformed_name"

	// InconsistentSink: more than one part_end_*.zip found.
	InconsistentSink Kind = "inconsistent_sink"

	// IOError: any filesystem failure.
	IOError Kind = "io_error"
)

// Fatal reports whether errors of this kind should abort the current
// graph's synchronization and trigger the error-recovery sweep.
func (k Kind) Fatal() bool {
	switch k {
	case CheckpointMissing, CheckpointMismatch, InconsistentSink, IOError:
		return true
	default:
		return false
	}
}

// SyncError is the engine's error type: a kind, a human message, and an
// optional wrapped cause.
type SyncError struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *SyncError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *SyncError) Unwrap() error {
	return e.Cause
}

// New constructs a SyncError of the given kind.
func New(kind Kind, message string, cause error) *SyncError {
	return &SyncError{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err is a SyncError of kind k.
func Is(err error, k Kind) bool {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Kind == k
	}
	return false
}

// As extracts a *SyncError from err, if any.
func As(err error) (*SyncError, bool) {
	var se *SyncError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
